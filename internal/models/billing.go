package models

// PurchaseRequest is the POST /api/billing/purchase body. PurchaseToken is
// the opaque Google Play token; CreditsAmount is the yen value of the
// product as sold.
type PurchaseRequest struct {
	ProductID     string `json:"product_id"`
	PurchaseToken string `json:"purchase_token"`
	CreditsAmount int64  `json:"credits_amount"`
}

type PurchaseResponse struct {
	Success    bool  `json:"success"`
	NewBalance int64 `json:"new_balance"`
}

// AllocationItem converts credits into tokens for one model.
type AllocationItem struct {
	ModelID string `json:"model_id"`
	Credits int64  `json:"credits"`
}

type AllocateRequest struct {
	Allocations []AllocationItem `json:"allocations"`
}

type ConsumeRequest struct {
	ModelID      string `json:"model_id"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

type ConsumeResponse struct {
	Success         bool  `json:"success"`
	RemainingTokens int64 `json:"remaining_tokens"`
}

type BalanceResponse struct {
	Credits         int64            `json:"credits"`
	AllocatedTokens map[string]int64 `json:"allocated_tokens"`
}

// PricingEntry is the public view of one Pricing row.
type PricingEntry struct {
	PricePerMToken int64  `json:"price_per_m_token"`
	Category       string `json:"category"`
	DisplayName    string `json:"display_name,omitempty"`
}

// PricingSeed is one entry of the pricing.json seed file.
type PricingSeed struct {
	ModelID        string `json:"model_id"`
	PricePerMToken int64  `json:"price_per_m_token"`
	Category       string `json:"category"`
	DisplayName    string `json:"display_name,omitempty"`
	Description    string `json:"description,omitempty"`
}

// PricingConfig is the pricing.json document shape.
type PricingConfig struct {
	Models []PricingSeed `json:"models"`
}
