package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/oklog/ulid/v2"

	"notebridge/internal/database"
	"notebridge/internal/models"
)

const tokensPerCreditUnit = 1_000_000

// BillingService owns the prepaid credit/token engine: purchases verified
// against the store, one-way credit→token allocation under category caps,
// and consumption against provider-reported usage. Every mutation runs in
// one transaction with row locks on the credit and balance rows it touches.
type BillingService struct {
	db       *database.DB
	pricing  *PricingService
	verifier IAPVerifier
}

func NewBillingService(db *database.DB, pricing *PricingService, verifier IAPVerifier) *BillingService {
	return &BillingService{db: db, pricing: pricing, verifier: verifier}
}

// CreditsToTokens converts yen into tokens at a model's price.
// tokens = floor(credits * 1,000,000 / price_per_m_token).
func CreditsToTokens(credits, pricePerMToken int64) int64 {
	if pricePerMToken <= 0 {
		return 0
	}
	return credits * tokensPerCreditUnit / pricePerMToken
}

// TokensToCredits is the floor of the inverse conversion. Used only to
// suggest the maximum legal allocation in error details; tokens never
// convert back into spendable credits.
func TokensToCredits(tokens, pricePerMToken int64) int64 {
	if pricePerMToken <= 0 {
		return 0
	}
	return tokens * pricePerMToken / tokensPerCreditUnit
}

// Purchase verifies a Google Play receipt and credits the user. The store
// order id is the sole idempotency key; a replayed receipt fails with
// DUPLICATE_TRANSACTION and changes nothing. Acknowledgement to the store
// happens after commit and is best-effort: the user keeps the credit even
// if the acknowledge call fails.
func (s *BillingService) Purchase(ctx context.Context, userID string, req *models.PurchaseRequest) (*models.PurchaseResponse, error) {
	if req.ProductID == "" || req.PurchaseToken == "" {
		return nil, models.NewValidationError("product_id and purchase_token are required")
	}
	if req.CreditsAmount <= 0 {
		return nil, models.NewInvalidAmountError("credits_amount must be positive")
	}

	verification, err := s.verifier.Verify(ctx, req.ProductID, req.PurchaseToken)
	if err != nil {
		return nil, err
	}
	if !verification.Purchased {
		return nil, models.NewValidationError("purchase is not in purchased state")
	}

	metadata, _ := json.Marshal(map[string]interface{}{
		"product_id":     req.ProductID,
		"transaction_id": verification.TransactionID,
	})

	var newBalance int64
	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `
			SELECT EXISTS (SELECT 1 FROM transactions WHERE iap_transaction_id = $1)`,
			verification.TransactionID); err != nil {
			return fmt.Errorf("failed to check transaction idempotency: %w", err)
		}
		if exists {
			return models.NewDuplicateTransactionError(verification.TransactionID)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO transactions (id, user_id, type, amount, iap_transaction_id, metadata)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			ulid.Make().String(), userID, models.TxPurchase, req.CreditsAmount,
			verification.TransactionID, metadata); err != nil {
			// A concurrent replay can pass the EXISTS check and lose the
			// race on idx_transactions_iap_id.
			if isUniqueViolation(err) {
				return models.NewDuplicateTransactionError(verification.TransactionID)
			}
			return fmt.Errorf("failed to record purchase: %w", err)
		}

		if err := tx.GetContext(ctx, &newBalance, `
			INSERT INTO credits (user_id, credits)
			VALUES ($1, $2)
			ON CONFLICT (user_id) DO UPDATE SET
				credits = credits.credits + EXCLUDED.credits,
				updated_at = now()
			RETURNING credits`,
			userID, req.CreditsAmount); err != nil {
			return fmt.Errorf("failed to credit user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !verification.Acknowledged {
		if ackErr := s.verifier.Acknowledge(ctx, req.ProductID, req.PurchaseToken); ackErr != nil {
			// The credit is already committed; the store will re-deliver the
			// purchase until acknowledged and idempotency absorbs the replay.
			log.Printf("⚠️ [BILLING] Acknowledge failed for %s: %v", verification.TransactionID, ackErr)
		}
	}

	log.Printf("💰 [BILLING] Purchase %s: user=%s +%d yen (balance=%d)",
		verification.TransactionID, userID, req.CreditsAmount, newBalance)
	return &models.PurchaseResponse{Success: true, NewBalance: newBalance}, nil
}

// isUniqueViolation reports a Postgres unique-constraint error (23505)
// anywhere in the chain.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// Allocate converts credits into tokens for each item, atomically. The
// credit row and every balance row for the user are locked for the whole
// operation, so two concurrent allocations observe each other. The first
// failing item is reported with the maximum allocation that would have
// succeeded.
func (s *BillingService) Allocate(ctx context.Context, userID string, items []models.AllocationItem) error {
	if len(items) == 0 {
		return models.NewValidationError("allocations must not be empty")
	}
	var totalCredits int64
	for _, item := range items {
		if item.ModelID == "" {
			return models.NewValidationError("model_id is required for every allocation")
		}
		if item.Credits <= 0 {
			return models.NewInvalidAmountError(fmt.Sprintf("allocation for %s: credits must be positive", item.ModelID))
		}
		totalCredits += item.Credits
	}

	pricingTable, err := s.pricing.GetAll(ctx)
	if err != nil {
		return err
	}
	for _, item := range items {
		if _, ok := pricingTable[item.ModelID]; !ok {
			return models.NewValidationError(fmt.Sprintf("unknown model: %s", item.ModelID))
		}
	}

	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var credits int64
		err := tx.GetContext(ctx, &credits, `
			SELECT credits FROM credits WHERE user_id = $1 FOR UPDATE`, userID)
		if errors.Is(err, sql.ErrNoRows) {
			return models.NewCreditNotFoundError(userID)
		}
		if err != nil {
			return fmt.Errorf("failed to lock credit row: %w", err)
		}
		if totalCredits > credits {
			return models.NewInsufficientCreditsError(totalCredits, credits)
		}

		// Lock every balance row for the user: the category sums below must
		// not race a concurrent allocation.
		balances := []models.TokenBalance{}
		if err := tx.SelectContext(ctx, &balances, `
			SELECT user_id, model_id, allocated_tokens, updated_at
			FROM token_balances WHERE user_id = $1 FOR UPDATE`, userID); err != nil {
			return fmt.Errorf("failed to lock token balances: %w", err)
		}

		categoryTotals := map[string]int64{}
		for _, b := range balances {
			if p, ok := pricingTable[b.ModelID]; ok {
				categoryTotals[p.Category] += b.AllocatedTokens
			}
		}

		for _, item := range items {
			pricing := pricingTable[item.ModelID]
			tokens := CreditsToTokens(item.Credits, pricing.PricePerMToken)
			if tokens <= 0 {
				return models.NewInvalidAmountError(
					fmt.Sprintf("allocation for %s: %d credits converts to zero tokens", item.ModelID, item.Credits))
			}

			limit := TokenCapacityLimit(pricing.Category)
			if categoryTotals[pricing.Category]+tokens > limit {
				return capExceededError(item.ModelID, pricing, limit, categoryTotals[pricing.Category], tokens)
			}
			categoryTotals[pricing.Category] += tokens

			if _, err := tx.ExecContext(ctx, `
				INSERT INTO token_balances (user_id, model_id, allocated_tokens)
				VALUES ($1, $2, $3)
				ON CONFLICT (user_id, model_id) DO UPDATE SET
					allocated_tokens = token_balances.allocated_tokens + EXCLUDED.allocated_tokens,
					updated_at = now()`,
				userID, item.ModelID, tokens); err != nil {
				return fmt.Errorf("failed to upsert balance for %s: %w", item.ModelID, err)
			}

			metadata, _ := json.Marshal(map[string]interface{}{
				"credits":          item.Credits,
				"tokens_allocated": tokens,
			})
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO transactions (id, user_id, type, amount, model_id, metadata)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				ulid.Make().String(), userID, models.TxAllocation, item.Credits,
				item.ModelID, metadata); err != nil {
				return fmt.Errorf("failed to record allocation: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE credits SET credits = credits - $2, updated_at = now()
			WHERE user_id = $1`, userID, totalCredits); err != nil {
			return fmt.Errorf("failed to deduct credits: %w", err)
		}
		return nil
	})
}

// capExceededError describes which category cap the item hit and how many
// credits at most the user could still allocate there.
func capExceededError(modelID string, pricing models.Pricing, limit, current, requested int64) *models.AppError {
	remainingTokens := limit - current
	if remainingTokens < 0 {
		remainingTokens = 0
	}
	maxCredits := TokensToCredits(remainingTokens, pricing.PricePerMToken)
	e := models.NewInvalidAmountError(fmt.Sprintf(
		"allocation for %s exceeds the %s category cap of %.1fM tokens; at most %d more credits can be allocated",
		modelID, pricing.Category, float64(limit)/1_000_000, maxCredits))
	return e.WithDetail("model_id", modelID).
		WithDetail("category", pricing.Category).
		WithDetail("category_cap_tokens", limit).
		WithDetail("category_current_tokens", current).
		WithDetail("requested_tokens", requested).
		WithDetail("max_allocatable_credits", maxCredits)
}

// Consume deducts provider-reported usage from the model balance. This is
// the canonical accounting path invoked by the orchestrator after every
// agent run; the public endpoint shares it.
func (s *BillingService) Consume(ctx context.Context, userID, modelID string, inputTokens, outputTokens int64) (remaining int64, err error) {
	if modelID == "" {
		return 0, models.NewValidationError("model_id is required")
	}
	if inputTokens < 0 || outputTokens < 0 {
		return 0, models.NewInvalidAmountError("token counts must not be negative")
	}
	total := inputTokens + outputTokens
	if total == 0 {
		return 0, models.NewInvalidAmountError("nothing to consume")
	}

	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var balance int64
		err := tx.GetContext(ctx, &balance, `
			SELECT allocated_tokens FROM token_balances
			WHERE user_id = $1 AND model_id = $2 FOR UPDATE`, userID, modelID)
		if errors.Is(err, sql.ErrNoRows) {
			return models.NewInsufficientBalanceError(modelID, total, 0)
		}
		if err != nil {
			return fmt.Errorf("failed to lock token balance: %w", err)
		}
		if balance < total {
			return models.NewInsufficientBalanceError(modelID, total, balance)
		}

		remaining = balance - total
		if _, err := tx.ExecContext(ctx, `
			UPDATE token_balances SET allocated_tokens = $3, updated_at = now()
			WHERE user_id = $1 AND model_id = $2`, userID, modelID, remaining); err != nil {
			return fmt.Errorf("failed to deduct tokens: %w", err)
		}

		metadata, _ := json.Marshal(map[string]interface{}{
			"input_tokens":  inputTokens,
			"output_tokens": outputTokens,
		})
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO transactions (id, user_id, type, amount, model_id, metadata)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			ulid.Make().String(), userID, models.TxConsumption, total, modelID, metadata); err != nil {
			return fmt.Errorf("failed to record consumption: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

// Validate is the pre-flight gate before an LLM call: a snapshot read with
// no lock. It does not reserve anything; the post-flight Consume settles
// against the provider's reported usage.
func (s *BillingService) Validate(ctx context.Context, userID, modelID string, estimatedTokens int64) error {
	var balance int64
	err := s.db.GetContext(ctx, &balance, `
		SELECT allocated_tokens FROM token_balances
		WHERE user_id = $1 AND model_id = $2`, userID, modelID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.NewInsufficientBalanceError(modelID, estimatedTokens, 0)
	}
	if err != nil {
		return fmt.Errorf("failed to read token balance: %w", err)
	}
	if balance < estimatedTokens {
		return models.NewInsufficientBalanceError(modelID, estimatedTokens, balance)
	}
	return nil
}

// Balance returns the credit balance and every model balance for the user.
func (s *BillingService) Balance(ctx context.Context, userID string) (*models.BalanceResponse, error) {
	var credits int64
	err := s.db.GetContext(ctx, &credits, `
		SELECT credits FROM credits WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewCreditNotFoundError(userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credits: %w", err)
	}

	balances := []models.TokenBalance{}
	if err := s.db.SelectContext(ctx, &balances, `
		SELECT user_id, model_id, allocated_tokens, updated_at
		FROM token_balances WHERE user_id = $1`, userID); err != nil {
		return nil, fmt.Errorf("failed to read token balances: %w", err)
	}

	allocated := make(map[string]int64, len(balances))
	for _, b := range balances {
		allocated[b.ModelID] = b.AllocatedTokens
	}
	return &models.BalanceResponse{Credits: credits, AllocatedTokens: allocated}, nil
}

// Transactions returns the user's ledger, newest first.
func (s *BillingService) Transactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	txs := []models.Transaction{}
	err := s.db.SelectContext(ctx, &txs, `
		SELECT id, user_id, type, amount, model_id, iap_transaction_id, metadata, created_at
		FROM transactions WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}
