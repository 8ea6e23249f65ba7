package services

import (
	"context"
	"fmt"
	"log"

	"google.golang.org/api/androidpublisher/v3"
	"google.golang.org/api/option"

	"notebridge/internal/models"
)

// IAPVerification is the normalized result of a store receipt check.
// TransactionID is the store's order id and becomes the ledger idempotency
// key.
type IAPVerification struct {
	TransactionID string
	Purchased     bool
	Acknowledged  bool
}

// IAPVerifier talks to the app store. Tests substitute a fake.
type IAPVerifier interface {
	Verify(ctx context.Context, productID, purchaseToken string) (*IAPVerification, error)
	Acknowledge(ctx context.Context, productID, purchaseToken string) error
}

// purchaseStatePurchased is the androidpublisher purchaseState for a
// completed consumable purchase (1=canceled, 2=pending).
const purchaseStatePurchased = 0

// GooglePlayVerifier checks consumable purchases against the Android
// Publisher API with a service account.
type GooglePlayVerifier struct {
	service     *androidpublisher.Service
	packageName string
}

func NewGooglePlayVerifier(ctx context.Context, packageName, credentialsFile string) (*GooglePlayVerifier, error) {
	if packageName == "" || credentialsFile == "" {
		return nil, fmt.Errorf("google play verification requires GOOGLE_PLAY_PACKAGE_NAME and GOOGLE_PLAY_CREDENTIALS_JSON")
	}

	service, err := androidpublisher.NewService(ctx, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to init android publisher client: %w", err)
	}

	log.Println("✅ Google Play verifier initialized")
	return &GooglePlayVerifier{service: service, packageName: packageName}, nil
}

func (v *GooglePlayVerifier) Verify(ctx context.Context, productID, purchaseToken string) (*IAPVerification, error) {
	purchase, err := v.service.Purchases.Products.
		Get(v.packageName, productID, purchaseToken).
		Context(ctx).Do()
	if err != nil {
		return nil, models.NewExternalServiceError("google play", err)
	}

	transactionID := purchase.OrderId
	if transactionID == "" {
		// Sandbox purchases may lack an order id; fall back to the token
		// so idempotency still holds.
		transactionID = purchaseToken
	}

	return &IAPVerification{
		TransactionID: transactionID,
		Purchased:     purchase.PurchaseState == purchaseStatePurchased,
		Acknowledged:  purchase.AcknowledgementState == 1,
	}, nil
}

func (v *GooglePlayVerifier) Acknowledge(ctx context.Context, productID, purchaseToken string) error {
	err := v.service.Purchases.Products.
		Acknowledge(v.packageName, productID, purchaseToken,
			&androidpublisher.ProductPurchasesAcknowledgeRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("acknowledge failed: %w", err)
	}
	return nil
}

// disabledVerifier rejects purchases when the store credentials are not
// configured, so the endpoint fails loudly instead of crediting for free.
type disabledVerifier struct{}

func NewDisabledVerifier() IAPVerifier {
	return disabledVerifier{}
}

func (disabledVerifier) Verify(ctx context.Context, productID, purchaseToken string) (*IAPVerification, error) {
	return nil, models.NewExternalServiceError("google play", fmt.Errorf("billing verification not configured"))
}

func (disabledVerifier) Acknowledge(ctx context.Context, productID, purchaseToken string) error {
	return fmt.Errorf("billing verification not configured")
}
