package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/pgvector/pgvector-go"
)

// User is the identity root. Created on first device registration or on
// OAuth login, never deleted by the system.
type User struct {
	UserID            string    `db:"user_id" json:"user_id"`
	GoogleID          *string   `db:"google_id" json:"google_id,omitempty"`
	Email             *string   `db:"email" json:"email,omitempty"`
	DisplayName       *string   `db:"display_name" json:"display_name,omitempty"`
	ProfilePictureURL *string   `db:"profile_picture_url" json:"profile_picture_url,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// Device belongs to exactly one user at a time. OAuth login may reassign
// it; deactivation is soft.
type Device struct {
	DeviceID    string     `db:"device_id" json:"device_id"`
	UserID      string     `db:"user_id" json:"user_id"`
	DeviceName  *string    `db:"device_name" json:"device_name,omitempty"`
	DeviceType  *string    `db:"device_type" json:"device_type,omitempty"` // ios, android, web
	IsActive    bool       `db:"is_active" json:"is_active"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	LastLoginAt *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
}

// Credit holds prepaid yen per user. One row per user, created with the user.
type Credit struct {
	UserID    string    `db:"user_id" json:"user_id"`
	Credits   int64     `db:"credits" json:"credits"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TokenBalance holds allocated LLM tokens per (user, model). Created lazily
// on first allocation.
type TokenBalance struct {
	UserID          string    `db:"user_id" json:"user_id"`
	ModelID         string    `db:"model_id" json:"model_id"`
	AllocatedTokens int64     `db:"allocated_tokens" json:"allocated_tokens"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Pricing categories. Each category carries a per-user capacity cap on the
// total tokens allocated across its models.
const (
	CategoryQuick = "quick"
	CategoryThink = "think"
)

type Pricing struct {
	ModelID        string    `db:"model_id" json:"model_id"`
	PricePerMToken int64     `db:"price_per_m_token" json:"price_per_m_token"` // yen per 1,000,000 tokens
	Category       string    `db:"category" json:"category"`
	DisplayName    *string   `db:"display_name" json:"display_name,omitempty"`
	Description    *string   `db:"description" json:"description,omitempty"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Transaction types for the append-only ledger.
const (
	TxPurchase    = "purchase"
	TxAllocation  = "allocation"
	TxConsumption = "consumption"
)

// Transaction is one ledger row. Rows are never mutated or deleted.
// IAPTransactionID is the sole idempotency key for purchases.
type Transaction struct {
	ID               string         `db:"id" json:"id"`
	UserID           string         `db:"user_id" json:"user_id"`
	Type             string         `db:"type" json:"type"`
	Amount           int64          `db:"amount" json:"amount"`
	ModelID          *string        `db:"model_id" json:"model_id,omitempty"`
	IAPTransactionID *string        `db:"iap_transaction_id" json:"iap_transaction_id,omitempty"`
	Metadata         types.JSONText `db:"metadata" json:"metadata,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
}

// BlacklistedToken is content-addressed by the SHA-256 of the raw JWT.
type BlacklistedToken struct {
	TokenHash string    `db:"token_hash" json:"token_hash"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
}

// OAuthState binds an in-flight OAuth authorization to the device that
// started it. Single-use, consumed by the callback.
type OAuthState struct {
	State     string    `db:"state" json:"state"`
	DeviceID  string    `db:"device_id" json:"device_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
}

// Vector collection types.
const (
	CollectionTemp       = "temp"
	CollectionPersistent = "persistent"
)

// VectorDocument is one embedded chunk. temp rows must carry expires_at,
// persistent rows must carry user_id.
type VectorDocument struct {
	ID             string          `db:"id" json:"id"`
	UserID         *string         `db:"user_id" json:"user_id,omitempty"`
	CollectionName string          `db:"collection_name" json:"collection_name"`
	CollectionType string          `db:"collection_type" json:"collection_type"`
	Content        string          `db:"content" json:"content"`
	Embedding      pgvector.Vector `db:"embedding" json:"-"`
	Metadata       types.JSONText  `db:"metadata" json:"metadata,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	ExpiresAt      *time.Time      `db:"expires_at" json:"expires_at,omitempty"`
}

// CollectionSharing widens persistent-collection visibility to another user.
type CollectionSharing struct {
	OwnerUserID      string    `db:"owner_user_id" json:"owner_user_id"`
	CollectionName   string    `db:"collection_name" json:"collection_name"`
	SharedWithUserID string    `db:"shared_with_user_id" json:"shared_with_user_id"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}
