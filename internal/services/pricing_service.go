package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"notebridge/internal/config"
	"notebridge/internal/database"
	"notebridge/internal/models"
)

// TokenCapacityLimits caps the total tokens a user may hold per category,
// summed across every model in that category.
var TokenCapacityLimits = map[string]int64{
	models.CategoryQuick: 5_000_000,
	models.CategoryThink: 1_000_000,
}

// TokenCapacityLimit returns the cap for a category, 0 if unknown.
func TokenCapacityLimit(category string) int64 {
	return TokenCapacityLimits[category]
}

// PricingService owns the pricing table: seeding from pricing.json,
// cached reads, and explicit invalidation on reload.
type PricingService struct {
	db    *database.DB
	cache *gocache.Cache
}

func NewPricingService(db *database.DB) *PricingService {
	return &PricingService{
		db:    db,
		cache: gocache.New(5*time.Minute, 10*time.Minute),
	}
}

const pricingCacheKey = "pricing:all"

// SeedFromFile upserts the pricing.json entries and invalidates the cache.
// Models absent from the file are kept; pricing rows are never deleted.
func (s *PricingService) SeedFromFile(ctx context.Context, filePath string) error {
	cfg, err := config.LoadPricing(filePath)
	if err != nil {
		return err
	}

	for _, m := range cfg.Models {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO pricing (model_id, price_per_m_token, category, display_name, description, updated_at)
			VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), now())
			ON CONFLICT (model_id) DO UPDATE SET
				price_per_m_token = EXCLUDED.price_per_m_token,
				category          = EXCLUDED.category,
				display_name      = EXCLUDED.display_name,
				description       = EXCLUDED.description,
				updated_at        = now()`,
			m.ModelID, m.PricePerMToken, m.Category, m.DisplayName, m.Description)
		if err != nil {
			return fmt.Errorf("failed to upsert pricing for %s: %w", m.ModelID, err)
		}
	}

	s.Invalidate()
	log.Printf("💰 [PRICING] Seeded %d models from %s", len(cfg.Models), filePath)
	return nil
}

// GetModel returns the pricing row for one model, nil if unpriced.
func (s *PricingService) GetModel(ctx context.Context, modelID string) (*models.Pricing, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	p, ok := all[modelID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// GetAll returns every pricing row keyed by model_id, from cache when warm.
func (s *PricingService) GetAll(ctx context.Context) (map[string]models.Pricing, error) {
	if cached, found := s.cache.Get(pricingCacheKey); found {
		return cached.(map[string]models.Pricing), nil
	}

	rows := []models.Pricing{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT model_id, price_per_m_token, category, display_name, description, updated_at
		FROM pricing`)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to load pricing: %w", err)
	}

	all := make(map[string]models.Pricing, len(rows))
	for _, p := range rows {
		all[p.ModelID] = p
	}

	s.cache.Set(pricingCacheKey, all, gocache.DefaultExpiration)
	return all, nil
}

// PublicTable is the GET /api/billing/pricing shape.
func (s *PricingService) PublicTable(ctx context.Context) (map[string]models.PricingEntry, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	table := make(map[string]models.PricingEntry, len(all))
	for id, p := range all {
		entry := models.PricingEntry{
			PricePerMToken: p.PricePerMToken,
			Category:       p.Category,
		}
		if p.DisplayName != nil {
			entry.DisplayName = *p.DisplayName
		}
		table[id] = entry
	}
	return table, nil
}

// Invalidate drops the cache; the next read hits the database.
func (s *PricingService) Invalidate() {
	s.cache.Delete(pricingCacheKey)
}
