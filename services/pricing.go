package services

import (
	"context"

	"settlement-service/models"
	"settlement-service/pricing"
)

// CreatePricingConfig stores a new config version. Activating it retires the
// previous active one; bills already open keep the rates they captured.
func (s *Service) CreatePricingConfig(ctx context.Context, tenantID string, req models.CreatePricingConfigRequest) (*models.PricingConfig, error) {
	cfg := &models.PricingConfig{
		TenantID:              tenantID,
		Active:                req.Activate,
		GlobalDiscountPercent: req.GlobalDiscountPercent,
		ServiceChargePercent:  req.ServiceChargePercent,
		Taxes:                 append([]models.Tax(nil), req.Taxes...),
		EffectiveFrom:         s.now(),
	}
	if req.EffectiveFrom != nil {
		cfg.EffectiveFrom = req.EffectiveFrom.UTC()
	}
	for i := range cfg.Taxes {
		if err := s.validate.Struct(cfg.Taxes[i]); err != nil {
			return nil, models.Validationf("tax %d: %v", i, err)
		}
	}
	if err := pricing.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if err := s.store.SavePricingConfig(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *Service) ActivePricingConfig(ctx context.Context, tenantID string) (*models.PricingConfig, error) {
	return s.store.ActivePricingConfig(ctx, tenantID)
}
