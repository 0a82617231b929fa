package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Tax struct {
	Name      string          `json:"name" validate:"required"`
	Percent   decimal.Decimal `json:"percent"`
	Code      string          `json:"code"`
	Inclusive bool            `json:"inclusive"`
}

// PricingConfig holds the tenant-wide rates a bill snapshots at creation.
type PricingConfig struct {
	TenantID              string          `json:"tenantId"`
	Version               int64           `json:"version"`
	Active                bool            `json:"active"`
	GlobalDiscountPercent decimal.Decimal `json:"globalDiscountPercent"`
	ServiceChargePercent  decimal.Decimal `json:"serviceChargePercent"`
	Taxes                 []Tax           `json:"taxes"`
	EffectiveFrom         time.Time       `json:"effectiveFrom"`
}

func (p *PricingConfig) Clone() *PricingConfig {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Taxes = append([]Tax(nil), p.Taxes...)
	return &cp
}

type CreatePricingConfigRequest struct {
	GlobalDiscountPercent decimal.Decimal `json:"globalDiscountPercent"`
	ServiceChargePercent  decimal.Decimal `json:"serviceChargePercent"`
	Taxes                 []Tax           `json:"taxes"`
	EffectiveFrom         *time.Time      `json:"effectiveFrom"`
	Activate              bool            `json:"activate"`
}
