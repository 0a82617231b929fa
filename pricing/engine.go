// Package pricing is the single authoritative bill computation. Any client-side
// figure is a preview only; persisted totals always come from Compute.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"settlement-service/models"
)

// Money values are kept at two decimal places, rounded half away from zero.
const scale = 2

var hundred = decimal.NewFromInt(100)

type Input struct {
	Items                []models.OrderItem
	Extras               []models.Extra
	DiscountPercent      decimal.Decimal
	ServiceChargePercent decimal.Decimal
	Taxes                []models.Tax
}

type Breakdown struct {
	Subtotal            decimal.Decimal
	DiscountAmount      decimal.Decimal
	ServiceChargeAmount decimal.Decimal
	TaxBase             decimal.Decimal
	// TaxAmount sums exclusive taxes only; inclusive ones are already inside TaxBase.
	TaxAmount    decimal.Decimal
	ExtrasAmount decimal.Decimal
	Total        decimal.Decimal
	Taxes        []models.TaxLine
}

func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(scale)
}

func percentOf(base, pct decimal.Decimal) decimal.Decimal {
	return round(base.Mul(pct).Div(hundred))
}

func validPercent(p decimal.Decimal) bool {
	return !p.IsNegative() && p.LessThanOrEqual(hundred)
}

// Compute is pure: same input, same breakdown.
func Compute(in Input) (Breakdown, error) {
	if !validPercent(in.DiscountPercent) {
		return Breakdown{}, models.Validationf("discount percent %s out of range", in.DiscountPercent)
	}
	if !validPercent(in.ServiceChargePercent) {
		return Breakdown{}, models.Validationf("service charge percent %s out of range", in.ServiceChargePercent)
	}

	subtotal := decimal.Zero
	for i, item := range in.Items {
		if item.Quantity < 1 {
			return Breakdown{}, models.Validationf("item %d: quantity must be at least 1", i)
		}
		if item.PriceAtOrder.IsNegative() {
			return Breakdown{}, models.Validationf("item %d: price must not be negative", i)
		}
		subtotal = subtotal.Add(item.LineTotal())
	}
	subtotal = round(subtotal)

	out := Breakdown{Subtotal: subtotal}
	out.DiscountAmount = percentOf(subtotal, in.DiscountPercent)
	base := subtotal.Sub(out.DiscountAmount)
	out.ServiceChargeAmount = percentOf(base, in.ServiceChargePercent)
	out.TaxBase = base.Add(out.ServiceChargeAmount)

	out.TaxAmount = decimal.Zero
	out.Taxes = make([]models.TaxLine, 0, len(in.Taxes))
	for _, tax := range in.Taxes {
		if !validPercent(tax.Percent) {
			return Breakdown{}, models.Validationf("tax %s percent %s out of range", tax.Name, tax.Percent)
		}
		line := models.TaxLine{
			Name:      tax.Name,
			Code:      tax.Code,
			Percent:   tax.Percent,
			Inclusive: tax.Inclusive,
		}
		if tax.Inclusive {
			line.Amount = round(out.TaxBase.Mul(tax.Percent).Div(hundred.Add(tax.Percent)))
		} else {
			line.Amount = percentOf(out.TaxBase, tax.Percent)
			out.TaxAmount = out.TaxAmount.Add(line.Amount)
		}
		out.Taxes = append(out.Taxes, line)
	}

	out.ExtrasAmount = decimal.Zero
	for _, extra := range in.Extras {
		out.ExtrasAmount = out.ExtrasAmount.Add(round(extra.Amount))
	}

	out.Total = out.TaxBase.Add(out.TaxAmount).Add(out.ExtrasAmount)
	if out.Total.IsNegative() {
		return Breakdown{}, models.Validationf("extras push total below zero (%s)", out.Total)
	}
	return out, nil
}

// InputFor rebuilds the engine input from what a bill has captured.
func InputFor(b *models.Bill) Input {
	taxes := make([]models.Tax, 0, len(b.Taxes))
	for _, t := range b.Taxes {
		taxes = append(taxes, models.Tax{Name: t.Name, Code: t.Code, Percent: t.Percent, Inclusive: t.Inclusive})
	}
	return Input{
		Items:                b.Items,
		Extras:               b.Extras,
		DiscountPercent:      b.AppliedDiscountPercent,
		ServiceChargePercent: b.AppliedServiceChargePercent,
		Taxes:                taxes,
	}
}

// Apply overwrites every derived amount on b.
func Apply(b *models.Bill) error {
	out, err := Compute(InputFor(b))
	if err != nil {
		return err
	}
	b.Subtotal = out.Subtotal
	b.DiscountAmount = out.DiscountAmount
	b.ServiceChargeAmount = out.ServiceChargeAmount
	b.TaxAmount = out.TaxAmount
	b.ExtrasAmount = out.ExtrasAmount
	b.Total = out.Total
	b.Taxes = out.Taxes
	return nil
}

// Verify recomputes b and reports whether the stored total still matches.
func Verify(b *models.Bill) error {
	out, err := Compute(InputFor(b))
	if err != nil {
		return err
	}
	if !out.Total.Equal(b.Total) {
		return fmt.Errorf("bill %s total %s does not match computed %s", b.ID, b.Total, out.Total)
	}
	return nil
}

// Snapshot turns a pricing config into the percentages a new bill captures.
func Snapshot(cfg *models.PricingConfig, b *models.Bill) {
	if cfg == nil {
		b.AppliedDiscountPercent = decimal.Zero
		b.AppliedServiceChargePercent = decimal.Zero
		b.Taxes = nil
		return
	}
	b.AppliedDiscountPercent = cfg.GlobalDiscountPercent
	b.AppliedServiceChargePercent = cfg.ServiceChargePercent
	b.PricingVersion = cfg.Version
	b.Taxes = make([]models.TaxLine, 0, len(cfg.Taxes))
	for _, t := range cfg.Taxes {
		b.Taxes = append(b.Taxes, models.TaxLine{Name: t.Name, Code: t.Code, Percent: t.Percent, Inclusive: t.Inclusive})
	}
}

// ValidateConfig checks a pricing config before it is stored.
func ValidateConfig(cfg *models.PricingConfig) error {
	if !validPercent(cfg.GlobalDiscountPercent) {
		return models.Validationf("globalDiscountPercent must be within 0..100")
	}
	if !validPercent(cfg.ServiceChargePercent) {
		return models.Validationf("serviceChargePercent must be within 0..100")
	}
	for _, t := range cfg.Taxes {
		if t.Name == "" {
			return models.Validationf("tax name is required")
		}
		if !validPercent(t.Percent) {
			return models.Validationf("tax %s percent must be within 0..100", t.Name)
		}
	}
	return nil
}
