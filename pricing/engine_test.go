package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"settlement-service/models"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func item(price string, qty int) models.OrderItem {
	return models.OrderItem{MenuItemID: "m", Name: "dish", Quantity: qty, PriceAtOrder: d(price)}
}

func TestCompute_Scenarios(t *testing.T) {
	cases := []struct {
		name     string
		in       Input
		discount string
		service  string
		tax      string
		total    string
	}{
		{
			name: "discount service gst exclusive",
			in: Input{
				Items:                []models.OrderItem{item("100", 2), item("50", 2)},
				DiscountPercent:      d("10"),
				ServiceChargePercent: d("5"),
				Taxes:                []models.Tax{{Name: "GST", Code: "GST", Percent: d("18")}},
			},
			discount: "30", service: "13.5", tax: "51.03", total: "334.53",
		},
		{
			name: "inclusive tax is not added",
			in: Input{
				Items: []models.OrderItem{item("118", 1)},
				Taxes: []models.Tax{{Name: "VAT", Percent: d("18"), Inclusive: true}},
			},
			discount: "0", service: "0", tax: "0", total: "118",
		},
		{
			name: "extras add and subtract",
			in: Input{
				Items:  []models.OrderItem{item("200", 1)},
				Extras: []models.Extra{{Label: "corkage", Amount: d("25")}, {Label: "loyalty", Amount: d("-40")}},
			},
			discount: "0", service: "0", tax: "0", total: "185",
		},
		{
			name:     "empty bill",
			in:       Input{},
			discount: "0", service: "0", tax: "0", total: "0",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Compute(tc.in)
			if err != nil {
				t.Fatalf("Compute error: %v", err)
			}
			if !out.DiscountAmount.Equal(d(tc.discount)) {
				t.Fatalf("discount expected %s, got %s", tc.discount, out.DiscountAmount)
			}
			if !out.ServiceChargeAmount.Equal(d(tc.service)) {
				t.Fatalf("service charge expected %s, got %s", tc.service, out.ServiceChargeAmount)
			}
			if !out.TaxAmount.Equal(d(tc.tax)) {
				t.Fatalf("tax expected %s, got %s", tc.tax, out.TaxAmount)
			}
			if !out.Total.Equal(d(tc.total)) {
				t.Fatalf("total expected %s, got %s", tc.total, out.Total)
			}
		})
	}
}

func TestCompute_DiscountServiceChargeAndGST(t *testing.T) {
	out, err := Compute(Input{
		Items:                []models.OrderItem{item("300", 1)},
		DiscountPercent:      d("10"),
		ServiceChargePercent: d("5"),
		Taxes:                []models.Tax{{Name: "GST", Percent: d("18")}},
	})
	if err != nil {
		t.Fatalf("Compute error: %v", err)
	}
	if !out.TaxBase.Equal(d("283.5")) {
		t.Fatalf("tax base expected 283.5, got %s", out.TaxBase)
	}
	if len(out.Taxes) != 1 || !out.Taxes[0].Amount.Equal(d("51.03")) {
		t.Fatalf("unexpected tax lines %+v", out.Taxes)
	}
}

func TestCompute_InclusiveTaxLineAmount(t *testing.T) {
	out, err := Compute(Input{
		Items: []models.OrderItem{item("118", 1)},
		Taxes: []models.Tax{{Name: "VAT", Percent: d("18"), Inclusive: true}},
	})
	if err != nil {
		t.Fatalf("Compute error: %v", err)
	}
	if !out.Taxes[0].Amount.Equal(d("18")) {
		t.Fatalf("inclusive amount expected 18, got %s", out.Taxes[0].Amount)
	}
}

func TestCompute_Rejects(t *testing.T) {
	cases := []struct {
		name string
		in   Input
	}{
		{"zero quantity", Input{Items: []models.OrderItem{item("10", 0)}}},
		{"negative price", Input{Items: []models.OrderItem{item("-1", 1)}}},
		{"discount over 100", Input{DiscountPercent: d("101")}},
		{"negative service", Input{ServiceChargePercent: d("-5")}},
		{"negative total", Input{Items: []models.OrderItem{item("10", 1)}, Extras: []models.Extra{{Amount: d("-11")}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Compute(tc.in); !errors.Is(err, models.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestApplyThenVerify_RoundTrip(t *testing.T) {
	cfg := &models.PricingConfig{
		Version:               3,
		GlobalDiscountPercent: d("7.5"),
		ServiceChargePercent:  d("10"),
		Taxes: []models.Tax{
			{Name: "CGST", Percent: d("2.5")},
			{Name: "SGST", Percent: d("2.5")},
		},
	}
	b := &models.Bill{
		ID:     "b1",
		Items:  []models.OrderItem{item("129.99", 3), item("45.50", 1)},
		Extras: []models.Extra{{Label: "tip", Amount: d("20")}},
	}
	Snapshot(cfg, b)
	if b.PricingVersion != 3 {
		t.Fatalf("expected pricing version 3, got %d", b.PricingVersion)
	}
	if err := Apply(b); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if err := Verify(b); err != nil {
		t.Fatalf("Verify after Apply: %v", err)
	}

	want := b.Subtotal.Sub(b.DiscountAmount).Add(b.ServiceChargeAmount).Add(b.TaxAmount).Add(b.ExtrasAmount)
	if !want.Equal(b.Total) {
		t.Fatalf("total does not add up: %s != %s", want, b.Total)
	}

	// a later config change must not alter the captured bill
	cfg.GlobalDiscountPercent = d("50")
	if err := Verify(b); err != nil {
		t.Fatalf("config change leaked into bill: %v", err)
	}

	b.Total = b.Total.Add(d("1"))
	if err := Verify(b); err == nil {
		t.Fatalf("expected Verify to catch a tampered total")
	}
}

func TestValidateConfig(t *testing.T) {
	if err := ValidateConfig(&models.PricingConfig{Taxes: []models.Tax{{Percent: d("5")}}}); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected missing tax name to fail, got %v", err)
	}
	if err := ValidateConfig(&models.PricingConfig{GlobalDiscountPercent: d("10")}); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}
