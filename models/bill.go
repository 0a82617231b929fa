package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type BillStatus string

const (
	BillDraft     BillStatus = "draft"
	BillFinalized BillStatus = "finalized"
	BillPaid      BillStatus = "paid"
)

// Extra is a flat signed adjustment; negative amounts are fixed discounts.
type Extra struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// TaxLine is one tax as applied to a bill.
type TaxLine struct {
	Name      string          `json:"name"`
	Code      string          `json:"code"`
	Percent   decimal.Decimal `json:"percent"`
	Inclusive bool            `json:"inclusive"`
	Amount    decimal.Decimal `json:"amount"`
}

type Payment struct {
	TenantID       string          `json:"tenantId"`
	BillID         string          `json:"billId"`
	IdempotencyKey string          `json:"idempotencyKey"`
	Amount         decimal.Decimal `json:"amount"`
	Method         string          `json:"method"`
	TxID           string          `json:"txId,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

type Bill struct {
	TenantID                    string          `json:"tenantId"`
	ID                          string          `json:"id"`
	OrderIDs                    []string        `json:"orderIds"`
	TableID                     string          `json:"tableId"`
	SessionID                   string          `json:"sessionId"`
	Items                       []OrderItem     `json:"items"`
	Extras                      []Extra         `json:"extras"`
	Taxes                       []TaxLine       `json:"taxes"`
	AppliedDiscountPercent      decimal.Decimal `json:"appliedDiscountPercent"`
	AppliedServiceChargePercent decimal.Decimal `json:"appliedServiceChargePercent"`
	PricingVersion              int64           `json:"pricingVersion"`
	Subtotal                    decimal.Decimal `json:"subtotal"`
	DiscountAmount              decimal.Decimal `json:"discountAmount"`
	ServiceChargeAmount         decimal.Decimal `json:"serviceChargeAmount"`
	TaxAmount                   decimal.Decimal `json:"taxAmount"`
	ExtrasAmount                decimal.Decimal `json:"extrasAmount"`
	Total                       decimal.Decimal `json:"total"`
	Status                      BillStatus      `json:"status"`
	PaymentStatus               PaymentStatus   `json:"paymentStatus"`
	StaffAlias                  string          `json:"staffAlias,omitempty"`
	Payment                     *Payment        `json:"payment,omitempty"`
	Version                     int64           `json:"version"`
	CreatedAt                   time.Time       `json:"createdAt"`
	UpdatedAt                   time.Time       `json:"updatedAt"`
	FinalizedAt                 *time.Time      `json:"finalizedAt,omitempty"`
	PaidAt                      *time.Time      `json:"paidAt,omitempty"`
}

// Active bills are those not yet paid.
func (b *Bill) Active() bool {
	return b.Status != BillPaid
}

func (b *Bill) HasOrder(orderID string) bool {
	for _, id := range b.OrderIDs {
		if id == orderID {
			return true
		}
	}
	return false
}

func (b *Bill) Clone() *Bill {
	if b == nil {
		return nil
	}
	cp := *b
	cp.OrderIDs = append([]string(nil), b.OrderIDs...)
	cp.Items = append([]OrderItem(nil), b.Items...)
	cp.Extras = append([]Extra(nil), b.Extras...)
	cp.Taxes = append([]TaxLine(nil), b.Taxes...)
	if b.Payment != nil {
		p := *b.Payment
		cp.Payment = &p
	}
	if b.FinalizedAt != nil {
		at := *b.FinalizedAt
		cp.FinalizedAt = &at
	}
	if b.PaidAt != nil {
		at := *b.PaidAt
		cp.PaidAt = &at
	}
	return &cp
}

// BillPatch is a draft edit. Nil fields are left untouched; any client total is ignored.
type BillPatch struct {
	Items   *[]OrderItem `json:"items"`
	Extras  *[]Extra     `json:"extras"`
	Version int64        `json:"version" binding:"required"`
}

type FinalizeBillRequest struct {
	StaffAlias string `json:"staffAlias" binding:"required"`
}

type MarkPaidRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method" binding:"required"`
	TxID   string          `json:"txId"`
}
