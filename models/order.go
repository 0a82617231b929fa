package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPlaced    OrderStatus = "placed"
	OrderAccepted  OrderStatus = "accepted"
	OrderPreparing OrderStatus = "preparing"
	OrderReady     OrderStatus = "ready"
	OrderServed    OrderStatus = "served"
	OrderDone      OrderStatus = "done"
	OrderClosed    OrderStatus = "closed"
)

// orderFlow is the only legal order of statuses.
var orderFlow = []OrderStatus{
	OrderPlaced, OrderAccepted, OrderPreparing, OrderReady, OrderServed, OrderDone, OrderClosed,
}

func (s OrderStatus) rank() int {
	for i, st := range orderFlow {
		if st == s {
			return i
		}
	}
	return -1
}

func (s OrderStatus) Valid() bool {
	return s.rank() >= 0
}

// Open reports whether an order in this status can still receive items.
func (s OrderStatus) Open() bool {
	r := s.rank()
	return r >= 0 && r < OrderDone.rank()
}

// Next returns the status that follows s, or false when s is terminal.
func (s OrderStatus) Next() (OrderStatus, bool) {
	r := s.rank()
	if r < 0 || r == len(orderFlow)-1 {
		return "", false
	}
	return orderFlow[r+1], true
}

// CanMoveTo allows exactly one step forward.
func (s OrderStatus) CanMoveTo(to OrderStatus) bool {
	next, ok := s.Next()
	return ok && next == to
}

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

type Order struct {
	TenantID      string        `json:"tenantId"`
	ID            string        `json:"id"`
	TableID       string        `json:"tableId"`
	SessionID     string        `json:"sessionId"`
	CustomerName  string        `json:"customerName"`
	Items         []OrderItem   `json:"items"`
	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	Version       int64         `json:"version"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// OrderItem carries the price captured when it was ordered; menu changes never touch it.
type OrderItem struct {
	MenuItemID   string          `json:"menuItemId" validate:"required"`
	Name         string          `json:"name" validate:"required"`
	Quantity     int             `json:"quantity" validate:"gte=1"`
	PriceAtOrder decimal.Decimal `json:"priceAtOrder"`
	Notes        string          `json:"notes,omitempty"`
}

// LineTotal is price × quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.PriceAtOrder.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Clone returns a deep copy so stores never share item slices with callers.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Items = append([]OrderItem(nil), o.Items...)
	return &cp
}

type SubmitOrderRequest struct {
	TableID      string      `json:"tableId" binding:"required"`
	SessionID    string      `json:"sessionId"`
	CustomerName string      `json:"customerName"`
	Items        []OrderItem `json:"items" binding:"required,min=1"`
}

type UpdateOrderStatusRequest struct {
	Status  OrderStatus `json:"status" binding:"required,oneof=placed accepted preparing ready served done closed"`
	Version int64       `json:"version" binding:"required"`
}
