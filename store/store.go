// Package store persists tables, orders, bills, payments, pricing configs and calls.
// Every mutable record is written with a compare-and-swap on its version.
package store

import (
	"context"

	"settlement-service/models"
)

type Store interface {
	CreateTable(ctx context.Context, t *models.Table) error
	GetTable(ctx context.Context, tenantID, id string) (*models.Table, error)
	ListTables(ctx context.Context, tenantID string) ([]*models.Table, error)
	// UpdateTable writes t only if the stored version equals expectedVersion, then sets t.Version.
	UpdateTable(ctx context.Context, t *models.Table, expectedVersion int64) error

	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, tenantID, id string) (*models.Order, error)
	ListOrdersByTable(ctx context.Context, tenantID, tableID string) ([]*models.Order, error)
	UpdateOrder(ctx context.Context, o *models.Order, expectedVersion int64) error
	DeleteOrder(ctx context.Context, tenantID, id string) error

	// CreateBill fails with *models.ConflictError when the table already has an active bill.
	CreateBill(ctx context.Context, b *models.Bill) error
	GetBill(ctx context.Context, tenantID, id string) (*models.Bill, error)
	FindActiveBill(ctx context.Context, tenantID, tableID string) (*models.Bill, error)
	ListBills(ctx context.Context, tenantID string, active bool) ([]*models.Bill, error)
	UpdateBill(ctx context.Context, b *models.Bill, expectedVersion int64) error
	// DeleteBill removes the bill only if it is still at expectedVersion.
	DeleteBill(ctx context.Context, tenantID, id string, expectedVersion int64) error

	// SettleBill records p, writes b and marks every order in b.OrderIDs paid in one atomic step.
	// A reused idempotency key yields ErrConflict; a missing order yields ErrNotFound.
	SettleBill(ctx context.Context, b *models.Bill, expectedVersion int64, p *models.Payment) error
	GetPayment(ctx context.Context, tenantID, idempotencyKey string) (*models.Payment, error)

	// SavePricingConfig assigns the next version; an active config deactivates the previous one.
	SavePricingConfig(ctx context.Context, cfg *models.PricingConfig) error
	ActivePricingConfig(ctx context.Context, tenantID string) (*models.PricingConfig, error)

	CreateCall(ctx context.Context, c *models.Call) error
	GetCall(ctx context.Context, tenantID, id string) (*models.Call, error)
	FindActiveCall(ctx context.Context, tenantID, tableID string, typ models.CallType) (*models.Call, error)
	ListActiveCalls(ctx context.Context, tenantID string) ([]*models.Call, error)
	UpdateCall(ctx context.Context, c *models.Call) error
}
