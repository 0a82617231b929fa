package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"

	"settlement-service/models"
)

// MySQLStore implements Store on database/sql with go-sql-driver/mysql.
type MySQLStore struct {
	db *sql.DB
}

var _ Store = (*MySQLStore)(nil)

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// casFailure turns a zero-row CAS update into NotFound or VersionMismatch.
func (s *MySQLStore) casFailure(ctx context.Context, q queryer, table, kind, tenantID, id string, expected int64) error {
	var current int64
	err := q.QueryRowContext(ctx, "SELECT version FROM "+table+" WHERE tenant_id = ? AND id = ?", tenantID, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(kind, id)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s version: %w", kind, err)
	}
	return versionMismatch(kind, id, expected, current)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *MySQLStore) CreateTable(ctx context.Context, t *models.Table) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO restaurant_tables (tenant_id, id, number, capacity, current_session_id, waiter_called, version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TenantID, t.ID, t.Number, t.Capacity, t.CurrentSessionID, t.WaiterCalled, t.Version, t.UpdatedAt)
	if isDuplicateKeyErr(err) {
		return fmt.Errorf("table %d already exists: %w", t.Number, models.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert table: %w", err)
	}
	return nil
}

const tableColumns = `tenant_id, id, number, capacity, current_session_id, waiter_called, version, updated_at`

func scanTable(row interface{ Scan(...any) error }) (*models.Table, error) {
	var t models.Table
	err := row.Scan(&t.TenantID, &t.ID, &t.Number, &t.Capacity, &t.CurrentSessionID, &t.WaiterCalled, &t.Version, &t.UpdatedAt)
	return &t, err
}

func (s *MySQLStore) GetTable(ctx context.Context, tenantID, id string) (*models.Table, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+tableColumns+" FROM restaurant_tables WHERE tenant_id = ? AND id = ?", tenantID, id)
	t, err := scanTable(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("table", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get table: %w", err)
	}
	return t, nil
}

func (s *MySQLStore) ListTables(ctx context.Context, tenantID string) ([]*models.Table, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+tableColumns+" FROM restaurant_tables WHERE tenant_id = ? ORDER BY number", tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var out []*models.Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *MySQLStore) UpdateTable(ctx context.Context, t *models.Table, expectedVersion int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE restaurant_tables
		SET number = ?, capacity = ?, current_session_id = ?, waiter_called = ?, version = version + 1, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND version = ?`,
		t.Number, t.Capacity, t.CurrentSessionID, t.WaiterCalled, t.UpdatedAt, t.TenantID, t.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update table: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.casFailure(ctx, s.db, "restaurant_tables", "table", t.TenantID, t.ID, expectedVersion)
	}
	t.Version = expectedVersion + 1
	return nil
}

func (s *MySQLStore) CreateOrder(ctx context.Context, o *models.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("failed to encode order items: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orders (tenant_id, id, table_id, session_id, customer_name, items, status, payment_status, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.TenantID, o.ID, o.TableID, o.SessionID, o.CustomerName, items, o.Status, o.PaymentStatus, o.Version, o.CreatedAt, o.UpdatedAt)
	if isDuplicateKeyErr(err) {
		return fmt.Errorf("order %s already exists: %w", o.ID, models.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

const orderColumns = `tenant_id, id, table_id, session_id, customer_name, items, status, payment_status, version, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*models.Order, error) {
	var (
		o     models.Order
		items []byte
	)
	if err := row.Scan(&o.TenantID, &o.ID, &o.TableID, &o.SessionID, &o.CustomerName, &items,
		&o.Status, &o.PaymentStatus, &o.Version, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("failed to decode order items: %w", err)
	}
	return &o, nil
}

func (s *MySQLStore) GetOrder(ctx context.Context, tenantID, id string) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE tenant_id = ? AND id = ?", tenantID, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("order", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

func (s *MySQLStore) ListOrdersByTable(ctx context.Context, tenantID, tableID string) ([]*models.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE tenant_id = ? AND table_id = ? ORDER BY created_at ASC", tenantID, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var out []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *MySQLStore) UpdateOrder(ctx context.Context, o *models.Order, expectedVersion int64) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("failed to encode order items: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET session_id = ?, customer_name = ?, items = ?, status = ?, payment_status = ?, version = version + 1, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND version = ?`,
		o.SessionID, o.CustomerName, items, o.Status, o.PaymentStatus, o.UpdatedAt, o.TenantID, o.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.casFailure(ctx, s.db, "orders", "order", o.TenantID, o.ID, expectedVersion)
	}
	o.Version = expectedVersion + 1
	return nil
}

func (s *MySQLStore) DeleteOrder(ctx context.Context, tenantID, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM orders WHERE tenant_id = ? AND id = ?", tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("order", id)
	}
	return nil
}

func billActiveKey(b *models.Bill) any {
	if !b.Active() {
		return nil
	}
	return b.TenantID + ":" + b.TableID
}

const billColumns = `body, version`

func scanBill(row interface{ Scan(...any) error }) (*models.Bill, error) {
	var (
		body    []byte
		version int64
	)
	if err := row.Scan(&body, &version); err != nil {
		return nil, err
	}
	var b models.Bill
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, fmt.Errorf("failed to decode bill: %w", err)
	}
	b.Version = version
	return &b, nil
}

func (s *MySQLStore) CreateBill(ctx context.Context, b *models.Bill) error {
	body, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode bill: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bills (tenant_id, id, table_id, status, total, active_key, body, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.TenantID, b.ID, b.TableID, b.Status, b.Total, billActiveKey(b), body, b.Version, b.CreatedAt, b.UpdatedAt)
	if isDuplicateKeyErr(err) {
		existing, findErr := s.FindActiveBill(ctx, b.TenantID, b.TableID)
		if findErr != nil {
			return fmt.Errorf("table already has an active bill: %w", models.ErrConflict)
		}
		return &models.ConflictError{Bill: existing, Reason: "table already has an active bill"}
	}
	if err != nil {
		return fmt.Errorf("failed to insert bill: %w", err)
	}
	return nil
}

func (s *MySQLStore) GetBill(ctx context.Context, tenantID, id string) (*models.Bill, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+billColumns+" FROM bills WHERE tenant_id = ? AND id = ?", tenantID, id)
	b, err := scanBill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("bill", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bill: %w", err)
	}
	return b, nil
}

func (s *MySQLStore) FindActiveBill(ctx context.Context, tenantID, tableID string) (*models.Bill, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+billColumns+" FROM bills WHERE active_key = ?", tenantID+":"+tableID)
	b, err := scanBill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("active bill for table", tableID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active bill: %w", err)
	}
	return b, nil
}

func (s *MySQLStore) ListBills(ctx context.Context, tenantID string, active bool) ([]*models.Bill, error) {
	query := "SELECT " + billColumns + " FROM bills WHERE tenant_id = ? AND status = ? ORDER BY created_at DESC"
	args := []any{tenantID, models.BillPaid}
	if active {
		query = "SELECT " + billColumns + " FROM bills WHERE tenant_id = ? AND status <> ? ORDER BY created_at DESC"
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bills: %w", err)
	}
	defer rows.Close()

	var out []*models.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bill: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *MySQLStore) updateBill(ctx context.Context, ex execer, b *models.Bill, expectedVersion int64) error {
	b.Version = expectedVersion + 1
	body, err := json.Marshal(b)
	if err != nil {
		b.Version = expectedVersion
		return fmt.Errorf("failed to encode bill: %w", err)
	}
	res, err := ex.ExecContext(ctx, `
		UPDATE bills
		SET status = ?, total = ?, active_key = ?, body = ?, version = version + 1, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND version = ?`,
		b.Status, b.Total, billActiveKey(b), body, b.UpdatedAt, b.TenantID, b.ID, expectedVersion)
	if err != nil {
		b.Version = expectedVersion
		return fmt.Errorf("failed to update bill: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		b.Version = expectedVersion
		return s.casFailure(ctx, ex, "bills", "bill", b.TenantID, b.ID, expectedVersion)
	}
	return nil
}

func (s *MySQLStore) UpdateBill(ctx context.Context, b *models.Bill, expectedVersion int64) error {
	return s.updateBill(ctx, s.db, b, expectedVersion)
}

func (s *MySQLStore) DeleteBill(ctx context.Context, tenantID, id string, expectedVersion int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM bills WHERE tenant_id = ? AND id = ? AND version = ?", tenantID, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to delete bill: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.casFailure(ctx, s.db, "bills", "bill", tenantID, id, expectedVersion)
	}
	return nil
}

func (s *MySQLStore) SettleBill(ctx context.Context, b *models.Bill, expectedVersion int64, p *models.Payment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (tenant_id, idempotency_key, bill_id, amount, method, tx_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.TenantID, p.IdempotencyKey, p.BillID, p.Amount, p.Method, p.TxID, p.CreatedAt)
	if isDuplicateKeyErr(err) {
		return fmt.Errorf("idempotency key %s already used: %w", p.IdempotencyKey, models.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	if err := s.updateBill(ctx, tx, b, expectedVersion); err != nil {
		return err
	}
	if err := settleOrders(ctx, tx, b, p); err != nil {
		b.Version = expectedVersion
		return err
	}
	if err := tx.Commit(); err != nil {
		b.Version = expectedVersion
		return fmt.Errorf("transaction commit failed: %w", err)
	}
	return nil
}

// settleOrders marks the bill's orders paid inside the settlement transaction.
func settleOrders(ctx context.Context, tx *sql.Tx, b *models.Bill, p *models.Payment) error {
	for _, id := range b.OrderIDs {
		var status models.PaymentStatus
		err := tx.QueryRowContext(ctx,
			"SELECT payment_status FROM orders WHERE tenant_id = ? AND id = ? FOR UPDATE", b.TenantID, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("order", id)
		}
		if err != nil {
			return fmt.Errorf("failed to lock order: %w", err)
		}
		if status == models.PaymentPaid {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE orders SET payment_status = ?, version = version + 1, updated_at = ?
			WHERE tenant_id = ? AND id = ?`,
			models.PaymentPaid, p.CreatedAt, b.TenantID, id); err != nil {
			return fmt.Errorf("failed to mark order paid: %w", err)
		}
	}
	return nil
}

func (s *MySQLStore) GetPayment(ctx context.Context, tenantID, idempotencyKey string) (*models.Payment, error) {
	var p models.Payment
	err := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, idempotency_key, bill_id, amount, method, tx_id, created_at
		FROM payments WHERE tenant_id = ? AND idempotency_key = ?`, tenantID, idempotencyKey).
		Scan(&p.TenantID, &p.IdempotencyKey, &p.BillID, &p.Amount, &p.Method, &p.TxID, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("payment", idempotencyKey)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &p, nil
}

func (s *MySQLStore) SavePricingConfig(ctx context.Context, cfg *models.PricingConfig) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current int64
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM pricing_configs WHERE tenant_id = ? FOR UPDATE", cfg.TenantID).Scan(&current); err != nil {
		return fmt.Errorf("failed to read pricing version: %w", err)
	}
	if cfg.Active {
		if _, err := tx.ExecContext(ctx,
			"UPDATE pricing_configs SET active_key = NULL WHERE tenant_id = ? AND active_key IS NOT NULL", cfg.TenantID); err != nil {
			return fmt.Errorf("failed to deactivate pricing config: %w", err)
		}
	}

	cfg.Version = current + 1
	body, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode pricing config: %w", err)
	}
	var activeKey any
	if cfg.Active {
		activeKey = cfg.TenantID
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO pricing_configs (tenant_id, version, active_key, body, effective_from) VALUES (?, ?, ?, ?, ?)`,
		cfg.TenantID, cfg.Version, activeKey, body, cfg.EffectiveFrom); err != nil {
		if isDuplicateKeyErr(err) {
			return fmt.Errorf("concurrent pricing config write: %w", models.ErrConflict)
		}
		return fmt.Errorf("failed to insert pricing config: %w", err)
	}
	return tx.Commit()
}

func (s *MySQLStore) ActivePricingConfig(ctx context.Context, tenantID string) (*models.PricingConfig, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, "SELECT body FROM pricing_configs WHERE active_key = ?", tenantID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("active pricing config for tenant", tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pricing config: %w", err)
	}
	var cfg models.PricingConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode pricing config: %w", err)
	}
	cfg.Active = true
	return &cfg, nil
}

const callColumns = `tenant_id, id, table_id, session_id, type, status, resolved_by, created_at, resolved_at`

func scanCall(row interface{ Scan(...any) error }) (*models.Call, error) {
	var (
		c          models.Call
		resolvedAt sql.NullTime
	)
	if err := row.Scan(&c.TenantID, &c.ID, &c.TableID, &c.SessionID, &c.Type, &c.Status, &c.ResolvedBy, &c.CreatedAt, &resolvedAt); err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		at := resolvedAt.Time
		c.ResolvedAt = &at
	}
	return &c, nil
}

func (s *MySQLStore) CreateCall(ctx context.Context, c *models.Call) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO calls ("+callColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		c.TenantID, c.ID, c.TableID, c.SessionID, c.Type, c.Status, c.ResolvedBy, c.CreatedAt, nullTime(c.ResolvedAt))
	if err != nil {
		return fmt.Errorf("failed to insert call: %w", err)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (s *MySQLStore) GetCall(ctx context.Context, tenantID, id string) (*models.Call, error) {
	c, err := scanCall(s.db.QueryRowContext(ctx, "SELECT "+callColumns+" FROM calls WHERE tenant_id = ? AND id = ?", tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("call", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get call: %w", err)
	}
	return c, nil
}

func (s *MySQLStore) FindActiveCall(ctx context.Context, tenantID, tableID string, typ models.CallType) (*models.Call, error) {
	c, err := scanCall(s.db.QueryRowContext(ctx,
		"SELECT "+callColumns+" FROM calls WHERE tenant_id = ? AND table_id = ? AND type = ? AND status = ? LIMIT 1",
		tenantID, tableID, typ, models.CallActive))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("active call for table", tableID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find call: %w", err)
	}
	return c, nil
}

func (s *MySQLStore) ListActiveCalls(ctx context.Context, tenantID string) ([]*models.Call, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+callColumns+" FROM calls WHERE tenant_id = ? AND status = ? ORDER BY created_at", tenantID, models.CallActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}
	defer rows.Close()

	var out []*models.Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *MySQLStore) UpdateCall(ctx context.Context, c *models.Call) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE calls SET status = ?, resolved_by = ?, resolved_at = ? WHERE tenant_id = ? AND id = ?`,
		c.Status, c.ResolvedBy, nullTime(c.ResolvedAt), c.TenantID, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update call: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("call", c.ID)
	}
	return nil
}
