package services

import (
	"context"

	"settlement-service/locks"
	"settlement-service/models"
	"settlement-service/realtime"
)

func (s *Service) CreateTable(ctx context.Context, tenantID string, req models.CreateTableRequest) (*models.Table, error) {
	if req.Number < 1 {
		return nil, models.Validationf("table number must be positive")
	}
	if req.Capacity < 0 {
		return nil, models.Validationf("capacity must not be negative")
	}
	t := &models.Table{
		TenantID:  tenantID,
		ID:        s.newID(),
		Number:    req.Number,
		Capacity:  req.Capacity,
		Version:   1,
		UpdatedAt: s.now(),
	}
	if err := s.store.CreateTable(ctx, t); err != nil {
		return nil, err
	}
	s.emitTable(ctx, t)
	return t, nil
}

func (s *Service) GetTable(ctx context.Context, tenantID, tableID string) (*models.Table, error) {
	return s.store.GetTable(ctx, tenantID, tableID)
}

func (s *Service) ListTables(ctx context.Context, tenantID string) ([]*models.Table, error) {
	return s.store.ListTables(ctx, tenantID)
}

// OpenSession records sessionID as the table's current session. A different
// session replacing an open one is accepted; consolidation is per table.
func (s *Service) OpenSession(ctx context.Context, tenantID, tableID, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, models.Validationf("session id is required")
	}
	_, err := s.mutateTable(ctx, tenantID, tableID, func(t *models.Table) bool {
		if t.CurrentSessionID == sessionID {
			return false
		}
		t.CurrentSessionID = sessionID
		return true
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// CloseSession frees the table. Only reset and successful payment call it.
func (s *Service) CloseSession(ctx context.Context, tenantID, tableID string) error {
	_, err := s.mutateTable(ctx, tenantID, tableID, func(t *models.Table) bool {
		if t.CurrentSessionID == "" && !t.WaiterCalled {
			return false
		}
		t.CurrentSessionID = ""
		t.WaiterCalled = false
		return true
	})
	return err
}

func (s *Service) setWaiterCalled(ctx context.Context, tenantID, tableID string, called bool) (*models.Table, error) {
	return s.mutateTable(ctx, tenantID, tableID, func(t *models.Table) bool {
		if t.WaiterCalled == called {
			return false
		}
		t.WaiterCalled = called
		return true
	})
}

// ResetTable is the explicit staff action: closes paid orders and the session.
func (s *Service) ResetTable(ctx context.Context, tenantID, tableID string) (*models.Table, error) {
	var table *models.Table
	err := s.withLock(ctx, locks.TableKey(tenantID, tableID), func() error {
		if err := s.closePaidOrders(ctx, tenantID, tableID); err != nil {
			return err
		}
		if err := s.CloseSession(ctx, tenantID, tableID); err != nil {
			return err
		}
		var err error
		table, err = s.store.GetTable(ctx, tenantID, tableID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return table, nil
}

// ReleaseTable runs after payment or order rejection. The table stays occupied
// while any unpaid order remains on it.
func (s *Service) ReleaseTable(ctx context.Context, tenantID, tableID string) (released bool, err error) {
	err = s.withLock(ctx, locks.TableKey(tenantID, tableID), func() error {
		orders, err := s.store.ListOrdersByTable(ctx, tenantID, tableID)
		if err != nil {
			return err
		}
		for _, o := range orders {
			if o.PaymentStatus == models.PaymentUnpaid && o.Status != models.OrderClosed {
				return nil
			}
		}
		if err := s.closePaidOrders(ctx, tenantID, tableID); err != nil {
			return err
		}
		if err := s.CloseSession(ctx, tenantID, tableID); err != nil {
			return err
		}
		released = true
		return nil
	})
	return released, err
}

// mutateTable applies fn with a bounded CAS retry. fn returns false when no write is needed.
func (s *Service) mutateTable(ctx context.Context, tenantID, tableID string, fn func(*models.Table) bool) (*models.Table, error) {
	var lastErr error
	for attempt := 0; attempt < casRetries; attempt++ {
		t, err := s.store.GetTable(ctx, tenantID, tableID)
		if err != nil {
			return nil, err
		}
		if !fn(t) {
			return t, nil
		}
		expected := t.Version
		t.UpdatedAt = s.now()
		err = s.store.UpdateTable(ctx, t, expected)
		if err == nil {
			s.emitTable(ctx, t)
			return t, nil
		}
		if !isVersionMismatch(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (s *Service) emitTable(ctx context.Context, t *models.Table) {
	s.emit(ctx, realtime.NewEvent(models.EventTableUpdate, t.TenantID, t.ID, t.CurrentSessionID, t.ID, t.Version, t.View()))
}
