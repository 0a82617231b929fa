package services

import (
	"context"

	"settlement-service/locks"
	"settlement-service/models"
	"settlement-service/pricing"
	"settlement-service/realtime"
)

// SubmitOrder joins the table's open unpaid order or starts a new one. The
// submitting session id never splits a table: a second phone at the same table
// lands on the same order.
func (s *Service) SubmitOrder(ctx context.Context, tenantID string, req models.SubmitOrderRequest) (*models.Order, error) {
	if req.TableID == "" {
		return nil, models.Validationf("tableId is required")
	}
	if err := s.validateItems(req.Items); err != nil {
		return nil, err
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = s.newID()
	}

	var order *models.Order
	err := s.withLock(ctx, locks.TableKey(tenantID, req.TableID), func() error {
		if _, err := s.store.GetTable(ctx, tenantID, req.TableID); err != nil {
			return err
		}
		bill, err := s.activeBill(ctx, tenantID, req.TableID)
		if err != nil {
			return err
		}
		if bill != nil && bill.Status != models.BillDraft {
			return models.InvalidTransitionf("table %s has a %s bill; settle it before ordering", req.TableID, bill.Status)
		}

		order, err = s.mergeOrCreate(ctx, tenantID, sessionID, req)
		if err != nil {
			return err
		}
		if bill != nil {
			if err := s.absorbIntoDraft(ctx, tenantID, bill.ID, order.ID, req.Items); err != nil {
				s.logError("SubmitOrder", "order saved but draft bill not updated", bill.ID, err)
			}
		}
		_, err = s.OpenSession(ctx, tenantID, req.TableID, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.emitOrder(ctx, order, sessionID)
	return order, nil
}

func (s *Service) mergeOrCreate(ctx context.Context, tenantID, sessionID string, req models.SubmitOrderRequest) (*models.Order, error) {
	var lastErr error
	for attempt := 0; attempt < casRetries; attempt++ {
		open, err := s.openOrder(ctx, tenantID, req.TableID)
		if err != nil {
			return nil, err
		}
		now := s.now()
		if open == nil {
			o := &models.Order{
				TenantID:      tenantID,
				ID:            s.newID(),
				TableID:       req.TableID,
				SessionID:     sessionID,
				CustomerName:  req.CustomerName,
				Items:         append([]models.OrderItem(nil), req.Items...),
				Status:        models.OrderPlaced,
				PaymentStatus: models.PaymentUnpaid,
				Version:       1,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := s.store.CreateOrder(ctx, o); err != nil {
				return nil, err
			}
			return o, nil
		}

		// a staff status change can land between read and write; the lock only
		// covers other submissions
		expected := open.Version
		open.Items = append(open.Items, req.Items...)
		open.UpdatedAt = now
		err = s.store.UpdateOrder(ctx, open, expected)
		if err == nil {
			return open, nil
		}
		if !isVersionMismatch(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// openOrder returns the oldest order on the table that can still take items.
func (s *Service) openOrder(ctx context.Context, tenantID, tableID string) (*models.Order, error) {
	orders, err := s.store.ListOrdersByTable(ctx, tenantID, tableID)
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		if o.Status.Open() && o.PaymentStatus == models.PaymentUnpaid {
			return o, nil
		}
	}
	return nil, nil
}

// absorbIntoDraft keeps a table's draft bill in step with items ordered after
// it was opened. Staff may be editing the same draft, so the write is retried.
func (s *Service) absorbIntoDraft(ctx context.Context, tenantID, billID, orderID string, items []models.OrderItem) error {
	var lastErr error
	for attempt := 0; attempt < casRetries; attempt++ {
		bill, err := s.store.GetBill(ctx, tenantID, billID)
		if err != nil {
			return err
		}
		if bill.Status != models.BillDraft {
			return models.InvalidTransitionf("bill %s is %s", billID, bill.Status)
		}
		expected := bill.Version
		if !bill.HasOrder(orderID) {
			bill.OrderIDs = append(bill.OrderIDs, orderID)
		}
		bill.Items = append(bill.Items, items...)
		if err := pricing.Apply(bill); err != nil {
			return err
		}
		bill.UpdatedAt = s.now()
		err = s.store.UpdateBill(ctx, bill, expected)
		if err == nil {
			s.emitBill(ctx, bill)
			return nil
		}
		if !isVersionMismatch(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (s *Service) GetOrder(ctx context.Context, tenantID, orderID string) (*models.Order, error) {
	return s.store.GetOrder(ctx, tenantID, orderID)
}

func (s *Service) ListTableOrders(ctx context.Context, tenantID, tableID string) ([]*models.Order, error) {
	if tableID == "" {
		return nil, models.Validationf("tableId is required")
	}
	return s.store.ListOrdersByTable(ctx, tenantID, tableID)
}

// UpdateStatus moves an order one step forward. The caller's version must be current.
func (s *Service) UpdateStatus(ctx context.Context, tenantID, orderID string, to models.OrderStatus, expectedVersion int64) (*models.Order, error) {
	if !to.Valid() {
		return nil, models.Validationf("unknown order status %q", to)
	}
	o, err := s.store.GetOrder(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	if o.Version != expectedVersion {
		return nil, staleVersion("order", orderID, expectedVersion, o.Version)
	}
	if !o.Status.CanMoveTo(to) {
		return nil, models.InvalidTransitionf("order %s cannot move from %s to %s", orderID, o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = s.now()
	if err := s.store.UpdateOrder(ctx, o, expectedVersion); err != nil {
		return nil, err
	}
	s.emitOrder(ctx, o, o.SessionID)
	return o, nil
}

// closePaidOrders moves paid orders straight to closed. It is a system
// transition and skips the one-step rule.
func (s *Service) closePaidOrders(ctx context.Context, tenantID, tableID string) error {
	orders, err := s.store.ListOrdersByTable(ctx, tenantID, tableID)
	if err != nil {
		return err
	}
	for _, o := range orders {
		if o.PaymentStatus != models.PaymentPaid || o.Status == models.OrderClosed {
			continue
		}
		updated, err := s.mutateOrder(ctx, tenantID, o.ID, func(o *models.Order) bool {
			if o.Status == models.OrderClosed {
				return false
			}
			o.Status = models.OrderClosed
			return true
		})
		if err != nil {
			return err
		}
		s.emitOrder(ctx, updated, updated.SessionID)
	}
	return nil
}

// mutateOrder is the system-side CAS loop; staff edits go through UpdateStatus instead.
func (s *Service) mutateOrder(ctx context.Context, tenantID, orderID string, fn func(*models.Order) bool) (*models.Order, error) {
	var lastErr error
	for attempt := 0; attempt < casRetries; attempt++ {
		o, err := s.store.GetOrder(ctx, tenantID, orderID)
		if err != nil {
			return nil, err
		}
		if !fn(o) {
			return o, nil
		}
		expected := o.Version
		o.UpdatedAt = s.now()
		err = s.store.UpdateOrder(ctx, o, expected)
		if err == nil {
			return o, nil
		}
		if !isVersionMismatch(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (s *Service) emitOrder(ctx context.Context, o *models.Order, sessionID string) {
	s.emit(ctx, realtime.NewEvent(models.EventOrderUpdate, o.TenantID, o.TableID, sessionID, o.ID, o.Version, o))
}
