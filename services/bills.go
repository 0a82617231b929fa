package services

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"settlement-service/config"
	"settlement-service/locks"
	"settlement-service/models"
	"settlement-service/pricing"
	"settlement-service/realtime"
)

// CreateFromOrder opens a draft bill for one order. When the order or its table
// already has an active bill, the *models.ConflictError carries that bill.
func (s *Service) CreateFromOrder(ctx context.Context, tenantID, orderID string) (*models.Bill, error) {
	order, err := s.store.GetOrder(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}

	var bill *models.Bill
	err = s.withLock(ctx, locks.TableKey(tenantID, order.TableID), func() error {
		if existing, err := s.activeBill(ctx, tenantID, order.TableID); err != nil {
			return err
		} else if existing != nil {
			return &models.ConflictError{Bill: existing, Reason: "table already has an active bill"}
		}
		// re-read under the lock; payment may have landed since
		order, err = s.store.GetOrder(ctx, tenantID, orderID)
		if err != nil {
			return err
		}
		if order.PaymentStatus == models.PaymentPaid {
			return models.InvalidTransitionf("order %s is already paid", orderID)
		}
		bill, err = s.newBill(ctx, tenantID, order.TableID, order.SessionID, []*models.Order{order})
		return err
	})
	if err != nil {
		return nil, err
	}
	return bill, nil
}

// CreateForTable merges every unpaid order on the table into one draft bill.
func (s *Service) CreateForTable(ctx context.Context, tenantID, tableID string) (*models.Bill, error) {
	var bill *models.Bill
	err := s.withLock(ctx, locks.TableKey(tenantID, tableID), func() error {
		table, err := s.store.GetTable(ctx, tenantID, tableID)
		if err != nil {
			return err
		}
		if existing, err := s.activeBill(ctx, tenantID, tableID); err != nil {
			return err
		} else if existing != nil {
			return &models.ConflictError{Bill: existing, Reason: "table already has an active bill"}
		}
		orders, err := s.store.ListOrdersByTable(ctx, tenantID, tableID)
		if err != nil {
			return err
		}
		var unpaid []*models.Order
		for _, o := range orders {
			if o.PaymentStatus == models.PaymentUnpaid && o.Status != models.OrderClosed {
				unpaid = append(unpaid, o)
			}
		}
		if len(unpaid) == 0 {
			return models.InvalidTransitionf("table %s has no unpaid orders", tableID)
		}
		sessionID := table.CurrentSessionID
		if sessionID == "" {
			sessionID = unpaid[0].SessionID
		}
		bill, err = s.newBill(ctx, tenantID, tableID, sessionID, unpaid)
		return err
	})
	if err != nil {
		return nil, err
	}
	return bill, nil
}

func (s *Service) newBill(ctx context.Context, tenantID, tableID, sessionID string, orders []*models.Order) (*models.Bill, error) {
	cfg, err := s.store.ActivePricingConfig(ctx, tenantID)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	now := s.now()
	b := &models.Bill{
		TenantID:      tenantID,
		ID:            s.newID(),
		TableID:       tableID,
		SessionID:     sessionID,
		Status:        models.BillDraft,
		PaymentStatus: models.PaymentUnpaid,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, o := range orders {
		b.OrderIDs = append(b.OrderIDs, o.ID)
		b.Items = append(b.Items, o.Items...)
	}
	pricing.Snapshot(cfg, b)
	if err := pricing.Apply(b); err != nil {
		return nil, err
	}
	if err := s.store.CreateBill(ctx, b); err != nil {
		return nil, err
	}
	s.emitBill(ctx, b)
	return b, nil
}

// UpdateDraft replaces items and/or extras on a draft bill and recomputes it.
// It never retries: a stale version goes back to the caller.
func (s *Service) UpdateDraft(ctx context.Context, tenantID, billID string, patch models.BillPatch) (*models.Bill, error) {
	b, err := s.store.GetBill(ctx, tenantID, billID)
	if err != nil {
		return nil, err
	}
	if b.Version != patch.Version {
		return nil, staleVersion("bill", billID, patch.Version, b.Version)
	}
	if b.Status != models.BillDraft {
		return nil, models.InvalidTransitionf("bill %s is %s; only drafts can be edited", billID, b.Status)
	}
	if patch.Items != nil {
		for i := range *patch.Items {
			if err := s.validate.Struct((*patch.Items)[i]); err != nil {
				return nil, models.Validationf("item %d: %v", i, err)
			}
		}
		b.Items = append([]models.OrderItem(nil), (*patch.Items)...)
	}
	if patch.Extras != nil {
		for i, e := range *patch.Extras {
			if e.Label == "" {
				return nil, models.Validationf("extra %d: label is required", i)
			}
		}
		b.Extras = append([]models.Extra(nil), (*patch.Extras)...)
	}
	if err := pricing.Apply(b); err != nil {
		return nil, err
	}
	b.UpdatedAt = s.now()
	if err := s.store.UpdateBill(ctx, b, patch.Version); err != nil {
		return nil, err
	}
	s.emitBill(ctx, b)
	return b, nil
}

func (s *Service) Finalize(ctx context.Context, tenantID, billID, staffAlias string) (*models.Bill, error) {
	if staffAlias == "" {
		return nil, models.Validationf("staffAlias is required")
	}
	b, err := s.store.GetBill(ctx, tenantID, billID)
	if err != nil {
		return nil, err
	}
	if b.Status != models.BillDraft {
		return nil, models.InvalidTransitionf("bill %s is %s; only drafts can be finalized", billID, b.Status)
	}
	if err := pricing.Verify(b); err != nil {
		return nil, models.Validationf("%v", err)
	}
	expected := b.Version
	now := s.now()
	b.Status = models.BillFinalized
	b.StaffAlias = staffAlias
	b.FinalizedAt = &now
	b.UpdatedAt = now
	if err := s.store.UpdateBill(ctx, b, expected); err != nil {
		return nil, err
	}
	s.emitBill(ctx, b)
	return b, nil
}

// MarkPaid settles a finalized bill once per idempotency key. Replaying a key
// returns the bill as it stands; the table is released after the call returns.
// The bill and its orders turn paid together while the table lock is held, so
// no order can be merged into an order that is being settled.
func (s *Service) MarkPaid(ctx context.Context, tenantID, billID string, req models.MarkPaidRequest, idempotencyKey string) (*models.Bill, error) {
	if idempotencyKey == "" {
		return nil, models.Validationf("idempotency key is required")
	}
	if req.Method == "" {
		return nil, models.Validationf("payment method is required")
	}
	current, err := s.store.GetBill(ctx, tenantID, billID)
	if err != nil {
		return nil, err
	}

	var (
		bill     *models.Bill
		replayed bool
	)
	err = s.withLock(ctx, locks.TableKey(tenantID, current.TableID), func() error {
		return s.withLock(ctx, locks.BillKey(tenantID, billID), func() error {
			var err error
			bill, replayed, err = s.replayPayment(ctx, tenantID, billID, idempotencyKey)
			if err != nil || replayed {
				return err
			}
			bill, err = s.settle(ctx, tenantID, billID, req, idempotencyKey)
			if errors.Is(err, models.ErrConflict) {
				// the key was taken between the check and the insert
				settleErr := err
				bill, replayed, err = s.replayPayment(ctx, tenantID, billID, idempotencyKey)
				if err == nil && !replayed {
					err = settleErr
				}
			}
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	if replayed {
		return bill, nil
	}

	s.emitSettledOrders(ctx, bill)
	s.emitBill(ctx, bill)
	s.scheduleRelease(ctx, tenantID, bill.TableID)
	return bill, nil
}

// replayPayment resolves a key that has already been used.
func (s *Service) replayPayment(ctx context.Context, tenantID, billID, key string) (*models.Bill, bool, error) {
	p, err := s.store.GetPayment(ctx, tenantID, key)
	if isNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if p.BillID != billID {
		other, _ := s.store.GetBill(ctx, tenantID, p.BillID)
		return nil, false, &models.ConflictError{Bill: other, Reason: "idempotency key already used for another bill"}
	}
	b, err := s.store.GetBill(ctx, tenantID, billID)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *Service) settle(ctx context.Context, tenantID, billID string, req models.MarkPaidRequest, key string) (*models.Bill, error) {
	b, err := s.store.GetBill(ctx, tenantID, billID)
	if err != nil {
		return nil, err
	}
	if b.Status != models.BillFinalized {
		return nil, models.InvalidTransitionf("bill %s is %s; only finalized bills can be paid", billID, b.Status)
	}
	if !req.Amount.Equal(b.Total) {
		return nil, models.Validationf("amount %s does not match bill total %s", req.Amount, b.Total)
	}
	for _, id := range b.OrderIDs {
		if _, err := s.store.GetOrder(ctx, tenantID, id); err != nil {
			if isNotFound(err) {
				return nil, models.InvalidTransitionf("bill %s references missing order %s", billID, id)
			}
			return nil, err
		}
	}

	now := s.now()
	p := &models.Payment{
		TenantID:       tenantID,
		BillID:         billID,
		IdempotencyKey: key,
		Amount:         req.Amount,
		Method:         req.Method,
		TxID:           req.TxID,
		CreatedAt:      now,
	}
	expected := b.Version
	b.Status = models.BillPaid
	b.PaymentStatus = models.PaymentPaid
	b.Payment = p
	b.PaidAt = &now
	b.UpdatedAt = now
	if err := s.store.SettleBill(ctx, b, expected, p); err != nil {
		if isNotFound(err) {
			return nil, models.InvalidTransitionf("bill %s references a missing order: %v", billID, err)
		}
		return nil, err
	}
	return b, nil
}

// emitSettledOrders publishes the orders the settlement marked paid.
func (s *Service) emitSettledOrders(ctx context.Context, b *models.Bill) {
	for _, id := range b.OrderIDs {
		o, err := s.store.GetOrder(ctx, b.TenantID, id)
		if err != nil {
			s.logError("emitSettledOrders", "read settled order", id, err)
			continue
		}
		s.emitOrder(ctx, o, o.SessionID)
	}
}

// scheduleRelease frees the table after the response. A failed release is
// handed to the retrier so the table does not stay occupied; a table kept
// occupied by a newer unpaid order is logged for staff.
func (s *Service) scheduleRelease(ctx context.Context, tenantID, tableID string) {
	s.async(func() {
		bg, cancel := background(ctx)
		defer cancel()
		released, err := s.ReleaseTable(bg, tenantID, tableID)
		if err == nil {
			if !released {
				config.GetLogger().WithFields(logrus.Fields{
					"module":    "services",
					"funcName":  "scheduleRelease",
					"tenant_id": tenantID,
					"table_id":  tableID,
				}).Warn("table kept occupied after payment: unpaid orders remain")
			}
			return
		}
		s.logError("scheduleRelease", "release table after payment", tableID, err)
		if s.retrier == nil {
			return
		}
		if err := s.retrier.ScheduleTableReset(bg, tenantID, tableID, 1); err != nil {
			s.logError("scheduleRelease", "schedule table reset retry", tableID, err)
		}
	})
}

// DeleteOrder rejects an order. Draft bills holding it are voided; finalized or
// paid ones block the delete.
func (s *Service) DeleteOrder(ctx context.Context, tenantID, orderID string) error {
	order, err := s.store.GetOrder(ctx, tenantID, orderID)
	if err != nil {
		return err
	}

	var voided *models.Bill
	err = s.withLock(ctx, locks.TableKey(tenantID, order.TableID), func() error {
		order, err = s.store.GetOrder(ctx, tenantID, orderID)
		if err != nil {
			return err
		}
		if order.PaymentStatus == models.PaymentPaid {
			return models.InvalidTransitionf("order %s is paid", orderID)
		}
		bill, err := s.activeBill(ctx, tenantID, order.TableID)
		if err != nil {
			return err
		}
		if bill != nil && bill.HasOrder(orderID) {
			if bill.Status != models.BillDraft {
				return models.InvalidTransitionf("order %s is on %s bill %s", orderID, bill.Status, bill.ID)
			}
			if err := s.store.DeleteBill(ctx, tenantID, bill.ID, bill.Version); err != nil {
				return err
			}
			voided = bill
		}
		return s.store.DeleteOrder(ctx, tenantID, orderID)
	})
	if err != nil {
		return err
	}

	if voided != nil {
		s.emit(ctx, realtime.NewEvent(models.EventBillUpdate, tenantID, voided.TableID, voided.SessionID, voided.ID, voided.Version,
			map[string]any{"id": voided.ID, "voided": true}))
	}
	s.emit(ctx, realtime.NewEvent(models.EventOrderUpdate, tenantID, order.TableID, order.SessionID, order.ID, order.Version,
		map[string]any{"id": order.ID, "deleted": true}))

	if _, err := s.ReleaseTable(ctx, tenantID, order.TableID); err != nil {
		s.logError("DeleteOrder", "release table after reject", order.TableID, err)
	}
	return nil
}

func (s *Service) GetBill(ctx context.Context, tenantID, billID string) (*models.Bill, error) {
	return s.store.GetBill(ctx, tenantID, billID)
}

func (s *Service) ActiveBills(ctx context.Context, tenantID string) ([]*models.Bill, error) {
	return s.store.ListBills(ctx, tenantID, true)
}

func (s *Service) BillHistory(ctx context.Context, tenantID string) ([]*models.Bill, error) {
	return s.store.ListBills(ctx, tenantID, false)
}

// activeBill returns the table's unpaid bill, or nil when there is none.
func (s *Service) activeBill(ctx context.Context, tenantID, tableID string) (*models.Bill, error) {
	b, err := s.store.FindActiveBill(ctx, tenantID, tableID)
	if isNotFound(err) {
		return nil, nil
	}
	return b, err
}

func (s *Service) emitBill(ctx context.Context, b *models.Bill) {
	s.emit(ctx, realtime.NewEvent(models.EventBillUpdate, b.TenantID, b.TableID, b.SessionID, b.ID, b.Version, b))
}
