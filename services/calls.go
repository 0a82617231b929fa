package services

import (
	"context"

	"settlement-service/locks"
	"settlement-service/models"
	"settlement-service/realtime"
)

// CreateCall raises a bill or waiter call. A call of the same type that is
// still active on the table is returned instead of a duplicate.
func (s *Service) CreateCall(ctx context.Context, tenantID string, req models.CreateCallRequest) (*models.Call, error) {
	if req.TableID == "" {
		return nil, models.Validationf("tableId is required")
	}
	if req.Type != models.CallBill && req.Type != models.CallWaiter {
		return nil, models.Validationf("unknown call type %q", req.Type)
	}

	var (
		call    *models.Call
		created bool
	)
	err := s.withLock(ctx, locks.TableKey(tenantID, req.TableID), func() error {
		table, err := s.store.GetTable(ctx, tenantID, req.TableID)
		if err != nil {
			return err
		}
		existing, err := s.store.FindActiveCall(ctx, tenantID, req.TableID, req.Type)
		if err == nil {
			call = existing
			return nil
		}
		if !isNotFound(err) {
			return err
		}
		sessionID := req.SessionID
		if sessionID == "" {
			sessionID = table.CurrentSessionID
		}
		call = &models.Call{
			TenantID:  tenantID,
			ID:        s.newID(),
			TableID:   req.TableID,
			SessionID: sessionID,
			Type:      req.Type,
			Status:    models.CallActive,
			CreatedAt: s.now(),
		}
		if err := s.store.CreateCall(ctx, call); err != nil {
			return err
		}
		created = true
		if req.Type == models.CallWaiter {
			if _, err := s.setWaiterCalled(ctx, tenantID, req.TableID, true); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created {
		s.emit(ctx, realtime.NewEvent(models.EventNewCall, tenantID, call.TableID, call.SessionID, call.ID, 0, call))
		if call.Type == models.CallWaiter {
			s.emitWaiters(ctx, tenantID, call.TableID)
		}
	}
	return call, nil
}

func (s *Service) ResolveCall(ctx context.Context, tenantID, callID, resolvedBy string) (*models.Call, error) {
	call, err := s.store.GetCall(ctx, tenantID, callID)
	if err != nil {
		return nil, err
	}
	err = s.withLock(ctx, locks.TableKey(tenantID, call.TableID), func() error {
		call, err = s.store.GetCall(ctx, tenantID, callID)
		if err != nil {
			return err
		}
		if call.Status != models.CallActive {
			return models.InvalidTransitionf("call %s is already %s", callID, call.Status)
		}
		now := s.now()
		call.Status = models.CallResolved
		call.ResolvedBy = resolvedBy
		call.ResolvedAt = &now
		if err := s.store.UpdateCall(ctx, call); err != nil {
			return err
		}
		if call.Type != models.CallWaiter {
			return nil
		}
		if _, err := s.store.FindActiveCall(ctx, tenantID, call.TableID, models.CallWaiter); err == nil {
			return nil
		} else if !isNotFound(err) {
			return err
		}
		_, err = s.setWaiterCalled(ctx, tenantID, call.TableID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, realtime.NewEvent(models.EventCallResolved, tenantID, call.TableID, call.SessionID, call.ID, 0, call))
	if call.Type == models.CallWaiter {
		s.emitWaiters(ctx, tenantID, call.TableID)
	}
	return call, nil
}

func (s *Service) ActiveCalls(ctx context.Context, tenantID string) ([]*models.Call, error) {
	return s.store.ListActiveCalls(ctx, tenantID)
}

// emitWaiters sends the tenant's active waiter calls to staff.
func (s *Service) emitWaiters(ctx context.Context, tenantID, tableID string) {
	calls, err := s.store.ListActiveCalls(ctx, tenantID)
	if err != nil {
		s.logError("emitWaiters", "list active calls", tenantID, err)
		return
	}
	waiting := make([]*models.Call, 0, len(calls))
	for _, c := range calls {
		if c.Type == models.CallWaiter {
			waiting = append(waiting, c)
		}
	}
	s.emit(ctx, realtime.NewEvent(models.EventWaitersUpdate, tenantID, tableID, "", tableID, 0, waiting))
}
