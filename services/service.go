// Package services implements table consolidation and bill settlement.
//
// Every method takes the tenant id explicitly. Mutations are compare-and-swap on
// the entity version; decisions that read several records before writing (merging
// an order into a table, creating a bill, settling a payment) also hold a keyed
// lock so two requests cannot both decide "nothing exists yet".
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"settlement-service/config"
	"settlement-service/locks"
	"settlement-service/models"
	"settlement-service/realtime"
	"settlement-service/store"
)

// casRetries bounds internal retries for system-owned writes (table registry,
// draft absorption). Staff-facing writes never retry on the caller's behalf.
const casRetries = 5

// asyncTimeout bounds work scheduled after a response has been sent.
const asyncTimeout = 10 * time.Second

// TableResetRetrier schedules a later attempt to release a table whose reset failed.
type TableResetRetrier interface {
	ScheduleTableReset(ctx context.Context, tenantID, tableID string, attempt int) error
}

type Service struct {
	store    store.Store
	locker   locks.Locker
	notifier realtime.Notifier
	retrier  TableResetRetrier
	validate *validator.Validate

	now   func() time.Time
	newID func() string
	// async runs post-response side effects; tests swap in a synchronous runner.
	async func(func())
}

type Option func(*Service)

func WithRetrier(r TableResetRetrier) Option {
	return func(s *Service) { s.retrier = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithAsync(run func(func())) Option {
	return func(s *Service) { s.async = run }
}

func New(st store.Store, locker locks.Locker, notifier realtime.Notifier, opts ...Option) *Service {
	s := &Service{
		store:    st,
		locker:   locker,
		notifier: notifier,
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		async:    func(f func()) { go f() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) emit(ctx context.Context, evt models.Event) {
	if s.notifier == nil {
		return
	}
	s.notifier.Emit(ctx, evt)
}

func (s *Service) withLock(ctx context.Context, key string, fn func() error) error {
	unlock, err := s.locker.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

func (s *Service) validateItems(items []models.OrderItem) error {
	if len(items) == 0 {
		return models.Validationf("at least one item is required")
	}
	for i := range items {
		if err := s.validate.Struct(items[i]); err != nil {
			return models.Validationf("item %d: %v", i, err)
		}
		if items[i].PriceAtOrder.IsNegative() {
			return models.Validationf("item %d: price must not be negative", i)
		}
	}
	return nil
}

func (s *Service) logError(funcName, msg string, data any, err error) {
	config.LogError(config.GetLogger(), "services", funcName, msg, data, err)
}

func staleVersion(kind, id string, expected, actual int64) error {
	return fmt.Errorf("%s %s: expected version %d, found %d: %w", kind, id, expected, actual, models.ErrVersionMismatch)
}

func isNotFound(err error) bool {
	return errors.Is(err, models.ErrNotFound)
}

func isVersionMismatch(err error) bool {
	return errors.Is(err, models.ErrVersionMismatch)
}

// background detaches ctx from the request so post-response work is not cancelled with it.
func background(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), asyncTimeout)
}
