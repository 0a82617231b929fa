package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"settlement-service/models"
)

func recv(t *testing.T, sub *Subscription) models.Event {
	t.Helper()
	select {
	case evt := <-sub.C:
		return evt
	case <-time.After(time.Second):
		t.Fatalf("no event on %s", sub.Topic())
	}
	return models.Event{}
}

func assertEmpty(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case evt := <-sub.C:
		t.Fatalf("unexpected event on %s: %+v", sub.Topic(), evt)
	default:
	}
}

func TestHub_RoutesByTenantAndSession(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(8)
	staff := hub.Subscribe(StaffTopic("t1"))
	otherTenant := hub.Subscribe(StaffTopic("t2"))
	customer := hub.Subscribe(CustomerTopic("t1", "tbl1", "s1"))
	otherSession := hub.Subscribe(CustomerTopic("t1", "tbl1", "s2"))
	defer staff.Close()
	defer otherTenant.Close()
	defer customer.Close()
	defer otherSession.Close()

	_ = hub.Publish(ctx, models.Event{Type: models.EventOrderUpdate, TenantID: "t1", TableID: "tbl1", SessionID: "s1", EntityID: "o1"})

	if evt := recv(t, staff); evt.EntityID != "o1" {
		t.Fatalf("staff got %+v", evt)
	}
	if evt := recv(t, customer); evt.Type != models.EventOrderUpdate {
		t.Fatalf("customer got %+v", evt)
	}
	assertEmpty(t, otherTenant)
	assertEmpty(t, otherSession)

	// events without a session reach staff only
	_ = hub.Publish(ctx, models.Event{Type: models.EventWaitersUpdate, TenantID: "t1", TableID: "tbl1"})
	recv(t, staff)
	assertEmpty(t, customer)
}

func TestHub_BoundedQueueDropsOldest(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(2)
	sub := hub.Subscribe(StaffTopic("t1"))
	defer sub.Close()

	for _, id := range []string{"a", "b", "c"} {
		_ = hub.Publish(ctx, models.Event{Type: models.EventOrderUpdate, TenantID: "t1", EntityID: id})
	}

	if got := recv(t, sub).EntityID; got != "b" {
		t.Fatalf("expected oldest event evicted, first is %s", got)
	}
	if got := recv(t, sub).EntityID; got != "c" {
		t.Fatalf("expected newest event kept, got %s", got)
	}
}

func TestHub_CloseUnsubscribes(t *testing.T) {
	hub := NewHub(1)
	sub := hub.Subscribe(StaffTopic("t1"))
	if hub.SubscriberCount(StaffTopic("t1")) != 1 {
		t.Fatalf("expected one subscriber")
	}
	sub.Close()
	sub.Close()

	if _, ok := <-sub.C; ok {
		t.Fatalf("expected closed channel")
	}
	if hub.SubscriberCount(StaffTopic("t1")) != 0 {
		t.Fatalf("expected no subscribers after close")
	}
	// publishing after close must not panic
	_ = hub.Publish(context.Background(), models.Event{Type: models.EventTableUpdate, TenantID: "t1"})
}

type failingRelay struct{ calls int }

func (f *failingRelay) PublishEvent(context.Context, models.Event) error {
	f.calls++
	return errors.New("broker down")
}

func TestBroadcaster_RelayFailureFallsBackToLocal(t *testing.T) {
	hub := NewHub(4)
	sub := hub.Subscribe(StaffTopic("t1"))
	defer sub.Close()
	relay := &failingRelay{}

	NewBroadcaster(hub, relay).Emit(context.Background(), NewEvent(models.EventBillUpdate, "t1", "tbl", "", "b1", 2, map[string]string{"status": "draft"}))

	if relay.calls != 1 {
		t.Fatalf("expected relay to be tried once, got %d", relay.calls)
	}
	evt := recv(t, sub)
	if evt.EntityID != "b1" || evt.Version != 2 || len(evt.Payload) == 0 {
		t.Fatalf("unexpected event %+v", evt)
	}
	if evt.At.IsZero() {
		t.Fatalf("event timestamp not set")
	}
}
