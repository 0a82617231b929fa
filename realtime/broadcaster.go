package realtime

import (
	"context"
	"encoding/json"
	"time"

	"settlement-service/config"
	"settlement-service/models"
)

// Notifier is what the domain services depend on. Emit never fails the caller.
type Notifier interface {
	Emit(ctx context.Context, evt models.Event)
}

// Relay carries events between service instances.
type Relay interface {
	PublishEvent(ctx context.Context, evt models.Event) error
}

// Broadcaster sends events through the relay when one is configured, so every
// instance's hub sees them; otherwise it delivers to the local hub directly.
type Broadcaster struct {
	hub   *Hub
	relay Relay
}

func NewBroadcaster(hub *Hub, relay Relay) *Broadcaster {
	return &Broadcaster{hub: hub, relay: relay}
}

func (b *Broadcaster) Emit(ctx context.Context, evt models.Event) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	if b.relay != nil {
		err := b.relay.PublishEvent(ctx, evt)
		if err == nil {
			return
		}
		config.LogError(config.GetLogger(), "realtime", "Broadcaster.Emit", "relay publish failed, delivering locally", evt.Type, err)
	}
	if err := b.hub.Publish(ctx, evt); err != nil {
		config.LogError(config.GetLogger(), "realtime", "Broadcaster.Emit", "local publish", evt.Type, err)
	}
}

// Deliver hands an event that arrived from the relay to local subscribers.
func (b *Broadcaster) Deliver(ctx context.Context, evt models.Event) error {
	return b.hub.Publish(ctx, evt)
}

// NewEvent builds an event with payload marshalled to JSON. A payload that cannot
// be encoded is dropped; the event still works as an invalidation signal.
func NewEvent(typ models.EventType, tenantID, tableID, sessionID, entityID string, version int64, payload any) models.Event {
	evt := models.Event{
		Type:      typ,
		TenantID:  tenantID,
		TableID:   tableID,
		SessionID: sessionID,
		EntityID:  entityID,
		Version:   version,
		At:        time.Now().UTC(),
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			evt.Payload = raw
		} else {
			config.LogError(config.GetLogger(), "realtime", "NewEvent", "marshal payload", typ, err)
		}
	}
	return evt
}
