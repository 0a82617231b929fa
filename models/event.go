package models

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventOrderUpdate   EventType = "order_update"
	EventTableUpdate   EventType = "table_update"
	EventNewCall       EventType = "new_call"
	EventCallResolved  EventType = "call_resolved"
	EventWaitersUpdate EventType = "waiters_update"
	EventBillUpdate    EventType = "bill_update"
	// EventTableReset travels only over the broker retry queue.
	EventTableReset EventType = "table_reset"
)

// Event is an invalidation hint. Payload shape is not guaranteed to match the entity.
type Event struct {
	Type      EventType       `json:"type"`
	TenantID  string          `json:"tenantId"`
	TableID   string          `json:"tableId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	EntityID  string          `json:"entityId,omitempty"`
	Version   int64           `json:"version,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Attempt   int             `json:"attempt,omitempty"`
	At        time.Time       `json:"at"`
}
