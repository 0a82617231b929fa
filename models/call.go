package models

import "time"

type CallType string

const (
	CallBill   CallType = "bill"
	CallWaiter CallType = "waiter"
)

type CallStatus string

const (
	CallActive   CallStatus = "active"
	CallResolved CallStatus = "resolved"
)

// Call is a customer-initiated request for staff attention.
type Call struct {
	TenantID   string     `json:"tenantId"`
	ID         string     `json:"id"`
	TableID    string     `json:"tableId"`
	SessionID  string     `json:"sessionId"`
	Type       CallType   `json:"type"`
	Status     CallStatus `json:"status"`
	ResolvedBy string     `json:"resolvedBy,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

func (c *Call) Clone() *Call {
	if c == nil {
		return nil
	}
	cp := *c
	if c.ResolvedAt != nil {
		at := *c.ResolvedAt
		cp.ResolvedAt = &at
	}
	return &cp
}

type CreateCallRequest struct {
	TableID   string   `json:"tableId" binding:"required"`
	SessionID string   `json:"sessionId"`
	Type      CallType `json:"type" binding:"required,oneof=bill waiter"`
}

type ResolveCallRequest struct {
	ResolvedBy string `json:"resolvedBy"`
}
