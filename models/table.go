package models

import "time"

type TableStatus string

const (
	TableAvailable TableStatus = "available"
	TableOccupied  TableStatus = "occupied"
)

type Table struct {
	TenantID         string    `json:"tenantId"`
	ID               string    `json:"id"`
	Number           int       `json:"number"`
	Capacity         int       `json:"capacity"`
	CurrentSessionID string    `json:"currentSessionId"`
	WaiterCalled     bool      `json:"waiterCalled"`
	Version          int64     `json:"version"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Status is derived only from the open session id.
func (t *Table) Status() TableStatus {
	if t.CurrentSessionID != "" {
		return TableOccupied
	}
	return TableAvailable
}

// MarshalJSON-friendly view including the derived status.
type TableView struct {
	*Table
	Status TableStatus `json:"status"`
}

func (t *Table) View() TableView {
	return TableView{Table: t, Status: t.Status()}
}

func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

type CreateTableRequest struct {
	Number   int `json:"number" binding:"required,gte=1"`
	Capacity int `json:"capacity" binding:"gte=0"`
}
