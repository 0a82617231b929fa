package store

import (
	"errors"
	"fmt"
	"testing"

	mysqlDriver "github.com/go-sql-driver/mysql"

	"settlement-service/models"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	dup := &mysqlDriver.MySQLError{Number: 1062, Message: "Duplicate entry"}
	if !isDuplicateKeyErr(fmt.Errorf("insert: %w", dup)) {
		t.Fatalf("expected wrapped 1062 to be a duplicate key error")
	}
	if isDuplicateKeyErr(&mysqlDriver.MySQLError{Number: 1213}) {
		t.Fatalf("deadlock must not be treated as duplicate key")
	}
	if isDuplicateKeyErr(errors.New("boom")) {
		t.Fatalf("plain error must not be treated as duplicate key")
	}
}

func TestBillActiveKey(t *testing.T) {
	b := &models.Bill{TenantID: "t1", TableID: "tbl", Status: models.BillFinalized}
	if got := billActiveKey(b); got != "t1:tbl" {
		t.Fatalf("expected active key t1:tbl, got %v", got)
	}
	b.Status = models.BillPaid
	if got := billActiveKey(b); got != nil {
		t.Fatalf("paid bill must release the active key, got %v", got)
	}
}
