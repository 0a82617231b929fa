package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"settlement-service/locks"
	"settlement-service/models"
	"settlement-service/realtime"
	"settlement-service/services"
	"settlement-service/store"
	"settlement-service/utils"
)

const tenant = "cafe-1"

type apiClient struct {
	t      *testing.T
	router *gin.Engine
	token  string
}

func newAPI(t *testing.T) *apiClient {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	gin.SetMode(gin.TestMode)

	h := realtime.NewHub(16)
	SetHub(h)
	SetService(services.New(store.NewMemoryStore(), locks.NewLocalLocker(), realtime.NewBroadcaster(h, nil),
		services.WithAsync(func(run func()) { run() })))

	token, err := utils.GenerateToken(tenant, "anu", "staff", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	r := gin.New()
	RegisterRoutes(r)
	return &apiClient{t: t, router: r, token: token}
}

func (a *apiClient) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			a.t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *apiClient) staff(method, path string, body any, headers ...map[string]string) *httptest.ResponseRecorder {
	h := map[string]string{"Authorization": "Bearer " + a.token}
	for _, extra := range headers {
		for k, v := range extra {
			h[k] = v
		}
	}
	return a.do(method, path, body, h)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

func orderBody(tableID, session string) gin.H {
	return gin.H{
		"tableId":   tableID,
		"sessionId": session,
		"items": []gin.H{
			{"menuItemId": "m1", "name": "Masala Dosa", "quantity": 2, "priceAtOrder": "150.00"},
		},
	}
}

func TestOrderAndBillFlow(t *testing.T) {
	api := newAPI(t)

	w := api.staff(http.MethodPost, "/api/cafe-1/tables", gin.H{"number": 1, "capacity": 4})
	expectStatus(t, w, http.StatusCreated)
	table := decode[models.Table](t, w)

	w = api.do(http.MethodPost, "/api/cafe-1/orders", orderBody(table.ID, "s1"), nil)
	expectStatus(t, w, http.StatusCreated)
	order := decode[models.Order](t, w)

	w = api.do(http.MethodPost, "/api/cafe-1/orders", orderBody(table.ID, "s2"), nil)
	expectStatus(t, w, http.StatusCreated)
	if merged := decode[models.Order](t, w); merged.ID != order.ID || merged.Version != 2 {
		t.Fatalf("expected merge into %s, got %+v", order.ID, merged)
	}

	w = api.staff(http.MethodPost, "/api/cafe-1/orders/"+order.ID+"/bill", nil)
	expectStatus(t, w, http.StatusCreated)
	bill := decode[models.Bill](t, w)

	w = api.staff(http.MethodPost, "/api/cafe-1/tables/"+table.ID+"/bill", nil)
	expectStatus(t, w, http.StatusConflict)
	conflict := decode[struct {
		Error string       `json:"error"`
		Bill  *models.Bill `json:"bill"`
	}](t, w)
	if conflict.Bill == nil || conflict.Bill.ID != bill.ID {
		t.Fatalf("conflict must carry the existing bill, got %+v", conflict)
	}

	w = api.staff(http.MethodPatch, "/api/cafe-1/bills/"+bill.ID, gin.H{
		"extras": []gin.H{{"label": "packing", "amount": "20"}}, "version": bill.Version,
	})
	expectStatus(t, w, http.StatusOK)
	bill = decode[models.Bill](t, w)
	if bill.Total.String() != "620" {
		t.Fatalf("expected recomputed total 620, got %s", bill.Total)
	}

	w = api.staff(http.MethodPatch, "/api/cafe-1/bills/"+bill.ID, gin.H{"extras": []gin.H{}, "version": 1})
	expectStatus(t, w, http.StatusConflict)

	w = api.staff(http.MethodPost, "/api/cafe-1/bills/"+bill.ID+"/finalize", gin.H{"staffAlias": "anu"})
	expectStatus(t, w, http.StatusOK)

	pay := gin.H{"amount": "620", "method": "cash"}
	w = api.staff(http.MethodPost, "/api/cafe-1/bills/"+bill.ID+"/mark-paid", pay)
	expectStatus(t, w, http.StatusBadRequest)

	key := map[string]string{"Idempotency-Key": "pay-1"}
	w = api.staff(http.MethodPost, "/api/cafe-1/bills/"+bill.ID+"/mark-paid", pay, key)
	expectStatus(t, w, http.StatusOK)
	paid := decode[models.Bill](t, w)
	if paid.Status != models.BillPaid {
		t.Fatalf("expected paid bill, got %s", paid.Status)
	}

	w = api.staff(http.MethodPost, "/api/cafe-1/bills/"+bill.ID+"/mark-paid", pay, key)
	expectStatus(t, w, http.StatusOK)
	if replay := decode[models.Bill](t, w); replay.Version != paid.Version {
		t.Fatalf("replay changed the bill: %d vs %d", replay.Version, paid.Version)
	}

	w = api.staff(http.MethodGet, "/api/cafe-1/bills/history", nil)
	expectStatus(t, w, http.StatusOK)
	if history := decode[[]models.Bill](t, w); len(history) != 1 {
		t.Fatalf("expected one bill in history, got %d", len(history))
	}

	w = api.staff(http.MethodGet, "/api/cafe-1/tables", nil)
	expectStatus(t, w, http.StatusOK)
	tables := decode[[]struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}](t, w)
	if len(tables) != 1 || tables[0].Status != string(models.TableAvailable) {
		t.Fatalf("expected table released after payment, got %+v", tables)
	}
}

func TestOrderStatusErrors(t *testing.T) {
	api := newAPI(t)

	w := api.staff(http.MethodPost, "/api/cafe-1/tables", gin.H{"number": 7})
	expectStatus(t, w, http.StatusCreated)
	table := decode[models.Table](t, w)

	w = api.do(http.MethodPost, "/api/cafe-1/orders", orderBody(table.ID, "s1"), nil)
	expectStatus(t, w, http.StatusCreated)
	order := decode[models.Order](t, w)

	path := "/api/cafe-1/orders/" + order.ID + "/status"
	expectStatus(t, api.staff(http.MethodPatch, path, gin.H{"status": "ready", "version": 1}), http.StatusUnprocessableEntity)
	expectStatus(t, api.staff(http.MethodPatch, path, gin.H{"status": "accepted", "version": 9}), http.StatusConflict)
	expectStatus(t, api.staff(http.MethodPatch, path, gin.H{"status": "eaten", "version": 1}), http.StatusBadRequest)
	expectStatus(t, api.staff(http.MethodPatch, path, gin.H{"status": "accepted", "version": 1}), http.StatusOK)

	expectStatus(t, api.staff(http.MethodGet, "/api/cafe-1/orders/missing", nil), http.StatusNotFound)
	expectStatus(t, api.staff(http.MethodGet, "/api/cafe-1/orders", nil), http.StatusBadRequest)

	w = api.staff(http.MethodGet, "/api/cafe-1/orders?tableId="+table.ID, nil)
	expectStatus(t, w, http.StatusOK)
	if orders := decode[[]models.Order](t, w); len(orders) != 1 {
		t.Fatalf("expected one order, got %d", len(orders))
	}
}

func TestStaffRoutesRequireTenantToken(t *testing.T) {
	api := newAPI(t)

	expectStatus(t, api.do(http.MethodGet, "/api/cafe-1/bills/active", nil, nil), http.StatusUnauthorized)
	expectStatus(t, api.staff(http.MethodGet, "/api/cafe-2/bills/active", nil), http.StatusForbidden)
	expectStatus(t, api.staff(http.MethodGet, "/api/cafe-1/bills/active", nil), http.StatusOK)
}

func TestCallsAndPricing(t *testing.T) {
	api := newAPI(t)

	w := api.staff(http.MethodPost, "/api/cafe-1/tables", gin.H{"number": 3})
	expectStatus(t, w, http.StatusCreated)
	table := decode[models.Table](t, w)

	w = api.do(http.MethodPost, "/api/cafe-1/calls", gin.H{"tableId": table.ID, "type": "waiter"}, nil)
	expectStatus(t, w, http.StatusCreated)
	call := decode[models.Call](t, w)
	expectStatus(t, api.do(http.MethodPost, "/api/cafe-1/calls", gin.H{"tableId": table.ID, "type": "chef"}, nil), http.StatusBadRequest)

	w = api.staff(http.MethodPost, "/api/cafe-1/calls/"+call.ID+"/resolve", nil)
	expectStatus(t, w, http.StatusOK)
	if resolved := decode[models.Call](t, w); resolved.ResolvedBy != "anu" {
		t.Fatalf("expected resolver from token, got %q", resolved.ResolvedBy)
	}

	expectStatus(t, api.staff(http.MethodGet, "/api/cafe-1/pricing/active", nil), http.StatusNotFound)
	w = api.staff(http.MethodPost, "/api/cafe-1/pricing", gin.H{
		"serviceChargePercent": "5",
		"taxes":                []gin.H{{"name": "GST", "percent": "18", "code": "GST"}},
		"activate":             true,
	})
	expectStatus(t, w, http.StatusCreated)
	w = api.staff(http.MethodGet, "/api/cafe-1/pricing/active", nil)
	expectStatus(t, w, http.StatusOK)
	if cfg := decode[models.PricingConfig](t, w); cfg.Version != 1 || !cfg.Active {
		t.Fatalf("unexpected active config %+v", cfg)
	}
}
