package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"polytrack/internal/tracker"
	"polytrack/pkg/clob"
	"polytrack/pkg/db"
)

type nopGateway struct{}

func (nopGateway) ExecuteSignal(ctx context.Context, intent clob.OrderIntent) (clob.OrderAck, error) {
	return clob.OrderAck{}, nil
}

func (nopGateway) GetOrderStatus(ctx context.Context, orderID string) (clob.StatusSnapshot, bool, error) {
	return clob.StatusSnapshot{}, false, nil
}

func (nopGateway) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	return true, nil
}

const testSecret = "test-secret"

func newTestServer(t *testing.T) (*Server, *tracker.Tracker, *db.Database) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	tr := tracker.New(tracker.Config{Gateway: nopGateway{}})
	s := NewServer(tr, database, testSecret, SystemMeta{InstanceID: "inst-1", MarketSlug: "celtics-nets", Version: "test"})
	return s, tr, database
}

func authedRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	token, err := GenerateToken("ops", testSecret, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestHealthIsOpen(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "ok" || body["instance"] != "inst-1" {
		t.Errorf("body=%v", body)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("request id header missing")
	}
}

func TestAPIRequiresToken(t *testing.T) {
	s, _, _ := newTestServer(t)

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"garbage token", "Bearer not-a-jwt"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
			if c.header != "" {
				req.Header.Set("Authorization", c.header)
			}
			w := httptest.NewRecorder()
			s.Router.ServeHTTP(w, req)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status=%d, expected 401", w.Code)
			}
		})
	}

	// Token signed with the wrong secret is rejected too.
	token, _ := GenerateToken("ops", "other-secret", time.Now().Add(time.Hour))
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status=%d, expected 401 for wrong secret", w.Code)
	}
}

func TestGetOrders(t *testing.T) {
	s, tr, _ := newTestServer(t)

	tr.Track("O1", "tok-a", clob.SideBuy, 10, 0.5, time.Hour)
	tr.Track("O2", "tok-b", clob.SideSell, 4, 0.6, time.Hour)

	w := authedRequest(t, s, http.MethodGet, "/api/orders")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if body := decodeBody(t, w); body["count"].(float64) != 2 {
		t.Errorf("count=%v", body["count"])
	}

	w = authedRequest(t, s, http.MethodGet, "/api/orders?asset=tok-a")
	body := decodeBody(t, w)
	if body["count"].(float64) != 1 {
		t.Fatalf("filtered count=%v", body["count"])
	}
	orders := body["orders"].([]any)
	first := orders[0].(map[string]any)
	if first["order_id"] != "O1" || first["status"] != "PENDING" {
		t.Errorf("order=%v", first)
	}
}

func TestGetOrderByID(t *testing.T) {
	s, tr, _ := newTestServer(t)
	tr.Track("O1", "tok", clob.SideBuy, 10, 0.5, time.Hour)

	w := authedRequest(t, s, http.MethodGet, "/api/orders/O1")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if body := decodeBody(t, w); body["asset_id"] != "tok" {
		t.Errorf("body=%v", body)
	}

	w = authedRequest(t, s, http.MethodGet, "/api/orders/missing")
	if w.Code != http.StatusNotFound {
		t.Errorf("status=%d, expected 404", w.Code)
	}
}

func TestGetExposure(t *testing.T) {
	s, tr, _ := newTestServer(t)
	tr.Track("O1", "tok", clob.SideBuy, 10, 0.5, time.Hour)
	tr.Track("O2", "tok", clob.SideBuy, 4, 0.25, time.Hour)

	w := authedRequest(t, s, http.MethodGet, "/api/exposure/tok")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	body := decodeBody(t, w)
	if body["exposure"].(float64) != 10*0.5+4*0.25 {
		t.Errorf("exposure=%v", body["exposure"])
	}
	if body["orders"].(float64) != 2 {
		t.Errorf("orders=%v", body["orders"])
	}
}

func TestGetHistory(t *testing.T) {
	s, _, database := newTestServer(t)

	now := time.Now().UTC()
	err := database.ArchiveOrder(context.Background(), db.Order{
		ID: "O1", AssetID: "tok", Side: "BUY", Price: 0.5, Qty: 10, FilledQty: 10,
		Status: "FILLED", InstanceID: "inst-1", CreatedAt: now.Add(-time.Minute), ClosedAt: now,
	})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}

	w := authedRequest(t, s, http.MethodGet, "/api/history/tok")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	body := decodeBody(t, w)
	if body["count"].(float64) != 1 {
		t.Fatalf("count=%v", body["count"])
	}
	first := body["orders"].([]any)[0].(map[string]any)
	if first["order_id"] != "O1" || first["status"] != "FILLED" {
		t.Errorf("order=%v", first)
	}
}
