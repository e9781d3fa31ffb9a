package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/basesafe/pool-service/internal/app/services/pools"
	"github.com/basesafe/pool-service/internal/app/storage/memory"
)

const (
	testCreator  = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testContract = "0xcccccccccccccccccccccccccccccccccccccccc"
	testToken    = "0xdddddddddddddddddddddddddddddddddddddddd"
)

func newTestServer(t *testing.T) (http.Handler, *pools.Service) {
	t.Helper()
	svc := pools.New(memory.New(), nil)
	return NewHandler(svc, nil, nil), svc
}

func creationBody(name string) []byte {
	payload := map[string]any{
		"name":           name,
		"poolType":       "flexible",
		"creatorAddress": testCreator,
		"poolAddress":    testContract,
		"tokenAddress":   testToken,
		"members":        []string{testCreator},
	}
	b, _ := json.Marshal(payload)
	return b
}

func TestPostPoolsCreates(t *testing.T) {
	h, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/pools", bytes.NewReader(creationBody("circle")))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var created struct {
		ID              string `json:"id"`
		Status          string `json:"status"`
		ContractAddress string `json:"contract_address"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.ID == "" || created.Status != "active" {
		t.Fatalf("unexpected pool: %+v", created)
	}
	if created.ContractAddress != testContract {
		t.Fatalf("contract = %s, want %s", created.ContractAddress, testContract)
	}
}

func TestPostPoolsValidation(t *testing.T) {
	h, _ := newTestServer(t)

	body := []byte(`{"poolType":"flexible"}`)
	req := httptest.NewRequest(http.MethodPost, "/pools", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPostPoolsLogsActivity(t *testing.T) {
	h, svc := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/pools", bytes.NewReader(creationBody("circle")))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed pool: %d", rec.Code)
	}

	payload := map[string]any{
		"activityType":    "deposit",
		"userAddress":     testCreator,
		"amount":          1.5,
		"txHash":          "0xabc",
		"contractAddress": testContract,
	}
	body, _ := json.Marshal(payload)

	req = httptest.NewRequest(http.MethodPost, "/pools", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success  bool `json:"success"`
		Activity struct {
			TxHash string `json:"tx_hash"`
		} `json:"activity"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Activity.TxHash != "0xabc" {
		t.Fatalf("unexpected response: %s", rec.Body.String())
	}

	list, err := svc.ListByCreator(req.Context(), testCreator)
	if err != nil || len(list) != 1 {
		t.Fatalf("list pools: %v", err)
	}
	if list[0].TotalSaved != 1.5 {
		t.Fatalf("total_saved = %v, want 1.5", list[0].TotalSaved)
	}
}

func TestPostPoolsActivityUnknownPool(t *testing.T) {
	h, _ := newTestServer(t)

	payload := map[string]any{
		"poolId":          "ghost",
		"activityType":    "deposit",
		"txHash":          "0xabc",
		"contractAddress": "0x9999999999999999999999999999999999999999",
	}
	body, _ := json.Marshal(payload)

	req := httptest.NewRequest(http.MethodPost, "/pools", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "ghost") {
		t.Fatalf("error should name the attempted id: %s", rec.Body.String())
	}
}

func TestGetPoolByID(t *testing.T) {
	h, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/pools", bytes.NewReader(creationBody("circle")))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/pools?id="+created.ID, nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var detail struct {
		Members  []json.RawMessage `json:"pool_members"`
		Activity []json.RawMessage `json:"pool_activity"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(detail.Members) != 1 || len(detail.Activity) != 1 {
		t.Fatalf("members=%d activity=%d, want 1 and 1", len(detail.Members), len(detail.Activity))
	}
}

func TestGetPoolNotFound(t *testing.T) {
	h, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/pools?id=missing", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetRecentPools(t *testing.T) {
	h, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/pools", bytes.NewReader(creationBody("circle")))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed: %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/pools", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var list []json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("pools = %d, want 1", len(list))
	}
}

func TestPatchPool(t *testing.T) {
	h, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/pools", bytes.NewReader(creationBody("before")))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	patch := []byte(`{"name":"after","status":"paused"}`)
	req = httptest.NewRequest(http.MethodPatch, "/pools?id="+created.ID, bytes.NewReader(patch))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var updated struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if updated.Name != "after" || updated.Status != "paused" {
		t.Fatalf("patch not applied: %+v", updated)
	}
}

func TestPatchPoolRequiresID(t *testing.T) {
	h, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPatch, "/pools", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	h, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
