package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(Config{URL: srv.URL, ServiceKey: "test-key"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client, srv
}

func TestExecuteBuildsQueryAndDecodes(t *testing.T) {
	var gotPath, gotQuery, gotKey string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get("apikey")
		json.NewEncoder(w).Encode([]map[string]any{{"id": "p-1"}})
	})

	var rows []map[string]any
	err := client.From("pools").
		Select("*").
		Eq("creator_address", "0xabc").
		Order("created_at", false).
		Limit(50).
		Execute(context.Background(), &rows)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gotPath != "/rest/v1/pools" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotQuery != "creator_address=eq.0xabc&limit=50&order=created_at.desc&select=%2A" {
		t.Fatalf("query = %q", gotQuery)
	}
	if gotKey != "test-key" {
		t.Fatalf("apikey header = %q", gotKey)
	}
	if len(rows) != 1 || rows[0]["id"] != "p-1" {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestSingleSetsObjectAccept(t *testing.T) {
	var gotAccept string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		json.NewEncoder(w).Encode(map[string]any{"id": "p-1"})
	})

	var row map[string]any
	if err := client.From("pools").Eq("id", "p-1").Single().Execute(context.Background(), &row); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gotAccept != "application/vnd.pgrst.object+json" {
		t.Fatalf("Accept = %q", gotAccept)
	}
}

func TestErrorCodeClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"missing table", http.StatusNotFound, `{"code":"PGRST205","message":"table not found"}`, IsMissingTable},
		{"no rows", http.StatusNotAcceptable, `{"code":"PGRST116","message":"0 rows"}`, IsNoRows},
		{"unique violation", http.StatusConflict, `{"code":"23505","message":"duplicate key"}`, IsUniqueViolation},
		{"server error", http.StatusServiceUnavailable, `{"message":"overloaded"}`, IsUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			err := client.From("pools").Execute(context.Background(), nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if !tt.check(err) {
				t.Fatalf("classifier rejected %v", err)
			}
		})
	}
}

func TestConnectionFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	client, err := New(Config{URL: srv.URL, ServiceKey: "test-key"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv.Close()

	err = client.From("pools").Execute(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsUnavailable(err) {
		t.Fatalf("connection failure not classified unavailable: %v", err)
	}
}

func TestUpdateAppliesFilters(t *testing.T) {
	var gotMethod, gotQuery string
	var gotBody map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotQuery = r.URL.RawQuery
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{"id": "p-1", "status": "paused"})
	})

	var row map[string]any
	err := client.From("pools").Eq("id", "p-1").Single().
		Update(context.Background(), map[string]any{"status": "paused"}, &row)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if gotMethod != http.MethodPatch {
		t.Fatalf("method = %q", gotMethod)
	}
	if gotQuery != "id=eq.p-1" {
		t.Fatalf("query = %q", gotQuery)
	}
	if gotBody["status"] != "paused" {
		t.Fatalf("body = %+v", gotBody)
	}
	if row["status"] != "paused" {
		t.Fatalf("row = %+v", row)
	}
}
