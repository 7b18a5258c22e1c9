package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/liststore"
	"github.com/opensource-finance/heron/internal/mapping"
	"github.com/opensource-finance/heron/internal/session"
)

const testWorkspace = "https://example.com/sites/alpha"

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("unreachable") }

// createTestServer creates a server on an embedded store.
func createTestServer(t *testing.T, checks map[string]Pinger) (*Server, *liststore.Store) {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "heron-api-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	store, err := liststore.New(domain.StoreConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	pool, err := session.NewPool(domain.ClientConfig{
		WorkspaceURL: testWorkspace,
		RootURL:      "https://example.com",
		UserEmail:    "pm@example.com",
		MaxAttempts:  1,
	}, session.StoreHandles(store))
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}

	cfg := domain.ServerConfig{Host: "localhost", Port: 8080, ReadTimeout: 30, WriteTimeout: 30}
	if checks == nil {
		checks = map[string]Pinger{"store": store}
	}
	return NewServer(cfg, pool, testWorkspace, checks, "test-v1"), store
}

func do(t *testing.T, s *Server, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	switch b := body.(type) {
	case nil:
		reader = &bytes.Buffer{}
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewBuffer(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
	}
	return v
}

type outcome[E any] struct {
	Success bool   `json:"success"`
	Item    E      `json:"item"`
	Error   string `json:"error"`
}

type list[E any] struct {
	Items []E `json:"items"`
	Count int `json:"count"`
}

func TestRAIDEndpoints(t *testing.T) {
	server, _ := createTestServer(t, nil)

	created := do(t, server, http.MethodPost, "/raid", map[string]any{
		"type":  "Risk",
		"title": "Key person leaves",
		"actions": []map[string]any{
			{"actionType": "Mitigation", "plan": "Cross-train"},
			{"actionType": "Contingency", "plan": "Contractor on call"},
		},
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", created.Code, created.Body.String())
	}
	out := decodeBody[outcome[mapping.RAIDItem]](t, created)
	raidID := out.Item.RaidID
	if !out.Success || raidID == "" || len(out.Item.Actions) != 2 {
		t.Fatalf("unexpected outcome %+v", out)
	}

	t.Run("List", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, "/raid", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if got := decodeBody[list[mapping.RAIDItem]](t, rr); got.Count != 1 {
			t.Errorf("expected 1 grouped item, got %d", got.Count)
		}
	})

	t.Run("Get", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, "/raid/"+raidID, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if got := decodeBody[mapping.RAIDItem](t, rr); got.Title != "Key person leaves" {
			t.Errorf("unexpected item %+v", got)
		}
	})

	t.Run("Update", func(t *testing.T) {
		rr := do(t, server, http.MethodPut, "/raid/"+raidID, map[string]any{
			"type":    "Risk",
			"title":   "Key person leaves",
			"status":  "Monitoring",
			"actions": []map[string]any{{"actionType": "Mitigation", "plan": "Document runbooks"}},
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		got := decodeBody[outcome[mapping.RAIDItem]](t, rr)
		if got.Item.Status != "Monitoring" || len(got.Item.Actions) != 1 {
			t.Errorf("unexpected updated item %+v", got.Item)
		}
	})

	t.Run("History", func(t *testing.T) {
		row := out.Item.Actions[0].ItemID
		rr := do(t, server, http.MethodGet, fmt.Sprintf("/raid/%s/history/%d", raidID, row), nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var got struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &got)
		if got.Count != 2 {
			t.Errorf("expected 2 versions, got %d", got.Count)
		}

		if rr := do(t, server, http.MethodGet, "/raid/"+raidID+"/history/abc", nil); rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400 for a bad item id, got %d", rr.Code)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if rr := do(t, server, http.MethodDelete, "/raid/"+raidID, nil); rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if rr := do(t, server, http.MethodGet, "/raid/"+raidID, nil); rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("MissingTitle", func(t *testing.T) {
		rr := do(t, server, http.MethodPost, "/raid", map[string]any{"type": "Issue"})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		rr := do(t, server, http.MethodPost, "/raid", "not-json")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestRefreshBypassesCache(t *testing.T) {
	server, store := createTestServer(t, nil)
	ctx := context.Background()

	if rr := do(t, server, http.MethodGet, "/raid", nil); rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	// Written behind the repository's back, so the snapshot is stale.
	site := store.Site(testWorkspace, domain.PersonRef{})
	if _, err := site.AddItem(ctx, domain.CollectionRAID, domain.Record{"Title": "Direct", "RaidId": "r-1"}); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	if got := decodeBody[list[mapping.RAIDItem]](t, do(t, server, http.MethodGet, "/raid", nil)); got.Count != 0 {
		t.Errorf("expected the cached empty snapshot, got %d items", got.Count)
	}
	if got := decodeBody[list[mapping.RAIDItem]](t, do(t, server, http.MethodGet, "/raid?refresh=true", nil)); got.Count != 1 {
		t.Errorf("expected refresh to read through, got %d items", got.Count)
	}
}

func TestRCAEndpoints(t *testing.T) {
	server, _ := createTestServer(t, nil)

	created := do(t, server, http.MethodPost, "/rca", map[string]any{
		"title":   "Payment batch failed",
		"status":  "Open",
		"actions": []map[string]any{{"actionType": "Correction", "plan": "Re-run batch"}},
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", created.Code, created.Body.String())
	}
	out := decodeBody[outcome[mapping.RCAItem]](t, created)
	path := fmt.Sprintf("/rca/%d", out.Item.ID)

	t.Run("Get", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, path, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		got := decodeBody[mapping.RCAItem](t, rr)
		if got.Title != "Payment batch failed" || len(got.Actions) != 1 {
			t.Errorf("unexpected item %+v", got)
		}
	})

	t.Run("UpdateAndHistory", func(t *testing.T) {
		rr := do(t, server, http.MethodPut, path, map[string]any{"title": "Payment batch failed", "status": "Closed"})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		rr = do(t, server, http.MethodGet, path+"/history", nil)
		var got struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &got)
		if rr.Code != http.StatusOK || got.Count != 2 {
			t.Errorf("expected 2 versions, got %d (%d)", got.Count, rr.Code)
		}
	})

	t.Run("UpdateMissingIsBadGateway", func(t *testing.T) {
		rr := do(t, server, http.MethodPut, "/rca/999", map[string]any{"title": "ghost"})
		if rr.Code != http.StatusBadGateway {
			t.Errorf("expected status 502, got %d", rr.Code)
		}
		if got := decodeBody[map[string]string](t, rr); got["error"] == "" {
			t.Error("expected an error message")
		}
	})

	t.Run("BadID", func(t *testing.T) {
		if rr := do(t, server, http.MethodGet, "/rca/abc", nil); rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if rr := do(t, server, http.MethodGet, "/rca/999", nil); rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if rr := do(t, server, http.MethodDelete, path, nil); rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if rr := do(t, server, http.MethodDelete, path, nil); rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestKnowledgeEndpoints(t *testing.T) {
	server, _ := createTestServer(t, nil)

	rr := do(t, server, http.MethodPost, "/knowledge/best-practices", map[string]any{
		"title": "Review migrations",
		"tags":  "db;release",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	out := decodeBody[outcome[mapping.KnowledgeItem]](t, rr)
	if len(out.Item.Tags) != 2 {
		t.Errorf("expected 2 tags, got %v", out.Item.Tags)
	}

	// Knowledge lives on the root site, so another workspace sees it.
	rr = do(t, server, http.MethodGet, "/knowledge/best-practices", nil, WorkspaceHeader, "https://example.com/sites/beta")
	if got := decodeBody[list[mapping.KnowledgeItem]](t, rr); got.Count != 1 {
		t.Errorf("expected the shared item from another workspace, got %d", got.Count)
	}

	if rr := do(t, server, http.MethodGet, fmt.Sprintf("/knowledge/best-practices/%d", out.Item.ID), nil); rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	if rr := do(t, server, http.MethodGet, "/knowledge/recipes", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for an unknown kind, got %d", rr.Code)
	}
}

func TestWorkspaceScoping(t *testing.T) {
	server, _ := createTestServer(t, nil)

	rr := do(t, server, http.MethodPost, "/raid", map[string]any{"type": "Issue", "title": "Alpha issue"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}

	rr = do(t, server, http.MethodGet, "/raid", nil, WorkspaceHeader, "https://example.com/sites/beta")
	if got := decodeBody[list[mapping.RAIDItem]](t, rr); got.Count != 0 {
		t.Errorf("beta should not see alpha's items, got %d", got.Count)
	}
	rr = do(t, server, http.MethodGet, "/raid", nil, WorkspaceHeader, testWorkspace)
	if got := decodeBody[list[mapping.RAIDItem]](t, rr); got.Count != 1 {
		t.Errorf("expected alpha's item, got %d", got.Count)
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Run("HealthCheck", func(t *testing.T) {
		server, _ := createTestServer(t, nil)
		rr := do(t, server, http.MethodGet, "/health", nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Status     string            `json:"status"`
			Version    string            `json:"version"`
			Components map[string]string `json:"components"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Status != "healthy" || resp.Version != "test-v1" || resp.Components["store"] != "up" {
			t.Errorf("unexpected health %+v", resp)
		}
	})

	t.Run("Degraded", func(t *testing.T) {
		server, _ := createTestServer(t, map[string]Pinger{"cache": failingPinger{}, "bus": nil})
		var resp map[string]any
		json.Unmarshal(do(t, server, http.MethodGet, "/health", nil).Body.Bytes(), &resp)
		if resp["status"] != "degraded" {
			t.Errorf("expected degraded, got %v", resp["status"])
		}
	})

	t.Run("ReadyAndMetrics", func(t *testing.T) {
		server, _ := createTestServer(t, nil)
		if rr := do(t, server, http.MethodGet, "/ready", nil); rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
		if rr := do(t, server, http.MethodGet, "/metrics", nil); rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("WorkspaceMiddlewareReadsHeader", func(t *testing.T) {
		var captured string
		handler := WorkspaceMiddleware("https://fallback")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			captured = GetWorkspace(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(WorkspaceHeader, "https://example.com/sites/gamma")
		handler.ServeHTTP(httptest.NewRecorder(), req)
		if captured != "https://example.com/sites/gamma" {
			t.Errorf("expected the header workspace, got %q", captured)
		}

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		if captured != "https://fallback" {
			t.Errorf("expected the fallback workspace, got %q", captured)
		}
	})

	t.Run("WorkspaceRequired", func(t *testing.T) {
		handler := WorkspaceMiddleware("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("TracingMiddlewareSetsRequestID", func(t *testing.T) {
		var capturedRequestID string
		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v, ok := r.Context().Value(RequestIDKey).(string); ok {
				capturedRequestID = v
			}
			w.WriteHeader(http.StatusOK)
		}))

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		if capturedRequestID == "" {
			t.Error("expected request ID to be set")
		}
		if rr.Header().Get(RequestIDHeader) == "" || rr.Header().Get(TraceIDHeader) == "" {
			t.Error("expected request and trace id response headers")
		}
	})

	t.Run("RecoverMiddlewareHandlesPanic", func(t *testing.T) {
		handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})

	t.Run("CORSPreflight", func(t *testing.T) {
		handler := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("preflight should not reach the handler")
		}))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/raid", nil))
		if rr.Code != http.StatusNoContent {
			t.Errorf("expected status 204, got %d", rr.Code)
		}
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"InvalidArgument", fmt.Errorf("%w: x", domain.ErrInvalidArgument), http.StatusBadRequest},
		{"ContextRequired", domain.ErrContextRequired, http.StatusBadRequest},
		{"NotFound", fmt.Errorf("%w: x", domain.ErrNotFound), http.StatusNotFound},
		{"Remote", &domain.RemoteOperationError{Op: "fetch", Err: errors.New("boom")}, http.StatusBadGateway},
		{"Other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor() = %d, want %d", got, tt.want)
			}
		})
	}
}
