package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/conclave-run/conclave/internal/config"
	"github.com/conclave-run/conclave/internal/core"
	"github.com/conclave-run/conclave/internal/llm"
	"github.com/conclave-run/conclave/internal/perfmon"
	"github.com/conclave-run/conclave/internal/persistence"
	"github.com/conclave-run/conclave/internal/queue"
	"github.com/conclave-run/conclave/internal/registry"
)

type fakeProvider struct{}

func (fakeProvider) Chat(ctx context.Context, prompt string) (llm.Response, error) {
	return llm.Response{Content: "ok"}, nil
}

func newTestServer(t *testing.T) (*Server, *core.Runtime) {
	t.Helper()
	store, err := persistence.Open(":memory:")
	if err != nil {
		t.Fatalf("persistence.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	reg, err := registry.New(ctx, store)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}

	rt := core.NewForTest(config.Config{}, store, reg, perfmon.New(store), queue.New(store, "test-node"), fakeProvider{})
	return New(rt), rt
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateAndGetAgent(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/agents", map[string]interface{}{
		"name":         "researcher",
		"capabilities": []string{"research"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("want 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("expected agent id in response, got %v", created)
	}

	rec = doJSON(t, h, http.MethodGet, "/agents/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateAgentDuplicateName(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	body := map[string]interface{}{"name": "dup", "capabilities": []string{"general"}}
	rec := doJSON(t, h, http.MethodPost, "/agents", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("want 201, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/agents", body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("want 409, got %d: %s", rec.Code, rec.Body.String())
	}
	var env errorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if env.Error.Type != ErrNameConflict {
		t.Fatalf("want error type %s, got %s", ErrNameConflict, env.Error.Type)
	}
}

func TestSubmitTaskValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/tasks", map[string]interface{}{"description": ""})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rec.Code)
	}
}

func TestGetUnknownTaskReturns404(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodGet, "/tasks/does-not-exist", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAcknowledgeUnknownAlertReturns404(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/system/alerts/does-not-exist/acknowledge", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStartAgentCrashLoopExceeded(t *testing.T) {
	srv, rt := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/agents", map[string]interface{}{"name": "looping"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("want 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &created)
	id := created["id"].(string)

	for i := 0; i < 3; i++ {
		rt.Registry.SetStatus(context.Background(), id, "error")
		rec = doJSON(t, h, http.MethodPost, "/agents/"+id+"/start", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: want 200, got %d: %s", i, rec.Code, rec.Body.String())
		}
	}

	rt.Registry.SetStatus(context.Background(), id, "error")
	rec = doJSON(t, h, http.MethodPost, "/agents/"+id+"/start", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("want 409, got %d: %s", rec.Code, rec.Body.String())
	}
	var env errorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if env.Error.Type != ErrManualIntervention {
		t.Fatalf("want error type %s, got %s", ErrManualIntervention, env.Error.Type)
	}
}

func TestRegisterAndListWorkers(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/workers/register", map[string]interface{}{
		"id":   "worker-1",
		"kind": "generic",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("want 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/workers", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	var workers []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &workers); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(workers) != 1 {
		t.Fatalf("want 1 worker, got %d", len(workers))
	}
}
