package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	responderx "github.com/fernandofuc/tistis-platform-sub010/agent/agents/responder"
	breakerx "github.com/fernandofuc/tistis-platform-sub010/agent/breaker"
	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
	promptcachex "github.com/fernandofuc/tistis-platform-sub010/agent/promptcache"
	snapshotx "github.com/fernandofuc/tistis-platform-sub010/agent/snapshot"
)

type fakeGenerator struct {
	mu     sync.Mutex
	calls  int
	result contractx.GraphResult
	err    error
}

func (g *fakeGenerator) Generate(_ context.Context, tenantID, message string, opts responderx.Options) (contractx.GraphResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return contractx.GraphResult{}, g.err
	}
	return g.result, nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fakeFallback struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeFallback) Generate(_ context.Context, tenantID, message string, channel contractx.Channel) contractx.GraphResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return contractx.GraphResult{
		Response:         "A team member will follow up with you shortly.",
		Intent:           contractx.IntentEscalation,
		Escalated:        true,
		EscalationReason: "fallback",
	}
}

func (f *fakeFallback) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSnapshots struct {
	bc  *snapshotx.BusinessContext
	err error
}

func (s *fakeSnapshots) Snapshot(_ context.Context, tenantID string) (*snapshotx.BusinessContext, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.bc, nil
}

func newTestHandlers(t *testing.T, gen *fakeGenerator, fb *fakeFallback, snaps *fakeSnapshots) (*Handlers, *promptcachex.Cache) {
	t.Helper()
	cache, err := promptcachex.New(promptcachex.NewMemoryStore())
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	h, err := NewHandlers(gen, fb, breakerx.New(), cache, snaps)
	if err != nil {
		t.Fatalf("new handlers: %v", err)
	}
	return h, cache
}

func postJSON(t *testing.T, handler http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestGenerateResponseReturnsPrimaryResult(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{result: contractx.GraphResult{
		Response: "We open at 9am.",
		Intent:   contractx.IntentDirectAnswer,
	}}
	fb := &fakeFallback{}
	h, _ := newTestHandlers(t, gen, fb, &fakeSnapshots{})

	rec := postJSON(t, h.GenerateResponse, map[string]any{
		"tenantId": "t1",
		"message":  "when do you open?",
		"channel":  "web",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	var res generateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Response != "We open at 9am." {
		t.Fatalf("response = %q", res.Response)
	}
	if !res.Success {
		t.Fatal("success = false, want true")
	}
	if len(res.AgentsUsed) != 2 || res.AgentsUsed[0] != "router" || res.AgentsUsed[1] != "specialist" {
		t.Fatalf("agentsUsed = %v", res.AgentsUsed)
	}
	if fb.callCount() != 0 {
		t.Fatalf("fallback called %d times, want 0", fb.callCount())
	}
}

func TestGenerateResponseMissingFieldsRejected(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{}
	h, _ := newTestHandlers(t, gen, &fakeFallback{}, &fakeSnapshots{})

	cases := []map[string]any{
		{"message": "hello"},
		{"tenantId": "t1"},
		{"tenantId": "  ", "message": "hello"},
	}
	for i, body := range cases {
		rec := postJSON(t, h.GenerateResponse, body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("case %d: status = %d, want 400", i, rec.Code)
		}
	}
	if gen.callCount() != 0 {
		t.Fatalf("primary called %d times, want 0", gen.callCount())
	}
}

func TestGenerateResponseValidationErrorDoesNotTripBreaker(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{err: fmt.Errorf("%w: unsupported channel", contractx.ErrValidation)}
	fb := &fakeFallback{}
	h, _ := newTestHandlers(t, gen, fb, &fakeSnapshots{})

	rec := postJSON(t, h.GenerateResponse, map[string]any{
		"tenantId": "t1",
		"message":  "hi",
		"channel":  "carrier_pigeon",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if fb.callCount() != 0 {
		t.Fatalf("fallback called %d times, want 0", fb.callCount())
	}
}

func TestGenerateResponseFallsBackOnPipelineFailure(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{err: errors.New("model unavailable")}
	fb := &fakeFallback{}
	h, _ := newTestHandlers(t, gen, fb, &fakeSnapshots{})

	rec := postJSON(t, h.GenerateResponse, map[string]any{
		"tenantId": "t1",
		"message":  "hi",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var res generateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !res.Escalated || res.EscalationReason != "fallback" {
		t.Fatalf("expected fallback result, got %+v", res)
	}
	if len(res.AgentsUsed) != 1 || res.AgentsUsed[0] != "legacy" {
		t.Fatalf("agentsUsed = %v", res.AgentsUsed)
	}
	if fb.callCount() != 1 {
		t.Fatalf("fallback called %d times, want 1", fb.callCount())
	}
}

func TestInvalidateCacheArchivesActivePrompt(t *testing.T) {
	t.Parallel()

	h, cache := newTestHandlers(t, &fakeGenerator{}, &fakeFallback{}, &fakeSnapshots{})
	ctx := context.Background()
	if _, err := cache.Upsert(ctx, promptcachex.UpsertInput{
		TenantID:   "t1",
		Channel:    contractx.ChannelWeb,
		Prompt:     "You are the assistant for Glow Studio.",
		SourceHash: "abc",
		Trigger:    "cache_miss",
	}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	rec := postJSON(t, h.InvalidateCache, map[string]any{
		"tenantId": "t1",
		"channel":  "web",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	var res invalidateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !res.Invalidated || res.Archived != 1 {
		t.Fatalf("invalidate response = %+v, want invalidated with 1 archived", res)
	}
}

func TestInvalidateCacheRequiresTenant(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandlers(t, &fakeGenerator{}, &fakeFallback{}, &fakeSnapshots{})
	rec := postJSON(t, h.InvalidateCache, map[string]any{"channel": "web"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCacheStatusReportsFreshness(t *testing.T) {
	t.Parallel()

	bc := &snapshotx.BusinessContext{TenantID: "t1", Name: "Glow Studio"}
	h, cache := newTestHandlers(t, &fakeGenerator{}, &fakeFallback{}, &fakeSnapshots{bc: bc})

	sourceHash, err := snapshotx.Hash(bc)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	ctx := context.Background()
	if _, err := cache.Upsert(ctx, promptcachex.UpsertInput{
		TenantID:   "t1",
		Channel:    contractx.ChannelWeb,
		Prompt:     "You are the assistant for Glow Studio.",
		SourceHash: sourceHash,
		Trigger:    "cache_miss",
	}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/?tenantId=t1&channel=web", nil)
	rec := httptest.NewRecorder()
	h.CacheStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	var res cacheStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !res.HasCachedPrompt {
		t.Fatal("expected a cached prompt")
	}
	if res.NeedsRegeneration {
		t.Fatal("matching source hash should not need regeneration")
	}
	if res.Version != 1 {
		t.Fatalf("version = %d, want 1", res.Version)
	}
	if len(res.History) != 1 || !res.History[0].Success {
		t.Fatalf("history = %+v, want one successful entry", res.History)
	}
}

func TestCacheStatusUnknownTenant(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandlers(t, &fakeGenerator{}, &fakeFallback{}, &fakeSnapshots{err: errors.New("no such tenant")})
	req := httptest.NewRequest(http.MethodGet, "/?tenantId=ghost", nil)
	rec := httptest.NewRecorder()
	h.CacheStatus(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestRouterServesHealthz(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandlers(t, &fakeGenerator{}, &fakeFallback{}, &fakeSnapshots{})
	srv := httptest.NewServer(NewRouter(h))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestRouterRoutesGenerateResponse(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{result: contractx.GraphResult{
		Response: "We open at 9am.",
		Intent:   contractx.IntentDirectAnswer,
	}}
	h, _ := newTestHandlers(t, gen, &fakeFallback{}, &fakeSnapshots{})
	srv := httptest.NewServer(NewRouter(h))
	defer srv.Close()

	body := strings.NewReader(`{"tenantId":"t1","message":"when do you open?"}`)
	resp, err := http.Post(srv.URL+"/api/agent/generate-response", "application/json", body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if gen.callCount() != 1 {
		t.Fatalf("primary called %d times, want 1", gen.callCount())
	}
}
