package aggregate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
	promptcachex "github.com/fernandofuc/tistis-platform-sub010/agent/promptcache"
	promptgenx "github.com/fernandofuc/tistis-platform-sub010/agent/promptgen"
	snapshotx "github.com/fernandofuc/tistis-platform-sub010/agent/snapshot"
)

type fakeTenants struct {
	err error
}

func (f *fakeTenants) Tenant(context.Context, string) (contractx.TenantInfo, error) {
	if f.err != nil {
		return contractx.TenantInfo{}, f.err
	}
	return contractx.TenantInfo{ID: "tenant-1", Name: "Salon Luna"}, nil
}

type fakeSnapshots struct {
	mu  sync.Mutex
	bc  *snapshotx.BusinessContext
	err error
}

func (f *fakeSnapshots) Snapshot(context.Context, string) (*snapshotx.BusinessContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.bc, nil
}

func (f *fakeSnapshots) set(bc *snapshotx.BusinessContext) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bc = bc
}

type fakeLoyalty struct {
	err error
}

func (f *fakeLoyalty) Loyalty(_ context.Context, _, leadID string) (contractx.LoyaltyState, error) {
	if f.err != nil {
		return contractx.LoyaltyState{}, f.err
	}
	return contractx.LoyaltyState{LeadID: leadID, Tier: "gold", Points: 120}, nil
}

type fakeLearning struct {
	err error
}

func (f *fakeLearning) Patterns(context.Context, string) (contractx.LearningContext, error) {
	if f.err != nil {
		return contractx.LearningContext{}, f.err
	}
	return contractx.LearningContext{PreferredTone: "warm"}, nil
}

// countingSynth returns a distinct prompt per call and can be switched into
// a failing mode.
type countingSynth struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (s *countingSynth) Synthesize(context.Context, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return "", errors.New("backend unavailable")
	}
	s.calls++
	return fmt.Sprintf("You are the assistant for Salon Luna. (generation %d)", s.calls), nil
}

func (s *countingSynth) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *countingSynth) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func newTestAggregator(t *testing.T) (*Aggregator, *fakeSnapshots, *fakeLoyalty, *countingSynth, *promptcachex.Cache) {
	t.Helper()

	cache, err := promptcachex.New(promptcachex.NewMemoryStore())
	if err != nil {
		t.Fatalf("promptcache.New() error = %v", err)
	}
	synth := &countingSynth{}
	gen, err := promptgenx.NewGenerator(synth, cache)
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}

	snapshots := &fakeSnapshots{bc: &snapshotx.BusinessContext{
		TenantID: "tenant-1",
		Name:     "Salon Luna",
		Vertical: "beauty",
		Tone:     "warm",
	}}
	loyalty := &fakeLoyalty{}
	agg, err := New(&fakeTenants{}, snapshots, loyalty, &fakeLearning{}, cache, gen)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return agg, snapshots, loyalty, synth, cache
}

func TestGetOptimizedPromptGeneratesOnFirstUse(t *testing.T) {
	t.Parallel()

	agg, _, _, synth, _ := newTestAggregator(t)

	resolved, err := agg.GetOptimizedPrompt(context.Background(), "tenant-1", contractx.ChannelWhatsApp)
	if err != nil {
		t.Fatalf("GetOptimizedPrompt() error = %v", err)
	}
	if resolved.FromCache {
		t.Fatal("first resolution must not come from cache")
	}
	if resolved.Version != 1 {
		t.Fatalf("version = %d, want 1", resolved.Version)
	}
	if strings.TrimSpace(resolved.Prompt) == "" {
		t.Fatal("resolved prompt is empty")
	}
	if synth.callCount() != 1 {
		t.Fatalf("synthesizer calls = %d, want 1", synth.callCount())
	}
}

func TestGetOptimizedPromptIsIdempotent(t *testing.T) {
	t.Parallel()

	agg, _, _, synth, _ := newTestAggregator(t)
	ctx := context.Background()

	first, err := agg.GetOptimizedPrompt(ctx, "tenant-1", contractx.ChannelWhatsApp)
	if err != nil {
		t.Fatalf("first GetOptimizedPrompt() error = %v", err)
	}
	second, err := agg.GetOptimizedPrompt(ctx, "tenant-1", contractx.ChannelWhatsApp)
	if err != nil {
		t.Fatalf("second GetOptimizedPrompt() error = %v", err)
	}

	if !second.FromCache {
		t.Fatal("second resolution must come from cache")
	}
	if second.Prompt != first.Prompt || second.Version != first.Version {
		t.Fatalf("second resolution diverged: %+v vs %+v", second, first)
	}
	if synth.callCount() != 1 {
		t.Fatalf("synthesizer calls = %d, want 1", synth.callCount())
	}
}

func TestInvalidateForcesExactlyOneRegeneration(t *testing.T) {
	t.Parallel()

	agg, _, _, synth, cache := newTestAggregator(t)
	ctx := context.Background()

	if _, err := agg.GetOptimizedPrompt(ctx, "tenant-1", contractx.ChannelWhatsApp); err != nil {
		t.Fatalf("seed GetOptimizedPrompt() error = %v", err)
	}
	if _, err := cache.Invalidate(ctx, "tenant-1", contractx.ChannelWhatsApp); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}

	regenerated, err := agg.GetOptimizedPrompt(ctx, "tenant-1", contractx.ChannelWhatsApp)
	if err != nil {
		t.Fatalf("post-invalidate GetOptimizedPrompt() error = %v", err)
	}
	if regenerated.FromCache {
		t.Fatal("post-invalidate resolution must regenerate")
	}
	if regenerated.Version != 2 {
		t.Fatalf("version = %d, want 2", regenerated.Version)
	}

	cached, err := agg.GetOptimizedPrompt(ctx, "tenant-1", contractx.ChannelWhatsApp)
	if err != nil {
		t.Fatalf("follow-up GetOptimizedPrompt() error = %v", err)
	}
	if !cached.FromCache || cached.Version != 2 {
		t.Fatalf("follow-up resolution = %+v, want cached version 2", cached)
	}
	if synth.callCount() != 2 {
		t.Fatalf("synthesizer calls = %d, want 2", synth.callCount())
	}
}

func TestGetOptimizedPromptRegeneratesOnSnapshotChange(t *testing.T) {
	t.Parallel()

	agg, snapshots, _, synth, _ := newTestAggregator(t)
	ctx := context.Background()

	if _, err := agg.GetOptimizedPrompt(ctx, "tenant-1", contractx.ChannelWeb); err != nil {
		t.Fatalf("seed GetOptimizedPrompt() error = %v", err)
	}

	snapshots.set(&snapshotx.BusinessContext{
		TenantID: "tenant-1",
		Name:     "Salon Luna",
		Vertical: "beauty",
		Tone:     "playful",
	})

	resolved, err := agg.GetOptimizedPrompt(ctx, "tenant-1", contractx.ChannelWeb)
	if err != nil {
		t.Fatalf("GetOptimizedPrompt() error = %v", err)
	}
	if resolved.FromCache {
		t.Fatal("changed snapshot must force regeneration")
	}
	if resolved.Version != 2 {
		t.Fatalf("version = %d, want 2", resolved.Version)
	}
	if synth.callCount() != 2 {
		t.Fatalf("synthesizer calls = %d, want 2", synth.callCount())
	}
}

func TestGetOptimizedPromptServesStaleOnGenerationFailure(t *testing.T) {
	t.Parallel()

	agg, snapshots, _, synth, _ := newTestAggregator(t)
	ctx := context.Background()

	seeded, err := agg.GetOptimizedPrompt(ctx, "tenant-1", contractx.ChannelWeb)
	if err != nil {
		t.Fatalf("seed GetOptimizedPrompt() error = %v", err)
	}

	snapshots.set(&snapshotx.BusinessContext{
		TenantID: "tenant-1",
		Name:     "Salon Luna",
		Vertical: "beauty",
		Tone:     "formal",
	})
	synth.setFail(true)

	resolved, err := agg.GetOptimizedPrompt(ctx, "tenant-1", contractx.ChannelWeb)
	if err != nil {
		t.Fatalf("GetOptimizedPrompt() error = %v", err)
	}
	if !resolved.FromCache {
		t.Fatal("failed regeneration must fall back to the stale cached prompt")
	}
	if resolved.Prompt != seeded.Prompt || resolved.Version != seeded.Version {
		t.Fatalf("stale fallback diverged: %+v vs %+v", resolved, seeded)
	}
}

func TestGetOptimizedPromptDefaultsWhenColdAndFailing(t *testing.T) {
	t.Parallel()

	agg, _, _, synth, _ := newTestAggregator(t)
	synth.setFail(true)

	resolved, err := agg.GetOptimizedPrompt(context.Background(), "tenant-1", contractx.ChannelInstagram)
	if err != nil {
		t.Fatalf("GetOptimizedPrompt() error = %v", err)
	}
	if resolved.FromCache || resolved.Version != 0 {
		t.Fatalf("cold failure must yield the default prompt: %+v", resolved)
	}
	if !strings.Contains(resolved.Prompt, "Salon Luna") {
		t.Fatalf("default prompt missing business name: %q", resolved.Prompt)
	}
}

func TestLoadFullContextDegradesNonCritical(t *testing.T) {
	t.Parallel()

	agg, _, loyalty, _, _ := newTestAggregator(t)
	loyalty.err = errors.New("loyalty service down")

	fc, err := agg.LoadFullContext(context.Background(), "tenant-1", "lead-9")
	if err != nil {
		t.Fatalf("LoadFullContext() error = %v", err)
	}
	if fc.Loyalty != nil {
		t.Fatal("failed loyalty load must leave Loyalty nil")
	}
	if len(fc.Degraded) != 1 || fc.Degraded[0] != "loyalty" {
		t.Fatalf("Degraded = %v, want [loyalty]", fc.Degraded)
	}
	if fc.Learning == nil || fc.Learning.PreferredTone != "warm" {
		t.Fatalf("learning context missing: %+v", fc.Learning)
	}
	if fc.Business == nil || fc.Tenant.ID != "tenant-1" {
		t.Fatalf("critical loads incomplete: tenant=%+v business=%v", fc.Tenant, fc.Business)
	}
}

func TestLoadFullContextSkipsLoyaltyWithoutLead(t *testing.T) {
	t.Parallel()

	agg, _, loyalty, _, _ := newTestAggregator(t)
	loyalty.err = errors.New("must not be called")

	fc, err := agg.LoadFullContext(context.Background(), "tenant-1", "")
	if err != nil {
		t.Fatalf("LoadFullContext() error = %v", err)
	}
	if fc.Loyalty != nil || len(fc.Degraded) != 0 {
		t.Fatalf("loyalty must be skipped without a lead: %+v", fc)
	}
}

func TestLoadFullContextFailsOnCriticalLoad(t *testing.T) {
	t.Parallel()

	agg, snapshots, _, _, _ := newTestAggregator(t)
	snapshots.err = errors.New("snapshot store unreachable")

	if _, err := agg.LoadFullContext(context.Background(), "tenant-1", ""); !errors.Is(err, contractx.ErrContextLoadCritical) {
		t.Fatalf("error = %v, want ErrContextLoadCritical", err)
	}
}

// hangingTenants blocks until its context is cancelled, like a store stuck
// waiting on an exhausted connection pool.
type hangingTenants struct{}

func (hangingTenants) Tenant(ctx context.Context, _ string) (contractx.TenantInfo, error) {
	<-ctx.Done()
	return contractx.TenantInfo{}, ctx.Err()
}

type hangingLoyalty struct{}

func (hangingLoyalty) Loyalty(ctx context.Context, _, _ string) (contractx.LoyaltyState, error) {
	<-ctx.Done()
	return contractx.LoyaltyState{}, ctx.Err()
}

func newTimeoutAggregator(t *testing.T, tenants contractx.TenantStore, loyalty contractx.LoyaltyStore) *Aggregator {
	t.Helper()

	cache, err := promptcachex.New(promptcachex.NewMemoryStore())
	if err != nil {
		t.Fatalf("promptcache.New() error = %v", err)
	}
	gen, err := promptgenx.NewGenerator(&countingSynth{}, cache)
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	snapshots := &fakeSnapshots{bc: &snapshotx.BusinessContext{TenantID: "tenant-1", Name: "Salon Luna"}}

	agg, err := New(tenants, snapshots, loyalty, &fakeLearning{}, cache, gen,
		WithLoadTimeouts(30*time.Millisecond, 20*time.Millisecond))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return agg
}

func TestLoadFullContextTimesOutHungCriticalLoad(t *testing.T) {
	t.Parallel()

	agg := newTimeoutAggregator(t, hangingTenants{}, &fakeLoyalty{})

	done := make(chan error, 1)
	go func() {
		_, err := agg.LoadFullContext(context.Background(), "tenant-1", "")
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, contractx.ErrContextLoadCritical) {
			t.Fatalf("error = %v, want ErrContextLoadCritical", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("LoadFullContext did not return; hung critical load was not bounded")
	}
}

func TestLoadFullContextDegradesHungLoyalty(t *testing.T) {
	t.Parallel()

	agg := newTimeoutAggregator(t, &fakeTenants{}, hangingLoyalty{})

	done := make(chan struct{})
	var (
		fc      contractx.FullContext
		loadErr error
	)
	go func() {
		fc, loadErr = agg.LoadFullContext(context.Background(), "tenant-1", "lead-9")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("LoadFullContext did not return; hung loyalty load was not bounded")
	}
	if loadErr != nil {
		t.Fatalf("LoadFullContext() error = %v", loadErr)
	}
	if fc.Loyalty != nil {
		t.Fatal("hung loyalty load must leave Loyalty nil")
	}
	if len(fc.Degraded) != 1 || fc.Degraded[0] != "loyalty" {
		t.Fatalf("Degraded = %v, want [loyalty]", fc.Degraded)
	}
	if fc.Tenant.ID != "tenant-1" || fc.Business == nil {
		t.Fatalf("critical loads incomplete: tenant=%+v business=%v", fc.Tenant, fc.Business)
	}
}
