package promptcache

import (
	"context"
	"errors"
	"testing"
	"time"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
)

func newTestCache(t *testing.T) (*Cache, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	cache, err := New(store)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return cache, store
}

func upsertInput(hash string) UpsertInput {
	return UpsertInput{
		TenantID:        "tenant-1",
		Channel:         contractx.ChannelWhatsApp,
		Prompt:          "You are the assistant for Clinica Sonrisa.",
		SystemPrompt:    "Always answer in Spanish.",
		SourceHash:      hash,
		TokensEstimated: 120,
		Trigger:         "cache_miss",
	}
}

func TestUpsertIncrementsVersion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cache, store := newTestCache(t)

	first, err := cache.Upsert(ctx, upsertInput("hash-a"))
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if first.Version != 1 {
		t.Fatalf("first version = %d, want 1", first.Version)
	}
	if first.Status != contractx.PromptActive {
		t.Fatalf("first status = %s, want active", first.Status)
	}

	second, err := cache.Upsert(ctx, upsertInput("hash-b"))
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if second.Version != 2 {
		t.Fatalf("second version = %d, want 2", second.Version)
	}

	history, err := store.History(ctx, "tenant-1", contractx.ChannelWhatsApp, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history entries = %d, want 2", len(history))
	}
}

func TestGetReturnsOnlyActiveRow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cache, _ := newTestCache(t)

	if _, err := cache.Get(ctx, "tenant-1", contractx.ChannelWhatsApp); !errors.Is(err, contractx.ErrPromptNotFound) {
		t.Fatalf("Get() on empty cache error = %v, want ErrPromptNotFound", err)
	}

	if _, err := cache.Upsert(ctx, upsertInput("hash-a")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := cache.Get(ctx, "tenant-1", contractx.ChannelWhatsApp)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.GeneratedPrompt == "" || got.SourceHash != "hash-a" {
		t.Fatalf("unexpected cached row: %+v", got)
	}

	if _, err := cache.Invalidate(ctx, "tenant-1", contractx.ChannelWhatsApp); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if _, err := cache.Get(ctx, "tenant-1", contractx.ChannelWhatsApp); !errors.Is(err, contractx.ErrPromptNotFound) {
		t.Fatalf("Get() after invalidate error = %v, want ErrPromptNotFound", err)
	}
}

type failingBumpStore struct {
	Store
}

func (f *failingBumpStore) BumpUsage(context.Context, string, contractx.Channel, time.Time) error {
	return errors.New("usage table unavailable")
}

func TestGetSurvivesUsageBumpFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mem := NewMemoryStore()
	cache, err := New(&failingBumpStore{Store: mem})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := cache.Upsert(ctx, upsertInput("hash-a")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := cache.Get(ctx, "tenant-1", contractx.ChannelWhatsApp)
	if err != nil {
		t.Fatalf("Get() error = %v, usage bump failure must not fail the read", err)
	}
	if got.Version != 1 {
		t.Fatalf("version = %d, want 1", got.Version)
	}
}

func TestRecordFailureLeavesRowUntouched(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cache, store := newTestCache(t)

	before, err := cache.Upsert(ctx, upsertInput("hash-a"))
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if err := cache.RecordFailure(ctx, "tenant-1", contractx.ChannelWhatsApp, "config_change", "backend timeout", 900); err != nil {
		t.Fatalf("RecordFailure() error = %v", err)
	}

	after, err := cache.Get(ctx, "tenant-1", contractx.ChannelWhatsApp)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if after.Version != before.Version || after.SourceHash != before.SourceHash {
		t.Fatalf("cached row changed after failed generation: %+v", after)
	}

	history, err := store.History(ctx, "tenant-1", contractx.ChannelWhatsApp, 1)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 || history[0].Success {
		t.Fatalf("newest history entry should record the failure, got %+v", history)
	}
}

func TestNeedsRegeneration(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cache, _ := newTestCache(t)

	need, err := cache.NeedsRegeneration(ctx, "tenant-1", contractx.ChannelWhatsApp, "hash-a")
	if err != nil || !need {
		t.Fatalf("empty cache: need=%v err=%v, want true", need, err)
	}

	if _, err := cache.Upsert(ctx, upsertInput("hash-a")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	need, err = cache.NeedsRegeneration(ctx, "tenant-1", contractx.ChannelWhatsApp, "hash-a")
	if err != nil || need {
		t.Fatalf("matching hash: need=%v err=%v, want false", need, err)
	}

	need, err = cache.NeedsRegeneration(ctx, "tenant-1", contractx.ChannelWhatsApp, "hash-b")
	if err != nil || !need {
		t.Fatalf("changed hash: need=%v err=%v, want true", need, err)
	}

	if _, err := cache.Invalidate(ctx, "tenant-1", ""); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	need, err = cache.NeedsRegeneration(ctx, "tenant-1", contractx.ChannelWhatsApp, "hash-a")
	if err != nil || !need {
		t.Fatalf("archived row: need=%v err=%v, want true", need, err)
	}
}

func TestStatusReportsStaleness(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cache, _ := newTestCache(t)

	st, err := cache.Status(ctx, "tenant-1", contractx.ChannelWhatsApp, "hash-a")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.HasCachedPrompt || !st.NeedsRegeneration {
		t.Fatalf("empty cache status = %+v", st)
	}

	if _, err := cache.Upsert(ctx, upsertInput("hash-a")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	st, err = cache.Status(ctx, "tenant-1", contractx.ChannelWhatsApp, "hash-a")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !st.HasCachedPrompt || st.NeedsRegeneration || st.Version != 1 || st.LastGenerated == nil {
		t.Fatalf("fresh cache status = %+v", st)
	}
}
