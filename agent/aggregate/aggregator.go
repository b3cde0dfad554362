package aggregate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
	promptcachex "github.com/fernandofuc/tistis-platform-sub010/agent/promptcache"
	promptgenx "github.com/fernandofuc/tistis-platform-sub010/agent/promptgen"
	snapshotx "github.com/fernandofuc/tistis-platform-sub010/agent/snapshot"
)

const (
	triggerCacheMiss    = "cache_miss"
	triggerConfigChange = "config_change"

	// Each context sub-load carries its own deadline so one hung store
	// cannot stall the whole request.
	defaultCriticalLoadTimeout   = 5 * time.Second
	defaultDegradableLoadTimeout = 3 * time.Second
)

// Aggregator resolves the conversational prompt for a key and joins the
// per-request context loads. It is the only caller of the prompt generator
// on the request path.
type Aggregator struct {
	tenants   contractx.TenantStore
	snapshots contractx.SnapshotSource
	loyalty   contractx.LoyaltyStore
	learning  contractx.LearningStore
	cache     *promptcachex.Cache
	generator *promptgenx.Generator

	criticalTimeout   time.Duration
	degradableTimeout time.Duration
}

type Option func(*Aggregator)

// WithLoadTimeouts bounds the per-load deadlines of LoadFullContext.
func WithLoadTimeouts(critical, degradable time.Duration) Option {
	return func(a *Aggregator) {
		if critical > 0 {
			a.criticalTimeout = critical
		}
		if degradable > 0 {
			a.degradableTimeout = degradable
		}
	}
}

func New(
	tenants contractx.TenantStore,
	snapshots contractx.SnapshotSource,
	loyalty contractx.LoyaltyStore,
	learning contractx.LearningStore,
	cache *promptcachex.Cache,
	generator *promptgenx.Generator,
	opts ...Option,
) (*Aggregator, error) {
	if tenants == nil || snapshots == nil || loyalty == nil || learning == nil {
		return nil, errors.New("tenant, snapshot, loyalty and learning sources are required")
	}
	if cache == nil || generator == nil {
		return nil, errors.New("prompt cache and generator are required")
	}
	a := &Aggregator{
		tenants:           tenants,
		snapshots:         snapshots,
		loyalty:           loyalty,
		learning:          learning,
		cache:             cache,
		generator:         generator,
		criticalTimeout:   defaultCriticalLoadTimeout,
		degradableTimeout: defaultDegradableLoadTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// GetOptimizedPrompt returns the prompt to use for the key. A fresh content
// hash decides between the cached row and synchronous regeneration; when
// regeneration fails the last known prompt is served stale, and a minimal
// default covers the cold-start case.
func (a *Aggregator) GetOptimizedPrompt(ctx context.Context, tenantID string, channel contractx.Channel) (contractx.ResolvedPrompt, error) {
	bc, err := a.snapshots.Snapshot(ctx, tenantID)
	if err != nil {
		return contractx.ResolvedPrompt{}, fmt.Errorf("%w: business snapshot: %v", contractx.ErrContextLoadCritical, err)
	}
	hash, err := snapshotx.Hash(bc)
	if err != nil {
		return contractx.ResolvedPrompt{}, fmt.Errorf("snapshot hash: %w", err)
	}

	need, err := a.cache.NeedsRegeneration(ctx, tenantID, channel, hash)
	if err != nil {
		return contractx.ResolvedPrompt{}, err
	}
	if !need {
		row, err := a.cache.Get(ctx, tenantID, channel)
		if err == nil {
			return contractx.ResolvedPrompt{
				Prompt:       row.GeneratedPrompt,
				SystemPrompt: row.SystemPrompt,
				FromCache:    true,
				Version:      row.Version,
			}, nil
		}
		// Lost a race with an invalidation between the staleness check and
		// the read; regenerate below.
		log.Warn().Err(err).Str("tenant_id", tenantID).Str("channel", string(channel)).
			Msg("active prompt vanished after staleness check")
	}

	trigger := triggerConfigChange
	prev, err := a.cache.LastKnown(ctx, tenantID, channel)
	if errors.Is(err, contractx.ErrPromptNotFound) {
		trigger = triggerCacheMiss
		prev = nil
	} else if err != nil {
		return contractx.ResolvedPrompt{}, err
	}

	row, err := a.generator.Generate(ctx, tenantID, channel, bc, hash, trigger)
	if err != nil {
		if prev != nil && strings.TrimSpace(prev.GeneratedPrompt) != "" {
			log.Warn().Err(err).Str("tenant_id", tenantID).Str("channel", string(channel)).
				Int("stale_version", prev.Version).
				Msg("prompt generation failed, serving stale prompt")
			return contractx.ResolvedPrompt{
				Prompt:       prev.GeneratedPrompt,
				SystemPrompt: prev.SystemPrompt,
				FromCache:    true,
				Version:      prev.Version,
			}, nil
		}
		log.Error().Err(err).Str("tenant_id", tenantID).Str("channel", string(channel)).
			Msg("prompt generation failed with no cached fallback, using default prompt")
		return contractx.ResolvedPrompt{Prompt: defaultPrompt(bc)}, nil
	}

	return contractx.ResolvedPrompt{
		Prompt:       row.GeneratedPrompt,
		SystemPrompt: row.SystemPrompt,
		FromCache:    false,
		Version:      row.Version,
	}, nil
}

// LoadFullContext joins the context loads for one request. Tenant and
// business snapshot are critical; loyalty and learning degrade to nil and
// are listed in Degraded. Loyalty is skipped when there is no lead. Every
// sub-load runs under its own deadline, so a hung store fails that load
// instead of stalling the request.
func (a *Aggregator) LoadFullContext(ctx context.Context, tenantID, leadID string) (contractx.FullContext, error) {
	var (
		fc contractx.FullContext
		mu sync.Mutex
	)
	markDegraded := func(name string, err error) {
		err = fmt.Errorf("%w: %s: %v", contractx.ErrContextLoadDegraded, name, err)
		log.Warn().Err(err).Str("tenant_id", tenantID).Str("load", name).
			Msg("non-critical context load failed")
		mu.Lock()
		fc.Degraded = append(fc.Degraded, name)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lctx, cancel := context.WithTimeout(gctx, a.criticalTimeout)
		defer cancel()
		tenant, err := a.tenants.Tenant(lctx, tenantID)
		if err != nil {
			return fmt.Errorf("%w: tenant: %v", contractx.ErrContextLoadCritical, err)
		}
		fc.Tenant = tenant
		return nil
	})
	g.Go(func() error {
		lctx, cancel := context.WithTimeout(gctx, a.criticalTimeout)
		defer cancel()
		bc, err := a.snapshots.Snapshot(lctx, tenantID)
		if err != nil {
			return fmt.Errorf("%w: business snapshot: %v", contractx.ErrContextLoadCritical, err)
		}
		fc.Business = bc
		return nil
	})
	if leadID != "" {
		g.Go(func() error {
			lctx, cancel := context.WithTimeout(gctx, a.degradableTimeout)
			defer cancel()
			loyalty, err := a.loyalty.Loyalty(lctx, tenantID, leadID)
			if err != nil {
				markDegraded("loyalty", err)
				return nil
			}
			mu.Lock()
			fc.Loyalty = &loyalty
			mu.Unlock()
			return nil
		})
	}
	g.Go(func() error {
		lctx, cancel := context.WithTimeout(gctx, a.degradableTimeout)
		defer cancel()
		learning, err := a.learning.Patterns(lctx, tenantID)
		if err != nil {
			markDegraded("learning", err)
			return nil
		}
		mu.Lock()
		fc.Learning = &learning
		mu.Unlock()
		return nil
	})

	if err := g.Wait(); err != nil {
		return contractx.FullContext{}, err
	}
	return fc, nil
}

func defaultPrompt(bc *snapshotx.BusinessContext) string {
	name := strings.TrimSpace(bc.Name)
	if name == "" {
		name = "the business"
	}
	return fmt.Sprintf(
		"You are a helpful customer service assistant for %s. "+
			"Answer only from information you are certain about, keep replies short and polite, "+
			"and offer to connect the customer with a human agent when you cannot help.",
		name,
	)
}
