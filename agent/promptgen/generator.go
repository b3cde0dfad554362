package promptgen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
	promptcachex "github.com/fernandofuc/tistis-platform-sub010/agent/promptcache"
	snapshotx "github.com/fernandofuc/tistis-platform-sub010/agent/snapshot"
)

const (
	defaultSynthesisTimeout = 45 * time.Second
	maxSynthesisRetries     = 2
)

// Generator synthesizes the per-tenant conversational prompt and writes it
// through the prompt cache. Failures never touch an existing cached row.
type Generator struct {
	synth   contractx.Synthesizer
	cache   *promptcachex.Cache
	timeout time.Duration
	now     func() time.Time
}

type GeneratorOption func(*Generator)

func WithSynthesisTimeout(d time.Duration) GeneratorOption {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

func NewGenerator(synth contractx.Synthesizer, cache *promptcachex.Cache, opts ...GeneratorOption) (*Generator, error) {
	if synth == nil {
		return nil, errors.New("synthesizer is required")
	}
	if cache == nil {
		return nil, errors.New("prompt cache is required")
	}

	g := &Generator{
		synth:   synth,
		cache:   cache,
		timeout: defaultSynthesisTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Generate builds the prompt for the key from the given snapshot, persists
// it on success and records the attempt either way. trigger names what
// caused the regeneration ("cache_miss", "config_change", "manual").
func (g *Generator) Generate(
	ctx context.Context,
	tenantID string,
	channel contractx.Channel,
	bc *snapshotx.BusinessContext,
	sourceHash string,
	trigger string,
) (*contractx.CachedPrompt, error) {
	if bc == nil {
		return nil, fmt.Errorf("%w: business context is nil", contractx.ErrValidation)
	}

	start := g.now()

	prompt, err := g.renderPrompt(ctx, channel, bc)
	latency := g.now().Sub(start).Milliseconds()
	if err != nil {
		if histErr := g.cache.RecordFailure(ctx, tenantID, channel, trigger, err.Error(), latency); histErr != nil {
			log.Warn().Err(histErr).
				Str("tenant_id", tenantID).
				Str("channel", string(channel)).
				Msg("failed to record generation failure")
		}
		if errors.Is(err, contractx.ErrGenerationFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", contractx.ErrGenerationFailed, err)
	}

	row, err := g.cache.Upsert(ctx, promptcachex.UpsertInput{
		TenantID:        tenantID,
		Channel:         channel,
		Prompt:          prompt,
		SystemPrompt:    buildSystemPrompt(bc),
		SourceHash:      sourceHash,
		TokensEstimated: EstimateTokens(prompt),
		Trigger:         trigger,
		LatencyMS:       latency,
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("tenant_id", tenantID).
		Str("channel", string(channel)).
		Int("version", row.Version).
		Int64("latency_ms", latency).
		Msg("prompt generated")
	return row, nil
}

func (g *Generator) renderPrompt(ctx context.Context, channel contractx.Channel, bc *snapshotx.BusinessContext) (string, error) {
	if channel.IsVoice() {
		return g.generateVoicePrompt(ctx, bc)
	}

	out, err := g.synthesize(ctx, buildMetaPrompt(bc))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("%w: backend returned empty prompt", contractx.ErrGenerationFailed)
	}
	return strings.TrimSpace(out), nil
}

// synthesize calls the backend with a per-attempt timeout and bounded
// exponential backoff.
func (g *Generator) synthesize(ctx context.Context, prompt string) (string, error) {
	var out string
	operation := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		text, err := g.synth.Synthesize(attemptCtx, prompt)
		if err != nil {
			return err
		}
		out = text
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxSynthesisRetries),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return "", fmt.Errorf("%w: %v", contractx.ErrGenerationFailed, err)
	}
	return out, nil
}
