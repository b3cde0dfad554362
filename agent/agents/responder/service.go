package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	aggregatex "github.com/fernandofuc/tistis-platform-sub010/agent/aggregate"
	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
)

const (
	historyLimit      = 20
	sideEffectTimeout = 10 * time.Second

	// safeFallbackMessage is returned whenever the pipeline fails internally;
	// the customer never sees an error.
	safeFallbackMessage = "I'm sorry, I'm having trouble answering right now. Let me connect you with someone from our team."
)

// Options carries the per-request knobs of Generate. IsPreview skips the
// conversation load and every persistent side effect; the reasoning path is
// identical either way.
type Options struct {
	Channel             contractx.Channel
	ProfileType         string
	ConversationHistory []contractx.Turn
	IsPreview           bool
	ConversationID      string
	LeadID              string
}

// Deps lists the collaborators of the response service. Conversations,
// Learning and Metrics are optional; a nil value disables that side effect.
type Deps struct {
	Aggregator    *aggregatex.Aggregator
	Router        contractx.Router
	Specialist    contractx.Specialist
	Tools         contractx.ToolExecutor
	Conversations contractx.ConversationStore
	Learning      contractx.LearningQueue
	Metrics       contractx.MetricsRecorder
}

// Service is the unified response service: one Generate path shared by
// production traffic and dashboard previews.
type Service struct {
	aggregator    *aggregatex.Aggregator
	router        contractx.Router
	specialist    contractx.Specialist
	tools         contractx.ToolExecutor
	conversations contractx.ConversationStore
	learning      contractx.LearningQueue
	metrics       contractx.MetricsRecorder

	graphRunner compose.Runnable[contractx.GraphInput, contractx.GraphResult]

	now func() time.Time
}

func New(deps Deps) (*Service, error) {
	if deps.Aggregator == nil {
		return nil, errors.New("aggregator is required")
	}
	if deps.Router == nil {
		return nil, errors.New("router is required")
	}
	if deps.Specialist == nil {
		return nil, errors.New("specialist is required")
	}
	if deps.Tools == nil {
		return nil, errors.New("tool executor is required")
	}

	s := &Service{
		aggregator:    deps.Aggregator,
		router:        deps.Router,
		specialist:    deps.Specialist,
		tools:         deps.Tools,
		conversations: deps.Conversations,
		learning:      deps.Learning,
		metrics:       deps.Metrics,
		now:           time.Now,
	}

	graphRunner, err := s.compileResponseGraph(context.Background())
	if err != nil {
		return nil, err
	}
	s.graphRunner = graphRunner

	return s, nil
}

// Generate runs the full pipeline for one customer message. Validation
// problems return ErrValidation with an empty result; internal pipeline
// failures return a well-formed safe result together with the error, so a
// circuit breaker can count the failure while the caller still has
// something presentable.
func (s *Service) Generate(ctx context.Context, tenantID, message string, opts Options) (contractx.GraphResult, error) {
	start := s.now()

	if strings.TrimSpace(tenantID) == "" {
		return contractx.GraphResult{}, fmt.Errorf("%w: tenant id is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(message) == "" {
		return contractx.GraphResult{}, fmt.Errorf("%w: message is required", contractx.ErrValidation)
	}
	channel := opts.Channel
	if channel == "" {
		channel = contractx.ChannelWeb
	}

	var (
		fullCtx  contractx.FullContext
		resolved contractx.ResolvedPrompt
		recent   []contractx.Turn
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fullCtx, err = s.aggregator.LoadFullContext(gctx, tenantID, opts.LeadID)
		return err
	})
	g.Go(func() error {
		var err error
		resolved, err = s.aggregator.GetOptimizedPrompt(gctx, tenantID, channel)
		return err
	})
	if !opts.IsPreview && opts.ConversationID != "" && s.conversations != nil {
		g.Go(func() error {
			turns, err := s.conversations.Recent(gctx, opts.ConversationID, historyLimit)
			if err != nil {
				// degraded, not fatal: answer without prior turns
				log.Warn().Err(err).
					Str("conversation_id", opts.ConversationID).
					Msg("conversation load failed")
				return nil
			}
			recent = turns
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("context load failed")
		return s.safeResult(start), fmt.Errorf("load context: %w", err)
	}

	history := make([]contractx.Turn, 0, len(recent)+len(opts.ConversationHistory))
	history = append(history, recent...)
	history = append(history, opts.ConversationHistory...)

	in := contractx.GraphInput{
		TenantID:            tenantID,
		Message:             message,
		Channel:             channel,
		ProfileType:         opts.ProfileType,
		History:             history,
		IsPreview:           opts.IsPreview,
		Prompt:              resolved.Prompt,
		SystemPrompt:        joinSections(resolved.SystemPrompt, contextAddendum(fullCtx)),
		AvailableTools:      s.tools.Names(),
		EnabledCapabilities: fullCtx.Business.Capabilities,
		ConversationID:      opts.ConversationID,
		LeadID:              opts.LeadID,
	}

	out, err := s.graphRunner.Invoke(ctx, in)
	if err != nil {
		if errors.Is(err, contractx.ErrValidation) {
			return contractx.GraphResult{}, err
		}
		log.Error().Err(err).
			Str("tenant_id", tenantID).
			Str("channel", string(channel)).
			Msg("response graph failed")
		return s.safeResult(start), fmt.Errorf("response graph: %w", err)
	}

	if !opts.IsPreview {
		go s.persistTurn(context.WithoutCancel(ctx), tenantID, message, channel, opts, out)
	}
	return out, nil
}

// persistTurn runs the post-response side effects detached from the request:
// conversation append, learning enqueue and metrics. Failures are logged
// and dropped; the response has already been returned.
func (s *Service) persistTurn(
	ctx context.Context,
	tenantID, message string,
	channel contractx.Channel,
	opts Options,
	res contractx.GraphResult,
) {
	ctx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
	defer cancel()

	now := s.now().UTC()
	if s.conversations != nil && opts.ConversationID != "" {
		err := s.conversations.Append(ctx, opts.ConversationID,
			contractx.Turn{Role: "user", Content: message, At: now},
			contractx.Turn{Role: "assistant", Content: res.Response, At: now},
		)
		if err != nil {
			log.Warn().Err(err).Str("conversation_id", opts.ConversationID).Msg("conversation append failed")
		}
	}

	if s.learning != nil {
		err := s.learning.EnqueueLearningUpdate(ctx, contractx.LearningUpdate{
			TenantID:       tenantID,
			ConversationID: opts.ConversationID,
			Intent:         res.Intent,
			Message:        message,
			Response:       res.Response,
			Signals:        res.Signals,
			At:             now,
		})
		if err != nil {
			log.Warn().Err(err).Str("tenant_id", tenantID).Msg("learning enqueue failed")
		}
	}

	if s.metrics != nil {
		err := s.metrics.Record(ctx, contractx.ResponseMetric{
			ID:           uuid.NewString(),
			TenantID:     tenantID,
			Channel:      channel,
			Intent:       res.Intent,
			LatencyMS:    res.LatencyMS,
			TokensUsed:   res.TokensUsed,
			Escalated:    res.Escalated,
			Preview:      false,
			ToolsInvoked: res.ToolsInvoked,
			CreatedAt:    now,
		})
		if err != nil {
			log.Warn().Err(err).Str("tenant_id", tenantID).Msg("metrics record failed")
		}
	}
}

func (s *Service) safeResult(start time.Time) contractx.GraphResult {
	return contractx.GraphResult{
		Response:         safeFallbackMessage,
		Intent:           contractx.IntentEscalation,
		LatencyMS:        s.now().Sub(start).Milliseconds(),
		Escalated:        true,
		EscalationReason: "internal_error",
	}
}

// contextAddendum renders the loyalty and learning context into system-prompt
// lines. Degraded loads are simply absent.
func contextAddendum(fc contractx.FullContext) string {
	var lines []string
	if fc.Loyalty != nil {
		lines = append(lines, fmt.Sprintf(
			"The customer is a %s loyalty member with %d points across %d visits.",
			fc.Loyalty.Tier, fc.Loyalty.Points, fc.Loyalty.VisitCount,
		))
	}
	if fc.Learning != nil {
		if fc.Learning.PreferredTone != "" {
			lines = append(lines, fmt.Sprintf("This customer base responds best to a %s tone.", fc.Learning.PreferredTone))
		}
		for _, pattern := range fc.Learning.Patterns {
			lines = append(lines, "Learned pattern: "+pattern)
		}
	}
	return strings.Join(lines, "\n")
}

func joinSections(sections ...string) string {
	var kept []string
	for _, s := range sections {
		if strings.TrimSpace(s) != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, "\n\n")
}
