package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	responderx "github.com/fernandofuc/tistis-platform-sub010/agent/agents/responder"
	breakerx "github.com/fernandofuc/tistis-platform-sub010/agent/breaker"
	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
	promptcachex "github.com/fernandofuc/tistis-platform-sub010/agent/promptcache"
	snapshotx "github.com/fernandofuc/tistis-platform-sub010/agent/snapshot"
	"github.com/rs/zerolog/log"
)

const historyPreviewLimit = 5

// ResponseGenerator is the graph-backed primary path.
type ResponseGenerator interface {
	Generate(ctx context.Context, tenantID, message string, opts responderx.Options) (contractx.GraphResult, error)
}

// FallbackResponder answers without the LLM pipeline. It never fails.
type FallbackResponder interface {
	Generate(ctx context.Context, tenantID, message string, channel contractx.Channel) contractx.GraphResult
}

type Handlers struct {
	primary   ResponseGenerator
	fallback  FallbackResponder
	breaker   *breakerx.Breaker
	cache     *promptcachex.Cache
	snapshots contractx.SnapshotSource
}

func NewHandlers(
	primary ResponseGenerator,
	fallback FallbackResponder,
	breaker *breakerx.Breaker,
	cache *promptcachex.Cache,
	snapshots contractx.SnapshotSource,
) (*Handlers, error) {
	if primary == nil || fallback == nil || breaker == nil {
		return nil, errors.New("primary, fallback and breaker are required")
	}
	if cache == nil || snapshots == nil {
		return nil, errors.New("prompt cache and snapshot source are required")
	}
	return &Handlers{
		primary:   primary,
		fallback:  fallback,
		breaker:   breaker,
		cache:     cache,
		snapshots: snapshots,
	}, nil
}

type generateRequest struct {
	TenantID            string            `json:"tenantId"`
	Message             string            `json:"message"`
	Channel             contractx.Channel `json:"channel,omitempty"`
	ProfileType         string            `json:"profileType,omitempty"`
	ConversationID      string            `json:"conversationId,omitempty"`
	LeadID              string            `json:"leadId,omitempty"`
	IsPreview           bool              `json:"isPreview,omitempty"`
	ConversationHistory []contractx.Turn  `json:"conversationHistory,omitempty"`
}

type generateResponse struct {
	Success          bool               `json:"success"`
	Response         string             `json:"response"`
	Intent           contractx.Intent   `json:"intent"`
	Signals          []contractx.Signal `json:"signals,omitempty"`
	AgentsUsed       []string           `json:"agentsUsed,omitempty"`
	ToolsInvoked     []string           `json:"toolsInvoked,omitempty"`
	ProcessingTimeMs int64              `json:"processingTimeMs"`
	TokensUsed       int                `json:"tokensUsed"`
	Escalated        bool               `json:"escalated"`
	EscalationReason string             `json:"escalationReason,omitempty"`
}

func (h *Handlers) GenerateResponse(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.TenantID) == "" {
		writeError(w, http.StatusBadRequest, "tenantId is required")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	opts := responderx.Options{
		Channel:             req.Channel,
		ProfileType:         req.ProfileType,
		ConversationHistory: req.ConversationHistory,
		IsPreview:           req.IsPreview,
		ConversationID:      req.ConversationID,
		LeadID:              req.LeadID,
	}

	var (
		validationErr error
		usedFallback  bool
	)
	res := h.breaker.Do(r.Context(),
		func(ctx context.Context) (contractx.GraphResult, error) {
			out, err := h.primary.Generate(ctx, req.TenantID, req.Message, opts)
			if errors.Is(err, contractx.ErrValidation) {
				// Caller mistakes are not pipeline failures; surface them
				// without counting against the breaker.
				validationErr = err
				return out, nil
			}
			return out, err
		},
		func(ctx context.Context) contractx.GraphResult {
			usedFallback = true
			channel := req.Channel
			if channel == "" {
				channel = contractx.ChannelWeb
			}
			return h.fallback.Generate(ctx, req.TenantID, req.Message, channel)
		},
	)
	if validationErr != nil {
		writeError(w, http.StatusBadRequest, validationErr.Error())
		return
	}

	agents := []string{"router", "specialist"}
	if usedFallback {
		agents = []string{"legacy"}
	}
	writeJSON(w, http.StatusOK, generateResponse{
		Success:          true,
		Response:         res.Response,
		Intent:           res.Intent,
		Signals:          res.Signals,
		AgentsUsed:       agents,
		ToolsInvoked:     res.ToolsInvoked,
		ProcessingTimeMs: res.LatencyMS,
		TokensUsed:       res.TokensUsed,
		Escalated:        res.Escalated,
		EscalationReason: res.EscalationReason,
	})
}

type invalidateRequest struct {
	TenantID string            `json:"tenantId"`
	Channel  contractx.Channel `json:"channel,omitempty"`
}

type invalidateResponse struct {
	Invalidated bool `json:"invalidated"`
	Archived    int  `json:"archived"`
}

func (h *Handlers) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	archived, err := h.cache.Invalidate(r.Context(), req.TenantID, req.Channel)
	if err != nil {
		if errors.Is(err, contractx.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error().Err(err).Str("tenant_id", req.TenantID).Msg("cache invalidation failed")
		writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	writeJSON(w, http.StatusOK, invalidateResponse{Invalidated: true, Archived: archived})
}

type cacheStatusResponse struct {
	promptcachex.Status
	History []contractx.GenerationHistoryEntry `json:"history,omitempty"`
}

func (h *Handlers) CacheStatus(w http.ResponseWriter, r *http.Request) {
	tenantID := strings.TrimSpace(r.URL.Query().Get("tenantId"))
	channel := contractx.Channel(strings.TrimSpace(r.URL.Query().Get("channel")))
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "tenantId is required")
		return
	}
	if channel == "" {
		channel = contractx.ChannelWeb
	}

	bc, err := h.snapshots.Snapshot(r.Context(), tenantID)
	if err != nil {
		writeError(w, http.StatusNotFound, "tenant snapshot not found")
		return
	}
	sourceHash, err := snapshotx.Hash(bc)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("snapshot hash failed")
		writeError(w, http.StatusInternalServerError, "snapshot hash failed")
		return
	}

	status, err := h.cache.Status(r.Context(), tenantID, channel, sourceHash)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("cache status lookup failed")
		writeError(w, http.StatusInternalServerError, "cache status lookup failed")
		return
	}

	history, err := h.cache.History(r.Context(), tenantID, channel, historyPreviewLimit)
	if err != nil {
		log.Warn().Err(err).Str("tenant_id", tenantID).Msg("generation history lookup failed")
	}

	writeJSON(w, http.StatusOK, cacheStatusResponse{Status: status, History: history})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write response failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
