package legacy

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
)

const handoffMessage = "Thanks for reaching out! A member of our team will get back to you shortly."

// minOverlap is the number of shared keywords required before an FAQ answer
// is trusted.
const minOverlap = 2

// Responder is the fallback path behind the circuit breaker: keyword
// matching over the tenant's FAQs, no models, no tools. It never returns an
// error; when it cannot answer it hands off to a human.
type Responder struct {
	snapshots contractx.SnapshotSource
	now       func() time.Time
}

func New(snapshots contractx.SnapshotSource) (*Responder, error) {
	if snapshots == nil {
		return nil, errors.New("snapshot source is required")
	}
	return &Responder{snapshots: snapshots, now: time.Now}, nil
}

func (r *Responder) Generate(ctx context.Context, tenantID, message string, channel contractx.Channel) contractx.GraphResult {
	start := r.now()

	bc, err := r.snapshots.Snapshot(ctx, tenantID)
	if err != nil {
		log.Warn().Err(err).Str("tenant_id", tenantID).Msg("legacy responder could not load snapshot")
		return r.handoff(start, "fallback")
	}

	queryTokens := tokenize(message)
	bestScore := 0
	bestAnswer := ""
	for _, faq := range bc.FAQs {
		score := overlap(queryTokens, tokenize(faq.Question))
		if score > bestScore {
			bestScore = score
			bestAnswer = faq.Answer
		}
	}

	if bestScore < minOverlap || strings.TrimSpace(bestAnswer) == "" {
		return r.handoff(start, "fallback")
	}

	return contractx.GraphResult{
		Response:  bestAnswer,
		Intent:    contractx.IntentDirectAnswer,
		LatencyMS: r.now().Sub(start).Milliseconds(),
	}
}

func (r *Responder) handoff(start time.Time, reason string) contractx.GraphResult {
	return contractx.GraphResult{
		Response:         handoffMessage,
		Intent:           contractx.IntentEscalation,
		LatencyMS:        r.now().Sub(start).Milliseconds(),
		Escalated:        true,
		EscalationReason: reason,
	}
}

// stopwords are skipped when scoring so overlap reflects content words.
var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "do": {}, "does": {},
	"you": {}, "your": {}, "i": {}, "my": {}, "to": {}, "of": {}, "in": {},
	"on": {}, "for": {}, "what": {}, "when": {}, "how": {}, "can": {},
}

func tokenize(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, field := range strings.Fields(strings.ToLower(s)) {
		word := strings.Trim(field, ".,!?:;\"'()")
		if len(word) < 2 {
			continue
		}
		if _, skip := stopwords[word]; skip {
			continue
		}
		tokens[word] = struct{}{}
	}
	return tokens
}

func overlap(a, b map[string]struct{}) int {
	n := 0
	for token := range a {
		if _, ok := b[token]; ok {
			n++
		}
	}
	return n
}
