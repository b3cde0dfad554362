package respondernode

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
)

// maxMessageRunes caps the sanitized inbound message; anything longer is
// truncated, not rejected.
const maxMessageRunes = 2000

var validChannels = map[contractx.Channel]struct{}{
	contractx.ChannelWhatsApp:  {},
	contractx.ChannelInstagram: {},
	contractx.ChannelWeb:       {},
	contractx.ChannelVoice:     {},
}

// Initialize validates the request and sanitizes the inbound message. It is
// the only node allowed to fail on bad input.
func Initialize(in contractx.GraphInput, now func() time.Time) (*GraphState, error) {
	if strings.TrimSpace(in.TenantID) == "" {
		return nil, fmt.Errorf("%w: tenant id is required", contractx.ErrValidation)
	}
	if _, ok := validChannels[in.Channel]; !ok {
		return nil, fmt.Errorf("%w: unknown channel %q", contractx.ErrValidation, in.Channel)
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return nil, fmt.Errorf("%w: resolved prompt is required", contractx.ErrValidation)
	}

	sanitized := SanitizeMessage(in.Message)
	if sanitized == "" {
		return nil, fmt.Errorf("%w: message is empty after sanitization", contractx.ErrValidation)
	}

	return &GraphState{
		In:        in,
		Sanitized: sanitized,
		StartedAt: now(),
	}, nil
}

// SanitizeMessage strips control characters, collapses runs of whitespace
// and truncates to the per-message rune cap.
func SanitizeMessage(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(' ')
		case unicode.IsControl(r):
			// drop
		default:
			b.WriteRune(r)
		}
	}
	collapsed := strings.Join(strings.Fields(b.String()), " ")

	runes := []rune(collapsed)
	if len(runes) > maxMessageRunes {
		runes = runes[:maxMessageRunes]
	}
	return strings.TrimSpace(string(runes))
}
