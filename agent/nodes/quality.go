package respondernode

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
)

const maxResponseRunes = 1200

// forbiddenClaims are absolute commitments the assistant must never make on
// behalf of the business.
var forbiddenClaims = []string{
	"guarantee",
	"guaranteed",
	"i promise",
	"100% sure",
	"always works",
	"never fails",
	"risk-free",
}

// QualityCheck runs the deterministic output checks and records violations.
// It never fails the turn; the repair node decides what to do with the
// findings.
func QualityCheck(in *GraphState) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	in.QualityIssues = CheckResponse(in.Response)
	return in, nil
}

// CheckResponse returns the list of violations for a candidate response:
// forbidden absolute claims, length over the cap, or shouting in all caps.
func CheckResponse(response string) []string {
	var issues []string

	lower := strings.ToLower(response)
	for _, claim := range forbiddenClaims {
		if strings.Contains(lower, claim) {
			issues = append(issues, fmt.Sprintf("remove the absolute claim %q", claim))
		}
	}

	if n := len([]rune(response)); n > maxResponseRunes {
		issues = append(issues, fmt.Sprintf("shorten the response to at most %d characters (it has %d)", maxResponseRunes, n))
	}

	if isShouting(response) {
		issues = append(issues, "do not write in all capital letters")
	}

	return issues
}

// Repair gives the specialist exactly one pass to fix the flagged issues.
// The repaired text is accepted regardless of whether it fully complies;
// there is no second check. Repair failures keep the original response.
func Repair(ctx context.Context, in *GraphState, specialist contractx.Specialist) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if len(in.QualityIssues) == 0 || in.Repaired {
		return in, nil
	}
	in.Repaired = true

	resp, err := specialist.Run(ctx, contractx.SpecialistRequest{
		Message:      in.Sanitized,
		SystemPrompt: specialistSystemPrompt(in),
		History:      in.In.History,
		Observations: in.Observations,
		Feedback:     in.QualityIssues,
		ForceFinal:   true,
	})
	if err != nil {
		log.Warn().Err(err).
			Str("tenant_id", in.In.TenantID).
			Strs("issues", in.QualityIssues).
			Msg("repair pass failed, keeping original response")
		return in, nil
	}
	if message := strings.TrimSpace(resp.Message); message != "" {
		in.Response = message
	}
	return in, nil
}

func isShouting(s string) bool {
	var letters, upper int
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	return letters >= 12 && float64(upper)/float64(letters) > 0.7
}
