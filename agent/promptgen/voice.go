package promptgen

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
	snapshotx "github.com/fernandofuc/tistis-platform-sub010/agent/snapshot"
)

//go:embed template/voice.txt
var voiceTemplateRaw string

// voiceMarkers are the required section headers of a voice prompt, in the
// only order the template allows. The backend fills enrichment slots; it
// never gets to reorder or rename sections.
var voiceMarkers = []string{
	"# GREETING",
	"# PERSONA",
	"# TASK",
	"# CAPABILITIES",
	"# ESCALATION",
	"# STYLE",
}

const voiceEnrichmentAttempts = 2

func (g *Generator) generateVoicePrompt(ctx context.Context, bc *snapshotx.BusinessContext) (string, error) {
	greeting := strings.TrimSpace(bc.Greeting)
	if greeting == "" {
		greeting = fmt.Sprintf("Thank you for calling %s, how can I help you today?", bc.Name)
	}
	toneLine := "Keep a friendly, professional tone."
	if bc.Tone != "" {
		toneLine = fmt.Sprintf("Keep a %s tone.", bc.Tone)
	}

	rendered := strings.TrimSpace(voiceTemplateRaw)
	rendered = strings.ReplaceAll(rendered, "{{greeting}}", greeting)
	rendered = strings.ReplaceAll(rendered, "{{business_name}}", bc.Name)
	rendered = strings.ReplaceAll(rendered, "{{tone_line}}", toneLine)

	faqs, err := g.fillEnrichmentSlot(ctx, faqSlotPrompt(bc))
	if err != nil {
		return "", err
	}
	rendered = strings.ReplaceAll(rendered, "{{faq_highlights}}", faqs)

	promos, err := g.fillEnrichmentSlot(ctx, promoSlotPrompt(bc))
	if err != nil {
		return "", err
	}
	rendered = strings.ReplaceAll(rendered, "{{promotions}}", promos)

	if err := checkVoiceStructure(rendered); err != nil {
		return "", fmt.Errorf("%w: %v", contractx.ErrGenerationFailed, err)
	}
	return rendered, nil
}

// fillEnrichmentSlot asks the backend for one slot's content and rejects any
// answer that tries to smuggle section markers into the template.
func (g *Generator) fillEnrichmentSlot(ctx context.Context, slotPrompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < voiceEnrichmentAttempts; attempt++ {
		out, err := g.synthesize(ctx, slotPrompt)
		if err != nil {
			return "", err
		}
		out = strings.TrimSpace(out)
		if violatesStructure(out) {
			lastErr = fmt.Errorf("enrichment content contains section markers")
			continue
		}
		return out, nil
	}
	return "", fmt.Errorf("%w: %v", contractx.ErrGenerationFailed, lastErr)
}

func violatesStructure(content string) bool {
	upper := strings.ToUpper(content)
	for _, marker := range voiceMarkers {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}

// checkVoiceStructure verifies every required marker is present exactly once
// and in template order.
func checkVoiceStructure(prompt string) error {
	prev := -1
	for _, marker := range voiceMarkers {
		idx := strings.Index(prompt, marker)
		if idx < 0 {
			return fmt.Errorf("missing section %q", marker)
		}
		if strings.Contains(prompt[idx+len(marker):], marker) {
			return fmt.Errorf("duplicated section %q", marker)
		}
		if idx <= prev {
			return fmt.Errorf("section %q out of order", marker)
		}
		prev = idx
	}
	return nil
}

func faqSlotPrompt(bc *snapshotx.BusinessContext) string {
	var b strings.Builder
	b.WriteString("Condense the following FAQs into at most three short, voice-friendly lines.\n")
	b.WriteString("Return plain lines only, no headers and no markdown.\n\n")
	for _, f := range bc.FAQs {
		fmt.Fprintf(&b, "Q: %s\nA: %s\n", f.Question, f.Answer)
	}
	return b.String()
}

func promoSlotPrompt(bc *snapshotx.BusinessContext) string {
	var b strings.Builder
	b.WriteString("Rewrite the current promotions as at most two short spoken lines.\n")
	b.WriteString("Return plain lines only, no headers and no markdown.\n\n")
	if strings.TrimSpace(bc.Promotions) == "" {
		b.WriteString("No promotions right now. Answer with: 'No current offers.'\n")
	} else {
		b.WriteString(bc.Promotions)
		b.WriteString("\n")
	}
	return b.String()
}
