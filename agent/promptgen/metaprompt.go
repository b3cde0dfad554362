package promptgen

import (
	"fmt"
	"strings"

	snapshotx "github.com/fernandofuc/tistis-platform-sub010/agent/snapshot"
)

// buildMetaPrompt assembles the structured instruction given to the
// generative backend when synthesizing a tenant's conversational prompt.
// Every labeled section is emitted even when empty so the backend sees the
// full shape of the business.
func buildMetaPrompt(bc *snapshotx.BusinessContext) string {
	var b strings.Builder

	b.WriteString("You are writing the system prompt for an AI customer-service agent.\n")
	b.WriteString("Produce a single prompt in the business's language that makes the agent\n")
	b.WriteString("answer as a knowledgeable employee. Use only the facts below.\n\n")

	b.WriteString("## IDENTITY\n")
	fmt.Fprintf(&b, "Business: %s\n", bc.Name)
	if bc.Vertical != "" {
		fmt.Fprintf(&b, "Vertical: %s\n", bc.Vertical)
	}
	if bc.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s\n", bc.Tone)
	}
	if bc.Locale != "" {
		fmt.Fprintf(&b, "Locale: %s\n", bc.Locale)
	}

	b.WriteString("\n## POLICIES\n")
	for _, p := range bc.Policies {
		fmt.Fprintf(&b, "- %s: %s\n", p.Topic, p.Text)
	}

	b.WriteString("\n## CATALOG\n")
	for _, s := range bc.Services {
		fmt.Fprintf(&b, "- %s", s.Name)
		if s.Price > 0 {
			fmt.Fprintf(&b, " ($%.2f)", s.Price)
		}
		if s.DurationMin > 0 {
			fmt.Fprintf(&b, " [%d min]", s.DurationMin)
		}
		if s.Description != "" {
			fmt.Fprintf(&b, ": %s", s.Description)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n## BRANCHES\n")
	for _, br := range bc.Branches {
		fmt.Fprintf(&b, "- %s, %s (%s)\n", br.Name, br.Address, br.Hours)
	}

	b.WriteString("\n## STAFF\n")
	for _, st := range bc.Staff {
		fmt.Fprintf(&b, "- %s (%s)\n", st.Name, st.Role)
	}

	b.WriteString("\n## FAQS\n")
	for _, f := range bc.FAQs {
		fmt.Fprintf(&b, "Q: %s\nA: %s\n", f.Question, f.Answer)
	}

	b.WriteString("\n## TEMPLATES\n")
	for _, tm := range bc.Templates {
		fmt.Fprintf(&b, "- %s: %s\n", tm.Name, tm.Content)
	}

	b.WriteString("\n## COMPETITOR STRATEGY\n")
	if cs := bc.CompetitorStrategy; cs != nil {
		if cs.Positioning != "" {
			fmt.Fprintf(&b, "Positioning: %s\n", cs.Positioning)
		}
		for _, h := range cs.Highlights {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}

	b.WriteString("\n## CAPABILITIES\n")
	for _, c := range bc.Capabilities {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	if bc.HasCapability("appointments") {
		b.WriteString("The agent can book appointments directly during the conversation.\n")
	} else {
		b.WriteString("The agent cannot book appointments; it collects the customer's details and promises a follow-up.\n")
	}

	b.WriteString("\n## SCORING\n")
	for _, r := range bc.ScoringRules {
		fmt.Fprintf(&b, "- %s: %.2f\n", r.Signal, r.Weight)
	}

	return b.String()
}

// buildSystemPrompt is the short invariant wrapper stored alongside the
// generated prompt.
func buildSystemPrompt(bc *snapshotx.BusinessContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the virtual assistant of %s.", bc.Name)
	if bc.Tone != "" {
		fmt.Fprintf(&b, " Keep a %s tone.", bc.Tone)
	}
	b.WriteString(" Never invent prices, schedules or medical claims; when unsure, offer to connect a human.")
	return b.String()
}
