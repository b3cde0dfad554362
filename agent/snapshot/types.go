package snapshot

import "time"

// BusinessContext is the read-only aggregated view of a tenant's
// configuration, recomputed by the business-data subsystem on every
// configuration save. It is consumed for prompt generation and FAQ lookup
// and is never mutated here.
type BusinessContext struct {
	TenantID   string `json:"tenant_id"`
	Name       string `json:"name"`
	Vertical   string `json:"vertical,omitempty"`
	Tone       string `json:"tone,omitempty"`
	Greeting   string `json:"greeting,omitempty"`
	Locale     string `json:"locale,omitempty"`
	Promotions string `json:"promotions,omitempty"`

	Services           []Service            `json:"services,omitempty"`
	Branches           []Branch             `json:"branches,omitempty"`
	Staff              []StaffMember        `json:"staff,omitempty"`
	Policies           []Policy             `json:"policies,omitempty"`
	FAQs               []FAQ                `json:"faqs,omitempty"`
	Articles           []Article            `json:"articles,omitempty"`
	Templates          []MessageTemplate    `json:"templates,omitempty"`
	CompetitorStrategy *CompetitorStrategy  `json:"competitor_strategy,omitempty"`
	ScoringRules       []ScoringRule        `json:"scoring_rules,omitempty"`
	Capabilities       []string             `json:"capabilities,omitempty"`
	GeneratedAt        time.Time            `json:"generated_at"`
}

type Service struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price,omitempty"`
	DurationMin int     `json:"duration_min,omitempty"`
}

type Branch struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Hours   string `json:"hours,omitempty"`
}

type StaffMember struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"`
	BranchID string `json:"branch_id,omitempty"`
}

type Policy struct {
	ID    string `json:"id"`
	Topic string `json:"topic"`
	Text  string `json:"text"`
}

type FAQ struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type Article struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type MessageTemplate struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

type CompetitorStrategy struct {
	Positioning string   `json:"positioning,omitempty"`
	Highlights  []string `json:"highlights,omitempty"`
}

type ScoringRule struct {
	Signal string  `json:"signal"`
	Weight float64 `json:"weight"`
}

// HasCapability reports whether the tenant enabled the named capability.
func (b *BusinessContext) HasCapability(name string) bool {
	if b == nil {
		return false
	}
	for _, c := range b.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}
