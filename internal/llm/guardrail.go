package llm

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"stockwatch/internal/models"
)

// Topic is a subject the summarizer must not engage with.
type Topic struct {
	Name       string   `yaml:"name"`
	Definition string   `yaml:"definition"`
	Examples   []string `yaml:"examples"`
}

// Policy describes what the guardrail blocks and what it says instead.
type Policy struct {
	Name                  string   `yaml:"name"`
	DeniedTopics          []Topic  `yaml:"denied_topics"`
	BlockedPhrases        []string `yaml:"blocked_phrases"`
	BlockedInputMessage   string   `yaml:"blocked_input_message"`
	BlockedOutputsMessage string   `yaml:"blocked_outputs_message"`
	Disclaimer            string   `yaml:"disclaimer"`
}

// DefaultPolicy returns the built-in no-investment-advice policy.
func DefaultPolicy() Policy {
	return Policy{
		Name: "stock-news-no-advice",
		DeniedTopics: []Topic{
			{
				Name:       "Investment Advice",
				Definition: "Providing personalized advice, recommendations, or guidance about managing financial assets, investments, stocks, or achieving financial objectives.",
				Examples: []string{
					"Should I buy AAPL stock?",
					"Is TSLA a good investment?",
					"What stocks should I buy?",
					"Sell my portfolio?",
					"Buy/sell/hold recommendation",
					"Allocate my 401k to tech stocks",
					"Price target for NVDA",
					"Strong buy rating",
				},
			},
			{
				Name:       "Trading Recommendations",
				Definition: "Any guidance on buying, selling, or trading specific securities or timing the market.",
				Examples: []string{
					"When should I sell my shares?",
					"Time to buy the dip?",
					"Portfolio allocation advice",
					"Day trading strategy for SPY",
				},
			},
		},
		BlockedPhrases: []string{
			"buy this stock",
			"sell now",
			"strong buy",
			"portfolio advice",
			"investment recommendation",
		},
		BlockedInputMessage:   "I can summarize news but cannot provide investment advice. Ask about factual news content only.",
		BlockedOutputsMessage: "Summary filtered for compliance: no investment advice allowed. This is informational only.",
		Disclaimer:            "This summary is for informational purposes only and is not investment advice.",
	}
}

// LoadPolicy reads a YAML policy file. Fields missing from the file keep
// their built-in defaults.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("reading guardrail policy: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parsing guardrail policy %s: %w", path, err)
	}
	return p, nil
}

// Guardrail filters summarizer input and output against a Policy.
type Guardrail struct {
	policy  Policy
	phrases []string
	topics  []string
}

// NewGuardrail compiles a policy for matching.
func NewGuardrail(p Policy) *Guardrail {
	g := &Guardrail{policy: p}
	for _, ph := range p.BlockedPhrases {
		if ph = normalize(ph); ph != "" {
			g.phrases = append(g.phrases, ph)
		}
	}
	for _, t := range p.DeniedTopics {
		for _, ex := range t.Examples {
			if ex = normalize(ex); ex != "" {
				g.topics = append(g.topics, ex)
			}
		}
	}
	return g
}

// Policy returns the policy in force.
func (g *Guardrail) Policy() Policy {
	return g.policy
}

// FilterArticles drops articles whose text contains a blocked phrase.
func (g *Guardrail) FilterArticles(articles []models.Article) (kept []models.Article, dropped int) {
	kept = make([]models.Article, 0, len(articles))
	for _, a := range articles {
		if _, hit := g.match(a.Headline+" "+a.Summary, g.phrases); hit {
			dropped++
			continue
		}
		kept = append(kept, a)
	}
	return kept, dropped
}

// CheckOutput reports the first blocked phrase or denied-topic example in text.
func (g *Guardrail) CheckOutput(text string) (string, bool) {
	if m, hit := g.match(text, g.phrases); hit {
		return m, true
	}
	return g.match(text, g.topics)
}

// DenyPrompt lists the denied topics for the model's system prompt.
func (g *Guardrail) DenyPrompt() string {
	var b strings.Builder
	for _, t := range g.policy.DeniedTopics {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Definition)
	}
	return b.String()
}

func (g *Guardrail) match(text string, needles []string) (string, bool) {
	haystack := normalize(text)
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return n, true
		}
	}
	return "", false
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
