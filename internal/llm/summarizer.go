package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stockwatch/internal/errors"
	"stockwatch/internal/logging"
	"stockwatch/internal/models"
	"stockwatch/internal/resilience"
)

// maxPromptArticles bounds how many articles go into one prompt.
const maxPromptArticles = 10

const systemPromptTemplate = `You are a financial news summarizer. Summarize the news articles you are given in a neutral, factual tone.

Rules:
1. Report only what the articles say: numbers, names, dates, percentages
2. Never give investment advice, price targets, ratings, or buy/sell/hold opinions
3. Never tell the reader what to do with their money
4. Keep the summary under 120 words

Topics you must not engage with:
%s
Output as JSON only, no other text:
{
  "summary": "the summary",
  "sentiment": "one of: positive, neutral, negative"
}`

// Summarizer produces a guarded summary for a set of articles.
type Summarizer interface {
	Summarize(ctx context.Context, subject string, articles []models.Article) (*models.NewsSummary, error)
}

// Service implements Summarizer with a model, a guardrail and a cache.
type Service struct {
	completer Completer
	guard     *Guardrail
	cache     SummaryCache
	breaker   *resilience.CircuitBreaker
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService creates a summarizer. A nil cache disables caching.
func NewService(completer Completer, guard *Guardrail, cache SummaryCache, breaker *resilience.CircuitBreaker, logger zerolog.Logger) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	if guard == nil {
		guard = NewGuardrail(DefaultPolicy())
	}
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("llm", resilience.DefaultCircuitBreakerConfig())
	}
	return &Service{
		completer: completer,
		guard:     guard,
		cache:     cache,
		breaker:   breaker,
		logger:    logger.With().Str("component", "summarizer").Logger(),
		now:       time.Now,
	}
}

// Summarize returns a cached summary for subject or asks the model for one.
// Articles carrying blocked phrases never reach the model; if none remain the
// result is the policy's blocked-input message.
func (s *Service) Summarize(ctx context.Context, subject string, articles []models.Article) (*models.NewsSummary, error) {
	logger := logging.WithSymbol(s.logger, subject)

	if cached, ok, err := s.cache.Get(ctx, subject); err != nil {
		logger.Warn().Err(err).Msg("Summary cache read failed")
	} else if ok {
		logger.Debug().Msg("Summary cache hit")
		return cached, nil
	}

	if len(articles) == 0 {
		return nil, fmt.Errorf("no news for %s: %w", subject, errors.ErrNotFound)
	}

	policy := s.guard.Policy()
	kept, dropped := s.guard.FilterArticles(articles)
	if dropped > 0 {
		logger.Info().Int("dropped", dropped).Msg("Guardrail dropped articles from prompt")
	}
	if len(kept) == 0 {
		logger.Info().Err(errors.ErrGuardrailBlocked).Msg("All articles blocked by guardrail")
		return s.blocked(subject, policy.BlockedInputMessage, nil), nil
	}
	if len(kept) > maxPromptArticles {
		kept = kept[:maxPromptArticles]
	}

	systemPrompt := fmt.Sprintf(systemPromptTemplate, s.guard.DenyPrompt())
	userPrompt := buildUserPrompt(subject, kept)

	start := time.Now()
	raw, err := resilience.ExecuteWithResult(s.breaker, ctx, func(ctx context.Context) (string, error) {
		return s.completer.Complete(ctx, systemPrompt, userPrompt)
	})
	logging.LogAPICall(logger, s.completer.Provider(), "summarize", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Summary   string `json:"summary"`
		Sentiment string `json:"sentiment"`
	}
	content := cleanJSONResponse(raw)
	if err := json.Unmarshal([]byte(content), &parsed); err != nil || strings.TrimSpace(parsed.Summary) == "" {
		if err == nil {
			err = fmt.Errorf("empty summary")
		}
		return nil, errors.NewProviderError(s.completer.Provider(), "summarize", 0, fmt.Errorf("failed to parse response: %w", err))
	}

	var summary *models.NewsSummary
	if phrase, hit := s.guard.CheckOutput(parsed.Summary); hit {
		logger.Warn().Str("phrase", phrase).Msg("Guardrail replaced model output")
		summary = s.blocked(subject, policy.BlockedOutputsMessage, kept)
	} else {
		summary = &models.NewsSummary{
			Subject:     subject,
			Summary:     strings.TrimSpace(parsed.Summary),
			Sentiment:   models.ParseSentiment(strings.ToLower(strings.TrimSpace(parsed.Sentiment))),
			Sources:     sources(kept),
			Disclaimer:  policy.Disclaimer,
			Model:       s.completer.Model(),
			GeneratedAt: s.now().UTC(),
		}
	}

	if err := s.cache.Set(ctx, subject, summary); err != nil {
		logger.Warn().Err(err).Msg("Summary cache write failed")
	}
	return summary, nil
}

func (s *Service) blocked(subject, message string, used []models.Article) *models.NewsSummary {
	return &models.NewsSummary{
		Subject:     subject,
		Summary:     message,
		Sentiment:   models.SentimentNeutral,
		Sources:     sources(used),
		Disclaimer:  s.guard.Policy().Disclaimer,
		Model:       s.completer.Model(),
		Blocked:     true,
		GeneratedAt: s.now().UTC(),
	}
}

func buildUserPrompt(subject string, articles []models.Article) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the following news about %s.\n\n", subject)
	for i, a := range articles {
		fmt.Fprintf(&b, "Article %d\nHeadline: %s\nSummary: %s\n", i+1, a.Headline, a.Summary)
		if a.Source != "" {
			fmt.Fprintf(&b, "Source: %s\n", a.Source)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func sources(articles []models.Article) []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, a := range articles {
		if a.URL == "" || seen[a.URL] {
			continue
		}
		seen[a.URL] = true
		out = append(out, a.URL)
	}
	return out
}
