package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/assert/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"stockwatch/internal/errors"
	"stockwatch/internal/models"
)

type fakeCompleter struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	reply   string
	err     error
}

func (f *fakeCompleter) Complete(_ context.Context, _, userPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, userPrompt)
	return f.reply, f.err
}

func (f *fakeCompleter) Provider() string { return "fake" }
func (f *fakeCompleter) Model() string    { return "fake-model" }

func articles() []models.Article {
	return []models.Article{
		{Headline: "Apple beats estimates", Summary: "Revenue rose 8% year over year.", URL: "https://example.com/a", Source: "Reuters"},
		{Headline: "Analyst: strong buy", Summary: "Buy this stock before earnings.", URL: "https://example.com/b", Source: "Blog"},
		{Headline: "Apple opens new campus", Summary: "The site employs 3,000 people.", URL: "https://example.com/c", Source: "AP"},
	}
}

func TestCleanJSONResponse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain JSON unchanged", `{"summary":"x"}`, `{"summary":"x"}`},
		{"strips json fenced block", "```json\n{\"summary\":\"x\"}\n```", `{"summary":"x"}`},
		{"strips plain fenced block", "```\n{\"summary\":\"x\"}\n```", `{"summary":"x"}`},
		{"drops surrounding prose", "Here you go: {\"summary\":\"x\"} Thanks!", `{"summary":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanJSONResponse(tt.input))
		})
	}
}

func TestSummarize_FiltersBlockedInput(t *testing.T) {
	fc := &fakeCompleter{reply: "```json\n{\"summary\":\"Apple reported higher revenue and opened a campus.\",\"sentiment\":\"Positive\"}\n```"}
	svc := NewService(fc, nil, nil, nil, zerolog.Nop())

	got, err := svc.Summarize(context.Background(), "AAPL", articles())

	assert.Equal(t, nil, err)
	assert.Equal(t, 1, fc.calls)
	assert.Equal(t, false, strings.Contains(strings.ToLower(fc.prompts[0]), "buy this stock"))
	assert.Equal(t, false, got.Blocked)
	assert.Equal(t, models.SentimentPositive, got.Sentiment)
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/c"}, got.Sources)
	assert.Equal(t, DefaultPolicy().Disclaimer, got.Disclaimer)
	assert.Equal(t, "fake-model", got.Model)
}

func TestSummarize_AllInputBlocked(t *testing.T) {
	fc := &fakeCompleter{}
	svc := NewService(fc, nil, nil, nil, zerolog.Nop())

	got, err := svc.Summarize(context.Background(), "TSLA", []models.Article{
		{Headline: "Sell now!", Summary: "Get out while you can."},
	})

	assert.Equal(t, nil, err)
	assert.Equal(t, 0, fc.calls)
	assert.Equal(t, true, got.Blocked)
	assert.Equal(t, DefaultPolicy().BlockedInputMessage, got.Summary)
}

func TestSummarize_BlockedOutputReplaced(t *testing.T) {
	fc := &fakeCompleter{reply: `{"summary":"Revenue rose. Analysts call it a Strong Buy.","sentiment":"positive"}`}
	svc := NewService(fc, nil, nil, nil, zerolog.Nop())

	got, err := svc.Summarize(context.Background(), "AAPL", articles()[:1])

	assert.Equal(t, nil, err)
	assert.Equal(t, true, got.Blocked)
	assert.Equal(t, DefaultPolicy().BlockedOutputsMessage, got.Summary)
	assert.Equal(t, models.SentimentNeutral, got.Sentiment)
}

func TestSummarize_NoArticles(t *testing.T) {
	svc := NewService(&fakeCompleter{}, nil, nil, nil, zerolog.Nop())

	_, err := svc.Summarize(context.Background(), "AAPL", nil)
	assert.Equal(t, true, errors.IsNotFound(err))
}

func TestSummarize_UnparseableReply(t *testing.T) {
	svc := NewService(&fakeCompleter{reply: "I cannot help with that."}, nil, nil, nil, zerolog.Nop())

	_, err := svc.Summarize(context.Background(), "AAPL", articles()[:1])
	assert.Equal(t, true, errors.IsUpstream(err))
}

func TestSummarize_CacheHitSkipsModel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	fc := &fakeCompleter{reply: `{"summary":"Markets were mixed.","sentiment":"neutral"}`}
	svc := NewService(fc, nil, NewRedisCache(client, time.Minute), nil, zerolog.Nop())

	first, err := svc.Summarize(context.Background(), "market", articles()[:1])
	assert.Equal(t, nil, err)
	second, err := svc.Summarize(context.Background(), "market", articles()[:1])
	assert.Equal(t, nil, err)

	assert.Equal(t, 1, fc.calls)
	assert.Equal(t, first.Summary, second.Summary)
	assert.Equal(t, true, mr.Exists("stockwatch:summary:MARKET"))

	mr.FastForward(2 * time.Minute)
	_, err = svc.Summarize(context.Background(), "market", articles()[:1])
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, fc.calls)
}

func TestLoadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guardrail.yaml")
	data := `
blocked_phrases:
  - "to the moon"
disclaimer: "Not advice."
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadPolicy(path)
	assert.Equal(t, nil, err)
	assert.Equal(t, []string{"to the moon"}, p.BlockedPhrases)
	assert.Equal(t, "Not advice.", p.Disclaimer)
	assert.Equal(t, DefaultPolicy().BlockedInputMessage, p.BlockedInputMessage)

	g := NewGuardrail(p)
	_, hit := g.CheckOutput("This stock is going TO THE   MOON")
	assert.Equal(t, true, hit)
	_, hit = g.CheckOutput("Price target for NVDA raised")
	assert.Equal(t, true, hit)

	_, err = LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.NotEqual(t, nil, err)
}

func TestOpenAIClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.Equal(t, 2, len(req.Messages))
		assert.Equal(t, "system", req.Messages[0].Role)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"{\"summary\":\"ok\",\"sentiment\":\"neutral\"}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(ClientConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	got, err := c.Complete(context.Background(), "system", "user")

	assert.Equal(t, nil, err)
	assert.Equal(t, `{"summary":"ok","sentiment":"neutral"}`, got)
}

func TestOpenAIClient_ErrorIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(ClientConfig{APIKey: "sk-bad", BaseURL: srv.URL + "/v1"})
	_, err := c.Complete(context.Background(), "system", "user")

	assert.Equal(t, true, errors.IsUpstream(err))
}

func TestNewCompleter(t *testing.T) {
	_, err := NewCompleter(ClientConfig{Provider: ProviderOpenAI})
	assert.Equal(t, true, errors.Is(err, errors.ErrNotConfigured))

	_, err = NewCompleter(ClientConfig{Provider: "bedrock", APIKey: "x"})
	assert.Equal(t, true, errors.Is(err, errors.ErrConfigInvalid))

	c, err := NewCompleter(ClientConfig{Provider: ProviderAnthropic, APIKey: "x"})
	assert.Equal(t, nil, err)
	assert.Equal(t, DefaultAnthropicModel, c.Model())
}
