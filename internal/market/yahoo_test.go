package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stockwatch/internal/errors"
	"stockwatch/internal/resilience"
)

const sparkListBody = `{"spark":{"result":[
 {"symbol":"AAPL","response":[{"timestamp":[1,2,3,4],"indicators":{"quote":[{"close":[180.1,182.5,null,185.25]}]}}]},
 {"symbol":"MSFT","response":[{"timestamp":[1,2],"indicators":{"quote":[{"close":[410.0,405.5]}]}}]},
 {"symbol":"NEWCO","response":[{"timestamp":[1],"indicators":{"quote":[{"close":[12.0]}]}}]}
],"error":null}}`

const sparkMapBody = `{
 "AAPL":{"symbol":"AAPL","timestamp":[1,2,3,4],"close":[180.1,182.5,null,185.25]},
 "MSFT":{"symbol":"MSFT","timestamp":[1,2],"close":[410.0,405.5]},
 "NEWCO":{"symbol":"NEWCO","timestamp":[1],"close":[12.0]}
}`

const chartBody = `{"chart":{"result":[{"timestamp":[1700000000,1700086400,1700172800],
 "indicators":{"quote":[{"close":[101.234,null,103.5]}]}}],"error":null}}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *YahooClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewYahooClient(YahooConfig{
		BaseURL:       srv.URL,
		Timeout:       5 * time.Second,
		RetryAttempts: 3,
	}, nil, zerolog.Nop())
	c.retry.InitialDelay = time.Millisecond
	c.retry.MaxDelay = time.Millisecond
	return c
}

func TestDecodeSpark_BothShapesAgree(t *testing.T) {
	fromList, err := decodeSpark([]byte(sparkListBody))
	if err != nil {
		t.Fatalf("decodeSpark(list) error = %v", err)
	}
	fromMap, err := decodeSpark([]byte(sparkMapBody))
	if err != nil {
		t.Fatalf("decodeSpark(map) error = %v", err)
	}

	if !reflect.DeepEqual(fromList, fromMap) {
		t.Errorf("list shape = %+v, map shape = %+v", fromList, fromMap)
	}
	if len(fromList) != 2 {
		t.Fatalf("len = %d, want 2 (single-close symbol dropped)", len(fromList))
	}

	aapl := fromList["AAPL"]
	if aapl.Last != 185.25 || aapl.Previous != 182.5 {
		t.Errorf("AAPL = %+v, want last 185.25 previous 182.5", aapl)
	}
}

func TestFetchCloses_SingleBatchedCall(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/v7/finance/spark" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbols"); got != "AAPL,MSFT,NEWCO" {
			t.Errorf("symbols = %q", got)
		}
		if r.URL.Query().Get("range") != "5d" || r.URL.Query().Get("interval") != "1d" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		w.Write([]byte(sparkListBody))
	})

	got, err := c.FetchCloses(context.Background(), []string{"aapl", "MSFT", "NEWCO", "AAPL"})
	if err != nil {
		t.Fatalf("FetchCloses() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("upstream calls = %d, want 1", calls)
	}
	if _, ok := got["NEWCO"]; ok {
		t.Error("NEWCO should be absent with a single close")
	}
	if got["MSFT"].Previous != 410.0 {
		t.Errorf("MSFT = %+v", got["MSFT"])
	}
}

func TestFetchCloses_ChunksAboveProviderLimit(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"spark":{"result":[]}}`))
	})
	c.maxBatch = 2

	if _, err := c.FetchCloses(context.Background(), []string{"A", "B", "C", "D", "E"}); err != nil {
		t.Fatalf("FetchCloses() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("upstream calls = %d, want 3", calls)
	}
}

func TestFetchCloses_RetriesServerErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(sparkMapBody))
	})

	got, err := c.FetchCloses(context.Background(), []string{"AAPL"})
	if err != nil {
		t.Fatalf("FetchCloses() error = %v", err)
	}
	if calls != 3 || len(got) != 2 {
		t.Errorf("calls = %d, len = %d", calls, len(got))
	}
}

func TestFetchCloses_UpstreamFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	})

	_, err := c.FetchCloses(context.Background(), []string{"AAPL"})
	if !errors.IsUpstream(err) {
		t.Fatalf("FetchCloses() error = %v, want upstream error", err)
	}
	var pe *errors.ProviderError
	if !errors.As(err, &pe) || pe.Status != http.StatusForbidden {
		t.Errorf("ProviderError = %+v", pe)
	}
}

func TestHistory(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v8/finance/chart/AAPL" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("range") != "1mo" || r.URL.Query().Get("interval") != "1d" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		w.Write([]byte(chartBody))
	})

	bars, err := c.History(context.Background(), "aapl", "1mo", "1d")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("len = %d, want 2", len(bars))
	}
	if bars[0].Close != 101.23 || bars[1].Close != 103.5 {
		t.Errorf("bars = %+v", bars)
	}
	if !bars[0].Date.Before(bars[1].Date) {
		t.Error("bars not in ascending order")
	}
}

func TestHistory_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
	})

	_, err := c.History(context.Background(), "ZZZZ", "1mo", "1d")
	if !errors.IsNotFound(err) {
		t.Errorf("History() error = %v, want ErrNotFound", err)
	}
}

func TestHistory_InvalidParams(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream should not be called")
	})

	if _, err := c.History(context.Background(), "AAPL", "7w", "1d"); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("bad period error = %v", err)
	}
	if _, err := c.History(context.Background(), "AAPL", "1y", "2m"); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("bad interval error = %v", err)
	}
}

func TestFetchCloses_OpenCircuitSkipsUpstream(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	breaker := resilience.NewCircuitBreaker("yahoo", resilience.CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Hour})
	c := NewYahooClient(YahooConfig{BaseURL: srv.URL, Timeout: time.Second, RetryAttempts: 1}, breaker, zerolog.Nop())

	_, _ = c.FetchCloses(context.Background(), []string{"AAPL"})
	_, err := c.FetchCloses(context.Background(), []string{"AAPL"})
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("error = %v, want ErrCircuitOpen", err)
	}
	if calls != 1 {
		t.Errorf("upstream calls = %d, want 1", calls)
	}
	if !strings.Contains(err.Error(), "yahoo") {
		t.Errorf("error %q should name the provider", err)
	}
}
