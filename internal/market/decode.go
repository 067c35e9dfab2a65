package market

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"stockwatch/internal/errors"
	"stockwatch/internal/models"
)

type yahooError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type quoteIndicators struct {
	Quote []struct {
		Close []*float64 `json:"close"`
	} `json:"quote"`
}

// sparkListResponse is the spark.result[] shape.
type sparkListResponse struct {
	Spark *struct {
		Result []struct {
			Symbol   string `json:"symbol"`
			Response []struct {
				Timestamp  []int64         `json:"timestamp"`
				Indicators quoteIndicators `json:"indicators"`
			} `json:"response"`
		} `json:"result"`
		Error *yahooError `json:"error"`
	} `json:"spark"`
}

// sparkMapEntry is one value of the symbol-keyed shape.
type sparkMapEntry struct {
	Symbol    string     `json:"symbol"`
	Timestamp []int64    `json:"timestamp"`
	Close     []*float64 `json:"close"`
}

// yahooChartResponse for the Yahoo Finance chart endpoint
type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64         `json:"timestamp"`
			Indicators quoteIndicators `json:"indicators"`
		} `json:"result"`
		Error *yahooError `json:"error"`
	} `json:"chart"`
}

// decodeSpark accepts both spark response shapes and returns a snapshot for
// every symbol with at least two non-null closes.
func decodeSpark(body []byte) (map[string]models.PriceSnapshot, error) {
	var list sparkListResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("decoding spark response: %w", err)
	}

	out := make(map[string]models.PriceSnapshot)

	if list.Spark != nil {
		if list.Spark.Error != nil && len(list.Spark.Result) == 0 {
			return nil, fmt.Errorf("spark error %s: %s", list.Spark.Error.Code, list.Spark.Error.Description)
		}
		for _, r := range list.Spark.Result {
			if len(r.Response) == 0 || len(r.Response[0].Indicators.Quote) == 0 {
				continue
			}
			addSnapshot(out, r.Symbol, r.Response[0].Indicators.Quote[0].Close)
		}
		return out, nil
	}

	var byKey map[string]json.RawMessage
	if err := json.Unmarshal(body, &byKey); err != nil {
		return nil, fmt.Errorf("decoding spark response: %w", err)
	}
	for key, raw := range byKey {
		var entry sparkMapEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			// Non-series members such as an "error" key
			continue
		}
		symbol := entry.Symbol
		if symbol == "" {
			symbol = key
		}
		addSnapshot(out, symbol, entry.Close)
	}
	return out, nil
}

func addSnapshot(out map[string]models.PriceSnapshot, symbol string, closes []*float64) {
	last, prev, ok := lastTwoCloses(closes)
	if !ok {
		return
	}
	symbol = strings.ToUpper(symbol)
	out[symbol] = models.PriceSnapshot{Symbol: symbol, Last: last, Previous: prev}
}

// lastTwoCloses returns the two most recent non-null closes.
func lastTwoCloses(closes []*float64) (last, previous float64, ok bool) {
	found := 0
	for i := len(closes) - 1; i >= 0 && found < 2; i-- {
		if closes[i] == nil {
			continue
		}
		if found == 0 {
			last = *closes[i]
		} else {
			previous = *closes[i]
		}
		found++
	}
	return last, previous, found == 2
}

func decodeChart(body []byte) ([]models.PriceBar, error) {
	var apiResp yahooChartResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("decoding chart response: %w", err)
	}

	if apiResp.Chart.Error != nil {
		if strings.EqualFold(apiResp.Chart.Error.Code, "Not Found") {
			return nil, errors.ErrNotFound
		}
		return nil, fmt.Errorf("chart error %s: %s", apiResp.Chart.Error.Code, apiResp.Chart.Error.Description)
	}
	if len(apiResp.Chart.Result) == 0 {
		return nil, errors.ErrNotFound
	}

	result := apiResp.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return []models.PriceBar{}, nil
	}
	closes := result.Indicators.Quote[0].Close

	bars := make([]models.PriceBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		bars = append(bars, models.PriceBar{
			Date:  time.Unix(ts, 0).UTC(),
			Close: Round2(*closes[i]),
		})
	}

	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Date.Before(bars[j].Date)
	})
	return bars, nil
}
