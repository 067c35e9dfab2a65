// Package universe loads the set of ticker symbols eligible for the explore cache.
package universe

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strings"

	"stockwatch/internal/errors"
	"stockwatch/internal/models"
)

// Universe is an immutable, ordered list of tickers.
type Universe struct {
	tickers []models.Ticker
	index   map[string]int
}

// Load reads a universe file from disk.
func Load(path string) (*Universe, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening universe file: %w", err)
	}
	defer f.Close()

	u, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing universe file %s: %w", path, err)
	}
	return u, nil
}

// Parse reads "SYMBOL|Display Name" lines. A line without a delimiter uses the
// raw text as both symbol and name. Blank lines and # comments are ignored,
// and the first entry wins for duplicate symbols.
func Parse(r io.Reader) (*Universe, error) {
	u := &Universe{index: make(map[string]int)}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		symbol, name, found := strings.Cut(line, "|")
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		name = strings.TrimSpace(name)
		if !found || name == "" {
			name = symbol
		}
		if symbol == "" {
			continue
		}

		if _, dup := u.index[symbol]; dup {
			continue
		}
		u.index[symbol] = len(u.tickers)
		u.tickers = append(u.tickers, models.Ticker{Symbol: symbol, Name: name})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(u.tickers) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "universe is empty")
	}
	return u, nil
}

// Len returns the number of tickers.
func (u *Universe) Len() int {
	return len(u.tickers)
}

// Tickers returns a copy of all tickers in file order.
func (u *Universe) Tickers() []models.Ticker {
	out := make([]models.Ticker, len(u.tickers))
	copy(out, u.tickers)
	return out
}

// Lookup returns the ticker for a symbol.
func (u *Universe) Lookup(symbol string) (models.Ticker, bool) {
	i, ok := u.index[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return models.Ticker{}, false
	}
	return u.tickers[i], true
}

// Sample returns min(n, Len()) distinct tickers chosen uniformly at random.
// A nil rng uses the global source.
func (u *Universe) Sample(n int, rng *rand.Rand) []models.Ticker {
	if n <= 0 {
		return nil
	}
	if n >= len(u.tickers) {
		return u.Tickers()
	}

	perm := make([]int, len(u.tickers))
	for i := range perm {
		perm[i] = i
	}
	// Partial Fisher-Yates: the first n slots end up uniformly chosen
	for i := 0; i < n; i++ {
		var j int
		if rng != nil {
			j = i + rng.IntN(len(perm)-i)
		} else {
			j = i + rand.IntN(len(perm)-i)
		}
		perm[i], perm[j] = perm[j], perm[i]
	}

	out := make([]models.Ticker, n)
	for i := 0; i < n; i++ {
		out[i] = u.tickers[perm[i]]
	}
	return out
}

// NameResolver resolves display names from the universe. It backs favorites
// when no remote resolver is configured. With a nil Universe the file at Path
// is read on every call, so a missing file fails the call and not the caller's
// startup.
type NameResolver struct {
	Universe *Universe
	Path     string
}

// ResolveName returns the display name of a symbol. It returns ErrNotFound for
// symbols outside the universe and ErrNotConfigured when the file is unreadable.
func (r NameResolver) ResolveName(_ context.Context, symbol string) (string, error) {
	u := r.Universe
	if u == nil {
		loaded, err := Load(r.Path)
		if err != nil {
			return "", fmt.Errorf("universe for %s: %w (%v)", symbol, errors.ErrNotConfigured, err)
		}
		u = loaded
	}

	t, ok := u.Lookup(symbol)
	if !ok {
		return "", fmt.Errorf("symbol %s: %w", symbol, errors.ErrNotFound)
	}
	return t.Name, nil
}
