package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
)

// PriceQuote captures an exchange rate for a currency pair along with the
// timestamp reported by the upstream feed and the feed identifier. Rate is
// expressed as settlement-asset minor units per reference-currency minor
// unit.
type PriceQuote struct {
	Rate      *big.Rat
	Timestamp time.Time
	Source    string
}

// Clone returns a copy with a duplicated rate so callers can mutate freely.
func (q PriceQuote) Clone() PriceQuote {
	clone := PriceQuote{Timestamp: q.Timestamp, Source: q.Source}
	if q.Rate != nil {
		clone.Rate = new(big.Rat).Set(q.Rate)
	}
	return clone
}

// PriceOracle supplies the live settlement-asset conversion rate. Every
// purchase reads the rate at call time; nothing is cached across calls.
type PriceOracle interface {
	GetRate(base, quote string) (PriceQuote, error)
}

// ErrNoFreshQuote indicates the aggregator could not retrieve a quote within
// the configured freshness window.
var ErrNoFreshQuote = errors.New("oracle: no fresh quote available")

func normaliseSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func pairKey(base, quote string) string {
	return normaliseSymbol(base) + "_" + normaliseSymbol(quote)
}

// ManualOracle is an administrator-fed oracle used for deterministic tests
// and as the bottom-priority fallback feed.
type ManualOracle struct {
	mu     sync.RWMutex
	quotes map[string]PriceQuote
}

// NewManualOracle constructs an empty manual oracle instance.
func NewManualOracle() *ManualOracle {
	return &ManualOracle{quotes: make(map[string]PriceQuote)}
}

// SetDecimal records the supplied decimal rate for the currency pair.
func (m *ManualOracle) SetDecimal(base, quote, rate string, ts time.Time) error {
	if m == nil {
		return fmt.Errorf("manual oracle not configured")
	}
	trimmed := strings.TrimSpace(rate)
	if trimmed == "" {
		return fmt.Errorf("manual oracle: rate required")
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return fmt.Errorf("manual oracle: invalid rate %q", rate)
	}
	if rat.Sign() <= 0 {
		return fmt.Errorf("manual oracle: rate must be positive")
	}
	m.Set(base, quote, rat, ts)
	return nil
}

// Set stores the provided rational rate for the currency pair.
func (m *ManualOracle) Set(base, quote string, rate *big.Rat, ts time.Time) {
	if m == nil || rate == nil {
		return
	}
	m.mu.Lock()
	m.quotes[pairKey(base, quote)] = PriceQuote{Rate: new(big.Rat).Set(rate), Timestamp: ts, Source: "manual"}
	m.mu.Unlock()
}

// GetRate retrieves the stored rate for the currency pair.
func (m *ManualOracle) GetRate(base, quote string) (PriceQuote, error) {
	if m == nil {
		return PriceQuote{}, fmt.Errorf("manual oracle not configured")
	}
	m.mu.RLock()
	stored, ok := m.quotes[pairKey(base, quote)]
	m.mu.RUnlock()
	if !ok {
		return PriceQuote{}, fmt.Errorf("manual oracle: quote for %s/%s not found", base, quote)
	}
	return stored.Clone(), nil
}

// Aggregator consults registered oracles in priority order until a fresh
// quote is obtained.
type Aggregator struct {
	mu       sync.RWMutex
	priority []string
	oracles  map[string]PriceOracle
	maxAge   time.Duration
	now      func() time.Time
}

// NewAggregator constructs an aggregator with the provided priority list and
// freshness window. A zero maxAge disables the freshness check.
func NewAggregator(priority []string, maxAge time.Duration) *Aggregator {
	if priority == nil {
		priority = []string{}
	}
	return &Aggregator{
		priority: append([]string{}, priority...),
		oracles:  make(map[string]PriceOracle),
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// SetClock overrides the aggregator clock, primarily for tests.
func (a *Aggregator) SetClock(now func() time.Time) {
	if a == nil || now == nil {
		return
	}
	a.mu.Lock()
	a.now = now
	a.mu.Unlock()
}

// Register adds a named oracle. Unknown names are appended to the priority
// list in registration order.
func (a *Aggregator) Register(name string, o PriceOracle) {
	if a == nil || o == nil {
		return
	}
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.oracles[key]; !exists {
		found := false
		for _, p := range a.priority {
			if p == key {
				found = true
				break
			}
		}
		if !found {
			a.priority = append(a.priority, key)
		}
	}
	a.oracles[key] = o
}

// GetRate returns the first fresh quote from the priority-ordered feeds.
func (a *Aggregator) GetRate(base, quote string) (PriceQuote, error) {
	if a == nil {
		return PriceQuote{}, fmt.Errorf("oracle aggregator not configured")
	}
	a.mu.RLock()
	priority := append([]string{}, a.priority...)
	oracles := make(map[string]PriceOracle, len(a.oracles))
	for k, v := range a.oracles {
		oracles[k] = v
	}
	maxAge := a.maxAge
	nowFn := a.now
	a.mu.RUnlock()
	now := nowFn()
	for _, name := range priority {
		o, ok := oracles[name]
		if !ok {
			continue
		}
		q, err := o.GetRate(base, quote)
		if err != nil || q.Rate == nil || q.Rate.Sign() <= 0 {
			continue
		}
		if maxAge > 0 && !q.Timestamp.IsZero() && now.Sub(q.Timestamp) > maxAge {
			continue
		}
		q.Source = name
		return q, nil
	}
	return PriceQuote{}, ErrNoFreshQuote
}

// ToSettlement converts a reference-currency amount to settlement-asset
// minor units at the supplied rate, truncating toward zero.
func ToSettlement(amount *big.Int, rate *big.Rat) (*big.Int, error) {
	if amount == nil {
		return big.NewInt(0), nil
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("oracle: negative amount")
	}
	if rate == nil || rate.Sign() <= 0 {
		return nil, fmt.Errorf("oracle: rate must be positive")
	}
	out := new(big.Int).Mul(amount, rate.Num())
	return out.Quo(out, rate.Denom()), nil
}
