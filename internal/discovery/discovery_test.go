package discovery

import (
	"context"
	"path/filepath"
	"testing"

	"frontrun-agent/internal/store"
)

type fakeSource struct {
	name       string
	candidates []Candidate
	err        error
}

func (f fakeSource) Name() string { return f.name }

func (f fakeSource) Gather(ctx context.Context) ([]Candidate, error) {
	return f.candidates, f.err
}

func newTestDiscoverer(t *testing.T, filters Filters, sources ...Source) (*store.Store, *Discoverer) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "discovery.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, New(db, filters, nil, sources...)
}

func TestDiscoverer_RunDedupesByMintKeepingHigherMarketCap(t *testing.T) {
	good := Candidate{
		Mint: "MintA", Symbol: "GOOD", MarketCapUSD: 200_000, LiquidityUSD: 20_000,
		Volume24hUSD: 10_000, Holders: 50, PriceMultiplier: 1.5,
	}
	stale := Candidate{Mint: "MintA", Symbol: "GOOD", MarketCapUSD: 50_000}

	_, d := newTestDiscoverer(t, Filters{}, fakeSource{name: "one", candidates: []Candidate{stale}},
		fakeSource{name: "two", candidates: []Candidate{good}})

	n, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 survivor, got %d", n)
	}
}

func TestDiscoverer_RunToleratesFailingSource(t *testing.T) {
	good := Candidate{
		Mint: "MintB", Symbol: "OK", MarketCapUSD: 200_000, LiquidityUSD: 20_000,
		Volume24hUSD: 10_000, Holders: 50, PriceMultiplier: 1.5,
	}
	_, d := newTestDiscoverer(t, Filters{},
		fakeSource{name: "broken", err: context.DeadlineExceeded},
		fakeSource{name: "ok", candidates: []Candidate{good}})

	n, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected the failing source to be skipped, not sink the pass; got %d survivors", n)
	}
}

func TestDiscoverer_PassesFiltersRejectsLowLiquidityRatio(t *testing.T) {
	_, d := newTestDiscoverer(t, Filters{MinLiquidityRatio: 0.05})
	c := Candidate{MarketCapUSD: 1_000_000, LiquidityUSD: 1_000, PriceMultiplier: 1}
	if d.passesFilters(c) {
		t.Errorf("expected candidate with liquidity/mcap ratio below floor to be rejected")
	}
}

func TestDiscoverer_PassesFiltersRejectsWashTrading(t *testing.T) {
	_, d := newTestDiscoverer(t, Filters{})
	c := Candidate{MarketCapUSD: 100_000, LiquidityUSD: 10_000, WashTrading: true}
	if d.passesFilters(c) {
		t.Errorf("expected wash-trading candidate to be rejected regardless of other metrics")
	}
}

func TestIsCleanSymbol(t *testing.T) {
	cases := []struct {
		symbol string
		want   bool
	}{
		{"PEPE", true},
		{"$DOGE", true},
		{"A B", false},
		{"xkqzpw", false},  // long lowercase consonant run
		{"abc123456", false}, // multi-digit run
		{"moon", true},
	}
	for _, tc := range cases {
		if got := isCleanSymbol(tc.symbol); got != tc.want {
			t.Errorf("isCleanSymbol(%q) = %v, want %v", tc.symbol, got, tc.want)
		}
	}
}
