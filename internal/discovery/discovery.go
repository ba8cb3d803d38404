// Package discovery is the Token Discovery component: it pulls
// candidate tokens from multiple providers, normalizes them to the
// shared Token shape, deduplicates, enriches, filters by safety and
// quality rules, and persists survivors to the Store. Grounded on the
// teacher's token-metadata resolver in internal/token/resolver.go
// (see DESIGN.md); restructured around the Store instead of in-memory
// slices.
package discovery

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"frontrun-agent/internal/domain"
	"frontrun-agent/internal/store"
)

// Candidate is the normalized shape every provider is mapped into
// before filtering.
type Candidate struct {
	Mint            string
	Symbol          string
	Name            string
	MarketCapUSD    float64
	PriceUSD        float64
	Volume24hUSD    float64
	LiquidityUSD    float64
	Holders         int
	PriceMultiplier float64
	RugRatio        float64
	WashTrading     bool
	BundlerRate     float64
	MintRenounced   bool
}

// Source gathers candidates from one provider. Implementations do
// their own HTTP/RPC work and return the provider's native shape
// already normalized.
type Source interface {
	Name() string
	Gather(ctx context.Context) ([]Candidate, error)
}

// PriceHistory supplies min-over-lookback prices for multiplier
// enrichment when a source doesn't report PriceMultiplier itself.
type PriceHistory interface {
	MinPriceSince(ctx context.Context, mint string, current float64) (float64, bool)
}

// Filters are the quality/safety thresholds candidates must clear.
type Filters struct {
	MinMarketCapUSD     float64
	MaxMarketCapUSD     float64
	MinPriceMultiplier  float64
	MinLiquidityUSD     float64
	MinVolume24hUSD     float64
	MinLiquidityRatio   float64 // liquidity/mcap, default 0.005
	MinHolders          int
	MaxRugRatio         float64 // default 0.5
	MaxBundlerRate      float64 // default 0.3
}

var symbolRe = regexp.MustCompile(`^[A-Za-z0-9$. ]{1,15}$`)
var consonantRunRe = regexp.MustCompile(`(?i)[bcdfghjklmnpqrstvwxyz]{3,}`)
var digitRunRe = regexp.MustCompile(`[0-9]{2,}`)

// Discoverer runs the discovery pipeline against a declared source
// order.
type Discoverer struct {
	sources []Source
	history PriceHistory
	filters Filters
	db      *store.Store
}

// New builds a Discoverer. sources are tried in the given order;
// history may be nil, in which case multiplier enrichment is skipped
// for sources that don't already report one.
func New(db *store.Store, filters Filters, history PriceHistory, sources ...Source) *Discoverer {
	return &Discoverer{sources: sources, history: history, filters: filters, db: db}
}

// Run executes one discovery pass: gather, normalize, dedupe, enrich,
// filter, sort, persist. Re-running is idempotent — existing mints are
// updated in place, never duplicated.
func (d *Discoverer) Run(ctx context.Context) (int, error) {
	byMint := make(map[string]Candidate)

	for _, src := range d.sources {
		candidates, err := src.Gather(ctx)
		if err != nil {
			log.Warn().Err(err).Str("source", src.Name()).Msg("discovery source failed, continuing")
			continue
		}
		for _, c := range candidates {
			existing, ok := byMint[c.Mint]
			if !ok || c.MarketCapUSD > existing.MarketCapUSD {
				byMint[c.Mint] = c
			}
		}
	}

	enriched := make([]Candidate, 0, len(byMint))
	for _, c := range byMint {
		if c.PriceMultiplier == 0 && d.history != nil && c.PriceUSD > 0 {
			if minPrice, ok := d.history.MinPriceSince(ctx, c.Mint, c.PriceUSD); ok && minPrice > 0 {
				c.PriceMultiplier = c.PriceUSD / minPrice
			}
		}
		enriched = append(enriched, c)
	}

	survivors := make([]Candidate, 0, len(enriched))
	for _, c := range enriched {
		if d.passesFilters(c) {
			survivors = append(survivors, c)
		}
	}

	sort.Slice(survivors, func(i, j int) bool {
		return survivors[i].PriceMultiplier > survivors[j].PriceMultiplier
	})

	for _, c := range survivors {
		t := &domain.Token{
			Mint:            c.Mint,
			Symbol:          c.Symbol,
			Name:            c.Name,
			MarketCapUSD:    c.MarketCapUSD,
			PriceUSD:        c.PriceUSD,
			Volume24hUSD:    c.Volume24hUSD,
			LiquidityUSD:    c.LiquidityUSD,
			Holders:         c.Holders,
			PriceMultiplier: c.PriceMultiplier,
			RugRatio:        c.RugRatio,
			WashTrading:     c.WashTrading,
			BundlerRate:     c.BundlerRate,
			MintRenounced:   c.MintRenounced,
		}
		if _, err := d.db.UpsertToken(t); err != nil {
			log.Error().Err(err).Str("mint", c.Mint).Msg("failed to persist discovered token")
		}
	}

	log.Info().Int("candidates", len(byMint)).Int("survivors", len(survivors)).Msg("discovery pass complete")
	return len(survivors), nil
}

func (d *Discoverer) passesFilters(c Candidate) bool {
	f := d.filters

	if f.MinMarketCapUSD > 0 && c.MarketCapUSD < f.MinMarketCapUSD {
		return false
	}
	if f.MaxMarketCapUSD > 0 && c.MarketCapUSD > f.MaxMarketCapUSD {
		return false
	}
	if c.PriceMultiplier < f.MinPriceMultiplier {
		return false
	}
	if c.LiquidityUSD < f.MinLiquidityUSD {
		return false
	}
	if c.Volume24hUSD < f.MinVolume24hUSD {
		return false
	}
	ratio := f.MinLiquidityRatio
	if ratio == 0 {
		ratio = 0.005
	}
	if c.MarketCapUSD > 0 && c.LiquidityUSD/c.MarketCapUSD < ratio {
		return false
	}
	if c.Holders < f.MinHolders {
		return false
	}

	rugCap := f.MaxRugRatio
	if rugCap == 0 {
		rugCap = 0.5
	}
	if c.RugRatio > rugCap {
		return false
	}
	if c.WashTrading {
		return false
	}
	bundlerCap := f.MaxBundlerRate
	if bundlerCap == 0 {
		bundlerCap = 0.3
	}
	if c.BundlerRate > bundlerCap {
		return false
	}

	if !isCleanSymbol(c.Symbol) {
		return false
	}

	return true
}

// isCleanSymbol applies the symbol-hygiene regex plus the two heuristic
// rejections: interior whitespace, and an all-lowercase symbol with a
// long consonant run or a multi-digit run (both typical of auto-
// generated scam-token tickers).
func isCleanSymbol(symbol string) bool {
	if !symbolRe.MatchString(symbol) {
		return false
	}
	trimmed := strings.TrimSpace(symbol)
	if strings.Contains(trimmed, " ") {
		return false
	}
	if symbol == strings.ToLower(symbol) {
		if consonantRunRe.MatchString(symbol) {
			return false
		}
		if digitRunRe.MatchString(symbol) {
			return false
		}
	}
	return true
}
