// Package market is the Market Data Adapter: token price, market cap,
// liquidity and holder count, fanned out across a declared provider
// order so a single dead endpoint never stalls the pipeline. Grounded on
// Jonaed13-potential-pancake's Jupiter-quote and RPC price-lookup
// helpers, generalized to the multi-provider fallback contract the rest
// of the system expects.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// SOLReferencePriceUSD is the hard-coded SOL/USD conversion rate the
// Wallet Scorer uses to compare provider-reported USD profit against
// locally aggregated native-coin PnL. Resolves the "conversion rate"
// open question in favor of the original implementation's fixed
// reference rather than a live price feed, since the scorer only needs
// a stable ordering, not a precise dollar figure.
const SOLReferencePriceUSD = 150.0

// Snapshot is the normalized shape every provider is mapped into.
type Snapshot struct {
	PriceUSD      float64
	MarketCapUSD  float64
	LiquidityUSD  float64
	Volume24hUSD  float64
	Holders       int
	Symbol        string
	Name          string
}

// IsEmpty reports whether a provider returned nothing usable.
func (s Snapshot) IsEmpty() bool {
	return s.PriceUSD == 0 && s.MarketCapUSD == 0
}

// Provider fetches a Snapshot for mint. A provider must never return a
// fatal error for "no data" — it returns an empty Snapshot instead;
// errors are reserved for transport failures.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, mint string) (Snapshot, error)
}

// Adapter tries providers in declared order, returning the first
// non-empty snapshot.
type Adapter struct {
	providers []Provider
}

// New builds an Adapter trying providers in the given order.
func New(providers ...Provider) *Adapter {
	return &Adapter{providers: providers}
}

// Snapshot returns the first non-empty snapshot across the declared
// provider order. Transport errors on one provider fall through to
// the next. When no provider yields a non-empty snapshot, the last
// transport error is returned if any provider failed, even when the
// others answered empty; otherwise an empty snapshot and nil error.
func (a *Adapter) Snapshot(ctx context.Context, mint string) (Snapshot, error) {
	var lastErr error
	for _, p := range a.providers {
		snap, err := p.Fetch(ctx, mint)
		if err != nil {
			log.Warn().Err(err).Str("provider", p.Name()).Str("mint", mint).Msg("market provider failed")
			lastErr = err
			continue
		}
		if !snap.IsEmpty() {
			return snap, nil
		}
	}
	if lastErr != nil {
		return Snapshot{}, fmt.Errorf("all market providers failed or empty: %w", lastErr)
	}
	return Snapshot{}, nil
}

// DexscreenerProvider queries the Dexscreener token-pairs endpoint.
type DexscreenerProvider struct {
	httpClient *http.Client
	baseURL    string
}

func NewDexscreenerProvider() *DexscreenerProvider {
	return &DexscreenerProvider{
		httpClient: &http.Client{Timeout: 8 * time.Second},
		baseURL:    "https://api.dexscreener.com/latest/dex/tokens",
	}
}

func (p *DexscreenerProvider) Name() string { return "dexscreener" }

func (p *DexscreenerProvider) Fetch(ctx context.Context, mint string) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", p.baseURL, mint), nil)
	if err != nil {
		return Snapshot{}, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Snapshot{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, nil
	}

	var body struct {
		Pairs []struct {
			PriceUsd  string `json:"priceUsd"`
			FDV       float64 `json:"fdv"`
			Liquidity struct {
				Usd float64 `json:"usd"`
			} `json:"liquidity"`
			Volume struct {
				H24 float64 `json:"h24"`
			} `json:"volume"`
			BaseToken struct {
				Symbol string `json:"symbol"`
				Name   string `json:"name"`
			} `json:"baseToken"`
		} `json:"pairs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Snapshot{}, err
	}
	if len(body.Pairs) == 0 {
		return Snapshot{}, nil
	}

	best := body.Pairs[0]
	for _, pair := range body.Pairs {
		if pair.Liquidity.Usd > best.Liquidity.Usd {
			best = pair
		}
	}

	var price float64
	fmt.Sscanf(best.PriceUsd, "%f", &price)

	return Snapshot{
		PriceUSD:     price,
		MarketCapUSD: best.FDV,
		LiquidityUSD: best.Liquidity.Usd,
		Volume24hUSD: best.Volume.H24,
		Symbol:       best.BaseToken.Symbol,
		Name:         best.BaseToken.Name,
	}, nil
}

// BirdeyeProvider queries Birdeye's public token-overview endpoint,
// used as the secondary provider when Dexscreener has no pair yet.
type BirdeyeProvider struct {
	httpClient *http.Client
	apiKey     string
}

func NewBirdeyeProvider(apiKey string) *BirdeyeProvider {
	return &BirdeyeProvider{
		httpClient: &http.Client{Timeout: 8 * time.Second},
		apiKey:     apiKey,
	}
}

func (p *BirdeyeProvider) Name() string { return "birdeye" }

func (p *BirdeyeProvider) Fetch(ctx context.Context, mint string) (Snapshot, error) {
	url := fmt.Sprintf("https://public-api.birdeye.so/defi/token_overview?address=%s", mint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Snapshot{}, err
	}
	req.Header.Set("x-chain", "solana")
	if p.apiKey != "" {
		req.Header.Set("X-API-KEY", p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Snapshot{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, nil
	}

	var body struct {
		Data struct {
			Price      float64 `json:"price"`
			Mc         float64 `json:"mc"`
			Liquidity  float64 `json:"liquidity"`
			V24hUSD    float64 `json:"v24hUSD"`
			Holder     int     `json:"holder"`
			Symbol     string  `json:"symbol"`
			Name       string  `json:"name"`
		} `json:"data"`
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Snapshot{}, err
	}
	if !body.Success {
		return Snapshot{}, nil
	}

	return Snapshot{
		PriceUSD:     body.Data.Price,
		MarketCapUSD: body.Data.Mc,
		LiquidityUSD: body.Data.Liquidity,
		Volume24hUSD: body.Data.V24hUSD,
		Holders:      body.Data.Holder,
		Symbol:       body.Data.Symbol,
		Name:         body.Data.Name,
	}, nil
}

// drain is a small helper kept for providers that need to inspect a
// non-200 body for logging without leaking the connection.
func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, r)
}
