package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GeckoTerminalSource gathers trending and new Solana pools from the
// free, unauthenticated GeckoTerminal API. Grounded on
// original_source/discovery/geckoterminal_client.py's pool-attribute
// extraction (fdv_usd/market_cap_usd fallback, reserve_in_usd as
// liquidity, h24 volume).
type GeckoTerminalSource struct {
	httpClient *http.Client
	baseURL    string
}

func NewGeckoTerminalSource() *GeckoTerminalSource {
	return &GeckoTerminalSource{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    "https://api.geckoterminal.com/api/v2",
	}
}

func (s *GeckoTerminalSource) Name() string { return "geckoterminal" }

type gtResponse struct {
	Data []struct {
		Attributes struct {
			Address            string                 `json:"address"`
			BaseTokenPriceUSD  string                 `json:"base_token_price_usd"`
			FDVUSD             string                 `json:"fdv_usd"`
			MarketCapUSD       string                 `json:"market_cap_usd"`
			ReserveInUSD       string                 `json:"reserve_in_usd"`
			VolumeUSD          map[string]string      `json:"volume_usd"`
		} `json:"attributes"`
		Relationships struct {
			BaseToken struct {
				Data struct {
					ID string `json:"id"`
				} `json:"data"`
			} `json:"base_token"`
		} `json:"relationships"`
	} `json:"data"`
	Included []struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Attributes struct {
			Address string `json:"address"`
			Symbol  string `json:"symbol"`
			Name    string `json:"name"`
		} `json:"attributes"`
	} `json:"included"`
}

func (s *GeckoTerminalSource) Gather(ctx context.Context) ([]Candidate, error) {
	trending, err := s.fetchPools(ctx, "/networks/solana/trending_pools")
	if err != nil {
		return nil, err
	}
	fresh, err := s.fetchPools(ctx, "/networks/solana/new_pools")
	if err != nil {
		// New-pool endpoint flaking should not sink trending results.
		return trending, nil
	}
	return append(trending, fresh...), nil
}

func (s *GeckoTerminalSource) fetchPools(ctx context.Context, endpoint string) ([]Candidate, error) {
	url := s.baseURL + endpoint + "?include=base_token"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json;version=20230302")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geckoterminal: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var gt gtResponse
	if err := json.Unmarshal(body, &gt); err != nil {
		return nil, fmt.Errorf("geckoterminal: decode: %w", err)
	}

	tokenByID := make(map[string]struct{ address, symbol, name string })
	for _, inc := range gt.Included {
		if inc.Type != "token" {
			continue
		}
		tokenByID[inc.ID] = struct{ address, symbol, name string }{inc.Attributes.Address, inc.Attributes.Symbol, inc.Attributes.Name}
	}

	var out []Candidate
	for _, item := range gt.Data {
		tok, ok := tokenByID[item.Relationships.BaseToken.Data.ID]
		if !ok || tok.address == "" {
			continue
		}
		mcap := parseFloat(item.Attributes.MarketCapUSD)
		if mcap == 0 {
			mcap = parseFloat(item.Attributes.FDVUSD)
		}
		out = append(out, Candidate{
			Mint:         tok.address,
			Symbol:       tok.symbol,
			Name:         tok.name,
			PriceUSD:     parseFloat(item.Attributes.BaseTokenPriceUSD),
			MarketCapUSD: mcap,
			LiquidityUSD: parseFloat(item.Attributes.ReserveInUSD),
			Volume24hUSD: parseFloat(item.Attributes.VolumeUSD["h24"]),
		})
	}
	return out, nil
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	var f float64
	_, err := fmt.Sscanf(s, "%g", &f)
	if err != nil {
		return 0
	}
	return f
}

// DexscreenerTrendingSource gathers boosted/trending Solana pairs from
// Dexscreener's public token-profiles feed, reusing the same HTTP
// client shape as market.DexscreenerProvider but against the discovery
// (latest boosted tokens) endpoint rather than a single-mint lookup.
type DexscreenerTrendingSource struct {
	httpClient *http.Client
}

func NewDexscreenerTrendingSource() *DexscreenerTrendingSource {
	return &DexscreenerTrendingSource{httpClient: &http.Client{Timeout: 8 * time.Second}}
}

func (s *DexscreenerTrendingSource) Name() string { return "dexscreener_trending" }

type dsTokenProfile struct {
	ChainID string `json:"chainId"`
	Address string `json:"tokenAddress"`
}

type dsPair struct {
	BaseToken struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
		Name    string `json:"name"`
	} `json:"baseToken"`
	PriceUSD string `json:"priceUsd"`
	Volume   struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	FDV float64 `json:"fdv"`
}

func (s *DexscreenerTrendingSource) Gather(ctx context.Context) ([]Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.dexscreener.com/token-profiles/latest/v1", nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dexscreener_trending: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var profiles []dsTokenProfile
	if err := json.Unmarshal(body, &profiles); err != nil {
		return nil, nil
	}

	var out []Candidate
	for _, p := range profiles {
		if p.ChainID != "solana" || p.Address == "" {
			continue
		}
		pairs, err := s.fetchPairs(ctx, p.Address)
		if err != nil {
			continue
		}
		out = append(out, pairs...)
	}
	return out, nil
}

func (s *DexscreenerTrendingSource) fetchPairs(ctx context.Context, mint string) ([]Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.dexscreener.com/latest/dex/tokens/"+mint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Pairs []dsPair `json:"pairs"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	var out []Candidate
	for _, pair := range parsed.Pairs {
		if pair.BaseToken.Address == "" {
			continue
		}
		out = append(out, Candidate{
			Mint:         pair.BaseToken.Address,
			Symbol:       pair.BaseToken.Symbol,
			Name:         pair.BaseToken.Name,
			PriceUSD:     parseFloat(pair.PriceUSD),
			MarketCapUSD: pair.FDV,
			LiquidityUSD: pair.Liquidity.USD,
			Volume24hUSD: pair.Volume.H24,
		})
	}
	return out, nil
}
