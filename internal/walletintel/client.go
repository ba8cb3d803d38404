// Package walletintel is the wallet-analytics provider adapter: a
// cookie-protected endpoint returning 30-day wallet stats and
// top-buyer lists, fronted by a TLS-fingerprinted client so the bot
// detection on the other end sees a normal browser. Grounded on
// franky69420-crypto-oracle/internal/gateway/gmgn's bogdanfinn/tls-client
// + bogdanfinn/fhttp session pattern.
package walletintel

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	fhttp "github.com/bogdanfinn/fhttp"
	"github.com/bogdanfinn/fhttp/cookiejar"
	tlsclient "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
	"github.com/rs/zerolog/log"
)

// WalletStats is the 30-day enrichment the Wallet Scorer and Refresher
// merge into locally aggregated trade data.
type WalletStats struct {
	Address        string
	Profit30dUSD   float64
	SolBalance     float64
	WinRate        float64
	Buys30d        int
	Sells30d       int
	Tags           []string
}

// TopBuyer is one entry in a token's recent-buyer list.
type TopBuyer struct {
	Address   string
	AmountUSD float64
	BuyTime   time.Time
}

// Client is the TLS-fingerprinted wallet-analytics client. Missing or
// expired cookies are not a fatal condition: every method degrades to
// an empty result rather than an error, per the provider contract.
type Client struct {
	http   tlsclient.HttpClient
	cookie string
	base   string
}

// New builds a Client with the given session cookie, which may be
// empty — callers must tolerate every subsequent call returning empty
// results in that case.
func New(cookie string) *Client {
	jar, _ := cookiejar.New(nil)
	options := []tlsclient.HttpClientOption{
		tlsclient.WithTimeoutSeconds(10),
		tlsclient.WithClientProfile(profiles.Chrome_120),
		tlsclient.WithCookieJar(jar),
		tlsclient.WithNotFollowRedirects(),
		tlsclient.WithRandomTLSExtensionOrder(),
	}
	client, err := tlsclient.NewHttpClient(tlsclient.NewNoopLogger(), options...)
	if err != nil {
		log.Error().Err(err).Msg("walletintel: failed to build tls client, falling back to empty results")
	}
	return &Client{http: client, cookie: cookie, base: "https://gmgn.ai/api/v1"}
}

func (c *Client) headers(referer string) fhttp.Header {
	h := fhttp.Header{
		"accept":           []string{"application/json, text/plain, */*"},
		"accept-language":  []string{"en-US,en;q=0.9"},
		"user-agent":       []string{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"},
		"x-requested-with": []string{"XMLHttpRequest"},
	}
	if c.cookie != "" {
		h["cookie"] = []string{c.cookie}
	}
	if referer != "" {
		h["referer"] = []string{referer}
		h["origin"] = []string{"https://gmgn.ai"}
	}
	return h
}

func (c *Client) get(url string) ([]byte, bool) {
	if c.http == nil || c.cookie == "" {
		return nil, false
	}
	req, err := fhttp.NewRequest(fhttp.MethodGet, url, nil)
	if err != nil {
		return nil, false
	}
	req.Header = c.headers(url)

	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("walletintel: request failed")
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != fhttp.StatusOK {
		return nil, false
	}
	if ct := resp.Header.Get("Content-Type"); strings.Contains(ct, "text/html") {
		return nil, false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false
	}
	return body, true
}

// WalletStats fetches 30-day stats for address. Returns the zero value
// when cookies are absent or the provider errors.
func (c *Client) WalletStats(address string) (WalletStats, bool) {
	url := fmt.Sprintf("%s/wallet_stat/sol/%s/30d", c.base, address)
	body, ok := c.get(url)
	if !ok {
		return WalletStats{}, false
	}

	var parsed struct {
		Data struct {
			RealizedProfit float64  `json:"realized_profit"`
			SolBalance     float64  `json:"sol_balance"`
			WinRate        float64  `json:"winrate"`
			BuyCount       int      `json:"buy_30d"`
			SellCount      int      `json:"sell_30d"`
			Tags           []string `json:"tags"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return WalletStats{}, false
	}

	return WalletStats{
		Address:      address,
		Profit30dUSD: parsed.Data.RealizedProfit,
		SolBalance:   parsed.Data.SolBalance,
		WinRate:      parsed.Data.WinRate,
		Buys30d:      parsed.Data.BuyCount,
		Sells30d:     parsed.Data.SellCount,
		Tags:         parsed.Data.Tags,
	}, true
}

// TopBuyers fetches the recent-buyer list for mint. Returns an empty
// slice, never an error, when the provider is unavailable.
func (c *Client) TopBuyers(mint string, limit int) []TopBuyer {
	url := fmt.Sprintf("%s/token_traders/sol/%s?limit=%d", c.base, mint, limit)
	body, ok := c.get(url)
	if !ok {
		return nil
	}

	var parsed struct {
		Data []struct {
			Address   string  `json:"address"`
			AmountUSD float64 `json:"amount_usd"`
			Timestamp int64   `json:"timestamp"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil
	}

	out := make([]TopBuyer, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		out = append(out, TopBuyer{
			Address:   d.Address,
			AmountUSD: d.AmountUSD,
			BuyTime:   time.Unix(d.Timestamp, 0).UTC(),
		})
	}
	return out
}
