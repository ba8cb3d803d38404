// Package swap is the Swap Adapter: quoting, building, signing and
// confirming token swaps against Jupiter's Metis aggregator, plus a
// honeypot probe used before the core commits capital to a new mint.
// Grounded on internal/jupiter/client.go's HTTP/2 pooled, API-key
// rotating client; generalized behind the quote/execute/confirm/can_sell
// contract the rest of the system expects.
package swap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"

	"frontrun-agent/internal/chain"
)

// SOLMint is the native SOL wrapped-mint address used as the universal
// input/output leg for every quote.
const SOLMint = "So11111111111111111111111111111111111111112"

const metisBaseURL = "https://api.jup.ag/swap/v1"

// Signer produces a base64 signed transaction from a base64 unsigned
// one. Satisfied by chain.TransactionBuilder.
type Signer interface {
	SignTransaction(serializedTxBase64 string) (string, error)
	Address() string
}

// Quote is the priced route returned for a prospective swap.
type Quote struct {
	InputMint      string
	OutputMint     string
	InAmount       uint64
	OutAmount      uint64
	PriceImpactPct float64
	RouteLabel     string
	raw            json.RawMessage
}

// TxHandle identifies a submitted, not-yet-confirmed transaction.
type TxHandle struct {
	Signature string
}

// ConfirmOutcome is the terminal state of a submitted transaction.
type ConfirmOutcome struct {
	Confirmed bool
	Failed    bool
	Timeout   bool
	Reason    string
}

// SellCheck is the honeypot-probe verdict for a mint.
type SellCheck int

const (
	SellUnknown SellCheck = iota
	SellYes
	SellNo
)

// clientPool round-robins a small set of HTTP/2 transports, mirroring
// the teacher's connection-pooling shape.
type clientPool struct {
	clients []*http.Client
	idx     uint32
}

func newClientPool(size int, timeout time.Duration) *clientPool {
	pool := &clientPool{clients: make([]*http.Client, size)}
	for i := range pool.clients {
		transport := &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
		http2.ConfigureTransport(transport)
		pool.clients[i] = &http.Client{Transport: transport, Timeout: timeout}
	}
	return pool
}

func (p *clientPool) get() *http.Client {
	i := atomic.AddUint32(&p.idx, 1)
	return p.clients[i%uint32(len(p.clients))]
}

// Client is the Swap Adapter.
type Client struct {
	pool        *clientPool
	chain       *chain.Client
	apiKeys     []string
	keyIdx      atomic.Uint32
	slippageBps int
	mu          sync.Mutex
}

// New builds a Swap Adapter backed by the given Chain Adapter for
// broadcast and confirmation, rotating through apiKeys for quote and
// swap-transaction requests.
func New(chainClient *chain.Client, apiKeys []string, slippageBps int) *Client {
	if len(apiKeys) == 0 {
		apiKeys = []string{""}
	}
	return &Client{
		pool:        newClientPool(4, 10 * time.Second),
		chain:       chainClient,
		apiKeys:     apiKeys,
		slippageBps: slippageBps,
	}
}

func (c *Client) nextAPIKey() string {
	i := c.keyIdx.Add(1)
	return c.apiKeys[i%uint32(len(c.apiKeys))]
}

type quoteResponse struct {
	InAmount       string `json:"inAmount"`
	OutAmount      string `json:"outAmount"`
	PriceImpactPct string `json:"priceImpactPct"`
	RoutePlan      []struct {
		SwapInfo struct {
			Label string `json:"label"`
		} `json:"swapInfo"`
	} `json:"routePlan"`
}

// ErrNoRoute is returned when the aggregator has no path between the
// requested mints.
var ErrNoRoute = fmt.Errorf("no route")

// Quote requests a priced route for swapping amountAtomic of inMint
// into outMint, at the given slippage tolerance in basis points.
func (c *Client) Quote(ctx context.Context, inMint, outMint string, amountAtomic uint64, slippageBps int) (*Quote, error) {
	if slippageBps <= 0 {
		slippageBps = c.slippageBps
	}
	url := fmt.Sprintf("%s/quote?inputMint=%s&outputMint=%s&amount=%d&slippageBps=%d",
		metisBaseURL, inMint, outMint, amountAtomic, slippageBps)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build quote request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.nextAPIKey())

	resp, err := c.pool.get().Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNoRoute
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("quote failed (%d): %s", resp.StatusCode, string(body))
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}
	var qr quoteResponse
	if err := json.Unmarshal(raw, &qr); err != nil {
		return nil, fmt.Errorf("decode quote fields: %w", err)
	}
	if qr.OutAmount == "" {
		return nil, ErrNoRoute
	}

	in, _ := strconv.ParseUint(qr.InAmount, 10, 64)
	out, _ := strconv.ParseUint(qr.OutAmount, 10, 64)
	impact, _ := strconv.ParseFloat(qr.PriceImpactPct, 64)
	label := ""
	if len(qr.RoutePlan) > 0 {
		label = qr.RoutePlan[0].SwapInfo.Label
	}

	return &Quote{
		InputMint:      inMint,
		OutputMint:     outMint,
		InAmount:       in,
		OutAmount:      out,
		PriceImpactPct: impact,
		RouteLabel:     label,
		raw:            raw,
	}, nil
}

type swapRequest struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey              string         `json:"userPublicKey"`
	WrapAndUnwrapSol           bool           `json:"wrapAndUnwrapSol"`
	PrioritizationFeeLamports  struct {
		PriorityLevel string `json:"priorityLevel"`
	} `json:"prioritizationFeeLamports"`
}

type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

// Execute builds a swap transaction for quote, signs it with signer
// and broadcasts it with skip_preflight and up to 3 retries, per the
// aggregator contract.
func (c *Client) Execute(ctx context.Context, q *Quote, signer Signer) (*TxHandle, error) {
	body := swapRequest{
		QuoteResponse:    q.raw,
		UserPublicKey:    signer.Address(),
		WrapAndUnwrapSol: true,
	}
	body.PrioritizationFeeLamports.PriorityLevel = "veryHigh"

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal swap request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, metisBaseURL+"/swap", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build swap request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.nextAPIKey())

	resp, err := c.pool.get().Do(req)
	if err != nil {
		return nil, fmt.Errorf("swap request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("swap build failed (%d): %s", resp.StatusCode, string(respBody))
	}

	var sr swapResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode swap response: %w", err)
	}

	signed, err := signer.SignTransaction(sr.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("sign swap transaction: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	sig, err := c.chain.SubmitSigned(ctx, signed, true)
	if err != nil {
		return nil, fmt.Errorf("broadcast swap transaction: %w", err)
	}

	log.Info().Str("sig", sig).Str("route", q.RouteLabel).Msg("swap submitted")
	return &TxHandle{Signature: sig}, nil
}

// ConfirmWithin blocks until handle reaches a terminal state or
// timeout elapses.
func (c *Client) ConfirmWithin(ctx context.Context, handle *TxHandle, timeout time.Duration) ConfirmOutcome {
	status, err := c.chain.Confirm(ctx, handle.Signature, timeout)
	if err != nil {
		return ConfirmOutcome{Timeout: true, Reason: err.Error()}
	}
	if status.Err != "" {
		return ConfirmOutcome{Failed: true, Reason: status.Err}
	}
	return ConfirmOutcome{Confirmed: true}
}

// CanSell probes whether mint can currently be routed back to SOL for
// a nominal amount. A routing rejection is a hard no; any transport or
// provider failure is reported unknown — callers treat unknown as a
// yes since a probe failure must never itself block a trade.
func (c *Client) CanSell(ctx context.Context, mint string, probeAtomicAmount uint64) SellCheck {
	if probeAtomicAmount == 0 {
		probeAtomicAmount = 1_000_000
	}
	_, err := c.Quote(ctx, mint, SOLMint, probeAtomicAmount, c.slippageBps)
	if err == nil {
		return SellYes
	}
	if err == ErrNoRoute {
		return SellNo
	}
	log.Warn().Err(err).Str("mint", mint).Msg("can_sell probe unreachable, treating as unknown")
	return SellUnknown
}
