// Package chain is the Chain Adapter: JSON-RPC access to account
// balances, signature history, transaction confirmation and submission,
// the wallet/signer pair used to build outgoing transactions, plus the
// parsed-transaction shape the rest of the system classifies buys and
// sells from. The RPC client's primary/fallback circuit breaker is
// grounded on Jonaed13-potential-pancake's original blockchain client;
// the parsed-tx batch fetch is modeled on Helius's enriched transaction
// API (see wtfspiff-KOLTracker/pkg/scanner/scanner.go).
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Client wraps the Solana-style JSON-RPC surface the rest of the system
// needs: balances, signatures, confirmation, submission and a parsed
// transaction feed. A circuit breaker opens after consecutiveFailures
// failures against the primary URL and routes calls to the fallback URL
// for resetAfter before retrying primary.
type Client struct {
	primaryURL   string
	fallbackURL  string
	primaryKey   string
	fallbackKey  string
	parsedTxURL  string
	parsedTxKey  string
	maxRetries   int
	httpClient   *http.Client

	mu          sync.RWMutex
	failures    int
	lastFailure time.Time
	circuitOpen bool
}

const (
	consecutiveFailures = 5
	resetAfter          = 30 * time.Second
)

// Config carries the dial-time parameters for a Client.
type Config struct {
	PrimaryURL    string
	PrimaryAPIKey string
	FallbackURL   string
	FallbackKey   string
	ParsedTxURL   string
	ParsedTxKey   string
	MaxRetries    int
}

// New creates a Chain Adapter client.
func New(cfg Config) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Client{
		primaryURL:  cfg.PrimaryURL,
		fallbackURL: cfg.FallbackURL,
		primaryKey:  cfg.PrimaryAPIKey,
		fallbackKey: cfg.FallbackKey,
		parsedTxURL: cfg.ParsedTxURL,
		parsedTxKey: cfg.ParsedTxKey,
		maxRetries:  cfg.MaxRetries,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// GetNativeBalance returns lamports held by address.
func (c *Client) GetNativeBalance(ctx context.Context, address string) (uint64, error) {
	req := rpcRequest{JSONRPC: "2.0", ID: 1, Method: "getBalance",
		Params: []interface{}{address, map[string]string{"commitment": "confirmed"}}}

	var result struct {
		Value uint64 `json:"value"`
	}
	if err := c.callWithRetry(ctx, req, &result); err != nil {
		return 0, err
	}
	return result.Value, nil
}

// GetLatestBlockhash fetches a recent blockhash for transaction building.
func (c *Client) GetLatestBlockhash(ctx context.Context) (string, uint64, error) {
	req := rpcRequest{JSONRPC: "2.0", ID: 1, Method: "getLatestBlockhash",
		Params: []interface{}{map[string]string{"commitment": "confirmed"}}}

	var result struct {
		Value struct {
			Blockhash            string `json:"blockhash"`
			LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
		} `json:"value"`
	}
	if err := c.callWithRetry(ctx, req, &result); err != nil {
		return "", 0, err
	}
	return result.Value.Blockhash, result.Value.LastValidBlockHeight, nil
}

// ListSignatures returns up to limit signatures for address, newest first.
// If before is non-empty, only signatures older than it are returned,
// which is how callers page backward through a wallet's history.
func (c *Client) ListSignatures(ctx context.Context, address string, limit int, before string) ([]string, error) {
	opts := map[string]interface{}{"limit": limit}
	if before != "" {
		opts["before"] = before
	}
	req := rpcRequest{JSONRPC: "2.0", ID: 1, Method: "getSignaturesForAddress",
		Params: []interface{}{address, opts}}

	var result []struct {
		Signature string `json:"signature"`
	}
	if err := c.callWithRetry(ctx, req, &result); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(result))
	for _, r := range result {
		out = append(out, r.Signature)
	}
	return out, nil
}

// SubmitSigned broadcasts a base64-encoded signed transaction and
// returns its signature.
func (c *Client) SubmitSigned(ctx context.Context, signedTxBase64 string, skipPreflight bool) (string, error) {
	req := rpcRequest{JSONRPC: "2.0", ID: 1, Method: "sendTransaction",
		Params: []interface{}{signedTxBase64, map[string]interface{}{
			"encoding":             "base64",
			"skipPreflight":        skipPreflight,
			"preflightCommitment": "processed",
			"maxRetries":           3,
		}}}

	var result string
	if err := c.callWithRetry(ctx, req, &result); err != nil {
		return "", err
	}
	return result, nil
}

// SignatureStatus is the confirmation state of a submitted transaction.
type SignatureStatus struct {
	Slot               uint64
	Confirmed          bool
	Finalized          bool
	Err                string
}

// Confirm polls getSignatureStatuses until the signature is confirmed or
// finalized, fails, times out, or ctx is cancelled. Returns promptly with whatever
// terminal status it observes; callers decide what to do with a timeout.
func (c *Client) Confirm(ctx context.Context, signature string, timeout time.Duration) (*SignatureStatus, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		status, err := c.signatureStatus(ctx, signature)
		if err == nil && status != nil {
			if status.Err != "" {
				return status, nil
			}
			if status.Finalized || status.Confirmed {
				return status, nil
			}
		}

		if time.Now().After(deadline) {
			return &SignatureStatus{}, fmt.Errorf("confirmation timeout for %s", signature)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) signatureStatus(ctx context.Context, signature string) (*SignatureStatus, error) {
	req := rpcRequest{JSONRPC: "2.0", ID: 1, Method: "getSignatureStatuses",
		Params: []interface{}{[]string{signature}, map[string]bool{"searchTransactionHistory": true}}}

	var result struct {
		Value []*struct {
			Slot               uint64      `json:"slot"`
			Confirmations      *uint64     `json:"confirmations"`
			Err                interface{} `json:"err"`
			ConfirmationStatus string      `json:"confirmationStatus"`
		} `json:"value"`
	}
	if err := c.callWithRetry(ctx, req, &result); err != nil {
		return nil, err
	}
	if len(result.Value) == 0 || result.Value[0] == nil {
		return nil, nil
	}
	v := result.Value[0]
	status := &SignatureStatus{
		Slot:      v.Slot,
		Confirmed: v.ConfirmationStatus == "confirmed" || v.ConfirmationStatus == "finalized",
		Finalized: v.ConfirmationStatus == "finalized",
	}
	if v.Err != nil {
		b, _ := json.Marshal(v.Err)
		status.Err = string(b)
	}
	return status, nil
}

const (
	tokenProgramID     = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	token2022ProgramID = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
)

// TokenAccount is one SPL token account owned by an address.
type TokenAccount struct {
	Address  string
	Mint     string
	Amount   uint64
	Decimals uint8
}

// GetTokenAccounts returns every token account owned by address. Queries
// both the legacy Token Program and Token-2022 so positions in either
// are visible to the Position Manager's balance lookup.
func (c *Client) GetTokenAccounts(ctx context.Context, owner string) ([]TokenAccount, error) {
	legacy, err := c.fetchTokenAccounts(ctx, owner, tokenProgramID)
	if err != nil {
		return nil, fmt.Errorf("token program accounts: %w", err)
	}
	t22, err := c.fetchTokenAccounts(ctx, owner, token2022ProgramID)
	if err != nil {
		return nil, fmt.Errorf("token-2022 accounts: %w", err)
	}
	return append(legacy, t22...), nil
}

func (c *Client) fetchTokenAccounts(ctx context.Context, owner, programID string) ([]TokenAccount, error) {
	req := rpcRequest{JSONRPC: "2.0", ID: 1, Method: "getTokenAccountsByOwner",
		Params: []interface{}{
			owner,
			map[string]string{"programId": programID},
			map[string]string{"encoding": "jsonParsed"},
		}}

	var result struct {
		Value []struct {
			Pubkey  string `json:"pubkey"`
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							Mint        string `json:"mint"`
							TokenAmount struct {
								Amount   string `json:"amount"`
								Decimals uint8  `json:"decimals"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}
	if err := c.callWithRetry(ctx, req, &result); err != nil {
		return nil, err
	}

	out := make([]TokenAccount, 0, len(result.Value))
	for _, v := range result.Value {
		var amount uint64
		fmt.Sscanf(v.Account.Data.Parsed.Info.TokenAmount.Amount, "%d", &amount)
		out = append(out, TokenAccount{
			Address:  v.Pubkey,
			Mint:     v.Account.Data.Parsed.Info.Mint,
			Amount:   amount,
			Decimals: v.Account.Data.Parsed.Info.TokenAmount.Decimals,
		})
	}
	return out, nil
}

// callWithRetry retries transient failures with backoff, per spec §7
// (ProviderUnavailable retries with backoff then degrades).
func (c *Client) callWithRetry(ctx context.Context, req rpcRequest, result interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * 200 * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		lastErr = c.call(ctx, req, result)
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func isTransient(err error) bool {
	// Conservative: anything that isn't a well-formed RPC application
	// error is treated as a transient network/429 condition worth retrying.
	_, isRPCErr := err.(*rpcError)
	return !isRPCErr
}

func (c *Client) call(ctx context.Context, req rpcRequest, result interface{}) error {
	if c.isCircuitOpen() {
		return c.callURL(ctx, c.fallbackURL, c.fallbackKey, req, result)
	}

	err := c.callURL(ctx, c.primaryURL, c.primaryKey, req, result)
	if _, isRPCErr := err.(*rpcError); isRPCErr {
		// A well-formed application error means the primary answered;
		// surface it as-is rather than failing over.
		return err
	}
	if err != nil {
		c.recordFailure()
		log.Warn().Err(err).Msg("primary rpc failed, trying fallback")
		return c.callURL(ctx, c.fallbackURL, c.fallbackKey, req, result)
	}

	c.recordSuccess()
	return nil
}

func (c *Client) callURL(ctx context.Context, url, apiKey string, req rpcRequest, result interface{}) error {
	if url == "" {
		return fmt.Errorf("no rpc url configured")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("x-api-key", apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("http status %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	return nil
}

func (c *Client) isCircuitOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.circuitOpen {
		return false
	}
	return time.Since(c.lastFailure) <= resetAfter
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	c.lastFailure = time.Now()
	if c.failures >= consecutiveFailures {
		c.circuitOpen = true
		log.Warn().Msg("chain adapter circuit breaker opened")
	}
}

func (c *Client) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = 0
	c.circuitOpen = false
}
