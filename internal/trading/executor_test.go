package trading

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"frontrun-agent/internal/chain"
)

// stubSigner satisfies swap.Signer without touching any key material.
type stubSigner struct{ address string }

func (s stubSigner) SignTransaction(serializedTxBase64 string) (string, error) { return "", nil }
func (s stubSigner) Address() string                                          { return s.address }

func chainTestServer(t *testing.T, balanceLamports uint64, mint string, tokenAmount uint64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string        `json:"method"`
			ID     int           `json:"id"`
			Params []interface{} `json:"params"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		var raw json.RawMessage
		switch req.Method {
		case "getBalance":
			raw, _ = json.Marshal(map[string]interface{}{"value": balanceLamports})
		case "getTokenAccountsByOwner":
			value := []map[string]interface{}{{
				"pubkey": "TokenAcct1",
				"account": map[string]interface{}{
					"data": map[string]interface{}{
						"parsed": map[string]interface{}{
							"info": map[string]interface{}{
								"mint": mint,
								"tokenAmount": map[string]interface{}{
									"amount":   fmt.Sprintf("%d", tokenAmount),
									"decimals": 6,
								},
							},
						},
					},
				},
			}}
			raw, _ = json.Marshal(map[string]interface{}{"value": value})
		default:
			t.Fatalf("unexpected method: %s", req.Method)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": raw})
	}))
}

func TestNativeBalanceSOL_ConvertsLamportsForConfiguredSigner(t *testing.T) {
	srv := chainTestServer(t, 2_500_000_000, "MintA", 0)
	defer srv.Close()

	chainC := chain.New(chain.Config{PrimaryURL: srv.URL, MaxRetries: 0})
	e := &Executor{chain: chainC, signer: stubSigner{address: "Wallet1"}}

	sol, err := e.nativeBalanceSOL(context.Background())
	if err != nil {
		t.Fatalf("nativeBalanceSOL: %v", err)
	}
	if sol != 2.5 {
		t.Errorf("expected 2.5 SOL, got %v", sol)
	}
}

func TestNativeBalanceSOL_ZeroWithNoSignerConfigured(t *testing.T) {
	e := &Executor{}
	sol, err := e.nativeBalanceSOL(context.Background())
	if err != nil || sol != 0 {
		t.Errorf("expected 0, nil with no signer, got %v, %v", sol, err)
	}
}

func TestOnChainTokenBalance_FindsMatchingMint(t *testing.T) {
	srv := chainTestServer(t, 0, "MintA", 42_000_000)
	defer srv.Close()

	chainC := chain.New(chain.Config{PrimaryURL: srv.URL, MaxRetries: 0})
	e := &Executor{chain: chainC, signer: stubSigner{address: "Wallet1"}}

	amount, err := e.onChainTokenBalance(context.Background(), "MintA")
	if err != nil {
		t.Fatalf("onChainTokenBalance: %v", err)
	}
	if amount != 42_000_000 {
		t.Errorf("expected 42000000, got %v", amount)
	}
}

func TestOnChainTokenBalance_ZeroForUnheldMint(t *testing.T) {
	srv := chainTestServer(t, 0, "MintA", 42_000_000)
	defer srv.Close()

	chainC := chain.New(chain.Config{PrimaryURL: srv.URL, MaxRetries: 0})
	e := &Executor{chain: chainC, signer: stubSigner{address: "Wallet1"}}

	amount, err := e.onChainTokenBalance(context.Background(), "MintB")
	if err != nil {
		t.Fatalf("onChainTokenBalance: %v", err)
	}
	if amount != 0 {
		t.Errorf("expected 0 for unheld mint, got %v", amount)
	}
}
