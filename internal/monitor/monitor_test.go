package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"frontrun-agent/internal/chain"
	"frontrun-agent/internal/control"
	"frontrun-agent/internal/domain"
	"frontrun-agent/internal/store"
)

func TestClamp(t *testing.T) {
	if clamp(1.5, 0, 1) != 1 {
		t.Errorf("expected clamp to cap at the upper bound")
	}
	if clamp(-0.5, 0, 1) != 0 {
		t.Errorf("expected clamp to floor at the lower bound")
	}
	if clamp(0.5, 0, 1) != 0.5 {
		t.Errorf("expected an in-range value to pass through unchanged")
	}
}

func TestSizeBonus_ScalesWithNativeSpend(t *testing.T) {
	if sizeBonus(0.1) != 0 {
		t.Errorf("expected no bonus below the smallest tier")
	}
	if sizeBonus(0.5) != 0.1 {
		t.Errorf("expected 0.1 bonus at the 0.5 tier")
	}
	if sizeBonus(5) != 0.2 {
		t.Errorf("expected the top bonus at the 5 tier")
	}
}

func TestBuySignalFromTx_RejectsNonSwapAndOtherFeePayers(t *testing.T) {
	w := domain.Wallet{Address: "W1", TotalScore: 80}
	if _, ok := buySignalFromTx(w, chain.ParsedTransaction{Type: "TRANSFER", FeePayer: "W1"}); ok {
		t.Errorf("expected non-SWAP transactions to be rejected")
	}
	if _, ok := buySignalFromTx(w, chain.ParsedTransaction{Type: "SWAP", FeePayer: "W2"}); ok {
		t.Errorf("expected transactions from another fee payer to be rejected")
	}
}

func TestBuySignalFromTx_RequiresNonStableIncomingTokenAndNativeSpend(t *testing.T) {
	w := domain.Wallet{Address: "W1", TotalScore: 80}
	tx := chain.ParsedTransaction{
		Type: "SWAP", FeePayer: "W1", Timestamp: time.Now(),
		TokenTransfers: []chain.TokenTransfer{
			{Mint: "So11111111111111111111111111111111111111112", To: "W1"},
		},
		NativeTransfers: []chain.NativeTransfer{{From: "W1", Lamports: 1_000_000_000}},
	}
	if _, ok := buySignalFromTx(w, tx); ok {
		t.Errorf("expected an all-stable incoming transfer to produce no signal")
	}

	tx.TokenTransfers = append(tx.TokenTransfers, chain.TokenTransfer{Mint: "MintA", To: "W1"})
	tx.NativeTransfers = nil
	if _, ok := buySignalFromTx(w, tx); ok {
		t.Errorf("expected zero native spend to produce no signal")
	}
}

func TestBuySignalFromTx_ProducesScaledConfidence(t *testing.T) {
	w := domain.Wallet{Address: "W1", TotalScore: 80}
	tx := chain.ParsedTransaction{
		Type: "SWAP", FeePayer: "W1", Timestamp: time.Now(),
		TokenTransfers:  []chain.TokenTransfer{{Mint: "MintA", To: "W1"}},
		NativeTransfers: []chain.NativeTransfer{{From: "W1", Lamports: 5_000_000_000}},
	}
	sig, ok := buySignalFromTx(w, tx)
	if !ok {
		t.Fatalf("expected a buy signal")
	}
	if sig.Mint != "MintA" || sig.AmountNative != 5 {
		t.Errorf("unexpected signal fields: %+v", sig)
	}
	want := clamp(0.5+0.3*80/100+0.2, 0, 1)
	if sig.Confidence != want {
		t.Errorf("expected confidence %v, got %v", want, sig.Confidence)
	}
}

func TestMonitor_SeenAndRemember(t *testing.T) {
	m := &Monitor{dedup: make(map[string]struct{})}
	if m.seen("k1") {
		t.Fatalf("expected k1 to be unseen initially")
	}
	m.remember("k1")
	if !m.seen("k1") {
		t.Errorf("expected k1 to be seen after remembering it")
	}
}

func rpcTestHandler(t *testing.T, sigsByAddr map[string][]string, txByAddr map[string][]chain.ParsedTransaction) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string        `json:"method"`
			ID     int           `json:"id"`
			Params []interface{} `json:"params"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		var raw json.RawMessage
		switch req.Method {
		case "getSignaturesForAddress":
			addr, _ := req.Params[0].(string)
			var sigs []map[string]string
			for _, s := range sigsByAddr[addr] {
				sigs = append(sigs, map[string]string{"signature": s})
			}
			raw, _ = json.Marshal(sigs)
		case "getParsedTransactions":
			var all []chain.ParsedTransaction
			for _, txs := range txByAddr {
				all = append(all, txs...)
			}
			raw, _ = json.Marshal(all)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": raw})
	}
}

func TestMonitor_ScanWalletEmitsSignalOnNewBuy(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "monitor.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer db.Close()

	now := time.Now()
	srv := httptest.NewServer(rpcTestHandler(t,
		map[string][]string{"W1": {"Sig1"}},
		map[string][]chain.ParsedTransaction{"W1": {{
			Signature: "Sig1", Type: "SWAP", FeePayer: "W1", Timestamp: now,
			TokenTransfers:  []chain.TokenTransfer{{Mint: "MintA", To: "W1"}},
			NativeTransfers: []chain.NativeTransfer{{From: "W1", Lamports: 2_000_000_000}},
		}}},
	))
	defer srv.Close()

	chainClient := chain.New(chain.Config{PrimaryURL: srv.URL, MaxRetries: 0})
	ctl := control.New(control.ModeDryRun)

	var handled []domain.Signal
	mon := New(db, chainClient, ctl, Config{}, func(_ context.Context, sig domain.Signal) error {
		handled = append(handled, sig)
		return nil
	})

	mon.scanWallet(context.Background(), domain.Wallet{Address: "W1", TotalScore: 70})
	if len(handled) != 1 {
		t.Fatalf("expected exactly one handled signal, got %d", len(handled))
	}
	if handled[0].Mint != "MintA" {
		t.Errorf("unexpected mint: %s", handled[0].Mint)
	}

	mon.scanWallet(context.Background(), domain.Wallet{Address: "W1", TotalScore: 70})
	if len(handled) != 1 {
		t.Errorf("expected the second scan to skip the already-seen signature, got %d handled", len(handled))
	}
}
