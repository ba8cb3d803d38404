package swap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"frontrun-agent/internal/chain"
)

func TestNew_DefaultsToAnonymousKeyWhenNoneGiven(t *testing.T) {
	c := New(nil, nil, 100)
	if len(c.apiKeys) != 1 || c.apiKeys[0] != "" {
		t.Errorf("expected a single empty api key placeholder, got %v", c.apiKeys)
	}
}

func TestNextAPIKey_RotatesThroughTheSet(t *testing.T) {
	c := New(nil, []string{"a", "b", "c"}, 100)
	seen := map[string]bool{}
	for i := 0; i < 6; i++ {
		seen[c.nextAPIKey()] = true
	}
	if len(seen) != 3 {
		t.Errorf("expected all 3 keys to be cycled through, got %v", seen)
	}
}

func TestClientPool_RoundRobinsAcrossClients(t *testing.T) {
	pool := newClientPool(3, time.Second)
	first := pool.get()
	second := pool.get()
	third := pool.get()
	fourth := pool.get()
	if first == second || second == third {
		t.Errorf("expected consecutive gets to return distinct clients")
	}
	if first != fourth {
		t.Errorf("expected the pool to wrap back around after its size")
	}
}

func TestConfirmWithin_ReportsConfirmedOnFinalizedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID int `json:"id"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		raw, _ := json.Marshal(map[string]interface{}{
			"value": []map[string]interface{}{{"slot": 1, "confirmationStatus": "finalized"}},
		})
		json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": raw})
	}))
	defer srv.Close()

	chainClient := chain.New(chain.Config{PrimaryURL: srv.URL, MaxRetries: 0})
	c := &Client{chain: chainClient}

	outcome := c.ConfirmWithin(context.Background(), &TxHandle{Signature: "Sig1"}, 5*time.Second)
	if !outcome.Confirmed {
		t.Errorf("expected a confirmed outcome, got %+v", outcome)
	}
}

func TestConfirmWithin_ReportsFailedOnTransactionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID int `json:"id"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		raw, _ := json.Marshal(map[string]interface{}{
			"value": []map[string]interface{}{{"slot": 1, "confirmationStatus": "finalized", "err": "InstructionError"}},
		})
		json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": raw})
	}))
	defer srv.Close()

	chainClient := chain.New(chain.Config{PrimaryURL: srv.URL, MaxRetries: 0})
	c := &Client{chain: chainClient}

	outcome := c.ConfirmWithin(context.Background(), &TxHandle{Signature: "Sig1"}, 5*time.Second)
	if !outcome.Failed {
		t.Errorf("expected a failed outcome when the status carries an err, got %+v", outcome)
	}
}
