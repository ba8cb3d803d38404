package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseTransactions_StampsUTCTimestamp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		result := []ParsedTransaction{{Signature: "Sig1", Type: "SWAP", UnixTimestamp: 1700000000}}
		raw, _ := json.Marshal(result)
		json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: raw})
	}))
	defer srv.Close()

	c := New(Config{PrimaryURL: srv.URL, MaxRetries: 0})
	out, err := c.ParseTransactions(context.Background(), []string{"Sig1"})
	if err != nil {
		t.Fatalf("parse transactions: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 parsed transaction, got %d", len(out))
	}
	if out[0].Timestamp.Unix() != 1700000000 {
		t.Errorf("expected timestamp to be stamped from UnixTimestamp, got %v", out[0].Timestamp)
	}
	if out[0].Timestamp.Location().String() != "UTC" {
		t.Errorf("expected UTC location, got %v", out[0].Timestamp.Location())
	}
}

func TestWalletHistory_StopsWhenSignaturesRunOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		var raw json.RawMessage
		switch req.Method {
		case "getSignaturesForAddress":
			raw, _ = json.Marshal([]map[string]string{{"signature": "Sig1"}})
		case "getParsedTransactions":
			raw, _ = json.Marshal([]ParsedTransaction{{Signature: "Sig1", Type: "SWAP"}})
		}
		json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: raw})
	}))
	defer srv.Close()

	c := New(Config{PrimaryURL: srv.URL, MaxRetries: 0})
	out, err := c.WalletHistory(context.Background(), "Addr1", 50)
	if err != nil {
		t.Fatalf("wallet history: %v", err)
	}
	if len(out) != 1 {
		t.Errorf("expected history to stop after the single available page, got %d transactions", len(out))
	}
}
