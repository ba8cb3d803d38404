package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func rpcServer(t *testing.T, handler func(method string) (interface{}, *rpcError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		result, rpcErr := handler(req.Method)
		resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
		if rpcErr != nil {
			resp.Error = rpcErr
		} else {
			raw, _ := json.Marshal(result)
			resp.Result = raw
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestGetNativeBalance_ReturnsLamports(t *testing.T) {
	srv := rpcServer(t, func(method string) (interface{}, *rpcError) {
		if method != "getBalance" {
			t.Fatalf("unexpected method: %s", method)
		}
		return map[string]interface{}{"value": 1500000000}, nil
	})
	defer srv.Close()

	c := New(Config{PrimaryURL: srv.URL, MaxRetries: 0})
	lamports, err := c.GetNativeBalance(context.Background(), "Addr1")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if lamports != 1500000000 {
		t.Errorf("unexpected lamports: %d", lamports)
	}
}

func TestCall_FallsBackToSecondaryOnPrimaryFailure(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer primary.Close()

	fallback := rpcServer(t, func(method string) (interface{}, *rpcError) {
		return map[string]interface{}{"value": 42}, nil
	})
	defer fallback.Close()

	c := New(Config{PrimaryURL: primary.URL, FallbackURL: fallback.URL, MaxRetries: 0})
	lamports, err := c.GetNativeBalance(context.Background(), "Addr1")
	if err != nil {
		t.Fatalf("expected fallback to serve the call, got error: %v", err)
	}
	if lamports != 42 {
		t.Errorf("unexpected lamports from fallback: %d", lamports)
	}
}

func TestCall_RPCApplicationErrorIsNotRetried(t *testing.T) {
	calls := 0
	srv := rpcServer(t, func(method string) (interface{}, *rpcError) {
		calls++
		return nil, &rpcError{Code: -32000, Message: "invalid address"}
	})
	defer srv.Close()

	c := New(Config{PrimaryURL: srv.URL, MaxRetries: 3})
	_, err := c.GetNativeBalance(context.Background(), "Addr1")
	if err == nil {
		t.Fatalf("expected an rpc application error")
	}
	if calls != 1 {
		t.Errorf("expected a well-formed rpc error to short-circuit retries, got %d calls", calls)
	}
}

func TestListSignatures_ExtractsSignatureStrings(t *testing.T) {
	srv := rpcServer(t, func(method string) (interface{}, *rpcError) {
		if method != "getSignaturesForAddress" {
			t.Fatalf("unexpected method: %s", method)
		}
		return []map[string]string{{"signature": "Sig1"}, {"signature": "Sig2"}}, nil
	})
	defer srv.Close()

	c := New(Config{PrimaryURL: srv.URL, MaxRetries: 0})
	sigs, err := c.ListSignatures(context.Background(), "Addr1", 10, "")
	if err != nil {
		t.Fatalf("list signatures: %v", err)
	}
	if len(sigs) != 2 || sigs[0] != "Sig1" || sigs[1] != "Sig2" {
		t.Errorf("unexpected signatures: %v", sigs)
	}
}

func TestConfirm_ReturnsOnFinalizedStatus(t *testing.T) {
	srv := rpcServer(t, func(method string) (interface{}, *rpcError) {
		if method != "getSignatureStatuses" {
			t.Fatalf("unexpected method: %s", method)
		}
		return map[string]interface{}{
			"value": []map[string]interface{}{{"slot": 100, "confirmationStatus": "finalized"}},
		}, nil
	})
	defer srv.Close()

	c := New(Config{PrimaryURL: srv.URL, MaxRetries: 0})
	status, err := c.Confirm(context.Background(), "Sig1", 5*time.Second)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !status.Finalized {
		t.Errorf("expected finalized status, got %+v", status)
	}
}
