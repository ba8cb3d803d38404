package market

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubProvider struct {
	name string
	snap Snapshot
	err  error
}

func (s stubProvider) Name() string { return s.name }

func (s stubProvider) Fetch(ctx context.Context, mint string) (Snapshot, error) {
	return s.snap, s.err
}

func TestSnapshot_IsEmpty(t *testing.T) {
	if !(Snapshot{}).IsEmpty() {
		t.Errorf("expected the zero value snapshot to be empty")
	}
	if (Snapshot{PriceUSD: 1}).IsEmpty() {
		t.Errorf("expected a non-zero price to make the snapshot non-empty")
	}
	if (Snapshot{MarketCapUSD: 1}).IsEmpty() {
		t.Errorf("expected a non-zero market cap to make the snapshot non-empty")
	}
}

func TestAdapter_FallsThroughEmptyProvidersToFirstNonEmpty(t *testing.T) {
	a := New(
		stubProvider{name: "first", snap: Snapshot{}},
		stubProvider{name: "second", snap: Snapshot{PriceUSD: 2, MarketCapUSD: 200}},
	)
	snap, err := a.Snapshot(context.Background(), "MintA")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.PriceUSD != 2 {
		t.Errorf("expected the second provider's snapshot, got %+v", snap)
	}
}

func TestAdapter_FallsThroughTransportErrorToNextProvider(t *testing.T) {
	a := New(
		stubProvider{name: "first", err: errors.New("timeout")},
		stubProvider{name: "second", snap: Snapshot{PriceUSD: 5, MarketCapUSD: 500}},
	)
	snap, err := a.Snapshot(context.Background(), "MintA")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.PriceUSD != 5 {
		t.Errorf("expected fallback to the working provider, got %+v", snap)
	}
}

func TestAdapter_ReturnsErrorWhenAllProvidersFail(t *testing.T) {
	a := New(stubProvider{name: "first", err: errors.New("down")})
	_, err := a.Snapshot(context.Background(), "MintA")
	if err == nil {
		t.Fatalf("expected an error when every provider fails")
	}
}

func TestAdapter_ReturnsEmptyWithNoErrorWhenProvidersReturnNothing(t *testing.T) {
	a := New(stubProvider{name: "first", snap: Snapshot{}})
	snap, err := a.Snapshot(context.Background(), "MintA")
	if err != nil {
		t.Fatalf("expected no error for an empty-but-successful provider, got %v", err)
	}
	if !snap.IsEmpty() {
		t.Errorf("expected an empty snapshot, got %+v", snap)
	}
}

func TestDexscreenerProvider_PicksHighestLiquidityPair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"pairs":[
			{"priceUsd":"1.0","fdv":1000,"liquidity":{"usd":500},"volume":{"h24":100},"baseToken":{"symbol":"LOW","name":"Low Liquidity"}},
			{"priceUsd":"2.0","fdv":2000,"liquidity":{"usd":5000},"volume":{"h24":200},"baseToken":{"symbol":"HIGH","name":"High Liquidity"}}
		]}`))
	}))
	defer srv.Close()

	p := NewDexscreenerProvider()
	p.baseURL = srv.URL

	snap, err := p.Fetch(context.Background(), "MintA")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if snap.Symbol != "HIGH" {
		t.Errorf("expected the highest-liquidity pair to win, got %+v", snap)
	}
	if snap.LiquidityUSD != 5000 {
		t.Errorf("unexpected liquidity: %v", snap.LiquidityUSD)
	}
}

func TestDexscreenerProvider_NoPairsReturnsEmptySnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pairs":[]}`))
	}))
	defer srv.Close()

	p := NewDexscreenerProvider()
	p.baseURL = srv.URL

	snap, err := p.Fetch(context.Background(), "MintA")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !snap.IsEmpty() {
		t.Errorf("expected an empty snapshot for no pairs, got %+v", snap)
	}
}

func TestBirdeyeProvider_Name(t *testing.T) {
	p := NewBirdeyeProvider("key")
	if p.Name() != "birdeye" {
		t.Errorf("unexpected provider name: %s", p.Name())
	}
}
