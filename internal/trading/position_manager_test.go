package trading

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"frontrun-agent/internal/control"
	"frontrun-agent/internal/domain"
	"frontrun-agent/internal/market"
	"frontrun-agent/internal/notify"
	"frontrun-agent/internal/store"
)

// fixedPriceProvider always reports a fixed USD price, letting tests
// drive the position manager's multiplier math deterministically.
type fixedPriceProvider struct {
	price float64
}

func (p fixedPriceProvider) Name() string { return "fixed" }

func (p fixedPriceProvider) Fetch(ctx context.Context, mint string) (market.Snapshot, error) {
	return market.Snapshot{PriceUSD: p.price, MarketCapUSD: p.price * 1000}, nil
}

func newTestPositionManager(t *testing.T, price float64) (*store.Store, *PositionManager) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "pm.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctl := control.New(control.ModeDryRun)
	marketA := market.New(fixedPriceProvider{price: price})
	executor := NewExecutor(db, nil, nil, marketA, nil, ctl, nil, notify.NewLogChannel(), 50)
	posMgr := NewPositionManager(db, marketA, nil, executor, ctl, control.ModeDryRun, time.Millisecond)
	return db, posMgr
}

func openTestPosition(t *testing.T, db *store.Store, entryPrice float64, openedAt time.Time) domain.Position {
	t.Helper()
	pos := &domain.Position{
		Mint:           "MintA",
		EntryPriceUSD:  entryPrice,
		InvestedNative: 1.0,
		TokensHeld:     100,
		TakeProfits: []domain.TakeProfitLevel{
			{Multiplier: 2.0, Fraction: 0.50},
			{Multiplier: 4.0, Fraction: 0.50},
			{Multiplier: 8.0, Fraction: 1.00},
		},
		SourceType: domain.SourceHuman,
		Status:     domain.PositionOpen,
	}
	id, err := db.OpenPosition(pos)
	if err != nil {
		t.Fatalf("open position: %v", err)
	}
	pos.ID = id
	pos.OpenedAt = openedAt
	return *pos
}

func TestPositionManager_TakeProfitHitsFirstUnhitLevel(t *testing.T) {
	db, posMgr := newTestPositionManager(t, 2.0) // multiplier 2x entry
	pos := openTestPosition(t, db, 1.0, time.Now())

	posMgr.evaluate(context.Background(), pos)

	open, err := db.GetOpenPositions()
	if err != nil {
		t.Fatalf("get open positions: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected position to remain open after partial take-profit, got %d open", len(open))
	}
	if !open[0].TakeProfits[0].Hit {
		t.Errorf("expected first take-profit level to be marked hit")
	}
	if open[0].TakeProfits[1].Hit {
		t.Errorf("expected second take-profit level to remain unhit")
	}
}

func TestPositionManager_StopLossClosesPosition(t *testing.T) {
	// exitRules[SourceHuman].StopLossMultiplier is 0.6; price falling to
	// half entry should close the position outright.
	db, posMgr := newTestPositionManager(t, 0.5)
	pos := openTestPosition(t, db, 1.0, time.Now())

	posMgr.evaluate(context.Background(), pos)

	open, err := db.GetOpenPositions()
	if err != nil {
		t.Fatalf("get open positions: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("expected position to be closed by stop loss, got %d still open", len(open))
	}
}

func TestPositionManager_MaxHoldClosesPosition(t *testing.T) {
	db, posMgr := newTestPositionManager(t, 1.1) // above entry, below any TP
	pos := openTestPosition(t, db, 1.0, time.Now().Add(-25*time.Hour))

	posMgr.evaluate(context.Background(), pos)

	open, err := db.GetOpenPositions()
	if err != nil {
		t.Fatalf("get open positions: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("expected position past max hold to be closed, got %d still open", len(open))
	}
}

func TestPositionManager_NoTriggerLeavesPositionUntouched(t *testing.T) {
	db, posMgr := newTestPositionManager(t, 1.1)
	pos := openTestPosition(t, db, 1.0, time.Now())

	posMgr.evaluate(context.Background(), pos)

	open, err := db.GetOpenPositions()
	if err != nil {
		t.Fatalf("get open positions: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected position to remain open, got %d open", len(open))
	}
	if open[0].TakeProfits[0].Hit {
		t.Errorf("did not expect any take-profit level to be hit yet")
	}
}
