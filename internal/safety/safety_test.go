package safety

import (
	"path/filepath"
	"testing"

	"frontrun-agent/internal/control"
	"frontrun-agent/internal/domain"
	"frontrun-agent/internal/store"
)

func newTestRails(t *testing.T, cfg Config) (*store.Store, *control.TradingControl, *Rails) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "safety.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	ctl := control.New(control.ModeLive)
	return db, ctl, New(db, ctl, cfg)
}

func TestPreTradeCheck_RejectsWhenKillSwitchEngaged(t *testing.T) {
	_, ctl, rails := newTestRails(t, Config{BasePositionSizeSOL: 0.1})
	ctl.Engage("test")

	ok, reason := rails.PreTradeCheck(domain.Signal{}, control.ModeLive, 10)
	if ok {
		t.Fatalf("expected rejection while kill switch is engaged")
	}
	if reason != "kill switch engaged" {
		t.Errorf("unexpected reason: %q", reason)
	}
}

func TestPreTradeCheck_RejectsNonLiveMode(t *testing.T) {
	_, _, rails := newTestRails(t, Config{BasePositionSizeSOL: 0.1})
	ok, reason := rails.PreTradeCheck(domain.Signal{}, control.ModeDryRun, 10)
	if ok {
		t.Fatalf("expected rejection for non-live mode")
	}
	if reason != "mode is not live" {
		t.Errorf("unexpected reason: %q", reason)
	}
}

func TestPreTradeCheck_RejectsInsufficientBalance(t *testing.T) {
	_, _, rails := newTestRails(t, Config{BasePositionSizeSOL: 1.0})
	ok, reason := rails.PreTradeCheck(domain.Signal{}, control.ModeLive, 0.5)
	if ok {
		t.Fatalf("expected rejection for insufficient balance")
	}
	if reason != "insufficient balance" {
		t.Errorf("unexpected reason: %q", reason)
	}
}

func TestPreTradeCheck_RejectsAtMaxOpenPositions(t *testing.T) {
	db, _, rails := newTestRails(t, Config{BasePositionSizeSOL: 0.1, MaxOpenPositions: 1})
	if _, err := db.OpenPosition(&domain.Position{Mint: "Existing", EntryPriceUSD: 1, InvestedNative: 1, TokensHeld: 1}); err != nil {
		t.Fatalf("open position: %v", err)
	}

	ok, reason := rails.PreTradeCheck(domain.Signal{Mint: "New"}, control.ModeLive, 10)
	if ok {
		t.Fatalf("expected rejection at max open positions")
	}
	if reason != "max open positions reached" {
		t.Errorf("unexpected reason: %q", reason)
	}
}

func TestPreTradeCheck_RejectsAtPerTokenCap(t *testing.T) {
	db, _, rails := newTestRails(t, Config{BasePositionSizeSOL: 0.1, PerTokenCapSOL: 1.0})
	if _, err := db.OpenPosition(&domain.Position{Mint: "MintA", EntryPriceUSD: 1, InvestedNative: 1.5, TokensHeld: 1}); err != nil {
		t.Fatalf("open position: %v", err)
	}

	ok, reason := rails.PreTradeCheck(domain.Signal{Mint: "MintA"}, control.ModeLive, 10)
	if ok {
		t.Fatalf("expected rejection at per-token cap")
	}
	if reason != "per-token cap reached" {
		t.Errorf("unexpected reason: %q", reason)
	}
}

func TestPreTradeCheck_AllowsWhenEveryGatePasses(t *testing.T) {
	_, _, rails := newTestRails(t, Config{BasePositionSizeSOL: 0.1})
	ok, reason := rails.PreTradeCheck(domain.Signal{Mint: "MintA"}, control.ModeLive, 10)
	if !ok {
		t.Fatalf("expected trade to be allowed, got rejection: %q", reason)
	}
}

func TestCalculatePositionSize_ScalesDownMidConfidence(t *testing.T) {
	_, _, rails := newTestRails(t, Config{BasePositionSizeSOL: 0.1})
	full := rails.CalculatePositionSize(domain.Signal{Confidence: 0.9}, 100)
	reduced := rails.CalculatePositionSize(domain.Signal{Confidence: 0.65}, 100)
	if reduced >= full {
		t.Errorf("expected mid-confidence size %v to be smaller than high-confidence size %v", reduced, full)
	}
}

func TestCalculatePositionSize_CapsAtMaxPositionSize(t *testing.T) {
	_, _, rails := newTestRails(t, Config{BasePositionSizeSOL: 5.0, MaxPositionSizeSOL: 1.0})
	size := rails.CalculatePositionSize(domain.Signal{Confidence: 0.9}, 100)
	if size > 1.0 {
		t.Errorf("expected position size to be capped at 1.0, got %v", size)
	}
}

func TestCalculatePositionSize_NeverBelowFloor(t *testing.T) {
	_, _, rails := newTestRails(t, Config{BasePositionSizeSOL: 0.0001})
	size := rails.CalculatePositionSize(domain.Signal{Confidence: 0.9}, 100)
	if size < 0.001 {
		t.Errorf("expected position size floor of 0.001, got %v", size)
	}
}

func TestPostTradeCheck_EngagesKillSwitchOnLossBreach(t *testing.T) {
	db, ctl, rails := newTestRails(t, Config{MaxDailyLossSOL: 0.5})
	if _, err := db.OpenPosition(&domain.Position{Mint: "MintA", EntryPriceUSD: 1, InvestedNative: 1, TokensHeld: 1}); err != nil {
		t.Fatalf("open position: %v", err)
	}
	if err := db.ClosePosition(mustOpenPositionID(t, db, "MintA"), "stop_loss", -1.0); err != nil {
		t.Fatalf("close position: %v", err)
	}

	if err := rails.PostTradeCheck(); err != nil {
		t.Fatalf("post trade check: %v", err)
	}
	if !ctl.Paused() {
		t.Errorf("expected kill switch to engage after a daily loss breach")
	}
}

func mustOpenPositionID(t *testing.T, db *store.Store, mint string) int64 {
	t.Helper()
	pos, err := db.GetPositionByToken(mint)
	if err != nil || pos == nil {
		t.Fatalf("expected an open position for %s: %v", mint, err)
	}
	return pos.ID
}
