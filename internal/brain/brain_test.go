package brain

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"frontrun-agent/internal/config"
	"frontrun-agent/internal/control"
	"frontrun-agent/internal/domain"
	"frontrun-agent/internal/market"
	"frontrun-agent/internal/notify"
	"frontrun-agent/internal/store"
	"frontrun-agent/internal/trading"
)

func newTestBrain(t *testing.T, maxOpenPositions int) (*store.Store, *Brain) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "brain.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctl := control.New(control.ModeDryRun)
	executor := trading.NewExecutor(db, nil, nil, market.New(), nil, ctl, nil, notify.NewLogChannel(), 50)
	cfg := config.BrainConfig{ScanWindowMinutes: 30, BasePositionSizeSOL: 0.1}
	return db, New(db, executor, ctl, cfg, maxOpenPositions)
}

func TestDefaultStrategy(t *testing.T) {
	s := defaultStrategy()
	if s.MinConfidence != 0.6 || s.ConsensusThreshold != 3 || s.PositionScale != 1.0 {
		t.Errorf("unexpected default strategy: %+v", s)
	}
	if s.WalletTrust == nil {
		t.Errorf("expected WalletTrust to be initialized, got nil")
	}
}

func TestBrain_AggregateComputesConsensusAndQuality(t *testing.T) {
	_, b := newTestBrain(t, 0)
	signals := []domain.Signal{
		{WalletAddr: "W1", Mint: "MintA", Type: domain.SignalBuy, Confidence: 0.8, WalletScore: 90},
		{WalletAddr: "W2", Mint: "MintA", Type: domain.SignalBuy, Confidence: 0.9, WalletScore: 80},
		{WalletAddr: "W3", Mint: "MintA", Type: domain.SignalBuy, Confidence: 0.7, WalletScore: 70},
	}
	opps := b.aggregate(signals)
	if len(opps) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(opps))
	}
	opp := opps[0]
	if opp.mint != "MintA" {
		t.Errorf("unexpected mint: %s", opp.mint)
	}
	if opp.confidence <= 0 {
		t.Errorf("expected positive confidence, got %v", opp.confidence)
	}
	if len(opp.uniqueWallets) != 3 {
		t.Errorf("expected 3 unique wallets, got %d", len(opp.uniqueWallets))
	}
}

func TestBrain_AggregateSeparatesBuysAndSells(t *testing.T) {
	_, b := newTestBrain(t, 0)
	signals := []domain.Signal{
		{WalletAddr: "W1", Mint: "MintA", Type: domain.SignalBuy, Confidence: 0.8, WalletScore: 90},
		{WalletAddr: "W2", Mint: "MintA", Type: domain.SignalSell, Confidence: 0.5, WalletScore: 60},
	}
	opps := b.aggregate(signals)
	if len(opps[0].buys) != 1 || len(opps[0].sells) != 1 {
		t.Errorf("expected 1 buy and 1 sell, got %d buys %d sells", len(opps[0].buys), len(opps[0].sells))
	}
}

func TestBrain_DecideSkipsOnCooldown(t *testing.T) {
	_, b := newTestBrain(t, 0)
	opp := opportunity{mint: "MintA", confidence: 0.9}
	b.recentDecisions["MintA"] = time.Now()

	decision, reasons := b.decide(opp, map[string]bool{}, time.Hour, 0.5)
	if decision != domain.DecisionSkip {
		t.Fatalf("expected skip on cooldown, got %v (%v)", decision, reasons)
	}
}

func TestBrain_DecideSkipsBlacklistedToken(t *testing.T) {
	_, b := newTestBrain(t, 0)
	opp := opportunity{mint: "MintA", confidence: 0.9}

	decision, _ := b.decide(opp, map[string]bool{"MintA": true}, time.Hour, 0.5)
	if decision != domain.DecisionSkip {
		t.Fatalf("expected skip for blacklisted token, got %v", decision)
	}
}

func TestBrain_DecideSkipsBelowConfidenceFloor(t *testing.T) {
	_, b := newTestBrain(t, 0)
	opp := opportunity{mint: "MintA", confidence: 0.3}

	decision, _ := b.decide(opp, map[string]bool{}, time.Hour, 0.6)
	if decision != domain.DecisionSkip {
		t.Fatalf("expected skip below confidence floor, got %v", decision)
	}
}

func TestBrain_DecideSkipsWhenKillSwitchEngaged(t *testing.T) {
	_, b := newTestBrain(t, 0)
	b.control.Engage("daily loss limit exceeded")
	opp := opportunity{mint: "MintA", confidence: 0.9}

	decision, _ := b.decide(opp, map[string]bool{}, time.Hour, 0.5)
	if decision != domain.DecisionSkip {
		t.Fatalf("expected skip while kill switch is engaged, got %v", decision)
	}
}

func TestBrain_DecideSkipsAtMaxOpenPositions(t *testing.T) {
	db, b := newTestBrain(t, 1)
	pos := &domain.Position{Mint: "Existing", EntryPriceUSD: 1, InvestedNative: 1, TokensHeld: 1}
	if _, err := db.OpenPosition(pos); err != nil {
		t.Fatalf("open position: %v", err)
	}

	opp := opportunity{mint: "MintA", confidence: 0.9}
	decision, _ := b.decide(opp, map[string]bool{}, time.Hour, 0.5)
	if decision != domain.DecisionSkip {
		t.Fatalf("expected skip at max open positions, got %v", decision)
	}
}

func TestBrain_DecideHoldsWhenAlreadyHoldingMint(t *testing.T) {
	db, b := newTestBrain(t, 0)
	pos := &domain.Position{Mint: "MintA", EntryPriceUSD: 1, InvestedNative: 1, TokensHeld: 1}
	if _, err := db.OpenPosition(pos); err != nil {
		t.Fatalf("open position: %v", err)
	}

	opp := opportunity{mint: "MintA", confidence: 0.9}
	decision, _ := b.decide(opp, map[string]bool{}, time.Hour, 0.5)
	if decision != domain.DecisionHold {
		t.Fatalf("expected hold for an already-open mint, got %v", decision)
	}
}

func TestBrain_DecideBuysWhenGatesPass(t *testing.T) {
	_, b := newTestBrain(t, 0)
	opp := opportunity{mint: "MintA", confidence: 0.9}
	decision, _ := b.decide(opp, map[string]bool{}, time.Hour, 0.5)
	if decision != domain.DecisionBuy {
		t.Fatalf("expected buy when all gates pass, got %v", decision)
	}
}

func TestBrain_CycleOpensPositionForHighConfidenceSignal(t *testing.T) {
	db, b := newTestBrain(t, 0)
	sig := &domain.Signal{WalletAddr: "W1", Mint: "MintA", Type: domain.SignalBuy, Confidence: 0.95, WalletScore: 90, Timestamp: time.Now()}
	if _, err := db.InsertSignal(sig); err != nil {
		t.Fatalf("insert signal: %v", err)
	}

	if err := b.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	open, err := db.GetOpenPositions()
	if err != nil {
		t.Fatalf("get open positions: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected the high-confidence signal to result in an open position, got %d", len(open))
	}
}

func TestBrain_LearnIsNoopBelowFiveTrades(t *testing.T) {
	_, b := newTestBrain(t, 0)
	before := b.Strategy()
	if err := b.Learn(context.Background()); err != nil {
		t.Fatalf("learn: %v", err)
	}
	after := b.Strategy()
	if before.MinConfidence != after.MinConfidence || after.Stats.LearningCycles != 0 {
		t.Errorf("expected no strategy mutation with fewer than 5 closed trades, got %+v", after)
	}
}

func TestBrain_AppendBlacklistFlagsConsistentLosers(t *testing.T) {
	_, b := newTestBrain(t, 0)
	outcomes := []store.ExecutedTradeOutcome{
		{Mint: "Loser", RealizedPnL: -0.1},
		{Mint: "Loser", RealizedPnL: -0.2},
		{Mint: "Winner", RealizedPnL: 0.1},
		{Mint: "Winner", RealizedPnL: -0.05},
	}
	b.appendBlacklist(outcomes)
	found := false
	for _, m := range b.strategy.TokenBlacklist {
		if m == "Loser" {
			found = true
		}
		if m == "Winner" {
			t.Errorf("did not expect a mixed-outcome mint to be blacklisted")
		}
	}
	if !found {
		t.Errorf("expected a consistently negative mint to be blacklisted")
	}
}
