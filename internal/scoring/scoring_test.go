package scoring

import (
	"path/filepath"
	"testing"
	"time"

	"frontrun-agent/internal/domain"
	"frontrun-agent/internal/store"
)

func TestPnlBand(t *testing.T) {
	cases := []struct {
		pnl  float64
		want float64
	}{
		{-5, 0}, {0, 0}, {0.5, 3}, {2, 8}, {7, 12}, {15, 15}, {30, 18}, {75, 22}, {150, 25},
	}
	for _, tc := range cases {
		if got := pnlBand(tc.pnl); got != tc.want {
			t.Errorf("pnlBand(%v) = %v, want %v", tc.pnl, got, tc.want)
		}
	}
}

func TestWinRateBand(t *testing.T) {
	if got := winRateBand(1, 1.0); got != 5 {
		t.Errorf("expected low sample size to cap at 5 regardless of win rate, got %v", got)
	}
	if got := winRateBand(2, 0.6); got != 10 {
		t.Errorf("expected the 2-trade >50%% exception to score 10, got %v", got)
	}
	if got := winRateBand(10, 0.85); got != 25 {
		t.Errorf("expected top win-rate band to score 25, got %v", got)
	}
	if got := winRateBand(10, 0.2); got != 5 {
		t.Errorf("expected bottom win-rate band to score 5, got %v", got)
	}
}

func TestTimingBand(t *testing.T) {
	if got := timingBand(0, 0); got != 3 {
		t.Errorf("expected no-rank-data to score 3, got %v", got)
	}
	if got := timingBand(10, 5); got != 25 {
		t.Errorf("expected early entry rank to score 25, got %v", got)
	}
	if got := timingBand(5000, 5); got != 3 {
		t.Errorf("expected a very late entry rank to score 3, got %v", got)
	}
}

func TestConsistencyBand(t *testing.T) {
	if got := consistencyBand(0); got != 5 {
		t.Errorf("expected zero unique winners to score 5, got %v", got)
	}
	if got := consistencyBand(12); got != 25 {
		t.Errorf("expected 10+ unique winners to score 25, got %v", got)
	}
}

func TestLogScaleSaturatesAtCap(t *testing.T) {
	if got := logScale(0, 40); got != 0 {
		t.Errorf("expected non-positive usd to score 0, got %v", got)
	}
	if got := logScale(100000, 40); got < 39.9 || got > 40 {
		t.Errorf("expected $100k to saturate near the cap, got %v", got)
	}
}

func TestHasBotTag(t *testing.T) {
	if !hasBotTag([]string{"whale", "sniper_bot"}) {
		t.Errorf("expected sniper_bot tag to be recognized")
	}
	if hasBotTag([]string{"whale", "smart_money"}) {
		t.Errorf("did not expect non-bot tags to match")
	}
}

func TestScorer_ScorePersistsCompositeScore(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "scoring.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer db.Close()

	if err := db.UpsertWallet(&domain.Wallet{Address: "W1", Trust: 1.0}); err != nil {
		t.Fatalf("upsert wallet: %v", err)
	}
	trade := &domain.WalletTokenTrade{
		WalletAddr: "W1", Mint: "MintA", PnLNative: 25, EntryRank: 30, FirstBuyAt: time.Now(),
	}
	if _, err := db.InsertWalletTokenTrade(trade); err != nil {
		t.Fatalf("insert trade: %v", err)
	}

	scorer := New(db, nil)
	score, err := scorer.Score("W1")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if score.Total <= 0 {
		t.Errorf("expected a positive composite score, got %+v", score)
	}

	w, err := db.GetWallet("W1")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.TotalScore != score.Total {
		t.Errorf("expected persisted score to match returned score, got %v vs %v", w.TotalScore, score.Total)
	}
}
