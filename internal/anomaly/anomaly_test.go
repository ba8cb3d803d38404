package anomaly

import (
	"testing"

	"frontrun-agent/internal/domain"
)

func TestCheck_FlagsBadTag(t *testing.T) {
	w := domain.Wallet{Tags: []string{"whale", "sandwich_bot"}}
	flagged, reason := Check(w, nil)
	if !flagged {
		t.Fatalf("expected a bad tag to flag the wallet")
	}
	if reason == "" {
		t.Errorf("expected a non-empty reason")
	}
}

func TestCheck_CleanWalletIsNotFlagged(t *testing.T) {
	w := domain.Wallet{Tags: []string{"smart_money"}}
	trades := []domain.WalletTokenTrade{
		{PnLNative: 1, EntryRank: 50, BuyAmount: 0.5},
		{PnLNative: -1, EntryRank: 60, BuyAmount: 0.7},
		{PnLNative: 1, EntryRank: 40, BuyAmount: 0.3},
	}
	flagged, reason := Check(w, trades)
	if flagged {
		t.Errorf("expected a clean wallet to not be flagged, got reason %q", reason)
	}
}

func TestCheckWinRateCeiling_RequiresMinimumSampleSize(t *testing.T) {
	trades := []domain.WalletTokenTrade{{PnLNative: 1}, {PnLNative: 1}, {PnLNative: 1}}
	if got := checkWinRateCeiling(0, 0, trades); got != "" {
		t.Errorf("expected too few trades to skip the check, got %q", got)
	}
}

func TestCheckWinRateCeiling_FlagsSuspiciouslyHighWinRate(t *testing.T) {
	trades := make([]domain.WalletTokenTrade, 10)
	for i := range trades {
		trades[i] = domain.WalletTokenTrade{PnLNative: 1}
	}
	if got := checkWinRateCeiling(0, 0, trades); got == "" {
		t.Errorf("expected a 100%% win rate over 10 trades to be flagged")
	}
}

func TestCheckTimingAnomaly_FlagsConsistentlyEarlyEntries(t *testing.T) {
	trades := []domain.WalletTokenTrade{
		{PnLNative: 1, EntryRank: 3},
		{PnLNative: 1, EntryRank: 4},
		{PnLNative: 1, EntryRank: 5},
	}
	if got := checkTimingAnomaly(trades); got == "" {
		t.Errorf("expected consistently early entry ranks to be flagged")
	}
}

func TestCheckTimingAnomaly_IgnoresLosingTrades(t *testing.T) {
	trades := []domain.WalletTokenTrade{
		{PnLNative: -1, EntryRank: 1},
		{PnLNative: -1, EntryRank: 2},
	}
	if got := checkTimingAnomaly(trades); got != "" {
		t.Errorf("expected a loss-only sample to produce no ranks to flag, got %q", got)
	}
}

func TestCheckTradeSizeUniformity_FlagsRepeatedAmount(t *testing.T) {
	trades := []domain.WalletTokenTrade{
		{BuyAmount: 0.5}, {BuyAmount: 0.5}, {BuyAmount: 0.5}, {BuyAmount: 0.5}, {BuyAmount: 0.7},
	}
	if got := checkTradeSizeUniformity(trades); got == "" {
		t.Errorf("expected a dominant repeated trade size to be flagged")
	}
}

func TestCheckTradeSizeUniformity_RequiresMinimumSample(t *testing.T) {
	trades := []domain.WalletTokenTrade{{BuyAmount: 0.5}, {BuyAmount: 0.5}}
	if got := checkTradeSizeUniformity(trades); got != "" {
		t.Errorf("expected fewer than 3 sized trades to skip the check, got %q", got)
	}
}

func TestCheckFrequency_FlagsHighVolumeSample(t *testing.T) {
	trades := make([]domain.WalletTokenTrade, 20)
	if got := checkFrequency(trades); got == "" {
		t.Errorf("expected 20 trades to be flagged as high frequency")
	}
	if got := checkFrequency(trades[:19]); got != "" {
		t.Errorf("expected 19 trades to stay below the frequency threshold, got %q", got)
	}
}
