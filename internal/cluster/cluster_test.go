package cluster

import (
	"testing"
	"time"

	"frontrun-agent/internal/chain"
)

func TestScore_FundingOnlyStaysBelowTimingOnly(t *testing.T) {
	funding := score(evidence{hasFunding: true, fundingVolume: 2})
	timing := score(evidence{hasTiming: true, leadCount: 5, sharedTimedToks: 6})
	if funding >= timing {
		t.Errorf("expected timing evidence to outweigh funding evidence, got funding=%v timing=%v", funding, timing)
	}
}

func TestScore_MultipleEvidenceTypesEarnsBonus(t *testing.T) {
	single := score(evidence{hasFunding: true})
	combined := score(evidence{hasFunding: true, hasTransfer: true, hasOverlap: true})
	if combined <= single+0.20+0.10 {
		t.Errorf("expected a multi-type bonus on top of the individual weights, got combined=%v", combined)
	}
}

func TestScore_NeverExceedsOne(t *testing.T) {
	maxed := score(evidence{
		hasFunding: true, fundingVolume: 10,
		hasTransfer: true, transferCount: 10,
		hasTiming: true, leadCount: 10, sharedTimedToks: 10,
		hasOverlap: true, overlapCount: 10,
	})
	if maxed > 1.0 {
		t.Errorf("expected score to be capped at 1.0, got %v", maxed)
	}
}

func TestIsSideWallet_RequiresTimingEvidence(t *testing.T) {
	if isSideWallet(evidence{hasFunding: true, hasOverlap: true}) {
		t.Errorf("expected a non-timing candidate to not be classified as a side wallet")
	}
}

func TestIsSideWallet_TimingAloneNeedsSupportingEvidence(t *testing.T) {
	ev := evidence{hasTiming: true, avgLeadSeconds: 60, leadCount: 2}
	if isSideWallet(ev) {
		t.Errorf("expected timing with only 2 leads and no funding/overlap to not qualify")
	}
	ev.leadCount = 3
	if !isSideWallet(ev) {
		t.Errorf("expected 3+ leads alone to qualify as a side wallet")
	}
}

func TestPrimaryRelationship_PrefersTimingOverFunding(t *testing.T) {
	rel := primaryRelationship(evidence{hasTiming: true, leadCount: 2, hasFunding: true, fundingFrom: true})
	if rel != "timing_correlated" {
		t.Errorf("expected timing to take priority, got %q", rel)
	}
}

func TestPrimaryRelationship_DistinguishesFundingDirection(t *testing.T) {
	if got := primaryRelationship(evidence{hasFunding: true, fundingFrom: true}); got != "funding_source" {
		t.Errorf("expected funding_source, got %q", got)
	}
	if got := primaryRelationship(evidence{hasFunding: true, fundingFrom: false}); got != "funding_recipient" {
		t.Errorf("expected funding_recipient, got %q", got)
	}
}

func TestBuysFromHistory_IgnoresNonSwapAndStableTransfers(t *testing.T) {
	now := time.Now()
	history := []chain.ParsedTransaction{
		{
			Type: "TRANSFER", FeePayer: "Seed",
			TokenTransfers: []chain.TokenTransfer{{Mint: "MintA", To: "Seed"}},
		},
		{
			Type: "SWAP", FeePayer: "Seed", Timestamp: now,
			TokenTransfers: []chain.TokenTransfer{
				{Mint: "So11111111111111111111111111111111111111112", To: "Seed"},
				{Mint: "MintB", To: "Seed"},
			},
		},
	}
	buys := buysFromHistory("Seed", history)
	if _, ok := buys["MintA"]; ok {
		t.Errorf("expected a non-SWAP transfer to be ignored")
	}
	if _, ok := buys["So11111111111111111111111111111111111111112"]; ok {
		t.Errorf("expected wrapped SOL to be excluded from buy timestamps")
	}
	if ts, ok := buys["MintB"]; !ok || !ts.Equal(now) {
		t.Errorf("expected MintB to be recorded as a buy at %v, got %v (present=%v)", now, ts, ok)
	}
}

func TestBuysFromHistory_KeepsEarliestBuyPerMint(t *testing.T) {
	early := time.Now().Add(-time.Hour)
	late := time.Now()
	history := []chain.ParsedTransaction{
		{Type: "SWAP", FeePayer: "Seed", Timestamp: late, TokenTransfers: []chain.TokenTransfer{{Mint: "MintA", To: "Seed"}}},
		{Type: "SWAP", FeePayer: "Seed", Timestamp: early, TokenTransfers: []chain.TokenTransfer{{Mint: "MintA", To: "Seed"}}},
	}
	buys := buysFromHistory("Seed", history)
	if !buys["MintA"].Equal(early) {
		t.Errorf("expected the earliest buy timestamp to win, got %v", buys["MintA"])
	}
}
