// Package anomaly is the Anomaly Flagger: runs a fixed sequence of
// checks over a wallet's enrichment and trade history, collecting any
// that fire into a single joined flag_reason. Grounded on
// original_source/analyzer/anomaly_detector.py.
package anomaly

import (
	"fmt"
	"math"
	"strings"

	"frontrun-agent/internal/domain"
)

var badTags = map[string]bool{
	"sandwich_bot": true,
	"scammer":      true,
	"rug_deployer": true,
}

// Check evaluates one wallet against its trade history and returns
// whether it should be flagged and why. Checks run in a fixed order;
// every check that fires contributes its message, joined with "; ".
func Check(w domain.Wallet, trades []domain.WalletTokenTrade) (flagged bool, reason string) {
	var reasons []string

	if r := checkTags(w.Tags); r != "" {
		reasons = append(reasons, r)
	}
	if r := checkWinRateCeiling(w.TotalTrades, w.TotalScore, trades); r != "" {
		reasons = append(reasons, r)
	}
	if r := checkTimingAnomaly(trades); r != "" {
		reasons = append(reasons, r)
	}
	if r := checkTradeSizeUniformity(trades); r != "" {
		reasons = append(reasons, r)
	}
	if r := checkFrequency(trades); r != "" {
		reasons = append(reasons, r)
	}

	if len(reasons) == 0 {
		return false, ""
	}
	return true, strings.Join(reasons, "; ")
}

func checkTags(tags []string) string {
	for _, t := range tags {
		if badTags[t] {
			return fmt.Sprintf("bad tag: %s", t)
		}
	}
	return ""
}

// checkWinRateCeiling needs the actual win rate, which we derive from
// the trade history rather than the wallet's stored score.
func checkWinRateCeiling(_ int, _ float64, trades []domain.WalletTokenTrade) string {
	if len(trades) < 5 {
		return ""
	}
	wins := 0
	for _, t := range trades {
		if t.PnLNative > 0 {
			wins++
		}
	}
	winRate := float64(wins) / float64(len(trades))
	if winRate >= 0.95 {
		return fmt.Sprintf("win rate ceiling: %.0f%% over %d trades", winRate*100, len(trades))
	}
	return ""
}

func checkTimingAnomaly(trades []domain.WalletTokenTrade) string {
	var ranks []int
	for _, t := range trades {
		if t.PnLNative > 0 && t.EntryRank > 0 {
			ranks = append(ranks, t.EntryRank)
		}
	}
	if len(ranks) == 0 {
		return ""
	}
	sum := 0
	for _, r := range ranks {
		sum += r
	}
	avg := float64(sum) / float64(len(ranks))

	if avg <= 10 && len(ranks) >= 3 {
		return fmt.Sprintf("sniper timing: avg rank %.1f over %d winners", avg, len(ranks))
	}
	if avg <= 5 && len(ranks) >= 2 {
		return fmt.Sprintf("sniper timing: avg rank %.1f over %d winners", avg, len(ranks))
	}
	return ""
}

func checkTradeSizeUniformity(trades []domain.WalletTokenTrade) string {
	var amounts []float64
	for _, t := range trades {
		if t.BuyAmount > 0 {
			amounts = append(amounts, math.Round(t.BuyAmount*10000)/10000)
		}
	}
	if len(amounts) < 3 {
		return ""
	}

	counts := make(map[float64]int)
	for _, a := range amounts {
		counts[a]++
	}
	var mostCommon int
	for _, c := range counts {
		if c > mostCommon {
			mostCommon = c
		}
	}
	if float64(mostCommon)/float64(len(amounts)) >= 0.8 {
		return fmt.Sprintf("uniform trade sizing: %d/%d trades share an amount", mostCommon, len(amounts))
	}
	return ""
}

func checkFrequency(trades []domain.WalletTokenTrade) string {
	if len(trades) >= 20 {
		return fmt.Sprintf("high-frequency trading: %d trades in sample", len(trades))
	}
	return ""
}
