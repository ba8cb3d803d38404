// Package scoring is the Wallet Scorer: computes the 0-100 composite
// score from aggregated wallet-token trades plus provider enrichment,
// and the periodic Refresher that re-scores a provider's wallet list
// and promotes the top performers to monitored. Banding and weights
// are grounded on original_source/analyzer/wallet_scorer.py.
package scoring

import (
	"context"
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"frontrun-agent/internal/domain"
	"frontrun-agent/internal/market"
	"frontrun-agent/internal/store"
	"frontrun-agent/internal/walletintel"
)

const maxCountedTrades = 15000

// Score is the four sub-scores plus their sum, already clamped and
// rounded.
type Score struct {
	PnL         float64
	WinRate     float64
	Timing      float64
	Consistency float64
	Total       float64
}

// Scorer computes per-wallet composite scores from Store-aggregated
// trade history, optionally replaced by richer provider data.
type Scorer struct {
	db    *store.Store
	intel *walletintel.Client
}

// New builds a Scorer. intel may be nil, in which case scoring uses
// only locally aggregated trade history.
func New(db *store.Store, intel *walletintel.Client) *Scorer {
	return &Scorer{db: db, intel: intel}
}

// Score computes and persists the composite score for address.
func (s *Scorer) Score(address string) (Score, error) {
	trades, err := s.db.GetWalletTokenTradesForWallet(address)
	if err != nil {
		return Score{}, err
	}
	if len(trades) > maxCountedTrades {
		trades = trades[:maxCountedTrades]
	}

	var totalPnL float64
	var wins int
	var rankSum float64
	var rankCount int
	winningTokens := make(map[string]struct{})

	for _, t := range trades {
		totalPnL += t.PnLNative
		if t.PnLNative > 0 {
			wins++
			winningTokens[t.Mint] = struct{}{}
		}
		if t.EntryRank > 0 {
			rankSum += float64(t.EntryRank)
			rankCount++
		}
	}

	winRate := 0.0
	if len(trades) > 0 {
		winRate = float64(wins) / float64(len(trades))
	}
	avgRank := 0.0
	if rankCount > 0 {
		avgRank = rankSum / float64(rankCount)
	}

	effectivePnL := totalPnL
	if s.intel != nil {
		if stats, ok := s.intel.WalletStats(address); ok {
			providerPnLNative := stats.Profit30dUSD / market.SOLReferencePriceUSD
			if providerPnLNative > effectivePnL {
				effectivePnL = providerPnLNative
			}
		}
	}

	sc := Score{
		PnL:         pnlBand(effectivePnL),
		WinRate:     winRateBand(len(trades), winRate),
		Timing:      timingBand(avgRank, rankCount),
		Consistency: consistencyBand(len(winningTokens)),
	}
	sc.Total = clamp(round1(sc.PnL+sc.WinRate+sc.Timing+sc.Consistency), 0, 100)

	if err := s.db.UpdateWalletScore(address, sc.PnL, sc.WinRate, sc.Timing, sc.Consistency, sc.Total); err != nil {
		return sc, err
	}
	return sc, nil
}

func pnlBand(pnl float64) float64 {
	switch {
	case pnl >= 100:
		return 25
	case pnl >= 50:
		return 22
	case pnl >= 20:
		return 18
	case pnl >= 10:
		return 15
	case pnl >= 5:
		return 12
	case pnl >= 1:
		return 8
	case pnl > 0:
		return 3
	default:
		return 0
	}
}

func winRateBand(tradeCount int, winRate float64) float64 {
	if tradeCount < 3 {
		if tradeCount == 2 && winRate > 0.5 {
			return 10
		}
		return 5
	}
	switch {
	case winRate >= 0.8:
		return 25
	case winRate >= 0.7:
		return 20
	case winRate >= 0.6:
		return 15
	case winRate >= 0.5:
		return 10
	default:
		return 5
	}
}

func timingBand(avgRank float64, rankCount int) float64 {
	if rankCount == 0 {
		return 3
	}
	switch {
	case avgRank <= 50:
		return 25
	case avgRank <= 100:
		return 22
	case avgRank <= 200:
		return 18
	case avgRank <= 500:
		return 12
	case avgRank <= 1000:
		return 8
	default:
		return 3
	}
}

func consistencyBand(uniqueWinners int) float64 {
	switch {
	case uniqueWinners >= 10:
		return 25
	case uniqueWinners >= 7:
		return 22
	case uniqueWinners >= 5:
		return 18
	case uniqueWinners >= 3:
		return 14
	case uniqueWinners >= 2:
		return 10
	default:
		return 5
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// botTags are GMGN-style tags the Refresher treats as an automatic
// bot classification regardless of trade speed.
var botTags = map[string]bool{
	"sandwich_bot": true,
	"sniper_bot":   true,
	"mev_bot":      true,
	"copy_bot":     true,
	"arb_bot":      true,
}

// Refresher periodically re-scans a provider's wallet population,
// applies the composite ranking formula, and promotes the top N to
// monitored.
type Refresher struct {
	db              *store.Store
	intel           *walletintel.Client
	botSpeedPerDay  float64
	topN            int
}

// NewRefresher builds a Refresher. botSpeedPerDay is the trades/day
// threshold above which a wallet is treated as bot-speed even without
// a bot tag; topN bounds how many wallets end up monitored.
func NewRefresher(db *store.Store, intel *walletintel.Client, botSpeedPerDay float64, topN int) *Refresher {
	return &Refresher{db: db, intel: intel, botSpeedPerDay: botSpeedPerDay, topN: topN}
}

type rankedWallet struct {
	address string
	score   float64
}

// Run re-scores every wallet the Store knows about and promotes the
// top N by composite score to monitored, demoting the rest.
func (r *Refresher) Run(ctx context.Context) error {
	wallets, err := r.db.TopWallets(100000, false)
	if err != nil {
		return err
	}

	copyPerf, err := r.db.CopyPerformanceByWallet()
	if err != nil {
		return err
	}

	ranked := make([]rankedWallet, 0, len(wallets))
	for _, w := range wallets {
		composite, isBot := r.composite(w, copyPerf[w.Address])
		ranked = append(ranked, rankedWallet{address: w.Address, score: composite})
		if isBot {
			log.Debug().Str("wallet", w.Address).Msg("refresher: tagged bot-speed")
		}
	}

	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	for i, rw := range ranked {
		monitored := i < r.topN
		if err := r.db.SetWalletMonitored(rw.address, monitored); err != nil {
			log.Error().Err(err).Str("wallet", rw.address).Msg("refresher: failed to set monitored flag")
		}
	}
	return nil
}

// composite implements the spec's additive Refresher formula:
// profit_score(log-scale,0-40) + winrate_score(0-25) +
// consistency_score(0-20) + balance_score(0-10) + bot_penalty(-10) +
// copy_bonus(+/-5). original_source's Python refresher instead
// multiplies several of these factors together; that formula is
// superseded here because the specification gives an explicit,
// unambiguous additive one.
func (r *Refresher) composite(w domain.Wallet, ourCopyPnL float64) (float64, bool) {
	profit := w.Profit30dUSD
	winRate := w.WinRate30d
	trades := w.Buys30d + w.Sells30d
	tags := w.Tags
	balance := w.SOLBalance

	if r.intel != nil {
		if stats, ok := r.intel.WalletStats(w.Address); ok {
			profit = stats.Profit30dUSD
			winRate = stats.WinRate
			trades = stats.Buys30d + stats.Sells30d
			tags = stats.Tags
			balance = stats.SolBalance
		}
	}

	profitScore := logScale(profit, 40)
	winrateScore := clamp(winRate*25, 0, 25)
	consistencyScore := clamp(float64(trades)/5, 0, 20)
	balanceScore := clamp(balance/10*10, 0, 10)

	isBot := hasBotTag(tags)
	if !isBot && r.botSpeedPerDay > 0 && float64(trades)/30.0 >= r.botSpeedPerDay {
		isBot = true
	}
	botPenalty := 0.0
	if isBot {
		botPenalty = -10
	}

	copyBonus := 0.0
	switch {
	case ourCopyPnL > 0:
		copyBonus = 5
	case ourCopyPnL < 0:
		copyBonus = -5
	}

	return profitScore + winrateScore + consistencyScore + balanceScore + botPenalty + copyBonus, isBot
}

func hasBotTag(tags []string) bool {
	for _, t := range tags {
		if botTags[t] {
			return true
		}
	}
	return false
}

// logScale maps a non-negative USD value onto [0, cap] on a log scale,
// saturating at $100k.
func logScale(usd float64, cap float64) float64 {
	if usd <= 0 {
		return 0
	}
	const saturationUSD = 100000.0
	v := math.Log10(usd+1) / math.Log10(saturationUSD+1) * cap
	return clamp(v, 0, cap)
}
