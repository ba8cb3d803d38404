// Package validator is the Signal Validator: applies token-safety
// checks, a honeypot probe, risk caps, consensus detection and
// wallet-type classification to every raw buy signal before it
// reaches the Trade Executor. Grounded on the teacher's pre-trade gate
// ordering in internal/trading/executor.go's executeBuy, generalized
// into the ten-gate sequence the specification names.
package validator

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"frontrun-agent/internal/control"
	"frontrun-agent/internal/domain"
	"frontrun-agent/internal/market"
	"frontrun-agent/internal/store"
	"frontrun-agent/internal/swap"
)

// Config holds the tunable thresholds the validator gates on.
type Config struct {
	MinLiquidityUSD       float64
	MinCopyTradeMcapUSD   float64
	MaxCopyTradeMcapUSD   float64
	PerTokenCapSOL        float64
	MaxOpenPositions      int
	DailyLossLimitSOL     float64
	ConsensusWindow       time.Duration
	BotSpeedTradesPerDay  float64
	BasePositionSizeSOL   float64
	ConsensusMultiplier   float64
	BotMultiplier         float64
	MaxPositionSizeSOL    float64
}

// Validator applies the fixed gate sequence.
type Validator struct {
	db      *store.Store
	market  *market.Adapter
	swap    *swap.Client
	control *control.TradingControl
	cfg     Config

	recentBuys map[string][]buyRecord // mint -> recent (wallet, ts)
}

type buyRecord struct {
	wallet string
	at     time.Time
}

func New(db *store.Store, marketAdapter *market.Adapter, swapClient *swap.Client, ctl *control.TradingControl, cfg Config) *Validator {
	if cfg.ConsensusWindow == 0 {
		cfg.ConsensusWindow = 60 * time.Second
	}
	if cfg.ConsensusMultiplier == 0 {
		cfg.ConsensusMultiplier = 1.5
	}
	if cfg.BotMultiplier == 0 {
		cfg.BotMultiplier = 0.5
	}
	return &Validator{
		db: db, market: marketAdapter, swap: swapClient, control: ctl, cfg: cfg,
		recentBuys: make(map[string][]buyRecord),
	}
}

// Result is the validator's verdict for a signal.
type Result struct {
	ShouldTrade  bool
	Signal       domain.Signal
	SkipReason   string
	PositionSize float64
}

// Evaluate runs the ten gates in order, returning as soon as one
// fails.
func (v *Validator) Evaluate(ctx context.Context, sig domain.Signal, blacklist map[string]bool, botTags map[string]bool, tradesPerDay map[string]float64) Result {
	if v.control.Paused() {
		return skip(sig, "kill switch engaged")
	}

	if blacklist[sig.Mint] {
		return skip(sig, "token blacklisted")
	}

	openCount, err := v.db.GetOpenPositionCount()
	if err != nil {
		return skip(sig, "failed to read open position count")
	}
	if v.cfg.MaxOpenPositions > 0 && openCount >= v.cfg.MaxOpenPositions {
		return skip(sig, "max open positions reached")
	}

	pnl, err := v.db.TodaysPnL()
	if err == nil && v.cfg.DailyLossLimitSOL > 0 && pnl <= -v.cfg.DailyLossLimitSOL {
		v.control.Engage("daily loss limit breached")
		return skip(sig, "daily loss limit breached")
	}

	if existing, err := v.db.GetPositionByToken(sig.Mint); err == nil && existing != nil {
		if v.cfg.PerTokenCapSOL > 0 && existing.InvestedNative >= v.cfg.PerTokenCapSOL {
			return skip(sig, "per-token cap reached")
		}
	}

	snap, err := v.market.Snapshot(ctx, sig.Mint)
	if err != nil || snap.IsEmpty() {
		return skip(sig, "no market data")
	}
	if snap.LiquidityUSD < v.cfg.MinLiquidityUSD {
		return skip(sig, "liquidity below floor")
	}
	if v.cfg.MinCopyTradeMcapUSD > 0 && snap.MarketCapUSD < v.cfg.MinCopyTradeMcapUSD {
		return skip(sig, "market cap below floor")
	}
	if v.cfg.MaxCopyTradeMcapUSD > 0 && snap.MarketCapUSD > v.cfg.MaxCopyTradeMcapUSD {
		return skip(sig, "market cap above ceiling")
	}

	if v.swap != nil {
		switch v.swap.CanSell(ctx, sig.Mint, 0) {
		case swap.SellNo:
			return skip(sig, "honeypot probe failed")
		case swap.SellUnknown:
			log.Warn().Str("mint", sig.Mint).Msg("validator: honeypot probe unreachable, treating as sellable")
		}
	}

	now := sig.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	v.recordBuy(sig.Mint, sig.WalletAddr, now)
	uniqueWallets := v.consensusCount(sig.Mint, now)

	sourceType := domain.SourceHuman
	switch {
	case uniqueWallets >= 2:
		sourceType = domain.SourceConsensus
	case botTags[sig.WalletAddr] || (v.cfg.BotSpeedTradesPerDay > 0 && tradesPerDay[sig.WalletAddr] >= v.cfg.BotSpeedTradesPerDay):
		sourceType = domain.SourceBot
	}
	sig.SourceType = sourceType

	multiplier := 1.0
	switch sourceType {
	case domain.SourceConsensus:
		multiplier = v.cfg.ConsensusMultiplier
	case domain.SourceBot:
		multiplier = v.cfg.BotMultiplier
	}
	size := v.cfg.BasePositionSizeSOL * multiplier
	if v.cfg.MaxPositionSizeSOL > 0 && size > v.cfg.MaxPositionSizeSOL {
		size = v.cfg.MaxPositionSizeSOL
	}

	return Result{ShouldTrade: true, Signal: sig, PositionSize: size}
}

func (v *Validator) recordBuy(mint, wallet string, at time.Time) {
	v.recentBuys[mint] = append(v.recentBuys[mint], buyRecord{wallet: wallet, at: at})
}

// consensusCount returns the number of unique wallets that bought mint
// within the consensus window of at, pruning stale entries as it goes.
func (v *Validator) consensusCount(mint string, at time.Time) int {
	records := v.recentBuys[mint]
	cutoff := at.Add(-v.cfg.ConsensusWindow)

	fresh := records[:0]
	seen := make(map[string]bool)
	for _, r := range records {
		if r.at.Before(cutoff) {
			continue
		}
		fresh = append(fresh, r)
		seen[r.wallet] = true
	}
	v.recentBuys[mint] = fresh
	return len(seen)
}

func skip(sig domain.Signal, reason string) Result {
	sig.SkipReason = reason
	return Result{ShouldTrade: false, Signal: sig, SkipReason: reason}
}
