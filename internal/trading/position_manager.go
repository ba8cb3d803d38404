package trading

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

// PositionManager is the background loop that evaluates every open
// position against its take-profit ladder, stop-loss and max-hold
// rules. Grounded on the teacher's Executor.monitorPositions ticker
// loop, generalized to the tiered per-source-type exit table.
type PositionManager struct {
	db       *store.Store
	market   *market.Adapter
	swap     *swap.Client
	executor *Executor
	control  *control.TradingControl
	mode     control.Mode
	interval time.Duration
}

func NewPositionManager(db *store.Store, marketAdapter *market.Adapter, swapClient *swap.Client,
	executor *Executor, ctl *control.TradingControl, mode control.Mode, interval time.Duration) *PositionManager {
	if interval == 0 {
		interval = 10 * time.Second
	}
	return &PositionManager{
		db: db, market: marketAdapter, swap: swapClient, executor: executor,
		control: ctl, mode: mode, interval: interval,
	}
}

// Run blocks, ticking until ctx is cancelled.
func (m *PositionManager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", m.interval).Msg("position manager started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("position manager stopped")
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *PositionManager) tick(ctx context.Context) {
	if m.control.Paused() {
		return
	}

	positions, err := m.db.GetOpenPositions()
	if err != nil {
		log.Error().Err(err).Msg("position manager: failed to load open positions")
		return
	}

	for _, pos := range positions {
		m.evaluate(ctx, pos)
	}
}

func (m *PositionManager) evaluate(ctx context.Context, pos domain.Position) {
	currentPrice, ok := m.currentPrice(ctx, pos.Mint)
	if !ok {
		return
	}

	multiplier := 1.0
	if pos.EntryPriceUSD > 0 {
		multiplier = currentPrice / pos.EntryPriceUSD
	}
	unrealized := pos.InvestedNative * (multiplier - 1)
	if err := m.db.UpdatePositionPrice(pos.ID, currentPrice, unrealized); err != nil {
		log.Error().Err(err).Str("mint", pos.Mint).Msg("position manager: failed to persist price update")
	}

	rule, ok := exitRules[pos.SourceType]
	if !ok {
		rule = exitRules[domain.SourceHuman]
	}

	if rule.MaxHold > 0 && time.Since(pos.OpenedAt) >= rule.MaxHold {
		m.sell(ctx, pos, 1.0, "max_hold_time")
		return
	}

	if rule.StopLossMultiplier > 0 && multiplier <= rule.StopLossMultiplier {
		m.sell(ctx, pos, 1.0, "stop_loss")
		return
	}

	for _, level := range pos.TakeProfits {
		if level.Hit {
			continue
		}
		if multiplier >= level.Multiplier {
			m.sell(ctx, pos, level.Fraction, "take_profit")
			return
		}
		break
	}
}

func (m *PositionManager) sell(ctx context.Context, pos domain.Position, fraction float64, reason string) {
	if err := m.executor.Sell(ctx, pos, fraction, reason, m.mode); err != nil {
		log.Error().Err(err).Str("mint", pos.Mint).Str("reason", reason).Msg("position manager: sell failed")
	}
}

// currentPrice tries the Market Data Adapter first and falls back to
// a sell-side aggregator quote for tokens it doesn't cover.
func (m *PositionManager) currentPrice(ctx context.Context, mint string) (float64, bool) {
	if snap, err := m.market.Snapshot(ctx, mint); err == nil && !snap.IsEmpty() {
		return snap.PriceUSD, true
	}
	if m.swap == nil {
		return 0, false
	}
	q, err := m.swap.Quote(ctx, mint, swap.SOLMint, 1_000_000, 100)
	if err != nil {
		return 0, false
	}
	solOut := float64(q.OutAmount) / 1e9
	priceInSOLPerUnit := solOut / 0.001
	return priceInSOLPerUnit * market.SOLReferencePriceUSD, true
}
