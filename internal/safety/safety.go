// Package safety is the Safety Rails: the ordered pre-trade gate, the
// position-sizing formula, and the post-trade daily-loss check that
// can engage the kill switch. Grounded on
// original_source/trader/safety_rails.py.
package safety

import (
	"math"

	"frontrun-agent/internal/control"
	"frontrun-agent/internal/domain"
	"frontrun-agent/internal/store"
)

// Config holds the tunable thresholds.
type Config struct {
	MaxDailyLossSOL        float64
	MaxOpenPositions       int
	PerTokenCapSOL         float64
	BasePositionSizeSOL    float64
	MaxPositionSizeSOL     float64
	BalanceFloorSOL        float64
}

// Rails is the Safety Rails component.
type Rails struct {
	db      *store.Store
	control *control.TradingControl
	cfg     Config
}

func New(db *store.Store, ctl *control.TradingControl, cfg Config) *Rails {
	return &Rails{db: db, control: ctl, cfg: cfg}
}

// PreTradeCheck runs the ordered gates and returns whether the trade
// may proceed.
func (r *Rails) PreTradeCheck(sig domain.Signal, mode control.Mode, walletBalanceSOL float64) (bool, string) {
	if r.control.Paused() {
		return false, "kill switch engaged"
	}
	if mode != control.ModeLive {
		return false, "mode is not live"
	}

	pnl, err := r.db.TodaysPnL()
	if err == nil && r.cfg.MaxDailyLossSOL > 0 && pnl <= -r.cfg.MaxDailyLossSOL {
		r.control.Engage("daily loss limit breached")
		return false, "daily loss limit breached"
	}

	openCount, err := r.db.GetOpenPositionCount()
	if err == nil && r.cfg.MaxOpenPositions > 0 && openCount >= r.cfg.MaxOpenPositions {
		return false, "max open positions reached"
	}

	if existing, err := r.db.GetPositionByToken(sig.Mint); err == nil && existing != nil {
		if r.cfg.PerTokenCapSOL > 0 && existing.InvestedNative >= r.cfg.PerTokenCapSOL {
			return false, "per-token cap reached"
		}
	}

	floor := r.cfg.BasePositionSizeSOL + 0.01
	if walletBalanceSOL < floor {
		return false, "insufficient balance"
	}

	return true, ""
}

// CalculatePositionSize sizes a trade from the signal's confidence and
// the wallet's available balance.
func (r *Rails) CalculatePositionSize(sig domain.Signal, walletBalanceSOL float64) float64 {
	size := math.Min(r.cfg.BasePositionSizeSOL, 0.5*walletBalanceSOL)

	if sig.Confidence >= 0.6 && sig.Confidence < 0.8 {
		size *= 0.8
	}
	if r.cfg.MaxPositionSizeSOL > 0 && size > r.cfg.MaxPositionSizeSOL {
		size = r.cfg.MaxPositionSizeSOL
	}

	size = math.Max(size, 0.001)
	return math.Round(size*1e6) / 1e6
}

// PostTradeCheck recomputes daily stats and engages the kill switch if
// the loss limit has now been breached.
func (r *Rails) PostTradeCheck() error {
	pnl, err := r.db.TodaysPnL()
	if err != nil {
		return err
	}
	if r.cfg.MaxDailyLossSOL > 0 && pnl <= -r.cfg.MaxDailyLossSOL {
		r.control.Engage("daily loss limit breached")
	}
	return nil
}
