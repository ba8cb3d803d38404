// Package trading holds the Trade Executor and Position Manager: the
// three-mode buy/sell policy gated by Safety Rails and driven by the
// Swap Adapter, and the periodic loop that evaluates open positions
// against their take-profit ladder, stop-loss and max-hold rules.
// Grounded on the teacher's Executor (buy/sell control flow and
// StartMonitoring ticker shape) in this same package; regenerated
// around the Store and domain types instead of the in-memory
// PositionTracker.
package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"frontrun-agent/internal/chain"
	"frontrun-agent/internal/control"
	"frontrun-agent/internal/domain"
	"frontrun-agent/internal/market"
	"frontrun-agent/internal/safety"
	"frontrun-agent/internal/store"
	"frontrun-agent/internal/swap"
)

// Notifier pushes a message to the operator channel. Satisfied by
// internal/notify.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Executor is the Trade Executor.
type Executor struct {
	db      *store.Store
	chain   *chain.Client
	swap    *swap.Client
	market  *market.Adapter
	rails   *safety.Rails
	control *control.TradingControl
	signer  swap.Signer
	notify  Notifier
	metrics *Metrics

	slippageBps int
}

func NewExecutor(db *store.Store, chainClient *chain.Client, swapClient *swap.Client, marketAdapter *market.Adapter, rails *safety.Rails,
	ctl *control.TradingControl, signer swap.Signer, notify Notifier, slippageBps int) *Executor {
	return &Executor{
		db: db, chain: chainClient, swap: swapClient, market: marketAdapter, rails: rails, control: ctl,
		signer: signer, notify: notify, slippageBps: slippageBps,
		metrics: NewMetrics(),
	}
}

// nativeBalanceSOL looks up the signer's current native balance. It
// returns 0 with no error when no signer is configured (dry-run/alert-only
// deployments with no funded wallet).
func (e *Executor) nativeBalanceSOL(ctx context.Context) (float64, error) {
	if e.signer == nil || e.chain == nil {
		return 0, nil
	}
	lamports, err := e.chain.GetNativeBalance(ctx, e.signer.Address())
	if err != nil {
		return 0, err
	}
	return float64(lamports) / 1e9, nil
}

// onChainTokenBalance returns the raw token amount the signer currently
// holds for mint, or 0 if the signer holds no account for it.
func (e *Executor) onChainTokenBalance(ctx context.Context, mint string) (float64, error) {
	accounts, err := e.chain.GetTokenAccounts(ctx, e.signer.Address())
	if err != nil {
		return 0, err
	}
	for _, acct := range accounts {
		if acct.Mint == mint {
			return float64(acct.Amount), nil
		}
	}
	return 0, nil
}

// Metrics exposes the executor's live-buy latency tracker for the
// composition root's status reporting.
func (e *Executor) Metrics() *Metrics {
	return e.metrics
}

var exitRules = map[domain.SourceType]ExitRule{
	domain.SourceHuman: {
		TakeProfits: []domain.TakeProfitLevel{{Multiplier: 2.0, Fraction: 0.50}, {Multiplier: 4.0, Fraction: 0.50}, {Multiplier: 8.0, Fraction: 1.00}},
		StopLossMultiplier: 0.6,
		MaxHold:            24 * time.Hour,
	},
	domain.SourceBot: {
		TakeProfits: []domain.TakeProfitLevel{{Multiplier: 1.5, Fraction: 0.50}, {Multiplier: 2.5, Fraction: 1.00}},
		StopLossMultiplier: 0.8,
		MaxHold:            2 * time.Hour,
	},
	domain.SourceConsensus: {
		TakeProfits: []domain.TakeProfitLevel{{Multiplier: 2.0, Fraction: 0.33}, {Multiplier: 5.0, Fraction: 0.50}, {Multiplier: 10.0, Fraction: 1.00}},
		StopLossMultiplier: 0.7,
		MaxHold:            48 * time.Hour,
	},
}

// ExitRule is the per-source-type exit ladder configuration.
type ExitRule struct {
	TakeProfits        []domain.TakeProfitLevel
	StopLossMultiplier float64
	MaxHold            time.Duration
}

// Buy attempts to open a position for sig, sized at positionSizeSOL,
// under the executor's current trading mode.
func (e *Executor) Buy(ctx context.Context, sig domain.Signal, positionSizeSOL float64, mode control.Mode) error {
	switch mode {
	case control.ModeLive:
		return e.buyLive(ctx, sig, positionSizeSOL)
	case control.ModeDryRun:
		return e.buyDryRun(ctx, sig, positionSizeSOL)
	case control.ModeAlertOnly:
		return e.buyAlertOnly(ctx, sig)
	default:
		return fmt.Errorf("unknown trading mode %q", mode)
	}
}

func (e *Executor) buyLive(ctx context.Context, sig domain.Signal, positionSizeSOL float64) error {
	timer := NewTradeTimer()

	balanceSOL, err := e.nativeBalanceSOL(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("executor: balance lookup failed, treating wallet as empty")
	}

	allowed, reason := e.rails.PreTradeCheck(sig, control.ModeLive, balanceSOL)
	if !allowed {
		e.markSkippedAndFailed(sig, reason)
		return nil
	}

	sizeSOL := e.rails.CalculatePositionSize(sig, balanceSOL)
	if positionSizeSOL > 0 && positionSizeSOL < sizeSOL {
		sizeSOL = positionSizeSOL
	}
	lamports := uint64(sizeSOL * 1e9)
	timer.MarkResolveDone()

	q, err := e.swap.Quote(ctx, swap.SOLMint, sig.Mint, lamports, e.slippageBps)
	if err != nil {
		parse, resolve, quote, sign, send := timer.GetBreakdown()
		e.metrics.RecordTrade(false, parse, resolve, quote, sign, send)
		e.recordFailedTrade(sig, sizeSOL, chain.HumanError(err))
		return nil
	}
	timer.MarkQuoteDone()

	handle, err := e.swap.Execute(ctx, q, e.signer)
	if err != nil {
		parse, resolve, quote, sign, send := timer.GetBreakdown()
		e.metrics.RecordTrade(false, parse, resolve, quote, sign, send)
		e.recordFailedTrade(sig, sizeSOL, chain.HumanError(err))
		return nil
	}
	timer.MarkSignDone()
	timer.MarkSendDone()

	outcome := e.swap.ConfirmWithin(ctx, handle, 30*time.Second)
	parse, resolve, quote, sign, send := timer.GetBreakdown()
	e.metrics.RecordTrade(outcome.Confirmed, parse, resolve, quote, sign, send)

	status := domain.TradeUnconfirmed
	switch {
	case outcome.Confirmed:
		status = domain.TradeConfirmed
	case outcome.Failed:
		status = domain.TradeFailed
	}

	trade := &domain.Trade{
		Mint: sig.Mint, Side: domain.TradeBuy, AmountNative: sizeSOL,
		AmountTokens: float64(q.OutAmount), TriggerWallet: sig.WalletAddr, SignalID: sig.ID,
		TxHandle: handle.Signature, Status: status, SlippageBps: e.slippageBps, ErrorMessage: outcome.Reason,
	}
	tradeID, err := e.db.InsertTrade(trade)
	if err != nil {
		log.Error().Err(err).Msg("executor: failed to persist trade")
		return err
	}
	if sig.ID != 0 {
		e.db.MarkSignalExecuted(sig.ID, tradeID)
	}

	if status == domain.TradeConfirmed {
		if err := e.openPosition(ctx, sig, sizeSOL, float64(q.OutAmount), sig.WalletAddr); err != nil {
			log.Error().Err(err).Msg("executor: failed to open position after confirmed buy")
		}
	}

	if err := e.rails.PostTradeCheck(); err != nil {
		log.Error().Err(err).Msg("executor: post-trade check failed")
	}
	return nil
}

func (e *Executor) buyDryRun(ctx context.Context, sig domain.Signal, positionSizeSOL float64) error {
	snap, err := e.market.Snapshot(ctx, sig.Mint)
	estimatedTokens := 0.0
	if err == nil && !snap.IsEmpty() && snap.PriceUSD > 0 {
		estimatedTokens = (positionSizeSOL * market.SOLReferencePriceUSD) / snap.PriceUSD
	}

	trade := &domain.Trade{
		Mint: sig.Mint, Side: domain.TradeBuy, AmountNative: positionSizeSOL,
		AmountTokens: estimatedTokens, TriggerWallet: sig.WalletAddr, SignalID: sig.ID,
		Status: domain.TradeDryRun,
	}
	tradeID, err := e.db.InsertTrade(trade)
	if err != nil {
		return err
	}
	if sig.ID != 0 {
		e.db.MarkSignalExecuted(sig.ID, tradeID)
	}

	log.Info().Str("mint", sig.Mint).Float64("size", positionSizeSOL).Msg("dry-run buy recorded")
	return e.openPosition(ctx, sig, positionSizeSOL, estimatedTokens, sig.WalletAddr)
}

func (e *Executor) buyAlertOnly(ctx context.Context, sig domain.Signal) error {
	if sig.ID != 0 {
		e.db.MarkSignalSkipped(sig.ID, "alert-only mode")
	}
	if e.notify != nil {
		msg := fmt.Sprintf("buy signal: %s from %s (confidence %.2f)", sig.Mint, sig.WalletAddr, sig.Confidence)
		if err := e.notify.Notify(ctx, msg); err != nil {
			log.Warn().Err(err).Msg("executor: alert notification failed")
		}
	}
	return nil
}

func (e *Executor) openPosition(ctx context.Context, sig domain.Signal, investedSOL, tokens float64, triggerWallet string) error {
	snap, _ := e.market.Snapshot(ctx, sig.Mint)
	entryPrice := snap.PriceUSD

	rule := exitRules[sig.SourceType]
	if len(rule.TakeProfits) == 0 {
		rule = exitRules[domain.SourceHuman]
	}

	ladder := make([]domain.TakeProfitLevel, len(rule.TakeProfits))
	copy(ladder, rule.TakeProfits)

	pos := &domain.Position{
		Mint: sig.Mint, EntryPriceUSD: entryPrice, CurrentPriceUSD: entryPrice,
		InvestedNative: investedSOL, TokensHeld: tokens, TakeProfits: ladder,
		StopLossPrice: entryPrice * rule.StopLossMultiplier, TriggerWallet: triggerWallet,
		Status: domain.PositionOpen, SourceType: sig.SourceType,
	}
	_, err := e.db.OpenPosition(pos)
	return err
}

// Sell executes a (partial) sell of pos for fraction of its remaining
// tokens, for reason.
func (e *Executor) Sell(ctx context.Context, pos domain.Position, fraction float64, reason string, mode control.Mode) error {
	if fraction <= 0 {
		return fmt.Errorf("invalid sell fraction %f", fraction)
	}

	heldTokens := pos.TokensHeld
	if mode != control.ModeLive {
		sellTokens := heldTokens * fraction
		log.Info().Str("mint", pos.Mint).Float64("fraction", fraction).Str("reason", reason).Msg("non-live sell simulated")
		return e.finalizeSell(pos, fraction, sellTokens, pos.InvestedNative*fraction, reason)
	}

	if onChain, err := e.onChainTokenBalance(ctx, pos.Mint); err != nil {
		log.Warn().Err(err).Str("mint", pos.Mint).Msg("executor: token account lookup failed, selling against tracked balance")
	} else if onChain < heldTokens {
		heldTokens = onChain
	}
	sellTokens := heldTokens * fraction

	q, err := e.swap.Quote(ctx, pos.Mint, swap.SOLMint, uint64(sellTokens), e.slippageBps)
	if err != nil {
		e.recordFailedSellTrade(pos, reason, chain.HumanError(err))
		return nil
	}
	handle, err := e.swap.Execute(ctx, q, e.signer)
	if err != nil {
		e.recordFailedSellTrade(pos, reason, chain.HumanError(err))
		return nil
	}
	outcome := e.swap.ConfirmWithin(ctx, handle, 30*time.Second)
	if !outcome.Confirmed {
		e.recordFailedSellTrade(pos, reason, outcome.Reason)
		return nil
	}

	solReceived := float64(q.OutAmount) / 1e9
	trade := &domain.Trade{
		Mint: pos.Mint, Side: domain.TradeSell, AmountNative: solReceived, AmountTokens: sellTokens,
		TriggerWallet: pos.TriggerWallet, SellReason: reason, TxHandle: handle.Signature,
		Status: domain.TradeConfirmed,
	}
	if _, err := e.db.InsertTrade(trade); err != nil {
		log.Error().Err(err).Msg("executor: failed to persist sell trade")
	}

	return e.finalizeSell(pos, fraction, sellTokens, solReceived, reason)
}

func (e *Executor) finalizeSell(pos domain.Position, fraction, soldTokens, solReceived float64, reason string) error {
	remainingTokens := pos.TokensHeld - soldTokens
	if remainingTokens < 0 {
		remainingTokens = 0
	}

	if fraction >= 1.0 {
		invested := pos.InvestedNative
		realized := solReceived - invested
		return e.db.ClosePosition(pos.ID, reason, realized)
	}

	for i := range pos.TakeProfits {
		if !pos.TakeProfits[i].Hit {
			pos.TakeProfits[i].Hit = true
			break
		}
	}
	return e.db.UpdatePositionTakeProfits(pos.ID, pos.TakeProfits, remainingTokens)
}

func (e *Executor) recordFailedTrade(sig domain.Signal, sizeSOL float64, errMsg string) {
	trade := &domain.Trade{
		Mint: sig.Mint, Side: domain.TradeBuy, AmountNative: sizeSOL,
		TriggerWallet: sig.WalletAddr, SignalID: sig.ID, Status: domain.TradeFailed, ErrorMessage: errMsg,
	}
	if tradeID, err := e.db.InsertTrade(trade); err == nil && sig.ID != 0 {
		e.db.MarkSignalExecuted(sig.ID, tradeID)
	}
}

func (e *Executor) recordFailedSellTrade(pos domain.Position, reason, errMsg string) {
	trade := &domain.Trade{
		Mint: pos.Mint, Side: domain.TradeSell, TriggerWallet: pos.TriggerWallet,
		SellReason: reason, Status: domain.TradeFailed, ErrorMessage: errMsg,
	}
	e.db.InsertTrade(trade)
}

func (e *Executor) markSkippedAndFailed(sig domain.Signal, reason string) {
	if sig.ID != 0 {
		e.db.MarkSignalSkipped(sig.ID, reason)
	}
	e.recordFailedTrade(sig, 0, reason)
}
