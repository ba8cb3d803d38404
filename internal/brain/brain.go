// Package brain is the Agent Brain: the autonomous loop that aggregates
// recent signals into per-token opportunities, scores and gates them,
// emits buy decisions, journals every outcome, and periodically
// re-derives its own strategy parameters from realized outcomes.
// Strategy persistence follows Jonaed13-potential-pancake's cached-key
// JSON-file persistence style, hardened with a temp-file-plus-rename
// swap since the brain rewrites its state far more often.
package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"frontrun-agent/internal/config"
	"frontrun-agent/internal/control"
	"frontrun-agent/internal/domain"
	"frontrun-agent/internal/store"
	"frontrun-agent/internal/trading"
)

func defaultStrategy() domain.AgentStrategy {
	return domain.AgentStrategy{
		Version:                1,
		MinConfidence:          0.6,
		ConsensusThreshold:     3,
		PositionScale:          1.0,
		MaxConcurrentDecisions: 3,
		CooldownSeconds:        900,
		WalletTrust:            make(map[string]float64),
		TokenBlacklist:         nil,
		PreferredMcapMin:       0,
		PreferredMcapMax:       0,
		PreferredLiquidityMin:  0,
	}
}

// Brain is the Agent Brain component.
type Brain struct {
	db               *store.Store
	executor         *trading.Executor
	control          *control.TradingControl
	cfg              config.BrainConfig
	maxOpenPositions int

	mu              sync.Mutex
	strategy        domain.AgentStrategy
	recentDecisions map[string]time.Time
}

func New(db *store.Store, executor *trading.Executor, ctl *control.TradingControl, cfg config.BrainConfig, maxOpenPositions int) *Brain {
	b := &Brain{
		db: db, executor: executor, control: ctl, cfg: cfg, maxOpenPositions: maxOpenPositions,
		strategy:        defaultStrategy(),
		recentDecisions: make(map[string]time.Time),
	}
	b.load()
	return b
}

// Strategy returns a snapshot of the current strategy state.
func (b *Brain) Strategy() domain.AgentStrategy {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.strategy
}

// load merges a persisted strategy file over the defaults. Unknown keys
// are preserved in Unknown but never consulted.
func (b *Brain) load() {
	if b.cfg.StrategyPath == "" {
		return
	}
	data, err := os.ReadFile(b.cfg.StrategyPath)
	if err != nil {
		return
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Warn().Err(err).Msg("brain: strategy file is not valid JSON, keeping defaults")
		return
	}
	var persisted domain.AgentStrategy
	if err := json.Unmarshal(data, &persisted); err != nil {
		return
	}
	merged := b.strategy
	if persisted.MinConfidence > 0 {
		merged.MinConfidence = persisted.MinConfidence
	}
	if persisted.ConsensusThreshold > 0 {
		merged.ConsensusThreshold = persisted.ConsensusThreshold
	}
	if persisted.PositionScale > 0 {
		merged.PositionScale = persisted.PositionScale
	}
	if persisted.MaxConcurrentDecisions > 0 {
		merged.MaxConcurrentDecisions = persisted.MaxConcurrentDecisions
	}
	if persisted.CooldownSeconds > 0 {
		merged.CooldownSeconds = persisted.CooldownSeconds
	}
	if len(persisted.WalletTrust) > 0 {
		merged.WalletTrust = persisted.WalletTrust
	}
	if len(persisted.TokenBlacklist) > 0 {
		merged.TokenBlacklist = persisted.TokenBlacklist
	}
	merged.PreferredMcapMin = persisted.PreferredMcapMin
	merged.PreferredMcapMax = persisted.PreferredMcapMax
	merged.PreferredLiquidityMin = persisted.PreferredLiquidityMin
	merged.Stats = persisted.Stats
	for k, v := range raw {
		if !knownStrategyKey(k) {
			if merged.Unknown == nil {
				merged.Unknown = make(map[string]any)
			}
			merged.Unknown[k] = v
		}
	}
	b.strategy = merged
}

func knownStrategyKey(k string) bool {
	switch k {
	case "version", "min_confidence", "consensus_threshold", "position_scale",
		"max_concurrent_decisions", "cooldown_seconds", "wallet_trust",
		"token_blacklist", "preferred_mcap_min", "preferred_mcap_max",
		"preferred_liquidity_min", "stats":
		return true
	}
	return false
}

// persist writes the strategy atomically via temp-file-plus-rename.
func (b *Brain) persist() {
	if b.cfg.StrategyPath == "" {
		return
	}
	data, err := json.MarshalIndent(b.strategy, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("brain: failed to marshal strategy")
		return
	}
	dir := filepath.Dir(b.cfg.StrategyPath)
	tmp, err := os.CreateTemp(dir, ".strategy-*.tmp")
	if err != nil {
		log.Error().Err(err).Msg("brain: failed to create strategy temp file")
		return
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		log.Error().Err(err).Msg("brain: failed to write strategy temp file")
		return
	}
	if err := tmp.Close(); err != nil {
		return
	}
	if err := os.Rename(tmp.Name(), b.cfg.StrategyPath); err != nil {
		log.Error().Err(err).Msg("brain: failed to rename strategy file into place")
	}
}

// opportunity is one mint's aggregated recent-signal evidence.
type opportunity struct {
	mint              string
	buys              []domain.Signal
	sells             []domain.Signal
	uniqueWallets     map[string]bool
	meanIndividual    float64
	meanTrustScore    float64
	confidence        float64
	topWalletAddr     string
}

// Cycle runs one Scan/Aggregate/Decide pass.
func (b *Brain) Cycle(ctx context.Context) error {
	windowMin := b.cfg.ScanWindowMinutes
	if windowMin <= 0 {
		windowMin = 30
	}
	signals, err := b.db.RecentSignalsSince(time.Now().Add(-time.Duration(windowMin) * time.Minute))
	if err != nil {
		return fmt.Errorf("brain: scan failed: %w", err)
	}

	opps := b.aggregate(signals)
	sort.Slice(opps, func(i, j int) bool { return opps[i].confidence > opps[j].confidence })

	b.mu.Lock()
	maxConcurrent := b.strategy.MaxConcurrentDecisions
	minConfidence := b.strategy.MinConfidence
	cooldown := time.Duration(b.strategy.CooldownSeconds) * time.Second
	blacklist := make(map[string]bool, len(b.strategy.TokenBlacklist))
	for _, m := range b.strategy.TokenBlacklist {
		blacklist[m] = true
	}
	positionScale := b.strategy.PositionScale
	b.mu.Unlock()

	decided := 0
	for _, opp := range opps {
		if decided >= maxConcurrent {
			break
		}
		decision, reasons := b.decide(opp, blacklist, cooldown, minConfidence)

		rec := &domain.AgentDecision{
			Mint:          opp.mint,
			Decision:      decision,
			Confidence:    opp.confidence,
			Reasons:       reasons,
			BuyWallets:    len(opp.buys),
			SellWallets:   len(opp.sells),
			UniqueWallets: len(opp.uniqueWallets),
		}

		if decision == domain.DecisionBuy {
			size := b.cfg.BasePositionSizeSOL * positionScale * (0.5 + opp.confidence)
			if b.cfg.MaxPositionSizeSOL > 0 && size > b.cfg.MaxPositionSizeSOL {
				size = b.cfg.MaxPositionSizeSOL
			}
			rec.AmountNative = size

			sig := domain.Signal{
				WalletAddr: opp.topWalletAddr,
				Mint:       opp.mint,
				Confidence: opp.confidence,
				Timestamp:  time.Now(),
			}
			if err := b.executor.Buy(ctx, sig, size, b.control.Mode()); err != nil {
				log.Error().Err(err).Str("mint", opp.mint).Msg("brain: buy failed")
				rec.Executed = false
			} else {
				rec.Executed = true
			}
			b.mu.Lock()
			b.recentDecisions[opp.mint] = time.Now()
			b.mu.Unlock()
			decided++
		}

		if _, err := b.db.InsertAgentDecision(rec); err != nil {
			log.Error().Err(err).Msg("brain: failed to journal decision")
		}
	}

	b.persist()
	return nil
}

func (b *Brain) aggregate(signals []domain.Signal) []opportunity {
	byMint := make(map[string]*opportunity)
	for _, sig := range signals {
		opp, ok := byMint[sig.Mint]
		if !ok {
			opp = &opportunity{mint: sig.Mint, uniqueWallets: make(map[string]bool)}
			byMint[sig.Mint] = opp
		}
		switch sig.Type {
		case domain.SignalSell, domain.SignalLargeSell:
			opp.sells = append(opp.sells, sig)
		default:
			opp.buys = append(opp.buys, sig)
		}
		opp.uniqueWallets[sig.WalletAddr] = true
		if sig.WalletScore > 0 && opp.topWalletAddr == "" {
			opp.topWalletAddr = sig.WalletAddr
		}
	}

	b.mu.Lock()
	consensusThreshold := b.strategy.ConsensusThreshold
	trust := b.strategy.WalletTrust
	b.mu.Unlock()

	out := make([]opportunity, 0, len(byMint))
	for _, opp := range byMint {
		all := append(append([]domain.Signal{}, opp.buys...), opp.sells...)
		var sumConf, sumTrustScore float64
		for _, sig := range all {
			sumConf += sig.Confidence
			tm := trust[sig.WalletAddr]
			if tm <= 0 {
				tm = 1.0
			}
			sumTrustScore += sig.WalletScore * tm
		}
		n := float64(len(all))
		if n == 0 {
			continue
		}
		opp.meanIndividual = sumConf / n
		opp.meanTrustScore = sumTrustScore / n

		consensusFactor := math.Min(float64(len(opp.buys))/float64(maxInt(consensusThreshold, 1)), 2.0)
		qualityFactor := math.Min(opp.meanTrustScore/70, 1.5)
		opp.confidence = round3(0.3*opp.meanIndividual + 0.4*consensusFactor + 0.3*qualityFactor)

		out = append(out, *opp)
	}
	return out
}

func (b *Brain) decide(opp opportunity, blacklist map[string]bool, cooldown time.Duration, minConfidence float64) (domain.DecisionKind, []string) {
	if existing, err := b.db.GetPositionByToken(opp.mint); err == nil && existing != nil {
		return domain.DecisionHold, []string{"already holding"}
	}

	b.mu.Lock()
	lastDecision, onCooldown := b.recentDecisions[opp.mint]
	b.mu.Unlock()
	if onCooldown && time.Since(lastDecision) < cooldown {
		return domain.DecisionSkip, []string{"cooldown active"}
	}

	openCount, err := b.db.GetOpenPositionCount()
	if err == nil && b.maxOpenPositions > 0 && openCount >= b.maxOpenPositions {
		return domain.DecisionSkip, []string{"max open positions reached"}
	}

	if b.control.Paused() {
		return domain.DecisionSkip, []string{"daily loss limit"}
	}

	if blacklist[opp.mint] {
		return domain.DecisionSkip, []string{"token blacklisted"}
	}

	if opp.confidence < minConfidence {
		return domain.DecisionSkip, []string{fmt.Sprintf("confidence %.3f below floor %.3f", opp.confidence, minConfidence)}
	}

	return domain.DecisionBuy, []string{"confidence gates passed"}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

// Learn re-derives strategy parameters from closed-trade outcomes. A
// no-op until at least 5 closed trades exist.
func (b *Brain) Learn(ctx context.Context) error {
	outcomes, err := b.db.ExecutedTradesWithPnL()
	if err != nil {
		return fmt.Errorf("brain: learning scan failed: %w", err)
	}
	if len(outcomes) < 5 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.adjustConfidenceByBucket(outcomes)
	b.adjustWalletTrust(outcomes)
	b.adjustPositionScale(outcomes)
	b.appendBlacklist(outcomes)

	b.strategy.Stats.LearningCycles++
	b.persist()
	return nil
}

func (b *Brain) adjustConfidenceByBucket(outcomes []store.ExecutedTradeOutcome) {
	var lowSum float64
	var lowN int
	for _, o := range outcomes {
		if o.Confidence < 0.5 {
			lowSum += o.RealizedPnL
			lowN++
		}
	}
	if lowN < 3 {
		return
	}
	mean := lowSum / float64(lowN)
	switch {
	case mean < 0:
		b.strategy.MinConfidence = math.Min(0.85, b.strategy.MinConfidence+0.05)
	case mean > 0:
		b.strategy.MinConfidence = math.Max(0.40, b.strategy.MinConfidence-0.03)
	}
}

func (b *Brain) adjustWalletTrust(outcomes []store.ExecutedTradeOutcome) {
	type agg struct {
		wins, n int
		pnl     float64
	}
	byWallet := make(map[string]*agg)
	for _, o := range outcomes {
		if o.TriggerWallet == "" {
			continue
		}
		a, ok := byWallet[o.TriggerWallet]
		if !ok {
			a = &agg{}
			byWallet[o.TriggerWallet] = a
		}
		a.n++
		a.pnl += o.RealizedPnL
		if o.RealizedPnL > 0 {
			a.wins++
		}
	}
	if b.strategy.WalletTrust == nil {
		b.strategy.WalletTrust = make(map[string]float64)
	}
	for addr, a := range byWallet {
		if a.n < 2 {
			continue
		}
		winRate := float64(a.wins) / float64(a.n)
		mean := a.pnl / float64(a.n)
		trust := b.strategy.WalletTrust[addr]
		if trust <= 0 {
			trust = 1.0
		}
		switch {
		case winRate >= 0.6 && mean > 0:
			trust = math.Min(3.0, trust+0.2)
		case winRate < 0.3 || mean < -0.01:
			trust = math.Max(0.1, trust-0.3)
		}
		b.strategy.WalletTrust[addr] = trust
	}
}

func (b *Brain) adjustPositionScale(outcomes []store.ExecutedTradeOutcome) {
	var wins int
	var totalPnL float64
	for _, o := range outcomes {
		totalPnL += o.RealizedPnL
		if o.RealizedPnL > 0 {
			wins++
		}
	}
	winRate := float64(wins) / float64(len(outcomes))
	switch {
	case winRate >= 0.55 && totalPnL > 0:
		b.strategy.PositionScale = math.Min(2.5, b.strategy.PositionScale+0.1)
	case winRate < 0.4 || totalPnL < 0:
		b.strategy.PositionScale = math.Max(0.3, b.strategy.PositionScale-0.15)
	}
}

func (b *Brain) appendBlacklist(outcomes []store.ExecutedTradeOutcome) {
	type agg struct {
		n        int
		allNeg   bool
	}
	byMint := make(map[string]*agg)
	for _, o := range outcomes {
		a, ok := byMint[o.Mint]
		if !ok {
			a = &agg{allNeg: true}
			byMint[o.Mint] = a
		}
		a.n++
		if o.RealizedPnL >= 0 {
			a.allNeg = false
		}
	}
	existing := make(map[string]bool, len(b.strategy.TokenBlacklist))
	for _, m := range b.strategy.TokenBlacklist {
		existing[m] = true
	}
	for mint, a := range byMint {
		if a.n >= 2 && a.allNeg && !existing[mint] {
			b.strategy.TokenBlacklist = append(b.strategy.TokenBlacklist, mint)
			existing[mint] = true
		}
	}
}
