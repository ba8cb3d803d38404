// Package monitor is the Wallet Monitor: a single long-running loop
// that watches monitored wallets for new buy transactions, deduplicates
// and scores them into signals, persists them, and hands them to an
// async handler. Grounded on the teacher's Executor.StartMonitoring
// ticker-loop shape in internal/trading/executor.go, generalized to
// drive off parsed chain history instead of position prices.
package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"frontrun-agent/internal/chain"
	"frontrun-agent/internal/control"
	"frontrun-agent/internal/domain"
	"frontrun-agent/internal/store"
)

var stableOrWrapped = map[string]bool{
	"So11111111111111111111111111111111111111112": true,
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": true,
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": true,
}

const dedupCap = 1000

// Handler is invoked for every emitted signal. A failing handler must
// never stop the loop.
type Handler func(ctx context.Context, sig domain.Signal) error

// Config holds the loop's tunables.
type Config struct {
	Tick            time.Duration
	WalletSpacing   time.Duration
	SignatureLimit  int
}

// Monitor is the Wallet Monitor.
type Monitor struct {
	db      *store.Store
	chain   *chain.Client
	control *control.TradingControl
	cfg     Config
	handler Handler

	lastSeen map[string]string // wallet -> most recent signature processed
	dedup    map[string]struct{} // "wallet|mint"
	dedupOrder []string
}

func New(db *store.Store, chainClient *chain.Client, ctl *control.TradingControl, cfg Config, handler Handler) *Monitor {
	if cfg.Tick == 0 {
		cfg.Tick = 5 * time.Second
	}
	if cfg.WalletSpacing == 0 {
		cfg.WalletSpacing = 500 * time.Millisecond
	}
	if cfg.SignatureLimit == 0 {
		cfg.SignatureLimit = 20
	}
	return &Monitor{
		db:       db,
		chain:    chainClient,
		control:  ctl,
		cfg:      cfg,
		handler:  handler,
		lastSeen: make(map[string]string),
		dedup:    make(map[string]struct{}),
	}
}

// Run blocks, ticking until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Tick)
	defer ticker.Stop()

	log.Info().Dur("tick", m.cfg.Tick).Msg("wallet monitor started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("wallet monitor stopped")
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	if m.control.Paused() {
		return
	}

	wallets, err := m.db.MonitoredWallets()
	if err != nil {
		log.Error().Err(err).Msg("monitor: failed to load monitored wallets")
		return
	}

	for _, w := range wallets {
		select {
		case <-ctx.Done():
			return
		default:
		}
		m.scanWallet(ctx, w)
		time.Sleep(m.cfg.WalletSpacing)
	}
}

func (m *Monitor) scanWallet(ctx context.Context, w domain.Wallet) {
	sigs, err := m.chain.ListSignatures(ctx, w.Address, m.cfg.SignatureLimit, "")
	if err != nil {
		log.Warn().Err(err).Str("wallet", w.Address).Msg("monitor: list signatures failed")
		return
	}
	if len(sigs) == 0 {
		return
	}

	last := m.lastSeen[w.Address]
	newSigs := sigs
	if last != "" {
		newSigs = nil
		for _, s := range sigs {
			if s == last {
				break
			}
			newSigs = append(newSigs, s)
		}
	}
	if len(newSigs) == 0 {
		m.lastSeen[w.Address] = sigs[0]
		return
	}

	// sigs is newest-first; reverse so signals emit oldest-new-tx-first.
	for i, j := 0, len(newSigs)-1; i < j; i, j = i+1, j-1 {
		newSigs[i], newSigs[j] = newSigs[j], newSigs[i]
	}

	parsed, err := m.chain.ParseTransactions(ctx, newSigs)
	if err != nil {
		log.Warn().Err(err).Str("wallet", w.Address).Msg("monitor: parse failed")
		return
	}

	for _, tx := range parsed {
		sig, ok := buySignalFromTx(w, tx)
		if !ok {
			continue
		}
		key := w.Address + "|" + sig.Mint
		if m.seen(key) {
			continue
		}
		m.remember(key)

		if _, err := m.db.InsertSignal(&sig); err != nil {
			log.Error().Err(err).Str("wallet", w.Address).Msg("monitor: failed to persist signal")
			continue
		}
		if m.handler != nil {
			if err := m.handler(ctx, sig); err != nil {
				log.Error().Err(err).Str("wallet", w.Address).Str("mint", sig.Mint).Msg("monitor: signal handler failed")
			}
		}
	}

	m.lastSeen[w.Address] = sigs[0]
}

func buySignalFromTx(w domain.Wallet, tx chain.ParsedTransaction) (domain.Signal, bool) {
	if tx.Type != "SWAP" || tx.FeePayer != w.Address {
		return domain.Signal{}, false
	}

	var boughtMint string
	for _, tt := range tx.TokenTransfers {
		if tt.To == w.Address && !stableOrWrapped[tt.Mint] {
			boughtMint = tt.Mint
			break
		}
	}
	if boughtMint == "" {
		return domain.Signal{}, false
	}

	var spentNative float64
	for _, nt := range tx.NativeTransfers {
		if nt.From == w.Address {
			spentNative += float64(nt.Lamports) / 1e9
		}
	}
	if spentNative == 0 {
		return domain.Signal{}, false
	}

	confidence := clamp(0.5+0.3*w.TotalScore/100+sizeBonus(spentNative), 0, 1)

	return domain.Signal{
		WalletAddr:   w.Address,
		Mint:         boughtMint,
		Type:         domain.SignalBuy,
		WalletScore:  w.TotalScore,
		Confidence:   confidence,
		AmountNative: spentNative,
		Timestamp:    tx.Timestamp,
	}, true
}

func sizeBonus(native float64) float64 {
	switch {
	case native >= 5:
		return 0.2
	case native >= 1:
		return 0.15
	case native >= 0.5:
		return 0.1
	default:
		return 0
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

func (m *Monitor) seen(key string) bool {
	_, ok := m.dedup[key]
	return ok
}

func (m *Monitor) remember(key string) {
	if _, ok := m.dedup[key]; ok {
		return
	}
	m.dedup[key] = struct{}{}
	m.dedupOrder = append(m.dedupOrder, key)
	if len(m.dedupOrder) > dedupCap {
		half := len(m.dedupOrder) / 2
		for _, k := range m.dedupOrder[:half] {
			delete(m.dedup, k)
		}
		m.dedupOrder = append([]string{}, m.dedupOrder[half:]...)
	}
}
