// Command agent is the composition root: it wires every component into
// either the long-running autonomous loop or one of the thin one-shot
// CLI operations. Grounded on the teacher's cmd/bot/main.go (headless
// init sequence, zerolog setup, signal-based shutdown), generalized to
// join six background loops with golang.org/x/sync/errgroup, two of
// them robfig/cron schedules, instead of the teacher's single polling
// loop.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"frontrun-agent/internal/brain"
	"frontrun-agent/internal/chain"
	"frontrun-agent/internal/cluster"
	"frontrun-agent/internal/config"
	"frontrun-agent/internal/control"
	"frontrun-agent/internal/discovery"
	"frontrun-agent/internal/domain"
	"frontrun-agent/internal/market"
	"frontrun-agent/internal/monitor"
	"frontrun-agent/internal/notify"
	"frontrun-agent/internal/safety"
	"frontrun-agent/internal/scoring"
	"frontrun-agent/internal/store"
	"frontrun-agent/internal/swap"
	"frontrun-agent/internal/trading"
	"frontrun-agent/internal/validator"
	"frontrun-agent/internal/walletintel"
)

func main() {
	os.Exit(run())
}

func run() int {
	setupLogger()
	_ = godotenv.Load()

	flags := parseFlags()

	mgr, err := config.NewManager(flags.configPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		return 1
	}
	cfg := mgr.Get()

	if flags.mode != "" {
		cfg.Trading.Mode = flags.mode
	}
	if flags.dryRun {
		cfg.Trading.Mode = string(control.ModeDryRun)
	}

	app, err := wire(mgr, cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize components")
		return 1
	}
	defer app.db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	switch {
	case flags.wipeWallets:
		return app.wipeWallets(flags.yes)
	case len(flags.addWallet) > 0:
		return app.addWallets(flags.addWallet, domain.SourceManual)
	case len(flags.addFomoWallet) > 0:
		return app.addWallets(flags.addFomoWallet, domain.SourceFOMO)
	case flags.importSmartMoney:
		return app.importSmartMoney(flags.source)
	case flags.discover, flags.discoverFomo:
		return app.runDiscoverOnce(ctx, flags.source, flags.noEnrich)
	case flags.analyze:
		return app.runAnalyzeOnce(flags.noEnrich)
	case flags.clusters:
		return app.runClustersOnce(ctx)
	case flags.agent:
		return app.runAgentCycleOnce(ctx)
	case flags.agentLearn:
		return app.runAgentLearnOnce(ctx)
	case flags.agentStatus:
		return app.printAgentStatus()
	case flags.dashboard:
		log.Error().Msg("dashboard is out of scope for this binary; run the dashboard command separately")
		return 1
	default:
		return app.runForever(ctx, cfg)
	}
}

type flags struct {
	configPath       string
	discover         bool
	analyze          bool
	clusters         bool
	agent            bool
	agentLearn       bool
	agentStatus      bool
	dashboard        bool
	dryRun           bool
	mode             string
	importSmartMoney bool
	addWallet        []string
	addFomoWallet    []string
	source           string
	wipeWallets      bool
	discoverFomo     bool
	noEnrich         bool
	yes              bool
}

func parseFlags() flags {
	var f flags
	var addWallet, addFomoWallet string

	flag.StringVar(&f.configPath, "config", "config.yaml", "path to config.yaml")
	flag.BoolVar(&f.discover, "discover", false, "run one token discovery pass and exit")
	flag.BoolVar(&f.analyze, "analyze", false, "score all tracked wallets and exit")
	flag.BoolVar(&f.clusters, "clusters", false, "run cluster detection over monitored wallets and exit")
	flag.BoolVar(&f.agent, "agent", false, "run one agent decision cycle and exit")
	flag.BoolVar(&f.agentLearn, "agent-learn", false, "run one agent learning cycle and exit")
	flag.BoolVar(&f.agentStatus, "agent-status", false, "print the agent's current strategy and exit")
	flag.BoolVar(&f.dashboard, "dashboard", false, "(out of scope) would launch the dashboard")
	flag.BoolVar(&f.dryRun, "dry-run", false, "shorthand for --mode=dry_run")
	flag.StringVar(&f.mode, "mode", "", "trading mode: live|dry_run|alert_only")
	flag.BoolVar(&f.importSmartMoney, "import-smart-money", false, "import wallets from the wallet-analytics provider's top-buyer lists")
	flag.StringVar(&addWallet, "add-wallet", "", "comma-separated wallet addresses to track manually")
	flag.StringVar(&addFomoWallet, "add-fomo-wallet", "", "comma-separated wallet addresses to track from FOMO source")
	flag.StringVar(&f.source, "source", "", "restrict an operation to one named source/mint")
	flag.BoolVar(&f.wipeWallets, "wipe-wallets", false, "delete all tracked wallets and their trade history")
	flag.BoolVar(&f.discoverFomo, "discover-fomo", false, "run one discovery pass over the same sources as --discover")
	flag.BoolVar(&f.noEnrich, "no-enrich", false, "skip external wallet-analytics enrichment")
	flag.BoolVar(&f.yes, "yes", false, "skip interactive confirmation on destructive operations")
	flag.Parse()

	if addWallet != "" {
		f.addWallet = strings.Split(addWallet, ",")
	}
	if addFomoWallet != "" {
		f.addFomoWallet = strings.Split(addFomoWallet, ",")
	}
	return f
}

// app holds every wired component the CLI operations and the
// long-running loop share.
type app struct {
	db        *store.Store
	ctl       *control.TradingControl
	chainC    *chain.Client
	swapC     *swap.Client
	marketA   *market.Adapter
	intel     *walletintel.Client
	discover  *discovery.Discoverer
	scorer    *scoring.Scorer
	refresher *scoring.Refresher
	clusterD  *cluster.Detector
	monitorC  *monitor.Monitor
	validate  *validator.Validator
	executor  *trading.Executor
	posMgr    *trading.PositionManager
	rails     *safety.Rails
	agentB    *brain.Brain
	cfg       *config.Config
	mgr       *config.Manager
}

func wire(mgr *config.Manager, cfg *config.Config) (*app, error) {
	db, err := store.Open(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	mode := control.Mode(cfg.Trading.Mode)
	if mode == "" {
		mode = control.ModeDryRun
	}
	ctl := control.New(mode)

	chainC := chain.New(chain.Config{
		PrimaryURL:    cfg.RPC.PrimaryURL,
		PrimaryAPIKey: mgr.GetPrimaryAPIKey(),
		FallbackURL:   cfg.RPC.FallbackURL,
		FallbackKey:   mgr.GetFallbackAPIKey(),
		ParsedTxURL:   cfg.RPC.ParsedTxURL,
		ParsedTxKey:   mgr.GetParsedTxAPIKey(),
		MaxRetries:    cfg.RPC.MaxRetries,
	})

	swapC := swap.New(chainC, []string{mgr.GetPrimaryAPIKey()}, cfg.Swap.SlippageBps)

	marketProviders := []market.Provider{market.NewDexscreenerProvider()}
	if birdeyeKey := os.Getenv("BIRDEYE_API_KEY"); birdeyeKey != "" {
		marketProviders = append(marketProviders, market.NewBirdeyeProvider(birdeyeKey))
	}
	marketA := market.New(marketProviders...)

	var intel *walletintel.Client
	if cookie := mgr.GetWalletIntelCookie(); cookie != "" {
		intel = walletintel.New(cookie)
	}

	disc := discovery.New(db, discovery.Filters{
		MinMarketCapUSD:    cfg.Discovery.MinMarketCapUSD,
		MaxMarketCapUSD:    cfg.Discovery.MaxMarketCapUSD,
		MinPriceMultiplier: cfg.Discovery.MinMultiplier,
		MinLiquidityUSD:    cfg.Discovery.MinLiquidityUSD,
		MinVolume24hUSD:    cfg.Discovery.MinVolume24hUSD,
		MinLiquidityRatio:  cfg.Discovery.MinLiquidityMcapRatio,
		MinHolders:         cfg.Discovery.MinHolders,
		MaxRugRatio:        cfg.Discovery.MaxRugRatio,
		MaxBundlerRate:     cfg.Discovery.MaxBundlerRate,
	}, nil, discovery.NewGeckoTerminalSource(), discovery.NewDexscreenerTrendingSource())

	scorer := scoring.New(db, intel)
	refresher := scoring.NewRefresher(db, intel, cfg.Scoring.BotTradesPerDay, cfg.Scoring.RefresherTopN)

	clusterD := cluster.New(db, chainC, cluster.Config{
		MinTransferNative:    cfg.Cluster.MinTransferNative,
		TimingLeadWindow:     time.Duration(cfg.Cluster.TimingLeadWindowMins) * time.Minute,
		MinSharedTokens:      cfg.Cluster.MinSharedTokens,
		MinOverlapTokens:     cfg.Cluster.MinOverlapTokens,
		MinRelationshipScore: cfg.Cluster.MinRelationshipScore,
		MaxClusterMonitored:  cfg.Cluster.MaxClusterMonitored,
	})

	val := validator.New(db, marketA, swapC, ctl, validator.Config{
		MinLiquidityUSD:     cfg.Validator.MinLiquidityUSD,
		MinCopyTradeMcapUSD: cfg.Validator.MinCopyTradeMcapUSD,
		MaxCopyTradeMcapUSD: cfg.Validator.MaxCopyTradeMcapUSD,
		PerTokenCapSOL:      cfg.Trading.PerTokenCapSOL,
		MaxOpenPositions:    cfg.Trading.MaxOpenPositions,
		DailyLossLimitSOL:   cfg.Trading.MaxDailyLossSOL,
		ConsensusWindow:     time.Duration(cfg.Validator.ConsensusWindowSeconds) * time.Second,
		BotSpeedTradesPerDay: cfg.Validator.BotSpeedTradesPerDay,
		BasePositionSizeSOL: cfg.Trading.DefaultPositionSizeSOL,
		ConsensusMultiplier: cfg.Trading.ConsensusMultiplier,
		BotMultiplier:       cfg.Trading.BotMultiplier,
		MaxPositionSizeSOL:  cfg.Validator.MaxPositionSizeSOL,
	})

	rails := safety.New(db, ctl, safety.Config{
		MaxDailyLossSOL:     cfg.Safety.MaxDailyLossSOL,
		MaxOpenPositions:    cfg.Safety.MaxOpenPositions,
		PerTokenCapSOL:      cfg.Trading.PerTokenCapSOL,
		BasePositionSizeSOL: cfg.Safety.DefaultPositionSizeSOL,
		MaxPositionSizeSOL:  cfg.Safety.MaxPositionSizeSOL,
		BalanceFloorSOL:     cfg.Safety.DefaultPositionSizeSOL,
	})

	var signer swap.Signer
	if key := mgr.GetPrivateKey(); key != "" {
		wallet, err := chain.NewWallet(key)
		if err != nil {
			return nil, fmt.Errorf("load wallet: %w", err)
		}
		blockhashCache := chain.NewBlockhashCache(chainC, 5*time.Second, 60*time.Second)
		if err := blockhashCache.Start(); err != nil {
			log.Error().Err(err).Msg("failed to start blockhash cache")
		}
		signer = chain.NewTransactionBuilder(wallet, blockhashCache, 100_000)
	}

	var notifier notify.Channel = notify.NewLogChannel()
	if cfg.Notify.AuthorizedChatID != "" {
		notifier = notify.NewAuthorizedChannel(notify.NewLogChannel(), cfg.Notify.AuthorizedChatID)
	}

	executor := trading.NewExecutor(db, chainC, swapC, marketA, rails, ctl, signer, notifier, cfg.Swap.SlippageBps)
	posMgr := trading.NewPositionManager(db, marketA, swapC, executor, ctl, mode, time.Duration(cfg.Trading.PositionCheckSeconds)*time.Second)
	agentB := brain.New(db, executor, ctl, cfg.Brain, cfg.Trading.MaxOpenPositions)

	a := &app{
		db: db, ctl: ctl, chainC: chainC, swapC: swapC, marketA: marketA, intel: intel,
		discover: disc, scorer: scorer, refresher: refresher, clusterD: clusterD,
		validate: val, executor: executor, posMgr: posMgr, rails: rails, agentB: agentB,
		cfg: cfg, mgr: mgr,
	}

	a.monitorC = monitor.New(db, chainC, ctl, monitor.Config{
		Tick:           mgr.MonitorTick(),
		WalletSpacing:  time.Duration(cfg.Monitor.WalletSpacingMs) * time.Millisecond,
		SignatureLimit: cfg.Monitor.SignatureLimit,
	}, a.handleSignal)

	return a, nil
}

// handleSignal is the Monitor→Validator→Executor bridge: every emitted
// buy signal is validated, sized, and (if approved) executed in the
// configured mode.
func (a *app) handleSignal(ctx context.Context, sig domain.Signal) error {
	blacklist := make(map[string]bool)
	for _, m := range a.agentB.Strategy().TokenBlacklist {
		blacklist[m] = true
	}
	botTags := map[string]bool{}
	tradesPerDay := map[string]float64{}
	if w, err := a.db.GetWallet(sig.WalletAddr); err == nil && w != nil {
		for _, t := range w.Tags {
			switch t {
			case "sandwich_bot", "sniper_bot", "mev_bot", "copy_bot", "arb_bot":
				botTags[sig.WalletAddr] = true
			}
		}
	}

	result := a.validate.Evaluate(ctx, sig, blacklist, botTags, tradesPerDay)
	if !result.ShouldTrade {
		log.Info().Str("mint", sig.Mint).Str("reason", result.SkipReason).Msg("signal skipped")
		return nil
	}
	return a.executor.Buy(ctx, result.Signal, result.PositionSize, a.ctl.Mode())
}

// runForever starts the long-running autonomous loop: Monitor,
// PositionManager, Brain.Cycle, Brain.Learn, Discovery's cron schedule
// and the wallet refresher's cron schedule, joined so any fatal loop error brings the whole process
// down.
func (a *app) runForever(ctx context.Context, cfg *config.Config) int {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.monitorC.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.posMgr.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.runCycleLoop(gctx, a.mgr.BrainCycleInterval())
		return nil
	})
	g.Go(func() error {
		a.runLearnLoop(gctx, a.mgr.BrainLearnInterval())
		return nil
	})
	g.Go(func() error {
		return a.runDiscoveryCron(gctx, cfg.Discovery.CronExpr)
	})
	g.Go(func() error {
		return a.runRefresherCron(gctx, cfg.Scoring.RefresherCronExpr)
	})

	log.Info().Str("mode", string(a.ctl.Mode())).Msg("agent started")
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("agent stopped with error")
		return 1
	}
	log.Info().Msg("agent shut down")
	return 0
}

func (a *app) runCycleLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.agentB.Cycle(ctx); err != nil {
				log.Error().Err(err).Msg("brain cycle failed")
			}
		}
	}
}

func (a *app) runLearnLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.agentB.Learn(ctx); err != nil {
				log.Error().Err(err).Msg("brain learning cycle failed")
			}
		}
	}
}

func (a *app) runDiscoveryCron(ctx context.Context, expr string) error {
	if expr == "" {
		expr = "*/5 * * * *"
	}
	c := cron.New()
	_, err := c.AddFunc(expr, func() {
		if n, err := a.discover.Run(ctx); err != nil {
			log.Error().Err(err).Msg("discovery pass failed")
		} else {
			log.Info().Int("candidates", n).Msg("discovery pass complete")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid discovery cron expression %q: %w", expr, err)
	}
	c.Start()
	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	return nil
}

func (a *app) runRefresherCron(ctx context.Context, expr string) error {
	if expr == "" {
		expr = "0 */6 * * *"
	}
	c := cron.New()
	_, err := c.AddFunc(expr, func() {
		if err := a.refresher.Run(ctx); err != nil {
			log.Error().Err(err).Msg("wallet refresher pass failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid refresher cron expression %q: %w", expr, err)
	}
	c.Start()
	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	return nil
}

// sourceFilter and noEnrich are accepted for flag-surface symmetry with
// the other one-shot operations; the declared source order already
// covers --source and discovery has no external enrichment step to
// skip.
func (a *app) runDiscoverOnce(ctx context.Context, sourceFilter string, noEnrich bool) int {
	n, err := a.discover.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("discovery failed")
		return 1
	}
	log.Info().Int("candidates", n).Msg("discovery complete")
	return 0
}

func (a *app) runAnalyzeOnce(noEnrich bool) int {
	scorer := a.scorer
	if noEnrich {
		scorer = scoring.New(a.db, nil)
	}
	wallets, err := a.db.TopWallets(1000, false)
	if err != nil {
		log.Error().Err(err).Msg("failed to list wallets")
		return 1
	}
	for _, w := range wallets {
		if _, err := scorer.Score(w.Address); err != nil {
			log.Error().Err(err).Str("wallet", w.Address).Msg("scoring failed")
		}
	}
	log.Info().Int("wallets", len(wallets)).Msg("analysis complete")
	return 0
}

func (a *app) runClustersOnce(ctx context.Context) int {
	seeds, err := a.db.MonitoredWallets()
	if err != nil {
		log.Error().Err(err).Msg("failed to list monitored wallets")
		return 1
	}
	for _, w := range seeds {
		if _, err := a.clusterD.Run(ctx, w.Address); err != nil {
			log.Error().Err(err).Str("seed", w.Address).Msg("cluster detection failed")
		}
	}
	log.Info().Int("seeds", len(seeds)).Msg("cluster detection complete")
	return 0
}

func (a *app) runAgentCycleOnce(ctx context.Context) int {
	if err := a.agentB.Cycle(ctx); err != nil {
		log.Error().Err(err).Msg("agent cycle failed")
		return 1
	}
	return 0
}

func (a *app) runAgentLearnOnce(ctx context.Context) int {
	if err := a.agentB.Learn(ctx); err != nil {
		log.Error().Err(err).Msg("agent learning cycle failed")
		return 1
	}
	return 0
}

func (a *app) printAgentStatus() int {
	s := a.agentB.Strategy()
	fmt.Printf("min_confidence=%.3f consensus_threshold=%d position_scale=%.2f cooldown=%ds\n",
		s.MinConfidence, s.ConsensusThreshold, s.PositionScale, s.CooldownSeconds)
	fmt.Printf("stats: wins=%d losses=%d total_pnl=%.4f learning_cycles=%d\n",
		s.Stats.Wins, s.Stats.Losses, s.Stats.TotalPnL, s.Stats.LearningCycles)
	fmt.Printf("token_blacklist=%v\n", s.TokenBlacklist)

	total, success, failed, rate := a.executor.Metrics().Stats()
	fmt.Printf("executor: trades=%d success=%d failed=%d success_rate=%.1f%% p50=%dms p95=%dms\n",
		total, success, failed, rate, a.executor.Metrics().P50(), a.executor.Metrics().P95())
	return 0
}

func (a *app) addWallets(addrs []string, source domain.WalletSource) int {
	for _, addr := range addrs {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		w := &domain.Wallet{Address: addr, Source: source, IsMonitored: true, Trust: 1.0}
		if err := a.db.UpsertWallet(w); err != nil {
			log.Error().Err(err).Str("wallet", addr).Msg("failed to add wallet")
			return 1
		}
	}
	log.Info().Int("count", len(addrs)).Msg("wallets added")
	return 0
}

func (a *app) wipeWallets(confirmed bool) int {
	if !confirmed && !confirmPrompt("this will delete every tracked wallet and its trade history") {
		log.Info().Msg("wipe-wallets cancelled")
		return 0
	}
	if err := a.db.WipeWallets(); err != nil {
		log.Error().Err(err).Msg("wipe-wallets failed")
		return 1
	}
	log.Info().Msg("all wallets wiped")
	return 0
}

func (a *app) importSmartMoney(mintFilter string) int {
	if a.intel == nil {
		log.Error().Msg("wallet-analytics provider is not configured (missing cookie); nothing to import")
		return 1
	}
	if mintFilter == "" {
		log.Error().Msg("--import-smart-money requires --source=<mint> to pick a top-buyer list")
		return 1
	}
	buyers := a.intel.TopBuyers(mintFilter, 50)
	for _, b := range buyers {
		w := &domain.Wallet{Address: b.Address, Source: domain.SourceGMGN, IsMonitored: true, Trust: 1.0}
		if err := a.db.UpsertWallet(w); err != nil {
			log.Error().Err(err).Str("wallet", b.Address).Msg("failed to import wallet")
		}
	}
	log.Info().Int("count", len(buyers)).Msg("smart-money import complete")
	return 0
}

func confirmPrompt(msg string) bool {
	fmt.Printf("%s\ntype 'yes' to continue: ", msg)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line) == "yes"
}

func setupLogger() {
	log.Logger = zerolog.New(
		zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"},
	).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "1" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}
