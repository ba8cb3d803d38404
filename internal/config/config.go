// Package config loads and hot-reloads the agent's YAML configuration,
// following the same viper+fsnotify Manager shape the rest of this
// codebase's ancestry uses.
package config

import (
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds all agent configuration.
type Config struct {
	Wallet     WalletConfig     `mapstructure:"wallet"`
	RPC        RPCConfig        `mapstructure:"rpc"`
	Trading    TradingConfig    `mapstructure:"trading"`
	Swap       SwapConfig       `mapstructure:"swap"`
	Market     MarketConfig     `mapstructure:"market"`
	WalletIntel WalletIntelConfig `mapstructure:"wallet_intel"`
	Discovery  DiscoveryConfig  `mapstructure:"discovery"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Cluster    ClusterConfig    `mapstructure:"cluster"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Validator  ValidatorConfig  `mapstructure:"validator"`
	Safety     SafetyConfig     `mapstructure:"safety"`
	Brain      BrainConfig      `mapstructure:"brain"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Notify     NotifyConfig     `mapstructure:"notify"`
}

type WalletConfig struct {
	PrivateKeyEnv string `mapstructure:"private_key_env"`
	BaseMint      string `mapstructure:"base_mint"`
}

type RPCConfig struct {
	PrimaryURL        string `mapstructure:"primary_url"`
	PrimaryAPIKeyEnv  string `mapstructure:"primary_api_key_env"`
	FallbackURL       string `mapstructure:"fallback_url"`
	FallbackAPIKeyEnv string `mapstructure:"fallback_api_key_env"`
	ParsedTxURL       string `mapstructure:"parsed_tx_url"`
	ParsedTxAPIKeyEnv string `mapstructure:"parsed_tx_api_key_env"`
	MaxRetries        int    `mapstructure:"max_retries"`
}

type TradingConfig struct {
	Mode                   string  `mapstructure:"mode"` // live|dry_run|alert_only
	DefaultPositionSizeSOL float64 `mapstructure:"default_position_size_sol"`
	MaxPositionSizeSOL     float64 `mapstructure:"max_position_size_sol"`
	PerTokenCapSOL         float64 `mapstructure:"per_token_cap_sol"`
	MaxOpenPositions       int     `mapstructure:"max_open_positions"`
	MaxDailyLossSOL        float64 `mapstructure:"max_daily_loss_sol"`
	ConsensusMultiplier    float64 `mapstructure:"consensus_multiplier"`
	BotMultiplier          float64 `mapstructure:"bot_multiplier"`
	PositionCheckSeconds   int     `mapstructure:"position_check_seconds"`
}

type SwapConfig struct {
	QuoteAPIURL    string `mapstructure:"quote_api_url"`
	SlippageBps    int    `mapstructure:"slippage_bps"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	ConfirmTimeoutSeconds int `mapstructure:"confirm_timeout_seconds"`
}

type MarketConfig struct {
	PrimaryProviderURL      string  `mapstructure:"primary_provider_url"`
	SecondaryProviderURL    string  `mapstructure:"secondary_provider_url"`
	SOLReferencePriceUSD    float64 `mapstructure:"sol_reference_price_usd"`
	CacheTTLSeconds         int     `mapstructure:"cache_ttl_seconds"`
}

type WalletIntelConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	CookieEnv     string `mapstructure:"cookie_env"`
	TimeoutSeconds int   `mapstructure:"timeout_seconds"`
}

type DiscoveryConfig struct {
	Sources              []string `mapstructure:"sources"`
	CronExpr             string   `mapstructure:"cron_expr"`
	MinMarketCapUSD      float64  `mapstructure:"min_market_cap_usd"`
	MaxMarketCapUSD      float64  `mapstructure:"max_market_cap_usd"`
	MinMultiplier        float64  `mapstructure:"min_multiplier"`
	MinLiquidityUSD      float64  `mapstructure:"min_liquidity_usd"`
	MinVolume24hUSD      float64  `mapstructure:"min_volume_24h_usd"`
	MinLiquidityMcapRatio float64 `mapstructure:"min_liquidity_mcap_ratio"`
	MinHolders           int      `mapstructure:"min_holders"`
	MaxRugRatio          float64  `mapstructure:"max_rug_ratio"`
	MaxBundlerRate       float64  `mapstructure:"max_bundler_rate"`
	MultiplierLookback   int      `mapstructure:"multiplier_lookback_minutes"`
}

type ScoringConfig struct {
	MaxTradesForScoring int     `mapstructure:"max_trades_for_scoring"`
	RefresherCronExpr   string  `mapstructure:"refresher_cron_expr"`
	RefresherTopN       int     `mapstructure:"refresher_top_n"`
	BotTradesPerDay     float64 `mapstructure:"bot_trades_per_day_threshold"`
}

type ClusterConfig struct {
	MinTransferNative    float64 `mapstructure:"min_transfer_native"`
	MaxFundingDepth      int     `mapstructure:"max_funding_depth"`
	FundingTopN          int     `mapstructure:"funding_top_n"`
	TimingLeadWindowMins int     `mapstructure:"timing_lead_window_minutes"`
	MinSharedTokens      int     `mapstructure:"min_shared_tokens"`
	MinOverlapTokens     int     `mapstructure:"min_overlap_tokens"`
	MinRelationshipScore float64 `mapstructure:"min_relationship_score"`
	MaxClusterMonitored  int     `mapstructure:"max_cluster_monitored"`
	KnownExchanges       []string `mapstructure:"known_exchanges"`
}

type MonitorConfig struct {
	TickSeconds       int     `mapstructure:"tick_seconds"`
	WalletSpacingMs   int     `mapstructure:"wallet_spacing_ms"`
	DedupCap          int     `mapstructure:"dedup_cap"`
	SignatureLimit    int     `mapstructure:"signature_limit"`
}

type ValidatorConfig struct {
	MinLiquidityUSD        float64 `mapstructure:"min_liquidity_usd"`
	MinCopyTradeMcapUSD    float64 `mapstructure:"min_copy_trade_mcap_usd"`
	MaxCopyTradeMcapUSD    float64 `mapstructure:"max_copy_trade_mcap_usd"`
	ConsensusWindowSeconds int     `mapstructure:"consensus_window_seconds"`
	BotSpeedTradesPerDay   float64 `mapstructure:"bot_speed_trades_per_day"`
	MaxPositionSizeSOL     float64 `mapstructure:"max_position_size_sol"`
}

type SafetyConfig struct {
	MaxDailyLossSOL    float64 `mapstructure:"max_daily_loss_sol"`
	MaxOpenPositions   int     `mapstructure:"max_open_positions"`
	MaxPositionSizeSOL float64 `mapstructure:"max_position_size_sol"`
	DefaultPositionSizeSOL float64 `mapstructure:"default_position_size_sol"`
}

type BrainConfig struct {
	CycleIntervalSeconds int     `mapstructure:"cycle_interval_seconds"`
	LearnIntervalSeconds int     `mapstructure:"learn_interval_seconds"`
	ScanWindowMinutes    int     `mapstructure:"scan_window_minutes"`
	StrategyPath         string  `mapstructure:"strategy_path"`
	BasePositionSizeSOL  float64 `mapstructure:"base_position_size_sol"`
	MaxPositionSizeSOL   float64 `mapstructure:"max_position_size_sol"`
}

type StorageConfig struct {
	SQLitePath string `mapstructure:"sqlite_path"`
}

type NotifyConfig struct {
	AuthorizedChatID string `mapstructure:"authorized_chat_id"`
}

// Manager handles config loading and hot-reload.
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	viper    *viper.Viper
	onChange func(*Config)
}

// NewManager creates a new config manager, loading from configPath.
func NewManager(configPath string) (*Manager, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	m := &Manager{config: &cfg, viper: v}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info().Str("file", e.Name).Msg("config file changed, reloading")
		m.reload()
	})

	return m, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("wallet.private_key_env", "WALLET_PRIVATE_KEY")
	v.SetDefault("wallet.base_mint", "So11111111111111111111111111111111111111112")

	v.SetDefault("rpc.primary_api_key_env", "SHYFT_API_KEY")
	v.SetDefault("rpc.fallback_url", "https://api.mainnet-beta.solana.com")
	v.SetDefault("rpc.fallback_api_key_env", "HELIUS_API_KEY")
	v.SetDefault("rpc.parsed_tx_api_key_env", "HELIUS_API_KEY")
	v.SetDefault("rpc.max_retries", 3)

	v.SetDefault("trading.mode", "dry_run")
	v.SetDefault("trading.default_position_size_sol", 0.1)
	v.SetDefault("trading.max_position_size_sol", 1.0)
	v.SetDefault("trading.per_token_cap_sol", 1.0)
	v.SetDefault("trading.max_open_positions", 10)
	v.SetDefault("trading.max_daily_loss_sol", 2.0)
	v.SetDefault("trading.consensus_multiplier", 1.5)
	v.SetDefault("trading.bot_multiplier", 0.7)
	v.SetDefault("trading.position_check_seconds", 10)

	v.SetDefault("swap.quote_api_url", "https://quote-api.jup.ag/v6/quote")
	v.SetDefault("swap.slippage_bps", 500)
	v.SetDefault("swap.timeout_seconds", 10)
	v.SetDefault("swap.confirm_timeout_seconds", 30)

	v.SetDefault("market.sol_reference_price_usd", 150.0)
	v.SetDefault("market.cache_ttl_seconds", 30)

	v.SetDefault("wallet_intel.cookie_env", "WALLET_INTEL_COOKIE")
	v.SetDefault("wallet_intel.timeout_seconds", 15)

	v.SetDefault("discovery.cron_expr", "*/5 * * * *")
	v.SetDefault("discovery.min_market_cap_usd", 50_000.0)
	v.SetDefault("discovery.max_market_cap_usd", 50_000_000.0)
	v.SetDefault("discovery.min_multiplier", 1.5)
	v.SetDefault("discovery.min_liquidity_usd", 10_000.0)
	v.SetDefault("discovery.min_volume_24h_usd", 5_000.0)
	v.SetDefault("discovery.min_liquidity_mcap_ratio", 0.005)
	v.SetDefault("discovery.min_holders", 50)
	v.SetDefault("discovery.max_rug_ratio", 0.5)
	v.SetDefault("discovery.max_bundler_rate", 0.3)
	v.SetDefault("discovery.multiplier_lookback_minutes", 1440)

	v.SetDefault("scoring.max_trades_for_scoring", 15000)
	v.SetDefault("scoring.refresher_cron_expr", "0 */6 * * *")
	v.SetDefault("scoring.refresher_top_n", 50)
	v.SetDefault("scoring.bot_trades_per_day_threshold", 20.0)

	v.SetDefault("cluster.min_transfer_native", 0.5)
	v.SetDefault("cluster.max_funding_depth", 2)
	v.SetDefault("cluster.funding_top_n", 5)
	v.SetDefault("cluster.timing_lead_window_minutes", 30)
	v.SetDefault("cluster.min_shared_tokens", 3)
	v.SetDefault("cluster.min_overlap_tokens", 3)
	v.SetDefault("cluster.min_relationship_score", 0.3)
	v.SetDefault("cluster.max_cluster_monitored", 5)
	v.SetDefault("cluster.known_exchanges", []string{})

	v.SetDefault("monitor.tick_seconds", 5)
	v.SetDefault("monitor.wallet_spacing_ms", 500)
	v.SetDefault("monitor.dedup_cap", 1000)
	v.SetDefault("monitor.signature_limit", 20)

	v.SetDefault("validator.min_liquidity_usd", 10_000.0)
	v.SetDefault("validator.min_copy_trade_mcap_usd", 50_000.0)
	v.SetDefault("validator.max_copy_trade_mcap_usd", 50_000_000.0)
	v.SetDefault("validator.consensus_window_seconds", 300)
	v.SetDefault("validator.bot_speed_trades_per_day", 20.0)
	v.SetDefault("validator.max_position_size_sol", 1.0)

	v.SetDefault("safety.max_daily_loss_sol", 2.0)
	v.SetDefault("safety.max_open_positions", 10)
	v.SetDefault("safety.max_position_size_sol", 1.0)
	v.SetDefault("safety.default_position_size_sol", 0.1)

	v.SetDefault("brain.cycle_interval_seconds", 60)
	v.SetDefault("brain.learn_interval_seconds", 3600)
	v.SetDefault("brain.scan_window_minutes", 30)
	v.SetDefault("brain.strategy_path", "./data/strategy.json")
	v.SetDefault("brain.base_position_size_sol", 0.1)
	v.SetDefault("brain.max_position_size_sol", 1.0)

	v.SetDefault("storage.sqlite_path", "./data/agent.db")

	v.SetDefault("notify.authorized_chat_id", "")
}

// Get returns the current config (thread-safe).
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetOnChange registers a callback for config changes.
func (m *Manager) SetOnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

func (m *Manager) reload() {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cfg Config
	if err := m.viper.Unmarshal(&cfg); err != nil {
		log.Error().Err(err).Msg("failed to unmarshal config on reload")
		return
	}

	m.config = &cfg
	if m.onChange != nil {
		m.onChange(&cfg)
	}
}

// GetPrivateKey loads the signer private key from the environment.
func (m *Manager) GetPrivateKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return os.Getenv(m.config.Wallet.PrivateKeyEnv)
}

// GetPrimaryAPIKey loads the primary RPC API key from the environment.
func (m *Manager) GetPrimaryAPIKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return os.Getenv(m.config.RPC.PrimaryAPIKeyEnv)
}

// GetFallbackAPIKey loads the fallback RPC API key from the environment.
func (m *Manager) GetFallbackAPIKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return os.Getenv(m.config.RPC.FallbackAPIKeyEnv)
}

// GetParsedTxAPIKey loads the parsed-transaction provider API key from
// the environment.
func (m *Manager) GetParsedTxAPIKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return os.Getenv(m.config.RPC.ParsedTxAPIKeyEnv)
}

// GetWalletIntelCookie loads the wallet-analytics provider cookie from
// the environment. Missing cookie is not an error — callers must
// tolerate an empty provider response.
func (m *Manager) GetWalletIntelCookie() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return os.Getenv(m.config.WalletIntel.CookieEnv)
}

// BrainCycleInterval returns the brain's decision cycle interval.
func (m *Manager) BrainCycleInterval() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Duration(m.config.Brain.CycleIntervalSeconds) * time.Second
}

// BrainLearnInterval returns the brain's learning cycle interval.
func (m *Manager) BrainLearnInterval() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Duration(m.config.Brain.LearnIntervalSeconds) * time.Second
}

// MonitorTick returns the wallet monitor's tick interval.
func (m *Manager) MonitorTick() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Duration(m.config.Monitor.TickSeconds) * time.Second
}

// PositionCheckInterval returns the position manager's tick interval.
func (m *Manager) PositionCheckInterval() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Duration(m.config.Trading.PositionCheckSeconds) * time.Second
}
