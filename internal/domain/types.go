// Package domain holds the shared entity shapes every other package
// exchanges: tokens, wallets, signals, trades, positions, clusters and
// the agent's journal. Nothing here talks to the network or the store;
// it is the vocabulary the rest of the system shares.
package domain

import "time"

// Token is a discovered tradeable mint.
type Token struct {
	ID              int64
	Mint            string
	Symbol          string
	Name            string
	MarketCapUSD    float64
	PriceUSD        float64
	Volume24hUSD    float64
	LiquidityUSD    float64
	Holders         int
	PriceMultiplier float64 // current / min observed over lookback
	RugRatio        float64
	WashTrading     bool
	BundlerRate     float64
	MintRenounced   bool
	FirstSeenAt     time.Time
	UpdatedAt       time.Time
}

// WalletSource tags where a wallet entered the system.
type WalletSource string

const (
	SourceManual  WalletSource = "manual"
	SourceGMGN    WalletSource = "gmgn"
	SourceFOMO    WalletSource = "fomo"
	SourceCluster WalletSource = "cluster"
)

// Wallet is a tracked trader address.
type Wallet struct {
	ID      int64
	Address string

	PnLScore          float64
	WinRateScore      float64
	TimingScore       float64
	ConsistencyScore  float64
	TotalScore        float64

	TotalPnLNative   float64
	TotalTrades      int
	WinningTrades    int
	AvgEntryRank     float64
	UniqueWinners    int

	// External enrichment.
	Profit30dUSD   float64
	SOLBalance     float64
	WinRate30d     float64
	Buys30d        int
	Sells30d       int
	Tags           []string

	IsFlagged    bool
	FlagReason   string
	IsMonitored  bool
	Source       WalletSource
	Trust        float64 // [0.1, 3.0], managed by the brain's learning loop

	FirstSeenAt    time.Time
	LastActiveAt   time.Time
	ScoreUpdatedAt time.Time
}

// WalletTokenTrade is an observed buy/sell pair for one wallet on one mint.
type WalletTokenTrade struct {
	ID           int64
	WalletAddr   string
	Mint         string
	BuyAmount    float64
	SellAmount   float64
	PnLNative    float64
	BuyPrice     float64
	SellPrice    float64
	EntryRank    int
	FirstBuyAt   time.Time
	LastSellAt   time.Time
}

// SignalType enumerates the kinds of wallet actions the monitor emits.
type SignalType string

const (
	SignalBuy       SignalType = "buy"
	SignalSell      SignalType = "sell"
	SignalLargeBuy  SignalType = "large_buy"
	SignalLargeSell SignalType = "large_sell"
)

// SourceType classifies who triggered a trade, driving exit ladder and sizing.
type SourceType string

const (
	SourceHuman     SourceType = "human"
	SourceBot       SourceType = "bot"
	SourceConsensus SourceType = "consensus"
)

// Signal is an observed buy action by a monitored wallet.
type Signal struct {
	ID            int64
	WalletAddr    string
	Mint          string
	Type          SignalType
	WalletScore   float64
	Confidence    float64
	Executed      bool
	TradeID       int64
	SkipReason    string
	SourceType    SourceType
	AmountNative  float64 // amount the wallet spent, used for size bonus
	Timestamp     time.Time
}

// TradeSide is buy or sell.
type TradeSide string

const (
	TradeBuy  TradeSide = "buy"
	TradeSell TradeSide = "sell"
)

// TradeStatus is the lifecycle state of a submitted trade.
type TradeStatus string

const (
	TradePending     TradeStatus = "pending"
	TradeConfirmed   TradeStatus = "confirmed"
	TradeUnconfirmed TradeStatus = "unconfirmed"
	TradeFailed      TradeStatus = "failed"
	TradeDryRun      TradeStatus = "dry_run"
)

// Trade records an attempted buy or sell.
type Trade struct {
	ID              int64
	Mint            string
	Side            TradeSide
	AmountNative    float64
	AmountTokens    float64
	PriceUSD        float64
	TriggerWallet   string
	SignalID        int64
	SellReason      string
	TxHandle        string
	Status          TradeStatus
	SlippageBps     int
	PriorityFeeSol  float64
	ErrorMessage    string
	CreatedAt       time.Time
	ConfirmedAt     time.Time
}

// PositionStatus is open or closed.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// TakeProfitLevel is one rung of a position's exit ladder.
type TakeProfitLevel struct {
	Multiplier float64 `json:"multiplier"`
	Fraction   float64 `json:"fraction"` // fraction of the *remaining* tokens
	Hit        bool    `json:"hit"`
}

// Position is open exposure to a token.
type Position struct {
	ID              int64
	Mint            string
	EntryPriceUSD   float64
	CurrentPriceUSD float64
	InvestedNative  float64
	TokensHeld      float64
	TakeProfits     []TakeProfitLevel
	StopLossPrice   float64
	TriggerWallet   string
	Status          PositionStatus
	CloseReason     string
	RealizedPnL     float64
	UnrealizedPnL   float64
	SourceType      SourceType
	OpenedAt        time.Time
	ClosedAt        time.Time
	LastCheckedAt   time.Time
}

// ClusterMember is one wallet associated with a cluster's seed.
type ClusterMember struct {
	ID               int64
	ClusterID        int64
	WalletAddr       string
	RelationshipType string
	IsSideWallet     bool
	Confidence       float64
	AvgLeadSeconds   float64
	Evidence         map[string]any
}

// Cluster groups a seed wallet with its discovered associates.
type Cluster struct {
	ID         int64
	SeedWallet string
	Members    []ClusterMember
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DecisionKind is the brain's verdict for an opportunity.
type DecisionKind string

const (
	DecisionBuy  DecisionKind = "buy"
	DecisionSkip DecisionKind = "skip"
	DecisionHold DecisionKind = "hold"
)

// AgentDecision is one journal row from the brain's cycle.
type AgentDecision struct {
	ID           int64
	Mint         string
	Decision     DecisionKind
	Confidence   float64
	Reasons      []string
	BuyWallets   int
	SellWallets  int
	UniqueWallets int
	AmountNative float64
	Executed     bool
	TradeID      int64
	CreatedAt    time.Time
}

// StrategyStats accumulates learning-cycle outcomes.
type StrategyStats struct {
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	TotalPnL       float64 `json:"total_pnl"`
	BestPnL        float64 `json:"best_pnl"`
	WorstPnL       float64 `json:"worst_pnl"`
	LearningCycles int     `json:"learning_cycles"`
}

// AgentStrategy is the brain's persisted, mutable policy.
type AgentStrategy struct {
	Version                int                `json:"version"`
	MinConfidence          float64            `json:"min_confidence"`
	ConsensusThreshold     int                `json:"consensus_threshold"`
	PositionScale          float64            `json:"position_scale"`
	MaxConcurrentDecisions int                `json:"max_concurrent_decisions"`
	CooldownSeconds        int                `json:"cooldown_seconds"`
	WalletTrust            map[string]float64 `json:"wallet_trust"`
	TokenBlacklist         []string           `json:"token_blacklist"`
	PreferredMcapMin       float64            `json:"preferred_mcap_min"`
	PreferredMcapMax       float64            `json:"preferred_mcap_max"`
	PreferredLiquidityMin  float64            `json:"preferred_liquidity_min"`
	Stats                  StrategyStats      `json:"stats"`

	// Unknown keys from an on-disk file written by a newer version are
	// preserved here verbatim but never consulted by brain logic.
	Unknown map[string]any `json:"-"`
}

// DailyStats is one row per calendar day of trading activity.
type DailyStats struct {
	Date               string
	TradesExecuted     int
	PositionsOpened    int
	PositionsClosed    int
	RealizedPnL        float64
	BestTrade          float64
	WorstTrade         float64
	MaxDrawdown        float64
	HitDailyLossLimit  bool
}
