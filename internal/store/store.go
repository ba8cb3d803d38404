// Package store is the durable, single-writer state layer described in
// spec §3/§4.1: tokens, wallets, wallet-token trades, signals, trades,
// positions, clusters, cluster members, agent decisions and daily
// stats, all in one embedded sqlite file. Grounded on
// internal/storage/db.go's DSN-pragma/upsert pattern, generalized from
// three tables to the full entity set and given a numbered, additive
// migration list per spec §9.
package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Store wraps the sqlite database.
type Store struct {
	db *sql.DB
}

// schemaVersion is the highest migration this binary understands. The
// store refuses to run against a database stamped with a newer version,
// per spec §9 ("the core refuses to run if the schema version is ahead
// of the code").
const schemaVersion = 1

// Open opens (creating if necessary) the sqlite database at path and
// applies any outstanding migrations.
func Open(path string) (*Store, error) {
	dsn := path
	if !strings.Contains(path, "?") {
		dsn += "?"
	} else {
		dsn += "&"
	}
	dsn += "_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", path).Msg("store opened")
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

type migration struct {
	version int
	stmts   []string
}

// migrations is the numbered, additive list spec §9 requires. Each
// migration only adds tables/columns/indexes; nothing is ever dropped.
var migrations = []migration{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS schema_meta (version INTEGER NOT NULL)`,

			`CREATE TABLE IF NOT EXISTS tokens (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				mint TEXT NOT NULL UNIQUE,
				symbol TEXT NOT NULL DEFAULT '',
				name TEXT NOT NULL DEFAULT '',
				market_cap_usd REAL NOT NULL DEFAULT 0,
				price_usd REAL NOT NULL DEFAULT 0,
				volume_24h_usd REAL NOT NULL DEFAULT 0,
				liquidity_usd REAL NOT NULL DEFAULT 0,
				holders INTEGER NOT NULL DEFAULT 0,
				price_multiplier REAL NOT NULL DEFAULT 0,
				rug_ratio REAL NOT NULL DEFAULT 0,
				wash_trading INTEGER NOT NULL DEFAULT 0,
				bundler_rate REAL NOT NULL DEFAULT 0,
				mint_renounced INTEGER NOT NULL DEFAULT 0,
				first_seen_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_tokens_multiplier ON tokens(price_multiplier DESC)`,

			`CREATE TABLE IF NOT EXISTS wallets (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				address TEXT NOT NULL UNIQUE,
				pnl_score REAL NOT NULL DEFAULT 0,
				win_rate_score REAL NOT NULL DEFAULT 0,
				timing_score REAL NOT NULL DEFAULT 0,
				consistency_score REAL NOT NULL DEFAULT 0,
				total_score REAL NOT NULL DEFAULT 0,
				total_pnl_native REAL NOT NULL DEFAULT 0,
				total_trades INTEGER NOT NULL DEFAULT 0,
				winning_trades INTEGER NOT NULL DEFAULT 0,
				avg_entry_rank REAL NOT NULL DEFAULT 0,
				unique_winners INTEGER NOT NULL DEFAULT 0,
				profit_30d_usd REAL NOT NULL DEFAULT 0,
				sol_balance REAL NOT NULL DEFAULT 0,
				win_rate_30d REAL NOT NULL DEFAULT 0,
				buys_30d INTEGER NOT NULL DEFAULT 0,
				sells_30d INTEGER NOT NULL DEFAULT 0,
				tags TEXT NOT NULL DEFAULT '[]',
				is_flagged INTEGER NOT NULL DEFAULT 0,
				flag_reason TEXT NOT NULL DEFAULT '',
				is_monitored INTEGER NOT NULL DEFAULT 0,
				source TEXT NOT NULL DEFAULT 'manual',
				trust REAL NOT NULL DEFAULT 1.0,
				first_seen_at INTEGER NOT NULL,
				last_active_at INTEGER NOT NULL,
				score_updated_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_wallets_score ON wallets(total_score DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_wallets_monitored ON wallets(is_monitored)`,

			`CREATE TABLE IF NOT EXISTS wallet_token_trades (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				wallet_addr TEXT NOT NULL,
				mint TEXT NOT NULL,
				buy_amount REAL NOT NULL DEFAULT 0,
				sell_amount REAL NOT NULL DEFAULT 0,
				pnl_native REAL NOT NULL DEFAULT 0,
				buy_price REAL NOT NULL DEFAULT 0,
				sell_price REAL NOT NULL DEFAULT 0,
				entry_rank INTEGER NOT NULL DEFAULT 0,
				first_buy_at INTEGER NOT NULL,
				last_sell_at INTEGER
			)`,
			`CREATE INDEX IF NOT EXISTS idx_wtt_wallet ON wallet_token_trades(wallet_addr)`,
			`CREATE INDEX IF NOT EXISTS idx_wtt_mint ON wallet_token_trades(mint)`,

			`CREATE TABLE IF NOT EXISTS signals (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				wallet_addr TEXT NOT NULL,
				mint TEXT NOT NULL,
				signal_type TEXT NOT NULL,
				wallet_score REAL NOT NULL DEFAULT 0,
				confidence REAL NOT NULL DEFAULT 0,
				executed INTEGER NOT NULL DEFAULT 0,
				trade_id INTEGER NOT NULL DEFAULT 0,
				skip_reason TEXT NOT NULL DEFAULT '',
				source_type TEXT NOT NULL DEFAULT 'human',
				amount_native REAL NOT NULL DEFAULT 0,
				timestamp INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_signals_mint_ts ON signals(mint, timestamp DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_signals_ts ON signals(timestamp DESC)`,

			`CREATE TABLE IF NOT EXISTS trades (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				mint TEXT NOT NULL,
				side TEXT NOT NULL,
				amount_native REAL NOT NULL DEFAULT 0,
				amount_tokens REAL NOT NULL DEFAULT 0,
				price_usd REAL NOT NULL DEFAULT 0,
				trigger_wallet TEXT NOT NULL DEFAULT '',
				signal_id INTEGER NOT NULL DEFAULT 0,
				sell_reason TEXT NOT NULL DEFAULT '',
				tx_handle TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				slippage_bps INTEGER NOT NULL DEFAULT 0,
				priority_fee_sol REAL NOT NULL DEFAULT 0,
				error_message TEXT NOT NULL DEFAULT '',
				created_at INTEGER NOT NULL,
				confirmed_at INTEGER
			)`,
			`CREATE INDEX IF NOT EXISTS idx_trades_created ON trades(created_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_trades_mint ON trades(mint)`,

			`CREATE TABLE IF NOT EXISTS positions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				mint TEXT NOT NULL,
				entry_price_usd REAL NOT NULL DEFAULT 0,
				current_price_usd REAL NOT NULL DEFAULT 0,
				invested_native REAL NOT NULL DEFAULT 0,
				tokens_held REAL NOT NULL DEFAULT 0,
				take_profits TEXT NOT NULL DEFAULT '[]',
				stop_loss_price REAL NOT NULL DEFAULT 0,
				trigger_wallet TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				close_reason TEXT NOT NULL DEFAULT '',
				realized_pnl REAL NOT NULL DEFAULT 0,
				unrealized_pnl REAL NOT NULL DEFAULT 0,
				source_type TEXT NOT NULL DEFAULT 'human',
				opened_at INTEGER NOT NULL,
				closed_at INTEGER,
				last_checked_at INTEGER
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_positions_open_mint ON positions(mint) WHERE status = 'open'`,
			`CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status)`,

			`CREATE TABLE IF NOT EXISTS clusters (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				seed_wallet TEXT NOT NULL UNIQUE,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			)`,

			`CREATE TABLE IF NOT EXISTS cluster_members (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				cluster_id INTEGER NOT NULL,
				wallet_addr TEXT NOT NULL,
				relationship_type TEXT NOT NULL,
				is_side_wallet INTEGER NOT NULL DEFAULT 0,
				confidence REAL NOT NULL DEFAULT 0,
				avg_lead_seconds REAL NOT NULL DEFAULT 0,
				evidence TEXT NOT NULL DEFAULT '{}',
				UNIQUE(cluster_id, wallet_addr)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_cluster_members_cluster ON cluster_members(cluster_id)`,
			`CREATE INDEX IF NOT EXISTS idx_cluster_members_side ON cluster_members(is_side_wallet)`,

			`CREATE TABLE IF NOT EXISTS agent_decisions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				mint TEXT NOT NULL,
				decision TEXT NOT NULL,
				confidence REAL NOT NULL DEFAULT 0,
				reasons TEXT NOT NULL DEFAULT '[]',
				buy_wallets INTEGER NOT NULL DEFAULT 0,
				sell_wallets INTEGER NOT NULL DEFAULT 0,
				unique_wallets INTEGER NOT NULL DEFAULT 0,
				amount_native REAL NOT NULL DEFAULT 0,
				executed INTEGER NOT NULL DEFAULT 0,
				trade_id INTEGER NOT NULL DEFAULT 0,
				created_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_agent_decisions_created ON agent_decisions(created_at DESC)`,

			`CREATE TABLE IF NOT EXISTS daily_stats (
				date TEXT PRIMARY KEY,
				trades_executed INTEGER NOT NULL DEFAULT 0,
				positions_opened INTEGER NOT NULL DEFAULT 0,
				positions_closed INTEGER NOT NULL DEFAULT 0,
				realized_pnl REAL NOT NULL DEFAULT 0,
				best_trade REAL NOT NULL DEFAULT 0,
				worst_trade REAL NOT NULL DEFAULT 0,
				max_drawdown REAL NOT NULL DEFAULT 0,
				hit_daily_loss_limit INTEGER NOT NULL DEFAULT 0
			)`,
		},
	},
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_meta (version INTEGER NOT NULL)`); err != nil {
		return err
	}

	current := 0
	row := s.db.QueryRow(`SELECT version FROM schema_meta LIMIT 1`)
	_ = row.Scan(&current) // no row yet => current stays 0

	if current > schemaVersion {
		return fmt.Errorf("database schema version %d is ahead of this binary (%d)", current, schemaVersion)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		for _, stmt := range m.stmts {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration %d: %w", m.version, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d commit: %w", m.version, err)
		}
		current = m.version
	}

	if _, err := s.db.Exec(`DELETE FROM schema_meta`); err != nil {
		return err
	}
	if _, err := s.db.Exec(`INSERT INTO schema_meta (version) VALUES (?)`, schemaVersion); err != nil {
		return err
	}

	log.Info().Int("version", schemaVersion).Msg("store schema up to date")
	return nil
}
