package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"frontrun-agent/internal/domain"
)

func unixOrZero(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}

func timeFromUnix(sec sql.NullInt64) time.Time {
	if !sec.Valid || sec.Int64 == 0 {
		return time.Time{}
	}
	return time.Unix(sec.Int64, 0).UTC()
}

// UpsertToken inserts a token or merges fields into the existing row by mint.
func (s *Store) UpsertToken(t *domain.Token) (int64, error) {
	now := time.Now().Unix()
	res, err := s.db.Exec(`
		INSERT INTO tokens (mint, symbol, name, market_cap_usd, price_usd, volume_24h_usd,
			liquidity_usd, holders, price_multiplier, rug_ratio, wash_trading, bundler_rate,
			mint_renounced, first_seen_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(mint) DO UPDATE SET
			symbol=excluded.symbol, name=excluded.name, market_cap_usd=excluded.market_cap_usd,
			price_usd=excluded.price_usd, volume_24h_usd=excluded.volume_24h_usd,
			liquidity_usd=excluded.liquidity_usd, holders=excluded.holders,
			price_multiplier=excluded.price_multiplier, rug_ratio=excluded.rug_ratio,
			wash_trading=excluded.wash_trading, bundler_rate=excluded.bundler_rate,
			mint_renounced=excluded.mint_renounced, updated_at=excluded.updated_at`,
		t.Mint, t.Symbol, t.Name, t.MarketCapUSD, t.PriceUSD, t.Volume24hUSD, t.LiquidityUSD,
		t.Holders, t.PriceMultiplier, t.RugRatio, t.WashTrading, t.BundlerRate, t.MintRenounced,
		now, now)
	if err != nil {
		return 0, fmt.Errorf("upsert token: %w", err)
	}
	id, _ := res.LastInsertId()
	if id == 0 {
		row := s.db.QueryRow(`SELECT id FROM tokens WHERE mint = ?`, t.Mint)
		row.Scan(&id)
	}
	return id, nil
}

// TopTokens returns the top tokens ordered by multiplier desc.
func (s *Store) TopTokens(limit int) ([]domain.Token, error) {
	rows, err := s.db.Query(`
		SELECT id, mint, symbol, name, market_cap_usd, price_usd, volume_24h_usd, liquidity_usd,
			holders, price_multiplier, rug_ratio, wash_trading, bundler_rate, mint_renounced,
			first_seen_at, updated_at
		FROM tokens ORDER BY price_multiplier DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Token
	for rows.Next() {
		var t domain.Token
		var firstSeen, updated int64
		if err := rows.Scan(&t.ID, &t.Mint, &t.Symbol, &t.Name, &t.MarketCapUSD, &t.PriceUSD,
			&t.Volume24hUSD, &t.LiquidityUSD, &t.Holders, &t.PriceMultiplier, &t.RugRatio,
			&t.WashTrading, &t.BundlerRate, &t.MintRenounced, &firstSeen, &updated); err != nil {
			return nil, err
		}
		t.FirstSeenAt = time.Unix(firstSeen, 0).UTC()
		t.UpdatedAt = time.Unix(updated, 0).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpsertWallet merges a wallet: insert if new, else overwrite fields.
func (s *Store) UpsertWallet(w *domain.Wallet) error {
	tags, _ := json.Marshal(w.Tags)
	now := time.Now().Unix()
	firstSeen := now
	if !w.FirstSeenAt.IsZero() {
		firstSeen = w.FirstSeenAt.Unix()
	}

	_, err := s.db.Exec(`
		INSERT INTO wallets (address, pnl_score, win_rate_score, timing_score, consistency_score,
			total_score, total_pnl_native, total_trades, winning_trades, avg_entry_rank,
			unique_winners, profit_30d_usd, sol_balance, win_rate_30d, buys_30d, sells_30d,
			tags, is_flagged, flag_reason, is_monitored, source, trust,
			first_seen_at, last_active_at, score_updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(address) DO UPDATE SET
			pnl_score=excluded.pnl_score, win_rate_score=excluded.win_rate_score,
			timing_score=excluded.timing_score, consistency_score=excluded.consistency_score,
			total_score=excluded.total_score, total_pnl_native=excluded.total_pnl_native,
			total_trades=excluded.total_trades, winning_trades=excluded.winning_trades,
			avg_entry_rank=excluded.avg_entry_rank, unique_winners=excluded.unique_winners,
			profit_30d_usd=excluded.profit_30d_usd, sol_balance=excluded.sol_balance,
			win_rate_30d=excluded.win_rate_30d, buys_30d=excluded.buys_30d, sells_30d=excluded.sells_30d,
			tags=excluded.tags, is_flagged=excluded.is_flagged, flag_reason=excluded.flag_reason,
			is_monitored=excluded.is_monitored, source=excluded.source, trust=excluded.trust,
			last_active_at=excluded.last_active_at, score_updated_at=excluded.score_updated_at`,
		w.Address, w.PnLScore, w.WinRateScore, w.TimingScore, w.ConsistencyScore, w.TotalScore,
		w.TotalPnLNative, w.TotalTrades, w.WinningTrades, w.AvgEntryRank, w.UniqueWinners,
		w.Profit30dUSD, w.SOLBalance, w.WinRate30d, w.Buys30d, w.Sells30d, string(tags),
		w.IsFlagged, w.FlagReason, w.IsMonitored, string(w.Source), w.Trust,
		firstSeen, now, now)
	if err != nil {
		return fmt.Errorf("upsert wallet: %w", err)
	}
	return nil
}

func scanWallet(row interface{ Scan(...any) error }) (*domain.Wallet, error) {
	var w domain.Wallet
	var tags string
	var source string
	var firstSeen, lastActive, scoreUpdated int64
	err := row.Scan(&w.ID, &w.Address, &w.PnLScore, &w.WinRateScore, &w.TimingScore,
		&w.ConsistencyScore, &w.TotalScore, &w.TotalPnLNative, &w.TotalTrades, &w.WinningTrades,
		&w.AvgEntryRank, &w.UniqueWinners, &w.Profit30dUSD, &w.SOLBalance, &w.WinRate30d,
		&w.Buys30d, &w.Sells30d, &tags, &w.IsFlagged, &w.FlagReason, &w.IsMonitored, &source,
		&w.Trust, &firstSeen, &lastActive, &scoreUpdated)
	if err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(tags), &w.Tags)
	w.Source = domain.WalletSource(source)
	w.FirstSeenAt = time.Unix(firstSeen, 0).UTC()
	w.LastActiveAt = time.Unix(lastActive, 0).UTC()
	w.ScoreUpdatedAt = time.Unix(scoreUpdated, 0).UTC()
	return &w, nil
}

const walletColumns = `id, address, pnl_score, win_rate_score, timing_score, consistency_score,
	total_score, total_pnl_native, total_trades, winning_trades, avg_entry_rank, unique_winners,
	profit_30d_usd, sol_balance, win_rate_30d, buys_30d, sells_30d, tags, is_flagged, flag_reason,
	is_monitored, source, trust, first_seen_at, last_active_at, score_updated_at`

// GetWallet fetches a single wallet by address, nil if not found.
func (s *Store) GetWallet(address string) (*domain.Wallet, error) {
	row := s.db.QueryRow(`SELECT `+walletColumns+` FROM wallets WHERE address = ?`, address)
	w, err := scanWallet(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return w, err
}

// TopWallets returns the top-scored wallets, optionally filtered to monitored only.
func (s *Store) TopWallets(limit int, onlyMonitored bool) ([]domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets`
	if onlyMonitored {
		query += ` WHERE is_monitored = 1`
	}
	query += ` ORDER BY total_score DESC LIMIT ?`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// MonitoredWallets returns every wallet flagged is_monitored.
func (s *Store) MonitoredWallets() ([]domain.Wallet, error) {
	rows, err := s.db.Query(`SELECT ` + walletColumns + ` FROM wallets WHERE is_monitored = 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// SetWalletMonitored toggles a wallet's monitored flag.
func (s *Store) SetWalletMonitored(address string, monitored bool) error {
	_, err := s.db.Exec(`UPDATE wallets SET is_monitored = ? WHERE address = ?`, monitored, address)
	return err
}

// WipeWallets deletes every tracked wallet and its trade history, for
// the operator's --wipe-wallets reset flag. Tokens, trades, positions
// and the strategy journal are untouched.
func (s *Store) WipeWallets() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM wallet_token_trades`); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Exec(`DELETE FROM wallets`); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// UpdateWalletScore persists freshly computed sub-scores and the total.
func (s *Store) UpdateWalletScore(address string, pnl, winRate, timing, consistency, total float64) error {
	_, err := s.db.Exec(`
		UPDATE wallets SET pnl_score=?, win_rate_score=?, timing_score=?, consistency_score=?,
			total_score=?, score_updated_at=? WHERE address=?`,
		pnl, winRate, timing, consistency, total, time.Now().Unix(), address)
	return err
}

// CopyPerformanceByWallet returns realized+unrealized native coin PnL
// attributable to each triggering wallet, summed over every position
// (open or closed) that names it as trigger wallet.
func (s *Store) CopyPerformanceByWallet() (map[string]float64, error) {
	out := make(map[string]float64)

	rows, err := s.db.Query(`
		SELECT trigger_wallet, COALESCE(SUM(realized_pnl + unrealized_pnl), 0)
		FROM positions WHERE trigger_wallet != '' GROUP BY trigger_wallet`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var addr string
		var pnl float64
		if err := rows.Scan(&addr, &pnl); err != nil {
			rows.Close()
			return nil, err
		}
		out[addr] += pnl
	}
	rows.Close()
	return out, rows.Err()
}

// InsertWalletTokenTrade appends a new buy/sell observation.
func (s *Store) InsertWalletTokenTrade(r *domain.WalletTokenTrade) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO wallet_token_trades (wallet_addr, mint, buy_amount, sell_amount, pnl_native,
			buy_price, sell_price, entry_rank, first_buy_at, last_sell_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		r.WalletAddr, r.Mint, r.BuyAmount, r.SellAmount, r.PnLNative, r.BuyPrice, r.SellPrice,
		r.EntryRank, r.FirstBuyAt.Unix(), unixOrZero(r.LastSellAt))
	if err != nil {
		return 0, fmt.Errorf("insert wallet token trade: %w", err)
	}
	return res.LastInsertId()
}

// GetWalletTokenTradesForWallet returns every trade row for a wallet.
func (s *Store) GetWalletTokenTradesForWallet(address string) ([]domain.WalletTokenTrade, error) {
	rows, err := s.db.Query(`
		SELECT id, wallet_addr, mint, buy_amount, sell_amount, pnl_native, buy_price, sell_price,
			entry_rank, first_buy_at, last_sell_at
		FROM wallet_token_trades WHERE wallet_addr = ?`, address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.WalletTokenTrade
	for rows.Next() {
		var r domain.WalletTokenTrade
		var firstBuy int64
		var lastSell sql.NullInt64
		if err := rows.Scan(&r.ID, &r.WalletAddr, &r.Mint, &r.BuyAmount, &r.SellAmount,
			&r.PnLNative, &r.BuyPrice, &r.SellPrice, &r.EntryRank, &firstBuy, &lastSell); err != nil {
			return nil, err
		}
		r.FirstBuyAt = time.Unix(firstBuy, 0).UTC()
		r.LastSellAt = timeFromUnix(lastSell)
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertSignal persists a newly observed signal and returns its id.
func (s *Store) InsertSignal(sig *domain.Signal) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO signals (wallet_addr, mint, signal_type, wallet_score, confidence, executed,
			trade_id, skip_reason, source_type, amount_native, timestamp)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		sig.WalletAddr, sig.Mint, string(sig.Type), sig.WalletScore, sig.Confidence, sig.Executed,
		sig.TradeID, sig.SkipReason, string(sig.SourceType), sig.AmountNative, sig.Timestamp.Unix())
	if err != nil {
		return 0, fmt.Errorf("insert signal: %w", err)
	}
	return res.LastInsertId()
}

// MarkSignalExecuted links a signal to the trade it produced.
func (s *Store) MarkSignalExecuted(id, tradeID int64) error {
	_, err := s.db.Exec(`UPDATE signals SET executed=1, trade_id=? WHERE id=?`, tradeID, id)
	return err
}

// MarkSignalSkipped records why a signal was not acted on.
func (s *Store) MarkSignalSkipped(id int64, reason string) error {
	_, err := s.db.Exec(`UPDATE signals SET executed=0, skip_reason=? WHERE id=?`, reason, id)
	return err
}

// RecentSignalsSince returns every signal at or after cutoff, newest first.
func (s *Store) RecentSignalsSince(cutoff time.Time) ([]domain.Signal, error) {
	rows, err := s.db.Query(`
		SELECT id, wallet_addr, mint, signal_type, wallet_score, confidence, executed, trade_id,
			skip_reason, source_type, amount_native, timestamp
		FROM signals WHERE timestamp >= ? ORDER BY timestamp DESC`, cutoff.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Signal
	for rows.Next() {
		var sg domain.Signal
		var sigType, sourceType string
		var ts int64
		if err := rows.Scan(&sg.ID, &sg.WalletAddr, &sg.Mint, &sigType, &sg.WalletScore,
			&sg.Confidence, &sg.Executed, &sg.TradeID, &sg.SkipReason, &sourceType,
			&sg.AmountNative, &ts); err != nil {
			return nil, err
		}
		sg.Type = domain.SignalType(sigType)
		sg.SourceType = domain.SourceType(sourceType)
		sg.Timestamp = time.Unix(ts, 0).UTC()
		out = append(out, sg)
	}
	return out, rows.Err()
}

// InsertTrade inserts a new trade row and returns its id.
func (s *Store) InsertTrade(t *domain.Trade) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO trades (mint, side, amount_native, amount_tokens, price_usd, trigger_wallet,
			signal_id, sell_reason, tx_handle, status, slippage_bps, priority_fee_sol,
			error_message, created_at, confirmed_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.Mint, string(t.Side), t.AmountNative, t.AmountTokens, t.PriceUSD, t.TriggerWallet,
		t.SignalID, t.SellReason, t.TxHandle, string(t.Status), t.SlippageBps, t.PriorityFeeSol,
		t.ErrorMessage, time.Now().Unix(), unixOrZero(t.ConfirmedAt))
	if err != nil {
		return 0, fmt.Errorf("insert trade: %w", err)
	}
	return res.LastInsertId()
}

// UpdateTradeStatus transitions a trade to a terminal or interim status.
func (s *Store) UpdateTradeStatus(id int64, status domain.TradeStatus, txHandle, errMsg string) error {
	var confirmedAt any
	if status == domain.TradeConfirmed {
		confirmedAt = time.Now().Unix()
	}
	_, err := s.db.Exec(`
		UPDATE trades SET status=?, tx_handle=COALESCE(NULLIF(?, ''), tx_handle),
			error_message=?, confirmed_at=COALESCE(?, confirmed_at) WHERE id=?`,
		string(status), txHandle, errMsg, confirmedAt, id)
	return err
}

// TodaysTrades returns every trade created since UTC midnight.
func (s *Store) TodaysTrades() ([]domain.Trade, error) {
	start := todayStart()
	rows, err := s.db.Query(`
		SELECT id, mint, side, amount_native, amount_tokens, price_usd, trigger_wallet, signal_id,
			sell_reason, tx_handle, status, slippage_bps, priority_fee_sol, error_message,
			created_at, confirmed_at
		FROM trades WHERE created_at >= ? ORDER BY created_at DESC`, start.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTrade(row interface{ Scan(...any) error }) (*domain.Trade, error) {
	var t domain.Trade
	var side, status string
	var created int64
	var confirmed sql.NullInt64
	if err := row.Scan(&t.ID, &t.Mint, &side, &t.AmountNative, &t.AmountTokens, &t.PriceUSD,
		&t.TriggerWallet, &t.SignalID, &t.SellReason, &t.TxHandle, &status, &t.SlippageBps,
		&t.PriorityFeeSol, &t.ErrorMessage, &created, &confirmed); err != nil {
		return nil, err
	}
	t.Side = domain.TradeSide(side)
	t.Status = domain.TradeStatus(status)
	t.CreatedAt = time.Unix(created, 0).UTC()
	t.ConfirmedAt = timeFromUnix(confirmed)
	return &t, nil
}

// TodaysPnL sums realized PnL from positions closed since UTC midnight.
func (s *Store) TodaysPnL() (float64, error) {
	start := todayStart()
	var pnl sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT SUM(realized_pnl) FROM positions WHERE status='closed' AND closed_at >= ?`,
		start.Unix()).Scan(&pnl)
	if err != nil {
		return 0, err
	}
	return pnl.Float64, nil
}

func todayStart() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// OpenPosition inserts a new open position and returns its id.
func (s *Store) OpenPosition(p *domain.Position) (int64, error) {
	tp, _ := json.Marshal(p.TakeProfits)
	res, err := s.db.Exec(`
		INSERT INTO positions (mint, entry_price_usd, current_price_usd, invested_native,
			tokens_held, take_profits, stop_loss_price, trigger_wallet, status, close_reason,
			realized_pnl, unrealized_pnl, source_type, opened_at, closed_at, last_checked_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.Mint, p.EntryPriceUSD, p.CurrentPriceUSD, p.InvestedNative, p.TokensHeld, string(tp),
		p.StopLossPrice, p.TriggerWallet, string(domain.PositionOpen), "", 0.0, 0.0,
		string(p.SourceType), time.Now().Unix(), nil, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("open position (mint already open?): %w", err)
	}
	return res.LastInsertId()
}

const positionColumns = `id, mint, entry_price_usd, current_price_usd, invested_native,
	tokens_held, take_profits, stop_loss_price, trigger_wallet, status, close_reason,
	realized_pnl, unrealized_pnl, source_type, opened_at, closed_at, last_checked_at`

func scanPosition(row interface{ Scan(...any) error }) (*domain.Position, error) {
	var p domain.Position
	var status, sourceType, tp string
	var opened int64
	var closed, lastChecked sql.NullInt64
	if err := row.Scan(&p.ID, &p.Mint, &p.EntryPriceUSD, &p.CurrentPriceUSD, &p.InvestedNative,
		&p.TokensHeld, &tp, &p.StopLossPrice, &p.TriggerWallet, &status, &p.CloseReason,
		&p.RealizedPnL, &p.UnrealizedPnL, &sourceType, &opened, &closed, &lastChecked); err != nil {
		return nil, err
	}
	p.Status = domain.PositionStatus(status)
	p.SourceType = domain.SourceType(sourceType)
	json.Unmarshal([]byte(tp), &p.TakeProfits)
	p.OpenedAt = time.Unix(opened, 0).UTC()
	p.ClosedAt = timeFromUnix(closed)
	p.LastCheckedAt = timeFromUnix(lastChecked)
	return &p, nil
}

// GetOpenPositions returns every position with status=open.
func (s *Store) GetOpenPositions() ([]domain.Position, error) {
	rows, err := s.db.Query(`SELECT ` + positionColumns + ` FROM positions WHERE status='open'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// GetPositionByToken returns the open position for mint, if any.
func (s *Store) GetPositionByToken(mint string) (*domain.Position, error) {
	row := s.db.QueryRow(`SELECT `+positionColumns+` FROM positions WHERE mint=? AND status='open'`, mint)
	p, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// ClosePosition closes an open position with a terminal realized PnL.
// Closing an already-closed position is a no-op per P2/idempotence.
func (s *Store) ClosePosition(id int64, reason string, realizedPnL float64) error {
	res, err := s.db.Exec(`
		UPDATE positions SET status='closed', close_reason=?, realized_pnl=?, closed_at=?
		WHERE id=? AND status='open'`,
		reason, realizedPnL, time.Now().Unix(), id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil // already closed: no-op, not an error
	}
	return nil
}

// UpdatePositionPrice persists a fresh mark and unrealized PnL.
func (s *Store) UpdatePositionPrice(id int64, price, unrealized float64) error {
	_, err := s.db.Exec(`
		UPDATE positions SET current_price_usd=?, unrealized_pnl=?, last_checked_at=?
		WHERE id=?`, price, unrealized, time.Now().Unix(), id)
	return err
}

// UpdatePositionTakeProfits persists the ladder after a level fires.
func (s *Store) UpdatePositionTakeProfits(id int64, tp []domain.TakeProfitLevel, tokensHeld float64) error {
	enc, _ := json.Marshal(tp)
	_, err := s.db.Exec(`UPDATE positions SET take_profits=?, tokens_held=? WHERE id=?`,
		string(enc), tokensHeld, id)
	return err
}

// CreateCluster creates a cluster for a seed wallet, or returns the
// existing one's id (exactly one cluster per seed).
func (s *Store) CreateCluster(seedWallet string) (int64, error) {
	now := time.Now().Unix()
	res, err := s.db.Exec(`
		INSERT INTO clusters (seed_wallet, created_at, updated_at) VALUES (?,?,?)
		ON CONFLICT(seed_wallet) DO UPDATE SET updated_at=excluded.updated_at`,
		seedWallet, now, now)
	if err != nil {
		return 0, fmt.Errorf("create cluster: %w", err)
	}
	id, _ := res.LastInsertId()
	if id == 0 {
		row := s.db.QueryRow(`SELECT id FROM clusters WHERE seed_wallet=?`, seedWallet)
		row.Scan(&id)
	}
	return id, nil
}

// AddClusterMember inserts or replaces one member row.
func (s *Store) AddClusterMember(m *domain.ClusterMember) error {
	evidence, _ := json.Marshal(m.Evidence)
	_, err := s.db.Exec(`
		INSERT INTO cluster_members (cluster_id, wallet_addr, relationship_type, is_side_wallet,
			confidence, avg_lead_seconds, evidence)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(cluster_id, wallet_addr) DO UPDATE SET
			relationship_type=excluded.relationship_type, is_side_wallet=excluded.is_side_wallet,
			confidence=excluded.confidence, avg_lead_seconds=excluded.avg_lead_seconds,
			evidence=excluded.evidence`,
		m.ClusterID, m.WalletAddr, m.RelationshipType, m.IsSideWallet, m.Confidence,
		m.AvgLeadSeconds, string(evidence))
	return err
}

// GetClusterBySeed returns the cluster (without members) for a seed wallet.
func (s *Store) GetClusterBySeed(seedWallet string) (*domain.Cluster, error) {
	var c domain.Cluster
	var created, updated int64
	err := s.db.QueryRow(`SELECT id, seed_wallet, created_at, updated_at FROM clusters WHERE seed_wallet=?`,
		seedWallet).Scan(&c.ID, &c.SeedWallet, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.CreatedAt = time.Unix(created, 0).UTC()
	c.UpdatedAt = time.Unix(updated, 0).UTC()
	return &c, nil
}

// GetClusterMembers returns every member of a cluster.
func (s *Store) GetClusterMembers(clusterID int64) ([]domain.ClusterMember, error) {
	rows, err := s.db.Query(`
		SELECT id, cluster_id, wallet_addr, relationship_type, is_side_wallet, confidence,
			avg_lead_seconds, evidence FROM cluster_members WHERE cluster_id=?`, clusterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ClusterMember
	for rows.Next() {
		var m domain.ClusterMember
		var evidence string
		if err := rows.Scan(&m.ID, &m.ClusterID, &m.WalletAddr, &m.RelationshipType,
			&m.IsSideWallet, &m.Confidence, &m.AvgLeadSeconds, &evidence); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(evidence), &m.Evidence)
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetSideWallets returns every cluster member classified as a side wallet.
func (s *Store) GetSideWallets() ([]domain.ClusterMember, error) {
	rows, err := s.db.Query(`
		SELECT id, cluster_id, wallet_addr, relationship_type, is_side_wallet, confidence,
			avg_lead_seconds, evidence FROM cluster_members WHERE is_side_wallet=1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ClusterMember
	for rows.Next() {
		var m domain.ClusterMember
		var evidence string
		if err := rows.Scan(&m.ID, &m.ClusterID, &m.WalletAddr, &m.RelationshipType,
			&m.IsSideWallet, &m.Confidence, &m.AvgLeadSeconds, &evidence); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(evidence), &m.Evidence)
		out = append(out, m)
	}
	return out, rows.Err()
}

// FirstBuyTimestamps returns mint -> first observed buy time for a wallet,
// used by the cluster detector's timing correlation before falling back
// to chain parsing.
func (s *Store) FirstBuyTimestamps(walletAddr string) (map[string]time.Time, error) {
	rows, err := s.db.Query(`
		SELECT mint, MIN(first_buy_at) FROM wallet_token_trades WHERE wallet_addr=? GROUP BY mint`,
		walletAddr)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var mint string
		var ts int64
		if err := rows.Scan(&mint, &ts); err != nil {
			return nil, err
		}
		out[mint] = time.Unix(ts, 0).UTC()
	}
	return out, rows.Err()
}

// InsertAgentDecision appends a journal row.
func (s *Store) InsertAgentDecision(d *domain.AgentDecision) (int64, error) {
	reasons, _ := json.Marshal(d.Reasons)
	res, err := s.db.Exec(`
		INSERT INTO agent_decisions (mint, decision, confidence, reasons, buy_wallets, sell_wallets,
			unique_wallets, amount_native, executed, trade_id, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		d.Mint, string(d.Decision), d.Confidence, string(reasons), d.BuyWallets, d.SellWallets,
		d.UniqueWallets, d.AmountNative, d.Executed, d.TradeID, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("insert agent decision: %w", err)
	}
	return res.LastInsertId()
}

// ExecutedTradesWithPnL returns every confirmed or dry-run buy trade's realized PnL
// joined from its eventual closing position, used by the brain's
// learning cycle. Only trades whose mint has a closed position qualify.
type ExecutedTradeOutcome struct {
	Mint          string
	TriggerWallet string
	Confidence    float64
	RealizedPnL   float64
	ClosedAt      time.Time
}

func (s *Store) ExecutedTradesWithPnL() ([]ExecutedTradeOutcome, error) {
	rows, err := s.db.Query(`
		SELECT t.mint, t.trigger_wallet, s.confidence, p.realized_pnl, p.closed_at
		FROM trades t
		JOIN positions p ON p.mint = t.mint AND p.status='closed'
		LEFT JOIN signals s ON s.id = t.signal_id
		WHERE t.side='buy' AND t.status IN ('confirmed','dry_run')`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExecutedTradeOutcome
	for rows.Next() {
		var o ExecutedTradeOutcome
		var conf sql.NullFloat64
		var closedAt sql.NullInt64
		if err := rows.Scan(&o.Mint, &o.TriggerWallet, &conf, &o.RealizedPnL, &closedAt); err != nil {
			return nil, err
		}
		o.Confidence = conf.Float64
		o.ClosedAt = timeFromUnix(closedAt)
		out = append(out, o)
	}
	return out, rows.Err()
}

// UpdateDailyStats recomputes today's row idempotently from trades/positions.
func (s *Store) UpdateDailyStats() (*domain.DailyStats, error) {
	date := time.Now().UTC().Format("2006-01-02")
	start := todayStart()

	var stats domain.DailyStats
	stats.Date = date

	row := s.db.QueryRow(`SELECT COUNT(*) FROM trades WHERE created_at >= ?`, start.Unix())
	row.Scan(&stats.TradesExecuted)

	row = s.db.QueryRow(`SELECT COUNT(*) FROM positions WHERE opened_at >= ?`, start.Unix())
	row.Scan(&stats.PositionsOpened)

	row = s.db.QueryRow(`SELECT COUNT(*) FROM positions WHERE status='closed' AND closed_at >= ?`, start.Unix())
	row.Scan(&stats.PositionsClosed)

	var realized, best, worst sql.NullFloat64
	row = s.db.QueryRow(`
		SELECT COALESCE(SUM(realized_pnl),0), COALESCE(MAX(realized_pnl),0), COALESCE(MIN(realized_pnl),0)
		FROM positions WHERE status='closed' AND closed_at >= ?`, start.Unix())
	row.Scan(&realized, &best, &worst)
	stats.RealizedPnL = realized.Float64
	stats.BestTrade = best.Float64
	stats.WorstTrade = worst.Float64

	if stats.RealizedPnL < stats.MaxDrawdown {
		stats.MaxDrawdown = stats.RealizedPnL
	}

	_, err := s.db.Exec(`
		INSERT INTO daily_stats (date, trades_executed, positions_opened, positions_closed,
			realized_pnl, best_trade, worst_trade, max_drawdown, hit_daily_loss_limit)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(date) DO UPDATE SET
			trades_executed=excluded.trades_executed, positions_opened=excluded.positions_opened,
			positions_closed=excluded.positions_closed, realized_pnl=excluded.realized_pnl,
			best_trade=excluded.best_trade, worst_trade=excluded.worst_trade,
			max_drawdown=excluded.max_drawdown`,
		stats.Date, stats.TradesExecuted, stats.PositionsOpened, stats.PositionsClosed,
		stats.RealizedPnL, stats.BestTrade, stats.WorstTrade, stats.MaxDrawdown, stats.HitDailyLossLimit)
	if err != nil {
		return nil, fmt.Errorf("update daily stats: %w", err)
	}
	return &stats, nil
}

// GetOpenPositionCount is a fast path for safety-rail checks.
func (s *Store) GetOpenPositionCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM positions WHERE status='open'`).Scan(&n)
	return n, err
}
