// Package cluster is the Cluster Detector: from a seed wallet it finds
// related wallets through funding, transfer, timing and token-overlap
// evidence, scores the relationship, classifies side wallets and
// promotes the strongest ones to monitored. Grounded on
// original_source/analyzer/cluster_detector.py; redesigned per the
// specification's note to key everything off Store ids rather than an
// in-memory object graph, so a run is resumable and its output is
// always exactly what's in cluster_members.
package cluster

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"frontrun-agent/internal/chain"
	"frontrun-agent/internal/domain"
	"frontrun-agent/internal/store"
)

// knownExchanges are hot wallets excluded from funding-source analysis
// so a shared exchange deposit address never looks like a relationship.
var knownExchanges = map[string]bool{
	"5tzFkiKscXHK5ZXCGbXZxdw7gTjjD1mBwuoFbhUvuAi9": true, // Binance
	"2ojv9BAiHUrvsm9gxDe7fJSzbNZSJcxZvf8dqmWGHG8S": true, // Coinbase
	"H8sMJSCQxfKiFTCfDR3DUMLPwcRbM61LGFJ8N4dK3WjS": true, // OKX
	"9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM": true, // FTX (inactive)
}

const fundingDepth = 2
const fundingTopN = 5
const maxParseForTiming = 100

var stableOrWrapped = map[string]bool{
	"So11111111111111111111111111111111111111112": true, // wSOL
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": true, // USDC
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": true, // USDT
}

// Config holds the thresholds the spec leaves tunable.
type Config struct {
	MinTransferNative     float64
	TimingLeadWindow      time.Duration
	MinSharedTokens       int
	MinOverlapTokens      int
	MinRelationshipScore  float64
	MaxClusterMonitored   int
}

// Detector runs the four evidence channels and persists results.
type Detector struct {
	db    *store.Store
	chain *chain.Client
	cfg   Config
}

func New(db *store.Store, chainClient *chain.Client, cfg Config) *Detector {
	if cfg.TimingLeadWindow == 0 {
		cfg.TimingLeadWindow = 30 * time.Minute
	}
	if cfg.MinSharedTokens == 0 {
		cfg.MinSharedTokens = 3
	}
	if cfg.MinOverlapTokens == 0 {
		cfg.MinOverlapTokens = 3
	}
	if cfg.MinRelationshipScore == 0 {
		cfg.MinRelationshipScore = 0.3
	}
	if cfg.MaxClusterMonitored == 0 {
		cfg.MaxClusterMonitored = 5
	}
	return &Detector{db: db, chain: chainClient, cfg: cfg}
}

type evidence struct {
	fundingVolume   float64
	fundingFrom     bool // candidate funded the seed (vs seed funding candidate)
	hasFunding      bool
	transferCount   int
	hasTransfer     bool
	leadCount       int
	avgLeadSeconds  float64
	sharedTimedToks int
	hasTiming       bool
	overlapCount    int
	hasOverlap      bool
}

// Run analyzes one seed wallet and persists its cluster plus member
// rows, returning the wallets promoted to monitored.
func (d *Detector) Run(ctx context.Context, seed string) ([]string, error) {
	clusterID, err := d.db.CreateCluster(seed)
	if err != nil {
		return nil, err
	}

	seedHistory, err := d.chain.WalletHistory(ctx, seed, maxParseForTiming)
	if err != nil {
		log.Warn().Err(err).Str("seed", seed).Msg("cluster: seed history fetch failed, continuing with partial evidence")
	}

	candidates := d.analyzeFunding(ctx, seed, seedHistory, fundingDepth)
	transferCandidates := d.analyzeTransfers(seedHistory, candidates)
	for addr, tc := range transferCandidates {
		ev := candidates[addr]
		ev.transferCount = tc
		ev.hasTransfer = true
		candidates[addr] = ev
	}

	seedBuyTimes, err := d.firstBuyTimes(ctx, seed, seedHistory)
	if err != nil {
		log.Warn().Err(err).Str("seed", seed).Msg("cluster: seed buy-time resolution failed")
	}

	for addr, ev := range candidates {
		leadCount, avgLead, shared, overlap := d.timingAndOverlap(ctx, addr, seedBuyTimes)
		if shared >= d.cfg.MinSharedTokens && leadCount >= 2 {
			ev.hasTiming = true
			ev.leadCount = leadCount
			ev.avgLeadSeconds = avgLead
			ev.sharedTimedToks = shared
		}
		if overlap >= d.cfg.MinOverlapTokens {
			ev.hasOverlap = true
			ev.overlapCount = overlap
		}
		candidates[addr] = ev
	}

	type scored struct {
		addr       string
		confidence float64
		rel        string
		ev         evidence
	}
	var results []scored
	for addr, ev := range candidates {
		confidence := score(ev)
		if confidence < d.cfg.MinRelationshipScore {
			continue
		}
		rel := primaryRelationship(ev)
		results = append(results, scored{addr: addr, confidence: confidence, rel: rel, ev: ev})
	}

	var sideWallets []scored
	for _, r := range results {
		isSide := isSideWallet(r.ev)
		member := &domain.ClusterMember{
			ClusterID:        clusterID,
			WalletAddr:       r.addr,
			RelationshipType: r.rel,
			IsSideWallet:     isSide,
			Confidence:       r.confidence,
			AvgLeadSeconds:   r.ev.avgLeadSeconds,
			Evidence: map[string]any{
				"funding_volume":  r.ev.fundingVolume,
				"transfer_count":  r.ev.transferCount,
				"lead_count":      r.ev.leadCount,
				"overlap_count":   r.ev.overlapCount,
				"shared_timed":    r.ev.sharedTimedToks,
			},
		}
		if err := d.db.AddClusterMember(member); err != nil {
			log.Error().Err(err).Str("wallet", r.addr).Msg("cluster: failed to persist member")
			continue
		}
		if isSide {
			sideWallets = append(sideWallets, r)
		}
	}

	sort.Slice(sideWallets, func(i, j int) bool {
		if sideWallets[i].confidence != sideWallets[j].confidence {
			return sideWallets[i].confidence > sideWallets[j].confidence
		}
		return sideWallets[i].ev.avgLeadSeconds > sideWallets[j].ev.avgLeadSeconds
	})

	var promoted []string
	for i, sw := range sideWallets {
		if i >= d.cfg.MaxClusterMonitored {
			break
		}
		if err := d.db.SetWalletMonitored(sw.addr, true); err != nil {
			log.Error().Err(err).Str("wallet", sw.addr).Msg("cluster: failed to promote side wallet")
			continue
		}
		promoted = append(promoted, sw.addr)
	}

	return promoted, nil
}

// analyzeFunding recurses up to depth levels, aggregating native
// transfers into the seed from non-exchange counterparties, and
// descending into the top fundingTopN by volume at each level.
func (d *Detector) analyzeFunding(ctx context.Context, addr string, history []chain.ParsedTransaction, depth int) map[string]evidence {
	out := make(map[string]evidence)
	if depth <= 0 {
		return out
	}

	volumes := make(map[string]float64)
	for _, tx := range history {
		for _, nt := range tx.NativeTransfers {
			if nt.To != addr || knownExchanges[nt.From] || nt.From == "" {
				continue
			}
			volumes[nt.From] += float64(nt.Lamports) / 1e9
		}
	}

	for from, vol := range volumes {
		if vol < d.cfg.MinTransferNative {
			continue
		}
		out[from] = evidence{fundingVolume: vol, fundingFrom: true, hasFunding: true}
	}

	if depth > 1 {
		type kv struct {
			addr string
			vol  float64
		}
		var ranked []kv
		for a, v := range volumes {
			ranked = append(ranked, kv{a, v})
		}
		sort.Slice(ranked, func(i, j int) bool { return ranked[i].vol > ranked[j].vol })
		if len(ranked) > fundingTopN {
			ranked = ranked[:fundingTopN]
		}
		for _, r := range ranked {
			sub, err := d.chain.WalletHistory(ctx, r.addr, maxParseForTiming)
			if err != nil {
				continue
			}
			for k, v := range d.analyzeFunding(ctx, r.addr, sub, depth-1) {
				if _, exists := out[k]; !exists {
					out[k] = v
				}
			}
		}
	}

	return out
}

// analyzeTransfers counts token transfers in the seed's history where
// the counterparty is already a funding candidate.
func (d *Detector) analyzeTransfers(history []chain.ParsedTransaction, candidates map[string]evidence) map[string]int {
	counts := make(map[string]int)
	for _, tx := range history {
		for _, tt := range tx.TokenTransfers {
			for _, party := range []string{tt.From, tt.To} {
				if _, known := candidates[party]; known {
					counts[party]++
				}
			}
		}
	}
	return counts
}

// firstBuyTimes resolves mint -> first buy timestamp for addr, trying
// the Store first and falling back to parsing its own chain history.
func (d *Detector) firstBuyTimes(ctx context.Context, addr string, history []chain.ParsedTransaction) (map[string]time.Time, error) {
	stored, err := d.db.FirstBuyTimestamps(addr)
	if err == nil && len(stored) > 0 {
		return stored, nil
	}
	return buysFromHistory(addr, history), err
}

func buysFromHistory(addr string, history []chain.ParsedTransaction) map[string]time.Time {
	out := make(map[string]time.Time)
	for _, tx := range history {
		if tx.Type != "SWAP" || tx.FeePayer != addr {
			continue
		}
		for _, tt := range tx.TokenTransfers {
			if tt.To != addr || stableOrWrapped[tt.Mint] {
				continue
			}
			if existing, ok := out[tt.Mint]; !ok || tx.Timestamp.Before(existing) {
				out[tt.Mint] = tx.Timestamp
			}
		}
	}
	return out
}

// timingAndOverlap computes the lead count, average lead and shared
// timed-token count between seed and candidate (the timing channel),
// plus the raw count of non-stable, non-wrapped mints both have
// traded (the overlap channel).
func (d *Detector) timingAndOverlap(ctx context.Context, candidate string, seedBuys map[string]time.Time) (leadCount int, avgLeadSeconds float64, shared int, overlap int) {
	candHistory, err := d.chain.WalletHistory(ctx, candidate, maxParseForTiming)
	if err != nil {
		return 0, 0, 0, 0
	}
	candBuys := buysFromHistory(candidate, candHistory)

	var leadSum float64
	for mint, seedTS := range seedBuys {
		candTS, ok := candBuys[mint]
		if !ok {
			continue
		}
		shared++
		if !stableOrWrapped[mint] {
			overlap++
		}
		gap := seedTS.Sub(candTS).Seconds()
		if gap > 0 && gap <= d.cfg.TimingLeadWindow.Seconds() {
			leadCount++
			leadSum += gap
		}
	}
	if leadCount > 0 {
		avgLeadSeconds = leadSum / float64(leadCount)
	}
	return leadCount, avgLeadSeconds, shared, overlap
}

func score(ev evidence) float64 {
	var total float64
	typesFound := 0

	if ev.hasFunding {
		total += 0.25
		if ev.fundingVolume >= 1 {
			total += 0.05
		}
		typesFound++
	}
	if ev.hasTransfer {
		total += 0.20
		if ev.transferCount >= 3 {
			total += 0.05
		}
		typesFound++
	}
	if ev.hasTiming {
		total += 0.35
		if ev.leadCount >= 4 {
			total += 0.10
		}
		if ev.sharedTimedToks >= 5 {
			total += 0.05
		}
		typesFound++
	}
	if ev.hasOverlap {
		total += 0.10
		if ev.overlapCount >= 5 {
			total += 0.05
		}
		typesFound++
	}

	switch {
	case typesFound >= 3:
		total += 0.10
	case typesFound >= 2:
		total += 0.05
	}

	if total > 1.0 {
		total = 1.0
	}
	return total
}

func isSideWallet(ev evidence) bool {
	if !ev.hasTiming || ev.avgLeadSeconds <= 0 || ev.leadCount < 2 {
		return false
	}
	return ev.hasFunding || ev.hasOverlap || ev.leadCount >= 3
}

func primaryRelationship(ev evidence) string {
	if ev.hasTiming && ev.leadCount >= 2 {
		return "timing_correlated"
	}
	if ev.hasTransfer && ev.transferCount >= 2 {
		return "transfer_partner"
	}
	if ev.hasFunding {
		if ev.fundingFrom {
			return "funding_source"
		}
		return "funding_recipient"
	}
	if ev.hasOverlap {
		return "token_overlap"
	}
	return "funding_source"
}
