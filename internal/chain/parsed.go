package chain

import (
	"context"
	"fmt"
	"time"
)

// TokenTransfer is one SPL token leg of a parsed transaction.
type TokenTransfer struct {
	Mint   string  `json:"mint"`
	From   string  `json:"fromUserAccount"`
	To     string  `json:"toUserAccount"`
	Amount float64 `json:"tokenAmount"`
}

// NativeTransfer is one native-SOL leg of a parsed transaction.
type NativeTransfer struct {
	From     string `json:"fromUserAccount"`
	To       string `json:"toUserAccount"`
	Lamports uint64 `json:"amount"`
}

// ParsedTransaction is the enriched shape the rest of the system
// classifies buys, sells, funding and transfers from. Field names
// mirror Helius's enriched-transaction response, the teacher's closest
// wire format for the same data (wtfspiff-KOLTracker/pkg/scanner).
type ParsedTransaction struct {
	Signature       string           `json:"signature"`
	Type            string           `json:"type"`
	FeePayer        string           `json:"feePayer"`
	Timestamp       time.Time        `json:"-"`
	UnixTimestamp   int64            `json:"timestamp"`
	Description     string           `json:"description"`
	TokenTransfers  []TokenTransfer  `json:"tokenTransfers"`
	NativeTransfers []NativeTransfer `json:"nativeTransfers"`
}

const maxParseBatch = 100

// ParseTransactions fetches the enriched form of up to len(signatures)
// transactions, batching in groups of maxParseBatch with a short pause
// between batches so a large backlog doesn't hammer the provider.
func (c *Client) ParseTransactions(ctx context.Context, signatures []string) ([]ParsedTransaction, error) {
	out := make([]ParsedTransaction, 0, len(signatures))
	for start := 0; start < len(signatures); start += maxParseBatch {
		end := start + maxParseBatch
		if end > len(signatures) {
			end = len(signatures)
		}
		batch := signatures[start:end]

		req := rpcRequest{JSONRPC: "2.0", ID: 1, Method: "getParsedTransactions",
			Params: []interface{}{batch}}

		var result []ParsedTransaction
		if err := c.callWithRetry(ctx, req, &result); err != nil {
			return out, fmt.Errorf("parse batch [%d:%d]: %w", start, end, err)
		}
		for i := range result {
			result[i].Timestamp = time.Unix(result[i].UnixTimestamp, 0).UTC()
		}
		out = append(out, result...)

		if end < len(signatures) {
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case <-time.After(150 * time.Millisecond):
			}
		}
	}
	return out, nil
}

// WalletHistory pages backward through address's signature history via
// ListSignatures, parses each page and stops once max transactions have
// been collected or the address runs out of history.
func (c *Client) WalletHistory(ctx context.Context, address string, max int) ([]ParsedTransaction, error) {
	const pageSize = 100
	var out []ParsedTransaction
	before := ""

	for len(out) < max {
		want := pageSize
		if remaining := max - len(out); remaining < want {
			want = remaining
		}
		sigs, err := c.ListSignatures(ctx, address, want, before)
		if err != nil {
			return out, fmt.Errorf("list signatures for %s: %w", address, err)
		}
		if len(sigs) == 0 {
			break
		}

		parsed, err := c.ParseTransactions(ctx, sigs)
		if err != nil {
			return out, err
		}
		out = append(out, parsed...)
		before = sigs[len(sigs)-1]

		if len(sigs) < want {
			break
		}
	}
	return out, nil
}
