package chain

import "strings"

// TxError is a transaction failure translated into an operator-facing
// message and suggested action.
type TxError struct {
	Code    int
	Raw     string
	Message string
	Action  string
}

func (e *TxError) Error() string {
	return e.Message
}

// ParseTxError classifies a submit/confirm error into a human-readable
// TxError by matching known RPC and program error substrings.
func ParseTxError(err error) *TxError {
	if err == nil {
		return nil
	}

	raw := err.Error()
	txErr := &TxError{Raw: raw}

	if rpcErr, ok := err.(*rpcError); ok {
		txErr.Code = rpcErr.Code
	}

	switch {
	case containsFold(raw, "no record of a prior credit"):
		txErr.Message = "insufficient balance: wallet has 0 SOL"
		txErr.Action = "fund wallet with SOL"
	case containsFold(raw, "insufficient funds"):
		txErr.Message = "insufficient balance: not enough SOL for trade and fees"
		txErr.Action = "add more SOL to wallet"
	case containsFold(raw, "insufficient lamports"):
		txErr.Message = "insufficient balance: not enough lamports"
		txErr.Action = "add more SOL to wallet"
	case containsFold(raw, "slippage"):
		txErr.Message = "slippage too high: price moved past the configured tolerance"
		txErr.Action = "increase slippage_bps"
	case containsFold(raw, "exceededslippage"):
		txErr.Message = "slippage exceeded: market moved against the quote"
		txErr.Action = "retry or increase slippage"
	case containsFold(raw, "blockhash not found"):
		txErr.Message = "blockhash expired: transaction took too long to land"
		txErr.Action = "retry immediately with a fresh blockhash"
	case containsFold(raw, "block height exceeded"):
		txErr.Message = "transaction expired: blockhash too old"
		txErr.Action = "retry immediately"
	case containsFold(raw, "429"), containsFold(raw, "rate limit"):
		txErr.Message = "rate limited by RPC provider"
		txErr.Action = "wait and retry"
	case containsFold(raw, "account not found"):
		txErr.Message = "token account not found: wallet may not hold this token"
		txErr.Action = "check token balance before selling"
	case containsFold(raw, "accountnotfound"):
		txErr.Message = "required account missing"
		txErr.Action = "token may need an associated token account"
	case containsFold(raw, "compute budget exceeded"):
		txErr.Message = "out of compute: transaction too complex"
		txErr.Action = "increase compute unit limit"
	case containsFold(raw, "custom program error"):
		txErr.Message = "program error: DEX rejected the swap"
		txErr.Action = "check token liquidity"
	case containsFold(raw, "connection refused"):
		txErr.Message = "RPC connection failed"
		txErr.Action = "check network connectivity"
	case containsFold(raw, "timeout"):
		txErr.Message = "RPC timeout: network slow"
		txErr.Action = "retry"
	case containsFold(raw, "simulation failed"):
		txErr.Message = "simulation failed: transaction would fail on-chain"
		txErr.Action = "check logs for the specific reason"
	default:
		txErr.Message = "transaction failed"
		txErr.Action = "check raw error"
	}

	return txErr
}

// HumanError returns a short human-readable message for err, or "" if
// err is nil.
func HumanError(err error) string {
	if err == nil {
		return ""
	}
	return ParseTxError(err).Message
}

// HumanErrorWithAction returns HumanError plus the suggested remediation.
func HumanErrorWithAction(err error) string {
	if err == nil {
		return ""
	}
	txErr := ParseTxError(err)
	return txErr.Message + " -> " + txErr.Action
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
