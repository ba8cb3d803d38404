package chain

import (
	"encoding/base64"
	"encoding/binary"

	"github.com/mr-tron/base58"
)

// ComputeBudgetProgramID is the Solana compute budget program.
const ComputeBudgetProgramID = "ComputeBudget111111111111111111111111111111"

// TransactionBuilder signs Jupiter-style versioned transactions with a
// Wallet, stamping in a priority fee via compute budget instructions.
// Satisfies swap.Signer.
type TransactionBuilder struct {
	wallet              *Wallet
	blockhashCache      *BlockhashCache
	priorityFeeLamports uint64
	computeUnitLimit    uint32
}

// NewTransactionBuilder builds a signer around wallet, using blockhashCache
// for recent-blockhash lookups and priorityFeeLamports as the target
// total priority fee for the compute budget instructions it describes.
func NewTransactionBuilder(wallet *Wallet, blockhashCache *BlockhashCache, priorityFeeLamports uint64) *TransactionBuilder {
	return &TransactionBuilder{
		wallet:              wallet,
		blockhashCache:      blockhashCache,
		priorityFeeLamports: priorityFeeLamports,
		computeUnitLimit:    600000,
	}
}

// SetComputeUnitLimit overrides the default compute unit limit.
func (b *TransactionBuilder) SetComputeUnitLimit(limit uint32) {
	b.computeUnitLimit = limit
}

// BuildComputeBudgetInstructions returns the raw SetComputeUnitLimit and
// SetComputeUnitPrice instruction data for the builder's configured fee.
func (b *TransactionBuilder) BuildComputeBudgetInstructions() (setLimit, setPrice []byte) {
	setLimit = make([]byte, 5)
	setLimit[0] = 2
	binary.LittleEndian.PutUint32(setLimit[1:], b.computeUnitLimit)

	microLamportsPerCU := (b.priorityFeeLamports * 1_000_000) / uint64(b.computeUnitLimit)
	setPrice = make([]byte, 9)
	setPrice[0] = 3
	binary.LittleEndian.PutUint64(setPrice[1:], microLamportsPerCU)

	return setLimit, setPrice
}

// ComputeBudgetProgramIDBytes returns the compute budget program id bytes.
func ComputeBudgetProgramIDBytes() []byte {
	b, _ := base58.Decode(ComputeBudgetProgramID)
	return b
}

// SignSerializedTransaction signs a base64-encoded unsigned (or
// placeholder-signed) versioned transaction and returns it base64-encoded
// with the builder's wallet's signature filled into the first slot.
func (b *TransactionBuilder) SignSerializedTransaction(serializedTxBase64 string) (string, error) {
	txBytes, err := base64.StdEncoding.DecodeString(serializedTxBase64)
	if err != nil {
		return "", err
	}

	// compact-u16 signature count; Jupiter swap transactions always fit
	// in the single-byte range.
	sigCount := int(txBytes[0])
	if sigCount == 0 {
		message := txBytes[1:]
		signature := b.wallet.Sign(message)

		signed := make([]byte, 1+64+len(message))
		signed[0] = 1
		copy(signed[1:65], signature)
		copy(signed[65:], message)
		return base64.StdEncoding.EncodeToString(signed), nil
	}

	sigOffset := 1
	messageOffset := sigOffset + sigCount*64
	message := txBytes[messageOffset:]
	signature := b.wallet.Sign(message)
	copy(txBytes[sigOffset:sigOffset+64], signature)

	return base64.StdEncoding.EncodeToString(txBytes), nil
}

// GetRecentBlockhash returns the builder's cached recent blockhash.
func (b *TransactionBuilder) GetRecentBlockhash() (string, error) {
	return b.blockhashCache.Get()
}

// Address returns the signer's base58 address, satisfying swap.Signer.
func (b *TransactionBuilder) Address() string {
	return b.wallet.Address()
}

// SignTransaction satisfies swap.Signer's naming over SignSerializedTransaction.
func (b *TransactionBuilder) SignTransaction(serializedTxBase64 string) (string, error) {
	return b.SignSerializedTransaction(serializedTxBase64)
}
