// Package node implements the narrow transport interface over an untrusted
// remote node's HTTP/JSON endpoints and translates its wire
// shapes into the tracker's ingest-friendly types.
package node

import (
	"context"
	"encoding/hex"

	"github.com/klingon-tech/klingnet-lightcore/internal/utxo"
	"github.com/klingon-tech/klingnet-lightcore/pkg/coreerr"
	"github.com/klingon-tech/klingnet-lightcore/pkg/txmodel"
)

// Info is the normalized form of GET /info.
type Info struct {
	Height        uint64
	NetworkHeight uint64
	Synced        bool
}

// TopHeight returns the height the driver should treat as network tip:
// NetworkHeight when the server reports it, else Height, minus one, since
// servers report the NEXT expected height.
func (i Info) TopHeight() uint64 {
	h := i.NetworkHeight
	if h == 0 {
		h = i.Height
	}
	if h == 0 {
		return 0
	}
	return h - 1
}

// CheckpointHint is one (height, hash) pair sent in a sync-data request.
type CheckpointHint struct {
	Height uint64
	Hash   txmodel.Hash
}

// WalletSyncRequest is the normalized POST /getwalletsyncdata request body.
type WalletSyncRequest struct {
	Checkpoints    []CheckpointHint
	StartHeight    *uint64
	StartTimestamp *uint64
	BlockCount     int
}

// WalletSyncResponse is the normalized response: Blocks already merges the
// items/newBlocks alternative wire names.
type WalletSyncResponse struct {
	Status   string
	Blocks   []WireBlock
	Synced   bool
	TopBlock *TopBlock
}

// TopBlock is the server's claimed chain tip, returned when a sync request
// comes back empty because the wallet is already caught up.
type TopBlock struct {
	Height uint64
	Hash   txmodel.Hash
}

// WireBlock mirrors the node's wire Block shape with aliases already merged.
type WireBlock struct {
	Height      uint64
	Hash        txmodel.Hash
	Timestamp   uint64
	CoinbaseTx  *WireTransaction
	Transactions []WireTransaction
	StakingTxHashes map[txmodel.Hash]struct{} // set of tx hashes listed in stakingTX
}

// WireTransaction mirrors one embedded transaction object, with the
// outputs|keyOutputs and inputs|keyInputs alternative names already merged.
type WireTransaction struct {
	Hash       txmodel.Hash
	Outputs    []WireOutput
	Inputs     []WireInput
	TxPubKey   txmodel.PublicKey
	UnlockTime uint64
}

// WireOutput mirrors one output object.
type WireOutput struct {
	Key               txmodel.PublicKey
	Amount            uint64
	GlobalOutputIndex *uint32
}

// WireInput mirrors one input object, with the keyOffsets|value.keyOffsets
// alternative already merged.
type WireInput struct {
	Amount         uint64
	KeyOffsets     []uint32
	TxHash         txmodel.Hash
	OutputIndex    uint32
}

// SendResult is the normalized POST /sendrawtransaction response.
type SendResult struct {
	Status string
	TxHash txmodel.Hash
	Error  string
}

// Transport is the narrow façade the sync driver and transaction submitter
// depend on. An HTTP implementation lives in http.go; tests substitute a
// fake.
type Transport interface {
	Info(ctx context.Context) (Info, error)
	GetWalletSyncData(ctx context.Context, req WalletSyncRequest) (WalletSyncResponse, error)
	SendRawTransaction(ctx context.Context, txHex string) (SendResult, error)
}

// ToIngestedBlock converts a WireBlock into the tracker's IngestedBlock,
// folding in the classification of staking-class transactions from the
// block envelope's dedicated staking-tx set.
func ToIngestedBlock(b WireBlock) utxo.IngestedBlock {
	ib := utxo.IngestedBlock{Height: b.Height, Hash: b.Hash, Timestamp: b.Timestamp}

	txs := make([]WireTransaction, 0, len(b.Transactions)+1)
	if b.CoinbaseTx != nil {
		txs = append(txs, *b.CoinbaseTx)
	}
	txs = append(txs, b.Transactions...)

	for _, tx := range txs {
		_, isStaking := b.StakingTxHashes[tx.Hash]
		it := utxo.IngestedTransaction{TxHash: tx.Hash, IsStaking: isStaking}

		for i, out := range tx.Outputs {
			it.Outputs = append(it.Outputs, utxo.IngestedOutput{
				Output:         txmodel.TxOutput{Amount: out.Amount, Target: txmodel.KeyOutput{Key: out.Key}},
				OutIndex:       uint32(i),
				GlobalOutIndex: out.GlobalOutputIndex,
				TxHash:         tx.Hash,
				TxPubKey:       tx.TxPubKey,
				UnlockTime:     tx.UnlockTime,
			})
		}
		for _, in := range tx.Inputs {
			it.Inputs = append(it.Inputs, utxo.IngestedInput{
				Input: txmodel.KeyInput{
					Amount:        in.Amount,
					OutputIndexes: in.KeyOffsets,
					TxHash:        in.TxHash,
					OutIndex:      in.OutputIndex,
				},
				SpendingTxHash: tx.Hash,
			})
		}
		ib.Transactions = append(ib.Transactions, it)
	}
	return ib
}

// encodeCheckpointHash hex-encodes a checkpoint hash for the wire request's
// blockHashCheckpoints array.
func encodeCheckpointHash(h txmodel.Hash) string {
	return hex.EncodeToString(h[:])
}

// errTransport wraps cause as a KindTransport error with msg context.
func errTransport(msg string, cause error) error {
	return coreerr.Wrap(coreerr.KindTransport, msg, cause)
}
