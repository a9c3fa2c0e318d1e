// Package txmodel defines the typed transaction representation and its
// canonical binary serialization: the transaction prefix layout, prefix
// hashing, and full transaction (de)serialization described by the wire
// protocol.
package txmodel

import (
	"github.com/klingon-tech/klingnet-lightcore/pkg/signature"
)

// Hash, PublicKey, PrivateKey, Signature and KeyImage are the same 32/64
// byte wire values used by the signature package; aliasing avoids forcing
// every caller to juggle two nominally distinct but byte-identical types.
type (
	Hash      = signature.Hash
	PublicKey = signature.PublicKey
	Signature = signature.Signature
	KeyImage  = signature.KeyImage
)

// Input variant tags.
const (
	TagKeyInput  byte = 0x02
	TagBaseInput byte = 0xFF
)

// Output target variant tag. Only KeyOutput is valid in this protocol.
const TagKeyOutput byte = 0x02

// KeyOutput is the only valid output target: a cleartext recipient spend
// public key (this protocol is transparent — no stealth addressing).
type KeyOutput struct {
	Key PublicKey
}

// TxOutput carries an amount and its target.
type TxOutput struct {
	Amount uint64
	Target KeyOutput
}

// BaseInput is a coinbase input; it consumes no prior output.
type BaseInput struct {
	Height uint64
}

// KeyInput spends one prior output identified by (TxHash, OutIndex).
// OutputIndexes is retained for historical wire compatibility and always
// holds exactly one element equal to OutIndex.
type KeyInput struct {
	Amount        uint64
	OutputIndexes []uint32
	TxHash        Hash
	OutIndex      uint32
}

// TxInput is a discriminated union over {BaseInput, KeyInput}. Exactly one
// of IsBase or !IsBase selects which field is meaningful, mirroring the
// one-byte tag on the wire.
type TxInput struct {
	IsBase bool
	Base   BaseInput
	Key    KeyInput
}

// OutPoint returns the (TxHash, OutIndex) identity of a KeyInput's spent
// output. Calling this on a BaseInput is a programming error and panics,
// since coinbase inputs have no prior output to identify.
func (in TxInput) OutPoint() OutputRef {
	if in.IsBase {
		panic("txmodel: OutPoint called on a BaseInput")
	}
	return OutputRef{TxHash: in.Key.TxHash, OutIndex: in.Key.OutIndex}
}

// OutputRef identifies one output uniquely within the chain.
type OutputRef struct {
	TxHash   Hash
	OutIndex uint32
}

// TransactionPrefix is the order-sensitive, signature-free body of a
// transaction. Its serialization is the signing message for every input's
// Schnorr signature (via PrefixHash).
type TransactionPrefix struct {
	Version    uint64
	UnlockTime uint64
	Inputs     []TxInput
	Outputs    []TxOutput
	Extra      []byte // length-prefixed on the wire; this holds the raw TLV payload bytes
}

// Transaction is a TransactionPrefix plus one Signature per input, in input
// order.
type Transaction struct {
	Prefix     TransactionPrefix
	Signatures []Signature
}

// unlockTimeThreshold is the boundary below which UnlockTime is interpreted
// as a block height, and at or above which it is a Unix timestamp.
const unlockTimeThreshold = 500_000_000

// IsHeightLocked reports whether unlockTime denotes a block height rather
// than a Unix timestamp.
func IsHeightLocked(unlockTime uint64) bool {
	return unlockTime < unlockTimeThreshold
}
