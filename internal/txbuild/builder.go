// Package txbuild assembles signed transactions from selected inputs: the
// normal-transfer form and, in staking.go, the two-step staking form.
package txbuild

import (
	"io"

	"github.com/klingon-tech/klingnet-lightcore/internal/select"
	"github.com/klingon-tech/klingnet-lightcore/pkg/codec"
	"github.com/klingon-tech/klingnet-lightcore/pkg/coreerr"
	"github.com/klingon-tech/klingnet-lightcore/pkg/scalar"
	"github.com/klingon-tech/klingnet-lightcore/pkg/signature"
	"github.com/klingon-tech/klingnet-lightcore/pkg/txmodel"
)

// Destination is one transfer recipient.
type Destination struct {
	Key    txmodel.PublicKey
	Amount uint64
}

// Signer resolves the keypair that owns a given spendable output. A light
// wallet with a single spend key returns the same pair for every call; it
// is a func rather than a fixed pair to leave room for multi-key wallets.
type Signer func(out selectpkg.SpendableOutput) (signature.PrivateKey, signature.PublicKey, error)

// Built is the outcome of a successful build: the signed transaction plus
// the ephemeral tx key pair used for its TX_PUBKEY extra tag.
type Built struct {
	Tx       txmodel.Transaction
	TxPriv   signature.PrivateKey
	TxPub    signature.PublicKey
	PrefixID txmodel.Hash
}

// BuildTransferParams configures BuildTransfer.
type BuildTransferParams struct {
	Inputs       []selectpkg.SpendableOutput
	Destinations []Destination
	ChangeKey    txmodel.PublicKey
	Fee          uint64
	UnlockTime   uint64
	Sign         Signer
	Rand         io.Reader // nil uses crypto/rand via signature.SignWithOSRand
}

// BuildTransfer assembles, signs and self-verifies a normal transfer per
// an ephemeral tx key is attached as the TX_PUBKEY extra tag, one
// input is built per selected output, one output per destination plus an
// optional change output, and each input is signed over the prefix hash
// with its owning key.
func BuildTransfer(p BuildTransferParams) (Built, error) {
	total := uint64(0)
	for _, in := range p.Inputs {
		total += in.Amount
	}
	target := uint64(0)
	for _, d := range p.Destinations {
		target += d.Amount
	}
	need := target + p.Fee
	if total < need {
		return Built{}, coreerr.InsufficientFunds(need, total)
	}
	change := total - need

	txPrivScalar, txPub, err := ephemeralTxKey()
	if err != nil {
		return Built{}, err
	}
	txPriv := signature.PrivateKey(txPrivScalar)

	extra := codec.EncodeExtra([]codec.ExtraField{
		{Tag: codec.TagTxPubKey, Raw: txPub[:]},
	})

	inputs := make([]txmodel.TxInput, 0, len(p.Inputs))
	for _, in := range p.Inputs {
		inputs = append(inputs, txmodel.TxInput{Key: txmodel.KeyInput{
			Amount:        in.Amount,
			OutputIndexes: []uint32{in.OutIndex},
			TxHash:        in.TxHash,
			OutIndex:      in.OutIndex,
		}})
	}

	outputs := make([]txmodel.TxOutput, 0, len(p.Destinations)+1)
	for _, d := range p.Destinations {
		outputs = append(outputs, txmodel.TxOutput{Amount: d.Amount, Target: txmodel.KeyOutput{Key: d.Key}})
	}
	if change > 0 {
		outputs = append(outputs, txmodel.TxOutput{Amount: change, Target: txmodel.KeyOutput{Key: p.ChangeKey}})
	}

	prefix := txmodel.TransactionPrefix{
		Version:    1,
		UnlockTime: p.UnlockTime,
		Inputs:     inputs,
		Outputs:    outputs,
		Extra:      extra,
	}

	sigs, err := signPrefix(prefix, p.Inputs, p.Sign, p.Rand)
	if err != nil {
		return Built{}, err
	}

	tx := txmodel.Transaction{Prefix: prefix, Signatures: sigs}
	return Built{Tx: tx, TxPriv: txPriv, TxPub: txPub, PrefixID: txmodel.PrefixHash(prefix)}, nil
}

// signPrefix signs the prefix hash once per input with that input's owning
// key, then self-verifies every signature immediately — a
// transaction MUST NOT be returned if any signature fails to verify.
func signPrefix(prefix txmodel.TransactionPrefix, inputs []selectpkg.SpendableOutput, sign Signer, rd io.Reader) ([]txmodel.Signature, error) {
	h := txmodel.PrefixHash(prefix)
	sigs := make([]txmodel.Signature, 0, len(inputs))
	for _, in := range inputs {
		priv, pub, err := sign(in)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.KindCryptoInvalidEncoding, "resolve input signer", err)
		}
		sig, err := signHash(rd, h, pub, priv)
		if err != nil {
			return nil, err
		}
		if !signature.Verify(h, pub, sig) {
			return nil, coreerr.New(coreerr.KindCryptoInvalidEncoding, "self-verification of input signature failed")
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

func signHash(rd io.Reader, h signature.Hash, pub signature.PublicKey, priv signature.PrivateKey) (signature.Signature, error) {
	if rd == nil {
		return signature.SignWithOSRand(h, pub, priv)
	}
	return signature.Sign(rd, h, pub, priv)
}

// ephemeralTxKey draws a fresh tx key pair for the TX_PUBKEY extra tag.
func ephemeralTxKey() (scalar.Scalar, signature.PublicKey, error) {
	priv, err := scalar.RandomScalar()
	if err != nil {
		return scalar.Scalar{}, signature.PublicKey{}, coreerr.Wrap(coreerr.KindCryptoInvalidEncoding, "generate ephemeral tx key", err)
	}
	pub, err := scalar.ScalarMulBase(priv)
	if err != nil {
		return scalar.Scalar{}, signature.PublicKey{}, coreerr.Wrap(coreerr.KindCryptoInvalidEncoding, "derive ephemeral tx key", err)
	}
	return priv, signature.PublicKey(pub), nil
}

// hashMessage is the Keccak-256 hash used for both the prefix hash and the
// staking inner signature's message.
func hashMessage(buf []byte) [32]byte {
	return scalar.Keccak256(buf)
}
