package txbuild

import (
	"io"

	"github.com/klingon-tech/klingnet-lightcore/internal/select"
	"github.com/klingon-tech/klingnet-lightcore/pkg/codec"
	"github.com/klingon-tech/klingnet-lightcore/pkg/coreerr"
	"github.com/klingon-tech/klingnet-lightcore/pkg/signature"
	"github.com/klingon-tech/klingnet-lightcore/pkg/txmodel"
)

// StakingType is the fixed staking_type value of the STAKING extra record,
// in the extra field.
const StakingType = 101

// PreparationParams builds the preparation transaction: a normal
// transfer to self producing three outputs in order
// [stake_amount, staking_tx_fee, change].
type PreparationParams struct {
	Inputs       []selectpkg.SpendableOutput
	SelfKey      txmodel.PublicKey
	StakeAmount  uint64
	StakingTxFee uint64 // fee reserved for the later staking tx, becomes an output here
	NetworkFee   uint64 // fee paid by this preparation tx itself
	Sign         Signer
	Rand         io.Reader
}

// BuildPreparation assembles the preparation transaction. Its outputs are
// [stake_amount, staking_tx_fee, change] in that fixed order, all directed
// to SelfKey.
func BuildPreparation(p PreparationParams) (Built, error) {
	return BuildTransfer(BuildTransferParams{
		Inputs: p.Inputs,
		Destinations: []Destination{
			{Key: p.SelfKey, Amount: p.StakeAmount},
			{Key: p.SelfKey, Amount: p.StakingTxFee},
		},
		ChangeKey:  p.SelfKey,
		Fee:        p.NetworkFee,
		UnlockTime: 0,
		Sign:       p.Sign,
		Rand:       p.Rand,
	})
}

// StakingParams builds the staking transaction: consumes exactly
// the two outputs identified by the selector's PickStakingInputs, produces
// exactly one output of StakeAmount back to SelfKey, and carries a signed
// STAKING extra record locking the funds for LockDays.
type StakingParams struct {
	AmountInput      selectpkg.SpendableOutput
	FeeInput         selectpkg.SpendableOutput
	SelfKey          txmodel.PublicKey
	StakeAmount      uint64
	LockDays         uint32
	CurrentHeight    uint64
	BlockTimeSeconds uint64
	Sign             Signer
	Rand             io.Reader
}

// computeUnlockHeight returns current_height + floor(lock_days*86400 / block_time_seconds).
// blockTimeSeconds must be positive: a zero cadence would silently produce a
// degenerate unlock height, mis-locking the stake.
func computeUnlockHeight(currentHeight uint64, lockDays uint32, blockTimeSeconds uint64) (uint64, error) {
	if blockTimeSeconds == 0 {
		return 0, coreerr.New(coreerr.KindCodecInvalid, "block time seconds must be positive")
	}
	lockSeconds := uint64(lockDays) * 86400
	return currentHeight + lockSeconds/blockTimeSeconds, nil
}

// stakingInnerMessage returns the fixed-width LE byte layout that the inner
// STAKING signature is computed over: amount:u64_le ‖ lock_days:u32_le ‖
// unlock_time:u64_le. Endianness and width here are independent of the
// varint encoding used for the same fields on the wire.
func stakingInnerMessage(amount uint64, lockDays uint32, unlockTime uint64) []byte {
	var buf []byte
	buf = codec.PutUint64LE(buf, amount)
	buf = codec.PutUint32LE(buf, lockDays)
	buf = codec.PutUint64LE(buf, unlockTime)
	return buf
}

// BuildStaking assembles, signs and self-verifies the staking transaction.
// Both the outer (prefix) signature and the inner STAKING signature are
// verified immediately after generation; any failure aborts construction
// rather than returning an unverifiable transaction.
func BuildStaking(p StakingParams) (Built, error) {
	unlockTime, err := computeUnlockHeight(p.CurrentHeight, p.LockDays, p.BlockTimeSeconds)
	if err != nil {
		return Built{}, err
	}

	priv, pub, err := p.Sign(p.AmountInput)
	if err != nil {
		return Built{}, coreerr.Wrap(coreerr.KindCryptoInvalidEncoding, "resolve staking signer", err)
	}

	innerMsg := stakingInnerMessage(p.StakeAmount, p.LockDays, unlockTime)
	innerHash := signature.Hash(hashMessage(innerMsg))
	innerSig, err := signHash(p.Rand, innerHash, pub, priv)
	if err != nil {
		return Built{}, err
	}
	if !signature.Verify(innerHash, pub, innerSig) {
		return Built{}, coreerr.New(coreerr.KindCryptoInvalidEncoding, "self-verification of inner staking signature failed")
	}

	var stakingBody []byte
	stakingBody = codec.WriteVarint(stakingBody, StakingType)
	stakingBody = codec.WriteVarint(stakingBody, p.StakeAmount)
	stakingBody = codec.WriteVarint(stakingBody, unlockTime)
	stakingBody = codec.WriteVarint(stakingBody, uint64(p.LockDays))
	stakingBody = append(stakingBody, innerSig[:]...)

	txPrivScalar, txPub, err := ephemeralTxKey()
	if err != nil {
		return Built{}, err
	}

	extra := codec.EncodeExtra([]codec.ExtraField{
		{Tag: codec.TagTxPubKey, Raw: txPub[:]},
		{Tag: codec.TagStaking, Raw: stakingBody},
	})

	inputs := []txmodel.TxInput{
		{Key: txmodel.KeyInput{
			Amount:        p.AmountInput.Amount,
			OutputIndexes: []uint32{p.AmountInput.OutIndex},
			TxHash:        p.AmountInput.TxHash,
			OutIndex:      p.AmountInput.OutIndex,
		}},
		{Key: txmodel.KeyInput{
			Amount:        p.FeeInput.Amount,
			OutputIndexes: []uint32{p.FeeInput.OutIndex},
			TxHash:        p.FeeInput.TxHash,
			OutIndex:      p.FeeInput.OutIndex,
		}},
	}
	outputs := []txmodel.TxOutput{
		{Amount: p.StakeAmount, Target: txmodel.KeyOutput{Key: p.SelfKey}},
	}

	prefix := txmodel.TransactionPrefix{
		Version:    1,
		UnlockTime: unlockTime,
		Inputs:     inputs,
		Outputs:    outputs,
		Extra:      extra,
	}

	sigs, err := signPrefix(prefix, []selectpkg.SpendableOutput{p.AmountInput, p.FeeInput}, p.Sign, p.Rand)
	if err != nil {
		return Built{}, err
	}

	tx := txmodel.Transaction{Prefix: prefix, Signatures: sigs}
	return Built{Tx: tx, TxPriv: signature.PrivateKey(txPrivScalar), TxPub: txPub, PrefixID: txmodel.PrefixHash(prefix)}, nil
}
