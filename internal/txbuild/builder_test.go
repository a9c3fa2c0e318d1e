package txbuild

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/klingon-tech/klingnet-lightcore/internal/select"
	"github.com/klingon-tech/klingnet-lightcore/pkg/codec"
	"github.com/klingon-tech/klingnet-lightcore/pkg/coreerr"
	"github.com/klingon-tech/klingnet-lightcore/pkg/scalar"
	"github.com/klingon-tech/klingnet-lightcore/pkg/signature"
)

func newKeypair(t *testing.T) (signature.PrivateKey, signature.PublicKey) {
	t.Helper()
	s, err := scalar.RandomScalar()
	if err != nil {
		t.Fatalf("RandomScalar: %v", err)
	}
	priv := signature.PrivateKey(s)
	pub, err := signature.DerivePublicKey(priv)
	if err != nil {
		t.Fatalf("DerivePublicKey: %v", err)
	}
	return priv, pub
}

func singleKeySigner(priv signature.PrivateKey, pub signature.PublicKey) Signer {
	return func(selectpkg.SpendableOutput) (signature.PrivateKey, signature.PublicKey, error) {
		return priv, pub, nil
	}
}

func hash(seed byte) [32]byte {
	var h [32]byte
	h[0] = seed
	return h
}

func TestBuildTransfer_ProducesSelfVerifyingSignatures(t *testing.T) {
	priv, pub := newKeypair(t)
	_, destPub := newKeypair(t)

	inputs := []selectpkg.SpendableOutput{
		{TxHash: hash(1), OutIndex: 0, Amount: 1_000_000},
	}

	built, err := BuildTransfer(BuildTransferParams{
		Inputs:       inputs,
		Destinations: []Destination{{Key: destPub, Amount: 500_000}},
		ChangeKey:    pub,
		Fee:          1000,
		Sign:         singleKeySigner(priv, pub),
		Rand:         rand.Reader,
	})
	if err != nil {
		t.Fatalf("BuildTransfer: %v", err)
	}

	if len(built.Tx.Signatures) != 1 {
		t.Fatalf("expected 1 signature, got %d", len(built.Tx.Signatures))
	}
	if len(built.Tx.Prefix.Outputs) != 2 {
		t.Fatalf("expected destination + change output, got %d", len(built.Tx.Prefix.Outputs))
	}
	if built.Tx.Prefix.Outputs[1].Amount != 499_000 {
		t.Errorf("change = %d, want 499000", built.Tx.Prefix.Outputs[1].Amount)
	}

	fields, err := codec.ParseExtra(built.Tx.Prefix.Extra)
	if err != nil {
		t.Fatalf("ParseExtra: %v", err)
	}
	f, ok := codec.FindField(fields, codec.TagTxPubKey)
	if !ok || !bytes.Equal(f.Raw, built.TxPub[:]) {
		t.Error("TX_PUBKEY extra field does not match the builder's ephemeral key")
	}
}

func TestBuildTransfer_NoChangeWhenExact(t *testing.T) {
	priv, pub := newKeypair(t)
	_, destPub := newKeypair(t)

	inputs := []selectpkg.SpendableOutput{
		{TxHash: hash(1), OutIndex: 0, Amount: 501_000},
	}

	built, err := BuildTransfer(BuildTransferParams{
		Inputs:       inputs,
		Destinations: []Destination{{Key: destPub, Amount: 500_000}},
		ChangeKey:    pub,
		Fee:          1000,
		Sign:         singleKeySigner(priv, pub),
		Rand:         rand.Reader,
	})
	if err != nil {
		t.Fatalf("BuildTransfer: %v", err)
	}
	if len(built.Tx.Prefix.Outputs) != 1 {
		t.Fatalf("expected no change output, got %d outputs", len(built.Tx.Prefix.Outputs))
	}
}

func TestBuildTransfer_InsufficientFunds(t *testing.T) {
	priv, pub := newKeypair(t)
	_, destPub := newKeypair(t)

	inputs := []selectpkg.SpendableOutput{
		{TxHash: hash(1), OutIndex: 0, Amount: 100},
	}

	_, err := BuildTransfer(BuildTransferParams{
		Inputs:       inputs,
		Destinations: []Destination{{Key: destPub, Amount: 500_000}},
		ChangeKey:    pub,
		Fee:          1000,
		Sign:         singleKeySigner(priv, pub),
		Rand:         rand.Reader,
	})
	if err == nil {
		t.Fatal("expected insufficient funds error")
	}
	if ce, ok := err.(*coreerr.Error); !ok || ce.Kind != coreerr.KindInsufficientFunds {
		t.Fatalf("expected KindInsufficientFunds, got %v", err)
	}
}

func TestBuildPreparation_ProducesThreeOrderedOutputs(t *testing.T) {
	priv, pub := newKeypair(t)

	inputs := []selectpkg.SpendableOutput{
		{TxHash: hash(1), OutIndex: 0, Amount: 10_000_000_000},
	}

	built, err := BuildPreparation(PreparationParams{
		Inputs:       inputs,
		SelfKey:      pub,
		StakeAmount:  5_000_000_000,
		StakingTxFee: 1000,
		NetworkFee:   2000,
		Sign:         singleKeySigner(priv, pub),
		Rand:         rand.Reader,
	})
	if err != nil {
		t.Fatalf("BuildPreparation: %v", err)
	}

	outs := built.Tx.Prefix.Outputs
	if len(outs) != 3 {
		t.Fatalf("expected 3 outputs, got %d", len(outs))
	}
	if outs[0].Amount != 5_000_000_000 || outs[1].Amount != 1000 || outs[2].Amount != 9_999_997_000 {
		t.Errorf("unexpected output order/amounts: %+v", outs)
	}
}

func TestBuildStaking_SingleOutputAndVerifiableInnerSignature(t *testing.T) {
	priv, pub := newKeypair(t)

	prepHash := hash(9)
	amountInput := selectpkg.SpendableOutput{TxHash: prepHash, OutIndex: 0, Amount: 5_000_000_000}
	feeInput := selectpkg.SpendableOutput{TxHash: prepHash, OutIndex: 1, Amount: 1000}

	built, err := BuildStaking(StakingParams{
		AmountInput:      amountInput,
		FeeInput:         feeInput,
		SelfKey:          pub,
		StakeAmount:      5_000_000_000,
		LockDays:         30,
		CurrentHeight:    1000,
		BlockTimeSeconds: 120,
		Sign:             singleKeySigner(priv, pub),
		Rand:             rand.Reader,
	})
	if err != nil {
		t.Fatalf("BuildStaking: %v", err)
	}

	if len(built.Tx.Prefix.Inputs) != 2 {
		t.Fatalf("expected exactly 2 inputs, got %d", len(built.Tx.Prefix.Inputs))
	}
	if len(built.Tx.Prefix.Outputs) != 1 || built.Tx.Prefix.Outputs[0].Amount != 5_000_000_000 {
		t.Fatalf("expected exactly 1 output of stake_amount, got %+v", built.Tx.Prefix.Outputs)
	}

	wantUnlock := uint64(1000) + uint64(30)*86400/120
	if built.Tx.Prefix.UnlockTime != wantUnlock {
		t.Errorf("unlock_time = %d, want %d", built.Tx.Prefix.UnlockTime, wantUnlock)
	}

	fields, err := codec.ParseExtra(built.Tx.Prefix.Extra)
	if err != nil {
		t.Fatalf("ParseExtra: %v", err)
	}
	stakingField, ok := codec.FindField(fields, codec.TagStaking)
	if !ok {
		t.Fatal("expected a STAKING extra field")
	}

	stakingType, n1, err := codec.ReadVarint(stakingField.Raw)
	if err != nil {
		t.Fatalf("read staking_type: %v", err)
	}
	if stakingType != StakingType {
		t.Errorf("staking_type = %d, want %d", stakingType, StakingType)
	}
	rest := stakingField.Raw[n1:]
	amount, n2, err := codec.ReadVarint(rest)
	if err != nil {
		t.Fatalf("read amount: %v", err)
	}
	rest = rest[n2:]
	unlockTime, n3, err := codec.ReadVarint(rest)
	if err != nil {
		t.Fatalf("read unlock_time: %v", err)
	}
	rest = rest[n3:]
	lockDays, n4, err := codec.ReadVarint(rest)
	if err != nil {
		t.Fatalf("read lock_days: %v", err)
	}
	rest = rest[n4:]

	var innerSig signature.Signature
	copy(innerSig[:], rest)

	innerMsg := stakingInnerMessage(amount, uint32(lockDays), unlockTime)
	innerHash := signature.Hash(scalar.Keccak256(innerMsg))
	if !signature.Verify(innerHash, pub, innerSig) {
		t.Error("inner staking signature does not verify against the reconstructed fixed-width message")
	}
}

func TestBuildStaking_MismatchedSignerFailsSelfVerification(t *testing.T) {
	priv1, pub1 := newKeypair(t)
	_, pub2 := newKeypair(t)

	prepHash := hash(9)
	amountInput := selectpkg.SpendableOutput{TxHash: prepHash, OutIndex: 0, Amount: 5_000_000_000}
	feeInput := selectpkg.SpendableOutput{TxHash: prepHash, OutIndex: 1, Amount: 1000}

	// Sign with priv1 but report pub2 as the owner — the inner STAKING
	// self-verification in BuildStaking catches the mismatch before
	// signPrefix is reached.
	badSigner := func(selectpkg.SpendableOutput) (signature.PrivateKey, signature.PublicKey, error) {
		return priv1, pub2, nil
	}

	_, err := BuildStaking(StakingParams{
		AmountInput:      amountInput,
		FeeInput:         feeInput,
		SelfKey:          pub1,
		StakeAmount:      5_000_000_000,
		LockDays:         30,
		CurrentHeight:    1000,
		BlockTimeSeconds: 120,
		Sign:             badSigner,
		Rand:             rand.Reader,
	})
	if err == nil {
		t.Fatal("expected self-verification failure for mismatched signer")
	}
}
