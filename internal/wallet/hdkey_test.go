package wallet

import (
	"bytes"
	"testing"

	"github.com/klingon-tech/klingnet-lightcore/pkg/scalar"
	"github.com/klingon-tech/klingnet-lightcore/pkg/signature"
)

// testSeed returns a deterministic seed for testing, using the BIP-39 test
// vector "abandon" x11 + "about" with passphrase "TREZOR".
func testSeed(t *testing.T) []byte {
	t.Helper()
	mnemonic := "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	seed, err := SeedFromMnemonic(mnemonic, "TREZOR")
	if err != nil {
		t.Fatalf("SeedFromMnemonic() error: %v", err)
	}
	return seed
}

func TestNewMasterKey(t *testing.T) {
	seed := testSeed(t)
	master, err := NewMasterKey(seed)
	if err != nil {
		t.Fatalf("NewMasterKey() error: %v", err)
	}

	if !master.IsPrivate() {
		t.Error("master key should be private")
	}
	if master.Depth() != 0 {
		t.Errorf("master key depth = %d, want 0", master.Depth())
	}
}

func TestNewMasterKey_InvalidSeedLength(t *testing.T) {
	tests := []struct {
		name string
		seed []byte
	}{
		{"empty", []byte{}},
		{"too short", make([]byte, 32)},
		{"too long", make([]byte, 128)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewMasterKey(tt.seed); err == nil {
				t.Error("expected error for invalid seed length")
			}
		})
	}
}

func TestNewMasterKey_Deterministic(t *testing.T) {
	seed := testSeed(t)

	m1, err := NewMasterKey(seed)
	if err != nil {
		t.Fatalf("NewMasterKey() error: %v", err)
	}
	m2, err := NewMasterKey(seed)
	if err != nil {
		t.Fatalf("NewMasterKey() error: %v", err)
	}

	priv1, _, err := m1.SpendKeypair()
	if err != nil {
		t.Fatalf("SpendKeypair: %v", err)
	}
	priv2, _, err := m2.SpendKeypair()
	if err != nil {
		t.Fatalf("SpendKeypair: %v", err)
	}
	if priv1 != priv2 {
		t.Error("same seed should produce the same master spend key")
	}
}

func TestDeriveChild(t *testing.T) {
	seed := testSeed(t)
	master, err := NewMasterKey(seed)
	if err != nil {
		t.Fatalf("NewMasterKey() error: %v", err)
	}

	child, err := master.DeriveChild(0)
	if err != nil {
		t.Fatalf("DeriveChild(0) error: %v", err)
	}
	if child.Depth() != 1 {
		t.Errorf("child depth = %d, want 1", child.Depth())
	}
	if !child.IsPrivate() {
		t.Error("child derived from private key should be private")
	}

	child2, err := master.DeriveChild(1)
	if err != nil {
		t.Fatalf("DeriveChild(1) error: %v", err)
	}

	priv1, _, _ := child.SpendKeypair()
	priv2, _, _ := child2.SpendKeypair()
	if priv1 == priv2 {
		t.Error("different indices should produce different keys")
	}
}

func TestDeriveChild_Deterministic(t *testing.T) {
	seed := testSeed(t)
	m1, _ := NewMasterKey(seed)
	m2, _ := NewMasterKey(seed)

	c1, _ := m1.DeriveChild(42)
	c2, _ := m2.DeriveChild(42)

	p1, _, _ := c1.SpendKeypair()
	p2, _, _ := c2.SpendKeypair()
	if p1 != p2 {
		t.Error("same seed + same index should produce the same child")
	}
}

func TestDerivePath(t *testing.T) {
	seed := testSeed(t)
	master, _ := NewMasterKey(seed)

	c1, _ := master.DeriveChild(PurposeBIP44)
	c2, _ := c1.DeriveChild(CoinTypeKlingnetLight)

	combined, err := master.DerivePath(PurposeBIP44, CoinTypeKlingnetLight)
	if err != nil {
		t.Fatalf("DerivePath() error: %v", err)
	}

	wantPriv, _, _ := c2.SpendKeypair()
	gotPriv, _, _ := combined.SpendKeypair()
	if wantPriv != gotPriv {
		t.Error("DerivePath should equal sequential DeriveChild")
	}
}

func TestDeriveSpendKey(t *testing.T) {
	seed := testSeed(t)
	master, _ := NewMasterKey(seed)

	key, err := master.DeriveSpendKey(0, ChangeExternal, 0)
	if err != nil {
		t.Fatalf("DeriveSpendKey() error: %v", err)
	}

	// Depth should be 5: m / purpose' / coin' / account' / change / index
	if key.Depth() != 5 {
		t.Errorf("spend key depth = %d, want 5", key.Depth())
	}
	if !key.IsPrivate() {
		t.Error("derived spend key should be private")
	}

	key2, err := master.DeriveSpendKey(1, ChangeExternal, 0)
	if err != nil {
		t.Fatalf("DeriveSpendKey() error: %v", err)
	}
	p1, _, _ := key.SpendKeypair()
	p2, _, _ := key2.SpendKeypair()
	if p1 == p2 {
		t.Error("different accounts should produce different keys")
	}

	keyChange, err := master.DeriveSpendKey(0, ChangeInternal, 0)
	if err != nil {
		t.Fatalf("DeriveSpendKey() error: %v", err)
	}
	pChange, _, _ := keyChange.SpendKeypair()
	if p1 == pChange {
		t.Error("external and change keys should differ")
	}
}

func TestSpendKeypair_PublicKeyDerivesFromPrivate(t *testing.T) {
	seed := testSeed(t)
	master, _ := NewMasterKey(seed)
	key, _ := master.DeriveSpendKey(0, ChangeExternal, 0)

	priv, pub, err := key.SpendKeypair()
	if err != nil {
		t.Fatalf("SpendKeypair() error: %v", err)
	}
	if pub == [32]byte{} {
		t.Error("derived spend public key should not be the zero key")
	}

	wantPub, err := signature.DerivePublicKey(priv)
	if err != nil {
		t.Fatalf("DerivePublicKey: %v", err)
	}
	if pub != wantPub {
		t.Error("SpendKeypair's public key should match DerivePublicKey(priv)")
	}
}

func TestNeuter(t *testing.T) {
	seed := testSeed(t)
	master, _ := NewMasterKey(seed)

	pub := master.Neuter()

	if pub.IsPrivate() {
		t.Error("neutered key should not be private")
	}
	if _, _, err := pub.SpendKeypair(); err == nil {
		t.Error("SpendKeypair() on a neutered key should fail")
	}
}

func TestSpendKeypair_SignAndVerify(t *testing.T) {
	seed := testSeed(t)
	master, _ := NewMasterKey(seed)
	key, _ := master.DeriveSpendKey(0, ChangeExternal, 0)

	priv, pub, err := key.SpendKeypair()
	if err != nil {
		t.Fatalf("SpendKeypair() error: %v", err)
	}

	h := scalar.Keccak256([]byte("test message"))
	sig, err := signature.SignWithOSRand(signature.Hash(h), pub, priv)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if !signature.Verify(signature.Hash(h), pub, sig) {
		t.Error("signature from HD-derived spend key should verify")
	}
}

func TestFullWalletFlow(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic() error: %v", err)
	}
	seed, err := SeedFromMnemonic(mnemonic, "")
	if err != nil {
		t.Fatalf("SeedFromMnemonic() error: %v", err)
	}

	master, err := NewMasterKey(seed)
	if err != nil {
		t.Fatalf("NewMasterKey() error: %v", err)
	}

	key, err := master.DeriveSpendKey(0, ChangeExternal, 0)
	if err != nil {
		t.Fatalf("DeriveSpendKey() error: %v", err)
	}

	priv, pub, err := key.SpendKeypair()
	if err != nil {
		t.Fatalf("SpendKeypair() error: %v", err)
	}
	if pub == [32]byte{} {
		t.Error("derived spend public key should not be zero")
	}

	h := scalar.Keccak256([]byte("transaction data"))
	sig, err := signature.SignWithOSRand(signature.Hash(h), pub, priv)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if !signature.Verify(signature.Hash(h), pub, sig) {
		t.Error("full wallet flow: signature should verify")
	}
	if bytes.Equal(sig[:32], make([]byte, 32)) {
		t.Error("signature should not be all-zero")
	}
}
