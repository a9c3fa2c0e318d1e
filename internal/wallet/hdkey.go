package wallet

import (
	"fmt"

	"github.com/klingon-tech/klingnet-lightcore/pkg/scalar"
	"github.com/klingon-tech/klingnet-lightcore/pkg/signature"
	"github.com/tyler-smith/go-bip32"
)

// BIP-44-shaped derivation path constants for the wallet's single spend
// key. Full path: m/44'/CoinType'/account'/change/index.
const (
	// PurposeBIP44 is the BIP-44 purpose field (hardened).
	PurposeBIP44 = bip32.FirstHardenedChild + 44

	// CoinTypeKlingnetLight is this light client's registered (placeholder)
	// coin type (hardened).
	CoinTypeKlingnetLight = bip32.FirstHardenedChild + 8889

	// ChangeExternal is for receiving addresses.
	ChangeExternal = 0

	// ChangeInternal is for change addresses.
	ChangeInternal = 1
)

// HDKey is a hierarchical deterministic key (BIP-32) whose 32-byte key
// material is reduced mod the Ed25519 group order to produce a spend
// scalar, per the wallet's single-spend-keypair model.
type HDKey struct {
	key *bip32.Key
}

// NewMasterKey creates a master HD key from a 64-byte BIP-39 seed.
func NewMasterKey(seed []byte) (*HDKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}
	return &HDKey{key: master}, nil
}

// DeriveChild derives a child key at the given index. For hardened
// derivation, add bip32.FirstHardenedChild to the index.
func (k *HDKey) DeriveChild(index uint32) (*HDKey, error) {
	child, err := k.key.NewChildKey(index)
	if err != nil {
		return nil, fmt.Errorf("derive child %d: %w", index, err)
	}
	return &HDKey{key: child}, nil
}

// DerivePath derives a key along a sequence of indices.
func (k *HDKey) DerivePath(indices ...uint32) (*HDKey, error) {
	current := k
	for _, idx := range indices {
		child, err := current.DeriveChild(idx)
		if err != nil {
			return nil, err
		}
		current = child
	}
	return current, nil
}

// DeriveSpendKey derives the key at m/44'/8889'/account'/change/index.
func (k *HDKey) DeriveSpendKey(account, change, index uint32) (*HDKey, error) {
	return k.DerivePath(
		PurposeBIP44,
		CoinTypeKlingnetLight,
		bip32.FirstHardenedChild+account,
		change,
		index,
	)
}

// rawKeyBytes returns the 32-byte key material, stripping bip32's leading
// 0x00 padding byte on private keys.
func (k *HDKey) rawKeyBytes() []byte {
	raw := k.key.Key
	if len(raw) == 33 && raw[0] == 0 {
		return raw[1:]
	}
	return raw
}

// SpendKeypair reduces this HD key's material mod the Ed25519 group order
// to derive the wallet's spend scalar, and computes the matching public
// key. Returns an error if this is a public-only key.
func (k *HDKey) SpendKeypair() (signature.PrivateKey, signature.PublicKey, error) {
	if !k.key.IsPrivate {
		return signature.PrivateKey{}, signature.PublicKey{}, fmt.Errorf("cannot derive a spend key from a public-only HD key")
	}
	var wide [64]byte
	copy(wide[:32], k.rawKeyBytes())
	priv := signature.PrivateKey(scalar.Reduce64(wide))

	pub, err := signature.DerivePublicKey(priv)
	if err != nil {
		return signature.PrivateKey{}, signature.PublicKey{}, fmt.Errorf("derive spend public key: %w", err)
	}
	return priv, pub, nil
}

// IsPrivate returns true if this key contains a private key.
func (k *HDKey) IsPrivate() bool {
	return k.key.IsPrivate
}

// Depth returns the derivation depth (0 for master).
func (k *HDKey) Depth() uint8 {
	return k.key.Depth
}

// Neuter returns a public-key-only copy (for watch-only wallets).
func (k *HDKey) Neuter() *HDKey {
	return &HDKey{key: k.key.PublicKey()}
}
