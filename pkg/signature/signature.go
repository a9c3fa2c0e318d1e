// Package signature implements the Schnorr-style sign/verify scheme and key
// image derivation used by the light client's transparent transaction
// protocol. Every function here is bit-exact with the reference network
// implementation — this is wire-protocol code, not a generic signature API.
package signature

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/klingon-tech/klingnet-lightcore/pkg/coreerr"
	"github.com/klingon-tech/klingnet-lightcore/pkg/scalar"
)

// Hash is a 32-byte Keccak-256 digest, used both as a signing message and
// as hash-to-scalar input.
type Hash [32]byte

// PublicKey is a 32-byte Ed25519 compressed point, P = s*G.
type PublicKey scalar.Point

// PrivateKey is a 32-byte canonical scalar, the spend key s.
type PrivateKey scalar.Scalar

// Signature is the concatenation c‖s, 64 bytes, both 32-byte canonical
// scalars.
type Signature [64]byte

// KeyImage is a 32-byte point uniquely tagging a spend of an output key,
// retained for wire compatibility with the underlying CryptoNote family.
type KeyImage scalar.Point

// Rand supplies entropy for nonce generation. Production code should pass
// crypto/rand.Reader; tests pass a deterministic stream to reproduce
// known-answer vectors.
type Rand = io.Reader

// DerivePublicKey returns P = s*G for the given private scalar.
func DerivePublicKey(s PrivateKey) (PublicKey, error) {
	p, err := scalar.ScalarMulBase(scalar.Scalar(s))
	if err != nil {
		return PublicKey{}, coreerr.Wrap(coreerr.KindCryptoInvalidEncoding, "derive public key", err)
	}
	return PublicKey(p), nil
}

// randomScalarFrom draws 64 bytes from rd and reduces them mod the curve
// order, mirroring scalar.RandomScalar but over an injectable source.
func randomScalarFrom(rd Rand) (scalar.Scalar, error) {
	var buf [64]byte
	if _, err := io.ReadFull(rd, buf[:]); err != nil {
		return scalar.Scalar{}, fmt.Errorf("signature: read nonce entropy: %w", err)
	}
	return scalar.Reduce64(buf), nil
}

// Sign produces a Schnorr signature over prefixHash under the given
// keypair, drawing its nonce from rd (pass crypto/rand.Reader in
// production). Nonces MUST be independent per call — rd must never repeat
// output across signatures.
//
//	k <- randomScalar()
//	R <- k*G
//	c <- hash_to_scalar(h || P || R)
//	s <- k - c*priv   (mod l)
func Sign(rd Rand, h Hash, pub PublicKey, priv PrivateKey) (Signature, error) {
	k, err := randomScalarFrom(rd)
	if err != nil {
		return Signature{}, err
	}

	R, err := scalar.ScalarMulBase(k)
	if err != nil {
		return Signature{}, coreerr.Wrap(coreerr.KindCryptoInvalidEncoding, "derive nonce point", err)
	}

	c := scalar.HashToScalar(h[:], pub[:], R[:])

	cs, err := scalar.ScalarMul(c, scalar.Scalar(priv))
	if err != nil {
		return Signature{}, coreerr.Wrap(coreerr.KindCryptoInvalidEncoding, "multiply challenge by private key", err)
	}
	sigma, err := scalar.ScalarSub(k, cs)
	if err != nil {
		return Signature{}, coreerr.Wrap(coreerr.KindCryptoInvalidEncoding, "subtract challenge term", err)
	}

	var sig Signature
	copy(sig[:32], c[:])
	copy(sig[32:], sigma[:])
	return sig, nil
}

// SignWithOSRand is a convenience wrapper that draws nonce entropy from
// crypto/rand.Reader.
func SignWithOSRand(h Hash, pub PublicKey, priv PrivateKey) (Signature, error) {
	return Sign(rand.Reader, h, pub, priv)
}

// Verify checks a Schnorr signature against message hash h and public key
// pub.
//
//	R' <- sigma*G + c*P
//	c' <- hash_to_scalar(h || P || R')
//	return c' == c
func Verify(h Hash, pub PublicKey, sig Signature) bool {
	if err := scalar.ValidatePoint(scalar.Point(pub)); err != nil {
		return false
	}

	var c, sigma scalar.Scalar
	copy(c[:], sig[:32])
	copy(sigma[:], sig[32:])

	if !scalar.IsCanonical(c) || !scalar.IsCanonical(sigma) {
		return false
	}

	sigmaG, err := scalar.ScalarMulBase(sigma)
	if err != nil {
		return false
	}
	cP, err := scalar.PointMul(c, scalar.Point(pub))
	if err != nil {
		return false
	}
	Rprime, err := scalar.PointAdd(sigmaG, cP)
	if err != nil {
		return false
	}

	cPrime := scalar.HashToScalar(h[:], pub[:], Rprime[:])
	return cPrime == c
}

// DeriveKeyImage computes I = s * (hash_to_scalar(P) * G). This matches the
// reference's concrete (non-native) hash-to-curve construction and is kept
// purely for wire compatibility with the underlying protocol's key-image
// slot; the transparent variant does not use key images to hide spends.
func DeriveKeyImage(pub PublicKey, priv PrivateKey) (KeyImage, error) {
	hp := scalar.HashToScalar(pub[:])
	hpG, err := scalar.ScalarMulBase(hp)
	if err != nil {
		return KeyImage{}, coreerr.Wrap(coreerr.KindCryptoInvalidEncoding, "hash-to-point base", err)
	}
	img, err := scalar.PointMul(scalar.Scalar(priv), hpG)
	if err != nil {
		return KeyImage{}, coreerr.Wrap(coreerr.KindCryptoInvalidEncoding, "scale hashed point", err)
	}
	return KeyImage(img), nil
}

// ValidatePublicKey decodes and validates pub, rejecting non-canonical
// point encodings before the key is trusted anywhere in the transaction
// pipeline.
func ValidatePublicKey(pub PublicKey) error {
	if err := scalar.ValidatePoint(scalar.Point(pub)); err != nil {
		return coreerr.Wrap(coreerr.KindCryptoInvalidEncoding, "validate public key", err)
	}
	return nil
}

// ValidatePrivateKey rejects a non-canonical private scalar.
func ValidatePrivateKey(priv PrivateKey) error {
	if !scalar.IsCanonical(scalar.Scalar(priv)) {
		return coreerr.New(coreerr.KindCryptoInvalidEncoding, "non-canonical private scalar")
	}
	return nil
}
