package signature

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/klingon-tech/klingnet-lightcore/pkg/scalar"
)

func generateKeypair(t *testing.T) (PublicKey, PrivateKey) {
	t.Helper()
	s, err := scalar.RandomScalar()
	if err != nil {
		t.Fatalf("RandomScalar: %v", err)
	}
	priv := PrivateKey(s)
	pub, err := DerivePublicKey(priv)
	if err != nil {
		t.Fatalf("DerivePublicKey: %v", err)
	}
	return pub, priv
}

func TestSignVerify_RoundTrip(t *testing.T) {
	pub, priv := generateKeypair(t)
	h := Hash(scalar.Keccak256([]byte("test message")))

	sig, err := SignWithOSRand(h, pub, priv)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !Verify(h, pub, sig) {
		t.Error("signature should verify against the correct key and hash")
	}
}

func TestSign_NonceIsRandomPerCall(t *testing.T) {
	pub, priv := generateKeypair(t)
	h := Hash(scalar.Keccak256([]byte("same message twice")))

	sig1, err := SignWithOSRand(h, pub, priv)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	sig2, err := SignWithOSRand(h, pub, priv)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if bytes.Equal(sig1[:], sig2[:]) {
		t.Error("two signatures over the same message must use independent nonces and differ")
	}
	if !Verify(h, pub, sig1) || !Verify(h, pub, sig2) {
		t.Error("both independently-nonced signatures must verify")
	}
}

func TestVerify_FlippedHashBitFails(t *testing.T) {
	pub, priv := generateKeypair(t)
	h := Hash(scalar.Keccak256([]byte("message")))

	sig, err := SignWithOSRand(h, pub, priv)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	flipped := h
	flipped[0] ^= 0x01
	if Verify(flipped, pub, sig) {
		t.Error("signature should not verify after flipping a hash bit")
	}
}

func TestVerify_FlippedPubKeyBitFails(t *testing.T) {
	pub, priv := generateKeypair(t)
	h := Hash(scalar.Keccak256([]byte("message")))

	sig, err := SignWithOSRand(h, pub, priv)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	flipped := pub
	flipped[0] ^= 0x01
	if Verify(h, flipped, sig) {
		t.Error("signature should not verify after flipping a public key bit")
	}
}

func TestDeriveKeyImage_Deterministic(t *testing.T) {
	_, priv := generateKeypair(t)
	pub, err := DerivePublicKey(priv)
	if err != nil {
		t.Fatalf("DerivePublicKey: %v", err)
	}

	img1, err := DeriveKeyImage(pub, priv)
	if err != nil {
		t.Fatalf("DeriveKeyImage: %v", err)
	}
	img2, err := DeriveKeyImage(pub, priv)
	if err != nil {
		t.Fatalf("DeriveKeyImage: %v", err)
	}
	if img1 != img2 {
		t.Error("key image derivation must be deterministic for a given keypair")
	}
}

func TestSign_RandSourceExhaustion(t *testing.T) {
	pub, priv := generateKeypair(t)
	h := Hash(scalar.Keccak256([]byte("x")))

	_, err := Sign(bytes.NewReader(nil), h, pub, priv)
	if err == nil {
		t.Error("expected error when the entropy source is exhausted")
	}
}

func TestValidatePublicKey_RejectsInvalidEncoding(t *testing.T) {
	var bad PublicKey
	for i := range bad {
		bad[i] = 0xFF
	}
	if err := ValidatePublicKey(bad); err == nil {
		t.Error("expected error for an invalid point encoding")
	}
}

func TestSign_UsesProvidedRand(t *testing.T) {
	pub, priv := generateKeypair(t)
	h := Hash(scalar.Keccak256([]byte("y")))
	if _, err := Sign(rand.Reader, h, pub, priv); err != nil {
		t.Fatalf("Sign with crypto/rand.Reader: %v", err)
	}
}
