// Package scalar provides Ed25519 scalar and point arithmetic for the
// light client's Schnorr-style signature scheme. All reduction and
// hash-to-scalar behavior is bit-exact with the reference CryptoNote-family
// implementation: a 32-byte digest is logically zero-extended to 64 bytes
// before the final reduction mod the curve order.
package scalar

import (
	"crypto/rand"
	"fmt"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/sha3"
)

// Size is the length in bytes of a scalar or a compressed point.
const Size = 32

// Scalar is a 32-byte little-endian value, canonical iff < the curve order.
type Scalar [Size]byte

// Point is a 32-byte Ed25519 compressed group element encoding.
type Point [Size]byte

// Keccak256 hashes data with Keccak-256 (not SHA3-256 — the original,
// pre-NIST-finalization padding used throughout the CryptoNote family).
func Keccak256(data ...[]byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Reduce32 interprets the 32 little-endian input bytes as an integer and
// returns it mod the curve order as a canonical scalar.
func Reduce32(b [32]byte) Scalar {
	var wide [64]byte
	copy(wide[:32], b[:])
	return Reduce64(wide)
}

// Reduce64 interprets the 64 little-endian input bytes as an integer and
// returns it mod the curve order as a canonical scalar. 64-byte inputs
// arise from the hash-to-scalar path (after zero-extension) and from
// uniform random draws.
func Reduce64(b [64]byte) Scalar {
	s, err := new(edwards25519.Scalar).SetUniformBytes(b[:])
	if err != nil {
		// SetUniformBytes only fails on wrong-length input, which cannot
		// happen for a fixed-size array.
		panic(fmt.Sprintf("scalar: SetUniformBytes: %v", err))
	}
	var out Scalar
	copy(out[:], s.Bytes())
	return out
}

// RandomScalar draws 64 bytes of OS randomness and reduces them mod the
// curve order, matching the reference RNG-to-scalar path.
func RandomScalar() (Scalar, error) {
	var buf [64]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return Scalar{}, fmt.Errorf("scalar: read random bytes: %w", err)
	}
	return Reduce64(buf), nil
}

// HashToScalar computes reduce32(keccak256(buf)) with the 32-byte digest
// zero-extended to 64 bytes before reduction, per the wire protocol.
func HashToScalar(buf ...[]byte) Scalar {
	digest := Keccak256(buf...)
	return Reduce32(digest)
}

// IsCanonical reports whether b is the canonical (minimal) encoding of the
// scalar it represents, i.e. b < curve order.
func IsCanonical(b [32]byte) bool {
	_, err := new(edwards25519.Scalar).SetCanonicalBytes(b[:])
	return err == nil
}

// ScalarMulBase returns k*G, the standard Ed25519 basepoint scaled by k.
func ScalarMulBase(k Scalar) (Point, error) {
	s, err := new(edwards25519.Scalar).SetCanonicalBytes(k[:])
	if err != nil {
		return Point{}, fmt.Errorf("scalar: non-canonical scalar: %w", err)
	}
	p := new(edwards25519.Point).ScalarBaseMult(s)
	var out Point
	copy(out[:], p.Bytes())
	return out, nil
}

// PointMul returns k*P.
func PointMul(k Scalar, p Point) (Point, error) {
	s, err := new(edwards25519.Scalar).SetCanonicalBytes(k[:])
	if err != nil {
		return Point{}, fmt.Errorf("scalar: non-canonical scalar: %w", err)
	}
	pt, err := new(edwards25519.Point).SetBytes(p[:])
	if err != nil {
		return Point{}, fmt.Errorf("scalar: invalid point encoding: %w", err)
	}
	out := new(edwards25519.Point).ScalarMult(s, pt)
	var res Point
	copy(res[:], out.Bytes())
	return res, nil
}

// PointAdd returns a+b.
func PointAdd(a, b Point) (Point, error) {
	pa, err := new(edwards25519.Point).SetBytes(a[:])
	if err != nil {
		return Point{}, fmt.Errorf("scalar: invalid point encoding: %w", err)
	}
	pb, err := new(edwards25519.Point).SetBytes(b[:])
	if err != nil {
		return Point{}, fmt.Errorf("scalar: invalid point encoding: %w", err)
	}
	out := new(edwards25519.Point).Add(pa, pb)
	var res Point
	copy(res[:], out.Bytes())
	return res, nil
}

// ScalarSub returns a-b mod the curve order.
func ScalarSub(a, b Scalar) (Scalar, error) {
	sa, err := new(edwards25519.Scalar).SetCanonicalBytes(a[:])
	if err != nil {
		return Scalar{}, fmt.Errorf("scalar: non-canonical scalar a: %w", err)
	}
	sb, err := new(edwards25519.Scalar).SetCanonicalBytes(b[:])
	if err != nil {
		return Scalar{}, fmt.Errorf("scalar: non-canonical scalar b: %w", err)
	}
	out := new(edwards25519.Scalar).Subtract(sa, sb)
	var res Scalar
	copy(res[:], out.Bytes())
	return res, nil
}

// ScalarMul returns a*b mod the curve order.
func ScalarMul(a, b Scalar) (Scalar, error) {
	sa, err := new(edwards25519.Scalar).SetCanonicalBytes(a[:])
	if err != nil {
		return Scalar{}, fmt.Errorf("scalar: non-canonical scalar a: %w", err)
	}
	sb, err := new(edwards25519.Scalar).SetCanonicalBytes(b[:])
	if err != nil {
		return Scalar{}, fmt.Errorf("scalar: non-canonical scalar b: %w", err)
	}
	out := new(edwards25519.Scalar).Multiply(sa, sb)
	var res Scalar
	copy(res[:], out.Bytes())
	return res, nil
}

// ValidatePoint decodes p, rejecting non-canonical or invalid encodings.
// Used to validate a public key before it is trusted in a signature check.
func ValidatePoint(p Point) error {
	pt, err := new(edwards25519.Point).SetBytes(p[:])
	if err != nil {
		return fmt.Errorf("scalar: invalid point: %w", err)
	}
	var enc Point
	copy(enc[:], pt.Bytes())
	if enc != p {
		return fmt.Errorf("scalar: non-canonical point encoding")
	}
	return nil
}
