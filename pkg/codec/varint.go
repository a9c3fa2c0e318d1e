// Package codec implements the CryptoNote-style binary wire codec: base-128
// little-endian varints, fixed-width byte fields, variant-tagged unions,
// and the extra-field TLV container. Every multi-byte integer in a
// serialized transaction (amounts, indices, heights, counts, field
// lengths) goes through the varint functions in this file.
package codec

import (
	"bytes"
	"fmt"

	"github.com/klingon-tech/klingnet-lightcore/pkg/coreerr"
)

// maxVarintLen bounds the number of continuation bytes a decoder will
// consume before giving up, guarding against unbounded reads on hostile
// input.
const maxVarintLen = 10

// WriteVarint appends the canonical (minimal-length) base-128 little-endian
// encoding of n to buf and returns the result. This is the SINGLE varint
// writer for the whole module — every call site routes through it, per the
// wire-compatibility requirement that rules out the alternate
// >=0x80-continuation variant some historical encoders used.
func WriteVarint(buf []byte, n uint64) []byte {
	for n >= 0x80 {
		buf = append(buf, byte(n)|0x80)
		n >>= 7
	}
	return append(buf, byte(n))
}

// ReadVarint decodes a canonical varint from the front of buf, returning the
// value and the number of bytes consumed. It rejects non-canonical
// encodings (a trailing zero continuation group) and caps the scan at
// maxVarintLen bytes.
func ReadVarint(buf []byte) (uint64, int, error) {
	var n uint64
	var shift uint
	for i := 0; i < maxVarintLen; i++ {
		if i >= len(buf) {
			return 0, 0, coreerr.New(coreerr.KindCodecInvalid, "truncated varint")
		}
		b := buf[i]
		if i == maxVarintLen-1 && b >= 0x80 {
			return 0, 0, coreerr.New(coreerr.KindCodecInvalid, "varint exceeds maximum length")
		}
		chunk := uint64(b & 0x7F)
		if b < 0x80 {
			// Final byte. A zero final byte after at least one preceding
			// byte is a non-canonical (padded) encoding — the minimal form
			// never needs a trailing zero group.
			if chunk == 0 && i > 0 {
				return 0, 0, coreerr.New(coreerr.KindCodecInvalid, "non-canonical varint encoding")
			}
			n |= chunk << shift
			return n, i + 1, nil
		}
		n |= chunk << shift
		shift += 7
	}
	return 0, 0, coreerr.New(coreerr.KindCodecInvalid, "varint exceeds maximum length")
}

// AppendVarint is an alias of WriteVarint kept for call sites that prefer
// the bytes.Buffer idiom.
func AppendVarint(buf *bytes.Buffer, n uint64) {
	var tmp [maxVarintLen]byte
	out := WriteVarint(tmp[:0], n)
	buf.Write(out)
}

// ConsumeVarint reads one varint from r, advancing it past the consumed
// bytes. It is a convenience wrapper around ReadVarint for callers working
// against a cursor.
func ConsumeVarint(r *cursor) (uint64, error) {
	n, consumed, err := ReadVarint(r.remaining())
	if err != nil {
		return 0, err
	}
	r.advance(consumed)
	return n, nil
}

// cursor is a minimal forward-only cursor over a byte slice. The codec's
// own decoders (ReadVarint, ReadFixed, ParseExtra) work on plain slices and
// do not use it.
type cursor struct {
	buf []byte
	pos int
}

func newCursor(buf []byte) *cursor { return &cursor{buf: buf} }

func (c *cursor) remaining() []byte { return c.buf[c.pos:] }

func (c *cursor) advance(n int) { c.pos += n }

// readN consumes and returns the next n bytes, erroring if fewer remain.
func (c *cursor) readN(n int) ([]byte, error) {
	rem := c.remaining()
	if len(rem) < n {
		return nil, coreerr.New(coreerr.KindCodecInvalid, fmt.Sprintf("need %d bytes, have %d", n, len(rem)))
	}
	out := rem[:n]
	c.advance(n)
	return out, nil
}

func (c *cursor) readByte() (byte, error) {
	b, err := c.readN(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}
