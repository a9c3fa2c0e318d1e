package codec

import (
	"encoding/binary"

	"github.com/klingon-tech/klingnet-lightcore/pkg/coreerr"
)

// PutUint64LE appends n as 8 little-endian bytes, used by the staking
// signed-message body, which is fixed-width even though the same
// integers appear as varints on the wire elsewhere.
func PutUint64LE(buf []byte, n uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], n)
	return append(buf, tmp[:]...)
}

// PutUint32LE appends n as 4 little-endian bytes.
func PutUint32LE(buf []byte, n uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], n)
	return append(buf, tmp[:]...)
}

// ReadFixed reads exactly n raw bytes from the front of buf.
func ReadFixed(buf []byte, n int) ([]byte, []byte, error) {
	if len(buf) < n {
		return nil, nil, coreerr.New(coreerr.KindCodecInvalid, "truncated fixed-width field")
	}
	return buf[:n], buf[n:], nil
}
