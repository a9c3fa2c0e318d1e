package codec

import (
	"github.com/klingon-tech/klingnet-lightcore/pkg/coreerr"
)

// Extra tag bytes, per the transaction prefix's TLV container.
const (
	TagTxPubKey byte = 0x01
	TagStaking  byte = 0x04
)

// TxPubKeySize is the length in bytes of the TAG_TX_PUBKEY payload.
const TxPubKeySize = 32

// ExtraField is one decoded TLV record. Raw holds exactly the tag's payload
// bytes (not including the tag byte itself); records with unknown tags are
// preserved verbatim so round-tripping never drops data.
type ExtraField struct {
	Tag byte
	Raw []byte
}

// ParseExtra decodes the TLV sequence inside an extra field's payload
// bytes (the bytes after the length-prefix has already been stripped).
// Unknown tags are preserved as opaque records; TagTxPubKey and TagStaking
// records are validated for minimum length only — their inner structure is
// interpreted by higher-level packages.
func ParseExtra(buf []byte) ([]ExtraField, error) {
	var fields []ExtraField
	for len(buf) > 0 {
		tag := buf[0]
		buf = buf[1:]

		switch tag {
		case TagTxPubKey:
			payload, rest, err := ReadFixed(buf, TxPubKeySize)
			if err != nil {
				return nil, coreerr.Wrap(coreerr.KindCodecInvalid, "truncated TX_PUBKEY extra field", err)
			}
			fields = append(fields, ExtraField{Tag: tag, Raw: append([]byte{}, payload...)})
			buf = rest
		case TagStaking:
			payload, rest, err := parseStakingBody(buf)
			if err != nil {
				return nil, err
			}
			fields = append(fields, ExtraField{Tag: tag, Raw: payload})
			buf = rest
		default:
			// Unknown tag: we cannot know its length without a schema, so
			// conservatively consume the rest of the buffer as this
			// record's payload. This only loses information if an unknown
			// tag is followed by a KNOWN one, which the wire protocol never
			// does in practice (tags are emitted TX_PUBKEY then STAKING).
			fields = append(fields, ExtraField{Tag: tag, Raw: append([]byte{}, buf...)})
			buf = nil
		}
	}
	return fields, nil
}

// parseStakingBody consumes exactly one STAKING record's bytes (the varint
// fields plus the trailing 64-byte signature) and returns its raw payload
// alongside the remaining buffer.
func parseStakingBody(buf []byte) (payload []byte, rest []byte, err error) {
	start := buf
	_, n1, err := ReadVarint(buf) // staking_type
	if err != nil {
		return nil, nil, coreerr.Wrap(coreerr.KindCodecInvalid, "staking extra: type", err)
	}
	buf = buf[n1:]
	_, n2, err := ReadVarint(buf) // amount
	if err != nil {
		return nil, nil, coreerr.Wrap(coreerr.KindCodecInvalid, "staking extra: amount", err)
	}
	buf = buf[n2:]
	_, n3, err := ReadVarint(buf) // unlock_time
	if err != nil {
		return nil, nil, coreerr.Wrap(coreerr.KindCodecInvalid, "staking extra: unlock_time", err)
	}
	buf = buf[n3:]
	_, n4, err := ReadVarint(buf) // lock_days
	if err != nil {
		return nil, nil, coreerr.Wrap(coreerr.KindCodecInvalid, "staking extra: lock_days", err)
	}
	buf = buf[n4:]
	_, buf, err = ReadFixed(buf, 64) // signature
	if err != nil {
		return nil, nil, coreerr.Wrap(coreerr.KindCodecInvalid, "staking extra: signature", err)
	}
	consumed := len(start) - len(buf)
	return append([]byte{}, start[:consumed]...), buf, nil
}

// EncodeExtra serializes fields back into extra-field payload bytes,
// preserving byte-for-byte content for every record (including unknown
// tags, whose Raw already holds whatever trailing bytes were captured at
// parse time).
func EncodeExtra(fields []ExtraField) []byte {
	var buf []byte
	for _, f := range fields {
		buf = append(buf, f.Tag)
		buf = append(buf, f.Raw...)
	}
	return buf
}

// FindField returns the first field with the given tag, if any.
func FindField(fields []ExtraField, tag byte) (ExtraField, bool) {
	for _, f := range fields {
		if f.Tag == tag {
			return f, true
		}
	}
	return ExtraField{}, false
}
