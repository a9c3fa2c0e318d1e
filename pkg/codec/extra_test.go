package codec

import (
	"bytes"
	"testing"
)

func TestExtra_TxPubKeyRoundTrip(t *testing.T) {
	var pub [32]byte
	for i := range pub {
		pub[i] = byte(i)
	}
	fields := []ExtraField{{Tag: TagTxPubKey, Raw: pub[:]}}
	encoded := EncodeExtra(fields)

	decoded, err := ParseExtra(encoded)
	if err != nil {
		t.Fatalf("ParseExtra: %v", err)
	}
	if len(decoded) != 1 || decoded[0].Tag != TagTxPubKey {
		t.Fatalf("unexpected decoded fields: %+v", decoded)
	}
	if !bytes.Equal(decoded[0].Raw, pub[:]) {
		t.Errorf("decoded pubkey mismatch: got %x, want %x", decoded[0].Raw, pub)
	}
}

func TestExtra_TxPubKeyThenStaking(t *testing.T) {
	var pub [32]byte
	pub[0] = 0xAA

	var sig [64]byte
	sig[0] = 0xBB

	var staking []byte
	staking = WriteVarint(staking, 101)          // staking_type
	staking = WriteVarint(staking, 5_000_000_000) // amount
	staking = WriteVarint(staking, 1234)          // unlock_time
	staking = WriteVarint(staking, 30)            // lock_days
	staking = append(staking, sig[:]...)

	fields := []ExtraField{
		{Tag: TagTxPubKey, Raw: pub[:]},
		{Tag: TagStaking, Raw: staking},
	}
	encoded := EncodeExtra(fields)

	decoded, err := ParseExtra(encoded)
	if err != nil {
		t.Fatalf("ParseExtra: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(decoded))
	}
	if decoded[0].Tag != TagTxPubKey || !bytes.Equal(decoded[0].Raw, pub[:]) {
		t.Errorf("unexpected first field: %+v", decoded[0])
	}
	if decoded[1].Tag != TagStaking || !bytes.Equal(decoded[1].Raw, staking) {
		t.Errorf("unexpected second field: %+v", decoded[1])
	}
}

func TestExtra_UnknownTagPreservedVerbatim(t *testing.T) {
	unknown := []byte{0x10, 0x20, 0x30}
	fields := []ExtraField{{Tag: 0x7F, Raw: unknown}}
	encoded := EncodeExtra(fields)

	decoded, err := ParseExtra(encoded)
	if err != nil {
		t.Fatalf("ParseExtra: %v", err)
	}
	if len(decoded) != 1 || decoded[0].Tag != 0x7F || !bytes.Equal(decoded[0].Raw, unknown) {
		t.Fatalf("unknown tag not preserved verbatim: %+v", decoded)
	}
}

func TestExtra_TruncatedTxPubKeyFails(t *testing.T) {
	buf := []byte{TagTxPubKey, 0x01, 0x02} // only 2 of 32 bytes
	if _, err := ParseExtra(buf); err == nil {
		t.Error("expected error for truncated TX_PUBKEY field")
	}
}

func TestExtra_FindField(t *testing.T) {
	fields := []ExtraField{{Tag: TagTxPubKey, Raw: make([]byte, 32)}}
	if _, ok := FindField(fields, TagStaking); ok {
		t.Error("FindField should not find a tag that is not present")
	}
	if f, ok := FindField(fields, TagTxPubKey); !ok || f.Tag != TagTxPubKey {
		t.Error("FindField should find the TX_PUBKEY tag")
	}
}
