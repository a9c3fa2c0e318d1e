package txmodel

import (
	"github.com/klingon-tech/klingnet-lightcore/pkg/codec"
	"github.com/klingon-tech/klingnet-lightcore/pkg/coreerr"
	"github.com/klingon-tech/klingnet-lightcore/pkg/scalar"
)

// SerializePrefix produces the exact byte layout hashed for PrefixHash and
// signed by every input's Schnorr signature:
//
//	version | unlock_time | n_inputs | [tag‖body]... | n_outputs | [amount,0x02,key]... | extra_len | extra_bytes
func SerializePrefix(p TransactionPrefix) []byte {
	var buf []byte
	buf = codec.WriteVarint(buf, p.Version)
	buf = codec.WriteVarint(buf, p.UnlockTime)

	buf = codec.WriteVarint(buf, uint64(len(p.Inputs)))
	for _, in := range p.Inputs {
		buf = appendInput(buf, in)
	}

	buf = codec.WriteVarint(buf, uint64(len(p.Outputs)))
	for _, out := range p.Outputs {
		buf = appendOutput(buf, out)
	}

	buf = codec.WriteVarint(buf, uint64(len(p.Extra)))
	buf = append(buf, p.Extra...)

	return buf
}

func appendInput(buf []byte, in TxInput) []byte {
	if in.IsBase {
		buf = append(buf, TagBaseInput)
		buf = codec.WriteVarint(buf, in.Base.Height)
		return buf
	}
	buf = append(buf, TagKeyInput)
	buf = codec.WriteVarint(buf, in.Key.Amount)
	buf = codec.WriteVarint(buf, uint64(len(in.Key.OutputIndexes)))
	for _, idx := range in.Key.OutputIndexes {
		buf = codec.WriteVarint(buf, uint64(idx))
	}
	buf = append(buf, in.Key.TxHash[:]...)
	buf = codec.WriteVarint(buf, uint64(in.Key.OutIndex))
	return buf
}

func appendOutput(buf []byte, out TxOutput) []byte {
	buf = codec.WriteVarint(buf, out.Amount)
	buf = append(buf, TagKeyOutput)
	buf = append(buf, out.Target.Key[:]...)
	return buf
}

// PrefixHash returns the Keccak-256 hash of the serialized prefix — the
// signing message for every per-input signature.
func PrefixHash(p TransactionPrefix) Hash {
	return Hash(scalar.Keccak256(SerializePrefix(p)))
}

// Serialize returns the full transaction wire bytes: prefix ‖ sig1 ‖ ... ‖ sigN.
func Serialize(tx Transaction) []byte {
	buf := SerializePrefix(tx.Prefix)
	for _, sig := range tx.Signatures {
		buf = append(buf, sig[:]...)
	}
	return buf
}

// TxHash returns the Keccak-256 hash of the full serialized transaction.
func TxHash(tx Transaction) Hash {
	return Hash(scalar.Keccak256(Serialize(tx)))
}

// ParsePrefix decodes a TransactionPrefix from the front of buf, returning
// it along with the number of bytes consumed.
func ParsePrefix(buf []byte) (TransactionPrefix, int, error) {
	start := len(buf)
	var p TransactionPrefix

	version, n, err := codec.ReadVarint(buf)
	if err != nil {
		return p, 0, coreerr.Wrap(coreerr.KindCodecInvalid, "prefix: version", err)
	}
	p.Version = version
	buf = buf[n:]

	unlockTime, n, err := codec.ReadVarint(buf)
	if err != nil {
		return p, 0, coreerr.Wrap(coreerr.KindCodecInvalid, "prefix: unlock_time", err)
	}
	p.UnlockTime = unlockTime
	buf = buf[n:]

	nInputs, n, err := codec.ReadVarint(buf)
	if err != nil {
		return p, 0, coreerr.Wrap(coreerr.KindCodecInvalid, "prefix: n_inputs", err)
	}
	buf = buf[n:]

	p.Inputs = make([]TxInput, 0, nInputs)
	for i := uint64(0); i < nInputs; i++ {
		in, consumed, err := parseInput(buf)
		if err != nil {
			return p, 0, err
		}
		p.Inputs = append(p.Inputs, in)
		buf = buf[consumed:]
	}

	nOutputs, n, err := codec.ReadVarint(buf)
	if err != nil {
		return p, 0, coreerr.Wrap(coreerr.KindCodecInvalid, "prefix: n_outputs", err)
	}
	buf = buf[n:]

	p.Outputs = make([]TxOutput, 0, nOutputs)
	for i := uint64(0); i < nOutputs; i++ {
		out, consumed, err := parseOutput(buf)
		if err != nil {
			return p, 0, err
		}
		p.Outputs = append(p.Outputs, out)
		buf = buf[consumed:]
	}

	extraLen, n, err := codec.ReadVarint(buf)
	if err != nil {
		return p, 0, coreerr.Wrap(coreerr.KindCodecInvalid, "prefix: extra_len", err)
	}
	buf = buf[n:]

	extra, rest, err := codec.ReadFixed(buf, int(extraLen))
	if err != nil {
		return p, 0, coreerr.Wrap(coreerr.KindCodecInvalid, "prefix: extra overrun", err)
	}
	p.Extra = append([]byte{}, extra...)
	buf = rest

	return p, start - len(buf), nil
}

func parseInput(buf []byte) (TxInput, int, error) {
	start := len(buf)
	if len(buf) < 1 {
		return TxInput{}, 0, coreerr.New(coreerr.KindCodecInvalid, "truncated input tag")
	}
	tag := buf[0]
	buf = buf[1:]

	switch tag {
	case TagBaseInput:
		height, n, err := codec.ReadVarint(buf)
		if err != nil {
			return TxInput{}, 0, coreerr.Wrap(coreerr.KindCodecInvalid, "base input: height", err)
		}
		buf = buf[n:]
		return TxInput{IsBase: true, Base: BaseInput{Height: height}}, start - len(buf), nil

	case TagKeyInput:
		amount, n, err := codec.ReadVarint(buf)
		if err != nil {
			return TxInput{}, 0, coreerr.Wrap(coreerr.KindCodecInvalid, "key input: amount", err)
		}
		buf = buf[n:]

		k, n, err := codec.ReadVarint(buf)
		if err != nil {
			return TxInput{}, 0, coreerr.Wrap(coreerr.KindCodecInvalid, "key input: output index count", err)
		}
		buf = buf[n:]

		indexes := make([]uint32, 0, k)
		for i := uint64(0); i < k; i++ {
			idx, n, err := codec.ReadVarint(buf)
			if err != nil {
				return TxInput{}, 0, coreerr.Wrap(coreerr.KindCodecInvalid, "key input: output index", err)
			}
			indexes = append(indexes, uint32(idx))
			buf = buf[n:]
		}

		txHashBytes, rest, err := codec.ReadFixed(buf, 32)
		if err != nil {
			return TxInput{}, 0, coreerr.Wrap(coreerr.KindCodecInvalid, "key input: tx hash", err)
		}
		buf = rest
		var txHash Hash
		copy(txHash[:], txHashBytes)

		outIndex, n, err := codec.ReadVarint(buf)
		if err != nil {
			return TxInput{}, 0, coreerr.Wrap(coreerr.KindCodecInvalid, "key input: out index", err)
		}
		buf = buf[n:]

		in := TxInput{Key: KeyInput{
			Amount:        amount,
			OutputIndexes: indexes,
			TxHash:        txHash,
			OutIndex:      uint32(outIndex),
		}}
		return in, start - len(buf), nil

	default:
		return TxInput{}, 0, coreerr.New(coreerr.KindCodecInvalid, "unknown input variant tag")
	}
}

func parseOutput(buf []byte) (TxOutput, int, error) {
	start := len(buf)

	amount, n, err := codec.ReadVarint(buf)
	if err != nil {
		return TxOutput{}, 0, coreerr.Wrap(coreerr.KindCodecInvalid, "output: amount", err)
	}
	buf = buf[n:]

	if len(buf) < 1 {
		return TxOutput{}, 0, coreerr.New(coreerr.KindCodecInvalid, "truncated output tag")
	}
	tag := buf[0]
	buf = buf[1:]
	if tag != TagKeyOutput {
		return TxOutput{}, 0, coreerr.New(coreerr.KindCodecInvalid, "unknown output variant tag")
	}

	keyBytes, rest, err := codec.ReadFixed(buf, 32)
	if err != nil {
		return TxOutput{}, 0, coreerr.Wrap(coreerr.KindCodecInvalid, "output: key", err)
	}
	buf = rest

	var key PublicKey
	copy(key[:], keyBytes)

	out := TxOutput{Amount: amount, Target: KeyOutput{Key: key}}
	return out, start - len(buf), nil
}

// Parse decodes a full Transaction (prefix plus one signature per input).
func Parse(buf []byte) (Transaction, error) {
	prefix, consumed, err := ParsePrefix(buf)
	if err != nil {
		return Transaction{}, err
	}
	buf = buf[consumed:]

	sigs := make([]Signature, 0, len(prefix.Inputs))
	for i := 0; i < len(prefix.Inputs); i++ {
		sigBytes, rest, err := codec.ReadFixed(buf, 64)
		if err != nil {
			return Transaction{}, coreerr.Wrap(coreerr.KindCodecInvalid, "truncated signature", err)
		}
		var sig Signature
		copy(sig[:], sigBytes)
		sigs = append(sigs, sig)
		buf = rest
	}

	return Transaction{Prefix: prefix, Signatures: sigs}, nil
}
