package utxo

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/klingon-tech/klingnet-lightcore/internal/storage"
	"github.com/klingon-tech/klingnet-lightcore/pkg/txmodel"
)

// Key prefixes for the snapshot store.
var (
	prefixOutput = []byte("o/") // o/<tx_hash><out_index> -> SnapshotOutput JSON
	prefixSpend  = []byte("s/") // s/<parent_tx_hash><parent_out_index> -> WalletSpend JSON
	metaKey      = []byte("m")  // m -> {current_height, staking_tx_hashes} JSON
)

// SnapshotStore persists a Tracker's Snapshot to a storage.DB, keyed so
// that individual outputs and spends can be read back without decoding
// the whole snapshot blob.
type SnapshotStore struct {
	db storage.DB
}

// NewSnapshotStore wraps db as a snapshot-persistence layer.
func NewSnapshotStore(db storage.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

func outputKey(txHash txmodel.Hash, outIndex uint32) []byte {
	key := make([]byte, len(prefixOutput)+32+4)
	copy(key, prefixOutput)
	copy(key[len(prefixOutput):], txHash[:])
	binary.BigEndian.PutUint32(key[len(prefixOutput)+32:], outIndex)
	return key
}

func spendKey(parentTxHash txmodel.Hash, parentOutIndex uint32) []byte {
	key := make([]byte, len(prefixSpend)+32+4)
	copy(key, prefixSpend)
	copy(key[len(prefixSpend):], parentTxHash[:])
	binary.BigEndian.PutUint32(key[len(prefixSpend)+32:], parentOutIndex)
	return key
}

type snapshotMeta struct {
	CurrentHeight   uint64         `json:"current_height"`
	StakingTxHashes []txmodel.Hash `json:"staking_tx_hashes"`
}

// Save writes every output, every spend, and the meta record of s,
// overwriting whatever was previously stored under those keys.
func (ss *SnapshotStore) Save(s Snapshot) error {
	for _, o := range s.Outputs {
		data, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("marshal snapshot output: %w", err)
		}
		if err := ss.db.Put(outputKey(o.TxHash, o.OutIndex), data); err != nil {
			return fmt.Errorf("put snapshot output: %w", err)
		}
	}
	for _, sp := range s.Spends {
		data, err := json.Marshal(sp)
		if err != nil {
			return fmt.Errorf("marshal snapshot spend: %w", err)
		}
		if err := ss.db.Put(spendKey(sp.ParentTxHash, sp.ParentOutIndex), data); err != nil {
			return fmt.Errorf("put snapshot spend: %w", err)
		}
	}

	meta := snapshotMeta{CurrentHeight: s.CurrentHeight, StakingTxHashes: s.StakingTxHashes}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal snapshot meta: %w", err)
	}
	if err := ss.db.Put(metaKey, data); err != nil {
		return fmt.Errorf("put snapshot meta: %w", err)
	}
	return nil
}

// Load reconstructs a Snapshot from everything currently stored under the
// output, spend and meta keys.
func (ss *SnapshotStore) Load() (Snapshot, error) {
	var s Snapshot

	if err := ss.db.ForEach(prefixOutput, func(_, value []byte) error {
		var o SnapshotOutput
		if err := json.Unmarshal(value, &o); err != nil {
			return fmt.Errorf("unmarshal snapshot output: %w", err)
		}
		s.Outputs = append(s.Outputs, o)
		return nil
	}); err != nil {
		return Snapshot{}, fmt.Errorf("scan outputs: %w", err)
	}

	if err := ss.db.ForEach(prefixSpend, func(_, value []byte) error {
		var sp WalletSpend
		if err := json.Unmarshal(value, &sp); err != nil {
			return fmt.Errorf("unmarshal snapshot spend: %w", err)
		}
		s.Spends = append(s.Spends, sp)
		return nil
	}); err != nil {
		return Snapshot{}, fmt.Errorf("scan spends: %w", err)
	}

	data, err := ss.db.Get(metaKey)
	if err != nil {
		return s, nil // no meta persisted yet: zero height, no staking set
	}
	var meta snapshotMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal snapshot meta: %w", err)
	}
	s.CurrentHeight = meta.CurrentHeight
	s.StakingTxHashes = meta.StakingTxHashes
	return s, nil
}

// Clear removes every persisted output, spend, and the meta record. Used
// before writing a fresh snapshot after a resyncFromHeight.
func (ss *SnapshotStore) Clear() error {
	var keys [][]byte
	for _, prefix := range [][]byte{prefixOutput, prefixSpend} {
		if err := ss.db.ForEach(prefix, func(key, _ []byte) error {
			k := make([]byte, len(key))
			copy(k, key)
			keys = append(keys, k)
			return nil
		}); err != nil {
			return fmt.Errorf("scan prefix %s: %w", prefix, err)
		}
	}
	for _, key := range keys {
		if err := ss.db.Delete(key); err != nil {
			return fmt.Errorf("delete snapshot key: %w", err)
		}
	}
	if has, err := ss.db.Has(metaKey); err == nil && has {
		if err := ss.db.Delete(metaKey); err != nil {
			return fmt.Errorf("delete snapshot meta: %w", err)
		}
	}
	return nil
}
