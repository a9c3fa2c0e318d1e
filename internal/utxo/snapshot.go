package utxo

import (
	"encoding/json"
	"fmt"

	"github.com/klingon-tech/klingnet-lightcore/pkg/txmodel"
)

// Snapshot is the serializable form of the tracker's state: the full UTXO
// map, the spend map, current_height, and the staking-origin tx hash set,
// Reloading a snapshot MUST reproduce identical balances and
// transaction classifications as replaying from scratch.
type Snapshot struct {
	CurrentHeight   uint64                `json:"current_height"`
	Outputs         []SnapshotOutput      `json:"outputs"`
	Spends          []WalletSpend         `json:"spends"`
	StakingTxHashes []txmodel.Hash        `json:"staking_tx_hashes"`
}

// SnapshotOutput mirrors WalletOutput with JSON-friendly pointer fields
// flattened to value + presence pairs.
type SnapshotOutput struct {
	OwnerKey         txmodel.PublicKey `json:"owner_key"`
	Amount           uint64            `json:"amount"`
	BlockHeight      uint64            `json:"block_height"`
	BlockTimestamp   uint64            `json:"block_timestamp"`
	TxHash           txmodel.Hash      `json:"tx_hash"`
	OutIndex         uint32            `json:"out_index"`
	HasGlobalOutIdx  bool              `json:"has_global_out_index"`
	GlobalOutIndex   uint32            `json:"global_out_index"`
	UnlockTime       uint64            `json:"unlock_time"`
	TxPubKey         txmodel.PublicKey `json:"tx_pubkey"`
	IsStakingOrigin  bool              `json:"is_staking_origin"`
	HasSpentAtHeight bool              `json:"has_spent_at_height"`
	SpentAtHeight    uint64            `json:"spent_at_height"`
}

// Snapshot captures the tracker's current state.
func (t *Tracker) Snapshot() Snapshot {
	s := Snapshot{
		CurrentHeight: t.currentHeight,
		Spends:        append([]WalletSpend{}, t.spends...),
	}
	for h := range t.stakingTxHashes {
		s.StakingTxHashes = append(s.StakingTxHashes, h)
	}
	for _, wo := range t.outputs {
		so := SnapshotOutput{
			OwnerKey:        wo.OwnerKey,
			Amount:          wo.Amount,
			BlockHeight:     wo.BlockHeight,
			BlockTimestamp:  wo.BlockTimestamp,
			TxHash:          wo.TxHash,
			OutIndex:        wo.OutIndex,
			UnlockTime:      wo.UnlockTime,
			TxPubKey:        wo.TxPubKey,
			IsStakingOrigin: wo.IsStakingOrigin,
		}
		if wo.GlobalOutIndex != nil {
			so.HasGlobalOutIdx = true
			so.GlobalOutIndex = *wo.GlobalOutIndex
		}
		if wo.SpentAtHeight != nil {
			so.HasSpentAtHeight = true
			so.SpentAtHeight = *wo.SpentAtHeight
		}
		s.Outputs = append(s.Outputs, so)
	}
	return s
}

// LoadSnapshot replaces the tracker's UTXO map, spend map, current_height
// and staking-origin tx hash set with the given snapshot's contents. The
// set of owned spend keys and any checkpoint/synced-block history are NOT
// part of the snapshot and are left untouched (checkpoints restart empty,
// which only affects sync fork-recovery hints, not balance correctness).
func (t *Tracker) LoadSnapshot(s Snapshot) {
	t.currentHeight = s.CurrentHeight
	t.spends = append([]WalletSpend{}, s.Spends...)
	t.stakingTxHashes = make(map[txmodel.Hash]struct{}, len(s.StakingTxHashes))
	for _, h := range s.StakingTxHashes {
		t.stakingTxHashes[h] = struct{}{}
	}

	t.outputs = make(map[OutputRef]*WalletOutput, len(s.Outputs))
	for _, so := range s.Outputs {
		wo := &WalletOutput{
			OwnerKey:        so.OwnerKey,
			Amount:          so.Amount,
			BlockHeight:     so.BlockHeight,
			BlockTimestamp:  so.BlockTimestamp,
			TxHash:          so.TxHash,
			OutIndex:        so.OutIndex,
			UnlockTime:      so.UnlockTime,
			TxPubKey:        so.TxPubKey,
			IsStakingOrigin: so.IsStakingOrigin,
		}
		if so.HasGlobalOutIdx {
			v := so.GlobalOutIndex
			wo.GlobalOutIndex = &v
		}
		if so.HasSpentAtHeight {
			v := so.SpentAtHeight
			wo.SpentAtHeight = &v
		}
		t.outputs[wo.Ref()] = wo
	}
}

// MarshalSnapshot encodes a Snapshot to JSON bytes for persistence.
func MarshalSnapshot(s Snapshot) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("utxo: marshal snapshot: %w", err)
	}
	return data, nil
}

// UnmarshalSnapshot decodes a Snapshot from JSON bytes.
func UnmarshalSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("utxo: unmarshal snapshot: %w", err)
	}
	return s, nil
}
