// Package utxo maintains the wallet's view of owned outputs: ownership and
// spend matching on block ingest, maturity/unlock policy, balance
// computation, and reorg rollback. The tracker is a single-threaded actor —
// callers must serialize access, per the core's concurrency model.
package utxo

import (
	"sort"

	"github.com/klingon-tech/klingnet-lightcore/pkg/txmodel"
)

// MaturityBlocks is the depth below the tip at which an output becomes
// eligible for spend.
const MaturityBlocks = 10

// unlockTimeThreshold mirrors txmodel.IsHeightLocked's boundary: below it,
// unlock_time is a block height; at or above it, a Unix timestamp.
const unlockTimeThreshold = 500_000_000

// PruneInterval is how often (in blocks processed) retention sweeps run.
const PruneInterval = 2880

// MaxRetainedSyncedBlocks bounds SyncedBlock retention.
const MaxRetainedSyncedBlocks = 1000

// MaxRetainedCheckpoints bounds recent-checkpoint retention (plus every
// checkpoint at a height divisible by CheckpointMilestone).
const (
	MaxRetainedCheckpoints = 50
	CheckpointMilestone    = 5000
)

// OutputRef identifies one output uniquely: (tx_hash, out_index).
type OutputRef = txmodel.OutputRef

// WalletOutput is the tracker's view of one owned TxOutput.
type WalletOutput struct {
	OwnerKey        txmodel.PublicKey
	Amount          uint64
	BlockHeight     uint64
	BlockTimestamp  uint64
	TxHash          txmodel.Hash
	OutIndex        uint32
	GlobalOutIndex  *uint32
	UnlockTime      uint64
	TxPubKey        txmodel.PublicKey
	IsStakingOrigin bool
	SpentAtHeight   *uint64
}

// Ref returns this output's unique identity.
func (o WalletOutput) Ref() OutputRef {
	return OutputRef{TxHash: o.TxHash, OutIndex: o.OutIndex}
}

// WalletSpend records one observed consumption of a WalletOutput.
type WalletSpend struct {
	Amount         uint64
	ParentTxHash   txmodel.Hash
	ParentOutIndex uint32
	BlockHeight    uint64
	BlockTimestamp uint64
	SpendingTxHash txmodel.Hash
}

// SyncedBlock is the tracker's minimal record of a processed block, used to
// detect reorgs and to prune.
type SyncedBlock struct {
	Height    uint64
	Hash      txmodel.Hash
	Timestamp uint64
	TxHashes  []txmodel.Hash
}

// Checkpoint is a (height, hash) pair used by the sync driver for fork
// recovery.
type Checkpoint struct {
	Height uint64
	Hash   txmodel.Hash
}

// IngestedOutput is one TxOutput as seen during block ingest, carrying the
// context the tracker needs to classify it.
type IngestedOutput struct {
	Output         txmodel.TxOutput
	OutIndex       uint32
	GlobalOutIndex *uint32
	TxHash         txmodel.Hash
	TxPubKey       txmodel.PublicKey
	UnlockTime     uint64
}

// IngestedInput is one KeyInput as seen during block ingest.
type IngestedInput struct {
	Input         txmodel.KeyInput
	SpendingTxHash txmodel.Hash
}

// IngestedTransaction groups one transaction's outputs and inputs plus
// whether it belongs to the block's staking-class array.
type IngestedTransaction struct {
	TxHash    txmodel.Hash
	Outputs   []IngestedOutput
	Inputs    []IngestedInput
	IsStaking bool
}

// IngestedBlock is the tracker-facing view of one block; the sync driver
// and node transport are responsible for translating wire shapes into this
// form before calling Ingest.
type IngestedBlock struct {
	Height        uint64
	Hash          txmodel.Hash
	Timestamp     uint64
	Transactions  []IngestedTransaction
}

// Event is one notification emitted during Ingest, in emission order.
type Event struct {
	Kind           EventKind
	BlockHeight    uint64
	TxHash         txmodel.Hash
	Output         *WalletOutput
	Spend          *WalletSpend
}

// EventKind enumerates Event.Kind values.
type EventKind int

const (
	EventBlockProcessed EventKind = iota
	EventTransactionFound
	EventSpendFound
)

// Balances is the result of a balance computation at a given height.
type Balances struct {
	Available     uint64
	Locked        uint64
	StakingLocked uint64
}

// Tracker owns the UTXO map, spend map, synced-block history, checkpoints
// and staking-origin tx set. It is not safe for concurrent use — per the
// core's single-actor concurrency model, callers serialize access.
type Tracker struct {
	ownedKeys map[txmodel.PublicKey]struct{}

	outputs map[OutputRef]*WalletOutput
	spends  []WalletSpend

	blocks           []SyncedBlock // height-ascending
	blocksByHeight   map[uint64]*SyncedBlock
	checkpoints      []Checkpoint // height-descending

	stakingTxHashes map[txmodel.Hash]struct{}

	currentHeight         uint64
	blocksSincePrune      uint64
}

// NewTracker creates an empty tracker watching the given set of owned
// spend keys.
func NewTracker(ownedKeys []txmodel.PublicKey) *Tracker {
	t := &Tracker{
		ownedKeys:       make(map[txmodel.PublicKey]struct{}, len(ownedKeys)),
		outputs:         make(map[OutputRef]*WalletOutput),
		blocksByHeight:  make(map[uint64]*SyncedBlock),
		stakingTxHashes: make(map[txmodel.Hash]struct{}),
	}
	for _, k := range ownedKeys {
		t.ownedKeys[k] = struct{}{}
	}
	return t
}

// CurrentHeight returns the height of the most recently ingested block.
func (t *Tracker) CurrentHeight() uint64 {
	return t.currentHeight
}

// owns reports whether key belongs to the watched set.
func (t *Tracker) owns(key txmodel.PublicKey) bool {
	_, ok := t.ownedKeys[key]
	return ok
}

// Ingest processes one block: reorg detection, ownership matching, spend
// matching, checkpoint/synced-block bookkeeping, and periodic pruning. It
// returns the events emitted, in processing order: each
// block_processed, then each transaction_found (output order), then each
// spend_found (input order).
func (t *Tracker) Ingest(b IngestedBlock) []Event {
	if existing, ok := t.blocksByHeight[b.Height]; ok && existing.Hash != b.Hash {
		t.rollbackFrom(b.Height)
	}

	var events []Event
	events = append(events, Event{Kind: EventBlockProcessed, BlockHeight: b.Height})

	txHashes := make([]txmodel.Hash, 0, len(b.Transactions))
	for _, tx := range b.Transactions {
		txHashes = append(txHashes, tx.TxHash)
		if tx.IsStaking {
			t.stakingTxHashes[tx.TxHash] = struct{}{}
		}

		for _, out := range tx.Outputs {
			if wo := t.matchOwnership(b, tx, out); wo != nil {
				events = append(events, Event{
					Kind:        EventTransactionFound,
					BlockHeight: b.Height,
					TxHash:      tx.TxHash,
					Output:      wo,
				})
			}
		}
	}
	for _, tx := range b.Transactions {
		for _, in := range tx.Inputs {
			if sp := t.matchSpend(b, in); sp != nil {
				events = append(events, Event{
					Kind:        EventSpendFound,
					BlockHeight: b.Height,
					TxHash:      in.SpendingTxHash,
					Spend:       sp,
				})
			}
		}
	}

	sb := SyncedBlock{Height: b.Height, Hash: b.Hash, Timestamp: b.Timestamp, TxHashes: txHashes}
	t.blocks = append(t.blocks, sb)
	t.blocksByHeight[b.Height] = &t.blocks[len(t.blocks)-1]
	t.pushCheckpoint(Checkpoint{Height: b.Height, Hash: b.Hash})
	t.currentHeight = b.Height

	t.blocksSincePrune++
	if t.blocksSincePrune >= PruneInterval {
		t.blocksSincePrune = 0
		t.prune()
	}

	return events
}

// matchOwnership implements the ownership match: idempotent creation of
// a WalletOutput keyed by (tx_hash, out_index) when the output key is in
// the owned set.
func (t *Tracker) matchOwnership(b IngestedBlock, tx IngestedTransaction, out IngestedOutput) *WalletOutput {
	if !t.owns(out.Output.Target.Key) {
		return nil
	}
	ref := OutputRef{TxHash: tx.TxHash, OutIndex: out.OutIndex}
	if _, exists := t.outputs[ref]; exists {
		return nil // idempotent: already recorded
	}
	wo := &WalletOutput{
		OwnerKey:        out.Output.Target.Key,
		Amount:          out.Output.Amount,
		BlockHeight:     b.Height,
		BlockTimestamp:  b.Timestamp,
		TxHash:          tx.TxHash,
		OutIndex:        out.OutIndex,
		GlobalOutIndex:  out.GlobalOutIndex,
		UnlockTime:      out.UnlockTime,
		TxPubKey:        out.TxPubKey,
		IsStakingOrigin: tx.IsStaking,
	}
	t.outputs[ref] = wo
	return wo
}

// matchSpend implements the three-tier spend match, in priority order:
// exact identity, then global output index, then amount FIFO.
func (t *Tracker) matchSpend(b IngestedBlock, in IngestedInput) *WalletSpend {
	wo := t.matchByExactIdentity(in.Input)
	if wo == nil {
		wo = t.matchByGlobalOutputIndex(in.Input)
	}
	if wo == nil {
		wo = t.matchByAmountFIFO(in.Input)
	}
	if wo == nil {
		return nil
	}

	h := b.Height
	wo.SpentAtHeight = &h
	sp := WalletSpend{
		Amount:         wo.Amount,
		ParentTxHash:   wo.TxHash,
		ParentOutIndex: wo.OutIndex,
		BlockHeight:    b.Height,
		BlockTimestamp: b.Timestamp,
		SpendingTxHash: in.SpendingTxHash,
	}
	t.spends = append(t.spends, sp)
	return &sp
}

func (t *Tracker) matchByExactIdentity(in txmodel.KeyInput) *WalletOutput {
	ref := OutputRef{TxHash: in.TxHash, OutIndex: in.OutIndex}
	wo, ok := t.outputs[ref]
	if !ok || wo.SpentAtHeight != nil {
		return nil
	}
	return wo
}

func (t *Tracker) matchByGlobalOutputIndex(in txmodel.KeyInput) *WalletOutput {
	if len(in.OutputIndexes) == 0 {
		return nil
	}
	target := in.OutputIndexes[len(in.OutputIndexes)-1]
	for _, wo := range t.outputs {
		if wo.SpentAtHeight != nil || wo.GlobalOutIndex == nil {
			continue
		}
		if *wo.GlobalOutIndex == target {
			return wo
		}
	}
	return nil
}

func (t *Tracker) matchByAmountFIFO(in txmodel.KeyInput) *WalletOutput {
	var candidates []*WalletOutput
	for _, wo := range t.outputs {
		if wo.SpentAtHeight != nil || wo.Amount != in.Amount {
			continue
		}
		candidates = append(candidates, wo)
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].BlockHeight != candidates[j].BlockHeight {
			return candidates[i].BlockHeight < candidates[j].BlockHeight
		}
		return candidates[i].OutIndex < candidates[j].OutIndex
	})
	return candidates[0]
}

// Mature reports whether output o has matured by height h.
func Mature(o *WalletOutput, h uint64) bool {
	if h < MaturityBlocks {
		return false
	}
	return o.BlockHeight <= h-MaturityBlocks
}

// Unlocked reports whether output o is unlocked at height h and time tNow.
func Unlocked(o *WalletOutput, h uint64, tNow uint64) bool {
	switch {
	case o.UnlockTime == 0:
		return true
	case o.UnlockTime < unlockTimeThreshold:
		return h >= o.UnlockTime
	default:
		return tNow >= o.UnlockTime
	}
}

// Spendable reports whether output o is mature, unlocked, and unspent at height h and time tNow.
func Spendable(o *WalletOutput, h uint64, tNow uint64) bool {
	return o.SpentAtHeight == nil && Mature(o, h) && Unlocked(o, h, tNow)
}

// AvailableOutputs returns every currently spendable WalletOutput at height
// h and wall-clock tNow, in no particular order.
func (t *Tracker) AvailableOutputs(h uint64, tNow uint64) []*WalletOutput {
	var out []*WalletOutput
	for _, wo := range t.outputs {
		if Spendable(wo, h, tNow) {
			out = append(out, wo)
		}
	}
	return out
}

// Balance computes the three balance metrics at height h and
// wall-clock tNow.
func (t *Tracker) Balance(h uint64, tNow uint64) Balances {
	var b Balances
	for _, wo := range t.outputs {
		if wo.SpentAtHeight != nil {
			continue
		}
		switch {
		case Spendable(wo, h, tNow):
			b.Available += wo.Amount
		case wo.IsStakingOrigin:
			b.StakingLocked += wo.Amount
		default:
			b.Locked += wo.Amount
		}
	}
	return b
}

// AllOutputs returns every WalletOutput the tracker has ever recorded,
// spent or not, in no particular order. Callers building transaction
// history use this together with AllSpends rather than AvailableOutputs,
// which excludes spent and still-locked outputs.
func (t *Tracker) AllOutputs() []*WalletOutput {
	out := make([]*WalletOutput, 0, len(t.outputs))
	for _, wo := range t.outputs {
		out = append(out, wo)
	}
	return out
}

// AllSpends returns every WalletSpend the tracker has observed, in no
// particular order.
func (t *Tracker) AllSpends() []WalletSpend {
	out := make([]WalletSpend, len(t.spends))
	copy(out, t.spends)
	return out
}

// ResyncFrom discards all tracked state at or above height h — outputs,
// spends, synced blocks and checkpoints — so a subsequent Ingest call at
// height h rebuilds that range from scratch. Unlike a reorg rollback this
// is caller-initiated, not triggered by a hash mismatch on ingest.
func (t *Tracker) ResyncFrom(h uint64) {
	t.rollbackFrom(h)
}

// AdvanceToTopBlock updates current_height to height when a sync response
// carries no blocks to ingest but the node reports a chain tip beyond what
// this tracker has recorded (already caught up, or empty-with-topBlock per
// spec §4.8 step 3). A checkpoint is pushed at that height so subsequent
// sync requests hint the node correctly. current_height never moves
// backward — a stale or lagging topBlock is simply ignored.
func (t *Tracker) AdvanceToTopBlock(height uint64, hash txmodel.Hash) {
	if height <= t.currentHeight {
		return
	}
	t.pushCheckpoint(Checkpoint{Height: height, Hash: hash})
	t.currentHeight = height
}

// StakingTxHashes returns the set of tx hashes that produced any
// staking-origin output.
func (t *Tracker) StakingTxHashes() map[txmodel.Hash]struct{} {
	out := make(map[txmodel.Hash]struct{}, len(t.stakingTxHashes))
	for h := range t.stakingTxHashes {
		out[h] = struct{}{}
	}
	return out
}

// pushCheckpoint inserts a checkpoint at the front (height-descending) of
// the checkpoint list, trimming to the retention policy.
func (t *Tracker) pushCheckpoint(cp Checkpoint) {
	t.checkpoints = append([]Checkpoint{cp}, t.checkpoints...)
	t.trimCheckpoints()
}

func (t *Tracker) trimCheckpoints() {
	if len(t.checkpoints) <= MaxRetainedCheckpoints {
		return
	}
	kept := t.checkpoints[:MaxRetainedCheckpoints]
	for _, cp := range t.checkpoints[MaxRetainedCheckpoints:] {
		if cp.Height%CheckpointMilestone == 0 {
			kept = append(kept, cp)
		}
	}
	t.checkpoints = kept
}

// Checkpoints returns the current checkpoint list, height-descending,
// capped at 50 entries for the sync driver's batch request.
func (t *Tracker) Checkpoints() []Checkpoint {
	if len(t.checkpoints) <= MaxRetainedCheckpoints {
		out := make([]Checkpoint, len(t.checkpoints))
		copy(out, t.checkpoints)
		return out
	}
	out := make([]Checkpoint, MaxRetainedCheckpoints)
	copy(out, t.checkpoints[:MaxRetainedCheckpoints])
	return out
}

// ClearCheckpoints drops the retained checkpoint list without otherwise
// touching tracker state. The sync driver calls this on an ordering
// violation so the next batch request carries no stale fork hints.
func (t *Tracker) ClearCheckpoints() {
	t.checkpoints = nil
}

// BlockTimestamp returns the timestamp of the synced block at height, and
// whether that height is currently retained.
func (t *Tracker) BlockTimestamp(height uint64) (uint64, bool) {
	b, ok := t.blocksByHeight[height]
	if !ok {
		return 0, false
	}
	return b.Timestamp, true
}

// rollbackFrom deletes all state at height >= h: SyncedBlocks, WalletOutputs,
// WalletSpends, and checkpoints, then sets current_height = h-1.
func (t *Tracker) rollbackFrom(h uint64) {
	keptBlocks := t.blocks[:0:0]
	for _, b := range t.blocks {
		if b.Height < h {
			keptBlocks = append(keptBlocks, b)
		} else {
			delete(t.blocksByHeight, b.Height)
		}
	}
	t.blocks = keptBlocks
	t.rebuildBlocksByHeight()

	for ref, wo := range t.outputs {
		if wo.BlockHeight >= h {
			delete(t.outputs, ref)
		}
	}

	keptSpends := t.spends[:0:0]
	for _, sp := range t.spends {
		if sp.BlockHeight < h {
			keptSpends = append(keptSpends, sp)
		} else {
			// Un-mark the parent output as spent, since the spending
			// block is being rolled back. If the parent survived the
			// rollback (it's below h), it becomes spendable again.
			if wo, ok := t.outputs[OutputRef{TxHash: sp.ParentTxHash, OutIndex: sp.ParentOutIndex}]; ok {
				wo.SpentAtHeight = nil
			}
		}
	}
	t.spends = keptSpends

	keptCheckpoints := t.checkpoints[:0:0]
	for _, cp := range t.checkpoints {
		if cp.Height < h {
			keptCheckpoints = append(keptCheckpoints, cp)
		}
	}
	t.checkpoints = keptCheckpoints

	if h == 0 {
		t.currentHeight = 0
	} else {
		t.currentHeight = h - 1
	}
}

func (t *Tracker) rebuildBlocksByHeight() {
	t.blocksByHeight = make(map[uint64]*SyncedBlock, len(t.blocks))
	for i := range t.blocks {
		t.blocksByHeight[t.blocks[i].Height] = &t.blocks[i]
	}
}

// prune implements the retention sweep: drop spent-and-old
// WalletOutputs, cap SyncedBlock retention, and re-trim checkpoints.
func (t *Tracker) prune() {
	h := t.currentHeight
	for ref, wo := range t.outputs {
		if wo.SpentAtHeight != nil && h >= PruneInterval && *wo.SpentAtHeight < h-PruneInterval {
			delete(t.outputs, ref)
		}
	}

	if len(t.blocks) > MaxRetainedSyncedBlocks {
		drop := len(t.blocks) - MaxRetainedSyncedBlocks
		for _, b := range t.blocks[:drop] {
			delete(t.blocksByHeight, b.Height)
		}
		t.blocks = t.blocks[drop:]
	}

	t.trimCheckpoints()
}
