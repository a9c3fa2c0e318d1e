// Package sync implements the batch-pull sync driver (C8): it walks an
// untrusted node's block stream through node.Transport, feeds each block
// into the UTXO tracker, and falls back to polling once caught up.
package sync

import (
	"context"
	"time"

	"github.com/klingon-tech/klingnet-lightcore/internal/log"
	"github.com/klingon-tech/klingnet-lightcore/internal/node"
	"github.com/klingon-tech/klingnet-lightcore/internal/utxo"
	"github.com/klingon-tech/klingnet-lightcore/pkg/coreerr"
)

const (
	// BlocksPerBatch is the default number of blocks requested per pull.
	BlocksPerBatch = 20
	// MinBlockCount is the floor batch size after adaptive halving.
	MinBlockCount = 5
	// RetryDelay is how long the driver waits between empty-batch retries.
	RetryDelay = 2 * time.Second
	// MaxEmptyRetries is how many empty batches are tolerated before the
	// driver surfaces a transport error.
	MaxEmptyRetries = 3
	// DefaultPollInterval is how often the driver polls /info once synced.
	DefaultPollInterval = 5 * time.Second
)

// isStopped reports whether err is a KindStopped core error.
func isStopped(err error) bool {
	e, ok := err.(*coreerr.Error)
	return ok && e.Kind == coreerr.KindStopped
}

// Mode reports which loop the driver is currently running.
type Mode int

const (
	ModeIdle Mode = iota
	ModeBatch
	ModePolling
)

// State is the externally observable sync state, per getSyncState().
type State struct {
	Mode          Mode
	CurrentHeight uint64
	NetworkHeight uint64
	Connected     bool
	LastLatency   time.Duration
	Errors        []error // bounded list of recent transport errors
}

// maxErrorHistory bounds the recorded transport error list.
const maxErrorHistory = 16

// ConnectionStatusFunc is invoked exactly when connectivity flips, per the
// edge-triggered on_connection_status_change contract.
type ConnectionStatusFunc func(isConnected bool, latency time.Duration)

// ClassifiedFunc is invoked once per fully ingested transaction, after its
// output/spend events have already fired.
type ClassifiedFunc func(txHash [32]byte, isStaking bool)

// Driver runs the batch-pull and polling loops against a Transport and
// feeds blocks into a Tracker. A Driver is single-threaded: callers must
// not invoke Run and Stop concurrently from multiple goroutines without
// external serialization, per the core's single-actor concurrency model.
type Driver struct {
	transport node.Transport
	tracker   *utxo.Tracker

	pollInterval time.Duration
	onConnStatus ConnectionStatusFunc
	onClassified ClassifiedFunc

	stopped    bool
	lastErrors []error
	hadError   bool // sticky: set once any batch-level error has occurred

	connected    bool
	connKnown    bool
	lastLatency  time.Duration
	mode         Mode
	networkTop   uint64
}

// New builds a Driver. onConnStatus and onClassified may be nil.
func New(transport node.Transport, tracker *utxo.Tracker, onConnStatus ConnectionStatusFunc, onClassified ClassifiedFunc) *Driver {
	return &Driver{
		transport:    transport,
		tracker:      tracker,
		pollInterval: DefaultPollInterval,
		onConnStatus: onConnStatus,
		onClassified: onClassified,
		mode:         ModeIdle,
	}
}

// SetPollInterval overrides the default polling cadence.
func (d *Driver) SetPollInterval(interval time.Duration) {
	d.pollInterval = interval
}

// Stop sets the cooperative, edge-monotonic stop flag. Once set it never
// clears; Run and Poll observe it at the next loop boundary and return
// without further mutation, event emission, or RPC call.
func (d *Driver) Stop() {
	d.stopped = true
}

// Reset clears the stop flag so the driver can be restarted, e.g. after a
// resyncFromHeight at the wallet façade layer. It does not touch the
// tracker's state.
func (d *Driver) Reset() {
	d.stopped = false
}

// Stopped reports whether the stop flag has been observed as set.
func (d *Driver) Stopped() bool {
	return d.stopped
}

// State returns a snapshot of the driver's externally observable state.
func (d *Driver) State() State {
	errs := make([]error, len(d.lastErrors))
	copy(errs, d.lastErrors)
	return State{
		Mode:          d.mode,
		CurrentHeight: d.tracker.CurrentHeight(),
		NetworkHeight: d.networkTop,
		Connected:     d.connected,
		LastLatency:   d.lastLatency,
		Errors:        errs,
	}
}

// recordError appends to the bounded transport error list and marks the
// adaptive-batching sticky flag.
func (d *Driver) recordError(err error) {
	d.hadError = true
	d.lastErrors = append(d.lastErrors, err)
	if len(d.lastErrors) > maxErrorHistory {
		d.lastErrors = d.lastErrors[len(d.lastErrors)-maxErrorHistory:]
	}
}

// batchSize returns the next request's block count, halved with a floor of
// MinBlockCount whenever a prior error has been recorded.
func (d *Driver) batchSize() int {
	if !d.hadError {
		return BlocksPerBatch
	}
	n := BlocksPerBatch / 2
	if n < MinBlockCount {
		n = MinBlockCount
	}
	return n
}

// checkpointHints builds the checkpoint hint list from the tracker's
// currently retained checkpoints (already newest-first, ≤ 50).
func (d *Driver) checkpointHints() []node.CheckpointHint {
	cps := d.tracker.Checkpoints()
	hints := make([]node.CheckpointHint, len(cps))
	for i, cp := range cps {
		hints[i] = node.CheckpointHint{Height: cp.Height, Hash: cp.Hash}
	}
	return hints
}

// infoWithLatency calls Info and measures round-trip latency, firing the
// edge-triggered connection-status callback on any state flip.
func (d *Driver) infoWithLatency(ctx context.Context) (node.Info, error) {
	start := time.Now()
	info, err := d.transport.Info(ctx)
	latency := time.Since(start)
	d.lastLatency = latency

	isConnected := err == nil
	if !d.connKnown || isConnected != d.connected {
		d.connKnown = true
		d.connected = isConnected
		if d.onConnStatus != nil {
			d.onConnStatus(isConnected, latency)
		}
	}
	if err == nil {
		d.networkTop = info.TopHeight()
	}
	return info, err
}

// Run drives the sync loop until the node reports the wallet as caught up
// or the batch is exhausted for this call; it does not block in polling
// mode — callers alternate Run and Poll (or call RunForever) as directed
// by State().Mode.
func (d *Driver) Run(ctx context.Context) error {
	d.mode = ModeBatch
	for {
		if d.stopped {
			return coreerr.New(coreerr.KindStopped, "sync driver stopped")
		}

		info, err := d.infoWithLatency(ctx)
		if err == nil && d.tracker.CurrentHeight() >= info.TopHeight() {
			d.mode = ModePolling
			return nil
		}

		synced, err := d.runBatch(ctx)
		if err != nil {
			return err
		}
		if synced {
			d.mode = ModePolling
			return nil
		}
		if d.stopped {
			return coreerr.New(coreerr.KindStopped, "sync driver stopped")
		}
	}
}

// runBatch performs one batch-pull iteration: fetch, validate ordering,
// ingest. It returns synced=true once the node reports the wallet as
// caught up.
func (d *Driver) runBatch(ctx context.Context) (bool, error) {
	emptyRetries := 0
	for {
		if d.stopped {
			return false, coreerr.New(coreerr.KindStopped, "sync driver stopped")
		}

		height := d.tracker.CurrentHeight()
		startHeight := height + 1

		req := node.WalletSyncRequest{
			Checkpoints: d.checkpointHints(),
			StartHeight: &startHeight,
			BlockCount:  d.batchSize(),
		}
		if ts, ok := d.tracker.BlockTimestamp(height); ok {
			req.StartTimestamp = &ts
		}

		resp, err := d.transport.GetWalletSyncData(ctx, req)
		if err != nil {
			d.recordError(err)
			emptyRetries++
			if emptyRetries > MaxEmptyRetries {
				return false, err
			}
			if !d.sleepOrStop(ctx, RetryDelay) {
				return false, coreerr.New(coreerr.KindStopped, "sync driver stopped")
			}
			continue
		}

		if resp.Synced || (len(resp.Blocks) == 0 && resp.TopBlock != nil) {
			if resp.TopBlock != nil {
				d.networkTop = resp.TopBlock.Height
				d.tracker.AdvanceToTopBlock(resp.TopBlock.Height, resp.TopBlock.Hash)
			}
			return true, nil
		}

		if len(resp.Blocks) == 0 {
			emptyRetries++
			if emptyRetries > MaxEmptyRetries {
				return false, coreerr.New(coreerr.KindTransport, "exhausted empty-batch retries")
			}
			if !d.sleepOrStop(ctx, RetryDelay) {
				return false, coreerr.New(coreerr.KindStopped, "sync driver stopped")
			}
			continue
		}

		if err := d.ingestBatch(resp.Blocks); err != nil {
			if isStopped(err) {
				return false, err
			}
			// OrderingViolation is recovered internally: the checkpoint list
			// has already been cleared by ingestBatch, so the caller's next
			// Run iteration re-pulls from current_height with no hints.
			return false, nil
		}
		return false, nil
	}
}

// ingestBatch validates contiguity and feeds each block to the tracker,
// firing the classification callback once a transaction's events have all
// been emitted. An ordering violation clears checkpoints and aborts the
// remainder of the batch without mutating past the violating block.
func (d *Driver) ingestBatch(blocks []node.WireBlock) error {
	for _, wb := range blocks {
		if d.stopped {
			return coreerr.New(coreerr.KindStopped, "sync driver stopped")
		}

		expected := d.tracker.CurrentHeight() + 1
		if wb.Height != expected {
			log.Sync.Warn().
				Uint64("expected_height", expected).
				Uint64("got_height", wb.Height).
				Msg("ordering violation, clearing checkpoints")
			d.clearCheckpoints()
			return coreerr.New(coreerr.KindCodecInvalid, "non-contiguous block height")
		}

		ib := node.ToIngestedBlock(wb)
		events := d.tracker.Ingest(ib)
		d.emitClassifications(ib, events)
	}
	return nil
}

// emitClassifications fires the classification callback once per
// transaction in the block, after its own events have already been
// produced by Ingest (block_processed, then per-tx events, in order).
func (d *Driver) emitClassifications(ib utxo.IngestedBlock, _ []utxo.Event) {
	if d.onClassified == nil {
		return
	}
	for _, tx := range ib.Transactions {
		d.onClassified(tx.TxHash, tx.IsStaking)
	}
}

// clearCheckpoints drops the tracker's retained checkpoints by forcing an
// empty checkpoint window; it is invoked on ordering violations, per
// the batch-pull driver's OrderingViolation recovery path.
func (d *Driver) clearCheckpoints() {
	d.tracker.ClearCheckpoints()
}

// sleepOrStop waits for d2 or ctx cancellation, whichever comes first. It
// returns false if ctx was canceled, or if the stop flag is set once the
// wait ends; the stop flag itself does not cut the wait short.
func (d *Driver) sleepOrStop(ctx context.Context, d2 time.Duration) bool {
	timer := time.NewTimer(d2)
	defer timer.Stop()
	select {
	case <-timer.C:
		return !d.stopped
	case <-ctx.Done():
		return false
	}
}

// Poll runs a single polling-mode tick: it checks /info and, if the node
// now reports a higher network height, switches the driver back into
// batch mode for the caller's next Run call.
func (d *Driver) Poll(ctx context.Context) error {
	if d.stopped {
		return coreerr.New(coreerr.KindStopped, "sync driver stopped")
	}
	info, err := d.infoWithLatency(ctx)
	if err != nil {
		d.recordError(err)
		return err
	}
	if info.TopHeight() > d.tracker.CurrentHeight() {
		d.mode = ModeBatch
		return nil
	}
	d.mode = ModePolling
	return nil
}

// RunForever drives the full batch-then-poll cycle until ctx is canceled
// or Stop is called. It is a convenience wrapper for callers that want the
// driver to own its own loop rather than alternating Run/Poll manually.
func (d *Driver) RunForever(ctx context.Context) error {
	for {
		if d.stopped {
			return coreerr.New(coreerr.KindStopped, "sync driver stopped")
		}
		if err := d.Run(ctx); err != nil {
			return err
		}

		for d.mode == ModePolling {
			if d.stopped {
				return coreerr.New(coreerr.KindStopped, "sync driver stopped")
			}
			if !d.sleepOrStop(ctx, d.pollInterval) {
				return coreerr.New(coreerr.KindStopped, "sync driver stopped")
			}
			if err := d.Poll(ctx); err != nil {
				return err
			}
		}
	}
}
