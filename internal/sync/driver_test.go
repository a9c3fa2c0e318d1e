package sync

import (
	"context"
	"testing"
	"time"

	"github.com/klingon-tech/klingnet-lightcore/internal/node"
	"github.com/klingon-tech/klingnet-lightcore/internal/utxo"
	"github.com/klingon-tech/klingnet-lightcore/pkg/coreerr"
	"github.com/klingon-tech/klingnet-lightcore/pkg/txmodel"
)

type fakeTransport struct {
	infoFn func(ctx context.Context) (node.Info, error)
	syncFn func(ctx context.Context, req node.WalletSyncRequest) (node.WalletSyncResponse, error)

	infoCalls int
	syncCalls int
}

func (f *fakeTransport) Info(ctx context.Context) (node.Info, error) {
	f.infoCalls++
	return f.infoFn(ctx)
}

func (f *fakeTransport) GetWalletSyncData(ctx context.Context, req node.WalletSyncRequest) (node.WalletSyncResponse, error) {
	f.syncCalls++
	return f.syncFn(ctx, req)
}

func (f *fakeTransport) SendRawTransaction(ctx context.Context, txHex string) (node.SendResult, error) {
	return node.SendResult{}, nil
}

func hash(seed byte) txmodel.Hash {
	var h txmodel.Hash
	h[0] = seed
	return h
}

func wireBlockAt(height uint64) node.WireBlock {
	return node.WireBlock{
		Height:    height,
		Hash:      hash(byte(height)),
		Timestamp: 1000 + height,
	}
}

func TestRun_BatchPullsUntilSyncedThenSwitchesToPolling(t *testing.T) {
	tracker := utxo.NewTracker(nil)

	blocks := []node.WireBlock{wireBlockAt(1), wireBlockAt(2), wireBlockAt(3)}
	served := false

	tr := &fakeTransport{
		infoFn: func(ctx context.Context) (node.Info, error) {
			return node.Info{NetworkHeight: 4}, nil // TopHeight = 3
		},
		syncFn: func(ctx context.Context, req node.WalletSyncRequest) (node.WalletSyncResponse, error) {
			if served {
				return node.WalletSyncResponse{Synced: true}, nil
			}
			served = true
			return node.WalletSyncResponse{Blocks: blocks}, nil
		},
	}

	d := New(tr, tracker, nil, nil)
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tracker.CurrentHeight() != 3 {
		t.Errorf("CurrentHeight = %d, want 3", tracker.CurrentHeight())
	}
	if d.State().Mode != ModePolling {
		t.Errorf("expected driver to switch to polling mode once caught up")
	}
}

func TestRun_AlreadyCaughtUpSwitchesToPollingWithoutBatchCall(t *testing.T) {
	tracker := utxo.NewTracker(nil)
	tracker.Ingest(node.ToIngestedBlock(wireBlockAt(1)))

	tr := &fakeTransport{
		infoFn: func(ctx context.Context) (node.Info, error) {
			return node.Info{NetworkHeight: 2}, nil // TopHeight = 1
		},
		syncFn: func(ctx context.Context, req node.WalletSyncRequest) (node.WalletSyncResponse, error) {
			t.Fatal("sync data should not be requested when already caught up")
			return node.WalletSyncResponse{}, nil
		},
	}

	d := New(tr, tracker, nil, nil)
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tr.syncCalls != 0 {
		t.Errorf("expected no sync calls, got %d", tr.syncCalls)
	}
}

func TestIngestBatch_OrderingViolationClearsCheckpoints(t *testing.T) {
	tracker := utxo.NewTracker(nil)
	tracker.Ingest(node.ToIngestedBlock(wireBlockAt(1)))
	if len(tracker.Checkpoints()) == 0 {
		t.Fatal("expected a checkpoint after ingesting block 1")
	}

	d := New(&fakeTransport{}, tracker, nil, nil)

	// Height 5 instead of the expected 2: non-contiguous.
	err := d.ingestBatch([]node.WireBlock{wireBlockAt(5)})
	if err == nil {
		t.Fatal("expected ingestBatch to report the ordering violation to its caller")
	}
	if len(tracker.Checkpoints()) != 0 {
		t.Error("expected checkpoints to be cleared on ordering violation")
	}
}

func TestRunBatch_OrderingViolationIsRecoveredInternally(t *testing.T) {
	tracker := utxo.NewTracker(nil)
	tracker.Ingest(node.ToIngestedBlock(wireBlockAt(1)))

	tr := &fakeTransport{
		syncFn: func(ctx context.Context, req node.WalletSyncRequest) (node.WalletSyncResponse, error) {
			// Serves a non-contiguous block (height 5, expected 2).
			return node.WalletSyncResponse{Blocks: []node.WireBlock{wireBlockAt(5)}}, nil
		},
	}
	d := New(tr, tracker, nil, nil)

	synced, err := d.runBatchOnceForTest()
	if err != nil {
		t.Errorf("runBatch should recover an ordering violation internally, got %v", err)
	}
	if synced {
		t.Error("an ordering violation should not report synced=true")
	}
	if len(tracker.Checkpoints()) != 0 {
		t.Error("expected checkpoints cleared after the violation")
	}
}

func TestConnectionStatus_FiresOnlyOnEdge(t *testing.T) {
	tracker := utxo.NewTracker(nil)
	var events []bool

	calls := 0
	tr := &fakeTransport{
		infoFn: func(ctx context.Context) (node.Info, error) {
			calls++
			if calls == 2 {
				return node.Info{}, coreerr.New(coreerr.KindTransport, "down")
			}
			return node.Info{NetworkHeight: 1}, nil
		},
	}

	d := New(tr, tracker, func(connected bool, latency time.Duration) {
		events = append(events, connected)
	}, nil)

	d.infoWithLatency(context.Background()) // connected: first observation, fires true
	d.infoWithLatency(context.Background()) // disconnected: fires false
	d.infoWithLatency(context.Background()) // connected again: fires true
	d.infoWithLatency(context.Background()) // still connected: no event

	if len(events) != 3 {
		t.Fatalf("expected 3 edge-triggered events, got %d: %v", len(events), events)
	}
	if events[0] != true || events[1] != false || events[2] != true {
		t.Errorf("unexpected event sequence: %v", events)
	}
}

func TestStop_PreventsFurtherBatchWork(t *testing.T) {
	tracker := utxo.NewTracker(nil)
	tr := &fakeTransport{
		infoFn: func(ctx context.Context) (node.Info, error) {
			return node.Info{NetworkHeight: 100}, nil
		},
		syncFn: func(ctx context.Context, req node.WalletSyncRequest) (node.WalletSyncResponse, error) {
			t.Fatal("no RPC should be issued after Stop")
			return node.WalletSyncResponse{}, nil
		},
	}
	d := New(tr, tracker, nil, nil)
	d.Stop()

	err := d.Run(context.Background())
	if !isStopped(err) {
		t.Fatalf("expected a Stopped error, got %v", err)
	}
}

func TestBatchSize_HalvesAfterError(t *testing.T) {
	tracker := utxo.NewTracker(nil)
	d := New(&fakeTransport{}, tracker, nil, nil)

	if got := d.batchSize(); got != BlocksPerBatch {
		t.Errorf("batchSize before any error = %d, want %d", got, BlocksPerBatch)
	}
	d.recordError(coreerr.New(coreerr.KindTransport, "boom"))
	want := BlocksPerBatch / 2
	if got := d.batchSize(); got != want {
		t.Errorf("batchSize after error = %d, want %d", got, want)
	}
	if want <= MinBlockCount {
		t.Fatalf("test assumption broken: BlocksPerBatch/2 (%d) no longer exceeds MinBlockCount (%d)", want, MinBlockCount)
	}
}

// runBatchOnceForTest exposes runBatch for white-box assertions in this
// package's own tests.
func (d *Driver) runBatchOnceForTest() (bool, error) {
	return d.runBatch(context.Background())
}
