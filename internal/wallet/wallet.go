// Package wallet implements HD wallet functionality and the wallet façade
// that composes key management, coin selection, transaction building, the
// UTXO tracker and the sync driver into the operations a caller actually
// invokes: sync, balances, transaction history, transfers and staking.
package wallet

import (
	"context"
	"encoding/hex"
	"sort"
	"time"

	"github.com/klingon-tech/klingnet-lightcore/internal/log"
	"github.com/klingon-tech/klingnet-lightcore/internal/node"
	selectpkg "github.com/klingon-tech/klingnet-lightcore/internal/select"
	"github.com/klingon-tech/klingnet-lightcore/internal/sync"
	"github.com/klingon-tech/klingnet-lightcore/internal/txbuild"
	"github.com/klingon-tech/klingnet-lightcore/internal/utxo"
	"github.com/klingon-tech/klingnet-lightcore/pkg/coreerr"
	"github.com/klingon-tech/klingnet-lightcore/pkg/signature"
	"github.com/klingon-tech/klingnet-lightcore/pkg/txmodel"
)

// DefaultStakingTxFee is the network fee reserved, as a preparation-tx
// output, for the later staking transaction. There is no fee market here
// (this client has no mempool visibility beyond submission), so it is a
// fixed constant rather than an estimate.
const DefaultStakingTxFee = 1_000

// Credentials identifies the spend keypair a call should sign with: either
// a BIP-39 mnemonic (derived to the wallet's single spend key) or a raw
// keypair already held by the caller.
type Credentials struct {
	Mnemonic   string
	Passphrase string

	PrivateKey signature.PrivateKey
	HasKeys    bool
}

// resolve returns the spend keypair this credential set signs with.
func (c Credentials) resolve() (signature.PrivateKey, signature.PublicKey, error) {
	if c.Mnemonic != "" {
		seed, err := SeedFromMnemonic(c.Mnemonic, c.Passphrase)
		if err != nil {
			return signature.PrivateKey{}, signature.PublicKey{}, coreerr.Wrap(coreerr.KindCryptoInvalidEncoding, "derive seed from mnemonic", err)
		}
		master, err := NewMasterKey(seed)
		if err != nil {
			return signature.PrivateKey{}, signature.PublicKey{}, coreerr.Wrap(coreerr.KindCryptoInvalidEncoding, "create master key", err)
		}
		spendKey, err := master.DeriveSpendKey(0, ChangeExternal, 0)
		if err != nil {
			return signature.PrivateKey{}, signature.PublicKey{}, coreerr.Wrap(coreerr.KindCryptoInvalidEncoding, "derive spend key", err)
		}
		return spendKey.SpendKeypair()
	}
	if c.HasKeys {
		pub, err := signature.DerivePublicKey(c.PrivateKey)
		if err != nil {
			return signature.PrivateKey{}, signature.PublicKey{}, coreerr.Wrap(coreerr.KindCryptoInvalidEncoding, "derive public key from credentials", err)
		}
		return c.PrivateKey, pub, nil
	}
	return signature.PrivateKey{}, signature.PublicKey{}, coreerr.New(coreerr.KindCryptoInvalidEncoding, "credentials carry neither a mnemonic nor a keypair")
}

// Direction classifies a Transaction entry from the owning wallet's point
// of view.
type Direction int

const (
	DirectionReceived Direction = iota
	DirectionSent
)

// Transaction is one entry in the wallet's observed transaction history,
// assembled from the tracker's owned outputs and spends — this client has
// no separate transaction log of its own.
type Transaction struct {
	TxHash    txmodel.Hash
	Height    uint64
	Timestamp uint64
	Direction Direction
	Amount    uint64
	IsStaking bool
}

// Wallet is the caller-facing façade over the light client core: it wires
// together coin selection, transaction building, the UTXO tracker and the
// sync driver behind one small API.
type Wallet struct {
	transport node.Transport
	tracker   *utxo.Tracker
	driver    *sync.Driver
	snapshots *utxo.SnapshotStore
}

// Options configures New.
type Options struct {
	// OwnedKeys is the set of spend public keys this wallet watches for.
	OwnedKeys []txmodel.PublicKey
	// Snapshots, if non-nil, is loaded on startup and should be saved by
	// the caller (via SaveSnapshot) at whatever cadence it prefers.
	Snapshots *utxo.SnapshotStore
	// PollInterval overrides the sync driver's default polling cadence; a
	// zero value leaves the driver's own default in place.
	PollInterval time.Duration
}

// New builds a Wallet around transport, loading any persisted snapshot
// before the caller starts syncing.
func New(transport node.Transport, opts Options) (*Wallet, error) {
	tracker := utxo.NewTracker(opts.OwnedKeys)

	w := &Wallet{
		transport: transport,
		tracker:   tracker,
		snapshots: opts.Snapshots,
	}

	if opts.Snapshots != nil {
		snap, err := opts.Snapshots.Load()
		if err != nil {
			return nil, coreerr.Wrap(coreerr.KindTransport, "load persisted snapshot", err)
		}
		tracker.LoadSnapshot(snap)
	}

	w.driver = sync.New(transport, tracker, w.onConnectionStatus, w.onClassified)
	if opts.PollInterval > 0 {
		w.driver.SetPollInterval(opts.PollInterval)
	}
	return w, nil
}

func (w *Wallet) onConnectionStatus(isConnected bool, latency time.Duration) {
	log.Wallet.Debug().Bool("connected", isConnected).Dur("latency", latency).Msg("node connection status changed")
}

func (w *Wallet) onClassified(txHash [32]byte, isStaking bool) {
	log.Wallet.Debug().
		Hex("tx_hash", txHash[:]).
		Bool("is_staking", isStaking).
		Msg("transaction classified")
}

// SaveSnapshot persists the tracker's current state, if a snapshot store
// was configured. It is the caller's responsibility to decide how often to
// call this — e.g. after every PerformSync, or on a timer.
func (w *Wallet) SaveSnapshot() error {
	if w.snapshots == nil {
		return nil
	}
	return w.snapshots.Save(w.tracker.Snapshot())
}

// PerformSync drives the batch-then-poll sync cycle until ctx is canceled
// or StopSync is called.
func (w *Wallet) PerformSync(ctx context.Context) error {
	return w.driver.RunForever(ctx)
}

// StopSync sets the cooperative stop flag observed by PerformSync.
func (w *Wallet) StopSync() {
	w.driver.Stop()
}

// ResyncFromHeight discards all tracked state at or above h and clears the
// stop flag so a subsequent PerformSync re-pulls blocks starting at h.
func (w *Wallet) ResyncFromHeight(h uint64) {
	w.driver.Stop()
	w.tracker.ResyncFrom(h)
	w.driver.Reset()
	if w.snapshots != nil {
		w.snapshots.Clear()
	}
}

// GetSyncState reports the driver's externally observable sync state.
func (w *Wallet) GetSyncState() sync.State {
	return w.driver.State()
}

// GetAvailableOutputs returns every currently spendable owned output at the
// tracker's current height and the given wall-clock time.
func (w *Wallet) GetAvailableOutputs(tNow uint64) []*utxo.WalletOutput {
	return w.tracker.AvailableOutputs(w.tracker.CurrentHeight(), tNow)
}

// GetAvailableBalance returns the sum of currently spendable owned outputs.
func (w *Wallet) GetAvailableBalance(tNow uint64) uint64 {
	return w.tracker.Balance(w.tracker.CurrentHeight(), tNow).Available
}

// GetLockedBalance returns the sum of owned outputs still maturing or
// unlock-time-restricted, excluding staking-origin outputs.
func (w *Wallet) GetLockedBalance(tNow uint64) uint64 {
	return w.tracker.Balance(w.tracker.CurrentHeight(), tNow).Locked
}

// GetStakingLockedBalance returns the sum of owned outputs produced by a
// staking transaction that have not yet unlocked.
func (w *Wallet) GetStakingLockedBalance(tNow uint64) uint64 {
	return w.tracker.Balance(w.tracker.CurrentHeight(), tNow).StakingLocked
}

// GetTransactions returns the wallet's observed transaction history,
// most-recent-first, truncated to limit entries (0 means unlimited).
func (w *Wallet) GetTransactions(limit int) []Transaction {
	byTx := make(map[txmodel.Hash]*Transaction)
	stakingTx := w.tracker.StakingTxHashes()

	for _, wo := range w.tracker.AllOutputs() {
		entry, ok := byTx[wo.TxHash]
		if !ok {
			_, isStaking := stakingTx[wo.TxHash]
			entry = &Transaction{
				TxHash:    wo.TxHash,
				Height:    wo.BlockHeight,
				Timestamp: wo.BlockTimestamp,
				Direction: DirectionReceived,
				IsStaking: isStaking,
			}
			byTx[wo.TxHash] = entry
		}
		entry.Amount += wo.Amount
	}

	for _, sp := range w.tracker.AllSpends() {
		entry, ok := byTx[sp.SpendingTxHash]
		if !ok {
			entry = &Transaction{
				TxHash:    sp.SpendingTxHash,
				Height:    sp.BlockHeight,
				Timestamp: sp.BlockTimestamp,
				Direction: DirectionSent,
			}
			byTx[sp.SpendingTxHash] = entry
		} else if entry.Direction == DirectionReceived {
			// A transaction that both receives (our change/stake output)
			// and spends our inputs is a send from this wallet's view.
			entry.Direction = DirectionSent
		}
	}

	out := make([]Transaction, 0, len(byTx))
	for _, entry := range byTx {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Height != out[j].Height {
			return out[i].Height > out[j].Height
		}
		return hex.EncodeToString(out[i].TxHash[:]) > hex.EncodeToString(out[j].TxHash[:])
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// signerFor returns a txbuild.Signer that always resolves to the given
// keypair — this client has exactly one spend key per wallet.
func signerFor(priv signature.PrivateKey, pub signature.PublicKey) txbuild.Signer {
	return func(selectpkg.SpendableOutput) (signature.PrivateKey, signature.PublicKey, error) {
		return priv, pub, nil
	}
}

func toSpendable(outputs []*utxo.WalletOutput) []selectpkg.SpendableOutput {
	out := make([]selectpkg.SpendableOutput, len(outputs))
	for i, wo := range outputs {
		out[i] = selectpkg.SpendableOutput{TxHash: wo.TxHash, OutIndex: wo.OutIndex, Amount: wo.Amount}
	}
	return out
}

// submit serializes tx, submits it to the node, and turns a node-side
// rejection into a typed error.
func (w *Wallet) submit(ctx context.Context, tx txmodel.Transaction) (txmodel.Hash, error) {
	raw := txmodel.Serialize(tx)
	result, err := w.transport.SendRawTransaction(ctx, hex.EncodeToString(raw))
	if err != nil {
		return txmodel.Hash{}, err
	}
	if result.Status != "OK" && result.Status != "ok" && result.Status != "" {
		return txmodel.Hash{}, coreerr.New(coreerr.KindRejected, result.Error)
	}
	return txmodel.TxHash(tx), nil
}

// SendTransferParams configures SendTransfer.
type SendTransferParams struct {
	Credentials  Credentials
	Destinations []txbuild.Destination
	Fee          uint64
	TNow         uint64
}

// SendTransferResult is the outcome of a successful SendTransfer.
type SendTransferResult struct {
	TxHash txmodel.Hash
	Change uint64
}

// SendTransfer selects inputs, builds and signs a normal transfer to the
// given destinations, and submits it to the node.
func (w *Wallet) SendTransfer(ctx context.Context, p SendTransferParams) (SendTransferResult, error) {
	priv, pub, err := p.Credentials.resolve()
	if err != nil {
		return SendTransferResult{}, err
	}

	target := uint64(0)
	for _, d := range p.Destinations {
		target += d.Amount
	}

	spendable := toSpendable(w.GetAvailableOutputs(p.TNow))
	selection, err := selectpkg.SelectCoins(spendable, target, p.Fee)
	if err != nil {
		return SendTransferResult{}, err
	}

	built, err := txbuild.BuildTransfer(txbuild.BuildTransferParams{
		Inputs:       selection.Inputs,
		Destinations: p.Destinations,
		ChangeKey:    pub,
		Fee:          p.Fee,
		Sign:         signerFor(priv, pub),
	})
	if err != nil {
		return SendTransferResult{}, err
	}

	txHash, err := w.submit(ctx, built.Tx)
	if err != nil {
		return SendTransferResult{}, err
	}
	return SendTransferResult{TxHash: txHash, Change: selection.Change}, nil
}

// PrepareStakeParams configures PrepareStake.
type PrepareStakeParams struct {
	Credentials Credentials
	Amount      uint64
	Fee         uint64 // network fee paid by the preparation tx itself
	TNow        uint64
}

// PrepareStakeResult is the outcome of a successful PrepareStake.
type PrepareStakeResult struct {
	TxHash       txmodel.Hash
	StakeAmount  uint64
	StakingTxFee uint64
}

// PrepareStake builds and submits the first (preparation) leg of the
// two-step staking flow: a normal transfer to self producing a
// [stake_amount, staking_tx_fee, change] output triple.
func (w *Wallet) PrepareStake(ctx context.Context, p PrepareStakeParams) (PrepareStakeResult, error) {
	priv, pub, err := p.Credentials.resolve()
	if err != nil {
		return PrepareStakeResult{}, err
	}

	stakingTxFee := uint64(DefaultStakingTxFee)
	spendable := toSpendable(w.GetAvailableOutputs(p.TNow))
	selection, err := selectpkg.SelectCoins(spendable, p.Amount+stakingTxFee, p.Fee)
	if err != nil {
		return PrepareStakeResult{}, err
	}

	built, err := txbuild.BuildPreparation(txbuild.PreparationParams{
		Inputs:       selection.Inputs,
		SelfKey:      pub,
		StakeAmount:  p.Amount,
		StakingTxFee: stakingTxFee,
		NetworkFee:   p.Fee,
		Sign:         signerFor(priv, pub),
	})
	if err != nil {
		return PrepareStakeResult{}, err
	}

	txHash, err := w.submit(ctx, built.Tx)
	if err != nil {
		return PrepareStakeResult{}, err
	}
	return PrepareStakeResult{TxHash: txHash, StakeAmount: p.Amount, StakingTxFee: stakingTxFee}, nil
}

// FinalizeStakeParams configures FinalizeStake.
type FinalizeStakeParams struct {
	Credentials      Credentials
	PrepTxHash       txmodel.Hash
	Amount           uint64
	LockDays         uint32
	BlockTimeSeconds uint64
	TNow             uint64
}

// FinalizeStakeResult is the outcome of a successful FinalizeStake.
type FinalizeStakeResult struct {
	TxHash     txmodel.Hash
	UnlockTime uint64
}

// FinalizeStake locates the preparation transaction's precise
// (stake_amount, staking_tx_fee) output pair, already confirmed and
// spendable, and builds and submits the staking transaction that locks
// them for LockDays.
func (w *Wallet) FinalizeStake(ctx context.Context, p FinalizeStakeParams) (FinalizeStakeResult, error) {
	priv, pub, err := p.Credentials.resolve()
	if err != nil {
		return FinalizeStakeResult{}, err
	}

	stakingTxFee := uint64(DefaultStakingTxFee)
	spendable := toSpendable(w.GetAvailableOutputs(p.TNow))
	pair, err := selectpkg.PickStakingInputs(spendable, p.Amount, stakingTxFee, p.PrepTxHash)
	if err != nil {
		return FinalizeStakeResult{}, err
	}

	built, err := txbuild.BuildStaking(txbuild.StakingParams{
		AmountInput:      pair[0],
		FeeInput:         pair[1],
		SelfKey:          pub,
		StakeAmount:      p.Amount,
		LockDays:         p.LockDays,
		CurrentHeight:    w.tracker.CurrentHeight(),
		BlockTimeSeconds: p.BlockTimeSeconds,
		Sign:             signerFor(priv, pub),
	})
	if err != nil {
		return FinalizeStakeResult{}, err
	}

	txHash, err := w.submit(ctx, built.Tx)
	if err != nil {
		return FinalizeStakeResult{}, err
	}
	return FinalizeStakeResult{TxHash: txHash, UnlockTime: built.Tx.Prefix.UnlockTime}, nil
}
