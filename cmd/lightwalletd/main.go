// Klingnet light wallet daemon.
//
// Usage:
//
//	lightwalletd [options]   Sync against a remote node and log balances
//	lightwalletd --help      Show help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/klingon-tech/klingnet-lightcore/config"
	"github.com/klingon-tech/klingnet-lightcore/internal/log"
	"github.com/klingon-tech/klingnet-lightcore/internal/node"
	"github.com/klingon-tech/klingnet-lightcore/internal/storage"
	"github.com/klingon-tech/klingnet-lightcore/internal/wallet"
	"github.com/klingon-tech/klingnet-lightcore/pkg/txmodel"
)

// walletPasswordEnv names the environment variable this harness reads the
// keystore password from. A real client would prompt interactively or
// integrate with an OS keychain; this is a thin exercise harness with no
// GUI, so an env var stands in for both.
const walletPasswordEnv = "KLINGNET_WALLET_PASSWORD"

const snapshotSaveInterval = 30 * time.Second

func main() {
	cfg, _, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := log.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		fmt.Fprintf(os.Stderr, "Error: init logging: %v\n", err)
		os.Exit(1)
	}

	snapDB, err := storage.NewBadger(cfg.SnapshotDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer snapDB.Close()
	snapshots := utxoSnapshotStore(snapDB)

	var ownedKeys []txmodel.PublicKey
	if cfg.Wallet.Enabled {
		pub, err := loadOrCreateSpendKey(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		ownedKeys = append(ownedKeys, pub)
	}

	transport := node.NewHTTPTransport(cfg.Node.Endpoint, cfg.Node.Timeout)
	w, err := wallet.New(transport, wallet.Options{
		OwnedKeys:    ownedKeys,
		Snapshots:    snapshots,
		PollInterval: cfg.Sync.PollInterval,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	syncErrCh := make(chan error, 1)
	go func() {
		syncErrCh <- w.PerformSync(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	statusTicker := time.NewTicker(snapshotSaveInterval)
	defer statusTicker.Stop()

	log.Wallet.Info().Str("endpoint", cfg.Node.Endpoint).Str("network", string(cfg.Network)).Msg("starting sync")

	for {
		select {
		case <-sigCh:
			log.Wallet.Info().Msg("shutdown requested")
			cancel()
			w.StopSync()
			<-syncErrCh
			if err := w.SaveSnapshot(); err != nil {
				log.Wallet.Error().Err(err).Msg("final snapshot save failed")
			}
			return

		case err := <-syncErrCh:
			if err != nil {
				log.Wallet.Error().Err(err).Msg("sync stopped")
			}
			cancel()
			return

		case <-statusTicker.C:
			logStatus(w)
			if err := w.SaveSnapshot(); err != nil {
				log.Wallet.Error().Err(err).Msg("periodic snapshot save failed")
			}
		}
	}
}

func logStatus(w *wallet.Wallet) {
	now := uint64(time.Now().Unix())
	state := w.GetSyncState()
	log.Wallet.Info().
		Uint64("height", state.CurrentHeight).
		Uint64("network_height", state.NetworkHeight).
		Bool("connected", state.Connected).
		Uint64("available", w.GetAvailableBalance(now)).
		Uint64("locked", w.GetLockedBalance(now)).
		Uint64("staking_locked", w.GetStakingLockedBalance(now)).
		Msg("sync status")
}
