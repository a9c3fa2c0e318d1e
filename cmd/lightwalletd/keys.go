package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/klingon-tech/klingnet-lightcore/config"
	"github.com/klingon-tech/klingnet-lightcore/internal/storage"
	"github.com/klingon-tech/klingnet-lightcore/internal/utxo"
	"github.com/klingon-tech/klingnet-lightcore/internal/wallet"
	"github.com/klingon-tech/klingnet-lightcore/pkg/txmodel"
)

// defaultWalletName is the single keystore entry this daemon manages. A
// full client would let an operator name multiple wallets; this harness
// runs exactly one spend key per process.
const defaultWalletName = "default"

// utxoSnapshotStore wraps db as the UTXO tracker's persistence layer.
func utxoSnapshotStore(db storage.DB) *utxo.SnapshotStore {
	return utxo.NewSnapshotStore(db)
}

// loadOrCreateSpendKey opens the daemon's keystore, creating a fresh
// mnemonic-backed wallet on first run, and returns the spend public key the
// UTXO tracker should watch. The password comes from walletPasswordEnv —
// this harness has no interactive prompt or OS keychain integration.
func loadOrCreateSpendKey(cfg *config.Config) (txmodel.PublicKey, error) {
	password := os.Getenv(walletPasswordEnv)
	if password == "" {
		return txmodel.PublicKey{}, fmt.Errorf("%s is not set; export a keystore password to run the wallet", walletPasswordEnv)
	}

	ks, err := wallet.NewKeystore(cfg.KeystoreDir())
	if err != nil {
		return txmodel.PublicKey{}, fmt.Errorf("open keystore: %w", err)
	}

	names, err := ks.List()
	if err != nil {
		return txmodel.PublicKey{}, fmt.Errorf("list keystore: %w", err)
	}

	var seed []byte
	if contains(names, defaultWalletName) {
		seed, err = ks.Load(defaultWalletName, []byte(password))
		if err != nil {
			return txmodel.PublicKey{}, fmt.Errorf("unlock wallet: %w", err)
		}
	} else {
		mnemonic, err := wallet.GenerateMnemonic()
		if err != nil {
			return txmodel.PublicKey{}, fmt.Errorf("generate mnemonic: %w", err)
		}
		fmt.Fprintf(os.Stderr, "New wallet created. Write down this recovery phrase:\n\n  %s\n\n", mnemonic)

		seed, err = wallet.SeedFromMnemonic(mnemonic, "")
		if err != nil {
			return txmodel.PublicKey{}, fmt.Errorf("derive seed: %w", err)
		}
		if err := ks.Create(defaultWalletName, seed, []byte(password), wallet.DefaultParams()); err != nil {
			return txmodel.PublicKey{}, fmt.Errorf("create wallet: %w", err)
		}
	}

	master, err := wallet.NewMasterKey(seed)
	if err != nil {
		return txmodel.PublicKey{}, fmt.Errorf("create master key: %w", err)
	}
	spendKey, err := master.DeriveSpendKey(0, wallet.ChangeExternal, 0)
	if err != nil {
		return txmodel.PublicKey{}, fmt.Errorf("derive spend key: %w", err)
	}
	_, pub, err := spendKey.SpendKeypair()
	if err != nil {
		return txmodel.PublicKey{}, fmt.Errorf("derive spend public key: %w", err)
	}

	fmt.Fprintf(os.Stderr, "wallet spend key: %s\n", hex.EncodeToString(pub[:]))
	return pub, nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
