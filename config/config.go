// Package config handles runtime configuration for the light wallet core.
//
// Unlike a full node, this client carries no consensus rules or genesis
// parameters — everything here is node-operational: which remote node to
// talk to, how long to wait for it, how aggressively to pull blocks, and
// how much synced history to retain.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Config holds runtime configuration for a light wallet process.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Node transport (C9) — the remote node this client talks to.
	Node NodeConfig

	// Sync driver (C8) tuning.
	Sync SyncConfig

	// Wallet keystore.
	Wallet WalletConfig

	// Logging
	Log LogConfig
}

// NodeConfig holds settings for the remote node HTTP transport.
type NodeConfig struct {
	Endpoint string        `conf:"node.endpoint"` // base URL, e.g. https://node.klingnet.io
	Timeout  time.Duration `conf:"node.timeout"`
}

// SyncConfig holds settings for the batch-pull sync driver. Only
// PollInterval is passed on to the driver (through wallet.Options); the
// driver and the UTXO tracker use their own package constants for batch
// size, retries, pruning and retention, so the other fields have no effect
// on them.
type SyncConfig struct {
	BlocksPerBatch          int           `conf:"sync.blocksperbatch"`
	MinBlockCount           int           `conf:"sync.minblockcount"`
	RetryDelay              time.Duration `conf:"sync.retrydelay"`
	MaxEmptyRetries         int           `conf:"sync.maxemptyretries"`
	PollInterval            time.Duration `conf:"sync.pollinterval"`
	PruneInterval           int           `conf:"sync.pruneinterval"`           // in blocks
	MaxRetainedSyncedBlocks int           `conf:"sync.maxretainedsyncedblocks"`
	MaxRetainedCheckpoints  int           `conf:"sync.maxretainedcheckpoints"`
	CheckpointMilestone     int           `conf:"sync.checkpointmilestone"`
}

// WalletConfig holds keystore settings.
type WalletConfig struct {
	Enabled     bool   `conf:"wallet.enabled"`
	KeystoreDir string `conf:"wallet.keystoredir"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.klingnet-lightwallet
//	macOS:   ~/Library/Application Support/KlingnetLightwallet
//	Windows: %APPDATA%\KlingnetLightwallet
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingnet-lightwallet"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "KlingnetLightwallet")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "KlingnetLightwallet")
		}
		return filepath.Join(home, "AppData", "Roaming", "KlingnetLightwallet")
	default:
		return filepath.Join(home, ".klingnet-lightwallet")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// SnapshotDir returns the directory for the persisted UTXO snapshot.
func (c *Config) SnapshotDir() string {
	return filepath.Join(c.NetworkDataDir(), "snapshot")
}

// KeystoreDir returns the keystore directory.
func (c *Config) KeystoreDir() string {
	if c.Wallet.KeystoreDir != "" {
		return c.Wallet.KeystoreDir
	}
	return filepath.Join(c.NetworkDataDir(), "keystore")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "lightwallet.conf")
}
