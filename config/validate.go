package config

import (
	"fmt"
	"net/url"
)

// Validate checks runtime config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.Node.Endpoint == "" {
		return fmt.Errorf("node.endpoint must not be empty")
	}
	if u, err := url.Parse(cfg.Node.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("node.endpoint must be a valid absolute URL, got %q", cfg.Node.Endpoint)
	}
	if cfg.Node.Timeout <= 0 {
		return fmt.Errorf("node.timeout must be positive")
	}

	if cfg.Sync.BlocksPerBatch <= 0 {
		return fmt.Errorf("sync.blocksperbatch must be positive")
	}
	if cfg.Sync.MinBlockCount <= 0 || cfg.Sync.MinBlockCount > cfg.Sync.BlocksPerBatch {
		return fmt.Errorf("sync.minblockcount must be positive and at most sync.blocksperbatch")
	}
	if cfg.Sync.RetryDelay <= 0 {
		return fmt.Errorf("sync.retrydelay must be positive")
	}
	if cfg.Sync.MaxEmptyRetries < 0 {
		return fmt.Errorf("sync.maxemptyretries must not be negative")
	}
	if cfg.Sync.PollInterval <= 0 {
		return fmt.Errorf("sync.pollinterval must be positive")
	}
	if cfg.Sync.PruneInterval <= 0 {
		return fmt.Errorf("sync.pruneinterval must be positive")
	}
	if cfg.Sync.MaxRetainedSyncedBlocks <= 0 {
		return fmt.Errorf("sync.maxretainedsyncedblocks must be positive")
	}
	if cfg.Sync.MaxRetainedCheckpoints <= 0 {
		return fmt.Errorf("sync.maxretainedcheckpoints must be positive")
	}
	if cfg.Sync.CheckpointMilestone <= 0 {
		return fmt.Errorf("sync.checkpointmilestone must be positive")
	}

	return nil
}
