package config

import "time"

// DefaultMainnet returns the default configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		Node: NodeConfig{
			Endpoint: "https://node.klingnet.io",
			Timeout:  10 * time.Second,
		},
		Sync: SyncConfig{
			BlocksPerBatch:          20,
			MinBlockCount:           5,
			RetryDelay:              2 * time.Second,
			MaxEmptyRetries:         3,
			PollInterval:            5 * time.Second,
			PruneInterval:           2880,
			MaxRetainedSyncedBlocks: 1000,
			MaxRetainedCheckpoints:  50,
			CheckpointMilestone:     5000,
		},
		Wallet: WalletConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.Node.Endpoint = "https://testnet-node.klingnet.io"
	return cfg
}

// Default returns the default configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}
