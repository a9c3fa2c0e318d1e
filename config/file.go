package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFile loads configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "network":
		cfg.Network = NetworkType(value)
	case "datadir":
		cfg.DataDir = value

	// Node transport
	case "node.endpoint":
		cfg.Node.Endpoint = value
	case "node.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.Node.Timeout = d

	// Sync driver
	case "sync.blocksperbatch":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Sync.BlocksPerBatch = n
	case "sync.minblockcount":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Sync.MinBlockCount = n
	case "sync.retrydelay":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.Sync.RetryDelay = d
	case "sync.maxemptyretries":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Sync.MaxEmptyRetries = n
	case "sync.pollinterval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.Sync.PollInterval = d
	case "sync.pruneinterval":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Sync.PruneInterval = n
	case "sync.maxretainedsyncedblocks":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Sync.MaxRetainedSyncedBlocks = n
	case "sync.maxretainedcheckpoints":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Sync.MaxRetainedCheckpoints = n
	case "sync.checkpointmilestone":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Sync.CheckpointMilestone = n

	// Wallet
	case "wallet.enabled":
		cfg.Wallet.Enabled = parseBool(value)
	case "wallet.keystoredir":
		cfg.Wallet.KeystoreDir = value

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored
	}
	return nil
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// WriteDefaultConfig writes a default configuration file.
func WriteDefaultConfig(path string, network NetworkType) error {
	content := `# Klingnet light wallet configuration
#
# This client holds no consensus rules of its own — it trusts a remote
# node over HTTP for chain data and verifies what it cares about locally.

# Network: mainnet or testnet
network = ` + string(network) + `

# Data directory
# datadir = ~/.klingnet-lightwallet

# ============================================================================
# Remote node
# ============================================================================

node.endpoint = ` + defaultEndpoint(network) + `
node.timeout = 10s

# ============================================================================
# Sync driver
# ============================================================================

sync.blocksperbatch = 20
sync.minblockcount = 5
sync.retrydelay = 2s
sync.maxemptyretries = 3
sync.pollinterval = 5s
sync.pruneinterval = 2880
sync.maxretainedsyncedblocks = 1000
sync.maxretainedcheckpoints = 50
sync.checkpointmilestone = 5000

# ============================================================================
# Wallet
# ============================================================================

wallet.enabled = true
# wallet.keystoredir =

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}

func defaultEndpoint(network NetworkType) string {
	if network == Testnet {
		return "https://testnet-node.klingnet.io"
	}
	return "https://node.klingnet.io"
}
