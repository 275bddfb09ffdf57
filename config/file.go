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

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
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

// setConfigValue sets a config value by key.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "network":
		cfg.Network = NetworkType(value)
	case "datadir":
		cfg.DataDir = value

	// P2P
	case "p2p.enabled", "p2p":
		cfg.P2P.Enabled = parseBool(value)
	case "p2p.listen":
		cfg.P2P.ListenAddr = value
	case "p2p.port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.P2P.Port = port
	case "p2p.seeds":
		cfg.P2P.Seeds = parseStringList(value)
	case "p2p.maxpeers":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.P2P.MaxPeers = n
	case "p2p.nodiscover":
		cfg.P2P.NoDiscover = parseBool(value)
	case "p2p.dhtserver":
		cfg.P2P.DHTServer = parseBool(value)

	// API
	case "api.enabled", "api":
		cfg.API.Enabled = parseBool(value)
	case "api.addr":
		cfg.API.Addr = value
	case "api.port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.API.Port = port
	case "api.allowed":
		cfg.API.AllowedIPs = parseStringList(value)
	case "api.cors":
		cfg.API.CORSOrigins = parseStringList(value)

	// Wallet
	case "wallet.enabled", "wallet":
		cfg.Wallet.Enabled = parseBool(value)

	// Crawl
	case "crawl.interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.Crawl.Interval = d
	case "crawl.reattempt":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.Crawl.ReattemptInterval = d
	case "crawl.maxdepth":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Crawl.MaxDepth = n
	case "crawl.maxfetches":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Crawl.MaxFetches = n

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

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// WriteDefaultConfig writes a default configuration file.
func WriteDefaultConfig(path string, network NetworkType) error {
	content := `# Notemesh Auditor Configuration

# Network: mainnet or testnet
network = ` + string(network) + `

# Data directory (default: ~/.notemesh-audit)
# datadir = ~/.notemesh-audit

# ============================================================================
# P2P Network
# ============================================================================

p2p.enabled = true
p2p.listen = 0.0.0.0
p2p.port = ` + defaultPort(network) + `
p2p.maxpeers = 50

# Seed nodes (comma-separated libp2p multiaddrs)
# p2p.seeds = /dns4/seed1.example.com/tcp/40404/p2p/12D3KooW...

# Disable peer discovery (for private networks)
# p2p.nodiscover = false

# Run DHT in server mode (for seed nodes)
# p2p.dhtserver = false

# ============================================================================
# HTTP API
# ============================================================================

api.enabled = true
api.addr = 127.0.0.1
api.port = ` + defaultAPIPort(network) + `
api.allowed = 127.0.0.1
# CORS allowed origins ("*" for all)
# api.cors = http://localhost:3000

# ============================================================================
# DAG Crawl
# ============================================================================

# Interval between crawl passes over the UTXO frontier
crawl.interval = 1m

# Cooldown for addresses found still unspent
crawl.reattempt = 5m

# Max crawl depth per pass (0 = unlimited)
# crawl.maxdepth = 0

# Concurrent spend fetches per crawl
# crawl.maxfetches = 32

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}

func defaultPort(network NetworkType) string {
	if network == Testnet {
		return "40405"
	}
	return "40404"
}

func defaultAPIPort(network NetworkType) string {
	if network == Testnet {
		return "8651"
	}
	return "8650"
}
