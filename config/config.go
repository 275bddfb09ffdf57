// Package config handles auditor configuration: defaults, the conf
// file, command-line flags and validation.
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

// Config holds node-specific runtime configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// P2P networking
	P2P P2PConfig

	// HTTP API server
	API APIConfig

	// Wallet
	Wallet WalletConfig

	// DAG crawling
	Crawl CrawlConfig

	// Logging
	Log LogConfig
}

// P2PConfig holds peer-to-peer network settings.
type P2PConfig struct {
	Enabled    bool     `conf:"p2p.enabled"`
	ListenAddr string   `conf:"p2p.listen"`
	Port       int      `conf:"p2p.port"`
	Seeds      []string `conf:"p2p.seeds"`
	MaxPeers   int      `conf:"p2p.maxpeers"`
	NoDiscover bool     `conf:"p2p.nodiscover"`
	DHTServer  bool     `conf:"p2p.dhtserver"` // Run DHT in server mode (for seed nodes)
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Enabled     bool     `conf:"api.enabled"`
	Addr        string   `conf:"api.addr"`
	Port        int      `conf:"api.port"`
	AllowedIPs  []string `conf:"api.allowed"`
	CORSOrigins []string `conf:"api.cors"` // Allowed CORS origins ("*" = all).
}

// WalletConfig holds wallet settings.
type WalletConfig struct {
	Enabled bool `conf:"wallet.enabled"`
}

// CrawlConfig holds DAG crawl settings.
type CrawlConfig struct {
	// Interval between crawl passes over the UTXO frontier.
	Interval time.Duration `conf:"crawl.interval"`
	// ReattemptInterval is the cooldown for addresses found still unspent.
	ReattemptInterval time.Duration `conf:"crawl.reattempt"`
	// MaxDepth caps each continuation crawl (0 = unlimited).
	MaxDepth int `conf:"crawl.maxdepth"`
	// MaxFetches bounds concurrent spend fetches during a crawl.
	MaxFetches int `conf:"crawl.maxfetches"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.notemesh-audit
//	macOS:   ~/Library/Application Support/NotemeshAudit
//	Windows: %APPDATA%\NotemeshAudit
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".notemesh-audit"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "NotemeshAudit")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "NotemeshAudit")
		}
		return filepath.Join(home, "AppData", "Roaming", "NotemeshAudit")
	default:
		return filepath.Join(home, ".notemesh-audit")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// DagDir returns the DAG database directory.
func (c *Config) DagDir() string {
	return filepath.Join(c.NetworkDataDir(), "dag")
}

// KeystoreDir returns the wallet keystore directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.NetworkDataDir(), "keystore")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "notemesh-audit.conf")
}
