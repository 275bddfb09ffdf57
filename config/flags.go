package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	Network string
	DataDir string
	Config  string

	// P2P
	P2P        bool
	P2PPort    int
	Seeds      string
	MaxPeers   int
	NoDiscover bool
	DHTServer  bool

	// API
	API        bool
	APIAddr    string
	APIPort    int
	APIAllowed string
	APICORS    string

	// Crawl
	CrawlInterval time.Duration
	CrawlDepth    int

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args
	Args []string

	// Explicitly-set bool flags (for true/false overrides).
	SetP2P        bool
	SetAPI        bool
	SetNoDiscover bool
	SetLogJSON    bool
}

// ParseFlags parses command-line flags.
func ParseFlags() *Flags {
	f := &Flags{}
	fs := flag.NewFlagSet("notemesh-audit", flag.ContinueOnError)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	// Core
	fs.StringVar(&f.Network, "network", "", "Network type (mainnet or testnet)")
	fs.StringVar(&f.Network, "testnet", "", "Use testnet (shorthand for --network=testnet)")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	// P2P
	fs.BoolVar(&f.P2P, "p2p", true, "Enable P2P networking")
	fs.IntVar(&f.P2PPort, "p2p-port", 0, "P2P listen port")
	fs.StringVar(&f.Seeds, "seeds", "", "Seed nodes as comma-separated libp2p multiaddrs")
	fs.IntVar(&f.MaxPeers, "maxpeers", 0, "Maximum number of peers")
	fs.BoolVar(&f.NoDiscover, "nodiscover", false, "Disable peer discovery")
	fs.BoolVar(&f.DHTServer, "dht-server", false, "Run DHT in server mode (for seed nodes)")

	// API
	fs.BoolVar(&f.API, "api", true, "Enable HTTP API server")
	fs.StringVar(&f.APIAddr, "api-addr", "", "API listen address")
	fs.IntVar(&f.APIPort, "api-port", 0, "API listen port")
	fs.StringVar(&f.APIAllowed, "api-allowed", "", "Allowed IPs for the API (comma-separated)")
	fs.StringVar(&f.APICORS, "api-cors", "", "Allowed CORS origins for the API (comma-separated)")

	// Crawl
	fs.DurationVar(&f.CrawlInterval, "crawl-interval", 0, "Interval between crawl passes")
	fs.IntVar(&f.CrawlDepth, "crawl-depth", 0, "Max crawl depth per pass (0 = unlimited)")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	fs.Usage = func() {
		printUsage()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	// Handle --testnet shorthand
	if isFlagSet(fs, "testnet") {
		f.Network = "testnet"
	}
	f.SetP2P = isFlagSet(fs, "p2p")
	f.SetAPI = isFlagSet(fs, "api")
	f.SetNoDiscover = isFlagSet(fs, "nodiscover")
	f.SetLogJSON = isFlagSet(fs, "log-json")

	f.Args = fs.Args()
	return f
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	// Core
	if f.Network != "" {
		cfg.Network = NetworkType(f.Network)
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	// P2P
	if f.SetP2P {
		cfg.P2P.Enabled = f.P2P
	}
	if f.P2PPort != 0 {
		cfg.P2P.Port = f.P2PPort
	}
	if f.Seeds != "" {
		cfg.P2P.Seeds = parseStringList(f.Seeds)
	}
	if f.MaxPeers != 0 {
		cfg.P2P.MaxPeers = f.MaxPeers
	}
	if f.SetNoDiscover {
		cfg.P2P.NoDiscover = f.NoDiscover
	}
	if f.DHTServer {
		cfg.P2P.DHTServer = true
	}

	// API
	if f.SetAPI {
		cfg.API.Enabled = f.API
	}
	if f.APIAddr != "" {
		cfg.API.Addr = f.APIAddr
	}
	if f.APIPort != 0 {
		cfg.API.Port = f.APIPort
	}
	if f.APIAllowed != "" {
		cfg.API.AllowedIPs = parseStringList(f.APIAllowed)
	}
	if f.APICORS != "" {
		cfg.API.CORSOrigins = parseStringList(f.APICORS)
	}

	// Crawl
	if f.CrawlInterval > 0 {
		cfg.Crawl.Interval = f.CrawlInterval
	}
	if f.CrawlDepth > 0 {
		cfg.Crawl.MaxDepth = f.CrawlDepth
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func printUsage() {
	usage := `Notemesh Auditor - spend DAG audit node for the notemesh network

Usage:
  auditd [options]
  auditd --help

Commands:
  --help, -h      Show this help message
  --version, -v   Show version information

Core Options:
  --network       Network type: mainnet (default) or testnet
  --testnet       Shorthand for --network=testnet
  --datadir       Data directory (default: ~/.notemesh-audit)
  --config, -c    Config file path (default: <datadir>/notemesh-audit.conf)

P2P Options:
  --p2p           Enable P2P networking (default: true)
  --p2p-port      P2P listen port (mainnet: 40404, testnet: 40405)
  --seeds         Seed nodes as comma-separated libp2p multiaddrs
  --maxpeers      Maximum number of peers (default: 50)
  --nodiscover    Disable peer discovery
  --dht-server    Run DHT in server mode (for seed nodes)

API Options:
  --api           Enable HTTP API server (default: true)
  --api-addr      API listen address (default: 127.0.0.1)
  --api-port      API port (mainnet: 8650, testnet: 8651)
  --api-allowed   Allowed IPs for the API (comma-separated)
  --api-cors      Allowed CORS origins for the API (comma-separated)

Crawl Options:
  --crawl-interval  Interval between crawl passes (default: 1m)
  --crawl-depth     Max crawl depth per pass (0 = unlimited)

Logging Options:
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Log file path (default: stdout)
  --log-json      Output logs as JSON

Examples:
  # Start a mainnet auditor
  auditd

  # Start a testnet auditor with seeds
  auditd --testnet --seeds=/dns4/seed1.example.com/tcp/40405/p2p/12D3KooW...

  # Start with custom data directory
  auditd --datadir=/path/to/data
`
	fmt.Print(usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load() (*Config, *Flags, error) {
	flags := ParseFlags()

	if flags.Help {
		printUsage()
		os.Exit(0)
	}
	if flags.Version {
		fmt.Println("auditd version 0.1.0")
		os.Exit(0)
	}

	// Determine network first (needed for defaults)
	network := Mainnet
	if strings.ToLower(flags.Network) == "testnet" {
		network = Testnet
	}

	cfg := Default(network)
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	if err := EnsureDataDirs(cfg); err != nil {
		return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, nil, fmt.Errorf("applying config file: %w", err)
	}

	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, flags, nil
}

// EnsureDataDirs creates the data directory structure and a default
// config file if they don't already exist. Idempotent.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.NetworkDataDir(),
		cfg.DagDir(),
		cfg.KeystoreDir(),
		cfg.LogsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}
	return nil
}
