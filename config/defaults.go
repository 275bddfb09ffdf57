package config

import "time"

// DefaultMainnet returns the default auditor configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		P2P: P2PConfig{
			Enabled:    true,
			ListenAddr: "0.0.0.0",
			Port:       40404,
			MaxPeers:   50,
			// Seeds are bootstrap nodes that help new peers join the
			// network, as libp2p multiaddrs, e.g.:
			//   "/ip4/203.0.113.1/tcp/40404/p2p/12D3KooW..."
			//   "/dns4/seed1.notemesh.io/tcp/40404/p2p/12D3KooW..."
			// Run seed nodes with --dht-server for optimal DHT performance.
			Seeds: []string{},
		},
		API: APIConfig{
			Enabled:    true,
			Addr:       "127.0.0.1",
			Port:       8650,
			AllowedIPs: []string{"127.0.0.1"},
		},
		Wallet: WalletConfig{
			Enabled: false,
		},
		Crawl: CrawlConfig{
			Interval:          time.Minute,
			ReattemptInterval: 5 * time.Minute,
			MaxDepth:          0,
			MaxFetches:        32,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default auditor configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.P2P.Port = 40405
	cfg.API.Port = 8651
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
