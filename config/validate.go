package config

import (
	"fmt"

	"github.com/multiformats/go-multiaddr"
)

// Validate checks a runtime config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.P2P.Port < 0 || cfg.P2P.Port > 65535 {
		return fmt.Errorf("p2p.port must be in range [0, 65535]")
	}
	if cfg.API.Port < 0 || cfg.API.Port > 65535 {
		return fmt.Errorf("api.port must be in range [0, 65535]")
	}
	for i, seed := range cfg.P2P.Seeds {
		if _, err := multiaddr.NewMultiaddr(seed); err != nil {
			return fmt.Errorf("p2p.seeds[%d] is not a valid multiaddr: %w", i, err)
		}
	}
	if cfg.Crawl.Interval <= 0 {
		return fmt.Errorf("crawl.interval must be positive")
	}
	if cfg.Crawl.ReattemptInterval <= 0 {
		return fmt.Errorf("crawl.reattempt must be positive")
	}
	if cfg.Crawl.MaxDepth < 0 {
		return fmt.Errorf("crawl.maxdepth must not be negative")
	}
	if cfg.Crawl.MaxFetches < 0 {
		return fmt.Errorf("crawl.maxfetches must not be negative")
	}
	return nil
}
