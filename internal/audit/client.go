package audit

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/notemesh/notemesh-audit/internal/log"
	"github.com/notemesh/notemesh-audit/pkg/ledger"
	"github.com/notemesh/notemesh-audit/pkg/types"
)

// DefaultMaxConcurrentFetches bounds the number of in-flight spend
// fetches during DAG building.
const DefaultMaxConcurrentFetches = 32

// ClientConfig tunes an audit Client.
type ClientConfig struct {
	// MaxConcurrentFetches caps concurrent network fetches in the
	// bounded crawls. Zero means DefaultMaxConcurrentFetches.
	MaxConcurrentFetches int
}

// Client runs audit crawls against a spend network.
type Client struct {
	net        SpendNetwork
	maxFetches int
	logger     zerolog.Logger
}

// NewClient creates an audit client reading from network.
func NewClient(network SpendNetwork, cfg ClientConfig) *Client {
	maxFetches := cfg.MaxConcurrentFetches
	if maxFetches <= 0 {
		maxFetches = DefaultMaxConcurrentFetches
	}
	return &Client{
		net:        network,
		maxFetches: maxFetches,
		logger:     log.Audit,
	}
}

// fetchClassified fetches every address concurrently and classifies
// each outcome instead of failing. The limit bounds in-flight fetches;
// zero or negative means unbounded.
func (c *Client) fetchClassified(ctx context.Context, addrs []types.SpendAddress, limit int) []fetchResult {
	results := make([]fetchResult, len(addrs))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, addr := range addrs {
		g.Go(func() error {
			spend, err := c.net.GetSpend(ctx, addr)
			results[i] = classifyFetch(addr, spend, err)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// fetchStrict fetches every address concurrently and fails on the
// first error of any kind, double spends included. Results come back
// in address order.
func (c *Client) fetchStrict(ctx context.Context, addrs []types.SpendAddress) ([]*ledger.SignedSpend, error) {
	out := make([]*ledger.SignedSpend, len(addrs))
	g, ctx := errgroup.WithContext(ctx)
	for i, addr := range addrs {
		g.Go(func() error {
			spend, err := c.net.GetSpend(ctx, addr)
			if err != nil {
				return fmt.Errorf("fetch spend at %s: %w", addr.Short(), err)
			}
			out[i] = spend
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
