package audit

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/notemesh/notemesh-audit/pkg/ledger"
	"github.com/notemesh/notemesh-audit/pkg/types"
)

// DefaultReattemptInterval is how long a still-unspent UTXO cools down
// before the crawler asks the network about it again.
const DefaultReattemptInterval = 5 * time.Minute

// Crawler keeps a DAG growing by periodically re-crawling its UTXO
// frontier. It owns the DAG; all outside reads go through View so the
// crawl loop and API handlers never race.
type Crawler struct {
	client   *Client
	dag      *SpendDag
	cooldown *ttlcache.Cache[types.SpendAddress, struct{}]
	maxDepth int

	// sem serializes DAG access. A buffered channel instead of a mutex
	// so View can honor context cancellation.
	sem chan struct{}
}

// CrawlerConfig tunes a Crawler.
type CrawlerConfig struct {
	// ReattemptInterval is the cooldown applied to UTXOs that were
	// checked and found still unspent. Zero means
	// DefaultReattemptInterval.
	ReattemptInterval time.Duration
	// MaxDepth caps each continuation crawl, zero means unlimited.
	MaxDepth int
}

// NewCrawler wraps dag for continuous crawling with client.
func NewCrawler(client *Client, dag *SpendDag, cfg CrawlerConfig) *Crawler {
	interval := cfg.ReattemptInterval
	if interval <= 0 {
		interval = DefaultReattemptInterval
	}
	cooldown := ttlcache.New(
		ttlcache.WithTTL[types.SpendAddress, struct{}](interval),
	)
	cr := &Crawler{
		client:   client,
		dag:      dag,
		cooldown: cooldown,
		maxDepth: cfg.MaxDepth,
		sem:      make(chan struct{}, 1),
	}
	return cr
}

// View runs fn with exclusive access to the DAG. fn must not retain
// the DAG or anything aliasing its internals past its return.
func (cr *Crawler) View(ctx context.Context, fn func(*SpendDag)) error {
	select {
	case cr.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-cr.sem }()
	fn(cr.dag)
	return nil
}

// AddSpend folds an externally announced spend into the DAG, walking
// its ancestry so the new branch connects to what is already known.
func (cr *Crawler) AddSpend(ctx context.Context, addr types.SpendAddress, spend *ledger.SignedSpend) error {
	select {
	case cr.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-cr.sem }()
	return cr.client.SpendDagExtendUntil(ctx, cr.dag, addr, spend)
}

// RunOnce performs a single crawl pass: every UTXO not cooling down is
// re-checked, newly found spends are folded into the DAG, and
// addresses confirmed still unspent go back on cooldown.
func (cr *Crawler) RunOnce(ctx context.Context) error {
	select {
	case cr.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-cr.sem }()

	var pending []types.SpendAddress
	for _, addr := range cr.dag.Utxos() {
		if cr.cooldown.Has(addr) {
			continue
		}
		pending = append(pending, addr)
	}
	if len(pending) == 0 {
		return nil
	}

	checked := make(map[types.SpendAddress]struct{}, len(pending))
	for _, addr := range pending {
		checked[addr] = struct{}{}
	}
	if err := cr.client.continueFrom(ctx, cr.dag, pending, cr.maxDepth); err != nil {
		cr.client.logger.Warn().Err(err).Msg("crawl pass completed with failures")
	}
	// addresses checked this pass and still unspent cool down
	for _, addr := range cr.dag.Utxos() {
		if _, ok := checked[addr]; ok {
			cr.cooldown.Set(addr, struct{}{}, ttlcache.DefaultTTL)
		}
	}
	return ctx.Err()
}

// Run crawls every interval until ctx is cancelled.
func (cr *Crawler) Run(ctx context.Context, interval time.Duration) error {
	go cr.cooldown.Start()
	defer cr.cooldown.Stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := cr.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			cr.client.logger.Error().Err(err).Msg("crawl pass failed")
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
