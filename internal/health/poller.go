// Package health polls cluster and offchain health for the status indicator.
// Both probes are best-effort: failures leave the previous reading in place
// and only affect auxiliary display.
package health

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"trade-desk-gateway/internal/domain"
	"trade-desk-gateway/internal/solana"
)

// TPS thresholds for status classification.
const (
	tpsAlertThreshold   = 1000
	tpsWarningThreshold = 1300
)

// PollerConfig configures the health poller.
type PollerConfig struct {
	// Interval between probe rounds.
	Interval time.Duration
	// DBHealthURL is the offchain data health endpoint; empty disables
	// the probe (DB is then assumed good).
	DBHealthURL string
	// Samples is the number of performance samples averaged for TPS.
	Samples int
}

// DefaultPollerConfig returns the production configuration.
func DefaultPollerConfig(dbHealthURL string) PollerConfig {
	return PollerConfig{
		Interval:    15 * time.Second,
		DBHealthURL: dbHealthURL,
		Samples:     2,
	}
}

// Poller periodically samples cluster TPS and offchain DB health.
type Poller struct {
	rpc    solana.RPCClient
	http   *resty.Client
	config PollerConfig

	mu      sync.RWMutex
	tps     float64
	haveTPS bool
	dbGood  bool

	log *logrus.Entry
}

// NewPoller creates a poller over the given RPC client.
func NewPoller(rpc solana.RPCClient, config PollerConfig) *Poller {
	return &Poller{
		rpc:    rpc,
		http:   resty.New().SetTimeout(10 * time.Second),
		config: config,
		dbGood: true,
		log:    logrus.WithField("component", "health"),
	}
}

// Run probes immediately and then on every interval tick until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	p.probe(ctx)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probe(ctx)
		}
	}
}

// probe runs one round of both checks.
func (p *Poller) probe(ctx context.Context) {
	p.probeTPS(ctx)
	p.probeDB(ctx)
}

// probeTPS averages transaction throughput over the recent samples.
func (p *Poller) probeTPS(ctx context.Context) {
	samples, err := p.rpc.GetRecentPerformanceSamples(ctx, p.config.Samples)
	if err != nil {
		p.log.WithError(err).Debug("unable to fetch performance samples")
		return
	}

	var totalSecs, totalTxs int64
	for _, s := range samples {
		totalSecs += s.SamplePeriodSecs
		totalTxs += s.NumTransactions
	}
	if totalSecs == 0 {
		return
	}

	p.mu.Lock()
	p.tps = float64(totalTxs) / float64(totalSecs)
	p.haveTPS = true
	p.mu.Unlock()
}

// probeDB checks the offchain data service. The endpoint answers with the
// bare JSON number 200 when healthy.
func (p *Poller) probeDB(ctx context.Context) {
	if p.config.DBHealthURL == "" {
		return
	}

	resp, err := p.http.R().SetContext(ctx).Get(p.config.DBHealthURL)
	if err != nil {
		p.log.WithError(err).Debug("db health probe failed")
		return
	}

	var code int
	good := json.Unmarshal(resp.Body(), &code) == nil && code == 200

	p.mu.Lock()
	p.dbGood = good
	p.mu.Unlock()
}

// Status classifies the current readings.
func (p *Poller) Status() domain.PlatformStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := domain.PlatformStatus{
		TPS:    p.tps,
		DBGood: p.dbGood,
	}

	switch {
	case !p.haveTPS:
		status.State = domain.PlatformUnknown
	case p.tps < tpsAlertThreshold:
		status.State = domain.PlatformDegraded
	case p.tps < tpsWarningThreshold || !p.dbGood:
		status.State = domain.PlatformWarning
	default:
		status.State = domain.PlatformOperational
	}

	return status
}
