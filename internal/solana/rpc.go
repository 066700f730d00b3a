package solana

import "context"

// RPCClient defines the Solana RPC surface the gateway uses.
type RPCClient interface {
	// GetRecentPerformanceSamples retrieves up to limit recent cluster
	// performance samples, most recent first.
	GetRecentPerformanceSamples(ctx context.Context, limit int) ([]PerformanceSample, error)

	// GetHealth reports node health; "ok" means healthy.
	GetHealth(ctx context.Context) (string, error)
}

// PerformanceSample is one cluster performance sample from
// getRecentPerformanceSamples.
type PerformanceSample struct {
	Slot             int64 `json:"slot"`
	NumTransactions  int64 `json:"numTransactions"`
	NumSlots         int64 `json:"numSlots"`
	SamplePeriodSecs int64 `json:"samplePeriodSecs"`
}
