package domain

// PlatformState classifies overall platform health.
type PlatformState string

const (
	PlatformUnknown     PlatformState = "unknown"
	PlatformDegraded    PlatformState = "degraded"
	PlatformWarning     PlatformState = "warning"
	PlatformOperational PlatformState = "operational"
)

// PlatformStatus is a point-in-time snapshot of cluster and offchain health.
type PlatformStatus struct {
	State  PlatformState `json:"state"`
	TPS    float64       `json:"tps"`
	DBGood bool          `json:"dbGood"`
}
