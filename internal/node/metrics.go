package node

import "github.com/ethereum/go-ethereum/metrics"

// nodeMetrics are the counters/gauges exposed for the routing/dispatch and
// ring-maintenance components.
type nodeMetrics struct {
	getOps  metrics.Counter
	setOps  metrics.Counter
	delOps  metrics.Counter
	lookups metrics.Counter
	proxied metrics.Counter

	pendingBuckets metrics.Gauge
	fingerFilled   metrics.Gauge
	storeSize      metrics.Gauge
}

// newNodeMetrics always registers its meters; when metrics.Enabled is
// false (the package-level switch cmd/peer sets from --metrics) the
// go-ethereum/metrics constructors themselves return no-op meters, so
// callers here never need to branch on it.
func newNodeMetrics() *nodeMetrics {
	r := metrics.DefaultRegistry
	return &nodeMetrics{
		getOps:         metrics.NewRegisteredCounter("chordpeer/ops/get", r),
		setOps:         metrics.NewRegisteredCounter("chordpeer/ops/set", r),
		delOps:         metrics.NewRegisteredCounter("chordpeer/ops/del", r),
		lookups:        metrics.NewRegisteredCounter("chordpeer/ops/lookup", r),
		proxied:        metrics.NewRegisteredCounter("chordpeer/ops/proxy", r),
		pendingBuckets: metrics.NewRegisteredGauge("chordpeer/pending/buckets", r),
		fingerFilled:   metrics.NewRegisteredGauge("chordpeer/finger/filled", r),
		storeSize:      metrics.NewRegisteredGauge("chordpeer/store/size", r),
	}
}
