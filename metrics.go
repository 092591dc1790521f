package hover

import (
	"time"

	"github.com/uber-go/tally/v4"
	"go.uber.org/atomic"
)

// Metrics exposes cluster-health counters over a tally.Scope. Grounded
// directly on nakama-cluster/metrics.go's Metrics struct, generalized from
// gRPC call counters to this spec's probe/gossip/membership events.
type Metrics struct {
	scope tally.Scope

	memberCount   *atomic.Int64
	probeSuccess  *atomic.Int64
	probeFailure  *atomic.Int64
	broadcastSent *atomic.Int64
	broadcastRecv *atomic.Int64
}

// NewMetrics wraps scope. A nil scope yields a Metrics that safely
// no-ops, so wiring metrics is always optional for the embedder.
func NewMetrics(scope tally.Scope) *Metrics {
	if scope == nil {
		scope = tally.NoopScope
	}
	return &Metrics{
		scope:         scope,
		memberCount:   atomic.NewInt64(0),
		probeSuccess:  atomic.NewInt64(0),
		probeFailure:  atomic.NewInt64(0),
		broadcastSent: atomic.NewInt64(0),
		broadcastRecv: atomic.NewInt64(0),
	}
}

// SetMemberCount records the current membership set size.
func (m *Metrics) SetMemberCount(n int) {
	m.memberCount.Store(int64(n))
	m.scope.Gauge("member_count").Update(float64(n))
}

// ProbeResult records the outcome and round-trip time of one direct probe,
// including probes made on another node's behalf for a ProbeReq.
func (m *Metrics) ProbeResult(success bool, elapsed time.Duration) {
	if success {
		m.probeSuccess.Inc()
		m.scope.Counter("probe_success").Inc(1)
	} else {
		m.probeFailure.Inc()
		m.scope.Counter("probe_failure").Inc(1)
	}
	m.scope.Timer("probe_rtt").Record(elapsed)
}

// BroadcastSent records one gossip send fanned out to a peer.
func (m *Metrics) BroadcastSent(bytes int) {
	m.broadcastSent.Inc()
	m.scope.Counter("broadcast_sent").Inc(1)
	m.scope.Counter("broadcast_sent_bytes").Inc(int64(bytes))
}

// BroadcastReceived records one first-seen inbound broadcast.
func (m *Metrics) BroadcastReceived(bytes int) {
	m.broadcastRecv.Inc()
	m.scope.Counter("broadcast_received").Inc(1)
	m.scope.Counter("broadcast_received_bytes").Inc(int64(bytes))
}

// MemberCount returns the last recorded membership set size.
func (m *Metrics) MemberCount() int64 { return m.memberCount.Load() }
