package hover

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

// Membership maintains the peer set and runs the SWIM-style failure
// detector (spec.md §4.6). It reacts to JoinIn/LeftIn/ProbeIn/ProbeReqIn
// events and drives its own probe loop on a private goroutine.
//
// Grounded on nakama-cluster/peer.go's LocalPeer (map-of-NodeMeta guarded
// by an RWMutex, Add/Delete/All surface), generalized from a
// gRPC-addressed peer table to this spec's own probe/probe-req loop,
// which the teacher instead delegates entirely to hashicorp/memberlist
// (not reused here — see SPEC_FULL.md).
type Membership struct {
	logger     *zap.Logger
	bus        *Bus
	dispatcher *Dispatcher
	metrics    *Metrics
	local      NodeMeta
	rng        *rand.Rand
	rngMu      sync.Mutex

	fanout          int
	rate            time.Duration
	probeTimeout    time.Duration
	probeReqTimeout time.Duration

	mu    sync.RWMutex
	peers map[uuid.UUID]NodeMeta
}

// NewMembership constructs an empty Membership for local. The membership
// set never contains local.ID (spec.md §3 invariant).
func NewMembership(logger *zap.Logger, bus *Bus, dispatcher *Dispatcher, metrics *Metrics, local NodeMeta, rng *rand.Rand, cfg *Config) *Membership {
	return &Membership{
		logger:          logger.Named("membership"),
		bus:             bus,
		dispatcher:      dispatcher,
		metrics:         metrics,
		local:           local,
		rng:             rng,
		fanout:          cfg.Discovery.Fanout,
		rate:            time.Duration(cfg.Discovery.RateMs) * time.Millisecond,
		probeTimeout:    time.Duration(cfg.Discovery.ProbeTimeoutMs) * time.Millisecond,
		probeReqTimeout: time.Duration(cfg.Discovery.ProbeReqTimeout) * time.Millisecond,
		peers:           make(map[uuid.UUID]NodeMeta),
	}
}

// Members returns a snapshot of the peer set (spec.md §6
// "cluster.members").
func (m *Membership) Members() []NodeMeta {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]NodeMeta, 0, len(m.peers))
	for _, n := range m.peers {
		out = append(out, n.Clone())
	}
	return out
}

// Size returns the current peer count.
func (m *Membership) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.peers)
}

// LocalNode returns the local node's own identity (SPEC_FULL.md
// supplemented feature 2, grounded on original_source/hover/src/cluster.rs).
func (m *Membership) LocalNode() NodeMeta {
	return m.local
}

func (m *Membership) add(n NodeMeta) (added bool) {
	if n.ID == m.local.ID {
		return false
	}

	m.mu.Lock()
	if _, exists := m.peers[n.ID]; exists {
		m.mu.Unlock()
		return false
	}
	m.peers[n.ID] = n
	size := len(m.peers)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SetMemberCount(size)
	}
	return true
}

func (m *Membership) remove(id uuid.UUID) (removed NodeMeta, ok bool) {
	m.mu.Lock()
	removed, ok = m.peers[id]
	if ok {
		delete(m.peers, id)
	}
	size := len(m.peers)
	m.mu.Unlock()

	if ok && m.metrics != nil {
		m.metrics.SetMemberCount(size)
	}
	return
}

// HandleEvent reacts to JoinIn, LeftIn, ProbeIn and ProbeReqIn (spec.md
// §4.6 "Event reactions").
func (m *Membership) HandleEvent(e Event) {
	switch e.Type {
	case EventJoinIn:
		if m.add(e.Node) {
			m.bus.Post(Event{Type: EventMemberAdded, Node: e.Node})
		}

	case EventLeftIn:
		if removed, ok := m.remove(e.Node.ID); ok {
			m.bus.Post(Event{Type: EventMemberLeft, Node: removed})
		}

	case EventProbeIn:
		// Reply with an empty-payload Response carrying the same
		// correlation id (spec.md §4.6).
		if err := m.dispatcher.Reply(e.CorrelationID, nil, e.ReturnAddress); err != nil {
			m.logger.Debug("probe reply failed", zap.Error(err))
		}

	case EventProbeReqIn:
		go m.handleProbeReq(e)
	}
}

func (m *Membership) handleProbeReq(e Event) {
	ok := m.directProbe(e.ProbeNode)
	if !ok {
		return // no reply: the indirect probe itself failed (spec.md §4.6).
	}
	if err := m.dispatcher.Reply(e.CorrelationID, nil, e.ReturnAddress); err != nil {
		m.logger.Debug("probe-req reply failed", zap.Error(err))
	}
}

// directProbe sends a Probe request-with-response to target and reports
// whether it succeeded before probeTimeout. A send error counts as a
// failed probe, not a fatal condition (spec.md §4.6, §7).
func (m *Membership) directProbe(target NodeMeta) bool {
	start := time.Now()
	_, err := m.dispatcher.SendRequest(nil, target.Address, MessageProbe, m.probeTimeout)
	success := err == nil
	if m.metrics != nil {
		m.metrics.ProbeResult(success, time.Since(start))
	}
	return success
}

// indirectProbe asks up to fanout other peers (excluding exclude) to
// probe target on our behalf, and reports whether any one of them
// responded before probeReqTimeout (spec.md §4.6 step 3). The first
// response wins; the rest are ignored.
func (m *Membership) indirectProbe(target NodeMeta, exclude uuid.UUID) bool {
	helpers := m.sampleExcluding(m.fanout, exclude, target.ID)
	if len(helpers) == 0 {
		return false
	}

	payload, err := EncodeProbeReqPayload(ProbeReqPayload{Node: target})
	if err != nil {
		return false
	}

	type result struct{ ok bool }
	results := make(chan result, len(helpers))

	for _, helper := range helpers {
		helper := helper
		go func() {
			_, err := m.dispatcher.SendRequest(payload, helper.Address, MessageProbeReq, m.probeReqTimeout)
			results <- result{ok: err == nil}
		}()
	}

	deadline := time.After(m.probeReqTimeout)
	for range helpers {
		select {
		case r := <-results:
			if r.ok {
				return true
			}
		case <-deadline:
			return false
		}
	}
	return false
}

// sampleExcluding picks up to n distinct peers uniformly without
// replacement, excluding the ids in exclude.
func (m *Membership) sampleExcluding(n int, exclude ...uuid.UUID) []NodeMeta {
	excluded := make(map[uuid.UUID]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	m.mu.RLock()
	candidates := make([]NodeMeta, 0, len(m.peers))
	for id, peer := range m.peers {
		if !excluded[id] {
			candidates = append(candidates, peer)
		}
	}
	m.mu.RUnlock()

	m.rngMu.Lock()
	m.rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	m.rngMu.Unlock()

	if n > len(candidates) {
		n = len(candidates)
	}
	return candidates[:n]
}

// pickRandom returns one uniformly random peer, or false if the set is
// empty (spec.md §4.6 step 1).
func (m *Membership) pickRandom() (NodeMeta, bool) {
	m.mu.RLock()
	peers := make([]NodeMeta, 0, len(m.peers))
	for _, p := range m.peers {
		peers = append(peers, p)
	}
	m.mu.RUnlock()

	if len(peers) == 0 {
		return NodeMeta{}, false
	}

	m.rngMu.Lock()
	idx := m.rng.Intn(len(peers))
	m.rngMu.Unlock()

	return peers[idx], true
}

// Run drives the probe loop: once every rate, pick a random peer, probe
// it directly, fall back to indirect probing on timeout, and evict it if
// both phases fail (spec.md §4.6 "Probe loop").
func (m *Membership) Run(ctx context.Context) {
	ticker := time.NewTicker(m.rate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeRound()
		}
	}
}

func (m *Membership) probeRound() {
	target, ok := m.pickRandom()
	if !ok {
		return // empty peer set: no sends (spec.md §8 boundary).
	}

	if m.directProbe(target) {
		return
	}

	if m.indirectProbe(target, target.ID) {
		return
	}

	// Neither direct nor indirect succeeded: evict (spec.md §4.6 step 4).
	// Removes win over adds of a peer evicted in the same round (spec.md
	// §4.6 "Tie-breaks") because remove() re-checks presence under the
	// same lock a concurrent JoinIn add() would also need.
	if removed, ok := m.remove(target.ID); ok {
		m.bus.Post(Event{Type: EventMemberLeft, Node: removed})
	}
}
