package hover

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

// roundsProbability is the p in the rounds formula (spec.md §4.7).
const roundsProbability = 0.99

// bufferedBroadcast is gossip's per-message bookkeeping (spec.md §3):
// the BroadcastMessage, a signed rounds counter, and whether it is still
// in the send-phase (true) or the keep-phase (false).
type bufferedBroadcast struct {
	message BroadcastMessage
	rounds  int
	send    bool
}

// Gossip buffers outgoing/seen broadcasts, samples peers per round, and
// suppresses already-seen payloads (spec.md §4.7). A BroadcastMessage id
// is present in at most one of the two buffers at any time (spec.md §3
// invariant), enforced here because both buffers live behind the same
// lock, an entry moves from send to keep in one locked step, an inbound
// broadcast whose id is in either map is dropped before insertion, and a
// locally originated broadcast gets a fresh id.
//
// Grounded on nakama-cluster/message_queue.go's bounded buffer
// (Push/PopAll/Reset) generalized into the two-phase send/keep buffer,
// and nakama-cluster/message_cursor.go for the already-seen technique,
// simplified to a plain id-keyed map since spec.md requires exact
// at-most-one-buffer membership rather than an approximate ring cursor.
type Gossip struct {
	logger     *zap.Logger
	bus        *Bus
	dispatcher *Dispatcher
	metrics    *Metrics
	membership *Membership
	rng        *rand.Rand
	rngMu      sync.Mutex

	fanout      int
	rate        time.Duration
	messageKeep int

	mu   sync.Mutex
	send map[uuid.UUID]*bufferedBroadcast
	keep map[uuid.UUID]*bufferedBroadcast

	broadcastListeners []func(BroadcastMessage)
	listenersMu        sync.Mutex
}

// NewGossip constructs an empty Gossip instance.
func NewGossip(logger *zap.Logger, bus *Bus, dispatcher *Dispatcher, metrics *Metrics, membership *Membership, rng *rand.Rand, cfg *Config) *Gossip {
	return &Gossip{
		logger:      logger.Named("gossip"),
		bus:         bus,
		dispatcher:  dispatcher,
		metrics:     metrics,
		membership:  membership,
		rng:         rng,
		fanout:      cfg.Broadcast.Fanout,
		rate:        time.Duration(cfg.Broadcast.RateMs) * time.Millisecond,
		messageKeep: cfg.Broadcast.MessageKeep,
		send:        make(map[uuid.UUID]*bufferedBroadcast),
		keep:        make(map[uuid.UUID]*bufferedBroadcast),
	}
}

// AddBroadcastListener registers f to be invoked for every first-seen
// inbound broadcast (spec.md §6). f is never invoked for locally
// originated broadcasts.
func (g *Gossip) AddBroadcastListener(f func(BroadcastMessage)) {
	g.listenersMu.Lock()
	g.broadcastListeners = append(g.broadcastListeners, f)
	g.listenersMu.Unlock()
}

// initialRounds computes the send-phase retransmission budget (spec.md
// §4.7 "Round counting"). N<=1 always yields 1 regardless of fanout
// (spec.md §8 boundary).
func initialRounds(peerCount, fanout int) int {
	if peerCount <= 1 {
		return 1
	}
	n := float64(peerCount)
	val := 2 * math.Log(n*roundsProbability/(1-roundsProbability)) / float64(fanout)
	return int(math.Floor(val))
}

// HandleEvent reacts to BroadcastOut (application-initiated) and
// BroadcastIn (received from a peer) (spec.md §4.7).
func (g *Gossip) HandleEvent(e Event) {
	switch e.Type {
	case EventBroadcastOut:
		id, err := newBroadcastID()
		if err != nil {
			g.logger.Debug("broadcast id generation failed", zap.Error(err))
			return
		}
		g.insertSend(BroadcastMessage{ID: id, Payload: e.Payload})

	case EventBroadcastIn:
		g.onBroadcastIn(e.Broadcast)
	}
}

func (g *Gossip) onBroadcastIn(bm BroadcastMessage) {
	g.mu.Lock()
	_, inSend := g.send[bm.ID]
	_, inKeep := g.keep[bm.ID]
	g.mu.Unlock()

	if inSend || inKeep {
		return // already seen: drop silently (spec.md §4.7 "Inbound broadcast").
	}

	if g.metrics != nil {
		g.metrics.BroadcastReceived(len(bm.Payload))
	}

	g.listenersMu.Lock()
	listeners := make([]func(BroadcastMessage), len(g.broadcastListeners))
	copy(listeners, g.broadcastListeners)
	g.listenersMu.Unlock()
	for _, l := range listeners {
		l(bm)
	}

	// Re-insert as if it were local, with a fresh rounds count, so every
	// peer retransmits each unseen broadcast for a full round budget
	// (spec.md §4.7).
	g.insertSend(bm)
}

func (g *Gossip) insertSend(bm BroadcastMessage) {
	rounds := initialRounds(g.membership.Size(), g.fanout)
	g.mu.Lock()
	g.send[bm.ID] = &bufferedBroadcast{message: bm, rounds: rounds, send: true}
	g.mu.Unlock()
}

// Run drives the dissemination loop (spec.md §4.7 "Dissemination loop").
func (g *Gossip) Run(ctx context.Context) {
	ticker := time.NewTicker(g.rate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.round()
		}
	}
}

func (g *Gossip) round() {
	g.disseminate()
	g.ageSendBuffer()
	g.ageKeepBuffer()
}

// disseminate implements step 1: if the peer set and send-buffer are both
// non-empty, pick one send-buffer entry uniformly at random, fan it out
// to up to broadcast.fanout distinct peers, then decrement its rounds.
func (g *Gossip) disseminate() {
	if g.membership.Size() == 0 {
		return
	}

	entry := g.pickSendEntry()
	if entry == nil {
		return
	}

	peers := g.membership.sampleExcluding(g.fanout)
	for _, peer := range peers {
		if err := g.dispatcher.SendBroadcast(entry.message, peer.Address); err != nil {
			g.logger.Debug("broadcast send failed", zap.Error(err))
			continue
		}
		if g.metrics != nil {
			g.metrics.BroadcastSent(len(entry.message.Payload))
		}
	}

	g.mu.Lock()
	entry.rounds--
	g.mu.Unlock()
}

func (g *Gossip) pickSendEntry() *bufferedBroadcast {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.send) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(g.send))
	for id := range g.send {
		ids = append(ids, id)
	}

	g.rngMu.Lock()
	idx := g.rng.Intn(len(ids))
	g.rngMu.Unlock()

	return g.send[ids[idx]]
}

// ageSendBuffer implements step 2: move every send-buffer entry whose
// rounds is now strictly less than zero into the keep-buffer.
func (g *Gossip) ageSendBuffer() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for id, entry := range g.send {
		if entry.rounds < 0 {
			entry.send = false
			g.keep[id] = entry
			delete(g.send, id)
		}
	}
}

// ageKeepBuffer implements step 3: decrement every keep-buffer entry's
// rounds, evicting any whose rounds is strictly less than
// -broadcast.message_keep.
func (g *Gossip) ageKeepBuffer() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for id, entry := range g.keep {
		entry.rounds--
		if entry.rounds < -g.messageKeep {
			delete(g.keep, id)
		}
	}
}
