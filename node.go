package hover

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	sean_seed "github.com/sean-/seed"
	"go.uber.org/zap"
)

// Node is the embedded API's root object (spec.md §6): join an implicit
// cluster over IP multicast, track live peers with a failure detector,
// exchange point-to-point messages, and disseminate broadcasts. Grounded
// on nakama-cluster/nakama_server.go's single constructor wiring
// peer/server/client/watcher together; here it wires
// Bus/Transport/Discovery/Membership/Gossip/Dispatcher/Ticker instead.
type Node struct {
	logger *zap.Logger
	config *Config
	local  NodeMeta

	bus        *Bus
	transport  *UnicastTransport
	discovery  *MulticastDiscovery
	dispatcher *Dispatcher
	membership *Membership
	gossip     *Gossip
	ticker     *DiscoveryTicker
	metrics    *Metrics

	ctx      context.Context
	cancelFn context.CancelFunc

	startOnce sync.Once
	stopOnce  sync.Once
}

// New constructs a Node from cfg without starting any network activity.
// Every internal task starts idempotently on the first call to Start.
func New(cfg *Config) (*Node, error) {
	logger, err := NewLogger(cfg.Logger)
	if err != nil {
		return nil, err
	}

	local, err := NewLocalNodeMeta(cfg)
	if err != nil {
		return nil, err
	}

	group, err := NewAddress(cfg.Discovery.MulticastGroup + ":" + strconv.Itoa(int(cfg.Discovery.MulticastPort)))
	if err != nil {
		return nil, newConfigError("discovery.multicast_group", err)
	}

	bus := NewBus(logger, 1024)

	transport, err := NewUnicastTransport(logger, bus, local.Address)
	if err != nil {
		return nil, err
	}

	discovery, err := NewMulticastDiscovery(logger, bus, local, group)
	if err != nil {
		transport.Close()
		return nil, err
	}

	var metrics *Metrics
	if cfg.Metrics.Enabled {
		metrics = NewMetrics(cfg.Metrics.Scope)
	}

	rng := newSeededRand()

	dispatcher := NewDispatcher(logger, bus, transport, local.Address)
	membership := NewMembership(logger, bus, dispatcher, metrics, local, rng, cfg)
	gossip := NewGossip(logger, bus, dispatcher, metrics, membership, rng, cfg)
	ticker := NewDiscoveryTicker(logger, bus, local, time.Duration(cfg.Discovery.RateMs)*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())

	n := &Node{
		logger:     logger,
		config:     cfg,
		local:      local,
		bus:        bus,
		transport:  transport,
		discovery:  discovery,
		dispatcher: dispatcher,
		membership: membership,
		gossip:     gossip,
		ticker:     ticker,
		metrics:    metrics,
		ctx:        ctx,
		cancelFn:   cancel,
	}

	// Wire the bus fan-out to every component that reacts to events
	// (spec.md §4's "Data flow"). Registered before Start, per the
	// registration discipline spec.md §5/§9 DESIGN NOTES call for.
	bus.AddListener(membership.HandleEvent)
	bus.AddListener(gossip.HandleEvent)
	bus.AddListener(dispatcher.HandleEvent)
	bus.AddListener(discovery.HandleEvent)
	bus.AddListener(ticker.HandleEvent)

	return n, nil
}

// newSeededRand seeds the process-global math/rand source from a secure
// source via sean-/seed (the same library memberlist's own dependency
// tree reaches for), then derives a private source for this Node's
// SWIM/gossip peer sampling so concurrent Nodes in the same process don't
// contend on the global lock.
func newSeededRand() *rand.Rand {
	sean_seed.MustInit()
	return rand.New(rand.NewSource(rand.Int63()))
}

// Start begins delivery on the event bus and all internal tasks:
// multicast send/receive, TCP accept, the SWIM probe loop, the gossip
// dissemination loop, and the discovery ticker (spec.md §5). Idempotent.
func (n *Node) Start() {
	n.startOnce.Do(func() {
		n.bus.Start(n.ctx)
		go n.transport.Serve()
		go n.discovery.Receive()
		go n.membership.Run(n.ctx)
		go n.gossip.Run(n.ctx)
		go n.ticker.Run(n.ctx)
	})
}

// Stop performs a best-effort shutdown: it announces a final Left
// datagram (spec.md §9 DESIGN NOTES "Discovery Left messages"), stops
// accepting new work, and closes the transport and discovery sockets.
// Errors from every component are aggregated with go-multierror rather
// than short-circuiting on the first failure.
func (n *Node) Stop() error {
	var result error
	n.stopOnce.Do(func() {
		n.discovery.AnnounceLeft()
		n.cancelFn()

		if err := n.transport.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		if err := n.discovery.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	})
	return result
}

// Logger returns the Node's configured logger, so an embedding
// application can log alongside it using the same sink and level.
func (n *Node) Logger() *zap.Logger {
	return n.logger
}

// Metrics returns the Node's Metrics, or nil if cfg.Metrics.Enabled was
// false at construction (spec.md §6 ambient metrics; SPEC_FULL.md's
// DOMAIN STACK "exposed as an optional tally.Scope on Config").
func (n *Node) Metrics() *Metrics {
	return n.metrics
}

// Cluster returns the membership-facing view of this Node (spec.md §6).
func (n *Node) Cluster() *Cluster {
	return &Cluster{membership: n.membership}
}

// Messaging returns the messaging-facing view of this Node (spec.md §6).
func (n *Node) Messaging() *Messaging {
	return &Messaging{dispatcher: n.dispatcher, bus: n.bus, transport: n.transport, local: n.local.Address}
}

// AddMsgListener registers f to be invoked for every inbound Request
// Message (spec.md §6).
func (n *Node) AddMsgListener(f func(Message)) {
	n.dispatcher.AddMessageListener(f)
}

// AddBroadcastListener registers f to be invoked for every first-seen
// inbound broadcast, never for locally-originated ones (spec.md §6).
func (n *Node) AddBroadcastListener(f func(BroadcastMessage)) {
	n.gossip.AddBroadcastListener(f)
}

// AddEventListener registers l to receive every Event Bus event (spec.md
// §6). Must be called before Start, or from a dedicated registrar
// listener rather than from within another listener's callback (spec.md
// §5).
func (n *Node) AddEventListener(l Listener) {
	n.bus.AddListener(l)
}

// Cluster is the membership-facing slice of the embedding API (spec.md
// §6).
type Cluster struct {
	membership *Membership
}

// Members returns a snapshot of NodeMeta currently believed alive.
func (c *Cluster) Members() []NodeMeta {
	return c.membership.Members()
}

// LocalNode returns the local node's own identity (SPEC_FULL.md
// supplemented feature 2).
func (c *Cluster) LocalNode() NodeMeta {
	return c.membership.LocalNode()
}

// Messaging is the point-to-point and broadcast-facing slice of the
// embedding API (spec.md §6).
type Messaging struct {
	dispatcher *Dispatcher
	bus        *Bus
	transport  *UnicastTransport
	local      Address
}

// Send delivers payload to addr as a one-off Request Message, with no
// expectation of a reply (spec.md §6 "messaging.send"). ReturnAddress is
// stamped with the local node's own address so a message listener on the
// recipient can reply without a separate rendezvous step (spec.md §3).
func (m *Messaging) Send(payload []byte, addr Address) error {
	corID, err := newCorrelationID()
	if err != nil {
		return err
	}
	return m.transport.SendMessage(Message{
		CorrelationID: corID,
		Type:          MessageRequest,
		Payload:       payload,
		ReturnAddress: m.local,
	}, addr)
}

// SendReceive sends payload to target as a Request and waits up to
// timeout for a Response (spec.md §6 "messaging.send_receive"). Returns a
// *TimeoutError or *SendError on failure.
func (m *Messaging) SendReceive(payload []byte, target Address, timeout time.Duration) (Message, error) {
	return m.dispatcher.SendRequest(payload, target, MessageRequest, timeout)
}

// Reply sends a Response Message carrying payload, correlated to corID,
// to addr (spec.md §6 "messaging.reply").
func (m *Messaging) Reply(corID [16]byte, payload []byte, addr Address) error {
	return m.dispatcher.Reply(corID, payload, addr)
}

// Broadcast disseminates payload cluster-wide via epidemic gossip
// (spec.md §6 "messaging.broadcast"). It posts BroadcastOut on the event
// bus; Gossip picks it up and inserts it into the send-buffer.
func (m *Messaging) Broadcast(payload []byte) {
	m.bus.Post(Event{Type: EventBroadcastOut, Payload: payload})
}
