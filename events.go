package hover

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// EventType tags the variant carried by an Event (spec.md §4.1).
type EventType uint8

const (
	EventEmpty EventType = iota
	EventJoinIn
	EventLeftIn
	EventJoinOut
	EventLeftOut
	EventMessageIn
	EventProbeIn
	EventProbeReqIn
	EventBroadcastIn
	EventBroadcastOut
	EventMemberAdded
	EventMemberLeft
)

// Event is the single strongly-typed value flowing through the Event Bus.
// Only the fields relevant to Type are populated; this mirrors the sum
// type spec.md §4.1 describes without requiring a type switch on an
// interface for the common case.
type Event struct {
	Type EventType

	Node    NodeMeta // JoinIn, LeftIn, JoinOut, LeftOut, MemberAdded, MemberLeft
	Message Message  // MessageIn

	CorrelationID uuid16   // ProbeIn, ProbeReqIn
	ProbeNode     NodeMeta // ProbeReqIn
	ReturnAddress Address  // ProbeIn, ProbeReqIn

	Broadcast BroadcastMessage // BroadcastIn
	Payload   []byte           // BroadcastOut
}

// uuid16 avoids importing the uuid package into every call site that only
// needs to carry a correlation id through the bus.
type uuid16 = [16]byte

// Listener receives every Event posted to the bus, in posting order
// relative to other events delivered to that same Listener (spec.md §4.1,
// §5). A Listener must not block for long and must not register or
// deregister listeners on the same bus from within the callback (spec.md
// §5) — a dedicated registrar listener is the supported pattern for that.
type Listener func(Event)

// Bus is the in-process event bus: single producer-side Post, fan-out
// delivery to every Listener registered at delivery time (spec.md §4.1).
// Grounded on original_source/hover/src/events.rs for the event taxonomy
// and on nakama-cluster/server.go's buffered-channel-plus-consumer-
// goroutine shape for the fan-out mechanism (DESIGN NOTES §9: "the event
// bus becomes a fan-out channel").
type Bus struct {
	logger *zap.Logger

	mu        sync.RWMutex
	listeners []Listener

	events  chan Event
	started bool
}

// NewBus constructs an unstarted event bus with the given outbound queue
// depth.
func NewBus(logger *zap.Logger, queueDepth int) *Bus {
	if queueDepth <= 0 {
		queueDepth = 256
	}
	return &Bus{
		logger: logger.Named("bus"),
		events: make(chan Event, queueDepth),
	}
}

// AddListener registers l for the lifetime of the bus (spec.md §4.1).
// Safe to call before Start; must not be called from within a Listener
// callback (spec.md §5).
func (b *Bus) AddListener(l Listener) {
	b.mu.Lock()
	b.listeners = append(b.listeners, l)
	b.mu.Unlock()
}

// Post enqueues event for delivery. Post never blocks the caller beyond a
// brief channel hand-off (spec.md §4.1); if the queue is saturated it logs
// and drops rather than apply back-pressure to arbitrary callers, since a
// slow listener must never stall a probe or gossip loop. Post returns
// ErrBusNotStarted, without enqueuing, if called before Start.
func (b *Bus) Post(e Event) error {
	b.mu.RLock()
	started := b.started
	b.mu.RUnlock()

	if !started {
		return ErrBusNotStarted
	}

	select {
	case b.events <- e:
	default:
		b.logger.Warn("event queue full, dropping event", zap.Uint8("type", uint8(e.Type)))
	}
	return nil
}

// Start begins delivery. Every event Post enqueues after Start is called
// is delivered, in posting order, to every listener registered at the
// moment of delivery (spec.md §4.1); events Post drops on a full queue are
// not. Start returns immediately; delivery runs on
// its own goroutine until ctx is done.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()

	go b.run(ctx)
}

func (b *Bus) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-b.events:
			b.deliver(e)
		}
	}
}

func (b *Bus) deliver(e Event) {
	b.mu.RLock()
	listeners := make([]Listener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.RUnlock()

	for _, l := range listeners {
		b.invoke(l, e)
	}
}

// invoke calls l with e, isolating the bus from a panicking listener
// (spec.md §4.1: "a listener that fails MUST NOT abort delivery to other
// listeners").
func (b *Bus) invoke(l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("listener panicked", zap.Any("recover", r))
		}
	}()
	l(e)
}
