package hover

import (
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

// msgListener is invoked for every inbound Request Message (spec.md §6
// "add_msg_listener").
type msgListener func(Message)

// responseSink is the single-slot rendezvous a request-with-response
// caller waits on (spec.md §4.8, §5, §9 DESIGN NOTES "Response table").
type responseSink struct {
	ch chan Message
}

// Dispatcher demultiplexes MessageIn events by MessageType (spec.md
// §4.8): Request fans out to registered listeners, Response is routed to
// its one registered sink by correlation id, Probe/ProbeReq/Broadcast are
// decoded and re-posted as their own typed events. It also implements the
// request-with-response primitive every Probe/ProbeReq send and every
// application send_receive call uses.
//
// Grounded on nakama-cluster/message.go's Message (reply/err channel
// rendezvous) and nakama-cluster/delegate.go's recvReplyMessage /
// sendReplyMessage correlate-then-remove pattern.
type Dispatcher struct {
	logger    *zap.Logger
	bus       *Bus
	transport *UnicastTransport
	local     Address

	mu        sync.Mutex
	listeners []msgListener

	responses sync.Map // correlation id (uuid.UUID) -> *responseSink
}

// NewDispatcher constructs a Dispatcher bound to transport for outbound
// sends and local for the ReturnAddress stamped on every request it
// issues.
func NewDispatcher(logger *zap.Logger, bus *Bus, transport *UnicastTransport, local Address) *Dispatcher {
	return &Dispatcher{
		logger:    logger.Named("dispatcher"),
		bus:       bus,
		transport: transport,
		local:     local,
	}
}

// AddMessageListener registers f to be invoked for every inbound Request
// Message (spec.md §6).
func (d *Dispatcher) AddMessageListener(f func(Message)) {
	d.mu.Lock()
	d.listeners = append(d.listeners, f)
	d.mu.Unlock()
}

// HandleEvent is the Dispatcher's bus Listener: it reacts to MessageIn.
func (d *Dispatcher) HandleEvent(e Event) {
	if e.Type != EventMessageIn {
		return
	}
	d.dispatch(e.Message)
}

func (d *Dispatcher) dispatch(msg Message) {
	switch msg.Type {
	case MessageRequest:
		d.mu.Lock()
		listeners := make([]msgListener, len(d.listeners))
		copy(listeners, d.listeners)
		d.mu.Unlock()
		for _, l := range listeners {
			l(msg)
		}

	case MessageResponse:
		d.deliverResponse(msg)

	case MessageProbe:
		d.bus.Post(Event{
			Type:          EventProbeIn,
			CorrelationID: msg.CorrelationID,
			ReturnAddress: msg.ReturnAddress,
		})

	case MessageProbeReq:
		payload, err := DecodeProbeReqPayload(msg.Payload)
		if err != nil {
			d.logger.Debug("probe-req decode failed", zap.Error(err))
			return
		}
		d.bus.Post(Event{
			Type:          EventProbeReqIn,
			CorrelationID: msg.CorrelationID,
			ProbeNode:     payload.Node,
			ReturnAddress: msg.ReturnAddress,
		})

	case MessageBroadcast:
		bm, err := DecodeBroadcastMessage(msg.Payload)
		if err != nil {
			d.logger.Debug("broadcast decode failed", zap.Error(err))
			return
		}
		d.bus.Post(Event{Type: EventBroadcastIn, Broadcast: bm})
	}
}

func (d *Dispatcher) deliverResponse(msg Message) {
	v, ok := d.responses.LoadAndDelete(msg.CorrelationID)
	if !ok {
		return // no sink registered: timed out, already delivered, or unsolicited. Drop (spec.md §4.8).
	}
	sink := v.(*responseSink)
	select {
	case sink.ch <- msg:
	default:
		// Sink already satisfied or abandoned; nothing to do.
	}
}

// SendRequest registers a single-slot response sink under a fresh
// correlation id, sends a Message of the given type to addr, and waits up
// to timeout for the matching Response. The sink is removed on every exit
// path: success, timeout, or send error (spec.md §4.8, §9 DESIGN NOTES).
func (d *Dispatcher) SendRequest(payload []byte, addr Address, msgType MessageType, timeout time.Duration) (Message, error) {
	corID, err := newCorrelationID()
	if err != nil {
		return Message{}, err
	}

	sink := &responseSink{ch: make(chan Message, 1)}
	d.responses.Store(corID, sink)
	defer d.responses.Delete(corID)

	req := Message{
		CorrelationID: corID,
		Type:          msgType,
		Payload:       payload,
		ReturnAddress: d.local,
	}

	if err := d.transport.SendMessage(req, addr); err != nil {
		return Message{}, err
	}

	select {
	case resp := <-sink.ch:
		return resp, nil
	case <-time.After(timeout):
		return Message{}, &TimeoutError{CorrelationID: corID.String()}
	}
}

// Reply sends a Response Message carrying payload, correlated to corID,
// to addr (spec.md §6 "messaging.reply"). Used both by application
// message listeners and by Membership's probe/probe-req replies.
func (d *Dispatcher) Reply(corID uuid.UUID, payload []byte, addr Address) error {
	return d.transport.SendMessage(Message{
		CorrelationID: corID,
		Type:          MessageResponse,
		Payload:       payload,
		ReturnAddress: d.local,
	}, addr)
}

// SendBroadcast wraps bm as a unicast Broadcast Message and sends it to
// addr; used by Gossip's dissemination loop.
func (d *Dispatcher) SendBroadcast(bm BroadcastMessage, addr Address) error {
	payload, err := EncodeBroadcastMessage(bm)
	if err != nil {
		return err
	}

	corID, err := newCorrelationID()
	if err != nil {
		return err
	}

	return d.transport.SendMessage(Message{
		CorrelationID: corID,
		Type:          MessageBroadcast,
		Payload:       payload,
		ReturnAddress: d.local,
	}, addr)
}
