package hover

import (
	"github.com/gofrs/uuid"
)

// MessageType tags the kind of payload carried by a unicast Message
// (spec.md §3).
type MessageType uint8

const (
	MessageRequest MessageType = iota
	MessageResponse
	MessageProbe
	MessageProbeReq
	MessageBroadcast
)

func (t MessageType) String() string {
	switch t {
	case MessageRequest:
		return "Request"
	case MessageResponse:
		return "Response"
	case MessageProbe:
		return "Probe"
	case MessageProbeReq:
		return "ProbeReq"
	case MessageBroadcast:
		return "Broadcast"
	default:
		return "Unknown"
	}
}

// Message is the unicast wire envelope (spec.md §3): a correlation id, a
// type tag, an opaque payload, and a return address so the recipient can
// reply without a separate rendezvous step.
type Message struct {
	CorrelationID uuid.UUID
	Type          MessageType
	Payload       []byte
	ReturnAddress Address
}

// DiscoveryTag distinguishes the two multicast announcement kinds
// (spec.md §3).
type DiscoveryTag uint8

const (
	DiscoveryJoined DiscoveryTag = iota
	DiscoveryLeft
)

// DiscoveryMessage is the multicast-wire envelope (spec.md §3).
type DiscoveryMessage struct {
	Tag  DiscoveryTag
	Node NodeMeta
}

// BroadcastMessage is the gossip envelope carried inside a unicast
// Broadcast Message (spec.md §3). Its ID is unique to the broadcast
// itself, distinct from the carrier Message's correlation id.
type BroadcastMessage struct {
	ID      uuid.UUID
	Payload []byte
}

// ProbeReqPayload carries the NodeMeta of the target being indirectly
// probed (spec.md §3).
type ProbeReqPayload struct {
	Node NodeMeta
}

// newCorrelationID generates a fresh 128-bit correlation id for a
// request-with-response call or a reply.
func newCorrelationID() (uuid.UUID, error) {
	return uuid.NewV4()
}

// newBroadcastID generates a fresh 128-bit id for a locally-originated
// broadcast.
func newBroadcastID() (uuid.UUID, error) {
	return uuid.NewV4()
}
