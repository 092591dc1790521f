package hover

import (
	"bytes"

	"github.com/hashicorp/go-msgpack/codec"
)

// msgpackHandle is shared by every encode/decode call. hashicorp/go-msgpack
// is the codec hashicorp/memberlist itself uses for its wire structures;
// we adopt it for the same reason: a small, dependency-light, deterministic
// binary codec well suited to short-lived gossip/membership messages.
var msgpackHandle = &codec.MsgpackHandle{}

func init() {
	msgpackHandle.Canonical = true
}

// encode serializes v with the shared msgpack handle.
func encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, msgpackHandle)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decode deserializes b into out with the shared msgpack handle.
func decode(b []byte, out interface{}) error {
	dec := codec.NewDecoder(bytes.NewReader(b), msgpackHandle)
	return dec.Decode(out)
}

// wire DTOs. Kept distinct from the domain types (NodeMeta, Message, ...)
// so the on-the-wire shape is explicit and stable regardless of how the
// in-memory types evolve (e.g. net.IP's underlying representation).

type wireNodeMeta struct {
	ID   [16]byte
	IP   []byte
	Port uint16
}

func toWireNodeMeta(n NodeMeta) wireNodeMeta {
	return wireNodeMeta{ID: n.ID, IP: []byte(n.Address.IP), Port: n.Address.Port}
}

func fromWireNodeMeta(w wireNodeMeta) NodeMeta {
	return NodeMeta{ID: w.ID, Address: Address{IP: append([]byte(nil), w.IP...), Port: w.Port}}
}

type wireMessage struct {
	CorrelationID [16]byte
	Type          uint8
	Payload       []byte
	ReturnNode    wireNodeMeta
}

// EncodeMessage encodes a Message for transport over a single TCP
// connection (spec.md §4.3).
func EncodeMessage(m Message) ([]byte, error) {
	w := wireMessage{
		CorrelationID: m.CorrelationID,
		Type:          uint8(m.Type),
		Payload:       m.Payload,
		ReturnNode:    wireNodeMeta{IP: []byte(m.ReturnAddress.IP), Port: m.ReturnAddress.Port},
	}
	b, err := encode(w)
	if err != nil {
		return nil, newDecodeError("Message", err)
	}
	return b, nil
}

// DecodeMessage is the inverse of EncodeMessage.
func DecodeMessage(b []byte) (Message, error) {
	var w wireMessage
	if err := decode(b, &w); err != nil {
		return Message{}, newDecodeError("Message", err)
	}
	return Message{
		CorrelationID: w.CorrelationID,
		Type:          MessageType(w.Type),
		Payload:       w.Payload,
		ReturnAddress: Address{IP: append([]byte(nil), w.ReturnNode.IP...), Port: w.ReturnNode.Port},
	}, nil
}

type wireDiscoveryMessage struct {
	Tag  uint8
	Node wireNodeMeta
}

// EncodeDiscoveryMessage encodes a DiscoveryMessage for a single UDP
// multicast datagram. Callers must keep the result within the 256-byte
// bound spec.md §4.4 requires.
func EncodeDiscoveryMessage(m DiscoveryMessage) ([]byte, error) {
	w := wireDiscoveryMessage{Tag: uint8(m.Tag), Node: toWireNodeMeta(m.Node)}
	b, err := encode(w)
	if err != nil {
		return nil, newDecodeError("DiscoveryMessage", err)
	}
	return b, nil
}

// DecodeDiscoveryMessage is the inverse of EncodeDiscoveryMessage.
func DecodeDiscoveryMessage(b []byte) (DiscoveryMessage, error) {
	var w wireDiscoveryMessage
	if err := decode(b, &w); err != nil {
		return DiscoveryMessage{}, newDecodeError("DiscoveryMessage", err)
	}
	return DiscoveryMessage{Tag: DiscoveryTag(w.Tag), Node: fromWireNodeMeta(w.Node)}, nil
}

type wireBroadcastMessage struct {
	ID      [16]byte
	Payload []byte
}

// EncodeBroadcastMessage encodes a BroadcastMessage, the payload gossip
// carries inside a unicast Broadcast Message.
func EncodeBroadcastMessage(m BroadcastMessage) ([]byte, error) {
	w := wireBroadcastMessage{ID: m.ID, Payload: m.Payload}
	b, err := encode(w)
	if err != nil {
		return nil, newDecodeError("BroadcastMessage", err)
	}
	return b, nil
}

// DecodeBroadcastMessage is the inverse of EncodeBroadcastMessage.
func DecodeBroadcastMessage(b []byte) (BroadcastMessage, error) {
	var w wireBroadcastMessage
	if err := decode(b, &w); err != nil {
		return BroadcastMessage{}, newDecodeError("BroadcastMessage", err)
	}
	return BroadcastMessage{ID: w.ID, Payload: w.Payload}, nil
}

type wireProbeReqPayload struct {
	Node wireNodeMeta
}

// EncodeProbeReqPayload encodes the payload of a ProbeReq Message.
func EncodeProbeReqPayload(p ProbeReqPayload) ([]byte, error) {
	w := wireProbeReqPayload{Node: toWireNodeMeta(p.Node)}
	b, err := encode(w)
	if err != nil {
		return nil, newDecodeError("ProbeReqPayload", err)
	}
	return b, nil
}

// DecodeProbeReqPayload is the inverse of EncodeProbeReqPayload.
func DecodeProbeReqPayload(b []byte) (ProbeReqPayload, error) {
	var w wireProbeReqPayload
	if err := decode(b, &w); err != nil {
		return ProbeReqPayload{}, newDecodeError("ProbeReqPayload", err)
	}
	return ProbeReqPayload{Node: fromWireNodeMeta(w.Node)}, nil
}
