package hover

import (
	"net"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/require"
)

func mustUUID(t *testing.T) uuid.UUID {
	t.Helper()
	id, err := uuid.NewV4()
	require.NoError(t, err)
	return id
}

func TestMessageRoundTrip(t *testing.T) {
	m := Message{
		CorrelationID: mustUUID(t),
		Type:          MessageRequest,
		Payload:       []byte{0x01, 0x02, 0x03},
		ReturnAddress: Address{IP: net.ParseIP("127.0.0.1").To4(), Port: 6202},
	}

	b, err := EncodeMessage(m)
	require.NoError(t, err)

	out, err := DecodeMessage(b)
	require.NoError(t, err)

	require.Equal(t, m.CorrelationID, out.CorrelationID)
	require.Equal(t, m.Type, out.Type)
	require.Equal(t, m.Payload, out.Payload)
	require.True(t, m.ReturnAddress.Equal(out.ReturnAddress))
}

func TestDiscoveryMessageRoundTrip(t *testing.T) {
	node := NodeMeta{ID: mustUUID(t), Address: Address{IP: net.ParseIP("192.168.1.5").To4(), Port: 6203}}
	dm := DiscoveryMessage{Tag: DiscoveryJoined, Node: node}

	b, err := EncodeDiscoveryMessage(dm)
	require.NoError(t, err)
	require.LessOrEqual(t, len(b), maxDatagramSize)

	out, err := DecodeDiscoveryMessage(b)
	require.NoError(t, err)
	require.Equal(t, DiscoveryJoined, out.Tag)
	require.True(t, node.Equal(out.Node))
	require.True(t, node.Address.Equal(out.Node.Address))
}

func TestBroadcastMessageRoundTrip(t *testing.T) {
	bm := BroadcastMessage{ID: mustUUID(t), Payload: []byte("hello")}

	b, err := EncodeBroadcastMessage(bm)
	require.NoError(t, err)

	out, err := DecodeBroadcastMessage(b)
	require.NoError(t, err)
	require.Equal(t, bm.ID, out.ID)
	require.Equal(t, bm.Payload, out.Payload)
}

func TestProbeReqPayloadRoundTrip(t *testing.T) {
	node := NodeMeta{ID: mustUUID(t), Address: Address{IP: net.ParseIP("10.0.0.1").To4(), Port: 6204}}
	p := ProbeReqPayload{Node: node}

	b, err := EncodeProbeReqPayload(p)
	require.NoError(t, err)

	out, err := DecodeProbeReqPayload(b)
	require.NoError(t, err)
	require.True(t, node.Equal(out.Node))
}

func TestDecodeMessageGarbageReturnsDecodeError(t *testing.T) {
	_, err := DecodeMessage([]byte{0xff, 0x00, 0x01})
	require.Error(t, err)
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
}
