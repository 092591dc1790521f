package hover

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newLoopbackPair builds two dispatchers, each with its own bound
// transport and bus, wired so messages sent between them are actually
// delivered over TCP on localhost.
func newLoopbackPair(t *testing.T) (a, b *Dispatcher, busA, busB *Bus) {
	t.Helper()
	logger := zap.NewNop()

	busA = NewBus(logger, 16)
	transportA, err := NewUnicastTransport(logger, busA, Address{IP: net.ParseIP("127.0.0.1").To4(), Port: 0})
	require.NoError(t, err)
	t.Cleanup(func() { transportA.Close() })
	go transportA.Serve()

	busB = NewBus(logger, 16)
	transportB, err := NewUnicastTransport(logger, busB, Address{IP: net.ParseIP("127.0.0.1").To4(), Port: 0})
	require.NoError(t, err)
	t.Cleanup(func() { transportB.Close() })
	go transportB.Serve()

	addrA := transportA.listener.Addr().(*net.TCPAddr)
	addrB := transportB.listener.Addr().(*net.TCPAddr)

	a = NewDispatcher(logger, busA, transportA, Address{IP: net.ParseIP("127.0.0.1").To4(), Port: uint16(addrA.Port)})
	b = NewDispatcher(logger, busB, transportB, Address{IP: net.ParseIP("127.0.0.1").To4(), Port: uint16(addrB.Port)})

	ctxA, cancelA := context.WithCancel(context.Background())
	ctxB, cancelB := context.WithCancel(context.Background())
	t.Cleanup(cancelA)
	t.Cleanup(cancelB)
	busA.Start(ctxA)
	busB.Start(ctxB)
	busA.AddListener(a.HandleEvent)
	busB.AddListener(b.HandleEvent)

	return a, b, busA, busB
}

func TestRequestResponseCorrelation(t *testing.T) {
	a, b, _, _ := newLoopbackPair(t)

	b.AddMessageListener(func(req Message) {
		err := b.Reply(req.CorrelationID, []byte{0xFF}, req.ReturnAddress)
		require.NoError(t, err)
	})

	bAddr := b.local
	resp, err := a.SendRequest(nil, bAddr, MessageRequest, time.Second)
	require.NoError(t, err)
	require.Equal(t, []byte{0xFF}, resp.Payload)
}

func TestLateResponseToSameCorrelationIDIsDropped(t *testing.T) {
	a, _, _, _ := newLoopbackPair(t)

	corID, err := newCorrelationID()
	require.NoError(t, err)

	// No sink registered for corID: delivering a Response must be a no-op,
	// not a panic, and must not leak into a later registration under the
	// same id.
	a.deliverResponse(Message{CorrelationID: corID, Type: MessageResponse})

	sink := &responseSink{ch: make(chan Message, 1)}
	a.responses.Store(corID, sink)
	a.deliverResponse(Message{CorrelationID: corID, Type: MessageResponse, Payload: []byte("first")})
	a.deliverResponse(Message{CorrelationID: corID, Type: MessageResponse, Payload: []byte("second")})

	select {
	case got := <-sink.ch:
		require.Equal(t, []byte("first"), got.Payload)
	default:
		t.Fatal("expected the first response to be queued")
	}

	// Sink was removed by LoadAndDelete on first delivery, so the second
	// deliverResponse call found nothing to deliver to.
	select {
	case <-sink.ch:
		t.Fatal("a second response must not be delivered once the sink is consumed")
	default:
	}
}

func TestSendRequestTimesOutAndRemovesSink(t *testing.T) {
	a, _, _, _ := newLoopbackPair(t)

	// Nobody is listening on this address, so the send itself may fail
	// fast, or the request may simply go unanswered; either way
	// SendRequest must return an error and must not leak the sink.
	unreachable := Address{IP: net.ParseIP("127.0.0.1").To4(), Port: 1}
	_, err := a.SendRequest(nil, unreachable, MessageRequest, 50*time.Millisecond)
	require.Error(t, err)

	count := 0
	a.responses.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	require.Equal(t, 0, count, "response sink must be removed on every exit path")
}
