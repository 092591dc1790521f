package hover

import (
	"errors"
	"io"
	"net"

	"go.uber.org/zap"
)

// UnicastTransport moves fully-framed Messages between peers over TCP
// (spec.md §4.2). A connection carries exactly one message: the sender
// writes the encoded Message and closes; the receiver reads until EOF and
// decodes the accumulated bytes.
type UnicastTransport struct {
	logger   *zap.Logger
	bus      *Bus
	listener net.Listener
	local    Address
}

// NewUnicastTransport binds the local TCP port. Returns a *BindError on
// failure (spec.md §7, fatal startup error).
func NewUnicastTransport(logger *zap.Logger, bus *Bus, local Address) (*UnicastTransport, error) {
	ln, err := net.Listen("tcp4", local.Network())
	if err != nil {
		return nil, newBindError("tcp", local.Network(), err)
	}
	return &UnicastTransport{
		logger:   logger.Named("transport"),
		bus:      bus,
		listener: ln,
		local:    local,
	}, nil
}

// Serve accepts connections until the listener is closed. Each accepted
// connection is handled on its own short-lived goroutine (spec.md §5); a
// decode failure or accept error on one connection never affects others
// (spec.md §4.2, §7).
func (t *UnicastTransport) Serve() {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				t.logger.Debug("listener closed, stopping", zap.Error(err))
				return
			}
			t.logger.Debug("accept failed", zap.Error(err))
			continue
		}
		go t.handle(conn)
	}
}

func (t *UnicastTransport) handle(conn net.Conn) {
	defer conn.Close()

	buf, err := io.ReadAll(conn)
	if err != nil {
		t.logger.Debug("read failed", zap.Error(err))
		return
	}

	msg, err := DecodeMessage(buf)
	if err != nil {
		t.logger.Debug("decode failed", zap.Error(err))
		return
	}

	t.bus.Post(Event{Type: EventMessageIn, Message: msg})
}

// Close stops accepting new connections.
func (t *UnicastTransport) Close() error {
	return t.listener.Close()
}

// Send opens a new TCP connection to addr, writes the full payload, and
// closes (spec.md §4.2). Returns a *SendError on connect or write failure.
func (t *UnicastTransport) Send(payload []byte, addr Address) error {
	conn, err := net.Dial("tcp4", addr.Network())
	if err != nil {
		return newSendError(addr, err)
	}
	defer conn.Close()

	if _, err := conn.Write(payload); err != nil {
		return newSendError(addr, err)
	}
	return nil
}

// SendMessage encodes and sends m to addr.
func (t *UnicastTransport) SendMessage(m Message, addr Address) error {
	b, err := EncodeMessage(m)
	if err != nil {
		return err
	}
	return t.Send(b, addr)
}
