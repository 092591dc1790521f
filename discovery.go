package hover

import (
	"context"
	"errors"
	"net"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/net/ipv4"
)

// maxDatagramSize bounds a DiscoveryMessage datagram (spec.md §4.4).
const maxDatagramSize = 256

// MulticastDiscovery announces local presence on an IPv4 multicast group
// and converts peers' announcements into JoinIn/LeftIn bus events
// (spec.md §4.4). Two sockets are used: a connected send socket, and a
// SO_REUSEPORT receive socket joined to the multicast group, so several
// hover processes can share one host during local development and
// testing (spec.md §9 DESIGN NOTES: "Multicast loopback").
type MulticastDiscovery struct {
	logger *zap.Logger
	bus    *Bus
	local  NodeMeta

	group Address

	sendConn *net.UDPConn
	recvPC   *ipv4.PacketConn
	recvConn net.PacketConn
}

// NewMulticastDiscovery binds both sockets and joins the multicast group.
// Returns a *BindError on failure.
func NewMulticastDiscovery(logger *zap.Logger, bus *Bus, local NodeMeta, group Address) (*MulticastDiscovery, error) {
	groupUDPAddr := &net.UDPAddr{IP: group.IP, Port: int(group.Port)}

	sendConn, err := net.DialUDP("udp4", nil, groupUDPAddr)
	if err != nil {
		return nil, newBindError("udp-send", group.Network(), err)
	}

	lc := net.ListenConfig{Control: reusePortControl}
	pc, err := lc.ListenPacket(context.Background(), "udp4", net.JoinHostPort("", strconv.Itoa(int(group.Port))))
	if err != nil {
		sendConn.Close()
		return nil, newBindError("udp-recv", group.Network(), err)
	}

	recvPC := ipv4.NewPacketConn(pc)
	ifaces, _ := net.Interfaces()
	joined := false
	for _, iface := range ifaces {
		if err := recvPC.JoinGroup(&iface, groupUDPAddr); err == nil {
			joined = true
		}
	}
	if !joined {
		// Fall back to the default interface.
		_ = recvPC.JoinGroup(nil, groupUDPAddr)
	}

	return &MulticastDiscovery{
		logger:   logger.Named("discovery"),
		bus:      bus,
		local:    local,
		group:    group,
		sendConn: sendConn,
		recvPC:   recvPC,
		recvConn: pc,
	}, nil
}

// Receive reads datagrams until the socket is closed. Each datagram is
// decoded into a DiscoveryMessage and converted into a JoinIn or LeftIn
// event; a decode failure drops just that datagram (spec.md §4.4, §7).
// Datagrams from the local node are accepted and posted like any other —
// Membership drops them by identifier equality, not by loopback
// suppression (spec.md §4.4, §9 DESIGN NOTES).
func (d *MulticastDiscovery) Receive() {
	buf := make([]byte, maxDatagramSize)
	for {
		n, _, _, err := d.recvPC.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				d.logger.Debug("multicast socket closed, stopping", zap.Error(err))
				return
			}
			d.logger.Debug("multicast read failed", zap.Error(err))
			continue
		}

		msg, err := DecodeDiscoveryMessage(buf[:n])
		if err != nil {
			d.logger.Debug("discovery decode failed", zap.Error(err))
			continue
		}

		switch msg.Tag {
		case DiscoveryJoined:
			d.bus.Post(Event{Type: EventJoinIn, Node: msg.Node})
		case DiscoveryLeft:
			d.bus.Post(Event{Type: EventLeftIn, Node: msg.Node})
		}
	}
}

// announce encodes and sends a DiscoveryMessage for the local node.
func (d *MulticastDiscovery) announce(tag DiscoveryTag) {
	b, err := EncodeDiscoveryMessage(DiscoveryMessage{Tag: tag, Node: d.local})
	if err != nil {
		d.logger.Debug("discovery encode failed", zap.Error(err))
		return
	}
	if len(b) > maxDatagramSize {
		d.logger.Debug("discovery message exceeds datagram bound", zap.Int("size", len(b)))
		return
	}
	if _, err := d.sendConn.Write(b); err != nil {
		d.logger.Debug("multicast send failed", zap.Error(err))
	}
}

// HandleEvent reacts to bus events the Discovery Ticker produces: every
// JoinOut is announced as Joined, every LeftOut as Left (spec.md §4.4).
func (d *MulticastDiscovery) HandleEvent(e Event) {
	switch e.Type {
	case EventJoinOut:
		d.announce(DiscoveryJoined)
	case EventLeftOut:
		d.announce(DiscoveryLeft)
	}
}

// Close stops both sockets. Best-effort: the caller (Node.Stop) sends a
// final Left announcement before calling Close (spec.md §9 DESIGN NOTES:
// "Discovery Left messages").
func (d *MulticastDiscovery) Close() error {
	d.recvPC.Close()
	return d.sendConn.Close()
}

// AnnounceLeft sends a best-effort Left datagram for the local node. SWIM
// remains the authoritative failure detector regardless of whether this
// datagram is delivered (spec.md §9 DESIGN NOTES).
func (d *MulticastDiscovery) AnnounceLeft() {
	d.announce(DiscoveryLeft)
}
