package hover

import (
	"fmt"
	"net"

	sockaddr "github.com/hashicorp/go-sockaddr"
	"github.com/gofrs/uuid"
)

// Address is an IPv4 + port pair, used both for node endpoints and for the
// multicast discovery group (spec.md §3).
type Address struct {
	IP   net.IP
	Port uint16
}

// String renders the address as host:port.
func (a Address) String() string {
	return fmt.Sprintf("%s:%d", a.IP.String(), a.Port)
}

// Network returns the dial/listen string for net.Dial-family calls.
func (a Address) Network() string {
	return fmt.Sprintf("%s:%d", a.IP.String(), a.Port)
}

// Equal reports whether two addresses name the same IP and port.
func (a Address) Equal(other Address) bool {
	return a.IP.Equal(other.IP) && a.Port == other.Port
}

// NewAddress parses a "host:port" string into an Address.
func NewAddress(s string) (Address, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Address{}, fmt.Errorf("hover: invalid address %q: %w", s, err)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return Address{}, fmt.Errorf("hover: cannot resolve host %q", host)
		}
		ip = ips[0]
	}

	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return Address{}, fmt.Errorf("hover: invalid port %q: %w", portStr, err)
	}

	return Address{IP: ip.To4(), Port: uint16(port)}, nil
}

// NodeMeta is a peer identity: a stable 128-bit id plus the peer's unicast
// TCP address (spec.md §3). Two NodeMetas are equal iff their ids are
// equal.
type NodeMeta struct {
	ID      uuid.UUID
	Address Address
}

// Equal reports identifier equality — the sole equality relation the spec
// defines for NodeMeta.
func (n NodeMeta) Equal(other NodeMeta) bool {
	return n.ID == other.ID
}

// Clone returns a value copy. The IP byte slice, NodeMeta's only reference
// field, is copied too, so changes to the clone's IP never reach the
// original.
func (n NodeMeta) Clone() NodeMeta {
	ipCopy := make(net.IP, len(n.Address.IP))
	copy(ipCopy, n.Address.IP)
	return NodeMeta{ID: n.ID, Address: Address{IP: ipCopy, Port: n.Address.Port}}
}

func (n NodeMeta) String() string {
	return fmt.Sprintf("%s@%s", n.ID, n.Address)
}

// NewLocalNodeMeta builds the node's own identity: a freshly generated id
// and the configured (or auto-detected) bind address.
func NewLocalNodeMeta(cfg *Config) (NodeMeta, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return NodeMeta{}, fmt.Errorf("hover: generating node id: %w", err)
	}

	ipStr := cfg.Address
	if ipStr == "" || ipStr == "0.0.0.0" {
		detected, err := LocalIP()
		if err != nil {
			return NodeMeta{}, newConfigError("address", err)
		}
		ipStr = detected
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return NodeMeta{}, newConfigError("address", fmt.Errorf("not a valid IP: %q", ipStr))
	}

	return NodeMeta{ID: id, Address: Address{IP: ip.To4(), Port: cfg.Port}}, nil
}

// LocalIP returns the host's private IP address, used to default
// Config.Address when the embedder leaves it unset. Grounded on
// nakama-cluster/ip.go's identical helper.
func LocalIP() (string, error) {
	return sockaddr.GetPrivateIP()
}
