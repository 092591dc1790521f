package hover

import (
	"net"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/require"
)

func TestNodeMetaEqualityByID(t *testing.T) {
	id, err := uuid.NewV4()
	require.NoError(t, err)

	a := NodeMeta{ID: id, Address: Address{IP: net.ParseIP("127.0.0.1").To4(), Port: 6202}}
	b := NodeMeta{ID: id, Address: Address{IP: net.ParseIP("10.0.0.5").To4(), Port: 9999}}

	require.True(t, a.Equal(b), "NodeMeta equality must be identifier-only, address must not matter")
}

func TestNodeMetaCloneIsIndependent(t *testing.T) {
	id, err := uuid.NewV4()
	require.NoError(t, err)

	original := NodeMeta{ID: id, Address: Address{IP: net.ParseIP("127.0.0.1").To4(), Port: 6202}}
	clone := original.Clone()

	clone.Address.IP[0] = 9
	require.NotEqual(t, original.Address.IP[0], clone.Address.IP[0])
}

func TestAddressEqual(t *testing.T) {
	a := Address{IP: net.ParseIP("127.0.0.1").To4(), Port: 6202}
	b := Address{IP: net.ParseIP("127.0.0.1").To4(), Port: 6202}
	c := Address{IP: net.ParseIP("127.0.0.1").To4(), Port: 6203}

	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
}

func TestNewAddress(t *testing.T) {
	addr, err := NewAddress("127.0.0.1:6202")
	require.NoError(t, err)
	require.Equal(t, uint16(6202), addr.Port)
	require.True(t, addr.IP.Equal(net.ParseIP("127.0.0.1")))
}
