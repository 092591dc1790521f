package hover

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestTwoNodeJoinVisibility exercises spec.md §8 scenario 2: two nodes on
// the same multicast group discover each other, within the test's
// 3-second window (the discovery rate here is 100ms), and each observes
// exactly one MemberAdded for the other.
func TestTwoNodeJoinVisibility(t *testing.T) {
	group := "239.27.14.9"
	groupPort := uint16(27403)

	cfgA := NewConfig()
	cfgA.Address = "127.0.0.1"
	cfgA.Port = 16210
	cfgA.Discovery.MulticastGroup = group
	cfgA.Discovery.MulticastPort = groupPort
	cfgA.Discovery.RateMs = 100
	cfgA.Discovery.ProbeTimeoutMs = 150
	cfgA.Discovery.ProbeReqTimeout = 150

	cfgB := NewConfig()
	cfgB.Address = "127.0.0.1"
	cfgB.Port = 16211
	cfgB.Discovery.MulticastGroup = group
	cfgB.Discovery.MulticastPort = groupPort
	cfgB.Discovery.RateMs = 100
	cfgB.Discovery.ProbeTimeoutMs = 150
	cfgB.Discovery.ProbeReqTimeout = 150

	nodeA, err := New(cfgA)
	require.NoError(t, err)
	t.Cleanup(func() { nodeA.Stop() })

	nodeB, err := New(cfgB)
	require.NoError(t, err)
	t.Cleanup(func() { nodeB.Stop() })

	var addedOnA, addedOnB int
	nodeA.AddEventListener(func(e Event) {
		if e.Type == EventMemberAdded && e.Node.Equal(nodeB.local) {
			addedOnA++
		}
	})
	nodeB.AddEventListener(func(e Event) {
		if e.Type == EventMemberAdded && e.Node.Equal(nodeA.local) {
			addedOnB++
		}
	})

	nodeA.Start()
	nodeB.Start()

	require.Eventually(t, func() bool {
		return containsNode(nodeA.Cluster().Members(), nodeB.local) &&
			containsNode(nodeB.Cluster().Members(), nodeA.local)
	}, 3*time.Second, 20*time.Millisecond)

	require.Equal(t, 1, addedOnA)
	require.Equal(t, 1, addedOnB)
}

func containsNode(members []NodeMeta, n NodeMeta) bool {
	for _, m := range members {
		if m.Equal(n) {
			return true
		}
	}
	return false
}

// TestRequestReplyOverEmbeddedMessaging exercises spec.md §8 scenario 5
// through the public Messaging API of two Nodes talking directly,
// without relying on multicast discovery to have converged.
func TestRequestReplyOverEmbeddedMessaging(t *testing.T) {
	cfgA := NewConfig()
	cfgA.Address = "127.0.0.1"
	cfgA.Port = 16220
	cfgA.Discovery.MulticastPort = 27404

	cfgB := NewConfig()
	cfgB.Address = "127.0.0.1"
	cfgB.Port = 16221
	cfgB.Discovery.MulticastPort = 27404

	nodeA, err := New(cfgA)
	require.NoError(t, err)
	t.Cleanup(func() { nodeA.Stop() })

	nodeB, err := New(cfgB)
	require.NoError(t, err)
	t.Cleanup(func() { nodeB.Stop() })

	nodeA.Start()
	nodeB.Start()

	nodeB.AddMsgListener(func(req Message) {
		err := nodeB.Messaging().Reply(req.CorrelationID, []byte{0xFF}, req.ReturnAddress)
		require.NoError(t, err)
	})

	resp, err := nodeA.Messaging().SendReceive(nil, nodeB.local.Address, time.Second)
	require.NoError(t, err)
	require.Equal(t, []byte{0xFF}, resp.Payload)
}
