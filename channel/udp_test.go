//go:build linux || darwin

package channel

import (
	"net"
	"testing"
	"time"

	"github.com/joeycumines/nettle/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopbackMulticastInterface finds a multicast-capable loopback interface
// to join/leave the test group on, rather than hardcoding a platform's
// loopback interface name ("lo" on Linux, "lo0" on Darwin).
func loopbackMulticastInterface(t *testing.T) string {
	t.Helper()
	ifaces, err := net.Interfaces()
	require.NoError(t, err)
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp != 0 && ifi.Flags&net.FlagLoopback != 0 && ifi.Flags&net.FlagMulticast != 0 {
			return ifi.Name
		}
	}
	t.Skip("no up, multicast-capable loopback interface available in this environment")
	return ""
}

func TestUDPChannelSendReceiveOverLoopback(t *testing.T) {
	loop := runningLoop(t)

	a := NewUDPChannel()
	b := NewUDPChannel()
	_, err := await(t, a.Register(loop))
	require.NoError(t, err)
	_, err = await(t, b.Register(loop))
	require.NoError(t, err)

	// Bind alone activates a connectionless channel: no Connect handshake
	// is needed for either side to exchange datagrams.
	_, err = await(t, a.Bind(DatagramAddr{Host: "127.0.0.1", Port: 0}))
	require.NoError(t, err)
	_, err = await(t, b.Bind(DatagramAddr{Host: "127.0.0.1", Port: 0}))
	require.NoError(t, err)
	assert.True(t, a.IsActive())
	assert.True(t, b.IsActive())

	aAddr := a.LocalAddr().(DatagramAddr)
	bAddr := b.LocalAddr().(DatagramAddr)

	received := make(chan Envelope, 1)
	require.NoError(t, b.Pipeline().AddLast("collect", pipeline.HandlerFunc(func(_ *pipeline.HandlerContext, msg any) {
		received <- msg.(Envelope)
	})))

	write := a.Write(Envelope{Recipient: bAddr, Payload: []byte("hello over udp")})
	a.Flush()
	_, err = await(t, write)
	require.NoError(t, err)

	select {
	case env := <-received:
		assert.Equal(t, []byte("hello over udp"), env.Payload)
		assert.Equal(t, aAddr.Port, env.Sender.(DatagramAddr).Port)
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive datagram")
	}
}

// TestUDPChannelMulticastJoinLeaveGroup covers spec.md's multicast
// scenario: two datagram channels join a group, a send from one is
// observed at the other, and after LeaveGroup a subsequent send is not
// observed within a bounded window.
func TestUDPChannelMulticastJoinLeaveGroup(t *testing.T) {
	ifaceName := loopbackMulticastInterface(t)
	loop := runningLoop(t)

	const groupAddr = "230.0.0.1"
	group := net.ParseIP(groupAddr)

	sender := NewUDPChannel()
	receiver := NewUDPChannel()
	_, err := await(t, sender.Register(loop))
	require.NoError(t, err)
	_, err = await(t, receiver.Register(loop))
	require.NoError(t, err)

	_, err = await(t, sender.Bind(DatagramAddr{Host: "0.0.0.0", Port: 0}))
	require.NoError(t, err)
	_, err = await(t, receiver.Bind(DatagramAddr{Host: "0.0.0.0", Port: 0}))
	require.NoError(t, err)

	groupPort := receiver.LocalAddr().(DatagramAddr).Port

	require.NoError(t, receiver.JoinGroup(ifaceName, group))

	received := make(chan Envelope, 4)
	require.NoError(t, receiver.Pipeline().AddLast("collect", pipeline.HandlerFunc(func(_ *pipeline.HandlerContext, msg any) {
		received <- msg.(Envelope)
	})))

	send := func(payload string) {
		write := sender.Write(Envelope{
			Recipient: DatagramAddr{Host: groupAddr, Port: groupPort},
			Payload:   []byte(payload),
		})
		sender.Flush()
		_, err := await(t, write)
		require.NoError(t, err)
	}

	send("joined")
	select {
	case env := <-received:
		assert.Equal(t, []byte("joined"), env.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("did not observe multicast datagram after JoinGroup")
	}

	require.NoError(t, receiver.LeaveGroup(ifaceName, group))

	send("left")
	select {
	case env := <-received:
		t.Fatalf("unexpected datagram observed after LeaveGroup: %q", env.Payload)
	case <-time.After(500 * time.Millisecond):
		// Expected: nothing arrives once the group has been left.
	}
}
