package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/joeycumines/nettle/channel"
	"github.com/joeycumines/nettle/eventloop"
	"github.com/joeycumines/nettle/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runGroup(t *testing.T, size int) (*eventloop.Group, func()) {
	t.Helper()
	g, err := eventloop.NewGroup(size)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = g.Run(ctx)
	}()
	return g, func() {
		cancel()
		<-done
	}
}

func await(t *testing.T, p eventloop.Promise) (any, error) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("promise did not settle in time")
	}
	return p.Result()
}

// TestBootstrapConnectOverLocalTransport drives Bootstrap.Connect's full
// factory -> initializer -> register -> connect chain over the in-process
// LocalChannel transport, so it exercises real Register/Connect promise
// chaining without needing a real socket.
func TestBootstrapConnectOverLocalTransport(t *testing.T) {
	clientGroup, stopClient := runGroup(t, 1)
	defer stopClient()
	serverGroup, stopServer := runGroup(t, 1)
	defer stopServer()

	const id = "bootstrap-local-echo"
	listener := channel.ListenLocal(id)
	defer listener.Close()

	go func() {
		server, ok := listener.Accept()
		if !ok {
			return
		}
		server.Pipeline().AddLast("echo", pipeline.HandlerFunc(func(c *pipeline.HandlerContext, msg any) {
			c.Write(msg, server.Loop().NewPromise())
			c.Flush()
		}))
		server.Register(serverGroup.Next()).OnComplete(func(p eventloop.Promise) {
			if _, err := p.Result(); err != nil {
				return
			}
			// Arbitrary addresses: LocalChannel's write/read path keys off
			// the peer link established by DialLocal, not these fields.
			server.Connect(channel.LocalAddr{ID: "client:" + id}, channel.LocalAddr{ID: id})
		})
	}()

	replies := make(chan any, 1)
	b := NewBootstrap(clientGroup).
		Channel(func(opts ...channel.Option) channel.Channel {
			ch, err := channel.DialLocal(id, opts...)
			require.NoError(t, err)
			return ch
		}).
		Handler(func(ch channel.Channel) {
			ch.Pipeline().AddLast("collect", pipeline.HandlerFunc(func(_ *pipeline.HandlerContext, msg any) {
				replies <- msg
			}))
		})

	ch, connected := b.Connect(channel.LocalAddr{ID: id}, channel.LocalAddr{ID: "client"})
	_, err := await(t, connected)
	require.NoError(t, err)

	write := ch.Write("ping")
	ch.Flush()
	_, err = await(t, write)
	require.NoError(t, err)

	select {
	case msg := <-replies:
		assert.Equal(t, "ping", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive echoed reply")
	}

	_ = ch.Close()
}

// TestDialLocalFailsWhenNoListener checks the call a local-transport
// ChannelFactory wraps: DialLocal fails fast with ErrTransportClosed for an
// id with no registered listener. Bootstrap itself is not invoked.
func TestDialLocalFailsWhenNoListener(t *testing.T) {
	_, err := channel.DialLocal("no-such-listener-bootstrap-test")
	assert.ErrorIs(t, err, channel.ErrTransportClosed)
}
