package transport

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firemon-dev/firemon/internal/log"
	"github.com/firemon-dev/firemon/internal/types"
)

func listen(t *testing.T) (net.Listener, string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return ln, host, port
}

func TestLocalDeliversBytesInOrder(t *testing.T) {
	ln, host, port := listen(t)

	payload := make(chan []byte, 16)
	states := make(chan types.ConnectionState, 16)

	l := NewLocal(log.NewLogger("error"), host, port)
	require.NoError(t, l.Start(
		func(data []byte) {
			buf := make([]byte, len(data))
			copy(buf, data)
			payload <- buf
		},
		func(s types.ConnectionState) { states <- s },
	))
	defer l.Stop()

	conn, err := ln.Accept()
	require.NoError(t, err)
	defer conn.Close()

	requireState(t, states, types.StateConnecting)
	requireState(t, states, types.StateConnected)

	_, err = conn.Write([]byte{0x46, 0x54, 0x01})
	require.NoError(t, err)

	select {
	case got := <-payload:
		assert.Equal(t, byte(0x46), got[0])
	case <-time.After(5 * time.Second):
		t.Fatal("no payload delivered")
	}
}

func TestLocalStopHaltsDelivery(t *testing.T) {
	ln, host, port := listen(t)

	payload := make(chan []byte, 16)
	l := NewLocal(log.NewLogger("error"), host, port)
	require.NoError(t, l.Start(
		func(data []byte) { payload <- append([]byte(nil), data...) },
		nil,
	))

	conn, err := ln.Accept()
	require.NoError(t, err)
	defer conn.Close()

	l.Stop()
	assert.Equal(t, types.StateDisconnected, l.State())

	// Writes after Stop go nowhere; the read loop has exited.
	conn.Write([]byte{0xaa})
	select {
	case <-payload:
		t.Fatal("payload delivered after Stop")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestLocalStartTwiceFails(t *testing.T) {
	_, host, port := listen(t)
	l := NewLocal(log.NewLogger("error"), host, port)
	require.NoError(t, l.Start(func([]byte) {}, nil))
	defer l.Stop()
	assert.Error(t, l.Start(func([]byte) {}, nil))
}

func TestLocalReconnectsAfterDrop(t *testing.T) {
	ln, host, port := listen(t)

	states := make(chan types.ConnectionState, 32)
	l := NewLocal(log.NewLogger("error"), host, port)
	require.NoError(t, l.Start(func([]byte) {}, func(s types.ConnectionState) { states <- s }))
	defer l.Stop()

	conn, err := ln.Accept()
	require.NoError(t, err)
	requireState(t, states, types.StateConnecting)
	requireState(t, states, types.StateConnected)

	// Drop the connection; the transport retries on its own.
	conn.Close()
	requireState(t, states, types.StateDisconnected)
	requireState(t, states, types.StateConnecting)

	conn2, err := ln.Accept()
	require.NoError(t, err)
	defer conn2.Close()
	requireState(t, states, types.StateConnected)
}

func requireState(t *testing.T, states <-chan types.ConnectionState, want types.ConnectionState) {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case got := <-states:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("state %v never reported", want)
		}
	}
}
