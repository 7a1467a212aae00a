package infra

import (
	"context"
	"net"
	"testing"
	"time"

	"admission-gateway/middleware/admission/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listen(t *testing.T) net.Listener {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestAcceptGate_GatedConnCarriesAToken(t *testing.T) {
	pool := NewPriorityPool(1)
	inner := listen(t)
	gate := NewAcceptGate(inner, pool)

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := gate.Accept()
		require.NoError(t, err)
		accepted <- conn
	}()

	client, err := net.Dial("tcp", inner.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	var conn net.Conn
	select {
	case conn = <-accepted:
	case <-time.After(time.Second):
		t.Fatal("accept did not complete")
	}
	defer conn.Close()

	gc, ok := conn.(domain.Connection)
	require.True(t, ok)
	assert.True(t, gc.HasToken())
	assert.Equal(t, 0, pool.Snapshot().Available)
}

func TestAcceptGate_AcceptBlocksWhenPoolIsFull(t *testing.T) {
	pool := NewPriorityPool(1)
	inner := listen(t)
	gate := NewAcceptGate(inner, pool)

	holder, err := pool.Acquire(context.Background(), 0)
	require.NoError(t, err)

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := gate.Accept()
		require.NoError(t, err)
		accepted <- conn
	}()

	client, err := net.Dial("tcp", inner.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	select {
	case <-accepted:
		t.Fatal("accept completed while pool was full")
	case <-time.After(30 * time.Millisecond):
	}

	pool.Release(holder)

	select {
	case conn := <-accepted:
		defer conn.Close()
	case <-time.After(time.Second):
		t.Fatal("accept did not complete after pool slot freed")
	}
}

func TestGatedConn_CloseReleasesTokenExactlyOnce(t *testing.T) {
	pool := NewPriorityPool(1)
	inner := listen(t)
	gate := NewAcceptGate(inner, pool)

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, _ := gate.Accept()
		accepted <- conn
	}()
	client, err := net.Dial("tcp", inner.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	conn := <-accepted
	gc := conn.(*GatedConn)

	require.NoError(t, gc.Close())
	require.NoError(t, gc.Close()) // second close must not panic or double-release
	assert.Equal(t, 1, pool.Snapshot().Available)
}

func TestGatedConn_BorrowThenCloseDoesNotDoubleRelease(t *testing.T) {
	pool := NewPriorityPool(1)
	inner := listen(t)
	gate := NewAcceptGate(inner, pool)

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, _ := gate.Accept()
		accepted <- conn
	}()
	client, err := net.Dial("tcp", inner.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	conn := <-accepted
	gc := conn.(*GatedConn)

	assert.True(t, gc.BorrowToken())
	assert.False(t, gc.HasToken())
	assert.Equal(t, 1, pool.Snapshot().Available)

	require.NoError(t, gc.Close()) // nothing left to release
	assert.Equal(t, 1, pool.Snapshot().Available)
}

func TestGatedConn_RestoreTokenAfterBorrow(t *testing.T) {
	pool := NewPriorityPool(1)
	inner := listen(t)
	gate := NewAcceptGate(inner, pool)

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, _ := gate.Accept()
		accepted <- conn
	}()
	client, err := net.Dial("tcp", inner.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	conn := <-accepted
	gc := conn.(*GatedConn)

	require.True(t, gc.BorrowToken())
	require.NoError(t, gc.RestoreToken(context.Background(), domain.DemotePriority))
	assert.True(t, gc.HasToken())
	assert.Equal(t, 0, pool.Snapshot().Available)

	require.NoError(t, gc.Close())
	assert.Equal(t, 1, pool.Snapshot().Available)
}
