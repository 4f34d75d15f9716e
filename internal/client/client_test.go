package client

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iamBelugaa/kvs/internal/engine/logstore"
	"github.com/iamBelugaa/kvs/internal/server"
	"github.com/iamBelugaa/kvs/pkg/options"
)

// serve runs a server over dir and returns its address and a stop func
// that is safe to call more than once.
func serve(t *testing.T, dir string) (string, func()) {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()

	o := options.Apply(options.WithDataDir(dir))
	store, err := logstore.Open(context.Background(), log, &o)
	require.NoError(t, err)

	srv, err := server.New(store, "127.0.0.1:0", server.WithLogger(log))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			assert.NoError(t, <-done)
			assert.NoError(t, store.Close())
		})
	}
	t.Cleanup(stop)
	return ln.Addr().String(), stop
}

func TestClientAgainstServer(t *testing.T) {
	addr, _ := serve(t, t.TempDir())

	c, err := Connect(context.Background(), addr)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set("a", "1"))
	require.NoError(t, c.Set("b", "2"))
	require.NoError(t, c.Remove("a"))

	_, found, err := c.Get("a")
	require.NoError(t, err)
	assert.False(t, found)

	v, found, err := c.Get("b")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "2", v)

	err = c.Remove("a")
	require.Error(t, err)
	assert.True(t, IsKeyNotFound(err))
	assert.Equal(t, "Key not found", err.Error())

	require.NoError(t, c.Set("empty", ""))
	v, found, err = c.Get("empty")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, v)
}

func TestDataSurvivesServerRestart(t *testing.T) {
	dir := t.TempDir()

	addr, stop := serve(t, dir)
	c, err := Connect(context.Background(), addr)
	require.NoError(t, err)
	require.NoError(t, c.Set("k", "v"))
	require.NoError(t, c.Close())
	stop()

	addr, _ = serve(t, dir)
	c, err = Connect(context.Background(), addr)
	require.NoError(t, err)
	defer c.Close()

	v, found, err := c.Get("k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", v)
}

func TestConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = Connect(context.Background(), addr)
	assert.Error(t, err)
}
