package main

import (
	"bytes"
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iamBelugaa/kvs/internal/engine"
	"github.com/iamBelugaa/kvs/internal/server"
	"github.com/iamBelugaa/kvs/pkg/kvs"
	"github.com/iamBelugaa/kvs/pkg/options"
)

func startServer(t *testing.T) string {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()

	eng, err := kvs.Open(context.Background(), engine.KVS, log, options.WithDataDir(t.TempDir()))
	require.NoError(t, err)

	srv, err := server.New(eng, "127.0.0.1:0", server.WithLogger(log))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
		assert.NoError(t, eng.Close())
	})
	return ln.Addr().String()
}

func runClient(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := execute(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestClientCommands(t *testing.T) {
	addr := startServer(t)

	code, out, _ := runClient("set", "key1", "value1", "--addr", addr)
	assert.Zero(t, code)
	assert.Empty(t, out)

	code, out, _ = runClient("get", "key1", "--addr", addr)
	assert.Zero(t, code)
	assert.Equal(t, "value1\n", out)

	code, out, _ = runClient("rm", "key1", "--addr", addr)
	assert.Zero(t, code)
	assert.Empty(t, out)

	code, out, _ = runClient("get", "key1", "--addr", addr)
	assert.Zero(t, code)
	assert.Equal(t, "Key not found\n", out)

	code, _, errOut := runClient("rm", "key1", "--addr", addr)
	assert.Zero(t, code)
	assert.Equal(t, "Key not found\n", errOut)
}

func TestClientUsageErrors(t *testing.T) {
	code, _, _ := runClient("get")
	assert.Equal(t, 1, code)

	code, _, _ = runClient("set", "only-key")
	assert.Equal(t, 1, code)

	code, _, _ = runClient("unknown")
	assert.Equal(t, 1, code)
}
