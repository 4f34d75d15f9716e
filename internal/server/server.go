// Package server serves an engine over TCP using the JSON frames of the
// protocol package. Each connection is handled by one pool job that reads a
// request, performs one engine call and writes one response before reading
// the next.
package server

import (
	"context"
	stdErrors "errors"
	"io"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/iamBelugaa/kvs/internal/engine"
	"github.com/iamBelugaa/kvs/internal/metrics"
	"github.com/iamBelugaa/kvs/internal/protocol"
	"github.com/iamBelugaa/kvs/internal/threadpool"
	"github.com/iamBelugaa/kvs/pkg/errors"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
	poolDrainTimeout = 10 * time.Second
)

// Server accepts client connections and dispatches their requests to an engine.
type Server struct {
	addr     string
	engine   engine.Engine
	pool     threadpool.Pool
	ownsPool bool
	log      *zap.SugaredLogger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	listener net.Listener

	connections sync.Map
	connCounter atomic.Uint64
	wg          sync.WaitGroup
	closing     atomic.Bool
}

// New creates a server for eng. Without WithPool it runs connections on a
// shared queue pool with one worker per CPU and shuts that pool down itself.
func New(eng engine.Engine, addr string, opts ...Option) (*Server, error) {
	s := &Server{engine: eng, addr: addr, log: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(s)
	}

	if s.pool == nil {
		pool, err := threadpool.NewSharedQueue(runtime.NumCPU(), s.log)
		if err != nil {
			return nil, err
		}
		s.pool, s.ownsPool = pool, true
	}
	return s, nil
}

// Addr returns the bound address once the server is listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run listens on the configured address and serves until ctx is cancelled
// or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.log.Errorw("Failed to listen", "addr", s.addr, "error", err)
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled or ln fails. On
// return the listener and every live connection are closed and their jobs
// have finished.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.log.Infow("Server listening", "addr", ln.Addr().String())

	stop := context.AfterFunc(ctx, func() {
		s.closing.Store(true)
		ln.Close()
	})
	defer stop()

	err := s.acceptConnections(ctx, ln)
	s.shutdown(ctx)
	return err
}

func (s *Server) acceptConnections(ctx context.Context, ln net.Listener) error {
	backoff := time.Duration(0)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closing.Load() {
				return nil
			}
			if stdErrors.Is(err, net.ErrClosed) {
				s.log.Errorw("Listener closed unexpectedly", "error", err)
				return err
			}

			backoff = min(max(2*backoff, minAcceptBackoff), maxAcceptBackoff)
			s.log.Errorw("Failed to accept connection", "error", err, "retryIn", backoff)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		backoff = 0

		id := s.connCounter.Add(1)
		s.connections.Store(id, conn)
		s.metrics.ConnectionOpened()

		s.wg.Add(1)
		s.pool.Spawn(func() {
			defer s.wg.Done()
			s.handleConnection(ctx, id, conn)
		})
	}
}

// shutdown closes live connections so their blocked reads return, waits for
// their jobs and stops an owned pool.
func (s *Server) shutdown(ctx context.Context) {
	s.closing.Store(true)
	s.listener.Close()

	var open int
	s.connections.Range(func(key, value any) bool {
		if conn, ok := value.(net.Conn); ok {
			conn.Close()
			open++
		}
		return true
	})

	s.log.Infow("Server stopping", "openConnections", open)
	s.wg.Wait()

	if s.ownsPool {
		drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), poolDrainTimeout)
		defer cancel()
		if err := s.pool.Shutdown(drainCtx); err != nil {
			s.log.Warnw("Worker pool did not drain", "error", err)
		}
	}

	s.log.Infow("Server stopped", "connectionsServed", s.connCounter.Load())
}

func (s *Server) handleConnection(ctx context.Context, id uint64, conn net.Conn) {
	log := s.log.With("conn", id, "remote", conn.RemoteAddr().String())
	defer func() {
		conn.Close()
		s.connections.Delete(id)
		s.metrics.ConnectionClosed()
	}()

	log.Debugw("Connection accepted")

	reader := protocol.NewReader(conn)
	writer := protocol.NewWriter(conn)

	for {
		req, err := reader.ReadRequest()
		if err == nil {
			err = req.Validate()
		}
		if err != nil {
			if err == io.EOF || s.closing.Load() {
				log.Debugw("Connection closed")
				return
			}

			reason := "decode"
			var netErr net.Error
			if stdErrors.As(err, &netErr) || stdErrors.Is(err, net.ErrClosed) {
				reason = "io"
			}

			log.Warnw("Closing connection after read failure", "reason", reason, "error", err)
			s.metrics.ConnectionFailed(reason)
			return
		}

		resp := s.dispatch(ctx, log, req)

		if err := writer.WriteResponse(resp); err != nil {
			if !s.closing.Load() {
				log.Warnw("Closing connection after write failure", "error", err)
				s.metrics.ConnectionFailed("io")
			}
			return
		}
	}
}

// dispatch performs the single engine call a request maps to.
func (s *Server) dispatch(ctx context.Context, log *zap.SugaredLogger, req protocol.Request) protocol.Response {
	start := time.Now()
	op := req.Op()

	var (
		resp protocol.Response
		err  error
	)

	switch op {
	case protocol.OpGet:
		var (
			value string
			found bool
		)
		value, found, err = s.engine.Get(ctx, req.Get.Key)
		if err == nil && found {
			resp = protocol.OK(value)
		}

	case protocol.OpSet:
		err = s.engine.Set(ctx, req.Set.Key, req.Set.Value)

	case protocol.OpRemove:
		err = s.engine.Remove(ctx, req.Remove.Key)
	}

	result := metrics.ResultOK
	switch {
	case err == nil:
		log.Debugw("Request served", "op", op, "elapsed", time.Since(start))
	case errors.IsKeyNotFound(err):
		result = metrics.ResultNotFound
		resp = protocol.Fail(err)
		log.Debugw("Request for missing key", "op", op)
	default:
		result = metrics.ResultError
		resp = protocol.Fail(err)
		log.Errorw("Request failed", "op", op, "error", err)
	}

	s.metrics.ObserveRequest(op, result, time.Since(start))
	return resp
}
