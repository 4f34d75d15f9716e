// Package client talks to a kvs server over one persistent TCP connection.
package client

import (
	"context"
	stdErrors "errors"
	"net"
	"sync"

	"github.com/iamBelugaa/kvs/internal/protocol"
	"github.com/iamBelugaa/kvs/pkg/errors"
)

// ServerError carries the message of an {"Err": ...} response.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// IsKeyNotFound reports whether err is the server's "Key not found" reply.
func IsKeyNotFound(err error) bool {
	var se *ServerError
	return stdErrors.As(err, &se) && se.Message == errors.ErrKeyNotFound.Error()
}

// Client sends one request and reads one response per call. Calls are
// serialized, so a Client may be shared between goroutines.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	reader *protocol.Reader
	writer *protocol.Writer
}

// Connect dials addr.
func Connect(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	return &Client{
		conn:   conn,
		reader: protocol.NewReader(conn),
		writer: protocol.NewWriter(conn),
	}, nil
}

// Get returns the value of key; found is false when the server has none.
func (c *Client) Get(key string) (string, bool, error) {
	resp, err := c.roundTrip(protocol.NewGet(key))
	if err != nil {
		return "", false, err
	}
	if resp.Ok == nil {
		return "", false, nil
	}
	return *resp.Ok, true, nil
}

func (c *Client) Set(key, value string) error {
	_, err := c.roundTrip(protocol.NewSet(key, value))
	return err
}

func (c *Client) Remove(key string) error {
	_, err := c.roundTrip(protocol.NewRemove(key))
	return err
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) roundTrip(req protocol.Request) (protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.writer.WriteRequest(req); err != nil {
		return protocol.Response{}, err
	}

	resp, err := c.reader.ReadResponse()
	if err != nil {
		return protocol.Response{}, err
	}
	if resp.Err != nil {
		return protocol.Response{}, &ServerError{Message: *resp.Err}
	}
	return resp, nil
}
