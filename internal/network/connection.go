// Package network implements the TCP listener and the per-connection
// handlers for the legacy and modern server list protocols.
package network

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Connection wraps one accepted client socket. Every read refreshes the
// read deadline, so a silent client is dropped after readTimeout no matter
// how far into a packet it got. Reads are buffered so the first byte can
// be peeked before choosing a protocol.
type Connection struct {
	mu     sync.Mutex
	conn   net.Conn
	br     *bufio.Reader
	logger zerolog.Logger

	readTimeout  time.Duration
	writeTimeout time.Duration

	connectedAt  time.Time
	bytesRead    int
	bytesWritten int

	closed bool
}

// NewConnection wraps an existing net.Conn. A zero timeout disables the
// corresponding deadline.
func NewConnection(conn net.Conn, readTimeout, writeTimeout time.Duration) *Connection {
	c := &Connection{
		conn:         conn,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		connectedAt:  time.Now(),
		logger: log.With().
			Str("component", "connection").
			Str("remote", remoteString(conn)).
			Logger(),
	}
	c.br = bufio.NewReader(deadlineReader{c})
	return c
}

// deadlineReader sits under the bufio.Reader so that every refill of the
// buffer is covered by a fresh deadline.
type deadlineReader struct {
	c *Connection
}

func (d deadlineReader) Read(p []byte) (int, error) {
	if d.c.readTimeout > 0 {
		if err := d.c.conn.SetReadDeadline(time.Now().Add(d.c.readTimeout)); err != nil {
			return 0, err
		}
	}
	n, err := d.c.conn.Read(p)
	d.c.bytesRead += n
	return n, err
}

// Read implements io.Reader.
func (c *Connection) Read(p []byte) (int, error) {
	return c.br.Read(p)
}

// Peek returns the next n bytes without consuming them.
func (c *Connection) Peek(n int) ([]byte, error) {
	return c.br.Peek(n)
}

// Write sends data in one call under the write deadline.
func (c *Connection) Write(data []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, fmt.Errorf("connection is closed")
	}

	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	n, err := c.conn.Write(data)
	c.bytesWritten += n
	if err != nil {
		return n, fmt.Errorf("failed to write %d bytes: %w", len(data), err)
	}
	return n, nil
}

// Close closes the connection. It is safe to call more than once.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.logger.Trace().
		Int("bytes_read", c.bytesRead).
		Int("bytes_written", c.bytesWritten).
		Dur("duration", time.Since(c.connectedAt)).
		Msg("connection closed")
	return c.conn.Close()
}

// IsClosed returns whether the connection has been closed.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ConnectedAt returns the time the connection was accepted.
func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}

// RemoteAddr returns the remote address of the connection.
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Logger returns the per-connection logger.
func (c *Connection) Logger() *zerolog.Logger {
	return &c.logger
}

func remoteString(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}
