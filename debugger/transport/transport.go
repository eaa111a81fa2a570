// Copyright © 2018 The ELPS authors

// Package transport provides the byte streams a debug adapter serves its
// client on: a Unix domain socket ("pipe"), a TCP port, an already bound
// listener, or the process's standard streams.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

// ErrClosed is returned when waiting on a connection that has been closed.
var ErrClosed = errors.New("transport: closed")

// Connection is the stream a single debugger client attaches to.
// StartListening must succeed before WaitForConnection is called, and
// Reader and Writer are only valid once WaitForConnection has returned nil.
type Connection interface {
	StartListening() error
	WaitForConnection(ctx context.Context) error
	Reader() io.Reader
	Writer() io.Writer
	Close() error
}

// listenerConn accepts exactly one client from a stream listener.
type listenerConn struct {
	network string
	address string

	mu     sync.Mutex
	ln     net.Listener
	conn   net.Conn
	closed bool
}

// NewPipe returns a connection listening on a Unix domain socket at path.
// The socket file is removed when the connection is closed.
func NewPipe(path string) Connection {
	return &listenerConn{network: "unix", address: path}
}

// NewTCP returns a connection listening on a TCP address such as
// "127.0.0.1:4711".
func NewTCP(addr string) Connection {
	return &listenerConn{network: "tcp", address: addr}
}

// NewListener returns a connection accepting from ln, which is already
// bound. StartListening is a no-op.
func NewListener(ln net.Listener) Connection {
	return &listenerConn{ln: ln}
}

func (c *listenerConn) StartListening() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.ln != nil {
		return nil
	}
	ln, err := net.Listen(c.network, c.address)
	if err != nil {
		return fmt.Errorf("listen on %s %s: %w", c.network, c.address, err)
	}
	c.ln = ln
	return nil
}

// Addr returns the bound address, or nil before StartListening.
func (c *listenerConn) Addr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ln == nil {
		return nil
	}
	return c.ln.Addr()
}

func (c *listenerConn) WaitForConnection(ctx context.Context) error {
	c.mu.Lock()
	ln := c.ln
	c.mu.Unlock()
	if ln == nil {
		return errors.New("transport: not listening")
	}

	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		ch <- result{conn, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return fmt.Errorf("accept: %w", r.err)
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			r.conn.Close() //nolint:errcheck // best-effort cleanup
			return ErrClosed
		}
		c.conn = r.conn
		return nil
	case <-ctx.Done():
		// Closing the listener unblocks Accept.
		c.Close() //nolint:errcheck // best-effort cleanup
		return ctx.Err()
	}
}

func (c *listenerConn) Reader() io.Reader {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn
}

func (c *listenerConn) Writer() io.Writer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn
}

func (c *listenerConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	var errs []error
	if c.conn != nil {
		errs = append(errs, c.conn.Close())
	}
	if c.ln != nil {
		errs = append(errs, c.ln.Close())
	}
	return errors.Join(errs...)
}

// stdioConn serves a client that launched the adapter as a child process.
// Reads go through a pipe fed by a copying goroutine: a blocking os.Stdin is
// not woken by closing it, but a pipe reader is.
type stdioConn struct {
	r io.Reader
	w io.Writer

	pipeOnce  sync.Once
	pr        *io.PipeReader
	closeOnce sync.Once
}

// NewStdio returns a connection over r and w, typically os.Stdin and
// os.Stdout. The client is attached from the start. Close unblocks pending
// reads and closes r and w if they implement io.Closer. The copying
// goroutine itself may stay parked on r until r yields data or EOF.
func NewStdio(r io.Reader, w io.Writer) Connection {
	return &stdioConn{r: r, w: w}
}

func (c *stdioConn) StartListening() error                       { return nil }
func (c *stdioConn) WaitForConnection(ctx context.Context) error { return ctx.Err() }
func (c *stdioConn) Writer() io.Writer                           { return c.w }

func (c *stdioConn) Reader() io.Reader {
	c.pipeOnce.Do(func() {
		pr, pw := io.Pipe()
		c.pr = pr
		go func() {
			_, err := io.Copy(pw, c.r)
			pw.CloseWithError(err) //nolint:errcheck // always nil
		}()
	})
	return c.pr
}

func (c *stdioConn) Close() error {
	var errs []error
	c.closeOnce.Do(func() {
		// Claim the pipe so a later Reader call cannot start a copier.
		c.pipeOnce.Do(func() {
			pr, pw := io.Pipe()
			pw.Close() //nolint:errcheck // always nil
			c.pr = pr
		})
		errs = append(errs, c.pr.Close())
		if rc, ok := c.r.(io.Closer); ok {
			errs = append(errs, rc.Close())
		}
		if wc, ok := c.w.(io.Closer); ok && any(wc) != any(c.r) {
			errs = append(errs, wc.Close())
		}
	})
	return errors.Join(errs...)
}
