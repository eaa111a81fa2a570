// Copyright © 2018 The ELPS authors

// Package debugger implements a Debug Adapter Protocol adapter for the
// script interpreter.
//
// The adapter sits between two goroutines. The interpreter goroutine runs
// the script and calls the hooks in hooks.go; it is the only goroutine that
// pushes and pops stack frames, and it parks on a semaphore whenever
// execution stops. The session goroutine serves client requests, and may
// answer read-only requests (stack trace, scopes, variables) while the
// interpreter is parked.
//
// Lifecycle:
//
//	a, err := debugger.New(ctx, conn)  // returns after configurationDone
//	... run the script, calling a.OnBeginFunctionCall etc ...
//	a.ReportExitCode(code)             // returns after the client disconnects
//	a.Close()
package debugger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/go-dap"
	"github.com/google/uuid"
	"github.com/luthersystems/scriptdap/debugger/session"
	"github.com/luthersystems/scriptdap/debugger/transport"
	"github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/luthersystems/scriptdap/debugger"

// ScriptThreadName is the name of the single thread shown to the client.
const ScriptThreadName = "Script"

// ErrDisconnected is returned by New when the client goes away before it
// finishes configuring the session.
var ErrDisconnected = errors.New("debugger: client disconnected during handshake")

// Adapter serves one debugger client for the lifetime of one script run.
type Adapter struct {
	conn    transport.Connection
	session *session.Session
	log     *logrus.Entry
	metrics tally.Scope
	tracer  trace.Tracer
	version Version
	traffic io.Writer
	ids     *IDAllocator

	active               atomic.Bool
	supportsVariableType atomic.Bool
	steps                stepFlags

	configurationDone *SyncEvent
	disconnected      *SyncEvent
	continueSem       *Semaphore

	// mu guards thread and the frames pushed onto it.
	mu          sync.Mutex
	threads     *ThreadManager
	thread      *Thread
	breakpoints *BreakpointManager
	exceptions  *ExceptionManager

	serveDone chan struct{}
	closeOnce sync.Once
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger. Every entry carries a session id.
func WithLogger(log *logrus.Logger) Option {
	return func(a *Adapter) {
		a.log = logrus.NewEntry(log)
	}
}

// WithTrafficLog copies every byte exchanged with the client to w.
func WithTrafficLog(w io.Writer) Option {
	return func(a *Adapter) {
		a.traffic = w
	}
}

// WithIDAllocator sets the allocator for frame, thread, variable and
// breakpoint ids. By default ids are unique across the process.
func WithIDAllocator(ids *IDAllocator) Option {
	return func(a *Adapter) {
		a.ids = ids
	}
}

// WithMetrics sets the scope receiving request and stop counters.
func WithMetrics(scope tally.Scope) Option {
	return func(a *Adapter) {
		a.metrics = scope
	}
}

// WithVersion sets the version reported in the initialize response.
func WithVersion(v Version) Option {
	return func(a *Adapter) {
		a.version = v
	}
}

// New starts listening on conn, waits for a client and serves it until the
// client sends configurationDone. It then starts the script thread and
// returns; the caller's goroutine becomes the interpreter goroutine.
//
// New fails if conn cannot listen, if ctx ends before the handshake
// completes, or if the client goes away first.
func New(ctx context.Context, conn transport.Connection, opts ...Option) (*Adapter, error) {
	a := &Adapter{
		conn:              conn,
		configurationDone: NewSyncEvent(),
		disconnected:      NewSyncEvent(),
		continueSem:       NewSemaphore(),
		serveDone:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = logrus.NewEntry(logrus.StandardLogger())
	}
	a.log = a.log.WithField("session", uuid.NewString())
	if a.metrics == nil {
		a.metrics = tally.NoopScope
	}
	if a.ids == nil {
		a.ids = DefaultIDAllocator()
	}
	a.tracer = otel.GetTracerProvider().Tracer(tracerName)
	a.session = session.New(session.WithLogger(a.log))
	a.threads = NewThreadManager(a.ids)
	a.breakpoints = NewBreakpointManager(a, a.ids)
	a.exceptions = NewExceptionManager()
	a.active.Store(true)
	a.steps.clear()
	a.registerHandlers()

	if err := conn.StartListening(); err != nil {
		return nil, fmt.Errorf("start listening: %w", err)
	}
	a.log.Info("Waiting for debugger client to connect...")
	if err := conn.WaitForConnection(ctx); err != nil {
		conn.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("wait for connection: %w", err)
	}
	a.log.Info("Debugger client connected.")

	r, w := conn.Reader(), conn.Writer()
	if a.traffic != nil {
		lw := &lockedWriter{w: a.traffic}
		r = io.TeeReader(r, lw)
		w = io.MultiWriter(w, lw)
	}
	a.session.Connect(r, w)

	go func() {
		defer close(a.serveDone)
		_ = a.session.Serve(context.WithoutCancel(ctx))
	}()

	select {
	case <-a.configurationDone.Done():
	case <-a.disconnected.Done():
		a.Close() //nolint:errcheck // best-effort cleanup
		return nil, ErrDisconnected
	case <-ctx.Done():
		a.cleanup()
		a.Close() //nolint:errcheck // best-effort cleanup
		return nil, ctx.Err()
	}

	a.mu.Lock()
	a.thread = a.threads.StartThread(ScriptThreadName)
	id := a.thread.ID
	a.mu.Unlock()
	a.send(newThreadEvent("started", id))
	return a, nil
}

// Active reports whether a client is still attached.
func (a *Adapter) Active() bool {
	return a.active.Load()
}

// Send writes msg to the client.
func (a *Adapter) Send(msg dap.Message) error {
	return a.session.Send(msg)
}

func (a *Adapter) send(msg dap.Message) {
	if err := a.session.Send(msg); err != nil {
		a.log.WithError(err).Debug("dap: send failed")
	}
}

// cleanup detaches the client. It clears breakpoints, exception filters and
// step requests, releases a parked interpreter and wakes ReportExitCode. It
// is safe to call any number of times.
func (a *Adapter) cleanup() {
	a.breakpoints.ClearAll()
	a.exceptions.ClearAll()
	a.steps.clear()
	a.continueSem.Notify()
	a.disconnected.Fire()
	a.active.Store(false)
}

func (a *Adapter) onSessionError(err error) {
	if a.active.Load() {
		a.log.WithError(err).Error("DAP session error")
	}
	a.cleanup()
}

// ReportExitCode ends the script thread, tells the client the script exited
// with code and blocks until the client disconnects. Nothing is sent if the
// client is already gone.
func (a *Adapter) ReportExitCode(code int) {
	a.mu.Lock()
	t := a.thread
	a.thread = nil
	a.mu.Unlock()

	a.threads.EndThread(t)
	if t != nil && a.active.Load() {
		a.send(newThreadEvent("exited", t.ID))
		exited := &dap.ExitedEvent{Event: newEvent("exited")}
		exited.Body.ExitCode = code
		a.send(exited)
		a.send(&dap.TerminatedEvent{Event: newEvent("terminated")})
	}
	_ = a.disconnected.Wait(context.Background())
}

// Close detaches the client, closes the connection and waits for the
// session goroutine to finish.
func (a *Adapter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.active.Store(false)
		err = a.conn.Close()
		<-a.serveDone
	})
	return err
}

// lockedWriter serializes writes from the session and interpreter
// goroutines onto a shared traffic log.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
