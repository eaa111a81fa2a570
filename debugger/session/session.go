// Copyright © 2018 The ELPS authors

// Package session implements the DAP message loop shared by the debug
// adapter: typed request handlers, hooks run after a response is written,
// sequence numbering of outgoing messages and a single fatal error callback.
//
// A Session is connected to one reader/writer pair and served by one
// goroutine. Handlers run on that goroutine, one request at a time. Send is
// safe to call from any goroutine.
package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/luthersystems/scriptdap/debugger/session"

// ErrNotConnected is returned by Send and Serve before Connect.
var ErrNotConnected = errors.New("session: not connected")

// HandlerFunc answers one request. A returned error is sent to the client as
// an error response and does not end the session.
type HandlerFunc func(req dap.RequestMessage) (dap.ResponseMessage, error)

// Session is a DAP message loop.
type Session struct {
	log    *logrus.Entry
	tracer trace.Tracer

	mu       sync.Mutex
	seq      int
	writer   io.Writer
	reader   *bufio.Reader
	handlers map[string]HandlerFunc
	sent     map[string]func()
	onError  func(error)
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the entry used for session logging.
func WithLogger(log *logrus.Entry) Option {
	return func(s *Session) {
		s.log = log
	}
}

// WithTracer overrides the tracer used for request spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Session) {
		s.tracer = t
	}
}

// New returns an unconnected session.
func New(opts ...Option) *Session {
	s := &Session{
		handlers: make(map[string]HandlerFunc),
		sent:     make(map[string]func()),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logrus.NewEntry(logrus.StandardLogger())
	}
	if s.tracer == nil {
		s.tracer = otel.GetTracerProvider().Tracer(tracerName)
	}
	return s
}

// Handle registers fn for requests with the given command, replacing any
// previous handler.
func (s *Session) Handle(command string, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[command] = fn
}

// Register registers a handler for a concrete request type.
func Register[T dap.RequestMessage](s *Session, command string, fn func(req T) (dap.ResponseMessage, error)) {
	s.Handle(command, func(req dap.RequestMessage) (dap.ResponseMessage, error) {
		r, ok := req.(T)
		if !ok {
			return nil, fmt.Errorf("unexpected %T for command %q", req, command)
		}
		return fn(r)
	})
}

// OnSent registers fn to run after the response to command has been written.
func (s *Session) OnSent(command string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[command] = fn
}

// OnError registers the callback run when the session fails. It is called at
// most once, from the serving goroutine, before Serve returns.
func (s *Session) OnError(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// Connect attaches the session to a byte stream.
func (s *Session) Connect(r io.Reader, w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reader = bufio.NewReader(r)
	s.writer = w
}

// Send assigns msg the next sequence number and writes it.
func (s *Session) Send(msg dap.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer == nil {
		return ErrNotConnected
	}
	s.seq++
	switch m := msg.(type) {
	case dap.ResponseMessage:
		r := m.GetResponse()
		r.Seq = s.seq
		r.Type = "response"
	case dap.EventMessage:
		e := m.GetEvent()
		e.Seq = s.seq
		e.Type = "event"
	}
	if err := dap.WriteProtocolMessage(s.writer, msg); err != nil {
		return fmt.Errorf("write %T: %w", msg, err)
	}
	return nil
}

// Serve reads and dispatches requests until the stream fails. Reaching the
// end of the stream is a failure like any other, since a client that goes
// away without a disconnect request must not leave the interpreter parked.
// The error callback runs before Serve returns the error.
func (s *Session) Serve(ctx context.Context) error {
	s.mu.Lock()
	reader := s.reader
	s.mu.Unlock()
	if reader == nil {
		return ErrNotConnected
	}
	for {
		msg, err := dap.ReadProtocolMessage(reader)
		if err != nil {
			var fieldErr *dap.DecodeProtocolMessageFieldError
			if errors.As(err, &fieldErr) && strings.EqualFold(fieldErr.SubType, "request") {
				// A well-formed request for a command the codec does not know.
				s.unsupported(fieldErr.Seq, fieldErr.FieldValue)
				continue
			}
			return s.fail(fmt.Errorf("read message: %w", err))
		}
		req, ok := msg.(dap.RequestMessage)
		if !ok {
			s.log.WithField("type", fmt.Sprintf("%T", msg)).Warn("dap: ignoring non-request message")
			continue
		}
		s.dispatch(ctx, req)
	}
}

func (s *Session) fail(err error) error {
	s.mu.Lock()
	fn := s.onError
	s.onError = nil
	s.mu.Unlock()
	if fn != nil {
		fn(err)
	}
	return err
}

func (s *Session) dispatch(ctx context.Context, req dap.RequestMessage) {
	r := req.GetRequest()
	_, span := s.tracer.Start(ctx, "dap."+r.Command, trace.WithAttributes(
		attribute.String("dap.command", r.Command),
		attribute.Int("dap.seq", r.Seq),
	))
	defer span.End()

	s.mu.Lock()
	fn := s.handlers[r.Command]
	hook := s.sent[r.Command]
	s.mu.Unlock()

	log := s.log.WithField("command", r.Command)
	if fn == nil {
		log.Warn("dap: unhandled request")
		span.SetStatus(codes.Error, "unhandled")
		s.unsupported(r.Seq, r.Command)
		return
	}

	resp, err := fn(req)
	if err != nil {
		log.WithError(err).Debug("dap: request failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.sendError(r.Seq, r.Command, err)
		return
	}
	if resp == nil {
		s.sendError(r.Seq, r.Command, errors.New("no response"))
		return
	}
	hdr := resp.GetResponse()
	hdr.RequestSeq = r.Seq
	hdr.Command = r.Command
	hdr.Success = true
	if err := s.Send(resp); err != nil {
		log.WithError(err).Error("dap: send response")
		return
	}
	if hook != nil {
		hook()
	}
}

func (s *Session) unsupported(seq int, command string) {
	s.sendError(seq, command, fmt.Errorf("unsupported request %q", command))
}

func (s *Session) sendError(seq int, command string, err error) {
	er := &dap.ErrorResponse{}
	er.Response = dap.Response{
		RequestSeq: seq,
		Command:    command,
		Success:    false,
		Message:    err.Error(),
	}
	er.Body.Error = &dap.ErrorMessage{
		Id:       1,
		Format:   err.Error(),
		ShowUser: true,
	}
	if sendErr := s.Send(er); sendErr != nil {
		s.log.WithError(sendErr).Error("dap: send error response")
	}
}
