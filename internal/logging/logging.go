// Package logging provides slog handlers for daemonize.
//
// Once the detach sequence has rebound stdio to the null device the only
// place a failure can be reported is the system log, so stage processes log
// through slog-syslog at a matching priority. The invoking process fans out
// to stderr as well.
package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	slogmulti "github.com/samber/slog-multi"
	slogsyslog "github.com/samber/slog-syslog/v2"
)

// writeTimeout bounds how long Handle waits for a record to reach syslog.
const writeTimeout = time.Second

// PriorityWriter is the subset of *syslog.Writer the handler writes through.
type PriorityWriter interface {
	Err(m string) error
	Warning(m string) error
	Info(m string) error
	Debug(m string) error
}

// priorityWriter sends each payload at the syslog priority of the record
// currently being handled and signals once it has been written.
type priorityWriter struct {
	w       PriorityWriter
	level   atomic.Int64
	written chan struct{}
}

func (p *priorityWriter) Write(b []byte) (int, error) {
	defer func() {
		select {
		case p.written <- struct{}{}:
		default:
		}
	}()

	msg := string(bytes.TrimRight(b, "\n"))
	var err error
	switch level := slog.Level(p.level.Load()); {
	case level >= slog.LevelError:
		err = p.w.Err(msg)
	case level >= slog.LevelWarn:
		err = p.w.Warning(msg)
	case level >= slog.LevelInfo:
		err = p.w.Info(msg)
	default:
		err = p.w.Debug(msg)
	}
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

// syslogHandler serializes records through slog-syslog and returns from
// Handle only once the payload is written, since a stage process execs or
// exits right after logging.
type syslogHandler struct {
	slog.Handler
	w  *priorityWriter
	mu *sync.Mutex
}

// NewSyslogHandler returns a handler writing records at or above level to w.
func NewSyslogHandler(w PriorityWriter, level slog.Leveler) slog.Handler {
	pw := &priorityWriter{w: w, written: make(chan struct{}, 1)}
	return &syslogHandler{
		Handler: slogsyslog.Option{Level: level, Writer: pw}.NewSyslogHandler(),
		w:       pw,
		mu:      &sync.Mutex{},
	}
}

func (h *syslogHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	// drop a signal left by a write that outlived its timeout
	select {
	case <-h.w.written:
	default:
	}

	h.w.level.Store(int64(r.Level))
	if err := h.Handler.Handle(ctx, r); err != nil {
		return err
	}

	select {
	case <-h.w.written:
	case <-time.After(writeTimeout):
	}
	return nil
}

func (h *syslogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &syslogHandler{Handler: h.Handler.WithAttrs(attrs), w: h.w, mu: h.mu}
}

func (h *syslogHandler) WithGroup(name string) slog.Handler {
	return &syslogHandler{Handler: h.Handler.WithGroup(name), w: h.w, mu: h.mu}
}

// Stage returns a logger for a detached stage process. When the system log
// cannot be reached the returned logger discards everything, since stdio is
// already the null device.
func Stage(tag string) (*slog.Logger, io.Closer) {
	w, err := dialSyslog(tag)
	if err != nil {
		return slog.New(slog.DiscardHandler), nopCloser{}
	}
	return slog.New(NewSyslogHandler(w, slog.LevelInfo)), w
}

// Invoker returns a logger for the invoking process. Warnings and errors go
// to stderr; everything from info up goes to the system log when reachable.
func Invoker(tag string, stderr io.Writer) (*slog.Logger, io.Closer) {
	text := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn})
	w, err := dialSyslog(tag)
	if err != nil {
		return slog.New(text), nopCloser{}
	}
	return slog.New(slogmulti.Fanout(text, NewSyslogHandler(w, slog.LevelInfo))), w
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
