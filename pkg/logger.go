package extractor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

type Logger interface {
	Info(message string, module string)
	Error(string)
}

// StdLogger sends informational messages and errors to separate slog
// loggers, usually a text handler on stdout and JSON on stderr.
type StdLogger struct {
	InfoLog  *slog.Logger
	ErrorLog *slog.Logger
}

func NewStdLogger(stdout, stderr io.Writer) StdLogger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}
	return StdLogger{
		InfoLog:  slog.New(NewHandler(stdout, opts)),
		ErrorLog: slog.New(slog.NewJSONHandler(stderr, opts)),
	}
}

func (l StdLogger) Info(message string, module string) {
	l.InfoLog.Info(message, "module", module)
}

func (l StdLogger) Error(message string) {
	l.ErrorLog.Error(message)
}

type nopLogger struct{}

func (nopLogger) Info(string, string) {}
func (nopLogger) Error(string)        {}

// https://stackoverflow.com/questions/77422213/how-to-hide-all-keys-when-using-slog-in-golang

// Handler prints records as "[time] [value] ... message", hiding the keys.
// Attributes bound with WithAttrs come before the record's own. Records above
// Info carry their level as the first bracket.
type Handler struct {
	level slog.Leveler
	attrs []string
	mu    *sync.Mutex
	out   io.Writer
}

func NewHandler(o io.Writer, opts *slog.HandlerOptions) *Handler {
	var level slog.Leveler = slog.LevelInfo
	if opts != nil && opts.Level != nil {
		level = opts.Level
	}
	return &Handler{level: level, mu: &sync.Mutex{}, out: o}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := append([]string(nil), h.attrs...)
	for _, a := range attrs {
		bound = appendAttr(bound, a)
	}
	return &Handler{level: h.level, attrs: bound, mu: h.mu, out: h.out}
}

// WithGroup is a no-op: keys are never printed, so groups have nothing to
// qualify.
func (h *Handler) WithGroup(string) slog.Handler {
	return h
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	fields := []string{r.Time.Format("[2006/01/02 15:04:05]")}
	if r.Level > slog.LevelInfo {
		fields = append(fields, "["+r.Level.String()+"]")
	}
	fields = append(fields, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		fields = appendAttr(fields, a)
		return true
	})
	fields = append(fields, r.Message)

	line := strings.Join(fields, " ") + "\n"
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, line)
	return err
}

func appendAttr(fields []string, a slog.Attr) []string {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return fields
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, g := range a.Value.Group() {
			fields = appendAttr(fields, g)
		}
		return fields
	}
	return append(fields, fmt.Sprintf("[%s]", a.Value.String()))
}
