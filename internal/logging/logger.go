package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"

	"cshealth/internal/config"
)

const (
	ansiReset   = "\x1b[0m"
	ansiBlue    = "\x1b[34m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiMagenta = "\x1b[35m"
	ansiRed     = "\x1b[31m"
	ansiGray    = "\x1b[90m"

	// LevelPanic is the highest configurable level.
	LevelPanic = slog.Level(12)
)

var (
	quotedPattern   = regexp.MustCompile(`"[^"\n]*"`)
	severityPattern = regexp.MustCompile(`\bseverity=(?:critical|high)\b`)
	numberPattern   = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
)

// New builds a logger for configured sinks and returns a cleanup function.
// Params: cfg contains console/file sink settings.
// Returns: slog logger, cleanup callback, and setup error.
func New(cfg config.LogConfig) (*slog.Logger, func(), error) {
	return NewWithConsole(cfg, os.Stdout)
}

// NewWithConsole builds a logger writing console output into given writer.
// Params: sink settings and console destination.
// Returns: slog logger, cleanup callback, and setup error.
func NewWithConsole(cfg config.LogConfig, console io.Writer) (*slog.Logger, func(), error) {
	var (
		handlers []slog.Handler
		closers  []io.Closer
	)

	if cfg.Console.Enabled {
		handler, err := consoleHandler(cfg.Console, console)
		if err != nil {
			return nil, nil, fmt.Errorf("build console handler: %w", err)
		}
		handlers = append(handlers, handler)
	}
	if cfg.File.Enabled {
		handler, closer, err := fileHandler(cfg.File)
		if err != nil {
			return nil, nil, fmt.Errorf("build file handler: %w", err)
		}
		handlers = append(handlers, handler)
		closers = append(closers, closer)
	}
	if len(handlers) == 0 {
		return nil, nil, errors.New("no log sinks enabled")
	}

	cleanup := func() {
		for _, closer := range closers {
			_ = closer.Close()
		}
	}
	if len(handlers) == 1 {
		return slog.New(handlers[0]), cleanup, nil
	}
	return slog.New(fanout(handlers)), cleanup, nil
}

// Discard returns logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: LevelPanic}))
}

func consoleHandler(sink config.LogSinkConfig, dst io.Writer) (slog.Handler, error) {
	level, err := ParseLevel(sink.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.TimeKey {
				return slog.Attr{}
			}
			if attr.Key == slog.LevelKey {
				if lvl, ok := attr.Value.Any().(slog.Level); ok && lvl >= LevelPanic {
					return slog.String(slog.LevelKey, "PANIC")
				}
			}
			return attr
		},
	}

	switch strings.ToLower(sink.Format) {
	case "line":
		return slog.NewTextHandler(&colorWriter{dst: dst}, opts), nil
	case "json":
		return slog.NewJSONHandler(dst, opts), nil
	default:
		return nil, fmt.Errorf("unsupported console format %q", sink.Format)
	}
}

func fileHandler(sink config.LogSinkConfig) (slog.Handler, io.Closer, error) {
	level, err := ParseLevel(sink.Level)
	if err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(sink.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open file %q: %w", sink.Path, err)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(sink.Format) {
	case "line":
		return slog.NewTextHandler(file, opts), file, nil
	case "json":
		return slog.NewJSONHandler(file, opts), file, nil
	default:
		_ = file.Close()
		return nil, nil, fmt.Errorf("unsupported file format %q", sink.Format)
	}
}

// ParseLevel converts configuration level into slog.Level.
// Params: level name debug/info/warn/error/panic.
// Returns: slog level or error.
func ParseLevel(value string) (slog.Level, error) {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "panic":
		return LevelPanic, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported level %q", value)
	}
}

// fanout writes one record into every sink that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range f {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, handler := range f {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(fanout, 0, len(f))
	for _, handler := range f {
		next = append(next, handler.WithAttrs(attrs))
	}
	return next
}

func (f fanout) WithGroup(name string) slog.Handler {
	next := make(fanout, 0, len(f))
	for _, handler := range f {
		next = append(next, handler.WithGroup(name))
	}
	return next
}

// colorWriter tints console lines by level and highlights alert severities,
// quoted values, and numbers.
type colorWriter struct {
	dst io.Writer
}

func (w *colorWriter) Write(payload []byte) (int, error) {
	line := string(payload)
	base := levelColor(line)
	if base == "" {
		return w.dst.Write(payload)
	}

	rendered := base + highlight(line, base) + ansiReset
	n, err := w.dst.Write([]byte(rendered))
	if n > len(payload) {
		n = len(payload)
	}
	return n, err
}

func levelColor(line string) string {
	switch {
	case strings.Contains(line, "level=DEBUG"):
		return ansiGray
	case strings.Contains(line, "level=INFO"):
		return ansiBlue
	case strings.Contains(line, "level=WARN"):
		return ansiYellow
	case strings.Contains(line, "level=ERROR"), strings.Contains(line, "level=PANIC"):
		return ansiRed
	default:
		return ""
	}
}

type span struct {
	start, end int
	color      string
	priority   int
}

// highlight colors matched spans and restores base color after each one.
// Params: rendered line and level color.
// Returns: line with ANSI highlights; overlapping spans keep the lower priority value.
func highlight(line, base string) string {
	var spans []span
	collect := func(pattern *regexp.Regexp, color string, priority int) {
		for _, idx := range pattern.FindAllStringIndex(line, -1) {
			spans = append(spans, span{start: idx[0], end: idx[1], color: color, priority: priority})
		}
	}
	collect(severityPattern, ansiMagenta, 0)
	collect(quotedPattern, ansiGreen, 1)
	collect(numberPattern, ansiYellow, 2)
	if len(spans) == 0 {
		return line
	}

	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].start == spans[j].start {
			return spans[i].priority < spans[j].priority
		}
		return spans[i].start < spans[j].start
	})

	var out strings.Builder
	out.Grow(len(line) + len(spans)*12)
	cursor := 0
	for _, s := range spans {
		if s.start < cursor {
			continue
		}
		out.WriteString(line[cursor:s.start])
		out.WriteString(s.color)
		out.WriteString(line[s.start:s.end])
		out.WriteString(ansiReset)
		out.WriteString(base)
		cursor = s.end
	}
	out.WriteString(line[cursor:])
	return out.String()
}
