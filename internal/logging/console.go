package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.w.Write(p)
	return err
}

// lineHead holds the attributes promoted out of key=value form.
type lineHead struct {
	component string
	trigger   string
	passID    string
}

func (h *lineHead) capture(key string, v slog.Value) bool {
	switch key {
	case FieldComponent:
		if h.component == "" {
			h.component = plainValue(v)
		}
	case FieldTrigger:
		h.trigger = plainValue(v)
	case FieldPassID:
		h.passID = plainValue(v)
	default:
		return false
	}
	return true
}

// consoleHandler writes one "ts LEVEL component: [subject] message key=value" line
// per record. Attributes bound with WithAttrs are rendered once, up front.
type consoleHandler struct {
	out       *syncWriter
	level     slog.Leveler
	addSource bool
	prefix    string
	head      lineHead
	bound     []byte
}

func newConsoleHandler(w io.Writer, level slog.Leveler, addSource bool) *consoleHandler {
	return &consoleHandler{out: &syncWriter{w: w}, level: level, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	head := h.head
	var fields []byte
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendAttr(fields, h.prefix, attr, &head)
		return true
	})

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	line := make([]byte, 0, 96+len(h.bound)+len(fields))
	line = ts.UTC().AppendFormat(line, time.RFC3339)
	line = append(line, ' ')
	line = append(line, levelLabel(record.Level)...)
	line = append(line, ' ')
	if head.component != "" {
		line = append(line, head.component...)
		line = append(line, ": "...)
	}
	if subject := formatSubject(head.trigger, head.passID); subject != "" {
		line = append(line, '[')
		line = append(line, subject...)
		line = append(line, "] "...)
	}
	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "(no message)"
	}
	line = append(line, msg...)
	if h.addSource {
		if src := record.Source(); src != nil && src.File != "" {
			line = fmt.Appendf(line, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	line = append(line, h.bound...)
	line = append(line, fields...)
	line = append(line, '\n')
	return h.out.write(line)
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := *h
	next.bound = append([]byte(nil), h.bound...)
	for _, attr := range attrs {
		next.bound = appendAttr(next.bound, h.prefix, attr, &next.head)
	}
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

// appendAttr renders attr as " key=value", flattening groups into dotted keys.
// Top-level component, trigger and pass id go to head instead.
func appendAttr(dst []byte, prefix string, attr slog.Attr, head *lineHead) []byte {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	if attr.Value.Kind() == slog.KindGroup {
		inner := prefix
		if attr.Key != "" {
			inner = prefix + attr.Key + "."
		}
		for _, member := range attr.Value.Group() {
			dst = appendAttr(dst, inner, member, head)
		}
		return dst
	}
	if attr.Key == "" {
		return dst
	}
	if prefix == "" && head.capture(attr.Key, attr.Value) {
		return dst
	}
	dst = append(dst, ' ')
	dst = append(dst, prefix...)
	dst = append(dst, attr.Key...)
	dst = append(dst, '=')
	return appendValue(dst, attr.Value)
}

func appendValue(dst []byte, v slog.Value) []byte {
	switch v.Kind() {
	case slog.KindBool:
		return strconv.AppendBool(dst, v.Bool())
	case slog.KindInt64:
		return strconv.AppendInt(dst, v.Int64(), 10)
	case slog.KindUint64:
		return strconv.AppendUint(dst, v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.AppendFloat(dst, v.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		return append(dst, v.Duration().String()...)
	case slog.KindTime:
		return v.Time().UTC().AppendFormat(dst, time.RFC3339)
	}
	s := plainValue(v)
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.AppendQuote(dst, s)
	}
	return append(dst, s...)
}

func plainValue(v slog.Value) string {
	v = v.Resolve()
	if v.Kind() != slog.KindAny {
		return v.String()
	}
	if err, ok := v.Any().(error); ok {
		return err.Error()
	}
	return fmt.Sprint(v.Any())
}

// formatSubject renders "Threshold · 1a2b3c4d" style subjects for pass logs.
func formatSubject(trigger, passID string) string {
	trigger = strings.TrimSpace(trigger)
	passID = strings.TrimSpace(passID)
	var parts []string
	if trigger != "" {
		parts = append(parts, strings.ToUpper(trigger[:1])+strings.ToLower(trigger[1:]))
	}
	if passID != "" {
		parts = append(parts, passID[:min(len(passID), 8)])
	}
	return strings.Join(parts, " · ")
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	}
	return "DEBUG"
}
