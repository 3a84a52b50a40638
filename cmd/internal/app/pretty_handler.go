package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// prettyField controls how one well-known attribute of the http.request and
// session events is printed: an optional shorter key and a colorizer.
type prettyField struct {
	label  string
	render func(v slog.Value, color bool) string
}

var prettyFields = map[string]prettyField{
	"method": {render: func(v slog.Value, color bool) string {
		return colorizeHTTPMethod(strings.ToUpper(v.String()), color)
	}},
	"status": {render: func(v slog.Value, color bool) string {
		if n, ok := valueToInt64(v); ok {
			return colorizeStatusCode(int(n), color)
		}
		return quoteIfNeeded(v.String())
	}},
	"status_class": {label: "class", render: func(v slog.Value, color bool) string {
		return colorizeStatusClass(v.String(), color)
	}},
	"duration_ms": {label: "duration", render: func(v slog.Value, color bool) string {
		if n, ok := valueToInt64(v); ok {
			return colorizeDurationMS(n, color)
		}
		return quoteIfNeeded(v.String())
	}},
	"result": {render: func(v slog.Value, color bool) string {
		return colorizeResult(strings.ToLower(v.String()), color)
	}},
	"err":        {render: paintQuoted(ansiRed)},
	"request_id": {render: paintQuoted(ansiDim)},
	"session_id": {render: paintQuoted(ansiDim)},
}

func paintQuoted(color string) func(slog.Value, bool) string {
	return func(v slog.Value, enabled bool) string {
		return paint(quoteIfNeeded(plainValue(v)), color, enabled)
	}
}

var levelTags = []struct {
	min   slog.Level
	tag   string
	color string
}{
	{slog.LevelError, "[ERROR]", ansiRed},
	{slog.LevelWarn, "[WARN]", ansiYellow},
	{slog.LevelInfo, "[INFO]", ansiBlue},
}

func levelTag(level slog.Level, color bool) string {
	for _, t := range levelTags {
		if level >= t.min {
			return paint(t.tag, t.color, color)
		}
	}
	return paint("[DEBUG]", ansiMagenta, color)
}

// prettyHandler writes one "ts= lvl= msg= key=value..." line per record.
// Handlers derived through WithAttrs and WithGroup share the writer lock.
type prettyHandler struct {
	w      io.Writer
	mu     *sync.Mutex
	level  slog.Leveler
	source bool
	color  bool
	prefix string // open groups, dot-joined with a trailing dot
	pre    []byte // preformatted WithAttrs output
}

func newPrettyHandler(w io.Writer, opts *slog.HandlerOptions, color bool) slog.Handler {
	h := &prettyHandler{w: w, mu: &sync.Mutex{}, level: slog.LevelInfo, color: color}
	if opts != nil {
		if opts.Level != nil {
			h.level = opts.Level
		}
		h.source = opts.AddSource
	}
	return h
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	buf := make([]byte, 0, 256)
	buf = append(buf, "ts="...)
	buf = append(buf, paint(ts.Format("15:04:05.000"), ansiDim, h.color)...)
	buf = append(buf, " lvl="...)
	buf = append(buf, levelTag(r.Level, h.color)...)
	buf = append(buf, " msg="...)
	buf = append(buf, paint(r.Message, ansiBright, h.color)...)

	if h.source {
		if src := r.Source(); src != nil && src.File != "" {
			loc := filepath.Base(src.File) + ":" + strconv.Itoa(src.Line)
			buf = append(buf, " src="...)
			buf = append(buf, paint(loc, ansiDim, h.color)...)
		}
	}

	buf = append(buf, h.pre...)
	r.Attrs(func(a slog.Attr) bool {
		buf = h.appendAttr(buf, h.prefix, a)
		return true
	})
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	cp := *h
	cp.pre = append([]byte(nil), h.pre...)
	for _, a := range attrs {
		cp.pre = h.appendAttr(cp.pre, h.prefix, a)
	}
	return &cp
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	name = strings.TrimSpace(name)
	if name == "" {
		return h
	}
	cp := *h
	cp.prefix = h.prefix + name + "."
	return &cp
}

// appendAttr flattens groups into dotted keys. Only top-level keys outside
// any group get the field styling above.
func (h *prettyHandler) appendAttr(buf []byte, prefix string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	key := strings.TrimSpace(a.Key)

	if a.Value.Kind() == slog.KindGroup {
		if key != "" {
			prefix += key + "."
		}
		for _, ga := range a.Value.Group() {
			buf = h.appendAttr(buf, prefix, ga)
		}
		return buf
	}
	if key == "" {
		return buf
	}

	full := prefix + key
	buf = append(buf, ' ')
	if f, ok := prettyFields[full]; ok {
		if f.label != "" {
			full = f.label
		}
		buf = append(buf, full...)
		buf = append(buf, '=')
		return append(buf, f.render(a.Value, h.color)...)
	}
	buf = append(buf, full...)
	buf = append(buf, '=')
	return append(buf, quoteIfNeeded(plainValue(a.Value))...)
}

func plainValue(v slog.Value) string {
	if v.Kind() == slog.KindTime {
		return v.Time().Format(time.RFC3339)
	}
	return v.String()
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
