// Package logging provides an slog handler that prints one indented JSON
// object per record. It exists for the scraper's -v frame dumps, where a
// human is reading raw engine frames and single-line JSON is unworkable.
package logging

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// PrettyJSONHandler is not optimized for throughput; it marshals every
// record with json.MarshalIndent.
type PrettyJSONHandler struct {
	w     io.Writer
	mu    *sync.Mutex
	level slog.Leveler

	attrs  []slog.Attr
	prefix string
}

func NewPrettyJSONHandler(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	var level slog.Leveler = slog.LevelInfo
	if opts != nil && opts.Level != nil {
		level = opts.Level
	}
	return &PrettyJSONHandler{
		w:     w,
		mu:    &sync.Mutex{},
		level: level,
	}
}

func (h *PrettyJSONHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *PrettyJSONHandler) Handle(_ context.Context, r slog.Record) error {
	payload := make(map[string]any, 4+r.NumAttrs())

	when := r.Time
	if when.IsZero() {
		when = time.Now()
	}
	payload["time"] = when.Format(time.RFC3339Nano)
	payload["level"] = r.Level.String()
	payload["msg"] = r.Message

	for _, a := range h.attrs {
		addAttr(payload, h.prefix, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(payload, h.prefix, a)
		return true
	})

	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		// last resort; never drop the record outright
		b = []byte("{\"level\":" + strconv.Quote(r.Level.String()) + ",\"msg\":" + strconv.Quote(r.Message) + "}")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.w.Write(append(b, '\n'))
	return err
}

func (h *PrettyJSONHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

// WithGroup flattens groups into a dotted key prefix instead of nesting.
func (h *PrettyJSONHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

func addAttr(dst map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if a.Key == "" {
		return
	}
	key := prefix + a.Key

	switch v.Kind() {
	case slog.KindGroup:
		for _, ga := range v.Group() {
			addAttr(dst, key+".", ga)
		}
	case slog.KindDuration:
		dst[key] = v.Duration().String()
	case slog.KindTime:
		dst[key] = v.Time().Format(time.RFC3339Nano)
	default:
		dst[key] = v.Any()
	}
}
