package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

// newJSONHandler writes one JSON object per record with a UTC "ts" key,
// lowercase levels and file:line sources. The daemon log file always uses it.
func newJSONHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   addSource,
		ReplaceAttr: jsonReplaceAttr,
	})
}

func jsonReplaceAttr(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return attr
	}
	switch attr.Key {
	case slog.TimeKey:
		if attr.Value.Kind() == slog.KindTime {
			return slog.String("ts", attr.Value.Time().UTC().Format(time.RFC3339Nano))
		}
		attr.Key = "ts"
	case slog.LevelKey:
		attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
	case slog.SourceKey:
		if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
			attr.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
		}
	}
	return attr
}

// teeHandler mirrors every record to the operator-facing output and the
// daemon log file.
type teeHandler struct {
	out  slog.Handler
	file slog.Handler
}

func tee(out, file slog.Handler) slog.Handler {
	switch {
	case out == nil && file == nil:
		return NoopHandler{}
	case file == nil:
		return out
	case out == nil:
		return file
	}
	return teeHandler{out: out, file: file}
}

func (h teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.out.Enabled(ctx, level) || h.file.Enabled(ctx, level)
}

func (h teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var outErr error
	if h.out.Enabled(ctx, record.Level) {
		outErr = h.out.Handle(ctx, record.Clone())
	}
	if !h.file.Enabled(ctx, record.Level) {
		return outErr
	}
	if err := h.file.Handle(ctx, record); err != nil && outErr == nil {
		return err
	}
	return outErr
}

func (h teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return teeHandler{out: h.out.WithAttrs(attrs), file: h.file.WithAttrs(attrs)}
}

func (h teeHandler) WithGroup(name string) slog.Handler {
	return teeHandler{out: h.out.WithGroup(name), file: h.file.WithGroup(name)}
}
