// Package audit wraps an slog.Handler so that attributes carrying key
// material are redacted before they reach any sink, independent of
// whether the caller remembered to wrap the value in a
// secretbuf.Buffer. Grounded on the audit-log redaction guarantees
// original_source/tests/audit_redaction.rs asserts against the Rust
// implementation's tracing subscriber, reimplemented here as an
// slog.Handler decorator in the teacher's logging idiom
// (OKaluzny-wallet-demo builds one *slog.Logger per component via
// .With("component", ...); this handler sits underneath all of them).
package audit

import (
	"context"
	"log/slog"
)

// redactedKeys lists attribute keys that are always replaced with a
// fixed placeholder, regardless of their value's type. Any component
// that might accidentally log raw key material under one of these
// names — rather than through a secretbuf.Buffer, which already
// redacts its own String()/MarshalJSON — is covered by this list as a
// second line of defense.
var redactedKeys = map[string]bool{
	"master_key":     true,
	"seed":           true,
	"private_key":    true,
	"priv":           true,
	"mnemonic":       true,
	"seed_phrase":    true,
	"encryption_key": true,
	"kek":            true,
	"raw_signed":     true,
}

const redactedPlaceholder = "REDACTED"

// Handler wraps another slog.Handler, redacting any attribute (at any
// nesting depth, including inside groups) whose key is in the
// redacted-key set.
type Handler struct {
	next slog.Handler
}

// New wraps next with redaction. next is typically
// slog.NewJSONHandler or slog.NewTextHandler pointed at the process's
// real log sink.
func New(next slog.Handler) *Handler {
	return &Handler{next: next}
}

// Enabled delegates to the wrapped handler.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle redacts r's attributes before delegating.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	redacted := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		redacted.AddAttrs(redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, redacted)
}

// WithAttrs redacts the group/with-bound attrs eagerly, matching the
// way a component might call logger.With("master_key", buf).
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = redactAttr(a)
	}
	return &Handler{next: h.next.WithAttrs(out)}
}

// WithGroup delegates group nesting to the wrapped handler; attrs
// added inside the group still pass through Handle/WithAttrs.
func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{next: h.next.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	if redactedKeys[a.Key] {
		return slog.String(a.Key, redactedPlaceholder)
	}
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		out := make([]slog.Attr, len(group))
		for i, ga := range group {
			out[i] = redactAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	return a
}
