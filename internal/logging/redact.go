package logging

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// Attribute keys containing any of these are always fully redacted.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"private_key",
	"api_key",
	"apikey",
	"authorization",
	"credential",
}

// ethPrivateKeyPattern matches 0x-prefixed 32-byte hex strings. Transaction
// hashes share this shape, so values under tx_hash keys are exempt.
var ethPrivateKeyPattern = regexp.MustCompile(`\b0x[0-9a-fA-F]{64}\b`)

// jwtPattern matches the allow-list store's JWT-shaped service keys.
var jwtPattern = regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}`)

// storeKeyPattern matches opaque store keys (sb_secret_*, sb_publishable_*) and
// mail API keys (re_*).
var storeKeyPattern = regexp.MustCompile(`\b(sb_(?:secret|publishable)|re)_[A-Za-z0-9_]{8,}`)

// RedactingHandler wraps an slog.Handler and scrubs secrets before the inner
// handler sees them.
type RedactingHandler struct {
	inner slog.Handler
}

// NewRedactingHandler creates a RedactingHandler that wraps the given inner handler.
func NewRedactingHandler(inner slog.Handler) *RedactingHandler {
	return &RedactingHandler{inner: inner}
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, redactString(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(redactAttr(a))
		return true
	})
	return h.inner.Handle(ctx, out)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = redactAttr(a)
	}
	return &RedactingHandler{inner: h.inner.WithAttrs(redacted)}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)

	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(key, pattern) {
			return slog.String(a.Key, "[REDACTED]")
		}
	}

	switch a.Value.Kind() {
	case slog.KindGroup:
		group := a.Value.Group()
		redacted := make([]any, len(group))
		for i, ga := range group {
			redacted[i] = redactAttr(ga)
		}
		return slog.Group(a.Key, redacted...)
	case slog.KindString:
		if key == "tx_hash" || key == "hash" {
			return a
		}
		val := a.Value.String()
		if redacted := redactString(val); redacted != val {
			return slog.String(a.Key, redacted)
		}
	}
	return a
}

// redactString masks known secret shapes inside free text.
func redactString(val string) string {
	val = ethPrivateKeyPattern.ReplaceAllStringFunc(val, func(match string) string {
		return match[:6] + "..." + match[len(match)-4:]
	})
	val = jwtPattern.ReplaceAllString(val, "eyJ...[REDACTED]")
	val = storeKeyPattern.ReplaceAllStringFunc(val, func(match string) string {
		idx := strings.LastIndex(match[:min(len(match), 16)], "_")
		return match[:idx+1] + "[REDACTED]"
	})
	return val
}
