package log

import (
	"context"

	kitlog "github.com/go-kit/log"
)

type ctxKey struct{}

// WithLogValues returns a child context carrying additional structured
// log fields, accumulating on top of any values already attached to ctx.
func WithLogValues(ctx context.Context, keyvals ...interface{}) context.Context {
	existing, _ := ctx.Value(ctxKey{}).([]interface{})
	merged := append(append([]interface{}{}, existing...), keyvals...)
	return context.WithValue(ctx, ctxKey{}, merged)
}

// LogCtx logs a message along with every field attached via WithLogValues.
func LogCtx(ctx context.Context, message string, keyvals ...interface{}) {
	fields, _ := ctx.Value(ctxKey{}).([]interface{})
	all := append(append([]interface{}{}, fields...), keyvals...)
	_ = kitlog.With(newLogger(), "msg", message).Log(redactKeyvals(all...)...)
}
