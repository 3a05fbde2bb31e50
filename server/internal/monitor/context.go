package monitor

import (
	"context"
	"strings"
)

type operatorKey struct{}

// WithOperator returns a context carrying the name of the operator making
// the request.
func WithOperator(ctx context.Context, name string) context.Context {
	name = strings.TrimSpace(name)
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, operatorKey{}, name)
}

// OperatorFrom returns the operator stored by WithOperator, or "".
func OperatorFrom(ctx context.Context) string {
	name, _ := ctx.Value(operatorKey{}).(string)
	return name
}
