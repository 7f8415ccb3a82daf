package engine

import "context"

type txMarker struct{}

// WithTransaction marks the context as running inside a transaction.
// Engine adapters call it when they open one; stream executions refuse to
// run without it.
func WithTransaction(ctx context.Context) context.Context {
	return context.WithValue(ctx, txMarker{}, true)
}

// ActiveTransaction reports whether the context carries a transaction.
func ActiveTransaction(ctx context.Context) bool {
	active, _ := ctx.Value(txMarker{}).(bool)
	return active
}
