package services

import (
	"context"

	"github.com/ekaya-inc/ekaya-composites/pkg/database"
)

// TxRunner runs fn inside a database transaction that repositories see
// through the context passed to fn. *database.DB implements it.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ScopeProvider acquires a connection scope for work that does not start from
// an HTTP request, such as the review scheduler. *database.DB implements it.
type ScopeProvider interface {
	WithScope(ctx context.Context) (context.Context, func(), error)
}

var (
	_ TxRunner      = (*database.DB)(nil)
	_ ScopeProvider = (*database.DB)(nil)
)

// ensureScope reuses the scope already in ctx, or acquires one from p.
func ensureScope(ctx context.Context, p ScopeProvider) (context.Context, func(), error) {
	if _, ok := database.QuerierFrom(ctx); ok {
		return ctx, func() {}, nil
	}
	return p.WithScope(ctx)
}
