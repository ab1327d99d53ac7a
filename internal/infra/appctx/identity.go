package appctx

import (
	"context"

	"github.com/okaypadak/everup-backend/internal/infra/adapters/auth"
)

type ctxKey string

const identityKey ctxKey = "identity"

// WithIdentity attaches the verified identity to the context.
func WithIdentity(ctx context.Context, id *auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// Identity extracts the verified identity from the context.
func Identity(ctx context.Context) (*auth.Identity, bool) {
	id, ok := ctx.Value(identityKey).(*auth.Identity)
	return id, ok
}
