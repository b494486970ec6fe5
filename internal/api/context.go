package api

import (
	"context"

	"eddisonso.com/edd-directory/internal/auth"
)

type contextKey string

const identityContextKey contextKey = "identity"

func setIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

func identityFromContext(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(auth.Identity)
	return id, ok
}
