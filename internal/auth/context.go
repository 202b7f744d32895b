package auth

import (
	"context"
	"errors"
)

type ctxKey struct{}

var ErrNoOwner = errors.New("owner not in context")

func WithOwner(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// OwnerID returns the authenticated owner set by RequireAccessToken.
func OwnerID(ctx context.Context) (string, error) {
	if s, ok := ctx.Value(ctxKey{}).(string); ok && s != "" {
		return s, nil
	}
	return "", ErrNoOwner
}
