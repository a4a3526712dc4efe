package grpcserver

import (
	"context"

	"github.com/jtaw5649/barforge-registry/internal/model"
)

type ctxKey string

const userKey ctxKey = "barforge.user"

// WithUser stores the authenticated user in context.
func WithUser(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFromCtx returns the authenticated user, or nil for anonymous calls.
func UserFromCtx(ctx context.Context) *model.User {
	u, _ := ctx.Value(userKey).(*model.User)
	return u
}
