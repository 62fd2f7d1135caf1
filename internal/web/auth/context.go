package auth

import "context"

type contextKey struct{}

// WithUser returns a context carrying user
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFrom returns the user stored in ctx, or nil
func UserFrom(ctx context.Context) *User {
	user, _ := ctx.Value(contextKey{}).(*User)
	return user
}

// UserID returns the id of the user stored in ctx, or an empty string
func UserID(ctx context.Context) string {
	if user := UserFrom(ctx); user != nil {
		return user.ID
	}
	return ""
}
