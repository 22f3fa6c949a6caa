package auth

import "context"

type contextKey string

const userKey contextKey = "authUser"

// User represents an authenticated control surface.
type User struct {
	Sub         string
	SurfaceName string
	Scope       Scope
	Type        TokenType
}

// CanControl reports whether the surface may issue zone commands.
func (u User) CanControl() bool {
	return u.Scope != ScopeMonitor
}

// CanControlFromContext reports whether the request's surface may issue
// commands. Requests without a user are trusted; the middleware decides
// which routes need one.
func CanControlFromContext(ctx context.Context) bool {
	user, ok := UserFromContext(ctx)
	return !ok || user.CanControl()
}

// WithUser stores an authenticated user in the context.
func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the authenticated user, if present.
func UserFromContext(ctx context.Context) (User, bool) {
	if ctx == nil {
		return User{}, false
	}
	user, ok := ctx.Value(userKey).(User)
	return user, ok
}
