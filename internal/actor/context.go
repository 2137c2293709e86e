package actor

import "context"

type actorContextKey struct{}

// WithContext attaches the actor context to the request context.
func WithContext(ctx context.Context, a Context) context.Context {
	return context.WithValue(ctx, actorContextKey{}, &a)
}

// FromContext extracts the actor context from the request context.
func FromContext(ctx context.Context) (Context, bool) {
	if ctx == nil {
		return Context{}, false
	}
	v, ok := ctx.Value(actorContextKey{}).(*Context)
	if !ok || v == nil {
		return Context{}, false
	}
	return *v, true
}
