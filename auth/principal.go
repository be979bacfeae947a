package auth

import "context"

// Principal is a verified caller and the capability tags asserted for it
// for the duration of one request.
type Principal struct {
	Name         string
	Capabilities []string
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
