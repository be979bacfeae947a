package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultRolesClaim is the namespaced claim carrying role names.
	DefaultRolesClaim = "custom.jwt.namespace/roles"

	permissionsClaim = "permissions"
)

// Gate turns a bearer credential into a verified principal.
type Gate interface {
	Verify(ctx context.Context, bearer string) (Principal, error)
}

// JWTGate verifies HMAC-signed bearer tokens. Entries of the permissions
// claim become SCOPE_ tags and entries of the roles claim become ROLE_ tags.
type JWTGate struct {
	Secret     []byte
	Issuer     string
	Audience   string
	RolesClaim string
	Now        func() time.Time
}

func (g JWTGate) Verify(_ context.Context, bearer string) (Principal, error) {
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return Principal{}, ErrUnauthenticated
	}
	if len(g.Secret) == 0 {
		return Principal{}, errors.New("jwt gate is not configured")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
	}
	if g.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(g.Issuer))
	}
	if g.Audience != "" {
		opts = append(opts, jwt.WithAudience(g.Audience))
	}
	if g.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(g.Now))
	}

	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(bearer, claims, func(*jwt.Token) (any, error) {
		return g.Secret, nil
	}, opts...); err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	subject, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return Principal{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}

	var capabilities []string
	for _, role := range stringList(claims[g.rolesClaim()]) {
		capabilities = append(capabilities, Role(role))
	}
	for _, permission := range stringList(claims[permissionsClaim]) {
		capabilities = append(capabilities, Scope(permission))
	}
	return Principal{Name: subject, Capabilities: capabilities}, nil
}

// Issue signs a token for name. It backs local tooling and tests; production
// tokens come from the identity provider.
func (g JWTGate) Issue(name string, roles, permissions []string, ttl time.Duration) (string, error) {
	now := time.Now()
	if g.Now != nil {
		now = g.Now()
	}
	claims := jwt.MapClaims{
		"sub":            name,
		"iat":            now.Unix(),
		"exp":            now.Add(ttl).Unix(),
		permissionsClaim: permissions,
		g.rolesClaim():   roles,
	}
	if g.Issuer != "" {
		claims["iss"] = g.Issuer
	}
	if g.Audience != "" {
		claims["aud"] = g.Audience
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.Secret)
}

func (g JWTGate) rolesClaim() string {
	if g.RolesClaim == "" {
		return DefaultRolesClaim
	}
	return g.RolesClaim
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func stringList(raw any) []string {
	switch v := raw.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		return strings.Fields(v)
	default:
		return nil
	}
}
