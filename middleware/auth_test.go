package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yashasviy/cave-treasure-api/auth"
)

type stubGate struct {
	principal auth.Principal
	err       error
}

func (g stubGate) Verify(_ context.Context, bearer string) (auth.Principal, error) {
	if g.err != nil {
		return auth.Principal{}, g.err
	}
	if bearer != "good" {
		return auth.Principal{}, auth.ErrUnauthenticated
	}
	return g.principal, nil
}

func protected(gate auth.Gate, op auth.Operation, hit *bool) http.Handler {
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hit = true
		w.WriteHeader(http.StatusNoContent)
	})
	return Authenticate(gate, nil)(Authorize(auth.DefaultPolicy(), op, nil)(final))
}

func serve(h http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/cave/thief-balance", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticateRejectsMissingOrBadToken(t *testing.T) {
	gate := stubGate{principal: auth.Principal{Name: "ali", Capabilities: []string{"ROLE_treasure-hunter"}}}

	for _, header := range []string{"", "Basic abc", "Bearer bad"} {
		var hit bool
		rec := serve(protected(gate, auth.OpReadThief, &hit), header)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
		assert.False(t, hit)
	}
}

func TestAuthenticateGateFailure(t *testing.T) {
	var hit bool
	rec := serve(protected(stubGate{err: errors.New("jwks down")}, auth.OpReadThief, &hit), "Bearer good")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, hit)
}

func TestAuthorizeGatesByCapability(t *testing.T) {
	hunter := stubGate{principal: auth.Principal{Name: "ali", Capabilities: []string{"ROLE_treasure-hunter"}}}

	var hit bool
	rec := serve(protected(hunter, auth.OpReadThief, &hit), "Bearer good")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, hit)

	hit = false
	rec = serve(protected(hunter, auth.OpTransfer, &hit), "Bearer good")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"forbidden","message":"access denied"}`, rec.Body.String())
	assert.False(t, hit)
}

func TestAuthorizeWithoutPrincipal(t *testing.T) {
	var hit bool
	h := Authorize(auth.DefaultPolicy(), auth.OpAuthorities, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		hit = true
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cave/authorities", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, hit)
}
