package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yashasviy/cave-treasure-api/auth"
	"github.com/yashasviy/cave-treasure-api/models"
	"github.com/yashasviy/cave-treasure-api/store"
	"github.com/yashasviy/cave-treasure-api/treasure"
)

var testGate = auth.JWTGate{Secret: []byte("open-sesame")}

type caveFixture struct {
	handler http.Handler
	store   treasure.BalanceStore
}

func newCave(t *testing.T, s treasure.BalanceStore) caveFixture {
	t.Helper()
	if s == nil {
		s = store.NewMemory()
	}
	engine := treasure.Engine{
		Reader: treasure.Reader{Store: s, Ledger: treasure.DefaultLedger()},
		Locker: treasure.NewLocalLocker(),
	}
	return caveFixture{
		handler: NewRouter(Deps{
			Engine: engine,
			Gate:   testGate,
			Policy: auth.DefaultPolicy(),
			PublicConfig: models.AppConfig{
				AuthDomain:   "test.us.auth0.com",
				AuthClientID: "ASDF1234",
			},
		}),
		store: s,
	}
}

func token(t *testing.T, roles, permissions []string) string {
	t.Helper()
	signed, err := testGate.Issue("test-user", roles, permissions, time.Minute)
	require.NoError(t, err)
	return signed
}

// fullToken carries every capability the cave knows about.
func fullToken(t *testing.T) string {
	return token(t,
		[]string{"treasure-hunter"},
		[]string{"see:holder-treasure", "take:thief-treasure"},
	)
}

func (c caveFixture) do(t *testing.T, method, path, bearer, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	return rec
}

func (c caveFixture) stored(t *testing.T, key string) (int64, bool) {
	t.Helper()
	v, found, err := c.store.Get(context.Background(), key)
	require.NoError(t, err)
	return v, found
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	rec := newCave(t, nil).do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestPublicConfig(t *testing.T) {
	rec := newCave(t, nil).do(t, http.MethodGet, "/public/config.json", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	cfg := decode[models.AppConfig](t, rec)
	assert.Equal(t, "ASDF1234", cfg.AuthClientID)
	assert.Equal(t, "test.us.auth0.com", cfg.AuthDomain)
}

func TestAuthorities(t *testing.T) {
	bearer := token(t,
		[]string{"treasure-hunter"},
		[]string{"see:thieves-treasure", "see:alibaba-treasure", "take:thieves-treasure"},
	)
	rec := newCave(t, nil).do(t, http.MethodGet, "/cave/authorities", bearer, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body, 2)
	assert.Equal(t, "test-user", body["name"])

	got := decode[models.Authorities](t, rec)
	assert.ElementsMatch(t, []string{
		"SCOPE_see:thieves-treasure",
		"SCOPE_see:alibaba-treasure",
		"SCOPE_take:thieves-treasure",
		"ROLE_treasure-hunter",
	}, got.Authorities)
}

func TestCaveRequiresBearer(t *testing.T) {
	c := newCave(t, nil)
	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/cave/thief-balance"},
		{http.MethodGet, "/cave/holder-balance"},
		{http.MethodGet, "/cave/authorities"},
		{http.MethodPost, "/cave/transfer"},
	} {
		rec := c.do(t, route.method, route.path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, route.path)
	}
}

func TestThiefBalance(t *testing.T) {
	c := newCave(t, nil)

	rec := c.do(t, http.MethodGet, "/cave/thief-balance", fullToken(t), "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[models.TreasureModel](t, rec)
	assert.Equal(t, models.TreasureModel{Owner: "thief-balance", Amount: 1000}, got)

	v, found := c.stored(t, "thief-balance")
	assert.True(t, found)
	assert.Equal(t, int64(1000), v)
}

func TestThiefBalanceRequiresRole(t *testing.T) {
	c := newCave(t, nil)
	bearer := token(t, nil, []string{"see:holder-treasure", "take:thief-treasure", "treasure-hunter"})

	rec := c.do(t, http.MethodGet, "/cave/thief-balance", bearer, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	_, found := c.stored(t, "thief-balance")
	assert.False(t, found, "denied read must not seed")
}

func TestHolderBalance(t *testing.T) {
	c := newCave(t, nil)

	rec := c.do(t, http.MethodGet, "/cave/holder-balance", token(t, nil, []string{"see:holder-treasure"}), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.TreasureModel{Owner: "holder-balance", Amount: 0}, decode[models.TreasureModel](t, rec))

	rec = c.do(t, http.MethodGet, "/cave/holder-balance", token(t, []string{"treasure-hunter"}, nil), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTransferTwice(t *testing.T) {
	c := newCave(t, nil)
	bearer := fullToken(t)

	rec := c.do(t, http.MethodPost, "/cave/transfer", bearer, `{"owner":"holder-balance","amount":20}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]int64{"holder-balance": 20, "thief-balance": 980}, decode[map[string]int64](t, rec))

	rec = c.do(t, http.MethodPost, "/cave/transfer", bearer, `{"amount":20}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]int64{"holder-balance": 40, "thief-balance": 960}, decode[map[string]int64](t, rec))
}

func TestTransferRequiresScope(t *testing.T) {
	c := newCave(t, nil)
	bearer := token(t, []string{"treasure-hunter"}, []string{"see:holder-treasure", "take:thieves-treasure"})

	rec := c.do(t, http.MethodPost, "/cave/transfer", bearer, `{"amount":20}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	_, found := c.stored(t, "thief-balance")
	assert.False(t, found)
	_, found = c.stored(t, "holder-balance")
	assert.False(t, found)
}

func TestTransferValidation(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"zero", `{"amount":0}`, http.StatusBadRequest, "invalid_amount"},
		{"negative", `{"amount":-5}`, http.StatusBadRequest, "invalid_amount"},
		{"fraction", `{"amount":1.5}`, http.StatusBadRequest, "invalid_body"},
		{"malformed", `{"amount":`, http.StatusBadRequest, "invalid_body"},
		{"thief as owner", `{"owner":"thief-balance","amount":5}`, http.StatusBadRequest, "unknown_owner"},
		{"unknown owner", `{"owner":"cassim","amount":5}`, http.StatusBadRequest, "unknown_owner"},
		{"too much", `{"amount":1001}`, http.StatusConflict, "insufficient_funds"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newCave(t, nil)
			rec := c.do(t, http.MethodPost, "/cave/transfer", fullToken(t), tc.body)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decode[models.ErrorResponse](t, rec).Error)

			rec = c.do(t, http.MethodGet, "/cave/thief-balance", fullToken(t), "")
			assert.Equal(t, int64(1000), decode[models.TreasureModel](t, rec).Amount)
			rec = c.do(t, http.MethodGet, "/cave/holder-balance", fullToken(t), "")
			assert.Equal(t, int64(0), decode[models.TreasureModel](t, rec).Amount)
		})
	}
}

func TestTransferRejectsOversizedBody(t *testing.T) {
	c := newCave(t, nil)
	body := `{"owner":"` + strings.Repeat("a", MaxTransferBody) + `","amount":5}`

	rec := c.do(t, http.MethodPost, "/cave/transfer", fullToken(t), body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "body_too_large", decode[models.ErrorResponse](t, rec).Error)

	_, found := c.stored(t, "thief-balance")
	assert.False(t, found)
}

func TestConcurrentTransfers(t *testing.T) {
	const n, amount = 40, 25
	c := newCave(t, nil)
	bearer := fullToken(t)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := c.do(t, http.MethodPost, "/cave/transfer", bearer, `{"amount":25}`)
			assert.Equal(t, http.StatusOK, rec.Code)
		}()
	}
	wg.Wait()

	thief, _ := c.stored(t, "thief-balance")
	holder, _ := c.stored(t, "holder-balance")
	assert.Equal(t, int64(1000-n*amount), thief)
	assert.Equal(t, int64(n*amount), holder)
}

// brokenStore fails Set for the configured keys, or every call with failAll.
type brokenStore struct {
	*store.Memory
	failSet map[string]bool
	failAll bool
}

var errDown = errors.New("connection refused")

func (b brokenStore) Get(ctx context.Context, key string) (int64, bool, error) {
	if b.failAll {
		return 0, false, errDown
	}
	return b.Memory.Get(ctx, key)
}

func (b brokenStore) Set(ctx context.Context, key string, value int64, ttl time.Duration) error {
	if b.failAll || b.failSet[key] {
		return errDown
	}
	return b.Memory.Set(ctx, key, value, ttl)
}

func TestStoreUnavailable(t *testing.T) {
	c := newCave(t, brokenStore{Memory: store.NewMemory(), failAll: true})

	rec := c.do(t, http.MethodGet, "/cave/thief-balance", fullToken(t), "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "store_unavailable", decode[models.ErrorResponse](t, rec).Error)

	rec = c.do(t, http.MethodPost, "/cave/transfer", fullToken(t), `{"amount":5}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPartialWriteIsSurfaced(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.Set(ctx, "thief-balance", 1000, time.Minute))
	require.NoError(t, mem.Set(ctx, "holder-balance", 0, time.Minute))
	c := newCave(t, brokenStore{Memory: mem, failSet: map[string]bool{"thief-balance": true}})

	rec := c.do(t, http.MethodPost, "/cave/transfer", fullToken(t), `{"amount":5}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "partial_write", decode[models.ErrorResponse](t, rec).Error)
}
