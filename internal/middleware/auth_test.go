package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/two-step-auth/internal/config"
	"github.com/iliyamo/two-step-auth/internal/cookie"
	"github.com/iliyamo/two-step-auth/internal/model"
	"github.com/iliyamo/two-step-auth/internal/repository"
	"github.com/iliyamo/two-step-auth/internal/session"
	"github.com/iliyamo/two-step-auth/internal/token"
)

const (
	testSecret     = "test-secret-0123456789abcdef"
	testIssuer     = "two-step-auth-test"
	testCookieName = "token"
)

func testConfig() config.Config {
	return config.Config{
		JWTSecret:      testSecret,
		JWTIssuer:      testIssuer,
		PreAuthScope:   "pre_auth",
		AuthScope:      "auth",
		ClaimRoles:     "roles",
		ClaimScope:     "scope",
		ClaimSession:   "session_id",
		AccessTTLMin:   15,
		SessionTTLDays: 30,
		Cookie: config.CookieConfig{
			Name:     testCookieName,
			Path:     "/",
			HTTPOnly: true,
			MaxAge:   1800,
		},
	}
}

type memSessionStore struct {
	mu   sync.Mutex
	rows map[string]model.RefreshSession
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{rows: map[string]model.RefreshSession{}}
}

func (s *memSessionStore) GetBySessionID(_ context.Context, id string) (model.RefreshSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return model.RefreshSession{}, repository.ErrNotFound
	}
	return row, nil
}

func (s *memSessionStore) Create(_ context.Context, row model.RefreshSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[row.SessionID] = row
	return nil
}

func (s *memSessionStore) Renew(_ context.Context, row model.RefreshSession) error {
	return s.Create(context.Background(), row)
}

func (s *memSessionStore) UpdateToken(_ context.Context, id, previous, next string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	if row.Token != previous {
		return repository.ErrConflict
	}
	row.Token = next
	s.rows[id] = row
	return nil
}

func (s *memSessionStore) Lock(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.rows[id]
	row.Locked = true
	s.rows[id] = row
	return nil
}

func (s *memSessionStore) ExistsBySessionID(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rows[id]
	return ok, nil
}

type fakeAccounts struct {
	byUsername map[string]model.Account
}

func (f *fakeAccounts) FindByUsername(_ context.Context, username string) (model.Account, error) {
	a, ok := f.byUsername[username]
	if !ok {
		return model.Account{}, repository.ErrNotFound
	}
	return a, nil
}

type fixture struct {
	gate     *Gate
	codec    *token.Codec
	store    *memSessionStore
	accounts *fakeAccounts
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testConfig()
	store := newMemSessionStore()
	codec := token.NewCodec(cfg, store)
	mgr := session.NewManager(cfg, store, codec)
	accounts := &fakeAccounts{byUsername: map[string]model.Account{
		"alice": {ID: 1, Username: "alice", Email: "alice@example.com", Role: "USER"},
	}}
	jar := cookie.NewJar(cfg.Cookie)
	return &fixture{
		gate:     NewGate(codec, mgr, accounts, jar),
		codec:    codec,
		store:    store,
		accounts: accounts,
	}
}

// do sends a request through the gate into a probe handler that reports the
// established identity.
func (f *fixture) do(t *testing.T, scope Scope, rawToken string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	if rawToken != "" {
		req.AddCookie(&http.Cookie{Name: testCookieName, Value: rawToken})
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := f.gate.RequireScope(scope)(func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{
			"username": c.Get("username"),
			"roles":    c.Get("roles"),
		})
	})
	require.NoError(t, handler(c))
	return rec
}

func signRaw(t *testing.T, secret, scope, sessionID string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"iss":        testIssuer,
		"sub":        "alice",
		"roles":      []string{"USER"},
		"scope":      scope,
		"session_id": sessionID,
		"exp":        exp.Unix(),
		"iat":        time.Now().UTC().Unix(),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return raw
}

func tokenCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == testCookieName {
			return ck
		}
	}
	return nil
}

func TestGateRejectsMissingToken(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, ScopeAuth, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGateRejectsWrongScope(t *testing.T) {
	f := newFixture(t)
	pre := signRaw(t, testSecret, "pre_auth", uuid.NewString(), time.Now().Add(time.Hour))

	rec := f.do(t, ScopeAuth, pre)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "pre_auth token must not reach protected routes")

	rec = f.do(t, ScopePreAuth, pre)
	assert.Equal(t, http.StatusOK, rec.Code, "the same token belongs at the code endpoints")
}

func TestGateRejectsAuthTokenAtPreAuthGate(t *testing.T) {
	f := newFixture(t)
	full := signRaw(t, testSecret, "auth", uuid.NewString(), time.Now().Add(time.Hour))

	rec := f.do(t, ScopePreAuth, full)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "fully authenticated callers are rejected too")
}

func TestGateRejectsUnknownScope(t *testing.T) {
	f := newFixture(t)
	odd := signRaw(t, testSecret, "superuser", uuid.NewString(), time.Now().Add(time.Hour))
	rec := f.do(t, ScopeAuth, odd)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGateAdmitsFreshToken(t *testing.T) {
	f := newFixture(t)
	full := signRaw(t, testSecret, "auth", uuid.NewString(), time.Now().Add(time.Hour))

	rec := f.do(t, ScopeAuth, full)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alice")
	assert.Nil(t, tokenCookie(t, rec), "a fresh token must not be rotated")
}

func TestGateSilentlyRefreshesExpiredToken(t *testing.T) {
	f := newFixture(t)
	sid := uuid.NewString()
	expired := signRaw(t, testSecret, "auth", sid, time.Now().Add(-time.Minute))

	require.NoError(t, f.store.Create(context.Background(), model.RefreshSession{
		SessionID: sid,
		AccountID: 1,
		Token:     expired,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}))

	rec := f.do(t, ScopeAuth, expired)
	assert.Equal(t, http.StatusOK, rec.Code, "request proceeds on a valid session")

	ck := tokenCookie(t, rec)
	require.NotNil(t, ck, "the rotated credential must be emitted to the response")
	require.NotEqual(t, expired, ck.Value)

	cl, err := f.codec.DecodeClaims(ck.Value)
	require.NoError(t, err)
	assert.Equal(t, sid, cl.SessionID)
	assert.Equal(t, "auth", cl.Scope)
	assert.True(t, cl.ExpiresAt.After(time.Now()))
}

func TestGateRejectsExpiredTokenOnLockedSession(t *testing.T) {
	f := newFixture(t)
	sid := uuid.NewString()
	expired := signRaw(t, testSecret, "auth", sid, time.Now().Add(-time.Minute))

	require.NoError(t, f.store.Create(context.Background(), model.RefreshSession{
		SessionID: sid,
		AccountID: 1,
		Token:     expired,
		Locked:    true,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}))

	rec := f.do(t, ScopeAuth, expired)
	assert.Equal(t, http.StatusUnauthorized, rec.Code,
		"a locked session rejects rotation regardless of signature validity")
}

func TestGateRejectsExpiredTokenWithoutSession(t *testing.T) {
	f := newFixture(t)
	expired := signRaw(t, testSecret, "auth", uuid.NewString(), time.Now().Add(-time.Minute))
	rec := f.do(t, ScopeAuth, expired)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGateFlagsTamperedToken(t *testing.T) {
	f := newFixture(t)
	forged := signRaw(t, "wrong-secret", "auth", uuid.NewString(), time.Now().Add(time.Hour))

	rec := f.do(t, ScopeAuth, forged)
	assert.Equal(t, http.StatusBadRequest, rec.Code,
		"an unexpired token failing verification is tampering, not expiry")
}

func TestGateRejectsUnknownAccount(t *testing.T) {
	f := newFixture(t)
	delete(f.accounts.byUsername, "alice")
	full := signRaw(t, testSecret, "auth", uuid.NewString(), time.Now().Add(time.Hour))

	rec := f.do(t, ScopeAuth, full)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGateRejectsBlockedAccount(t *testing.T) {
	f := newFixture(t)
	acct := f.accounts.byUsername["alice"]
	acct.IsBlocked = true
	f.accounts.byUsername["alice"] = acct

	full := signRaw(t, testSecret, "auth", uuid.NewString(), time.Now().Add(time.Hour))
	rec := f.do(t, ScopeAuth, full)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
