package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/prepa-auth/auth"
	"github.com/jrsteele09/prepa-auth/internal/config"
	"github.com/jrsteele09/prepa-auth/server"
	"github.com/jrsteele09/prepa-auth/token"
	"github.com/jrsteele09/prepa-auth/users/memrepo"
	"github.com/stretchr/testify/require"
)

const (
	goodCaptcha = "human"
	badCaptcha  = "robot"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// captchaOracle accepts only goodCaptcha.
type captchaOracle struct{}

func (captchaOracle) Validate(_ context.Context, response string) (bool, error) {
	return response == goodCaptcha, nil
}

type testFixture struct {
	clock   *testClock
	server  *server.Server
	handler http.Handler
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	t.Setenv("ENV", "TEST")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com")

	clock := &testClock{now: time.Now().Truncate(time.Second)}
	tm := token.New(token.NewHMACSigner("test-secret"),
		token.WithNowFunc(clock.Now),
		token.WithTokenExpiry(5*time.Minute, 24*time.Hour),
	)
	authService, err := auth.NewAuthenticationService(auth.Dependencies{
		Users:   memrepo.New(),
		Captcha: captchaOracle{},
		Tokens:  tm,
	}, auth.WithNowTime(clock.Now))
	require.NoError(t, err)

	srv, err := server.New(config.New(), authService)
	require.NoError(t, err)

	return &testFixture{clock: clock, server: srv, handler: srv}
}

func (f *testFixture) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

type profileBody struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type loginBody struct {
	Access  string      `json:"access"`
	Refresh string      `json:"refresh"`
	User    profileBody `json:"user"`
}

func (f *testFixture) register(t *testing.T, username, email, password string) profileBody {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/register", "", map[string]string{
		"username": username, "email": email, "password": password,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[profileBody](t, rec)
}

func (f *testFixture) login(t *testing.T, username, password string) loginBody {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/token", "", map[string]string{
		"username": username, "password": password, "recaptcha_token": goodCaptcha,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[loginBody](t, rec)
}

func TestRegister(t *testing.T) {
	f := setupTestFixture(t)

	profile := f.register(t, "alice", "a@x.com", "p1")
	require.NotEmpty(t, profile.ID)
	require.Equal(t, "alice", profile.Username)
	require.Equal(t, "a@x.com", profile.Email)

	t.Run("response never carries the password", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/register", "", map[string]string{
			"username": "carol", "email": "c@x.com", "password": "secret-pw",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		require.NotContains(t, rec.Body.String(), "password")
		require.NotContains(t, rec.Body.String(), "secret-pw")
	})

	t.Run("duplicate username", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/register", "", map[string]string{
			"username": "alice", "email": "b@x.com", "password": "p2",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "username_already_exists", decode[errorBody](t, rec).Error)
	})

	t.Run("over-length fields", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/register", "", map[string]string{
			"username": "dave", "email": strings.Repeat("d", 300) + "@x.com", "password": "p2",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "invalid_request", decode[errorBody](t, rec).Error)

		rec = f.do(t, http.MethodPost, "/register", "", map[string]string{
			"username": "dave", "email": "d@x.com", "password": "p2", "last_name": strings.Repeat("d", 151),
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "invalid_request", decode[errorBody](t, rec).Error)
	})

	t.Run("duplicate email", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/register", "", map[string]string{
			"username": "bob", "email": "a@x.com", "password": "p2",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "email_already_exists", decode[errorBody](t, rec).Error)
	})

	t.Run("invalid input", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/register", "", map[string]string{
			"username": "dave", "email": "not-an-email", "password": "p2",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := decode[errorBody](t, rec)
		require.Equal(t, "invalid_request", body.Error)
		require.Contains(t, body.ErrorDescription, "email")
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "invalid_request", decode[errorBody](t, rec).Error)
	})
}

func TestLogin(t *testing.T) {
	f := setupTestFixture(t)
	profile := f.register(t, "alice", "a@x.com", "p1")

	t.Run("success", func(t *testing.T) {
		body := f.login(t, "alice", "p1")
		require.NotEmpty(t, body.Access)
		require.NotEmpty(t, body.Refresh)
		require.Equal(t, profile, body.User)
	})

	t.Run("bad captcha wins over bad password", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/token", "", map[string]string{
			"username": "alice", "password": "wrong", "recaptcha_token": badCaptcha,
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "captcha_invalid", decode[errorBody](t, rec).Error)
	})

	t.Run("unknown user and wrong password look the same", func(t *testing.T) {
		unknown := f.do(t, http.MethodPost, "/token", "", map[string]string{
			"username": "nobody", "password": "p1", "recaptcha_token": goodCaptcha,
		})
		wrong := f.do(t, http.MethodPost, "/token", "", map[string]string{
			"username": "alice", "password": "wrong", "recaptcha_token": goodCaptcha,
		})
		require.Equal(t, http.StatusUnauthorized, unknown.Code)
		require.Equal(t, http.StatusUnauthorized, wrong.Code)
		require.Equal(t, "no_active_account", decode[errorBody](t, unknown).Error)
		require.Equal(t, unknown.Body.String(), wrong.Body.String())
	})

	t.Run("trailing slash route", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/token/", "", map[string]string{
			"username": "alice", "password": "p1", "recaptcha_token": goodCaptcha,
		})
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestTokenRefresh(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t, "alice", "a@x.com", "p1")
	tokens := f.login(t, "alice", "p1")

	f.clock.Advance(6 * time.Minute)

	rec := f.do(t, http.MethodGet, "/current-user", tokens.Access, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code, "access token has expired")

	rec = f.do(t, http.MethodPost, "/token-refresh", "", map[string]string{"refresh": tokens.Refresh})
	require.Equal(t, http.StatusOK, rec.Code)
	refreshed := decode[map[string]string](t, rec)
	require.NotEmpty(t, refreshed["access"])
	_, hasRefresh := refreshed["refresh"]
	require.False(t, hasRefresh, "refresh is not rotated")

	rec = f.do(t, http.MethodGet, "/current-user", refreshed["access"], nil)
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("access token is not a refresh token", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/token-refresh", "", map[string]string{"refresh": refreshed["access"]})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "invalid_token", decode[errorBody](t, rec).Error)
	})

	t.Run("missing refresh", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/token-refresh", "", map[string]string{})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCurrentUser(t *testing.T) {
	f := setupTestFixture(t)
	profile := f.register(t, "alice", "a@x.com", "p1")
	f.register(t, "bob", "b@x.com", "p2")
	tokens := f.login(t, "alice", "p1")

	t.Run("requires a token", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/current-user", "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "unauthorized", decode[errorBody](t, rec).Error)
		require.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
	})

	t.Run("rejects the refresh token", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/current-user", tokens.Refresh, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("get", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/current-user", tokens.Access, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, profile, decode[profileBody](t, rec))
	})

	t.Run("update", func(t *testing.T) {
		rec := f.do(t, http.MethodPut, "/current-user/me/", tokens.Access, map[string]string{
			"username": "alicia", "email": "alicia@x.com", "first_name": "Alicia", "last_name": "L",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		updated := decode[profileBody](t, rec)
		require.Equal(t, profile.ID, updated.ID)
		require.Equal(t, "alicia", updated.Username)
		require.Equal(t, "Alicia", updated.FirstName)
	})

	t.Run("update to a taken username", func(t *testing.T) {
		rec := f.do(t, http.MethodPut, "/current-user/me", tokens.Access, map[string]string{
			"username": "bob", "email": "alicia@x.com",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "username_already_exists", decode[errorBody](t, rec).Error)
	})

	t.Run("update to a taken email", func(t *testing.T) {
		rec := f.do(t, http.MethodPut, "/current-user/me", tokens.Access, map[string]string{
			"username": "alicia", "email": "b@x.com",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "email_already_exists", decode[errorBody](t, rec).Error)
	})
}

func TestChangePassword(t *testing.T) {
	f := setupTestFixture(t)
	profile := f.register(t, "alice", "a@x.com", "p1")
	tokens := f.login(t, "alice", "p1")

	f.clock.Advance(time.Millisecond)
	rec := f.do(t, http.MethodPut, "/current-user-password/me", tokens.Access, map[string]string{"password": "p9"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, profile, decode[profileBody](t, rec))

	rec = f.do(t, http.MethodGet, "/current-user", tokens.Access, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code, "existing tokens are void after a password change")

	rec = f.do(t, http.MethodPost, "/token", "", map[string]string{
		"username": "alice", "password": "p1", "recaptcha_token": goodCaptcha,
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	fresh := f.login(t, "alice", "p9")
	rec = f.do(t, http.MethodGet, "/current-user", fresh.Access, nil)
	require.Equal(t, http.StatusOK, rec.Code, "tokens from a login right after the change are usable")

	t.Run("empty password", func(t *testing.T) {
		rec := f.do(t, http.MethodPut, "/current-user-password/me", fresh.Access, map[string]string{"password": ""})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDeleteCurrentUser(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t, "alice", "a@x.com", "p1")
	tokens := f.login(t, "alice", "p1")

	f.clock.Advance(time.Millisecond)
	rec := f.do(t, http.MethodDelete, "/user-delete/me", tokens.Access, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/current-user", tokens.Access, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/token-refresh", "", map[string]string{"refresh": tokens.Refresh})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/token", "", map[string]string{
		"username": "alice", "password": "p1", "recaptcha_token": goodCaptcha,
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIPrefixAndHealth(t *testing.T) {
	t.Setenv("API_PREFIX", "/api/auth")
	f := setupTestFixture(t)

	rec := f.do(t, http.MethodPost, "/api/auth/register/", "", map[string]string{
		"username": "alice", "email": "a@x.com", "password": "p1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/register", "", map[string]string{
		"username": "bob", "email": "b@x.com", "password": "p1",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decode[map[string]string](t, rec)["status"])

	routes := f.server.Routes()
	require.Equal(t, "GET /healthz", routes[0])
	require.Contains(t, routes, "POST /api/auth/token")
	require.Contains(t, routes, "POST /api/auth/token/{$}")
	require.Contains(t, routes, "DELETE /api/auth/user-delete/me")
	require.NotContains(t, routes, "OPTIONS /api/auth/token", "preflight routes stay out of the route table")
}

func TestMethodNotAllowed(t *testing.T) {
	f := setupTestFixture(t)
	rec := f.do(t, http.MethodGet, "/token", "", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCorsPreflight(t *testing.T) {
	f := setupTestFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/token", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")

	req = httptest.NewRequest(http.MethodOptions, "/token", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
