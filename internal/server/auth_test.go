package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3ad-solutions/intake/internal/config"
)

func newTestAuth() *Auth {
	return NewAuth(config.AuthConfig{
		AdminPassword:  "hunter2-but-longer",
		SessionSecret:  "0123456789abcdef0123456789abcdef",
		SessionTTLDays: 7,
	})
}

func TestAuth_LoginAndVerify(t *testing.T) {
	a := newTestAuth()

	token, err := a.Login("hunter2-but-longer")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.NoError(t, a.Verify(token))
}

func TestAuth_Login_WrongPassword(t *testing.T) {
	a := newTestAuth()

	_, err := a.Login("wrong")
	assert.True(t, errors.Is(err, ErrBadCredentials))
}

func TestAuth_Login_NoPasswordConfigured(t *testing.T) {
	a := NewAuth(config.AuthConfig{SessionSecret: "0123456789abcdef0123456789abcdef"})

	_, err := a.Login("")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrBadCredentials))
}

func TestAuth_Verify_WrongSecret(t *testing.T) {
	a := newTestAuth()
	other := NewAuth(config.AuthConfig{
		AdminPassword: "hunter2-but-longer",
		SessionSecret: "ffffffffffffffffffffffffffffffff",
	})

	token, err := other.Login("hunter2-but-longer")
	require.NoError(t, err)
	assert.Error(t, a.Verify(token))
}

func TestAuth_NoSecretConfigured(t *testing.T) {
	a := NewAuth(config.AuthConfig{AdminPassword: "hunter2-but-longer"})

	_, err := a.Login("hunter2-but-longer")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrBadCredentials))

	// A token signed with an empty HS256 key is exactly what an attacker
	// can mint without knowing anything. It must not verify.
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "admin",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(""))
	require.NoError(t, err)
	assert.Error(t, a.Verify(forged))
}

func TestAuth_Verify_Expired(t *testing.T) {
	a := newTestAuth()
	a.ttl = -time.Hour

	token, err := a.issueToken()
	require.NoError(t, err)
	assert.Error(t, a.Verify(token))
}

func TestAuth_Verify_Garbage(t *testing.T) {
	a := newTestAuth()
	assert.Error(t, a.Verify("not-a-token"))
}

func TestAuth_DefaultTTL(t *testing.T) {
	a := NewAuth(config.AuthConfig{AdminPassword: "x", SessionSecret: "y"})
	assert.Equal(t, 7*24*time.Hour, a.ttl)
}

func TestAuth_Middleware(t *testing.T) {
	a := newTestAuth()
	handler := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := a.Login("hunter2-but-longer")
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: token})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_SessionCookieFlags(t *testing.T) {
	a := newTestAuth()
	rec := httptest.NewRecorder()
	a.SetSession(rec, "some-token")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, sessionCookie, c.Name)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Positive(t, c.MaxAge)

	rec = httptest.NewRecorder()
	a.ClearSession(rec)
	cookies = rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestAuth_SecureCookies(t *testing.T) {
	a := newTestAuth()
	rec := httptest.NewRecorder()
	a.SetSession(rec, "some-token")
	assert.False(t, rec.Result().Cookies()[0].Secure)

	a = NewAuth(config.AuthConfig{
		AdminPassword: "hunter2-but-longer",
		SessionSecret: "0123456789abcdef0123456789abcdef",
		SecureCookies: true,
	})
	rec = httptest.NewRecorder()
	a.SetSession(rec, "some-token")
	assert.True(t, rec.Result().Cookies()[0].Secure)

	rec = httptest.NewRecorder()
	a.ClearSession(rec)
	assert.True(t, rec.Result().Cookies()[0].Secure)
}
