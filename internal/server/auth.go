package server

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rotisserie/eris"

	"github.com/l3ad-solutions/intake/internal/config"
)

const sessionCookie = "session"

// ErrBadCredentials is returned for a wrong admin password. The handler
// maps it to 401 without detail.
var ErrBadCredentials = eris.New("server: bad credentials")

// Auth issues and verifies admin session tokens. Sessions are HS256 JWTs
// in an httpOnly cookie.
type Auth struct {
	password []byte
	secret   []byte
	ttl      time.Duration
	secure   bool
}

// NewAuth builds an Auth from config. TTL defaults to 7 days.
func NewAuth(cfg config.AuthConfig) *Auth {
	ttlDays := cfg.SessionTTLDays
	if ttlDays <= 0 {
		ttlDays = 7
	}
	return &Auth{
		password: []byte(cfg.AdminPassword),
		secret:   []byte(cfg.SessionSecret),
		ttl:      time.Duration(ttlDays) * 24 * time.Hour,
		secure:   cfg.SecureCookies,
	}
}

// Login checks the password in constant time and returns a signed session
// token on success.
func (a *Auth) Login(password string) (string, error) {
	if len(a.secret) == 0 {
		return "", eris.New("server: session secret not configured")
	}
	if len(a.password) == 0 {
		return "", eris.New("server: admin password not configured")
	}
	if subtle.ConstantTimeCompare([]byte(password), a.password) != 1 {
		return "", ErrBadCredentials
	}
	return a.issueToken()
}

func (a *Auth) issueToken() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   "admin",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	return token, eris.Wrap(err, "server: sign session token")
}

// Verify parses and validates a session token. An unset secret fails every
// token: a blank HS256 key would otherwise verify tokens anyone can mint.
func (a *Auth) Verify(tokenString string) error {
	if len(a.secret) == 0 {
		return eris.New("server: session secret not configured")
	}
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return eris.Wrap(err, "server: verify session token")
	}
	if !token.Valid {
		return eris.New("server: invalid session token")
	}
	return nil
}

// SetSession writes the session cookie on a successful login.
func (a *Auth) SetSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(a.ttl.Seconds()),
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSession expires the session cookie.
func (a *Auth) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Middleware rejects requests without a valid session cookie.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(sessionCookie)
		if err != nil || a.Verify(c.Value) != nil {
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
