package pagekit

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	roleAdmin  = "admin"
	claimsKey  = "pagekit.claims"
	bearerAuth = "Bearer"
)

// Claims is the payload of an admin token.
type Claims struct {
	Role     string `json:"role"`
	Username string `json:"username"`
	// Timestamp is the issue time in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
	jwt.RegisteredClaims
}

// Authenticator checks the admin credentials and issues and verifies
// HS256 bearer tokens. It holds no per-session state.
type Authenticator struct {
	username string
	password string
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

// NewAuthenticator creates an Authenticator from the configured secrets.
func NewAuthenticator(username, password, secret string, ttl time.Duration, now func() time.Time) *Authenticator {
	if now == nil {
		now = time.Now
	}
	return &Authenticator{
		username: username,
		password: password,
		secret:   []byte(secret),
		ttl:      ttl,
		now:      now,
	}
}

// Login checks username and password and returns a signed token.
func (a *Authenticator) Login(username, password string) (string, error) {
	if username == "" || password == "" {
		return "", validationError("username and password are required")
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1
	if !userOK || !passOK {
		return "", badCredentialsError()
	}
	return a.issue(username)
}

func (a *Authenticator) issue(username string) (string, error) {
	now := a.now()
	claims := Claims{
		Role:      roleAdmin,
		Username:  username,
		Timestamp: now.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", internalError("failed to sign token", err)
	}
	return token, nil
}

// Verify checks the token signature and expiry and returns its claims.
func (a *Authenticator) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, missingCredentialError()
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, invalidTokenError(err)
	}
	return claims, nil
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get(echo.HeaderAuthorization))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, bearerAuth) {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireAdmin rejects requests without a valid admin token. A missing
// token is a 401, an invalid or expired one a 403.
func (a *Authenticator) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims, err := a.Verify(bearerToken(c.Request()))
		if err != nil {
			return err
		}
		c.Set(claimsKey, claims)
		return next(c)
	}
}

// ClaimsFrom returns the claims stored by RequireAdmin.
func ClaimsFrom(c echo.Context) *Claims {
	claims, _ := c.Get(claimsKey).(*Claims)
	return claims
}
