// Package auth supplies bearer tokens to the API client and the realtime
// connection, and issues the HS256 tokens the development server hands out.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zsprackett/chargewatch/internal/db"
)

// EnvToken overrides the stored credential when set.
const EnvToken = "CHARGEWATCH_TOKEN"

// Provider returns the current bearer token, or false when there is none.
type Provider interface {
	Token() (string, bool)
}

// Static is a fixed token. The empty Static has no token.
type Static string

func (s Static) Token() (string, bool) { return string(s), s != "" }

// CredentialStore is the part of db.DB the provider reads.
type CredentialStore interface {
	GetCredential() (*db.Credential, error)
}

// StoreProvider reads the saved credential on every call, so a logout in
// another process is seen by the next lookup.
type StoreProvider struct {
	store  CredentialStore
	logger *slog.Logger
	now    func() time.Time
}

func NewStoreProvider(store CredentialStore, logger *slog.Logger) *StoreProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreProvider{store: store, logger: logger, now: time.Now}
}

// SetNow replaces the time source. Used in tests only.
func (p *StoreProvider) SetNow(fn func() time.Time) { p.now = fn }

func (p *StoreProvider) Token() (string, bool) {
	c, err := p.store.GetCredential()
	if err != nil {
		p.logger.Warn("read credential", "err", err)
		return "", false
	}
	if c == nil || c.Token == "" {
		return "", false
	}
	if Expired(c.Token, p.now()) {
		p.logger.Info("stored token expired", "email", c.Email)
		return "", false
	}
	return c.Token, true
}

// FromEnv returns a Static for $CHARGEWATCH_TOKEN when it is set and
// fallback otherwise.
func FromEnv(fallback Provider) Provider {
	if v := os.Getenv(EnvToken); v != "" {
		return Static(v)
	}
	return fallback
}

// Expired reports whether token is a JWT whose exp claim is not after now.
// Tokens that are not JWTs, or carry no exp, never expire here; the server
// remains the authority.
func Expired(token string, now time.Time) bool {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !now.Before(claims.ExpiresAt.Time)
}

// Claims are carried by tokens from IssueAccessToken.
type Claims struct {
	FullName string `json:"full_name,omitempty"`
	IsAdmin  bool   `json:"is_admin,omitempty"`
	jwt.RegisteredClaims
}

// IssueAccessToken signs an HS256 token for email.
func IssueAccessToken(secret, email, fullName string, isAdmin bool, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		FullName: fullName,
		IsAdmin:  isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ValidateAccessToken verifies signature and expiry and returns the claims.
func ValidateAccessToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
