// Package auth reads and clears the bearer token used for API requests.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"k8s.io/klog/v2"

	"github.com/five82/vapor-console/internal/api"
	"github.com/five82/vapor-console/internal/bus"
)

// Storage keys for the token, in lookup order.
const (
	KeyJWT       = "jwt_token"
	KeyAuthToken = "auth_token"
)

// ErrNoToken is returned by Claims when no token is stored.
var ErrNoToken = errors.New("no token stored")

// Storage holds tokens. prefs.Store implements it.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
}

// Tokens provides the stored bearer token.
type Tokens struct {
	storage Storage
	bus     *bus.Bus
}

var _ api.TokenSource = (*Tokens)(nil)

// New returns Tokens over storage. b may be nil.
func New(storage Storage, b *bus.Bus) *Tokens {
	return &Tokens{storage: storage, bus: b}
}

// Token returns jwt_token, falling back to auth_token.
func (t *Tokens) Token() string {
	if v, ok := t.storage.Get(KeyJWT); ok && v != "" {
		return v
	}
	if v, ok := t.storage.Get(KeyAuthToken); ok {
		return v
	}
	return ""
}

// SetToken stores token as jwt_token.
func (t *Tokens) SetToken(token string) error {
	if err := t.storage.Set(KeyJWT, token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}

// Claims decodes the stored token without verifying its signature.
func (t *Tokens) Claims() (jwt.MapClaims, error) {
	raw := t.Token()
	if raw == "" {
		return nil, ErrNoToken
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return claims, nil
}

// Subject returns the token's sub claim.
func (t *Tokens) Subject() string {
	claims, err := t.Claims()
	if err != nil {
		return ""
	}
	sub, _ := claims.GetSubject()
	return sub
}

// Expired reports whether the stored token is missing, unreadable, or past
// its exp claim at now. Tokens without exp never expire.
func (t *Tokens) Expired(now time.Time) bool {
	claims, err := t.Claims()
	if err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}

// Logout clears both token keys and publishes auth:logout.
func (t *Tokens) Logout() error {
	var errs []error
	for _, key := range []string{KeyJWT, KeyAuthToken} {
		if err := t.storage.Delete(key); err != nil {
			errs = append(errs, fmt.Errorf("clear %s: %w", key, err))
		}
	}
	klog.InfoS("Logged out")
	t.bus.Publish(bus.AuthLogout, nil)
	return errors.Join(errs...)
}
