package client

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// StoredToken is a bearer token kept by the client. The signature is not
// checked here, only the expiry claim, so an expired token is never sent.
type StoredToken struct {
	Raw       string
	Subject   string
	ExpiresAt time.Time // zero when the token carries no exp claim
}

func ParseToken(raw string) (StoredToken, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return StoredToken{}, fmt.Errorf("parse access token: %w", err)
	}

	t := StoredToken{Raw: raw, Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		t.ExpiresAt = claims.ExpiresAt.Time
	}
	return t, nil
}

func (t StoredToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}
