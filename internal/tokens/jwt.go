package tokens

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// jwtExpiry reads the exp claim from a JWT without verifying the
// signature. The token was captured from traffic, not issued to us;
// only the deadline matters. Returns nil for non-JWT values or tokens
// without an exp claim.
func jwtExpiry(token string) *time.Time {
	if token == "" {
		return nil
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	t := exp.Time
	return &t
}
