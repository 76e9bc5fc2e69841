package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenExpiry decodes token without verifying its signature and returns the
// exp claim. A zero time means the token has no expiry.
func tokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrTokenDecodeInvalid, err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrTokenDecodeInvalid, err)
	}
	if exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}
