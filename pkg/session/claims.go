package session

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var errNoUserID = errors.New("token has no user_id claim")

// UserIDFromToken reads the "user_id" claim of a JWT access token. The
// signature is NOT verified: the result is fit for display and for building
// profile URLs, never for deciding whether someone is authenticated.
func UserIDFromToken(token string) (string, error) {
	claims, err := unverifiedClaims(token)
	if err != nil {
		return "", err
	}
	switch v := claims["user_id"].(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	}
	return "", errNoUserID
}

// TokenExpiry reads the "exp" claim of a JWT without verifying it. The zero
// time is returned when the token has no expiry.
func TokenExpiry(token string) (time.Time, error) {
	claims, err := unverifiedClaims(token)
	if err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("session: read exp claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}

func unverifiedClaims(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("session: decode token: %w", err)
	}
	return claims, nil
}
