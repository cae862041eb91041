package tovala

import (
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// UserIDFromToken extracts the userId claim from a Tovala bearer token without
// verifying the signature. The token is the vendor's own issued credential and
// is only read here for the embedded user id, never to establish trust.
func UserIDFromToken(token string) (int64, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0, fmt.Errorf("decode token: %w", err)
	}

	raw, ok := claims["userId"]
	if !ok {
		// Some token revisions use a snake_case claim name.
		raw, ok = claims["user_id"]
	}
	if !ok {
		return 0, fmt.Errorf("token has no userId claim")
	}

	switch v := raw.(type) {
	case float64:
		return int64(v), nil
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse userId claim %q: %w", v, err)
		}
		return id, nil
	default:
		return 0, fmt.Errorf("userId claim has unexpected type %T", raw)
	}
}
