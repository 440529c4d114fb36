package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"ms-bookings/internal/models"
)

// ParseActorRole validates a role claim against the closed role set.
func ParseActorRole(raw string) (models.ActorRole, error) {
	switch models.ActorRole(raw) {
	case models.RoleCustomer, models.RoleStylist, models.RoleSystem:
		return models.ActorRole(raw), nil
	default:
		return "", fmt.Errorf("unknown actor role %q", raw)
	}
}

// ExtractTokenFromRequest extracts a JWT token from an HTTP request's Authorization header
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header is missing")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}

	return parts[1], nil
}

// ExtractActorFromJWT parses the token without signature validation and
// returns the subject and role claims. Verification happens at the OIDC
// middleware; this helper serves trusted service-to-service paths where the
// token was already checked upstream.
func ExtractActorFromJWT(tokenString string) (string, models.ActorRole, error) {
	if tokenString == "" {
		return "", "", errors.New("empty token")
	}

	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return "", "", fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", errors.New("invalid token claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", "", errors.New("subject claim not found in token")
	}

	rawRole, _ := claims["role"].(string)
	role, err := ParseActorRole(rawRole)
	if err != nil {
		return "", "", err
	}

	return sub, role, nil
}
