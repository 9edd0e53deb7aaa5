package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ExtractTokenFromRequest extracts the bearer token from the Authorization header.
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header is missing")
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}
	return parts[1], nil
}

type hmacVerifier struct {
	secret []byte
}

// NewHS256Verifier verifies tokens signed with a shared secret. Meant for local
// development where no identity provider runs.
func NewHS256Verifier(secret string) Verifier {
	return &hmacVerifier{secret: []byte(secret)}
}

func (v *hmacVerifier) Verify(_ context.Context, rawToken string) (Identity, error) {
	if rawToken == "" {
		return Identity{}, errors.New("empty token")
	}
	token, err := jwt.Parse(rawToken, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Identity{}, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errors.New("invalid token claims")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Identity{}, errors.New("subject claim not found in token")
	}
	return Identity{UserID: sub, Roles: rolesFromClaims(claims)}, nil
}

// rolesFromClaims reads "roles" and the Keycloak style "realm_access.roles".
func rolesFromClaims(claims jwt.MapClaims) []string {
	var roles []string
	collect := func(v interface{}) {
		list, ok := v.([]interface{})
		if !ok {
			return
		}
		for _, item := range list {
			if s, ok := item.(string); ok {
				roles = append(roles, s)
			}
		}
	}
	collect(claims["roles"])
	if realm, ok := claims["realm_access"].(map[string]interface{}); ok {
		collect(realm["roles"])
	}
	return roles
}

// SignHS256 issues a development token for userID with roles.
func SignHS256(secret, userID string, roles []string, claims jwt.MapClaims) (string, error) {
	if claims == nil {
		claims = jwt.MapClaims{}
	}
	claims["sub"] = userID
	claims["roles"] = roles
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
