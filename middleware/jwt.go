package middleware

import (
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "arenabot"

// HostClaims is the JWT payload carried by game hosts.
type HostClaims struct {
	Host string `json:"host"`
	// Levels restricts the token to the named levels; empty allows all.
	Levels []string `json:"levels,omitempty"`
	jwt.RegisteredClaims
}

// AllowsLevel reports whether the token may drive level.
func (c *HostClaims) AllowsLevel(level string) bool {
	return len(c.Levels) == 0 || slices.Contains(c.Levels, level)
}

// GenerateToken signs a host token with the given secret and TTL.
func GenerateToken(host string, levels []string, secret string, ttl time.Duration) (string, *HostClaims, error) {
	if secret == "" {
		return "", nil, errors.New("host secret not configured")
	}
	now := time.Now()
	claims := &HostClaims{
		Host:   host,
		Levels: levels,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tokenIssuer,
			Subject:   host,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// ParseToken validates a host token and returns its claims.
func ParseToken(tokenStr, secret string) (*HostClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &HostClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*HostClaims)
	if !ok || !token.Valid || claims.Host == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
