package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Roles carried in session tokens.
const (
	RoleAdmin   = "admin"
	RoleStudent = "student"
)

// Session is a signed BFF session token.
type Session struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// Claims represents the JWT payload. Subject is the upstream user id; ID
// keys the upstream token stored for this session.
type Claims struct {
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
	NIM  string `json:"nim,omitempty"`
	jwt.RegisteredClaims
}

// Issue signs a session token for subject valid for ttl from now.
func Issue(subject, role, name, nim, issuer, key string, ttl time.Duration, now time.Time) (Session, error) {
	if subject == "" {
		return Session{}, errors.New("subject required")
	}
	if role != RoleAdmin && role != RoleStudent {
		return Session{}, errors.New("unknown role")
	}
	exp := now.Add(ttl)
	id := uuid.NewString()
	claims := Claims{
		Role: role,
		Name: name,
		NIM:  nim,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Issuer:    issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ID: id, ExpiresAt: exp}, nil
}

// Parse validates a token and returns claims.
func Parse(tokenStr, key, issuer string) (Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(key), nil
	}, opts...)
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return Claims{}, errors.New("token missing subject")
	}
	return *claims, nil
}
