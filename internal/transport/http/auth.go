package http

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = errors.New("invalid or expired token")

// IdentityVerifier turns an authentication token into a persistent player
// identity. Credential storage and registration live in an external auth
// service; this seam only verifies what that service issued.
type IdentityVerifier interface {
	Verify(token string) (identity, displayName string, err error)
}

type identityClaims struct {
	DisplayName string `json:"name"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 tokens whose subject is the player identity.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(token string) (string, string, error) {
	claims := &identityClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return "", "", ErrInvalidToken
	}

	displayName := claims.DisplayName
	if displayName == "" {
		displayName = claims.Subject
	}
	return claims.Subject, displayName, nil
}

// IssueToken mints a token for the identity. Normally the external auth
// service signs tokens; this is used by tests and local development.
func (v *JWTVerifier) IssueToken(identity, displayName string) (string, error) {
	claims := &identityClaims{
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  identity,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
