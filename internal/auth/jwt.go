// Package auth verifies access tokens issued by the identity service.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/apperr"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/models"
)

// Identity is the caller resolved from a token.
type Identity struct {
	UserID uint
	Role   models.Role
}

// TokenVerifier is the identity collaborator used by the gateway and HTTP middleware.
type TokenVerifier interface {
	VerifyToken(token string) (Identity, error)
}

type Claims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) VerifyToken(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, apperr.Auth("missing access token", nil)
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method == nil || token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, apperr.Auth("invalid or expired token", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.UserID == 0 {
		return Identity{}, apperr.Auth("invalid token", nil)
	}
	role := models.Role(claims.Role)
	if !role.Valid() {
		return Identity{}, apperr.Auth(fmt.Sprintf("unknown role %q", claims.Role), nil)
	}

	return Identity{UserID: claims.UserID, Role: role}, nil
}

// Sign issues a token for id. The identity service owns issuance in production;
// this is used by tooling and tests.
func (v *JWTVerifier) Sign(id Identity, ttl time.Duration) (string, error) {
	if id.UserID == 0 {
		return "", errors.New("user id is required")
	}
	now := time.Now()
	claims := Claims{
		UserID: id.UserID,
		Role:   string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
