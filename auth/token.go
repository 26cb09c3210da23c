package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Tokens mints and validates connection tokens. The key comes from
// configuration, never from source.
type Tokens struct {
	key      []byte
	duration time.Duration
}

func NewTokens(key []byte, duration time.Duration) *Tokens {
	return &Tokens{key: key, duration: duration}
}

// Generate creates a signed HS256 token for one user.
func (t *Tokens) Generate(userID string) (string, error) {
	claims := &CustomClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(t.duration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "chat-sync",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.key)
}

// Validate parses and checks the signature and expiration of a token,
// returning the authenticated user id.
func (t *Tokens) Validate(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return t.key, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return "", jwt.ErrSignatureInvalid
	}
	return claims.UserID, nil
}
