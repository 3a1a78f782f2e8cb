// Package auth issues and parses the HS256 JWTs the HTTP layer uses to
// identify the acting person. Session management lives outside this service;
// the token only carries the person identity.
package auth

import (
	"errors"
	"time"

	"docflow/internal/common"

	"github.com/golang-jwt/jwt/v5"
)

// Claims extends the registered claims with the person identifier.
type Claims struct {
	jwt.RegisteredClaims
	PersonID string
}

// GenerateToken signs a token for personID valid for validityDuration.
func GenerateToken(personID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		PersonID: personID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetPersonIDFromToken validates tokenString and returns the embedded person
// identifier. Expired, forged or malformed tokens yield common.ErrInvalidToken.
func GetPersonIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secretKey, nil
	})
	if err != nil {
		return "", common.ErrInvalidToken
	}

	if !token.Valid {
		return "", common.ErrInvalidToken
	}

	return claims.PersonID, nil
}
