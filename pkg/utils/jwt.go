package utils

import (
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maheshrc27/crosspost/internal/transfer"
)

const issuer = "crosspost"

func GenerateToken(secretKey, userID string, tokenDuration time.Duration) (string, error) {
	claims := transfer.CustomClaims{
		UserID:           userID,
		RegisteredClaims: registered(tokenDuration),
	}
	return sign(secretKey, claims)
}

func ValidateToken(secretKey, tokenString string) (*transfer.CustomClaims, error) {
	claims := &transfer.CustomClaims{}
	if err := parse(secretKey, tokenString, claims); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

func GenerateStateToken(secretKey, userID, platform, nonce string, tokenDuration time.Duration) (string, error) {
	claims := transfer.StateClaims{
		UserID:           userID,
		Platform:         platform,
		Nonce:            nonce,
		RegisteredClaims: registered(tokenDuration),
	}
	return sign(secretKey, claims)
}

func ValidateStateToken(secretKey, tokenString string) (*transfer.StateClaims, error) {
	claims := &transfer.StateClaims{}
	if err := parse(secretKey, tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func registered(d time.Duration) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(d)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    issuer,
	}
}

func sign(secretKey string, claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(secretKey))
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}
	return signedToken, nil
}

func parse(secretKey, tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid token signing method")
		}
		return []byte(secretKey), nil
	})
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if !token.Valid {
		return errors.New("invalid token")
	}
	return nil
}
