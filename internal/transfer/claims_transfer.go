package transfer

import "github.com/golang-jwt/jwt/v5"

// CustomClaims is the bearer assertion issued by the identity provider.
type CustomClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// StateClaims travels through the OAuth2 redirect as the state parameter.
type StateClaims struct {
	UserID   string `json:"user_id"`
	Platform string `json:"platform"`
	Nonce    string `json:"nonce"`
	jwt.RegisteredClaims
}
