package auth

import "github.com/golang-jwt/jwt/v5"

const TokenTypeAccess = "access"

// Claims identify the owner principal on whose behalf calls are scheduled.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string `json:"user_id"`
	TokenType string `json:"token_type"`
}
