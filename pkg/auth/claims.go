package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	TenantID uuid.UUID
	// Subject names the operator or service the token was issued to.
	Subject string
	JTI     string
}

// AccessTokenClaims represents the typed JWT issued to clients. Every API call
// is scoped to TenantID.
type AccessTokenClaims struct {
	TenantID uuid.UUID `json:"tenant_id"`
	jwt.RegisteredClaims
}
