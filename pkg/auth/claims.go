package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/lazydrop/lazydrop-billing/pkg/enums"
)

// AdminTokenPayload captures the data available when minting an operator JWT.
type AdminTokenPayload struct {
	Subject string
	Role    enums.AdminRole
	JTI     string
}

// AdminTokenClaims represents the typed JWT accepted by the admin surface.
// The operator identity travels in the registered subject claim.
type AdminTokenClaims struct {
	Role enums.AdminRole `json:"role"`
	jwt.RegisteredClaims
}
