package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/farmolink/farmolink-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID     uuid.UUID
	Role       enums.ActorRole
	PharmacyID *uuid.UUID
	JTI        string
}

// AccessTokenClaims represents the typed JWT issued to clients. PharmacyID is
// only present for pharmacy staff and names the pharmacy they act for.
type AccessTokenClaims struct {
	UserID     uuid.UUID       `json:"user_id"`
	Role       enums.ActorRole `json:"role"`
	PharmacyID *uuid.UUID      `json:"pharmacy_id,omitempty"`
	jwt.RegisteredClaims
}

var _ jwt.ClaimsValidator = (*AccessTokenClaims)(nil)

// Validate runs after the registered-claim checks during parsing.
func (c *AccessTokenClaims) Validate() error {
	if c.UserID == uuid.Nil {
		return errors.New("token missing user_id")
	}
	return checkRole(c.Role, c.PharmacyID)
}

func checkRole(role enums.ActorRole, pharmacyID *uuid.UUID) error {
	if !role.IsValid() {
		return fmt.Errorf("invalid actor role %q", role)
	}
	if role == enums.ActorRolePharmacy && (pharmacyID == nil || *pharmacyID == uuid.Nil) {
		return errors.New("pharmacy role requires pharmacy_id")
	}
	return nil
}
