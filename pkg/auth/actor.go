package auth

import (
	"github.com/google/uuid"

	"github.com/farmolink/farmolink-backend/pkg/enums"
)

// Actor is the authenticated caller as the domain services see it.
type Actor struct {
	UserID     uuid.UUID
	Role       enums.ActorRole
	PharmacyID *uuid.UUID
}

// ActorFromClaims maps verified token claims onto an Actor.
func ActorFromClaims(claims *AccessTokenClaims) Actor {
	if claims == nil {
		return Actor{}
	}
	return Actor{UserID: claims.UserID, Role: claims.Role, PharmacyID: claims.PharmacyID}
}

func (a Actor) Is(role enums.ActorRole) bool {
	return a.Role == role
}

// ActsFor reports whether a pharmacy actor represents pharmacyID.
func (a Actor) ActsFor(pharmacyID uuid.UUID) bool {
	return a.Role == enums.ActorRolePharmacy && a.PharmacyID != nil && *a.PharmacyID == pharmacyID
}
