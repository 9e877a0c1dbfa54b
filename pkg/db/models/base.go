package models

import "github.com/google/uuid"

// ensureID assigns a client-side id so inserts behave the same on sqlite,
// which has no gen_random_uuid().
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
