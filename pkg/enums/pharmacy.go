package enums

import "fmt"

// PharmacyStatus is the admin approval state of a pharmacy.
type PharmacyStatus string

const (
	PharmacyStatusPending  PharmacyStatus = "pending"
	PharmacyStatusApproved PharmacyStatus = "approved"
	PharmacyStatusBlocked  PharmacyStatus = "blocked"
)

var validPharmacyStatuses = []PharmacyStatus{
	PharmacyStatusPending,
	PharmacyStatusApproved,
	PharmacyStatusBlocked,
}

// IsValid reports whether the value is a known PharmacyStatus.
func (p PharmacyStatus) IsValid() bool {
	for _, candidate := range validPharmacyStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePharmacyStatus converts raw input into PharmacyStatus.
func ParsePharmacyStatus(value string) (PharmacyStatus, error) {
	for _, candidate := range validPharmacyStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid pharmacy status %q", value)
}
