package enums

import "fmt"

// PrescriptionStatus tracks whether a fan-out request still accepts responses.
type PrescriptionStatus string

const (
	PrescriptionStatusWaitingForQuotes PrescriptionStatus = "waiting_for_quotes"
	PrescriptionStatusCompleted        PrescriptionStatus = "completed"
)

var validPrescriptionStatuses = []PrescriptionStatus{
	PrescriptionStatusWaitingForQuotes,
	PrescriptionStatusCompleted,
}

// String implements fmt.Stringer.
func (p PrescriptionStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PrescriptionStatus.
func (p PrescriptionStatus) IsValid() bool {
	for _, candidate := range validPrescriptionStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePrescriptionStatus converts raw input into PrescriptionStatus.
func ParsePrescriptionStatus(value string) (PrescriptionStatus, error) {
	for _, candidate := range validPrescriptionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid prescription status %q", value)
}

// QuoteStatus is the state of one pharmacy response.
type QuoteStatus string

const (
	QuoteStatusResponded QuoteStatus = "responded"
	QuoteStatusRejected  QuoteStatus = "rejected"
	QuoteStatusAccepted  QuoteStatus = "accepted"
)

var validQuoteStatuses = []QuoteStatus{
	QuoteStatusResponded,
	QuoteStatusRejected,
	QuoteStatusAccepted,
}

// String implements fmt.Stringer.
func (q QuoteStatus) String() string {
	return string(q)
}

// IsValid reports whether the value is a known QuoteStatus.
func (q QuoteStatus) IsValid() bool {
	for _, candidate := range validQuoteStatuses {
		if candidate == q {
			return true
		}
	}
	return false
}

// ParseQuoteStatus converts raw input into QuoteStatus.
func ParseQuoteStatus(value string) (QuoteStatus, error) {
	for _, candidate := range validQuoteStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid quote status %q", value)
}
