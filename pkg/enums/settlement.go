package enums

// SettlementEventType labels rows of the settlement audit trail.
type SettlementEventType string

const (
	SettlementEventPaymentReported  SettlementEventType = "payment_reported"
	SettlementEventPaymentConfirmed SettlementEventType = "payment_confirmed"
)

// IsValid reports whether the value is a known SettlementEventType.
func (s SettlementEventType) IsValid() bool {
	return s == SettlementEventPaymentReported || s == SettlementEventPaymentConfirmed
}
