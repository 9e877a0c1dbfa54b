package enums

import "fmt"

// OrderStatus tracks the lifecycle of a pharmacy order.
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusReadyForPickup OrderStatus = "ready_for_pickup"
	OrderStatusCompleted      OrderStatus = "completed"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusRejected       OrderStatus = "rejected"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPreparing,
	OrderStatusOutForDelivery,
	OrderStatusReadyForPickup,
	OrderStatusCompleted,
	OrderStatusCancelled,
	OrderStatusRejected,
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition may leave the status.
func (o OrderStatus) IsTerminal() bool {
	switch o {
	case OrderStatusCompleted, OrderStatusCancelled, OrderStatusRejected:
		return true
	}
	return false
}

// ParseOrderStatus converts raw input into OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}

// OrderType selects the fulfillment branch.
type OrderType string

const (
	OrderTypeDelivery OrderType = "delivery"
	OrderTypePickup   OrderType = "pickup"
)

// String implements fmt.Stringer.
func (o OrderType) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderType.
func (o OrderType) IsValid() bool {
	return o == OrderTypeDelivery || o == OrderTypePickup
}

// ParseOrderType converts raw input into OrderType.
func ParseOrderType(value string) (OrderType, error) {
	candidate := OrderType(value)
	if !candidate.IsValid() {
		return "", fmt.Errorf("invalid order type %q", value)
	}
	return candidate, nil
}

// CommissionStatus tracks settlement of the platform fee on an order.
type CommissionStatus string

const (
	CommissionStatusPending         CommissionStatus = "pending"
	CommissionStatusWaitingApproval CommissionStatus = "waiting_approval"
	CommissionStatusPaid            CommissionStatus = "paid"
)

var validCommissionStatuses = []CommissionStatus{
	CommissionStatusPending,
	CommissionStatusWaitingApproval,
	CommissionStatusPaid,
}

// String implements fmt.Stringer.
func (c CommissionStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CommissionStatus.
func (c CommissionStatus) IsValid() bool {
	for _, candidate := range validCommissionStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

// Severity orders statuses for statement roll-ups: pending outranks
// waiting_approval, which outranks paid.
func (c CommissionStatus) Severity() int {
	switch c {
	case CommissionStatusPending:
		return 2
	case CommissionStatusWaitingApproval:
		return 1
	case CommissionStatusPaid:
		return 0
	}
	// unknown values are treated as unpaid
	return 2
}

// ParseCommissionStatus converts raw input into CommissionStatus.
func ParseCommissionStatus(value string) (CommissionStatus, error) {
	for _, candidate := range validCommissionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid commission status %q", value)
}
