package orders

import (
	"github.com/farmolink/farmolink-backend/pkg/enums"
	pkgerrors "github.com/farmolink/farmolink-backend/pkg/errors"
)

type transitionKey struct {
	from enums.OrderStatus
	to   enums.OrderStatus
}

type transitionRule struct {
	roles        []enums.ActorRole
	requiresType *enums.OrderType
}

func orderType(t enums.OrderType) *enums.OrderType { return &t }

var (
	pharmacyOnly       = []enums.ActorRole{enums.ActorRolePharmacy}
	customerOnly       = []enums.ActorRole{enums.ActorRoleCustomer}
	pharmacyOrCustomer = []enums.ActorRole{enums.ActorRolePharmacy, enums.ActorRoleCustomer}
)

// transitions is the complete order lifecycle. Anything not listed is illegal.
var transitions = map[transitionKey]transitionRule{
	{enums.OrderStatusPending, enums.OrderStatusPreparing}:        {roles: pharmacyOnly},
	{enums.OrderStatusPreparing, enums.OrderStatusOutForDelivery}: {roles: pharmacyOnly, requiresType: orderType(enums.OrderTypeDelivery)},
	{enums.OrderStatusPreparing, enums.OrderStatusReadyForPickup}: {roles: pharmacyOnly, requiresType: orderType(enums.OrderTypePickup)},
	{enums.OrderStatusOutForDelivery, enums.OrderStatusCompleted}: {roles: pharmacyOrCustomer, requiresType: orderType(enums.OrderTypeDelivery)},
	{enums.OrderStatusReadyForPickup, enums.OrderStatusCompleted}: {roles: pharmacyOrCustomer, requiresType: orderType(enums.OrderTypePickup)},
	{enums.OrderStatusPending, enums.OrderStatusRejected}:         {roles: pharmacyOnly},
	{enums.OrderStatusPreparing, enums.OrderStatusRejected}:       {roles: pharmacyOnly},
	{enums.OrderStatusPending, enums.OrderStatusCancelled}:        {roles: customerOnly},
}

// checkTransition validates one edge for an order of the given type.
func checkTransition(from, to enums.OrderStatus, role enums.ActorRole, typ enums.OrderType) error {
	if from.IsTerminal() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid transition: order is %s", from)
	}
	rule, ok := transitions[transitionKey{from: from, to: to}]
	if !ok {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid transition %s -> %s", from, to)
	}
	if !roleAllowed(rule.roles, role) {
		return pkgerrors.Newf(pkgerrors.CodeForbidden, "%s may not move an order to %s", role, to)
	}
	if rule.requiresType != nil && *rule.requiresType != typ {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid transition: %s does not apply to %s orders", to, typ)
	}
	return nil
}

// NextStatuses lists the targets role may move an order to from its current status.
func NextStatuses(from enums.OrderStatus, role enums.ActorRole, typ enums.OrderType) []enums.OrderStatus {
	var out []enums.OrderStatus
	for _, to := range []enums.OrderStatus{
		enums.OrderStatusPreparing,
		enums.OrderStatusOutForDelivery,
		enums.OrderStatusReadyForPickup,
		enums.OrderStatusCompleted,
		enums.OrderStatusRejected,
		enums.OrderStatusCancelled,
	} {
		if checkTransition(from, to, role, typ) == nil {
			out = append(out, to)
		}
	}
	return out
}

func roleAllowed(roles []enums.ActorRole, role enums.ActorRole) bool {
	for _, candidate := range roles {
		if candidate == role {
			return true
		}
	}
	return false
}
