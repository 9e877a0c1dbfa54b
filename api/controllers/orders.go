package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/farmolink/farmolink-backend/api/responses"
	"github.com/farmolink/farmolink-backend/api/validators"
	"github.com/farmolink/farmolink-backend/internal/orders"
	"github.com/farmolink/farmolink-backend/pkg/db/models"
	"github.com/farmolink/farmolink-backend/pkg/enums"
	pkgerrors "github.com/farmolink/farmolink-backend/pkg/errors"
	"github.com/farmolink/farmolink-backend/pkg/logger"
)

type orderItemRequest struct {
	Name      string `json:"name" validate:"required,max=200"`
	Quantity  int64  `json:"quantity" validate:"gte=1"`
	UnitPrice int64  `json:"unitPrice" validate:"gte=0"`
}

type createOrderRequest struct {
	PharmacyID    uuid.UUID          `json:"pharmacyId" validate:"required"`
	CustomerName  string             `json:"customerName" validate:"required,max=200"`
	CustomerPhone string             `json:"customerPhone" validate:"required,max=40"`
	Items         []orderItemRequest `json:"items" validate:"required,min=1,dive"`
	Total         int64              `json:"total" validate:"gte=0"`
	Type          string             `json:"type" validate:"required"`
	Address       *string            `json:"address" validate:"omitempty,max=500"`
}

type advanceOrderRequest struct {
	Status string `json:"status" validate:"required"`
}

// CreateOrder places a cart order. A repeat of the same submission answers
// 200 with the original order id instead of 201.
func CreateOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		var body createOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderType, err := enums.ParseOrderType(body.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order type"))
			return
		}
		items := make([]models.OrderItem, 0, len(body.Items))
		for _, item := range body.Items {
			items = append(items, models.OrderItem(item))
		}

		input := orders.CreateOrderInput{
			CustomerID:    actor.UserID,
			CustomerName:  body.CustomerName,
			CustomerPhone: body.CustomerPhone,
			PharmacyID:    body.PharmacyID,
			Items:         items,
			Total:         body.Total,
			Type:          orderType,
			Address:       body.Address,
		}
		if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
			input.IdempotencyKey = &key
		}

		result, err := svc.CreateOrder(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusCreated
		if result.Duplicate {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

func ListOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var list *orders.OrderList
		switch {
		case actor.Is(enums.ActorRoleCustomer):
			list, err = svc.ListForCustomer(r.Context(), actor.UserID, params)
		case actor.Is(enums.ActorRolePharmacy):
			if !requirePharmacy(w, r, logg, actor) {
				return
			}
			var status *enums.OrderStatus
			if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
				parsed, parseErr := enums.ParseOrderStatus(raw)
				if parseErr != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid status filter"))
					return
				}
				status = &parsed
			}
			list, err = svc.ListForPharmacy(r.Context(), *actor.PharmacyID, status, params)
		default:
			err = pkgerrors.New(pkgerrors.CodeForbidden, "role not permitted")
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func GetOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), actor, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orders.ToDTO(*order, actor.Role))
	}
}

func AdvanceOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body advanceOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target, err := enums.ParseOrderStatus(body.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}
		order, err := svc.Advance(r.Context(), actor, id, target)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orders.ToDTO(*order, actor.Role))
	}
}
