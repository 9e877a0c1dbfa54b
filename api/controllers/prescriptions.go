package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/farmolink/farmolink-backend/api/responses"
	"github.com/farmolink/farmolink-backend/api/validators"
	"github.com/farmolink/farmolink-backend/internal/prescriptions"
	"github.com/farmolink/farmolink-backend/pkg/db/models"
	"github.com/farmolink/farmolink-backend/pkg/enums"
	pkgerrors "github.com/farmolink/farmolink-backend/pkg/errors"
	"github.com/farmolink/farmolink-backend/pkg/logger"
)

type submitPrescriptionRequest struct {
	ImageURL          string      `json:"imageUrl" validate:"omitempty,url,max=2048"`
	ImageDataURL      string      `json:"imageDataUrl"`
	TargetPharmacyIDs []uuid.UUID `json:"targetPharmacyIds" validate:"required,min=1,max=50"`
	Notes             *string     `json:"notes" validate:"omitempty,max=2000"`
}

type quotedItemRequest struct {
	Name      string `json:"name" validate:"required,max=200"`
	Quantity  int64  `json:"quantity" validate:"gte=1,lte=10000"`
	UnitPrice int64  `json:"unitPrice" validate:"gte=0,lte=1000000000"`
	Available bool   `json:"available"`
}

type submitQuoteRequest struct {
	PharmacyName string              `json:"pharmacyName" validate:"required,max=200"`
	Items        []quotedItemRequest `json:"items" validate:"required,min=1,max=100,dive"`
	DeliveryFee  int64               `json:"deliveryFee" validate:"gte=0,lte=1000000000"`
	Notes        *string             `json:"notes" validate:"omitempty,max=2000"`
}

type submitRejectionRequest struct {
	PharmacyName string `json:"pharmacyName" validate:"required,max=200"`
	Reason       string `json:"reason" validate:"required,max=1000"`
}

func SubmitPrescription(svc prescriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		var body submitPrescriptionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		request, err := svc.SubmitRequest(r.Context(), prescriptions.SubmitRequestInput{
			CustomerID:        actor.UserID,
			ImageURL:          body.ImageURL,
			ImageDataURL:      body.ImageDataURL,
			TargetPharmacyIDs: body.TargetPharmacyIDs,
			Notes:             body.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, prescriptions.RequestToDTO(*request, true))
	}
}

// ListPrescriptions returns the caller's own requests for customers and the
// inbound requests for pharmacies.
func ListPrescriptions(svc prescriptions.Service, logg *logger.Logger) http.HandlerFunc {
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

		var list *prescriptions.RequestList
		switch {
		case actor.Is(enums.ActorRoleCustomer):
			list, err = svc.ListForCustomer(r.Context(), actor.UserID, params)
		case actor.Is(enums.ActorRolePharmacy):
			if !requirePharmacy(w, r, logg, actor) {
				return
			}
			var status *enums.PrescriptionStatus
			if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
				parsed, parseErr := enums.ParsePrescriptionStatus(raw)
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

func GetPrescription(svc prescriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUIDParam(r, "prescriptionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.GetRequest(r.Context(), actor, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

func DeletePrescription(svc prescriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUIDParam(r, "prescriptionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteRequest(r.Context(), actor.UserID, id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": id, "deleted": true})
	}
}

func SubmitQuote(svc prescriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok || !requirePharmacy(w, r, logg, actor) {
			return
		}
		requestID, err := validators.ParseUUIDParam(r, "prescriptionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body submitQuoteRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]models.QuotedItem, 0, len(body.Items))
		for _, item := range body.Items {
			items = append(items, models.QuotedItem(item))
		}
		quote, err := svc.SubmitQuote(r.Context(), actor, prescriptions.SubmitQuoteInput{
			RequestID:    requestID,
			PharmacyID:   *actor.PharmacyID,
			PharmacyName: body.PharmacyName,
			Items:        items,
			DeliveryFee:  body.DeliveryFee,
			Notes:        body.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, prescriptions.QuoteToDTO(*quote))
	}
}

func SubmitRejection(svc prescriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok || !requirePharmacy(w, r, logg, actor) {
			return
		}
		requestID, err := validators.ParseUUIDParam(r, "prescriptionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body submitRejectionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quote, err := svc.SubmitRejection(r.Context(), actor, requestID,
			validators.SanitizeString(body.PharmacyName, 200), validators.SanitizeString(body.Reason, 1000))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, prescriptions.QuoteToDTO(*quote))
	}
}
