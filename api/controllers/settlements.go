package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/farmolink/farmolink-backend/api/responses"
	"github.com/farmolink/farmolink-backend/api/validators"
	"github.com/farmolink/farmolink-backend/internal/settlement"
	"github.com/farmolink/farmolink-backend/pkg/logger"
)

type reportPaymentRequest struct {
	Month int `json:"month" validate:"min=1,max=12"`
	Year  int `json:"year" validate:"min=2000,max=9999"`
}

type confirmPaymentRequest struct {
	PharmacyID uuid.UUID `json:"pharmacyId" validate:"required"`
	Month      int       `json:"month" validate:"min=1,max=12"`
	Year       int       `json:"year" validate:"min=2000,max=9999"`
}

// PharmacyStatements returns the monthly commission statements of the
// caller's pharmacy.
func PharmacyStatements(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok || !requirePharmacy(w, r, logg, actor) {
			return
		}
		statements, err := svc.Statements(r.Context(), actor, *actor.PharmacyID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, statements)
	}
}

func ReportPayment(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok || !requirePharmacy(w, r, logg, actor) {
			return
		}
		var body reportPaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.MarkPaymentReported(r.Context(), actor, *actor.PharmacyID, body.Month, body.Year)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// SettlementHistory serves the caller's own ledger, or any pharmacy's when
// an admin passes pharmacyId.
func SettlementHistory(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		var pharmacyID uuid.UUID
		if r.URL.Query().Has("pharmacyId") {
			id, err := validators.ParseUUIDQuery(r, "pharmacyId")
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			pharmacyID = id
		} else if actor.PharmacyID != nil {
			pharmacyID = *actor.PharmacyID
		}
		events, err := svc.History(r.Context(), actor, pharmacyID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]settlement.EventDTO, 0, len(events))
		for _, event := range events {
			out = append(out, settlement.EventToDTO(event))
		}
		responses.WriteSuccess(w, out)
	}
}

// AdminStatements lists statements across pharmacies, optionally narrowed
// by year and month.
func AdminStatements(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		year, err := optionalQueryInt(r, "year", 2000, 9999)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		month, err := optionalQueryInt(r, "month", 1, 12)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		statements, err := svc.AllStatements(r.Context(), actor, year, month)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, statements)
	}
}

func AdminConfirmPayment(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		var body confirmPaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ConfirmPayment(r.Context(), actor, body.PharmacyID, body.Month, body.Year)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func optionalQueryInt(r *http.Request, key string, min, max int) (*int, error) {
	if strings.TrimSpace(r.URL.Query().Get(key)) == "" {
		return nil, nil
	}
	value, err := validators.ParseQueryInt(r, key, 0, min, max)
	if err != nil {
		return nil, err
	}
	return &value, nil
}
