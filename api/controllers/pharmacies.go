package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/farmolink/farmolink-backend/api/responses"
	"github.com/farmolink/farmolink-backend/api/validators"
	"github.com/farmolink/farmolink-backend/internal/pharmacies"
	"github.com/farmolink/farmolink-backend/pkg/logger"
)

type commissionRateRequest struct {
	// null clears the override so the platform default applies
	Rate *decimal.Decimal `json:"rate"`
}

// ListPharmacies returns the pharmacies a customer may send requests to.
func ListPharmacies(svc pharmacies.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		rows, err := svc.ListEligible(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]pharmacies.DTO, 0, len(rows))
		for _, row := range rows {
			out = append(out, pharmacies.ToDTO(row, actor.Role))
		}
		responses.WriteSuccess(w, out)
	}
}

func AdminUpdateCommissionRate(svc pharmacies.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUIDParam(r, "pharmacyId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body commissionRateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		updated, err := svc.UpdateCommissionRate(r.Context(), actor, id, body.Rate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, pharmacies.ToDTO(*updated, actor.Role))
	}
}
