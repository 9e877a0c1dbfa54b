package controllers

import (
	"net/http"

	"github.com/farmolink/farmolink-backend/api/responses"
	"github.com/farmolink/farmolink-backend/api/validators"
	"github.com/farmolink/farmolink-backend/internal/prescriptions"
	"github.com/farmolink/farmolink-backend/pkg/logger"
)

type acceptQuoteRequest struct {
	CustomerName  string `json:"customerName" validate:"required,max=200"`
	Address       string `json:"address" validate:"required,max=500"`
	CustomerPhone string `json:"customerPhone" validate:"required,max=40"`
}

// AcceptQuote answers 201 for a new order and 200 when the same accept was
// already applied.
func AcceptQuote(svc prescriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		quoteID, err := validators.ParseUUIDParam(r, "quoteId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body acceptQuoteRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.AcceptQuote(r.Context(), prescriptions.AcceptQuoteInput{
			CustomerID:    actor.UserID,
			QuoteID:       quoteID,
			CustomerName:  body.CustomerName,
			Address:       body.Address,
			CustomerPhone: body.CustomerPhone,
		})
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

func RejectQuote(svc prescriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		quoteID, err := validators.ParseUUIDParam(r, "quoteId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quote, err := svc.RejectQuoteAsCustomer(r.Context(), actor.UserID, quoteID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, prescriptions.QuoteToDTO(*quote))
	}
}
