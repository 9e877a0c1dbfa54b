package controllers

import (
	"net/http"

	"github.com/farmolink/farmolink-backend/api/middleware"
	"github.com/farmolink/farmolink-backend/api/responses"
	"github.com/farmolink/farmolink-backend/api/validators"
	"github.com/farmolink/farmolink-backend/pkg/auth"
	"github.com/farmolink/farmolink-backend/pkg/enums"
	pkgerrors "github.com/farmolink/farmolink-backend/pkg/errors"
	"github.com/farmolink/farmolink-backend/pkg/logger"
	"github.com/farmolink/farmolink-backend/pkg/pagination"
)

// requireActor writes 401 and returns false when Auth did not run.
func requireActor(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (auth.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
		return auth.Actor{}, false
	}
	return actor, true
}

func requirePharmacy(w http.ResponseWriter, r *http.Request, logg *logger.Logger, actor auth.Actor) bool {
	if !actor.Is(enums.ActorRolePharmacy) || actor.PharmacyID == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "pharmacy context missing"))
		return false
	}
	return true
}

func pageParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{Limit: limit, Cursor: r.URL.Query().Get("cursor")}, nil
}
