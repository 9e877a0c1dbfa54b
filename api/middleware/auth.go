package middleware

import (
	"net/http"
	"strings"

	"github.com/farmolink/farmolink-backend/api/responses"
	pkgAuth "github.com/farmolink/farmolink-backend/pkg/auth"
	"github.com/farmolink/farmolink-backend/pkg/config"
	pkgerrors "github.com/farmolink/farmolink-backend/pkg/errors"
	"github.com/farmolink/farmolink-backend/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the actor.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			token := raw
			if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			actor := pkgAuth.ActorFromClaims(claims)
			ctx := WithActor(r.Context(), actor)
			if logg != nil {
				pharmacyID := ""
				if actor.PharmacyID != nil {
					pharmacyID = actor.PharmacyID.String()
				}
				ctx = logg.WithActor(ctx, actor.UserID.String(), string(actor.Role), pharmacyID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
