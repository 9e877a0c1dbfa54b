package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/farmolink/farmolink-backend/api/middleware"
	"github.com/farmolink/farmolink-backend/pkg/auth"
	"github.com/farmolink/farmolink-backend/pkg/enums"
	"github.com/farmolink/farmolink-backend/pkg/types"
)

func customerActor() auth.Actor {
	return auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleCustomer}
}

func pharmacyActor() auth.Actor {
	id := uuid.New()
	return auth.Actor{UserID: uuid.New(), Role: enums.ActorRolePharmacy, PharmacyID: &id}
}

func adminActor() auth.Actor {
	return auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin}
}

// serve routes a single request through a chi router so URL params resolve.
func serve(t *testing.T, method, pattern, target string, body string, actor *auth.Actor, handler http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	router.MethodFunc(method, pattern, handler)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if actor != nil {
		req = req.WithContext(middleware.WithActor(context.Background(), *actor))
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope types.SuccessEnvelope[map[string]any]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope.Data
}

func decodeErrorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope.Error.Code
}
