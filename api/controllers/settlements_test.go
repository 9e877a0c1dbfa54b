package controllers

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmolink/farmolink-backend/internal/commission"
	"github.com/farmolink/farmolink-backend/internal/settlement"
	"github.com/farmolink/farmolink-backend/pkg/auth"
	"github.com/farmolink/farmolink-backend/pkg/db/models"
	"github.com/farmolink/farmolink-backend/pkg/enums"
)

type stubSettlement struct {
	settlement.Service
	year, month *int
	reported    [3]any
	historyFor  uuid.UUID
}

func (s *stubSettlement) AllStatements(_ context.Context, _ auth.Actor, year, month *int) ([]commission.MonthlyStatement, error) {
	s.year, s.month = year, month
	return []commission.MonthlyStatement{{PharmacyID: uuid.New(), Year: 2026, Month: 3, Fees: 150}}, nil
}

func (s *stubSettlement) MarkPaymentReported(_ context.Context, _ auth.Actor, pharmacyID uuid.UUID, month, year int) (*settlement.Result, error) {
	s.reported = [3]any{pharmacyID, month, year}
	return &settlement.Result{PharmacyID: pharmacyID, Month: month, Year: year, Status: enums.CommissionStatusWaitingApproval}, nil
}

func (s *stubSettlement) History(_ context.Context, _ auth.Actor, pharmacyID uuid.UUID) ([]models.SettlementEvent, error) {
	s.historyFor = pharmacyID
	return nil, nil
}

func TestAdminStatementsParsesPeriodFilter(t *testing.T) {
	actor := adminActor()
	svc := &stubSettlement{}

	resp := serve(t, http.MethodGet, "/api/admin/settlements", "/api/admin/settlements?year=2026&month=3", "", &actor, AdminStatements(svc, nil))

	require.Equal(t, http.StatusOK, resp.Code)
	require.NotNil(t, svc.year)
	require.NotNil(t, svc.month)
	assert.Equal(t, 2026, *svc.year)
	assert.Equal(t, 3, *svc.month)
}

func TestAdminStatementsWithoutFilter(t *testing.T) {
	actor := adminActor()
	svc := &stubSettlement{}

	resp := serve(t, http.MethodGet, "/api/admin/settlements", "/api/admin/settlements", "", &actor, AdminStatements(svc, nil))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Nil(t, svc.year)
	assert.Nil(t, svc.month)
}

func TestAdminStatementsRejectsBadMonth(t *testing.T) {
	actor := adminActor()
	resp := serve(t, http.MethodGet, "/api/admin/settlements", "/api/admin/settlements?month=13", "", &actor, AdminStatements(&stubSettlement{}, nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestReportPaymentUsesCallerPharmacy(t *testing.T) {
	actor := pharmacyActor()
	svc := &stubSettlement{}

	resp := serve(t, http.MethodPost, "/api/settlements/report", "/api/settlements/report", `{"month":2,"year":2026}`, &actor, ReportPayment(svc, nil))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, [3]any{*actor.PharmacyID, 2, 2026}, svc.reported)
}

func TestReportPaymentValidatesMonth(t *testing.T) {
	actor := pharmacyActor()
	resp := serve(t, http.MethodPost, "/api/settlements/report", "/api/settlements/report", `{"month":0,"year":2026}`, &actor, ReportPayment(&stubSettlement{}, nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestSettlementHistoryDefaultsToOwnPharmacy(t *testing.T) {
	actor := pharmacyActor()
	svc := &stubSettlement{}

	resp := serve(t, http.MethodGet, "/api/settlements/history", "/api/settlements/history", "", &actor, SettlementHistory(svc, nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, *actor.PharmacyID, svc.historyFor)

	admin := adminActor()
	other := uuid.New()
	resp = serve(t, http.MethodGet, "/api/settlements/history", "/api/settlements/history?pharmacyId="+other.String(), "", &admin, SettlementHistory(svc, nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, other, svc.historyFor)
}
