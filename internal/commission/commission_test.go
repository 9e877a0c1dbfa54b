package commission

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmolink/farmolink-backend/pkg/db/models"
	"github.com/farmolink/farmolink-backend/pkg/enums"
)

func amount(v int64) *int64 { return &v }

func TestComputeOrderCommission(t *testing.T) {
	cases := []struct {
		name  string
		total int64
		rate  string
		want  int64
	}{
		{"default rate", 10000, "10", 1000},
		{"zero total", 0, "10", 0},
		{"zero rate", 5000, "0", 0},
		{"full rate", 5000, "100", 5000},
		{"half rounds to even down", 25, "10", 2},
		{"half rounds to even up", 35, "10", 4},
		{"fractional rate", 1999, "7.5", 150},
		{"above half rounds up", 26, "10", 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeOrderCommission(tc.total, decimal.RequireFromString(tc.rate))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolveRate(t *testing.T) {
	assert.True(t, DefaultRate.Equal(ResolveRate(nil)))
	custom := decimal.NewFromInt(5)
	assert.True(t, custom.Equal(ResolveRate(&custom)))

	assert.True(t, decimal.NewFromInt(12).Equal(ResolveNullRate(decimal.NullDecimal{}, decimal.NewFromInt(12))))
	assert.True(t, custom.Equal(ResolveNullRate(decimal.NewNullDecimal(custom), DefaultRate)))
}

func TestBuildMonthlyStatement(t *testing.T) {
	pharmacyID := uuid.New()
	march := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	april := time.Date(2024, 4, 2, 8, 0, 0, 0, time.UTC)

	orders := []models.Order{
		{Status: enums.OrderStatusCompleted, Total: 10000, CommissionAmount: amount(1000), CommissionStatus: enums.CommissionStatusPaid, CreatedAt: march},
		{Status: enums.OrderStatusCompleted, Total: 5000, CommissionAmount: amount(250), CommissionStatus: enums.CommissionStatusWaitingApproval, CreatedAt: march},
		{Status: enums.OrderStatusCancelled, Total: 9999, CommissionAmount: amount(999), CommissionStatus: enums.CommissionStatusPending, CreatedAt: march},
		{Status: enums.OrderStatusCompleted, Total: 3000, CommissionStatus: enums.CommissionStatusPending, CreatedAt: april},
	}

	stmts := BuildMonthlyStatement(pharmacyID, orders, DefaultRate)
	require.Len(t, stmts, 2)

	assert.Equal(t, 2024, stmts[0].Year)
	assert.Equal(t, 4, stmts[0].Month)
	assert.Equal(t, int64(3000), stmts[0].Sales)
	assert.Equal(t, int64(300), stmts[0].Fees, "missing amount falls back to the default rate")
	assert.Equal(t, enums.CommissionStatusPending, stmts[0].Status)

	assert.Equal(t, 3, stmts[1].Month)
	assert.Equal(t, int64(15000), stmts[1].Sales)
	assert.Equal(t, int64(1250), stmts[1].Fees)
	assert.Equal(t, 2, stmts[1].OrderCount)
	assert.Equal(t, enums.CommissionStatusWaitingApproval, stmts[1].Status)
	for _, s := range stmts {
		assert.Equal(t, pharmacyID, s.PharmacyID)
	}
}

func TestBuildMonthlyStatementUsesFrozenRateForFallback(t *testing.T) {
	orders := []models.Order{{
		Status:           enums.OrderStatusCompleted,
		Total:            1000,
		CommissionRate:   decimal.NewNullDecimal(decimal.NewFromInt(5)),
		CommissionStatus: enums.CommissionStatusPaid,
		CreatedAt:        time.Date(2024, 1, 31, 23, 59, 0, 0, time.UTC),
	}}
	stmts := BuildMonthlyStatement(uuid.New(), orders, DefaultRate)
	require.Len(t, stmts, 1)
	assert.Equal(t, int64(50), stmts[0].Fees)
	assert.Equal(t, enums.CommissionStatusPaid, stmts[0].Status)
}

func TestBuildMonthlyStatementGroupsInUTC(t *testing.T) {
	luanda := time.FixedZone("WAT", 3600)
	// 00:30 on 1 Feb in Luanda is still January in UTC.
	created := time.Date(2024, 2, 1, 0, 30, 0, 0, luanda)
	stmts := BuildMonthlyStatement(uuid.New(), []models.Order{{
		Status: enums.OrderStatusCompleted, Total: 100, CommissionAmount: amount(10),
		CommissionStatus: enums.CommissionStatusPending, CreatedAt: created,
	}}, DefaultRate)
	require.Len(t, stmts, 1)
	assert.Equal(t, 1, stmts[0].Month)
}

func TestBuildMonthlyStatementEmpty(t *testing.T) {
	assert.Empty(t, BuildMonthlyStatement(uuid.New(), nil, DefaultRate))
}

func TestMonthBounds(t *testing.T) {
	start, next := MonthBounds(2024, 12)
	assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), next)
}
