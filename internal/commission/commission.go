// Package commission holds the pure fee arithmetic shared by order creation and
// the monthly settlement statements.
package commission

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farmolink/farmolink-backend/pkg/db/models"
	"github.com/farmolink/farmolink-backend/pkg/enums"
)

// DefaultRate is the platform fee in percent when a pharmacy has none configured.
var DefaultRate = decimal.NewFromInt(10)

var hundred = decimal.NewFromInt(100)

// ResolveRate returns the pharmacy rate, or DefaultRate when unset.
func ResolveRate(rate *decimal.Decimal) decimal.Decimal {
	if rate == nil {
		return DefaultRate
	}
	return *rate
}

// ResolveNullRate is ResolveRate for the nullable column type, falling back to
// fallback instead of DefaultRate.
func ResolveNullRate(rate decimal.NullDecimal, fallback decimal.Decimal) decimal.Decimal {
	if rate.Valid {
		return rate.Decimal
	}
	return fallback
}

// ComputeOrderCommission is total*rate/100 rounded half-to-even to whole Kwanza.
func ComputeOrderCommission(total int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(total).Mul(rate).Div(hundred).RoundBank(0).IntPart()
}

// MonthlyStatement is the per-pharmacy roll-up of completed orders in one
// calendar month (UTC).
type MonthlyStatement struct {
	PharmacyID uuid.UUID              `json:"pharmacyId"`
	Year       int                    `json:"year"`
	Month      int                    `json:"month"`
	Sales      int64                  `json:"sales"`
	Fees       int64                  `json:"fees"`
	Status     enums.CommissionStatus `json:"status"`
	OrderCount int                    `json:"orderCount"`
}

type periodKey struct {
	year  int
	month time.Month
}

// BuildMonthlyStatement groups the completed orders of one pharmacy by month.
// Orders without a frozen commission fall back to defaultRate. The month status
// is the most severe commission status among its orders.
func BuildMonthlyStatement(pharmacyID uuid.UUID, orders []models.Order, defaultRate decimal.Decimal) []MonthlyStatement {
	byPeriod := make(map[periodKey]*MonthlyStatement)
	for _, order := range orders {
		if order.Status != enums.OrderStatusCompleted {
			continue
		}
		created := order.CreatedAt.UTC()
		key := periodKey{year: created.Year(), month: created.Month()}
		stmt, ok := byPeriod[key]
		if !ok {
			stmt = &MonthlyStatement{
				PharmacyID: pharmacyID,
				Year:       key.year,
				Month:      int(key.month),
				Status:     enums.CommissionStatusPaid,
			}
			byPeriod[key] = stmt
		}
		stmt.Sales += order.Total
		stmt.Fees += FeeFor(order, defaultRate)
		stmt.OrderCount++
		if order.CommissionStatus.Severity() > stmt.Status.Severity() {
			stmt.Status = order.CommissionStatus
		}
	}

	out := make([]MonthlyStatement, 0, len(byPeriod))
	for _, stmt := range byPeriod {
		out = append(out, *stmt)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return out[i].Month > out[j].Month
	})
	return out
}

// FeeFor returns the frozen commission, or recomputes it for legacy rows.
func FeeFor(order models.Order, defaultRate decimal.Decimal) int64 {
	if order.CommissionAmount != nil {
		return *order.CommissionAmount
	}
	return ComputeOrderCommission(order.Total, ResolveNullRate(order.CommissionRate, defaultRate))
}

// MonthBounds returns [start, next) in UTC for the given calendar month.
func MonthBounds(year, month int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
