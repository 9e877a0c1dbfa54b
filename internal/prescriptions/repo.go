package prescriptions

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/farmolink/farmolink-backend/pkg/db"
	"github.com/farmolink/farmolink-backend/pkg/db/models"
	"github.com/farmolink/farmolink-backend/pkg/enums"
	"github.com/farmolink/farmolink-backend/pkg/pagination"
)

// Repository persists prescription requests and their quotes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateRequest(ctx context.Context, request *models.PrescriptionRequest) error
	FindRequest(ctx context.Context, id uuid.UUID) (*models.PrescriptionRequest, error)
	LockRequest(ctx context.Context, id uuid.UUID) (*models.PrescriptionRequest, error)
	IsTarget(ctx context.Context, requestID, pharmacyID uuid.UUID) (bool, error)
	CompleteRequest(ctx context.Context, id uuid.UUID) (int64, error)
	DeleteRequest(ctx context.Context, id, customerID uuid.UUID) (int64, error)
	ListForCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) ([]models.PrescriptionRequest, error)
	ListForPharmacy(ctx context.Context, pharmacyID uuid.UUID, status *enums.PrescriptionStatus, params pagination.Params) ([]models.PrescriptionRequest, error)

	CreateQuote(ctx context.Context, quote *models.Quote) error
	FindQuote(ctx context.Context, id uuid.UUID) (*models.Quote, error)
	QuotesFor(ctx context.Context, requestIDs []uuid.UUID, pharmacyID *uuid.UUID) ([]models.Quote, error)
	AcceptQuote(ctx context.Context, id uuid.UUID) (int64, error)
	RejectQuote(ctx context.Context, id uuid.UUID, reason string) (int64, error)
	RejectSiblings(ctx context.Context, requestID, acceptedID uuid.UUID, reason string) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateRequest(ctx context.Context, request *models.PrescriptionRequest) error {
	return r.db.WithContext(ctx).Omit("Quotes").Create(request).Error
}

func (r *repository) FindRequest(ctx context.Context, id uuid.UUID) (*models.PrescriptionRequest, error) {
	var request models.PrescriptionRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&request).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

// LockRequest reads the request holding a share lock on Postgres until the
// transaction ends. Concurrent responders do not block each other; an accept
// flipping the status waits for them.
func (r *repository) LockRequest(ctx context.Context, id uuid.UUID) (*models.PrescriptionRequest, error) {
	query := r.db.WithContext(ctx)
	if dbpkg.IsPostgres(r.db) {
		query = query.Clauses(clause.Locking{Strength: "SHARE"})
	}
	var request models.PrescriptionRequest
	if err := query.Where("id = ?", id).First(&request).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

// targetPredicate is the "contains" test on target_pharmacies. sqlite keeps
// the array literal as text, so it falls back to a substring match.
func targetPredicate(db *gorm.DB, pharmacyID uuid.UUID) (string, any) {
	if dbpkg.IsPostgres(db) {
		return "? = ANY(target_pharmacies)", pharmacyID
	}
	return "target_pharmacies LIKE ?", "%" + pharmacyID.String() + "%"
}

func (r *repository) IsTarget(ctx context.Context, requestID, pharmacyID uuid.UUID) (bool, error) {
	clause, arg := targetPredicate(r.db, pharmacyID)
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PrescriptionRequest{}).
		Where("id = ?", requestID).
		Where(clause, arg).
		Count(&count).Error
	return count > 0, err
}

// CompleteRequest flips the parent out of waiting_for_quotes. Zero rows means
// a concurrent accept already resolved it.
func (r *repository) CompleteRequest(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PrescriptionRequest{}).
		Where("id = ? AND status = ?", id, enums.PrescriptionStatusWaitingForQuotes).
		Update("status", enums.PrescriptionStatusCompleted)
	return res.RowsAffected, res.Error
}

func (r *repository) DeleteRequest(ctx context.Context, id, customerID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND customer_id = ? AND status = ?", id, customerID, enums.PrescriptionStatusWaitingForQuotes).
		Delete(&models.PrescriptionRequest{})
	if res.Error != nil || res.RowsAffected == 0 {
		return res.RowsAffected, res.Error
	}
	// the FK cascades on Postgres; this keeps dialects without it consistent
	if err := r.db.WithContext(ctx).Where("prescription_id = ?", id).Delete(&models.Quote{}).Error; err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

func (r *repository) ListForCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) ([]models.PrescriptionRequest, error) {
	query := r.db.WithContext(ctx).Model(&models.PrescriptionRequest{}).Where("customer_id = ?", customerID)
	return r.page(query, params)
}

func (r *repository) ListForPharmacy(ctx context.Context, pharmacyID uuid.UUID, status *enums.PrescriptionStatus, params pagination.Params) ([]models.PrescriptionRequest, error) {
	clause, arg := targetPredicate(r.db, pharmacyID)
	query := r.db.WithContext(ctx).Model(&models.PrescriptionRequest{}).Where(clause, arg)
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	return r.page(query, params)
}

func (r *repository) page(query *gorm.DB, params pagination.Params) ([]models.PrescriptionRequest, error) {
	query, err := pagination.Keyset(query, params)
	if err != nil {
		return nil, err
	}
	var rows []models.PrescriptionRequest
	err = query.Find(&rows).Error
	return rows, err
}

// CreateQuote runs in a savepoint so a duplicate response can be reported
// without poisoning the caller's transaction.
func (r *repository) CreateQuote(ctx context.Context, quote *models.Quote) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(quote).Error
	})
}

func (r *repository) FindQuote(ctx context.Context, id uuid.UUID) (*models.Quote, error) {
	var quote models.Quote
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&quote).Error; err != nil {
		return nil, err
	}
	return &quote, nil
}

// QuotesFor returns quotes for the requests newest first, optionally narrowed
// to one pharmacy's responses.
func (r *repository) QuotesFor(ctx context.Context, requestIDs []uuid.UUID, pharmacyID *uuid.UUID) ([]models.Quote, error) {
	if len(requestIDs) == 0 {
		return nil, nil
	}
	query := r.db.WithContext(ctx).Where("prescription_id IN ?", requestIDs)
	if pharmacyID != nil {
		query = query.Where("pharmacy_id = ?", *pharmacyID)
	}
	var rows []models.Quote
	err := query.Order("created_at DESC").Order("id DESC").Find(&rows).Error
	return rows, err
}

func (r *repository) AcceptQuote(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Quote{}).
		Where("id = ? AND status = ?", id, enums.QuoteStatusResponded).
		Update("status", enums.QuoteStatusAccepted)
	return res.RowsAffected, res.Error
}

func (r *repository) RejectQuote(ctx context.Context, id uuid.UUID, reason string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Quote{}).
		Where("id = ? AND status = ?", id, enums.QuoteStatusResponded).
		Updates(map[string]any{"status": enums.QuoteStatusRejected, "rejection_reason": reason})
	return res.RowsAffected, res.Error
}

// RejectSiblings closes every other open response on the request and returns
// the pharmacies that lost.
func (r *repository) RejectSiblings(ctx context.Context, requestID, acceptedID uuid.UUID, reason string) ([]uuid.UUID, error) {
	scope := func() *gorm.DB {
		return r.db.WithContext(ctx).
			Model(&models.Quote{}).
			Where("prescription_id = ? AND id <> ? AND status = ?", requestID, acceptedID, enums.QuoteStatusResponded)
	}
	var losers []uuid.UUID
	if err := scope().Pluck("pharmacy_id", &losers).Error; err != nil {
		return nil, err
	}
	if len(losers) == 0 {
		return nil, nil
	}
	err := scope().Updates(map[string]any{"status": enums.QuoteStatusRejected, "rejection_reason": reason}).Error
	return losers, err
}
