// Package prescriptions runs the quote auction: a customer fans a prescription
// out to pharmacies, each may respond once, and accepting one response turns
// it into an order.
package prescriptions

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/farmolink/farmolink-backend/internal/orders"
	"github.com/farmolink/farmolink-backend/pkg/auth"
	dbpkg "github.com/farmolink/farmolink-backend/pkg/db"
	"github.com/farmolink/farmolink-backend/pkg/db/models"
	dbtypes "github.com/farmolink/farmolink-backend/pkg/db/types"
	"github.com/farmolink/farmolink-backend/pkg/enums"
	pkgerrors "github.com/farmolink/farmolink-backend/pkg/errors"
	"github.com/farmolink/farmolink-backend/pkg/logger"
	"github.com/farmolink/farmolink-backend/pkg/metrics"
	"github.com/farmolink/farmolink-backend/pkg/outbox"
	"github.com/farmolink/farmolink-backend/pkg/outbox/payloads"
	"github.com/farmolink/farmolink-backend/pkg/pagination"
)

const (
	quoteUniqueIndex      = "ux_prescription_quotes_prescription_pharmacy"
	competingOfferReason  = "customer chose a competing offer."
	declinedByCustomer    = "declined by customer"
	acceptIdempotencyPref = "quote:"

	maxQuoteItems   = 100
	maxItemQuantity = 10_000
	maxQuotedPrice  = 1_000_000_000
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ImageUploader stores an inline prescription image and returns its public URL.
type ImageUploader interface {
	Upload(ctx context.Context, dataURL string) (string, error)
	Discard(ctx context.Context, publicURL string) error
}

// PharmacyDirectory validates fan-out targets.
type PharmacyDirectory interface {
	EnsureEligible(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]models.Pharmacy, error)
}

// OrderCreator places the order for an accepted quote inside the same transaction.
type OrderCreator interface {
	CreateOrderTx(ctx context.Context, tx *gorm.DB, input orders.CreateOrderInput) (*orders.CreateOrderResult, error)
}

type Service interface {
	SubmitRequest(ctx context.Context, input SubmitRequestInput) (*models.PrescriptionRequest, error)
	SubmitQuote(ctx context.Context, actor auth.Actor, input SubmitQuoteInput) (*models.Quote, error)
	SubmitRejection(ctx context.Context, actor auth.Actor, requestID uuid.UUID, pharmacyName, reason string) (*models.Quote, error)
	AcceptQuote(ctx context.Context, input AcceptQuoteInput) (*AcceptResult, error)
	RejectQuoteAsCustomer(ctx context.Context, customerID, quoteID uuid.UUID) (*models.Quote, error)
	DeleteRequest(ctx context.Context, customerID, requestID uuid.UUID) error
	GetRequest(ctx context.Context, actor auth.Actor, id uuid.UUID) (*RequestDTO, error)
	ListForCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*RequestList, error)
	ListForPharmacy(ctx context.Context, pharmacyID uuid.UUID, status *enums.PrescriptionStatus, params pagination.Params) (*RequestList, error)
}

type ServiceParams struct {
	Repo       Repository
	Tx         txRunner
	Outbox     outbox.Emitter
	Pharmacies PharmacyDirectory
	Orders     OrderCreator
	Uploader   ImageUploader
	Metrics    *metrics.Marketplace
	Logger     *logger.Logger
	Now        func() time.Time
}

type service struct {
	repo       Repository
	tx         txRunner
	outbox     outbox.Emitter
	pharmacies PharmacyDirectory
	orders     OrderCreator
	uploader   ImageUploader
	metrics    *metrics.Marketplace
	logg       *logger.Logger
	now        func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("prescriptions repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Pharmacies == nil:
		return nil, fmt.Errorf("pharmacy directory required")
	case params.Orders == nil:
		return nil, fmt.Errorf("order creator required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:       params.Repo,
		tx:         params.Tx,
		outbox:     params.Outbox,
		pharmacies: params.Pharmacies,
		orders:     params.Orders,
		uploader:   params.Uploader,
		metrics:    params.Metrics,
		logg:       logg,
		now:        now,
	}, nil
}

func (s *service) SubmitRequest(ctx context.Context, input SubmitRequestInput) (*models.PrescriptionRequest, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	targets := dbtypes.UUIDArray(input.TargetPharmacyIDs).Dedupe()
	if len(targets) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one target pharmacy is required")
	}

	imageURL := strings.TrimSpace(input.ImageURL)
	dataURL := strings.TrimSpace(input.ImageDataURL)
	uploaded := ""
	switch {
	case dataURL != "":
		if s.uploader == nil {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "image uploads are not configured")
		}
		url, err := s.uploader.Upload(ctx, dataURL)
		if err != nil {
			if pkgerrors.As(err) != nil {
				return nil, err
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload prescription image")
		}
		imageURL, uploaded = url, url
	case imageURL == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "imageUrl is required")
	}

	request := &models.PrescriptionRequest{
		CustomerID:       input.CustomerID,
		ImageURL:         imageURL,
		Notes:            trimmedOrNil(input.Notes),
		Status:           enums.PrescriptionStatusWaitingForQuotes,
		TargetPharmacies: targets,
		CreatedAt:        s.now(),
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.pharmacies.EnsureEligible(ctx, tx, targets); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).CreateRequest(ctx, request); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert prescription request")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPrescriptionRequested,
			AggregateType: enums.AggregatePrescriptionRequest,
			AggregateID:   request.ID,
			Actor:         outbox.NewActorRef(input.CustomerID, nil, string(enums.ActorRoleCustomer)),
			Data: payloads.PrescriptionRequestedEvent{
				PrescriptionID:    request.ID,
				CustomerID:        request.CustomerID,
				TargetPharmacyIDs: targets,
			},
		})
	})
	if err != nil {
		if uploaded != "" {
			if derr := s.uploader.Discard(ctx, uploaded); derr != nil {
				s.logg.Error(s.logg.WithField(ctx, "image_url", uploaded), "discard prescription image", derr)
			}
		}
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"prescription_id": request.ID.String(),
		"targets":         len(targets),
	})
	s.logg.Info(logCtx, "prescription request submitted")
	return request, nil
}

func (s *service) SubmitQuote(ctx context.Context, actor auth.Actor, input SubmitQuoteInput) (*models.Quote, error) {
	if err := validateQuoteInput(input); err != nil {
		return nil, err
	}
	total, err := quoteTotal(input)
	if err != nil {
		return nil, err
	}
	quote := &models.Quote{
		PrescriptionID: input.RequestID,
		PharmacyID:     input.PharmacyID,
		PharmacyName:   strings.TrimSpace(input.PharmacyName),
		Items:          input.Items,
		TotalPrice:     total,
		DeliveryFee:    input.DeliveryFee,
		Notes:          trimmedOrNil(input.Notes),
		Status:         enums.QuoteStatusResponded,
	}
	if err := s.respond(ctx, actor, quote); err != nil {
		return nil, err
	}
	s.metrics.Quote(string(enums.QuoteStatusResponded))
	return quote, nil
}

func (s *service) SubmitRejection(ctx context.Context, actor auth.Actor, requestID uuid.UUID, pharmacyName, reason string) (*models.Quote, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	if strings.TrimSpace(pharmacyName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pharmacyName is required")
	}
	if actor.PharmacyID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "pharmacy role required")
	}
	quote := &models.Quote{
		PrescriptionID:  requestID,
		PharmacyID:      *actor.PharmacyID,
		PharmacyName:    strings.TrimSpace(pharmacyName),
		Items:           []models.QuotedItem{},
		TotalPrice:      0,
		RejectionReason: &reason,
		Status:          enums.QuoteStatusRejected,
	}
	if err := s.respond(ctx, actor, quote); err != nil {
		return nil, err
	}
	s.metrics.Quote(string(enums.QuoteStatusRejected))
	return quote, nil
}

// respond stores one pharmacy response after the parent checks shared by
// priced quotes and declines.
func (s *service) respond(ctx context.Context, actor auth.Actor, quote *models.Quote) error {
	if !actor.Is(enums.ActorRolePharmacy) || !actor.ActsFor(quote.PharmacyID) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "pharmacy may only respond for itself")
	}
	quote.CreatedAt = s.now()

	var request *models.PrescriptionRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		// The shared lock orders this insert against an accept flipping the
		// parent, so a late quote is either refused here or seen by the
		// accept's sibling rejection.
		request, err = lockRequest(ctx, repo, quote.PrescriptionID)
		if err != nil {
			return err
		}
		if request.Status != enums.PrescriptionStatusWaitingForQuotes {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "request is no longer accepting quotes")
		}
		targeted, err := repo.IsTarget(ctx, request.ID, quote.PharmacyID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check request targets")
		}
		if !targeted {
			return pkgerrors.New(pkgerrors.CodeForbidden, "pharmacy was not asked to quote this request")
		}

		if err := repo.CreateQuote(ctx, quote); err != nil {
			if dbpkg.IsUniqueViolation(err, quoteUniqueIndex) {
				return pkgerrors.New(pkgerrors.CodeConflict, "pharmacy already responded to this request")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert quote")
		}

		event := payloads.QuoteSubmittedEvent{
			QuoteID:        quote.ID,
			PrescriptionID: request.ID,
			CustomerID:     request.CustomerID,
			PharmacyID:     quote.PharmacyID,
			PharmacyName:   quote.PharmacyName,
			Status:         quote.Status,
			TotalPrice:     quote.TotalPrice,
		}
		if quote.RejectionReason != nil {
			event.RejectionReason = *quote.RejectionReason
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventQuoteSubmitted,
			AggregateType: enums.AggregateQuote,
			AggregateID:   quote.ID,
			Actor:         outbox.NewActorRef(actor.UserID, actor.PharmacyID, string(actor.Role)),
			Data:          event,
		})
	})
	if err != nil {
		return err
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"prescription_id": quote.PrescriptionID.String(),
		"quote_id":        quote.ID.String(),
		"pharmacy_id":     quote.PharmacyID.String(),
		"status":          string(quote.Status),
	})
	s.logg.Info(logCtx, "quote submitted")
	return nil
}

// AcceptQuote resolves the auction. The conditional flip of the parent is the
// first write, so concurrent accepts on one request serialize on that row and
// only one commits.
func (s *service) AcceptQuote(ctx context.Context, input AcceptQuoteInput) (*AcceptResult, error) {
	input.CustomerName = strings.TrimSpace(input.CustomerName)
	input.Address = strings.TrimSpace(input.Address)
	input.CustomerPhone = strings.TrimSpace(input.CustomerPhone)
	switch {
	case input.CustomerID == uuid.Nil:
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	case input.QuoteID == uuid.Nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quote id required")
	case input.CustomerName == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customerName is required")
	case input.Address == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address is required")
	case input.CustomerPhone == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customerPhone is required")
	}

	var result *AcceptResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		quote, err := loadQuote(ctx, repo, input.QuoteID)
		if err != nil {
			return err
		}
		request, err := loadRequest(ctx, repo, quote.PrescriptionID)
		if err != nil {
			return err
		}
		if request.CustomerID != input.CustomerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "request does not belong to caller")
		}
		if quote.Status != enums.QuoteStatusResponded {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "quote is %s", quote.Status)
		}

		affected, err := repo.CompleteRequest(ctx, request.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete request")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "request already resolved")
		}
		affected, err = repo.AcceptQuote(ctx, quote.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "accept quote")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "quote changed, refresh")
		}
		losers, err := repo.RejectSiblings(ctx, request.ID, quote.ID, competingOfferReason)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject competing quotes")
		}

		items := make([]models.OrderItem, 0, len(quote.Items))
		for _, item := range quote.AvailableItems() {
			items = append(items, models.OrderItem{Name: item.Name, Quantity: item.Quantity, UnitPrice: item.UnitPrice})
		}
		key := acceptIdempotencyPref + quote.ID.String()
		address := input.Address
		prescriptionID := request.ID
		quoteID := quote.ID
		created, err := s.orders.CreateOrderTx(ctx, tx, orders.CreateOrderInput{
			CustomerID:     input.CustomerID,
			CustomerName:   input.CustomerName,
			CustomerPhone:  input.CustomerPhone,
			PharmacyID:     quote.PharmacyID,
			Items:          items,
			Total:          quote.TotalPrice,
			Type:           enums.OrderTypeDelivery,
			Address:        &address,
			IdempotencyKey: &key,
			PrescriptionID: &prescriptionID,
			QuoteID:        &quoteID,
		})
		if err != nil {
			return err
		}

		if losers == nil {
			losers = []uuid.UUID{}
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventQuoteAccepted,
			AggregateType: enums.AggregateQuote,
			AggregateID:   quote.ID,
			Actor:         outbox.NewActorRef(input.CustomerID, nil, string(enums.ActorRoleCustomer)),
			Data: payloads.QuoteAcceptedEvent{
				QuoteID:             quote.ID,
				PrescriptionID:      request.ID,
				CustomerID:          request.CustomerID,
				PharmacyID:          quote.PharmacyID,
				OrderID:             created.OrderID,
				Total:               quote.TotalPrice,
				RejectedPharmacyIDs: losers,
			},
		}); err != nil {
			return err
		}
		result = &AcceptResult{
			OrderID:   created.OrderID,
			QuoteID:   quote.ID,
			Total:     quote.TotalPrice,
			Duplicate: created.Duplicate,
		}
		return nil
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			s.metrics.Conflict("accept_quote")
		}
		return nil, err
	}

	s.metrics.Quote(string(enums.QuoteStatusAccepted))
	s.metrics.OrderCreated(string(enums.OrderTypeDelivery), "quote")
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"quote_id": result.QuoteID.String(),
		"order_id": result.OrderID.String(),
	})
	s.logg.Info(logCtx, "quote accepted")
	return result, nil
}

func (s *service) RejectQuoteAsCustomer(ctx context.Context, customerID, quoteID uuid.UUID) (*models.Quote, error) {
	var quote *models.Quote
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		quote, err = loadQuote(ctx, repo, quoteID)
		if err != nil {
			return err
		}
		request, err := loadRequest(ctx, repo, quote.PrescriptionID)
		if err != nil {
			return err
		}
		if request.CustomerID != customerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "request does not belong to caller")
		}
		affected, err := repo.RejectQuote(ctx, quote.ID, declinedByCustomer)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject quote")
		}
		if affected == 0 {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "quote is %s", quote.Status)
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventQuoteDeclined,
			AggregateType: enums.AggregateQuote,
			AggregateID:   quote.ID,
			Actor:         outbox.NewActorRef(customerID, nil, string(enums.ActorRoleCustomer)),
			Data: payloads.QuoteDeclinedEvent{
				QuoteID:        quote.ID,
				PrescriptionID: request.ID,
				PharmacyID:     quote.PharmacyID,
			},
		}); err != nil {
			return err
		}
		quote, err = loadQuote(ctx, repo, quoteID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Quote("declined")
	return quote, nil
}

func (s *service) DeleteRequest(ctx context.Context, customerID, requestID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		affected, err := repo.DeleteRequest(ctx, requestID, customerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete request")
		}
		if affected > 0 {
			return nil
		}
		request, err := loadRequest(ctx, repo, requestID)
		if err != nil {
			return err
		}
		if request.CustomerID != customerID {
			// other customers' requests are indistinguishable from missing ones
			return pkgerrors.New(pkgerrors.CodeNotFound, "prescription request not found")
		}
		return pkgerrors.New(pkgerrors.CodeStateConflict, "request already resolved")
	})
}

func (s *service) GetRequest(ctx context.Context, actor auth.Actor, id uuid.UUID) (*RequestDTO, error) {
	request, err := loadRequest(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}

	var scope *uuid.UUID
	switch {
	case actor.Is(enums.ActorRoleCustomer) && request.CustomerID == actor.UserID:
	case actor.Is(enums.ActorRolePharmacy) && actor.PharmacyID != nil && request.TargetPharmacies.Contains(*actor.PharmacyID):
		scope = actor.PharmacyID
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "request is not visible to caller")
	}

	quotes, err := s.repo.QuotesFor(ctx, []uuid.UUID{request.ID}, scope)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load quotes")
	}
	request.Quotes = quotes
	dto := RequestToDTO(*request, scope == nil)
	return &dto, nil
}

func (s *service) ListForCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*RequestList, error) {
	rows, err := s.repo.ListForCustomer(ctx, customerID, params)
	if err != nil {
		return nil, listError(err)
	}
	return s.attachQuotes(ctx, rows, params, nil)
}

func (s *service) ListForPharmacy(ctx context.Context, pharmacyID uuid.UUID, status *enums.PrescriptionStatus, params pagination.Params) (*RequestList, error) {
	if status != nil && !status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown prescription status %q", *status)
	}
	rows, err := s.repo.ListForPharmacy(ctx, pharmacyID, status, params)
	if err != nil {
		return nil, listError(err)
	}
	return s.attachQuotes(ctx, rows, params, &pharmacyID)
}

func (s *service) attachQuotes(ctx context.Context, rows []models.PrescriptionRequest, params pagination.Params, pharmacyID *uuid.UUID) (*RequestList, error) {
	page, next := pagination.Trim(rows, params.Limit, func(r models.PrescriptionRequest) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	})
	ids := make([]uuid.UUID, 0, len(page))
	for _, r := range page {
		ids = append(ids, r.ID)
	}
	quotes, err := s.repo.QuotesFor(ctx, ids, pharmacyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load quotes")
	}
	byRequest := make(map[uuid.UUID][]models.Quote, len(page))
	for _, q := range quotes {
		byRequest[q.PrescriptionID] = append(byRequest[q.PrescriptionID], q)
	}

	out := &RequestList{Requests: make([]RequestDTO, 0, len(page)), NextCursor: next}
	for _, r := range page {
		r.Quotes = byRequest[r.ID]
		out.Requests = append(out.Requests, RequestToDTO(r, pharmacyID == nil))
	}
	return out, nil
}

func loadRequest(ctx context.Context, repo Repository, id uuid.UUID) (*models.PrescriptionRequest, error) {
	request, err := repo.FindRequest(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "prescription request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load prescription request")
	}
	return request, nil
}

func lockRequest(ctx context.Context, repo Repository, id uuid.UUID) (*models.PrescriptionRequest, error) {
	request, err := repo.LockRequest(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "prescription request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock prescription request")
	}
	return request, nil
}

func loadQuote(ctx context.Context, repo Repository, id uuid.UUID) (*models.Quote, error) {
	quote, err := repo.FindQuote(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "quote not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load quote")
	}
	return quote, nil
}

func validateQuoteInput(input SubmitQuoteInput) error {
	switch {
	case input.RequestID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	case strings.TrimSpace(input.PharmacyName) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "pharmacyName is required")
	case len(input.Items) == 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "quote must contain at least one item")
	case len(input.Items) > maxQuoteItems:
		return pkgerrors.Newf(pkgerrors.CodeValidation, "quote may contain at most %d items", maxQuoteItems)
	case input.DeliveryFee < 0 || input.DeliveryFee > maxQuotedPrice:
		return pkgerrors.Newf(pkgerrors.CodeValidation, "deliveryFee must be between 0 and %d", int64(maxQuotedPrice))
	}
	available := 0
	for i, item := range input.Items {
		if strings.TrimSpace(item.Name) == "" ||
			item.Quantity < 1 || item.Quantity > maxItemQuantity ||
			item.UnitPrice < 0 || item.UnitPrice > maxQuotedPrice {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "item %d is invalid", i)
		}
		if item.Available {
			available++
		}
	}
	if available == 0 {
		// an order needs at least one line, so such a quote could never be accepted
		return pkgerrors.New(pkgerrors.CodeValidation, "quote must contain at least one available item")
	}
	return nil
}

// quoteTotal sums the available lines and the delivery fee, refusing totals
// that do not fit in int64.
func quoteTotal(input SubmitQuoteInput) (int64, error) {
	outOfRange := pkgerrors.New(pkgerrors.CodeValidation, "quote total out of range")
	total := input.DeliveryFee
	for _, item := range input.Items {
		if !item.Available {
			continue
		}
		if item.UnitPrice != 0 && item.Quantity > math.MaxInt64/item.UnitPrice {
			return 0, outOfRange
		}
		line := item.UnitPrice * item.Quantity
		if total > math.MaxInt64-line {
			return 0, outOfRange
		}
		total += line
	}
	return total, nil
}

func listError(err error) error {
	if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list prescription requests")
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
