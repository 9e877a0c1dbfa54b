package prescriptions

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/farmolink/farmolink-backend/internal/dupguard"
	"github.com/farmolink/farmolink-backend/internal/orders"
	"github.com/farmolink/farmolink-backend/internal/pharmacies"
	"github.com/farmolink/farmolink-backend/pkg/auth"
	"github.com/farmolink/farmolink-backend/pkg/db/dbtest"
	"github.com/farmolink/farmolink-backend/pkg/db/models"
	"github.com/farmolink/farmolink-backend/pkg/enums"
	pkgerrors "github.com/farmolink/farmolink-backend/pkg/errors"
	"github.com/farmolink/farmolink-backend/pkg/outbox"
	"github.com/farmolink/farmolink-backend/pkg/pagination"
)

type gormTx struct {
	db *gorm.DB
}

func (g gormTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []outbox.DomainEvent
}

func (r *recordingEmitter) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEmitter) count(eventType enums.OutboxEventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

type stubUploader struct {
	url       string
	err       error
	discarded *[]string
}

func (s stubUploader) Upload(context.Context, string) (string, error) {
	return s.url, s.err
}

func (s stubUploader) Discard(_ context.Context, url string) error {
	if s.discarded != nil {
		*s.discarded = append(*s.discarded, url)
	}
	return nil
}

// hookedRepository lets a test act inside the service's transaction at the
// points where a concurrent writer could interleave.
type hookedRepository struct {
	Repository
	// beforeLock runs on the transaction's repository before the parent is read.
	beforeLock func(ctx context.Context, tx Repository, id uuid.UUID)
	// completeOverride, when it returns true, replaces CompleteRequest's result.
	completeOverride func() (int64, bool)
	locks            *int
}

func (h hookedRepository) WithTx(tx *gorm.DB) Repository {
	h.Repository = h.Repository.WithTx(tx)
	return h
}

func (h hookedRepository) LockRequest(ctx context.Context, id uuid.UUID) (*models.PrescriptionRequest, error) {
	if h.locks != nil {
		*h.locks++
	}
	if h.beforeLock != nil {
		h.beforeLock(ctx, h.Repository, id)
	}
	return h.Repository.LockRequest(ctx, id)
}

func (h hookedRepository) CompleteRequest(ctx context.Context, id uuid.UUID) (int64, error) {
	if h.completeOverride != nil {
		if rows, ok := h.completeOverride(); ok {
			return rows, nil
		}
	}
	return h.Repository.CompleteRequest(ctx, id)
}

type fixture struct {
	db       *gorm.DB
	svc      Service
	orders   orders.Service
	emitter  *recordingEmitter
	clock    time.Time
	customer uuid.UUID
}

func newFixture(t *testing.T, uploader ImageUploader) *fixture {
	t.Helper()
	return newFixtureWithRepo(t, uploader, nil)
}

// newFixtureWithRepo builds the fixture with wrap applied to the prescription
// repository; setup writes through the same wrapped service.
func newFixtureWithRepo(t *testing.T, uploader ImageUploader, wrap func(Repository) Repository) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	f := &fixture{
		db:       db,
		emitter:  &recordingEmitter{},
		clock:    time.Date(2025, 5, 2, 9, 0, 0, 0, time.UTC),
		customer: uuid.New(),
	}
	now := func() time.Time { return f.clock }

	pharmRepo := pharmacies.NewRepository(db)
	directory, err := pharmacies.NewService(pharmRepo)
	require.NoError(t, err)
	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:   orders.NewRepository(db),
		Tx:     gormTx{db: db},
		Outbox: f.emitter,
		Pharmacies: func(tx *gorm.DB) orders.PharmacyLookup {
			return pharmRepo.WithTx(tx)
		},
		Guard: dupguard.New(dupguard.DefaultWindow),
		Now:   now,
	})
	require.NoError(t, err)

	var repo Repository = NewRepository(db)
	if wrap != nil {
		repo = wrap(repo)
	}
	svc, err := NewService(ServiceParams{
		Repo:       repo,
		Tx:         gormTx{db: db},
		Outbox:     f.emitter,
		Pharmacies: directory,
		Orders:     orderSvc,
		Uploader:   uploader,
		Now:        now,
	})
	require.NoError(t, err)
	f.svc = svc
	f.orders = orderSvc
	return f
}

func (f *fixture) pharmacy(t *testing.T, name string) (models.Pharmacy, auth.Actor) {
	t.Helper()
	p := models.Pharmacy{
		OwnerUserID: uuid.New(),
		Name:        name,
		Status:      enums.PharmacyStatusApproved,
		IsAvailable: true,
	}
	require.NoError(t, f.db.Create(&p).Error)
	id := p.ID
	return p, auth.Actor{UserID: p.OwnerUserID, Role: enums.ActorRolePharmacy, PharmacyID: &id}
}

func (f *fixture) request(t *testing.T, targets ...uuid.UUID) *models.PrescriptionRequest {
	t.Helper()
	f.clock = f.clock.Add(time.Minute)
	req, err := f.svc.SubmitRequest(context.Background(), SubmitRequestInput{
		CustomerID:        f.customer,
		ImageURL:          "https://storage.googleapis.com/bucket/prescriptions/a.jpg",
		TargetPharmacyIDs: targets,
	})
	require.NoError(t, err)
	return req
}

func (f *fixture) quote(t *testing.T, actor auth.Actor, name string, requestID uuid.UUID, price int64) *models.Quote {
	t.Helper()
	f.clock = f.clock.Add(time.Second)
	q, err := f.svc.SubmitQuote(context.Background(), actor, SubmitQuoteInput{
		RequestID:    requestID,
		PharmacyID:   *actor.PharmacyID,
		PharmacyName: name,
		Items: []models.QuotedItem{
			{Name: "Amoxicilina", Quantity: 2, UnitPrice: price, Available: true},
			{Name: "Vitamina C", Quantity: 1, UnitPrice: 999, Available: false},
		},
		DeliveryFee: 500,
	})
	require.NoError(t, err)
	return q
}

func acceptInput(customer, quoteID uuid.UUID) AcceptQuoteInput {
	return AcceptQuoteInput{
		CustomerID:    customer,
		QuoteID:       quoteID,
		CustomerName:  "Ana",
		Address:       "Rua 1, Luanda",
		CustomerPhone: "923000111",
	}
}

func TestSubmitRequestValidatesTargets(t *testing.T) {
	f := newFixture(t, nil)
	a, _ := f.pharmacy(t, "A")

	_, err := f.svc.SubmitRequest(context.Background(), SubmitRequestInput{CustomerID: f.customer, ImageURL: "x"})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	_, err = f.svc.SubmitRequest(context.Background(), SubmitRequestInput{
		CustomerID:        f.customer,
		ImageURL:          "x",
		TargetPharmacyIDs: []uuid.UUID{a.ID, uuid.New()},
	})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	req, err := f.svc.SubmitRequest(context.Background(), SubmitRequestInput{
		CustomerID:        f.customer,
		ImageURL:          "x",
		TargetPharmacyIDs: []uuid.UUID{a.ID, a.ID},
	})
	require.NoError(t, err)
	assert.Len(t, req.TargetPharmacies, 1)
	assert.Equal(t, enums.PrescriptionStatusWaitingForQuotes, req.Status)
	assert.Equal(t, 1, f.emitter.count(enums.EventPrescriptionRequested))
}

func TestSubmitRequestUploadsDataURL(t *testing.T) {
	f := newFixture(t, stubUploader{url: "https://cdn/p.png"})
	a, _ := f.pharmacy(t, "A")

	req, err := f.svc.SubmitRequest(context.Background(), SubmitRequestInput{
		CustomerID:        f.customer,
		ImageDataURL:      "data:image/png;base64,AAAA",
		TargetPharmacyIDs: []uuid.UUID{a.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/p.png", req.ImageURL)
}

func TestSubmitRequestDiscardsImageWhenInsertFails(t *testing.T) {
	var discarded []string
	f := newFixture(t, stubUploader{url: "https://cdn/p.png", discarded: &discarded})

	_, err := f.svc.SubmitRequest(context.Background(), SubmitRequestInput{
		CustomerID:        f.customer,
		ImageDataURL:      "data:image/png;base64,AAAA",
		TargetPharmacyIDs: []uuid.UUID{uuid.New()},
	})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	assert.Equal(t, []string{"https://cdn/p.png"}, discarded)
}

func TestSubmitRequestUploadFailureInsertsNothing(t *testing.T) {
	f := newFixture(t, stubUploader{err: errors.New("bucket down")})
	a, _ := f.pharmacy(t, "A")

	_, err := f.svc.SubmitRequest(context.Background(), SubmitRequestInput{
		CustomerID:        f.customer,
		ImageDataURL:      "data:image/png;base64,AAAA",
		TargetPharmacyIDs: []uuid.UUID{a.ID},
	})
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))

	var count int64
	require.NoError(t, f.db.Model(&models.PrescriptionRequest{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSubmitQuoteComputesTotalAndGuardsParent(t *testing.T) {
	f := newFixture(t, nil)
	a, actorA := f.pharmacy(t, "A")
	_, outsider := f.pharmacy(t, "Outsider")
	req := f.request(t, a.ID)

	q := f.quote(t, actorA, "A", req.ID, 1200)
	assert.Equal(t, int64(2*1200+500), q.TotalPrice)
	assert.Equal(t, enums.QuoteStatusResponded, q.Status)

	_, err := f.svc.SubmitQuote(context.Background(), actorA, SubmitQuoteInput{
		RequestID: req.ID, PharmacyID: a.ID, PharmacyName: "A",
		Items: []models.QuotedItem{{Name: "x", Quantity: 1, UnitPrice: 1, Available: true}},
	})
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))

	_, err = f.svc.SubmitQuote(context.Background(), outsider, SubmitQuoteInput{
		RequestID: req.ID, PharmacyID: *outsider.PharmacyID, PharmacyName: "Outsider",
		Items: []models.QuotedItem{{Name: "x", Quantity: 1, UnitPrice: 1, Available: true}},
	})
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))

	_, err = f.svc.SubmitQuote(context.Background(), actorA, SubmitQuoteInput{
		RequestID: uuid.New(), PharmacyID: a.ID, PharmacyName: "A",
		Items: []models.QuotedItem{{Name: "x", Quantity: 1, UnitPrice: 1, Available: true}},
	})
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	bad := []SubmitQuoteInput{
		{RequestID: req.ID, PharmacyID: a.ID, PharmacyName: "A"},
		{RequestID: req.ID, PharmacyID: a.ID, PharmacyName: "A", DeliveryFee: -1, Items: []models.QuotedItem{{Name: "x", Quantity: 1}}},
		{RequestID: req.ID, PharmacyID: a.ID, PharmacyName: "A", Items: []models.QuotedItem{{Name: "x", Quantity: 0}}},
		{RequestID: req.ID, PharmacyID: a.ID, PharmacyName: "A", Items: []models.QuotedItem{{Name: "x", Quantity: 1, UnitPrice: -5}}},
		{RequestID: req.ID, PharmacyID: a.ID, PharmacyName: "A", Items: []models.QuotedItem{{Name: "x", Quantity: maxItemQuantity + 1, UnitPrice: 1, Available: true}}},
		{RequestID: req.ID, PharmacyID: a.ID, PharmacyName: "A", Items: []models.QuotedItem{{Name: "x", Quantity: 1, UnitPrice: maxQuotedPrice + 1, Available: true}}},
		{RequestID: req.ID, PharmacyID: a.ID, PharmacyName: "A", DeliveryFee: maxQuotedPrice + 1, Items: []models.QuotedItem{{Name: "x", Quantity: 1, UnitPrice: 1, Available: true}}},
	}
	for _, in := range bad {
		_, err := f.svc.SubmitQuote(context.Background(), actorA, in)
		assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	}
}

func TestSubmitRejection(t *testing.T) {
	f := newFixture(t, nil)
	a, actorA := f.pharmacy(t, "A")
	req := f.request(t, a.ID)

	_, err := f.svc.SubmitRejection(context.Background(), actorA, req.ID, "A", " ")
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	q, err := f.svc.SubmitRejection(context.Background(), actorA, req.ID, "A", "out of stock")
	require.NoError(t, err)
	assert.Equal(t, enums.QuoteStatusRejected, q.Status)
	assert.Zero(t, q.TotalPrice)
	require.NotNil(t, q.RejectionReason)
	assert.Equal(t, "out of stock", *q.RejectionReason)
	assert.Equal(t, 1, f.emitter.count(enums.EventQuoteSubmitted))
}

func TestAcceptQuoteCreatesOrderAndRejectsSiblings(t *testing.T) {
	f := newFixture(t, nil)
	a, actorA := f.pharmacy(t, "A")
	b, actorB := f.pharmacy(t, "B")
	req := f.request(t, a.ID, b.ID)
	qa := f.quote(t, actorA, "A", req.ID, 1000)
	qb := f.quote(t, actorB, "B", req.ID, 900)

	res, err := f.svc.AcceptQuote(context.Background(), acceptInput(f.customer, qa.ID))
	require.NoError(t, err)
	assert.Equal(t, qa.TotalPrice, res.Total)

	var parent models.PrescriptionRequest
	require.NoError(t, f.db.First(&parent, "id = ?", req.ID).Error)
	assert.Equal(t, enums.PrescriptionStatusCompleted, parent.Status)

	var winner, loser models.Quote
	require.NoError(t, f.db.First(&winner, "id = ?", qa.ID).Error)
	require.NoError(t, f.db.First(&loser, "id = ?", qb.ID).Error)
	assert.Equal(t, enums.QuoteStatusAccepted, winner.Status)
	assert.Equal(t, enums.QuoteStatusRejected, loser.Status)
	require.NotNil(t, loser.RejectionReason)
	assert.Equal(t, "customer chose a competing offer.", *loser.RejectionReason)

	var order models.Order
	require.NoError(t, f.db.First(&order, "id = ?", res.OrderID).Error)
	assert.Equal(t, a.ID, order.PharmacyID)
	assert.Equal(t, enums.OrderTypeDelivery, order.Type)
	assert.Equal(t, qa.TotalPrice, order.Total)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Amoxicilina", order.Items[0].Name)
	require.NotNil(t, order.QuoteID)
	assert.Equal(t, qa.ID, *order.QuoteID)

	assert.Equal(t, 1, f.emitter.count(enums.EventQuoteAccepted))
	assert.Equal(t, 1, f.emitter.count(enums.EventOrderCreated))

	// the loser can no longer be accepted, and the request takes no more quotes
	_, err = f.svc.AcceptQuote(context.Background(), acceptInput(f.customer, qb.ID))
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
	_, err = f.svc.SubmitRejection(context.Background(), actorB, req.ID, "B", "late")
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
}

func TestAcceptQuoteRollsBackWhenOrderFails(t *testing.T) {
	f := newFixture(t, nil)
	a, actorA := f.pharmacy(t, "A")
	req := f.request(t, a.ID)
	qa := f.quote(t, actorA, "A", req.ID, 1000)

	// the pharmacy goes offline between quoting and acceptance
	require.NoError(t, f.db.Model(&models.Pharmacy{}).Where("id = ?", a.ID).Update("is_available", false).Error)

	_, err := f.svc.AcceptQuote(context.Background(), acceptInput(f.customer, qa.ID))
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	var parent models.PrescriptionRequest
	require.NoError(t, f.db.First(&parent, "id = ?", req.ID).Error)
	assert.Equal(t, enums.PrescriptionStatusWaitingForQuotes, parent.Status)
	var quote models.Quote
	require.NoError(t, f.db.First(&quote, "id = ?", qa.ID).Error)
	assert.Equal(t, enums.QuoteStatusResponded, quote.Status)
	var count int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestAcceptQuoteChecksOwnershipAndInput(t *testing.T) {
	f := newFixture(t, nil)
	a, actorA := f.pharmacy(t, "A")
	req := f.request(t, a.ID)
	qa := f.quote(t, actorA, "A", req.ID, 1000)

	_, err := f.svc.AcceptQuote(context.Background(), acceptInput(uuid.New(), qa.ID))
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))

	in := acceptInput(f.customer, qa.ID)
	in.Address = ""
	_, err = f.svc.AcceptQuote(context.Background(), in)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	_, err = f.svc.AcceptQuote(context.Background(), acceptInput(f.customer, uuid.New()))
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestRejectQuoteAsCustomer(t *testing.T) {
	f := newFixture(t, nil)
	a, actorA := f.pharmacy(t, "A")
	b, actorB := f.pharmacy(t, "B")
	req := f.request(t, a.ID, b.ID)
	qa := f.quote(t, actorA, "A", req.ID, 1000)
	qb := f.quote(t, actorB, "B", req.ID, 900)

	declined, err := f.svc.RejectQuoteAsCustomer(context.Background(), f.customer, qa.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.QuoteStatusRejected, declined.Status)
	require.NotNil(t, declined.RejectionReason)
	assert.Equal(t, "declined by customer", *declined.RejectionReason)

	_, err = f.svc.RejectQuoteAsCustomer(context.Background(), f.customer, qa.ID)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))

	_, err = f.svc.RejectQuoteAsCustomer(context.Background(), uuid.New(), qb.ID)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))

	var sibling models.Quote
	require.NoError(t, f.db.First(&sibling, "id = ?", qb.ID).Error)
	assert.Equal(t, enums.QuoteStatusResponded, sibling.Status)
	assert.Equal(t, 1, f.emitter.count(enums.EventQuoteDeclined))
}

func TestDeleteRequest(t *testing.T) {
	f := newFixture(t, nil)
	a, actorA := f.pharmacy(t, "A")
	open := f.request(t, a.ID)
	f.quote(t, actorA, "A", open.ID, 100)

	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(f.svc.DeleteRequest(context.Background(), uuid.New(), open.ID)))
	require.NoError(t, f.svc.DeleteRequest(context.Background(), f.customer, open.ID))

	var quotes int64
	require.NoError(t, f.db.Model(&models.Quote{}).Where("prescription_id = ?", open.ID).Count(&quotes).Error)
	assert.Zero(t, quotes)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(f.svc.DeleteRequest(context.Background(), f.customer, open.ID)))

	resolved := f.request(t, a.ID)
	q := f.quote(t, actorA, "A", resolved.ID, 100)
	_, err := f.svc.AcceptQuote(context.Background(), acceptInput(f.customer, q.ID))
	require.NoError(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(f.svc.DeleteRequest(context.Background(), f.customer, resolved.ID)))
}

func TestReadsScopeQuotesToViewer(t *testing.T) {
	f := newFixture(t, nil)
	a, actorA := f.pharmacy(t, "A")
	b, actorB := f.pharmacy(t, "B")
	c, actorC := f.pharmacy(t, "C")
	first := f.request(t, a.ID, b.ID)
	second := f.request(t, a.ID)
	f.quote(t, actorA, "A", first.ID, 100)
	f.quote(t, actorB, "B", first.ID, 200)

	owner := auth.Actor{UserID: f.customer, Role: enums.ActorRoleCustomer}
	full, err := f.svc.GetRequest(context.Background(), owner, first.ID)
	require.NoError(t, err)
	assert.Len(t, full.Quotes, 2)
	assert.Len(t, full.TargetPharmacies, 2)

	scoped, err := f.svc.GetRequest(context.Background(), actorB, first.ID)
	require.NoError(t, err)
	require.Len(t, scoped.Quotes, 1)
	assert.Equal(t, b.ID, scoped.Quotes[0].PharmacyID)
	assert.Empty(t, scoped.TargetPharmacies)

	_, err = f.svc.GetRequest(context.Background(), actorC, first.ID)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))

	mine, err := f.svc.ListForCustomer(context.Background(), f.customer, pagination.Params{Limit: 1})
	require.NoError(t, err)
	require.Len(t, mine.Requests, 1)
	assert.Equal(t, second.ID, mine.Requests[0].ID)
	assert.NotEmpty(t, mine.NextCursor)

	inbox, err := f.svc.ListForPharmacy(context.Background(), a.ID, nil, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, inbox.Requests, 2)

	waiting := enums.PrescriptionStatusWaitingForQuotes
	none, err := f.svc.ListForPharmacy(context.Background(), c.ID, &waiting, pagination.Params{})
	require.NoError(t, err)
	assert.Empty(t, none.Requests)
}

func TestQuoteToDeliveredOrderScenario(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a, actorA := f.pharmacy(t, "A")
	b, actorB := f.pharmacy(t, "B")
	req := f.request(t, a.ID, b.ID)

	qa, err := f.svc.SubmitQuote(ctx, actorA, SubmitQuoteInput{
		RequestID:    req.ID,
		PharmacyID:   a.ID,
		PharmacyName: "A",
		Items:        []models.QuotedItem{{Name: "X", Quantity: 2, UnitPrice: 500, Available: true}},
		DeliveryFee:  600,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1600), qa.TotalPrice)

	qb, err := f.svc.SubmitRejection(ctx, actorB, req.ID, "B", "out of stock")
	require.NoError(t, err)

	res, err := f.svc.AcceptQuote(ctx, acceptInput(f.customer, qa.ID))
	require.NoError(t, err)

	var winner, rejected models.Quote
	require.NoError(t, f.db.First(&winner, "id = ?", qa.ID).Error)
	require.NoError(t, f.db.First(&rejected, "id = ?", qb.ID).Error)
	assert.Equal(t, enums.QuoteStatusAccepted, winner.Status)
	assert.Equal(t, enums.QuoteStatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, "out of stock", *rejected.RejectionReason)

	var parent models.PrescriptionRequest
	require.NoError(t, f.db.First(&parent, "id = ?", req.ID).Error)
	assert.Equal(t, enums.PrescriptionStatusCompleted, parent.Status)

	order, err := f.orders.Get(ctx, actorA, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, int64(1600), order.Total)
	assert.Equal(t, a.ID, order.PharmacyID)
	assert.Equal(t, enums.OrderStatusPending, order.Status)

	_, err = f.orders.Advance(ctx, actorA, res.OrderID, enums.OrderStatusCompleted)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	for _, next := range []enums.OrderStatus{
		enums.OrderStatusPreparing,
		enums.OrderStatusOutForDelivery,
		enums.OrderStatusCompleted,
	} {
		order, err = f.orders.Advance(ctx, actorA, res.OrderID, next)
		require.NoError(t, err)
		assert.Equal(t, next, order.Status)
	}
}

func TestSubmitQuoteRequiresAnAvailableItem(t *testing.T) {
	f := newFixture(t, nil)
	a, actorA := f.pharmacy(t, "A")
	req := f.request(t, a.ID)

	_, err := f.svc.SubmitQuote(context.Background(), actorA, SubmitQuoteInput{
		RequestID:    req.ID,
		PharmacyID:   a.ID,
		PharmacyName: "A",
		Items:        []models.QuotedItem{{Name: "X", Quantity: 1, UnitPrice: 500, Available: false}},
		DeliveryFee:  600,
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	assert.Contains(t, err.Error(), "available item")

	var count int64
	require.NoError(t, f.db.Model(&models.Quote{}).Count(&count).Error)
	assert.Zero(t, count)

	// the pharmacy can still decline outright
	_, err = f.svc.SubmitRejection(context.Background(), actorA, req.ID, "A", "out of stock")
	require.NoError(t, err)
}

func TestQuoteTotalRejectsOverflow(t *testing.T) {
	in := SubmitQuoteInput{Items: []models.QuotedItem{{Name: "X", Quantity: 3, UnitPrice: math.MaxInt64 / 2, Available: true}}}
	_, err := quoteTotal(in)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	in = SubmitQuoteInput{
		DeliveryFee: math.MaxInt64 - 10,
		Items:       []models.QuotedItem{{Name: "X", Quantity: 1, UnitPrice: 11, Available: true}},
	}
	_, err = quoteTotal(in)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	in = SubmitQuoteInput{
		DeliveryFee: 600,
		Items: []models.QuotedItem{
			{Name: "X", Quantity: maxItemQuantity, UnitPrice: maxQuotedPrice, Available: true},
			{Name: "Y", Quantity: 2, UnitPrice: math.MaxInt64, Available: false},
		},
	}
	total, err := quoteTotal(in)
	require.NoError(t, err)
	assert.Equal(t, int64(maxItemQuantity*maxQuotedPrice+600), total)
}

func TestSubmitQuoteRefusedWhenRequestCompletesBeforeLock(t *testing.T) {
	var locks int
	var resolve bool
	f := newFixtureWithRepo(t, nil, func(r Repository) Repository {
		return hookedRepository{
			Repository: r,
			locks:      &locks,
			beforeLock: func(ctx context.Context, tx Repository, id uuid.UUID) {
				if resolve {
					// a competing accept commits while this response waits on the row
					_, err := tx.CompleteRequest(ctx, id)
					require.NoError(t, err)
				}
			},
		}
	})
	a, actorA := f.pharmacy(t, "A")
	b, actorB := f.pharmacy(t, "B")
	req := f.request(t, a.ID, b.ID)
	f.quote(t, actorA, "A", req.ID, 1000)
	assert.Equal(t, 1, locks)

	resolve = true
	_, err := f.svc.SubmitQuote(context.Background(), actorB, SubmitQuoteInput{
		RequestID:    req.ID,
		PharmacyID:   b.ID,
		PharmacyName: "B",
		Items:        []models.QuotedItem{{Name: "X", Quantity: 1, UnitPrice: 900, Available: true}},
	})
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
	assert.Equal(t, 2, locks)

	var late int64
	require.NoError(t, f.db.Model(&models.Quote{}).Where("pharmacy_id = ?", b.ID).Count(&late).Error)
	assert.Zero(t, late)
	var open int64
	require.NoError(t, f.db.Model(&models.Quote{}).Where("status = ?", enums.QuoteStatusResponded).Count(&open).Error)
	assert.Equal(t, int64(1), open)
}

func TestAcceptQuoteLosingConcurrentAcceptRollsBack(t *testing.T) {
	var lose bool
	f := newFixtureWithRepo(t, nil, func(r Repository) Repository {
		return hookedRepository{
			Repository:       r,
			completeOverride: func() (int64, bool) { return 0, lose },
		}
	})
	a, actorA := f.pharmacy(t, "A")
	b, actorB := f.pharmacy(t, "B")
	req := f.request(t, a.ID, b.ID)
	qa := f.quote(t, actorA, "A", req.ID, 1000)
	qb := f.quote(t, actorB, "B", req.ID, 900)

	// both quotes still read as responded; the parent flip reports that a
	// concurrent accept got there first
	lose = true
	_, err := f.svc.AcceptQuote(context.Background(), acceptInput(f.customer, qa.ID))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))

	var parent models.PrescriptionRequest
	require.NoError(t, f.db.First(&parent, "id = ?", req.ID).Error)
	assert.Equal(t, enums.PrescriptionStatusWaitingForQuotes, parent.Status)
	for _, id := range []uuid.UUID{qa.ID, qb.ID} {
		var q models.Quote
		require.NoError(t, f.db.First(&q, "id = ?", id).Error)
		assert.Equal(t, enums.QuoteStatusResponded, q.Status)
	}
	var orderCount int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&orderCount).Error)
	assert.Zero(t, orderCount)
	assert.Zero(t, f.emitter.count(enums.EventQuoteAccepted))
	assert.Zero(t, f.emitter.count(enums.EventOrderCreated))

	lose = false
	_, err = f.svc.AcceptQuote(context.Background(), acceptInput(f.customer, qb.ID))
	require.NoError(t, err)
}
