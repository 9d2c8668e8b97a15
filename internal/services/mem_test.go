package services

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/inaiurai/marketplace/internal/apperr"
	"github.com/inaiurai/marketplace/internal/execution"
	"github.com/inaiurai/marketplace/internal/lifecycle"
	"github.com/inaiurai/marketplace/internal/models"
	"github.com/inaiurai/marketplace/internal/ratelimit"
)

// ---------------------------------------------------------------------------
// memTx / lockingPool
// ---------------------------------------------------------------------------

// memTx satisfies pgx.Tx. Begin on the pool takes a store-wide lock, so
// transactions run one at a time the way row locks on the task would make
// them; Rollback without Commit restores the snapshot taken at Begin.
type memTx struct {
	store    *memStore
	snapshot *memState
	once     sync.Once
}

func (tx *memTx) finish(commit bool) {
	tx.once.Do(func() {
		if !commit {
			tx.store.state = tx.snapshot
		}
		tx.store.mu.Unlock()
	})
}

func (tx *memTx) Begin(context.Context) (pgx.Tx, error) { return tx, nil }
func (tx *memTx) Commit(context.Context) error {
	tx.finish(true)
	return nil
}
func (tx *memTx) Rollback(context.Context) error {
	tx.finish(false)
	return nil
}
func (*memTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (*memTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (*memTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (*memTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (*memTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (*memTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (*memTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (*memTx) Conn() *pgx.Conn { return nil }

type lockingPool struct {
	store *memStore
}

func (p lockingPool) Begin(context.Context) (pgx.Tx, error) {
	p.store.mu.Lock()
	return &memTx{store: p.store, snapshot: p.store.state.clone()}, nil
}

// ---------------------------------------------------------------------------
// memStore: every store interface over plain maps
// ---------------------------------------------------------------------------

type memState struct {
	tasks      map[uuid.UUID]models.Task
	candidates map[uuid.UUID]map[uuid.UUID]models.TaskCandidate
	bookings   map[uuid.UUID]models.Booking
	bids       map[uuid.UUID]models.Bid
	messages   []models.BidMessage
	events     []models.Event
	disputes   map[uuid.UUID]models.Dispute
	reviews    map[uuid.UUID]models.Review
	ratings    map[uuid.UUID]int
}

func newMemState() *memState {
	return &memState{
		tasks:      map[uuid.UUID]models.Task{},
		candidates: map[uuid.UUID]map[uuid.UUID]models.TaskCandidate{},
		bookings:   map[uuid.UUID]models.Booking{},
		bids:       map[uuid.UUID]models.Bid{},
		disputes:   map[uuid.UUID]models.Dispute{},
		reviews:    map[uuid.UUID]models.Review{},
		ratings:    map[uuid.UUID]int{},
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.tasks {
		c.tasks[k] = v
	}
	for k, v := range s.candidates {
		m := make(map[uuid.UUID]models.TaskCandidate, len(v))
		for kk, vv := range v {
			m[kk] = vv
		}
		c.candidates[k] = m
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.bids {
		c.bids[k] = v
	}
	c.messages = slices.Clone(s.messages)
	c.events = slices.Clone(s.events)
	for k, v := range s.disputes {
		v.Evidence = slices.Clone(v.Evidence)
		c.disputes[k] = v
	}
	for k, v := range s.reviews {
		c.reviews[k] = v
	}
	for k, v := range s.ratings {
		c.ratings[k] = v
	}
	return c
}

type memStore struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{state: newMemState(), now: now}
}

func byIDDesc[T any](items []T, id func(T) uuid.UUID) {
	slices.SortFunc(items, func(a, b T) int {
		ia, ib := id(a), id(b)
		return -bytes.Compare(ia[:], ib[:])
	})
}

// paginate mirrors the repository: id descending, one extra row.
func paginate[T any](items []T, p models.Page, id func(T) uuid.UUID) []T {
	p = p.Normalize()
	byIDDesc(items, id)
	var out []T
	for _, it := range items {
		iid := id(it)
		if p.Cursor != nil && bytes.Compare(iid[:], p.Cursor[:]) >= 0 {
			continue
		}
		out = append(out, it)
		if len(out) == p.Limit+1 {
			break
		}
	}
	return out
}

// --- tasks ---

func (m *memStore) CreateTask(_ context.Context, _ pgx.Tx, t *models.Task) error {
	t.CreatedAt, t.UpdatedAt = m.now(), m.now()
	m.state.tasks[t.ID] = *t
	return nil
}

func (m *memStore) GetTask(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Task, error) {
	t, ok := m.state.tasks[id]
	if !ok {
		return nil, apperr.NotFound("task")
	}
	return &t, nil
}

func (m *memStore) GetTaskForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error) {
	return m.GetTask(ctx, tx, id)
}

func (m *memStore) UpdateTask(_ context.Context, _ pgx.Tx, t *models.Task) error {
	if _, ok := m.state.tasks[t.ID]; !ok {
		return apperr.NotFound("task")
	}
	t.UpdatedAt = m.now()
	m.state.tasks[t.ID] = *t
	return nil
}

func (m *memStore) ListTasks(_ context.Context, _ pgx.Tx, f models.TaskFilter) ([]*models.Task, error) {
	var all []*models.Task
	for _, t := range m.state.tasks {
		if f.ClientID != nil && t.ClientID != *f.ClientID {
			continue
		}
		if f.CandidateID != nil {
			if _, ok := m.state.candidates[t.ID][*f.CandidateID]; !ok {
				continue
			}
		}
		if len(f.States) > 0 && !slices.Contains(f.States, t.State) {
			continue
		}
		if (f.Category != "" && t.Category != f.Category) || (f.City != "" && t.Location.City != f.City) ||
			(f.BidMode != "" && t.BidMode != f.BidMode) {
			continue
		}
		all = append(all, &t)
	}
	return paginate(all, f.Page, func(t *models.Task) uuid.UUID { return t.ID }), nil
}

func (m *memStore) AddCandidates(_ context.Context, _ pgx.Tx, candidates []models.TaskCandidate) error {
	for _, c := range candidates {
		set := m.state.candidates[c.TaskID]
		if set == nil {
			set = map[uuid.UUID]models.TaskCandidate{}
			m.state.candidates[c.TaskID] = set
		}
		if _, ok := set[c.TaskerID]; !ok {
			c.CreatedAt = m.now()
			set[c.TaskerID] = c
		}
	}
	return nil
}

func (m *memStore) IsCandidate(_ context.Context, _ pgx.Tx, taskID, taskerID uuid.UUID) (bool, error) {
	_, ok := m.state.candidates[taskID][taskerID]
	return ok, nil
}

func (m *memStore) RemoveCandidate(_ context.Context, _ pgx.Tx, taskID, taskerID uuid.UUID) error {
	delete(m.state.candidates[taskID], taskerID)
	return nil
}

func (m *memStore) ListCandidates(_ context.Context, _ pgx.Tx, taskID uuid.UUID) ([]models.TaskCandidate, error) {
	var out []models.TaskCandidate
	for _, c := range m.state.candidates[taskID] {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b models.TaskCandidate) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return bytes.Compare(a.TaskerID[:], b.TaskerID[:])
	})
	return out, nil
}

// --- bookings ---

func (m *memStore) CreateBooking(_ context.Context, _ pgx.Tx, b *models.Booking) error {
	if lifecycle.IsActiveBooking(b.Status) {
		for _, other := range m.state.bookings {
			if other.TaskID == b.TaskID && lifecycle.IsActiveBooking(other.Status) {
				return apperr.New(apperr.CodeBookingExists, "task already has an active booking")
			}
		}
	}
	b.CreatedAt, b.UpdatedAt = m.now(), m.now()
	m.state.bookings[b.ID] = *b
	return nil
}

func (m *memStore) GetBooking(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Booking, error) {
	b, ok := m.state.bookings[id]
	if !ok {
		return nil, apperr.NotFound("booking")
	}
	return &b, nil
}

func (m *memStore) GetBookingForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Booking, error) {
	return m.GetBooking(ctx, tx, id)
}

func (m *memStore) UpdateBooking(_ context.Context, _ pgx.Tx, b *models.Booking) error {
	if _, ok := m.state.bookings[b.ID]; !ok {
		return apperr.NotFound("booking")
	}
	b.UpdatedAt = m.now()
	m.state.bookings[b.ID] = *b
	return nil
}

func (m *memStore) bookingsWhere(keep func(models.Booking) bool) []*models.Booking {
	var out []*models.Booking
	for _, b := range m.state.bookings {
		if keep(b) {
			out = append(out, &b)
		}
	}
	byIDDesc(out, func(b *models.Booking) uuid.UUID { return b.ID })
	return out
}

func (m *memStore) ActiveBookingForTask(_ context.Context, _ pgx.Tx, taskID uuid.UUID) (*models.Booking, error) {
	list := m.bookingsWhere(func(b models.Booking) bool {
		return b.TaskID == taskID && lifecycle.IsActiveBooking(b.Status)
	})
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (m *memStore) OpenBookingsForTask(_ context.Context, _ pgx.Tx, taskID uuid.UUID) ([]*models.Booking, error) {
	return m.bookingsWhere(func(b models.Booking) bool {
		return b.TaskID == taskID && lifecycle.IsOpenBooking(b.Status)
	}), nil
}

func (m *memStore) LatestBookingForTask(_ context.Context, _ pgx.Tx, taskID uuid.UUID, status string) (*models.Booking, error) {
	list := m.bookingsWhere(func(b models.Booking) bool { return b.TaskID == taskID && b.Status == status })
	if len(list) == 0 {
		return nil, apperr.NotFound("booking")
	}
	return list[0], nil
}

func (m *memStore) ListBookings(_ context.Context, _ pgx.Tx, f models.BookingFilter) ([]*models.Booking, error) {
	list := m.bookingsWhere(func(b models.Booking) bool {
		if f.TaskID != nil && b.TaskID != *f.TaskID {
			return false
		}
		if f.PartyID != nil && b.ClientID != *f.PartyID && b.TaskerID != *f.PartyID {
			return false
		}
		return len(f.Statuses) == 0 || slices.Contains(f.Statuses, b.Status)
	})
	return paginate(list, f.Page, func(b *models.Booking) uuid.UUID { return b.ID }), nil
}

// --- bids ---

func (m *memStore) CreateBid(_ context.Context, _ pgx.Tx, b *models.Bid) error {
	for _, other := range m.state.bids {
		if other.TaskID == b.TaskID && other.TaskerID == b.TaskerID {
			return apperr.New(apperr.CodeBidExists, "bid already exists")
		}
	}
	b.CreatedAt, b.UpdatedAt = m.now(), m.now()
	m.state.bids[b.ID] = *b
	return nil
}

func (m *memStore) GetBid(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Bid, error) {
	b, ok := m.state.bids[id]
	if !ok {
		return nil, apperr.NotFound("bid")
	}
	return &b, nil
}

func (m *memStore) GetBidForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Bid, error) {
	return m.GetBid(ctx, tx, id)
}

func (m *memStore) BidForTasker(_ context.Context, _ pgx.Tx, taskID, taskerID uuid.UUID) (*models.Bid, error) {
	for _, b := range m.state.bids {
		if b.TaskID == taskID && b.TaskerID == taskerID {
			return &b, nil
		}
	}
	return nil, nil
}

func (m *memStore) UpdateBid(_ context.Context, _ pgx.Tx, b *models.Bid) error {
	b.UpdatedAt = m.now()
	m.state.bids[b.ID] = *b
	return nil
}

func (m *memStore) DeclineOtherPendingBids(_ context.Context, _ pgx.Tx, taskID, keepID uuid.UUID) ([]uuid.UUID, error) {
	var taskers []uuid.UUID
	for id, b := range m.state.bids {
		if b.TaskID == taskID && id != keepID && b.Status == models.BidStatusPending {
			b.Status = models.BidStatusDeclined
			m.state.bids[id] = b
			taskers = append(taskers, b.TaskerID)
		}
	}
	return taskers, nil
}

func (m *memStore) ListBidsForTask(_ context.Context, _ pgx.Tx, taskID uuid.UUID, p models.Page) ([]*models.Bid, error) {
	var list []*models.Bid
	for _, b := range m.state.bids {
		if b.TaskID == taskID {
			list = append(list, &b)
		}
	}
	return paginate(list, p, func(b *models.Bid) uuid.UUID { return b.ID }), nil
}

func (m *memStore) CreateMessage(_ context.Context, _ pgx.Tx, msg *models.BidMessage) error {
	msg.CreatedAt = m.now()
	m.state.messages = append(m.state.messages, *msg)
	return nil
}

func (m *memStore) ListMessages(_ context.Context, _ pgx.Tx, bidID uuid.UUID, p models.Page) ([]*models.BidMessage, error) {
	var list []*models.BidMessage
	for _, msg := range m.state.messages {
		if msg.BidID == bidID {
			list = append(list, &msg)
		}
	}
	return paginate(list, p, func(msg *models.BidMessage) uuid.UUID { return msg.ID }), nil
}

// --- events ---

func (m *memStore) AppendEvent(_ context.Context, _ pgx.Tx, e *models.Event) error {
	e.CreatedAt = m.now()
	m.state.events = append(m.state.events, *e)
	return nil
}

func (m *memStore) ListEvents(_ context.Context, _ pgx.Tx, aggregateType string, aggregateID uuid.UUID) ([]*models.Event, error) {
	var out []*models.Event
	for _, e := range m.state.events {
		if e.AggregateType == aggregateType && e.AggregateID == aggregateID {
			out = append(out, &e)
		}
	}
	return out, nil
}

func (m *memStore) ListTaskHistory(_ context.Context, _ pgx.Tx, taskID uuid.UUID) ([]*models.Event, error) {
	var out []*models.Event
	for _, e := range m.state.events {
		if e.TaskID == taskID {
			out = append(out, &e)
		}
	}
	return out, nil
}

// --- disputes ---

func (m *memStore) CreateDispute(_ context.Context, _ pgx.Tx, d *models.Dispute) error {
	for _, other := range m.state.disputes {
		if other.BookingID == d.BookingID {
			return apperr.New(apperr.CodeDisputeExists, "dispute already exists")
		}
	}
	d.CreatedAt = m.now()
	m.state.disputes[d.ID] = *d
	return nil
}

func (m *memStore) GetDispute(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Dispute, error) {
	d, ok := m.state.disputes[id]
	if !ok {
		return nil, apperr.NotFound("dispute")
	}
	d.Evidence = slices.Clone(d.Evidence)
	return &d, nil
}

func (m *memStore) GetDisputeForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Dispute, error) {
	return m.GetDispute(ctx, tx, id)
}

func (m *memStore) DisputeForBooking(_ context.Context, _ pgx.Tx, bookingID uuid.UUID) (*models.Dispute, error) {
	for _, d := range m.state.disputes {
		if d.BookingID == bookingID {
			return &d, nil
		}
	}
	return nil, nil
}

func (m *memStore) AppendEvidence(_ context.Context, _ pgx.Tx, id uuid.UUID, ev models.Evidence) error {
	d, ok := m.state.disputes[id]
	if !ok {
		return apperr.NotFound("dispute")
	}
	d.Evidence = append(slices.Clone(d.Evidence), ev)
	m.state.disputes[id] = d
	return nil
}

func (m *memStore) ResolveDispute(_ context.Context, _ pgx.Tx, d *models.Dispute) error {
	stored, ok := m.state.disputes[d.ID]
	if !ok {
		return apperr.NotFound("dispute")
	}
	stored.Status = d.Status
	stored.Resolution = d.Resolution
	stored.RefundAmount = d.RefundAmount
	stored.ResolvedBy = d.ResolvedBy
	stored.ResolvedAt = d.ResolvedAt
	m.state.disputes[d.ID] = stored
	return nil
}

// --- reviews ---

func (m *memStore) CreateReview(_ context.Context, _ pgx.Tx, rv *models.Review) error {
	for _, other := range m.state.reviews {
		if other.BookingID == rv.BookingID {
			return apperr.New(apperr.CodeReviewExists, "review already exists")
		}
	}
	rv.CreatedAt = m.now()
	m.state.reviews[rv.ID] = *rv
	return nil
}

func (m *memStore) ReviewForBooking(_ context.Context, _ pgx.Tx, bookingID uuid.UUID) (*models.Review, error) {
	for _, rv := range m.state.reviews {
		if rv.BookingID == bookingID {
			return &rv, nil
		}
	}
	return nil, nil
}

func (m *memStore) UpdateTaskerRating(_ context.Context, _ pgx.Tx, taskerID uuid.UUID) error {
	m.state.ratings[taskerID]++
	return nil
}

// ---------------------------------------------------------------------------
// Queue and ledger fakes
// ---------------------------------------------------------------------------

type fakeQueue struct {
	mu      sync.Mutex
	notes   []execution.NotifyArgs
	matches []uuid.UUID
	// notifyErr, when set, fails every Notify call.
	notifyErr error
}

func (q *fakeQueue) Notify(_ context.Context, _ pgx.Tx, n execution.NotifyArgs) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.notifyErr != nil {
		return q.notifyErr
	}
	if len(n.Recipients) == 0 {
		return nil
	}
	q.notes = append(q.notes, n)
	return nil
}

func (q *fakeQueue) MatchCandidates(_ context.Context, _ pgx.Tx, taskID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.matches = append(q.matches, taskID)
	return nil
}

func (q *fakeQueue) events() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.notes))
	for _, n := range q.notes {
		out = append(out, n.Event)
	}
	return out
}

type fakeLedger struct {
	payouts []*models.LedgerEntry
	refunds []*models.LedgerEntry
}

// RecordPayout follows the real ledger: no rate or nothing left after
// refunds means no entry.
func (l *fakeLedger) RecordPayout(_ context.Context, _ pgx.Tx, b *models.Booking, actor models.Actor) (*models.LedgerEntry, error) {
	if b.RateAmount == nil {
		return nil, nil
	}
	amount := *b.RateAmount
	for _, r := range l.refunds {
		if r.BookingID == b.ID {
			amount -= r.Amount
		}
	}
	if amount <= 0 {
		return nil, nil
	}
	e := &models.LedgerEntry{ID: uuid.New(), BookingID: b.ID, TaskID: b.TaskID, Kind: models.LedgerEntryPayout,
		Amount: amount, Currency: b.RateCurrency, ActorID: actor.ActorID()}
	l.payouts = append(l.payouts, e)
	return e, nil
}

func (l *fakeLedger) RecordRefund(_ context.Context, _ pgx.Tx, b *models.Booking, amount int64, actor models.Actor) (*models.LedgerEntry, error) {
	e := &models.LedgerEntry{ID: uuid.New(), BookingID: b.ID, TaskID: b.TaskID, Kind: models.LedgerEntryRefund,
		Amount: amount, Currency: b.RateCurrency, ActorID: actor.ActorID()}
	l.refunds = append(l.refunds, e)
	return e, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// ---------------------------------------------------------------------------
// harness
// ---------------------------------------------------------------------------

type harness struct {
	store    *memStore
	queue    *fakeQueue
	ledger   *fakeLedger
	clock    *fakeClock
	tasks    TaskService
	bids     BidService
	bookings BookingService
	disputes DisputeService
	reviews  ReviewService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := newMemStore(clock.Now)
	h := &harness{store: store, queue: &fakeQueue{}, ledger: &fakeLedger{}, clock: clock}
	deps := &Deps{
		DB:       lockingPool{store: store},
		Tasks:    store,
		Bookings: store,
		Bids:     store,
		EventLog: store,
		Disputes: store,
		Reviews:  store,
		Ledger:   h.ledger,
		Jobs:     h.queue,
		Now:      clock.Now,
	}
	h.tasks = NewTaskService(deps, newTestValidator(t))
	h.bids = NewBidService(deps, ratelimit.NewLocal(30, time.Minute).WithClock(clock.Now))
	h.bookings = NewBookingService(deps)
	h.disputes = NewDisputeService(deps)
	h.reviews = NewReviewService(deps)
	return h
}

func newActor(role string) models.Actor {
	return models.Actor{ID: uuid.New(), Role: role}
}

func int64Ptr(v int64) *int64 { return &v }

func taskParams() TaskParams {
	return TaskParams{
		Category:         "cleaning",
		Description:      "Deep clean a two bedroom flat",
		Location:         models.Location{City: "Cairo", District: "Zamalek"},
		PricingModel:     models.PricingFixed,
		PriceAmount:      int64Ptr(400),
		StructuredInputs: []byte(`{"rooms":2,"deep_clean":true}`),
	}
}

// postedTask creates and posts an open_for_bids task for client.
func (h *harness) postedTask(t *testing.T, client models.Actor) *models.Task {
	t.Helper()
	ctx := context.Background()
	task, err := h.tasks.Create(ctx, client, taskParams())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	task, err = h.tasks.Post(ctx, client, task.ID)
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	return task
}

func (h *harness) submitBid(t *testing.T, tasker models.Actor, taskID uuid.UUID, amount int64) *models.Bid {
	t.Helper()
	bid, err := h.bids.SubmitOrUpdate(context.Background(), tasker, BidParams{
		TaskID: taskID, Amount: int64Ptr(amount), Currency: "EGP",
	})
	if err != nil {
		t.Fatalf("SubmitOrUpdate: %v", err)
	}
	return bid
}

// bookingIn walks a fresh task and booking through the real operations
// until the booking reaches status.
func (h *harness) bookingIn(t *testing.T, status string) (client, tasker models.Actor, b *models.Booking) {
	t.Helper()
	ctx := context.Background()
	client, tasker = newActor(models.RoleClient), newActor(models.RoleTasker)
	task := h.postedTask(t, client)
	bid := h.submitBid(t, tasker, task.ID, 500)
	b, err := h.bids.AcceptBid(ctx, client, bid.ID)
	if err != nil {
		t.Fatalf("AcceptBid: %v", err)
	}
	path := []string{
		models.BookingStatusAccepted, models.BookingStatusConfirmed,
		models.BookingStatusInProgress, models.BookingStatusCompleted,
	}
	for _, next := range path {
		if b.Status == status {
			return client, tasker, b
		}
		if next == models.BookingStatusAccepted {
			b, err = h.bookings.Accept(ctx, tasker, b.ID)
		} else {
			b, err = h.bookings.UpdateStatus(ctx, client, b.ID, next, nil)
		}
		if err != nil {
			t.Fatalf("move booking to %s: %v", next, err)
		}
	}
	if b.Status != status {
		t.Fatalf("cannot reach booking status %s", status)
	}
	return client, tasker, b
}

func (h *harness) task(t *testing.T, id uuid.UUID) models.Task {
	t.Helper()
	task, ok := h.store.state.tasks[id]
	if !ok {
		t.Fatalf("task %s not stored", id)
	}
	return task
}

func (h *harness) booking(t *testing.T, id uuid.UUID) models.Booking {
	t.Helper()
	b, ok := h.store.state.bookings[id]
	if !ok {
		t.Fatalf("booking %s not stored", id)
	}
	return b
}

func (h *harness) eventsFor(id uuid.UUID) []models.Event {
	var out []models.Event
	for _, e := range h.store.state.events {
		if e.AggregateID == id {
			out = append(out, e)
		}
	}
	return out
}

func wantCode(t *testing.T, err error, target error) {
	t.Helper()
	var ae *apperr.Error
	if err == nil {
		t.Fatalf("expected %v, got nil", target)
	}
	if !errors.Is(err, target) {
		if errors.As(err, &ae) {
			t.Fatalf("expected %v, got %s (%s)", target, ae.Code, ae.Message)
		}
		t.Fatalf("expected %v, got %v", target, err)
	}
}
