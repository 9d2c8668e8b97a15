package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/inaiurai/marketplace/internal/apperr"
	"github.com/inaiurai/marketplace/internal/execution"
	"github.com/inaiurai/marketplace/internal/models"
)

// ---------------------------------------------------------------------------
// Create / Post / Update
// ---------------------------------------------------------------------------

func TestCreateTask_Draft(t *testing.T) {
	h := newHarness(t)
	client := newActor(models.RoleClient)

	task, err := h.tasks.Create(context.Background(), client, taskParams())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if task.State != models.TaskStateDraft || task.ClientID != client.ID {
		t.Fatalf("unexpected task %+v", task)
	}
	if task.BidMode != models.BidModeOpenForBids || task.PriceCurrency != models.DefaultCurrency {
		t.Errorf("defaults not applied: bid_mode=%s currency=%s", task.BidMode, task.PriceCurrency)
	}
	events := h.eventsFor(task.ID)
	if len(events) != 1 || events[0].FromState != nil || events[0].ToState != models.TaskStateDraft {
		t.Fatalf("expected one creation event from NULL to draft, got %+v", events)
	}
	if events[0].ActorRole != models.RoleClient || *events[0].ActorID != client.ID {
		t.Errorf("event actor not recorded: %+v", events[0])
	}
}

func TestCreateTask_Rejects(t *testing.T) {
	h := newHarness(t)
	client := newActor(models.RoleClient)

	cases := []struct {
		name   string
		actor  models.Actor
		mutate func(*TaskParams)
		want   error
	}{
		{"tasker cannot create", newActor(models.RoleTasker), func(*TaskParams) {}, apperr.ErrForbidden},
		{"missing category", client, func(p *TaskParams) { p.Category = "" }, apperr.ErrValidation},
		{"short description", client, func(p *TaskParams) { p.Description = "short" }, apperr.ErrValidation},
		{"missing city", client, func(p *TaskParams) { p.Location.City = "" }, apperr.ErrValidation},
		{"bad pricing model", client, func(p *TaskParams) { p.PricingModel = "barter" }, apperr.ErrValidation},
		{"negative price", client, func(p *TaskParams) { p.PriceAmount = int64Ptr(-5) }, apperr.ErrValidation},
		{"bad bid mode", client, func(p *TaskParams) { p.BidMode = "auction" }, apperr.ErrValidation},
		{"inputs fail category schema", client, func(p *TaskParams) {
			p.StructuredInputs = json.RawMessage(`{"rooms":0}`)
		}, apperr.ErrValidation},
		{"inputs not an object", client, func(p *TaskParams) {
			p.StructuredInputs = json.RawMessage(`"two rooms"`)
		}, apperr.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := taskParams()
			tc.mutate(&p)
			_, err := h.tasks.Create(context.Background(), tc.actor, p)
			wantCode(t, err, tc.want)
		})
	}
	if len(h.store.state.tasks) != 0 {
		t.Errorf("rejected creates must not store tasks, got %d", len(h.store.state.tasks))
	}
}

func TestPostTask(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client := newActor(models.RoleClient)
	task := h.postedTask(t, client)

	if task.State != models.TaskStatePosted {
		t.Fatalf("state = %s, want posted", task.State)
	}
	if len(h.queue.matches) != 1 || h.queue.matches[0] != task.ID {
		t.Errorf("expected one match_candidates job for the task, got %v", h.queue.matches)
	}

	_, err := h.tasks.Post(ctx, client, task.ID)
	wantCode(t, err, apperr.ErrInvalidState)

	_, err = h.tasks.Post(ctx, newActor(models.RoleClient), task.ID)
	wantCode(t, err, apperr.ErrNotFound)
}

func TestUpdateTask(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client, tasker := newActor(models.RoleClient), newActor(models.RoleTasker)
	task := h.postedTask(t, client)

	desc := "Deep clean a three bedroom flat"
	updated, err := h.tasks.Update(ctx, client, task.ID, TaskUpdate{Description: &desc, PriceAmount: int64Ptr(650)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Description != desc || *updated.PriceAmount != 650 {
		t.Errorf("update not applied: %+v", updated)
	}

	_, err = h.tasks.Update(ctx, client, task.ID, TaskUpdate{StructuredInputs: json.RawMessage(`{"rooms":"many"}`)})
	wantCode(t, err, apperr.ErrValidation)

	bid := h.submitBid(t, tasker, task.ID, 600)
	if _, err := h.bids.AcceptBid(ctx, client, bid.ID); err != nil {
		t.Fatalf("AcceptBid: %v", err)
	}
	_, err = h.tasks.Update(ctx, client, task.ID, TaskUpdate{Description: &desc})
	wantCode(t, err, apperr.ErrInvalidState)
}

// ---------------------------------------------------------------------------
// Cancel
// ---------------------------------------------------------------------------

func TestCancelTask_CascadesBookings(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client, tasker, b := h.bookingIn(t, models.BookingStatusConfirmed)

	task, err := h.tasks.Cancel(ctx, client, b.TaskID, "plans changed")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if task.State != models.TaskStateCanceledByClient {
		t.Fatalf("state = %s, want canceled_by_client", task.State)
	}
	stored := h.booking(t, b.ID)
	if stored.Status != models.BookingStatusCanceled || stored.CancelReason != "plans changed" {
		t.Errorf("booking not canceled by cascade: %+v", stored)
	}
	events := h.eventsFor(b.ID)
	last := events[len(events)-1]
	if last.ToState != models.BookingStatusCanceled || *last.FromState != models.BookingStatusConfirmed {
		t.Errorf("cascade event not written: %+v", last)
	}

	found := false
	for _, n := range h.queue.notes {
		if n.Event == execution.EventTaskCanceled && n.Recipients[0] == tasker.ID {
			found = true
		}
	}
	if !found {
		t.Error("tasker was not notified of the cancellation")
	}
}

func TestCancelTask_TerminalGuard(t *testing.T) {
	cases := []struct {
		booking string
		task    string
	}{
		{models.BookingStatusCompleted, models.TaskStateCompleted},
		// An open dispute is settled by staff; the client cannot cancel out of it.
		{models.BookingStatusDisputed, models.TaskStateDisputed},
	}
	for _, tc := range cases {
		t.Run(tc.task, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			client, _, b := h.bookingIn(t, models.BookingStatusInProgress)
			if _, err := h.bookings.UpdateStatus(ctx, client, b.ID, tc.booking, nil); err != nil {
				t.Fatalf("UpdateStatus %s: %v", tc.booking, err)
			}

			before := len(h.store.state.events)
			_, err := h.tasks.Cancel(ctx, client, b.TaskID, "too late")
			wantCode(t, err, apperr.ErrInvalidState)
			if len(h.store.state.events) != before {
				t.Error("rejected cancel must not write events")
			}
			if got := h.task(t, b.TaskID).State; got != tc.task {
				t.Errorf("state changed to %s", got)
			}
		})
	}
}

func TestCancelOnBehalfOfClient(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client, _, b := h.bookingIn(t, models.BookingStatusInProgress)
	if _, err := h.disputes.Open(ctx, client, OpenDisputeParams{BookingID: b.ID, Reason: "no show"}); err != nil {
		t.Fatalf("Open: %v", err)
	}

	_, err := h.tasks.CancelOnBehalfOfClient(ctx, client, b.TaskID, "x")
	wantCode(t, err, apperr.ErrForbidden)

	admin := newActor(models.RoleAdmin)
	task, err := h.tasks.CancelOnBehalfOfClient(ctx, admin, b.TaskID, "fraud")
	if err != nil {
		t.Fatalf("CancelOnBehalfOfClient: %v", err)
	}
	if task.State != models.TaskStateCanceledByClient {
		t.Fatalf("state = %s, want canceled_by_client", task.State)
	}
	events := h.eventsFor(b.TaskID)
	last := events[len(events)-1]
	if last.ActorRole != models.RoleAdmin || last.Reason != "fraud" {
		t.Errorf("admin event not tagged: %+v", last)
	}
	var meta map[string]string
	if err := json.Unmarshal(last.Metadata, &meta); err != nil || meta["on_behalf_of"] != client.ID.String() {
		t.Errorf("metadata = %s, want on_behalf_of client", last.Metadata)
	}
}

// ---------------------------------------------------------------------------
// Candidates
// ---------------------------------------------------------------------------

func TestAcceptByTasker(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client, tasker, stranger := newActor(models.RoleClient), newActor(models.RoleTasker), newActor(models.RoleTasker)
	task := h.postedTask(t, client)

	_, err := h.tasks.AcceptByTasker(ctx, tasker, task.ID)
	wantCode(t, err, apperr.ErrNotOffered)

	if _, err := h.tasks.StartMatching(ctx, models.SystemActor, task.ID, []models.TaskCandidate{
		{TaskerID: tasker.ID, Score: 0.9},
	}); err != nil {
		t.Fatalf("StartMatching: %v", err)
	}
	if got := h.task(t, task.ID).State; got != models.TaskStateMatching {
		t.Fatalf("state = %s, want matching", got)
	}

	_, err = h.tasks.AcceptByTasker(ctx, stranger, task.ID)
	wantCode(t, err, apperr.ErrNotOffered)

	b, err := h.tasks.AcceptByTasker(ctx, tasker, task.ID)
	if err != nil {
		t.Fatalf("AcceptByTasker: %v", err)
	}
	if b.Status != models.BookingStatusOffered || *b.RateAmount != 400 || b.TaskerID != tasker.ID {
		t.Errorf("unexpected booking %+v", b)
	}
	if got := h.task(t, task.ID).State; got != models.TaskStateAccepted {
		t.Errorf("state = %s, want accepted", got)
	}

	_, err = h.tasks.AcceptByTasker(ctx, tasker, task.ID)
	wantCode(t, err, apperr.ErrInvalidState)
}

func TestAcceptByTasker_ActiveBookingExists(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client, first, second := newActor(models.RoleClient), newActor(models.RoleTasker), newActor(models.RoleTasker)
	task := h.postedTask(t, client)
	if _, err := h.tasks.InviteTaskers(ctx, client, task.ID, []uuid.UUID{first.ID, second.ID}); err != nil {
		t.Fatalf("InviteTaskers: %v", err)
	}
	if _, err := h.bookings.CreateDirect(ctx, client, DirectBookingParams{TaskID: task.ID, TaskerID: first.ID}); err != nil {
		t.Fatalf("CreateDirect: %v", err)
	}

	_, err := h.tasks.AcceptByTasker(ctx, second, task.ID)
	wantCode(t, err, apperr.ErrBookingExists)
}

func TestDeclineByTasker_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client, tasker := newActor(models.RoleClient), newActor(models.RoleTasker)
	task := h.postedTask(t, client)
	if _, err := h.tasks.InviteTaskers(ctx, client, task.ID, []uuid.UUID{tasker.ID}); err != nil {
		t.Fatalf("InviteTaskers: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := h.tasks.DeclineByTasker(ctx, tasker, task.ID); err != nil {
			t.Fatalf("DeclineByTasker #%d: %v", i+1, err)
		}
	}
	if ok, _ := h.store.IsCandidate(ctx, nil, task.ID, tasker.ID); ok {
		t.Error("tasker still listed as candidate")
	}
	if got := h.task(t, task.ID).State; got != models.TaskStateMatching {
		t.Errorf("decline changed task state to %s", got)
	}
}

func TestStartMatching_Rejects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client := newActor(models.RoleClient)
	task, err := h.tasks.Create(ctx, client, taskParams())
	if err != nil {
		t.Fatal(err)
	}

	_, err = h.tasks.StartMatching(ctx, client, task.ID, nil)
	wantCode(t, err, apperr.ErrForbidden)

	_, err = h.tasks.StartMatching(ctx, models.SystemActor, task.ID, nil)
	wantCode(t, err, apperr.ErrInvalidState)
}

// ---------------------------------------------------------------------------
// Settle
// ---------------------------------------------------------------------------

func TestSettle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client, _, b := h.bookingIn(t, models.BookingStatusCompleted)

	_, err := h.tasks.Settle(ctx, client, b.TaskID)
	wantCode(t, err, apperr.ErrForbidden)

	ops := newActor(models.RoleOps)
	out, err := h.tasks.Settle(ctx, ops, b.TaskID)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if out.Task.State != models.TaskStateSettled {
		t.Errorf("state = %s, want settled", out.Task.State)
	}
	if out.Payout == nil || out.Payout.Amount != 500 || out.Payout.BookingID != b.ID {
		t.Errorf("unexpected payout %+v", out.Payout)
	}

	_, err = h.tasks.Settle(ctx, ops, b.TaskID)
	wantCode(t, err, apperr.ErrInvalidState)
	if len(h.ledger.payouts) != 1 {
		t.Errorf("expected one payout, got %d", len(h.ledger.payouts))
	}
}

func TestSettle_WithoutAgreedRate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client, tasker := newActor(models.RoleClient), newActor(models.RoleTasker)
	p := taskParams()
	p.PriceAmount = nil
	task, err := h.tasks.Create(ctx, client, p)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := h.tasks.Post(ctx, client, task.ID); err != nil {
		t.Fatalf("Post: %v", err)
	}
	b, err := h.bookings.CreateDirect(ctx, client, DirectBookingParams{TaskID: task.ID, TaskerID: tasker.ID})
	if err != nil {
		t.Fatalf("CreateDirect: %v", err)
	}
	if b.RateAmount != nil {
		t.Fatalf("expected no agreed rate, got %d", *b.RateAmount)
	}
	if _, err := h.bookings.Accept(ctx, tasker, b.ID); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	for _, status := range []string{
		models.BookingStatusConfirmed, models.BookingStatusInProgress, models.BookingStatusCompleted,
	} {
		if _, err := h.bookings.UpdateStatus(ctx, client, b.ID, status, nil); err != nil {
			t.Fatalf("UpdateStatus %s: %v", status, err)
		}
	}

	out, err := h.tasks.Settle(ctx, newActor(models.RoleAdmin), task.ID)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if out.Task.State != models.TaskStateSettled {
		t.Errorf("state = %s, want settled", out.Task.State)
	}
	if out.Payout != nil || len(h.ledger.payouts) != 0 {
		t.Errorf("expected no payout, got %+v", out.Payout)
	}
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

func TestGetTask_Visibility(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client := newActor(models.RoleClient)
	p := taskParams()
	p.BidMode = models.BidModeInviteOnly
	task, err := h.tasks.Create(ctx, client, p)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.tasks.Post(ctx, client, task.ID); err != nil {
		t.Fatal(err)
	}
	invited := newActor(models.RoleTasker)
	if _, err := h.tasks.InviteTaskers(ctx, client, task.ID, []uuid.UUID{invited.ID}); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		actor   models.Actor
		visible bool
	}{
		{"owner", client, true},
		{"invited tasker", invited, true},
		{"admin", newActor(models.RoleAdmin), true},
		{"other client", newActor(models.RoleClient), false},
		{"uninvited tasker", newActor(models.RoleTasker), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.tasks.Get(ctx, tc.actor, task.ID)
			if tc.visible && err != nil {
				t.Fatalf("expected visible, got %v", err)
			}
			if !tc.visible {
				wantCode(t, err, apperr.ErrNotFound)
			}
		})
	}
}

func TestListTasks_ScopedAndPaginated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client, other := newActor(models.RoleClient), newActor(models.RoleClient)
	for i := 0; i < 3; i++ {
		h.postedTask(t, client)
	}
	h.postedTask(t, other)

	page, err := h.tasks.List(ctx, client, models.TaskFilter{Page: models.Page{Limit: 2}})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor == nil {
		t.Fatalf("expected a full first page with a cursor, got %d items cursor=%v", len(page.Items), page.NextCursor)
	}
	rest, err := h.tasks.List(ctx, client, models.TaskFilter{Page: models.Page{Limit: 2, Cursor: page.NextCursor}})
	if err != nil {
		t.Fatalf("List page 2: %v", err)
	}
	if len(rest.Items) != 1 || rest.NextCursor != nil {
		t.Fatalf("expected last page with one item, got %d cursor=%v", len(rest.Items), rest.NextCursor)
	}
	for _, task := range append(page.Items, rest.Items...) {
		if task.ClientID != client.ID {
			t.Errorf("client saw someone else's task %s", task.ID)
		}
	}

	tasker := newActor(models.RoleTasker)
	open, err := h.tasks.List(ctx, tasker, models.TaskFilter{BidMode: models.BidModeOpenForBids})
	if err != nil {
		t.Fatal(err)
	}
	if len(open.Items) != 4 {
		t.Errorf("tasker should see all 4 open tasks, got %d", len(open.Items))
	}
	offered, err := h.tasks.List(ctx, tasker, models.TaskFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(offered.Items) != 0 {
		t.Errorf("tasker was offered nothing, got %d", len(offered.Items))
	}
}

func TestHistory_MergesTaskAndBookingEvents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client, _, b := h.bookingIn(t, models.BookingStatusInProgress)

	_, err := h.tasks.History(ctx, client, b.TaskID)
	wantCode(t, err, apperr.ErrForbidden)

	events, err := h.tasks.History(ctx, newActor(models.RoleAdmin), b.TaskID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	var sawTask, sawBooking bool
	for _, e := range events {
		sawTask = sawTask || e.AggregateType == models.AggregateTask
		sawBooking = sawBooking || e.AggregateType == models.AggregateBooking
	}
	if !sawTask || !sawBooking {
		t.Errorf("history should hold both aggregates, got %d events", len(events))
	}

	timeline, err := h.tasks.Events(ctx, client, b.TaskID)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	want := []string{
		models.TaskStateDraft, models.TaskStatePosted, models.TaskStateAccepted, models.TaskStateInProgress,
	}
	if len(timeline) != len(want) {
		t.Fatalf("timeline has %d events, want %d", len(timeline), len(want))
	}
	for i, e := range timeline {
		if e.ToState != want[i] {
			t.Errorf("event %d to_state = %s, want %s", i, e.ToState, want[i])
		}
	}
}
