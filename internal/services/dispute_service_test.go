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

func TestOpenDispute(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client, tasker, b := h.bookingIn(t, models.BookingStatusInProgress)

	d, err := h.disputes.Open(ctx, client, OpenDisputeParams{BookingID: b.ID, Reason: "left halfway", AmountInQuestion: int64Ptr(250)})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if d.Status != models.DisputeStatusOpen || d.OpenedBy != client.ID || d.Currency != "EGP" {
		t.Errorf("unexpected dispute %+v", d)
	}
	if got := h.booking(t, b.ID).Status; got != models.BookingStatusDisputed {
		t.Errorf("booking status = %s, want disputed", got)
	}
	if got := h.task(t, b.TaskID).State; got != models.TaskStateDisputed {
		t.Errorf("task state = %s, want disputed", got)
	}
	n := h.queue.notes[len(h.queue.notes)-1]
	if n.Event != execution.EventDisputeOpened || n.Recipients[0] != tasker.ID {
		t.Errorf("tasker not notified: %+v", n)
	}

	_, err = h.disputes.Open(ctx, client, OpenDisputeParams{BookingID: b.ID, Reason: "again"})
	wantCode(t, err, apperr.ErrDisputeExists)
	_, err = h.disputes.Open(ctx, tasker, OpenDisputeParams{BookingID: b.ID, Reason: "my side"})
	wantCode(t, err, apperr.ErrDisputeExists)
}

func TestOpenDispute_Rejects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client, _, b := h.bookingIn(t, models.BookingStatusConfirmed)

	cases := []struct {
		name  string
		actor models.Actor
		p     OpenDisputeParams
		want  error
	}{
		{"outsider", newActor(models.RoleClient), OpenDisputeParams{BookingID: b.ID, Reason: "x"}, apperr.ErrForbidden},
		{"staff is not a party", newActor(models.RoleAdmin), OpenDisputeParams{BookingID: b.ID, Reason: "x"}, apperr.ErrForbidden},
		{"missing reason", client, OpenDisputeParams{BookingID: b.ID}, apperr.ErrValidation},
		{"not started", client, OpenDisputeParams{BookingID: b.ID, Reason: "x"}, apperr.ErrInvalidState},
		{"unknown booking", client, OpenDisputeParams{BookingID: uuid.New(), Reason: "x"}, apperr.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.disputes.Open(ctx, tc.actor, tc.p)
			wantCode(t, err, tc.want)
		})
	}
	if len(h.store.state.disputes) != 0 {
		t.Error("no dispute should have been stored")
	}
}

func TestAddEvidence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client, tasker, b := h.bookingIn(t, models.BookingStatusCompleted)
	d, err := h.disputes.Open(ctx, tasker, OpenDisputeParams{BookingID: b.ID, Reason: "unpaid extras"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := h.disputes.AddEvidence(ctx, tasker, d.ID, "photo of receipts"); err != nil {
		t.Fatalf("tasker evidence: %v", err)
	}
	got, err := h.disputes.AddEvidence(ctx, client, d.ID, "chat transcript")
	if err != nil {
		t.Fatalf("client evidence: %v", err)
	}
	if len(got.Evidence) != 2 || got.Evidence[1].UserID != client.ID {
		t.Fatalf("evidence not appended in order: %+v", got.Evidence)
	}

	_, err = h.disputes.AddEvidence(ctx, newActor(models.RoleTasker), d.ID, "hearsay")
	wantCode(t, err, apperr.ErrForbidden)
	_, err = h.disputes.AddEvidence(ctx, client, d.ID, "   ")
	wantCode(t, err, apperr.ErrValidation)
}

func TestResolveDispute(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client, tasker, b := h.bookingIn(t, models.BookingStatusInProgress)
	d, err := h.disputes.Open(ctx, client, OpenDisputeParams{BookingID: b.ID, Reason: "left halfway"})
	if err != nil {
		t.Fatal(err)
	}
	resolution := json.RawMessage(`{"outcome":"partial_refund"}`)

	_, err = h.disputes.Resolve(ctx, client, d.ID, ResolveParams{Resolution: resolution})
	wantCode(t, err, apperr.ErrForbidden)
	_, err = h.disputes.Resolve(ctx, newActor(models.RoleOps), d.ID, ResolveParams{Resolution: json.RawMessage(`{oops`)})
	wantCode(t, err, apperr.ErrValidation)

	ops := newActor(models.RoleOps)
	got, err := h.disputes.Resolve(ctx, ops, d.ID, ResolveParams{Resolution: resolution, RefundAmount: int64Ptr(200)})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Status != models.DisputeStatusResolved || *got.ResolvedBy != ops.ID || got.ResolvedAt == nil {
		t.Errorf("unexpected dispute %+v", got)
	}
	if got := h.booking(t, b.ID).Status; got != models.BookingStatusCompleted {
		t.Errorf("booking status = %s, want completed", got)
	}
	if got := h.task(t, b.TaskID).State; got != models.TaskStateCompleted {
		t.Errorf("task state = %s, want completed", got)
	}
	if len(h.ledger.refunds) != 1 || h.ledger.refunds[0].Amount != 200 {
		t.Errorf("expected one refund of 200, got %+v", h.ledger.refunds)
	}
	n := h.queue.notes[len(h.queue.notes)-1]
	if n.Event != execution.EventDisputeResolved || len(n.Recipients) != 2 ||
		n.Recipients[0] != client.ID || n.Recipients[1] != tasker.ID {
		t.Errorf("both parties should be told: %+v", n)
	}

	_, err = h.disputes.Resolve(ctx, ops, d.ID, ResolveParams{Resolution: resolution})
	wantCode(t, err, apperr.ErrInvalidState)
	_, err = h.disputes.AddEvidence(ctx, client, d.ID, "too late")
	wantCode(t, err, apperr.ErrInvalidState)
}

func TestGetDispute_Visibility(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client, tasker, b := h.bookingIn(t, models.BookingStatusInProgress)
	d, err := h.disputes.Open(ctx, client, OpenDisputeParams{BookingID: b.ID, Reason: "left halfway"})
	if err != nil {
		t.Fatal(err)
	}

	for _, a := range []models.Actor{client, tasker, newActor(models.RoleAdmin)} {
		if _, err := h.disputes.Get(ctx, a, d.ID); err != nil {
			t.Errorf("%s should see the dispute: %v", a.Role, err)
		}
	}
	_, err = h.disputes.Get(ctx, newActor(models.RoleClient), d.ID)
	wantCode(t, err, apperr.ErrNotFound)
}
