package lifecycle

import (
	"github.com/inaiurai/marketplace/internal/apperr"
	"github.com/inaiurai/marketplace/internal/models"
)

// BidStatuses lists every bid status.
var BidStatuses = []string{
	models.BidStatusRequested, models.BidStatusPending, models.BidStatusAccepted, models.BidStatusDeclined,
}

func isOpenBid(status string) bool {
	return status == models.BidStatusRequested || status == models.BidStatusPending
}

func invalidBidState(status, op string) error {
	return apperr.New(apperr.CodeInvalidBidState, "cannot %s bid in status %s", op, status).
		WithDetails(map[string]string{"status": status})
}

// CanUpdateBid guards resubmission: only open bids may be updated, and they
// become pending again.
func CanUpdateBid(status string) error {
	if !isOpenBid(status) {
		return invalidBidState(status, "update")
	}
	return nil
}

// CanNegotiate guards the message thread.
func CanNegotiate(status string) error {
	if !isOpenBid(status) {
		return invalidBidState(status, "message on")
	}
	return nil
}

func CanDeclineBid(status string) error {
	if !isOpenBid(status) {
		return invalidBidState(status, "decline")
	}
	return nil
}

// CanAcceptBid requires a pending bid with an amount.
func CanAcceptBid(b *models.Bid) error {
	if b.Status != models.BidStatusPending {
		return invalidBidState(b.Status, "accept")
	}
	if b.Amount == nil {
		return apperr.New(apperr.CodeInvalidBid, "bid has no amount")
	}
	return nil
}

// CanBidOnTask requires a task that is open to offers.
func CanBidOnTask(taskState string) error {
	if taskState != models.TaskStatePosted && taskState != models.TaskStateMatching {
		return apperr.InvalidState("task", taskState, "bid on")
	}
	return nil
}
