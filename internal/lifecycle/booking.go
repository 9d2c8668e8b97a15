package lifecycle

import (
	"github.com/inaiurai/marketplace/internal/apperr"
	"github.com/inaiurai/marketplace/internal/models"
)

var bookingTransitions = map[string]map[string]struct{}{
	models.BookingStatusOffered: {
		models.BookingStatusAccepted: {},
		models.BookingStatusCanceled: {},
	},
	models.BookingStatusAccepted: {
		models.BookingStatusConfirmed: {},
		models.BookingStatusCanceled:  {},
	},
	models.BookingStatusConfirmed: {
		models.BookingStatusInProgress: {},
		models.BookingStatusCanceled:   {},
	},
	models.BookingStatusInProgress: {
		models.BookingStatusCompleted: {},
		models.BookingStatusDisputed:  {},
	},
	models.BookingStatusCompleted: {
		models.BookingStatusDisputed: {},
	},
	models.BookingStatusCanceled: {},
	models.BookingStatusDisputed: {},
}

// BookingStatuses lists every booking status.
var BookingStatuses = []string{
	models.BookingStatusOffered, models.BookingStatusAccepted, models.BookingStatusConfirmed,
	models.BookingStatusInProgress, models.BookingStatusCompleted, models.BookingStatusCanceled,
	models.BookingStatusDisputed,
}

// ValidateBookingTransition rejects edges missing from the booking table with
// INVALID_TRANSITION. Unknown statuses are rejected the same way.
func ValidateBookingTransition(from, to string) error {
	if _, ok := bookingTransitions[from][to]; !ok {
		return apperr.New(apperr.CodeInvalidTransition, "booking cannot move from %s to %s", from, to).
			WithDetails(map[string]string{"from": from, "to": to})
	}
	return nil
}

// IsBookingStatus reports whether s names a booking status.
func IsBookingStatus(s string) bool {
	_, ok := bookingTransitions[s]
	return ok
}

// CanCancelBooking guards the explicit cancel operation, which is allowed
// from any status that has not finished or been disputed.
func CanCancelBooking(from string) error {
	switch from {
	case models.BookingStatusCompleted, models.BookingStatusCanceled, models.BookingStatusDisputed:
		return apperr.InvalidState("booking", from, "cancel")
	}
	return nil
}

// CanDisputeBooking requires a booking that is underway or finished.
func CanDisputeBooking(from string) error {
	switch from {
	case models.BookingStatusInProgress, models.BookingStatusCompleted:
		return nil
	}
	return apperr.InvalidState("booking", from, "dispute")
}

// IsActiveBooking reports whether the booking counts towards the one active
// booking per task limit.
func IsActiveBooking(status string) bool {
	return status != models.BookingStatusCanceled && status != models.BookingStatusDisputed
}

// IsOpenBooking reports bookings a task cancellation must cascade to.
func IsOpenBooking(status string) bool {
	switch status {
	case models.BookingStatusCompleted, models.BookingStatusCanceled, models.BookingStatusDisputed:
		return false
	}
	return true
}
