// Package lifecycle holds the transition tables for tasks, bookings and bids.
// Every manager consults these tables before writing a new state; nothing here
// touches storage.
package lifecycle

import (
	"github.com/inaiurai/marketplace/internal/apperr"
	"github.com/inaiurai/marketplace/internal/models"
)

// TaskAction names an operation that moves a task between states.
type TaskAction string

const (
	TaskPost           TaskAction = "post"
	TaskStartMatching  TaskAction = "start_matching"
	TaskAccept         TaskAction = "accept"
	TaskReopen         TaskAction = "reopen"
	TaskStart          TaskAction = "start"
	TaskComplete       TaskAction = "complete"
	TaskSettle         TaskAction = "settle"
	TaskReview         TaskAction = "review"
	TaskCancelByClient TaskAction = "cancel_by_client"
	TaskCancelByTasker TaskAction = "cancel_by_tasker"
	TaskDispute        TaskAction = "dispute"
	TaskResolve        TaskAction = "resolve"
	TaskForceCancel    TaskAction = "force_cancel"
)

type taskEdge struct {
	from   string
	action TaskAction
}

var taskTransitions = map[taskEdge]string{}

func init() {
	add := func(action TaskAction, to string, from ...string) {
		for _, f := range from {
			taskTransitions[taskEdge{f, action}] = to
		}
	}
	add(TaskPost, models.TaskStatePosted, models.TaskStateDraft)
	add(TaskStartMatching, models.TaskStateMatching, models.TaskStatePosted)
	add(TaskAccept, models.TaskStateAccepted, models.TaskStatePosted, models.TaskStateMatching)
	add(TaskReopen, models.TaskStateMatching, models.TaskStateAccepted)
	add(TaskStart, models.TaskStateInProgress, models.TaskStateAccepted)
	add(TaskComplete, models.TaskStateCompleted, models.TaskStateInProgress)
	add(TaskSettle, models.TaskStateSettled, models.TaskStateCompleted)
	add(TaskReview, models.TaskStateReviewed, models.TaskStateCompleted, models.TaskStateSettled)
	add(TaskCancelByClient, models.TaskStateCanceledByClient,
		models.TaskStateDraft, models.TaskStatePosted, models.TaskStateMatching,
		models.TaskStateAccepted, models.TaskStateInProgress)
	add(TaskCancelByTasker, models.TaskStateCanceledByTasker,
		models.TaskStateMatching, models.TaskStateAccepted, models.TaskStateInProgress)
	add(TaskDispute, models.TaskStateDisputed,
		models.TaskStateAccepted, models.TaskStateInProgress, models.TaskStateCompleted)
	add(TaskResolve, models.TaskStateCompleted, models.TaskStateDisputed)
	add(TaskForceCancel, models.TaskStateCanceledByClient,
		models.TaskStateDraft, models.TaskStatePosted, models.TaskStateMatching,
		models.TaskStateAccepted, models.TaskStateInProgress, models.TaskStateDisputed)
}

// NextTaskState looks up the state reached by applying action in state from.
// Edges missing from the table are rejected with INVALID_STATE.
func NextTaskState(from string, action TaskAction) (string, error) {
	to, ok := taskTransitions[taskEdge{from, action}]
	if !ok {
		return "", apperr.InvalidState("task", from, string(action))
	}
	return to, nil
}

// CanTask reports whether action is legal from state from.
func CanTask(from string, action TaskAction) bool {
	_, ok := taskTransitions[taskEdge{from, action}]
	return ok
}

// TaskStates lists every task state.
var TaskStates = []string{
	models.TaskStateDraft, models.TaskStatePosted, models.TaskStateMatching,
	models.TaskStateAccepted, models.TaskStateInProgress, models.TaskStateCompleted,
	models.TaskStateSettled, models.TaskStateReviewed, models.TaskStateCanceledByClient,
	models.TaskStateCanceledByTasker, models.TaskStateDisputed,
}

// TaskActions lists every task action.
var TaskActions = []TaskAction{
	TaskPost, TaskStartMatching, TaskAccept, TaskReopen, TaskStart, TaskComplete,
	TaskSettle, TaskReview, TaskCancelByClient, TaskCancelByTasker, TaskDispute,
	TaskResolve, TaskForceCancel,
}

// IsTerminalTask reports states where the task's work is over. Only a review
// can still follow settlement.
func IsTerminalTask(state string) bool {
	switch state {
	case models.TaskStateSettled, models.TaskStateReviewed,
		models.TaskStateCanceledByClient, models.TaskStateCanceledByTasker:
		return true
	}
	return false
}

// TaskStateForBooking maps a booking status onto the task state it mirrors.
// Only accepted, in_progress, completed and disputed are mirrored.
func TaskStateForBooking(status string) (TaskAction, bool) {
	switch status {
	case models.BookingStatusAccepted:
		return TaskAccept, true
	case models.BookingStatusInProgress:
		return TaskStart, true
	case models.BookingStatusCompleted:
		return TaskComplete, true
	case models.BookingStatusDisputed:
		return TaskDispute, true
	}
	return "", false
}

// TargetState returns the state action leads to, whatever the source.
func TargetState(action TaskAction) string {
	for e, to := range taskTransitions {
		if e.action == action {
			return to
		}
	}
	return ""
}
