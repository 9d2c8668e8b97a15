package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/inaiurai/marketplace/internal/apperr"
	"github.com/inaiurai/marketplace/internal/models"
)

// Dispatcher runs candidate matching for a posted task and offers it to the
// best taskers. The match_candidates worker calls it after a post commits.
type Dispatcher struct {
	Tasks   TaskService
	Matcher *Matcher
	Limit   int
	Logger  *slog.Logger
}

// NewDispatcher returns a Dispatcher offering each task to at most limit taskers.
func NewDispatcher(tasks TaskService, matcher *Matcher, limit int, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if limit <= 0 {
		limit = defaultMatchLimit
	}
	return &Dispatcher{Tasks: tasks, Matcher: matcher, Limit: limit, Logger: logger}
}

// DispatchCandidates is a no-op unless the task is still posted, so a retried
// job never offers the task twice.
func (d *Dispatcher) DispatchCandidates(ctx context.Context, taskID uuid.UUID) error {
	task, err := d.Tasks.Get(ctx, models.SystemActor, taskID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			d.Logger.Warn("match candidates: task gone", "task_id", taskID)
			return nil
		}
		return fmt.Errorf("get task: %w", err)
	}
	if task.State != models.TaskStatePosted {
		return nil
	}
	candidates, err := d.Matcher.Rank(ctx, task, d.Limit)
	if err != nil {
		return fmt.Errorf("rank candidates: %w", err)
	}
	if len(candidates) == 0 {
		d.Logger.Warn("no taskers available", "task_id", taskID, "category", task.Category, "city", task.Location.City)
		return nil
	}
	if _, err := d.Tasks.StartMatching(ctx, models.SystemActor, taskID, candidates); err != nil {
		// The client acted first (canceled, or booked someone directly).
		if errors.Is(err, apperr.ErrInvalidState) {
			return nil
		}
		return fmt.Errorf("start matching: %w", err)
	}
	d.Logger.Info("task offered to candidates", "task_id", taskID, "candidates", len(candidates))
	return nil
}
