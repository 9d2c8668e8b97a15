// Package execution holds the River job arguments and workers that carry
// lifecycle side effects out of the request path.
package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

const webhookTimeout = 10 * time.Second

// NotifyWorker posts each notification to the delivery webhook. With no
// webhook configured it only logs, which is what local development wants.
type NotifyWorker struct {
	river.WorkerDefaults[NotifyArgs]
	webhookURL string
	httpClient *http.Client
	log        *slog.Logger
}

func NewNotifyWorker(webhookURL string, log *slog.Logger) *NotifyWorker {
	if log == nil {
		log = slog.Default()
	}
	return &NotifyWorker{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: webhookTimeout},
		log:        log,
	}
}

func (w *NotifyWorker) Work(ctx context.Context, job *river.Job[NotifyArgs]) error {
	args := job.Args
	if w.webhookURL == "" {
		w.log.Info("notification", "event", args.Event, "task_id", args.TaskID, "recipients", len(args.Recipients))
		return nil
	}

	body, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Notification-Attempt", fmt.Sprint(job.Attempt))

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("network error calling notification webhook: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// The receiver rejected the payload; retrying will not change that.
		w.log.Warn("notification rejected", "event", args.Event, "task_id", args.TaskID, "status", resp.StatusCode)
		return river.JobCancel(fmt.Errorf("notification webhook returned %d", resp.StatusCode))
	default:
		return fmt.Errorf("notification webhook returned %d", resp.StatusCode)
	}
}

// CandidateDispatcher picks candidates for a task and offers it to them.
type CandidateDispatcher interface {
	DispatchCandidates(ctx context.Context, taskID uuid.UUID) error
}

type MatchCandidatesWorker struct {
	river.WorkerDefaults[MatchCandidatesArgs]
	dispatcher CandidateDispatcher
}

func NewMatchCandidatesWorker(d CandidateDispatcher) *MatchCandidatesWorker {
	return &MatchCandidatesWorker{dispatcher: d}
}

func (w *MatchCandidatesWorker) Work(ctx context.Context, job *river.Job[MatchCandidatesArgs]) error {
	if err := w.dispatcher.DispatchCandidates(ctx, job.Args.TaskID); err != nil {
		return fmt.Errorf("dispatch candidates for task %s: %w", job.Args.TaskID, err)
	}
	return nil
}
