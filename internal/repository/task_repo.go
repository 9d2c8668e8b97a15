package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inaiurai/marketplace/internal/models"
)

const taskColumns = `t.id, t.client_id, t.category, t.subcategory, t.description, t.address, t.city, t.district,
	t.lat, t.lng, t.scheduled_start, t.flexibility_minutes, t.pricing_model, t.price_amount, t.price_currency,
	t.structured_inputs, t.bid_mode, t.state, t.created_at, t.updated_at`

type TaskRepo struct{}

func NewTaskRepo() *TaskRepo {
	return &TaskRepo{}
}

func scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.ClientID, &t.Category, &t.Subcategory, &t.Description,
		&t.Location.Address, &t.Location.City, &t.Location.District, &t.Location.Lat, &t.Location.Lng,
		&t.ScheduledStart, &t.FlexibilityMinutes, &t.PricingModel, &t.PriceAmount, &t.PriceCurrency,
		&t.StructuredInputs, &t.BidMode, &t.State, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TaskRepo) CreateTask(ctx context.Context, tx pgx.Tx, t *models.Task) error {
	return tx.QueryRow(ctx, `
		INSERT INTO tasks (id, client_id, category, subcategory, description, address, city, district, lat, lng,
			scheduled_start, flexibility_minutes, pricing_model, price_amount, price_currency, structured_inputs,
			bid_mode, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING created_at, updated_at
	`, t.ID, t.ClientID, t.Category, t.Subcategory, t.Description, t.Location.Address, t.Location.City,
		t.Location.District, t.Location.Lat, t.Location.Lng, t.ScheduledStart, t.FlexibilityMinutes,
		t.PricingModel, t.PriceAmount, t.PriceCurrency, t.StructuredInputs, t.BidMode, t.State,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *TaskRepo) GetTask(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error) {
	t, err := scanTask(tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id = $1`, id))
	return t, mapErr(err, "task")
}

// GetTaskForUpdate locks the task row for the rest of the transaction. Every
// decision about bookings on a task is made while holding this lock.
func (r *TaskRepo) GetTaskForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error) {
	t, err := scanTask(tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id = $1 FOR UPDATE`, id))
	return t, mapErr(err, "task")
}

// UpdateTask persists the editable fields and the state.
func (r *TaskRepo) UpdateTask(ctx context.Context, tx pgx.Tx, t *models.Task) error {
	err := tx.QueryRow(ctx, `
		UPDATE tasks SET category = $2, subcategory = $3, description = $4, address = $5, city = $6,
			district = $7, lat = $8, lng = $9, scheduled_start = $10, flexibility_minutes = $11,
			pricing_model = $12, price_amount = $13, price_currency = $14, structured_inputs = $15,
			bid_mode = $16, state = $17, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, t.ID, t.Category, t.Subcategory, t.Description, t.Location.Address, t.Location.City, t.Location.District,
		t.Location.Lat, t.Location.Lng, t.ScheduledStart, t.FlexibilityMinutes, t.PricingModel, t.PriceAmount,
		t.PriceCurrency, t.StructuredInputs, t.BidMode, t.State,
	).Scan(&t.UpdatedAt)
	return mapErr(err, "task")
}

func (r *TaskRepo) ListTasks(ctx context.Context, tx pgx.Tx, f models.TaskFilter) ([]*models.Task, error) {
	q := Select(`SELECT `+taskColumns+` FROM tasks t`).
		Where(optionalEq("t.client_id", f.ClientID), In("t.state", f.States)).
		WhereIf(f.Category != "", Eq("t.category", f.Category)).
		WhereIf(f.City != "", Eq("t.city", f.City)).
		WhereIf(f.BidMode != "", Eq("t.bid_mode", f.BidMode))
	if f.CandidateID != nil {
		q.Where(Raw(`EXISTS (SELECT 1 FROM task_candidates c WHERE c.task_id = t.id AND c.tasker_id = %s)`, *f.CandidateID))
	}
	sql, args := q.Paginate("t.id", f.Page).SQL()
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// AddCandidates inserts candidate rows, ignoring taskers already listed.
func (r *TaskRepo) AddCandidates(ctx context.Context, tx pgx.Tx, candidates []models.TaskCandidate) error {
	if len(candidates) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range candidates {
		batch.Queue(`
			INSERT INTO task_candidates (task_id, tasker_id, score) VALUES ($1, $2, $3)
			ON CONFLICT (task_id, tasker_id) DO NOTHING
		`, c.TaskID, c.TaskerID, c.Score)
	}
	return tx.SendBatch(ctx, batch).Close()
}

func (r *TaskRepo) IsCandidate(ctx context.Context, tx pgx.Tx, taskID, taskerID uuid.UUID) (bool, error) {
	var ok bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM task_candidates WHERE task_id = $1 AND tasker_id = $2)
	`, taskID, taskerID).Scan(&ok)
	return ok, err
}

func (r *TaskRepo) RemoveCandidate(ctx context.Context, tx pgx.Tx, taskID, taskerID uuid.UUID) error {
	_, err := tx.Exec(ctx, `DELETE FROM task_candidates WHERE task_id = $1 AND tasker_id = $2`, taskID, taskerID)
	return err
}

func (r *TaskRepo) ListCandidates(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) ([]models.TaskCandidate, error) {
	rows, err := tx.Query(ctx, `
		SELECT task_id, tasker_id, score, created_at FROM task_candidates
		WHERE task_id = $1 ORDER BY score DESC, tasker_id
	`, taskID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.TaskCandidate, error) {
		var c models.TaskCandidate
		err := row.Scan(&c.TaskID, &c.TaskerID, &c.Score, &c.CreatedAt)
		return c, err
	})
}
