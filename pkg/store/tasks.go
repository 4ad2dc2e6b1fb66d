package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harrisonrobin/agendify/pkg/model"
)

const taskColumns = `id, user_id, title, description, due_at, completed, priority, created_at, updated_at`

// TaskRepo is the local task store. It serves as agenda.TaskSource.
type TaskRepo struct {
	db  *DB
	now func() time.Time
}

func NewTaskRepo(db *DB) *TaskRepo {
	return &TaskRepo{db: db, now: time.Now}
}

// Filter narrows Find. Zero values match everything.
type Filter struct {
	// Day restricts results to tasks due within this window.
	Day *model.Window
	// Completed, when set, matches only tasks with that completion state.
	Completed *bool
}

// Create assigns an ID and timestamps. An empty priority is stored as medium.
func (r *TaskRepo) Create(ctx context.Context, t model.Task) (model.Task, error) {
	if strings.TrimSpace(t.Title) == "" {
		return model.Task{}, errors.New("task title must not be empty")
	}
	if t.UserID == "" {
		return model.Task{}, errors.New("task user must not be empty")
	}
	p, err := model.ParsePriority(string(t.Priority))
	if err != nil {
		return model.Task{}, err
	}
	t.Priority = p
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := r.now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	query := `INSERT INTO tasks (` + taskColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.Writer.ExecContext(ctx, query,
		t.ID, t.UserID, t.Title, t.Description, nullableTime(t.DueAt), boolInt(t.Completed),
		string(t.Priority), formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return model.Task{}, fmt.Errorf("insert task: %w", err)
	}
	return t, nil
}

func (r *TaskRepo) Get(ctx context.Context, userID, id string) (model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = ? AND id = ?`
	t, err := scanTask(r.db.Reader.QueryRowContext(ctx, query, userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, ErrNotFound
	}
	return t, err
}

func (r *TaskRepo) Exists(ctx context.Context, userID, id string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM tasks WHERE user_id = ? AND id = ?)`
	var exists bool
	if err := r.db.Reader.QueryRowContext(ctx, query, userID, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check task %s: %w", id, err)
	}
	return exists, nil
}

// SetCompleted marks a task done or pending and returns the updated row.
func (r *TaskRepo) SetCompleted(ctx context.Context, userID, id string, completed bool) (model.Task, error) {
	const query = `UPDATE tasks SET completed = ?, updated_at = ? WHERE user_id = ? AND id = ?`
	res, err := r.db.Writer.ExecContext(ctx, query, boolInt(completed), formatTime(r.now()), userID, id)
	if err != nil {
		return model.Task{}, fmt.Errorf("update task %s: %w", id, err)
	}
	if err := requireRow(res, "update task "+id); err != nil {
		return model.Task{}, err
	}
	return r.Get(ctx, userID, id)
}

// TaskPatch holds the fields Update changes. Nil fields are left as stored.
type TaskPatch struct {
	Title       *string
	Description *string
	DueAt       *time.Time
	ClearDue    bool
	Priority    *model.Priority
}

// Update applies p to a task and returns the stored result.
func (r *TaskRepo) Update(ctx context.Context, userID, id string, p TaskPatch) (model.Task, error) {
	t, err := r.Get(ctx, userID, id)
	if err != nil {
		return model.Task{}, err
	}
	if p.Title != nil {
		if strings.TrimSpace(*p.Title) == "" {
			return model.Task{}, errors.New("task title must not be empty")
		}
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	switch {
	case p.ClearDue:
		t.DueAt = nil
	case p.DueAt != nil:
		due := *p.DueAt
		t.DueAt = &due
	}
	if p.Priority != nil {
		if t.Priority, err = model.ParsePriority(string(*p.Priority)); err != nil {
			return model.Task{}, err
		}
	}
	t.UpdatedAt = r.now().UTC()

	const query = `UPDATE tasks SET title = ?, description = ?, due_at = ?, priority = ?, updated_at = ?
		WHERE user_id = ? AND id = ?`
	res, err := r.db.Writer.ExecContext(ctx, query,
		t.Title, t.Description, nullableTime(t.DueAt), string(t.Priority), formatTime(t.UpdatedAt), userID, id)
	if err != nil {
		return model.Task{}, fmt.Errorf("update task %s: %w", id, err)
	}
	if err := requireRow(res, "update task "+id); err != nil {
		return model.Task{}, err
	}
	return t, nil
}

func (r *TaskRepo) Delete(ctx context.Context, userID, id string) error {
	const query = `DELETE FROM tasks WHERE user_id = ? AND id = ?`
	res, err := r.db.Writer.ExecContext(ctx, query, userID, id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return requireRow(res, "delete task "+id)
}

// requireRow turns a statement that touched no rows into ErrNotFound.
func requireRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Find lists a user's tasks ordered by due time (undated last), then
// priority high to low, then newest first.
func (r *TaskRepo) Find(ctx context.Context, userID string, f Filter) ([]model.Task, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + taskColumns + ` FROM tasks WHERE user_id = ?`)
	args := []any{userID}
	if f.Day != nil {
		b.WriteString(` AND due_at IS NOT NULL AND due_at >= ? AND due_at <= ?`)
		args = append(args, formatTime(f.Day.Start), formatTime(f.Day.End))
	}
	if f.Completed != nil {
		b.WriteString(` AND completed = ?`)
		args = append(args, boolInt(*f.Completed))
	}
	b.WriteString(` ORDER BY due_at IS NULL, due_at ASC,
		CASE priority WHEN 'high' THEN 3 WHEN 'medium' THEN 2 ELSE 1 END DESC,
		created_at DESC`)
	return r.query(ctx, b.String(), args...)
}

// List returns tasks due inside w, both ends included. Completed tasks are
// left out unless includeCompleted is set.
func (r *TaskRepo) List(ctx context.Context, userID string, w model.Window, includeCompleted bool) ([]model.Task, error) {
	f := Filter{Day: &w}
	if !includeCompleted {
		pending := false
		f.Completed = &pending
	}
	return r.Find(ctx, userID, f)
}

func (r *TaskRepo) query(ctx context.Context, query string, args ...any) ([]model.Task, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

func scanTask(s scanner) (model.Task, error) {
	var (
		t                    model.Task
		dueAt                sql.NullString
		completed            int
		priority             string
		createdAt, updatedAt string
	)
	err := s.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &dueAt, &completed, &priority, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Task{}, err
		}
		return model.Task{}, fmt.Errorf("scan task: %w", err)
	}
	t.Completed = completed != 0
	t.Priority = model.Priority(priority)
	if dueAt.Valid {
		due, err := parseTime(dueAt.String)
		if err != nil {
			return model.Task{}, err
		}
		t.DueAt = &due
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.Task{}, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.Task{}, err
	}
	return t, nil
}

func nullableTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return formatTime(*t)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
