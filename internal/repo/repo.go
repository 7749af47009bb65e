package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"pulseboard/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Repo is a thin data-access layer over the workspace sqlite database. All
// methods take the caller's context; mutations that must commit atomically
// with an event accept a transaction.
type Repo struct {
	DB *sql.DB
}

func nullable(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullablePtr(v *string) any {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil
	}
	return *v
}

// --- messages ---

func (r Repo) InsertMessage(ctx context.Context, tx *sql.Tx, msg domain.Message) error {
	if msg.ID == "" {
		return errors.New("id required")
	}
	var analysisJSON any
	if msg.Analysis != nil {
		data, err := json.Marshal(msg.Analysis)
		if err != nil {
			return fmt.Errorf("marshal analysis: %w", err)
		}
		analysisJSON = string(data)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO messages(id, user_id, username, content, analysis_json, created_at)
		VALUES (?,?,?,?,?,?)`,
		msg.ID, nullable(msg.UserID), msg.Username, msg.Content, analysisJSON, msg.CreatedAt)
	return err
}

func (r Repo) GetMessage(ctx context.Context, id string) (domain.Message, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT id, COALESCE(user_id,''), username, content, analysis_json, created_at
		FROM messages WHERE id=?`, id)
	return scanMessage(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (domain.Message, error) {
	var msg domain.Message
	var analysisJSON sql.NullString
	err := row.Scan(&msg.ID, &msg.UserID, &msg.Username, &msg.Content, &analysisJSON, &msg.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.Message{}, ErrNotFound
	}
	if err != nil {
		return domain.Message{}, err
	}
	if analysisJSON.Valid && analysisJSON.String != "" {
		var a domain.Analysis
		if err := json.Unmarshal([]byte(analysisJSON.String), &a); err != nil {
			return domain.Message{}, fmt.Errorf("decode analysis for %s: %w", msg.ID, err)
		}
		msg.Analysis = &a
	}
	return msg, nil
}

// MessageFilters narrows ListMessages. Cursor is (created_at, id) from the
// last row of the previous page.
type MessageFilters struct {
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

// ListMessages returns messages newest first.
func (r Repo) ListMessages(ctx context.Context, f MessageFilters) ([]domain.Message, error) {
	query := `
		SELECT id, COALESCE(user_id,''), username, content, analysis_json, created_at
		FROM messages`
	var args []any
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		query += ` WHERE (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// AllMessages returns the full message log oldest first, for scoring and
// batch classification.
func (r Repo) AllMessages(ctx context.Context) ([]domain.Message, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, COALESCE(user_id,''), username, content, analysis_json, created_at
		FROM messages ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// --- tasks ---

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, task domain.Task) error {
	if task.ID == "" {
		return errors.New("id required")
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO tasks(id, title, status, progress, assignee, deadline, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		task.ID, task.Title, task.Status, task.Progress,
		nullable(task.Assignee), nullablePtr(task.Deadline), task.CreatedAt, task.UpdatedAt)
	return err
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, task domain.Task) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE tasks SET title=?, status=?, progress=?, assignee=?, deadline=?, updated_at=?
		WHERE id=?`,
		task.Title, task.Status, task.Progress,
		nullable(task.Assignee), nullablePtr(task.Deadline), task.UpdatedAt, task.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT id, title, status, progress, COALESCE(assignee,''), deadline, created_at, updated_at
		FROM tasks WHERE id=?`, id)
	return scanTask(row)
}

func scanTask(row rowScanner) (domain.Task, error) {
	var task domain.Task
	var deadline sql.NullString
	err := row.Scan(&task.ID, &task.Title, &task.Status, &task.Progress, &task.Assignee, &deadline, &task.CreatedAt, &task.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.Task{}, ErrNotFound
	}
	if err != nil {
		return domain.Task{}, err
	}
	if deadline.Valid {
		task.Deadline = &deadline.String
	}
	return task, nil
}

type TaskFilters struct {
	Status   string
	Assignee string
	Limit    int
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	query := `
		SELECT id, title, status, progress, COALESCE(assignee,''), deadline, created_at, updated_at
		FROM tasks`
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Assignee != "" {
		clauses = append(clauses, "assignee=?")
		args = append(args, f.Assignee)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY created_at ASC, id ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// --- contributions ---

func (r Repo) UpsertContribution(ctx context.Context, tx *sql.Tx, c domain.Contribution) error {
	if c.MemberID == "" {
		return errors.New("member_id required")
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO contributions(member_id, name, tasks_completed, impact_score, total_hours, updated_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(member_id) DO UPDATE SET
			name=excluded.name,
			tasks_completed=excluded.tasks_completed,
			impact_score=excluded.impact_score,
			total_hours=excluded.total_hours,
			updated_at=excluded.updated_at`,
		c.MemberID, nullable(c.Name), c.TasksCompleted, c.ImpactScore, c.TotalHours, c.UpdatedAt)
	return err
}

func (r Repo) ListContributions(ctx context.Context) ([]domain.Contribution, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT member_id, COALESCE(name,''), tasks_completed, impact_score, total_hours, updated_at
		FROM contributions ORDER BY member_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Contribution
	for rows.Next() {
		var c domain.Contribution
		if err := rows.Scan(&c.MemberID, &c.Name, &c.TasksCompleted, &c.ImpactScore, &c.TotalHours, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- events ---

func (r Repo) LatestEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, ts, type, entity_kind, COALESCE(entity_id,''), actor_id, payload_json
		FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// EventsAfter returns up to limit events with id greater than afterID, oldest
// first. The webhook dispatcher pages through the log with it.
func (r Repo) EventsAfter(ctx context.Context, afterID int64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, ts, type, entity_kind, COALESCE(entity_id,''), actor_id, payload_json
		FROM events WHERE id > ? ORDER BY id ASC LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM events`).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id.Int64, nil
}

// LastEventOfType returns the most recent event of the given type, or
// ErrNotFound when the log has none.
func (r Repo) LastEventOfType(ctx context.Context, evtType string) (domain.Event, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT id, ts, type, entity_kind, COALESCE(entity_id,''), actor_id, payload_json
		FROM events WHERE type=? ORDER BY id DESC LIMIT 1`, evtType)
	var e domain.Event
	err := row.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload)
	if err == sql.ErrNoRows {
		return domain.Event{}, ErrNotFound
	}
	return e, err
}

func collectEvents(rows *sql.Rows) ([]domain.Event, error) {
	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
