// Package postgres implements the record service on Postgres.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"taskdesk/internal/task/models"
	"taskdesk/internal/task/ports"
	id "taskdesk/pkg/domain"
	"taskdesk/pkg/platform/sentinel"
	txcontext "taskdesk/pkg/platform/tx"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// Store implements ports.RecordService on the tasks and profiles tables.
type Store struct {
	db *sql.DB
}

var _ ports.RecordService = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// q joins a caller's transaction when one is carried in ctx.
func (s *Store) q(ctx context.Context) queryer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const taskColumns = `id, title, description, status, priority, client_name, matter_ref,
	assigned_to, created_by, due_date, completed_at, created_at, updated_at`

// ListTasks returns the tasks matching filter, newest first, with assignees
// resolved in one batched profile lookup.
func (s *Store) ListTasks(ctx context.Context, filter ports.VisibilityFilter) ([]models.Task, error) {
	var assignedTo *uuid.UUID
	if filter.AssignedTo != nil {
		a := uuid.UUID(*filter.AssignedTo)
		assignedTo = &a
	}
	query := `SELECT ` + taskColumns + `
		FROM tasks
		WHERE ($1::uuid IS NULL OR assigned_to = $1)
		ORDER BY created_at DESC, id DESC`
	rows, err := s.q(ctx).QueryContext(ctx, query, assignedTo)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
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
	if err := s.attachAssignees(ctx, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *Store) CreateTask(ctx context.Context, task models.NewTask) (models.Task, error) {
	query := `INSERT INTO tasks (
			id, title, description, status, priority, client_name, matter_ref,
			assigned_to, created_by, due_date, completed_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		RETURNING ` + taskColumns
	row := s.q(ctx).QueryRowContext(ctx, query,
		uuid.New(),
		task.Title,
		task.Description,
		string(task.Status),
		string(task.Priority),
		task.ClientName,
		task.MatterRef,
		nullableProfileID(task.AssignedTo),
		uuid.UUID(task.CreatedBy),
		nullableDate(task.DueDate),
		task.CompletedAt,
	)
	t, err := scanTask(row)
	if err != nil {
		return models.Task{}, fmt.Errorf("insert task: %w", translate(err))
	}
	return s.withAssignee(ctx, t)
}

// UpdateTask writes status and completed_at, and the editable fields when
// the patch carries them. created_by is never written.
func (s *Store) UpdateTask(ctx context.Context, taskID id.TaskID, patch models.TaskPatch) (models.Task, error) {
	var row *sql.Row
	if patch.Details == nil {
		query := `UPDATE tasks
			SET status = $2, completed_at = $3, updated_at = now()
			WHERE id = $1
			RETURNING ` + taskColumns
		row = s.q(ctx).QueryRowContext(ctx, query, uuid.UUID(taskID), string(patch.Status), patch.CompletedAt)
	} else {
		d := patch.Details
		query := `UPDATE tasks
			SET status = $2, completed_at = $3, title = $4, description = $5,
				priority = $6, client_name = $7, matter_ref = $8, assigned_to = $9,
				due_date = $10, updated_at = now()
			WHERE id = $1
			RETURNING ` + taskColumns
		row = s.q(ctx).QueryRowContext(ctx, query,
			uuid.UUID(taskID),
			string(patch.Status),
			patch.CompletedAt,
			d.Title,
			d.Description,
			string(d.Priority),
			d.ClientName,
			d.MatterRef,
			nullableProfileID(d.AssignedTo),
			nullableDate(d.DueDate),
		)
	}
	t, err := scanTask(row)
	if err != nil {
		return models.Task{}, fmt.Errorf("update task %s: %w", taskID, translate(err))
	}
	return s.withAssignee(ctx, t)
}

func (s *Store) DeleteTask(ctx context.Context, taskID id.TaskID) error {
	res, err := s.q(ctx).ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, uuid.UUID(taskID))
	if err != nil {
		return fmt.Errorf("delete task %s: %w", taskID, translate(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete task %s: %w", taskID, err)
	}
	if n == 0 {
		return fmt.Errorf("delete task %s: %w", taskID, sentinel.ErrNotFound)
	}
	return nil
}

const profileColumns = `id, email, full_name, avatar_url, role, created_at`

func (s *Store) ListProfiles(ctx context.Context, order ports.ProfileOrder) ([]models.Profile, error) {
	orderBy := `full_name ASC NULLS LAST, email ASC`
	if order == ports.OrderByCreatedAt {
		orderBy = `created_at DESC`
	}
	rows, err := s.q(ctx).QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY `+orderBy)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()
	return scanProfiles(rows)
}

func (s *Store) UpdateProfileRole(ctx context.Context, profileID id.ProfileID, role id.Role) error {
	res, err := s.q(ctx).ExecContext(ctx, `UPDATE profiles SET role = $2 WHERE id = $1`,
		uuid.UUID(profileID), string(role))
	if err != nil {
		return fmt.Errorf("update profile role: %w", translate(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update profile role: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("profile %s: %w", profileID, sentinel.ErrNotFound)
	}
	return nil
}

// CreateProfile inserts a profile. A duplicate email is sentinel.ErrConflict.
func (s *Store) CreateProfile(ctx context.Context, profile models.Profile) error {
	query := `INSERT INTO profiles (id, email, full_name, avatar_url, role, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))`
	var createdAt *time.Time
	if !profile.CreatedAt.IsZero() {
		createdAt = &profile.CreatedAt
	}
	_, err := s.q(ctx).ExecContext(ctx, query,
		uuid.UUID(profile.ID),
		profile.Email,
		profile.FullName,
		profile.AvatarURL,
		string(profile.Role),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert profile: %w", translate(err))
	}
	return nil
}

func (s *Store) GetProfile(ctx context.Context, profileID id.ProfileID) (models.Profile, error) {
	row := s.q(ctx).QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`,
		uuid.UUID(profileID))
	p, err := scanProfile(row)
	if err != nil {
		return models.Profile{}, fmt.Errorf("get profile %s: %w", profileID, translate(err))
	}
	return p, nil
}

// ProfilesByID loads the given profiles in one round trip. Unknown ids are
// skipped.
func (s *Store) ProfilesByID(ctx context.Context, ids []id.ProfileID) (map[id.ProfileID]models.Profile, error) {
	out := make(map[id.ProfileID]models.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, profileID := range ids {
		keys[i] = profileID.String()
	}
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = ANY($1::uuid[])`, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("query profiles by id: %w", err)
	}
	defer rows.Close()
	profiles, err := scanProfiles(rows)
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		out[p.ID] = p
	}
	return out, nil
}

func (s *Store) withAssignee(ctx context.Context, t models.Task) (models.Task, error) {
	tasks := []models.Task{t}
	if err := s.attachAssignees(ctx, tasks); err != nil {
		return models.Task{}, err
	}
	return tasks[0], nil
}

func (s *Store) attachAssignees(ctx context.Context, tasks []models.Task) error {
	seen := make(map[id.ProfileID]bool)
	var ids []id.ProfileID
	for _, t := range tasks {
		if t.AssignedTo != nil && !seen[*t.AssignedTo] {
			seen[*t.AssignedTo] = true
			ids = append(ids, *t.AssignedTo)
		}
	}
	profiles, err := s.ProfilesByID(ctx, ids)
	if err != nil {
		return err
	}
	for i := range tasks {
		if tasks[i].AssignedTo == nil {
			continue
		}
		if p, ok := profiles[*tasks[i].AssignedTo]; ok {
			tasks[i].Assignee = p.AsAssignee()
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (models.Task, error) {
	var (
		t                     models.Task
		taskID                uuid.UUID
		status, priority      string
		assignedTo, createdBy *uuid.UUID
		dueDate               *time.Time
	)
	err := row.Scan(
		&taskID,
		&t.Title,
		&t.Description,
		&status,
		&priority,
		&t.ClientName,
		&t.MatterRef,
		&assignedTo,
		&createdBy,
		&dueDate,
		&t.CompletedAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return models.Task{}, err
	}
	t.ID = id.TaskID(taskID)
	t.Status = id.TaskStatus(status)
	t.Priority = id.Priority(priority)
	if assignedTo != nil {
		a := id.ProfileID(*assignedTo)
		t.AssignedTo = &a
	}
	if createdBy != nil {
		c := id.ProfileID(*createdBy)
		t.CreatedBy = &c
	}
	if dueDate != nil {
		d := models.DateOf(*dueDate)
		t.DueDate = &d
	}
	return t, nil
}

func scanProfile(row scanner) (models.Profile, error) {
	var (
		p         models.Profile
		profileID uuid.UUID
		role      string
	)
	if err := row.Scan(&profileID, &p.Email, &p.FullName, &p.AvatarURL, &role, &p.CreatedAt); err != nil {
		return models.Profile{}, err
	}
	p.ID = id.ProfileID(profileID)
	p.Role = id.Role(role)
	return p, nil
}

func scanProfiles(rows *sql.Rows) ([]models.Profile, error) {
	var profiles []models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return profiles, nil
}

func nullableProfileID(p *id.ProfileID) *uuid.UUID {
	if p == nil {
		return nil
	}
	u := uuid.UUID(*p)
	return &u
}

func nullableDate(d *models.Date) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

// translate maps driver errors onto sentinel errors so services never see
// Postgres codes.
func translate(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, sentinel.ErrConflict)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, sentinel.ErrNotFound)
		case pgCheckViolation:
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, sentinel.ErrInvalidState)
		}
	}
	return err
}
