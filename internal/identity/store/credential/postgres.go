package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"taskdesk/internal/identity/models"
	id "taskdesk/pkg/domain"
	"taskdesk/pkg/platform/sentinel"
	txcontext "taskdesk/pkg/platform/tx"
)

const pgUniqueViolation = "23505"

// PostgresStore persists credentials in the credentials table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) q(ctx context.Context) queryer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, cred models.Credential) error {
	query := `
		INSERT INTO credentials (profile_id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.q(ctx).ExecContext(ctx, query, uuid.UUID(cred.ProfileID), cred.Email, cred.PasswordHash, cred.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("credential email: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (models.Credential, error) {
	query := `
		SELECT profile_id, email, password_hash, created_at
		FROM credentials
		WHERE lower(email) = lower($1)
	`
	var (
		cred      models.Credential
		profileID uuid.UUID
	)
	err := s.q(ctx).QueryRowContext(ctx, query, email).Scan(&profileID, &cred.Email, &cred.PasswordHash, &cred.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Credential{}, fmt.Errorf("credential: %w", sentinel.ErrNotFound)
		}
		return models.Credential{}, fmt.Errorf("find credential: %w", err)
	}
	cred.ProfileID = id.ProfileID(profileID)
	return cred, nil
}
