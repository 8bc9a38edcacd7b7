package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/utafrali/TrainingPlatform/pkg/database"
	apperrors "github.com/utafrali/TrainingPlatform/pkg/errors"
	"github.com/utafrali/TrainingPlatform/services/auth/internal/domain"
)

const uniqueViolation = "23505"

const identityColumns = `id, email, name, role, secret_hash, created_at, updated_at`

// IdentityRepository implements repository.IdentityRepository using PostgreSQL.
type IdentityRepository struct {
	db database.DBTX
}

// NewIdentityRepository creates a new PostgreSQL-backed identity repository.
func NewIdentityRepository(db database.DBTX) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// Create inserts a new identity.
func (r *IdentityRepository) Create(ctx context.Context, id *domain.Identity) (err error) {
	query := `
		INSERT INTO identities (` + identityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	ctx, end := database.TraceQuery(ctx, "CreateIdentity", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		id.ID,
		id.Email,
		id.Name,
		id.Role,
		id.SecretHash,
		id.CreatedAt,
		id.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.EmailAlreadyRegistered(id.Email)
		}
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

// GetByID retrieves an identity by its identifier.
func (r *IdentityRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE id = $1`
	return r.getOne(ctx, "GetIdentityByID", query, id)
}

// GetByEmail retrieves an identity by its normalized email address.
func (r *IdentityRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE email = $1`
	return r.getOne(ctx, "GetIdentityByEmail", query, domain.NormalizeEmail(email))
}

func (r *IdentityRepository) getOne(ctx context.Context, op, query, arg string) (_ *domain.Identity, err error) {
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() { end(err) }()

	var id domain.Identity
	err = r.db.QueryRow(ctx, query, arg).Scan(
		&id.ID,
		&id.Email,
		&id.Name,
		&id.Role,
		&id.SecretHash,
		&id.CreatedAt,
		&id.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("identity", arg)
		}
		return nil, fmt.Errorf("scan identity: %w", err)
	}
	return &id, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
