package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ujianku/ujianku-backend/internal/model"
)

// GuruRepository handles guru account data access.
type GuruRepository struct {
	pool *pgxpool.Pool
}

// NewGuruRepository creates a new GuruRepository.
func NewGuruRepository(pool *pgxpool.Pool) *GuruRepository {
	return &GuruRepository{pool: pool}
}

// GetByEmail retrieves a guru by email.
func (r *GuruRepository) GetByEmail(ctx context.Context, email string) (*model.Guru, error) {
	return scanGuru(r.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, created_at, updated_at
		 FROM gurus WHERE LOWER(email) = LOWER($1)`, email))
}

// GetByID retrieves a guru by primary key.
func (r *GuruRepository) GetByID(ctx context.Context, id int) (*model.Guru, error) {
	return scanGuru(r.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, created_at, updated_at
		 FROM gurus WHERE id = $1`, id))
}

// Create inserts a new guru account.
func (r *GuruRepository) Create(ctx context.Context, g *model.Guru) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO gurus (name, email, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		g.Name, g.Email, g.PasswordHash,
	).Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert guru: %w", err)
	}
	return nil
}

func scanGuru(row rowScanner) (*model.Guru, error) {
	g := &model.Guru{}
	err := row.Scan(&g.ID, &g.Name, &g.Email, &g.PasswordHash, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGuruNotFound
		}
		return nil, err
	}
	return g, nil
}
