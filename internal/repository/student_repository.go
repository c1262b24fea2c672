package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ujianku/ujianku-backend/internal/model"
)

// StudentRepository handles student roster data access.
type StudentRepository struct {
	pool *pgxpool.Pool
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(pool *pgxpool.Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

const studentColumns = `id, nisn, name, kelas, guru_id, created_at, updated_at`

// GetByID retrieves a student by primary key.
func (r *StudentRepository) GetByID(ctx context.Context, id int) (*model.Student, error) {
	return scanStudent(r.pool.QueryRow(ctx,
		`SELECT `+studentColumns+` FROM students WHERE id = $1`, id))
}

// GetByNISNAndGuru retrieves a student by NISN within one guru's roster.
func (r *StudentRepository) GetByNISNAndGuru(ctx context.Context, nisn string, guruID int) (*model.Student, error) {
	return scanStudent(r.pool.QueryRow(ctx,
		`SELECT `+studentColumns+` FROM students WHERE nisn = $1 AND guru_id = $2`, nisn, guruID))
}

// Create inserts a single student.
func (r *StudentRepository) Create(ctx context.Context, s *model.Student) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO students (nisn, name, kelas, guru_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		s.NISN, s.Name, s.Kelas, s.GuruID,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert student: %w", err)
	}
	return nil
}

// Upsert inserts a student or updates name/kelas if the NISN already exists
// in the guru's roster. Returns true when a new row was created.
func (r *StudentRepository) Upsert(ctx context.Context, s *model.Student) (bool, error) {
	var created bool
	err := r.pool.QueryRow(ctx,
		`INSERT INTO students (nisn, name, kelas, guru_id)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (guru_id, nisn) DO UPDATE
		 SET name = EXCLUDED.name, kelas = EXCLUDED.kelas, updated_at = NOW()
		 RETURNING id, created_at, updated_at, (xmax = 0)`,
		s.NISN, s.Name, s.Kelas, s.GuruID,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt, &created)
	if err != nil {
		return false, fmt.Errorf("upsert student: %w", err)
	}
	return created, nil
}

// ListByGuru retrieves a guru's roster, optionally filtered by kelas.
func (r *StudentRepository) ListByGuru(ctx context.Context, guruID int, kelas *string, limit, offset int) ([]model.Student, int, error) {
	baseQuery := ` FROM students WHERE guru_id = $1`
	args := []any{guruID}
	if kelas != nil && *kelas != "" {
		args = append(args, *kelas)
		baseQuery += fmt.Sprintf(" AND LOWER(kelas) = LOWER($%d)", len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + studentColumns + baseQuery +
		` ORDER BY kelas ASC, name ASC` +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var students []model.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, 0, err
		}
		students = append(students, *s)
	}
	return students, total, rows.Err()
}

// Delete removes a student from a guru's roster.
func (r *StudentRepository) Delete(ctx context.Context, id, guruID int) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM students WHERE id = $1 AND guru_id = $2`, id, guruID)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStudentNotFound
	}
	return nil
}

func scanStudent(row rowScanner) (*model.Student, error) {
	s := &model.Student{}
	err := row.Scan(&s.ID, &s.NISN, &s.Name, &s.Kelas, &s.GuruID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}
	return s, nil
}
