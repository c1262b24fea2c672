package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ujianku/ujianku-backend/internal/model"
)

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

const examColumns = `id, code, title, kelas, guru_id, total_questions, duration_minutes, choice_set, answer_key, paper_path, created_at, updated_at`

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return scanExam(r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = $1`, id))
}

// GetByCode retrieves an exam by its join code, case-insensitively.
func (r *ExamRepository) GetByCode(ctx context.Context, code string) (*model.Exam, error) {
	return scanExam(r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE LOWER(code) = LOWER($1)`, code))
}

// Create inserts a new exam.
func (r *ExamRepository) Create(ctx context.Context, exam *model.Exam) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO exams (code, title, kelas, guru_id, total_questions, duration_minutes, choice_set)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		exam.Code, exam.Title, exam.Kelas, exam.GuruID,
		exam.TotalQuestions, exam.DurationMinutes, exam.ChoiceSet,
	).Scan(&exam.ID, &exam.CreatedAt, &exam.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert exam: %w", err)
	}
	return nil
}

// Update modifies an exam's mutable fields.
func (r *ExamRepository) Update(ctx context.Context, exam *model.Exam) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams
		 SET title = $1, kelas = $2, total_questions = $3, duration_minutes = $4, choice_set = $5, updated_at = NOW()
		 WHERE id = $6`,
		exam.Title, exam.Kelas, exam.TotalQuestions, exam.DurationMinutes, exam.ChoiceSet, exam.ID)
	if err != nil {
		return fmt.Errorf("update exam: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExamNotFound
	}
	return nil
}

// SetAnswerKey stores the uploaded answer key.
func (r *ExamRepository) SetAnswerKey(ctx context.Context, id uuid.UUID, key model.AnswerKey) error {
	keyJSON, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("marshal answer key: %w", err)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams SET answer_key = $1, updated_at = NOW() WHERE id = $2`, keyJSON, id)
	if err != nil {
		return fmt.Errorf("set answer key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExamNotFound
	}
	return nil
}

// SetPaperPath stores the uploaded question paper's relative path.
func (r *ExamRepository) SetPaperPath(ctx context.Context, id uuid.UUID, path string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams SET paper_path = $1, updated_at = NOW() WHERE id = $2`, path, id)
	if err != nil {
		return fmt.Errorf("set paper path: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExamNotFound
	}
	return nil
}

// ListByGuru retrieves a guru's exams with pagination.
func (r *ExamRepository) ListByGuru(ctx context.Context, guruID, limit, offset int) ([]model.Exam, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exams WHERE guru_id = $1`, guruID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams
		 WHERE guru_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`, guruID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		exam, err := scanExam(rows)
		if err != nil {
			return nil, 0, err
		}
		exams = append(exams, *exam)
	}
	return exams, total, rows.Err()
}

// Delete removes an exam and, via FK cascade, its sessions.
func (r *ExamRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM exams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete exam: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExamNotFound
	}
	return nil
}

func scanExam(row rowScanner) (*model.Exam, error) {
	e := &model.Exam{}
	var keyJSON []byte
	err := row.Scan(&e.ID, &e.Code, &e.Title, &e.Kelas, &e.GuruID,
		&e.TotalQuestions, &e.DurationMinutes, &e.ChoiceSet,
		&keyJSON, &e.PaperPath, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, err
	}
	if len(keyJSON) > 0 {
		if err := json.Unmarshal(keyJSON, &e.AnswerKey); err != nil {
			return nil, fmt.Errorf("unmarshal answer key: %w", err)
		}
	}
	return e, nil
}
