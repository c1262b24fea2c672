package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ujianku/ujianku-backend/internal/grading"
	"github.com/ujianku/ujianku-backend/internal/model"
)

// GradeFunc computes the grade for a session being finalized. The store
// calls it exactly once, inside the critical section that flips the session
// to terminal, so concurrent submits can never score twice.
type GradeFunc func(startedAt, submittedAt time.Time) grading.Grade

// ExamResult combines roster data with one student's session outcome.
type ExamResult struct {
	StudentID    int        `json:"student_id"`
	Name         string     `json:"name"`
	NISN         string     `json:"nisn"`
	Kelas        string     `json:"kelas"`
	StartedAt    time.Time  `json:"started_at"`
	SubmittedAt  *time.Time `json:"submitted_at,omitempty"`
	ScorePercent *int       `json:"score_percent,omitempty"`
}

// ExamSessionRepository is the PostgreSQL-backed session store. The unique
// constraint on (exam_id, student_id) is the concurrency anchor: create is
// an INSERT ... ON CONFLICT DO NOTHING and finalize runs under a row lock.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

// Get retrieves the session for an (exam, student) pair.
func (r *ExamSessionRepository) Get(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT id, exam_id, student_id, started_at, submitted_at, answers, correct_count, incorrect_count, score_percent
		 FROM exam_sessions
		 WHERE exam_id = $1 AND student_id = $2`, examID, studentID,
	))
}

// GetOrCreate returns the pair's session, creating an open one with
// started_at = now() if none exists. Safe under concurrent callers for the
// same pair: exactly one row is ever created.
func (r *ExamSessionRepository) GetOrCreate(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, bool, error) {
	s := &model.ExamSession{ExamID: examID, StudentID: studentID}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO exam_sessions (exam_id, student_id, answers)
		 VALUES ($1, $2, '{}'::jsonb)
		 ON CONFLICT (exam_id, student_id) DO NOTHING
		 RETURNING id, started_at`,
		examID, studentID,
	).Scan(&s.ID, &s.StartedAt)
	if err == nil {
		s.Answers = model.AnswerSheet{}
		return s, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("insert session: %w", err)
	}

	// Conflict: another caller created the row first (or it already
	// existed). Fetch it — the start timestamp stays untouched.
	existing, err := r.Get(ctx, examID, studentID)
	if err != nil {
		return nil, false, fmt.Errorf("fetch after conflict: %w", err)
	}
	return existing, false, nil
}

// Finalize flips the session to terminal exactly once. The winning caller's
// answers are graded (via grade, invoked under the row lock) and stored; a
// caller that finds the session already terminal gets the stored session
// back with won=false and its own answers ignored.
func (r *ExamSessionRepository) Finalize(ctx context.Context, examID uuid.UUID, studentID int, answers model.AnswerSheet, grade GradeFunc) (*model.ExamSession, bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	s, err := scanSession(tx.QueryRow(ctx,
		`SELECT id, exam_id, student_id, started_at, submitted_at, answers, correct_count, incorrect_count, score_percent
		 FROM exam_sessions
		 WHERE exam_id = $1 AND student_id = $2
		 FOR UPDATE`, examID, studentID,
	))
	if err != nil {
		return nil, false, err
	}

	if s.Finished() {
		// Race loser: the stored result is authoritative.
		return s, false, nil
	}

	submittedAt := time.Now()
	g := grade(s.StartedAt, submittedAt)

	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return nil, false, fmt.Errorf("marshal answers: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE exam_sessions
		 SET submitted_at = $1, answers = $2, correct_count = $3, incorrect_count = $4, score_percent = $5
		 WHERE id = $6`,
		submittedAt, answersJSON, g.Correct, g.Incorrect, g.Percent, s.ID)
	if err != nil {
		return nil, false, fmt.Errorf("finalize session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit finalize: %w", err)
	}

	s.SubmittedAt = &submittedAt
	s.Answers = answers
	s.CorrectCount = g.Correct
	s.IncorrectCount = g.Incorrect
	s.ScorePercent = g.Percent
	return s, true, nil
}

// ListOverdue returns open sessions whose deadline (started_at + duration)
// passed before cutoff. Used by the deadline worker as a Postgres fallback
// when the Redis deadline queue has gaps.
func (r *ExamSessionRepository) ListOverdue(ctx context.Context, cutoff time.Time) ([]model.ExamSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.exam_id, s.student_id, s.started_at, s.submitted_at, s.answers, s.correct_count, s.incorrect_count, s.score_percent
		 FROM exam_sessions s
		 JOIN exams e ON e.id = s.exam_id
		 WHERE s.submitted_at IS NULL
		   AND s.started_at + make_interval(mins => e.duration_minutes) < $1`, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("query overdue: %w", err)
	}
	defer rows.Close()

	var sessions []model.ExamSession
	for rows.Next() {
		s, err := scanSessionRow(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// ListByExam retrieves roster-joined results for an exam, optionally
// filtered by kelas, with pagination.
func (r *ExamSessionRepository) ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int, kelas *string) ([]ExamResult, int64, error) {
	offset := (page - 1) * perPage

	baseQuery := `
		FROM exam_sessions es
		JOIN students s ON es.student_id = s.id
		WHERE es.exam_id = $1
	`
	args := []any{examID}

	if kelas != nil && *kelas != "" {
		args = append(args, *kelas)
		baseQuery += fmt.Sprintf(" AND LOWER(s.kelas) = LOWER($%d)", len(args))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) "+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT s.id, s.name, s.nisn, s.kelas,
		       es.started_at, es.submitted_at,
		       CASE WHEN es.submitted_at IS NULL THEN NULL ELSE es.score_percent END
		` + baseQuery + `
		ORDER BY s.kelas ASC, s.name ASC
		LIMIT $` + fmt.Sprintf("%d", len(args)+1) + ` OFFSET $` + fmt.Sprintf("%d", len(args)+2)
	args = append(args, perPage, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []ExamResult
	for rows.Next() {
		var res ExamResult
		if err := rows.Scan(
			&res.StudentID, &res.Name, &res.NISN, &res.Kelas,
			&res.StartedAt, &res.SubmittedAt, &res.ScorePercent,
		); err != nil {
			return nil, 0, err
		}
		results = append(results, res)
	}

	return results, total, rows.Err()
}

// DeleteByExam removes sessions for an exam, optionally restricted to one
// kelas, and returns the affected student IDs so callers can evict the
// per-session cache state. This is the administrative purge used when a
// guru resets an exam; it lives outside the scored-session contract.
func (r *ExamSessionRepository) DeleteByExam(ctx context.Context, examID uuid.UUID, kelas *string) ([]int, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if kelas != nil {
		rows, err = r.pool.Query(ctx,
			`DELETE FROM exam_sessions es
			 USING students st
			 WHERE es.exam_id = $1 AND st.id = es.student_id AND LOWER(st.kelas) = LOWER($2)
			 RETURNING es.student_id`,
			examID, *kelas)
	} else {
		rows, err = r.pool.Query(ctx,
			`DELETE FROM exam_sessions WHERE exam_id = $1 RETURNING student_id`, examID)
	}
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int])
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.ExamSession, error) {
	return scanSessionRow(row)
}

func scanSessionRow(row rowScanner) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	var answersJSON []byte
	err := row.Scan(&s.ID, &s.ExamID, &s.StudentID, &s.StartedAt, &s.SubmittedAt,
		&answersJSON, &s.CorrectCount, &s.IncorrectCount, &s.ScorePercent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if len(answersJSON) > 0 {
		if err := json.Unmarshal(answersJSON, &s.Answers); err != nil {
			return nil, fmt.Errorf("unmarshal answers: %w", err)
		}
	}
	return s, nil
}

// isUniqueViolation reports whether err is a unique-constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
