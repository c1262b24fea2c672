package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/ujianku/ujianku-backend/internal/grading"
	"github.com/ujianku/ujianku-backend/internal/model"
	"github.com/ujianku/ujianku-backend/internal/repository"
)

var (
	ErrExamNotGraded    = errors.New("exam has no complete answer key")
	ErrDeadlineExceeded = errors.New("submission arrived after the deadline")
	ErrSessionNotOpen   = errors.New("no open session for this exam")
)

// AlreadyCompletedError is returned when a student starts or autosaves
// against a session that has already been finalized. It carries the stored
// result so callers can show the score instead of a bare rejection.
// Submit never returns it; repeat submits succeed with the stored result.
type AlreadyCompletedError struct {
	Result model.ScoreResult
}

func (e *AlreadyCompletedError) Error() string {
	return "exam session already completed"
}

// AnswerValidationError carries per-question validation failures for a
// rejected answer sheet.
type AnswerValidationError struct {
	Fields map[string]string
}

func (e *AnswerValidationError) Error() string {
	return fmt.Sprintf("invalid answers for %d question(s)", len(e.Fields))
}

// SessionStore persists exam sessions. The PostgreSQL implementation lives
// in repository; an in-memory one backs tests and single-node deployments.
type SessionStore interface {
	Get(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error)
	GetOrCreate(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, bool, error)
	Finalize(ctx context.Context, examID uuid.UUID, studentID int, answers model.AnswerSheet, grade repository.GradeFunc) (*model.ExamSession, bool, error)
}

// ExamProvider is the slice of the exam repository the session service needs.
type ExamProvider interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
}

// DeadlinePolicy controls how submissions past the deadline are treated.
// With RejectLate false (the default) a late submit is still accepted and
// graded; the deadline worker closes abandoned sessions either way.
type DeadlinePolicy struct {
	RejectLate bool
	Grace      time.Duration
}

// monitorEvent is the payload published to the per-exam monitor channel
// whenever a session is finalized.
type monitorEvent struct {
	Event        string    `json:"event"`
	ExamID       string    `json:"exam_id"`
	StudentID    int       `json:"student_id"`
	ScorePercent int       `json:"score_percent"`
	ByTimeout    bool      `json:"by_timeout"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// ExamSessionService implements the session lifecycle: start, status,
// autosave, submit, and the timeout finalization used by the worker.
type ExamSessionService struct {
	store  SessionStore
	exams  ExamProvider
	cache  SessionCache
	policy DeadlinePolicy
	logger zerolog.Logger
}

// NewExamSessionService creates an ExamSessionService.
func NewExamSessionService(store SessionStore, exams ExamProvider, cache SessionCache, policy DeadlinePolicy, logger zerolog.Logger) *ExamSessionService {
	return &ExamSessionService{
		store:  store,
		exams:  exams,
		cache:  cache,
		policy: policy,
		logger: logger.With().Str("component", "exam_session_service").Logger(),
	}
}

// loadExam reads the exam's grading metadata from the Redis mirror,
// falling back to PostgreSQL and re-warming the mirror on a miss.
func (s *ExamSessionService) loadExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	exam, ok, err := s.cache.GetExamMeta(ctx, examID)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read cached exam meta")
	}
	if ok {
		return exam, nil
	}

	exam, err = s.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("load exam: %w", err)
	}
	if err := s.cache.SetExamMeta(ctx, exam); err != nil {
		s.logger.Warn().Err(err).Msg("failed to warm exam meta cache")
	}
	return exam, nil
}

// Start opens a session for the student, or resumes the existing one. The
// start timestamp is assigned server-side exactly once; every later call
// returns the original timestamp with Resumed set.
func (s *ExamSessionService) Start(ctx context.Context, examID uuid.UUID, studentID int) (*model.StartResult, error) {
	exam, err := s.loadExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	sess, created, err := s.store.GetOrCreate(ctx, examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	if sess.Finished() {
		return nil, &AlreadyCompletedError{Result: sess.Result(exam.TotalQuestions)}
	}

	if err := s.cache.SetStart(ctx, examID, studentID, sess.StartedAt); err != nil {
		s.logger.Warn().Err(err).Msg("failed to cache session start time")
	}
	deadline := grading.Deadline(sess.StartedAt, exam.Duration())
	if err := s.cache.QueueDeadline(ctx, examID, studentID, deadline); err != nil {
		s.logger.Warn().Err(err).Msg("failed to queue session deadline")
	}

	return &model.StartResult{
		SessionID:        sess.ID,
		StartedAt:        sess.StartedAt,
		Resumed:          !created,
		RemainingSeconds: int64(grading.Remaining(sess.StartedAt, exam.Duration(), time.Now()) / time.Second),
	}, nil
}

// Status reports the session state without mutating anything. For open
// sessions it also returns the autosaved answers so a reloaded client can
// restore its sheet.
func (s *ExamSessionService) Status(ctx context.Context, examID uuid.UUID, studentID int) (*model.SessionView, error) {
	exam, err := s.loadExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	sess, err := s.store.Get(ctx, examID, studentID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return &model.SessionView{Status: model.SessionNotStarted}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	if sess.Finished() {
		result := sess.Result(exam.TotalQuestions)
		return &model.SessionView{
			Status:    model.SessionCompleted,
			StartedAt: &sess.StartedAt,
			Result:    &result,
		}, nil
	}

	// Serve the remaining time from the cached start, self-healing the
	// hot-path cache for sessions started before a Redis flush or on
	// another node.
	startedAt := sess.StartedAt
	if cached, ok, err := s.cache.GetStart(ctx, examID, studentID); err == nil && ok {
		startedAt = cached
	} else {
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to read cached session start time")
		}
		if err := s.cache.SetStart(ctx, examID, studentID, sess.StartedAt); err != nil {
			s.logger.Warn().Err(err).Msg("failed to re-cache session start time")
		}
	}

	answers, err := s.cache.GetAnswers(ctx, examID, studentID)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to load autosaved answers")
		answers = model.AnswerSheet{}
	}

	remaining := int64(grading.Remaining(startedAt, exam.Duration(), time.Now()) / time.Second)
	return &model.SessionView{
		Status:           model.SessionInProgress,
		StartedAt:        &sess.StartedAt,
		RemainingSeconds: &remaining,
		Answers:          answers,
	}, nil
}

// Autosave records a single answer for an open session. It never grades.
func (s *ExamSessionService) Autosave(ctx context.Context, examID uuid.UUID, studentID, question int, answer string) error {
	exam, err := s.loadExam(ctx, examID)
	if err != nil {
		return err
	}

	sess, err := s.store.Get(ctx, examID, studentID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return ErrSessionNotOpen
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess.Finished() {
		return &AlreadyCompletedError{Result: sess.Result(exam.TotalQuestions)}
	}

	if fields := grading.ValidateAnswers(model.AnswerSheet{question: answer}, exam.TotalQuestions, exam.ChoiceSet); fields != nil {
		return &AnswerValidationError{Fields: fields}
	}

	if err := s.cache.SaveAnswer(ctx, examID, studentID, question, answer); err != nil {
		return fmt.Errorf("autosave answer: %w", err)
	}
	return nil
}

// Submit grades and finalizes the session. Submitting without an explicit
// start opens the session transparently and flags the result as recovered.
// Finalization happens at most once; concurrent and repeat submissions all
// observe the single stored result.
func (s *ExamSessionService) Submit(ctx context.Context, examID uuid.UUID, studentID int, answers model.AnswerSheet) (*model.ScoreResult, error) {
	return s.submit(ctx, examID, studentID, answers, true, false)
}

// FinalizeExpired closes an overdue session using its autosaved answers.
// Called by the deadline worker, never by students directly.
func (s *ExamSessionService) FinalizeExpired(ctx context.Context, examID uuid.UUID, studentID int) error {
	answers, err := s.cache.GetAnswers(ctx, examID, studentID)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to load autosaved answers for timeout finalize")
		answers = model.AnswerSheet{}
	}

	_, err = s.submit(ctx, examID, studentID, answers, false, true)
	return err
}

func (s *ExamSessionService) submit(ctx context.Context, examID uuid.UUID, studentID int, answers model.AnswerSheet, enforceDeadline, byTimeout bool) (*model.ScoreResult, error) {
	exam, err := s.loadExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !exam.Graded() {
		return nil, ErrExamNotGraded
	}

	if fields := grading.ValidateAnswers(answers, exam.TotalQuestions, exam.ChoiceSet); fields != nil {
		return nil, &AnswerValidationError{Fields: fields}
	}
	normalized := grading.NormalizeAnswers(answers)

	recovered := false
	sess, err := s.store.Get(ctx, examID, studentID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		if byTimeout {
			// The worker only closes sessions that exist. A missing row
			// means the attempt was purged and the queue entry is stale.
			return nil, err
		}
		// A submission without a prior start still counts. Open the
		// session now so the attempt is recorded.
		var created bool
		sess, created, err = s.store.GetOrCreate(ctx, examID, studentID)
		recovered = created
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	if sess.Finished() {
		// Repeat submit. The first finalization stands; report its result
		// as a plain success so client retries are harmless.
		result := sess.Result(exam.TotalQuestions)
		return &result, nil
	}

	if enforceDeadline && s.policy.RejectLate &&
		grading.Expired(sess.StartedAt, exam.Duration(), s.policy.Grace, time.Now()) {
		return nil, ErrDeadlineExceeded
	}

	final, won, err := s.store.Finalize(ctx, examID, studentID, normalized, func(startedAt, submittedAt time.Time) grading.Grade {
		return grading.Score(normalized, exam.AnswerKey, exam.TotalQuestions)
	})
	if err != nil {
		return nil, fmt.Errorf("finalize session: %w", err)
	}

	result := final.Result(exam.TotalQuestions)
	if !won {
		// Lost the race against a concurrent submit. The stored result
		// stands; report it as the idempotent outcome.
		return &result, nil
	}
	result.Recovered = recovered

	if err := s.cache.DropSession(ctx, examID, studentID); err != nil {
		s.logger.Warn().Err(err).Msg("failed to clear session cache state")
	}
	s.publishFinalized(ctx, examID, studentID, final, result.ScorePercent, byTimeout)

	return &result, nil
}

func (s *ExamSessionService) publishFinalized(ctx context.Context, examID uuid.UUID, studentID int, sess *model.ExamSession, score int, byTimeout bool) {
	submittedAt := time.Now()
	if sess.SubmittedAt != nil {
		submittedAt = *sess.SubmittedAt
	}
	payload, err := json.Marshal(monitorEvent{
		Event:        "session_finalized",
		ExamID:       examID.String(),
		StudentID:    studentID,
		ScorePercent: score,
		ByTimeout:    byTimeout,
		SubmittedAt:  submittedAt,
	})
	if err != nil {
		return
	}
	if err := s.cache.PublishResult(ctx, examID, payload); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish monitor event")
	}
}
