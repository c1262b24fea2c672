package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/ujianku/ujianku-backend/internal/config"
	"github.com/ujianku/ujianku-backend/internal/grading"
	"github.com/ujianku/ujianku-backend/internal/model"
	"github.com/ujianku/ujianku-backend/internal/repository"
)

var (
	ErrNotExamOwner   = errors.New("exam belongs to another guru")
	ErrInvalidKeyFile = errors.New("answer key file is invalid")
	ErrInvalidPaper   = errors.New("exam paper must be a PDF file")
)

// ExamService handles guru-side exam management: CRUD, answer key upload,
// paper upload, and the Redis metadata mirror students read on the hot path.
type ExamService struct {
	cfg      *config.Config
	exams    *repository.ExamRepository
	sessions *repository.ExamSessionRepository
	cache    SessionCache
	logger   zerolog.Logger
}

// NewExamService creates an ExamService.
func NewExamService(cfg *config.Config, exams *repository.ExamRepository, sessions *repository.ExamSessionRepository, cache SessionCache, logger zerolog.Logger) *ExamService {
	return &ExamService{
		cfg:      cfg,
		exams:    exams,
		sessions: sessions,
		cache:    cache,
		logger:   logger.With().Str("component", "exam_service").Logger(),
	}
}

// Create registers a new exam owned by the guru.
func (s *ExamService) Create(ctx context.Context, guruID int, req *model.CreateExamRequest) (*model.Exam, error) {
	exam := &model.Exam{
		Code:            strings.ToUpper(strings.TrimSpace(req.Code)),
		Title:           strings.TrimSpace(req.Title),
		Kelas:           strings.TrimSpace(req.Kelas),
		GuruID:          guruID,
		TotalQuestions:  req.TotalQuestions,
		DurationMinutes: req.DurationMinutes,
		ChoiceSet:       req.ChoiceSet,
		AnswerKey:       model.AnswerKey{},
	}
	if err := s.exams.Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}
	s.warmCache(ctx, exam)
	return exam, nil
}

// Get returns an exam after verifying ownership.
func (s *ExamService) Get(ctx context.Context, examID uuid.UUID, guruID int) (*model.Exam, error) {
	return s.owned(ctx, examID, guruID)
}

// GetByCode looks up an exam by its join code. Used by student login.
func (s *ExamService) GetByCode(ctx context.Context, code string) (*model.Exam, error) {
	exam, err := s.exams.GetByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, fmt.Errorf("lookup exam by code: %w", err)
	}
	return exam, nil
}

// GetByID looks up an exam by ID without an ownership check. It satisfies
// the ExamProvider interface consumed by the session service and worker.
func (s *ExamService) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return s.exams.GetByID(ctx, id)
}

// List returns the guru's exams, newest first.
func (s *ExamService) List(ctx context.Context, guruID, page, perPage int) ([]model.Exam, int, error) {
	offset := (page - 1) * perPage
	exams, total, err := s.exams.ListByGuru(ctx, guruID, perPage, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list exams: %w", err)
	}
	return exams, total, nil
}

// Update applies partial changes to an exam. Changing the question count
// invalidates any previously uploaded answer key.
func (s *ExamService) Update(ctx context.Context, examID uuid.UUID, guruID int, req *model.UpdateExamRequest) (*model.Exam, error) {
	exam, err := s.owned(ctx, examID, guruID)
	if err != nil {
		return nil, err
	}

	if req.Title != "" {
		exam.Title = strings.TrimSpace(req.Title)
	}
	if req.Kelas != "" {
		exam.Kelas = strings.TrimSpace(req.Kelas)
	}
	if req.DurationMinutes != 0 {
		exam.DurationMinutes = req.DurationMinutes
	}
	if req.TotalQuestions != 0 && req.TotalQuestions != exam.TotalQuestions {
		exam.TotalQuestions = req.TotalQuestions
		exam.AnswerKey = model.AnswerKey{}
	}
	if req.ChoiceSet != "" && req.ChoiceSet != exam.ChoiceSet {
		exam.ChoiceSet = req.ChoiceSet
		exam.AnswerKey = model.AnswerKey{}
	}

	if err := s.exams.Update(ctx, exam); err != nil {
		return nil, fmt.Errorf("update exam: %w", err)
	}
	if len(exam.AnswerKey) == 0 {
		if err := s.exams.SetAnswerKey(ctx, exam.ID, exam.AnswerKey); err != nil {
			return nil, fmt.Errorf("clear answer key: %w", err)
		}
	}
	s.warmCache(ctx, exam)
	return exam, nil
}

// Delete removes an exam and all of its sessions.
func (s *ExamService) Delete(ctx context.Context, examID uuid.UUID, guruID int) error {
	exam, err := s.owned(ctx, examID, guruID)
	if err != nil {
		return err
	}
	students, err := s.sessions.DeleteByExam(ctx, exam.ID, nil)
	if err != nil {
		return fmt.Errorf("delete exam sessions: %w", err)
	}
	if err := s.exams.Delete(ctx, exam.ID); err != nil {
		return fmt.Errorf("delete exam: %w", err)
	}
	s.dropSessionState(ctx, exam.ID, students)
	s.dropCache(ctx, exam.ID)
	return nil
}

// UploadAnswerKey parses and stores the answer key from an uploaded CSV or
// XLSX file. The whole file is rejected on the first invalid row.
func (s *ExamService) UploadAnswerKey(ctx context.Context, examID uuid.UUID, guruID int, filename string, file multipart.File) (model.AnswerKey, error) {
	exam, err := s.owned(ctx, examID, guruID)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return nil, fmt.Errorf("%w: file too large", ErrInvalidKeyFile)
	}

	var key model.AnswerKey
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		key, err = grading.ParseAnswerKeyCSV(bytes.NewReader(data), exam.TotalQuestions, exam.ChoiceSet)
	case ".xlsx":
		key, err = grading.ParseAnswerKeyXLSX(data, exam.TotalQuestions, exam.ChoiceSet)
	default:
		return nil, fmt.Errorf("%w: unsupported extension %q", ErrInvalidKeyFile, filepath.Ext(filename))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyFile, err)
	}

	if err := s.exams.SetAnswerKey(ctx, exam.ID, key); err != nil {
		return nil, fmt.Errorf("store answer key: %w", err)
	}
	exam.AnswerKey = key
	s.warmCache(ctx, exam)
	return key, nil
}

// UploadPaper stores the exam paper PDF under the upload directory.
func (s *ExamService) UploadPaper(ctx context.Context, examID uuid.UUID, guruID int, filename string, file multipart.File) (string, error) {
	exam, err := s.owned(ctx, examID, guruID)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return "", ErrInvalidPaper
	}

	dir := filepath.Join(s.cfg.UploadDir, "papers")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	path := filepath.Join(dir, exam.ID.String()+".pdf")
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create paper file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, io.LimitReader(file, s.cfg.MaxUploadBytes)); err != nil {
		return "", fmt.Errorf("write paper file: %w", err)
	}
	if err := s.exams.SetPaperPath(ctx, exam.ID, path); err != nil {
		return "", fmt.Errorf("store paper path: %w", err)
	}
	return path, nil
}

// PaperPath returns the stored paper location for a student's exam.
func (s *ExamService) PaperPath(ctx context.Context, examID uuid.UUID) (string, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return "", fmt.Errorf("load exam: %w", err)
	}
	if exam.PaperPath == nil || *exam.PaperPath == "" {
		return "", repository.ErrExamNotFound
	}
	return *exam.PaperPath, nil
}

// Results lists finalized and in-flight sessions for one exam, optionally
// filtered by kelas.
func (s *ExamService) Results(ctx context.Context, examID uuid.UUID, guruID, page, perPage int, kelas *string) ([]repository.ExamResult, int64, error) {
	if _, err := s.owned(ctx, examID, guruID); err != nil {
		return nil, 0, err
	}
	results, total, err := s.sessions.ListByExam(ctx, examID, page, perPage, kelas)
	if err != nil {
		return nil, 0, fmt.Errorf("list results: %w", err)
	}
	return results, total, nil
}

// PurgeResults deletes sessions of an exam so it can be retaken. A non-nil
// kelas restricts the purge to students of that kelas.
func (s *ExamService) PurgeResults(ctx context.Context, examID uuid.UUID, guruID int, kelas *string) (int64, error) {
	if _, err := s.owned(ctx, examID, guruID); err != nil {
		return 0, err
	}
	students, err := s.sessions.DeleteByExam(ctx, examID, kelas)
	if err != nil {
		return 0, fmt.Errorf("purge results: %w", err)
	}
	s.dropSessionState(ctx, examID, students)
	return int64(len(students)), nil
}

func (s *ExamService) owned(ctx context.Context, examID uuid.UUID, guruID int) (*model.Exam, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("load exam: %w", err)
	}
	if exam.GuruID != guruID {
		return nil, ErrNotExamOwner
	}
	return exam, nil
}

// warmCache mirrors exam metadata into Redis so the student hot path can
// read duration, question count, choice set, and the answer key without
// touching PostgreSQL.
func (s *ExamService) warmCache(ctx context.Context, exam *model.Exam) {
	if err := s.cache.SetExamMeta(ctx, exam); err != nil {
		s.logger.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("failed to warm exam cache")
	}
}

func (s *ExamService) dropCache(ctx context.Context, examID uuid.UUID) {
	if err := s.cache.DropExamMeta(ctx, examID); err != nil {
		s.logger.Warn().Err(err).Str("exam_id", examID.String()).Msg("failed to drop exam cache")
	}
}

// dropSessionState evicts the cached per-session keys and deadline entries
// of purged students, so the worker can never resurrect a deleted attempt
// from a stale queue entry.
func (s *ExamService) dropSessionState(ctx context.Context, examID uuid.UUID, studentIDs []int) {
	for _, studentID := range studentIDs {
		if err := s.cache.DropSession(ctx, examID, studentID); err != nil {
			s.logger.Warn().Err(err).
				Str("exam_id", examID.String()).
				Int("student_id", studentID).
				Msg("failed to drop session cache state")
		}
	}
}
