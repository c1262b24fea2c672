package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/ujianku/ujianku-backend/internal/model"
	"github.com/ujianku/ujianku-backend/internal/repository"
	"github.com/xuri/excelize/v2"
)

var (
	ErrKelasMismatch     = errors.New("student kelas does not match the exam")
	ErrInvalidRosterFile = errors.New("roster file is invalid")
)

// StudentService manages per-guru student rosters and resolves students
// during exam login.
type StudentService struct {
	students *repository.StudentRepository
	logger   zerolog.Logger
}

// NewStudentService creates a StudentService.
func NewStudentService(students *repository.StudentRepository, logger zerolog.Logger) *StudentService {
	return &StudentService{
		students: students,
		logger:   logger.With().Str("component", "student_service").Logger(),
	}
}

// ResolveForExam finds the student by NISN on the exam owner's roster and
// checks the kelas match. The comparison is case-insensitive; a student
// registered as "XII IPA 1" may sit an exam targeting "xii ipa 1".
func (s *StudentService) ResolveForExam(ctx context.Context, nisn string, exam *model.Exam) (*model.Student, error) {
	student, err := s.students.GetByNISNAndGuru(ctx, strings.TrimSpace(nisn), exam.GuruID)
	if err != nil {
		return nil, fmt.Errorf("lookup student: %w", err)
	}
	if !strings.EqualFold(strings.TrimSpace(student.Kelas), strings.TrimSpace(exam.Kelas)) {
		return nil, ErrKelasMismatch
	}
	return student, nil
}

// Profile returns a student by ID without an ownership check. Used for the
// authenticated student's own profile.
func (s *StudentService) Profile(ctx context.Context, id int) (*model.Student, error) {
	student, err := s.students.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load student: %w", err)
	}
	return student, nil
}

// Get returns one student from the guru's roster.
func (s *StudentService) Get(ctx context.Context, id, guruID int) (*model.Student, error) {
	student, err := s.students.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load student: %w", err)
	}
	if student.GuruID != guruID {
		return nil, repository.ErrStudentNotFound
	}
	return student, nil
}

// Create adds a single student to the roster.
func (s *StudentService) Create(ctx context.Context, guruID int, req *model.CreateStudentRequest) (*model.Student, error) {
	student := &model.Student{
		NISN:   strings.TrimSpace(req.NISN),
		Name:   strings.TrimSpace(req.Name),
		Kelas:  strings.TrimSpace(req.Kelas),
		GuruID: guruID,
	}
	if err := s.students.Create(ctx, student); err != nil {
		return nil, fmt.Errorf("create student: %w", err)
	}
	return student, nil
}

// List returns the guru's roster, optionally filtered by kelas.
func (s *StudentService) List(ctx context.Context, guruID int, kelas *string, page, perPage int) ([]model.Student, int, error) {
	offset := (page - 1) * perPage
	students, total, err := s.students.ListByGuru(ctx, guruID, kelas, perPage, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}
	return students, total, nil
}

// Delete removes a student from the guru's roster.
func (s *StudentService) Delete(ctx context.Context, id, guruID int) error {
	if err := s.students.Delete(ctx, id, guruID); err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return nil
}

// ImportRoster bulk-loads students from an uploaded CSV or XLSX file with
// columns nisn, name, kelas. Existing students (same guru and NISN) are
// updated in place. Rows that fail validation are skipped and reported, not
// fatal.
func (s *StudentService) ImportRoster(ctx context.Context, guruID int, filename string, file multipart.File) (*model.RosterUploadResult, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read roster file: %w", err)
	}

	var rows [][]string
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		rows, err = readCSVRows(bytes.NewReader(data))
	case ".xlsx":
		rows, err = readXLSXRows(data)
	default:
		return nil, fmt.Errorf("%w: unsupported extension %q", ErrInvalidRosterFile, filepath.Ext(filename))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRosterFile, err)
	}

	result := &model.RosterUploadResult{}
	for i, row := range rows {
		if i == 0 && looksLikeHeader(row) {
			continue
		}
		if len(row) < 3 {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: expected 3 columns", i+1))
			continue
		}

		nisn := strings.TrimSpace(row[0])
		name := strings.TrimSpace(row[1])
		kelas := strings.TrimSpace(row[2])
		if nisn == "" || name == "" || kelas == "" {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: empty field", i+1))
			continue
		}

		_, err := s.students.Upsert(ctx, &model.Student{
			NISN:   nisn,
			Name:   name,
			Kelas:  kelas,
			GuruID: guruID,
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("nisn", nisn).Msg("roster row upsert failed")
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		result.Imported++
	}
	return result, nil
}

func readCSVRows(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return reader.ReadAll()
}

func readXLSXRows(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

func looksLikeHeader(row []string) bool {
	if len(row) == 0 {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(row[0]))
	return first == "nisn" || first == "no" || first == "nomor"
}
