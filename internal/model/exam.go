package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AnswerKey maps question number (1..TotalQuestions) to the correct choice.
// It is authored externally (CSV/XLSX upload) and immutable once complete.
type AnswerKey map[int]string

// Complete reports whether the key covers every question from 1 to total.
func (k AnswerKey) Complete(total int) bool {
	if len(k) < total {
		return false
	}
	for i := 1; i <= total; i++ {
		if k[i] == "" {
			return false
		}
	}
	return true
}

// Exam represents one exam instance authored by a guru.
type Exam struct {
	ID              uuid.UUID `json:"id"`
	Code            string    `json:"code"`
	Title           string    `json:"title"`
	Kelas           string    `json:"kelas"`
	GuruID          int       `json:"guru_id"`
	TotalQuestions  int       `json:"total_questions"`
	DurationMinutes int       `json:"duration_minutes"`
	ChoiceSet       string    `json:"choice_set"`
	AnswerKey       AnswerKey `json:"-"`
	PaperPath       *string   `json:"paper_path,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Duration returns the exam duration as a time.Duration.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// Graded reports whether the answer key is fully populated.
func (e *Exam) Graded() bool {
	return e.AnswerKey.Complete(e.TotalQuestions)
}

// ChoiceAllowed reports whether a single-character choice belongs to the
// exam's choice set. Comparison is case-insensitive.
func (e *Exam) ChoiceAllowed(choice string) bool {
	choice = strings.ToUpper(strings.TrimSpace(choice))
	if len(choice) != 1 {
		return false
	}
	return strings.Contains(strings.ToUpper(e.ChoiceSet), choice)
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	Code            string `json:"code" binding:"required,alphanum,min=4,max=20"`
	Title           string `json:"title" binding:"required,min=3,max=255"`
	Kelas           string `json:"kelas" binding:"required,min=1,max=50"`
	TotalQuestions  int    `json:"total_questions" binding:"required,min=1,max=200"`
	DurationMinutes int    `json:"duration_minutes" binding:"required,min=1,max=480"`
	ChoiceSet       string `json:"choice_set" binding:"required,oneof=ABCD ABCDE"`
}

// UpdateExamRequest is the payload for updating an existing exam.
type UpdateExamRequest struct {
	Title           string `json:"title" binding:"omitempty,min=3,max=255"`
	Kelas           string `json:"kelas" binding:"omitempty,min=1,max=50"`
	TotalQuestions  int    `json:"total_questions" binding:"omitempty,min=1,max=200"`
	DurationMinutes int    `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
	ChoiceSet       string `json:"choice_set" binding:"omitempty,oneof=ABCD ABCDE"`
}

// ExamSummary is the student-facing view of an exam. It never carries the
// answer key.
type ExamSummary struct {
	ID              uuid.UUID `json:"id"`
	Code            string    `json:"code"`
	Title           string    `json:"title"`
	Kelas           string    `json:"kelas"`
	TotalQuestions  int       `json:"total_questions"`
	DurationMinutes int       `json:"duration_minutes"`
	ChoiceSet       string    `json:"choice_set"`
}

// Summary strips the exam down to the fields a student may see.
func (e *Exam) Summary() ExamSummary {
	return ExamSummary{
		ID:              e.ID,
		Code:            e.Code,
		Title:           e.Title,
		Kelas:           e.Kelas,
		TotalQuestions:  e.TotalQuestions,
		DurationMinutes: e.DurationMinutes,
		ChoiceSet:       e.ChoiceSet,
	}
}
