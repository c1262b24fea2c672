package model

import (
	"time"

	"github.com/google/uuid"
)

// AnswerSheet maps question number to the student's chosen answer.
// JSON form uses string keys ({"1":"A","2":"D"}), matching the wire format
// clients send on submit.
type AnswerSheet map[int]string

// SessionStatus enumerates the observable states of a session lookup.
type SessionStatus string

const (
	SessionNotStarted SessionStatus = "NOT_STARTED"
	SessionInProgress SessionStatus = "IN_PROGRESS"
	SessionCompleted  SessionStatus = "COMPLETED"
)

// ExamSession is the record of one student's one attempt at one exam.
// At most one session exists per (exam, student) pair, ever. SubmittedAt is
// set at most once; once non-nil the session is terminal and the answers and
// score fields never change again.
type ExamSession struct {
	ID             uuid.UUID   `json:"id"`
	ExamID         uuid.UUID   `json:"exam_id"`
	StudentID      int         `json:"student_id"`
	StartedAt      time.Time   `json:"started_at"`
	SubmittedAt    *time.Time  `json:"submitted_at,omitempty"`
	Answers        AnswerSheet `json:"answers,omitempty"`
	CorrectCount   int         `json:"correct_count"`
	IncorrectCount int         `json:"incorrect_count"`
	ScorePercent   int         `json:"score_percent"`
}

// Finished reports whether the session is terminal.
func (s *ExamSession) Finished() bool {
	return s.SubmittedAt != nil
}

// Result builds the ScoreResult view of a finished session.
func (s *ExamSession) Result(totalQuestions int) ScoreResult {
	return ScoreResult{
		CorrectCount:   s.CorrectCount,
		IncorrectCount: s.IncorrectCount,
		ScorePercent:   s.ScorePercent,
		TotalQuestions: totalQuestions,
	}
}

// ScoreResult is the final outcome of a submitted session.
type ScoreResult struct {
	CorrectCount   int  `json:"correct_count"`
	IncorrectCount int  `json:"incorrect_count"`
	ScorePercent   int  `json:"score_percent"`
	TotalQuestions int  `json:"total_questions"`
	// Recovered marks a submit that had to create its session on the fly
	// because no start was ever recorded for the pair.
	Recovered bool `json:"recovered,omitempty"`
}

// StartResult is returned by the start operation.
type StartResult struct {
	SessionID        uuid.UUID `json:"session_id"`
	StartedAt        time.Time `json:"started_at"`
	Resumed          bool      `json:"resumed"`
	RemainingSeconds int64     `json:"remaining_seconds"`
}

// SessionView is the read-only status report for a (student, exam) pair.
// Exactly one of the optional blocks is populated depending on Status.
type SessionView struct {
	Status           SessionStatus `json:"status"`
	StartedAt        *time.Time    `json:"started_at,omitempty"`
	RemainingSeconds *int64        `json:"remaining_seconds,omitempty"`
	Result           *ScoreResult  `json:"result,omitempty"`
	Answers          AnswerSheet   `json:"answers,omitempty"`
}

// SubmitExamRequest is the payload for submitting final answers.
// An absent or empty answers map means the student answered nothing.
type SubmitExamRequest struct {
	Answers AnswerSheet `json:"answers"`
}

// AutosaveRequest is the payload for saving a single in-progress answer.
type AutosaveRequest struct {
	Question int    `json:"question" binding:"required,min=1"`
	Answer   string `json:"answer" binding:"required,len=1"`
}
