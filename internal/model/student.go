package model

import "time"

// Student represents a student belonging to a guru's roster.
type Student struct {
	ID        int       `json:"id"`
	NISN      string    `json:"nisn"`
	Name      string    `json:"name"`
	Kelas     string    `json:"kelas"`
	GuruID    int       `json:"guru_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StudentLoginRequest is the payload for a student entering an exam.
// Students authenticate with the exam code plus their NISN; the issued token
// is scoped to that single exam.
type StudentLoginRequest struct {
	ExamCode string `json:"exam_code" binding:"required,min=4,max=20"`
	NISN     string `json:"nisn" binding:"required,min=4,max=20"`
}

// StudentLoginResponse is returned after successful student login.
type StudentLoginResponse struct {
	Token   string      `json:"token"`
	Student Student     `json:"student"`
	Exam    ExamSummary `json:"exam"`
}

// CreateStudentRequest is the payload for adding a student to the roster.
type CreateStudentRequest struct {
	NISN  string `json:"nisn" binding:"required,min=4,max=20"`
	Name  string `json:"name" binding:"required,min=2,max=100"`
	Kelas string `json:"kelas" binding:"required,min=1,max=50"`
}

// RosterUploadResult summarizes a bulk roster import.
type RosterUploadResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}
