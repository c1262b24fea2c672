package repository

import "errors"

// Store-level sentinel errors. Every SessionStore implementation returns
// these same sentinels so services never depend on driver error types.
var (
	ErrExamNotFound    = errors.New("exam not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrStudentNotFound = errors.New("student not found")
	ErrGuruNotFound    = errors.New("guru not found")
	ErrDuplicate       = errors.New("duplicate record")
)
