package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ujianku/ujianku-backend/internal/model"
)

// MemorySessionStore is an in-memory session store with the same atomicity
// contract as the PostgreSQL store. Each (exam, student) pair has its own
// lock — unrelated pairs never contend — so create-or-fetch and finalize are
// atomic per key without a global lock on the hot path.
//
// Used by unit tests and dev runs; production uses ExamSessionRepository.
type MemorySessionStore struct {
	mu       sync.RWMutex // guards the maps themselves
	sessions map[pairKey]*model.ExamSession
	locks    map[pairKey]*sync.Mutex
}

type pairKey struct {
	examID    uuid.UUID
	studentID int
}

// NewMemorySessionStore creates an empty MemorySessionStore.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[pairKey]*model.ExamSession),
		locks:    make(map[pairKey]*sync.Mutex),
	}
}

// lockFor returns the per-pair mutex, creating it on first use.
func (m *MemorySessionStore) lockFor(key pairKey) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

// Get retrieves the session for an (exam, student) pair.
func (m *MemorySessionStore) Get(_ context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[pairKey{examID, studentID}]
	if !ok {
		return nil, ErrSessionNotFound
	}
	copied := *s
	return &copied, nil
}

// GetOrCreate returns the pair's session, creating an open one if none
// exists. Exactly one session is ever created per pair.
func (m *MemorySessionStore) GetOrCreate(_ context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, bool, error) {
	key := pairKey{examID, studentID}
	lock := m.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	m.mu.RLock()
	existing, ok := m.sessions[key]
	m.mu.RUnlock()
	if ok {
		copied := *existing
		return &copied, false, nil
	}

	s := &model.ExamSession{
		ID:        uuid.New(),
		ExamID:    examID,
		StudentID: studentID,
		StartedAt: time.Now(),
		Answers:   model.AnswerSheet{},
	}
	m.mu.Lock()
	m.sessions[key] = s
	m.mu.Unlock()

	copied := *s
	return &copied, true, nil
}

// Finalize flips the session to terminal exactly once, invoking grade under
// the pair's lock so only the winning caller ever scores.
func (m *MemorySessionStore) Finalize(_ context.Context, examID uuid.UUID, studentID int, answers model.AnswerSheet, grade GradeFunc) (*model.ExamSession, bool, error) {
	key := pairKey{examID, studentID}
	lock := m.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	m.mu.RLock()
	s, ok := m.sessions[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, ErrSessionNotFound
	}

	if s.Finished() {
		copied := *s
		return &copied, false, nil
	}

	submittedAt := time.Now()
	g := grade(s.StartedAt, submittedAt)

	s.SubmittedAt = &submittedAt
	s.Answers = answers
	s.CorrectCount = g.Correct
	s.IncorrectCount = g.Incorrect
	s.ScorePercent = g.Percent

	copied := *s
	return &copied, true, nil
}
