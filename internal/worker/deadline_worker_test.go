package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/ujianku/ujianku-backend/internal/model"
	"github.com/ujianku/ujianku-backend/internal/repository"
	"github.com/ujianku/ujianku-backend/internal/service"
)

// ─── Fakes ──────────────────────────────────────────────────────────

type fakeExams struct {
	exams map[uuid.UUID]*model.Exam
}

func (f *fakeExams) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, ok := f.exams[id]
	if !ok {
		return nil, repository.ErrExamNotFound
	}
	return exam, nil
}

type queueCache struct {
	mu        sync.Mutex
	starts    map[service.DeadlineEntry]time.Time
	answers   map[service.DeadlineEntry]model.AnswerSheet
	deadlines map[service.DeadlineEntry]time.Time
}

func newQueueCache() *queueCache {
	return &queueCache{
		starts:    make(map[service.DeadlineEntry]time.Time),
		answers:   make(map[service.DeadlineEntry]model.AnswerSheet),
		deadlines: make(map[service.DeadlineEntry]time.Time),
	}
}

func entry(examID uuid.UUID, studentID int) service.DeadlineEntry {
	return service.DeadlineEntry{ExamID: examID, StudentID: studentID}
}

func (c *queueCache) SetStart(_ context.Context, examID uuid.UUID, studentID int, startedAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts[entry(examID, studentID)] = startedAt
	return nil
}

func (c *queueCache) GetStart(_ context.Context, examID uuid.UUID, studentID int) (time.Time, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.starts[entry(examID, studentID)]
	return t, ok, nil
}

func (c *queueCache) SaveAnswer(_ context.Context, examID uuid.UUID, studentID, question int, answer string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := entry(examID, studentID)
	if c.answers[e] == nil {
		c.answers[e] = model.AnswerSheet{}
	}
	c.answers[e][question] = answer
	return nil
}

func (c *queueCache) GetAnswers(_ context.Context, examID uuid.UUID, studentID int) (model.AnswerSheet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sheet := model.AnswerSheet{}
	for q, a := range c.answers[entry(examID, studentID)] {
		sheet[q] = a
	}
	return sheet, nil
}

func (c *queueCache) SetExamMeta(_ context.Context, _ *model.Exam) error { return nil }

func (c *queueCache) GetExamMeta(_ context.Context, _ uuid.UUID) (*model.Exam, bool, error) {
	return nil, false, nil
}

func (c *queueCache) DropExamMeta(_ context.Context, _ uuid.UUID) error { return nil }

func (c *queueCache) QueueDeadline(_ context.Context, examID uuid.UUID, studentID int, deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadlines[entry(examID, studentID)] = deadline
	return nil
}

func (c *queueCache) DropDeadline(_ context.Context, examID uuid.UUID, studentID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.deadlines, entry(examID, studentID))
	return nil
}

func (c *queueCache) DropSession(_ context.Context, examID uuid.UUID, studentID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := entry(examID, studentID)
	delete(c.starts, e)
	delete(c.answers, e)
	delete(c.deadlines, e)
	return nil
}

func (c *queueCache) DueDeadlines(_ context.Context, now time.Time, limit int) ([]service.DeadlineEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var due []service.DeadlineEntry
	for e, deadline := range c.deadlines {
		if !deadline.After(now) && len(due) < limit {
			due = append(due, e)
		}
	}
	return due, nil
}

func (c *queueCache) PublishResult(_ context.Context, _ uuid.UUID, _ []byte) error { return nil }

func (c *queueCache) hasDeadline(examID uuid.UUID, studentID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.deadlines[entry(examID, studentID)]
	return ok
}

// ─── Tests ──────────────────────────────────────────────────────────

func monitorExam() *model.Exam {
	return &model.Exam{
		ID:              uuid.New(),
		TotalQuestions:  2,
		DurationMinutes: 1,
		ChoiceSet:       "ABCD",
		AnswerKey:       model.AnswerKey{1: "A", 2: "B"},
	}
}

func newWorker(exams service.ExamProvider, store service.SessionStore, cache *queueCache) *DeadlineWorker {
	svc := service.NewExamSessionService(store, exams, cache, service.DeadlinePolicy{}, zerolog.Nop())
	return NewDeadlineWorker(nil, svc, cache, time.Second, 0, zerolog.Nop())
}

func TestSweepQueueFinalizesDueSessions(t *testing.T) {
	exam := monitorExam()
	exams := &fakeExams{exams: map[uuid.UUID]*model.Exam{exam.ID: exam}}
	store := repository.NewMemorySessionStore()
	cache := newQueueCache()
	ctx := context.Background()

	svc := service.NewExamSessionService(store, exams, cache, service.DeadlinePolicy{}, zerolog.Nop())
	if _, err := svc.Start(ctx, exam.ID, 7); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.Autosave(ctx, exam.ID, 7, 1, "A"); err != nil {
		t.Fatalf("autosave: %v", err)
	}

	// Pull the deadline into the past so the sweep picks the entry up.
	if err := cache.QueueDeadline(ctx, exam.ID, 7, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("queue deadline: %v", err)
	}

	w := NewDeadlineWorker(nil, svc, cache, time.Second, 0, zerolog.Nop())
	w.sweepQueue(ctx)

	sess, err := store.Get(ctx, exam.ID, 7)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if !sess.Finished() {
		t.Error("due session should be finalized by the sweep")
	}
	if sess.CorrectCount != 1 {
		t.Errorf("CorrectCount = %d, want 1 from the autosaved sheet", sess.CorrectCount)
	}
	if cache.hasDeadline(exam.ID, 7) {
		t.Error("deadline entry should be dropped after finalize")
	}
}

func TestSweepQueueDropsStaleEntries(t *testing.T) {
	exam := monitorExam()

	cases := []struct {
		name  string
		exams *fakeExams
	}{
		{"session deleted", &fakeExams{exams: map[uuid.UUID]*model.Exam{exam.ID: exam}}},
		{"exam deleted", &fakeExams{exams: map[uuid.UUID]*model.Exam{}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := repository.NewMemorySessionStore()
			cache := newQueueCache()
			ctx := context.Background()

			if err := cache.QueueDeadline(ctx, exam.ID, 7, time.Now().Add(-time.Minute)); err != nil {
				t.Fatalf("queue deadline: %v", err)
			}
			if err := cache.SaveAnswer(ctx, exam.ID, 7, 1, "A"); err != nil {
				t.Fatalf("save answer: %v", err)
			}

			w := newWorker(tc.exams, store, cache)
			w.sweepQueue(ctx)

			if cache.hasDeadline(exam.ID, 7) {
				t.Error("stale deadline entry should be dropped, not retried")
			}
			cache.mu.Lock()
			leftovers := len(cache.answers)
			cache.mu.Unlock()
			if leftovers != 0 {
				t.Error("stale autosaved answers should be cleared")
			}

			// And no session may appear out of thin air.
			if _, err := store.Get(ctx, exam.ID, 7); err == nil {
				t.Error("sweep must never create a session")
			}
		})
	}
}
