package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/ujianku/ujianku-backend/internal/model"
	"github.com/ujianku/ujianku-backend/internal/repository"
)

// ─── Fakes ──────────────────────────────────────────────────────────

type fakeExams struct {
	mu    sync.Mutex
	exams map[uuid.UUID]*model.Exam
	calls int
}

func (f *fakeExams) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	exam, ok := f.exams[id]
	if !ok {
		return nil, repository.ErrExamNotFound
	}
	return exam, nil
}

func (f *fakeExams) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCache struct {
	mu        sync.Mutex
	starts    map[string]time.Time
	answers   map[string]model.AnswerSheet
	meta      map[uuid.UUID]*model.Exam
	deadlines map[DeadlineEntry]time.Time
	published [][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		starts:    make(map[string]time.Time),
		answers:   make(map[string]model.AnswerSheet),
		meta:      make(map[uuid.UUID]*model.Exam),
		deadlines: make(map[DeadlineEntry]time.Time),
	}
}

func cacheKey(examID uuid.UUID, studentID int) string {
	return fmt.Sprintf("%s:%d", examID, studentID)
}

func (f *fakeCache) SetStart(_ context.Context, examID uuid.UUID, studentID int, startedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts[cacheKey(examID, studentID)] = startedAt
	return nil
}

func (f *fakeCache) GetStart(_ context.Context, examID uuid.UUID, studentID int) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.starts[cacheKey(examID, studentID)]
	return t, ok, nil
}

func (f *fakeCache) SaveAnswer(_ context.Context, examID uuid.UUID, studentID, question int, answer string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := cacheKey(examID, studentID)
	if f.answers[key] == nil {
		f.answers[key] = model.AnswerSheet{}
	}
	f.answers[key][question] = answer
	return nil
}

func (f *fakeCache) GetAnswers(_ context.Context, examID uuid.UUID, studentID int) (model.AnswerSheet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sheet := model.AnswerSheet{}
	for q, a := range f.answers[cacheKey(examID, studentID)] {
		sheet[q] = a
	}
	return sheet, nil
}

func (f *fakeCache) SetExamMeta(_ context.Context, exam *model.Exam) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meta[exam.ID] = exam
	return nil
}

func (f *fakeCache) GetExamMeta(_ context.Context, examID uuid.UUID) (*model.Exam, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	exam, ok := f.meta[examID]
	return exam, ok, nil
}

func (f *fakeCache) DropExamMeta(_ context.Context, examID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.meta, examID)
	return nil
}

func (f *fakeCache) QueueDeadline(_ context.Context, examID uuid.UUID, studentID int, deadline time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadlines[DeadlineEntry{ExamID: examID, StudentID: studentID}] = deadline
	return nil
}

func (f *fakeCache) DropDeadline(_ context.Context, examID uuid.UUID, studentID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.deadlines, DeadlineEntry{ExamID: examID, StudentID: studentID})
	return nil
}

func (f *fakeCache) DropSession(_ context.Context, examID uuid.UUID, studentID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.starts, cacheKey(examID, studentID))
	delete(f.answers, cacheKey(examID, studentID))
	delete(f.deadlines, DeadlineEntry{ExamID: examID, StudentID: studentID})
	return nil
}

func (f *fakeCache) DueDeadlines(_ context.Context, now time.Time, limit int) ([]DeadlineEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []DeadlineEntry
	for e, deadline := range f.deadlines {
		if !deadline.After(now) && len(due) < limit {
			due = append(due, e)
		}
	}
	return due, nil
}

func (f *fakeCache) PublishResult(_ context.Context, _ uuid.UUID, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, payload)
	return nil
}

// stubStore serves the deadline-policy tests, which need a session whose
// start instant lies in the past.
type stubStore struct {
	mu      sync.Mutex
	session *model.ExamSession
}

func (s *stubStore) Get(_ context.Context, _ uuid.UUID, _ int) (*model.ExamSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, repository.ErrSessionNotFound
	}
	copied := *s.session
	return &copied, nil
}

func (s *stubStore) GetOrCreate(_ context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		copied := *s.session
		return &copied, false, nil
	}
	s.session = &model.ExamSession{
		ID:        uuid.New(),
		ExamID:    examID,
		StudentID: studentID,
		StartedAt: time.Now(),
		Answers:   model.AnswerSheet{},
	}
	copied := *s.session
	return &copied, true, nil
}

func (s *stubStore) Finalize(_ context.Context, _ uuid.UUID, _ int, answers model.AnswerSheet, grade repository.GradeFunc) (*model.ExamSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, false, repository.ErrSessionNotFound
	}
	if s.session.Finished() {
		copied := *s.session
		return &copied, false, nil
	}
	submittedAt := time.Now()
	g := grade(s.session.StartedAt, submittedAt)
	s.session.SubmittedAt = &submittedAt
	s.session.Answers = answers
	s.session.CorrectCount = g.Correct
	s.session.IncorrectCount = g.Incorrect
	s.session.ScorePercent = g.Percent
	copied := *s.session
	return &copied, true, nil
}

// ─── Fixtures ───────────────────────────────────────────────────────

func testExam() *model.Exam {
	return &model.Exam{
		ID:              uuid.New(),
		Code:            "MTK001",
		Title:           "Matematika",
		Kelas:           "XII IPA 1",
		GuruID:          1,
		TotalQuestions:  3,
		DurationMinutes: 50,
		ChoiceSet:       "ABCD",
		AnswerKey:       model.AnswerKey{1: "A", 2: "B", 3: "C"},
	}
}

func newTestService(exam *model.Exam, store SessionStore, cache SessionCache, policy DeadlinePolicy) *ExamSessionService {
	exams := &fakeExams{exams: map[uuid.UUID]*model.Exam{exam.ID: exam}}
	return NewExamSessionService(store, exams, cache, policy, zerolog.Nop())
}

// ─── Tests ──────────────────────────────────────────────────────────

func TestStartAssignsTimestampOnce(t *testing.T) {
	exam := testExam()
	svc := newTestService(exam, repository.NewMemorySessionStore(), newFakeCache(), DeadlinePolicy{})
	ctx := context.Background()

	first, err := svc.Start(ctx, exam.ID, 10)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if first.Resumed {
		t.Error("first start should not be a resume")
	}
	if first.RemainingSeconds > 50*60 || first.RemainingSeconds < 50*60-5 {
		t.Errorf("RemainingSeconds = %d, want about %d", first.RemainingSeconds, 50*60)
	}

	second, err := svc.Start(ctx, exam.ID, 10)
	if err != nil {
		t.Fatalf("repeat start: %v", err)
	}
	if !second.Resumed {
		t.Error("repeat start should resume")
	}
	if second.SessionID != first.SessionID {
		t.Errorf("session ID changed on repeat start: %v vs %v", second.SessionID, first.SessionID)
	}
	if !second.StartedAt.Equal(first.StartedAt) {
		t.Errorf("StartedAt changed on repeat start: %v vs %v", second.StartedAt, first.StartedAt)
	}
}

func TestStartUnknownExam(t *testing.T) {
	exam := testExam()
	svc := newTestService(exam, repository.NewMemorySessionStore(), newFakeCache(), DeadlinePolicy{})

	_, err := svc.Start(context.Background(), uuid.New(), 10)
	if !errors.Is(err, repository.ErrExamNotFound) {
		t.Fatalf("error = %v, want ErrExamNotFound", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	exam := testExam()
	svc := newTestService(exam, repository.NewMemorySessionStore(), newFakeCache(), DeadlinePolicy{})
	ctx := context.Background()

	view, err := svc.Status(ctx, exam.ID, 10)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if view.Status != model.SessionNotStarted {
		t.Fatalf("status = %s, want NOT_STARTED", view.Status)
	}

	if _, err := svc.Start(ctx, exam.ID, 10); err != nil {
		t.Fatalf("start: %v", err)
	}

	view, err = svc.Status(ctx, exam.ID, 10)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if view.Status != model.SessionInProgress {
		t.Fatalf("status = %s, want IN_PROGRESS", view.Status)
	}
	if view.RemainingSeconds == nil || *view.RemainingSeconds <= 0 {
		t.Error("open session should report remaining time")
	}

	if _, err := svc.Submit(ctx, exam.ID, 10, model.AnswerSheet{1: "A"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	view, err = svc.Status(ctx, exam.ID, 10)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if view.Status != model.SessionCompleted {
		t.Fatalf("status = %s, want COMPLETED", view.Status)
	}
	if view.Result == nil || view.Result.CorrectCount != 1 {
		t.Errorf("completed view result = %+v, want 1 correct", view.Result)
	}
}

func TestSubmitGradesAndIsIdempotent(t *testing.T) {
	exam := testExam()
	svc := newTestService(exam, repository.NewMemorySessionStore(), newFakeCache(), DeadlinePolicy{})
	ctx := context.Background()

	if _, err := svc.Start(ctx, exam.ID, 10); err != nil {
		t.Fatalf("start: %v", err)
	}

	result, err := svc.Submit(ctx, exam.ID, 10, model.AnswerSheet{1: "A", 2: "C"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.CorrectCount != 1 || result.IncorrectCount != 1 || result.ScorePercent != 33 {
		t.Fatalf("result = %+v, want 1 correct, 1 incorrect, 33%%", result)
	}
	if result.Recovered {
		t.Error("submit after explicit start must not be flagged recovered")
	}

	// Retry with different (better) answers: the retry succeeds, but the
	// stored result stands and nothing is regraded.
	repeat, err := svc.Submit(ctx, exam.ID, 10, model.AnswerSheet{1: "A", 2: "B", 3: "C"})
	if err != nil {
		t.Fatalf("repeat submit: %v", err)
	}
	if repeat.ScorePercent != 33 || repeat.CorrectCount != 1 {
		t.Errorf("repeat submit returned %+v, want the stored 33%% result", repeat)
	}
}

func TestStartAndAutosaveAfterCompletion(t *testing.T) {
	exam := testExam()
	svc := newTestService(exam, repository.NewMemorySessionStore(), newFakeCache(), DeadlinePolicy{})
	ctx := context.Background()

	if _, err := svc.Start(ctx, exam.ID, 10); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.Submit(ctx, exam.ID, 10, model.AnswerSheet{1: "A", 2: "C"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	var completed *AlreadyCompletedError
	if _, err := svc.Start(ctx, exam.ID, 10); !errors.As(err, &completed) {
		t.Fatalf("start after completion: error = %v, want AlreadyCompletedError", err)
	}
	if completed.Result.ScorePercent != 33 {
		t.Errorf("conflict carried score %d, want stored 33", completed.Result.ScorePercent)
	}

	if err := svc.Autosave(ctx, exam.ID, 10, 1, "B"); !errors.As(err, &completed) {
		t.Fatalf("autosave after completion: error = %v, want AlreadyCompletedError", err)
	}
}

func TestSubmitConcurrentSingleResult(t *testing.T) {
	exam := testExam()
	svc := newTestService(exam, repository.NewMemorySessionStore(), newFakeCache(), DeadlinePolicy{})
	ctx := context.Background()

	if _, err := svc.Start(ctx, exam.ID, 10); err != nil {
		t.Fatalf("start: %v", err)
	}

	const workers = 30
	scores := make([]int, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			result, err := svc.Submit(ctx, exam.ID, 10, model.AnswerSheet{1: "A", 2: "B"})
			if err != nil {
				t.Errorf("worker %d: %v", n, err)
				return
			}
			scores[n] = result.ScorePercent
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if scores[i] != scores[0] {
			t.Fatalf("worker %d observed score %d, others observed %d", i, scores[i], scores[0])
		}
	}
	if scores[0] != 67 {
		t.Fatalf("stored score = %d, want 67", scores[0])
	}
}

func TestSubmitWithoutStartRecoversSession(t *testing.T) {
	exam := testExam()
	svc := newTestService(exam, repository.NewMemorySessionStore(), newFakeCache(), DeadlinePolicy{})

	result, err := svc.Submit(context.Background(), exam.ID, 10, model.AnswerSheet{1: "A", 2: "B", 3: "C"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Recovered {
		t.Error("submit without prior start should be flagged recovered")
	}
	if result.ScorePercent != 100 {
		t.Errorf("score = %d, want 100", result.ScorePercent)
	}
}

func TestSubmitUngradedExam(t *testing.T) {
	exam := testExam()
	exam.AnswerKey = model.AnswerKey{1: "A"} // incomplete
	svc := newTestService(exam, repository.NewMemorySessionStore(), newFakeCache(), DeadlinePolicy{})

	_, err := svc.Submit(context.Background(), exam.ID, 10, model.AnswerSheet{1: "A"})
	if !errors.Is(err, ErrExamNotGraded) {
		t.Fatalf("error = %v, want ErrExamNotGraded", err)
	}
}

func TestSubmitInvalidAnswers(t *testing.T) {
	exam := testExam()
	svc := newTestService(exam, repository.NewMemorySessionStore(), newFakeCache(), DeadlinePolicy{})

	_, err := svc.Submit(context.Background(), exam.ID, 10, model.AnswerSheet{9: "A"})
	var invalid *AnswerValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("error = %v, want AnswerValidationError", err)
	}
	if _, ok := invalid.Fields["9"]; !ok {
		t.Errorf("fields = %v, want entry for question 9", invalid.Fields)
	}
}

func TestLateSubmitPolicy(t *testing.T) {
	exam := testExam()
	past := time.Now().Add(-2 * time.Hour)

	t.Run("rejected when policy is strict", func(t *testing.T) {
		store := &stubStore{session: &model.ExamSession{
			ID: uuid.New(), ExamID: exam.ID, StudentID: 10, StartedAt: past, Answers: model.AnswerSheet{},
		}}
		svc := newTestService(exam, store, newFakeCache(), DeadlinePolicy{RejectLate: true, Grace: 30 * time.Second})

		_, err := svc.Submit(context.Background(), exam.ID, 10, model.AnswerSheet{1: "A"})
		if !errors.Is(err, ErrDeadlineExceeded) {
			t.Fatalf("error = %v, want ErrDeadlineExceeded", err)
		}
	})

	t.Run("accepted and graded by default", func(t *testing.T) {
		store := &stubStore{session: &model.ExamSession{
			ID: uuid.New(), ExamID: exam.ID, StudentID: 10, StartedAt: past, Answers: model.AnswerSheet{},
		}}
		svc := newTestService(exam, store, newFakeCache(), DeadlinePolicy{})

		result, err := svc.Submit(context.Background(), exam.ID, 10, model.AnswerSheet{1: "A"})
		if err != nil {
			t.Fatalf("late submit with default policy: %v", err)
		}
		if result.ScorePercent != 33 {
			t.Errorf("score = %d, want 33", result.ScorePercent)
		}
	})
}

func TestAutosaveFlowsIntoStatus(t *testing.T) {
	exam := testExam()
	svc := newTestService(exam, repository.NewMemorySessionStore(), newFakeCache(), DeadlinePolicy{})
	ctx := context.Background()

	if err := svc.Autosave(ctx, exam.ID, 10, 1, "A"); !errors.Is(err, ErrSessionNotOpen) {
		t.Fatalf("autosave before start: error = %v, want ErrSessionNotOpen", err)
	}

	if _, err := svc.Start(ctx, exam.ID, 10); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := svc.Autosave(ctx, exam.ID, 10, 1, "A"); err != nil {
		t.Fatalf("autosave: %v", err)
	}
	if err := svc.Autosave(ctx, exam.ID, 10, 9, "A"); err == nil {
		t.Fatal("autosave out-of-range question should fail")
	}

	view, err := svc.Status(ctx, exam.ID, 10)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if view.Answers[1] != "A" {
		t.Errorf("status answers = %v, want autosaved 1:A", view.Answers)
	}
}

func TestFinalizeExpiredUsesAutosavedAnswers(t *testing.T) {
	exam := testExam()
	cache := newFakeCache()
	svc := newTestService(exam, repository.NewMemorySessionStore(), cache, DeadlinePolicy{})
	ctx := context.Background()

	if _, err := svc.Start(ctx, exam.ID, 10); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.Autosave(ctx, exam.ID, 10, 1, "A"); err != nil {
		t.Fatalf("autosave: %v", err)
	}
	if err := svc.Autosave(ctx, exam.ID, 10, 2, "D"); err != nil {
		t.Fatalf("autosave: %v", err)
	}

	if err := svc.FinalizeExpired(ctx, exam.ID, 10); err != nil {
		t.Fatalf("finalize expired: %v", err)
	}

	view, err := svc.Status(ctx, exam.ID, 10)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if view.Status != model.SessionCompleted {
		t.Fatalf("status = %s, want COMPLETED", view.Status)
	}
	if view.Result.CorrectCount != 1 || view.Result.IncorrectCount != 1 {
		t.Errorf("result = %+v, want 1 correct and 1 incorrect from autosaved sheet", view.Result)
	}

	// Second run must be a no-op, not an error.
	if err := svc.FinalizeExpired(ctx, exam.ID, 10); err != nil {
		t.Fatalf("repeat finalize expired: %v", err)
	}
}

func TestSubmitPublishesMonitorEvent(t *testing.T) {
	exam := testExam()
	cache := newFakeCache()
	svc := newTestService(exam, repository.NewMemorySessionStore(), cache, DeadlinePolicy{})
	ctx := context.Background()

	if _, err := svc.Start(ctx, exam.ID, 10); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.Submit(ctx, exam.ID, 10, model.AnswerSheet{1: "A"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	cache.mu.Lock()
	defer cache.mu.Unlock()
	if len(cache.published) != 1 {
		t.Fatalf("published %d monitor events, want 1", len(cache.published))
	}
	if _, ok := cache.deadlines[DeadlineEntry{ExamID: exam.ID, StudentID: 10}]; ok {
		t.Error("deadline entry should be dropped after submit")
	}
	if len(cache.answers) != 0 {
		t.Error("autosaved answers should be cleared after submit")
	}
}

func TestSubmitServedFromExamMetaCache(t *testing.T) {
	exam := testExam()
	cache := newFakeCache()
	if err := cache.SetExamMeta(context.Background(), exam); err != nil {
		t.Fatalf("seed exam meta: %v", err)
	}

	// An empty provider proves the whole submit runs off the mirror.
	exams := &fakeExams{exams: map[uuid.UUID]*model.Exam{}}
	svc := NewExamSessionService(repository.NewMemorySessionStore(), exams, cache, DeadlinePolicy{}, zerolog.Nop())

	result, err := svc.Submit(context.Background(), exam.ID, 10, model.AnswerSheet{1: "A"})
	if err != nil {
		t.Fatalf("submit with cached meta: %v", err)
	}
	if result.ScorePercent != 33 {
		t.Errorf("score = %d, want 33", result.ScorePercent)
	}
	if got := exams.callCount(); got != 0 {
		t.Errorf("exam repository hit %d times, want 0 on a warm cache", got)
	}
}

func TestExamMetaSelfHealsOnMiss(t *testing.T) {
	exam := testExam()
	cache := newFakeCache()
	exams := &fakeExams{exams: map[uuid.UUID]*model.Exam{exam.ID: exam}}
	svc := NewExamSessionService(repository.NewMemorySessionStore(), exams, cache, DeadlinePolicy{}, zerolog.Nop())
	ctx := context.Background()

	if _, err := svc.Start(ctx, exam.ID, 10); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, ok, _ := cache.GetExamMeta(ctx, exam.ID); !ok {
		t.Fatal("cache miss should re-warm the exam meta mirror")
	}

	// Every later call rides the mirror.
	if _, err := svc.Status(ctx, exam.ID, 10); err != nil {
		t.Fatalf("status: %v", err)
	}
	if _, err := svc.Submit(ctx, exam.ID, 10, model.AnswerSheet{1: "A"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := exams.callCount(); got != 1 {
		t.Errorf("exam repository hit %d times, want 1 (the initial miss)", got)
	}
}

func TestStatusUsesCachedStartTime(t *testing.T) {
	exam := testExam()
	cache := newFakeCache()
	svc := newTestService(exam, repository.NewMemorySessionStore(), cache, DeadlinePolicy{})
	ctx := context.Background()

	if _, err := svc.Start(ctx, exam.ID, 10); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Simulate a session that has been running for 49 of its 50 minutes.
	if err := cache.SetStart(ctx, exam.ID, 10, time.Now().Add(-49*time.Minute)); err != nil {
		t.Fatalf("set cached start: %v", err)
	}

	view, err := svc.Status(ctx, exam.ID, 10)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if view.RemainingSeconds == nil || *view.RemainingSeconds > 120 {
		t.Errorf("RemainingSeconds = %v, want about one minute from the cached start", view.RemainingSeconds)
	}
}

func TestFinalizeExpiredRefusesMissingSession(t *testing.T) {
	exam := testExam()
	store := repository.NewMemorySessionStore()
	svc := newTestService(exam, store, newFakeCache(), DeadlinePolicy{})
	ctx := context.Background()

	if err := svc.FinalizeExpired(ctx, exam.ID, 10); !errors.Is(err, repository.ErrSessionNotFound) {
		t.Fatalf("error = %v, want ErrSessionNotFound", err)
	}

	// A purged attempt must stay purged.
	if _, err := store.Get(ctx, exam.ID, 10); !errors.Is(err, repository.ErrSessionNotFound) {
		t.Fatalf("timeout finalize must not create a session, got err %v", err)
	}
}

func TestGradeFuncGetsServerTimes(t *testing.T) {
	exam := testExam()
	store := &stubStore{}
	svc := newTestService(exam, store, newFakeCache(), DeadlinePolicy{})
	ctx := context.Background()

	before := time.Now()
	result, err := svc.Submit(ctx, exam.ID, 10, model.AnswerSheet{1: "A"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.ScorePercent != 33 {
		t.Fatalf("score = %d, want 33", result.ScorePercent)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.session.SubmittedAt == nil {
		t.Fatal("session not finalized")
	}
	if store.session.SubmittedAt.Before(before) {
		t.Error("SubmittedAt must be assigned server-side at finalize time")
	}
}
