package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ujianku/ujianku-backend/internal/grading"
	"github.com/ujianku/ujianku-backend/internal/model"
)

func TestMemorySessionStoreGetOrCreate(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()
	examID := uuid.New()

	first, created, err := store.GetOrCreate(ctx, examID, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatal("first call should create the session")
	}

	second, created, err := store.GetOrCreate(ctx, examID, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Fatal("second call must not create a new session")
	}
	if !second.StartedAt.Equal(first.StartedAt) {
		t.Errorf("StartedAt changed on repeat call: %v vs %v", second.StartedAt, first.StartedAt)
	}
	if second.ID != first.ID {
		t.Errorf("session ID changed on repeat call: %v vs %v", second.ID, first.ID)
	}
}

func TestMemorySessionStoreGetOrCreateConcurrent(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()
	examID := uuid.New()

	const workers = 50
	var createdCount int32
	ids := make([]uuid.UUID, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s, created, err := store.GetOrCreate(ctx, examID, 7)
			if err != nil {
				t.Errorf("worker %d: %v", n, err)
				return
			}
			if created {
				atomic.AddInt32(&createdCount, 1)
			}
			ids[n] = s.ID
		}(i)
	}
	wg.Wait()

	if createdCount != 1 {
		t.Fatalf("created %d sessions, want exactly 1", createdCount)
	}
	for i := 1; i < workers; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("worker %d observed session %v, others observed %v", i, ids[i], ids[0])
		}
	}
}

func TestMemorySessionStoreGetNotFound(t *testing.T) {
	store := NewMemorySessionStore()

	_, err := store.Get(context.Background(), uuid.New(), 99)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("error = %v, want ErrSessionNotFound", err)
	}
}

func TestMemorySessionStoreFinalizeOnce(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()
	examID := uuid.New()

	if _, _, err := store.GetOrCreate(ctx, examID, 1); err != nil {
		t.Fatalf("setup: %v", err)
	}

	answers := model.AnswerSheet{1: "A"}
	gradeCalls := 0
	grade := func(startedAt, submittedAt time.Time) grading.Grade {
		gradeCalls++
		return grading.Grade{Correct: 1, Incorrect: 0, Percent: 100}
	}

	first, won, err := store.Finalize(ctx, examID, 1, answers, grade)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !won {
		t.Fatal("first finalize should win")
	}
	if first.ScorePercent != 100 {
		t.Errorf("ScorePercent = %d, want 100", first.ScorePercent)
	}

	second, won, err := store.Finalize(ctx, examID, 1, model.AnswerSheet{1: "B"}, grade)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if won {
		t.Fatal("second finalize must not win")
	}
	if gradeCalls != 1 {
		t.Fatalf("grade called %d times, want 1", gradeCalls)
	}
	if second.ScorePercent != 100 || second.Answers[1] != "A" {
		t.Errorf("stored result changed on repeat finalize: %+v", second)
	}
	if !second.SubmittedAt.Equal(*first.SubmittedAt) {
		t.Errorf("SubmittedAt changed on repeat finalize")
	}
}

func TestMemorySessionStoreFinalizeConcurrent(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()
	examID := uuid.New()

	if _, _, err := store.GetOrCreate(ctx, examID, 1); err != nil {
		t.Fatalf("setup: %v", err)
	}

	const workers = 50
	var gradeCalls, wins int32

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, won, err := store.Finalize(ctx, examID, 1, model.AnswerSheet{1: "A"}, func(_, _ time.Time) grading.Grade {
				atomic.AddInt32(&gradeCalls, 1)
				return grading.Grade{Correct: 1, Percent: 100}
			})
			if err != nil {
				t.Errorf("finalize: %v", err)
				return
			}
			if won {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("%d winners, want exactly 1", wins)
	}
	if gradeCalls != 1 {
		t.Fatalf("grade called %d times, want exactly 1", gradeCalls)
	}
}

func TestMemorySessionStoreFinalizeWithoutSession(t *testing.T) {
	store := NewMemorySessionStore()

	_, _, err := store.Finalize(context.Background(), uuid.New(), 1, model.AnswerSheet{}, func(_, _ time.Time) grading.Grade {
		return grading.Grade{}
	})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("error = %v, want ErrSessionNotFound", err)
	}
}
