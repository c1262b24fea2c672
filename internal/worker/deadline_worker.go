package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/ujianku/ujianku-backend/internal/repository"
	"github.com/ujianku/ujianku-backend/internal/service"
)

// DeadlineWorker closes sessions whose time has run out. The Redis deadline
// queue drives the fast path; a periodic PostgreSQL scan catches sessions
// whose queue entry was lost (Redis restart, missed ZADD). Students who
// never submit still end up with a graded, terminal session.
type DeadlineWorker struct {
	sessions       *repository.ExamSessionRepository
	sessionService *service.ExamSessionService
	cache          service.SessionCache
	sweepInterval  time.Duration
	grace          time.Duration
	log            zerolog.Logger
}

// NewDeadlineWorker creates a new DeadlineWorker.
func NewDeadlineWorker(
	sessions *repository.ExamSessionRepository,
	sessionService *service.ExamSessionService,
	cache service.SessionCache,
	sweepInterval, grace time.Duration,
	log zerolog.Logger,
) *DeadlineWorker {
	return &DeadlineWorker{
		sessions:       sessions,
		sessionService: sessionService,
		cache:          cache,
		sweepInterval:  sweepInterval,
		grace:          grace,
		log:            log.With().Str("component", "deadline_worker").Logger(),
	}
}

// Start begins the sweep loop. Call in a goroutine.
func (w *DeadlineWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.sweepInterval).Msg("Worker started")

	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	// Slow full-table scan, much less often than the queue sweep.
	fallback := time.NewTicker(10 * w.sweepInterval)
	defer fallback.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// One last sweep so sessions due right now are not left
			// open until the next process starts.
			w.sweepQueue(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			w.sweepQueue(ctx)
		case <-fallback.C:
			w.sweepDatabase(ctx)
		}
	}
}

// sweepQueue finalizes sessions the Redis deadline queue marks as due.
func (w *DeadlineWorker) sweepQueue(ctx context.Context) {
	cutoff := time.Now().Add(-w.grace)
	entries, err := w.cache.DueDeadlines(ctx, cutoff, 100)
	if err != nil {
		w.log.Error().Err(err).Msg("Deadline queue read error")
		return
	}

	for _, e := range entries {
		w.finalize(ctx, e)
	}
}

// sweepDatabase finalizes overdue sessions straight from PostgreSQL.
func (w *DeadlineWorker) sweepDatabase(ctx context.Context) {
	cutoff := time.Now().Add(-w.grace)
	overdue, err := w.sessions.ListOverdue(ctx, cutoff)
	if err != nil {
		w.log.Error().Err(err).Msg("Overdue scan error")
		return
	}

	for _, s := range overdue {
		w.finalize(ctx, service.DeadlineEntry{ExamID: s.ExamID, StudentID: s.StudentID})
	}
}

func (w *DeadlineWorker) finalize(ctx context.Context, e service.DeadlineEntry) {
	err := w.sessionService.FinalizeExpired(ctx, e.ExamID, e.StudentID)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrExamNotFound), errors.Is(err, repository.ErrSessionNotFound):
		// The exam or the attempt is gone; the queue entry is stale.
		// Drop it along with any leftover autosaved answers instead of
		// retrying forever.
		if dropErr := w.cache.DropSession(ctx, e.ExamID, e.StudentID); dropErr != nil {
			w.log.Warn().Err(dropErr).Msg("Failed to drop stale session state")
		}
		w.log.Info().
			Str("exam_id", e.ExamID.String()).
			Int("student_id", e.StudentID).
			Msg("Stale deadline entry dropped")
		return
	default:
		// Leave the queue entry in place; the next sweep retries.
		w.log.Error().Err(err).
			Str("exam_id", e.ExamID.String()).
			Int("student_id", e.StudentID).
			Msg("Timeout finalize error")
		return
	}

	if err := w.cache.DropDeadline(ctx, e.ExamID, e.StudentID); err != nil {
		w.log.Warn().Err(err).Msg("Failed to drop deadline entry")
	}
	w.log.Info().
		Str("exam_id", e.ExamID.String()).
		Int("student_id", e.StudentID).
		Msg("Session finalized by timeout")
}
