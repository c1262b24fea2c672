package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/ujianku/ujianku-backend/internal/config"
	"github.com/ujianku/ujianku-backend/internal/model"
)

// examMetaTTL bounds how stale the mirrored exam metadata can get; writes
// through ExamService re-warm it immediately, so the TTL only matters after
// out-of-band changes.
const examMetaTTL = 12 * time.Hour

// SessionCache is the hot-path store for open sessions: start timestamps,
// autosaved answers, mirrored exam metadata, the deadline queue, and the
// monitor fan-out channel. PostgreSQL stays the source of truth; everything
// here is reconstructible.
type SessionCache interface {
	SetStart(ctx context.Context, examID uuid.UUID, studentID int, startedAt time.Time) error
	GetStart(ctx context.Context, examID uuid.UUID, studentID int) (time.Time, bool, error)
	SaveAnswer(ctx context.Context, examID uuid.UUID, studentID, question int, answer string) error
	GetAnswers(ctx context.Context, examID uuid.UUID, studentID int) (model.AnswerSheet, error)
	SetExamMeta(ctx context.Context, exam *model.Exam) error
	GetExamMeta(ctx context.Context, examID uuid.UUID) (*model.Exam, bool, error)
	DropExamMeta(ctx context.Context, examID uuid.UUID) error
	QueueDeadline(ctx context.Context, examID uuid.UUID, studentID int, deadline time.Time) error
	DropDeadline(ctx context.Context, examID uuid.UUID, studentID int) error
	DropSession(ctx context.Context, examID uuid.UUID, studentID int) error
	DueDeadlines(ctx context.Context, now time.Time, limit int) ([]DeadlineEntry, error)
	PublishResult(ctx context.Context, examID uuid.UUID, payload []byte) error
}

// DeadlineEntry identifies one open session whose time has run out.
type DeadlineEntry struct {
	ExamID    uuid.UUID
	StudentID int
}

// RedisSessionCache implements SessionCache over go-redis.
type RedisSessionCache struct {
	rdb *redis.Client
}

// NewRedisSessionCache creates a RedisSessionCache.
func NewRedisSessionCache(rdb *redis.Client) *RedisSessionCache {
	return &RedisSessionCache{rdb: rdb}
}

func (c *RedisSessionCache) SetStart(ctx context.Context, examID uuid.UUID, studentID int, startedAt time.Time) error {
	key := config.CacheKey.SessionStartKey(examID.String(), studentID)
	return c.rdb.Set(ctx, key, startedAt.Unix(), 0).Err()
}

func (c *RedisSessionCache) GetStart(ctx context.Context, examID uuid.UUID, studentID int) (time.Time, bool, error) {
	key := config.CacheKey.SessionStartKey(examID.String(), studentID)
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get start time: %w", err)
	}
	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid start time in cache: %w", err)
	}
	return time.Unix(unix, 0), true, nil
}

func (c *RedisSessionCache) SaveAnswer(ctx context.Context, examID uuid.UUID, studentID, question int, answer string) error {
	key := config.CacheKey.StudentAnswersKey(examID.String(), studentID)
	return c.rdb.HSet(ctx, key, strconv.Itoa(question), answer).Err()
}

func (c *RedisSessionCache) GetAnswers(ctx context.Context, examID uuid.UUID, studentID int) (model.AnswerSheet, error) {
	key := config.CacheKey.StudentAnswersKey(examID.String(), studentID)
	raw, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("get autosaved answers: %w", err)
	}

	answers := make(model.AnswerSheet, len(raw))
	for q, a := range raw {
		num, err := strconv.Atoi(q)
		if err != nil {
			continue // Skip malformed fields rather than failing the read.
		}
		answers[num] = a
	}
	return answers, nil
}

// SetExamMeta mirrors the grading metadata the session hot path needs, so
// start, autosave, and submit can avoid a PostgreSQL round trip per call.
func (c *RedisSessionCache) SetExamMeta(ctx context.Context, exam *model.Exam) error {
	id := exam.ID.String()
	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.ExamDurationKey(id), exam.DurationMinutes, examMetaTTL)
	pipe.Set(ctx, config.CacheKey.ExamTotalQuestionsKey(id), exam.TotalQuestions, examMetaTTL)
	pipe.Set(ctx, config.CacheKey.ExamChoiceSetKey(id), exam.ChoiceSet, examMetaTTL)
	if len(exam.AnswerKey) > 0 {
		payload, err := json.Marshal(exam.AnswerKey)
		if err != nil {
			return fmt.Errorf("encode answer key: %w", err)
		}
		pipe.Set(ctx, config.CacheKey.ExamAnswerKeyKey(id), payload, examMetaTTL)
	} else {
		pipe.Del(ctx, config.CacheKey.ExamAnswerKeyKey(id))
	}
	_, err := pipe.Exec(ctx)
	return err
}

// GetExamMeta rebuilds the mirrored exam. A missing duration, question
// count, or choice set counts as a miss; a missing answer key does not,
// since ungraded exams legitimately have none.
func (c *RedisSessionCache) GetExamMeta(ctx context.Context, examID uuid.UUID) (*model.Exam, bool, error) {
	id := examID.String()
	vals, err := c.rdb.MGet(ctx,
		config.CacheKey.ExamDurationKey(id),
		config.CacheKey.ExamTotalQuestionsKey(id),
		config.CacheKey.ExamChoiceSetKey(id),
		config.CacheKey.ExamAnswerKeyKey(id),
	).Result()
	if err != nil {
		return nil, false, fmt.Errorf("get exam meta: %w", err)
	}

	duration, ok := parseCachedInt(vals[0])
	if !ok {
		return nil, false, nil
	}
	total, ok := parseCachedInt(vals[1])
	if !ok {
		return nil, false, nil
	}
	choiceSet, ok := vals[2].(string)
	if !ok || choiceSet == "" {
		return nil, false, nil
	}

	exam := &model.Exam{
		ID:              examID,
		TotalQuestions:  total,
		DurationMinutes: duration,
		ChoiceSet:       choiceSet,
		AnswerKey:       model.AnswerKey{},
	}
	if raw, ok := vals[3].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &exam.AnswerKey); err != nil {
			return nil, false, nil
		}
	}
	return exam, true, nil
}

func (c *RedisSessionCache) DropExamMeta(ctx context.Context, examID uuid.UUID) error {
	id := examID.String()
	return c.rdb.Del(ctx,
		config.CacheKey.ExamDurationKey(id),
		config.CacheKey.ExamTotalQuestionsKey(id),
		config.CacheKey.ExamChoiceSetKey(id),
		config.CacheKey.ExamAnswerKeyKey(id),
	).Err()
}

func parseCachedInt(v any) (int, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func (c *RedisSessionCache) QueueDeadline(ctx context.Context, examID uuid.UUID, studentID int, deadline time.Time) error {
	member := config.CacheKey.DeadlineMember(examID.String(), studentID)
	return c.rdb.ZAdd(ctx, config.CacheKey.DeadlineQueue(), redis.Z{
		Score:  float64(deadline.Unix()),
		Member: member,
	}).Err()
}

func (c *RedisSessionCache) DropDeadline(ctx context.Context, examID uuid.UUID, studentID int) error {
	member := config.CacheKey.DeadlineMember(examID.String(), studentID)
	return c.rdb.ZRem(ctx, config.CacheKey.DeadlineQueue(), member).Err()
}

// DropSession evicts every per-session key in one shot: the start time,
// the autosaved answers, and the deadline queue entry. Used after a
// finalize and when a guru purges results.
func (c *RedisSessionCache) DropSession(ctx context.Context, examID uuid.UUID, studentID int) error {
	id := examID.String()
	pipe := c.rdb.Pipeline()
	pipe.Del(ctx,
		config.CacheKey.SessionStartKey(id, studentID),
		config.CacheKey.StudentAnswersKey(id, studentID),
	)
	pipe.ZRem(ctx, config.CacheKey.DeadlineQueue(), config.CacheKey.DeadlineMember(id, studentID))
	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisSessionCache) DueDeadlines(ctx context.Context, now time.Time, limit int) ([]DeadlineEntry, error) {
	members, err := c.rdb.ZRangeByScore(ctx, config.CacheKey.DeadlineQueue(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("range deadline queue: %w", err)
	}

	entries := make([]DeadlineEntry, 0, len(members))
	for _, m := range members {
		examRaw, studentRaw, ok := strings.Cut(m, ":")
		if !ok {
			continue
		}
		examID, err := uuid.Parse(examRaw)
		if err != nil {
			continue
		}
		studentID, err := strconv.Atoi(studentRaw)
		if err != nil {
			continue
		}
		entries = append(entries, DeadlineEntry{ExamID: examID, StudentID: studentID})
	}
	return entries, nil
}

func (c *RedisSessionCache) PublishResult(ctx context.Context, examID uuid.UUID, payload []byte) error {
	return c.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(examID.String()), payload).Err()
}
