package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key for a student's login session (JTI).
func (r *CacheKeyStruct) StudentSessionKey(studentID int) string {
	return fmt.Sprintf("login:%d", studentID)
}

// SessionStartKey returns the cache key for a student's exam session start time.
func (r *CacheKeyStruct) SessionStartKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:session_start", studentID, examID)
}

// StudentAnswersKey returns the cache key for a student's autosaved answers.
func (r *CacheKeyStruct) StudentAnswersKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:answers", studentID, examID)
}

// ExamDurationKey returns the cache key for an exam's duration in minutes.
func (r *CacheKeyStruct) ExamDurationKey(examID string) string {
	return fmt.Sprintf("exam:%s:duration", examID)
}

// ExamTotalQuestionsKey returns the cache key for an exam's question count.
func (r *CacheKeyStruct) ExamTotalQuestionsKey(examID string) string {
	return fmt.Sprintf("exam:%s:total_questions", examID)
}

// ExamChoiceSetKey returns the cache key for an exam's allowed choice set.
func (r *CacheKeyStruct) ExamChoiceSetKey(examID string) string {
	return fmt.Sprintf("exam:%s:choice_set", examID)
}

// ExamAnswerKeyKey returns the cache key for an exam's answer key hash.
func (r *CacheKeyStruct) ExamAnswerKeyKey(examID string) string {
	return fmt.Sprintf("exam:%s:key", examID)
}

// ExamMonitorChannel returns the Redis PubSub channel for an exam's live monitor.
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

// DeadlineQueue is the sorted set of open session deadlines, scored by the
// Unix timestamp at which the session must be force-finalized.
func (r *CacheKeyStruct) DeadlineQueue() string {
	return "session_deadlines"
}

// DeadlineMember encodes one (exam, student) pair as a deadline queue member.
func (r *CacheKeyStruct) DeadlineMember(examID string, studentID int) string {
	return fmt.Sprintf("%s:%d", examID, studentID)
}

var CacheKey = NewCacheKeyStruct()
