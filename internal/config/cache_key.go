package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key for a student's login session
func (r *CacheKeyStruct) StudentSessionKey(email string) string {
	return fmt.Sprintf("login:student:%s", email)
}

// AdminSessionKey returns the cache key for an admin's login session
func (r *CacheKeyStruct) AdminSessionKey(adminID string) string {
	return fmt.Sprintf("login:admin:%s", adminID)
}

// AttemptStateKey returns the cache key for a student's live attempt state
func (r *CacheKeyStruct) AttemptStateKey(examID, email string) string {
	return fmt.Sprintf("student:%s:exam:%s:attempt", email, examID)
}

// StudentAnswersKey returns the cache key for a student's saved answers
func (r *CacheKeyStruct) StudentAnswersKey(examID, email string) string {
	return fmt.Sprintf("student:%s:exam:%s:answers", email, examID)
}

// StudentActiveExamKey returns the cache key for a student's currently active exam
func (r *CacheKeyStruct) StudentActiveExamKey(email string) string {
	return fmt.Sprintf("student:%s:active_exam", email)
}

// ExamPaperKey returns the cache key for a published exam's student-facing paper
func (r *CacheKeyStruct) ExamPaperKey(examID string) string {
	return fmt.Sprintf("exam:%s:paper", examID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()
