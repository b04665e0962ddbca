package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AttemptDeadlineKey returns the cache key for an attempt's absolute deadline
// (unix seconds). Written once at start; read with a DB fallback.
func (r *CacheKeyStruct) AttemptDeadlineKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:ends_at", attemptID)
}

// AttemptViolationsKey returns the sorted-set key holding the trailing
// violation window for an attempt.
func (r *CacheKeyStruct) AttemptViolationsKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:violations", attemptID)
}

// QuizMonitorChannel returns the Redis PubSub channel name carrying live
// attempt lifecycle notifications for a quiz.
func (r *CacheKeyStruct) QuizMonitorChannel(quizID string) string {
	return fmt.Sprintf("quiz:%s:monitor", quizID)
}

var CacheKey = NewCacheKeyStruct()
