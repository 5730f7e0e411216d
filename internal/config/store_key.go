package config

import "fmt"

// Store collection names. These mirror the collections the browser
// client reads and writes, so the names are part of the wire contract.
const (
	ColQuestions = "questions"
	ColUsers     = "users"
	ColSettings  = "settings"
	ColResults   = "results"
	ColSessions  = "sessions"
	ColTimers    = "timers"
	ColAdmin     = "admin"
)

// Singleton document ids.
const (
	SettingsDocID = "global"
	ResultsDocID  = "all"
	AdminDocID    = "credentials"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// CandidateLoginKey returns the cache key holding a candidate's active
// login token id (single-device enforcement).
func (r *CacheKeyStruct) CandidateLoginKey(username string) string {
	return fmt.Sprintf("login:%s", username)
}

var CacheKey = NewCacheKeyStruct()
