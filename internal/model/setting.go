package model

// Settings is the global exam configuration document. Read-mostly
// during an exam; changes do not propagate to in-progress sessions.
type Settings struct {
	DurationMin    int              `json:"durationMin"`
	CustomMsg      string           `json:"customMsg"`
	Shuffle        bool             `json:"shuffle"`
	AllowAfterTime bool             `json:"allowAfterTime"`
	ResumeEnabled  bool             `json:"resumeEnabled"`
	MaxResumes     int              `json:"maxResumes"`
	Logo           string           `json:"logo"`
	Author         string           `json:"author"`
	College        string           `json:"college"`
	Subject        string           `json:"subject"`
	SubjectCode    string           `json:"subjectCode"`
	FullMarks      int              `json:"fullMarks"`
	Counts         map[Category]int `json:"counts"`
}

// DefaultSettings returns the configuration used when no settings
// document exists yet or it cannot be read.
func DefaultSettings() Settings {
	return Settings{
		DurationMin:    20,
		CustomMsg:      "Welcome to your exam! Stay calm, focus, and do your best!",
		Shuffle:        false,
		AllowAfterTime: false,
		ResumeEnabled:  true,
		MaxResumes:     2,
		Counts: map[Category]int{
			CategorySynopsis:       0,
			CategoryMinorPractical: 0,
			CategoryMajorPractical: 0,
			CategoryViva:           0,
		},
	}
}

// DurationMs converts the configured duration to milliseconds, with a
// one-minute floor so a zero or negative setting cannot produce an
// instantly-expired exam.
func (s Settings) DurationMs() int64 {
	min := s.DurationMin
	if min < 1 {
		min = 1
	}
	return int64(min) * 60_000
}

// ResumeLimit returns the effective max-resumes threshold.
func (s Settings) ResumeLimit() int {
	if s.MaxResumes <= 0 {
		return 2
	}
	return s.MaxResumes
}
