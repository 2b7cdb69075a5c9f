package models

import "time"

// Segment is one timed span of the transcript
type Segment struct {
	ID         int     `json:"id"`
	Start      float64 `json:"start"` // seconds
	End        float64 `json:"end"`   // seconds
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
	Silence    float64 `json:"silence,omitempty"` // leading silence trimmed, seconds
}

// JobResult holds the finished transcript. Immutable once attached to a
// JobState.
type JobResult struct {
	Text           string    `json:"text"`
	Segments       []Segment `json:"segments"`
	Duration       float64   `json:"duration"`        // media length in seconds
	ProcessingTime float64   `json:"processing_time"` // seconds spent transcribing
	Model          string    `json:"model"`
	Language       string    `json:"language,omitempty"`
	WordCount      int       `json:"word_count"`
	CharCount      int       `json:"char_count"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
	CompletedAt    time.Time `json:"completed_at,omitempty"`
}
