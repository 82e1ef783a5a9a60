package models

// Requests for the engine HTTP endpoints. Defined in domain for consistency
// between the Echo handlers and the ingest use case.

// ReadingRequest is the HTTP ingest payload. Timestamp is milliseconds since
// epoch, matching what the wearable bridge emits on every transport.
type ReadingRequest struct {
	Timestamp   int64    `json:"timestamp" validate:"required,gt=0"`
	HeartRate   *float64 `json:"heart_rate,omitempty"`
	HRV         *float64 `json:"hrv,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Motion      *float64 `json:"motion,omitempty"`
	Confidence  float64  `json:"confidence" default:"1.0" validate:"gte=0,lte=1"`
	Source      string   `json:"source" default:"watch" validate:"oneof=watch band phone simulator"`
}

type FeedbackRequest struct {
	EventID      string `json:"event_id" validate:"required"`
	WasCorrect   *bool  `json:"was_correct" validate:"required"`
	AnxietyLevel *int   `json:"anxiety_level,omitempty" validate:"omitempty,gte=0,lte=10"`
	Notes        string `json:"notes,omitempty" validate:"max=2000"`
	Timing       string `json:"timing" default:"immediate" validate:"oneof=immediate delayed retrospective"`
}

// ManualEventRequest reports an episode the engine never flagged.
type ManualEventRequest struct {
	Timestamp int64  `json:"timestamp" validate:"required,gt=0"`
	Notes     string `json:"notes,omitempty" validate:"max=2000"`
}

type EventsRequest struct {
	Since string `query:"since" json:"since"`
	Limit int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}
