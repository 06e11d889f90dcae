package dto

import "time"

// Notification stream names.
const (
	NotificationStreamSubmissions      = "submissions"
	NotificationStreamReviews          = "reviews"
	NotificationStreamEliminations     = "eliminations"
	NotificationStreamRoundActivations = "round-activations"
)

// CompetitionNotification summarises unseen activity for a single competition.
type CompetitionNotification struct {
	CompetitionID    uint       `json:"competition_id"`
	CompetitionTitle string     `json:"competition_title"`
	Count            int64      `json:"count"`
	LatestAt         *time.Time `json:"latest_at,omitempty"`
}

// NotificationTouchResponse reports the effect of acknowledging a notification stream.
type NotificationTouchResponse struct {
	Stream        string    `json:"stream"`
	CompetitionID uint      `json:"competition_id"`
	Updated       int64     `json:"updated"`
	ViewedAt      time.Time `json:"viewed_at"`
}
