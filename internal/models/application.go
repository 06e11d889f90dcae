package models

import "time"

// Application is one applicant's file submission to a competition, optionally tied to a round.
type Application struct {
	ID                          uint         `gorm:"primaryKey" json:"id"`
	CompetitionID               uint         `gorm:"index" json:"competition_id"`
	RoundID                     *uint        `gorm:"index" json:"round_id"`
	ApplicantID                 string       `gorm:"size:255;not null;index" json:"applicant_id"`
	ApplicantName               string       `gorm:"size:255" json:"applicant_name"`
	FilePath                    string       `gorm:"size:1024;not null" json:"-"`
	FileName                    string       `gorm:"size:512" json:"file_name"`
	MimeType                    string       `gorm:"size:128" json:"mime_type"`
	SizeBytes                   int64        `json:"size_bytes"`
	SubmittedAt                 time.Time    `gorm:"not null;index" json:"submitted_at"`
	ReviewText                  *string      `gorm:"type:text" json:"review_text"`
	ReviewPoints                *int         `json:"review_points"`
	ReviewCreatedAt             *time.Time   `json:"review_created_at"`
	ApplicantLastViewedReviewAt *time.Time   `json:"applicant_last_viewed_review_at"`
	EliminationSeen             bool         `gorm:"not null;default:false" json:"elimination_seen"`
	LastRoundActivationViewAt   *time.Time   `json:"last_round_activation_view_at"`
	CreatedAt                   time.Time    `json:"created_at"`
	UpdatedAt                   time.Time    `json:"updated_at"`
	Competition                 *Competition `gorm:"foreignKey:CompetitionID" json:"-"`
	Round                       *Round       `gorm:"foreignKey:RoundID" json:"-"`
}

// HasReview reports whether any review field is set. A fully cleared review counts as none.
func (a Application) HasReview() bool {
	return a.ReviewText != nil || a.ReviewPoints != nil
}

// HasUnseenReview reports whether the review changed after the applicant last looked at it.
func (a Application) HasUnseenReview() bool {
	if !a.HasReview() {
		return false
	}
	if a.ApplicantLastViewedReviewAt == nil {
		return true
	}
	if a.ReviewCreatedAt == nil {
		return false
	}
	return a.ApplicantLastViewedReviewAt.Before(*a.ReviewCreatedAt)
}
