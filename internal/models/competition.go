package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Competition represents a contest accepting file applications, optionally split into rounds.
type Competition struct {
	ID                   uint                        `gorm:"primaryKey" json:"id"`
	Title                string                      `gorm:"size:255;not null" json:"title"`
	Description          string                      `gorm:"type:text" json:"description"`
	Creator              string                      `gorm:"size:255;not null;index" json:"creator"`
	ApplicationDeadline  time.Time                   `gorm:"not null" json:"application_deadline"`
	EvaluationPolicy     EvaluationPolicy            `gorm:"size:16;not null" json:"evaluation_policy"`
	EliminatedApplicants datatypes.JSONSlice[string] `json:"eliminated_applicants"`
	CreatorLastViewedAt  *time.Time                  `json:"creator_last_viewed_at"`
	CreatedAt            time.Time                   `json:"created_at"`
	UpdatedAt            time.Time                   `json:"updated_at"`
	Rounds               []Round                     `gorm:"foreignKey:CompetitionID" json:"rounds,omitempty"`
	Applications         []Application               `gorm:"foreignKey:CompetitionID" json:"applications,omitempty"`
}

// SyncApplicationDeadline derives the application deadline from the earliest round deadline.
// Without rounds the explicitly assigned deadline is kept.
func (c *Competition) SyncApplicationDeadline() {
	if len(c.Rounds) == 0 {
		return
	}

	earliest := c.Rounds[0].Deadline
	for _, round := range c.Rounds[1:] {
		if round.Deadline.Before(earliest) {
			earliest = round.Deadline
		}
	}
	c.ApplicationDeadline = earliest
}

// IsEliminated reports whether the applicant was excluded from the competition.
func (c Competition) IsEliminated(applicantID string) bool {
	applicantID = strings.TrimSpace(applicantID)
	if applicantID == "" {
		return false
	}
	for _, eliminated := range c.EliminatedApplicants {
		if eliminated == applicantID {
			return true
		}
	}
	return false
}

// FindRound returns the round with the given id when it belongs to the competition.
func (c Competition) FindRound(id uint) (Round, bool) {
	for _, round := range c.Rounds {
		if round.ID == id {
			return round, true
		}
	}
	return Round{}, false
}

// EliminatedSet builds the persisted form of an eliminated applicant set.
func EliminatedSet(ids []string) datatypes.JSONSlice[string] {
	return datatypes.JSONSlice[string](NormalizeApplicantSet(ids))
}

// NormalizeApplicantSet trims identifiers and drops blanks and duplicates while keeping order.
func NormalizeApplicantSet(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}
