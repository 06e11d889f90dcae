package models

import (
	"math"
	"sort"
	"time"
)

// DateLayout is the wire format of civil dates such as round deadlines.
const DateLayout = "2006-01-02"

// Round is a time-boxed submission phase of a competition.
type Round struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	CompetitionID uint       `gorm:"not null;index" json:"competition_id"`
	Description   string     `gorm:"type:text;not null" json:"description"`
	Deadline      time.Time  `gorm:"not null" json:"deadline"`
	IsActive      bool       `gorm:"not null;default:false" json:"is_active"`
	ActivatedAt   *time.Time `json:"activated_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// DeadlinePassed reports whether the deadline lies strictly before the given day.
func (r Round) DeadlinePassed(today time.Time) bool {
	return r.Deadline.Before(DateOf(today))
}

// SortRounds orders rounds by deadline, breaking ties by creation order (id).
// Unsaved rounds (id 0) sort after saved ones and keep their relative input order.
func SortRounds(rounds []Round) {
	sort.SliceStable(rounds, func(i, j int) bool {
		if !rounds[i].Deadline.Equal(rounds[j].Deadline) {
			return rounds[i].Deadline.Before(rounds[j].Deadline)
		}
		return creationKey(rounds[i]) < creationKey(rounds[j])
	})
}

func creationKey(r Round) uint64 {
	if r.ID == 0 {
		return math.MaxUint64
	}
	return uint64(r.ID)
}

// ActiveRoundIndex returns the index of the first active round, or -1.
func ActiveRoundIndex(rounds []Round) int {
	for i, round := range rounds {
		if round.IsActive {
			return i
		}
	}
	return -1
}

// DateOf truncates a timestamp to its civil date, expressed as UTC midnight.
func DateOf(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a civil date in DateLayout.
func ParseDate(value string) (time.Time, error) {
	parsed, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, err
	}
	return DateOf(parsed), nil
}
