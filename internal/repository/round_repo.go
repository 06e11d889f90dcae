package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/competition-hub-api/internal/models"
)

// ErrStaleRoundState indicates the rounds changed between reading and writing a transition.
var ErrStaleRoundState = errors.New("round state changed concurrently")

// RoundTransition captures the rounds involved in an activation.
type RoundTransition struct {
	Competition models.Competition
	Previous    models.Round
	Activated   models.Round
}

// AdvanceDecision inspects the canonically ordered rounds and picks the indexes to deactivate and activate.
type AdvanceDecision func(competition models.Competition, rounds []models.Round) (from, to int, err error)

// RoundRepository defines data operations for competition rounds.
type RoundRepository interface {
	ListByCompetition(ctx context.Context, competitionID uint) ([]models.Round, error)
	Advance(ctx context.Context, competitionID uint, decide AdvanceDecision, activatedAt time.Time) (RoundTransition, error)
}

type roundRepository struct {
	db *gorm.DB
}

// NewRoundRepository instantiates the repository.
func NewRoundRepository(db *gorm.DB) RoundRepository {
	return &roundRepository{db: db}
}

func (r *roundRepository) ListByCompetition(ctx context.Context, competitionID uint) ([]models.Round, error) {
	var rounds []models.Round
	if err := r.db.WithContext(ctx).
		Where("competition_id = ?", competitionID).
		Order("deadline ASC").
		Order("id ASC").
		Find(&rounds).Error; err != nil {
		return nil, err
	}

	models.SortRounds(rounds)
	return rounds, nil
}

// Advance re-reads the rounds inside a transaction, asks decide which rounds to swap and
// flips both flags with guarded updates so a concurrent transition cannot be applied twice.
func (r *roundRepository) Advance(ctx context.Context, competitionID uint, decide AdvanceDecision, activatedAt time.Time) (RoundTransition, error) {
	var transition RoundTransition

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var competition models.Competition
		if err := tx.First(&competition, competitionID).Error; err != nil {
			return err
		}

		var rounds []models.Round
		if err := tx.Where("competition_id = ?", competitionID).Find(&rounds).Error; err != nil {
			return err
		}
		models.SortRounds(rounds)
		competition.Rounds = rounds

		from, to, err := decide(competition, rounds)
		if err != nil {
			return err
		}

		previous := rounds[from]
		next := rounds[to]

		deactivated := tx.Model(&models.Round{}).
			Where("id = ? AND is_active = ?", previous.ID, true).
			Update("is_active", false)
		if deactivated.Error != nil {
			return deactivated.Error
		}
		if deactivated.RowsAffected != 1 {
			return ErrStaleRoundState
		}

		activated := tx.Model(&models.Round{}).
			Where("id = ? AND is_active = ?", next.ID, false).
			Updates(map[string]interface{}{
				"is_active":    true,
				"activated_at": activatedAt,
			})
		if activated.Error != nil {
			return activated.Error
		}
		if activated.RowsAffected != 1 {
			return ErrStaleRoundState
		}

		previous.IsActive = false
		next.IsActive = true
		next.ActivatedAt = &activatedAt
		rounds[from] = previous
		rounds[to] = next

		transition = RoundTransition{
			Competition: competition,
			Previous:    previous,
			Activated:   next,
		}
		return nil
	})
	if err != nil {
		return RoundTransition{}, err
	}

	return transition, nil
}
