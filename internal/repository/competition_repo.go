package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/competition-hub-api/internal/models"
)

// ErrForeignRound indicates an update carried a round owned by another competition.
var ErrForeignRound = errors.New("round does not belong to competition")

// CompetitionMutation edits a competition that was read inside the update transaction.
type CompetitionMutation func(competition *models.Competition) error

// CompetitionFilter narrows competition listings.
type CompetitionFilter struct {
	Creator string
}

// CompetitionRepository defines data operations for competitions.
type CompetitionRepository interface {
	List(ctx context.Context, filter CompetitionFilter) ([]models.Competition, error)
	GetByID(ctx context.Context, id uint) (models.Competition, error)
	GetWithApplications(ctx context.Context, id uint) (models.Competition, error)
	Create(ctx context.Context, competition *models.Competition) error
	Update(ctx context.Context, id uint, mutate CompetitionMutation) (models.Competition, error)
	Delete(ctx context.Context, id uint) (models.Competition, error)
	ReplaceEliminated(ctx context.Context, id uint, applicants []string) ([]string, error)
	TouchCreatorView(ctx context.Context, id uint, viewedAt time.Time) error
}

type competitionRepository struct {
	db *gorm.DB
}

// NewCompetitionRepository instantiates the repository.
func NewCompetitionRepository(db *gorm.DB) CompetitionRepository {
	return &competitionRepository{db: db}
}

func (r *competitionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Competition{}).
		Preload("Rounds", func(db *gorm.DB) *gorm.DB {
			return db.Order("deadline ASC").Order("id ASC")
		})
}

func (r *competitionRepository) List(ctx context.Context, filter CompetitionFilter) ([]models.Competition, error) {
	query := r.baseQuery(ctx)
	if filter.Creator != "" {
		query = query.Where("creator = ?", filter.Creator)
	}

	var competitions []models.Competition
	if err := query.Order("application_deadline ASC").Order("id ASC").Find(&competitions).Error; err != nil {
		return nil, err
	}

	return competitions, nil
}

func (r *competitionRepository) GetByID(ctx context.Context, id uint) (models.Competition, error) {
	var competition models.Competition
	if err := r.baseQuery(ctx).First(&competition, id).Error; err != nil {
		return models.Competition{}, err
	}

	return competition, nil
}

func (r *competitionRepository) GetWithApplications(ctx context.Context, id uint) (models.Competition, error) {
	var competition models.Competition
	if err := r.baseQuery(ctx).
		Preload("Applications", func(db *gorm.DB) *gorm.DB {
			return db.Order("submitted_at ASC").Order("id ASC")
		}).
		First(&competition, id).Error; err != nil {
		return models.Competition{}, err
	}

	return competition, nil
}

// Create inserts the competition together with its rounds in their current slice order.
func (r *competitionRepository) Create(ctx context.Context, competition *models.Competition) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rounds := competition.Rounds
		competition.Rounds = nil
		defer func() { competition.Rounds = rounds }()

		if err := tx.Omit("Applications").Create(competition).Error; err != nil {
			return err
		}

		for i := range rounds {
			rounds[i].CompetitionID = competition.ID
			if err := tx.Create(&rounds[i]).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

// Update re-reads the competition and its rounds inside a transaction, lets mutate edit them and
// writes back only the editable columns. Activation flags of stored rounds are never written here;
// a round is activated only when the competition had no active round when it was read.
func (r *competitionRepository) Update(ctx context.Context, id uint, mutate CompetitionMutation) (models.Competition, error) {
	var updated models.Competition

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var competition models.Competition
		if err := tx.First(&competition, id).Error; err != nil {
			return err
		}

		var rounds []models.Round
		if err := tx.Where("competition_id = ?", id).Find(&rounds).Error; err != nil {
			return err
		}
		models.SortRounds(rounds)
		competition.Rounds = rounds

		stored := make(map[uint]models.Round, len(rounds))
		for _, round := range rounds {
			stored[round.ID] = round
		}
		activationOpen := models.ActiveRoundIndex(rounds) < 0

		if err := mutate(&competition); err != nil {
			return err
		}

		if err := tx.Model(&models.Competition{}).Where("id = ?", id).Updates(map[string]interface{}{
			"title":                competition.Title,
			"description":          competition.Description,
			"evaluation_policy":    competition.EvaluationPolicy,
			"application_deadline": competition.ApplicationDeadline,
		}).Error; err != nil {
			return err
		}

		for i := range competition.Rounds {
			round := &competition.Rounds[i]
			if round.ID == 0 {
				round.CompetitionID = id
				round.IsActive = round.IsActive && activationOpen
				round.ActivatedAt = nil
				if round.IsActive {
					activationOpen = false
				}
				if err := tx.Create(round).Error; err != nil {
					return err
				}
				continue
			}

			original, ok := stored[round.ID]
			if !ok {
				return ErrForeignRound
			}

			if round.Description != original.Description || !round.Deadline.Equal(original.Deadline) {
				if err := tx.Model(&models.Round{}).Where("id = ?", round.ID).Updates(map[string]interface{}{
					"description": round.Description,
					"deadline":    round.Deadline,
				}).Error; err != nil {
					return err
				}
			}

			if activationOpen && round.IsActive && !original.IsActive {
				activated := tx.Model(&models.Round{}).
					Where("id = ? AND is_active = ?", round.ID, false).
					Update("is_active", true)
				if activated.Error != nil {
					return activated.Error
				}
				if activated.RowsAffected != 1 {
					return ErrStaleRoundState
				}
				activationOpen = false
			}
		}

		return tx.Preload("Rounds", func(db *gorm.DB) *gorm.DB {
			return db.Order("deadline ASC").Order("id ASC")
		}).First(&updated, id).Error
	})
	if err != nil {
		return models.Competition{}, err
	}

	models.SortRounds(updated.Rounds)
	return updated, nil
}

// Delete removes the competition, its rounds and its applications atomically.
// The removed competition is returned with its applications so callers can notify the people involved.
func (r *competitionRepository) Delete(ctx context.Context, id uint) (models.Competition, error) {
	var removed models.Competition

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Applications").First(&removed, id).Error; err != nil {
			return err
		}

		if err := tx.Where("competition_id = ?", id).Delete(&models.Application{}).Error; err != nil {
			return err
		}
		if err := tx.Where("competition_id = ?", id).Delete(&models.Round{}).Error; err != nil {
			return err
		}

		result := tx.Delete(&models.Competition{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		return nil
	})
	if err != nil {
		return models.Competition{}, err
	}

	return removed, nil
}

// ReplaceEliminated overwrites the eliminated applicant set and returns the previous set.
// Newly eliminated applicants get their elimination notice re-armed.
func (r *competitionRepository) ReplaceEliminated(ctx context.Context, id uint, applicants []string) ([]string, error) {
	var previous []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var competition models.Competition
		if err := tx.First(&competition, id).Error; err != nil {
			return err
		}
		previous = append([]string{}, competition.EliminatedApplicants...)

		next := models.EliminatedSet(applicants)
		added := make([]string, 0, len(next))
		for _, applicant := range next {
			if !competition.IsEliminated(applicant) {
				added = append(added, applicant)
			}
		}

		if err := tx.Model(&competition).Update("eliminated_applicants", next).Error; err != nil {
			return err
		}
		if len(added) == 0 {
			return nil
		}

		return tx.Model(&models.Application{}).
			Where("competition_id = ? AND applicant_id IN ?", id, added).
			Update("elimination_seen", false).Error
	})
	if err != nil {
		return nil, err
	}

	return previous, nil
}

func (r *competitionRepository) TouchCreatorView(ctx context.Context, id uint, viewedAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.Competition{}).
		Where("id = ?", id).
		Update("creator_last_viewed_at", viewedAt)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}
