package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/competition-hub-api/internal/models"
)

// ApplicationFilter allows narrowing application queries.
type ApplicationFilter struct {
	CompetitionID *uint
	RoundID       *uint
	ApplicantID   string
}

// ReviewUpdate holds the normalised review fields to persist.
type ReviewUpdate struct {
	Text      *string
	Points    *int
	CreatedAt time.Time
}

// ApplicationRepository defines data operations for applications.
type ApplicationRepository interface {
	List(ctx context.Context, filter ApplicationFilter) ([]models.Application, error)
	GetByID(ctx context.Context, id uint) (models.Application, error)
	Create(ctx context.Context, application *models.Application) error
	UpdateReview(ctx context.Context, id uint, review ReviewUpdate) error
	ApplicantIDs(ctx context.Context, competitionID uint) ([]string, error)
}

type applicationRepository struct {
	db *gorm.DB
}

// NewApplicationRepository instantiates the repository.
func NewApplicationRepository(db *gorm.DB) ApplicationRepository {
	return &applicationRepository{db: db}
}

func (r *applicationRepository) List(ctx context.Context, filter ApplicationFilter) ([]models.Application, error) {
	query := r.db.WithContext(ctx).Model(&models.Application{})

	if filter.CompetitionID != nil {
		query = query.Where("competition_id = ?", *filter.CompetitionID)
	}
	if filter.RoundID != nil {
		query = query.Where("round_id = ?", *filter.RoundID)
	}
	if filter.ApplicantID != "" {
		query = query.Where("applicant_id = ?", filter.ApplicantID)
	}

	var applications []models.Application
	if err := query.Order("submitted_at DESC").Order("id DESC").Find(&applications).Error; err != nil {
		return nil, err
	}

	return applications, nil
}

func (r *applicationRepository) GetByID(ctx context.Context, id uint) (models.Application, error) {
	var application models.Application
	if err := r.db.WithContext(ctx).
		Preload("Competition").
		Preload("Round").
		First(&application, id).Error; err != nil {
		return models.Application{}, err
	}

	return application, nil
}

func (r *applicationRepository) Create(ctx context.Context, application *models.Application) error {
	return r.db.WithContext(ctx).Omit("Competition", "Round").Create(application).Error
}

// UpdateReview writes all three review columns, including nulls, in a single statement.
func (r *applicationRepository) UpdateReview(ctx context.Context, id uint, review ReviewUpdate) error {
	result := r.db.WithContext(ctx).Model(&models.Application{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"review_text":       review.Text,
			"review_points":     review.Points,
			"review_created_at": review.CreatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

// ApplicantIDs returns the distinct applicants who applied to the competition.
func (r *applicationRepository) ApplicantIDs(ctx context.Context, competitionID uint) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&models.Application{}).
		Where("competition_id = ?", competitionID).
		Distinct().
		Order("applicant_id ASC").
		Pluck("applicant_id", &ids).Error; err != nil {
		return nil, err
	}

	return ids, nil
}
