package repository

import (
	"context"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/competition-hub-api/internal/models"
)

// CompetitionCount is an aggregate row keyed by competition.
type CompetitionCount struct {
	CompetitionID    uint
	CompetitionTitle string
	Count            int64
}

// ApplicantCompetitionState summarises one applicant's view state within a competition.
type ApplicantCompetitionState struct {
	Competition               models.Competition
	HasUnseenElimination      bool
	LastRoundActivationViewAt *time.Time
}

// NotificationRepository answers the aggregate queries behind the notification streams
// and records acknowledgements.
type NotificationRepository interface {
	NewSubmissionCounts(ctx context.Context, creator string) ([]CompetitionCount, error)
	NewReviewCounts(ctx context.Context, applicantID string) ([]CompetitionCount, error)
	ApplicantStates(ctx context.Context, applicantID string) ([]ApplicantCompetitionState, error)
	CountApplicantApplications(ctx context.Context, competitionID uint, applicantID string) (int64, error)
	TouchReviews(ctx context.Context, competitionID uint, applicantID string, viewedAt time.Time) (int64, error)
	MarkEliminationSeen(ctx context.Context, competitionID uint, applicantID string) (int64, error)
	TouchRoundActivations(ctx context.Context, competitionID uint, applicantID string, viewedAt time.Time) (int64, error)
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository constructs a repository backed by GORM.
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) countsQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("applications AS a").
		Select("c.id AS competition_id, c.title AS competition_title, COUNT(a.id) AS count").
		Joins("JOIN competitions c ON c.id = a.competition_id").
		Group("c.id, c.title").
		Order("c.id ASC")
}

// NewSubmissionCounts counts applications received after the creator last looked at each competition.
func (r *notificationRepository) NewSubmissionCounts(ctx context.Context, creator string) ([]CompetitionCount, error) {
	var rows []CompetitionCount
	if err := r.countsQuery(ctx).
		Where("c.creator = ?", creator).
		Where("(c.creator_last_viewed_at IS NULL OR a.submitted_at > c.creator_last_viewed_at)").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	return rows, nil
}

// NewReviewCounts counts reviewed applications whose review the applicant has not seen yet.
func (r *notificationRepository) NewReviewCounts(ctx context.Context, applicantID string) ([]CompetitionCount, error) {
	var rows []CompetitionCount
	if err := r.countsQuery(ctx).
		Where("a.applicant_id = ?", applicantID).
		Where("(a.review_text IS NOT NULL OR a.review_points IS NOT NULL)").
		Where("(a.applicant_last_viewed_review_at IS NULL OR a.applicant_last_viewed_review_at < a.review_created_at)").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	return rows, nil
}

type applicantApplicationRow struct {
	CompetitionID             uint
	EliminationSeen           bool
	LastRoundActivationViewAt *time.Time
}

// ApplicantStates loads every competition the applicant applied to, with rounds, plus the
// applicant's acknowledgement markers folded across their applications.
func (r *notificationRepository) ApplicantStates(ctx context.Context, applicantID string) ([]ApplicantCompetitionState, error) {
	var rows []applicantApplicationRow
	if err := r.db.WithContext(ctx).Model(&models.Application{}).
		Select("competition_id, elimination_seen, last_round_activation_view_at").
		Where("applicant_id = ?", applicantID).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	states := make(map[uint]*ApplicantCompetitionState)
	for _, row := range rows {
		state, ok := states[row.CompetitionID]
		if !ok {
			state = &ApplicantCompetitionState{}
			states[row.CompetitionID] = state
		}
		if !row.EliminationSeen {
			state.HasUnseenElimination = true
		}
		if row.LastRoundActivationViewAt != nil {
			if state.LastRoundActivationViewAt == nil || row.LastRoundActivationViewAt.After(*state.LastRoundActivationViewAt) {
				viewed := *row.LastRoundActivationViewAt
				state.LastRoundActivationViewAt = &viewed
			}
		}
	}

	ids := make([]uint, 0, len(states))
	for id := range states {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var competitions []models.Competition
	if err := r.db.WithContext(ctx).
		Preload("Rounds").
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&competitions).Error; err != nil {
		return nil, err
	}

	result := make([]ApplicantCompetitionState, 0, len(competitions))
	for _, competition := range competitions {
		models.SortRounds(competition.Rounds)
		state := states[competition.ID]
		state.Competition = competition
		result = append(result, *state)
	}

	return result, nil
}

func (r *notificationRepository) applicantScope(ctx context.Context, competitionID uint, applicantID string) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Application{}).
		Where("competition_id = ? AND applicant_id = ?", competitionID, applicantID)
}

func (r *notificationRepository) CountApplicantApplications(ctx context.Context, competitionID uint, applicantID string) (int64, error) {
	var count int64
	if err := r.applicantScope(ctx, competitionID, applicantID).Count(&count).Error; err != nil {
		return 0, err
	}

	return count, nil
}

func (r *notificationRepository) TouchReviews(ctx context.Context, competitionID uint, applicantID string, viewedAt time.Time) (int64, error) {
	result := r.applicantScope(ctx, competitionID, applicantID).
		Update("applicant_last_viewed_review_at", viewedAt)
	return result.RowsAffected, result.Error
}

func (r *notificationRepository) MarkEliminationSeen(ctx context.Context, competitionID uint, applicantID string) (int64, error) {
	result := r.applicantScope(ctx, competitionID, applicantID).
		Where("elimination_seen = ?", false).
		Update("elimination_seen", true)
	return result.RowsAffected, result.Error
}

func (r *notificationRepository) TouchRoundActivations(ctx context.Context, competitionID uint, applicantID string, viewedAt time.Time) (int64, error) {
	result := r.applicantScope(ctx, competitionID, applicantID).
		Update("last_round_activation_view_at", viewedAt)
	return result.RowsAffected, result.Error
}
