package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/noah-isme/competition-hub-api/internal/dto"
	"github.com/noah-isme/competition-hub-api/internal/models"
	"github.com/noah-isme/competition-hub-api/internal/observability"
	"github.com/noah-isme/competition-hub-api/internal/repository"
)

// ReviewInput is a reviewer's submission. Nil fields mean "not supplied".
type ReviewInput struct {
	Text   *string
	Points *int
}

// ReviewRecorder stores reviews according to the competition's evaluation policy.
type ReviewRecorder interface {
	RecordReview(ctx context.Context, applicationID uint, input ReviewInput) (dto.ApplicationResponse, error)
}

// reviewRule describes which review fields a policy keeps.
type reviewRule struct {
	keepText       bool
	keepPoints     bool
	pointsRequired bool
}

var reviewRules = map[models.EvaluationPolicy]reviewRule{
	models.EvaluationText:   {keepText: true},
	models.EvaluationPoints: {keepPoints: true, pointsRequired: true},
	models.EvaluationBoth:   {keepText: true, keepPoints: true},
}

// apply normalises the input. Dropped fields are cleared, blank text clears stored text.
func (r reviewRule) apply(input ReviewInput, sanitize func(string) string) (*string, *int, error) {
	var points *int
	if r.keepPoints {
		if input.Points == nil {
			if r.pointsRequired {
				return nil, nil, ErrReviewPointsRequired
			}
		} else {
			if !models.PointsInRange(*input.Points) {
				return nil, nil, ErrInvalidReviewPoints
			}
			value := *input.Points
			points = &value
		}
	}

	var text *string
	if r.keepText && input.Text != nil {
		clean := strings.TrimSpace(sanitize(*input.Text))
		if clean != "" {
			text = &clean
		}
	}

	return text, points, nil
}

type reviewRecorder struct {
	applications repository.ApplicationRepository
	competitions repository.CompetitionRepository
	events       EventPublisher
	sanitizer    *bluemonday.Policy
	logger       zerolog.Logger
	now          func() time.Time
}

// NewReviewRecorder constructs the review recorder.
func NewReviewRecorder(applications repository.ApplicationRepository, competitions repository.CompetitionRepository, events EventPublisher, logger zerolog.Logger) ReviewRecorder {
	return &reviewRecorder{
		applications: applications,
		competitions: competitions,
		events:       events,
		sanitizer:    bluemonday.StrictPolicy(),
		logger:       logger.With().Str("component", "review_recorder").Logger(),
		now:          utcNow,
	}
}

func (r *reviewRecorder) RecordReview(ctx context.Context, applicationID uint, input ReviewInput) (dto.ApplicationResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/competition-hub-api/internal/service/review_recorder")
	ctx, span := tracer.Start(ctx, "reviews.record")
	span.SetAttributes(attribute.Int64("application.id", int64(applicationID)))
	defer span.End()

	application, err := r.applications.GetByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = ErrApplicationNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "application_lookup_failed")
		return dto.ApplicationResponse{}, err
	}

	competition, err := r.resolveCompetition(ctx, application)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "competition_unresolved")
		return dto.ApplicationResponse{}, err
	}
	span.SetAttributes(attribute.String("competition.evaluation_policy", string(competition.EvaluationPolicy)))

	rule, ok := reviewRules[competition.EvaluationPolicy]
	if !ok {
		span.SetStatus(codes.Error, "unknown_policy")
		return dto.ApplicationResponse{}, ErrInvalidEvaluationPolicy
	}

	text, points, err := rule.apply(input, r.sanitizer.Sanitize)
	if err != nil {
		observability.ReviewsRecorded().WithLabelValues(string(competition.EvaluationPolicy), "rejected").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.ApplicationResponse{}, err
	}

	reviewedAt := r.now()
	if err := r.applications.UpdateReview(ctx, application.ID, repository.ReviewUpdate{
		Text:      text,
		Points:    points,
		CreatedAt: reviewedAt,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "review_update_failed")
		return dto.ApplicationResponse{}, err
	}

	application.ReviewText = text
	application.ReviewPoints = points
	application.ReviewCreatedAt = &reviewedAt
	if application.CompetitionID == 0 {
		application.CompetitionID = competition.ID
	}

	observability.ReviewsRecorded().WithLabelValues(string(competition.EvaluationPolicy), "recorded").Inc()
	r.logger.Info().
		Uint("application_id", application.ID).
		Uint("competition_id", competition.ID).
		Str("policy", string(competition.EvaluationPolicy)).
		Msg("review recorded")

	if r.events != nil {
		id := application.ID
		r.events.Publish(ctx, Event{
			Kind:          EventReviewRecorded,
			CompetitionID: competition.ID,
			ApplicationID: &id,
			Recipients:    []string{application.ApplicantID},
			OccurredAt:    reviewedAt,
		})
	}

	return dto.NewApplicationResponse(application), nil
}

// resolveCompetition prefers the direct reference and falls back to the round's competition.
func (r *reviewRecorder) resolveCompetition(ctx context.Context, application models.Application) (models.Competition, error) {
	if application.Competition != nil && application.Competition.ID != 0 {
		return *application.Competition, nil
	}

	if application.Round != nil && application.Round.CompetitionID != 0 {
		competition, err := r.competitions.GetByID(ctx, application.Round.CompetitionID)
		if err == nil {
			return competition, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Competition{}, err
		}
	}

	return models.Competition{}, ErrReviewCompetitionUnresolved
}
