package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/competition-hub-api/internal/dto"
	"github.com/noah-isme/competition-hub-api/internal/observability"
	"github.com/noah-isme/competition-hub-api/internal/repository"
)

var notificationStreams = []string{
	dto.NotificationStreamSubmissions,
	dto.NotificationStreamReviews,
	dto.NotificationStreamEliminations,
	dto.NotificationStreamRoundActivations,
}

// NotificationService aggregates the four notification streams and their acknowledgements.
type NotificationService interface {
	NewSubmissions(ctx context.Context, creator string) ([]dto.CompetitionNotification, error)
	NewReviews(ctx context.Context, applicantID string) ([]dto.CompetitionNotification, error)
	Eliminations(ctx context.Context, applicantID string) ([]dto.CompetitionNotification, error)
	RoundActivations(ctx context.Context, applicantID string) ([]dto.CompetitionNotification, error)

	TouchSubmissions(ctx context.Context, competitionID uint) (dto.NotificationTouchResponse, error)
	TouchReviews(ctx context.Context, competitionID uint, applicantID string) (dto.NotificationTouchResponse, error)
	TouchEliminations(ctx context.Context, competitionID uint, applicantID string) (dto.NotificationTouchResponse, error)
	TouchRoundActivations(ctx context.Context, competitionID uint, applicantID string) (dto.NotificationTouchResponse, error)

	// InvalidateForEvent drops cached streams of every event recipient.
	InvalidateForEvent(ctx context.Context, event Event)
}

type notificationService struct {
	repo         repository.NotificationRepository
	competitions repository.CompetitionRepository
	cache        *redis.Client
	ttl          time.Duration
	logger       zerolog.Logger
	tracer       trace.Tracer
	now          func() time.Time
}

// NewNotificationService constructs a notification service. The Redis cache is optional.
func NewNotificationService(repo repository.NotificationRepository, competitions repository.CompetitionRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) NotificationService {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &notificationService{
		repo:         repo,
		competitions: competitions,
		cache:        cache,
		ttl:          ttl,
		logger:       logger.With().Str("component", "notification_service").Logger(),
		tracer:       otel.Tracer("github.com/noah-isme/competition-hub-api/internal/service/notification"),
		now:          utcNow,
	}
}

func (s *notificationService) NewSubmissions(ctx context.Context, creator string) ([]dto.CompetitionNotification, error) {
	return s.cached(ctx, dto.NotificationStreamSubmissions, creator, func(ctx context.Context) ([]dto.CompetitionNotification, error) {
		rows, err := s.repo.NewSubmissionCounts(ctx, creator)
		if err != nil {
			return nil, err
		}
		return countsToNotifications(rows), nil
	})
}

func (s *notificationService) NewReviews(ctx context.Context, applicantID string) ([]dto.CompetitionNotification, error) {
	return s.cached(ctx, dto.NotificationStreamReviews, applicantID, func(ctx context.Context) ([]dto.CompetitionNotification, error) {
		rows, err := s.repo.NewReviewCounts(ctx, applicantID)
		if err != nil {
			return nil, err
		}
		return countsToNotifications(rows), nil
	})
}

func (s *notificationService) Eliminations(ctx context.Context, applicantID string) ([]dto.CompetitionNotification, error) {
	return s.cached(ctx, dto.NotificationStreamEliminations, applicantID, func(ctx context.Context) ([]dto.CompetitionNotification, error) {
		states, err := s.repo.ApplicantStates(ctx, applicantID)
		if err != nil {
			return nil, err
		}

		notices := make([]dto.CompetitionNotification, 0)
		for _, state := range states {
			if !state.HasUnseenElimination || !state.Competition.IsEliminated(applicantID) {
				continue
			}
			notices = append(notices, dto.CompetitionNotification{
				CompetitionID:    state.Competition.ID,
				CompetitionTitle: state.Competition.Title,
				Count:            1,
			})
		}
		return notices, nil
	})
}

func (s *notificationService) RoundActivations(ctx context.Context, applicantID string) ([]dto.CompetitionNotification, error) {
	return s.cached(ctx, dto.NotificationStreamRoundActivations, applicantID, func(ctx context.Context) ([]dto.CompetitionNotification, error) {
		states, err := s.repo.ApplicantStates(ctx, applicantID)
		if err != nil {
			return nil, err
		}

		notices := make([]dto.CompetitionNotification, 0)
		for _, state := range states {
			if state.Competition.IsEliminated(applicantID) {
				continue
			}

			lastSeen := time.Unix(0, 0).UTC()
			if state.LastRoundActivationViewAt != nil {
				lastSeen = *state.LastRoundActivationViewAt
			}

			var latest *time.Time
			for _, round := range state.Competition.Rounds {
				if round.ActivatedAt == nil || !round.ActivatedAt.After(lastSeen) {
					continue
				}
				if latest == nil || round.ActivatedAt.After(*latest) {
					activated := *round.ActivatedAt
					latest = &activated
				}
			}
			if latest == nil {
				continue
			}

			notices = append(notices, dto.CompetitionNotification{
				CompetitionID:    state.Competition.ID,
				CompetitionTitle: state.Competition.Title,
				Count:            1,
				LatestAt:         latest,
			})
		}
		return notices, nil
	})
}

func (s *notificationService) TouchSubmissions(ctx context.Context, competitionID uint) (dto.NotificationTouchResponse, error) {
	ctx, span := s.startTouch(ctx, dto.NotificationStreamSubmissions, competitionID)
	defer span.End()

	competition, err := s.competitions.GetByID(ctx, competitionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.NotificationTouchResponse{}, ErrCompetitionNotFound
		}
		span.RecordError(err)
		return dto.NotificationTouchResponse{}, err
	}

	viewedAt := s.now()
	if err := s.competitions.TouchCreatorView(ctx, competitionID, viewedAt); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.NotificationTouchResponse{}, ErrCompetitionNotFound
		}
		span.RecordError(err)
		return dto.NotificationTouchResponse{}, err
	}

	s.invalidate(ctx, competition.Creator, dto.NotificationStreamSubmissions)

	return dto.NotificationTouchResponse{
		Stream:        dto.NotificationStreamSubmissions,
		CompetitionID: competitionID,
		Updated:       1,
		ViewedAt:      viewedAt,
	}, nil
}

func (s *notificationService) TouchReviews(ctx context.Context, competitionID uint, applicantID string) (dto.NotificationTouchResponse, error) {
	ctx, span := s.startTouch(ctx, dto.NotificationStreamReviews, competitionID)
	defer span.End()

	count, err := s.repo.CountApplicantApplications(ctx, competitionID, applicantID)
	if err != nil {
		span.RecordError(err)
		return dto.NotificationTouchResponse{}, err
	}
	if count == 0 {
		return dto.NotificationTouchResponse{}, ErrNoApplications
	}

	viewedAt := s.now()
	updated, err := s.repo.TouchReviews(ctx, competitionID, applicantID, viewedAt)
	if err != nil {
		span.RecordError(err)
		return dto.NotificationTouchResponse{}, err
	}

	s.invalidate(ctx, applicantID, dto.NotificationStreamReviews)

	return dto.NotificationTouchResponse{
		Stream:        dto.NotificationStreamReviews,
		CompetitionID: competitionID,
		Updated:       updated,
		ViewedAt:      viewedAt,
	}, nil
}

func (s *notificationService) TouchEliminations(ctx context.Context, competitionID uint, applicantID string) (dto.NotificationTouchResponse, error) {
	ctx, span := s.startTouch(ctx, dto.NotificationStreamEliminations, competitionID)
	defer span.End()

	updated, err := s.repo.MarkEliminationSeen(ctx, competitionID, applicantID)
	if err != nil {
		span.RecordError(err)
		return dto.NotificationTouchResponse{}, err
	}

	s.invalidate(ctx, applicantID, dto.NotificationStreamEliminations)

	return dto.NotificationTouchResponse{
		Stream:        dto.NotificationStreamEliminations,
		CompetitionID: competitionID,
		Updated:       updated,
		ViewedAt:      s.now(),
	}, nil
}

func (s *notificationService) TouchRoundActivations(ctx context.Context, competitionID uint, applicantID string) (dto.NotificationTouchResponse, error) {
	ctx, span := s.startTouch(ctx, dto.NotificationStreamRoundActivations, competitionID)
	defer span.End()

	viewedAt := s.now()
	updated, err := s.repo.TouchRoundActivations(ctx, competitionID, applicantID, viewedAt)
	if err != nil {
		span.RecordError(err)
		return dto.NotificationTouchResponse{}, err
	}

	s.invalidate(ctx, applicantID, dto.NotificationStreamRoundActivations)

	return dto.NotificationTouchResponse{
		Stream:        dto.NotificationStreamRoundActivations,
		CompetitionID: competitionID,
		Updated:       updated,
		ViewedAt:      viewedAt,
	}, nil
}

func (s *notificationService) InvalidateForEvent(ctx context.Context, event Event) {
	for _, recipient := range event.Recipients {
		s.invalidate(ctx, recipient, notificationStreams...)
	}
}

func (s *notificationService) startTouch(ctx context.Context, stream string, competitionID uint) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "notifications.touch", trace.WithAttributes(
		attribute.String("notification.stream", stream),
		attribute.Int64("competition.id", int64(competitionID)),
	))
}

func (s *notificationService) cached(ctx context.Context, stream, userID string, load func(context.Context) ([]dto.CompetitionNotification, error)) ([]dto.CompetitionNotification, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrIdentityRequired
	}

	key := notificationCacheKey(stream, userID)
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key).Result()
		switch {
		case err == nil:
			var notices []dto.CompetitionNotification
			if err := json.Unmarshal([]byte(cached), &notices); err == nil {
				observability.NotificationCacheRequests().WithLabelValues(stream, "hit").Inc()
				return notices, nil
			}
			s.logger.Warn().Str("key", key).Msg("discarding undecodable notification cache entry")
		case !errors.Is(err, redis.Nil):
			s.logger.Warn().Err(err).Str("key", key).Msg("failed to read notification cache")
		}
	}

	notices, err := load(ctx)
	if err != nil {
		observability.NotificationCacheRequests().WithLabelValues(stream, "error").Inc()
		return nil, err
	}
	if notices == nil {
		notices = []dto.CompetitionNotification{}
	}

	if s.cache != nil {
		if payload, err := json.Marshal(notices); err == nil {
			if err := s.cache.Set(ctx, key, payload, s.ttl).Err(); err != nil {
				s.logger.Warn().Err(err).Str("key", key).Msg("failed to write notification cache")
			}
		}
	}

	observability.NotificationCacheRequests().WithLabelValues(stream, "miss").Inc()
	return notices, nil
}

func (s *notificationService) invalidate(ctx context.Context, userID string, streams ...string) {
	if s.cache == nil || userID == "" || len(streams) == 0 {
		return
	}

	keys := make([]string, 0, len(streams))
	for _, stream := range streams {
		keys = append(keys, notificationCacheKey(stream, userID))
	}
	if err := s.cache.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to invalidate notification cache")
	}
}

func notificationCacheKey(stream, userID string) string {
	return fmt.Sprintf("notifications:%s:%s", stream, userID)
}

func countsToNotifications(rows []repository.CompetitionCount) []dto.CompetitionNotification {
	notices := make([]dto.CompetitionNotification, 0, len(rows))
	for _, row := range rows {
		if row.Count <= 0 {
			continue
		}
		notices = append(notices, dto.CompetitionNotification{
			CompetitionID:    row.CompetitionID,
			CompetitionTitle: row.CompetitionTitle,
			Count:            row.Count,
		})
	}
	return notices
}
