package service

import (
	"context"
	"errors"
	"time"

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

// RoundAdvancer moves a competition from its active round to the next one.
type RoundAdvancer interface {
	ActivateNext(ctx context.Context, competitionID uint) (dto.RoundAdvanceResponse, error)
}

type roundAdvancer struct {
	rounds       repository.RoundRepository
	applications repository.ApplicationRepository
	events       EventPublisher
	logger       zerolog.Logger
	now          func() time.Time
}

// NewRoundAdvancer constructs the round state machine.
func NewRoundAdvancer(rounds repository.RoundRepository, applications repository.ApplicationRepository, events EventPublisher, logger zerolog.Logger) RoundAdvancer {
	return &roundAdvancer{
		rounds:       rounds,
		applications: applications,
		events:       events,
		logger:       logger.With().Str("component", "round_advancer").Logger(),
		now:          utcNow,
	}
}

func (a *roundAdvancer) ActivateNext(ctx context.Context, competitionID uint) (dto.RoundAdvanceResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/competition-hub-api/internal/service/round_advancer")
	ctx, span := tracer.Start(ctx, "rounds.activate_next")
	span.SetAttributes(attribute.Int64("competition.id", int64(competitionID)))
	defer span.End()

	now := a.now()
	transition, err := a.rounds.Advance(ctx, competitionID, nextRoundDecision(now), now)
	if err != nil {
		err = translateAdvanceError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "advance_rejected")
		observability.RoundAdvancements().WithLabelValues(advanceResult(err)).Inc()
		return dto.RoundAdvanceResponse{}, err
	}

	observability.RoundAdvancements().WithLabelValues("activated").Inc()
	span.SetAttributes(
		attribute.Int64("round.previous_id", int64(transition.Previous.ID)),
		attribute.Int64("round.activated_id", int64(transition.Activated.ID)),
	)

	a.logger.Info().
		Uint("competition_id", competitionID).
		Uint("previous_round_id", transition.Previous.ID).
		Uint("activated_round_id", transition.Activated.ID).
		Msg("round activated")

	a.notify(ctx, transition)

	return dto.RoundAdvanceResponse{
		CompetitionID: competitionID,
		Previous:      dto.NewRoundResponse(transition.Previous),
		Active:        dto.NewRoundResponse(transition.Activated),
	}, nil
}

func (a *roundAdvancer) notify(ctx context.Context, transition repository.RoundTransition) {
	if a.events == nil {
		return
	}

	applicants, err := a.applications.ApplicantIDs(ctx, transition.Competition.ID)
	if err != nil {
		a.logger.Warn().Err(err).Uint("competition_id", transition.Competition.ID).Msg("failed to resolve round activation recipients")
		return
	}

	recipients := make([]string, 0, len(applicants))
	for _, applicant := range applicants {
		if !transition.Competition.IsEliminated(applicant) {
			recipients = append(recipients, applicant)
		}
	}

	roundID := transition.Activated.ID
	a.events.Publish(ctx, Event{
		Kind:          EventRoundActivated,
		CompetitionID: transition.Competition.ID,
		RoundID:       &roundID,
		Recipients:    recipients,
		OccurredAt:    a.now(),
	})
}

// nextRoundDecision validates the round sequence against today's date and selects the
// active round and its successor.
func nextRoundDecision(today time.Time) repository.AdvanceDecision {
	return func(_ models.Competition, rounds []models.Round) (int, int, error) {
		if len(rounds) == 0 {
			return 0, 0, ErrNoRounds
		}

		current := models.ActiveRoundIndex(rounds)
		if current < 0 {
			return 0, 0, ErrNoActiveRound
		}

		if !rounds[current].DeadlinePassed(today) {
			return 0, 0, ErrRoundDeadlineNotReached
		}

		if current == len(rounds)-1 {
			return 0, 0, ErrNoNextRound
		}

		return current, current + 1, nil
	}
}

func translateAdvanceError(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrCompetitionNotFound
	case errors.Is(err, repository.ErrStaleRoundState):
		return ErrConcurrentAdvance
	default:
		return err
	}
}

func advanceResult(err error) string {
	switch {
	case errors.Is(err, ErrCompetitionNotFound):
		return "not_found"
	case errors.Is(err, ErrNoRounds), errors.Is(err, ErrNoActiveRound):
		return "invalid_state"
	case errors.Is(err, ErrRoundDeadlineNotReached):
		return "forbidden"
	case errors.Is(err, ErrNoNextRound), errors.Is(err, ErrConcurrentAdvance):
		return "conflict"
	default:
		return "error"
	}
}

func utcNow() time.Time {
	return time.Now().UTC()
}
