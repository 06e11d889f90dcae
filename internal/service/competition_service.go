package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/competition-hub-api/internal/dto"
	"github.com/noah-isme/competition-hub-api/internal/models"
	"github.com/noah-isme/competition-hub-api/internal/repository"
)

// CompetitionService exposes competition management use cases.
type CompetitionService interface {
	List(ctx context.Context, creator string) ([]dto.CompetitionResponse, error)
	Get(ctx context.Context, id uint) (dto.CompetitionResponse, error)
	Create(ctx context.Context, creator string, payload dto.CompetitionCreateRequest) (dto.CompetitionResponse, error)
	Update(ctx context.Context, id uint, payload dto.CompetitionUpdateRequest) (dto.CompetitionResponse, error)
	Delete(ctx context.Context, id uint) error
	EliminateApplicants(ctx context.Context, id uint, payload dto.EliminateApplicantsRequest) (dto.CompetitionResponse, error)
}

type competitionService struct {
	repo       repository.CompetitionRepository
	events     EventPublisher
	validator  *validator.Validate
	titles     *bluemonday.Policy
	paragraphs *bluemonday.Policy
	logger     zerolog.Logger
}

// NewCompetitionService constructs a CompetitionService instance.
func NewCompetitionService(repo repository.CompetitionRepository, events EventPublisher, validate *validator.Validate, logger zerolog.Logger) CompetitionService {
	return &competitionService{
		repo:       repo,
		events:     events,
		validator:  validate,
		titles:     bluemonday.StrictPolicy(),
		paragraphs: bluemonday.UGCPolicy(),
		logger:     logger.With().Str("component", "competition_service").Logger(),
	}
}

func (s *competitionService) List(ctx context.Context, creator string) ([]dto.CompetitionResponse, error) {
	competitions, err := s.repo.List(ctx, repository.CompetitionFilter{Creator: strings.TrimSpace(creator)})
	if err != nil {
		return nil, err
	}

	return dto.NewCompetitionResponseSlice(competitions), nil
}

func (s *competitionService) Get(ctx context.Context, id uint) (dto.CompetitionResponse, error) {
	competition, err := s.repo.GetWithApplications(ctx, id)
	if err != nil {
		return dto.CompetitionResponse{}, s.translate(err)
	}

	return dto.NewCompetitionResponse(competition), nil
}

func (s *competitionService) Create(ctx context.Context, creator string, payload dto.CompetitionCreateRequest) (dto.CompetitionResponse, error) {
	creator = strings.TrimSpace(creator)
	if creator == "" {
		return dto.CompetitionResponse{}, ErrIdentityRequired
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.CompetitionResponse{}, err
	}

	policy, err := models.ParseEvaluationPolicy(payload.EvaluationPolicy)
	if err != nil {
		return dto.CompetitionResponse{}, fmt.Errorf("%w: %s", ErrInvalidEvaluationPolicy, payload.EvaluationPolicy)
	}

	if len(payload.Rounds) == 0 && strings.TrimSpace(payload.ApplicationDeadline) == "" {
		return dto.CompetitionResponse{}, ErrDeadlineRequired
	}

	competition := models.Competition{
		Title:                strings.TrimSpace(s.titles.Sanitize(payload.Title)),
		Description:          strings.TrimSpace(s.paragraphs.Sanitize(payload.Description)),
		Creator:              creator,
		EvaluationPolicy:     policy,
		EliminatedApplicants: models.EliminatedSet(nil),
	}

	if payload.ApplicationDeadline != "" {
		deadline, err := models.ParseDate(payload.ApplicationDeadline)
		if err != nil {
			return dto.CompetitionResponse{}, err
		}
		competition.ApplicationDeadline = deadline
	}

	for _, input := range payload.Rounds {
		round, err := s.roundFromInput(input)
		if err != nil {
			return dto.CompetitionResponse{}, err
		}
		competition.Rounds = append(competition.Rounds, round)
	}

	if len(competition.Rounds) > 0 {
		models.SortRounds(competition.Rounds)
		competition.Rounds[0].IsActive = true
	}
	competition.SyncApplicationDeadline()

	if err := s.repo.Create(ctx, &competition); err != nil {
		return dto.CompetitionResponse{}, err
	}

	s.logger.Info().Uint("competition_id", competition.ID).Int("rounds", len(competition.Rounds)).Msg("competition created")

	return dto.NewCompetitionResponse(competition), nil
}

func (s *competitionService) Update(ctx context.Context, id uint, payload dto.CompetitionUpdateRequest) (dto.CompetitionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.CompetitionResponse{}, err
	}

	var policy *models.EvaluationPolicy
	if payload.EvaluationPolicy != nil {
		parsed, err := models.ParseEvaluationPolicy(*payload.EvaluationPolicy)
		if err != nil {
			return dto.CompetitionResponse{}, fmt.Errorf("%w: %s", ErrInvalidEvaluationPolicy, *payload.EvaluationPolicy)
		}
		policy = &parsed
	}

	var deadline *time.Time
	if payload.ApplicationDeadline != nil {
		parsed, err := models.ParseDate(*payload.ApplicationDeadline)
		if err != nil {
			return dto.CompetitionResponse{}, err
		}
		deadline = &parsed
	}

	competition, err := s.repo.Update(ctx, id, func(loaded *models.Competition) error {
		if payload.Title != nil {
			loaded.Title = strings.TrimSpace(s.titles.Sanitize(*payload.Title))
		}
		if payload.Description != nil {
			loaded.Description = strings.TrimSpace(s.paragraphs.Sanitize(*payload.Description))
		}
		if policy != nil {
			loaded.EvaluationPolicy = *policy
		}
		if deadline != nil {
			loaded.ApplicationDeadline = *deadline
		}

		if err := s.mergeRounds(loaded, payload.Rounds); err != nil {
			return err
		}
		loaded.SyncApplicationDeadline()
		return nil
	})
	if err != nil {
		return dto.CompetitionResponse{}, s.translate(err)
	}

	s.logger.Info().Uint("competition_id", competition.ID).Int("rounds", len(competition.Rounds)).Msg("competition updated")

	return dto.NewCompetitionResponse(competition), nil
}

// mergeRounds upserts rounds by id. New rounds start inactive; the earliest round is
// activated only when nothing is active after the merge. Once a round is active, rounds
// before it stay before it and every other round stays after it.
func (s *competitionService) mergeRounds(competition *models.Competition, inputs []dto.RoundInput) error {
	if len(inputs) == 0 {
		return nil
	}

	models.SortRounds(competition.Rounds)
	active := models.ActiveRoundIndex(competition.Rounds)
	finished := make(map[uint]struct{})
	var activeID uint
	if active >= 0 {
		activeID = competition.Rounds[active].ID
		for _, round := range competition.Rounds[:active] {
			finished[round.ID] = struct{}{}
		}
	}

	index := make(map[uint]int, len(competition.Rounds))
	for i, round := range competition.Rounds {
		index[round.ID] = i
	}

	for _, input := range inputs {
		round, err := s.roundFromInput(input)
		if err != nil {
			return err
		}

		if input.ID == nil {
			competition.Rounds = append(competition.Rounds, round)
			continue
		}

		position, ok := index[*input.ID]
		if !ok {
			return fmt.Errorf("%w: %d", ErrUnknownRound, *input.ID)
		}
		competition.Rounds[position].Description = round.Description
		competition.Rounds[position].Deadline = round.Deadline
	}

	models.SortRounds(competition.Rounds)
	if active < 0 {
		competition.Rounds[0].IsActive = true
		return nil
	}

	return checkRoundOrder(competition.Rounds, activeID, finished)
}

// checkRoundOrder rejects orderings that would move a finished round behind the active one
// or place a pending round ahead of it.
func checkRoundOrder(rounds []models.Round, activeID uint, finished map[uint]struct{}) error {
	pastActive := false
	for _, round := range rounds {
		if round.ID == activeID {
			pastActive = true
			continue
		}

		_, done := finished[round.ID]
		if done == pastActive {
			label := "new round"
			if round.ID != 0 {
				label = fmt.Sprintf("round %d", round.ID)
			}
			return fmt.Errorf("%w: %s due %s", ErrRoundOrderConflict, label, round.Deadline.Format(models.DateLayout))
		}
	}
	return nil
}

func (s *competitionService) roundFromInput(input dto.RoundInput) (models.Round, error) {
	deadline, err := models.ParseDate(input.Deadline)
	if err != nil {
		return models.Round{}, err
	}

	return models.Round{
		Description: strings.TrimSpace(s.paragraphs.Sanitize(input.Description)),
		Deadline:    deadline,
	}, nil
}

func (s *competitionService) Delete(ctx context.Context, id uint) error {
	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		return s.translate(err)
	}

	recipients := make([]string, 0, len(removed.Applications)+1)
	recipients = append(recipients, removed.Creator)
	for _, application := range removed.Applications {
		recipients = append(recipients, application.ApplicantID)
	}
	recipients = models.NormalizeApplicantSet(recipients)

	s.logger.Info().Uint("competition_id", id).Int("recipients", len(recipients)).Msg("competition deleted")

	if s.events != nil {
		s.events.Publish(ctx, Event{Kind: EventCompetitionDeleted, CompetitionID: id, Recipients: recipients})
	}
	return nil
}

func (s *competitionService) EliminateApplicants(ctx context.Context, id uint, payload dto.EliminateApplicantsRequest) (dto.CompetitionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.CompetitionResponse{}, err
	}

	next := models.NormalizeApplicantSet(payload.Applicants)
	previous, err := s.repo.ReplaceEliminated(ctx, id, next)
	if err != nil {
		return dto.CompetitionResponse{}, s.translate(err)
	}

	added, removed := diffApplicantSets(previous, next)
	s.logger.Info().
		Uint("competition_id", id).
		Int("eliminated", len(next)).
		Int("added", len(added)).
		Int("reinstated", len(removed)).
		Msg("eliminated applicants replaced")

	if s.events != nil {
		if len(added) > 0 {
			s.events.Publish(ctx, Event{Kind: EventApplicantsEliminated, CompetitionID: id, Recipients: added})
		}
		if len(removed) > 0 {
			s.events.Publish(ctx, Event{Kind: EventApplicantsReinstated, CompetitionID: id, Recipients: removed})
		}
	}

	competition, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return dto.CompetitionResponse{}, s.translate(err)
	}

	return dto.NewCompetitionResponse(competition), nil
}

func (s *competitionService) translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrCompetitionNotFound
	case errors.Is(err, repository.ErrForeignRound):
		return ErrUnknownRound
	case errors.Is(err, repository.ErrStaleRoundState):
		return ErrConcurrentAdvance
	default:
		return err
	}
}

func diffApplicantSets(previous, next []string) (added, removed []string) {
	before := make(map[string]struct{}, len(previous))
	for _, id := range previous {
		before[id] = struct{}{}
	}
	after := make(map[string]struct{}, len(next))
	for _, id := range next {
		after[id] = struct{}{}
		if _, ok := before[id]; !ok {
			added = append(added, id)
		}
	}
	for _, id := range previous {
		if _, ok := after[id]; !ok {
			removed = append(removed, id)
		}
	}
	return added, removed
}
