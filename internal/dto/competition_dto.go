package dto

import (
	"time"

	"github.com/noah-isme/competition-hub-api/internal/models"
)

// RoundInput describes a round supplied when creating or updating a competition.
type RoundInput struct {
	ID          *uint  `json:"id" validate:"omitempty,gt=0"`
	Description string `json:"description" validate:"required,max=5000"`
	Deadline    string `json:"deadline" validate:"required,datetime=2006-01-02"`
}

// CompetitionCreateRequest describes the payload for creating a competition.
type CompetitionCreateRequest struct {
	Title               string       `json:"title" validate:"required,min=3,max=255"`
	Description         string       `json:"description" validate:"omitempty,max=20000"`
	ApplicationDeadline string       `json:"application_deadline" validate:"omitempty,datetime=2006-01-02"`
	EvaluationPolicy    string       `json:"evaluation_policy" validate:"required,oneof=TEXT POINTS BOTH text points both"`
	Rounds              []RoundInput `json:"rounds" validate:"omitempty,dive"`
}

// CompetitionUpdateRequest describes a partial competition update. Rounds are upserted by id.
type CompetitionUpdateRequest struct {
	Title               *string      `json:"title" validate:"omitempty,min=3,max=255"`
	Description         *string      `json:"description" validate:"omitempty,max=20000"`
	ApplicationDeadline *string      `json:"application_deadline" validate:"omitempty,datetime=2006-01-02"`
	EvaluationPolicy    *string      `json:"evaluation_policy" validate:"omitempty,oneof=TEXT POINTS BOTH text points both"`
	Rounds              []RoundInput `json:"rounds" validate:"omitempty,dive"`
}

// EliminateApplicantsRequest replaces the set of eliminated applicants.
type EliminateApplicantsRequest struct {
	Applicants []string `json:"applicants" validate:"dive,max=255"`
}

// RoundResponse is the serialized representation of a round.
type RoundResponse struct {
	ID            uint       `json:"id"`
	CompetitionID uint       `json:"competition_id"`
	Description   string     `json:"description"`
	Deadline      string     `json:"deadline"`
	IsActive      bool       `json:"is_active"`
	ActivatedAt   *time.Time `json:"activated_at"`
}

// CompetitionResponse is the serialized representation returned to API clients.
type CompetitionResponse struct {
	ID                   uint                  `json:"id"`
	Title                string                `json:"title"`
	Description          string                `json:"description"`
	Creator              string                `json:"creator"`
	ApplicationDeadline  string                `json:"application_deadline"`
	EvaluationPolicy     string                `json:"evaluation_policy"`
	EliminatedApplicants []string              `json:"eliminated_applicants"`
	ActiveRoundID        *uint                 `json:"active_round_id"`
	Rounds               []RoundResponse       `json:"rounds"`
	Applications         []ApplicationResponse `json:"applications,omitempty"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

// RoundAdvanceResponse reports the outcome of a round transition.
type RoundAdvanceResponse struct {
	CompetitionID uint          `json:"competition_id"`
	Previous      RoundResponse `json:"previous"`
	Active        RoundResponse `json:"active"`
}

// NewRoundResponse converts a round model into a DTO.
func NewRoundResponse(model models.Round) RoundResponse {
	return RoundResponse{
		ID:            model.ID,
		CompetitionID: model.CompetitionID,
		Description:   model.Description,
		Deadline:      model.Deadline.Format(models.DateLayout),
		IsActive:      model.IsActive,
		ActivatedAt:   model.ActivatedAt,
	}
}

// NewCompetitionResponse converts a competition model into a DTO. Rounds are emitted in canonical order.
func NewCompetitionResponse(model models.Competition) CompetitionResponse {
	rounds := append([]models.Round(nil), model.Rounds...)
	models.SortRounds(rounds)

	response := CompetitionResponse{
		ID:                   model.ID,
		Title:                model.Title,
		Description:          model.Description,
		Creator:              model.Creator,
		ApplicationDeadline:  model.ApplicationDeadline.Format(models.DateLayout),
		EvaluationPolicy:     string(model.EvaluationPolicy),
		EliminatedApplicants: append([]string{}, model.EliminatedApplicants...),
		Rounds:               make([]RoundResponse, 0, len(rounds)),
		CreatedAt:            model.CreatedAt,
		UpdatedAt:            model.UpdatedAt,
	}

	for _, round := range rounds {
		response.Rounds = append(response.Rounds, NewRoundResponse(round))
		if round.IsActive && response.ActiveRoundID == nil {
			id := round.ID
			response.ActiveRoundID = &id
		}
	}

	if len(model.Applications) > 0 {
		response.Applications = NewApplicationResponseSlice(model.Applications)
	}

	return response
}

// NewCompetitionResponseSlice converts competition models into DTOs.
func NewCompetitionResponseSlice(competitions []models.Competition) []CompetitionResponse {
	responses := make([]CompetitionResponse, 0, len(competitions))
	for _, competition := range competitions {
		responses = append(responses, NewCompetitionResponse(competition))
	}

	return responses
}
