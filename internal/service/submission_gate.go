package service

import (
	"time"

	"github.com/noah-isme/competition-hub-api/internal/models"
)

// GateReason explains why a submission was refused.
type GateReason string

const (
	GateAllowed             GateReason = ""
	GateEliminated          GateReason = "eliminated"
	GateRoundNotFound       GateReason = "round_not_found"
	GateRoundDeadlinePassed GateReason = "round_deadline_passed"
	GateRoundInactive       GateReason = "round_inactive"
)

// GateDecision is the outcome of CanSubmit. Round is set when a round was requested and found.
type GateDecision struct {
	Allowed bool
	Reason  GateReason
	Round   *models.Round
}

// Err converts a refusal into the matching sentinel error.
func (d GateDecision) Err() error {
	switch d.Reason {
	case GateAllowed:
		return nil
	case GateEliminated:
		return ErrApplicantEliminated
	case GateRoundNotFound:
		return ErrRoundNotInCompetition
	case GateRoundDeadlinePassed:
		return ErrRoundDeadlinePassed
	case GateRoundInactive:
		return ErrRoundNotActive
	default:
		return ErrRoundNotActive
	}
}

// CanSubmit decides whether the applicant may submit to the competition, optionally for a round.
// Checks run in order: elimination, round membership, round deadline, round activity.
// Without a round only elimination is checked.
func CanSubmit(competition models.Competition, applicantID string, roundID *uint, today time.Time) GateDecision {
	if competition.IsEliminated(applicantID) {
		return GateDecision{Reason: GateEliminated}
	}

	if roundID == nil {
		return GateDecision{Allowed: true}
	}

	round, ok := competition.FindRound(*roundID)
	if !ok {
		return GateDecision{Reason: GateRoundNotFound}
	}

	if round.DeadlinePassed(today) {
		return GateDecision{Reason: GateRoundDeadlinePassed, Round: &round}
	}

	if !round.IsActive {
		return GateDecision{Reason: GateRoundInactive, Round: &round}
	}

	return GateDecision{Allowed: true, Round: &round}
}
