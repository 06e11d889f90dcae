package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/competition-hub-api/internal/models"
)

func TestCanSubmit(t *testing.T) {
	today := date("2025-01-15")
	competition := models.Competition{
		ID:                   1,
		EliminatedApplicants: models.EliminatedSet([]string{"banned1"}),
		Rounds: []models.Round{
			{ID: 10, CompetitionID: 1, Deadline: date("2025-01-10")},
			{ID: 11, CompetitionID: 1, Deadline: date("2025-01-20"), IsActive: true},
			{ID: 12, CompetitionID: 1, Deadline: date("2025-02-20")},
			{ID: 13, CompetitionID: 1, Deadline: date("2025-01-15"), IsActive: true},
		},
	}

	cases := []struct {
		name      string
		applicant string
		round     *uint
		reason    GateReason
		err       error
	}{
		{name: "no round", applicant: "alice", reason: GateAllowed},
		{name: "eliminated without round", applicant: "banned1", reason: GateEliminated, err: ErrApplicantEliminated},
		{name: "eliminated with open active round", applicant: "banned1", round: uintPtr(11), reason: GateEliminated, err: ErrApplicantEliminated},
		{name: "round from elsewhere", applicant: "alice", round: uintPtr(99), reason: GateRoundNotFound, err: ErrRoundNotInCompetition},
		{name: "deadline passed", applicant: "alice", round: uintPtr(10), reason: GateRoundDeadlinePassed, err: ErrRoundDeadlinePassed},
		{name: "inactive round", applicant: "alice", round: uintPtr(12), reason: GateRoundInactive, err: ErrRoundNotActive},
		{name: "active round", applicant: "alice", round: uintPtr(11), reason: GateAllowed},
		{name: "deadline today still open", applicant: "alice", round: uintPtr(13), reason: GateAllowed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision := CanSubmit(competition, tc.applicant, tc.round, today)
			require.Equal(t, tc.reason, decision.Reason)
			require.Equal(t, tc.reason == GateAllowed, decision.Allowed)
			if tc.err == nil {
				require.NoError(t, decision.Err())
			} else {
				require.ErrorIs(t, decision.Err(), tc.err)
			}
		})
	}
}

func TestCanSubmitReturnsMatchedRound(t *testing.T) {
	competition := models.Competition{Rounds: []models.Round{{ID: 4, Deadline: date("2030-01-01"), IsActive: true}}}

	decision := CanSubmit(competition, "alice", uintPtr(4), date("2029-12-31"))
	require.True(t, decision.Allowed)
	require.NotNil(t, decision.Round)
	require.Equal(t, uint(4), decision.Round.ID)
}
