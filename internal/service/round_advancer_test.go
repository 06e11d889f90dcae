package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/competition-hub-api/internal/models"
)

func seedRounds(t *testing.T, db *memoryDB, eliminated []string, rounds ...models.Round) models.Competition {
	t.Helper()
	competition := models.Competition{
		Title:                "Hackathon",
		Creator:              "creator-1",
		EvaluationPolicy:     models.EvaluationPoints,
		EliminatedApplicants: models.EliminatedSet(eliminated),
		Rounds:               rounds,
	}
	require.NoError(t, (&competitionRepoFake{db: db}).Create(context.Background(), &competition))
	return competition
}

func newTestAdvancer(db *memoryDB, events EventPublisher, now time.Time) *roundAdvancer {
	advancer := NewRoundAdvancer(&roundRepoFake{db: db}, &applicationRepoFake{db: db}, events, testLogger()).(*roundAdvancer)
	advancer.now = fixedClock(now)
	return advancer
}

func TestRoundAdvancerScenario(t *testing.T) {
	db := newMemoryDB()
	competition := seedRounds(t, db, nil,
		models.Round{Description: "R1", Deadline: date("2025-01-01"), IsActive: true},
		models.Round{Description: "R2", Deadline: date("2025-02-01")},
	)

	early := newTestAdvancer(db, nil, time.Date(2024, 12, 31, 15, 0, 0, 0, time.UTC))
	_, err := early.ActivateNext(context.Background(), competition.ID)
	require.ErrorIs(t, err, ErrRoundDeadlineNotReached)

	onDeadline := newTestAdvancer(db, nil, time.Date(2025, 1, 1, 23, 0, 0, 0, time.UTC))
	_, err = onDeadline.ActivateNext(context.Background(), competition.ID)
	require.ErrorIs(t, err, ErrRoundDeadlineNotReached)

	stored, err := (&competitionRepoFake{db: db}).GetByID(context.Background(), competition.ID)
	require.NoError(t, err)
	require.True(t, stored.Rounds[0].IsActive)
	require.False(t, stored.Rounds[1].IsActive)

	now := time.Date(2025, 1, 2, 8, 30, 0, 0, time.UTC)
	advancer := newTestAdvancer(db, nil, now)
	result, err := advancer.ActivateNext(context.Background(), competition.ID)
	require.NoError(t, err)
	require.Equal(t, "R1", result.Previous.Description)
	require.False(t, result.Previous.IsActive)
	require.Equal(t, "R2", result.Active.Description)
	require.True(t, result.Active.IsActive)
	require.NotNil(t, result.Active.ActivatedAt)
	require.True(t, result.Active.ActivatedAt.Equal(now))

	stored, err = (&competitionRepoFake{db: db}).GetByID(context.Background(), competition.ID)
	require.NoError(t, err)
	require.False(t, stored.Rounds[0].IsActive)
	require.Nil(t, stored.Rounds[0].ActivatedAt)
	require.True(t, stored.Rounds[1].IsActive)
}

func TestRoundAdvancerLastRoundConflicts(t *testing.T) {
	db := newMemoryDB()
	competition := seedRounds(t, db, nil,
		models.Round{Description: "R1", Deadline: date("2025-01-01")},
		models.Round{Description: "R2", Deadline: date("2025-02-01"), IsActive: true},
	)

	advancer := newTestAdvancer(db, nil, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	_, err := advancer.ActivateNext(context.Background(), competition.ID)
	require.ErrorIs(t, err, ErrNoNextRound)

	stored, err := (&competitionRepoFake{db: db}).GetByID(context.Background(), competition.ID)
	require.NoError(t, err)
	require.True(t, stored.Rounds[1].IsActive)
	require.Nil(t, stored.Rounds[1].ActivatedAt)
}

func TestRoundAdvancerInvalidStates(t *testing.T) {
	db := newMemoryDB()
	noRounds := seedRounds(t, db, nil)
	noActive := seedRounds(t, db, nil,
		models.Round{Description: "R1", Deadline: date("2025-01-01")},
		models.Round{Description: "R2", Deadline: date("2025-02-01")},
	)

	advancer := newTestAdvancer(db, nil, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))

	_, err := advancer.ActivateNext(context.Background(), noRounds.ID)
	require.ErrorIs(t, err, ErrNoRounds)

	_, err = advancer.ActivateNext(context.Background(), noActive.ID)
	require.ErrorIs(t, err, ErrNoActiveRound)

	_, err = advancer.ActivateNext(context.Background(), 4242)
	require.ErrorIs(t, err, ErrCompetitionNotFound)
}

func TestRoundAdvancerOrdersRoundsByDeadlineBeforeAdvancing(t *testing.T) {
	db := newMemoryDB()
	competition := seedRounds(t, db, nil,
		models.Round{Description: "final", Deadline: date("2025-03-01")},
		models.Round{Description: "opening", Deadline: date("2025-01-01"), IsActive: true},
		models.Round{Description: "middle", Deadline: date("2025-02-01")},
	)

	advancer := newTestAdvancer(db, nil, time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC))
	result, err := advancer.ActivateNext(context.Background(), competition.ID)
	require.NoError(t, err)
	require.Equal(t, "opening", result.Previous.Description)
	require.Equal(t, "middle", result.Active.Description)
}

func TestRoundAdvancerActivatesLowerIDTwinFirst(t *testing.T) {
	db := newMemoryDB()
	competition := seedRounds(t, db, nil,
		models.Round{Description: "opening", Deadline: date("2025-01-01"), IsActive: true},
		models.Round{Description: "zulu", Deadline: date("2025-02-01")},
		models.Round{Description: "alpha", Deadline: date("2025-02-01")},
	)
	require.Less(t, competition.Rounds[1].ID, competition.Rounds[2].ID)

	result, err := newTestAdvancer(db, nil, time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)).ActivateNext(context.Background(), competition.ID)
	require.NoError(t, err)
	require.Equal(t, "zulu", result.Active.Description)
	require.Equal(t, competition.Rounds[1].ID, result.Active.ID)

	result, err = newTestAdvancer(db, nil, time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC)).ActivateNext(context.Background(), competition.ID)
	require.NoError(t, err)
	require.Equal(t, "zulu", result.Previous.Description)
	require.Equal(t, "alpha", result.Active.Description)
}

func TestRoundAdvancerNotifiesRemainingApplicants(t *testing.T) {
	db := newMemoryDB()
	competition := seedRounds(t, db, []string{"bob"},
		models.Round{Description: "R1", Deadline: date("2025-01-01"), IsActive: true},
		models.Round{Description: "R2", Deadline: date("2025-02-01")},
	)
	for _, applicant := range []string{"alice", "bob", "alice"} {
		db.putApplication(models.Application{CompetitionID: competition.ID, ApplicantID: applicant})
	}

	events := &recordingPublisher{}
	advancer := newTestAdvancer(db, events, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))
	_, err := advancer.ActivateNext(context.Background(), competition.ID)
	require.NoError(t, err)

	require.Len(t, events.events, 1)
	event := events.events[0]
	require.Equal(t, EventRoundActivated, event.Kind)
	require.Equal(t, []string{"alice"}, event.Recipients)
	require.NotNil(t, event.RoundID)
}
