package service

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"mime/multipart"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/competition-hub-api/internal/models"
	"github.com/noah-isme/competition-hub-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func date(value string) time.Time {
	parsed, err := models.ParseDate(value)
	if err != nil {
		panic(err)
	}
	return parsed
}

func uintPtr(v uint) *uint { return &v }

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

// memoryDB backs the in-memory repository fakes.
type memoryDB struct {
	mu           sync.Mutex
	nextID       uint
	competitions map[uint]models.Competition
	applications map[uint]models.Application
}

func newMemoryDB() *memoryDB {
	return &memoryDB{
		competitions: make(map[uint]models.Competition),
		applications: make(map[uint]models.Application),
	}
}

func (m *memoryDB) id() uint {
	m.nextID++
	return m.nextID
}

func copyCompetition(competition models.Competition) models.Competition {
	competition.Rounds = append([]models.Round(nil), competition.Rounds...)
	competition.EliminatedApplicants = append([]string(nil), competition.EliminatedApplicants...)
	competition.Applications = nil
	models.SortRounds(competition.Rounds)
	return competition
}

type competitionRepoFake struct {
	db *memoryDB
}

func (r *competitionRepoFake) List(_ context.Context, filter repository.CompetitionFilter) ([]models.Competition, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	result := make([]models.Competition, 0)
	for _, competition := range r.db.competitions {
		if filter.Creator != "" && competition.Creator != filter.Creator {
			continue
		}
		result = append(result, copyCompetition(competition))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *competitionRepoFake) GetByID(_ context.Context, id uint) (models.Competition, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	competition, ok := r.db.competitions[id]
	if !ok {
		return models.Competition{}, gorm.ErrRecordNotFound
	}
	return copyCompetition(competition), nil
}

func (r *competitionRepoFake) GetWithApplications(ctx context.Context, id uint) (models.Competition, error) {
	competition, err := r.GetByID(ctx, id)
	if err != nil {
		return models.Competition{}, err
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, application := range r.db.applications {
		if application.CompetitionID == id {
			competition.Applications = append(competition.Applications, application)
		}
	}
	sort.Slice(competition.Applications, func(i, j int) bool {
		return competition.Applications[i].ID < competition.Applications[j].ID
	})
	return competition, nil
}

func (r *competitionRepoFake) Create(_ context.Context, competition *models.Competition) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	competition.ID = r.db.id()
	for i := range competition.Rounds {
		competition.Rounds[i].ID = r.db.id()
		competition.Rounds[i].CompetitionID = competition.ID
	}
	r.db.competitions[competition.ID] = copyCompetition(*competition)
	return nil
}

func (r *competitionRepoFake) Update(_ context.Context, id uint, mutate repository.CompetitionMutation) (models.Competition, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	stored, ok := r.db.competitions[id]
	if !ok {
		return models.Competition{}, gorm.ErrRecordNotFound
	}
	competition := copyCompetition(stored)
	flags := make(map[uint]models.Round, len(competition.Rounds))
	for _, round := range competition.Rounds {
		flags[round.ID] = round
	}
	activationOpen := models.ActiveRoundIndex(competition.Rounds) < 0

	if err := mutate(&competition); err != nil {
		return models.Competition{}, err
	}

	for i := range competition.Rounds {
		round := &competition.Rounds[i]
		round.CompetitionID = id
		if round.ID == 0 {
			round.ID = r.db.id()
			round.IsActive = round.IsActive && activationOpen
			continue
		}
		original, ok := flags[round.ID]
		if !ok {
			return models.Competition{}, repository.ErrForeignRound
		}
		if !(activationOpen && round.IsActive) {
			round.IsActive = original.IsActive
		}
		round.ActivatedAt = original.ActivatedAt
	}
	competition.EliminatedApplicants = stored.EliminatedApplicants
	competition.CreatorLastViewedAt = stored.CreatorLastViewedAt

	r.db.competitions[id] = copyCompetition(competition)
	return copyCompetition(competition), nil
}

func (r *competitionRepoFake) Delete(_ context.Context, id uint) (models.Competition, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	competition, ok := r.db.competitions[id]
	if !ok {
		return models.Competition{}, gorm.ErrRecordNotFound
	}
	delete(r.db.competitions, id)
	for appID, application := range r.db.applications {
		if application.CompetitionID == id {
			competition.Applications = append(competition.Applications, application)
			delete(r.db.applications, appID)
		}
	}
	return competition, nil
}

func (r *competitionRepoFake) ReplaceEliminated(_ context.Context, id uint, applicants []string) ([]string, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	competition, ok := r.db.competitions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	previous := append([]string{}, competition.EliminatedApplicants...)
	next := models.EliminatedSet(applicants)
	for appID, application := range r.db.applications {
		if application.CompetitionID == id && !competition.IsEliminated(application.ApplicantID) {
			for _, added := range next {
				if added == application.ApplicantID {
					application.EliminationSeen = false
					r.db.applications[appID] = application
				}
			}
		}
	}
	competition.EliminatedApplicants = next
	r.db.competitions[id] = competition
	return previous, nil
}

func (r *competitionRepoFake) TouchCreatorView(_ context.Context, id uint, viewedAt time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	competition, ok := r.db.competitions[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	competition.CreatorLastViewedAt = &viewedAt
	r.db.competitions[id] = competition
	return nil
}

type roundRepoFake struct {
	db *memoryDB
}

func (r *roundRepoFake) ListByCompetition(_ context.Context, competitionID uint) ([]models.Round, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	competition, ok := r.db.competitions[competitionID]
	if !ok {
		return nil, nil
	}
	return copyCompetition(competition).Rounds, nil
}

func (r *roundRepoFake) Advance(_ context.Context, competitionID uint, decide repository.AdvanceDecision, activatedAt time.Time) (repository.RoundTransition, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	stored, ok := r.db.competitions[competitionID]
	if !ok {
		return repository.RoundTransition{}, gorm.ErrRecordNotFound
	}
	competition := copyCompetition(stored)

	from, to, err := decide(competition, competition.Rounds)
	if err != nil {
		return repository.RoundTransition{}, err
	}
	if !competition.Rounds[from].IsActive || competition.Rounds[to].IsActive {
		return repository.RoundTransition{}, repository.ErrStaleRoundState
	}

	competition.Rounds[from].IsActive = false
	competition.Rounds[to].IsActive = true
	competition.Rounds[to].ActivatedAt = &activatedAt
	r.db.competitions[competitionID] = competition

	return repository.RoundTransition{
		Competition: competition,
		Previous:    competition.Rounds[from],
		Activated:   competition.Rounds[to],
	}, nil
}

type applicationRepoFake struct {
	db        *memoryDB
	createErr error
}

func (r *applicationRepoFake) List(_ context.Context, filter repository.ApplicationFilter) ([]models.Application, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	result := make([]models.Application, 0)
	for _, application := range r.db.applications {
		if filter.CompetitionID != nil && application.CompetitionID != *filter.CompetitionID {
			continue
		}
		if filter.ApplicantID != "" && application.ApplicantID != filter.ApplicantID {
			continue
		}
		result = append(result, application)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, nil
}

func (r *applicationRepoFake) GetByID(_ context.Context, id uint) (models.Application, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	application, ok := r.db.applications[id]
	if !ok {
		return models.Application{}, gorm.ErrRecordNotFound
	}
	if competition, ok := r.db.competitions[application.CompetitionID]; ok {
		copied := copyCompetition(competition)
		application.Competition = &copied
	}
	if application.RoundID != nil {
		for _, competition := range r.db.competitions {
			if round, ok := competition.FindRound(*application.RoundID); ok {
				application.Round = &round
			}
		}
	}
	return application, nil
}

func (r *applicationRepoFake) Create(_ context.Context, application *models.Application) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	application.ID = r.db.id()
	r.db.applications[application.ID] = *application
	return nil
}

func (r *applicationRepoFake) UpdateReview(_ context.Context, id uint, review repository.ReviewUpdate) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	application, ok := r.db.applications[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	application.ReviewText = review.Text
	application.ReviewPoints = review.Points
	createdAt := review.CreatedAt
	application.ReviewCreatedAt = &createdAt
	r.db.applications[id] = application
	return nil
}

func (r *applicationRepoFake) ApplicantIDs(_ context.Context, competitionID uint) ([]string, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, application := range r.db.applications {
		if application.CompetitionID != competitionID {
			continue
		}
		if _, ok := seen[application.ApplicantID]; ok {
			continue
		}
		seen[application.ApplicantID] = struct{}{}
		ids = append(ids, application.ApplicantID)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memoryDB) putApplication(application models.Application) models.Application {
	m.mu.Lock()
	defer m.mu.Unlock()
	application.ID = m.id()
	m.applications[application.ID] = application
	return application
}

func (m *memoryDB) application(id uint) models.Application {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applications[id]
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) kinds() []EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]EventKind, 0, len(p.events))
	for _, event := range p.events {
		kinds = append(kinds, event.Kind)
	}
	return kinds
}

type memoryStorage struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{files: make(map[string][]byte)}
}

func (s *memoryStorage) Store(_ context.Context, name string, reader io.Reader) (string, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	path := "uploads/" + name
	s.files[path] = content
	return path, nil
}

func (s *memoryStorage) Retrieve(_ context.Context, path string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.files[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (s *memoryStorage) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

func fileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	form, err := multipart.NewReader(body, writer.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["file"][0]
}
