package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/competition-hub-api/internal/dto"
	"github.com/noah-isme/competition-hub-api/internal/models"
	"github.com/noah-isme/competition-hub-api/internal/observability"
	"github.com/noah-isme/competition-hub-api/internal/repository"
)

// FileStorage persists uploaded files. Retrieve reports a missing file with fs.ErrNotExist.
type FileStorage interface {
	Store(ctx context.Context, name string, reader io.Reader) (string, error)
	Retrieve(ctx context.Context, path string) (io.ReadCloser, error)
}

// ApplicationOptions tunes upload handling.
type ApplicationOptions struct {
	MaxUploadBytes   int64
	AllowedMimeTypes []string
}

// ApplicationService exposes application submission and retrieval use cases.
type ApplicationService interface {
	Submit(ctx context.Context, payload dto.ApplicationSubmitRequest, file *multipart.FileHeader) (dto.ApplicationResponse, error)
	Download(ctx context.Context, id uint) (dto.DownloadResponse, error)
	ListMine(ctx context.Context, applicantID string) ([]dto.ApplicationResponse, error)
	ListForCompetition(ctx context.Context, competitionID uint) ([]dto.ApplicationResponse, error)
}

type applicationService struct {
	applications repository.ApplicationRepository
	competitions repository.CompetitionRepository
	storage      FileStorage
	events       EventPublisher
	validator    *validator.Validate
	options      ApplicationOptions
	logger       zerolog.Logger
	now          func() time.Time
}

// NewApplicationService constructs an ApplicationService instance.
func NewApplicationService(applications repository.ApplicationRepository, competitions repository.CompetitionRepository, storage FileStorage, events EventPublisher, validate *validator.Validate, options ApplicationOptions, logger zerolog.Logger) ApplicationService {
	return &applicationService{
		applications: applications,
		competitions: competitions,
		storage:      storage,
		events:       events,
		validator:    validate,
		options:      options,
		logger:       logger.With().Str("component", "application_service").Logger(),
		now:          utcNow,
	}
}

func (s *applicationService) Submit(ctx context.Context, payload dto.ApplicationSubmitRequest, file *multipart.FileHeader) (dto.ApplicationResponse, error) {
	response, err := s.submit(ctx, payload, file)
	observability.ApplicationsSubmitted().WithLabelValues(submissionResult(err)).Inc()
	return response, err
}

func (s *applicationService) submit(ctx context.Context, payload dto.ApplicationSubmitRequest, file *multipart.FileHeader) (dto.ApplicationResponse, error) {
	payload.ApplicantID = strings.TrimSpace(payload.ApplicantID)
	if err := s.validator.Struct(payload); err != nil {
		return dto.ApplicationResponse{}, err
	}

	if file == nil || file.Size <= 0 {
		return dto.ApplicationResponse{}, ErrEmptyFile
	}
	if s.options.MaxUploadBytes > 0 && file.Size > s.options.MaxUploadBytes {
		return dto.ApplicationResponse{}, ErrFileTooLarge
	}

	competition, err := s.competitions.GetByID(ctx, payload.CompetitionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ApplicationResponse{}, ErrCompetitionNotFound
		}
		return dto.ApplicationResponse{}, err
	}

	now := s.now()
	if decision := CanSubmit(competition, payload.ApplicantID, payload.RoundID, now); !decision.Allowed {
		s.logger.Info().
			Uint("competition_id", competition.ID).
			Str("applicant_id", payload.ApplicantID).
			Str("reason", string(decision.Reason)).
			Msg("submission refused")
		return dto.ApplicationResponse{}, decision.Err()
	}

	mimeType, err := s.detectMimeType(file)
	if err != nil {
		return dto.ApplicationResponse{}, err
	}

	reader, err := file.Open()
	if err != nil {
		return dto.ApplicationResponse{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer reader.Close()

	storedPath, err := s.storage.Store(ctx, storedFileName(competition.ID, payload.ApplicantID, payload.RoundID, file.Filename), reader)
	if err != nil {
		return dto.ApplicationResponse{}, fmt.Errorf("failed to store file: %w", err)
	}

	application := models.Application{
		CompetitionID: competition.ID,
		RoundID:       payload.RoundID,
		ApplicantID:   payload.ApplicantID,
		ApplicantName: strings.TrimSpace(payload.ApplicantName),
		FilePath:      storedPath,
		FileName:      path.Base(strings.ReplaceAll(file.Filename, "\\", "/")),
		MimeType:      mimeType,
		SizeBytes:     file.Size,
		SubmittedAt:   now,
	}

	if err := s.applications.Create(ctx, &application); err != nil {
		s.logger.Warn().Err(err).Str("file_path", storedPath).Msg("application not persisted, stored file left orphaned")
		return dto.ApplicationResponse{}, err
	}

	s.logger.Info().
		Uint("application_id", application.ID).
		Uint("competition_id", competition.ID).
		Str("applicant_id", application.ApplicantID).
		Msg("application submitted")

	if s.events != nil {
		id := application.ID
		s.events.Publish(ctx, Event{
			Kind:          EventApplicationSubmitted,
			CompetitionID: competition.ID,
			ApplicationID: &id,
			RoundID:       payload.RoundID,
			Recipients:    []string{competition.Creator},
			OccurredAt:    now,
		})
	}

	return dto.NewApplicationResponse(application), nil
}

func (s *applicationService) Download(ctx context.Context, id uint) (dto.DownloadResponse, error) {
	application, err := s.applications.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.DownloadResponse{}, ErrApplicationNotFound
		}
		return dto.DownloadResponse{}, err
	}

	reader, err := s.storage.Retrieve(ctx, application.FilePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return dto.DownloadResponse{}, ErrStoredFileNotFound
		}
		return dto.DownloadResponse{}, err
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		return dto.DownloadResponse{}, fmt.Errorf("failed to read stored file: %w", err)
	}

	mimeType := application.MimeType
	if mimeType == "" {
		mimeType = mimetype.Detect(content).String()
	}

	return dto.DownloadResponse{
		FileName: application.FileName,
		MimeType: mimeType,
		Content:  content,
	}, nil
}

func (s *applicationService) ListMine(ctx context.Context, applicantID string) ([]dto.ApplicationResponse, error) {
	applicantID = strings.TrimSpace(applicantID)
	if applicantID == "" {
		return nil, ErrIdentityRequired
	}

	applications, err := s.applications.List(ctx, repository.ApplicationFilter{ApplicantID: applicantID})
	if err != nil {
		return nil, err
	}

	return dto.NewApplicationResponseSlice(applications), nil
}

func (s *applicationService) ListForCompetition(ctx context.Context, competitionID uint) ([]dto.ApplicationResponse, error) {
	if _, err := s.competitions.GetByID(ctx, competitionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCompetitionNotFound
		}
		return nil, err
	}

	applications, err := s.applications.List(ctx, repository.ApplicationFilter{CompetitionID: &competitionID})
	if err != nil {
		return nil, err
	}

	return dto.NewApplicationResponseSlice(applications), nil
}

func (s *applicationService) detectMimeType(file *multipart.FileHeader) (string, error) {
	reader, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer reader.Close()

	detected, err := mimetype.DetectReader(reader)
	if err != nil {
		return "", fmt.Errorf("failed to detect file type: %w", err)
	}

	if len(s.options.AllowedMimeTypes) == 0 {
		return detected.String(), nil
	}
	for _, allowed := range s.options.AllowedMimeTypes {
		if detected.Is(allowed) {
			return detected.String(), nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrUnsupportedFileType, detected.String())
}

// storedFileName builds "<competition>/<applicant>[_R<round>]_<token>_<original>".
func storedFileName(competitionID uint, applicantID string, roundID *uint, original string) string {
	var builder strings.Builder
	builder.WriteString(safeSegment(applicantID))
	if roundID != nil {
		builder.WriteString(fmt.Sprintf("_R%d", *roundID))
	}
	builder.WriteString("_")
	builder.WriteString(uuid.NewString()[:8])
	builder.WriteString("_")
	builder.WriteString(safeSegment(path.Base(strings.ReplaceAll(original, "\\", "/"))))

	return fmt.Sprintf("%d/%s", competitionID, builder.String())
}

func safeSegment(value string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, strings.TrimSpace(value))

	cleaned = strings.Trim(cleaned, ".")
	if cleaned == "" {
		return "file"
	}
	return cleaned
}

func submissionResult(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, ErrApplicantEliminated),
		errors.Is(err, ErrRoundDeadlinePassed),
		errors.Is(err, ErrRoundNotActive):
		return "forbidden"
	case errors.Is(err, ErrCompetitionNotFound):
		return "not_found"
	case errors.Is(err, ErrEmptyFile),
		errors.Is(err, ErrFileTooLarge),
		errors.Is(err, ErrUnsupportedFileType),
		errors.Is(err, ErrRoundNotInCompetition):
		return "invalid"
	default:
		return "error"
	}
}
