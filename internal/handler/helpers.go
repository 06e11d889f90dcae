package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/competition-hub-api/internal/middleware"
	"github.com/noah-isme/competition-hub-api/internal/service"
	"github.com/noah-isme/competition-hub-api/internal/utils"
)

func userIDStringFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_id"); v != nil {
		switch id := v.(type) {
		case string:
			return strings.TrimSpace(id)
		case uint:
			return strconv.FormatUint(uint64(id), 10)
		case int:
			if id < 0 {
				return ""
			}
			return strconv.Itoa(id)
		case fmt.Stringer:
			return strings.TrimSpace(id.String())
		}
	}
	return ""
}

func userNameFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_name"); v != nil {
		if name, ok := v.(string); ok {
			return strings.TrimSpace(name)
		}
	}
	return ""
}

func parseUintParam(c *fiber.Ctx, name string) (uint, error) {
	value := strings.TrimSpace(c.Params(name))
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return uint(parsed), nil
}

func parseOptionalFormUint(c *fiber.Ctx, key string) (*uint, error) {
	value := strings.TrimSpace(c.FormValue(key))
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return nil, errors.New("invalid " + key)
	}
	result := uint(parsed)
	return &result, nil
}

func withRequestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

// statusForError maps service errors onto HTTP status codes. Zero means unexpected.
func statusForError(err error) int {
	var parseErr *time.ParseError
	switch {
	case errors.Is(err, service.ErrIdentityRequired):
		return fiber.StatusUnauthorized
	case errors.Is(err, service.ErrCompetitionNotFound),
		errors.Is(err, service.ErrApplicationNotFound),
		errors.Is(err, service.ErrStoredFileNotFound),
		errors.Is(err, service.ErrReviewCompetitionUnresolved),
		errors.Is(err, service.ErrNoApplications):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrApplicantEliminated),
		errors.Is(err, service.ErrRoundDeadlinePassed),
		errors.Is(err, service.ErrRoundNotActive),
		errors.Is(err, service.ErrRoundDeadlineNotReached):
		return fiber.StatusForbidden
	case errors.Is(err, service.ErrNoNextRound),
		errors.Is(err, service.ErrConcurrentAdvance):
		return fiber.StatusConflict
	case errors.Is(err, service.ErrEmptyFile),
		errors.Is(err, service.ErrFileTooLarge),
		errors.Is(err, service.ErrUnsupportedFileType),
		errors.Is(err, service.ErrDeadlineRequired),
		errors.Is(err, service.ErrInvalidEvaluationPolicy),
		errors.Is(err, service.ErrUnknownRound),
		errors.Is(err, service.ErrRoundOrderConflict),
		errors.Is(err, service.ErrRoundNotInCompetition),
		errors.Is(err, service.ErrNoRounds),
		errors.Is(err, service.ErrNoActiveRound),
		errors.Is(err, service.ErrInvalidReviewPoints),
		errors.Is(err, service.ErrReviewPointsRequired),
		errors.As(err, &parseErr),
		isValidationError(err):
		return fiber.StatusBadRequest
	default:
		return 0
	}
}

// respondError writes the error envelope. Unexpected errors are logged and hidden from the client.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	if status := statusForError(err); status != 0 {
		return utils.SendError(c, status, err.Error())
	}

	requestLogger(logger, c).Error().Err(err).Str("path", c.Path()).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
