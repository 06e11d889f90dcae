package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/competition-hub-api/internal/dto"
	"github.com/noah-isme/competition-hub-api/internal/service"
	"github.com/noah-isme/competition-hub-api/internal/utils"
)

type notificationReader func(ctx context.Context, userID string) ([]dto.CompetitionNotification, error)

type notificationToucher func(ctx context.Context, competitionID uint, userID string) (dto.NotificationTouchResponse, error)

// NotificationHandler exposes the four notification streams and their touch operations.
type NotificationHandler struct {
	service service.NotificationService
	logger  zerolog.Logger
}

// NewNotificationHandler constructs a handler instance.
func NewNotificationHandler(service service.NotificationService, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		logger:  logger.With().Str("component", "notification_handler").Logger(),
	}
}

// Register binds the notification routes.
func (h *NotificationHandler) Register(router fiber.Router) {
	readers := map[string]notificationReader{
		dto.NotificationStreamSubmissions:      h.service.NewSubmissions,
		dto.NotificationStreamReviews:          h.service.NewReviews,
		dto.NotificationStreamEliminations:     h.service.Eliminations,
		dto.NotificationStreamRoundActivations: h.service.RoundActivations,
	}
	touchers := map[string]notificationToucher{
		dto.NotificationStreamSubmissions: func(ctx context.Context, competitionID uint, _ string) (dto.NotificationTouchResponse, error) {
			return h.service.TouchSubmissions(ctx, competitionID)
		},
		dto.NotificationStreamReviews:          h.service.TouchReviews,
		dto.NotificationStreamEliminations:     h.service.TouchEliminations,
		dto.NotificationStreamRoundActivations: h.service.TouchRoundActivations,
	}

	for stream, read := range readers {
		router.Get("/"+stream, h.list(stream, read))
	}
	for stream, touch := range touchers {
		router.Put("/"+stream+"/:competitionId/touch", h.touch(stream, touch))
	}
}

func (h *NotificationHandler) list(stream string, read notificationReader) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := userIDStringFromContext(c)
		if userID == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
		}

		notices, err := read(withRequestContext(c), userID)
		if err != nil {
			return respondError(c, h.logger, err)
		}

		return utils.SendSuccess(c, stream+" notifications", notices)
	}
}

func (h *NotificationHandler) touch(stream string, touch notificationToucher) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := userIDStringFromContext(c)
		if userID == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
		}

		competitionID, err := parseUintParam(c, "competitionId")
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}

		result, err := touch(withRequestContext(c), competitionID, userID)
		if err != nil {
			return respondError(c, h.logger, err)
		}

		requestLogger(h.logger, c).Debug().
			Str("stream", stream).
			Uint("competition_id", competitionID).
			Int64("updated", result.Updated).
			Msg("notifications touched")

		return utils.SendSuccess(c, stream+" notifications touched", result)
	}
}
