package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/competition-hub-api/internal/dto"
	"github.com/noah-isme/competition-hub-api/internal/service"
	"github.com/noah-isme/competition-hub-api/internal/utils"
)

// ApplicationHandler manages submissions, downloads and reviews.
type ApplicationHandler struct {
	service service.ApplicationService
	reviews service.ReviewRecorder
	logger  zerolog.Logger
}

// NewApplicationHandler builds an application handler instance.
func NewApplicationHandler(service service.ApplicationService, reviews service.ReviewRecorder, logger zerolog.Logger) *ApplicationHandler {
	return &ApplicationHandler{
		service: service,
		reviews: reviews,
		logger:  logger.With().Str("component", "application_handler").Logger(),
	}
}

// Register binds application routes under /applications.
func (h *ApplicationHandler) Register(router fiber.Router) {
	router.Get("/mine", h.mine)
	router.Get("/:id/download", h.download)
	router.Put("/:id/review", h.review)
}

// RegisterCompetitionRoutes binds the competition-scoped routes. Guards run before submissions only.
func (h *ApplicationHandler) RegisterCompetitionRoutes(router fiber.Router, guards ...fiber.Handler) {
	submit := append(append([]fiber.Handler{}, guards...), h.submit)

	router.Get("/:id/applications", h.listForCompetition)
	router.Post("/:id/applications", submit...)
	router.Post("/:id/rounds/:roundId/applications", submit...)
}

func (h *ApplicationHandler) submit(c *fiber.Ctx) error {
	competitionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	applicantID := userIDStringFromContext(c)
	if applicantID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var roundID *uint
	if c.Params("roundId") != "" {
		parsed, err := parseUintParam(c, "roundId")
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		roundID = &parsed
	} else {
		roundID, err = parseOptionalFormUint(c, "round_id")
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
	}

	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	name := userNameFromContext(c)
	if name == "" {
		name = strings.TrimSpace(c.FormValue("applicant_name"))
	}

	application, err := h.service.Submit(withRequestContext(c), dto.ApplicationSubmitRequest{
		CompetitionID: competitionID,
		RoundID:       roundID,
		ApplicantID:   applicantID,
		ApplicantName: name,
	}, file)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "application submitted", application)
}

func (h *ApplicationHandler) listForCompetition(c *fiber.Ctx) error {
	competitionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	applications, err := h.service.ListForCompetition(withRequestContext(c), competitionID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "applications retrieved", applications)
}

func (h *ApplicationHandler) mine(c *fiber.Ctx) error {
	applications, err := h.service.ListMine(withRequestContext(c), userIDStringFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "applications retrieved", applications)
}

func (h *ApplicationHandler) download(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	file, err := h.service.Download(withRequestContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	c.Attachment(file.FileName)
	c.Set(fiber.HeaderContentType, file.MimeType)
	return c.Send(file.Content)
}

func (h *ApplicationHandler) review(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ReviewUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	application, err := h.reviews.RecordReview(withRequestContext(c), id, service.ReviewInput{
		Text:   payload.ReviewText(),
		Points: payload.Points.Value,
	})
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "review recorded", application)
}
