package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/competition-hub-api/internal/dto"
	"github.com/noah-isme/competition-hub-api/internal/service"
	"github.com/noah-isme/competition-hub-api/internal/utils"
)

// CompetitionHandler manages competition endpoints, including round advancement.
type CompetitionHandler struct {
	service  service.CompetitionService
	advancer service.RoundAdvancer
	logger   zerolog.Logger
}

// NewCompetitionHandler builds a competition handler instance.
func NewCompetitionHandler(service service.CompetitionService, advancer service.RoundAdvancer, logger zerolog.Logger) *CompetitionHandler {
	return &CompetitionHandler{
		service:  service,
		advancer: advancer,
		logger:   logger.With().Str("component", "competition_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *CompetitionHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Post("", h.create)
	router.Get("/:id", h.get)
	router.Put("/:id", h.update)
	router.Delete("/:id", h.delete)
	router.Put("/:id/eliminated-applicants", h.eliminate)
	router.Post("/:id/rounds/advance", h.advance)
}

func (h *CompetitionHandler) list(c *fiber.Ctx) error {
	creator := strings.TrimSpace(c.Query("creator"))
	if c.QueryBool("mine") {
		creator = userIDStringFromContext(c)
		if creator == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
		}
	}

	competitions, err := h.service.List(withRequestContext(c), creator)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.OK(c, competitions, "competitions retrieved", fiber.Map{"count": len(competitions)})
}

func (h *CompetitionHandler) create(c *fiber.Ctx) error {
	var payload dto.CompetitionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	competition, err := h.service.Create(withRequestContext(c), userIDStringFromContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "competition created", competition)
}

func (h *CompetitionHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	competition, err := h.service.Get(withRequestContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "competition retrieved", competition)
}

func (h *CompetitionHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.CompetitionUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	competition, err := h.service.Update(withRequestContext(c), id, payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "competition updated", competition)
}

func (h *CompetitionHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Delete(withRequestContext(c), id); err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "competition deleted", nil)
}

func (h *CompetitionHandler) eliminate(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.EliminateApplicantsRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	competition, err := h.service.EliminateApplicants(withRequestContext(c), id, payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "eliminated applicants updated", competition)
}

func (h *CompetitionHandler) advance(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.advancer.ActivateNext(withRequestContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	requestLogger(h.logger, c).Info().
		Uint("competition_id", id).
		Uint("round_id", result.Active.ID).
		Str("user_id", userIDStringFromContext(c)).
		Msg("round advanced")

	return utils.SendSuccess(c, "next round activated", result)
}
