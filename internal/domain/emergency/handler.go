package emergency

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hospitalos/hms/internal/platform/auth"
	"github.com/hospitalos/hms/pkg/respond"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	grp := api.Group("", auth.RequireRole("nurse", "doctor", "receptionist"))
	grp.POST("/emergency-cases", h.Triage)
	grp.GET("/emergency-cases/:id", h.Get)
	grp.GET("/emergency-queue", h.Queue)
	grp.POST("/emergency-cases/:id/resolve", h.Resolve)
}

func (h *Handler) Triage(c echo.Context) error {
	var in TriageInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.svc.Triage(c.Request().Context(), in)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	v, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) Queue(c echo.Context) error {
	views, err := h.svc.Queue(c.Request().Context())
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, views)
}

type resolveRequest struct {
	EncounterID *uuid.UUID `json:"encounter_id,omitempty"`
}

func (h *Handler) Resolve(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Resolve(c.Request().Context(), id, req.EncounterID); err != nil {
		return respond.Error(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
