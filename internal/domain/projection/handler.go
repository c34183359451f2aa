package projection

import (
	"net/http"

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
	api.GET("/dashboard", h.Dashboard)
	api.GET("/worklist", h.Worklist)
	api.GET("/worklist/:role", h.WorklistForRole, auth.RequireRole("admin"))
}

func (h *Handler) Dashboard(c echo.Context) error {
	d, err := h.svc.Dashboard(c.Request().Context(), c.QueryParam("department"))
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

// Worklist serves the caller's own pending list, keyed by the authenticated
// role.
func (h *Handler) Worklist(c echo.Context) error {
	actor := auth.ActorFromContext(c.Request().Context())
	items, err := h.svc.Worklist(c.Request().Context(), actor.Role)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

// WorklistForRole lets administrators inspect any role's queue.
func (h *Handler) WorklistForRole(c echo.Context) error {
	items, err := h.svc.Worklist(c.Request().Context(), c.Param("role"))
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, items)
}
