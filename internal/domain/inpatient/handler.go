package inpatient

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hospitalos/hms/internal/lifecycle"
	"github.com/hospitalos/hms/internal/platform/auth"
	"github.com/hospitalos/hms/pkg/pagination"
	"github.com/hospitalos/hms/pkg/respond"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("doctor", "nurse", "receptionist"))
	readGroup.GET("/stays", h.List)
	readGroup.GET("/stays/:id", h.Get)
	readGroup.GET("/stays/:id/history", h.GetStatusHistory)

	writeGroup := api.Group("", auth.RequireRole("doctor", "nurse"))
	writeGroup.POST("/stays", h.Admit)
	writeGroup.POST("/stays/:id/transition", h.Transition)
	writeGroup.POST("/stays/:id/transfer", h.named(StatusTransferred))
	writeGroup.POST("/stays/:id/discharge", h.named(StatusDischarged))
}

func (h *Handler) Admit(c echo.Context) error {
	var in AdmitInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	stay, err := h.svc.Admit(c.Request().Context(), in)
	if err != nil {
		if lifecycle.CodeOf(err) != "" {
			return respond.Error(c, err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, stay)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	stay, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, stay)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	stays, total, err := h.svc.List(c.Request().Context(), c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(stays, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetStatusHistory(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	history, err := h.svc.GetStatusHistory(c.Request().Context(), id)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, history)
}

type transitionRequest struct {
	Target  string            `json:"target"`
	Version int               `json:"version"`
	Fields  map[string]string `json:"fields"`
	Reason  string            `json:"reason"`
}

func (r *transitionRequest) toLifecycle(c echo.Context) lifecycle.Request {
	fields := r.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	if r.Reason != "" {
		fields["reason"] = r.Reason
	}
	return lifecycle.Request{
		Target:          r.Target,
		Actor:           auth.ActorFromContext(c.Request().Context()),
		Fields:          fields,
		ExpectedVersion: versionFrom(c, r.Version),
	}
}

func (h *Handler) Transition(c echo.Context) error {
	return h.transitionTo(c, "")
}

func (h *Handler) named(target string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return h.transitionTo(c, target)
	}
}

func (h *Handler) transitionTo(c echo.Context, target string) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if target != "" {
		req.Target = target
	}
	if req.Target == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "target is required")
	}

	stay, err := h.svc.Transition(c.Request().Context(), id, req.toLifecycle(c))
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, stay)
}

// versionFrom prefers the version in the request body and falls back to a
// numeric If-Match header. Zero means "skip the optimistic check"; the
// UPDATE is still version-guarded inside the transaction.
func versionFrom(c echo.Context, body int) int {
	if body != 0 {
		return body
	}
	m := strings.Trim(c.Request().Header.Get("If-Match"), `"`)
	if m == "" {
		return 0
	}
	v, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return v
}
