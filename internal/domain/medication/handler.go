package medication

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
	readGroup := api.Group("", auth.RequireRole("doctor", "nurse", "pharmacist"))
	readGroup.GET("/medication-orders", h.ListOrders)
	readGroup.GET("/medication-orders/:id", h.GetOrder)
	readGroup.GET("/medication-orders/:id/history", h.GetStatusHistory)
	readGroup.GET("/medication-orders/:id/transitions", h.AllowedTransitions)
	readGroup.GET("/medication-groups", h.ListGroups)

	writeGroup := api.Group("", auth.RequireRole("doctor", "pharmacist", "nurse"))
	writeGroup.POST("/medication-groups", h.CreateGroup)
	writeGroup.POST("/medication-orders", h.CreateOrder)
	writeGroup.POST("/medication-orders/:id/transition", h.Transition)
	writeGroup.POST("/medication-orders/:id/activate", h.named(StatusActive))
	writeGroup.POST("/medication-orders/:id/hold", h.named(StatusHeld))
	writeGroup.POST("/medication-orders/:id/resume", h.named(StatusActive))
	writeGroup.POST("/medication-orders/:id/complete", h.named(StatusCompleted))
	writeGroup.POST("/medication-orders/:id/discontinue", h.named(StatusDiscontinued))
}

func (h *Handler) CreateGroup(c echo.Context) error {
	var in CreateGroupInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	g, err := h.svc.CreateGroup(c.Request().Context(), in)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, g)
}

func (h *Handler) CreateOrder(c echo.Context) error {
	var in CreateOrderInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	o, err := h.svc.CreateOrder(c.Request().Context(), in)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) GetOrder(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	o, err := h.svc.GetOrder(c.Request().Context(), id)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) ListOrders(c echo.Context) error {
	if encounterID := c.QueryParam("encounter_id"); encounterID != "" {
		eid, err := uuid.Parse(encounterID)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid encounter_id")
		}
		orders, err := h.svc.ListOrdersByEncounter(c.Request().Context(), eid)
		if err != nil {
			return respond.Error(c, err)
		}
		return c.JSON(http.StatusOK, orders)
	}

	pg := pagination.FromContext(c)
	orders, total, err := h.svc.ListOrders(c.Request().Context(), c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(orders, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListGroups(c echo.Context) error {
	encounterID := c.QueryParam("encounter_id")
	eid, err := uuid.Parse(encounterID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "encounter_id is required")
	}
	groups, err := h.svc.ListGroupsByEncounter(c.Request().Context(), eid)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, groups)
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

func (h *Handler) AllowedTransitions(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	edges, err := h.svc.AllowedTransitions(c.Request().Context(), id)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, edges)
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

	o, err := h.svc.Transition(c.Request().Context(), id, req.toLifecycle(c))
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, o)
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
