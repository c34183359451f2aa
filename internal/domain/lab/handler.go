package lab

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
	readGroup := api.Group("", auth.RequireRole("doctor", "nurse", "lab_technician"))
	readGroup.GET("/lab-orders", h.ListTestOrders)
	readGroup.GET("/lab-orders/:id", h.GetTestOrder)
	readGroup.GET("/lab-orders/:id/history", h.GetStatusHistory)
	readGroup.GET("/imaging-orders", h.ListImagingOrders)
	readGroup.GET("/imaging-orders/:id", h.GetImagingOrder)
	readGroup.GET("/imaging-orders/:id/history", h.GetStatusHistory)
	readGroup.GET("/diagnostic-orders", h.ListDiagnosticOrders)
	readGroup.GET("/diagnostic-orders/:id", h.GetDiagnosticOrder)
	readGroup.GET("/diagnostic-orders/:id/history", h.GetStatusHistory)

	orderGroup := api.Group("", auth.RequireRole("doctor"))
	orderGroup.POST("/lab-orders", h.OrderTest)
	orderGroup.POST("/imaging-orders", h.OrderImaging)
	orderGroup.POST("/diagnostic-orders", h.OrderDiagnostic)

	labGroup := api.Group("", auth.RequireRole("nurse", "lab_technician"))
	labGroup.POST("/lab-orders/:id/transition", h.TransitionTest)
	labGroup.POST("/lab-orders/:id/collect", h.namedTest(StatusCollected))
	labGroup.POST("/lab-orders/:id/receive", h.namedTest(StatusReceived))
	labGroup.POST("/lab-orders/:id/start", h.namedTest(StatusInProgress))
	labGroup.POST("/lab-orders/:id/complete", h.namedTest(StatusCompleted))
	labGroup.POST("/lab-orders/:id/verify", h.namedTest(StatusVerified))
	labGroup.POST("/lab-orders/:id/reject", h.namedTest(StatusRejected))
	labGroup.POST("/lab-orders/:id/results", h.AttachResults)

	imagingGroup := api.Group("", auth.RequireRole("doctor", "lab_technician"))
	imagingGroup.POST("/imaging-orders/:id/transition", h.TransitionImaging)
	imagingGroup.POST("/imaging-orders/:id/start", h.namedImaging(StatusInProgress))
	imagingGroup.POST("/imaging-orders/:id/complete", h.namedImaging(StatusCompleted))
	imagingGroup.POST("/imaging-orders/:id/report", h.namedImaging(StatusReported))
	imagingGroup.POST("/imaging-orders/:id/verify", h.namedImaging(StatusVerified))
	imagingGroup.POST("/imaging-orders/:id/cancel", h.namedImaging(StatusCancelled))

	diagnosticGroup := api.Group("", auth.RequireRole("doctor", "lab_technician"))
	diagnosticGroup.POST("/diagnostic-orders/:id/transition", h.TransitionDiagnostic)
	diagnosticGroup.POST("/diagnostic-orders/:id/start", h.namedDiagnostic(StatusInProgress))
	diagnosticGroup.POST("/diagnostic-orders/:id/complete", h.namedDiagnostic(StatusCompleted))
	diagnosticGroup.POST("/diagnostic-orders/:id/report", h.namedDiagnostic(StatusReported))
	diagnosticGroup.POST("/diagnostic-orders/:id/verify", h.namedDiagnostic(StatusVerified))
	diagnosticGroup.POST("/diagnostic-orders/:id/cancel", h.namedDiagnostic(StatusCancelled))
}

func (h *Handler) OrderTest(c echo.Context) error {
	var in OrderTestInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	o, err := h.svc.OrderTest(c.Request().Context(), in)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) GetTestOrder(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	v, err := h.svc.GetTestOrder(c.Request().Context(), id)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) ListTestOrders(c echo.Context) error {
	pg := pagination.FromContext(c)

	if encounterID := c.QueryParam("encounter_id"); encounterID != "" {
		eid, err := uuid.Parse(encounterID)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid encounter_id")
		}
		orders, err := h.svc.ListTestOrdersByEncounter(c.Request().Context(), eid)
		if err != nil {
			return respond.Error(c, err)
		}
		return c.JSON(http.StatusOK, orders)
	}

	orders, total, err := h.svc.ListTestOrders(c.Request().Context(), c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(orders, total, pg.Limit, pg.Offset))
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

type attachResultsRequest struct {
	Results []ResultInput `json:"results"`
}

func (h *Handler) AttachResults(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req attachResultsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	results, err := h.svc.AttachResults(c.Request().Context(), id, req.Results)
	if err != nil {
		if lifecycle.CodeOf(err) != "" {
			return respond.Error(c, err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, results)
}

func (h *Handler) OrderImaging(c echo.Context) error {
	var in OrderImagingInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	o, err := h.svc.OrderImaging(c.Request().Context(), in)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) GetImagingOrder(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	o, err := h.svc.GetImagingOrder(c.Request().Context(), id)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) ListImagingOrders(c echo.Context) error {
	pg := pagination.FromContext(c)
	orders, total, err := h.svc.ListImagingOrders(c.Request().Context(), c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(orders, total, pg.Limit, pg.Offset))
}

func (h *Handler) OrderDiagnostic(c echo.Context) error {
	var in OrderDiagnosticInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	o, err := h.svc.OrderDiagnostic(c.Request().Context(), in)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) GetDiagnosticOrder(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	o, err := h.svc.GetDiagnosticOrder(c.Request().Context(), id)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) ListDiagnosticOrders(c echo.Context) error {
	pg := pagination.FromContext(c)
	orders, total, err := h.svc.ListDiagnosticOrders(c.Request().Context(), c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(orders, total, pg.Limit, pg.Offset))
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

func (h *Handler) TransitionTest(c echo.Context) error {
	return h.transitionTestTo(c, "")
}

func (h *Handler) namedTest(target string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return h.transitionTestTo(c, target)
	}
}

func (h *Handler) transitionTestTo(c echo.Context, target string) error {
	id, req, err := bindTransition(c, target)
	if err != nil {
		return err
	}
	o, err := h.svc.TransitionTest(c.Request().Context(), id, req.toLifecycle(c))
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) TransitionImaging(c echo.Context) error {
	return h.transitionImagingTo(c, "")
}

func (h *Handler) namedImaging(target string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return h.transitionImagingTo(c, target)
	}
}

func (h *Handler) transitionImagingTo(c echo.Context, target string) error {
	id, req, err := bindTransition(c, target)
	if err != nil {
		return err
	}
	o, err := h.svc.TransitionImaging(c.Request().Context(), id, req.toLifecycle(c))
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) TransitionDiagnostic(c echo.Context) error {
	return h.transitionDiagnosticTo(c, "")
}

func (h *Handler) namedDiagnostic(target string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return h.transitionDiagnosticTo(c, target)
	}
}

func (h *Handler) transitionDiagnosticTo(c echo.Context, target string) error {
	id, req, err := bindTransition(c, target)
	if err != nil {
		return err
	}
	o, err := h.svc.TransitionDiagnostic(c.Request().Context(), id, req.toLifecycle(c))
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

func bindTransition(c echo.Context, target string) (uuid.UUID, *transitionRequest, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return uuid.Nil, nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if target != "" {
		req.Target = target
	}
	if req.Target == "" {
		return uuid.Nil, nil, echo.NewHTTPError(http.StatusBadRequest, "target is required")
	}
	return id, &req, nil
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
