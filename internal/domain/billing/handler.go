package billing

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
	readGroup := api.Group("", auth.RequireRole("receptionist", "hr", "doctor"))
	readGroup.GET("/invoices", h.List)
	readGroup.GET("/invoices/:id", h.Get)
	readGroup.GET("/invoices/:id/history", h.GetStatusHistory)

	writeGroup := api.Group("", auth.RequireRole("receptionist", "hr"))
	writeGroup.POST("/invoices", h.Generate)
	writeGroup.POST("/invoices/:id/payments", h.RecordPayment)
	writeGroup.POST("/invoices/:id/cancel", h.Cancel)
}

func (h *Handler) Generate(c echo.Context) error {
	var in GenerateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.svc.Generate(c.Request().Context(), in)
	if err != nil {
		if lifecycle.CodeOf(err) != "" {
			return respond.Error(c, err)
		}
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

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)

	if patientID := c.QueryParam("patient_id"); patientID != "" {
		pid, err := uuid.Parse(patientID)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		invoices, total, err := h.svc.ListByPatient(c.Request().Context(), pid, pg.Limit, pg.Offset)
		if err != nil {
			return respond.Error(c, err)
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(invoices, total, pg.Limit, pg.Offset))
	}

	invoices, total, err := h.svc.List(c.Request().Context(), c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(invoices, total, pg.Limit, pg.Offset))
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

type paymentRequest struct {
	Amount  int64 `json:"amount"`
	Version int   `json:"version"`
}

func (h *Handler) RecordPayment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req paymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	inv, err := h.svc.RecordPayment(c.Request().Context(), id, req.Amount,
		auth.ActorFromContext(c.Request().Context()), versionFrom(c, req.Version))
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, inv)
}

type cancelRequest struct {
	Reason  string `json:"reason"`
	Version int    `json:"version"`
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req cancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	inv, err := h.svc.Transition(c.Request().Context(), id, lifecycle.Request{
		Target:          StatusCancelled,
		Actor:           auth.ActorFromContext(c.Request().Context()),
		Fields:          map[string]string{"reason": req.Reason},
		ExpectedVersion: versionFrom(c, req.Version),
	})
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, inv)
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
