package emergency

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hospitalos/hms/internal/platform/auth"
)

func newHandlerContext(t *testing.T, method, path, body, role string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	ctx := context.WithValue(req.Context(), auth.UserIDKey, "actor-1")
	ctx = context.WithValue(ctx, auth.UserRolesKey, []string{role})
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandlerTriage(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	h := NewHandler(newTestService(newMockRepo(), now))

	body := `{"patient_id":"` + uuid.NewString() + `","category":"EMERGENT","complaint":"chest pain",` +
		`"pain_score":7,"life_threatening":true,"triaged_by":"` + uuid.NewString() + `"}`
	c, rec := newHandlerContext(t, http.MethodPost, "/emergency-cases", body, "nurse")

	if err := h.Triage(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var v View
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatal(err)
	}
	// 80 base + 0 waited + 7 pain + 50 life-threatening
	if v.PriorityScore != 137 {
		t.Errorf("expected priority 137, got %d", v.PriorityScore)
	}
}

func TestHandlerTriage_BadCategory(t *testing.T) {
	h := NewHandler(newTestService(newMockRepo(), time.Now()))

	body := `{"patient_id":"` + uuid.NewString() + `","category":"MILD","complaint":"cough",` +
		`"triaged_by":"` + uuid.NewString() + `"}`
	c, rec := newHandlerContext(t, http.MethodPost, "/emergency-cases", body, "nurse")

	err := h.Triage(c)
	if err == nil && rec.Code < 400 {
		t.Fatalf("expected a validation failure, got %d", rec.Code)
	}
	if he, ok := err.(*echo.HTTPError); ok && he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", he.Code)
	}
}

func TestHandlerQueue(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	svc := newTestService(newMockRepo(), now)
	h := NewHandler(svc)

	for _, cat := range []string{CategoryNonUrgent, CategoryResuscitation} {
		if _, err := svc.Triage(context.Background(), TriageInput{
			PatientID: uuid.New(),
			Category:  cat,
			Complaint: "test",
			TriagedBy: uuid.New(),
		}); err != nil {
			t.Fatalf("triage %s: %v", cat, err)
		}
	}

	c, rec := newHandlerContext(t, http.MethodGet, "/emergency-queue", "", "doctor")
	if err := h.Queue(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var queue []*View
	if err := json.Unmarshal(rec.Body.Bytes(), &queue); err != nil {
		t.Fatal(err)
	}
	if len(queue) != 2 || queue[0].Category != CategoryResuscitation {
		t.Errorf("expected resuscitation first in a queue of 2, got %+v", queue)
	}
}
