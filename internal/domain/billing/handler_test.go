package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

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

func TestHandlerGenerate(t *testing.T) {
	h := NewHandler(newTestService(newMockRepo()))

	in := validGenerate()
	body := `{"encounter_id":"` + in.EncounterID.String() + `","patient_id":"` + in.PatientID.String() +
		`","coverage_percent":80,"items":[{"kind":"service","label":"consultation","quantity":1,"unit_price":5000}]}`
	c, rec := newHandlerContext(t, http.MethodPost, "/invoices", body, "receptionist")

	if err := h.Generate(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var v View
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatal(err)
	}
	if v.Status != StatusPending || v.PatientShare != 1000 {
		t.Errorf("expected PENDING with patient share 1000, got %s / %d", v.Status, v.PatientShare)
	}
}

func TestHandlerRecordPayment_VersionFromIfMatch(t *testing.T) {
	svc := newTestService(newMockRepo())
	h := NewHandler(svc)

	inv, err := svc.Generate(context.Background(), validGenerate())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	c, rec := newHandlerContext(t, http.MethodPost, "/invoices/"+inv.ID.String()+"/payments",
		`{"amount":500}`, "receptionist")
	c.Request().Header.Set("If-Match", `"1"`)
	c.SetParamNames("id")
	c.SetParamValues(inv.ID.String())

	if err := h.RecordPayment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got View
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusPartial {
		t.Errorf("expected PARTIAL after partial payment, got %s", got.Status)
	}
}

func TestHandlerRecordPayment_StaleIfMatchConflicts(t *testing.T) {
	svc := newTestService(newMockRepo())
	h := NewHandler(svc)

	inv, err := svc.Generate(context.Background(), validGenerate())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	c, rec := newHandlerContext(t, http.MethodPost, "/invoices/"+inv.ID.String()+"/payments",
		`{"amount":500}`, "receptionist")
	c.Request().Header.Set("If-Match", `"99"`)
	c.SetParamNames("id")
	c.SetParamValues(inv.ID.String())

	if err := h.RecordPayment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for stale version, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "version_conflict") {
		t.Errorf("expected version_conflict code, got %s", rec.Body.String())
	}
}

func TestHandlerCancel_RequiresReason(t *testing.T) {
	svc := newTestService(newMockRepo())
	h := NewHandler(svc)

	inv, err := svc.Generate(context.Background(), validGenerate())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	c, rec := newHandlerContext(t, http.MethodPost, "/invoices/"+inv.ID.String()+"/cancel",
		`{}`, "receptionist")
	c.SetParamNames("id")
	c.SetParamValues(inv.ID.String())

	if err := h.Cancel(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 without a reason, got %d: %s", rec.Code, rec.Body.String())
	}
}
