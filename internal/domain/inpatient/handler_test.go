package inpatient

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

func TestHandlerAdmit(t *testing.T) {
	h := NewHandler(newTestService(newMockRepo(), nil))

	in := validAdmit()
	body := `{"patient_id":"` + in.PatientID.String() + `","encounter_id":"` + in.EncounterID.String() +
		`","ward":"general","admitted_by":"` + in.AdmittedBy.String() + `"}`
	c, rec := newHandlerContext(t, http.MethodPost, "/stays", body, "doctor")

	if err := h.Admit(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var stay Stay
	if err := json.Unmarshal(rec.Body.Bytes(), &stay); err != nil {
		t.Fatal(err)
	}
	if stay.Status != StatusAdmitted || stay.Ward != "general" {
		t.Errorf("expected ADMITTED in general, got %s / %s", stay.Status, stay.Ward)
	}
}

func TestHandlerTransfer_MissingWardMapsTo422(t *testing.T) {
	svc := newTestService(newMockRepo(), nil)
	h := NewHandler(svc)

	stay, err := svc.Admit(context.Background(), validAdmit())
	if err != nil {
		t.Fatalf("admit: %v", err)
	}

	c, rec := newHandlerContext(t, http.MethodPost, "/stays/"+stay.ID.String()+"/transfer", `{}`, "nurse")
	c.SetParamNames("id")
	c.SetParamValues(stay.ID.String())

	if err := h.named(StatusTransferred)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 without a target ward, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "missing_field") {
		t.Errorf("expected missing_field code, got %s", rec.Body.String())
	}
}

func TestHandlerDischarge_BlockedMapsTo409(t *testing.T) {
	svc := newTestService(newMockRepo(), fixedCounter{open: 2})
	h := NewHandler(svc)

	stay, err := svc.Admit(context.Background(), validAdmit())
	if err != nil {
		t.Fatalf("admit: %v", err)
	}

	c, rec := newHandlerContext(t, http.MethodPost, "/stays/"+stay.ID.String()+"/discharge", `{}`, "doctor")
	c.SetParamNames("id")
	c.SetParamValues(stay.ID.String())

	if err := h.named(StatusDischarged)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 with open orders, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "open_dependency") {
		t.Errorf("expected open_dependency code, got %s", rec.Body.String())
	}
}
