package donation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/lifelink/lifelink/internal/platform/auth"
)

func newTestHandler() (*Handler, *testEnv, *echo.Echo) {
	env := newTestEnv()
	return NewHandler(env.svc), env, echo.New()
}

func withIdentity(req *http.Request, id auth.Identity) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), id))
}

func jsonRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestHandler_Create(t *testing.T) {
	h, env, e := newTestHandler()
	body := `{"donorId":"` + env.donor.ID.String() + `","patientName":"Pat","urgency":"urgent"}`
	req := withIdentity(jsonRequest(http.MethodPost, body), identityOf(env.recipient))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var resp struct {
		Success bool    `json:"success"`
		Data    Request `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data.Urgency != UrgencyUrgent || resp.Data.RequestedBy.Kind != RequesterRecipient {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestHandler_Create_DonorUnavailable(t *testing.T) {
	h, env, e := newTestHandler()
	body := `{"donorId":"` + env.recipient.ID.String() + `"}`
	req := withIdentity(jsonRequest(http.MethodPost, body), identityOf(env.hospital))
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.Create(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_Accept_InvalidID(t *testing.T) {
	h, env, e := newTestHandler()
	req := withIdentity(httptest.NewRequest(http.MethodPut, "/", nil), identityOf(env.donor))
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := h.Accept(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_Respond(t *testing.T) {
	h, env, e := newTestHandler()
	r := env.create(t)

	req := withIdentity(jsonRequest(http.MethodPut, `{"status":"accepted"}`), identityOf(env.donor))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(r.ID.String())

	if err := h.Respond(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"message":"Request accepted"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestHandler_Delete_Pending(t *testing.T) {
	h, env, e := newTestHandler()
	r := env.create(t)

	req := withIdentity(httptest.NewRequest(http.MethodDelete, "/", nil), identityOf(env.recipient))
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(r.ID.String())

	err := h.Delete(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for pending delete, got %v", err)
	}
}

func TestHandler_Emergency(t *testing.T) {
	h, env, e := newTestHandler()
	req := withIdentity(jsonRequest(http.MethodPost, `{"bloodType":"O-","message":"Trauma bay"}`), identityOf(env.hospital))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Emergency(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "Emergency broadcast sent to 1 donors") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestHandler_BulkRequest_NoDonors(t *testing.T) {
	h, env, e := newTestHandler()
	req := withIdentity(jsonRequest(http.MethodPost, `{"bloodType":"AB+","message":"hi"}`), identityOf(env.admin))
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.BulkRequest(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestHandler_AdminList_Paged(t *testing.T) {
	h, env, e := newTestHandler()
	env.create(t)
	env.create(t)

	req := httptest.NewRequest(http.MethodGet, "/?limit=1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.AdminList(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Data       []Request `json:"data"`
		Pagination struct {
			Total   int  `json:"total"`
			HasMore bool `json:"has_more"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 1 || resp.Pagination.Total != 2 || !resp.Pagination.HasMore {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestHandler_Routes_DonorCannotCreate(t *testing.T) {
	h, env, e := newTestHandler()
	h.RegisterRoutes(e.Group("/api"), auth.DefaultPolicy())

	req := withIdentity(jsonRequest(http.MethodPost, `{}`), identityOf(env.donor))
	req.URL.Path = "/api/requests"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}
