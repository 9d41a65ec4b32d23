package user

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/lifelink/lifelink/internal/platform/auth"
)

func newTestHandler(t *testing.T) (*Handler, *echo.Echo) {
	return NewHandler(newTestService(t)), echo.New()
}

func jsonRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func withIdentity(req *http.Request, id auth.Identity) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), id))
}

func TestHandler_Register(t *testing.T) {
	h, e := newTestHandler(t)
	body := `{"name":"Ada","email":"ada@example.com","password":"secret1","phone":"555","role":"donor","bloodType":"O+"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, body), rec)

	if err := h.Register(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Token string `json:"token"`
			User  struct {
				Email        string `json:"email"`
				PasswordHash string `json:"password_hash"`
			} `json:"user"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Data.Token == "" || resp.Data.User.Email != "ada@example.com" {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "$2a$") {
		t.Error("password hash leaked into response")
	}
}

func TestHandler_Register_Conflict(t *testing.T) {
	h, e := newTestHandler(t)
	body := `{"name":"Ada","email":"ada@example.com","password":"secret1","phone":"555","role":"recipient"}`
	_ = h.Register(e.NewContext(jsonRequest(http.MethodPost, body), httptest.NewRecorder()))

	err := h.Register(e.NewContext(jsonRequest(http.MethodPost, body), httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
}

func TestHandler_Login_BadCredentials(t *testing.T) {
	h, e := newTestHandler(t)
	err := h.Login(e.NewContext(jsonRequest(http.MethodPost, `{"email":"x@example.com","password":"nope12"}`), httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestHandler_Me(t *testing.T) {
	h, e := newTestHandler(t)
	u := mustRegister(t, h.svc, validRegister("donor"))

	rec := httptest.NewRecorder()
	c := e.NewContext(withIdentity(httptest.NewRequest(http.MethodGet, "/", nil), identityOf(u)), rec)
	if err := h.Me(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"email":"ada@example.com"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestHandler_UpdateAvailability_MissingField(t *testing.T) {
	h, e := newTestHandler(t)
	u := mustRegister(t, h.svc, validRegister("donor"))
	c := e.NewContext(withIdentity(jsonRequest(http.MethodPut, `{}`), identityOf(u)), httptest.NewRecorder())

	err := h.UpdateAvailability(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_UpdateProfile_Multipart(t *testing.T) {
	h, e := newTestHandler(t)
	u := mustRegister(t, h.svc, validRegister("donor"))

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("city", "Capital City")
	fw, _ := w.CreateFormFile("profilePicture", "me.png")
	_, _ = fw.Write(pngBytes)
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPut, "/", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	c := e.NewContext(withIdentity(req, identityOf(u)), rec)

	if err := h.UpdateProfile(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"city":"Capital City"`) || !strings.Contains(body, `"profilePicture":"mem://`) {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestHandler_ListDonors(t *testing.T) {
	h, e := newTestHandler(t)
	seedDonors(t, h.svc)

	req := httptest.NewRequest(http.MethodGet, "/?bloodType=B%2B&available=false", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(withIdentity(req, auth.Identity{Role: auth.RoleHospital}), rec)
	if err := h.ListDonors(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"count":1`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}
