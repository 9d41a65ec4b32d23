package inventory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/lifelink/lifelink/internal/platform/auth"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _ := newTestService()
	return NewHandler(svc), echo.New()
}

func asAdmin(req *http.Request) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), testAdmin))
}

func TestHandler_GetStock(t *testing.T) {
	h, e := newTestHandler()
	addManual(t, h.svc, "A+", 2)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.GetStock(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Success bool         `json:"success"`
		Data    []StockEntry `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || len(body.Data) != 8 || body.Data[0].Units != 2 {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestHandler_AdjustStock(t *testing.T) {
	h, e := newTestHandler()
	body := `{"bloodType":"O-","quantity":2,"action":"add","manualDonorName":"Sam","manualDonorPhone":"555"}`
	req := asAdmin(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.AdjustStock(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"units":2`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func putStock(t *testing.T, h *Handler, e *echo.Echo, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := asAdmin(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.AdjustStock(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return rec
}

func TestHandler_AdjustStock_EmptyDonorID(t *testing.T) {
	h, e := newTestHandler()

	rec := putStock(t, h, e, `{"bloodType":"A+","quantity":"3","action":"add","donorId":"","manualDonorName":"Jane Doe","manualDonorPhone":"555-1111"}`)
	if !strings.Contains(rec.Body.String(), `"units":3`) {
		t.Errorf("unexpected add body: %s", rec.Body.String())
	}

	rec = putStock(t, h, e, `{"bloodType":"A+","quantity":1,"action":"subtract","donorId":"","isManual":false}`)
	if !strings.Contains(rec.Body.String(), `"units":2`) {
		t.Errorf("unexpected subtract body: %s", rec.Body.String())
	}
}

func TestHandler_AdjustStock_BadDonorID(t *testing.T) {
	h, e := newTestHandler()
	body := `{"bloodType":"A+","quantity":1,"action":"add","donorId":"not-a-uuid"}`
	req := asAdmin(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	err := h.AdjustStock(e.NewContext(req, httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest || he.Message != "invalid donorId" {
		t.Fatalf("expected 400 invalid donorId, got %v", err)
	}
}

func TestHandler_AdjustStock_Insufficient(t *testing.T) {
	h, e := newTestHandler()
	body := `{"bloodType":"O-","quantity":1,"action":"subtract"}`
	req := asAdmin(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.AdjustStock(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_AdjustStock_NoIdentity(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.AdjustStock(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestHandler_ListUnits(t *testing.T) {
	h, e := newTestHandler()
	addManual(t, h.svc, "B+", 3)

	req := httptest.NewRequest(http.MethodGet, "/?bloodType=B%2B&limit=2", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListUnits(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Data       []BloodUnit `json:"data"`
		Pagination struct {
			Total   int  `json:"total"`
			HasMore bool `json:"has_more"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data) != 2 || body.Pagination.Total != 3 || !body.Pagination.HasMore {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestHandler_DonorsByBloodType_EscapedParam(t *testing.T) {
	h, e := newTestHandler()
	addManual(t, h.svc, "AB+", 1)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("bloodType")
	c.SetParamValues("AB%2B")

	if err := h.DonorsByBloodType(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"count":1`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestHandler_Routes_Forbidden(t *testing.T) {
	h, e := newTestHandler()
	api := e.Group("/api")
	api.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := auth.Identity{UserID: testAdmin.UserID, Role: auth.RoleDonor}
			c.SetRequest(c.Request().WithContext(auth.WithIdentity(context.Background(), id)))
			return next(c)
		}
	})
	h.RegisterRoutes(api, auth.DefaultPolicy())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/blood-bank/stock", strings.NewReader(`{}`)))
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for donor adjusting stock, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/blood-bank/stock", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for donor viewing stock, got %d", rec.Code)
	}
}
