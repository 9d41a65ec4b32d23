package drive

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifelink/lifelink/internal/platform/auth"
)

func newTestHandler() (*Handler, *testEnv, *echo.Echo) {
	env := newTestEnv()
	return NewHandler(env.svc), env, echo.New()
}

func withIdentity(req *http.Request, id auth.Identity) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), id))
}

func TestHandler_Create(t *testing.T) {
	h, env, e := newTestHandler()
	body := `{"title":"Spring Drive","date":"2026-03-20","startTime":"09:00","endTime":"15:00","location":"Town Hall","bloodTypes":["O-"]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(withIdentity(req, env.hospital), rec)

	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"bloodTypes":["O-"]`)
}

func TestHandler_Create_BadBody(t *testing.T) {
	h, env, e := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(withIdentity(req, env.hospital), httptest.NewRecorder())

	err := h.Create(c)
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusBadRequest, he.Code)
}

func TestHandler_ListUpcoming_Empty(t *testing.T) {
	h, env, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(withIdentity(httptest.NewRequest(http.MethodGet, "/", nil), env.donor), rec)

	require.NoError(t, h.ListUpcoming(c))
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestHandler_Register_Conflict(t *testing.T) {
	h, env, e := newTestHandler()
	d := env.create(t)

	call := func() error {
		req := withIdentity(httptest.NewRequest(http.MethodPut, "/", nil), env.donor)
		c := e.NewContext(req, httptest.NewRecorder())
		c.SetParamNames("id")
		c.SetParamValues(d.ID.String())
		return h.Register(c)
	}
	require.NoError(t, call())

	var he *echo.HTTPError
	require.ErrorAs(t, call(), &he)
	assert.Equal(t, http.StatusConflict, he.Code)
}

func TestHandler_MarkAttendance_InvalidDonor(t *testing.T) {
	h, env, e := newTestHandler()
	d := env.create(t)
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"status":"Attended"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(withIdentity(req, env.hospital), httptest.NewRecorder())
	c.SetParamNames("id", "donorId")
	c.SetParamValues(d.ID.String(), "x")

	err := h.MarkAttendance(c)
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusBadRequest, he.Code)
}

func TestHandler_Routes_RecipientCannotCreate(t *testing.T) {
	h, _, e := newTestHandler()
	h.RegisterRoutes(e.Group("/api"), auth.DefaultPolicy())

	req := httptest.NewRequest(http.MethodPost, "/api/drives", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = withIdentity(req, auth.Identity{Role: auth.RoleRecipient})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
