package drive

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/lifelink/lifelink/internal/platform/apperr"
	"github.com/lifelink/lifelink/internal/platform/auth"
	"github.com/lifelink/lifelink/pkg/apiresp"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group, pol *auth.Policy) {
	g := api.Group("/drives")
	g.GET("", h.ListUpcoming, auth.Authorize(pol, auth.OpDriveList))
	g.POST("", h.Create, auth.Authorize(pol, auth.OpDriveCreate))
	g.GET("/my-drives", h.MyDrives, auth.Authorize(pol, auth.OpDriveMine))
	g.PUT("/:id/register", h.Register, auth.Authorize(pol, auth.OpDriveRegister))
	g.PUT("/:id/status", h.UpdateStatus, auth.Authorize(pol, auth.OpDriveManage))
	g.PUT("/:id/attendees/:donorId", h.MarkAttendance, auth.Authorize(pol, auth.OpDriveManage))
}

func (h *Handler) Create(c echo.Context) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d, err := h.svc.Create(c.Request().Context(), actor, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return apiresp.OK(c, http.StatusCreated, d)
}

func (h *Handler) ListUpcoming(c echo.Context) error {
	items, err := h.svc.ListUpcoming(c.Request().Context())
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*Drive{}
	}
	return apiresp.List(c, items, len(items))
}

func (h *Handler) MyDrives(c echo.Context) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	items, err := h.svc.MyDrives(c.Request().Context(), actor)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*Drive{}
	}
	return apiresp.List(c, items, len(items))
}

func (h *Handler) Register(c echo.Context) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	d, err := h.svc.Register(c.Request().Context(), actor, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return apiresp.Message(c, http.StatusOK, "Successfully registered for the drive", d)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req StatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d, err := h.svc.UpdateStatus(c.Request().Context(), actor, id, req.Status)
	if err != nil {
		return apperr.HTTP(err)
	}
	return apiresp.OK(c, http.StatusOK, d)
}

func (h *Handler) MarkAttendance(c echo.Context) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	donorID, err := uuid.Parse(c.Param("donorId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid donor id")
	}
	var req StatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.MarkAttendance(c.Request().Context(), actor, id, donorID, req.Status); err != nil {
		return apperr.HTTP(err)
	}
	return apiresp.Message(c, http.StatusOK, "Attendance updated", nil)
}
