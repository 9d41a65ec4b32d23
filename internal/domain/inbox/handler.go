package inbox

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
	g := api.Group("/notifications", auth.Authorize(pol, auth.OpNotificationAccess))
	g.GET("", h.List)
	g.PUT("/read-all", h.MarkAllRead)
	g.PUT("/:id/read", h.MarkRead)
	g.DELETE("/:id", h.Delete)
}

func (h *Handler) List(c echo.Context) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	items, err := h.svc.List(c.Request().Context(), actor)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*Notification{}
	}
	return apiresp.List(c, items, len(items))
}

func (h *Handler) MarkRead(c echo.Context) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	n, err := h.svc.MarkRead(c.Request().Context(), actor, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return apiresp.OK(c, http.StatusOK, n)
}

func (h *Handler) MarkAllRead(c echo.Context) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	n, err := h.svc.MarkAllRead(c.Request().Context(), actor)
	if err != nil {
		return apperr.HTTP(err)
	}
	return apiresp.Message(c, http.StatusOK, "All notifications marked as read", map[string]int64{"updated": n})
}

func (h *Handler) Delete(c echo.Context) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), actor, id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
