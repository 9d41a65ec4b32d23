package admin

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/lifelink/lifelink/internal/domain/user"
	"github.com/lifelink/lifelink/internal/platform/apperr"
	"github.com/lifelink/lifelink/internal/platform/auth"
	"github.com/lifelink/lifelink/internal/platform/reporting"
	"github.com/lifelink/lifelink/pkg/apiresp"
	"github.com/lifelink/lifelink/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the dashboard endpoints. The donation-request admin
// routes under /admin are registered by the donation handler.
func (h *Handler) RegisterRoutes(api *echo.Group, pol *auth.Policy) {
	g := api.Group("/admin", auth.Authorize(pol, auth.OpAdminDashboard))
	g.GET("/stats", h.Stats)
	g.GET("/users", h.Users)
	g.DELETE("/users/:id", h.DeleteUser)
	g.GET("/export/inventory.xlsx", h.ExportInventory)
}

func (h *Handler) Stats(c echo.Context) error {
	st, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return apperr.HTTP(err)
	}
	return apiresp.OK(c, http.StatusOK, st)
}

func (h *Handler) Users(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Users(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*user.User{}
	}
	return apiresp.Paged(c, items, pagination.NewMeta(total, pg))
}

func (h *Handler) DeleteUser(c echo.Context) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteUser(c.Request().Context(), actor, id); err != nil {
		return apperr.HTTP(err)
	}
	return apiresp.Message(c, http.StatusOK, "User removed", nil)
}

func (h *Handler) ExportInventory(c echo.Context) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	data, err := h.svc.ExportInventory(c.Request().Context(), actor)
	if err != nil {
		return apperr.HTTP(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", h.svc.ExportFilename()))
	return c.Blob(http.StatusOK, reporting.ContentTypeXLSX, data)
}
