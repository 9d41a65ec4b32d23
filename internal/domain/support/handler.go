package support

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/lifelink/lifelink/internal/platform/apperr"
	"github.com/lifelink/lifelink/internal/platform/auth"
	"github.com/lifelink/lifelink/pkg/apiresp"
	"github.com/lifelink/lifelink/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group, pol *auth.Policy) {
	g := api.Group("/support")
	g.POST("", h.Create, auth.Authorize(pol, auth.OpSupportCreate))
	g.GET("/my", h.Mine, auth.Authorize(pol, auth.OpSupportCreate))

	admin := g.Group("/admin", auth.Authorize(pol, auth.OpSupportAdmin))
	admin.GET("", h.AdminList)
	admin.PUT("/:id/reply", h.Reply)
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
	m, err := h.svc.Create(c.Request().Context(), actor, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return apiresp.OK(c, http.StatusCreated, m)
}

func (h *Handler) Mine(c echo.Context) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Mine(c.Request().Context(), actor)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*Message{}
	}
	return apiresp.List(c, items, len(items))
}

func (h *Handler) AdminList(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.AdminList(c.Request().Context(), c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*Message{}
	}
	return apiresp.Paged(c, items, pagination.NewMeta(total, pg))
}

func (h *Handler) Reply(c echo.Context) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req ReplyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	m, err := h.svc.Reply(c.Request().Context(), actor, id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return apiresp.OK(c, http.StatusOK, m)
}
