package inventory

import (
	"net/http"
	"net/url"

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
	g := api.Group("/blood-bank")
	g.GET("/stock", h.GetStock, auth.Authorize(pol, auth.OpStockView))
	g.PUT("/stock", h.AdjustStock, auth.Authorize(pol, auth.OpStockAdjust))
	g.GET("/units", h.ListUnits, auth.Authorize(pol, auth.OpUnitList))
	g.GET("/donors/:bloodType", h.DonorsByBloodType, auth.Authorize(pol, auth.OpStockDonors))
}

func (h *Handler) GetStock(c echo.Context) error {
	stock, err := h.svc.Stock(c.Request().Context())
	if err != nil {
		return apperr.HTTP(err)
	}
	return apiresp.OK(c, http.StatusOK, stock)
}

func (h *Handler) AdjustStock(c echo.Context) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	var req AdjustRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	entry, err := h.svc.Adjust(c.Request().Context(), actor, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return apiresp.Message(c, http.StatusOK, "Stock updated successfully", entry)
}

func (h *Handler) ListUnits(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := UnitFilter{
		BloodType: BloodType(c.QueryParam("bloodType")),
		Status:    UnitStatus(c.QueryParam("status")),
	}
	items, total, err := h.svc.ListUnits(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*BloodUnit{}
	}
	return apiresp.Paged(c, items, pagination.NewMeta(total, pg))
}

func (h *Handler) DonorsByBloodType(c echo.Context) error {
	raw, err := url.PathUnescape(c.Param("bloodType"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid blood type")
	}
	items, err := h.svc.DonorsByBloodType(c.Request().Context(), BloodType(raw))
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*DonorUnit{}
	}
	return apiresp.List(c, items, len(items))
}
