package donation

import (
	"fmt"
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
	g := api.Group("/requests")
	g.POST("", h.Create, auth.Authorize(pol, auth.OpDonationCreate))
	g.GET("/my-requests", h.MyRequests, auth.Authorize(pol, auth.OpDonationListMine))
	g.GET("/pending", h.Pending, auth.Authorize(pol, auth.OpDonationPending))
	g.PUT("/:id/accept", h.Accept, auth.Authorize(pol, auth.OpDonationRespond))
	g.PUT("/:id/reject", h.Reject, auth.Authorize(pol, auth.OpDonationRespond))
	g.PUT("/:id/complete", h.Complete, auth.Authorize(pol, auth.OpDonationComplete))
	g.DELETE("/:id", h.Delete, auth.Authorize(pol, auth.OpDonationDelete))
	g.POST("/emergency", h.Emergency, auth.Authorize(pol, auth.OpEmergency))

	donor := api.Group("/donor", auth.Authorize(pol, auth.OpDonationRespond))
	donor.GET("/requests", h.MyRequests)
	donor.PUT("/requests/:id/status", h.Respond)

	admin := api.Group("/admin", auth.Authorize(pol, auth.OpDonationAdmin))
	admin.POST("/notify", h.NotifyDonor)
	admin.POST("/bulk-request", h.BulkRequest)
	admin.GET("/donation-requests", h.AdminList)
	admin.PUT("/donation-requests/:id/status", h.AdminUpdateStatus)
	admin.DELETE("/donation-requests/:id", h.AdminDelete)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func emptyIfNil(items []*Request) []*Request {
	if items == nil {
		return []*Request{}
	}
	return items
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
	r, err := h.svc.Create(c.Request().Context(), actor, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return apiresp.Message(c, http.StatusCreated, "Donation request sent", r)
}

func (h *Handler) MyRequests(c echo.Context) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	items, err := h.svc.MyRequests(c.Request().Context(), actor)
	if err != nil {
		return apperr.HTTP(err)
	}
	items = emptyIfNil(items)
	return apiresp.List(c, items, len(items))
}

func (h *Handler) Pending(c echo.Context) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Pending(c.Request().Context(), actor)
	if err != nil {
		return apperr.HTTP(err)
	}
	items = emptyIfNil(items)
	return apiresp.List(c, items, len(items))
}

func (h *Handler) Accept(c echo.Context) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.Accept(c.Request().Context(), actor, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return apiresp.Message(c, http.StatusOK, "Request accepted", r)
}

func (h *Handler) Reject(c echo.Context) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.Reject(c.Request().Context(), actor, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return apiresp.Message(c, http.StatusOK, "Request rejected", r)
}

func (h *Handler) Respond(c echo.Context) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req StatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	r, err := h.svc.Respond(c.Request().Context(), actor, id, req.Status)
	if err != nil {
		return apperr.HTTP(err)
	}
	return apiresp.Message(c, http.StatusOK, fmt.Sprintf("Request %s", r.Status), r)
}

func (h *Handler) Complete(c echo.Context) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.Complete(c.Request().Context(), actor, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return apiresp.Message(c, http.StatusOK, "Donation marked as complete", r)
}

func (h *Handler) Delete(c echo.Context) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), actor, id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Emergency(c echo.Context) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	var req EmergencyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	n, err := h.svc.EmergencyBroadcast(c.Request().Context(), actor, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return apiresp.Message(c, http.StatusOK, fmt.Sprintf("Emergency broadcast sent to %d donors", n), map[string]int{"count": n})
}

func (h *Handler) NotifyDonor(c echo.Context) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	var req NotifyDonorRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	r, err := h.svc.NotifyDonor(c.Request().Context(), actor, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return apiresp.Message(c, http.StatusCreated, "Notification sent successfully", r)
}

func (h *Handler) BulkRequest(c echo.Context) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	var req BulkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	n, err := h.svc.BulkRequest(c.Request().Context(), actor, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return apiresp.Message(c, http.StatusCreated, fmt.Sprintf("Successfully notified %d donors", n), map[string]int{"count": n})
}

func (h *Handler) AdminList(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.AdminList(c.Request().Context(), c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return apiresp.Paged(c, emptyIfNil(items), pagination.NewMeta(total, pg))
}

func (h *Handler) AdminUpdateStatus(c echo.Context) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req StatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	r, err := h.svc.AdminUpdateStatus(c.Request().Context(), actor, id, req.Status)
	if err != nil {
		return apperr.HTTP(err)
	}
	return apiresp.OK(c, http.StatusOK, r)
}

func (h *Handler) AdminDelete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.AdminDelete(c.Request().Context(), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
