package bankrequest

import (
	"errors"
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
	g := api.Group("/blood-bank/requests")
	g.POST("", h.Create, auth.Authorize(pol, auth.OpBankRequestCreate))
	g.GET("", h.List, auth.Authorize(pol, auth.OpBankRequestList))
	g.PUT("/:id", h.UpdateStatus, auth.Authorize(pol, auth.OpBankRequestResolve))
	g.PUT("/:id/approve", h.Approve, auth.Authorize(pol, auth.OpBankRequestResolve))
	g.PUT("/:id/reject", h.Reject, auth.Authorize(pol, auth.OpBankRequestResolve))
	g.PUT("/:id/complete", h.Complete, auth.Authorize(pol, auth.OpBankRequestComplete))
	g.DELETE("/:id", h.Delete, auth.Authorize(pol, auth.OpBankRequestDelete))
}

// transition is the shape shared by the id-addressed status handlers.
type transition func(h *Handler, c echo.Context, actor auth.Identity, id uuid.UUID) (*Request, string, error)

func (h *Handler) run(c echo.Context, fn transition) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	r, msg, err := fn(h, c, actor, id)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return apperr.HTTP(err)
	}
	return apiresp.Message(c, http.StatusOK, msg, r)
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
	return apiresp.Message(c, http.StatusCreated, "Blood request submitted", r)
}

func (h *Handler) List(c echo.Context) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), actor, c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*Request{}
	}
	return apiresp.Paged(c, items, pagination.NewMeta(total, pg))
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	return h.run(c, func(h *Handler, c echo.Context, actor auth.Identity, id uuid.UUID) (*Request, string, error) {
		var req StatusRequest
		if err := c.Bind(&req); err != nil {
			return nil, "", echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		r, err := h.svc.UpdateStatus(c.Request().Context(), actor, id, req.Status)
		if err != nil {
			return nil, "", err
		}
		return r, "Request marked as " + string(r.Status), nil
	})
}

func (h *Handler) Approve(c echo.Context) error {
	return h.run(c, func(h *Handler, c echo.Context, actor auth.Identity, id uuid.UUID) (*Request, string, error) {
		r, err := h.svc.Approve(c.Request().Context(), actor, id)
		return r, "Request marked as approved", err
	})
}

func (h *Handler) Reject(c echo.Context) error {
	return h.run(c, func(h *Handler, c echo.Context, actor auth.Identity, id uuid.UUID) (*Request, string, error) {
		r, err := h.svc.Reject(c.Request().Context(), actor, id)
		return r, "Request marked as rejected", err
	})
}

func (h *Handler) Complete(c echo.Context) error {
	return h.run(c, func(h *Handler, c echo.Context, actor auth.Identity, id uuid.UUID) (*Request, string, error) {
		r, err := h.svc.Complete(c.Request().Context(), actor, id)
		return r, "Blood unit(s) marked as received. Request completed.", err
	})
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
