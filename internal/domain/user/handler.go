package user

import (
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/lifelink/lifelink/internal/domain/inventory"
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
	a := api.Group("/auth")
	a.POST("/register", h.Register)
	a.POST("/login", h.Login)
	a.POST("/refresh", h.Refresh)
	a.POST("/logout", h.Logout)
	a.GET("/me", h.Me)

	u := api.Group("/users")
	u.GET("/donors", h.ListDonors, auth.Authorize(pol, auth.OpDonorList))
	u.GET("/donors/:id", h.GetDonor, auth.Authorize(pol, auth.OpDonorGet))
	u.PUT("/profile", h.UpdateProfile, auth.Authorize(pol, auth.OpProfileUpdate))
	u.PUT("/availability", h.UpdateAvailability, auth.Authorize(pol, auth.OpAvailabilityUpdate))
	u.GET("/hospital/donors", h.HospitalDonors, auth.Authorize(pol, auth.OpDonorListAll))
}

func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.Register(c.Request().Context(), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return apiresp.OK(c, http.StatusCreated, res)
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.Login(c.Request().Context(), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return apiresp.OK(c, http.StatusOK, res)
}

func (h *Handler) Refresh(c echo.Context) error {
	var req RefreshRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return apperr.HTTP(err)
	}
	return apiresp.Message(c, http.StatusOK, "Access token refreshed", res)
}

func (h *Handler) Logout(c echo.Context) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	var req RefreshRequest
	_ = c.Bind(&req)
	if err := h.svc.Logout(c.Request().Context(), actor, req.RefreshToken); err != nil {
		return apperr.HTTP(err)
	}
	return apiresp.Message(c, http.StatusOK, "Logged out successfully", nil)
}

func (h *Handler) Me(c echo.Context) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	u, err := h.svc.Me(c.Request().Context(), actor)
	if err != nil {
		return apperr.HTTP(err)
	}
	return apiresp.OK(c, http.StatusOK, u)
}

func donorFilter(c echo.Context) DonorFilter {
	f := DonorFilter{
		BloodType: inventory.BloodType(c.QueryParam("bloodType")),
		City:      c.QueryParam("city"),
	}
	if v := c.QueryParam("available"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			f.Available = &b
		}
	}
	return f
}

func (h *Handler) ListDonors(c echo.Context) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	donors, err := h.svc.ListDonors(c.Request().Context(), actor, donorFilter(c))
	if err != nil {
		return apperr.HTTP(err)
	}
	if donors == nil {
		donors = []*User{}
	}
	return apiresp.List(c, donors, len(donors))
}

func (h *Handler) GetDonor(c echo.Context) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	u, err := h.svc.GetDonor(c.Request().Context(), actor, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return apiresp.OK(c, http.StatusOK, u)
}

func (h *Handler) HospitalDonors(c echo.Context) error {
	donors, err := h.svc.HospitalDonors(c.Request().Context(), donorFilter(c))
	if err != nil {
		return apperr.HTTP(err)
	}
	if donors == nil {
		donors = []*User{}
	}
	return apiresp.List(c, donors, len(donors))
}

// UpdateProfile accepts JSON or a multipart form with an optional
// profilePicture file.
func (h *Handler) UpdateProfile(c echo.Context) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}

	var upd ProfileUpdate
	var picture *multipart.FileHeader
	ct := c.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(ct, echo.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid multipart form")
		}
		field := func(name string) *string {
			if vals, ok := form.Value[name]; ok && len(vals) > 0 {
				return &vals[0]
			}
			return nil
		}
		upd = ProfileUpdate{
			Name:          field("name"),
			Phone:         field("phone"),
			Address:       field("address"),
			City:          field("city"),
			BloodType:     field("bloodType"),
			HospitalName:  field("hospitalName"),
			LicenseNumber: field("licenseNumber"),
		}
		if files := form.File["profilePicture"]; len(files) > 0 {
			picture = files[0]
		}
	} else if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	u, err := h.svc.UpdateProfile(c.Request().Context(), actor, upd, picture)
	if err != nil {
		return apperr.HTTP(err)
	}
	return apiresp.OK(c, http.StatusOK, u)
}

func (h *Handler) UpdateAvailability(c echo.Context) error {
	actor, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	var req AvailabilityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.IsAvailable == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "isAvailable is required")
	}
	u, err := h.svc.UpdateAvailability(c.Request().Context(), actor, *req.IsAvailable)
	if err != nil {
		return apperr.HTTP(err)
	}
	return apiresp.OK(c, http.StatusOK, u)
}
