package identity

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/steno/steno/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the public registration endpoint on pub and the
// authenticated directory endpoints on api.
func (h *Handler) RegisterRoutes(pub, api *echo.Group) {
	pub.POST("/register", h.Register)
	api.GET("/patients", h.ListPatients, auth.RequireRole(auth.RoleClinic))
}

type registerRequest struct {
	UID   string `json:"uid"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (h *Handler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	u := &User{UID: req.UID, Name: req.Name, Email: req.Email, Role: req.Role}
	if err := h.svc.Register(c.Request().Context(), u); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return echo.NewHTTPError(http.StatusConflict, "uid already registered")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) ListPatients(c echo.Context) error {
	patients, err := h.svc.ListPatients(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list patients")
	}
	if patients == nil {
		patients = []*User{}
	}
	return c.JSON(http.StatusOK, patients)
}
