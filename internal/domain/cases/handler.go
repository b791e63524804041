package cases

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/steno/steno/internal/platform/assetstore"
	"github.com/steno/steno/internal/platform/auth"
)

type Handler struct {
	svc    *Service
	assets assetstore.Store
}

func NewHandler(svc *Service, assets assetstore.Store) *Handler {
	return &Handler{svc: svc, assets: assets}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/cases", h.Intake, auth.RequireRole(auth.RoleClinic))
	api.GET("/cases", h.ListCases, auth.RequireRole(auth.RoleClinic, auth.RoleJuniorDoctor, auth.RoleSeniorDoctor))
	api.PUT("/cases/:id/review", h.SubmitReview, auth.RequireRole(auth.RoleJuniorDoctor, auth.RoleSeniorDoctor))
	api.GET("/my-cases", h.MyCases, auth.RequireRole(auth.RolePatient))
}

// httpError maps the workflow error taxonomy onto HTTP statuses.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}

// Intake accepts a clinic's multipart case submission: the patient reference
// and the imaging file. The file goes to the asset store; the case keeps only
// the opaque reference.
func (h *Handler) Intake(c echo.Context) error {
	ctx := c.Request().Context()

	patientRef := c.FormValue("patientId")
	if patientRef == "" {
		// The original intake form identifies the patient by email.
		patientRef = c.FormValue("patientEmail")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "imaging file is required")
	}
	src, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read imaging file")
	}
	defer src.Close()

	assetRef, err := h.assets.Put(ctx, fileHeader.Filename, src)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	created, err := h.svc.Intake(ctx, IntakeInput{
		ClinicUID:  auth.UserIDFromContext(ctx),
		PatientRef: patientRef,
		AssetRef:   assetRef,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

// ListCases returns the caller's role-scoped view: clinics see their own
// submissions, doctors see the FIFO queue for their stage.
func (h *Handler) ListCases(c echo.Context) error {
	ctx := c.Request().Context()
	role := auth.RoleFromContext(ctx)

	var (
		list []*Case
		err  error
	)
	if role == auth.RoleClinic {
		list, err = h.svc.ListForClinic(ctx, auth.UserIDFromContext(ctx))
	} else {
		list, err = h.svc.Queue(ctx, role)
	}
	if err != nil {
		return httpError(err)
	}
	if list == nil {
		list = []*Case{}
	}
	return c.JSON(http.StatusOK, list)
}

type reviewRequest struct {
	Decision string `json:"decision"`
	Findings string `json:"findings"`
}

func (h *Handler) SubmitReview(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case id")
	}

	var req reviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	updated, err := h.svc.SubmitReview(ctx, id,
		auth.UserIDFromContext(ctx), auth.RoleFromContext(ctx),
		Decision(req.Decision), req.Findings)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) MyCases(c echo.Context) error {
	ctx := c.Request().Context()
	views, err := h.svc.HistoryForPatient(ctx, auth.UserIDFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	if views == nil {
		views = []*PatientCaseView{}
	}
	return c.JSON(http.StatusOK, views)
}
