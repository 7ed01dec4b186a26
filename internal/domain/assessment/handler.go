package assessment

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/assessment/internal/platform/apperr"
	"github.com/ehr/assessment/internal/platform/auth"
	"github.com/ehr/assessment/internal/platform/middleware"
)

type Handler struct {
	svc      *Service
	createMW []echo.MiddlewareFunc
}

// NewHandler returns the assessment handler. createMW runs in front of
// POST /assessments only, e.g. a rate limiter.
func NewHandler(svc *Service, createMW ...echo.MiddlewareFunc) *Handler {
	return &Handler{svc: svc, createMW: createMW}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/assessments")
	create := append([]echo.MiddlewareFunc{auth.RequirePermission(auth.PermAssessmentCreate)}, h.createMW...)
	g.POST("", h.CreateAssessment, create...)
	g.GET("/:id", h.GetAssessment, auth.RequirePermission(auth.PermAssessmentRead))
}

func (h *Handler) CreateAssessment(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return apperr.Validation(apperr.CodeInvalidField, "invalid request body")
	}
	ctx := WithRequestID(c.Request().Context(), middleware.RequestIDFrom(c))
	resp, err := h.svc.Assess(ctx, auth.ActorFromEcho(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, resp)
}

func (h *Handler) GetAssessment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation(apperr.CodeInvalidField, "invalid id").WithDetail("field", "id")
	}
	resp, err := h.svc.GetAssessment(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}
