package auditevent

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/assessment/internal/platform/apperr"
	"github.com/ehr/assessment/internal/platform/auth"
	"github.com/ehr/assessment/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("/audit-entries", auth.RequirePermission(auth.PermAuditRead))
	read.GET("", h.ListAuditEntries)
	read.GET("/:id", h.GetAuditEntry)
}

func (h *Handler) GetAuditEntry(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation(apperr.CodeInvalidField, "invalid id").WithDetail("field", "id")
	}
	e, err := h.svc.GetAuditEntry(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) ListAuditEntries(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{
		Action:   c.QueryParam("action"),
		ModuleID: c.QueryParam("module"),
		ActorID:  c.QueryParam("actor"),
		Outcome:  c.QueryParam("outcome"),
	}
	items, total, err := h.svc.ListAuditEntries(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
