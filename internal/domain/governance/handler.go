package governance

import (
	"encoding/json"
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
	g := api.Group("/governance", auth.RequirePermission(auth.PermGovernanceAdmin))
	g.GET("/rules", h.ListRules)
	g.POST("/rules", h.CreateRule)
	g.GET("/rules/:id", h.GetRule)
	g.PUT("/rules/:id", h.UpdateRule)
}

type ruleRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Type        RuleType        `json:"type"`
	Config      json.RawMessage `json:"config"`
	Active      *bool           `json:"active"`
	Scope       []string        `json:"scope"`
}

func (req ruleRequest) rule() *Rule {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return &Rule{
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		Config:      req.Config,
		Active:      active,
		Scope:       req.Scope,
	}
}

func (h *Handler) CreateRule(c echo.Context) error {
	var req ruleRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation(apperr.CodeInvalidField, "invalid request body")
	}
	r := req.rule()
	if err := h.svc.CreateRule(c.Request().Context(), r); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) GetRule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation(apperr.CodeInvalidField, "invalid id").WithDetail("field", "id")
	}
	r, err := h.svc.GetRule(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) UpdateRule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation(apperr.CodeInvalidField, "invalid id").WithDetail("field", "id")
	}
	var req ruleRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation(apperr.CodeInvalidField, "invalid request body")
	}
	r := req.rule()
	r.ID = id
	if err := h.svc.UpdateRule(c.Request().Context(), r); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) ListRules(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListRules(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
