package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/application/services"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/domain/ports"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/domain/workflow"
)

// TemplateHandler exposes the template store to the authoring UI.
// Authoring clients must handle fork-on-update: a successful update may
// return a different template id/version than requested.
type TemplateHandler struct {
	svc *services.ServiceManager
}

// NewTemplateHandler creates a new TemplateHandler
func NewTemplateHandler(svc *services.ServiceManager) *TemplateHandler {
	return &TemplateHandler{svc: svc}
}

// CreateTemplate handles POST /api/workflow/templates
func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	var tpl workflow.Template
	if !BindJSON(c, &tpl) {
		return
	}
	tpl.OrganizationID = OrganizationFromContext(c)

	created, err := h.svc.Templates.Create(c.Request.Context(), &tpl)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondData(c, http.StatusCreated, created)
}

// GetTemplate handles GET /api/workflow/templates/:templateId
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	tpl, err := h.svc.Templates.GetByID(c.Request.Context(), c.Param("templateId"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondData(c, http.StatusOK, tpl)
}

// ListTemplates handles GET /api/workflow/templates?entityType=&active=true
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	filter := ports.TemplateFilter{
		ActiveOnly: c.Query("active") == "true",
	}
	if entityType := c.Query("entityType"); entityType != "" {
		filter.EntityType = &entityType
	}

	templates, err := h.svc.Templates.FindAll(c.Request.Context(), OrganizationFromContext(c), filter)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondData(c, http.StatusOK, templates)
}

// GetDefaultTemplate handles GET /api/workflow/templates/default/:entityType
func (h *TemplateHandler) GetDefaultTemplate(c *gin.Context) {
	tpl, err := h.svc.Templates.FindDefault(c.Request.Context(), OrganizationFromContext(c), c.Param("entityType"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondData(c, http.StatusOK, tpl)
}

// templateUpdateRequest mirrors services.TemplateUpdate for JSON binding
type templateUpdateRequest struct {
	Name           *string                `json:"name"`
	Description    *string                `json:"description"`
	Stages         *[]workflow.Stage      `json:"stages"`
	Transitions    *[]workflow.Transition `json:"transitions"`
	InitialStage   *string                `json:"initial_stage"`
	DefaultSlaDays *int                   `json:"default_sla_days"`
	IsActive       *bool                  `json:"is_active"`
	IsDefault      *bool                  `json:"is_default"`
}

// UpdateTemplate handles PATCH /api/workflow/templates/:templateId
func (h *TemplateHandler) UpdateTemplate(c *gin.Context) {
	var req templateUpdateRequest
	if !BindJSON(c, &req) {
		return
	}

	updated, err := h.svc.Templates.Update(c.Request.Context(), c.Param("templateId"), services.TemplateUpdate{
		Name:           req.Name,
		Description:    req.Description,
		Stages:         req.Stages,
		Transitions:    req.Transitions,
		InitialStage:   req.InitialStage,
		DefaultSlaDays: req.DefaultSlaDays,
		IsActive:       req.IsActive,
		IsDefault:      req.IsDefault,
	})
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondData(c, http.StatusOK, updated)
}

// ListTemplateVersions handles GET /api/workflow/templates/:templateId/versions
func (h *TemplateHandler) ListTemplateVersions(c *gin.Context) {
	versions, err := h.svc.Templates.ListVersions(c.Request.Context(), c.Param("templateId"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondData(c, http.StatusOK, versions)
}

// DeleteTemplate handles DELETE /api/workflow/templates/:templateId
func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	if err := h.svc.Templates.Delete(c.Request.Context(), c.Param("templateId")); err != nil {
		RespondAppError(c, err)
		return
	}
	RespondNoContent(c)
}
