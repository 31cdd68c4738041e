package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/application/services"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/domain/workflow"
)

// InstanceHandler exposes the instance engine to entity-owning services
// (cases, investigations, disclosures). Business-rule failures come back as
// 200 responses with success=false so callers can render the specific rule
// that blocked them; structural failures map to 4xx.
type InstanceHandler struct {
	svc *services.ServiceManager
}

// NewInstanceHandler creates a new InstanceHandler
func NewInstanceHandler(svc *services.ServiceManager) *InstanceHandler {
	return &InstanceHandler{svc: svc}
}

type startInstanceRequest struct {
	EntityType string  `json:"entity_type" binding:"required"`
	EntityID   string  `json:"entity_id" binding:"required"`
	TemplateID *string `json:"template_id"`
}

// StartInstance handles POST /api/workflow/instances
func (h *InstanceHandler) StartInstance(c *gin.Context) {
	var req startInstanceRequest
	if !BindJSON(c, &req) {
		return
	}

	inst, err := h.svc.Engine.Start(c.Request.Context(),
		OrganizationFromContext(c), req.EntityType, req.EntityID, req.TemplateID, ActorFromContext(c))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondData(c, http.StatusCreated, inst)
}

// GetInstance handles GET /api/workflow/instances/:instanceId
func (h *InstanceHandler) GetInstance(c *gin.Context) {
	inst, err := h.svc.Engine.GetInstance(c.Request.Context(), c.Param("instanceId"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondData(c, http.StatusOK, inst)
}

// GetInstanceByEntity handles GET /api/workflow/instances/by-entity/:entityType/:entityId
func (h *InstanceHandler) GetInstanceByEntity(c *gin.Context) {
	inst, err := h.svc.Engine.GetInstanceByEntity(c.Request.Context(),
		OrganizationFromContext(c), c.Param("entityType"), c.Param("entityId"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondData(c, http.StatusOK, inst)
}

// ListInstances handles GET /api/workflow/instances?status=ACTIVE
func (h *InstanceHandler) ListInstances(c *gin.Context) {
	var status *workflow.InstanceStatus
	if raw := c.Query("status"); raw != "" {
		s := workflow.InstanceStatus(raw)
		status = &s
	}

	instances, err := h.svc.Engine.ListInstances(c.Request.Context(), OrganizationFromContext(c), status)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondData(c, http.StatusOK, instances)
}

type transitionRequest struct {
	ToStage            string                 `json:"to_stage" binding:"required"`
	Reason             *string                `json:"reason"`
	SkipGateValidation bool                   `json:"skip_gate_validation"`
	Entity             map[string]interface{} `json:"entity"`
	Context            map[string]interface{} `json:"context"`
	ExpectedRevision   *int64                 `json:"expected_revision"`
}

// TransitionInstance handles POST /api/workflow/instances/:instanceId/transition
func (h *InstanceHandler) TransitionInstance(c *gin.Context) {
	var req transitionRequest
	if !BindJSON(c, &req) {
		return
	}

	result, err := h.svc.Engine.Transition(c.Request.Context(), c.Param("instanceId"), services.TransitionRequest{
		ToStage:            req.ToStage,
		ActorID:            ActorFromContext(c),
		Reason:             req.Reason,
		SkipGateValidation: req.SkipGateValidation,
		Entity:             req.Entity,
		Context:            req.Context,
		ExpectedRevision:   req.ExpectedRevision,
	})
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondData(c, http.StatusOK, result)
}

type completeRequest struct {
	Outcome *string `json:"outcome"`
}

// CompleteInstance handles POST /api/workflow/instances/:instanceId/complete
func (h *InstanceHandler) CompleteInstance(c *gin.Context) {
	var req completeRequest
	if !BindOptionalJSON(c, &req) {
		return
	}

	result, err := h.svc.Engine.Complete(c.Request.Context(), c.Param("instanceId"), req.Outcome, ActorFromContext(c))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondData(c, http.StatusOK, result)
}

type reasonRequest struct {
	Reason *string `json:"reason"`
}

// CancelInstance handles POST /api/workflow/instances/:instanceId/cancel
func (h *InstanceHandler) CancelInstance(c *gin.Context) {
	var req reasonRequest
	if !BindOptionalJSON(c, &req) {
		return
	}

	result, err := h.svc.Engine.Cancel(c.Request.Context(), c.Param("instanceId"), ActorFromContext(c), req.Reason)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondData(c, http.StatusOK, result)
}

// PauseInstance handles POST /api/workflow/instances/:instanceId/pause
func (h *InstanceHandler) PauseInstance(c *gin.Context) {
	var req reasonRequest
	if !BindOptionalJSON(c, &req) {
		return
	}

	result, err := h.svc.Engine.Pause(c.Request.Context(), c.Param("instanceId"), ActorFromContext(c), req.Reason)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondData(c, http.StatusOK, result)
}

// ResumeInstance handles POST /api/workflow/instances/:instanceId/resume
func (h *InstanceHandler) ResumeInstance(c *gin.Context) {
	inst, err := h.svc.Engine.Resume(c.Request.Context(), c.Param("instanceId"), ActorFromContext(c))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondData(c, http.StatusOK, inst)
}

// GetAllowedTransitions handles GET /api/workflow/instances/:instanceId/allowed-transitions
func (h *InstanceHandler) GetAllowedTransitions(c *gin.Context) {
	allowed, err := h.svc.Engine.GetAllowedTransitions(c.Request.Context(), c.Param("instanceId"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondData(c, http.StatusOK, allowed)
}
