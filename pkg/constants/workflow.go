package constants

// System table names for the workflow engine
const (
	TableWorkflowTemplate = "_System_Workflow_Template"
	TableWorkflowInstance = "_System_Workflow_Instance"
)

// Common field names
const (
	FieldID             = "id"
	FieldOrganizationID = "organization_id"
	FieldCreatedDate    = "created_date"
	FieldLastModified   = "last_modified_date"
)

// _System_Workflow_Template fields
const (
	FieldTemplate_Name             = "name"
	FieldTemplate_EntityType       = "entity_type"
	FieldTemplate_Version          = "version"
	FieldTemplate_Description      = "description"
	FieldTemplate_Definition       = "definition"
	FieldTemplate_DefaultSlaDays   = "default_sla_days"
	FieldTemplate_IsActive         = "is_active"
	FieldTemplate_IsDefault        = "is_default"
	FieldTemplate_SourceTemplateID = "source_template_id"
)

// _System_Workflow_Instance fields
const (
	FieldInstance_EntityType      = "entity_type"
	FieldInstance_EntityID        = "entity_id"
	FieldInstance_TemplateID      = "template_id"
	FieldInstance_TemplateVersion = "template_version"
	FieldInstance_CurrentStage    = "current_stage"
	FieldInstance_Status          = "status"
	FieldInstance_Revision        = "revision"
	FieldInstance_DueDate         = "due_date"
	FieldInstance_SlaStatus       = "sla_status"
	FieldInstance_SlaStartedAt    = "sla_started_at"
	FieldInstance_StageEnteredAt  = "stage_entered_at"
	FieldInstance_StepStates      = "step_states"
	FieldInstance_Outcome         = "outcome"
	FieldInstance_StartedDate     = "started_date"
	FieldInstance_CompletedDate   = "completed_date"
	FieldInstance_CreatedByID     = "created_by_id"
)

// SLA defaults. The sweep schedule is a standard 5-field cron expression;
// thresholds can be overridden via environment variables (see cmd/server).
const (
	SlaSweepScheduleDefault    = "*/5 * * * *"
	SlaWarningThresholdPercent = 80.0
	SlaCriticalThresholdHours  = 24.0
	SlaDefaultDays             = 7
)

// Wildcard stage id in transition definitions: matches any current stage.
const StageWildcard = "*"

// Gin context keys set by the service-token middleware
const (
	ContextKeyOrganization = "organization_id"
	ContextKeyActor        = "actor_id"
)
