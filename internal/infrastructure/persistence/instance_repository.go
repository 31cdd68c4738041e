package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/domain/ports"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/domain/workflow"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/pkg/constants"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/pkg/errors"
)

const instanceColumns = "id, organization_id, entity_type, entity_id, template_id, template_version, " +
	"current_stage, status, revision, due_date, sla_status, sla_started_at, stage_entered_at, " +
	"step_states, outcome, started_date, completed_date, created_by_id"

// InstanceRepository persists workflow instances in MySQL/TiDB. The table's
// unique key on (organization_id, entity_type, entity_id) serializes
// concurrent starts for the same entity; UpdateState applies the optimistic
// revision check that guards concurrent engine mutations.
type InstanceRepository struct {
	db *sql.DB
}

// Ensure the interface is satisfied at compile time
var _ ports.InstanceRepository = (*InstanceRepository)(nil)

// NewInstanceRepository creates a new InstanceRepository
func NewInstanceRepository(db *sql.DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

// Insert creates the instance row. A duplicate entity surfaces as a
// ConflictError via the unique key, never a silent no-op.
func (r *InstanceRepository) Insert(ctx context.Context, inst *workflow.Instance) error {
	stepStates, err := marshalStepStates(inst.StepStates)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		constants.TableWorkflowInstance, instanceColumns)

	_, err = r.db.ExecContext(ctx, query,
		inst.ID, inst.OrganizationID, inst.EntityType, inst.EntityID,
		inst.TemplateID, inst.TemplateVersion, inst.CurrentStage, inst.Status,
		inst.Revision, inst.DueDate, inst.SlaStatus, inst.SlaStartedAt,
		inst.StageEnteredAt, stepStates, inst.Outcome, inst.StartedAt,
		inst.CompletedAt, inst.CreatedBy)
	if isDuplicateKey(err) {
		return &errors.ConflictError{
			Resource: "WorkflowInstance",
			Message: fmt.Sprintf("entity %s/%s already has a workflow instance",
				inst.EntityType, inst.EntityID),
		}
	}
	return err
}

// GetByID fetches one instance, or nil when absent
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*workflow.Instance, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ?`,
		instanceColumns, constants.TableWorkflowInstance, constants.FieldID)
	return r.queryOne(ctx, query, id)
}

// GetByEntity fetches the instance bound to an entity, or nil
func (r *InstanceRepository) GetByEntity(ctx context.Context, organizationID, entityType, entityID string) (*workflow.Instance, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ? AND %s = ? AND %s = ?`,
		instanceColumns, constants.TableWorkflowInstance,
		constants.FieldOrganizationID, constants.FieldInstance_EntityType, constants.FieldInstance_EntityID)
	return r.queryOne(ctx, query, organizationID, entityType, entityID)
}

// List returns an organization's instances, optionally filtered by status
func (r *InstanceRepository) List(ctx context.Context, organizationID string, status *workflow.InstanceStatus) ([]*workflow.Instance, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, `SELECT %s FROM %s WHERE %s = ?`,
		instanceColumns, constants.TableWorkflowInstance, constants.FieldOrganizationID)
	args := []interface{}{organizationID}

	if status != nil {
		fmt.Fprintf(&sb, ` AND %s = ?`, constants.FieldInstance_Status)
		args = append(args, string(*status))
	}
	fmt.Fprintf(&sb, ` ORDER BY %s DESC`, constants.FieldInstance_StartedDate)

	return r.queryMany(ctx, sb.String(), args...)
}

// ListDueActive returns every ACTIVE instance with a due date, across all
// organizations, for the SLA sweep.
func (r *InstanceRepository) ListDueActive(ctx context.Context) ([]*workflow.Instance, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ? AND %s IS NOT NULL`,
		instanceColumns, constants.TableWorkflowInstance,
		constants.FieldInstance_Status, constants.FieldInstance_DueDate)
	return r.queryMany(ctx, query, string(workflow.InstanceStatusActive))
}

// UpdateState writes the mutable columns guarded by the revision the caller
// read. Zero rows affected means another writer got there first.
func (r *InstanceRepository) UpdateState(ctx context.Context, inst *workflow.Instance, expectedRevision int64) error {
	stepStates, err := marshalStepStates(inst.StepStates)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE %s SET %s = ?, %s = ?, %s = %s + 1, %s = ?, %s = ?, %s = ?, %s = ?, %s = ?, %s = ? WHERE %s = ? AND %s = ?`,
		constants.TableWorkflowInstance,
		constants.FieldInstance_CurrentStage,
		constants.FieldInstance_Status,
		constants.FieldInstance_Revision, constants.FieldInstance_Revision,
		constants.FieldInstance_DueDate,
		constants.FieldInstance_SlaStartedAt,
		constants.FieldInstance_StageEnteredAt,
		constants.FieldInstance_StepStates,
		constants.FieldInstance_Outcome,
		constants.FieldInstance_CompletedDate,
		constants.FieldID,
		constants.FieldInstance_Revision)

	result, err := r.db.ExecContext(ctx, query,
		inst.CurrentStage, inst.Status, inst.DueDate, inst.SlaStartedAt,
		inst.StageEnteredAt, stepStates, inst.Outcome, inst.CompletedAt,
		inst.ID, expectedRevision)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.NewRevisionConflictError("WorkflowInstance", inst.ID, expectedRevision)
	}

	inst.Revision = expectedRevision + 1
	return nil
}

// UpdateSlaStatus writes only the SLA status; the sweep and the engine are
// eventually consistent so no revision guard applies.
func (r *InstanceRepository) UpdateSlaStatus(ctx context.Context, id string, status workflow.SlaStatus) error {
	query := fmt.Sprintf(`UPDATE %s SET %s = ? WHERE %s = ?`,
		constants.TableWorkflowInstance, constants.FieldInstance_SlaStatus, constants.FieldID)
	_, err := r.db.ExecContext(ctx, query, string(status), id)
	return err
}

// CountActiveByTemplate counts ACTIVE instances pinned to a template version
func (r *InstanceRepository) CountActiveByTemplate(ctx context.Context, templateID string, version int) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = ? AND %s = ? AND %s = ?`,
		constants.TableWorkflowInstance,
		constants.FieldInstance_TemplateID, constants.FieldInstance_TemplateVersion,
		constants.FieldInstance_Status)

	var count int
	err := r.db.QueryRowContext(ctx, query, templateID, version, string(workflow.InstanceStatusActive)).Scan(&count)
	return count, err
}

// CountByTemplate counts instances of any status bound to a template
func (r *InstanceRepository) CountByTemplate(ctx context.Context, templateID string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = ?`,
		constants.TableWorkflowInstance, constants.FieldInstance_TemplateID)

	var count int
	err := r.db.QueryRowContext(ctx, query, templateID).Scan(&count)
	return count, err
}

func (r *InstanceRepository) queryOne(ctx context.Context, query string, args ...interface{}) (*workflow.Instance, error) {
	row := r.db.QueryRowContext(ctx, query, args...)
	inst, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return inst, nil
}

func (r *InstanceRepository) queryMany(ctx context.Context, query string, args ...interface{}) ([]*workflow.Instance, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []*workflow.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

func scanInstance(row rowScanner) (*workflow.Instance, error) {
	var inst workflow.Instance
	var dueDate, completedAt sql.NullTime
	var outcome, createdBy sql.NullString
	var stepStates []byte

	err := row.Scan(
		&inst.ID, &inst.OrganizationID, &inst.EntityType, &inst.EntityID,
		&inst.TemplateID, &inst.TemplateVersion, &inst.CurrentStage, &inst.Status,
		&inst.Revision, &dueDate, &inst.SlaStatus, &inst.SlaStartedAt,
		&inst.StageEnteredAt, &stepStates, &outcome, &inst.StartedAt,
		&completedAt, &createdBy)
	if err != nil {
		return nil, err
	}

	if dueDate.Valid {
		inst.DueDate = &dueDate.Time
	}
	if completedAt.Valid {
		inst.CompletedAt = &completedAt.Time
	}
	if outcome.Valid {
		inst.Outcome = &outcome.String
	}
	if createdBy.Valid {
		inst.CreatedBy = &createdBy.String
	}

	inst.StepStates = make(map[string]workflow.StepState)
	if len(stepStates) > 0 {
		if err := json.Unmarshal(stepStates, &inst.StepStates); err != nil {
			return nil, fmt.Errorf("failed to parse step states for %s: %w", inst.ID, err)
		}
	}

	return &inst, nil
}

func marshalStepStates(states map[string]workflow.StepState) ([]byte, error) {
	if states == nil {
		states = map[string]workflow.StepState{}
	}
	data, err := json.Marshal(states)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize step states: %w", err)
	}
	return data, nil
}
