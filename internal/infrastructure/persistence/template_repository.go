package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/domain/ports"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/domain/workflow"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/pkg/constants"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/pkg/errors"
)

// templateDefinition is the JSON document stored in the definition column.
// The graph is deserialized into typed structs once per template load, never
// re-parsed per access.
type templateDefinition struct {
	Stages       []workflow.Stage      `json:"stages"`
	Transitions  []workflow.Transition `json:"transitions"`
	InitialStage string                `json:"initial_stage"`
}

const templateColumns = "id, organization_id, name, entity_type, version, description, definition, " +
	"default_sla_days, is_active, is_default, source_template_id, created_date, last_modified_date"

// TemplateRepository persists workflow templates in MySQL/TiDB
type TemplateRepository struct {
	db *sql.DB
}

// Ensure the interface is satisfied at compile time
var _ ports.TemplateRepository = (*TemplateRepository)(nil)

// NewTemplateRepository creates a new TemplateRepository
func NewTemplateRepository(db *sql.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// Insert stores a new template row
func (r *TemplateRepository) Insert(ctx context.Context, tpl *workflow.Template) error {
	definition, err := marshalDefinition(tpl)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		constants.TableWorkflowTemplate, templateColumns)

	_, err = r.db.ExecContext(ctx, query,
		tpl.ID, tpl.OrganizationID, tpl.Name, tpl.EntityType, tpl.Version,
		tpl.Description, definition, tpl.DefaultSlaDays, tpl.IsActive, tpl.IsDefault,
		tpl.SourceTemplateID, tpl.CreatedAt, tpl.UpdatedAt)
	if isDuplicateKey(err) {
		return errors.NewConflictError("WorkflowTemplate", constants.FieldTemplate_Name, tpl.Name)
	}
	return err
}

// Update rewrites a template row's mutable columns
func (r *TemplateRepository) Update(ctx context.Context, tpl *workflow.Template) error {
	definition, err := marshalDefinition(tpl)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE %s SET %s = ?, %s = ?, %s = ?, %s = ?, %s = ?, %s = ?, %s = ? WHERE %s = ?`,
		constants.TableWorkflowTemplate,
		constants.FieldTemplate_Name,
		constants.FieldTemplate_Description,
		constants.FieldTemplate_Definition,
		constants.FieldTemplate_DefaultSlaDays,
		constants.FieldTemplate_IsActive,
		constants.FieldTemplate_IsDefault,
		constants.FieldLastModified,
		constants.FieldID)

	result, err := r.db.ExecContext(ctx, query,
		tpl.Name, tpl.Description, definition, tpl.DefaultSlaDays,
		tpl.IsActive, tpl.IsDefault, tpl.UpdatedAt, tpl.ID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.NewNotFoundError("WorkflowTemplate", tpl.ID)
	}
	return nil
}

// GetByID fetches one template, or nil when absent
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*workflow.Template, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ?`,
		templateColumns, constants.TableWorkflowTemplate, constants.FieldID)
	return r.queryOne(ctx, query, id)
}

// GetByVersion fetches a template by the (id, version) composite key
// instances pin at creation.
func (r *TemplateRepository) GetByVersion(ctx context.Context, id string, version int) (*workflow.Template, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ? AND %s = ?`,
		templateColumns, constants.TableWorkflowTemplate, constants.FieldID, constants.FieldTemplate_Version)
	return r.queryOne(ctx, query, id, version)
}

// FindAll lists an organization's templates with optional filters
func (r *TemplateRepository) FindAll(ctx context.Context, organizationID string, filter ports.TemplateFilter) ([]*workflow.Template, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, `SELECT %s FROM %s WHERE %s = ?`,
		templateColumns, constants.TableWorkflowTemplate, constants.FieldOrganizationID)
	args := []interface{}{organizationID}

	if filter.EntityType != nil {
		fmt.Fprintf(&sb, ` AND %s = ?`, constants.FieldTemplate_EntityType)
		args = append(args, *filter.EntityType)
	}
	if filter.ActiveOnly {
		fmt.Fprintf(&sb, ` AND %s = true`, constants.FieldTemplate_IsActive)
	}
	fmt.Fprintf(&sb, ` ORDER BY %s, %s`, constants.FieldTemplate_Name, constants.FieldTemplate_Version)

	return r.queryMany(ctx, sb.String(), args...)
}

// FindDefault returns the active default template for an entity type, or nil
func (r *TemplateRepository) FindDefault(ctx context.Context, organizationID, entityType string) (*workflow.Template, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ? AND %s = ? AND %s = true AND %s = true LIMIT 1`,
		templateColumns, constants.TableWorkflowTemplate,
		constants.FieldOrganizationID, constants.FieldTemplate_EntityType,
		constants.FieldTemplate_IsDefault, constants.FieldTemplate_IsActive)
	return r.queryOne(ctx, query, organizationID, entityType)
}

// UnsetDefault clears the default flag for an (organization, entityType)
func (r *TemplateRepository) UnsetDefault(ctx context.Context, organizationID, entityType string) error {
	query := fmt.Sprintf(`UPDATE %s SET %s = false WHERE %s = ? AND %s = ? AND %s = true`,
		constants.TableWorkflowTemplate,
		constants.FieldTemplate_IsDefault,
		constants.FieldOrganizationID, constants.FieldTemplate_EntityType,
		constants.FieldTemplate_IsDefault)
	_, err := r.db.ExecContext(ctx, query, organizationID, entityType)
	return err
}

// ExistsByName reports whether any version of a named template exists
func (r *TemplateRepository) ExistsByName(ctx context.Context, organizationID, name string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE %s = ? AND %s = ?)`,
		constants.TableWorkflowTemplate, constants.FieldOrganizationID, constants.FieldTemplate_Name)

	var exists bool
	err := r.db.QueryRowContext(ctx, query, organizationID, name).Scan(&exists)
	return exists, err
}

// ListVersions walks the source_template_id lineage from any row in the
// chain and returns the versions oldest first.
func (r *TemplateRepository) ListVersions(ctx context.Context, rootID string) ([]*workflow.Template, error) {
	current, err := r.GetByID(ctx, rootID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}

	// Walk back to the first version
	for current.SourceTemplateID != nil {
		prev, err := r.GetByID(ctx, *current.SourceTemplateID)
		if err != nil {
			return nil, err
		}
		if prev == nil {
			break
		}
		current = prev
	}

	versions := []*workflow.Template{current}
	forwardQuery := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ? LIMIT 1`,
		templateColumns, constants.TableWorkflowTemplate, constants.FieldTemplate_SourceTemplateID)

	for {
		next, err := r.queryOne(ctx, forwardQuery, current.ID)
		if err != nil {
			return nil, err
		}
		if next == nil {
			break
		}
		versions = append(versions, next)
		current = next
	}

	return versions, nil
}

// Delete removes a template row
func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`,
		constants.TableWorkflowTemplate, constants.FieldID)
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *TemplateRepository) queryOne(ctx context.Context, query string, args ...interface{}) (*workflow.Template, error) {
	row := r.db.QueryRowContext(ctx, query, args...)
	tpl, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tpl, nil
}

func (r *TemplateRepository) queryMany(ctx context.Context, query string, args ...interface{}) ([]*workflow.Template, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []*workflow.Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	return templates, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTemplate(row rowScanner) (*workflow.Template, error) {
	var tpl workflow.Template
	var description, sourceTemplateID sql.NullString
	var defaultSlaDays sql.NullInt64
	var definition []byte

	err := row.Scan(
		&tpl.ID, &tpl.OrganizationID, &tpl.Name, &tpl.EntityType, &tpl.Version,
		&description, &definition, &defaultSlaDays, &tpl.IsActive, &tpl.IsDefault,
		&sourceTemplateID, &tpl.CreatedAt, &tpl.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		tpl.Description = &description.String
	}
	if sourceTemplateID.Valid {
		tpl.SourceTemplateID = &sourceTemplateID.String
	}
	if defaultSlaDays.Valid {
		days := int(defaultSlaDays.Int64)
		tpl.DefaultSlaDays = &days
	}

	var def templateDefinition
	if err := json.Unmarshal(definition, &def); err != nil {
		return nil, fmt.Errorf("failed to parse template definition for %s: %w", tpl.ID, err)
	}
	tpl.Stages = def.Stages
	tpl.Transitions = def.Transitions
	tpl.InitialStage = def.InitialStage

	return &tpl, nil
}

func marshalDefinition(tpl *workflow.Template) ([]byte, error) {
	definition, err := json.Marshal(templateDefinition{
		Stages:       tpl.Stages,
		Transitions:  tpl.Transitions,
		InitialStage: tpl.InitialStage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize template definition: %w", err)
	}
	return definition, nil
}

// isDuplicateKey reports whether err is a MySQL duplicate-key violation
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if mysqlErr, ok := err.(*mysql.MySQLError); ok {
		return mysqlErr.Number == 1062
	}
	return false
}
