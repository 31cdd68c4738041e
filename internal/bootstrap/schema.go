package bootstrap

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/pkg/constants"
)

// InitializeSchema creates the workflow system tables if they do not exist.
// The unique key on (organization_id, entity_type, entity_id) is what
// serializes concurrent starts for the same entity, and the unique key on
// (organization_id, name, version) backs duplicate-name detection.
func InitializeSchema(db *sql.DB) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			organization_id VARCHAR(36) NOT NULL,
			name VARCHAR(255) NOT NULL,
			entity_type VARCHAR(100) NOT NULL,
			version INT NOT NULL DEFAULT 1,
			description TEXT,
			definition JSON NOT NULL,
			default_sla_days INT,
			is_active BOOLEAN NOT NULL DEFAULT true,
			is_default BOOLEAN NOT NULL DEFAULT false,
			source_template_id VARCHAR(36),
			created_date DATETIME NOT NULL,
			last_modified_date DATETIME NOT NULL,
			UNIQUE KEY uniq_org_name_version (organization_id, name, version),
			KEY idx_org_entity_type (organization_id, entity_type, is_active),
			KEY idx_source_template (source_template_id)
		)`, constants.TableWorkflowTemplate),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			organization_id VARCHAR(36) NOT NULL,
			entity_type VARCHAR(100) NOT NULL,
			entity_id VARCHAR(36) NOT NULL,
			template_id VARCHAR(36) NOT NULL,
			template_version INT NOT NULL,
			current_stage VARCHAR(100) NOT NULL,
			status VARCHAR(20) NOT NULL,
			revision BIGINT NOT NULL DEFAULT 1,
			due_date DATETIME,
			sla_status VARCHAR(20) NOT NULL DEFAULT 'on_track',
			sla_started_at DATETIME NOT NULL,
			stage_entered_at DATETIME NOT NULL,
			step_states JSON,
			outcome TEXT,
			started_date DATETIME NOT NULL,
			completed_date DATETIME,
			created_by_id VARCHAR(36),
			UNIQUE KEY uniq_org_entity (organization_id, entity_type, entity_id),
			KEY idx_template_version (template_id, template_version, status),
			KEY idx_sweep (status, due_date)
		)`, constants.TableWorkflowInstance),
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create workflow schema: %w", err)
		}
	}

	log.Println("✅ Workflow schema initialized")
	return nil
}
