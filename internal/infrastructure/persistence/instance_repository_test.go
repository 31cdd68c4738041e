package persistence

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/domain/workflow"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/pkg/errors"
)

var instanceTestColumns = []string{
	"id", "organization_id", "entity_type", "entity_id", "template_id",
	"template_version", "current_stage", "status", "revision", "due_date",
	"sla_status", "sla_started_at", "stage_entered_at", "step_states",
	"outcome", "started_date", "completed_date", "created_by_id",
}

func newInstanceRepoMock(t *testing.T) (*InstanceRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewInstanceRepository(db), mock
}

func instanceRow(now time.Time) *sqlmock.Rows {
	stepStates := `{"new": {"status": "completed", "completed_by": "user-1"}}`
	return sqlmock.NewRows(instanceTestColumns).
		AddRow("inst-1", "org-1", "case", "case-42", "tpl-1", 1,
			"review", "ACTIVE", 2, now.Add(48*time.Hour),
			"on_track", now, now, []byte(stepStates),
			nil, now, nil, "user-1")
}

func TestInstanceGetByID(t *testing.T) {
	repo, mock := newInstanceRepoMock(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM _System_Workflow_Instance WHERE id = \?`).
		WithArgs("inst-1").
		WillReturnRows(instanceRow(now))

	inst, err := repo.GetByID(context.Background(), "inst-1")
	require.NoError(t, err)
	require.NotNil(t, inst)

	assert.Equal(t, "review", inst.CurrentStage)
	assert.Equal(t, workflow.InstanceStatusActive, inst.Status)
	assert.Equal(t, int64(2), inst.Revision)
	assert.Equal(t, 1, inst.TemplateVersion)
	require.NotNil(t, inst.DueDate)
	assert.Nil(t, inst.Outcome)
	require.NotNil(t, inst.CreatedBy)
	assert.Equal(t, "user-1", *inst.CreatedBy)

	step, ok := inst.StepStates["new"]
	require.True(t, ok)
	assert.Equal(t, workflow.StepStateCompleted, step.Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstanceGetByIDNotFound(t *testing.T) {
	repo, mock := newInstanceRepoMock(t)

	mock.ExpectQuery(`SELECT .+ FROM _System_Workflow_Instance WHERE id = \?`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(instanceTestColumns))

	inst, err := repo.GetByID(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, inst)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstanceGetByEntity(t *testing.T) {
	repo, mock := newInstanceRepoMock(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM _System_Workflow_Instance WHERE organization_id = \? AND entity_type = \? AND entity_id = \?`).
		WithArgs("org-1", "case", "case-42").
		WillReturnRows(instanceRow(now))

	inst, err := repo.GetByEntity(context.Background(), "org-1", "case", "case-42")
	require.NoError(t, err)
	require.NotNil(t, inst)
	assert.Equal(t, "case-42", inst.EntityID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstanceInsert(t *testing.T) {
	repo, mock := newInstanceRepoMock(t)
	now := time.Now()
	inst := &workflow.Instance{
		ID:              "inst-1",
		OrganizationID:  "org-1",
		EntityType:      "case",
		EntityID:        "case-42",
		TemplateID:      "tpl-1",
		TemplateVersion: 1,
		CurrentStage:    "new",
		Status:          workflow.InstanceStatusActive,
		Revision:        1,
		SlaStatus:       workflow.SlaOnTrack,
		SlaStartedAt:    now,
		StageEnteredAt:  now,
		StartedAt:       now,
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO _System_Workflow_Instance`)).
		WithArgs("inst-1", "org-1", "case", "case-42", "tpl-1", 1,
			"new", workflow.InstanceStatusActive, int64(1), nil, workflow.SlaOnTrack,
			now, now, []byte("{}"), nil, now, nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	assert.NoError(t, repo.Insert(context.Background(), inst))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstanceInsertDuplicateEntity(t *testing.T) {
	repo, mock := newInstanceRepoMock(t)
	inst := &workflow.Instance{
		ID:         "inst-2",
		EntityType: "case",
		EntityID:   "case-42",
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO _System_Workflow_Instance`)).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	err := repo.Insert(context.Background(), inst)
	require.True(t, errors.IsConflict(err))
	assert.Contains(t, err.Error(), "case/case-42")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstanceUpdateState(t *testing.T) {
	repo, mock := newInstanceRepoMock(t)
	now := time.Now()
	inst := &workflow.Instance{
		ID:             "inst-1",
		CurrentStage:   "review",
		Status:         workflow.InstanceStatusActive,
		Revision:       1,
		SlaStartedAt:   now,
		StageEnteredAt: now,
	}

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE _System_Workflow_Instance SET current_stage = ?, status = ?, revision = revision + 1, due_date = ?, sla_started_at = ?, stage_entered_at = ?, step_states = ?, outcome = ?, completed_date = ? WHERE id = ? AND revision = ?`)).
		WithArgs("review", workflow.InstanceStatusActive, nil, now, now,
			[]byte("{}"), nil, nil, "inst-1", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateState(context.Background(), inst, 1))
	assert.Equal(t, int64(2), inst.Revision)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstanceUpdateStateRevisionConflict(t *testing.T) {
	repo, mock := newInstanceRepoMock(t)
	inst := &workflow.Instance{
		ID:           "inst-1",
		CurrentStage: "review",
		Status:       workflow.InstanceStatusActive,
		Revision:     1,
	}

	// Another writer already bumped the revision, so zero rows match
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE _System_Workflow_Instance SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateState(context.Background(), inst, 1)
	require.True(t, errors.IsConflict(err))
	assert.Equal(t, int64(1), inst.Revision)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstanceUpdateSlaStatus(t *testing.T) {
	repo, mock := newInstanceRepoMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE _System_Workflow_Instance SET sla_status = ? WHERE id = ?`)).
		WithArgs("warning", "inst-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.UpdateSlaStatus(context.Background(), "inst-1", workflow.SlaWarning))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstanceListByStatus(t *testing.T) {
	repo, mock := newInstanceRepoMock(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM _System_Workflow_Instance WHERE organization_id = \? AND status = \? ORDER BY started_date DESC`).
		WithArgs("org-1", "ACTIVE").
		WillReturnRows(instanceRow(now))

	status := workflow.InstanceStatusActive
	instances, err := repo.List(context.Background(), "org-1", &status)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, "inst-1", instances[0].ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstanceListDueActive(t *testing.T) {
	repo, mock := newInstanceRepoMock(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM _System_Workflow_Instance WHERE status = \? AND due_date IS NOT NULL`).
		WithArgs("ACTIVE").
		WillReturnRows(instanceRow(now))

	instances, err := repo.ListDueActive(context.Background())
	require.NoError(t, err)
	require.Len(t, instances, 1)
	require.NotNil(t, instances[0].DueDate)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstanceCountActiveByTemplate(t *testing.T) {
	repo, mock := newInstanceRepoMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM _System_Workflow_Instance WHERE template_id = ? AND template_version = ? AND status = ?`)).
		WithArgs("tpl-1", 1, "ACTIVE").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountActiveByTemplate(context.Background(), "tpl-1", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstanceCountByTemplate(t *testing.T) {
	repo, mock := newInstanceRepoMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM _System_Workflow_Instance WHERE template_id = ?`)).
		WithArgs("tpl-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	count, err := repo.CountByTemplate(context.Background(), "tpl-1")
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	assert.NoError(t, mock.ExpectationsWereMet())
}
