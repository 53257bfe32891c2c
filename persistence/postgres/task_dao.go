package postgres

import (
	"database/sql"
	"errors"

	"github.com/flowops/cadenza/model"
	"github.com/flowops/cadenza/persistence"
	"github.com/flowops/cadenza/util"
)

var _ persistence.TaskStorage = new(pgTaskStorage)

type pgTaskStorage struct {
	db *sql.DB
}

func (ps *pgTaskStorage) encDec() util.EncoderDecoder[model.WorkflowTask] {
	return util.NewJsonEncoderDecoder[model.WorkflowTask]()
}

func (ps *pgTaskStorage) SaveTask(task *model.WorkflowTask) error {
	body, err := ps.encDec().Encode(*task)
	if err != nil {
		return err
	}
	_, err = ps.db.Exec(`INSERT INTO workflow_tasks (id, tenant_id, instance_id, step_id, status, assignee, created_at, body)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET status = $5, assignee = $6, body = $8`,
		task.Id, task.TenantId, task.InstanceId, task.StepId, string(task.Status), task.Assignee, task.CreatedAt, body)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (ps *pgTaskStorage) GetTask(id string) (*model.WorkflowTask, error) {
	var body []byte
	err := ps.db.QueryRow(`SELECT body FROM workflow_tasks WHERE id = $1`, id).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NotFoundError{Entity: "task", Id: id}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return ps.encDec().Decode(body)
}

func (ps *pgTaskStorage) PendingTaskForStep(instanceId string, stepId string) (*model.WorkflowTask, error) {
	var body []byte
	err := ps.db.QueryRow(`SELECT body FROM workflow_tasks
		WHERE instance_id = $1 AND step_id = $2 AND status = 'Pending'
		ORDER BY created_at LIMIT 1`, instanceId, stepId).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NotFoundError{Entity: "task", Id: instanceId + ":" + stepId}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return ps.encDec().Decode(body)
}

func (ps *pgTaskStorage) TasksByInstance(instanceId string) ([]model.WorkflowTask, error) {
	rows, err := ps.db.Query(`SELECT body FROM workflow_tasks WHERE instance_id = $1 ORDER BY created_at`, instanceId)
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return ps.collect(rows)
}

func (ps *pgTaskStorage) PendingTasksForUser(tenantId string, userId string) ([]model.WorkflowTask, error) {
	rows, err := ps.db.Query(`SELECT body FROM workflow_tasks
		WHERE tenant_id = $1 AND assignee = $2 AND status = 'Pending'
		ORDER BY body->>'dueDate' NULLS LAST, created_at`, tenantId, userId)
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return ps.collect(rows)
}

func (ps *pgTaskStorage) collect(rows *sql.Rows) ([]model.WorkflowTask, error) {
	defer rows.Close()
	out := make([]model.WorkflowTask, 0)
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		task, err := ps.encDec().Decode(body)
		if err != nil {
			return nil, err
		}
		out = append(out, *task)
	}
	return out, rows.Err()
}
