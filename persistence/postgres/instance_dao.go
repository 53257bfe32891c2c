package postgres

import (
	"database/sql"
	"errors"
	"time"

	"github.com/flowops/cadenza/model"
	"github.com/flowops/cadenza/persistence"
	"github.com/flowops/cadenza/util"
)

var _ persistence.InstanceStorage = new(pgInstanceStorage)

// The optimistic concurrency check is the WHERE version = $n clause on
// update: zero rows affected with the row present means a concurrent writer
// got there first.
type pgInstanceStorage struct {
	db *sql.DB
}

func (ps *pgInstanceStorage) encDec() util.EncoderDecoder[model.WorkflowInstance] {
	return util.NewJsonEncoderDecoder[model.WorkflowInstance]()
}

func (ps *pgInstanceStorage) CreateInstance(instance *model.WorkflowInstance) error {
	instance.Version = 1
	body, err := ps.encDec().Encode(*instance)
	if err != nil {
		return err
	}
	_, err = ps.db.Exec(`INSERT INTO workflow_instances (id, tenant_id, status, resume_at, version, started_at, body)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		instance.Id, instance.TenantId, string(instance.Status), instance.ResumeAt, instance.Version, instance.StartedAt, body)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (ps *pgInstanceStorage) GetInstance(id string) (*model.WorkflowInstance, error) {
	var body []byte
	err := ps.db.QueryRow(`SELECT body FROM workflow_instances WHERE id = $1`, id).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NotFoundError{Entity: "instance", Id: id}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return ps.encDec().Decode(body)
}

func (ps *pgInstanceStorage) SaveInstance(instance *model.WorkflowInstance) error {
	next := *instance
	next.Version = instance.Version + 1
	body, err := ps.encDec().Encode(next)
	if err != nil {
		return err
	}
	res, err := ps.db.Exec(`UPDATE workflow_instances
		SET status = $1, resume_at = $2, version = $3, body = $4
		WHERE id = $5 AND version = $6`,
		string(next.Status), next.ResumeAt, next.Version, body, next.Id, instance.Version)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := ps.db.QueryRow(`SELECT EXISTS (SELECT 1 FROM workflow_instances WHERE id = $1)`, instance.Id).Scan(&exists); err != nil {
			return persistence.StorageLayerError{Message: err.Error()}
		}
		if !exists {
			return persistence.NotFoundError{Entity: "instance", Id: instance.Id}
		}
		return persistence.ConflictError{InstanceId: instance.Id}
	}
	instance.Version = next.Version
	return nil
}

func (ps *pgInstanceStorage) ListActive(tenantId string) ([]model.WorkflowInstance, error) {
	rows, err := ps.db.Query(`SELECT body FROM workflow_instances
		WHERE tenant_id = $1 AND status NOT IN ('Completed', 'Cancelled', 'Failed')
		ORDER BY started_at`, tenantId)
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return ps.collect(rows)
}

func (ps *pgInstanceStorage) ListDelayedDue(now time.Time, limit int) ([]model.WorkflowInstance, error) {
	rows, err := ps.db.Query(`SELECT body FROM workflow_instances
		WHERE status = 'Delayed' AND resume_at <= $1
		ORDER BY resume_at LIMIT $2`, now, limit)
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return ps.collect(rows)
}

func (ps *pgInstanceStorage) collect(rows *sql.Rows) ([]model.WorkflowInstance, error) {
	defer rows.Close()
	out := make([]model.WorkflowInstance, 0)
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		instance, err := ps.encDec().Decode(body)
		if err != nil {
			return nil, err
		}
		out = append(out, *instance)
	}
	return out, rows.Err()
}
