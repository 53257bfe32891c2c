package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/flowops/cadenza/model"
	"github.com/flowops/cadenza/persistence"
	"github.com/flowops/cadenza/util"
)

var _ persistence.MetadataStorage = new(pgMetadataStorage)

type pgMetadataStorage struct {
	db *sql.DB
}

func (ps *pgMetadataStorage) encDec() util.EncoderDecoder[model.WorkflowDefinition] {
	return util.NewJsonEncoderDecoder[model.WorkflowDefinition]()
}

func (ps *pgMetadataStorage) SaveDefinition(def model.WorkflowDefinition) error {
	body, err := ps.encDec().Encode(def)
	if err != nil {
		return err
	}
	_, err = ps.db.Exec(`INSERT INTO workflow_definitions (tenant_id, id, version, name, active, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, id, version) DO UPDATE SET name = $4, active = $5, body = $6`,
		def.TenantId, def.Id, def.Version, def.Name, def.Active, body, def.CreatedAt)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (ps *pgMetadataStorage) GetDefinition(tenantId string, id string) (*model.WorkflowDefinition, error) {
	row := ps.db.QueryRow(`SELECT body FROM workflow_definitions
		WHERE tenant_id = $1 AND id = $2 ORDER BY version DESC LIMIT 1`, tenantId, id)
	return ps.scan(row, id)
}

func (ps *pgMetadataStorage) GetDefinitionVersion(tenantId string, id string, version int) (*model.WorkflowDefinition, error) {
	row := ps.db.QueryRow(`SELECT body FROM workflow_definitions
		WHERE tenant_id = $1 AND id = $2 AND version = $3`, tenantId, id, version)
	return ps.scan(row, fmt.Sprintf("%s@%d", id, version))
}

func (ps *pgMetadataStorage) ListDefinitions(tenantId string) ([]model.WorkflowDefinition, error) {
	rows, err := ps.db.Query(`SELECT DISTINCT ON (id) body FROM workflow_definitions
		WHERE tenant_id = $1 ORDER BY id, version DESC`, tenantId)
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	defer rows.Close()
	out := make([]model.WorkflowDefinition, 0)
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		def, err := ps.encDec().Decode(body)
		if err != nil {
			return nil, err
		}
		out = append(out, *def)
	}
	return out, rows.Err()
}

func (ps *pgMetadataStorage) DeleteDefinition(tenantId string, id string) error {
	res, err := ps.db.Exec(`DELETE FROM workflow_definitions WHERE tenant_id = $1 AND id = $2`, tenantId, id)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return persistence.NotFoundError{Entity: "definition", Id: id}
	}
	return nil
}

func (ps *pgMetadataStorage) scan(row *sql.Row, id string) (*model.WorkflowDefinition, error) {
	var body []byte
	if err := row.Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NotFoundError{Entity: "definition", Id: id}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return ps.encDec().Decode(body)
}
