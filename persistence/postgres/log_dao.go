package postgres

import (
	"database/sql"

	"github.com/flowops/cadenza/model"
	"github.com/flowops/cadenza/persistence"
	"github.com/flowops/cadenza/util"
	"github.com/google/uuid"
)

var _ persistence.LogStorage = new(pgLogStorage)

// Append assigns Seq under a per-instance advisory lock, so concurrent
// appends still produce a gap-free per-instance order.
type pgLogStorage struct {
	db *sql.DB
}

func (ps *pgLogStorage) encDec() util.EncoderDecoder[model.ExecutionLogEntry] {
	return util.NewJsonEncoderDecoder[model.ExecutionLogEntry]()
}

func (ps *pgLogStorage) Append(entry *model.ExecutionLogEntry) error {
	if len(entry.Id) == 0 {
		entry.Id = uuid.New().String()
	}
	tx, err := ps.db.Begin()
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`SELECT pg_advisory_xact_lock(hashtext($1))`, entry.InstanceId); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	err = tx.QueryRow(`SELECT COALESCE(MAX(seq), 0) + 1 FROM execution_log WHERE instance_id = $1`,
		entry.InstanceId).Scan(&entry.Seq)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	body, err := ps.encDec().Encode(*entry)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`INSERT INTO execution_log (id, instance_id, seq, ts, body) VALUES ($1, $2, $3, $4, $5)`,
		entry.Id, entry.InstanceId, entry.Seq, entry.Timestamp, body)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if err := tx.Commit(); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (ps *pgLogStorage) ListByInstance(instanceId string) ([]model.ExecutionLogEntry, error) {
	rows, err := ps.db.Query(`SELECT body FROM execution_log WHERE instance_id = $1 ORDER BY ts, seq`, instanceId)
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	defer rows.Close()
	out := make([]model.ExecutionLogEntry, 0)
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		entry, err := ps.encDec().Decode(body)
		if err != nil {
			return nil, err
		}
		out = append(out, *entry)
	}
	return out, rows.Err()
}
