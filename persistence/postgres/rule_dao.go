package postgres

import (
	"database/sql"
	"errors"

	"github.com/flowops/cadenza/model"
	"github.com/flowops/cadenza/persistence"
	"github.com/flowops/cadenza/util"
)

var _ persistence.RuleStorage = new(pgRuleStorage)

type pgRuleStorage struct {
	db *sql.DB
}

func (ps *pgRuleStorage) encDec() util.EncoderDecoder[model.BusinessRule] {
	return util.NewJsonEncoderDecoder[model.BusinessRule]()
}

func (ps *pgRuleStorage) SaveRule(rule model.BusinessRule) (*model.BusinessRule, error) {
	if rule.Seq == 0 {
		if err := ps.db.QueryRow(`SELECT nextval('business_rules_seq')`).Scan(&rule.Seq); err != nil {
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
	}
	body, err := ps.encDec().Encode(rule)
	if err != nil {
		return nil, err
	}
	_, err = ps.db.Exec(`INSERT INTO business_rules (id, tenant_id, category, priority, seq, body)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET category = $3, priority = $4, body = $6`,
		rule.Id, rule.TenantId, rule.Category, rule.Priority, rule.Seq, body)
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return &rule, nil
}

func (ps *pgRuleStorage) GetRule(tenantId string, id string) (*model.BusinessRule, error) {
	var body []byte
	err := ps.db.QueryRow(`SELECT body FROM business_rules WHERE tenant_id = $1 AND id = $2`, tenantId, id).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NotFoundError{Entity: "rule", Id: id}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return ps.encDec().Decode(body)
}

func (ps *pgRuleStorage) ListRules(tenantId string, category string) ([]model.BusinessRule, error) {
	query := `SELECT body FROM business_rules WHERE tenant_id = $1 ORDER BY priority, seq`
	args := []any{tenantId}
	if len(category) > 0 {
		query = `SELECT body FROM business_rules WHERE tenant_id = $1 AND category = $2 ORDER BY priority, seq`
		args = append(args, category)
	}
	rows, err := ps.db.Query(query, args...)
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	defer rows.Close()
	out := make([]model.BusinessRule, 0)
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		rule, err := ps.encDec().Decode(body)
		if err != nil {
			return nil, err
		}
		out = append(out, *rule)
	}
	return out, rows.Err()
}

func (ps *pgRuleStorage) DeleteRule(tenantId string, id string) error {
	res, err := ps.db.Exec(`DELETE FROM business_rules WHERE tenant_id = $1 AND id = $2`, tenantId, id)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return persistence.NotFoundError{Entity: "rule", Id: id}
	}
	return nil
}
