package pg

import (
	"context"

	"trade_core/internal/models"
	"trade_core/pkg/db"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

type StrategyRepo struct {
	db db.TxManager
}

func NewStrategyRepo(txm *db.PgTxManager) *StrategyRepo {
	return &StrategyRepo{db: txm}
}

func (r *StrategyRepo) FindAllActive(ctx context.Context) (out []models.StrategyRecord, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.StrategyFindAllActive")
		}
	}()

	rows, err := r.db.Conn().Query(ctx, `
		SELECT id, account_id, name, symbol, interval, params, is_active
		FROM strategies
		WHERE is_active = true
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var rec models.StrategyRecord
		if err = rows.Scan(&rec.ID, &rec.AccountID, &rec.Name, &rec.Symbol,
			&rec.Interval, &rec.ParamsRaw, &rec.IsActive); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ToRuntimeParams decodes the persisted params blob into a runtime
// definition.
func (r *StrategyRepo) ToRuntimeParams(rec models.StrategyRecord) (models.StrategyDefinition, error) {
	def := models.StrategyDefinition{
		ID:        rec.ID,
		AccountID: rec.AccountID,
		Name:      rec.Name,
		Symbol:    rec.Symbol,
		Interval:  rec.Interval,
	}
	if len(rec.ParamsRaw) > 0 {
		if err := sonic.Unmarshal(rec.ParamsRaw, &def.Params); err != nil {
			return models.StrategyDefinition{}, errors.Wrap(err, "pg.StrategyParams")
		}
	}
	return def, nil
}
