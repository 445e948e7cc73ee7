package sqlstore

import (
	"context"

	"github.com/linesmerrill/camp-cad-api/models"
)

const callTypeColumns = `id, name, description, default_priority, response_plan, recommended_units, color, is_active, created_at`

type callTypeTable struct {
	db *DB
}

func scanCallType(row rowScanner) (*models.CallType, error) {
	var (
		ct        models.CallType
		units     string
		active    int
		createdAt int64
	)
	err := row.Scan(&ct.ID, &ct.Name, &ct.Description, &ct.DefaultPriority, &ct.ResponsePlan, &units, &ct.Color, &active, &createdAt)
	if err != nil {
		return nil, sqlErr(err)
	}
	if err := decodeJSON(units, &ct.RecommendedUnits); err != nil {
		return nil, err
	}
	ct.IsActive = active == 1
	ct.CreatedAt = fromNanos(createdAt)
	return &ct, nil
}

func (t *callTypeTable) FindByID(ctx context.Context, id string) (*models.CallType, error) {
	row := t.db.q(ctx).QueryRowContext(ctx, `SELECT `+callTypeColumns+` FROM call_types WHERE id = ?`, id)
	return scanCallType(row)
}

func (t *callTypeTable) Find(ctx context.Context, activeOnly bool) ([]models.CallType, error) {
	query := `SELECT ` + callTypeColumns + ` FROM call_types`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	rows, err := t.db.q(ctx).QueryContext(ctx, query+` ORDER BY name ASC`)
	if err != nil {
		return nil, sqlErr(err)
	}
	defer rows.Close()

	callTypes := []models.CallType{}
	for rows.Next() {
		ct, err := scanCallType(rows)
		if err != nil {
			return nil, err
		}
		callTypes = append(callTypes, *ct)
	}
	return callTypes, rows.Err()
}

func (t *callTypeTable) InsertOne(ctx context.Context, callType *models.CallType) error {
	units := callType.RecommendedUnits
	if units == nil {
		units = []string{}
	}
	encoded, err := encodeJSON(units)
	if err != nil {
		return err
	}
	_, err = t.db.q(ctx).ExecContext(ctx, `INSERT INTO call_types (`+callTypeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		callType.ID, callType.Name, callType.Description, callType.DefaultPriority, callType.ResponsePlan,
		encoded, callType.Color, boolInt(callType.IsActive), toNanos(callType.CreatedAt))
	return sqlErr(err)
}
