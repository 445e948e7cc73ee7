package sqlstore

import (
	"context"
	"database/sql"
	"strings"

	"github.com/linesmerrill/camp-cad-api/databases"
	"github.com/linesmerrill/camp-cad-api/models"
)

const unitColumns = `id, unit_number, unit_name, unit_type, group_id, status,
	current_latitude, current_longitude, assigned_call_id, is_active,
	last_status_update, created_at, updated_at`

type unitTable struct {
	db *DB
}

func scanUnit(row rowScanner) (*models.Unit, error) {
	var (
		u                    models.Unit
		lat, lng             sql.NullFloat64
		callID               sql.NullString
		active               int
		lastUpdate           int64
		createdAt, updatedAt int64
	)
	err := row.Scan(&u.ID, &u.UnitNumber, &u.Name, &u.Type, &u.GroupID, &u.Status,
		&lat, &lng, &callID, &active, &lastUpdate, &createdAt, &updatedAt)
	if err != nil {
		return nil, sqlErr(err)
	}
	if lat.Valid && lng.Valid {
		u.CurrentLocation = &models.Coordinates{Latitude: lat.Float64, Longitude: lng.Float64}
	}
	u.AssignedCallID = callID.String
	u.IsActive = active == 1
	u.LastStatusUpdate = fromNanos(lastUpdate)
	u.CreatedAt = fromNanos(createdAt)
	u.UpdatedAt = fromNanos(updatedAt)
	return &u, nil
}

func unitArgs(u *models.Unit) []any {
	var lat, lng sql.NullFloat64
	if u.CurrentLocation != nil {
		lat = sql.NullFloat64{Float64: u.CurrentLocation.Latitude, Valid: true}
		lng = sql.NullFloat64{Float64: u.CurrentLocation.Longitude, Valid: true}
	}
	return []any{u.ID, u.UnitNumber, u.Name, string(u.Type), u.GroupID, string(u.Status),
		lat, lng, nullString(u.AssignedCallID), boolInt(u.IsActive),
		toNanos(u.LastStatusUpdate), toNanos(u.CreatedAt), toNanos(u.UpdatedAt)}
}

func (t *unitTable) FindByID(ctx context.Context, id string) (*models.Unit, error) {
	row := t.db.q(ctx).QueryRowContext(ctx, `SELECT `+unitColumns+` FROM units WHERE id = ?`, id)
	return scanUnit(row)
}

func (t *unitTable) InsertOne(ctx context.Context, unit *models.Unit) error {
	args := unitArgs(unit)
	_, err := t.db.q(ctx).ExecContext(ctx, `INSERT INTO units (`+unitColumns+`) VALUES (`+placeholders(len(args))+`)`, args...)
	return sqlErr(err)
}

func (t *unitTable) ReplaceOne(ctx context.Context, unit *models.Unit) error {
	args := unitArgs(unit)
	res, err := t.db.q(ctx).ExecContext(ctx, `UPDATE units SET
		unit_number = ?, unit_name = ?, unit_type = ?, group_id = ?, status = ?,
		current_latitude = ?, current_longitude = ?, assigned_call_id = ?, is_active = ?,
		last_status_update = ?, created_at = ?, updated_at = ?
		WHERE id = ?`, append(args[1:], unit.ID)...)
	if err != nil {
		return sqlErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return databases.ErrNotFound
	}
	return nil
}

func (t *unitTable) Find(ctx context.Context, filter databases.UnitFilter) ([]models.Unit, error) {
	var (
		clauses []string
		args    []any
	)
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, s := range filter.Statuses {
			args = append(args, string(s))
		}
	}
	if len(filter.Types) > 0 {
		clauses = append(clauses, "unit_type IN ("+placeholders(len(filter.Types))+")")
		for _, ut := range filter.Types {
			args = append(args, string(ut))
		}
	}
	if filter.AssignedCallID != "" {
		clauses = append(clauses, "assigned_call_id = ?")
		args = append(args, filter.AssignedCallID)
	}
	query := `SELECT ` + unitColumns + ` FROM units`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY unit_number ASC"

	rows, err := t.db.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, sqlErr(err)
	}
	defer rows.Close()

	units := []models.Unit{}
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, *u)
	}
	return units, rows.Err()
}
