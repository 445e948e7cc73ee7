package sqlstore

import (
	"context"
	"database/sql"
	"strings"

	"github.com/linesmerrill/camp-cad-api/databases"
	"github.com/linesmerrill/camp-cad-api/models"
)

const callColumns = `id, call_number, call_type_id, priority, status,
	latitude, longitude, address, poi_id, location_notes,
	caller_name, caller_phone, callback_number, is_anonymous,
	description, assigned_units, dispatcher_id,
	actual_arrival_time, closed_at, cleared_time, created_at, updated_at`

type callTable struct {
	db *DB
}

func scanCall(row rowScanner) (*models.Call, error) {
	var (
		c                        models.Call
		units                    string
		anonymous                int
		arrival, closed, cleared sql.NullInt64
		createdAt, updatedAt     int64
	)
	err := row.Scan(&c.ID, &c.CallNumber, &c.CallTypeID, &c.Priority, &c.Status,
		&c.Location.Latitude, &c.Location.Longitude, &c.Location.Address, &c.Location.POIID, &c.Location.Notes,
		&c.Caller.Name, &c.Caller.Phone, &c.Caller.CallbackNumber, &anonymous,
		&c.Description, &units, &c.DispatcherID,
		&arrival, &closed, &cleared, &createdAt, &updatedAt)
	if err != nil {
		return nil, sqlErr(err)
	}
	if err := decodeJSON(units, &c.AssignedUnits); err != nil {
		return nil, err
	}
	if c.AssignedUnits == nil {
		c.AssignedUnits = []string{}
	}
	c.Caller.IsAnonymous = anonymous == 1
	c.ActualArrivalTime = timePtr(arrival)
	c.ClosedAt = timePtr(closed)
	c.ClearedTime = timePtr(cleared)
	c.CreatedAt = fromNanos(createdAt)
	c.UpdatedAt = fromNanos(updatedAt)
	return &c, nil
}

func callArgs(c *models.Call) ([]any, error) {
	if c.AssignedUnits == nil {
		c.AssignedUnits = []string{}
	}
	units, err := encodeJSON(c.AssignedUnits)
	if err != nil {
		return nil, err
	}
	return []any{c.ID, c.CallNumber, c.CallTypeID, c.Priority, string(c.Status),
		c.Location.Latitude, c.Location.Longitude, c.Location.Address, c.Location.POIID, c.Location.Notes,
		c.Caller.Name, c.Caller.Phone, c.Caller.CallbackNumber, boolInt(c.Caller.IsAnonymous),
		c.Description, units, c.DispatcherID,
		nullTime(c.ActualArrivalTime), nullTime(c.ClosedAt), nullTime(c.ClearedTime),
		toNanos(c.CreatedAt), toNanos(c.UpdatedAt)}, nil
}

func (t *callTable) FindByID(ctx context.Context, id string) (*models.Call, error) {
	row := t.db.q(ctx).QueryRowContext(ctx, `SELECT `+callColumns+` FROM calls WHERE id = ?`, id)
	return scanCall(row)
}

func (t *callTable) InsertOne(ctx context.Context, call *models.Call) error {
	args, err := callArgs(call)
	if err != nil {
		return err
	}
	_, err = t.db.q(ctx).ExecContext(ctx, `INSERT INTO calls (`+callColumns+`) VALUES (`+placeholders(len(args))+`)`, args...)
	return sqlErr(err)
}

func (t *callTable) ReplaceOne(ctx context.Context, call *models.Call) error {
	args, err := callArgs(call)
	if err != nil {
		return err
	}
	res, err := t.db.q(ctx).ExecContext(ctx, `UPDATE calls SET
		call_number = ?, call_type_id = ?, priority = ?, status = ?,
		latitude = ?, longitude = ?, address = ?, poi_id = ?, location_notes = ?,
		caller_name = ?, caller_phone = ?, callback_number = ?, is_anonymous = ?,
		description = ?, assigned_units = ?, dispatcher_id = ?,
		actual_arrival_time = ?, closed_at = ?, cleared_time = ?, created_at = ?, updated_at = ?
		WHERE id = ?`, append(args[1:], call.ID)...)
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

func (t *callTable) Find(ctx context.Context, filter databases.CallFilter) ([]models.Call, int64, error) {
	where, args := callWhere(filter)

	var total int64
	if err := t.db.q(ctx).QueryRowContext(ctx, `SELECT COUNT(1) FROM calls`+where, args...).Scan(&total); err != nil {
		return nil, 0, sqlErr(err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT ` + callColumns + ` FROM calls` + where + ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	calls, err := t.query(ctx, query, append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	return calls, total, nil
}

func (t *callTable) FindActive(ctx context.Context) ([]models.Call, error) {
	args := make([]any, 0, len(models.ActiveCallStatuses))
	for _, s := range models.ActiveCallStatuses {
		args = append(args, string(s))
	}
	query := `SELECT ` + callColumns + ` FROM calls WHERE status IN (` + placeholders(len(args)) + `) ORDER BY priority ASC, created_at ASC, rowid ASC`
	return t.query(ctx, query, args...)
}

func (t *callTable) CallNumbersWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	rows, err := t.db.q(ctx).QueryContext(ctx, `SELECT call_number FROM calls WHERE substr(call_number, 1, ?) = ?`, len(prefix), prefix)
	if err != nil {
		return nil, sqlErr(err)
	}
	defer rows.Close()

	numbers := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		numbers = append(numbers, n)
	}
	return numbers, rows.Err()
}

func (t *callTable) query(ctx context.Context, query string, args ...any) ([]models.Call, error) {
	rows, err := t.db.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, sqlErr(err)
	}
	defer rows.Close()

	calls := []models.Call{}
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, *c)
	}
	return calls, rows.Err()
}

func callWhere(f databases.CallFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.From != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.From.UnixNano())
	}
	if f.To != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, f.To.UnixNano())
	}
	if len(f.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, string(s))
		}
	}
	if len(f.Priorities) > 0 {
		clauses = append(clauses, "priority IN ("+placeholders(len(f.Priorities))+")")
		for _, p := range f.Priorities {
			args = append(args, p)
		}
	}
	if len(f.CallTypeIDs) > 0 {
		clauses = append(clauses, "call_type_id IN ("+placeholders(len(f.CallTypeIDs))+")")
		for _, id := range f.CallTypeIDs {
			args = append(args, id)
		}
	}
	if f.UnitID != "" {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM json_each(calls.assigned_units) WHERE json_each.value = ?)")
		args = append(args, f.UnitID)
	}
	if f.DispatcherID != "" {
		clauses = append(clauses, "dispatcher_id = ?")
		args = append(args, f.DispatcherID)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
