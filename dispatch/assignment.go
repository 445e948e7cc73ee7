package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/linesmerrill/camp-cad-api/databases"
	"github.com/linesmerrill/camp-cad-api/logging"
	"github.com/linesmerrill/camp-cad-api/models"
)

// Coordinator is the only code path that changes which units work which call.
// A unit is attached to at most one call, and a unit is attached exactly
// when its status is one of the committed statuses.
type Coordinator struct {
	store   *databases.Store
	journal *journal
	now     func() time.Time
}

// ReconcileReport counts what a reconciliation pass repaired
type ReconcileReport struct {
	UnitsReleased int `json:"units_released"`
	CallsRepaired int `json:"calls_repaired"`
}

// NewCoordinator returns a coordinator over store that reports changes to notifier
func NewCoordinator(store *databases.Store, notifier ChangeNotifier) *Coordinator {
	return &Coordinator{
		store:   store,
		journal: newJournal(store.CallUpdates, notifier),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Assign attaches units to a call, releasing each from any other call first
func (c *Coordinator) Assign(ctx context.Context, callID string, unitIDs []string, actor models.Actor) (*models.Call, error) {
	return c.mutateCall(ctx, "assign units", callID, unitIDs, func(ctx context.Context, cs *changeSet, call *models.Call, ids []string) error {
		return c.assign(ctx, cs, call, ids, actor)
	})
}

// Release detaches units from a call and makes them available
func (c *Coordinator) Release(ctx context.Context, callID string, unitIDs []string, actor models.Actor) (*models.Call, error) {
	return c.mutateCall(ctx, "release units", callID, unitIDs, func(ctx context.Context, cs *changeSet, call *models.Call, ids []string) error {
		return c.release(ctx, cs, call, ids, actor, "")
	})
}

func (c *Coordinator) mutateCall(ctx context.Context, op, callID string, unitIDs []string,
	fn func(ctx context.Context, cs *changeSet, call *models.Call, ids []string) error) (*models.Call, error) {
	ids := uniqueIDs(unitIDs)
	if len(ids) == 0 {
		return nil, NewValidationError(errors.New("unit_ids must list at least one unit"))
	}

	var result *models.Call
	err := c.store.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		cs := newChangeSet()
		call, err := c.loadCall(ctx, callID)
		if err != nil {
			return err
		}
		if err := fn(ctx, cs, call, ids); err != nil {
			return err
		}
		if len(cs.audits) > 0 {
			if err := c.saveCall(ctx, call); err != nil {
				return err
			}
		}
		c.journal.commit(ctx, cs)
		result = call
		return nil
	})
	if err != nil {
		return nil, Classify(ctx, op, err)
	}
	return result, nil
}

// SetUnitStatus changes a unit's status. A committed status needs an existing
// assignment; any other status releases the unit from its call first.
func (c *Coordinator) SetUnitStatus(ctx context.Context, unitID string, status models.UnitStatus, actor models.Actor) (*models.Unit, error) {
	if !status.Valid() {
		return nil, NewValidationError(fmt.Errorf("unknown unit status %q", status))
	}

	var result *models.Unit
	err := c.store.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		cs := newChangeSet()
		unit, err := c.loadUnit(ctx, unitID)
		if err != nil {
			return err
		}
		if unit.Status == status {
			result = unit
			return nil
		}

		if status.Committed() {
			if unit.AssignedCallID == "" {
				return conflictf("unit %s is not assigned to a call and cannot be %s", unit.Label(), status)
			}
		} else if unit.AssignedCallID != "" {
			if err := c.detach(ctx, cs, unit, actor, fmt.Sprintf("unit %s", status)); err != nil {
				return err
			}
		}

		now := c.now()
		unit.Status = status
		unit.LastStatusUpdate = now
		unit.UpdatedAt = now
		if err := c.saveUnit(ctx, unit); err != nil {
			return err
		}
		cs.changed(models.EntityUnits, unit.ID, models.ChangeUpdated)
		c.journal.commit(ctx, cs)
		result = unit
		return nil
	})
	if err != nil {
		return nil, Classify(ctx, "set unit status", err)
	}
	return result, nil
}

// Reconcile repairs call/unit pairings that disagree. Units whose call is
// gone, terminal, or does not list them are released; committed units with
// no call become available; call set members whose unit does not point back
// are dropped. Running it twice changes nothing the second time.
func (c *Coordinator) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	err := c.store.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		report = ReconcileReport{}
		cs := newChangeSet()
		now := c.now()

		units, err := c.store.Units.Find(ctx, databases.UnitFilter{})
		if err != nil {
			return persistenceFailure(ctx, "list units", err)
		}
		active, err := c.store.Calls.FindActive(ctx)
		if err != nil {
			return persistenceFailure(ctx, "list active calls", err)
		}
		calls := make(map[string]*models.Call, len(active))
		for i := range active {
			calls[active[i].ID] = &active[i]
		}

		pointsAt := map[string]string{}
		for i := range units {
			u := &units[i]
			call, live := calls[u.AssignedCallID]
			consistent := u.AssignedCallID != "" && live && call.HasUnit(u.ID) && u.Status.Committed()
			switch {
			case consistent:
				pointsAt[u.ID] = u.AssignedCallID
				continue
			case u.AssignedCallID == "" && !u.Status.Committed():
				continue
			}

			logging.FromContext(ctx).Warnw("releasing inconsistent unit",
				"unitID", u.ID,
				"status", u.Status,
				"assignedCallID", u.AssignedCallID,
			)
			u.AssignedCallID = ""
			if u.Status.Committed() {
				u.Status = models.UnitStatusAvailable
			}
			u.LastStatusUpdate = now
			u.UpdatedAt = now
			if err := c.saveUnit(ctx, u); err != nil {
				return err
			}
			cs.changed(models.EntityUnits, u.ID, models.ChangeReleased)
			report.UnitsReleased++
		}

		for _, call := range active {
			kept := make([]string, 0, len(call.AssignedUnits))
			var dropped []string
			for _, id := range call.AssignedUnits {
				if pointsAt[id] == call.ID {
					kept = append(kept, id)
				} else {
					dropped = append(dropped, id)
				}
			}
			if len(dropped) == 0 {
				continue
			}
			call.AssignedUnits = kept
			call.UpdatedAt = now
			if err := c.saveCall(ctx, &call); err != nil {
				return err
			}
			cs.audit(call.ID, models.Actor{ID: "system", Name: "reconciler"}, models.UpdateTypeUnitAssignment,
				fmt.Sprintf("Units released: %s (reconciled)", strings.Join(dropped, ", ")),
				map[string]string{"unit_ids": strings.Join(dropped, ",")})
			cs.changed(models.EntityCalls, call.ID, models.ChangeReleased)
			report.CallsRepaired++
		}

		c.journal.commit(ctx, cs)
		return nil
	})
	if err != nil {
		return ReconcileReport{}, Classify(ctx, "reconcile", err)
	}
	return report, nil
}

// assign attaches ids to call in memory and in the units store. The caller
// persists call.
func (c *Coordinator) assign(ctx context.Context, cs *changeSet, call *models.Call, ids []string, actor models.Actor) error {
	if call.Status.Terminal() {
		return conflictf("call %s is %s and cannot take units", call.CallNumber, call.Status)
	}

	now := c.now()
	var assigned []*models.Unit
	for _, id := range ids {
		unit, err := c.loadUnit(ctx, id)
		if err != nil {
			return err
		}
		if unit.AssignedCallID == call.ID && call.HasUnit(id) && unit.Status.Committed() {
			continue
		}
		if unit.AssignedCallID != "" && unit.AssignedCallID != call.ID {
			if err := c.detach(ctx, cs, unit, actor, fmt.Sprintf("reassigned to call %s", call.CallNumber)); err != nil {
				return err
			}
		}

		unit.Status = models.UnitStatusDispatched
		unit.AssignedCallID = call.ID
		unit.LastStatusUpdate = now
		unit.UpdatedAt = now
		if err := c.saveUnit(ctx, unit); err != nil {
			return err
		}
		if !call.HasUnit(id) {
			call.AssignedUnits = append(call.AssignedUnits, id)
		}
		cs.changed(models.EntityUnits, unit.ID, models.ChangeAssigned)
		assigned = append(assigned, unit)
	}

	if len(assigned) == 0 {
		return nil
	}
	call.UpdatedAt = now
	cs.audit(call.ID, actor, models.UpdateTypeUnitAssignment, "Units assigned: "+unitLabels(assigned), unitIDs(assigned))
	cs.changed(models.EntityCalls, call.ID, models.ChangeAssigned)
	return nil
}

// release detaches ids from call in memory and in the units store. Ids that
// are neither on the call nor pointing at it are ignored. The caller persists
// call.
func (c *Coordinator) release(ctx context.Context, cs *changeSet, call *models.Call, ids []string, actor models.Actor, reason string) error {
	now := c.now()
	var released []*models.Unit
	for _, id := range ids {
		unit, err := c.store.Units.FindByID(ctx, id)
		switch {
		case errors.Is(err, databases.ErrNotFound):
			if !call.HasUnit(id) {
				return &NotFoundError{Entity: "unit", ID: id}
			}
			// dangling member, drop it from the set
			unit = &models.Unit{ID: id}
		case err != nil:
			return persistenceFailure(ctx, "load unit", err, "id", id)
		}

		onCall := call.HasUnit(id)
		pointsHere := unit.AssignedCallID == call.ID
		if !onCall && !pointsHere {
			continue
		}
		call.AssignedUnits = removeID(call.AssignedUnits, id)

		if pointsHere {
			unit.Status = models.UnitStatusAvailable
			unit.AssignedCallID = ""
			unit.LastStatusUpdate = now
			unit.UpdatedAt = now
			if err := c.saveUnit(ctx, unit); err != nil {
				return err
			}
			cs.changed(models.EntityUnits, unit.ID, models.ChangeReleased)
		}
		released = append(released, unit)
	}

	if len(released) == 0 {
		return nil
	}
	description := "Units released: " + unitLabels(released)
	if reason != "" {
		description += " (" + reason + ")"
	}
	call.UpdatedAt = now
	cs.audit(call.ID, actor, models.UpdateTypeUnitAssignment, description, unitIDs(released))
	cs.changed(models.EntityCalls, call.ID, models.ChangeReleased)
	return nil
}

// releaseAll releases every unit currently on call
func (c *Coordinator) releaseAll(ctx context.Context, cs *changeSet, call *models.Call, actor models.Actor, reason string) error {
	if len(call.AssignedUnits) == 0 {
		return nil
	}
	ids := append([]string(nil), call.AssignedUnits...)
	return c.release(ctx, cs, call, ids, actor, reason)
}

// detach removes unit from the call it currently points at and saves that
// call. The unit itself is left for the caller to update and save.
func (c *Coordinator) detach(ctx context.Context, cs *changeSet, unit *models.Unit, actor models.Actor, reason string) error {
	prev, err := c.store.Calls.FindByID(ctx, unit.AssignedCallID)
	switch {
	case errors.Is(err, databases.ErrNotFound):
		unit.AssignedCallID = ""
		return nil
	case err != nil:
		return persistenceFailure(ctx, "load call", err, "id", unit.AssignedCallID)
	}

	if prev.HasUnit(unit.ID) {
		prev.AssignedUnits = removeID(prev.AssignedUnits, unit.ID)
		prev.UpdatedAt = c.now()
		if err := c.saveCall(ctx, prev); err != nil {
			return err
		}
		cs.audit(prev.ID, actor, models.UpdateTypeUnitAssignment,
			fmt.Sprintf("Units released: %s (%s)", unit.Label(), reason),
			map[string]string{"unit_ids": unit.ID})
		cs.changed(models.EntityCalls, prev.ID, models.ChangeReleased)
	}
	unit.AssignedCallID = ""
	return nil
}

func (c *Coordinator) loadCall(ctx context.Context, id string) (*models.Call, error) {
	call, err := c.store.Calls.FindByID(ctx, id)
	if err != nil {
		return nil, LookupErr(ctx, "call", id, err)
	}
	return call, nil
}

func (c *Coordinator) loadUnit(ctx context.Context, id string) (*models.Unit, error) {
	unit, err := c.store.Units.FindByID(ctx, id)
	if err != nil {
		return nil, LookupErr(ctx, "unit", id, err)
	}
	return unit, nil
}

func (c *Coordinator) saveCall(ctx context.Context, call *models.Call) error {
	if err := c.store.Calls.ReplaceOne(ctx, call); err != nil {
		return persistenceFailure(ctx, "save call", err, "id", call.ID)
	}
	return nil
}

func (c *Coordinator) saveUnit(ctx context.Context, unit *models.Unit) error {
	if err := c.store.Units.ReplaceOne(ctx, unit); err != nil {
		return persistenceFailure(ctx, "save unit", err, "id", unit.ID)
	}
	return nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func removeID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
