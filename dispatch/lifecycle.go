package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/linesmerrill/camp-cad-api/databases"
	"github.com/linesmerrill/camp-cad-api/logging"
	"github.com/linesmerrill/camp-cad-api/models"
)

// maxNumberAttempts bounds call number retries after a uniqueness collision
const maxNumberAttempts = 5

// Manager owns call creation, updates, status transitions and closure. Every
// mutation writes an audit row and a change event once it commits.
type Manager struct {
	store   *databases.Store
	seq     *Sequencer
	coord   *Coordinator
	journal *journal
	now     func() time.Time
}

// NewManager returns a lifecycle manager. Unit set changes go through coord.
func NewManager(store *databases.Store, seq *Sequencer, coord *Coordinator, notifier ChangeNotifier) *Manager {
	return &Manager{
		store:   store,
		seq:     seq,
		coord:   coord,
		journal: newJournal(store.CallUpdates, notifier),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateCall validates in, allocates a call number and stores the call as
// pending. Units listed in the request are assigned in the same unit of work.
func (m *Manager) CreateCall(ctx context.Context, in models.NewCall, actor models.Actor) (*models.Call, error) {
	if err := m.validateNewCall(ctx, in); err != nil {
		return nil, err
	}
	units := uniqueIDs(in.AssignedUnits)

	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		year := m.seq.Year()
		number, err := m.seq.Next(ctx)
		if err != nil {
			return nil, err
		}

		var created *models.Call
		err = m.store.Tx.WithTransaction(ctx, func(ctx context.Context) error {
			cs := newChangeSet()
			now := m.now()
			call := &models.Call{
				ID:            uuid.NewString(),
				CallNumber:    number,
				CallTypeID:    in.CallTypeID,
				Priority:      in.Priority,
				Status:        models.CallStatusPending,
				Location:      in.Location,
				Caller:        in.Caller,
				Description:   strings.TrimSpace(in.Description),
				AssignedUnits: []string{},
				DispatcherID:  actor.ID,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := m.store.Calls.InsertOne(ctx, call); err != nil {
				if errors.Is(err, databases.ErrDuplicateKey) {
					return err
				}
				return persistenceFailure(ctx, "insert call", err, "callNumber", number)
			}
			cs.audit(call.ID, actor, models.UpdateTypeGeneral, "Call created", nil)
			cs.changed(models.EntityCalls, call.ID, models.ChangeCreated)

			if len(units) > 0 {
				if err := m.coord.assign(ctx, cs, call, units, actor); err != nil {
					return err
				}
				if err := m.coord.saveCall(ctx, call); err != nil {
					return err
				}
			}
			m.journal.commit(ctx, cs)
			created = call
			return nil
		})
		if err == nil {
			logging.FromContext(ctx).Infow("call created",
				"callID", created.ID,
				"callNumber", created.CallNumber,
				"priority", created.Priority,
			)
			return created, nil
		}
		if !isTyped(err) && errors.Is(err, databases.ErrDuplicateKey) {
			logging.FromContext(ctx).Warnw("call number collision, retrying",
				"callNumber", number,
				"attempt", attempt,
			)
			m.seq.Reset(year)
			continue
		}
		return nil, Classify(ctx, "create call", err)
	}
	return nil, conflictf("could not allocate a unique call number after %d attempts", maxNumberAttempts)
}

// GetCall returns one call
func (m *Manager) GetCall(ctx context.Context, id string) (*models.Call, error) {
	return m.coord.loadCall(ctx, id)
}

// GetCallDetails returns a call with its units and its audit timeline, newest first
func (m *Manager) GetCallDetails(ctx context.Context, id string) (*models.CallDetails, error) {
	call, err := m.coord.loadCall(ctx, id)
	if err != nil {
		return nil, err
	}

	units := make([]models.Unit, 0, len(call.AssignedUnits))
	for _, unitID := range call.AssignedUnits {
		unit, err := m.store.Units.FindByID(ctx, unitID)
		if errors.Is(err, databases.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, persistenceFailure(ctx, "load unit", err, "id", unitID)
		}
		units = append(units, *unit)
	}

	timeline, err := m.store.CallUpdates.FindByCall(ctx, id)
	if err != nil {
		return nil, persistenceFailure(ctx, "load timeline", err, "callID", id)
	}
	return &models.CallDetails{Call: *call, Units: units, Timeline: timeline}, nil
}

// UpdateCall applies the fields present in patch. Changes are summarized in
// one audit row; a patch that changes nothing writes nothing.
func (m *Manager) UpdateCall(ctx context.Context, id string, patch models.CallPatch, actor models.Actor) (*models.Call, error) {
	if err := m.validatePatch(ctx, patch); err != nil {
		return nil, err
	}

	var result *models.Call
	err := m.store.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		cs := newChangeSet()
		call, err := m.coord.loadCall(ctx, id)
		if err != nil {
			return err
		}

		var (
			fragments []string
			kinds     = map[models.UpdateType]bool{}
			metadata  = map[string]string{}
		)
		note := func(kind models.UpdateType, fragment string) {
			fragments = append(fragments, fragment)
			kinds[kind] = true
		}

		if patch.CallTypeID != nil && *patch.CallTypeID != call.CallTypeID {
			call.CallTypeID = *patch.CallTypeID
			note(models.UpdateTypeGeneral, "Call type changed.")
		}
		if patch.Priority != nil && *patch.Priority != call.Priority {
			metadata["previous_priority"] = strconv.Itoa(call.Priority)
			metadata["priority"] = strconv.Itoa(*patch.Priority)
			call.Priority = *patch.Priority
			note(models.UpdateTypePriorityChange, "Priority changed.")
		}
		if patch.Location != nil && *patch.Location != call.Location {
			call.Location = *patch.Location
			note(models.UpdateTypeLocationUpdate, "Location updated.")
		}
		if patch.Caller != nil && *patch.Caller != call.Caller {
			call.Caller = *patch.Caller
			note(models.UpdateTypeGeneral, "Caller information updated.")
		}
		if patch.Description != nil && strings.TrimSpace(*patch.Description) != call.Description {
			call.Description = strings.TrimSpace(*patch.Description)
			note(models.UpdateTypeDescriptionUpdate, "Description updated.")
		}

		var target models.CallStatus
		statusChanged := patch.Status != nil && *patch.Status != call.Status
		if statusChanged {
			target = *patch.Status
			if err := CheckTransition(call.Status, target); err != nil {
				return err
			}
		}

		unitsChanged := false
		if patch.AssignedUnits != nil {
			desired := uniqueIDs(*patch.AssignedUnits)
			toRelease, toAssign := diffUnits(call.AssignedUnits, desired)
			if len(toRelease) > 0 {
				if err := m.coord.release(ctx, cs, call, toRelease, actor, ""); err != nil {
					return err
				}
				unitsChanged = true
			}
			if len(toAssign) > 0 {
				if statusChanged && target.Terminal() {
					return conflictf("cannot assign units while moving call to %s", target)
				}
				if err := m.coord.assign(ctx, cs, call, toAssign, actor); err != nil {
					return err
				}
				unitsChanged = true
			}
		}

		if statusChanged {
			metadata["previous_status"] = string(call.Status)
			metadata["status"] = string(target)
			if err := m.applyStatus(ctx, cs, call, target, actor); err != nil {
				return err
			}
			note(models.UpdateTypeStatusChange, fmt.Sprintf("Status changed to %s.", target))
		}
		if unitsChanged {
			note(models.UpdateTypeUnitAssignment, "Unit assignment updated.")
		}

		result = call
		if len(fragments) == 0 {
			return nil
		}

		call.UpdatedAt = m.now()
		if err := m.coord.saveCall(ctx, call); err != nil {
			return err
		}
		kind := models.UpdateTypeGeneral
		if len(kinds) == 1 {
			for k := range kinds {
				kind = k
			}
		}
		if len(metadata) == 0 {
			metadata = nil
		}
		cs.audit(call.ID, actor, kind, strings.Join(fragments, " "), metadata)
		changeKind := models.ChangeUpdated
		if call.Status.Terminal() {
			changeKind = models.ChangeClosed
		}
		cs.changed(models.EntityCalls, call.ID, changeKind)
		m.journal.commit(ctx, cs)
		return nil
	})
	if err != nil {
		return nil, Classify(ctx, "update call", err)
	}
	return result, nil
}

// UpdateStatus is UpdateCall restricted to the status field
func (m *Manager) UpdateStatus(ctx context.Context, id string, status models.CallStatus, actor models.Actor) (*models.Call, error) {
	return m.UpdateCall(ctx, id, models.CallPatch{Status: &status}, actor)
}

// CloseCall clears a call and releases every unit on it
func (m *Manager) CloseCall(ctx context.Context, id string, actor models.Actor, notes string) (*models.Call, error) {
	var result *models.Call
	err := m.store.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		cs := newChangeSet()
		call, err := m.coord.loadCall(ctx, id)
		if err != nil {
			return err
		}
		switch call.Status {
		case models.CallStatusCleared:
			return conflictf("call %s is already cleared", call.CallNumber)
		case models.CallStatusCancelled:
			return conflictf("call %s was cancelled and cannot be closed", call.CallNumber)
		}

		previous := call.Status
		if err := m.applyStatus(ctx, cs, call, models.CallStatusCleared, actor); err != nil {
			return err
		}
		call.UpdatedAt = m.now()
		if err := m.coord.saveCall(ctx, call); err != nil {
			return err
		}

		description := "Call closed"
		if notes = strings.TrimSpace(notes); notes != "" {
			description += ". Notes: " + notes
		}
		cs.audit(call.ID, actor, models.UpdateTypeStatusChange, description, map[string]string{
			"previous_status": string(previous),
			"status":          string(models.CallStatusCleared),
		})
		cs.changed(models.EntityCalls, call.ID, models.ChangeClosed)
		m.journal.commit(ctx, cs)
		result = call
		return nil
	})
	if err != nil {
		return nil, Classify(ctx, "close call", err)
	}
	return result, nil
}

// SearchCalls returns one page of matching calls, newest first, and the
// total number of matches
func (m *Manager) SearchCalls(ctx context.Context, filter databases.CallFilter) (*models.CallList, error) {
	var problems error
	for _, s := range filter.Statuses {
		if !s.Valid() {
			problems = multierr.Append(problems, fmt.Errorf("unknown status %q", s))
		}
	}
	for _, p := range filter.Priorities {
		if p < models.MostUrgentPriority || p > models.LeastUrgentPriority {
			problems = multierr.Append(problems, fmt.Errorf("priority %d is out of range", p))
		}
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		problems = multierr.Append(problems, errors.New("end_date is before start_date"))
	}
	if err := NewValidationError(problems); err != nil {
		return nil, err
	}

	filter.Limit, filter.Offset = databases.NormalizePage(filter.Limit, filter.Offset)
	calls, total, err := m.store.Calls.Find(ctx, filter)
	if err != nil {
		return nil, persistenceFailure(ctx, "search calls", err)
	}
	return &models.CallList{Calls: calls, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// ActiveCalls returns every non-terminal call, most urgent first and oldest
// first within a priority
func (m *Manager) ActiveCalls(ctx context.Context) ([]models.Call, error) {
	calls, err := m.store.Calls.FindActive(ctx)
	if err != nil {
		return nil, persistenceFailure(ctx, "list active calls", err)
	}
	return calls, nil
}

// Stats summarizes the calls created in the window
func (m *Manager) Stats(ctx context.Context, from, to *time.Time) (*models.CallStats, error) {
	calls, _, err := m.store.Calls.Find(ctx, databases.CallFilter{From: from, To: to})
	if err != nil {
		return nil, persistenceFailure(ctx, "call stats", err)
	}

	stats := &models.CallStats{Total: len(calls)}
	var responseTotal float64
	var responded int
	for _, c := range calls {
		if !c.Status.Terminal() {
			stats.Active++
		}
		if c.Priority == models.MostUrgentPriority {
			stats.Emergency++
		}
		if c.ActualArrivalTime != nil {
			responseTotal += c.ActualArrivalTime.Sub(c.CreatedAt).Seconds()
			responded++
		}
	}
	if responded > 0 {
		stats.AverageResponseSeconds = responseTotal / float64(responded)
	}
	return stats, nil
}

// applyStatus moves call to target and runs the side effects of the new status
func (m *Manager) applyStatus(ctx context.Context, cs *changeSet, call *models.Call, target models.CallStatus, actor models.Actor) error {
	now := m.now()
	switch target {
	case models.CallStatusOnScene:
		if call.ActualArrivalTime == nil {
			call.ActualArrivalTime = &now
		}
	case models.CallStatusCleared:
		if err := m.coord.releaseAll(ctx, cs, call, actor, "call cleared"); err != nil {
			return err
		}
		call.ClosedAt = &now
		call.ClearedTime = &now
	case models.CallStatusCancelled:
		if err := m.coord.releaseAll(ctx, cs, call, actor, "call cancelled"); err != nil {
			return err
		}
		call.ClosedAt = &now
	}
	call.Status = target
	return nil
}

func (m *Manager) validateNewCall(ctx context.Context, in models.NewCall) error {
	var problems error
	if strings.TrimSpace(in.CallTypeID) == "" {
		problems = multierr.Append(problems, errors.New("call_type_id is required"))
	} else if err := m.checkCallType(ctx, in.CallTypeID); err != nil {
		if isTyped(err) {
			return err
		}
		problems = multierr.Append(problems, err)
	}
	if in.Priority == 0 {
		problems = multierr.Append(problems, errors.New("priority is required"))
	} else if err := checkPriority(in.Priority); err != nil {
		problems = multierr.Append(problems, err)
	}
	if strings.TrimSpace(in.Description) == "" {
		problems = multierr.Append(problems, errors.New("description is required"))
	}
	return NewValidationError(problems)
}

func (m *Manager) validatePatch(ctx context.Context, patch models.CallPatch) error {
	var problems error
	if patch.CallTypeID != nil {
		if strings.TrimSpace(*patch.CallTypeID) == "" {
			problems = multierr.Append(problems, errors.New("call_type_id cannot be empty"))
		} else if err := m.checkCallType(ctx, *patch.CallTypeID); err != nil {
			if isTyped(err) {
				return err
			}
			problems = multierr.Append(problems, err)
		}
	}
	if patch.Priority != nil {
		if err := checkPriority(*patch.Priority); err != nil {
			problems = multierr.Append(problems, err)
		}
	}
	if patch.Status != nil && !patch.Status.Valid() {
		problems = multierr.Append(problems, fmt.Errorf("unknown status %q", *patch.Status))
	}
	if patch.Description != nil && strings.TrimSpace(*patch.Description) == "" {
		problems = multierr.Append(problems, errors.New("description cannot be empty"))
	}
	return NewValidationError(problems)
}

// checkCallType returns a plain error for an unknown call type and a typed
// error when the lookup itself failed
func (m *Manager) checkCallType(ctx context.Context, id string) error {
	_, err := m.store.CallTypes.FindByID(ctx, id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, databases.ErrNotFound):
		return fmt.Errorf("call type %q does not exist", id)
	}
	return persistenceFailure(ctx, "load call type", err, "id", id)
}

func checkPriority(p int) error {
	if p < models.MostUrgentPriority || p > models.LeastUrgentPriority {
		return fmt.Errorf("priority must be between %d and %d", models.MostUrgentPriority, models.LeastUrgentPriority)
	}
	return nil
}

// diffUnits splits a desired unit set into the ids to release and to assign
func diffUnits(current, desired []string) ([]string, []string) {
	want := make(map[string]bool, len(desired))
	for _, id := range desired {
		want[id] = true
	}
	have := make(map[string]bool, len(current))
	var toRelease []string
	for _, id := range current {
		have[id] = true
		if !want[id] {
			toRelease = append(toRelease, id)
		}
	}
	var toAssign []string
	for _, id := range desired {
		if !have[id] {
			toAssign = append(toAssign, id)
		}
	}
	return toRelease, toAssign
}
