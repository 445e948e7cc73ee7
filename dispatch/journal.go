package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/linesmerrill/camp-cad-api/databases"
	"github.com/linesmerrill/camp-cad-api/logging"
	"github.com/linesmerrill/camp-cad-api/models"
)

// ChangeNotifier receives a signal after every durable mutation. Delivery is
// best effort; implementations log their own failures.
type ChangeNotifier interface {
	Notify(ctx context.Context, event models.ChangeEvent)
}

// NopNotifier drops every event
type NopNotifier struct{}

// Notify implements ChangeNotifier
func (NopNotifier) Notify(context.Context, models.ChangeEvent) {}

// changeSet buffers the audit rows and change events of one unit of work
type changeSet struct {
	audits []models.CallUpdate
	events []models.ChangeEvent
	seen   map[models.ChangeEvent]bool
}

func newChangeSet() *changeSet {
	return &changeSet{seen: map[models.ChangeEvent]bool{}}
}

func (cs *changeSet) audit(callID string, actor models.Actor, kind models.UpdateType, description string, metadata map[string]string) {
	cs.audits = append(cs.audits, models.CallUpdate{
		ID:          uuid.NewString(),
		CallID:      callID,
		ActorID:     actor.ID,
		ActorName:   actor.Name,
		Type:        kind,
		Description: description,
		Metadata:    metadata,
		CreatedAt:   time.Now().UTC(),
	})
}

func (cs *changeSet) changed(entity, id, kind string) {
	ev := models.ChangeEvent{EntityType: entity, EntityID: id, ChangeKind: kind}
	if cs.seen[ev] {
		return
	}
	cs.seen[ev] = true
	cs.events = append(cs.events, ev)
}

// journal writes audit rows and change events once a unit of work commits
type journal struct {
	updates  databases.CallUpdateDatabase
	notifier ChangeNotifier
}

func newJournal(updates databases.CallUpdateDatabase, notifier ChangeNotifier) *journal {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &journal{updates: updates, notifier: notifier}
}

// commit schedules cs for after the surrounding transaction commits
func (j *journal) commit(ctx context.Context, cs *changeSet) {
	if len(cs.audits) == 0 && len(cs.events) == 0 {
		return
	}
	databases.AfterCommit(ctx, func(ctx context.Context) {
		j.flush(ctx, cs)
	})
}

func (j *journal) flush(ctx context.Context, cs *changeSet) {
	log := logging.FromContext(ctx)
	for i := range cs.audits {
		if err := j.updates.InsertOne(ctx, &cs.audits[i]); err != nil {
			log.Errorw("failed to write call update",
				"callID", cs.audits[i].CallID,
				"updateType", cs.audits[i].Type,
				"error", err,
			)
		}
	}
	now := time.Now().UTC()
	for _, ev := range cs.events {
		ev.OccurredAt = now
		j.notifier.Notify(ctx, ev)
	}
}

func unitLabels(units []*models.Unit) string {
	labels := make([]string, 0, len(units))
	for _, u := range units {
		labels = append(labels, u.Label())
	}
	return strings.Join(labels, ", ")
}

func unitIDs(units []*models.Unit) map[string]string {
	ids := make([]string, 0, len(units))
	for _, u := range units {
		ids = append(ids, u.ID)
	}
	return map[string]string{"unit_ids": strings.Join(ids, ",")}
}
