package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/multierr"

	"github.com/linesmerrill/camp-cad-api/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingTarget struct {
	name string
	err  error

	mu     sync.Mutex
	events []models.ChangeEvent
}

func (r *recordingTarget) Name() string { return r.name }

func (r *recordingTarget) Send(_ context.Context, ev models.ChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

type recordingConn struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
}

func (c *recordingConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return c.err
}

var event = models.ChangeEvent{
	EntityType: models.EntityCalls,
	EntityID:   "call-1",
	ChangeKind: models.ChangeUpdated,
	OccurredAt: time.Date(2026, 7, 4, 12, 0, 0, 0, time.UTC),
}

func TestFanout_DeliversToEveryTarget(t *testing.T) {
	ok := &recordingTarget{name: "ok"}
	broken := &recordingTarget{name: "broken", err: errors.New("socket closed")}
	late := &recordingTarget{name: "late"}
	f := NewFanout(ok, broken)
	f.Add(late)

	err := f.Deliver(context.Background(), event)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 1)
	assert.EqualError(t, err, "broken: socket closed")

	for _, target := range []*recordingTarget{ok, broken, late} {
		assert.Equal(t, []models.ChangeEvent{event}, target.events, target.name)
	}

	// Notify swallows the failure
	f.Notify(context.Background(), event)
	assert.Len(t, ok.events, 2)
}

func TestFanout_Empty(t *testing.T) {
	assert.NoError(t, NewFanout().Deliver(context.Background(), event))
}

func TestNATSPublisher(t *testing.T) {
	conn := &recordingConn{}
	p := NewNATSPublisher(conn)
	assert.Equal(t, "nats", p.Name())

	require.NoError(t, p.Send(context.Background(), event))
	assert.Equal(t, []string{"cad.calls.updated"}, conn.subjects)

	var got models.ChangeEvent
	require.NoError(t, json.Unmarshal(conn.payloads[0], &got))
	assert.Equal(t, event, got)

	conn.err = errors.New("nats: connection closed")
	assert.Error(t, p.Send(context.Background(), event))
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "cad.units.assigned", Subject(models.ChangeEvent{EntityType: models.EntityUnits, ChangeKind: models.ChangeAssigned}))
}
