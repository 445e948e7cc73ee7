package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/camp-cad-api/models"
)

func TestChangeHub(t *testing.T) {
	hub := NewChangeHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleChanges))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	ev := models.ChangeEvent{
		EntityType: models.EntityCalls,
		EntityID:   "call-1",
		ChangeKind: models.ChangeCreated,
		OccurredAt: time.Now().UTC(),
	}
	require.NoError(t, hub.Send(context.Background(), ev))

	var msg struct {
		Event string             `json:"event"`
		Data  models.ChangeEvent `json:"data"`
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "calls:update", msg.Event)
	assert.Equal(t, "call-1", msg.Data.EntityID)
	assert.Equal(t, models.ChangeCreated, msg.Data.ChangeKind)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "websocket", hub.Name())
}

func TestChangeHub_NoClients(t *testing.T) {
	hub := NewChangeHub()
	assert.NoError(t, hub.Send(context.Background(), models.ChangeEvent{EntityType: models.EntityUnits}))
	hub.Close()
	assert.Equal(t, 0, hub.Clients())
}

func TestSocketIOName(t *testing.T) {
	s := NewSocketIO()
	assert.Equal(t, "socket.io", s.Name())
	assert.NotNil(t, s.Server())
}
