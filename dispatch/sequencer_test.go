package dispatch_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/camp-cad-api/dispatch"
	"github.com/linesmerrill/camp-cad-api/models"
)

func TestParseCallNumber(t *testing.T) {
	tests := []struct {
		in       string
		wantYear int
		wantN    int64
		wantOK   bool
	}{
		{"2026-1", 2026, 1, true},
		{"2026-0042", 2026, 42, true},
		{"2026-0", 0, 0, false},
		{"2026-", 0, 0, false},
		{"CALL-1712345", 0, 0, false},
		{"2026-12a", 0, 0, false},
		{"26-4", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			year, n, ok := dispatch.ParseCallNumber(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantYear, year)
			assert.Equal(t, tt.wantN, n)
		})
	}
}

func TestSequencer_SeedsFromStoredNumbers(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, number := range []string{"2026-7", "2026-garbage", "2025-99", "2026-3"} {
		require.NoError(t, env.store.Calls.InsertOne(ctx, &models.Call{
			ID: number, CallNumber: number, CallTypeID: "fire", Priority: 2, Status: models.CallStatusPending,
			Description: "seeded", CreatedAt: now, UpdatedAt: now,
		}))
	}

	seq := dispatch.NewSequencer(env.store.Calls, env.store.Counters).
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) })

	first, err := seq.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-8", first)

	second, err := seq.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-9", second)
}

func TestSequencer_StartsAtOneForNewYear(t *testing.T) {
	env := newEnv(t)
	seq := dispatch.NewSequencer(env.store.Calls, env.store.Counters).
		WithClock(func() time.Time { return time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC) })

	n, err := seq.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2031-1", n)
}

func TestCheckTransition(t *testing.T) {
	tests := []struct {
		from, to models.CallStatus
		wantErr  bool
	}{
		{models.CallStatusPending, models.CallStatusDispatched, false},
		{models.CallStatusPending, models.CallStatusOnScene, false},
		{models.CallStatusEnroute, models.CallStatusCancelled, false},
		{models.CallStatusOnScene, models.CallStatusCleared, false},
		{models.CallStatusOnScene, models.CallStatusDispatched, true},
		{models.CallStatusCleared, models.CallStatusPending, true},
		{models.CallStatusCancelled, models.CallStatusDispatched, true},
		{models.CallStatusPending, models.CallStatus("parked"), true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := dispatch.CheckTransition(tt.from, tt.to)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
