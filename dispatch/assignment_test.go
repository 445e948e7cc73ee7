package dispatch_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/linesmerrill/camp-cad-api/dispatch"
	"github.com/linesmerrill/camp-cad-api/models"
)

func TestAssign_MovesUnitBetweenCalls(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	callA := env.createCall(t, 2)
	callB := env.createCall(t, 1)

	_, err := env.coord.Assign(ctx, callA.ID, []string{"u1"}, dispatcher)
	require.NoError(t, err)
	updated, err := env.coord.Assign(ctx, callB.ID, []string{"u1"}, dispatcher)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, updated.AssignedUnits)

	assert.Equal(t, callB.ID, env.unit(t, "u1").AssignedCallID)
	assert.NotContains(t, env.call(t, callA.ID).AssignedUnits, "u1")

	timeline := env.timeline(t, callA.ID)
	assert.Equal(t, "Units released: UNIT-u1 (reassigned to call "+callB.CallNumber+")", timeline[0].Description)
	assert.Equal(t, "u1", timeline[0].Metadata["unit_ids"])
	assert.True(t, env.notifier.has(models.EntityCalls, callA.ID, models.ChangeReleased))
	assert.True(t, env.notifier.has(models.EntityUnits, "u1", models.ChangeAssigned))
}

func TestAssign_Idempotent(t *testing.T) {
	env := newEnv(t)
	call := env.createCall(t, 2, "u1")

	_, err := env.coord.Assign(context.Background(), call.ID, []string{"u1", "u1"}, dispatcher)
	require.NoError(t, err)
	assert.Len(t, env.timeline(t, call.ID), 2)
	assert.Equal(t, []string{"u1"}, env.call(t, call.ID).AssignedUnits)
}

func TestAssign_Rejections(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	call := env.createCall(t, 2)

	_, err := env.coord.Assign(ctx, call.ID, nil, dispatcher)
	var ve *dispatch.ValidationError
	assert.True(t, errors.As(err, &ve))

	_, err = env.coord.Assign(ctx, "missing", []string{"u1"}, dispatcher)
	var nf *dispatch.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "call", nf.Entity)

	_, err = env.coord.Assign(ctx, call.ID, []string{"u1", "ghost"}, dispatcher)
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "unit", nf.Entity)
	// the whole request rolled back
	assert.Empty(t, env.unit(t, "u1").AssignedCallID)

	_, err = env.mgr.CloseCall(ctx, call.ID, dispatcher, "")
	require.NoError(t, err)
	_, err = env.coord.Assign(ctx, call.ID, []string{"u1"}, dispatcher)
	var ce *dispatch.ConflictError
	assert.True(t, errors.As(err, &ce))
}

func TestRelease(t *testing.T) {
	env := newEnv(t)
	call := env.createCall(t, 2, "u1", "u2")

	updated, err := env.coord.Release(context.Background(), call.ID, []string{"u1", "u3"}, dispatcher)
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, updated.AssignedUnits)

	u1 := env.unit(t, "u1")
	assert.Equal(t, models.UnitStatusAvailable, u1.Status)
	assert.Empty(t, u1.AssignedCallID)
	assert.Equal(t, models.UnitStatusAvailable, env.unit(t, "u3").Status)

	timeline := env.timeline(t, call.ID)
	assert.Equal(t, "Units released: UNIT-u1", timeline[0].Description)
	assert.Equal(t, models.UpdateTypeUnitAssignment, timeline[0].Type)
}

func TestAssign_ConcurrentSameUnit(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	calls := []*models.Call{env.createCall(t, 2), env.createCall(t, 2), env.createCall(t, 2)}

	var g errgroup.Group
	for _, call := range calls {
		call := call
		g.Go(func() error {
			_, err := env.coord.Assign(ctx, call.ID, []string{"u1"}, dispatcher)
			return err
		})
	}
	require.NoError(t, g.Wait())

	owner := env.unit(t, "u1").AssignedCallID
	owners := 0
	for _, call := range calls {
		if env.call(t, call.ID).HasUnit("u1") {
			owners++
			assert.Equal(t, call.ID, owner)
		}
	}
	assert.Equal(t, 1, owners)
}

func TestSetUnitStatus(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	call := env.createCall(t, 2, "u1")

	u, err := env.coord.SetUnitStatus(ctx, "u1", models.UnitStatusOnScene, dispatcher)
	require.NoError(t, err)
	assert.Equal(t, models.UnitStatusOnScene, u.Status)
	assert.Equal(t, call.ID, u.AssignedCallID)

	_, err = env.coord.SetUnitStatus(ctx, "u2", models.UnitStatusEnroute, dispatcher)
	var ce *dispatch.ConflictError
	assert.True(t, errors.As(err, &ce))

	_, err = env.coord.SetUnitStatus(ctx, "u2", models.UnitStatus("napping"), dispatcher)
	var ve *dispatch.ValidationError
	assert.True(t, errors.As(err, &ve))

	u, err = env.coord.SetUnitStatus(ctx, "u1", models.UnitStatusOutOfService, dispatcher)
	require.NoError(t, err)
	assert.Empty(t, u.AssignedCallID)
	assert.NotContains(t, env.call(t, call.ID).AssignedUnits, "u1")
	assert.Equal(t, "Units released: UNIT-u1 (unit out_of_service)", env.timeline(t, call.ID)[0].Description)
}

func TestReconcile(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	call := env.createCall(t, 2, "u1")
	now := time.Now().UTC()

	// u2 claims a call that does not exist, u3 is committed with no call,
	// and the call lists u3 although u3 never pointed back
	u2 := env.unit(t, "u2")
	u2.Status, u2.AssignedCallID = models.UnitStatusEnroute, "gone"
	require.NoError(t, env.store.Units.ReplaceOne(ctx, u2))
	u3 := env.unit(t, "u3")
	u3.Status = models.UnitStatusOnScene
	require.NoError(t, env.store.Units.ReplaceOne(ctx, u3))
	stored := env.call(t, call.ID)
	stored.AssignedUnits = append(stored.AssignedUnits, "u3")
	stored.UpdatedAt = now
	require.NoError(t, env.store.Calls.ReplaceOne(ctx, stored))

	report, err := env.coord.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, dispatch.ReconcileReport{UnitsReleased: 2, CallsRepaired: 1}, report)

	assert.Equal(t, models.UnitStatusAvailable, env.unit(t, "u2").Status)
	assert.Empty(t, env.unit(t, "u2").AssignedCallID)
	assert.Equal(t, models.UnitStatusAvailable, env.unit(t, "u3").Status)
	assert.Equal(t, []string{"u1"}, env.call(t, call.ID).AssignedUnits)
	assert.Equal(t, call.ID, env.unit(t, "u1").AssignedCallID)

	again, err := env.coord.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, dispatch.ReconcileReport{}, again)
}
