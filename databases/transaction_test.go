package databases_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/linesmerrill/camp-cad-api/databases"
)

// begin that retries the body once, like a driver on a transient error
func retryingBegin(attempts int) func(ctx context.Context, body func(context.Context) error) error {
	return func(ctx context.Context, body func(context.Context) error) error {
		var err error
		for i := 0; i < attempts; i++ {
			if err = body(ctx); err == nil {
				return nil
			}
		}
		return err
	}
}

func TestRunTransaction_HooksRunAfterCommit(t *testing.T) {
	var order []string
	err := databases.RunTransaction(context.Background(), retryingBegin(1), func(ctx context.Context) error {
		assert.True(t, databases.InTransaction(ctx))
		databases.AfterCommit(ctx, func(ctx context.Context) {
			assert.False(t, databases.InTransaction(ctx))
			order = append(order, "hook")
		})
		order = append(order, "body")
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, []string{"body", "hook"}, order)
}

func TestRunTransaction_RetryDropsEarlierHooks(t *testing.T) {
	attempt := 0
	hooks := 0
	err := databases.RunTransaction(context.Background(), retryingBegin(2), func(ctx context.Context) error {
		attempt++
		databases.AfterCommit(ctx, func(context.Context) { hooks++ })
		if attempt == 1 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, hooks)
}

func TestRunTransaction_FailureDiscardsHooks(t *testing.T) {
	hooks := 0
	err := databases.RunTransaction(context.Background(), retryingBegin(1), func(ctx context.Context) error {
		databases.AfterCommit(ctx, func(context.Context) { hooks++ })
		return errors.New("boom")
	})
	assert.EqualError(t, err, "boom")
	assert.Equal(t, 0, hooks)
}

func TestRunTransaction_JoinsOuter(t *testing.T) {
	begins := 0
	begin := func(ctx context.Context, body func(context.Context) error) error {
		begins++
		return body(ctx)
	}
	err := databases.RunTransaction(context.Background(), begin, func(ctx context.Context) error {
		return databases.RunTransaction(ctx, begin, func(ctx context.Context) error {
			return nil
		})
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, begins)
}

func TestAfterCommit_OutsideTransactionRunsNow(t *testing.T) {
	ran := false
	databases.AfterCommit(context.Background(), func(context.Context) { ran = true })
	assert.True(t, ran)
}
