package databases

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/mongo"
)

// Transactor runs fn as one unit of work. Every store call made with the
// context handed to fn takes part in the transaction. Calling WithTransaction
// again with that context joins the running transaction instead of nesting.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type txState struct {
	mu    sync.Mutex
	hooks []func(context.Context)
}

type txStateKey struct{}

func (s *txState) add(hook func(context.Context)) {
	s.mu.Lock()
	s.hooks = append(s.hooks, hook)
	s.mu.Unlock()
}

func (s *txState) reset() {
	s.mu.Lock()
	s.hooks = nil
	s.mu.Unlock()
}

func (s *txState) drain() []func(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hooks := s.hooks
	s.hooks = nil
	return hooks
}

// InTransaction reports whether ctx belongs to a running unit of work
func InTransaction(ctx context.Context) bool {
	_, ok := ctx.Value(txStateKey{}).(*txState)
	return ok
}

// AfterCommit schedules hook to run once the outermost transaction on ctx
// commits. Hooks of a rolled back attempt are discarded. Outside a
// transaction the hook runs immediately.
func AfterCommit(ctx context.Context, hook func(ctx context.Context)) {
	if st, ok := ctx.Value(txStateKey{}).(*txState); ok {
		st.add(hook)
		return
	}
	hook(ctx)
}

// RunTransaction is the shared bookkeeping behind every Transactor. begin
// opens a backend transaction, calls body with the transactional context and
// commits when body succeeds. begin may call body more than once.
func RunTransaction(ctx context.Context, begin func(ctx context.Context, body func(context.Context) error) error, fn func(ctx context.Context) error) error {
	if InTransaction(ctx) {
		return fn(ctx)
	}

	st := &txState{}
	txCtx := context.WithValue(ctx, txStateKey{}, st)
	err := begin(txCtx, func(c context.Context) error {
		st.reset()
		return fn(c)
	})
	if err != nil {
		return err
	}

	for _, hook := range st.drain() {
		hook(ctx)
	}
	return nil
}

type mongoTransactor struct {
	client ClientHelper
}

// NewMongoTransactor returns a Transactor backed by mongo session transactions.
// It needs a replica set or sharded cluster.
func NewMongoTransactor(client ClientHelper) Transactor {
	return &mongoTransactor{client: client}
}

func (t *mongoTransactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return RunTransaction(ctx, func(txCtx context.Context, body func(context.Context) error) error {
		session, err := t.client.StartSession()
		if err != nil {
			return err
		}
		defer session.EndSession(txCtx)

		_, err = session.WithTransaction(txCtx, func(sc mongo.SessionContext) (interface{}, error) {
			return nil, body(sc)
		})
		return err
	}, fn)
}
