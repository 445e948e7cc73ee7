package handlers

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/nats-io/nats.go"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/linesmerrill/camp-cad-api/api"
	"github.com/linesmerrill/camp-cad-api/config"
	"github.com/linesmerrill/camp-cad-api/databases"
	"github.com/linesmerrill/camp-cad-api/databases/sqlstore"
	"github.com/linesmerrill/camp-cad-api/dispatch"
	"github.com/linesmerrill/camp-cad-api/notify"
	"github.com/linesmerrill/camp-cad-api/protocol"
)

// App stores the router and the services behind it, so it can be reused
type App struct {
	Router      *mux.Router
	Config      config.Config
	Store       *databases.Store
	Manager     *dispatch.Manager
	Coordinator *dispatch.Coordinator
	Engine      *protocol.Engine
	Notifier    *notify.Fanout
	SocketIO    *SocketIO
	Hub         *ChangeHub
	Auth        api.MiddlewareDB

	closers []func(ctx context.Context) error
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	r := mux.NewRouter()
	r.Use(api.RequestLogger)

	call := Call{Calls: a.Manager, Assignments: a.Coordinator}
	unit := Unit{DB: a.Store.Units, Assignments: a.Coordinator}
	proto := Protocol{Engine: a.Engine}

	// healthchex
	r.HandleFunc("/health", api.HealthCheckHandler).Methods("GET")
	if a.SocketIO != nil {
		r.Handle("/socket.io/", a.SocketIO.Server())
	}
	if a.Hub != nil {
		r.HandleFunc("/ws/changes", a.Hub.HandleChanges)
	}

	apiCreate := r.PathPrefix("/api/v1").Subrouter()
	apiCreate.Use(api.TimeoutMiddleware(a.Config.RequestTimeout))

	apiCreate.Handle("/auth/token", api.Middleware(http.HandlerFunc(a.Auth.CreateToken))).Methods("POST")

	// static paths must be registered before /calls/{call_id}
	apiCreate.Handle("/calls", api.Middleware(http.HandlerFunc(call.CreateCallHandler))).Methods("POST")
	apiCreate.Handle("/calls", api.Middleware(http.HandlerFunc(call.CallHandler))).Methods("GET")
	apiCreate.Handle("/calls/active", api.Middleware(http.HandlerFunc(call.ActiveCallsHandler))).Methods("GET")
	apiCreate.Handle("/calls/stats", api.Middleware(http.HandlerFunc(call.CallStatsHandler))).Methods("GET")
	apiCreate.Handle("/calls/{call_id}", api.Middleware(http.HandlerFunc(call.CallByIDHandler))).Methods("GET")
	apiCreate.Handle("/calls/{call_id}", api.Middleware(http.HandlerFunc(call.UpdateCallHandler))).Methods("PATCH")
	apiCreate.Handle("/calls/{call_id}/details", api.Middleware(http.HandlerFunc(call.CallDetailsHandler))).Methods("GET")
	apiCreate.Handle("/calls/{call_id}/status", api.Middleware(http.HandlerFunc(call.UpdateCallStatusHandler))).Methods("PATCH")
	apiCreate.Handle("/calls/{call_id}/close", api.Middleware(http.HandlerFunc(call.CloseCallHandler))).Methods("POST")
	apiCreate.Handle("/calls/{call_id}/units", api.Middleware(http.HandlerFunc(call.AssignUnitsHandler))).Methods("POST")
	apiCreate.Handle("/calls/{call_id}/units", api.Middleware(http.HandlerFunc(call.ReleaseUnitsHandler))).Methods("DELETE")
	apiCreate.Handle("/calls/{call_id}/units/{unit_id}", api.Middleware(http.HandlerFunc(call.ReleaseUnitsHandler))).Methods("DELETE")

	apiCreate.Handle("/units", api.Middleware(http.HandlerFunc(unit.UnitsHandler))).Methods("GET")
	apiCreate.Handle("/units/{unit_id}/status", api.Middleware(http.HandlerFunc(unit.UnitStatusHandler))).Methods("PATCH")

	apiCreate.Handle("/protocol/workflow/{call_type_id}", api.Middleware(http.HandlerFunc(proto.WorkflowHandler))).Methods("GET")
	apiCreate.Handle("/protocol/process", api.Middleware(http.HandlerFunc(proto.ProcessProtocolHandler))).Methods("POST")
	apiCreate.Handle("/protocol/statistics", api.Middleware(http.HandlerFunc(proto.ProtocolStatisticsHandler))).Methods("GET")
	apiCreate.Handle("/protocol/calls/{call_id}/answers", api.Middleware(http.HandlerFunc(proto.CallAnswersHandler))).Methods("GET")

	return r
}

// Initialize is invoked by main to connect with the database, build the
// services and create a router
func (a *App) Initialize(ctx context.Context) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	a.Store = store

	if a.Config.SeedReferenceData {
		data, err := databases.DefaultReferenceData()
		if err != nil {
			return err
		}
		if _, err := databases.SeedReferenceData(ctx, store, data); err != nil {
			zap.S().With(err).Error("failed to seed reference data")
			return err
		}
	}
	if err := api.EnsureAdmin(ctx, store.Users, a.Config.AdminUsername, a.Config.AdminPassword); err != nil {
		zap.S().With(err).Error("failed to provision admin user")
		return err
	}

	rules, err := protocol.LoadRules(a.Config.RulesFile)
	if err != nil {
		zap.S().With(err).Error("failed to load protocol rules")
		return err
	}

	a.Notifier = a.initNotifier()
	a.Coordinator = dispatch.NewCoordinator(store, a.Notifier)
	a.Manager = dispatch.NewManager(store, dispatch.NewSequencer(store.Calls, store.Counters), a.Coordinator, a.Notifier)
	a.Engine = protocol.NewEngine(store, a.Manager, rules, a.Notifier)
	if a.Config.RedisURL != "" {
		client := protocol.NewRedisClient(a.Config.RedisURL)
		a.Engine.WithCache(protocol.NewRedisCache(client, a.Config.WorkflowCacheTTL))
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		zap.S().Infow("workflow cache enabled", "ttl", a.Config.WorkflowCacheTTL)
	}

	secret, err := a.jwtSecret()
	if err != nil {
		return err
	}
	a.Auth = api.MiddlewareDB{DB: store.Users, Secret: secret, TTL: a.Config.TokenTTL}
	a.Auth.SetupGoGuardian(ctx)

	// initialize api router
	a.initializeRoutes()
	return nil
}

// Close releases every connection Initialize opened
func (a *App) Close(ctx context.Context) error {
	var errs error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errs
}

func (a *App) initializeRoutes() {
	a.Router = a.New()
}

func (a *App) openStore(ctx context.Context) (*databases.Store, error) {
	switch a.Config.DBDriver {
	case config.DriverSQLite:
		db, err := sqlstore.Open(ctx, a.Config.SQLitePath)
		if err != nil {
			zap.S().With(err).Error("failed to open sqlite database")
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
		zap.S().Infow("camp-cad-api has opened the database", "driver", config.DriverSQLite, "path", a.Config.SQLitePath)
		return sqlstore.NewStore(db), nil
	case config.DriverMongo:
		client, err := databases.NewClient(&a.Config)
		if err != nil {
			// if we fail to create a new database client, then kill the pod
			zap.S().With(err).Error("failed to create new client")
			return nil, err
		}
		if err := client.Connect(ctx); err != nil {
			// if we fail to connect to the database, then kill the pod
			zap.S().With(err).Error("failed to connect to database")
			return nil, err
		}
		a.closers = append(a.closers, client.Disconnect)
		db := databases.NewDatabase(&a.Config, client)
		if err := databases.EnsureIndexes(ctx, db); err != nil {
			zap.S().With(err).Error("failed to create indexes")
			return nil, err
		}
		zap.S().Infow("camp-cad-api has connected to the database", "driver", config.DriverMongo, "db", a.Config.DatabaseName)
		return databases.NewMongoStore(db), nil
	default:
		return nil, fmt.Errorf("unknown db driver %q", a.Config.DBDriver)
	}
}

// initNotifier fans change events out to socket.io, the websocket hub and,
// when configured, NATS
func (a *App) initNotifier() *notify.Fanout {
	a.SocketIO = NewSocketIO()
	a.Hub = NewChangeHub()
	fanout := notify.NewFanout(a.SocketIO, a.Hub)

	go func() {
		if err := a.SocketIO.Serve(); err != nil {
			zap.S().Errorw("socket.io server stopped", "error", err)
		}
	}()
	a.closers = append(a.closers,
		func(context.Context) error { return a.SocketIO.Close() },
		func(context.Context) error { a.Hub.Close(); return nil },
	)

	if a.Config.NATSURL != "" {
		conn, err := notify.ConnectNATS(a.Config.NATSURL)
		if err != nil {
			// realtime consoles still work without the bus
			zap.S().Errorw("failed to connect to nats, change events will not be published", "error", err)
			return fanout
		}
		fanout.Add(notify.NewNATSPublisher(conn))
		a.closers = append(a.closers, func(context.Context) error { return drain(conn) })
	}
	return fanout
}

func drain(conn *nats.Conn) error {
	if err := conn.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return err
	}
	return nil
}

// jwtSecret returns the configured signing key, or a random one that only
// lives as long as the process
func (a *App) jwtSecret() ([]byte, error) {
	if a.Config.JWTSecret != "" {
		return []byte(a.Config.JWTSecret), nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	zap.S().Warn("JWT_SECRET is not set, tokens will not survive a restart")
	return secret, nil
}
