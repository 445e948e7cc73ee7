package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/linesmerrill/camp-cad-api/api/handlers"
	"github.com/linesmerrill/camp-cad-api/api/scheduler"
	"github.com/linesmerrill/camp-cad-api/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := handlers.App{}
	a.Config = *config.New()

	//initialize database and router
	if err := a.Initialize(ctx); err != nil {
		zap.S().Fatalw("failed to initialize camp-cad-api", "error", err)
	}

	var mailer scheduler.Mailer
	if a.Config.SendGridAPIKey != "" && a.Config.AlertEmail != "" {
		mailer = scheduler.NewSendGridMailer(a.Config.SendGridAPIKey, a.Config.AlertFromEmail, a.Config.AlertEmail)
	}
	s := scheduler.NewScheduler(a.Coordinator, a.Store.Calls, a.Store.Locks, mailer, a.Config.PendingAlertAfter)
	s.Start()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%v", a.Config.Port),
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zap.S().Infow("camp-cad-api is up and running",
			"port", a.Config.Port,
			"url", a.Config.BaseURL,
			"driver", a.Config.DBDriver,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.S().Fatalw("http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	zap.S().Info("shutting down camp-cad-api")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.S().Errorw("http server shutdown failed", "error", err)
	}
	if err := a.Close(shutdownCtx); err != nil {
		zap.S().Errorw("failed to close connections", "error", err)
	}
	_ = zap.S().Sync()
}
