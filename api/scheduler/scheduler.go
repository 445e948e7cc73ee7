package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/linesmerrill/camp-cad-api/databases"
	"github.com/linesmerrill/camp-cad-api/dispatch"
	"github.com/linesmerrill/camp-cad-api/models"
	templates "github.com/linesmerrill/camp-cad-api/templates/html"
)

// Job lock names
const (
	reconcileJob    = "reconcile_assignments"
	pendingAlertJob = "pending_call_alert"
)

// Reconciler repairs call/unit pairings
type Reconciler interface {
	Reconcile(ctx context.Context) (dispatch.ReconcileReport, error)
}

// Mailer delivers an alert email
type Mailer interface {
	Send(ctx context.Context, subject, htmlContent, plainText string) error
}

// Scheduler handles periodic background jobs for the dispatch core
type Scheduler struct {
	cron         *cron.Cron
	Reconciler   Reconciler
	CallDB       databases.CallDatabase
	LockDB       databases.SchedulerLockDatabase
	Mailer       Mailer
	PendingAfter time.Duration
	instanceID   string
	now          func() time.Time

	// calls already included in an alert, dropped once they stop being stale
	alertMu sync.Mutex
	alerted map[string]struct{}
}

// NewScheduler creates a new scheduler instance. A nil mailer disables the
// pending call alert.
func NewScheduler(reconciler Reconciler, callDB databases.CallDatabase, lockDB databases.SchedulerLockDatabase, mailer Mailer, pendingAfter time.Duration) *Scheduler {
	// Generate a unique instance ID for this pod
	instanceID := os.Getenv("HOSTNAME")
	if instanceID == "" {
		instanceID = fmt.Sprintf("instance-%d", time.Now().UnixNano())
	}

	return &Scheduler{
		cron:         cron.New(cron.WithLocation(time.UTC)),
		Reconciler:   reconciler,
		CallDB:       callDB,
		LockDB:       lockDB,
		Mailer:       mailer,
		PendingAfter: pendingAfter,
		instanceID:   instanceID,
		now:          func() time.Time { return time.Now().UTC() },
		alerted:      map[string]struct{}{},
	}
}

// Start begins the scheduler with all registered jobs
func (s *Scheduler) Start() {
	_, err := s.cron.AddFunc("@every 5m", func() { s.runLocked(reconcileJob, 4*time.Minute, s.Reconcile) })
	if err != nil {
		zap.S().Errorw("failed to register reconcile job", "error", err)
	}

	if s.Mailer != nil {
		_, err = s.cron.AddFunc("@every 1m", func() { s.runLocked(pendingAlertJob, 50*time.Second, s.AlertPendingCalls) })
		if err != nil {
			zap.S().Errorw("failed to register pending call alert job", "error", err)
		}
	}

	s.cron.Start()
	zap.S().Infow("dispatch scheduler started", "instance", s.instanceID)
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.S().Info("dispatch scheduler stopped")
}

// runLocked runs job when this instance holds the named lease
func (s *Scheduler) runLocked(name string, ttl time.Duration, job func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), ttl)
	defer cancel()

	acquired, err := s.LockDB.TryAcquireLock(ctx, name, s.instanceID, ttl)
	if err != nil {
		zap.S().Errorw("failed to acquire scheduler lock", "job", name, "error", err)
		return
	}
	if !acquired {
		zap.S().Debugw("job already running on another instance, skipping", "job", name)
		return
	}
	defer func() {
		if err := s.LockDB.ReleaseLock(context.Background(), name, s.instanceID); err != nil {
			zap.S().Warnw("failed to release scheduler lock", "job", name, "error", err)
		}
	}()

	if err := job(ctx); err != nil {
		zap.S().Errorw("scheduled job failed", "job", name, "error", err)
	}
}

// Reconcile runs one reconciliation pass
func (s *Scheduler) Reconcile(ctx context.Context) error {
	report, err := s.Reconciler.Reconcile(ctx)
	if err != nil {
		return err
	}
	if report.UnitsReleased > 0 || report.CallsRepaired > 0 {
		zap.S().Infow("reconciliation repaired assignments",
			"unitsReleased", report.UnitsReleased,
			"callsRepaired", report.CallsRepaired,
		)
	}
	return nil
}

// AlertPendingCalls emails one alert listing every call that is pending with
// no unit after PendingAfter and was not part of an earlier alert
func (s *Scheduler) AlertPendingCalls(ctx context.Context) error {
	s.alertMu.Lock()
	defer s.alertMu.Unlock()

	all, err := s.stalePendingCalls(ctx)
	if err != nil {
		return err
	}
	current := make(map[string]struct{}, len(all))
	var stale []templates.StaleCall
	for _, c := range all {
		current[c.CallNumber] = struct{}{}
		if _, ok := s.alerted[c.CallNumber]; !ok {
			stale = append(stale, c)
		}
	}
	for number := range s.alerted {
		if _, ok := current[number]; !ok {
			delete(s.alerted, number)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	subject := fmt.Sprintf("%d pending call(s) waiting for a unit", len(stale))
	text := templates.StaleCallsText(stale)
	if err := s.Mailer.Send(ctx, subject, templates.RenderAlertEmail(subject, text), text); err != nil {
		return fmt.Errorf("send pending call alert: %w", err)
	}
	if s.alerted == nil {
		s.alerted = map[string]struct{}{}
	}
	for _, c := range stale {
		s.alerted[c.CallNumber] = struct{}{}
	}
	zap.S().Infow("pending call alert sent", "calls", len(stale))
	return nil
}

func (s *Scheduler) stalePendingCalls(ctx context.Context) ([]templates.StaleCall, error) {
	now := s.now()
	cutoff := now.Add(-s.PendingAfter)
	calls, _, err := s.CallDB.Find(ctx, databases.CallFilter{
		Statuses: []models.CallStatus{models.CallStatusPending},
		To:       &cutoff,
		Limit:    databases.MaxPageSize,
	})
	if err != nil {
		return nil, err
	}

	var stale []templates.StaleCall
	for _, c := range calls {
		if len(c.AssignedUnits) > 0 {
			continue
		}
		stale = append(stale, templates.StaleCall{
			CallNumber: c.CallNumber,
			Priority:   c.Priority,
			CallType:   c.CallTypeID,
			Address:    c.Location.Address,
			Age:        now.Sub(c.CreatedAt),
		})
	}
	return stale, nil
}

// SendGridMailer sends alerts to a fixed recipient through SendGrid
type SendGridMailer struct {
	client *sendgrid.Client
	from   *mail.Email
	to     *mail.Email
}

// NewSendGridMailer returns a mailer delivering to toEmail
func NewSendGridMailer(apiKey, fromEmail, toEmail string) *SendGridMailer {
	return &SendGridMailer{
		client: sendgrid.NewSendClient(apiKey),
		from:   mail.NewEmail("Camp CAD", fromEmail),
		to:     mail.NewEmail("Dispatch Supervisor", toEmail),
	}
}

// Send implements Mailer
func (m *SendGridMailer) Send(ctx context.Context, subject, htmlContent, plainText string) error {
	message := mail.NewSingleEmail(m.from, subject, m.to, plainText, htmlContent)
	response, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return err
	}
	if response.StatusCode >= 400 {
		zap.S().Errorw("sendgrid returned error status", "status", response.StatusCode, "body", response.Body)
		return fmt.Errorf("sendgrid returned status %d", response.StatusCode)
	}
	return nil
}
