package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/linesmerrill/camp-cad-api/models"
)

// SubjectPrefix is the root of every published change subject
const SubjectPrefix = "cad"

// Publisher is the part of *nats.Conn the publisher needs
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes change events as JSON to cad.<entity>.<kind>
type NATSPublisher struct {
	conn Publisher
}

// NewNATSPublisher returns a target publishing on conn
func NewNATSPublisher(conn Publisher) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

// ConnectNATS dials url and keeps reconnecting in the background
func ConnectNATS(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("camp-cad-api"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				zap.S().Warnw("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			zap.S().Infow("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return conn, nil
}

// Subject returns the subject event is published on
func Subject(event models.ChangeEvent) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, event.EntityType, event.ChangeKind)
}

// Name implements Target
func (p *NATSPublisher) Name() string {
	return "nats"
}

// Send implements Target
func (p *NATSPublisher) Send(_ context.Context, event models.ChangeEvent) error {
	b, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.conn.Publish(Subject(event), b)
}
