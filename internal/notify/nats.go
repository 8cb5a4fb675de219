package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/iieono/make-via-backend-sub000/internal/config"
)

// NATSNotifier publishes events to a NATS subject.
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
	log     *zap.Logger
}

func NewNATSNotifier(config *config.NotifyConfig, log *zap.Logger) (*NATSNotifier, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("notify.url is required when notifications are enabled")
	}

	conn, err := nats.Connect(config.URL,
		nats.Name("makevia-build-service"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Info("connected to NATS",
		zap.String("url", config.URL),
		zap.String("subject", config.Subject))

	return &NATSNotifier{
		conn:    conn,
		subject: config.Subject,
		log:     log,
	}, nil
}

func (n *NATSNotifier) Publish(event Event) error {
	event.OccurredAt = time.Now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	n.log.Debug("published build event",
		zap.String("build_id", event.BuildID),
		zap.String("status", event.Status))

	return nil
}

func (n *NATSNotifier) Close() error {
	if n.conn != nil {
		n.conn.Close()
	}
	return nil
}
