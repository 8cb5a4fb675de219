package notify

import (
	"go.uber.org/zap"
)

// LogNotifier stands in when no delivery channel is configured. Events still
// show up in the service log so operators can trace outcomes.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Publish(event Event) error {
	fields := []zap.Field{
		zap.String("build_id", event.BuildID),
		zap.String("app_id", event.AppID),
		zap.String("status", event.Status),
	}
	if event.Error != nil {
		fields = append(fields, zap.String("error", *event.Error))
	}
	n.log.Info("build event", fields...)
	return nil
}

func (n *LogNotifier) Close() error {
	return nil
}
