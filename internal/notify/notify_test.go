package notify

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iieono/make-via-backend-sub000/internal/config"
)

func newTestLogger(t *testing.T) *zap.Logger {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	return logger
}

func TestNewNotifier_DisabledFallsBackToLog(t *testing.T) {
	cfg := &config.AppConfig{
		Notify: config.NotifyConfig{Enabled: false},
	}

	notifier, err := NewNotifier(cfg, newTestLogger(t))
	require.NoError(t, err)

	_, ok := notifier.(*LogNotifier)
	assert.True(t, ok, "disabled notifications log events instead")
}

func TestNewNATSNotifier_RequiresURL(t *testing.T) {
	_, err := NewNATSNotifier(&config.NotifyConfig{
		Enabled: true,
		Subject: "builds.events",
	}, newTestLogger(t))
	assert.Error(t, err)
}

func TestLogNotifier_Publish(t *testing.T) {
	notifier := NewLogNotifier(newTestLogger(t))

	message := "build failed with exit code 1"
	err := notifier.Publish(Event{
		BuildID: "build_1_abc",
		AppID:   "app-1",
		UserID:  "user-1",
		Status:  "failed",
		Error:   &message,
	})
	assert.NoError(t, err)
	assert.NoError(t, notifier.Close())
}

func TestEvent_OmitsEmptyOptionalFields(t *testing.T) {
	data, err := json.Marshal(Event{
		BuildID: "build_1_abc",
		AppID:   "app-1",
		UserID:  "user-1",
		Status:  "completed",
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.NotContains(t, decoded, "download_url")
	assert.NotContains(t, decoded, "error")
	assert.Equal(t, "build_1_abc", decoded["build_id"])
}
