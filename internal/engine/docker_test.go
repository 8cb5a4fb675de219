package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iieono/make-via-backend-sub000/internal/config"
)

func TestDockerManager_BuildEnv(t *testing.T) {
	m := &DockerManager{
		config: &config.DockerConfig{
			EnvVars: map[string]string{
				"GRADLE_OPTS": "-Dorg.gradle.daemon=false",
			},
		},
	}

	env := m.buildEnv(StartOptions{
		BuildID:   "build-1",
		AppName:   "Field Notes",
		BuildType: "apk",
		BuildMode: "release",
		Env:       map[string]string{"API_URL": "https://api.example.com"},
	})

	assert.Len(t, env, 6)
	assert.Contains(t, env, "GRADLE_OPTS=-Dorg.gradle.daemon=false")
	assert.Contains(t, env, "API_URL=https://api.example.com")
	assert.Contains(t, env, "BUILD_ID=build-1")
	assert.Contains(t, env, "BUILD_TYPE=apk")
	assert.Contains(t, env, "BUILD_MODE=release")
	assert.Contains(t, env, "APP_NAME=Field Notes")
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "4a5db6ef0913", shortID("4a5db6ef0913c20f6e9edcf4d2ab4b9a1f9c2d8e7b6a5c4d3e2f1a0b9c8d7e6f"))
	assert.Equal(t, "short", shortID("short"))
}
