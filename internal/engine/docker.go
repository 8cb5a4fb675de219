package engine

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"go.uber.org/zap"

	"github.com/iieono/make-via-backend-sub000/internal/config"
)

// stopGracePeriod is how long a cancelled container gets to exit on its own
// before it is killed.
const stopGracePeriod = 5 * time.Second

// DockerManager runs builds in containers on the local Docker daemon. The
// staging directory is bind-mounted read-only, the output directory
// read-write, so the artifact lands on the host without a copy step.
type DockerManager struct {
	config   *config.DockerConfig
	log      *zap.Logger
	cli      *client.Client
	registry *registry
}

func NewDockerManager(config *config.DockerConfig, log *zap.Logger) (*DockerManager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &DockerManager{
		config:   config,
		log:      log,
		cli:      cli,
		registry: newRegistry(),
	}, nil
}

func (m *DockerManager) StartBuild(ctx context.Context, opts StartOptions) error {
	image, ok := m.config.Images[opts.BuildType]
	if !ok {
		return fmt.Errorf("no build image configured for type %s", opts.BuildType)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = m.config.BuildTimeout
	}

	containerConfig := &container.Config{
		Image: image,
		Env:   m.buildEnv(opts),
		Tty:   true,
		Labels: map[string]string{
			"makevia.build_id": opts.BuildID,
		},
	}

	hostConfig := &container.HostConfig{
		Binds: []string{
			opts.StagingDir + ":/workspace/src:ro",
			opts.OutputDir + ":/workspace/out:rw",
		},
		Resources: container.Resources{
			Memory:   m.config.MemoryLimitMB * 1024 * 1024,
			NanoCPUs: int64(m.config.CPULimit * 1e9),
		},
	}

	resp, err := m.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "makevia-build-"+opts.BuildID)
	if err != nil {
		return fmt.Errorf("failed to create build container: %w", err)
	}

	active := &activeBuild{
		opts:      opts,
		handle:    resp.ID,
		startedAt: time.Now(),
	}
	if !m.registry.add(active) {
		_ = m.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return fmt.Errorf("build %s is already running", opts.BuildID)
	}

	if err := m.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		m.registry.remove(opts.BuildID)
		_ = m.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return fmt.Errorf("failed to start build container: %w", err)
	}

	m.log.Info("build container started",
		zap.String("build_id", opts.BuildID),
		zap.String("container_id", shortID(resp.ID)),
		zap.String("image", image),
		zap.Duration("timeout", timeout))

	opts.Callbacks.progress(opts.BuildID, 5, "build started")

	// The wall clock is authoritative even if the container hangs.
	active.timer = time.AfterFunc(timeout, func() {
		m.log.Warn("build timed out",
			zap.String("build_id", opts.BuildID),
			zap.Duration("timeout", timeout))
		_ = m.CancelBuild(context.Background(), opts.BuildID, fmt.Sprintf("timeout after %s", timeout))
	})

	go m.streamLogs(resp.ID, opts)
	go m.waitForCompletion(resp.ID, opts)

	return nil
}

// waitForCompletion blocks on the daemon's own completion event for the
// container instead of polling the registry.
func (m *DockerManager) waitForCompletion(containerID string, opts StartOptions) {
	ctx := context.Background()
	statusCh, errCh := m.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)

	select {
	case err := <-errCh:
		m.finish(containerID, opts, fmt.Errorf("failed to wait for build container: %w", err))
	case status := <-statusCh:
		if status.StatusCode != 0 {
			tail := m.logTail(containerID)
			m.finish(containerID, opts, fmt.Errorf("build failed with exit code %d: %s", status.StatusCode, tail))
		} else {
			m.finish(containerID, opts, nil)
		}
	}
}

// finish reports the outcome exactly once. A build cancelled concurrently
// has already left the registry, in which case the cancel path owns the
// failure callback and the container.
func (m *DockerManager) finish(containerID string, opts StartOptions, buildErr error) {
	if _, ok := m.registry.remove(opts.BuildID); !ok {
		return
	}

	defer func() {
		_ = m.cli.ContainerRemove(context.Background(), containerID, container.RemoveOptions{
			RemoveVolumes: true,
			Force:         true,
		})
	}()

	if buildErr != nil {
		opts.Callbacks.failure(opts.BuildID, buildErr)
		return
	}

	artifact, err := findArtifact(opts.OutputDir, opts.BuildID, opts.ArtifactExt)
	if err != nil {
		m.log.Error("container exited clean but produced no artifact",
			zap.String("build_id", opts.BuildID),
			zap.Error(err))
		opts.Callbacks.failure(opts.BuildID, fmt.Errorf("build completed but no output file found"))
		return
	}

	opts.Callbacks.progress(opts.BuildID, 100, "build complete")
	opts.Callbacks.success(opts.BuildID, artifact)
}

func (m *DockerManager) CancelBuild(ctx context.Context, buildID, reason string) error {
	active, ok := m.registry.remove(buildID)
	if !ok {
		return nil
	}

	m.log.Info("cancelling build",
		zap.String("build_id", buildID),
		zap.String("reason", reason))

	grace := int(stopGracePeriod / time.Second)
	if err := m.cli.ContainerStop(ctx, active.handle, container.StopOptions{Timeout: &grace}); err != nil {
		m.log.Warn("graceful stop failed, killing build container",
			zap.String("build_id", buildID),
			zap.Error(err))
		if killErr := m.cli.ContainerKill(ctx, active.handle, "SIGKILL"); killErr != nil {
			m.log.Error("failed to kill build container",
				zap.String("build_id", buildID),
				zap.Error(killErr))
		}
	}

	_ = m.cli.ContainerRemove(ctx, active.handle, container.RemoveOptions{
		RemoveVolumes: true,
		Force:         true,
	})

	active.opts.Callbacks.failure(buildID, fmt.Errorf("build cancelled: %s", reason))
	return nil
}

func (m *DockerManager) ActiveBuilds() []string {
	return m.registry.ids()
}

func (m *DockerManager) buildEnv(opts StartOptions) []string {
	env := make([]string, 0, len(m.config.EnvVars)+len(opts.Env)+4)
	for k, v := range m.config.EnvVars {
		env = append(env, k+"="+v)
	}
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}
	env = append(env,
		"BUILD_ID="+opts.BuildID,
		"BUILD_TYPE="+opts.BuildType,
		"BUILD_MODE="+opts.BuildMode,
		"APP_NAME="+opts.AppName,
	)
	return env
}

func (m *DockerManager) streamLogs(containerID string, opts StartOptions) {
	logs, err := m.cli.ContainerLogs(context.Background(), containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		m.log.Warn("failed to stream build logs",
			zap.String("build_id", opts.BuildID),
			zap.Error(err))
		return
	}
	defer logs.Close()

	scanProgress(logs, opts.BuildType, func(percent int, message string) {
		opts.Callbacks.progress(opts.BuildID, percent, message)
	})
}

// logTail fetches the last lines of container output for failure messages.
func (m *DockerManager) logTail(containerID string) string {
	logs, err := m.cli.ContainerLogs(context.Background(), containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       "20",
	})
	if err != nil {
		return "logs unavailable"
	}
	defer logs.Close()

	data, err := io.ReadAll(io.LimitReader(logs, 8*1024))
	if err != nil || len(data) == 0 {
		return "logs unavailable"
	}
	return strings.TrimSpace(string(data))
}

func shortID(containerID string) string {
	if len(containerID) > 12 {
		return containerID[:12]
	}
	return containerID
}
