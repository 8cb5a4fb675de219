package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Callbacks is how a platform manager reports build lifecycle back to the
// orchestrator. Managers never write build records; the orchestrator owns
// them and reacts to these calls instead.
type Callbacks struct {
	OnSuccess  func(buildID, artifactPath string)
	OnFailure  func(buildID string, err error)
	OnProgress func(buildID string, percent int, message string)
}

func (c Callbacks) success(buildID, artifactPath string) {
	if c.OnSuccess != nil {
		c.OnSuccess(buildID, artifactPath)
	}
}

func (c Callbacks) failure(buildID string, err error) {
	if c.OnFailure != nil {
		c.OnFailure(buildID, err)
	}
}

func (c Callbacks) progress(buildID string, percent int, message string) {
	if c.OnProgress != nil {
		c.OnProgress(buildID, percent, message)
	}
}

// StartOptions carries everything a manager needs to run one build. The
// staging directory is mounted read-only into the build process; the output
// directory is where the artifact must appear.
type StartOptions struct {
	BuildID     string
	AppName     string
	BuildType   string
	BuildMode   string
	ArtifactExt string
	StagingDir  string
	OutputDir   string
	Env         map[string]string
	Timeout     time.Duration // zero means the manager default
	Callbacks   Callbacks
}

// Manager supervises isolated build processes on one platform substrate.
type Manager interface {
	// StartBuild launches the build and returns once it is running.
	// Completion, failure and progress arrive through the callbacks. The
	// context only covers the launch, not the build itself.
	StartBuild(ctx context.Context, opts StartOptions) error

	// CancelBuild terminates a running build, gracefully first and by
	// force if needed, then reports failure with the reason. Cancelling
	// an unknown build is a no-op.
	CancelBuild(ctx context.Context, buildID, reason string) error

	// ActiveBuilds lists the build IDs currently registered.
	ActiveBuilds() []string
}

// findArtifact locates the expected build output file.
func findArtifact(outputDir, buildID, ext string) (string, error) {
	path := filepath.Join(outputDir, buildID+ext)
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return path, nil
	}

	// Fall back to any file carrying the build id, in case the toolchain
	// decorated the name.
	matches, _ := filepath.Glob(filepath.Join(outputDir, buildID+"*"))
	for _, match := range matches {
		if info, err := os.Stat(match); err == nil && !info.IsDir() {
			return match, nil
		}
	}

	return "", fmt.Errorf("no output file for build %s in %s", buildID, outputDir)
}
