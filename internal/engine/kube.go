package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/iieono/make-via-backend-sub000/internal/config"
)

// KubeManager runs builds as kubernetes Jobs. It exists for toolchains that
// cannot run in a local container, iOS builds foremost, and requests
// materially more memory and CPU than the container variant. The build
// root must sit on the workspace PVC so staging and output directories are
// visible to the build pods under /workspace.
type KubeManager struct {
	config   *config.KubeConfig
	log      *zap.Logger
	client   JobClient
	registry *registry
}

func NewKubeManager(config *config.KubeConfig, log *zap.Logger) (*KubeManager, error) {
	manager := &KubeManager{
		config:   config,
		log:      log,
		registry: newRegistry(),
	}

	restConfig, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := filepath.Join(os.Getenv("HOME"), ".kube", "config")
		restConfig, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	}
	if err != nil {
		log.Warn("kubernetes unavailable, cloud builds disabled", zap.Error(err))
		return manager, nil
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create k8s client: %w", err)
	}

	manager.client = NewRealJobClient(clientset)
	return manager, nil
}

func (m *KubeManager) StartBuild(ctx context.Context, opts StartOptions) error {
	if m.client == nil {
		return errors.New("kubernetes build backend unavailable")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = m.config.BuildTimeout
	}

	jobName := jobNameFor(opts.BuildID)
	job := m.buildJob(jobName, opts)

	if _, err := m.client.CreateJob(ctx, m.config.Namespace, job); err != nil {
		return fmt.Errorf("failed to create build job: %w", err)
	}

	active := &activeBuild{
		opts:      opts,
		handle:    jobName,
		startedAt: time.Now(),
	}
	if !m.registry.add(active) {
		_ = m.client.DeleteJob(ctx, m.config.Namespace, jobName)
		return fmt.Errorf("build %s is already running", opts.BuildID)
	}

	m.log.Info("build job created",
		zap.String("build_id", opts.BuildID),
		zap.String("job", jobName),
		zap.String("namespace", m.config.Namespace),
		zap.Duration("timeout", timeout))

	opts.Callbacks.progress(opts.BuildID, 5, "build started")

	go m.streamLogs(jobName, opts)
	go m.pollJob(jobName, opts, timeout)

	return nil
}

// pollJob supervises the Job until it finishes, times out or is cancelled.
// Jobs carry no completion event we can block on with a plain clientset, so
// this loop is the supervisor.
func (m *KubeManager) pollJob(jobName string, opts StartOptions, timeout time.Duration) {
	ctx := context.Background()
	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	start := time.Now()
	pollFailures := 0

	for range ticker.C {
		if _, ok := m.registry.get(opts.BuildID); !ok {
			return
		}

		if time.Since(start) > timeout {
			_ = m.CancelBuild(ctx, opts.BuildID, fmt.Sprintf("timeout after %s", timeout))
			return
		}

		job, err := m.client.GetJob(ctx, m.config.Namespace, jobName)
		if err != nil {
			pollFailures++
			m.log.Warn("failed to poll build job",
				zap.String("build_id", opts.BuildID),
				zap.Int("consecutive_failures", pollFailures),
				zap.Error(err))
			if pollFailures >= 5 {
				m.finish(jobName, opts, fmt.Errorf("lost track of build job: %w", err))
				return
			}
			continue
		}
		pollFailures = 0

		if job.Status.Succeeded > 0 {
			m.finish(jobName, opts, nil)
			return
		}
		if job.Status.Failed > 0 {
			m.finish(jobName, opts, errors.New("build job failed"))
			return
		}
	}
}

func (m *KubeManager) finish(jobName string, opts StartOptions, buildErr error) {
	if _, ok := m.registry.remove(opts.BuildID); !ok {
		return
	}

	defer func() {
		if err := m.client.DeleteJob(context.Background(), m.config.Namespace, jobName); err != nil {
			m.log.Warn("failed to delete build job",
				zap.String("job", jobName),
				zap.Error(err))
		}
	}()

	if buildErr != nil {
		opts.Callbacks.failure(opts.BuildID, buildErr)
		return
	}

	artifact, err := findArtifact(opts.OutputDir, opts.BuildID, opts.ArtifactExt)
	if err != nil {
		m.log.Error("job succeeded but produced no artifact",
			zap.String("build_id", opts.BuildID),
			zap.Error(err))
		opts.Callbacks.failure(opts.BuildID, fmt.Errorf("build completed but no output file found"))
		return
	}

	opts.Callbacks.progress(opts.BuildID, 100, "build complete")
	opts.Callbacks.success(opts.BuildID, artifact)
}

func (m *KubeManager) CancelBuild(ctx context.Context, buildID, reason string) error {
	active, ok := m.registry.remove(buildID)
	if !ok {
		return nil
	}

	m.log.Info("cancelling build",
		zap.String("build_id", buildID),
		zap.String("reason", reason))

	// Foreground propagation tears the pods down with the Job.
	if err := m.client.DeleteJob(ctx, m.config.Namespace, active.handle); err != nil {
		m.log.Warn("failed to delete build job",
			zap.String("job", active.handle),
			zap.Error(err))
	}

	active.opts.Callbacks.failure(buildID, fmt.Errorf("build cancelled: %s", reason))
	return nil
}

func (m *KubeManager) ActiveBuilds() []string {
	return m.registry.ids()
}

func (m *KubeManager) buildJob(jobName string, opts StartOptions) *batchv1.Job {
	backoffLimit := int32(0)
	ttl := int32(3600)

	env := []corev1.EnvVar{
		{Name: "BUILD_ID", Value: opts.BuildID},
		{Name: "BUILD_TYPE", Value: opts.BuildType},
		{Name: "BUILD_MODE", Value: opts.BuildMode},
		{Name: "APP_NAME", Value: opts.AppName},
		{Name: "SRC_DIR", Value: "/workspace/staging/" + opts.BuildID},
		{Name: "OUT_DIR", Value: "/workspace/output/" + opts.BuildID},
	}
	for k, v := range opts.Env {
		env = append(env, corev1.EnvVar{Name: k, Value: v})
	}

	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      jobName,
			Namespace: m.config.Namespace,
			Labels: map[string]string{
				"app":      "makevia-builder",
				"build-id": opts.BuildID,
			},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            &backoffLimit,
			TTLSecondsAfterFinished: &ttl,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{
						"app": "makevia-builder",
					},
				},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{
						{
							Name:  "build",
							Image: m.config.BuildImage,
							Env:   env,
							VolumeMounts: []corev1.VolumeMount{
								{
									Name:      "workspace",
									MountPath: "/workspace",
								},
							},
							Resources: corev1.ResourceRequirements{
								Requests: corev1.ResourceList{
									corev1.ResourceMemory: resource.MustParse(fmt.Sprintf("%dMi", m.config.MemoryRequestMB)),
									corev1.ResourceCPU:    *resource.NewMilliQuantity(int64(m.config.CPURequest*1000), resource.DecimalSI),
								},
								Limits: corev1.ResourceList{
									corev1.ResourceMemory: resource.MustParse(fmt.Sprintf("%dMi", m.config.MemoryLimitMB)),
									corev1.ResourceCPU:    *resource.NewMilliQuantity(int64(m.config.CPULimit*1000), resource.DecimalSI),
								},
							},
						},
					},
					Volumes: []corev1.Volume{
						{
							Name: "workspace",
							VolumeSource: corev1.VolumeSource{
								PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
									ClaimName: m.config.WorkspacePVC,
								},
							},
						},
					},
				},
			},
		},
	}
}

// streamLogs retries until the Job's pod exists, then feeds its output to
// the milestone scanner.
func (m *KubeManager) streamLogs(jobName string, opts StartOptions) {
	ctx := context.Background()

	var logs io.ReadCloser
	for attempt := 0; attempt < 30; attempt++ {
		if _, ok := m.registry.get(opts.BuildID); !ok {
			return
		}

		stream, err := m.client.PodLogs(ctx, m.config.Namespace, jobName)
		if err == nil {
			logs = stream
			break
		}
		time.Sleep(m.config.PollInterval)
	}
	if logs == nil {
		m.log.Warn("failed to stream build logs",
			zap.String("build_id", opts.BuildID))
		return
	}
	defer logs.Close()

	scanProgress(logs, opts.BuildType, func(percent int, message string) {
		opts.Callbacks.progress(opts.BuildID, percent, message)
	})
}

// jobNameFor turns a build ID into a DNS-1123 compatible Job name.
func jobNameFor(buildID string) string {
	return "makevia-build-" + strings.ReplaceAll(strings.ToLower(buildID), "_", "-")
}
