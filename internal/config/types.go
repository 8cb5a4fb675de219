package config

import "time"

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type BuildConfig struct {
	RootDir            string        `mapstructure:"root_dir"`
	Workers            int           `mapstructure:"workers"`
	QueueSize          int           `mapstructure:"queue_size"`
	RetainStaging      bool          `mapstructure:"retain_staging"`
	ArtifactExpiration time.Duration `mapstructure:"artifact_expiration"`
}

type CacheConfig struct {
	FreshnessWindow time.Duration `mapstructure:"freshness_window"`
}

type GCConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	RetentionWindow time.Duration `mapstructure:"retention_window"`
	KeepPerApp      int           `mapstructure:"keep_per_app"`
}

type DockerConfig struct {
	Images        map[string]string `mapstructure:"images"`
	EnvVars       map[string]string `mapstructure:"env_vars"`
	MemoryLimitMB int64             `mapstructure:"memory_limit_mb"`
	CPULimit      float64           `mapstructure:"cpu_limit"`
	BuildTimeout  time.Duration     `mapstructure:"build_timeout"`
}

type KubeConfig struct {
	Namespace       string        `mapstructure:"namespace"`
	BuildImage      string        `mapstructure:"build_image"`
	WorkspacePVC    string        `mapstructure:"workspace_pvc"`
	MemoryRequestMB int64         `mapstructure:"memory_request_mb"`
	MemoryLimitMB   int64         `mapstructure:"memory_limit_mb"`
	CPURequest      float64       `mapstructure:"cpu_request"`
	CPULimit        float64       `mapstructure:"cpu_limit"`
	BuildTimeout    time.Duration `mapstructure:"build_timeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
}

type StoreConfig struct {
	Backend string           `mapstructure:"backend"` // "s3" or "local"
	S3      S3Config         `mapstructure:"s3"`
	Local   LocalStoreConfig `mapstructure:"local"`
}

type S3Config struct {
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

type LocalStoreConfig struct {
	Root          string `mapstructure:"root"`
	BaseURL       string `mapstructure:"base_url"`
	SigningSecret string `mapstructure:"signing_secret"`
}

type NotifyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type AppConfig struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Build    BuildConfig    `mapstructure:"build"`
	Cache    CacheConfig    `mapstructure:"cache"`
	GC       GCConfig       `mapstructure:"gc"`
	Docker   DockerConfig   `mapstructure:"docker"`
	Kube     KubeConfig     `mapstructure:"kube"`
	Store    StoreConfig    `mapstructure:"store"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}
