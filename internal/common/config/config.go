// Package config provides configuration management for Agentum.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for the Agentum server.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Sessions SessionsConfig `mapstructure:"sessions"`
	Sandbox  SandboxConfig  `mapstructure:"sandbox"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	CORS     CORSConfig     `mapstructure:"cors"`
}

// ServerConfig holds HTTP server configuration (api.yaml's api/web sections).
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ExternalPort int    `mapstructure:"externalPort"` // api.external_port
	WebPort      int    `mapstructure:"webPort"`      // web.external_port, reserved for a future UI
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// DatabaseConfig holds SQLite metadata store configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// SessionsConfig holds session lifecycle and supervisor defaults.
type SessionsConfig struct {
	// MaxConcurrent bounds the number of sessions with a live agent process at
	// once; beyond this, run requests fail with a capacity error.
	MaxConcurrent int `mapstructure:"maxConcurrent"`

	// DefaultTimeoutSeconds is the per-session agent wall-clock timeout applied
	// when a run request does not specify one.
	DefaultTimeoutSeconds int `mapstructure:"defaultTimeoutSeconds"`

	// GracePeriodSeconds is how long the supervisor waits after sending a
	// graceful termination signal before escalating to SIGKILL.
	GracePeriodSeconds int `mapstructure:"gracePeriodSeconds"`

	// HeartbeatIntervalSeconds controls how often the event hub emits a
	// keepalive comment line to an idle subscriber.
	HeartbeatIntervalSeconds int `mapstructure:"heartbeatIntervalSeconds"`

	// WorkspaceRoot is the base directory under which per-session directories
	// are created.
	WorkspaceRoot string `mapstructure:"workspaceRoot"`

	// SkillsDir, if set, is symlinked into each session's workspace as "skills".
	SkillsDir string `mapstructure:"skillsDir"`

	// MaxSubscriberBuffer bounds per-subscriber backpressure buffering in the
	// event hub before the slow subscriber is dropped.
	MaxSubscriberBuffer int `mapstructure:"maxSubscriberBuffer"`

	// DenialThreshold is the number of consecutive permission denials before
	// the supervisor interrupts the running agent.
	DenialThreshold int `mapstructure:"denialThreshold"`

	// PermissionsPath and SecurityPath point at the profile files described
	// in the permission and sandbox configuration sections.
	PermissionsPath string `mapstructure:"permissionsPath"`
	SecurityPath    string `mapstructure:"securityPath"`

	// AgentCommand is the argv of the agent executable the supervisor
	// spawns per session, before sandbox wrapping. The lifecycle manager
	// appends no positional arguments; all per-run parameters are passed
	// via the session_info.json file and environment variables.
	AgentCommand []string `mapstructure:"agentCommand"`
}

// SandboxMount describes one bind mount exposed into the sandbox.
type SandboxMount struct {
	Source string `mapstructure:"source" yaml:"source"`
	Target string `mapstructure:"target" yaml:"target"`
	Mode   string `mapstructure:"mode" yaml:"mode"` // ro|rw
}

// SandboxEnvironment controls the environment seen by the sandboxed process.
type SandboxEnvironment struct {
	ClearEnv bool   `mapstructure:"clearEnv" yaml:"clear_env"`
	Home     string `mapstructure:"home" yaml:"home"`
	Path     string `mapstructure:"path" yaml:"path"`
}

// SandboxConfig holds bubblewrap-based process isolation configuration
// (security.yaml). This struct doubles as the YAML schema loaded by
// internal/sandbox directly from the file named by Sessions.SecurityPath.
type SandboxConfig struct {
	Enabled      bool               `mapstructure:"enabled" yaml:"enabled"`
	BwrapPath    string             `mapstructure:"bwrapPath" yaml:"bwrap_path"`
	UnsharePID   bool               `mapstructure:"unsharePid" yaml:"unshare_pid"`
	UnshareIPC   bool               `mapstructure:"unshareIpc" yaml:"unshare_ipc"`
	UnshareUTS   bool               `mapstructure:"unshareUts" yaml:"unshare_uts"`
	TmpfsSize    int64              `mapstructure:"tmpfsSize" yaml:"tmpfs_size"`
	SystemMounts []SandboxMount     `mapstructure:"systemMounts" yaml:"system_mounts"`
	Environment  SandboxEnvironment `mapstructure:"environment" yaml:"environment"`
}

// AuthConfig holds bearer-token authentication configuration.
type AuthConfig struct {
	// JWTSecretFile is the path to the file holding the signing secret. If
	// the file does not exist, a fresh 256-bit secret is generated with
	// crypto/rand and written there on first run.
	JWTSecretFile string `mapstructure:"jwtSecretFile"`
	TokenDuration int    `mapstructure:"tokenDuration"` // in seconds
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// CORSConfig holds cross-origin configuration for the HTTP surface.
type CORSConfig struct {
	Origins []string `mapstructure:"origins"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// TokenDurationTime returns the token duration as a time.Duration.
func (a *AuthConfig) TokenDurationTime() time.Duration {
	return time.Duration(a.TokenDuration) * time.Second
}

// DefaultTimeout returns the default agent wall-clock timeout as a duration.
func (s *SessionsConfig) DefaultTimeout() time.Duration {
	return time.Duration(s.DefaultTimeoutSeconds) * time.Second
}

// GracePeriod returns the SIGTERM-to-SIGKILL grace period as a duration.
func (s *SessionsConfig) GracePeriod() time.Duration {
	return time.Duration(s.GracePeriodSeconds) * time.Second
}

// HeartbeatInterval returns the subscriber heartbeat interval as a duration.
func (s *SessionsConfig) HeartbeatInterval() time.Duration {
	return time.Duration(s.HeartbeatIntervalSeconds) * time.Second
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
// Returns "json" if running in Kubernetes or other production environments.
// Returns "text" for terminal/development use (human-readable console format).
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("AGENTUM_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.externalPort", 8080)
	v.SetDefault("server.webPort", 0)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 0) // 0: streaming responses must not be write-deadlined

	// Database defaults
	v.SetDefault("database.path", "./agentum.db")

	// Sessions defaults
	v.SetDefault("sessions.maxConcurrent", 16)
	v.SetDefault("sessions.defaultTimeoutSeconds", 1800)
	v.SetDefault("sessions.gracePeriodSeconds", 10)
	v.SetDefault("sessions.heartbeatIntervalSeconds", 30)
	v.SetDefault("sessions.workspaceRoot", "./data/sessions")
	v.SetDefault("sessions.skillsDir", "")
	v.SetDefault("sessions.maxSubscriberBuffer", 256)
	v.SetDefault("sessions.denialThreshold", 3)
	v.SetDefault("sessions.permissionsPath", "./config/permissions.yaml")
	v.SetDefault("sessions.securityPath", "./config/security.yaml")
	v.SetDefault("sessions.agentCommand", []string{"agent", "run"})

	// Sandbox defaults - fail closed: enabled, but requires bwrap to be present.
	v.SetDefault("sandbox.enabled", true)
	v.SetDefault("sandbox.bwrapPath", "/usr/bin/bwrap")
	v.SetDefault("sandbox.unsharePid", true)
	v.SetDefault("sandbox.unshareIpc", true)
	v.SetDefault("sandbox.unshareUts", true)
	v.SetDefault("sandbox.tmpfsSize", 64*1024*1024)
	v.SetDefault("sandbox.environment.clearEnv", true)
	v.SetDefault("sandbox.environment.home", "/home/agent")
	v.SetDefault("sandbox.environment.path", "/usr/local/bin:/usr/bin:/bin")

	// Auth defaults
	v.SetDefault("auth.jwtSecretFile", "./config/jwt_secret")
	v.SetDefault("auth.tokenDuration", 3600) // 1 hour

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")

	// CORS defaults
	v.SetDefault("cors.origins", []string{})
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix AGENTUM_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory or /etc/agentum/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("AGENTUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("logging.level", "AGENTUM_LOG_LEVEL")
	_ = v.BindEnv("database.path", "AGENTUM_DATABASE_PATH")
	_ = v.BindEnv("sessions.maxConcurrent", "AGENTUM_SESSIONS_MAX_CONCURRENT")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/agentum/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set. It does
// not generate the JWT signing secret; internal/authsvc creates that file
// on first run.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if cfg.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if cfg.Sessions.MaxConcurrent <= 0 {
		errs = append(errs, "sessions.maxConcurrent must be positive")
	}
	if cfg.Sessions.DefaultTimeoutSeconds <= 0 {
		errs = append(errs, "sessions.defaultTimeoutSeconds must be positive")
	}
	if cfg.Sessions.HeartbeatIntervalSeconds <= 0 {
		errs = append(errs, "sessions.heartbeatIntervalSeconds must be positive")
	}

	if cfg.Auth.TokenDuration <= 0 {
		errs = append(errs, "auth.tokenDuration must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
