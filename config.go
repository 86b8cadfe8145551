package pipeline

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Default tuning values applied when the config file leaves them unset.
const (
	DefaultMaxFixCycles   = 3
	DefaultBackend        = "file"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultNtfyTimeout    = 10
	defaultConfigLocation = "~/.config/pipeline/config.toml"
)

// Notifications configures ntfy push notifications for run events.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Errors         bool   `toml:"errors"`
	Approvals      bool   `toml:"approvals"`
	Completion     bool   `toml:"completion"`
}

// Config carries every tunable of the pipeline. It is loaded once and
// passed explicitly to the components that need it.
type Config struct {
	StateDir       string `toml:"state_dir"`
	CheckpointDir  string `toml:"checkpoint_dir"`
	JournalDir     string `toml:"journal_dir"`
	LockPath       string `toml:"lock_path"`
	Backend        string `toml:"backend"`
	DatabasePath   string `toml:"database_path"`
	DefaultEngine  string `toml:"default_engine"`
	MaxRetries     int    `toml:"max_retries"`
	MaxCheckpoints int    `toml:"max_checkpoints"`
	MaxFixCycles   int    `toml:"max_fix_cycles"`
	AutoApprove    bool   `toml:"auto_approve"`
	// ApprovalTimeout bounds each approval request, in seconds. Zero waits
	// for a decision indefinitely.
	ApprovalTimeout int `toml:"approval_timeout"`
	// CommandTimeout bounds each phase command, in seconds. Zero disables
	// the limit.
	CommandTimeout int    `toml:"command_timeout"`
	LogLevel       string `toml:"log_level"`
	LogFormat      string `toml:"log_format"`
	MetricsAddr    string `toml:"metrics_addr"`

	// Commands maps a phase name to the argv executed for it. Phases
	// without an entry fall back to whatever executors the embedding
	// program registered.
	Commands map[string][]string `toml:"commands"`

	Notifications Notifications `toml:"notifications"`
}

// DefaultConfig returns the built-in configuration. All paths live under
// the user's home directory.
func DefaultConfig() Config {
	return Config{
		StateDir:        "~/.deepnoodle/pipeline/state",
		CheckpointDir:   "~/.deepnoodle/pipeline/checkpoints",
		JournalDir:      "~/.deepnoodle/pipeline/journal",
		LockPath:        "~/.deepnoodle/pipeline/pipeline.lock",
		Backend:         DefaultBackend,
		DatabasePath:    "~/.deepnoodle/pipeline/pipeline.db",
		MaxRetries:      DefaultMaxRetries,
		MaxCheckpoints:  DefaultMaxCheckpoints,
		MaxFixCycles:    DefaultMaxFixCycles,
		ApprovalTimeout: 0,
		LogLevel:        DefaultLogLevel,
		LogFormat:       DefaultLogFormat,
		Notifications: Notifications{
			RequestTimeout: DefaultNtfyTimeout,
			Errors:         true,
			Approvals:      true,
			Completion:     true,
		},
	}
}

// DefaultConfigPath returns the expanded default config file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigLocation)
}

// SampleConfig returns the annotated sample configuration file shipped
// with the binary.
func SampleConfig() string {
	return sampleConfig
}

// CreateSampleConfig writes the sample configuration file to path,
// creating parent directories as needed.
func CreateSampleConfig(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LoadConfig locates, parses, and validates a configuration file. An empty
// path checks the default location and then a project-local pipeline.toml;
// a missing file yields the defaults. The second return value reports the
// resolved path and the third whether a file was actually read.
func LoadConfig(path string) (*Config, string, bool, error) {
	cfg := DefaultConfig()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, NewConfigurationError("parse config %s: %v", resolvedPath, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("pipeline.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// normalize expands home-relative paths in place.
func (c *Config) normalize() error {
	for _, field := range []*string{
		&c.StateDir, &c.CheckpointDir, &c.JournalDir, &c.LockPath, &c.DatabasePath,
	} {
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	return nil
}

// Validate checks the configuration for values the pipeline cannot run
// with. All failures are configuration errors.
func (c *Config) Validate() error {
	switch c.Backend {
	case "file", "sqlite":
	default:
		return NewConfigurationError("unknown backend %q (expected file or sqlite)", c.Backend)
	}
	if c.Backend == "sqlite" && c.DatabasePath == "" {
		return NewConfigurationError("backend sqlite requires database_path")
	}
	if c.StateDir == "" {
		return NewConfigurationError("state_dir must not be empty")
	}
	if c.CheckpointDir == "" {
		return NewConfigurationError("checkpoint_dir must not be empty")
	}
	if c.MaxRetries < 0 {
		return NewConfigurationError("max_retries must not be negative")
	}
	if c.MaxCheckpoints < 1 {
		return NewConfigurationError("max_checkpoints must be at least 1")
	}
	if c.MaxFixCycles < 1 {
		return NewConfigurationError("max_fix_cycles must be at least 1")
	}
	if c.ApprovalTimeout < 0 {
		return NewConfigurationError("approval_timeout must not be negative")
	}
	if c.CommandTimeout < 0 {
		return NewConfigurationError("command_timeout must not be negative")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return NewConfigurationError("unknown log_level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return NewConfigurationError("unknown log_format %q", c.LogFormat)
	}
	for name, argv := range c.Commands {
		if _, ok := ParsePhase(name); !ok {
			return NewConfigurationError("commands: unknown phase %q", name)
		}
		if len(argv) == 0 {
			return NewConfigurationError("commands: empty command for phase %q", name)
		}
	}
	return nil
}

// EnsureDirectories creates the directories the pipeline writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.StateDir, c.CheckpointDir, c.JournalDir}
	if c.LockPath != "" {
		dirs = append(dirs, filepath.Dir(c.LockPath))
	}
	if c.Backend == "sqlite" && c.DatabasePath != "" {
		dirs = append(dirs, filepath.Dir(c.DatabasePath))
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ApprovalTimeoutDuration returns the approval timeout as a duration.
func (c *Config) ApprovalTimeoutDuration() time.Duration {
	return time.Duration(c.ApprovalTimeout) * time.Second
}

// CommandTimeoutDuration returns the per-command timeout as a duration.
func (c *Config) CommandTimeoutDuration() time.Duration {
	return time.Duration(c.CommandTimeout) * time.Second
}

// ExpandPath resolves a leading tilde against the user's home directory
// and makes the path absolute.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return "", nil
	}
	if pathValue == "~" || strings.HasPrefix(pathValue, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			return home, nil
		}
		return filepath.Join(home, pathValue[2:]), nil
	}
	return filepath.Abs(pathValue)
}
