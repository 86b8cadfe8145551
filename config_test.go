package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.normalize())
	require.NoError(t, cfg.Validate())

	require.Equal(t, "file", cfg.Backend)
	require.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	require.Equal(t, DefaultMaxCheckpoints, cfg.MaxCheckpoints)
	require.Equal(t, DefaultMaxFixCycles, cfg.MaxFixCycles)
	require.False(t, cfg.AutoApprove)
	require.True(t, cfg.Notifications.Errors)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
state_dir = "` + dir + `/state"
checkpoint_dir = "` + dir + `/checkpoints"
journal_dir = "` + dir + `/journal"
lock_path = "` + dir + `/pipeline.lock"
backend = "file"
default_engine = "claude"
max_retries = 1
max_fix_cycles = 2
approval_timeout = 30
log_level = "DEBUG"

[commands]
design = ["scripts/design.sh"]
build = ["scripts/build.sh", "--fast"]

[notifications]
ntfy_topic = "pipeline-runs"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, resolved, exists, err := LoadConfig(path)
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, path, resolved)

	require.Equal(t, "claude", cfg.DefaultEngine)
	require.Equal(t, 1, cfg.MaxRetries)
	require.Equal(t, 2, cfg.MaxFixCycles)
	require.Equal(t, 30*time.Second, cfg.ApprovalTimeoutDuration())
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, []string{"scripts/build.sh", "--fast"}, cfg.Commands["build"])
	require.Equal(t, "pipeline-runs", cfg.Notifications.NtfyTopic)

	// Unset keys keep their defaults.
	require.Equal(t, DefaultMaxCheckpoints, cfg.MaxCheckpoints)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.toml")

	cfg, resolved, exists, err := LoadConfig(missing)
	require.NoError(t, err)
	require.False(t, exists)
	require.Equal(t, missing, resolved)
	require.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
}

func TestLoadConfigParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("max_retries = [not toml"), 0o644))

	_, _, _, err := LoadConfig(path)
	require.Error(t, err)
	require.True(t, IsConfigurationError(err))
}

func TestConfigValidate(t *testing.T) {
	base := func() Config {
		cfg := DefaultConfig()
		require.NoError(t, cfg.normalize())
		return cfg
	}

	t.Run("unknown backend", func(t *testing.T) {
		cfg := base()
		cfg.Backend = "redis"
		require.Error(t, cfg.Validate())
	})

	t.Run("sqlite requires database path", func(t *testing.T) {
		cfg := base()
		cfg.Backend = "sqlite"
		cfg.DatabasePath = ""
		require.Error(t, cfg.Validate())
	})

	t.Run("negative retries", func(t *testing.T) {
		cfg := base()
		cfg.MaxRetries = -1
		require.Error(t, cfg.Validate())
	})

	t.Run("checkpoint budget below one", func(t *testing.T) {
		cfg := base()
		cfg.MaxCheckpoints = 0
		require.Error(t, cfg.Validate())
	})

	t.Run("unknown log level", func(t *testing.T) {
		cfg := base()
		cfg.LogLevel = "verbose"
		require.Error(t, cfg.Validate())
	})

	t.Run("command for unknown phase", func(t *testing.T) {
		cfg := base()
		cfg.Commands = map[string][]string{"deploy": {"x"}}
		require.Error(t, cfg.Validate())
	})

	t.Run("empty command argv", func(t *testing.T) {
		cfg := base()
		cfg.Commands = map[string][]string{"build": {}}
		require.Error(t, cfg.Validate())
	})

	t.Run("all validation failures are configuration errors", func(t *testing.T) {
		cfg := base()
		cfg.Backend = "redis"
		require.True(t, IsConfigurationError(cfg.Validate()))
	})
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.StateDir = filepath.Join(dir, "state")
	cfg.CheckpointDir = filepath.Join(dir, "checkpoints")
	cfg.JournalDir = filepath.Join(dir, "journal")
	cfg.LockPath = filepath.Join(dir, "locks", "pipeline.lock")

	require.NoError(t, cfg.EnsureDirectories())
	for _, d := range []string{cfg.StateDir, cfg.CheckpointDir, cfg.JournalDir, filepath.Join(dir, "locks")} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		require.True(t, info.IsDir())
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	expanded, err := ExpandPath("~/pipeline/state")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "pipeline", "state"), expanded)

	empty, err := ExpandPath("")
	require.NoError(t, err)
	require.Equal(t, "", empty)

	abs, err := ExpandPath("relative/dir")
	require.NoError(t, err)
	require.True(t, filepath.IsAbs(abs))
}

func TestSampleConfigParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	require.NoError(t, CreateSampleConfig(path))

	cfg, _, exists, err := LoadConfig(path)
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, cfg.Validate())
}
