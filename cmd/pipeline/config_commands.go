package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deepnoodle-ai/pipeline"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigShowCommand(ctx))
	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand(ctx))

	return configCmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "backend:          %s\n", cfg.Backend)
			if cfg.Backend == "sqlite" {
				fmt.Fprintf(out, "database_path:    %s\n", cfg.DatabasePath)
			} else {
				fmt.Fprintf(out, "state_dir:        %s\n", cfg.StateDir)
				fmt.Fprintf(out, "checkpoint_dir:   %s\n", cfg.CheckpointDir)
				fmt.Fprintf(out, "journal_dir:      %s\n", cfg.JournalDir)
			}
			fmt.Fprintf(out, "lock_path:        %s\n", cfg.LockPath)
			fmt.Fprintf(out, "default_engine:   %s\n", cfg.DefaultEngine)
			fmt.Fprintf(out, "max_retries:      %d\n", cfg.MaxRetries)
			fmt.Fprintf(out, "max_checkpoints:  %d\n", cfg.MaxCheckpoints)
			fmt.Fprintf(out, "max_fix_cycles:   %d\n", cfg.MaxFixCycles)
			fmt.Fprintf(out, "auto_approve:     %s\n", yesNo(cfg.AutoApprove))
			fmt.Fprintf(out, "approval_timeout: %s\n", cfg.ApprovalTimeoutDuration())
			fmt.Fprintf(out, "command_timeout:  %s\n", cfg.CommandTimeoutDuration())
			fmt.Fprintf(out, "log_level:        %s\n", cfg.LogLevel)
			fmt.Fprintf(out, "log_format:       %s\n", cfg.LogFormat)
			if cfg.MetricsAddr != "" {
				fmt.Fprintf(out, "metrics_addr:     %s\n", cfg.MetricsAddr)
			}
			if cfg.Notifications.NtfyTopic != "" {
				fmt.Fprintf(out, "ntfy_topic:       %s\n", cfg.Notifications.NtfyTopic)
			}
			if len(cfg.Commands) > 0 {
				fmt.Fprintln(out, "commands:")
				for _, phase := range []string{"design", "build", "qa", "publish"} {
					if argv, ok := cfg.Commands[phase]; ok {
						fmt.Fprintf(out, "  %s: %s\n", phase, strings.Join(argv, " "))
					}
				}
			}
			return nil
		},
	}
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Validate the configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := pipeline.LoadConfig(ctx.configPath())
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", path)
			if !exists {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func newConfigInitCommand(ctx *commandContext) *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := pipeline.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := pipeline.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := pipeline.CreateSampleConfig(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Set per-phase commands under [commands] before running a workflow.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}
