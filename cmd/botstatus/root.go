package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/botzhub/botstatus/internal/app"
	"github.com/botzhub/botstatus/internal/config"
	"github.com/botzhub/botstatus/internal/logger"
)

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string) int {
	exitCode := 0
	root := newRootCmd(&exitCode)
	root.SetArgs(args)

	if err := root.ExecuteContext(ctx); err != nil {
		slog.Error("Command failed", "error", err)
		return 1
	}
	return exitCode
}

func newRootCmd(exitCode *int) *cobra.Command {
	once := func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		*exitCode = a.RunOnce(cmd.Context())
		return nil
	}

	cmd := &cobra.Command{
		Use:           "botstatus",
		Short:         "Check that Telegram bots answer and publish their status to a channel",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          once,
	}
	cmd.PersistentFlags().String("env-file", config.DefaultEnvFile, "Optional dotenv file read before the environment.")

	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Perform a single status pass and exit (default)",
		Args:  cobra.NoArgs,
		RunE:  once,
	})
	cmd.AddCommand(newWatchCmd())

	return cmd
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run status passes on SCHEDULE and serve the latest result on LISTEN_ADDR",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			if err := a.Watch(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			slog.Info("Watch stopped gracefully")
			return nil
		},
	}
}

// newApp loads the configuration and installs the configured logger.
func newApp(cmd *cobra.Command) (*app.App, error) {
	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}

	log := logger.NewLogger(cfg.LogLevel, cfg.LogFormat == "json")
	log.Info("Logger initialized", "level", cfg.LogLevel, "format", cfg.LogFormat)

	return app.New(cfg, log), nil
}
