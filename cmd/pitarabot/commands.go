package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/m3rciful/pitarabot/core/bootstrap"
	"github.com/m3rciful/pitarabot/core/buildinfo"
	corecmd "github.com/m3rciful/pitarabot/core/cmd"
	"github.com/m3rciful/pitarabot/core/config"
	"github.com/m3rciful/pitarabot/core/database"
	"github.com/m3rciful/pitarabot/core/logger"
	"github.com/m3rciful/pitarabot/core/telegram"
)

type rootFlags struct {
	configPath string
	dotenvPath string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "pitarabot",
		Short:         "Telegram front-end for the e-Jaadui Pitara question answering API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(flags)
		},
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "YAML config file (default $CONFIG_PATH)")
	root.PersistentFlags().StringVar(&flags.dotenvPath, "env-file", ".env", "dotenv file loaded before the environment")

	root.AddCommand(
		newServeCmd(flags),
		newMigrateCmd(flags),
		newWebhookCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot in the configured mode (webhook or longpoll)",
		RunE: func(*cobra.Command, []string) error {
			return serve(flags)
		},
	}
}

func serve(flags *rootFlags) error {
	return corecmd.Run(corecmd.Options{
		ConfigPath: flags.configPath,
		DotEnvPath: flags.dotenvPath,
		Bootstrap: func(ctx context.Context, cfg *config.Config) (corecmd.TelegramApp, error) {
			return bootstrap.Run(ctx, bootstrap.Options{Config: cfg})
		},
	})
}

// loadConfig prepares config and logging for the one-shot commands.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	if err := config.LoadDotEnv(flags.dotenvPath); err != nil {
		return nil, err
	}
	cfg, err := config.Load(corecmd.ResolveConfigPath(flags.configPath, ""))
	if err != nil {
		return nil, err
	}
	if err := logger.InitLogger(cfg.Logging); err != nil {
		return nil, err
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newMigrateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres session store migrations",
		RunE: func(*cobra.Command, []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Shutdown() }()

			pg := cfg.Session.Postgres
			pg.Normalize()
			if err := pg.Validate(); err != nil {
				return fmt.Errorf("session.postgres: %w", err)
			}
			ctx, cancel := signalContext()
			defer cancel()
			return database.RunMigrations(ctx, pg)
		},
	}
}

func newWebhookCmd(flags *rootFlags) *cobra.Command {
	var drop bool
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Manage the Telegram webhook registration",
	}
	set := &cobra.Command{
		Use:   "set",
		Short: "Point Telegram at <TELEGRAM_BASE_URL>/telegram",
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Shutdown() }()
			bot, err := bootstrap.NewBot(cfg, nil)
			if err != nil {
				return err
			}
			if err := telegram.SetWebhook(c.Context(), bot, cfg.Telegram.WebhookBaseURL, drop); err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), telegram.WebhookURL(cfg.Telegram.WebhookBaseURL))
			return nil
		},
	}
	del := &cobra.Command{
		Use:   "delete",
		Short: "Remove the webhook so the bot can long-poll",
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Shutdown() }()
			bot, err := bootstrap.NewBot(cfg, nil)
			if err != nil {
				return err
			}
			return telegram.DeleteWebhook(c.Context(), bot, drop)
		},
	}
	cmd.PersistentFlags().BoolVar(&drop, "drop-pending", false, "discard updates Telegram has queued")
	cmd.AddCommand(set, del)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(c *cobra.Command, _ []string) {
			fmt.Fprintf(c.OutOrStdout(), "pitarabot %s\n", buildinfo.String())
		},
	}
}
