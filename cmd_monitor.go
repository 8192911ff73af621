package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mochigome-git/plc-ping/internal/app"
	"github.com/mochigome-git/plc-ping/internal/logging"
	"github.com/mochigome-git/plc-ping/pkg/config"
)

func newMonitorCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Continuously check the configured PLCs",
		Long: `Read PLCs from the environment (PLC_HOST, SEC_PLC_HOST, PLC_TARGETS,
PLC_DEVICES_FILE), check them every MONITOR_INTERVAL_MS and publish each
result to MQTT_TOPIC + name. The status API listens on STATUS_PORT.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}

			logger, closer, err := logging.New(cfg.LogLevel, cfg.LogFile)
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.NewApplication(cfg, logger, nil)
			if err != nil {
				logger.Errorf("Error initializing application: %v", err)
				return err
			}
			return application.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", ".env.local", "dotenv file loaded before the environment")
	return cmd
}
