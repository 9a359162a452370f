package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"racedash/fx/racedashfx"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard session API",
	Long: `Run the HTTP session API. Each POST /v1/sessions uploads a dataset and
opens a dashboard session with its own result cache; clients then report
viewport changes and read chart states.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen port (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	overrides := map[string]string{}
	if servePort != "" {
		overrides["PORT"] = servePort
	}
	cfg, err := loadConfig(cmd.Context(), overrides)
	if err != nil {
		return err
	}

	app := fx.New(
		fx.Supply(cfg),
		racedashfx.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}
