package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tenantsync/internal/app"
	"github.com/ajitpratap0/tenantsync/internal/connector"
	"github.com/ajitpratap0/tenantsync/internal/connector/microsoft"
	"github.com/ajitpratap0/tenantsync/pkg/config"
	"github.com/ajitpratap0/tenantsync/pkg/logger"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "tenantsync",
		Short: "tenantsync - multi-tenant connector lifecycle supervisor",
		Long: `tenantsync keeps one live connector per organization and source, reacts to
lifecycle events from the message bus and resumes sync work after a restart.`,
		SilenceUsage: true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tenantsync v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	var configFile string

	connectorsCmd := &cobra.Command{
		Use:   "connectors",
		Short: "List connector sources and lifecycle events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			fmt.Println("Connector sources:")
			for _, def := range microsoft.Definitions(microsoft.OptionsFromConfig(cfg.Graph), zap.NewNop()) {
				fmt.Printf("  - %s (config node %q, fields %v)\n", def.Source, def.ConfigName,
					append(append([]string(nil), connector.BaseFields...), def.RequiredFields...))
			}
			fmt.Println("\nSync services:")
			for _, source := range []connector.Source{connector.SourceDrive, connector.SourceGmail} {
				fmt.Printf("  - %s\n", source)
			}
			return nil
		},
	}
	connectorsCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to YAML configuration file")
	root.AddCommand(connectorsCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the lifecycle supervisor",
		Long: `Start messaging, the HTTP health and metrics endpoints and the startup resume,
then handle lifecycle events until SIGINT or SIGTERM.

Example:
  tenantsync serve --config tenantsync.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configFile)
		},
	}
	serveCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to YAML configuration file")
	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Encoding:    cfg.Logging.Encoding,
		Development: cfg.Logging.Development,
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get().With(zap.String("version", version))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log, app.Options{Version: version})
	if err != nil {
		log.Error("failed to assemble service", zap.Error(err))
		return err
	}

	if err := a.Run(ctx); err != nil {
		log.Error("tenantsync exited with errors", zap.Error(err))
		return err
	}
	return nil
}
