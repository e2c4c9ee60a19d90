package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mathewevviai/diala-sub005/internal/config"
	"github.com/mathewevviai/diala-sub005/internal/server"
)

var (
	servePort   int
	serveConfig string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes the job registry, entity cache, and workflow endpoints.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveConfig, "config", "", "Path to JSON config file")
	rootCmd.AddCommand(serveCmd)
}

// loadConfig merges the config file, environment, and defaults, in that
// order of precedence. Validation is left to each command.
func loadConfig() (config.Config, error) {
	cfg := config.Config{}
	if serveConfig != "" {
		loaded, err := config.LoadFile(serveConfig)
		if err != nil {
			return config.Config{}, err
		}
		cfg = *loaded
	}
	cfg.FromEnv()
	cfg = cfg.MergeWithDefaults(config.Defaults())
	if servePort != 0 {
		cfg.Port = servePort
	}
	return cfg, nil
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		Port:           cfg.Port,
		DatabaseURL:    cfg.DatabaseURL,
		WebhookSecret:  cfg.WebhookSecret,
		WorkerURL:      cfg.WorkerURL,
		WorkerSecret:   cfg.WorkerSecret,
		InlineWorker:   cfg.InlineWorker,
		ExportDir:      cfg.ExportDir,
		EmbeddingURL:   cfg.EmbeddingURL,
		EmbeddingModel: cfg.EmbeddingModel,
		SweepInterval:  cfg.SweepInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start()
}
