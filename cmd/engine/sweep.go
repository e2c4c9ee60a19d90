package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mathewevviai/diala-sub005/internal/db"
	"github.com/mathewevviai/diala-sub005/internal/jobs"
	"github.com/mathewevviai/diala-sub005/internal/workflow"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired workflows once and exit",
	Long:  `Delete workflows whose retention deadline has passed, along with their sources and embeddings. The serve command runs this periodically; sweep exists for cron-style deployments.`,
	RunE:  runSweep,
}

func init() {
	sweepCmd.Flags().StringVar(&serveConfig, "config", "", "Path to JSON config file")
	rootCmd.AddCommand(sweepCmd)
}

// nopDispatcher satisfies the engine's dispatcher; sweeping never starts jobs.
type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, *jobs.Job) error {
	return fmt.Errorf("dispatch not available in sweep mode")
}

func runSweep(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("config error: 'database_url' is required")
	}

	ctx := context.Background()
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	engine := workflow.NewEngine(database, jobs.NewRegistry(database), nopDispatcher{}, workflow.StaticTiers{})
	swept, err := engine.SweepExpired(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	fmt.Printf("Removed %d expired workflows\n", swept)
	return nil
}
