// cmd/batch/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"journalsync/config"
	"journalsync/services"
)

var (
	cfgPath     string
	debug       bool
	interval    time.Duration
	webhookData string
)

var rootCmd = &cobra.Command{
	Use:   "journal-batch",
	Short: "Bulk and offline ingestion of voice journal entries",
	Long: `Sync ElevenLabs conversation history into the journal sheet, or replay a
saved webhook payload.

  journal-batch sync                       # fetch history once
  journal-batch sync --interval 10m        # keep syncing
  journal-batch ingest --webhook-data FILE # replay one payload
  journal-batch conversation <id>          # ingest one conversation by id`,
	SilenceUsage: true,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch the conversation history and store new entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		if err := cfg.RequireElevenLabs(); err != nil {
			return err
		}
		ingestor, err := services.NewPipeline(cmd.Context(), cfg, logger, nil)
		if err != nil {
			return err
		}

		logger.Info("Starting history sync...")
		if err := runSync(cmd, ingestor); err != nil {
			return err
		}
		if interval <= 0 {
			return nil
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-cmd.Context().Done():
				logger.Info("sync loop stopped")
				return nil
			case <-ticker.C:
				logger.Info("Starting scheduled history sync...")
				if err := runSync(cmd, ingestor); err != nil {
					logger.Error("scheduled sync failed", "err", err)
				}
			}
		}
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest one webhook payload from a JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if webhookData == "" {
			return errors.New("--webhook-data is required")
		}
		b, err := os.ReadFile(webhookData)
		if err != nil {
			return fmt.Errorf("read webhook data: %w", err)
		}
		var payload map[string]any
		if err := json.Unmarshal(b, &payload); err != nil || payload == nil {
			return fmt.Errorf("webhook data %s is not a JSON object", webhookData)
		}

		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		ingestor, err := services.NewPipeline(cmd.Context(), cfg, logger, nil)
		if err != nil {
			return err
		}
		result, err := ingestor.IngestPayload(cmd.Context(), payload)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Entry %s: %d rows written\n", result.Entry.ID, result.RowsAdded)
		return nil
	},
}

var conversationCmd = &cobra.Command{
	Use:   "conversation <id>",
	Short: "Fetch one conversation by id and store it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		if err := cfg.RequireElevenLabs(); err != nil {
			return err
		}
		ingestor, err := services.NewPipeline(cmd.Context(), cfg, logger, nil)
		if err != nil {
			return err
		}
		result, err := ingestor.IngestConversation(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Entry %s: %d rows written\n", result.Entry.ID, result.RowsAdded)
		return nil
	},
}

func runSync(cmd *cobra.Command, ingestor *services.Ingestor) error {
	n, err := ingestor.SyncHistory(cmd.Context())
	fmt.Fprintf(cmd.OutOrStdout(), "%d rows written\n", n)
	return err
}

func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	if debug {
		cfg.Server.Debug = true
	}
	return cfg, cfg.NewLogger(), nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yml", "Path to YAML config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	syncCmd.Flags().DurationVar(&interval, "interval", 0, "Repeat the sync at this interval (0 runs once)")
	ingestCmd.Flags().StringVar(&webhookData, "webhook-data", "", "Path to a JSON webhook payload")

	rootCmd.AddCommand(syncCmd, ingestCmd, conversationCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
