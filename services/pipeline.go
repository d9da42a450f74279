package services

import (
	"context"
	"fmt"
	"log/slog"

	"journalsync/config"
	"journalsync/metrics"
)

// NewSheetOpener picks the primary store for cfg.Store.Backend. "none"
// returns nil, which sends every batch to the CSV store.
func NewSheetOpener(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (SheetOpener, error) {
	switch cfg.Backend {
	case "dynamodb":
		client, err := GetDynamoDBClient(ctx, cfg.DynamoDB)
		if err != nil {
			return nil, err
		}
		return NewDynamoSheetOpener(client, cfg.DynamoDB.Table, logger), nil
	case "postgres":
		opener, err := NewPostgresSheetOpener(cfg.Postgres, logger)
		if err != nil {
			return nil, err
		}
		return opener, nil
	case "none", "csv":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Backend)
	}
}

// NewPipeline builds the ingestor from the process config. The history and
// conversation fetchers are only wired when an ElevenLabs key is present.
func NewPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*Ingestor, error) {
	summarizer := NewSummarizer(cfg.Summarizer)
	if summarizer == nil {
		logger.Warn("no summarizer credential, summaries will use a placeholder", "provider", cfg.Summarizer.Provider)
	}
	normalizer := NewNormalizer(summarizer, logger, WithNormalizerMetrics(m))

	opener, err := NewSheetOpener(ctx, cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("primary store: %w", err)
	}
	if opener != nil {
		logger.Info("primary store configured", "backend", opener.Name(), "sheet", cfg.Store.SheetName)
	}
	csvStore := NewCSVStore(cfg.Store.CSVFile, cfg.Store.MaxText, logger, m)
	persister := NewDedupPersistence(opener, csvStore, cfg.Store, logger, WithPersistenceMetrics(m))

	var (
		history HistoryFetcher
		fetcher ConversationFetcher
	)
	if cfg.RequireElevenLabs() == nil {
		history = NewRetrievalEngine(cfg.ElevenLabs, logger, WithRetrievalMetrics(m))
		fetcher = NewElevenLabsClient(cfg.ElevenLabs, logger)
	}

	return NewIngestor(normalizer, history, fetcher, persister, NewArchiver(cfg.Archive.Dir, logger), logger), nil
}
