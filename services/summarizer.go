package services

import (
	"context"
	"fmt"

	"journalsync/config"
)

// Summarizer condenses a rendered journal conversation.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

const summarySystemPrompt = "You are a helpful assistant that creates concise summaries of personal journal entries."

func summaryPrompt(text string) string {
	return fmt.Sprintf(`Below is a transcript of a personal journal entry. Please create a concise summary (maximum 100 words) that captures:
1. The main events or activities from the day
2. Key insights, reflections, or realizations
3. Any goals, intentions, or action items mentioned
4. Notable emotional states or moods

Transcript:
%s`, text)
}

// NewSummarizer returns the configured provider, or nil when its credential is
// missing; a nil Summarizer makes the normalizer fall back to a placeholder.
func NewSummarizer(cfg config.SummarizerConfig) Summarizer {
	switch cfg.Provider {
	case "perplexity":
		if cfg.PerplexityAPIKey == "" {
			return nil
		}
		return NewPerplexitySummarizer(cfg)
	default:
		if cfg.OpenAIAPIKey == "" {
			return nil
		}
		return NewOpenAISummarizer(cfg)
	}
}
