package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"journalsync/metrics"
	"journalsync/models"
)

const (
	NoSummary     = "No summary available"
	SummaryFailed = "Error generating summary"

	defaultUser         = "Me"
	defaultCalledNumber = "Journal Service"
	defaultAgent        = "Journal Assistant"
	defaultStatus       = "Completed"
)

// Normalizer turns webhook and history payloads into JournalEntry values.
type Normalizer struct {
	summarizer Summarizer
	logger     *slog.Logger
	metrics    *metrics.Metrics
	loc        *time.Location
	now        func() time.Time
}

type NormalizerOption func(*Normalizer)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) NormalizerOption {
	return func(n *Normalizer) { n.now = now }
}

func WithLocation(loc *time.Location) NormalizerOption {
	return func(n *Normalizer) { n.loc = loc }
}

func WithNormalizerMetrics(m *metrics.Metrics) NormalizerOption {
	return func(n *Normalizer) { n.metrics = m }
}

// NewNormalizer builds a Normalizer. A nil summarizer disables summarization.
func NewNormalizer(summarizer Summarizer, logger *slog.Logger, opts ...NormalizerOption) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Normalizer{
		summarizer: summarizer,
		logger:     logger,
		loc:        time.Local,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// draft is the mutable working copy; Normalize returns it as a value.
type draft struct {
	id            string
	createdAt     any
	duration      float64
	conversation  string
	hasTranscript bool
	user          string
	calledNumber  string
	agentID       string
	status        string
}

// Normalize never fails: unknown layouts and malformed fields degrade to
// defaults, so every entry has an ID and a Date.
func (n *Normalizer) Normalize(ctx context.Context, payload map[string]any) (entry models.JournalEntry) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("normalize panicked, using minimal entry", "panic", fmt.Sprint(r))
			now := n.now().In(n.loc)
			entry = models.JournalEntry{
				ID:           n.syntheticID(),
				CreatedAt:    now.Format(time.RFC3339),
				Date:         models.FormatDate(now),
				Conversation: NoTranscript,
				Summary:      NoSummary,
				Shape:        "unknown",
			}
		}
	}()

	if payload == nil {
		payload = map[string]any{}
	}
	sh := classify(payload)
	d := n.mapShape(sh)
	n.logger.Debug("payload classified", "shape", sh.shapeName(), "id", d.id)
	n.metrics.ObserveShape(sh.shapeName())

	if strings.TrimSpace(d.id) == "" {
		d.id = n.syntheticID()
	}

	entry = models.JournalEntry{
		ID:           d.id,
		Duration:     d.duration,
		Conversation: d.conversation,
		User:         d.user,
		CalledNumber: d.calledNumber,
		AgentID:      d.agentID,
		Status:       d.status,
		Shape:        sh.shapeName(),
	}
	entry.CreatedAt, entry.Date = n.resolveDate(d.createdAt)

	if cd := ExtractCollectedData(payload); cd != nil {
		n.logger.Debug("collected data found", "id", entry.ID)
		mergeCollected(&entry, cd)
	}

	entry.Summary = n.resolveSummary(ctx, payload, entry.Conversation, d.hasTranscript, entry.ID)
	return entry
}

func (n *Normalizer) mapShape(sh shape) draft {
	switch s := sh.(type) {
	case callTranscript:
		return draft{
			id:           s.CallID,
			createdAt:    s.Timestamp,
			duration:     s.Duration,
			conversation: RenderTranscript(s.Transcript),
			user:         defaultStr(s.Caller, defaultUser),
			agentID:      defaultStr(s.AgentID, defaultAgent),
		}.withTranscript()

	case conversationMessages:
		return draft{
			id:           s.ID,
			createdAt:    s.CreatedAt,
			duration:     pickNumber(s.Metadata, "call_duration"),
			conversation: RenderTranscript(s.Conversation),
			user:         pickStrDefault(s.Metadata, defaultUser, "caller_id"),
			calledNumber: pickStrDefault(s.Metadata, defaultCalledNumber, "called_number"),
		}.withTranscript()

	case telephony:
		return draft{
			id:           s.CallSID,
			createdAt:    s.Timestamp,
			duration:     pickNumber(s.CallData, "duration"),
			conversation: RenderTranscript(s.CallData["transcript"]),
			user:         defaultStr(s.CallerID, defaultUser),
			calledNumber: defaultStr(s.CalledNumber, defaultCalledNumber),
			agentID:      defaultStr(s.AgentID, defaultAgent),
			status:       pickStrDefault(s.CallData, defaultStatus, "status"),
		}.withTranscript()

	case historyTranscript:
		conv := RenderTranscript(s.Transcript)
		if conv == "" {
			conv = s.Text
		}
		return draft{
			id:           s.HistoryItemID,
			createdAt:    s.Date,
			duration:     s.Duration,
			conversation: conv,
			user:         pickStrDefault(s.CallDetails, defaultUser, "caller"),
			calledNumber: pickStrDefault(s.CallDetails, defaultCalledNumber, "recipient"),
			status:       pickStrDefault(s.CallDetails, defaultStatus, "status"),
		}.withTranscript()

	case completionEvent:
		createdAt := pick(s.Call, "created_at")
		if createdAt == nil {
			createdAt = pick(s.Top, "timestamp")
		}
		duration := pickNumber(s.Call, "duration")
		if duration == 0 {
			duration = pickNumber(s.Top, "duration")
		}
		return draft{
			id:           firstNonEmpty(pickStr(s.Call, "id"), pickStr(s.Top, "call_id")),
			createdAt:    createdAt,
			duration:     duration,
			conversation: RenderTranscript(s.Transcript),
			user:         firstNonEmpty(pickStr(s.Call, "caller_id"), pickStr(s.Top, "caller"), defaultUser),
			calledNumber: firstNonEmpty(pickStr(s.Call, "called_number"), pickStr(s.Top, "called"), defaultCalledNumber),
			status:       "completed",
		}.withTranscript()

	case convaiConversation:
		return draft{
			id:           s.ConversationID,
			createdAt:    pick(s.Metadata, "start_time_unix_secs", "start_time"),
			duration:     pickNumber(s.Metadata, "call_duration_secs", "call_duration"),
			conversation: RenderTranscript(s.Transcript),
			user:         defaultUser,
			calledNumber: defaultCalledNumber,
			agentID:      pickStr(s.Metadata, "agent_id"),
			status:       defaultStr(s.Status, defaultStatus),
		}.withTranscript()

	case unknownShape:
		p := s.Payload
		n.logger.Info("unknown payload format, scavenging basic fields", "keys", len(p))
		raw := pick(p, "transcript", "text", "conversation")
		conv := RenderTranscript(raw)
		d := draft{
			id:           pickStr(p, "call_id", "id", "call_sid", "history_item_id", "conversation_id"),
			createdAt:    pick(p, "timestamp", "created_at", "date"),
			duration:     pickNumber(p, "duration", "call_duration", "character_count_change_from"),
			conversation: conv,
		}.withTranscript()
		if !d.hasTranscript {
			d.conversation = NoTranscript
		}
		return d

	default:
		return draft{}
	}
}

func (d draft) withTranscript() draft {
	d.hasTranscript = strings.TrimSpace(d.conversation) != ""
	return d
}

// resolveDate returns created_at and the formatted date, falling back to now.
func (n *Normalizer) resolveDate(v any) (string, string) {
	if t, ok := timestampFromValue(v, n.loc); ok {
		createdAt := stringOf(v)
		if _, isString := v.(string); !isString {
			createdAt = t.Format(time.RFC3339)
		}
		return createdAt, models.FormatDate(t)
	}
	if v != nil {
		n.logger.Warn("unparseable timestamp, using processing time", "value", stringOf(v))
	}
	now := n.now().In(n.loc)
	return GetCurrentTimestamp(now), models.FormatDate(now)
}

func (n *Normalizer) resolveSummary(ctx context.Context, p map[string]any, conversation string, hasTranscript bool, id string) string {
	if s := firstNonEmpty(pickStr(p, "summary", "call_summary"), pickStr(object(p, "analysis"), "transcript_summary")); s != "" {
		return s
	}
	if !hasTranscript || n.summarizer == nil {
		return NoSummary
	}
	summary, err := n.summarizer.Summarize(ctx, conversation)
	if err != nil {
		n.logger.Warn("summarizer failed", "id", id, "err", err)
		n.metrics.SummarizerFailed()
		return SummaryFailed
	}
	if strings.TrimSpace(summary) == "" {
		return NoSummary
	}
	return strings.TrimSpace(summary)
}

func (n *Normalizer) syntheticID() string {
	return fmt.Sprintf("journal-%d-%s", n.now().Unix(), uuid.NewString()[:8])
}

func mergeCollected(e *models.JournalEntry, cd *CollectedData) {
	if cd.MajorEvents != "" {
		e.MajorEvents = cd.MajorEvents
	}
	if cd.Mood != "" {
		e.Mood = cd.Mood
	}
	if cd.Insights != "" {
		e.Insights = cd.Insights
	}
	if cd.ActionItems != "" {
		e.ActionItems = cd.ActionItems
	}
}

func defaultStr(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
