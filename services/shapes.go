package services

import "strings"

// shape is the closed set of payload layouts the normalizer understands.
// Every variant carries only the fields its mapping reads.
type shape interface {
	shapeName() string
}

// Shape A: {"call_id", "transcript": "<text>"}
type callTranscript struct {
	CallID     string
	Transcript string
	Timestamp  any
	Duration   float64
	Caller     string
	AgentID    string
}

// Shape B: {"id", "conversation": {"messages": [...]}, "metadata": {...}}
type conversationMessages struct {
	ID           string
	Conversation map[string]any
	CreatedAt    any
	Metadata     map[string]any
}

// Shape C: {"call_sid", "call_data": {...}}
type telephony struct {
	CallSID      string
	CallData     map[string]any
	Timestamp    any
	CallerID     string
	CalledNumber string
	AgentID      string
}

// Shape D: {"history_item_id", "transcript": [...], "call_details": {...}}
type historyTranscript struct {
	HistoryItemID string
	Transcript    []any
	Text          string
	Date          any
	Duration      float64
	CallDetails   map[string]any
}

// Shape E: {"event": "...complete|end|disconnect...", "call"|"data": {...}}
type completionEvent struct {
	Event      string
	Call       map[string]any
	Transcript any
	Top        map[string]any
}

// Shape F: ElevenLabs ConvAI conversation details.
type convaiConversation struct {
	ConversationID string
	Transcript     []any
	Status         string
	Metadata       map[string]any
	Analysis       map[string]any
}

// unknownShape scavenges whatever it can from the raw payload.
type unknownShape struct {
	Payload map[string]any
}

func (callTranscript) shapeName() string       { return "call_transcript" }
func (conversationMessages) shapeName() string { return "conversation_messages" }
func (telephony) shapeName() string            { return "telephony" }
func (historyTranscript) shapeName() string    { return "history_transcript" }
func (completionEvent) shapeName() string      { return "completion_event" }
func (convaiConversation) shapeName() string   { return "convai_conversation" }
func (unknownShape) shapeName() string         { return "unknown" }

var completionVocabulary = []string{"complete", "end", "disconnect"}

// IsCompletionEvent reports whether an event name closes a conversation.
func IsCompletionEvent(event string) bool {
	event = strings.ToLower(event)
	for _, w := range completionVocabulary {
		if strings.Contains(event, w) {
			return true
		}
	}
	return false
}

// classify picks the first matching variant. Matchers are ordered from the
// most distinctive key set; new variants go at the end.
func classify(p map[string]any) shape {
	if p == nil {
		return unknownShape{Payload: map[string]any{}}
	}

	if t, ok := p["transcript"].(string); ok && has(p, "call_id") {
		return callTranscript{
			CallID:     stringOf(p["call_id"]),
			Transcript: t,
			Timestamp:  pick(p, "timestamp"),
			Duration:   pickNumber(p, "duration"),
			Caller:     pickStr(p, "caller"),
			AgentID:    pickStr(p, "agent_id"),
		}
	}

	if conv := object(p, "conversation"); conv != nil && has(p, "id") {
		if _, ok := list(conv, "messages"); ok {
			return conversationMessages{
				ID:           stringOf(p["id"]),
				Conversation: conv,
				CreatedAt:    pick(p, "created_at"),
				Metadata:     object(p, "metadata"),
			}
		}
	}

	if cd := object(p, "call_data"); cd != nil && has(p, "call_sid") {
		return telephony{
			CallSID:      stringOf(p["call_sid"]),
			CallData:     cd,
			Timestamp:    pick(p, "timestamp"),
			CallerID:     pickStr(p, "caller_id"),
			CalledNumber: pickStr(p, "called_number"),
			AgentID:      pickStr(p, "agent_id"),
		}
	}

	if tr, ok := list(p, "transcript"); ok && has(p, "history_item_id") {
		return historyTranscript{
			HistoryItemID: stringOf(p["history_item_id"]),
			Transcript:    tr,
			Text:          pickStr(p, "text"),
			Date:          pick(p, "date"),
			Duration:      pickNumber(p, "character_count_change_from"),
			CallDetails:   object(p, "call_details"),
		}
	}

	if ev, ok := p["event"].(string); ok && IsCompletionEvent(ev) {
		call := object(p, "call")
		if len(call) == 0 {
			call = object(p, "data")
		}
		tr := pick(p, "transcript")
		if tr == nil {
			tr = pick(call, "transcript")
		}
		return completionEvent{Event: ev, Call: call, Transcript: tr, Top: p}
	}

	if tr, ok := list(p, "transcript"); ok && has(p, "conversation_id") {
		return convaiConversation{
			ConversationID: stringOf(p["conversation_id"]),
			Transcript:     tr,
			Status:         pickStr(p, "status"),
			Metadata:       object(p, "metadata"),
			Analysis:       object(p, "analysis"),
		}
	}

	return unknownShape{Payload: p}
}
