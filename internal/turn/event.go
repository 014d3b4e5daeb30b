package turn

import (
	"finsight/internal/agents"
	"finsight/internal/search"
)

// EventType names one step of the streamed turn protocol.
type EventType string

const (
	EventRouting               EventType = "routing"
	EventContextLookupStart    EventType = "context_lookup_start"
	EventContextLookupComplete EventType = "context_lookup_complete"
	EventAgentStart            EventType = "agent_start"
	EventHandoff               EventType = "handoff"
	EventAgentComplete         EventType = "agent_complete"
	EventResponse              EventType = "response"
	EventSources               EventType = "sources"
	EventAutoReferralResponse  EventType = "auto_referral_response"
	EventFollowUps             EventType = "follow_ups"
	EventDone                  EventType = "done"
	EventError                 EventType = "error"
)

// Event is one protocol step with its typed payload. Data marshals to the
// SSE data field.
type Event struct {
	Type EventType
	Data any
}

type RoutingData struct {
	AgentsToInvoke       []agents.Agent `json:"agents_to_invoke"`
	RoutingReasoning     string         `json:"routing_reasoning"`
	CanAnswerFromContext bool           `json:"can_answer_from_context"`
	NeedsContextLookup   bool           `json:"needs_context_lookup"`
}

type ContextLookupStartData struct {
	Query string `json:"query"`
}

type ContextLookupCompleteData struct {
	ResultCount int             `json:"result_count"`
	Results     []search.Result `json:"results"`
	Error       string          `json:"error,omitempty"`
}

type AgentStartData struct {
	Agent agents.Agent `json:"agent"`
}

type HandoffData struct {
	Agent   agents.Agent `json:"agent"`
	Message string       `json:"message"`
}

type AgentCompleteData struct {
	Agent        agents.Agent `json:"agent"`
	FindingCount int          `json:"finding_count"`
	Error        string       `json:"error,omitempty"`
}

type ResponseData struct {
	Text string `json:"text"`
}

type SourcesData struct {
	Sources []search.Result `json:"sources"`
}

type AutoReferralResponseData struct {
	Agent agents.Agent `json:"agent"`
	Text  string       `json:"text"`
}

type FollowUpsData struct {
	Chips []string `json:"chips"`
}

type DoneData struct {
	SessionID string `json:"session_id"`
}

type ErrorData struct {
	Message string `json:"message"`
}
