package stream

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type enumerates the streamed event kinds.
type Type string

const (
	TypeStarted       Type = "started"
	TypeToolStarted   Type = "tool_started"
	TypeToolCompleted Type = "tool_completed"
	TypeProgress      Type = "progress"
	TypeCompleted     Type = "completed"
	TypeError         Type = "error"

	TypeDebateStarted    Type = "debate_started"
	TypeBullDrafting     Type = "bull_drafting"
	TypeBearDrafting     Type = "bear_drafting"
	TypeBullComplete     Type = "bull_complete"
	TypeBearComplete     Type = "bear_complete"
	TypeRebuttalRound    Type = "rebuttal_round"
	TypeSynthesisStarted Type = "synthesis_started"
	TypeDebateCompleted  Type = "debate_completed"
)

// Event is one progress update in a streamed run. Progress is monotone
// non-decreasing over a stream and reaches exactly 1.0 on the terminal
// completed event.
type Event struct {
	Type      Type        `json:"type"`
	Tool      string      `json:"tool,omitempty"`
	Progress  float64     `json:"progress"`
	Message   string      `json:"message,omitempty"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// NewEvent stamps an event with the current time.
func NewEvent(t Type, progress float64, message string) Event {
	return Event{
		Type:      t,
		Progress:  progress,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// WithTool attaches the tool name.
func (e Event) WithTool(tool string) Event {
	e.Tool = tool
	return e
}

// WithData attaches a payload.
func (e Event) WithData(data interface{}) Event {
	e.Data = data
	return e
}

// SSE renders the event as a server-sent-events frame.
func (e Event) SSE() string {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf("data: {\"type\":\"error\",\"message\":%q}\n\n", err.Error())
	}
	return fmt.Sprintf("data: %s\n\n", b)
}
