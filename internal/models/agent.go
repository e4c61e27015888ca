package models

import "time"

// SessionState is the orchestration state of one receipt.
type SessionState string

const (
	StateInit    SessionState = "INIT"
	StateLooping SessionState = "LOOPING"
	StateDone    SessionState = "DONE"
	StateFailed  SessionState = "FAILED"
)

// AgentTurn is one parsed model response.
type AgentTurn struct {
	Reasoning  string                 `json:"reasoning,omitempty"`
	ToolName   string                 `json:"toolName"`
	Parameters map[string]interface{} `json:"parameters"`
	IsFinal    bool                   `json:"isFinal"`
}

// ToolInvocationResult is fed back to the model on the next turn.
type ToolInvocationResult struct {
	ToolName  string        `json:"toolName"`
	Success   bool          `json:"success"`
	Payload   interface{}   `json:"payload,omitempty"`
	Error     string        `json:"error,omitempty"`
	ErrorCode string        `json:"errorCode,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// HistoryEntry is one step of a session transcript.
type HistoryEntry struct {
	Turn     int                   `json:"turn"`
	Raw      string                `json:"raw,omitempty"`
	Parsed   *AgentTurn            `json:"parsed,omitempty"`
	Result   *ToolInvocationResult `json:"result,omitempty"`
	RecordAt time.Time             `json:"recordedAt"`
}
