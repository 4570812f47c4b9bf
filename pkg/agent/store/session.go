package store

import "time"

// Strategy describes the top-level mode used to handle a turn.
const (
	StrategyQuickAction    = "quick_action"
	StrategyGuidedFlow     = "guided_flow"
	StrategyAgentMode      = "agent_mode"
	StrategyConversational = "conversational"
)

const (
	// HistoryCapacity bounds the conversation window kept per session.
	HistoryCapacity = 10

	// MaxStackDepth bounds nested sub-workflow frames.
	MaxStackDepth = 5
)

// Message is one entry of the bounded conversation window.
type Message struct {
	Role    string `json:"role"` // "user" | "assistant"
	Content string `json:"content"`
}

// Choice is an option surfaced to the user when the agent needs a
// human decision (e.g. ambiguous entity resolution).
type Choice struct {
	ID    string                 `json:"id"`
	Label string                 `json:"label"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

// Session is the per-conversation agent state. It must survive a JSON
// round-trip losslessly: the workflow engine re-derives all behavior
// from the loaded session, nothing lives in process memory between
// turns.
type Session struct {
	ID            string                 `json:"id"`
	UserID        string                 `json:"user_id"`
	Strategy      string                 `json:"strategy"`
	History       []Message              `json:"history"`
	WorkflowStack []Frame                `json:"workflow_stack"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// NewSession returns a fresh conversational session.
func NewSession(id, userID string) *Session {
	return &Session{
		ID:       id,
		UserID:   userID,
		Strategy: StrategyConversational,
	}
}

// AppendHistory adds a message to the conversation window, evicting
// the oldest entry once HistoryCapacity is reached.
func (s *Session) AppendHistory(role, content string) {
	s.History = append(s.History, Message{Role: role, Content: content})
	if len(s.History) > HistoryCapacity {
		s.History = s.History[len(s.History)-HistoryCapacity:]
	}
}

// ActiveFrame returns a pointer to the top of the workflow stack, or
// nil when no workflow is in flight.
func (s *Session) ActiveFrame() *Frame {
	if len(s.WorkflowStack) == 0 {
		return nil
	}
	return &s.WorkflowStack[len(s.WorkflowStack)-1]
}

// FrameAt returns a pointer to the frame at the given index. The
// engine always transitions the frame that executed a step, addressed
// by index, never "whatever is on top now".
func (s *Session) FrameAt(idx int) *Frame {
	if idx < 0 || idx >= len(s.WorkflowStack) {
		return nil
	}
	return &s.WorkflowStack[idx]
}

// PushFrame pushes a frame, enforcing MaxStackDepth.
func (s *Session) PushFrame(f Frame) error {
	if len(s.WorkflowStack) >= MaxStackDepth {
		return &StackOverflowError{Depth: len(s.WorkflowStack) + 1, Max: MaxStackDepth}
	}
	s.WorkflowStack = append(s.WorkflowStack, f)
	return nil
}

// PopFrame removes and returns the top frame.
func (s *Session) PopFrame() (Frame, bool) {
	if len(s.WorkflowStack) == 0 {
		return Frame{}, false
	}
	f := s.WorkflowStack[len(s.WorkflowStack)-1]
	s.WorkflowStack = s.WorkflowStack[:len(s.WorkflowStack)-1]
	return f, true
}

// ClearStack drops every frame (cancellation, fatal abort).
func (s *Session) ClearStack() {
	s.WorkflowStack = nil
}

// StackDepth returns the number of frames in flight.
func (s *Session) StackDepth() int {
	return len(s.WorkflowStack)
}
