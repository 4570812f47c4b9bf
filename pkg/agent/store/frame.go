package store

// Frame is one activation record of a workflow (or sub-workflow) on
// the session stack.
type Frame struct {
	WorkflowID    string                 `json:"workflow_id"`
	CurrentStep   string                 `json:"current_step"`
	CollectedData map[string]interface{} `json:"collected_data"`

	// ReturnStep is set only for sub-workflow frames: the parent step
	// to resume when this frame reaches the complete sentinel.
	ReturnStep string `json:"return_step,omitempty"`

	// EntityKey is the key under which this frame's collected data is
	// injected into the parent frame on completion.
	EntityKey string `json:"entity_key,omitempty"`

	RetryCounts map[string]int `json:"retry_counts,omitempty"`
}

// NewFrame returns a frame positioned at the workflow's first step.
func NewFrame(workflowID, firstStep string) Frame {
	return Frame{
		WorkflowID:    workflowID,
		CurrentStep:   firstStep,
		CollectedData: make(map[string]interface{}),
		RetryCounts:   make(map[string]int),
	}
}

// Merge copies step result data into the frame's collected data.
func (f *Frame) Merge(data map[string]interface{}) {
	if f.CollectedData == nil {
		f.CollectedData = make(map[string]interface{})
	}
	for k, v := range data {
		f.CollectedData[k] = v
	}
}

// IncrementRetry bumps and returns the retry counter for a step.
func (f *Frame) IncrementRetry(step string) int {
	if f.RetryCounts == nil {
		f.RetryCounts = make(map[string]int)
	}
	f.RetryCounts[step]++
	return f.RetryCounts[step]
}

// IsSubflow reports whether this frame was pushed to resolve a
// prerequisite entity for a parent frame.
func (f *Frame) IsSubflow() bool {
	return f.ReturnStep != ""
}
