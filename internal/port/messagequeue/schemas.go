package messagequeue

// TaskInterruptPayload is the schema for tasks.interrupt messages.
type TaskInterruptPayload struct {
	TaskID  string `json:"task_id"`
	Message string `json:"message"`
}

// TaskCancelPayload is the schema for tasks.cancel messages.
type TaskCancelPayload struct {
	TaskID string `json:"task_id"`
	Reason string `json:"reason,omitempty"`
}

// TaskStartPayload is the schema for tasks.start messages.
type TaskStartPayload struct {
	Prompt     string            `json:"prompt"`
	StepMode   *bool             `json:"step_mode,omitempty"`
	ResumeFrom string            `json:"resume_from,omitempty"`
	Context    map[string]string `json:"context,omitempty"`
}
