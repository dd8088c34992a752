package models

// RunStatus represents the outcome of a program run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusComplete  RunStatus = "complete"
	RunStatusCancelled RunStatus = "cancelled"
	RunStatusError     RunStatus = "error"
)

// RunEventType names the signals a run sends to the UI.
type RunEventType string

const (
	RunEventStatus    RunEventType = "status"
	RunEventOutput    RunEventType = "output"
	RunEventError     RunEventType = "error"
	RunEventTelemetry RunEventType = "telemetry"
	RunEventCompleted RunEventType = "completed"
)

// RunInfo represents one execution of a compiled artifact on a board.
type RunInfo struct {
	ID          string     `json:"id"`
	Host        string     `json:"host"`
	TargetIndex int        `json:"targetIndex"`
	Backend     string     `json:"backend"`
	Artifact    string     `json:"artifact"`
	Status      RunStatus  `json:"status"`
	State       string     `json:"state"`
	StartTime   int64      `json:"startTime,omitempty"` // Unix ms
	EndTime     int64      `json:"endTime,omitempty"`   // Unix ms
	Error       string     `json:"error,omitempty"`
	OutputBytes int        `json:"outputBytes"`
	Telemetry   *Telemetry `json:"telemetry,omitempty"`
}

// RunEvent is one signal emitted by a run, in emission order.
type RunEvent struct {
	RunID     string       `json:"runId"`
	Seq       int          `json:"seq"`
	Type      RunEventType `json:"type"`
	Text      string       `json:"text,omitempty"`
	Telemetry *Telemetry   `json:"telemetry,omitempty"`
	OK        bool         `json:"ok"`
	Time      int64        `json:"time"` // Unix ms
}

// NewRunInfo creates a RunInfo in pending status.
func NewRunInfo(id, host string, targetIndex int) *RunInfo {
	return &RunInfo{
		ID:          id,
		Host:        host,
		TargetIndex: targetIndex,
		Status:      RunStatusPending,
	}
}

// Finished reports whether the run reached a terminal status.
func (r *RunInfo) Finished() bool {
	switch r.Status {
	case RunStatusComplete, RunStatusCancelled, RunStatusError:
		return true
	}
	return false
}

// Clone returns a shallow copy. Telemetry records are replaced, never mutated.
func (r *RunInfo) Clone() *RunInfo {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
