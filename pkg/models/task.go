package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Completion status values reported by workers.
const (
	StatusPassed = "Passed"
	StatusFailed = "Failed"
)

// Task is one dispatched benchmark assignment: a single (worker, job file)
// pair within a wave. The queue name is always the target worker's id.
type Task struct {
	ID          string    `json:"task_id"`
	Filename    string    `json:"filename"`
	WaveID      string    `json:"wave_id"`
	TriggeredAt time.Time `json:"triggered_at"`
	Queue       string    `json:"queue"`
}

// NewTask builds a task for workerID carrying the wave's correlation id and
// trigger timestamp.
func NewTask(filename string, wave Wave, workerID string) Task {
	return Task{
		ID:          uuid.NewString(),
		Filename:    filename,
		WaveID:      wave.ID,
		TriggeredAt: wave.TriggeredAt,
		Queue:       workerID,
	}
}

// Completion is the tagged payload a worker publishes after executing one
// task. Result holds the benchmark's native JSON document unchanged; Error
// carries the failure payload when Status is StatusFailed.
type Completion struct {
	Status      string          `json:"status"`
	WorkerID    string          `json:"worker_id"`
	WorkerGroup string          `json:"worker_group"`
	Hostname    string          `json:"hostname"`
	WaveID      string          `json:"wave_id"`
	TriggeredAt time.Time       `json:"timestamp"`
	Filename    string          `json:"filename"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
}
