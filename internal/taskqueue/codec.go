package taskqueue

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedTask is returned by DecodeTask for rows that do not describe
// a runnable task.
var ErrMalformedTask = errors.New("taskqueue: malformed task")

// wireTask is the stored form of a Task. Times are kept as RFC 3339 with
// nanoseconds by encoding/json; the version guards future layout changes.
type wireTask struct {
	V    int  `json:"v"`
	Task Task `json:"task"`
}

const wireVersion = 1

// EncodeTask serializes t for the durable queues.
func EncodeTask(t Task) ([]byte, error) {
	return json.Marshal(wireTask{V: wireVersion, Task: t})
}

// DecodeTask parses data produced by EncodeTask.
func DecodeTask(data []byte) (*Task, error) {
	var w wireTask
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTask, err)
	}
	if w.V != wireVersion {
		return nil, fmt.Errorf("%w: version %d", ErrMalformedTask, w.V)
	}
	if w.Task.Type == TaskTypeRunSubmission && w.Task.JobID == "" {
		return nil, fmt.Errorf("%w: %s without a job id", ErrMalformedTask, w.Task.Type)
	}
	return &w.Task, nil
}
