package task

import (
	"fmt"
	"time"

	tperrors "github.com/vnykmshr/taskprocessor/pkg/common/errors"
)

// Status is the outcome of processing a task.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
	StatusTimeout Status = "TIMEOUT"
)

// Output keys with fixed meaning.
const (
	OutputError     = "error"
	OutputErrorKind = "error_kind"
)

// Result is the record a worker produces for a dequeued task.
type Result struct {
	TaskID      string         `json:"taskId" cbor:"taskId"`
	Status      Status         `json:"status" cbor:"status"`
	Output      map[string]any `json:"output" cbor:"output"`
	CompletedAt time.Time      `json:"completedAt" cbor:"completedAt"`
	ProcessorID string         `json:"processorId" cbor:"processorId"`
}

// Success builds a SUCCESS result.
func Success(taskID string, output map[string]any) Result {
	if output == nil {
		output = make(map[string]any)
	}
	return Result{TaskID: taskID, Status: StatusSuccess, Output: output}
}

// Failure builds a FAILURE result whose output carries the error text.
func Failure(taskID string, err error) Result {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Result{
		TaskID: taskID,
		Status: StatusFailure,
		Output: map[string]any{OutputError: msg},
	}
}

// ClassifiedFailure builds a FAILURE result tagged with an error kind.
func ClassifiedFailure(taskID, kind, description string) Result {
	return Result{
		TaskID: taskID,
		Status: StatusFailure,
		Output: map[string]any{
			OutputError:     description,
			OutputErrorKind: kind,
		},
	}
}

// Timeout builds a TIMEOUT result. Its error text wraps ErrTimeout.
func Timeout(taskID string) Result {
	return Result{
		TaskID: taskID,
		Status: StatusTimeout,
		Output: map[string]any{OutputError: fmt.Errorf("%w: task exceeded its time budget", tperrors.ErrTimeout).Error()},
	}
}

// Err returns the recorded error text for non-successful results.
func (r Result) Err() string {
	if r.Status == StatusSuccess {
		return ""
	}
	if msg, ok := r.Output[OutputError].(string); ok {
		return msg
	}
	return string(r.Status)
}

func (r Result) String() string {
	return fmt.Sprintf("Result{task=%s, status=%s, processor=%s}", r.TaskID, r.Status, r.ProcessorID)
}
