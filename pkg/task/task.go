package task

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	tperrors "github.com/vnykmshr/taskprocessor/pkg/common/errors"
)

// Type identifies which capability handles a task.
type Type string

const (
	TypeCompress   Type = "compress"
	TypeDecompress Type = "decompress"
	TypeScale      Type = "scale"
	TypeCustom     Type = "custom"
)

// Types lists every known task type.
func Types() []Type {
	return []Type{TypeCompress, TypeDecompress, TypeScale, TypeCustom}
}

// ParseType parses a task type name, ignoring case.
func ParseType(s string) (Type, error) {
	candidate := Type(strings.ToLower(strings.TrimSpace(s)))
	for _, t := range Types() {
		if t == candidate {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", tperrors.ErrUnknownType, s)
}

// Valid reports whether t is one of the known types.
func (t Type) Valid() bool {
	_, err := ParseType(string(t))
	return err == nil
}

func (t Type) String() string {
	return string(t)
}

// Task is an immutable work descriptor. Only the priority may change, and
// only before the task is submitted.
type Task struct {
	ID         string
	Type       Type
	Parameters map[string]any
	CreatedAt  time.Time

	priority  atomic.Int64
	submitted atomic.Bool
}

// New creates a task with a fresh random id.
func New(typ Type, params map[string]any, priority int) *Task {
	return NewWithID(uuid.NewString(), typ, params, priority)
}

// NewWithID creates a task with a caller-supplied id. An empty id is
// replaced with a fresh random one.
func NewWithID(id string, typ Type, params map[string]any, priority int) *Task {
	if id == "" {
		id = uuid.NewString()
	}
	if params == nil {
		params = make(map[string]any)
	}
	t := &Task{
		ID:         id,
		Type:       typ,
		Parameters: params,
		CreatedAt:  time.Now(),
	}
	t.priority.Store(int64(priority))
	return t
}

// Priority returns the task's current priority.
func (t *Task) Priority() int {
	return int(t.priority.Load())
}

// SetPriority changes the priority of a task that has not been submitted yet.
// It returns ErrClosed once the task is owned by a scheduler.
func (t *Task) SetPriority(p int) error {
	if t.submitted.Load() {
		return tperrors.NewOperationError("task", "SetPriority", tperrors.ErrClosed).
			WithContext("task " + t.ID + " already submitted")
	}
	t.priority.Store(int64(p))
	return nil
}

// MarkSubmitted freezes the priority. It returns false if the task was
// already marked.
func (t *Task) MarkSubmitted() bool {
	return t.submitted.CompareAndSwap(false, true)
}

// Submitted reports whether the task has been handed to a scheduler.
func (t *Task) Submitted() bool {
	return t.submitted.Load()
}

// Param returns a named parameter.
func (t *Task) Param(name string) (any, bool) {
	v, ok := t.Parameters[name]
	return v, ok
}

func (t *Task) String() string {
	return fmt.Sprintf("Task{id=%s, type=%s, priority=%d}", t.ID, t.Type, t.Priority())
}

// Compare orders tasks by priority only: it returns a positive number when a
// has the higher priority, negative when b does and zero on a tie.
func Compare(a, b *Task) int {
	pa, pb := a.Priority(), b.Priority()
	switch {
	case pa > pb:
		return 1
	case pa < pb:
		return -1
	default:
		return 0
	}
}

type wireTask struct {
	ID         string         `json:"id" cbor:"id"`
	Type       Type           `json:"type" cbor:"type"`
	Priority   int            `json:"priority" cbor:"priority"`
	CreatedAt  time.Time      `json:"createdAt" cbor:"createdAt"`
	Parameters map[string]any `json:"parameters" cbor:"parameters"`
}

func (t *Task) toWire() wireTask {
	return wireTask{
		ID:         t.ID,
		Type:       t.Type,
		Priority:   t.Priority(),
		CreatedAt:  t.CreatedAt,
		Parameters: t.Parameters,
	}
}

func (t *Task) fromWire(w wireTask) error {
	typ, err := ParseType(string(w.Type))
	if err != nil {
		return err
	}
	t.ID = w.ID
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Type = typ
	t.Parameters = w.Parameters
	if t.Parameters == nil {
		t.Parameters = make(map[string]any)
	}
	t.CreatedAt = w.CreatedAt
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	t.priority.Store(int64(w.Priority))
	return nil
}

// MarshalJSON encodes the task as {"id","type","priority","createdAt","parameters"}.
func (t *Task) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.toWire())
}

// UnmarshalJSON decodes a task. Missing ids and creation times are defaulted.
func (t *Task) UnmarshalJSON(data []byte) error {
	var w wireTask
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	return t.fromWire(w)
}

// MarshalCBOR encodes the task with the same field names as its JSON form.
func (t *Task) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(t.toWire())
}

// UnmarshalCBOR decodes a task from its CBOR form.
func (t *Task) UnmarshalCBOR(data []byte) error {
	var w wireTask
	if err := cbor.Unmarshal(data, &w); err != nil {
		return err
	}
	return t.fromWire(w)
}
