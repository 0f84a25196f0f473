package task

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/vnykmshr/taskprocessor/internal/testutil"
	tperrors "github.com/vnykmshr/taskprocessor/pkg/common/errors"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{"compress", TypeCompress, false},
		{"DECOMPRESS", TypeDecompress, false},
		{" Scale ", TypeScale, false},
		{"custom", TypeCustom, false},
		{"resize", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseType(tt.in)
			if tt.wantErr {
				if !errors.Is(err, tperrors.ErrUnknownType) {
					t.Fatalf("expected ErrUnknownType, got %v", err)
				}
				return
			}
			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, got, tt.want)
		})
	}
}

func TestNewAssignsIdentity(t *testing.T) {
	a := New(TypeScale, nil, 1)
	b := New(TypeScale, nil, 1)

	testutil.AssertNotEqual(t, a.ID, "")
	testutil.AssertNotEqual(t, a.ID, b.ID)
	if a.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
	if a.Parameters == nil {
		t.Error("Parameters should never be nil")
	}

	c := NewWithID("fixed", TypeCustom, nil, 0)
	testutil.AssertEqual(t, c.ID, "fixed")
}

func TestSetPriorityBeforeAndAfterSubmission(t *testing.T) {
	tk := New(TypeCompress, nil, 3)
	testutil.AssertNoError(t, tk.SetPriority(12))
	testutil.AssertEqual(t, tk.Priority(), 12)

	testutil.AssertEqual(t, tk.MarkSubmitted(), true)
	testutil.AssertEqual(t, tk.MarkSubmitted(), false)

	err := tk.SetPriority(1)
	if !errors.Is(err, tperrors.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	testutil.AssertEqual(t, tk.Priority(), 12)
}

func TestCompare(t *testing.T) {
	low := New(TypeCustom, nil, 1)
	high := New(TypeCustom, nil, 9)
	same := New(TypeCustom, nil, 9)

	testutil.AssertEqual(t, Compare(high, low), 1)
	testutil.AssertEqual(t, Compare(low, high), -1)
	testutil.AssertEqual(t, Compare(high, same), 0)
}

func TestTaskJSON(t *testing.T) {
	tk := NewWithID("t-1", TypeScale, map[string]any{"width": 4}, 7)

	data, err := json.Marshal(tk)
	testutil.AssertNoError(t, err)

	var fields map[string]any
	testutil.AssertNoError(t, json.Unmarshal(data, &fields))
	for _, key := range []string{"id", "type", "priority", "createdAt", "parameters"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("missing JSON field %q in %s", key, data)
		}
	}

	var back Task
	testutil.AssertNoError(t, json.Unmarshal(data, &back))
	testutil.AssertEqual(t, back.ID, "t-1")
	testutil.AssertEqual(t, back.Type, TypeScale)
	testutil.AssertEqual(t, back.Priority(), 7)
	testutil.AssertEqual(t, back.Parameters["width"], any(float64(4)))
	testutil.AssertEqual(t, back.Submitted(), false)
}

func TestTaskJSONRejectsUnknownType(t *testing.T) {
	var tk Task
	err := json.Unmarshal([]byte(`{"id":"x","type":"resize"}`), &tk)
	if !errors.Is(err, tperrors.ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestResultConstructors(t *testing.T) {
	ok := Success("a", nil)
	testutil.AssertEqual(t, ok.Status, StatusSuccess)
	testutil.AssertEqual(t, ok.Err(), "")

	fail := Failure("b", errors.New("boom"))
	testutil.AssertEqual(t, fail.Status, StatusFailure)
	testutil.AssertEqual(t, fail.Err(), "boom")

	classified := ClassifiedFailure("c", "index", "out of range")
	testutil.AssertEqual(t, classified.Output[OutputErrorKind], any("index"))

	to := Timeout("d")
	testutil.AssertEqual(t, to.Status, StatusTimeout)
	testutil.AssertEqual(t, to.Err(), "operation timed out: task exceeded its time budget")
	if !strings.HasPrefix(to.Err(), tperrors.ErrTimeout.Error()) {
		t.Errorf("timeout text %q should start with %q", to.Err(), tperrors.ErrTimeout)
	}
}
