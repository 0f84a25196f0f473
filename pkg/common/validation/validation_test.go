package validation

import (
	"testing"

	"github.com/vnykmshr/taskprocessor/pkg/common/errors"
)

func TestValidatePositive(t *testing.T) {
	tests := []struct {
		name      string
		value     int
		wantError bool
	}{
		{"positive value", 10, false},
		{"positive value 1", 1, false},
		{"zero value", 0, true},
		{"negative value", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePositive("scheduler", "MaxQueueSize", tt.value)
			checkResult(t, err, tt.wantError)
		})
	}
}

func TestValidateNonNegative(t *testing.T) {
	tests := []struct {
		name      string
		value     float64
		wantError bool
	}{
		{"positive value", 10.5, false},
		{"zero value", 0, false},
		{"negative value", -1.5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNonNegative("scheduler", "GraceWindow", tt.value)
			checkResult(t, err, tt.wantError)
		})
	}
}

func TestValidateNotNil(t *testing.T) {
	tests := []struct {
		name      string
		value     interface{}
		wantError bool
	}{
		{"non-nil int", 123, false},
		{"non-nil pointer", new(int), false},
		{"typed nil pointer", (*int)(nil), false},
		{"nil value", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNotNil("workerpool", "Source", tt.value)
			checkResult(t, err, tt.wantError)
		})
	}
}

func TestValidateNotEmpty(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		wantError bool
	}{
		{"non-empty string", "value", false},
		{"whitespace", " ", false},
		{"empty string", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNotEmpty("workerpool", "Name", tt.value)
			checkResult(t, err, tt.wantError)
		})
	}
}

func TestValidateOrdered(t *testing.T) {
	tests := []struct {
		name         string
		lower, upper int
		wantError    bool
	}{
		{"increasing", 5, 10, false},
		{"equal", 5, 5, true},
		{"decreasing", 10, 5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOrdered("scheduler", "HighThreshold", tt.lower, tt.upper)
			checkResult(t, err, tt.wantError)
		})
	}
}

func TestValidationErrorDetails(t *testing.T) {
	err := ValidatePositive("workerpool", "WorkerCount", -5)
	valErr, ok := err.(*errors.ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}

	if valErr.Module != "workerpool" {
		t.Errorf("Module = %q, want %q", valErr.Module, "workerpool")
	}
	if valErr.Field != "WorkerCount" {
		t.Errorf("Field = %q, want %q", valErr.Field, "WorkerCount")
	}
	if valErr.Value != -5 {
		t.Errorf("Value = %v, want %v", valErr.Value, -5)
	}
	if valErr.Hint != "value must be greater than 0" {
		t.Errorf("Hint = %q, want %q", valErr.Hint, "value must be greater than 0")
	}
	if valErr.Unwrap() != errors.ErrInvalidConfiguration {
		t.Errorf("should unwrap to ErrInvalidConfiguration, got %v", valErr.Unwrap())
	}
}

func checkResult(t *testing.T, err error, wantError bool) {
	t.Helper()
	if wantError {
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !errors.IsValidationError(err) {
			t.Errorf("expected ValidationError, got %T", err)
		}
		return
	}
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}
