package validation

import (
	"testing"

	"github.com/vnykmshr/parflow/pkg/common/errors"
)

func TestValidatePositive(t *testing.T) {
	tests := []struct {
		name      string
		value     int
		wantError bool
	}{
		{"positive value", 10, false},
		{"one", 1, false},
		{"zero value", 0, true},
		{"negative value", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePositive("test", "threads", tt.value)

			if tt.wantError {
				if !errors.IsValidationError(err) {
					t.Errorf("expected ValidationError, got %T", err)
				}
				if !errors.IsConfiguration(err) {
					t.Error("validation errors should match ErrInvalidConfiguration")
				}
			} else if err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func TestValidateNonNegative(t *testing.T) {
	tests := []struct {
		name      string
		value     int
		wantError bool
	}{
		{"zero", 0, false},
		{"positive", 5, false},
		{"negative", -3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNonNegative("test", "grain", tt.value)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidateNonNegative(%d) error = %v, wantError %v", tt.value, err, tt.wantError)
			}
		})
	}
}

func TestValidateNotNil(t *testing.T) {
	var nilFunc func()

	if err := ValidateNotNil("test", "body", nil); err == nil {
		t.Error("expected error for nil")
	}
	if err := ValidateNotNil("test", "body", func() {}); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	// A typed nil inside an interface is not nil.
	if err := ValidateNotNil("test", "body", nilFunc); err != nil {
		t.Errorf("typed nil should pass, got %v", err)
	}
}

func TestValidateOneOf(t *testing.T) {
	if err := ValidateOneOf("config", "backend", "native", "native", "work-stealing"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	err := ValidateOneOf("config", "backend", "gpu", "native", "work-stealing")
	if err == nil {
		t.Fatal("expected error for unsupported value")
	}
	verr, ok := err.(*errors.ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if verr.Field != "backend" || verr.Value != "gpu" {
		t.Errorf("unexpected details: %+v", verr)
	}
}
