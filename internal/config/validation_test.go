package config

import (
	"testing"
	"time"
)

func TestValidatePort(t *testing.T) {
	tests := []struct {
		value   string
		wantErr bool
	}{
		{":5000", false},
		{"0.0.0.0:8080", false},
		{"", false},
		{":0", true},
		{":70000", true},
		{":http", true},
		{"5000", true},
	}

	for _, tt := range tests {
		v := NewValidator()
		v.ValidatePort("CSR_ADDR", tt.value)
		if v.HasErrors() != tt.wantErr {
			t.Errorf("ValidatePort(%q) errors=%v, want %v", tt.value, v.Errors(), tt.wantErr)
		}
	}
}

func TestValidateEnum(t *testing.T) {
	v := NewValidator()
	v.ValidateEnum("CSR_LOG_LEVEL", "info", []string{"debug", "info"})
	v.ValidateEnum("CSR_LOG_LEVEL", "", []string{"debug", "info"})
	if v.HasErrors() {
		t.Fatalf("Expected no errors, got %v", v.Errors())
	}

	v.ValidateEnum("CSR_LOG_LEVEL", "trace", []string{"debug", "info"})
	if len(v.Errors()) != 1 {
		t.Fatalf("Expected 1 error, got %d", len(v.Errors()))
	}
}

func TestParsers(t *testing.T) {
	v := NewValidator()

	if got := v.PositiveInt64("N", "", 7); got != 7 {
		t.Errorf("Expected default 7, got %d", got)
	}
	if got := v.PositiveInt64("N", "42", 7); got != 42 {
		t.Errorf("Expected 42, got %d", got)
	}
	if got := v.Bool("B", "1", false); !got {
		t.Error("Expected true for \"1\"")
	}
	if got := v.Duration("D", "250ms", time.Second); got != 250*time.Millisecond {
		t.Errorf("Expected 250ms, got %v", got)
	}
	if v.HasErrors() {
		t.Fatalf("Expected no errors, got %v", v.Errors())
	}

	v.PositiveInt64("N", "abc", 7)
	v.Bool("B", "perhaps", false)
	v.Duration("D", "-1s", time.Second)
	if len(v.Errors()) != 3 {
		t.Fatalf("Expected 3 errors, got %d: %s", len(v.Errors()), v.ErrorString())
	}
	if v.Err() == nil {
		t.Fatal("Expected Err() to be non-nil")
	}
}
