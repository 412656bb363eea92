package ports

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevel_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		level    Level
		expected string
	}{
		{
			name:     "debug level",
			level:    LevelDebug,
			expected: "DEBUG",
		},
		{
			name:     "info level",
			level:    LevelInfo,
			expected: "INFO",
		},
		{
			name:     "warn level",
			level:    LevelWarn,
			expected: "WARN",
		},
		{
			name:     "error level",
			level:    LevelError,
			expected: "ERROR",
		},
		{
			name:     "unknown level",
			level:    Level(99),
			expected: "UNKNOWN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.level.String())
		})
	}
}

func TestF(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		key     string
		value   interface{}
		wantKey string
		wantVal interface{}
	}{
		{
			name:    "string value",
			key:     "operation",
			value:   "install",
			wantKey: "operation",
			wantVal: "install",
		},
		{
			name:    "int value",
			key:     "count",
			value:   42,
			wantKey: "count",
			wantVal: 42,
		},
		{
			name:    "nil value",
			key:     "error",
			value:   nil,
			wantKey: "error",
			wantVal: nil,
		},
		{
			name:    "bool value",
			key:     "dry_run",
			value:   true,
			wantKey: "dry_run",
			wantVal: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			field := F(tt.key, tt.value)

			assert.Equal(t, tt.wantKey, field.Key)
			assert.Equal(t, tt.wantVal, field.Value)
		})
	}
}

