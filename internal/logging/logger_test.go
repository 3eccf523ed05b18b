package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOperationID(t *testing.T) {
	id := NewOperationID()
	assert.Len(t, id, 8)
	assert.NotEqual(t, id, NewOperationID())
}

func TestOperationIDContextRoundTrip(t *testing.T) {
	ctx := WithOperationID(context.Background(), "abcd1234")
	assert.Equal(t, "abcd1234", GetOperationID(ctx))

	// Empty id generates a fresh one.
	ctx = WithOperationID(context.Background(), "")
	require.Len(t, GetOperationID(ctx), 8)

	assert.Equal(t, "", GetOperationID(context.Background()))
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"Warn", WARN},
		{"WARNING", WARN},
		{"error", ERROR},
		{"fatal", FATAL},
		{"nonsense", INFO},
		{"", INFO},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLogLevel(tt.in), tt.in)
	}
}

func TestWithComponentAndOperationID(t *testing.T) {
	base := NewLogger(INFO)
	scoped := base.WithComponent("storage").WithOperationID("deadbeef")
	require.NotNil(t, scoped)

	sl, ok := scoped.(*StructuredLogger)
	require.True(t, ok)
	assert.Equal(t, "storage", sl.component)
	assert.Equal(t, "deadbeef", sl.opID)
}
