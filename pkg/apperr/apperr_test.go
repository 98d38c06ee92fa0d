package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryable(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  *Error
		want bool
	}{
		{"validation", Validation("ingest", "batch is empty"), false},
		{"schema", Schema("ensure_table", "RELIANCE", cause), false},
		{"cache", Cache("get", cause), true},
		{"storage transient", Storage("insert", "RELIANCE", cause, true), true},
		{"storage permanent", Storage("insert", "RELIANCE", cause, false), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Retryable())
			assert.Equal(t, tt.want, IsRetryable(fmt.Errorf("wrapped: %w", tt.err)))
		})
	}
}

func TestKindOfWrapped(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("repair: %w", Storage("query_all", "TCS", cause, true))

	assert.Equal(t, KindStorage, KindOf(err))
	assert.True(t, IsKind(err, KindStorage))
	assert.False(t, IsKind(err, KindValidation))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, Kind(""), KindOf(cause))
	assert.Contains(t, err.Error(), "[TCS]")
}
