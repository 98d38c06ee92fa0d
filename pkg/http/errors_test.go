package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"BarLake/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromError(t *testing.T) {
	cause := errors.New("boom")
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", apperr.Validation("fetch", "end before start"), http.StatusBadRequest},
		{"schema", apperr.Schema("ensure", "AAPL", cause), http.StatusInternalServerError},
		{"transient storage", apperr.Storage("insert", "AAPL", cause, true), http.StatusServiceUnavailable},
		{"permanent storage", apperr.Storage("insert", "AAPL", cause, false), http.StatusInternalServerError},
		{"cache", apperr.Cache("get", cause), http.StatusServiceUnavailable},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), http.StatusServiceUnavailable},
		{"unknown", cause, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FromError(tc.err)
			assert.Equal(t, tc.want, got.Status)
			assert.ErrorIs(t, got, tc.err)
		})
	}
}

func TestFromErrorPassesAppErrorThrough(t *testing.T) {
	orig := NotFoundError("nope")
	wrapped := fmt.Errorf("handler: %w", orig)

	assert.Same(t, orig, FromError(wrapped))
}

func TestParseDateParam(t *testing.T) {
	d, aerr := ParseDateParam("start", "2024-01-05")
	require.Nil(t, aerr)
	assert.Equal(t, "2024-01-05", d.Format("2006-01-02"))

	_, aerr = ParseDateParam("end", "yesterday")
	require.NotNil(t, aerr)
	assert.Equal(t, http.StatusBadRequest, aerr.Status)
	assert.Equal(t, "end", aerr.Field)
}

func TestQueryBool(t *testing.T) {
	assert.True(t, QueryBool("true", false))
	assert.True(t, QueryBool("1", false))
	assert.False(t, QueryBool("no", true))
	assert.True(t, QueryBool("", true))
	assert.False(t, QueryBool("maybe", false))
}
