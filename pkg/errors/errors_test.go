package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsCarryTheirType(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"validation", NewValidation("bad input"), ErrorTypeValidation},
		{"not found", NewNotFound("no such entity"), ErrorTypeNotFound},
		{"conflict", NewConflict("already running"), ErrorTypeConflict},
		{"not ready", NewNotReady("no artifacts"), ErrorTypeNotReady},
		{"timeout", NewTimeout("deadline exceeded"), ErrorTypeTimeout},
		{"upstream", NewUpstream("model call failed", fmt.Errorf("boom")), ErrorTypeUpstream},
		{"internal", NewInternal("unexpected", fmt.Errorf("boom")), ErrorTypeInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestWrapPreservesType(t *testing.T) {
	err := NewConflict("indexing already in progress")
	wrapped := Wrap(err, "start rejected")

	require.Error(t, wrapped)
	assert.True(t, IsConflict(wrapped))
	assert.Contains(t, wrapped.Error(), "start rejected")
	assert.Contains(t, wrapped.Error(), "indexing already in progress")
}

func TestWrapThroughStdlibChain(t *testing.T) {
	err := fmt.Errorf("reading snapshot: %w", NewNotReady("no artifacts available"))

	assert.True(t, IsNotReady(err))
	assert.Equal(t, ErrorTypeNotReady, KindOf(err))
	assert.Equal(t, "no artifacts available", DetailOf(err))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "ignored"))
}

func TestWrapForeignErrorBecomesInternal(t *testing.T) {
	wrapped := Wrap(fmt.Errorf("disk on fire"), "writing upload")

	assert.True(t, IsInternal(wrapped))
	assert.Equal(t, "internal server error", DetailOf(wrapped))
}

func TestUpstreamDetailPreserved(t *testing.T) {
	err := NewUpstream("global search failed: connection refused", nil)
	assert.Equal(t, "global search failed: connection refused", DetailOf(err))
}
