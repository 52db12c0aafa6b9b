package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMatchesKindSentinel(t *testing.T) {
	err := New(KindReservationNotFound, "res_1_abc", "no such reservation")
	wrapped := fmt.Errorf("cancel: %w", err)

	assert.True(t, errors.Is(wrapped, ErrReservationNotFound))
	assert.False(t, errors.Is(wrapped, ErrBatchNotFound))
	assert.Equal(t, KindReservationNotFound, KindOf(wrapped))
	assert.Equal(t, "res_1_abc", SubjectOf(wrapped))
}

func TestErrorMessageIncludesSubjectAndCause(t *testing.T) {
	cause := errors.New("context deadline exceeded")
	err := Wrap(KindChainUnavailable, "So11111111111111111111111111111111111111112", cause, "getAccountInfo")

	require.ErrorIs(t, err, cause)
	assert.Equal(t,
		"ChainUnavailable [So11111111111111111111111111111111111111112]: getAccountInfo: context deadline exceeded",
		err.Error(),
	)
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "chain unavailable", err: New(KindChainUnavailable, "", "timeout"), want: true},
		{name: "wrapped chain unavailable", err: fmt.Errorf("scan: %w", New(KindChainUnavailable, "", "timeout")), want: true},
		{name: "malformed", err: New(KindMalformedAccount, "addr", "short"), want: false},
		{name: "plain", err: errors.New("boom"), want: false},
		{name: "nil", err: nil, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Retryable(tc.err))
		})
	}
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("x")))
}
