package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualFiresOnlyReachedTimers(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	m := NewManual(start)

	short := m.After(100 * time.Millisecond)
	long := m.After(time.Second)
	require.Equal(t, 2, m.Pending())

	m.Advance(99 * time.Millisecond)
	assert.Len(t, short, 0)

	m.Advance(time.Millisecond)
	require.Len(t, short, 1)
	assert.Equal(t, start.Add(100*time.Millisecond), <-short)
	assert.Len(t, long, 0)
	assert.Equal(t, 1, m.Pending())

	m.Set(start.Add(2 * time.Second))
	require.Len(t, long, 1)
	assert.Equal(t, 0, m.Pending())
}

func TestManualZeroDurationFiresImmediately(t *testing.T) {
	m := NewManual(time.Unix(10, 0))
	ch := m.After(0)
	require.Len(t, ch, 1)
	assert.Equal(t, time.Unix(10, 0), <-ch)
	assert.Equal(t, 0, m.Pending())
}
