package batch

import (
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/chronos/backend/internal/clock"
	"github.com/coldbell/chronos/backend/internal/errs"
)

var creator = solana.MustPublicKeyFromBase58("5NyVeVkzxmB2XkrR5EnrEfxNVe82mPWdzSEYH5FBoMgF")

func newTestCoordinator() (*Coordinator, *clock.Manual) {
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	return New(clk, nil, nil), clk
}

func TestCreateBatchSizeBounds(t *testing.T) {
	c, _ := newTestCoordinator()
	for _, size := range []int{-1, 0, 11, 256} {
		_, err := c.CreateBatch(creator, size)
		assert.ErrorIs(t, err, errs.ErrInvalidBatchSize, "size %d", size)
	}
	for size := 1; size <= 10; size++ {
		b, err := c.CreateBatch(creator, size)
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, StatusPending, b.Status)
		assert.Equal(t, uint8(size), b.Size)
		assert.Zero(t, b.ExecutedCount)
	}
	assert.Equal(t, uint64(10), c.Stats().TotalBatches)
}

func TestExecuteScenario(t *testing.T) {
	c, clk := newTestCoordinator()
	b, err := c.CreateBatch(creator, 5)
	require.NoError(t, err)

	clk.Advance(3 * time.Second)
	done, err := c.Execute(b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, done.Status)
	assert.Equal(t, uint8(5), done.ExecutedCount)
	require.NotNil(t, done.ExecutedAt)
	assert.Equal(t, clk.Now(), *done.ExecutedAt)

	_, err = c.Execute(b.ID)
	assert.ErrorIs(t, err, errs.ErrBatchNotPending)
	assert.Equal(t, b.ID, errs.SubjectOf(err))
	_, err = c.MarkFailed(b.ID, 1)
	assert.ErrorIs(t, err, errs.ErrBatchNotPending)

	assert.Equal(t, uint64(5), c.Stats().TotalExecutions)
}

func TestMarkFailedIsTerminal(t *testing.T) {
	c, _ := newTestCoordinator()
	b, err := c.CreateBatch(creator, 3)
	require.NoError(t, err)

	failed, err := c.MarkFailed(b.ID, 6001)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failed.Status)
	require.NotNil(t, failed.ErrorCode)
	assert.Equal(t, uint16(6001), *failed.ErrorCode)
	assert.Zero(t, failed.ExecutedCount)
	assert.Nil(t, failed.ExecutedAt)

	_, err = c.Execute(b.ID)
	assert.ErrorIs(t, err, errs.ErrBatchNotPending)
	_, err = c.MarkFailed(b.ID, 1)
	assert.ErrorIs(t, err, errs.ErrBatchNotPending)

	got, err := c.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, uint16(6001), *got.ErrorCode)
}

func TestUnknownBatch(t *testing.T) {
	c, _ := newTestCoordinator()
	_, err := c.Execute("missing")
	assert.ErrorIs(t, err, errs.ErrBatchNotFound)
	_, err = c.MarkFailed("missing", 1)
	assert.ErrorIs(t, err, errs.ErrBatchNotFound)
	_, err = c.Get("missing")
	assert.ErrorIs(t, err, errs.ErrBatchNotFound)
}

func TestSuccessRate(t *testing.T) {
	c, _ := newTestCoordinator()
	assert.Equal(t, uint16(10_000), c.Stats().SuccessRateBps)

	first, err := c.CreateBatch(creator, 1)
	require.NoError(t, err)
	_, err = c.MarkFailed(first.ID, 1)
	require.NoError(t, err)
	assert.Zero(t, c.Stats().SuccessRateBps)

	ok, err := c.CreateBatch(creator, 9)
	require.NoError(t, err)
	_, err = c.Execute(ok.ID)
	require.NoError(t, err)
	bad, err := c.CreateBatch(creator, 2)
	require.NoError(t, err)
	_, err = c.MarkFailed(bad.ID, 2)
	require.NoError(t, err)

	stats := c.Stats()
	assert.Equal(t, Stats{
		TotalBatches:    3,
		TotalExecutions: 9,
		TotalFailures:   2,
		SuccessRateBps:  9_000,
	}, stats)
}
