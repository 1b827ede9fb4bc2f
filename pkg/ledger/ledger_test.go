package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/OFFIS-RIT/tagrel/pkg/common"
	"github.com/OFFIS-RIT/tagrel/pkg/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingArchiver struct {
	archived []common.UndoRecord
	err      error
}

func (a *recordingArchiver) ArchiveUndo(ctx context.Context, rec *common.UndoRecord) error {
	a.archived = append(a.archived, *rec)
	return a.err
}

func TestCaptureCreatesRecord(t *testing.T) {
	ctx := context.Background()
	archiver := &recordingArchiver{}
	l := New(memory.New(), WithArchiver(archiver))

	rec, err := l.Capture(ctx, 5, Snapshot{PostIDs: []int64{3, 1, 3}, FollowerIDs: []int64{9}})
	require.NoError(t, err)
	assert.NotZero(t, rec.ID)
	assert.Equal(t, []int64{3, 1}, rec.AffectedPostIDs)
	assert.Equal(t, []int64{9}, rec.FollowerUserIDs)
	require.Len(t, archiver.archived, 1)
	assert.Equal(t, rec.ID, archiver.archived[0].ID)

	pending, err := l.Pending(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, pending.ID)
}

func TestCaptureReusesCoveringRecord(t *testing.T) {
	ctx := context.Background()
	l := New(memory.New())

	first, err := l.Capture(ctx, 5, Snapshot{PostIDs: []int64{1, 2, 3}})
	require.NoError(t, err)

	second, err := l.Capture(ctx, 5, Snapshot{PostIDs: []int64{2, 3}})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestCaptureExtendsRecordOfEarlierAttempt(t *testing.T) {
	ctx := context.Background()
	l := New(memory.New())

	first, err := l.Capture(ctx, 5, Snapshot{PostIDs: []int64{1, 2}, FollowerIDs: []int64{7}})
	require.NoError(t, err)

	second, err := l.Capture(ctx, 5, Snapshot{PostIDs: []int64{2, 4}, FollowerIDs: []int64{8, 7}, SharedFollowerIDs: []int64{8}})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, []int64{1, 2, 4}, second.AffectedPostIDs)
	assert.Equal(t, []int64{7, 8}, second.FollowerUserIDs)
	assert.Equal(t, []int64{8}, second.SharedFollowerUserIDs)

	pending, err := l.Pending(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, second.ID, pending.ID)
}

func TestConsume(t *testing.T) {
	ctx := context.Background()
	l := New(memory.New())

	rec, err := l.Capture(ctx, 5, Snapshot{PostIDs: []int64{1}})
	require.NoError(t, err)
	require.NoError(t, l.Consume(ctx, rec))
	assert.True(t, rec.Applied)

	_, err = l.Pending(ctx, 5)
	assert.ErrorIs(t, err, ErrNoPendingRecord)

	// A new run after consumption starts a fresh record.
	next, err := l.Capture(ctx, 5, Snapshot{PostIDs: []int64{1}})
	require.NoError(t, err)
	assert.NotEqual(t, rec.ID, next.ID)
}

func TestArchiveFailureIsNotFatal(t *testing.T) {
	l := New(memory.New(), WithArchiver(&recordingArchiver{err: errors.New("s3 down")}))
	_, err := l.Capture(context.Background(), 1, Snapshot{PostIDs: []int64{1}})
	require.NoError(t, err)
}
