package offline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestQueue(t *testing.T) *Queue {
	t.Helper()

	q, err := OpenQueue(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func TestQueueFIFOOrder(t *testing.T) {
	q := openTestQueue(t)
	eventID := uuid.New()
	teamID := uuid.New()

	var ids []string
	for game := 1; game <= 3; game++ {
		item, err := q.Enqueue(context.Background(), eventID, teamID, game, game*10, nil, KindSingle)
		require.NoError(t, err)
		ids = append(ids, item.ID)
	}

	pending, err := q.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 3)
	for i, item := range pending {
		assert.Equal(t, ids[i], item.ID, "pending items come back in enqueue order")
		assert.Equal(t, i+1, item.GameNumber)
		assert.Equal(t, StatusPending, item.Status)
	}

	n, err := q.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestQueueMarkFailedKeepsItemForReview(t *testing.T) {
	q := openTestQueue(t)
	item, err := q.Enqueue(context.Background(), uuid.New(), uuid.New(), 1, 10, nil, KindQuick)
	require.NoError(t, err)

	require.NoError(t, q.MarkFailed(context.Background(), item.ID, "day 1 is locked"))

	pending, err := q.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending, "failed items leave the pending set")

	failed, err := q.Failed(context.Background())
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, item.ID, failed[0].ID)
	require.NotNil(t, failed[0].LastError)
	assert.Equal(t, "day 1 is locked", *failed[0].LastError)
}

func TestQueueRemove(t *testing.T) {
	q := openTestQueue(t)
	item, err := q.Enqueue(context.Background(), uuid.New(), uuid.New(), 1, 10, nil, KindSingle)
	require.NoError(t, err)

	require.NoError(t, q.Remove(context.Background(), item.ID))

	n, err := q.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueuePruneOtherEvents(t *testing.T) {
	q := openTestQueue(t)
	keep := uuid.New()
	stale := uuid.New()

	_, err := q.Enqueue(context.Background(), keep, uuid.New(), 1, 10, nil, KindSingle)
	require.NoError(t, err)
	_, err = q.Enqueue(context.Background(), stale, uuid.New(), 1, 20, nil, KindSingle)
	require.NoError(t, err)
	_, err = q.Enqueue(context.Background(), stale, uuid.New(), 2, 30, nil, KindSingle)
	require.NoError(t, err)

	pruned, err := q.PruneOtherEvents(context.Background(), keep)
	require.NoError(t, err)
	assert.EqualValues(t, 2, pruned)

	pending, err := q.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, keep, pending[0].EventID)
}

func TestQueueSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queue.db")

	q, err := OpenQueue(path)
	require.NoError(t, err)
	item, err := q.Enqueue(context.Background(), uuid.New(), uuid.New(), 1, 10, nil, KindSingle)
	require.NoError(t, err)
	require.NoError(t, q.Close())

	// Queued writes must outlive the process.
	q, err = OpenQueue(path)
	require.NoError(t, err)
	defer q.Close()

	pending, err := q.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, item.ID, pending[0].ID)
}
