package database_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdcanvas/crowdcanvas/internal/database"
)

func newTestStore(t *testing.T) database.Store {
	t.Helper()

	db, err := database.NewDB(":memory:")
	require.NoError(t, err, "opening in-memory database")
	t.Cleanup(func() { database.CloseDB(db) })

	return database.NewStore(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// enqueueMessages inserts n pending messages with strictly increasing
// timestamps so ordering assertions are deterministic.
func enqueueMessages(t *testing.T, store database.Store, n int) []string {
	t.Helper()

	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		msg := &database.Message{
			ID:        uuid.NewString(),
			UserID:    int64(1000 + i),
			Username:  fmt.Sprintf("user%d", i),
			FirstName: fmt.Sprintf("User %d", i),
			Source:    "telegram",
			Content:   fmt.Sprintf("message %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.EnqueueMessage(ctx, msg))
		ids = append(ids, msg.ID)
	}
	return ids
}

func TestEnqueueMessage(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	count, err := store.CountPendingMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	enqueueMessages(t, store, 3)

	count, err = store.CountPendingMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestEnqueueMessage_Validation(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		message *database.Message
	}{
		{name: "nil message", message: nil},
		{name: "missing id", message: &database.Message{Content: "hello"}},
		{name: "empty content", message: &database.Message{ID: uuid.NewString()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, store.EnqueueMessage(ctx, tt.message))
		})
	}
}

func TestEnqueueMessage_Defaults(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	msg := &database.Message{ID: uuid.NewString(), Content: "hello"}
	require.NoError(t, store.EnqueueMessage(ctx, msg))

	assert.Equal(t, database.MessageStatusPending, msg.Status)
	assert.Equal(t, "telegram", msg.Source)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestCreateBatchFromPending(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	ids := enqueueMessages(t, store, 7)

	batchID := uuid.NewString()
	batch, err := store.CreateBatchFromPending(ctx, batchID, 5)
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, batchID, batch.ID)
	assert.Equal(t, database.BatchStatusPending, batch.Status)
	assert.Equal(t, 5, batch.MessageCount)

	// The five oldest messages are claimed, the remaining two stay queued.
	count, err := store.CountPendingMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	messages, err := store.BatchMessages(ctx, batchID)
	require.NoError(t, err)
	require.Len(t, messages, 5)
	for i, msg := range messages {
		assert.Equal(t, ids[i], msg.ID, "claim order must follow enqueue order")
		assert.Equal(t, database.MessageStatusInBatch, msg.Status)
		assert.Equal(t, batchID, msg.BatchID.String)
	}

	// A second call sees only two pending messages and refuses.
	_, err = store.CreateBatchFromPending(ctx, uuid.NewString(), 5)
	assert.ErrorIs(t, err, database.ErrInsufficientMessages)
}

func TestCreateBatchFromPending_InvalidArgs(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	enqueueMessages(t, store, 5)

	_, err := store.CreateBatchFromPending(ctx, "", 5)
	assert.Error(t, err)

	_, err = store.CreateBatchFromPending(ctx, uuid.NewString(), 0)
	assert.Error(t, err)
}

func TestNextPendingBatch(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	batch, err := store.NextPendingBatch(ctx)
	require.NoError(t, err)
	assert.Nil(t, batch, "empty registry yields no batch")

	enqueueMessages(t, store, 4)
	first, err := store.CreateBatchFromPending(ctx, uuid.NewString(), 2)
	require.NoError(t, err)
	second, err := store.CreateBatchFromPending(ctx, uuid.NewString(), 2)
	require.NoError(t, err)

	next, err := store.NextPendingBatch(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, first.ID, next.ID, "oldest pending batch comes first")

	require.NoError(t, store.MarkBatchProcessing(ctx, first.ID, time.Now().UTC()))

	next, err = store.NextPendingBatch(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, second.ID, next.ID)
}

func TestBatchLifecycle_Completed(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	enqueueMessages(t, store, 3)
	batch, err := store.CreateBatchFromPending(ctx, uuid.NewString(), 3)
	require.NoError(t, err)

	startedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	completedAt := startedAt.Add(9 * time.Second)

	require.NoError(t, store.MarkBatchProcessing(ctx, batch.ID, startedAt))
	require.NoError(t, store.SetBatchMixed(ctx, batch.ID, "blended chaos"))
	require.NoError(t, store.SetBatchGenerating(ctx, batch.ID))
	require.NoError(t, store.CompleteBatch(ctx, batch.ID, "/images/x.png", "/static/generated_images/x.png", completedAt, 9.0))

	got, err := store.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, database.BatchStatusCompleted, got.Status)
	assert.Equal(t, "blended chaos", got.MixedText.String)
	assert.Equal(t, "/images/x.png", got.ImagePath.String)
	assert.Equal(t, "/static/generated_images/x.png", got.ImageURL.String)
	assert.True(t, got.StartedAt.Valid)
	assert.True(t, got.CompletedAt.Valid)
	assert.InDelta(t, 9.0, got.ProcessingTime.Float64, 0.001)
}

func TestBatchLifecycle_InvalidTransitions(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	enqueueMessages(t, store, 2)
	batch, err := store.CreateBatchFromPending(ctx, uuid.NewString(), 2)
	require.NoError(t, err)

	now := time.Now().UTC()

	// Skipping states or moving backwards is rejected.
	assert.Error(t, store.SetBatchMixed(ctx, batch.ID, "too early"))
	assert.Error(t, store.SetBatchGenerating(ctx, batch.ID))
	assert.Error(t, store.CompleteBatch(ctx, batch.ID, "p", "u", now, 1))
	assert.Error(t, store.FailBatch(ctx, batch.ID, "still pending", now, 1))

	require.NoError(t, store.MarkBatchProcessing(ctx, batch.ID, now))
	assert.Error(t, store.MarkBatchProcessing(ctx, batch.ID, now), "processing twice")

	require.NoError(t, store.SetBatchMixed(ctx, batch.ID, "ok"))
	require.NoError(t, store.SetBatchGenerating(ctx, batch.ID))
	require.NoError(t, store.CompleteBatch(ctx, batch.ID, "p", "u", now, 1))

	// Terminal states are frozen.
	assert.Error(t, store.FailBatch(ctx, batch.ID, "too late", now, 1))
	assert.Error(t, store.MarkBatchProcessing(ctx, batch.ID, now))
}

func TestFailBatch(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	advanceTo := func(t *testing.T, id string, target database.BatchStatus) {
		t.Helper()
		require.NoError(t, store.MarkBatchProcessing(ctx, id, now))
		if target == database.BatchStatusProcessing {
			return
		}
		require.NoError(t, store.SetBatchMixed(ctx, id, "mixed"))
		if target == database.BatchStatusMixed {
			return
		}
		require.NoError(t, store.SetBatchGenerating(ctx, id))
	}

	for _, from := range []database.BatchStatus{
		database.BatchStatusProcessing,
		database.BatchStatusMixed,
		database.BatchStatusGenerating,
	} {
		t.Run(string(from), func(t *testing.T) {
			enqueueMessages(t, store, 1)
			batch, err := store.CreateBatchFromPending(ctx, uuid.NewString(), 1)
			require.NoError(t, err)
			advanceTo(t, batch.ID, from)

			require.NoError(t, store.FailBatch(ctx, batch.ID, "generation timed out", now, 3.5))

			got, err := store.GetBatch(ctx, batch.ID)
			require.NoError(t, err)
			assert.Equal(t, database.BatchStatusFailed, got.Status)
			assert.Equal(t, "generation timed out", got.ErrorMessage.String)
			assert.InDelta(t, 3.5, got.ProcessingTime.Float64, 0.001)
		})
	}
}

func TestGetBatch_NotFound(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	batch, err := store.GetBatch(context.Background(), "no-such-batch")
	require.NoError(t, err)
	assert.Nil(t, batch)
}

func TestGetBatchStats(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	enqueueMessages(t, store, 7)

	b1, err := store.CreateBatchFromPending(ctx, uuid.NewString(), 2)
	require.NoError(t, err)
	b2, err := store.CreateBatchFromPending(ctx, uuid.NewString(), 2)
	require.NoError(t, err)

	require.NoError(t, store.MarkBatchProcessing(ctx, b1.ID, now))
	require.NoError(t, store.SetBatchMixed(ctx, b1.ID, "mixed"))
	require.NoError(t, store.SetBatchGenerating(ctx, b1.ID))
	require.NoError(t, store.CompleteBatch(ctx, b1.ID, "p", "u", now, 2))

	require.NoError(t, store.MarkBatchProcessing(ctx, b2.ID, now))
	require.NoError(t, store.FailBatch(ctx, b2.ID, "mix failed", now, 1))

	stats, err := store.GetBatchStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalMessages, "three messages left unclaimed")
	assert.Equal(t, 2, stats.TotalBatches)
	assert.Equal(t, 0, stats.PendingBatches)
	assert.Equal(t, 1, stats.CompletedBatches)
	assert.Equal(t, 1, stats.FailedBatches)
}

func TestLatestMixedText(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	text, err := store.LatestMixedText(ctx)
	require.NoError(t, err)
	assert.Empty(t, text)

	enqueueMessages(t, store, 4)
	b1, err := store.CreateBatchFromPending(ctx, uuid.NewString(), 2)
	require.NoError(t, err)
	b2, err := store.CreateBatchFromPending(ctx, uuid.NewString(), 2)
	require.NoError(t, err)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.MarkBatchProcessing(ctx, b1.ID, base))
	require.NoError(t, store.SetBatchMixed(ctx, b1.ID, "older mix"))
	require.NoError(t, store.MarkBatchProcessing(ctx, b2.ID, base.Add(time.Minute)))
	require.NoError(t, store.SetBatchMixed(ctx, b2.ID, "newer mix"))

	text, err = store.LatestMixedText(ctx)
	require.NoError(t, err)
	assert.Equal(t, "newer mix", text)
}

func TestCompletedImages(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	enqueueMessages(t, store, 6)

	complete := func(t *testing.T, mixed string, completedAt time.Time) string {
		t.Helper()
		batch, err := store.CreateBatchFromPending(ctx, uuid.NewString(), 2)
		require.NoError(t, err)
		require.NoError(t, store.MarkBatchProcessing(ctx, batch.ID, completedAt.Add(-5*time.Second)))
		require.NoError(t, store.SetBatchMixed(ctx, batch.ID, mixed))
		require.NoError(t, store.SetBatchGenerating(ctx, batch.ID))
		require.NoError(t, store.CompleteBatch(ctx, batch.ID, "path/"+mixed+".png", "/static/generated_images/"+mixed+".png", completedAt, 5))
		return batch.ID
	}

	firstID := complete(t, "first", base)
	secondID := complete(t, "second", base.Add(time.Hour))

	// One failed batch must not show up in the gallery.
	failed, err := store.CreateBatchFromPending(ctx, uuid.NewString(), 2)
	require.NoError(t, err)
	require.NoError(t, store.MarkBatchProcessing(ctx, failed.ID, base))
	require.NoError(t, store.FailBatch(ctx, failed.ID, "boom", base, 1))

	images, err := store.CompletedImages(ctx)
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, secondID, images[0].BatchID, "newest first")
	assert.Equal(t, firstID, images[1].BatchID)
	assert.Equal(t, "second", images[0].MixedText)
	assert.Equal(t, 2, images[0].MessageCount)
}

func TestClearAllBatches(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	enqueueMessages(t, store, 5)
	_, err := store.CreateBatchFromPending(ctx, uuid.NewString(), 3)
	require.NoError(t, err)

	removed, err := store.ClearAllBatches(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	batches, err := store.ListBatches(ctx)
	require.NoError(t, err)
	assert.Empty(t, batches)

	// Unclaimed messages survive the reset.
	count, err := store.CountPendingMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestDeleteTerminalBatchesBefore(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	enqueueMessages(t, store, 4)

	oldBatch, err := store.CreateBatchFromPending(ctx, uuid.NewString(), 2)
	require.NoError(t, err)
	require.NoError(t, store.MarkBatchProcessing(ctx, oldBatch.ID, now))
	require.NoError(t, store.FailBatch(ctx, oldBatch.ID, "old failure", now, 1))

	// Still in flight, must never be cleaned up regardless of age.
	liveBatch, err := store.CreateBatchFromPending(ctx, uuid.NewString(), 2)
	require.NoError(t, err)

	removed, err := store.DeleteTerminalBatchesBefore(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, removed, "cutoff before creation keeps everything")

	removed, err = store.DeleteTerminalBatchesBefore(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	got, err := store.GetBatch(ctx, oldBatch.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = store.GetBatch(ctx, liveBatch.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	messages, err := store.BatchMessages(ctx, oldBatch.ID)
	require.NoError(t, err)
	assert.Empty(t, messages, "messages of removed batches go with them")
}
