package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatsTryStart(t *testing.T) {
	t.Parallel()

	s := &ProcessorStats{}

	assert.True(t, s.tryStart())
	assert.False(t, s.tryStart(), "second start while a run is active")

	s.setCurrentBatch("abc")
	snap := s.Snapshot()
	assert.True(t, snap.IsProcessing)
	assert.Equal(t, "abc", snap.CurrentBatchID)

	s.endRun()
	snap = s.Snapshot()
	assert.False(t, snap.IsProcessing)
	assert.Empty(t, snap.CurrentBatchID)

	assert.True(t, s.tryStart(), "startable again after the run ends")
}

func TestStatsRecordTerminal(t *testing.T) {
	t.Parallel()

	s := &ProcessorStats{}

	s.recordTerminal(true, true, 10)
	s.recordTerminal(false, false, 2)
	s.recordTerminal(true, true, 6)

	snap := s.Snapshot()
	assert.Equal(t, 2, snap.TotalProcessed)
	assert.Equal(t, 1, snap.TotalFailed)
	assert.Equal(t, 2, snap.TotalImagesGenerated)
	// Mean across all three terminal batches: (10 + 2 + 6) / 3.
	assert.InDelta(t, 6.0, snap.AverageProcessingTime, 0.0001)
}

func TestStatsAverageSingleRun(t *testing.T) {
	t.Parallel()

	s := &ProcessorStats{}
	s.recordTerminal(false, false, 4.2)

	snap := s.Snapshot()
	assert.InDelta(t, 4.2, snap.AverageProcessingTime, 0.0001)
	assert.Equal(t, 0, snap.TotalImagesGenerated)
}
