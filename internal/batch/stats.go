package batch

import "sync"

// ProcessorStats is the running ledger of processor activity. It is owned by
// the Processor and guarded by its own mutex; everything else reads it
// through Snapshot. Counters only ever increase, once per terminal batch.
type ProcessorStats struct {
	mu sync.Mutex

	totalProcessed        int
	totalFailed           int
	totalImagesGenerated  int
	averageProcessingTime float64

	isProcessing   bool
	currentBatchID string
}

// StatsSnapshot is the JSON view of ProcessorStats served to the admin UI.
type StatsSnapshot struct {
	TotalProcessed        int     `json:"total_processed"`
	TotalFailed           int     `json:"total_failed"`
	TotalImagesGenerated  int     `json:"total_images_generated"`
	AverageProcessingTime float64 `json:"average_processing_time"`
	IsProcessing          bool    `json:"is_processing"`
	CurrentBatchID        string  `json:"current_batch_id"`
}

// tryStart flips isProcessing on if no run is active. Returns false when
// another run holds the flag, giving processNext its mutual exclusion.
func (s *ProcessorStats) tryStart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isProcessing {
		return false
	}
	s.isProcessing = true
	return true
}

func (s *ProcessorStats) setCurrentBatch(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentBatchID = id
}

func (s *ProcessorStats) endRun() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isProcessing = false
	s.currentBatchID = ""
}

// recordTerminal updates the counters for one batch reaching a terminal
// state. The running mean covers all terminal batches, successes and
// failures alike, computed incrementally: avg' = avg + (t - avg) / n.
func (s *ProcessorStats) recordTerminal(success, imageGenerated bool, processingTime float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if success {
		s.totalProcessed++
		if imageGenerated {
			s.totalImagesGenerated++
		}
	} else {
		s.totalFailed++
	}

	n := s.totalProcessed + s.totalFailed
	s.averageProcessingTime += (processingTime - s.averageProcessingTime) / float64(n)
}

// Snapshot returns a consistent copy of the current stats.
func (s *ProcessorStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		TotalProcessed:        s.totalProcessed,
		TotalFailed:           s.totalFailed,
		TotalImagesGenerated:  s.totalImagesGenerated,
		AverageProcessingTime: s.averageProcessingTime,
		IsProcessing:          s.isProcessing,
		CurrentBatchID:        s.currentBatchID,
	}
}
