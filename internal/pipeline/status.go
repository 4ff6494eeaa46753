package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/abdulachik/recast/internal/db"
	"github.com/abdulachik/recast/internal/transform"
)

// progress is the forward-only order of in-flight run statuses. Concurrent
// units report stages out of order; only moves forward are written.
var progress = map[string]int{
	db.RunQueued:              0,
	db.RunAnalyzing:           1,
	db.RunAnalyzingStructure:  2,
	db.RunDeterminingStrategy: 3,
	db.RunGenerating:          4,
	db.RunWritingHooks:        5,
	db.RunPolishing:           6,
	db.RunPublishing:          7,
}

var stageStatus = map[string]string{
	transform.StageHookWriter:    db.RunWritingHooks,
	transform.StageAIPolisher:    db.RunPolishing,
	transform.StageFinalReviewer: db.RunPolishing,
}

type statusTracker struct {
	store RunStore
	runID string

	mu      sync.Mutex
	current string
}

func newStatusTracker(store RunStore, runID string) *statusTracker {
	return &statusTracker{store: store, runID: runID, current: db.RunQueued}
}

// advance records status if it is further along than the current one.
func (s *statusTracker) advance(ctx context.Context, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if progress[status] <= progress[s.current] {
		return
	}
	s.current = status
	s.write(ctx, status, "")
}

// finish records a terminal status unconditionally.
func (s *statusTracker) finish(ctx context.Context, status, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = status
	s.write(ctx, status, message)
}

func (s *statusTracker) write(ctx context.Context, status, message string) {
	// Status writes outlive a cancelled run so the row never stays in flight.
	if err := s.store.UpdateRunStatus(context.WithoutCancel(ctx), s.runID, status, message); err != nil {
		slog.Warn("failed to update run status", "run_id", s.runID, "status", status, "error", err)
		return
	}
	slog.Debug("run status", "run_id", s.runID, "status", status)
}
