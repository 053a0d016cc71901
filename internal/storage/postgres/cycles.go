package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/floodcam/internal/capture"
)

// RecordCycle upserts the summary of a cycle.
func (s *Store) RecordCycle(ctx context.Context, cycleID string, summary capture.Summary) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("cycle store is not configured")
	}
	if cycleID == "" {
		return fmt.Errorf("cycle id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	started_at,
	finished_at,
	discovered,
	visited,
	captured,
	unavailable,
	skipped,
	aborted,
	abort_reason
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (id) DO UPDATE SET
	finished_at = EXCLUDED.finished_at,
	discovered = EXCLUDED.discovered,
	visited = EXCLUDED.visited,
	captured = EXCLUDED.captured,
	unavailable = EXCLUDED.unavailable,
	skipped = EXCLUDED.skipped,
	aborted = EXCLUDED.aborted,
	abort_reason = EXCLUDED.abort_reason`, s.cycleTable)

	_, err := s.pool.Exec(ctx, query,
		cycleID,
		summary.Started,
		summary.Finished,
		summary.Discovered,
		summary.Visited,
		summary.Captured,
		summary.Unavailable,
		summary.Skipped,
		summary.Aborted,
		summary.AbortReason,
	)
	if err != nil {
		return fmt.Errorf("upsert cycle: %w", err)
	}
	return nil
}
