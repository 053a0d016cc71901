package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/floodcam/internal/pipeline"
)

// RecordCapture inserts one archived frame.
func (s *Store) RecordCapture(ctx context.Context, record pipeline.CaptureRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("capture store is not configured")
	}
	if record.ID == "" {
		return fmt.Errorf("record id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	cycle_id,
	ordinal,
	camera_name,
	file_name,
	content_hash,
	archive_uri,
	classified,
	flood,
	flood_probability,
	captured_at,
	recorded_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)`, s.captureTable)

	args := []any{
		record.ID,
		record.CycleID,
		record.Ordinal,
		record.CameraName,
		record.FileName,
		record.ContentHash,
		record.ArchiveURI,
		record.Classified,
		record.Flood,
		record.FloodProbability,
		record.CapturedAt,
		record.RecordedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert capture: %w", err)
	}
	return nil
}
