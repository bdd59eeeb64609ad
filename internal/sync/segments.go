package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/klaviyo-sync/internal/pkg/logger"
	"github.com/ignite/klaviyo-sync/internal/store"
)

// syncSegments records segment identity only. Segment analytics stay
// disabled (the client's segment-series call is a stub), so ProfileCount is
// always persisted as zero.
func (r *clientRun) syncSegments(ctx context.Context) (int, error) {
	segments, err := r.api.Segments(ctx)
	if err != nil {
		return 0, fmt.Errorf("segment list: %w", err)
	}

	today := midnightUTC(time.Now())
	saved := 0
	for _, seg := range segments {
		m := store.SegmentMetric{
			ClientID:     r.clientID,
			SegmentID:    seg.ID,
			Name:         seg.Name,
			Date:         today,
			ProfileCount: 0,
		}
		if err := r.svc.storage.UpsertSegmentMetric(ctx, m); err != nil {
			logger.Error("sync: segment upsert failed",
				"client_id", r.clientID, "segment_id", seg.ID, "error", err)
			continue
		}
		saved++
	}
	return saved, nil
}
