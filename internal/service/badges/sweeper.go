package badges

import (
	"context"
	"time"

	prommetrics "github.com/aimd54/storefront-badges/internal/metrics"
)

// SweepExpired deactivates awards whose expiry is at or before now. Only awards of
// closed windows are touched, so a sweep never races an evaluation of the current week.
// History (awarded_at, criteria, celebration flag) is left as is.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	started := time.Now()

	n, err := s.awards.SweepExpired(ctx, now.UTC())
	if err != nil {
		s.log.Error().Err(err).Time("now", now).Msg("Failed to sweep expired awards")
		return 0, NewStorageError("sweep expired", err)
	}

	prommetrics.RecordSweep(n)
	s.log.Info().
		Int64("deactivated", n).
		Dur("duration", time.Since(started)).
		Msg("Expired awards swept")

	return n, nil
}
