package attendance

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"presensi/internal/queue"
)

// RunSync consumes sync jobs from q with the given number of workers until
// ctx is done. Failed jobs are logged and skipped.
func (s *Service) RunSync(ctx context.Context, q queue.Queue, workers int) error {
	jobs, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init failed: %w", err)
	}
	if workers <= 0 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for job := range jobs {
				log := s.log.With(slog.String("job_id", job.ID), slog.String("kind", job.Kind))
				if err := s.Sync(ctx, job); err != nil {
					log.Warn("sync failed", slog.Any("error", err))
					continue
				}
				log.Info("sync done", slog.Int64("class_id", job.ClassID))
			}
			return nil
		})
	}
	return g.Wait()
}
