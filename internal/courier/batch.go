package courier

import (
	"context"
	"sync"
	"time"

	"github.com/chetanft/courier-integration-sub002/internal/outcome"
	"github.com/chetanft/courier-integration-sub002/internal/reqspec"
)

// Target names one batch-fetch item. CourierID is stamped onto the
// descriptor when the descriptor does not carry one of its own.
type Target struct {
	CourierID  string
	Descriptor *reqspec.Descriptor
}

// BatchResult pairs a target with its outcome.
type BatchResult struct {
	CourierID string
	Outcome   outcome.Outcome
}

// FetchBatch runs every target and reports one outcome per target, in input
// order. Targets run in waves of the configured batch size with a pause
// between waves; one failing target never disturbs its siblings. When ctx
// is canceled between waves the remaining targets report canceled outcomes
// without being attempted.
func (s *Service) FetchBatch(ctx context.Context, targets []Target) []BatchResult {
	results := make([]BatchResult, len(targets))
	size := s.batchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	for wave := 0; wave < len(targets); wave += size {
		end := min(wave+size, len(targets))

		var wg sync.WaitGroup
		for i := wave; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = s.runTarget(ctx, targets[i])
			}(i)
		}
		wg.Wait()

		if end >= len(targets) || s.batchPause <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			for i := end; i < len(targets); i++ {
				results[i] = BatchResult{
					CourierID: targets[i].CourierID,
					Outcome:   outcome.Classify(nil, ctx.Err(), targets[i].Descriptor),
				}
			}
			return results
		case <-time.After(s.batchPause):
		}
	}
	return results
}

func (s *Service) runTarget(ctx context.Context, t Target) BatchResult {
	d := t.Descriptor
	if d != nil && t.CourierID != "" && d.CourierID == "" {
		d = d.Clone()
		d.CourierID = t.CourierID
	}
	return BatchResult{CourierID: t.CourierID, Outcome: s.Run(ctx, d)}
}
