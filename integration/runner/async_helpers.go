package runner

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// PollInterval is how often WaitForMatch polls the arena.
const PollInterval = 250 * time.Millisecond

// WaitForMatch polls a queued character until it leaves the waiting state
// or ctx expires.
func (r *Runner) WaitForMatch(ctx context.Context, charID string) (Observation, error) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		obs, err := r.poll(ctx, charID)
		if err != nil {
			return obs, err
		}
		if obs.HTTPStatus != http.StatusOK || obs.Status != "waiting" {
			return obs, nil
		}
		select {
		case <-ctx.Done():
			return obs, fmt.Errorf("%s still waiting for a match: %w", charID, ctx.Err())
		case <-ticker.C:
		}
	}
}
