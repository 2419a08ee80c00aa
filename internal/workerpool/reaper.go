package workerpool

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mireiodev/gemforge/internal/jobrunner"
)

// staleClaimGrace is spec §9's "staleness threshold": the minimum age an
// IN_PROGRESS claim must reach before its claimant's absence from the
// pool's live worker set is trusted, rather than attributed to the brief
// window between a worker's ClaimNext and the pool observing it as alive.
const staleClaimGrace = 3 * time.Second

// reapStale implements spec §9's reap policy: liveness is a process-presence
// check against the pool's own worker set (no separate heartbeat table is
// needed, since the pool already tracks every worker process it spawned).
// A claim is reclaimed only once it is both unclaimed by any live worker
// and older than staleClaimGrace. Reclaiming uses the same retry-or-fail
// policy as jobrunner.Retry (S2: "R reappears as PENDING with retries=1").
func (p *Pooler) reapStale(ctx context.Context) {
	claims, err := p.store.InProgressClaims(ctx)
	if err != nil {
		p.log.Error("reaper: list in-progress claims failed", "error", err)
		return
	}
	if len(claims) == 0 {
		return
	}

	p.mu.Lock()
	alive := make(map[uuid.UUID]struct{}, len(p.workers))
	for _, w := range p.workers {
		alive[w.ID()] = struct{}{}
	}
	p.mu.Unlock()

	now := time.Now()
	for _, c := range claims {
		if _, ok := alive[c.ClaimedBy]; ok {
			continue
		}
		if now.Sub(c.StartedAt) < staleClaimGrace {
			continue
		}
		if err := jobrunner.ReapStale(ctx, p.store, c.ID); err != nil {
			p.log.Error("reaper: reclaim failed", "job", c.ID, "worker", c.ClaimedBy, "error", err)
			continue
		}
		p.log.Info("reaper: reclaimed stale in-progress row", "job", c.ID, "worker", c.ClaimedBy)
	}
}
