/*-------------------------------------------------------------------------
 *
 * sweeper.go
 *    Background expiry sweep for stale approval requests
 *
 * Runs on a fixed interval, independent of request traffic, racing the
 * live handlers against the same store. A failed compare-and-set is
 * silently skipped: another operation already resolved the request's
 * fate.
 *
 * IDENTIFICATION
 *    internal/engine/sweeper.go
 *
 *-------------------------------------------------------------------------
 */

package engine

import (
	"context"
	"sync"
	"time"

	"github.com/joshuaohana/the-bastion/internal/db"
	"github.com/joshuaohana/the-bastion/internal/metrics"
)

type Sweeper struct {
	store    db.Store
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewSweeper(store db.Store, interval time.Duration) *Sweeper {
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		store:    store,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(s.ctx); err != nil {
				metrics.WarnWithContext(s.ctx, "Expiry sweep failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}
}

/* RunOnce performs a single deterministic sweep tick, returning how
 * many requests it expired */
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	active, err := s.store.ListActiveRequests(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	expired := 0
	for i := range active {
		req := &active[i]
		if !now.After(deadline(req)) {
			continue
		}

		ok, err := s.store.CompareAndSetStatus(ctx, req.ID, req.Status, db.StatusExpired)
		if err != nil {
			metrics.WarnWithContext(ctx, "Expiry transition failed", map[string]interface{}{
				"approval_id": req.ID.String(),
				"error":       err.Error(),
			})
			continue
		}
		if !ok {
			/* Another operation already resolved this request */
			continue
		}

		metrics.RecordTransition(string(req.Status), string(db.StatusExpired))

		/* APPROVED rows carry a code hash; the expired code must not
		 * linger on the row */
		if req.Status == db.StatusApproved {
			if err := s.store.UpdateRequestFields(ctx, req.ID, db.RequestUpdate{ClearOTPHash: true}); err != nil {
				metrics.WarnWithContext(ctx, "Clearing code hash on expiry failed", map[string]interface{}{
					"approval_id": req.ID.String(),
					"error":       err.Error(),
				})
			}
		}

		if err := s.store.AppendAuditEvent(ctx, req.ID, EventRequestExpired, db.JSONBMap{
			"from": string(req.Status),
		}); err != nil {
			metrics.WarnWithContext(ctx, "Audit write failed", map[string]interface{}{
				"approval_id": req.ID.String(),
				"event":       EventRequestExpired,
				"error":       err.Error(),
			})
		}
		expired++

		metrics.InfoWithContext(metrics.WithApprovalID(ctx, req.ID), "Expired stale approval request", map[string]interface{}{
			"from": string(req.Status),
		})
	}

	metrics.RecordSweepTick(expired)
	return expired, nil
}

func (s *Sweeper) Stop() {
	s.cancel()
	s.wg.Wait()
}
