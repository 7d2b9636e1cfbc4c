package app

import (
	"context"
	"log"
	"time"

	"github.com/caliperhq/caliper/internal/platform/timeouts"
	"github.com/caliperhq/caliper/internal/services/interview/domain/session"
)

// expiryBatchSize bounds how many sessions one sweep examines.
const expiryBatchSize = 100

// ExpireDueSessions runs one expiry sweep: every session whose timeout
// window has elapsed is moved to EXPIRED through the same serialized
// transition path external callers use. Sessions locked by an in-flight
// operation are skipped and picked up on the next sweep. Returns the number
// of sessions expired.
func (s *Service) ExpireDueSessions(ctx context.Context) (int, error) {
	candidates, err := s.sessions.ListExpiryCandidates(ctx, expiryBatchSize)
	if err != nil {
		return 0, err
	}

	now := s.now().UTC()
	expired := 0
	for _, record := range candidates {
		if !session.ExpiryDue(record, now, s.windows) {
			continue
		}

		release := s.locks.tryAcquire(record.ID)
		if release == nil {
			continue
		}

		done, err := s.expireOne(ctx, record.ID, now)
		release()
		if err != nil {
			log.Printf("expire session session_id=%s: %v", record.ID, err)
			continue
		}
		if done {
			expired++
		}
	}
	return expired, nil
}

// expireOne re-reads the session under the lock and expires it if still due.
// A session that raced into another status is left alone.
func (s *Service) expireOne(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	record, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if !session.ExpiryDue(record, now, s.windows) {
		return false, nil
	}
	updated, err := session.Expire(record, s.now)
	if err != nil {
		return false, err
	}
	if err := s.sessions.PutSession(ctx, updated); err != nil {
		return false, err
	}
	s.revokeCredentials(ctx, updated.ID)
	log.Printf("session expired session_id=%s from=%s", updated.ID, record.Status.Label())
	return true, nil
}

// RunExpiryWorker sweeps for due sessions until the context is cancelled.
func (s *Service) RunExpiryWorker(ctx context.Context) {
	ticker := time.NewTicker(timeouts.ExpirySweepInterval)
	defer ticker.Stop()

	log.Printf("expiry worker started interval=%s", timeouts.ExpirySweepInterval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("expiry worker stopped")
			return
		case <-ticker.C:
			if _, err := s.ExpireDueSessions(ctx); err != nil {
				log.Printf("expiry sweep: %v", err)
			}
		}
	}
}
