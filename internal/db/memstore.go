/*-------------------------------------------------------------------------
 *
 * memstore.go
 *    In-memory request store
 *
 * Mutex-guarded implementation of the Store contract, selected with
 * database.driver "memory". The compare-and-set check and write happen
 * under one lock acquisition, giving the same indivisibility guarantee
 * as the Postgres conditional UPDATE.
 *
 * IDENTIFICATION
 *    internal/db/memstore.go
 *
 *-------------------------------------------------------------------------
 */

package db

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemStore struct {
	mu          sync.Mutex
	requests    map[uuid.UUID]*ApprovalRequest
	audit       []AuditEvent
	nextAuditID int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		requests:    make(map[uuid.UUID]*ApprovalRequest),
		nextAuditID: 1,
	}
}

func (s *MemStore) CreateRequest(ctx context.Context, req *ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[req.ID]; exists {
		return ErrDuplicateID
	}
	stored := *req
	s.requests[req.ID] = &stored
	return nil
}

func (s *MemStore) GetRequest(ctx context.Context, id uuid.UUID) (*ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, exists := s.requests[id]
	if !exists {
		return nil, ErrNotFound
	}
	copied := *req
	return &copied, nil
}

func (s *MemStore) ListActiveRequests(ctx context.Context) ([]ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var active []ApprovalRequest
	for _, req := range s.requests {
		if req.Status == StatusPending || req.Status == StatusApproved {
			active = append(active, *req)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	return active, nil
}

func (s *MemStore) CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next RequestStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, exists := s.requests[id]
	if !exists || req.Status != expected {
		return false, nil
	}
	req.Status = next
	return true, nil
}

func (s *MemStore) UpdateRequestFields(ctx context.Context, id uuid.UUID, update RequestUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, exists := s.requests[id]
	if !exists {
		return ErrNotFound
	}

	if update.ClearOTPHash {
		req.OTPHash = nil
	} else if update.OTPHash != nil {
		hash := *update.OTPHash
		req.OTPHash = &hash
	}
	if update.OTPAttempts != nil {
		req.OTPAttempts = *update.OTPAttempts
	}
	if update.DecidedAt != nil {
		t := *update.DecidedAt
		req.DecidedAt = &t
	}
	if update.ConfirmedAt != nil {
		t := *update.ConfirmedAt
		req.ConfirmedAt = &t
	}
	if update.ExecutedAt != nil {
		t := *update.ExecutedAt
		req.ExecutedAt = &t
	}
	if update.Result != nil {
		req.Result = append([]byte(nil), update.Result...)
	}
	if update.Error != nil {
		msg := *update.Error
		req.Error = &msg
	}
	return nil
}

func (s *MemStore) AppendAuditEvent(ctx context.Context, requestID uuid.UUID, event string, details JSONBMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.audit = append(s.audit, AuditEvent{
		ID:        s.nextAuditID,
		RequestID: requestID,
		Event:     event,
		Timestamp: time.Now().UTC(),
		Details:   FromMap(details),
	})
	s.nextAuditID++
	return nil
}

func (s *MemStore) SearchAuditEvents(ctx context.Context, query string) ([]AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	needle := strings.ToLower(query)
	var matched []AuditEvent
	for i := len(s.audit) - 1; i >= 0 && len(matched) < AuditSearchLimit; i-- {
		ev := s.audit[i]
		detailsJSON, _ := json.Marshal(ev.Details)
		if strings.Contains(strings.ToLower(ev.Event), needle) ||
			strings.Contains(strings.ToLower(string(detailsJSON)), needle) {
			matched = append(matched, ev)
		}
	}
	return matched, nil
}

func (s *MemStore) HealthCheck(ctx context.Context) error {
	return nil
}
