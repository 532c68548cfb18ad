/*-------------------------------------------------------------------------
 *
 * store.go
 *    Request store contract
 *
 * The store exclusively owns approval request rows; the engine only
 * issues conditional mutation commands. CompareAndSetStatus is the sole
 * sanctioned way to change a request's status and must be indivisible
 * with respect to concurrent callers. Any backing store satisfying that
 * contract works: the Postgres implementation (Queries) uses a single
 * conditional UPDATE, the in-memory implementation (MemStore) a mutex.
 *
 * IDENTIFICATION
 *    internal/db/store.go
 *
 *-------------------------------------------------------------------------
 */

package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("approval request not found")
	ErrDuplicateID = errors.New("approval request id already exists")
)

/* RequestUpdate carries non-status field mutations. Nil pointers leave
 * the column untouched; ClearOTPHash sets otp_hash to NULL (consuming
 * the active code). */
type RequestUpdate struct {
	OTPHash      *string
	ClearOTPHash bool
	OTPAttempts  *int
	DecidedAt    *time.Time
	ConfirmedAt  *time.Time
	ExecutedAt   *time.Time
	Result       []byte
	Error        *string
}

/* AuditSearchLimit caps audit query results, newest first */
const AuditSearchLimit = 100

type Store interface {
	/* CreateRequest inserts a new row, failing with ErrDuplicateID if the
	 * id already exists */
	CreateRequest(ctx context.Context, req *ApprovalRequest) error

	/* GetRequest returns ErrNotFound if the id is absent */
	GetRequest(ctx context.Context, id uuid.UUID) (*ApprovalRequest, error)

	/* ListActiveRequests returns PENDING and APPROVED rows ordered by
	 * creation time ascending, oldest first */
	ListActiveRequests(ctx context.Context) ([]ApprovalRequest, error)

	/* CompareAndSetStatus transitions id from expected to next, reporting
	 * whether exactly one row matched and was updated. A false return
	 * means a concurrent operation already moved the request. */
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next RequestStatus) (bool, error)

	/* UpdateRequestFields applies non-status mutations */
	UpdateRequestFields(ctx context.Context, id uuid.UUID, update RequestUpdate) error

	/* AppendAuditEvent appends one audit log entry */
	AppendAuditEvent(ctx context.Context, requestID uuid.UUID, event string, details JSONBMap) error

	/* SearchAuditEvents matches the query as a substring of event kind or
	 * details, newest first, at most AuditSearchLimit entries */
	SearchAuditEvents(ctx context.Context, query string) ([]AuditEvent, error)

	/* HealthCheck verifies the store is reachable */
	HealthCheck(ctx context.Context) error
}
