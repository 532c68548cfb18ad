/*-------------------------------------------------------------------------
 *
 * request_queries.go
 *    Database queries for approval requests
 *
 * The conditional UPDATE in compareAndSetStatusQuery is the system's
 * sole concurrency-correctness mechanism: the status check and write
 * happen in one statement, so a transition commits only if the row was
 * still in the expected state at the moment of the write.
 *
 * IDENTIFICATION
 *    internal/db/request_queries.go
 *
 *-------------------------------------------------------------------------
 */

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

/* Approval request queries */
const (
	createRequestQuery = `
		INSERT INTO approval_requests
		(id, plugin, action, params, preview, status, otp_hash, otp_attempts, created_at, ttl_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	getRequestQuery = `SELECT * FROM approval_requests WHERE id = $1`

	listActiveRequestsQuery = `
		SELECT * FROM approval_requests
		WHERE status IN ('PENDING', 'APPROVED')
		ORDER BY created_at ASC`

	compareAndSetStatusQuery = `
		UPDATE approval_requests SET status = $3
		WHERE id = $1 AND status = $2`
)

/* Queries provides the PostgreSQL-backed request store */
type Queries struct {
	db *DB
}

func NewQueries(database *DB) *Queries {
	return &Queries{db: database}
}

/* CreateRequest inserts a new approval request row */
func (q *Queries) CreateRequest(ctx context.Context, req *ApprovalRequest) error {
	_, err := q.db.ExecContext(ctx, createRequestQuery,
		req.ID, req.Plugin, req.Action, []byte(req.Params), req.Preview,
		req.Status, req.OTPHash, req.OTPAttempts, req.CreatedAt, req.TTLSeconds)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateID
		}
		return fmt.Errorf("approval request creation failed: %w", err)
	}
	return nil
}

/* GetRequest fetches a single approval request by id */
func (q *Queries) GetRequest(ctx context.Context, id uuid.UUID) (*ApprovalRequest, error) {
	var req ApprovalRequest
	err := q.db.GetContext(ctx, &req, getRequestQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get approval request: %w", err)
	}
	return &req, nil
}

/* ListActiveRequests lists PENDING and APPROVED requests, oldest first */
func (q *Queries) ListActiveRequests(ctx context.Context) ([]ApprovalRequest, error) {
	var requests []ApprovalRequest
	if err := q.db.SelectContext(ctx, &requests, listActiveRequestsQuery); err != nil {
		return nil, fmt.Errorf("failed to list active approval requests: %w", err)
	}
	return requests, nil
}

/* CompareAndSetStatus transitions the request from expected to next,
 * reporting whether exactly one row was updated */
func (q *Queries) CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next RequestStatus) (bool, error) {
	res, err := q.db.ExecContext(ctx, compareAndSetStatusQuery, id, expected, next)
	if err != nil {
		return false, fmt.Errorf("status transition %s -> %s failed: %w", expected, next, err)
	}
	changed, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("status transition %s -> %s failed: %w", expected, next, err)
	}
	return changed == 1, nil
}

/* UpdateRequestFields applies non-status mutations to a request row */
func (q *Queries) UpdateRequestFields(ctx context.Context, id uuid.UUID, update RequestUpdate) error {
	var sets []string
	var args []interface{}

	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.ClearOTPHash {
		sets = append(sets, "otp_hash = NULL")
	} else if update.OTPHash != nil {
		add("otp_hash", *update.OTPHash)
	}
	if update.OTPAttempts != nil {
		add("otp_attempts", *update.OTPAttempts)
	}
	if update.DecidedAt != nil {
		add("decided_at", *update.DecidedAt)
	}
	if update.ConfirmedAt != nil {
		add("confirmed_at", *update.ConfirmedAt)
	}
	if update.ExecutedAt != nil {
		add("executed_at", *update.ExecutedAt)
	}
	if update.Result != nil {
		add("result", update.Result)
	}
	if update.Error != nil {
		add("error", *update.Error)
	}

	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE approval_requests SET %s WHERE id = $%d",
		strings.Join(sets, ", "), len(args))

	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("approval request update failed: %w", err)
	}
	if changed, err := res.RowsAffected(); err == nil && changed == 0 {
		return ErrNotFound
	}
	return nil
}

/* HealthCheck delegates to the underlying connection pool */
func (q *Queries) HealthCheck(ctx context.Context) error {
	return q.db.HealthCheck(ctx)
}
