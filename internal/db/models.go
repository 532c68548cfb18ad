/*-------------------------------------------------------------------------
 *
 * models.go
 *    Database models for the bastion gateway
 *
 * Defines the approval request row, its status state machine values,
 * and the append-only audit log row.
 *
 * IDENTIFICATION
 *    internal/db/models.go
 *
 *-------------------------------------------------------------------------
 */

package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
)

/* RequestStatus is the single field every transition guards on */
type RequestStatus string

const (
	StatusPending   RequestStatus = "PENDING"
	StatusApproved  RequestStatus = "APPROVED"
	StatusConfirmed RequestStatus = "CONFIRMED"
	StatusExecuting RequestStatus = "EXECUTING"
	StatusCompleted RequestStatus = "COMPLETED"
	StatusRejected  RequestStatus = "REJECTED"
	StatusExpired   RequestStatus = "EXPIRED"
	StatusError     RequestStatus = "ERROR"
)

/* Terminal reports whether no further transitions are possible */
func (s RequestStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusExpired, StatusError:
		return true
	}
	return false
}

/* ApprovalRequest is one proposed plugin action awaiting human review.
 * Params and Result are opaque to the gateway; only the plugin's own
 * validate/preview/execute operations interpret them. OTPHash is non-nil
 * exactly while the request is APPROVED. */
type ApprovalRequest struct {
	ID          uuid.UUID      `db:"id" json:"id"`
	Plugin      string         `db:"plugin" json:"plugin"`
	Action      string         `db:"action" json:"action"`
	Params      types.JSONText `db:"params" json:"params"`
	Preview     string         `db:"preview" json:"preview"`
	Status      RequestStatus  `db:"status" json:"status"`
	OTPHash     *string        `db:"otp_hash" json:"-"`
	OTPAttempts int            `db:"otp_attempts" json:"otp_attempts"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	DecidedAt   *time.Time     `db:"decided_at" json:"decided_at,omitempty"`
	ConfirmedAt *time.Time     `db:"confirmed_at" json:"confirmed_at,omitempty"`
	ExecutedAt  *time.Time     `db:"executed_at" json:"executed_at,omitempty"`
	Result      types.JSONText `db:"result" json:"result,omitempty"`
	Error       *string        `db:"error" json:"error,omitempty"`
	TTLSeconds  int            `db:"ttl_seconds" json:"ttl_seconds"`
}

/* AuditEvent is one append-only audit log entry. Never updated or deleted. */
type AuditEvent struct {
	ID        int64     `db:"id" json:"id"`
	RequestID uuid.UUID `db:"request_id" json:"request_id"`
	Event     string    `db:"event" json:"event"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
	Details   JSONBMap  `db:"details" json:"details"`
}
