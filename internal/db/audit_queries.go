/*-------------------------------------------------------------------------
 *
 * audit_queries.go
 *    Database queries for the append-only audit log
 *
 * IDENTIFICATION
 *    internal/db/audit_queries.go
 *
 *-------------------------------------------------------------------------
 */

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

/* Audit log queries */
const (
	appendAuditEventQuery = `
		INSERT INTO audit_log (request_id, event, timestamp, details)
		VALUES ($1, $2, $3, $4)`

	searchAuditEventsQuery = `
		SELECT * FROM audit_log
		WHERE event ILIKE $1 OR details::text ILIKE $1
		ORDER BY id DESC
		LIMIT $2`
)

/* AppendAuditEvent appends one entry to the audit log */
func (q *Queries) AppendAuditEvent(ctx context.Context, requestID uuid.UUID, event string, details JSONBMap) error {
	detailsValue, err := FromMap(details).Value()
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	if _, err := q.db.ExecContext(ctx, appendAuditEventQuery, requestID, event, time.Now().UTC(), detailsValue); err != nil {
		return fmt.Errorf("audit event append failed: %w", err)
	}
	return nil
}

/* SearchAuditEvents matches the query as a substring of event kind or
 * details, newest first */
func (q *Queries) SearchAuditEvents(ctx context.Context, query string) ([]AuditEvent, error) {
	var events []AuditEvent
	pattern := "%" + query + "%"
	if err := q.db.SelectContext(ctx, &events, searchAuditEventsQuery, pattern, AuditSearchLimit); err != nil {
		return nil, fmt.Errorf("audit search failed: %w", err)
	}
	return events, nil
}
