/*-------------------------------------------------------------------------
 *
 * errors.go
 *    Engine error taxonomy
 *
 * Sentinel errors mapped to HTTP statuses at the API boundary. A failed
 * conditional transition always surfaces as ErrConflict: it means a
 * concurrent operation already moved the request, never a transient
 * condition to retry.
 *
 * IDENTIFICATION
 *    internal/engine/errors.go
 *
 *-------------------------------------------------------------------------
 */

package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	/* ErrUnknownAction means the plugin is not registered or its manifest
	 * does not declare the action */
	ErrUnknownAction = errors.New("unknown plugin action")

	/* ErrConflict means the request was not in the state the operation
	 * requires, or a concurrent operation won the transition */
	ErrConflict = errors.New("request is not in a valid state for this operation")

	/* ErrInvalidOTP means the presented code did not match */
	ErrInvalidOTP = errors.New("invalid one-time code")

	/* ErrMaxAttempts means the approval cycle's failed-attempt budget is
	 * exhausted and confirm is permanently refused */
	ErrMaxAttempts = errors.New("maximum confirmation attempts exceeded")

	/* ErrExpired means the request's time window elapsed */
	ErrExpired = errors.New("request expired")
)

/* ValidationError carries the plugin's reasons for rejecting parameters */
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	if len(e.Reasons) == 0 {
		return "invalid params"
	}
	return strings.Join(e.Reasons, "; ")
}

/* PreviewError means the plugin could not produce a preview, which
 * aborts submission */
type PreviewError struct {
	Err error
}

func (e *PreviewError) Error() string {
	return fmt.Sprintf("preview required and failed: %v", e.Err)
}

func (e *PreviewError) Unwrap() error { return e.Err }

/* ExecutionError carries the plugin's failure message after the request
 * has landed in its terminal ERROR state */
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string { return e.Message }
