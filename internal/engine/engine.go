/*-------------------------------------------------------------------------
 *
 * engine.go
 *    Approval request engine
 *
 * The state machine governing a request's life cycle:
 *
 *    PENDING -> APPROVED -> CONFIRMED -> EXECUTING -> {COMPLETED, ERROR}
 *    PENDING -> REJECTED
 *    {PENDING, APPROVED} -> EXPIRED
 *
 * Every status change goes through the store's atomic compare-and-set;
 * a failed compare-and-set means a concurrent operation already moved
 * the request and surfaces as a conflict, never as a retry. Every
 * successful transition appends exactly one audit event.
 *
 * IDENTIFICATION
 *    internal/engine/engine.go
 *
 *-------------------------------------------------------------------------
 */

package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"

	"github.com/joshuaohana/the-bastion/internal/db"
	"github.com/joshuaohana/the-bastion/internal/metrics"
	"github.com/joshuaohana/the-bastion/internal/otp"
	"github.com/joshuaohana/the-bastion/internal/plugin"
)

/* Audit event kinds, one per state-affecting operation */
const (
	EventRequestCreated   = "REQUEST_CREATED"
	EventRequestApproved  = "REQUEST_APPROVED"
	EventRequestRejected  = "REQUEST_REJECTED"
	EventRequestConfirmed = "REQUEST_CONFIRMED"
	EventRequestCompleted = "REQUEST_COMPLETED"
	EventRequestError     = "REQUEST_ERROR"
	EventRequestExpired   = "REQUEST_EXPIRED"
	EventOTPFailed        = "OTP_FAILED"
)

/* maxOTPAttempts is the failed-verification budget per approval cycle */
const maxOTPAttempts = 3

type Engine struct {
	store      db.Store
	registry   *plugin.Registry
	defaultTTL int
}

func New(store db.Store, registry *plugin.Registry, defaultTTLSeconds int) *Engine {
	return &Engine{
		store:      store,
		registry:   registry,
		defaultTTL: defaultTTLSeconds,
	}
}

/* Submit validates a proposed action against the plugin, obtains its
 * preview, and creates a PENDING request */
func (e *Engine) Submit(ctx context.Context, pluginName, action string, params json.RawMessage) (*db.ApprovalRequest, error) {
	ctx = metrics.WithPluginAction(ctx, pluginName, action)

	if !e.registry.HasAction(pluginName, action) {
		return nil, ErrUnknownAction
	}

	validation, err := e.registry.Validate(ctx, pluginName, action, params)
	if err != nil {
		return nil, &ValidationError{Reasons: []string{err.Error()}}
	}
	if !validation.Valid {
		reasons := validation.Errors
		if len(reasons) == 0 {
			reasons = []string{"invalid params"}
		}
		return nil, &ValidationError{Reasons: reasons}
	}

	preview, err := e.registry.Preview(ctx, pluginName, action, params)
	if err != nil {
		return nil, &PreviewError{Err: err}
	}

	req := &db.ApprovalRequest{
		ID:         uuid.New(),
		Plugin:     pluginName,
		Action:     action,
		Params:     types.JSONText(params),
		Preview:    preview.Text(),
		Status:     db.StatusPending,
		CreatedAt:  time.Now().UTC(),
		TTLSeconds: e.defaultTTL,
	}
	if err := e.store.CreateRequest(ctx, req); err != nil {
		return nil, err
	}

	e.audit(ctx, req.ID, EventRequestCreated, db.JSONBMap{
		"plugin": pluginName,
		"action": action,
	})
	metrics.RecordRequestCreated(pluginName, action)

	metrics.InfoWithContext(metrics.WithApprovalID(ctx, req.ID), "Approval request created", nil)
	return req, nil
}

/* Approve issues a one-time code and moves a PENDING request to
 * APPROVED. The returned code is shown to the approver exactly once and
 * only its hash is stored. */
func (e *Engine) Approve(ctx context.Context, id uuid.UUID) (string, error) {
	req, err := e.store.GetRequest(ctx, id)
	if err != nil {
		return "", err
	}
	if req.Status != db.StatusPending {
		return "", ErrConflict
	}

	code, err := otp.Generate(otp.DefaultLength)
	if err != nil {
		return "", err
	}
	hash, err := otp.Hash(code)
	if err != nil {
		return "", err
	}

	ok, err := e.store.CompareAndSetStatus(ctx, id, db.StatusPending, db.StatusApproved)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrConflict
	}
	metrics.RecordTransition(string(db.StatusPending), string(db.StatusApproved))

	now := time.Now().UTC()
	attempts := 0
	if err := e.store.UpdateRequestFields(ctx, id, db.RequestUpdate{
		OTPHash:     &hash,
		OTPAttempts: &attempts,
		DecidedAt:   &now,
	}); err != nil {
		/* The request is APPROVED with no stored hash: every confirm
		 * will conflict until the sweeper expires it */
		metrics.ErrorWithContext(ctx, "Storing code hash after approval failed", err, map[string]interface{}{
			"approval_id": id.String(),
		})
		return "", err
	}

	e.audit(ctx, id, EventRequestApproved, db.JSONBMap{"by": "human"})
	return code, nil
}

/* Reject moves a PENDING request to REJECTED */
func (e *Engine) Reject(ctx context.Context, id uuid.UUID, reason string) error {
	req, err := e.store.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	if req.Status != db.StatusPending {
		return ErrConflict
	}

	ok, err := e.store.CompareAndSetStatus(ctx, id, db.StatusPending, db.StatusRejected)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	metrics.RecordTransition(string(db.StatusPending), string(db.StatusRejected))

	now := time.Now().UTC()
	if err := e.store.UpdateRequestFields(ctx, id, db.RequestUpdate{DecidedAt: &now}); err != nil {
		return err
	}

	e.audit(ctx, id, EventRequestRejected, db.JSONBMap{"reason": reason})
	return nil
}

/* Confirm verifies the one-time code, drives the request through
 * CONFIRMED and EXECUTING, runs the plugin action, and finalizes to
 * COMPLETED or ERROR */
func (e *Engine) Confirm(ctx context.Context, id uuid.UUID, code string) (json.RawMessage, error) {
	req, err := e.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = metrics.WithPluginAction(metrics.WithApprovalID(ctx, id), req.Plugin, req.Action)

	if req.Status != db.StatusApproved || req.OTPHash == nil {
		return nil, ErrConflict
	}
	if req.OTPAttempts >= maxOTPAttempts {
		return nil, ErrMaxAttempts
	}

	if time.Now().After(deadline(req)) {
		ok, casErr := e.store.CompareAndSetStatus(ctx, id, db.StatusApproved, db.StatusExpired)
		if casErr == nil && ok {
			metrics.RecordTransition(string(db.StatusApproved), string(db.StatusExpired))
			/* A code hash only exists while APPROVED; the expired code
			 * must not linger on the row */
			if err := e.store.UpdateRequestFields(ctx, id, db.RequestUpdate{ClearOTPHash: true}); err != nil {
				metrics.WarnWithContext(ctx, "Clearing code hash on expiry failed", map[string]interface{}{
					"approval_id": id.String(),
					"error":       err.Error(),
				})
			}
			e.audit(ctx, id, EventRequestExpired, db.JSONBMap{"from": string(db.StatusApproved)})
		}
		return nil, ErrExpired
	}

	if !otp.Verify(code, *req.OTPHash) {
		attempts := req.OTPAttempts + 1
		if err := e.store.UpdateRequestFields(ctx, id, db.RequestUpdate{OTPAttempts: &attempts}); err != nil {
			return nil, err
		}
		e.audit(ctx, id, EventOTPFailed, db.JSONBMap{"attempts": attempts})
		metrics.RecordOTPFailure()
		return nil, ErrInvalidOTP
	}

	ok, err := e.store.CompareAndSetStatus(ctx, id, db.StatusApproved, db.StatusConfirmed)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	metrics.RecordTransition(string(db.StatusApproved), string(db.StatusConfirmed))

	now := time.Now().UTC()
	if err := e.store.UpdateRequestFields(ctx, id, db.RequestUpdate{
		ConfirmedAt:  &now,
		ClearOTPHash: true,
	}); err != nil {
		return nil, err
	}
	e.audit(ctx, id, EventRequestConfirmed, db.JSONBMap{})

	ok, err = e.store.CompareAndSetStatus(ctx, id, db.StatusConfirmed, db.StatusExecuting)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	metrics.RecordTransition(string(db.StatusConfirmed), string(db.StatusExecuting))

	return e.execute(ctx, req)
}

/* execute runs the plugin action and finalizes the request. Both a
 * failed call and a reported failure land in terminal ERROR with the
 * message captured verbatim; resubmission requires a new request. */
func (e *Engine) execute(ctx context.Context, req *db.ApprovalRequest) (json.RawMessage, error) {
	result, err := e.registry.Execute(ctx, req.Plugin, req.Action, json.RawMessage(req.Params))

	var failure string
	if err != nil {
		failure = err.Error()
	} else if !result.Success {
		failure = result.Error
		if failure == "" {
			failure = "execution failed"
		}
	}

	executedAt := time.Now().UTC()

	if failure != "" {
		ok, casErr := e.store.CompareAndSetStatus(ctx, req.ID, db.StatusExecuting, db.StatusError)
		if casErr != nil {
			return nil, casErr
		}
		if !ok {
			return nil, ErrConflict
		}
		metrics.RecordTransition(string(db.StatusExecuting), string(db.StatusError))

		if err := e.store.UpdateRequestFields(ctx, req.ID, db.RequestUpdate{
			Error:      &failure,
			ExecutedAt: &executedAt,
		}); err != nil {
			return nil, err
		}
		e.audit(ctx, req.ID, EventRequestError, db.JSONBMap{"error": failure})
		metrics.ErrorWithContext(ctx, "Plugin execution failed", nil, map[string]interface{}{
			"failure": failure,
		})
		return nil, &ExecutionError{Message: failure}
	}

	ok, casErr := e.store.CompareAndSetStatus(ctx, req.ID, db.StatusExecuting, db.StatusCompleted)
	if casErr != nil {
		return nil, casErr
	}
	if !ok {
		return nil, ErrConflict
	}
	metrics.RecordTransition(string(db.StatusExecuting), string(db.StatusCompleted))

	resultJSON := result.Result
	if resultJSON == nil {
		resultJSON = json.RawMessage("null")
	}
	if err := e.store.UpdateRequestFields(ctx, req.ID, db.RequestUpdate{
		Result:     resultJSON,
		ExecutedAt: &executedAt,
	}); err != nil {
		return nil, err
	}
	e.audit(ctx, req.ID, EventRequestCompleted, db.JSONBMap{"result": json.RawMessage(resultJSON)})

	metrics.InfoWithContext(ctx, "Approval request completed", nil)
	return resultJSON, nil
}

/* Get returns the current request row */
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*db.ApprovalRequest, error) {
	return e.store.GetRequest(ctx, id)
}

/* ListActive returns PENDING and APPROVED requests, oldest first */
func (e *Engine) ListActive(ctx context.Context) ([]db.ApprovalRequest, error) {
	return e.store.ListActiveRequests(ctx)
}

/* SearchAudit queries the audit log by substring over kind and details */
func (e *Engine) SearchAudit(ctx context.Context, query string) ([]db.AuditEvent, error) {
	return e.store.SearchAuditEvents(ctx, query)
}

/* deadline computes when a request's time window elapses. PENDING
 * requests anchor on creation (time-to-approve budget); APPROVED
 * requests anchor on the approval decision (time-to-confirm budget).
 * The sweeper applies the identical policy. */
func deadline(req *db.ApprovalRequest) time.Time {
	anchor := req.CreatedAt
	if req.Status == db.StatusApproved && req.DecidedAt != nil {
		anchor = *req.DecidedAt
	}
	return anchor.Add(time.Duration(req.TTLSeconds) * time.Second)
}

/* audit appends one event; a failed audit write degrades observability
 * but never rolls back the transition it records */
func (e *Engine) audit(ctx context.Context, id uuid.UUID, event string, details db.JSONBMap) {
	if err := e.store.AppendAuditEvent(ctx, id, event, details); err != nil {
		metrics.WarnWithContext(ctx, "Audit write failed", map[string]interface{}{
			"approval_id": id.String(),
			"event":       event,
			"error":       err.Error(),
		})
	}
}
