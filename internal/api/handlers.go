/*-------------------------------------------------------------------------
 *
 * handlers.go
 *    Agent-facing HTTP handlers for the bastion gateway
 *
 * The agent surface lets an automated caller submit a proposed action,
 * poll its status, and confirm it with the one-time code relayed by the
 * human approver. Approval and rejection live on the approver surface
 * in admin_handlers.go.
 *
 * IDENTIFICATION
 *    internal/api/handlers.go
 *
 *-------------------------------------------------------------------------
 */

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/joshuaohana/the-bastion/internal/auth"
	"github.com/joshuaohana/the-bastion/internal/db"
	"github.com/joshuaohana/the-bastion/internal/engine"
	"github.com/joshuaohana/the-bastion/internal/metrics"
	"github.com/joshuaohana/the-bastion/internal/plugin"
)

type Handlers struct {
	engine            *engine.Engine
	store             db.Store
	registry          *plugin.Registry
	sessions          *auth.SessionManager
	limiter           *auth.RateLimiter
	agentKey          string
	adminPasswordHash string
	rateLimitPerMin   int
}

func NewHandlers(eng *engine.Engine, store db.Store, registry *plugin.Registry, sessions *auth.SessionManager, agentKey, adminPasswordHash string, rateLimitPerMin int) *Handlers {
	return &Handlers{
		engine:            eng,
		store:             store,
		registry:          registry,
		sessions:          sessions,
		limiter:           auth.NewRateLimiter(),
		agentKey:          agentKey,
		adminPasswordHash: adminPasswordHash,
		rateLimitPerMin:   rateLimitPerMin,
	}
}

/* Router assembles the full route table. Health, metrics, and login are
 * unauthenticated; everything under /request requires the agent key and
 * everything under /api requires approver credentials. */
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(CORSMiddleware)
	r.Use(LoggingMiddleware)

	r.HandleFunc("/health", h.Health).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")
	r.HandleFunc("/api/login", h.Login).Methods("POST")

	agent := r.PathPrefix("/request").Subrouter()
	agent.Use(h.agentAuth)
	agent.HandleFunc("", h.SubmitRequest).Methods("POST")
	agent.HandleFunc("/{id}/confirm", h.ConfirmRequest).Methods("POST")
	agent.HandleFunc("/{id}", h.GetRequest).Methods("GET")

	admin := r.PathPrefix("/api").Subrouter()
	admin.Use(h.adminAuth)
	admin.HandleFunc("/requests/pending", h.ListPendingRequests).Methods("GET")
	admin.HandleFunc("/requests/{id}", h.GetRequestAdmin).Methods("GET")
	admin.HandleFunc("/requests/{id}/approve", h.ApproveRequest).Methods("POST")
	admin.HandleFunc("/requests/{id}/reject", h.RejectRequest).Methods("POST")
	admin.HandleFunc("/plugins", h.ListPlugins).Methods("GET")
	admin.HandleFunc("/audit", h.SearchAudit).Methods("GET")

	return r
}

/* Health reports process liveness and store reachability */
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.HealthCheck(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type submitRequestBody struct {
	Plugin string          `json:"plugin"`
	Action string          `json:"action"`
	Params json.RawMessage `json:"params"`
}

/* SubmitRequest validates a proposed action and creates a PENDING
 * approval request */
func (h *Handlers) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	var body submitRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, WrapError(NewError(http.StatusBadRequest, "invalid request body", err), requestID))
		return
	}
	if body.Plugin == "" || body.Action == "" {
		respondError(w, WrapError(NewError(http.StatusBadRequest, "plugin and action are required", nil), requestID))
		return
	}
	if len(body.Params) == 0 {
		body.Params = json.RawMessage("{}")
	}

	req, err := h.engine.Submit(r.Context(), body.Plugin, body.Action, body.Params)
	if err != nil {
		respondError(w, WrapError(mapEngineError(err), requestID))
		return
	}

	respondJSON(w, http.StatusOK, SubmitResponse{
		RequestID: req.ID.String(),
		Status:    wireStatus(req.Status),
		Preview:   req.Preview,
	})
}

type confirmRequestBody struct {
	OTP string `json:"otp"`
}

/* ConfirmRequest verifies the one-time code and, on success, executes
 * the approved action synchronously */
func (h *Handlers) ConfirmRequest(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	id, apiErr := parseRequestID(r)
	if apiErr != nil {
		respondError(w, WrapError(apiErr, requestID))
		return
	}

	var body confirmRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, WrapError(NewError(http.StatusBadRequest, "invalid request body", err), requestID))
		return
	}
	if body.OTP == "" {
		respondError(w, WrapError(NewError(http.StatusBadRequest, "otp is required", nil), requestID))
		return
	}

	result, err := h.engine.Confirm(r.Context(), id, body.OTP)
	if err != nil {
		/* An execution failure is already captured on the request; the
		 * caller gets the terminal status and the message */
		var execErr *engine.ExecutionError
		if errors.As(err, &execErr) {
			respondJSON(w, http.StatusInternalServerError, map[string]string{
				"request_id": id.String(),
				"status":     wireStatus(db.StatusError),
				"error":      execErr.Message,
			})
			return
		}
		respondError(w, WrapError(mapEngineError(err), requestID))
		return
	}

	respondJSON(w, http.StatusOK, ConfirmResponse{
		RequestID: id.String(),
		Status:    wireStatus(db.StatusCompleted),
		Result:    result,
	})
}

/* GetRequest returns the current state of a request to the agent */
func (h *Handlers) GetRequest(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	id, apiErr := parseRequestID(r)
	if apiErr != nil {
		respondError(w, WrapError(apiErr, requestID))
		return
	}

	req, err := h.engine.Get(r.Context(), id)
	if err != nil {
		respondError(w, WrapError(mapEngineError(err), requestID))
		return
	}

	respondJSON(w, http.StatusOK, toRequestResponse(req))
}

func parseRequestID(r *http.Request) (uuid.UUID, *APIError) {
	vars := mux.Vars(r)
	id, err := uuid.Parse(vars["id"])
	if err != nil {
		return uuid.Nil, NewError(http.StatusBadRequest, "invalid request id", err)
	}
	return id, nil
}

/* mapEngineError translates engine errors to HTTP statuses. The
 * mapping is part of the API contract: conflicts are 409, a bad code
 * is 401, an exhausted attempt budget is 403, expiry is 410. */
func mapEngineError(err error) *APIError {
	var validationErr *engine.ValidationError
	var previewErr *engine.PreviewError
	var executionErr *engine.ExecutionError

	switch {
	case errors.Is(err, db.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, engine.ErrUnknownAction):
		return NewError(http.StatusBadRequest, err.Error(), err)
	case errors.As(err, &validationErr):
		apiErr := NewError(http.StatusBadRequest, "validation failed", err)
		apiErr.Reasons = validationErr.Reasons
		return apiErr
	case errors.As(err, &previewErr):
		return NewError(http.StatusBadRequest, err.Error(), err)
	case errors.Is(err, engine.ErrConflict):
		return NewError(http.StatusConflict, err.Error(), err)
	case errors.Is(err, engine.ErrInvalidOTP):
		return NewError(http.StatusUnauthorized, err.Error(), err)
	case errors.Is(err, engine.ErrMaxAttempts):
		return NewError(http.StatusForbidden, err.Error(), err)
	case errors.Is(err, engine.ErrExpired):
		return NewError(http.StatusGone, err.Error(), err)
	case errors.As(err, &executionErr):
		return NewError(http.StatusInternalServerError, executionErr.Message, err)
	default:
		return NewError(http.StatusInternalServerError, "internal error", err)
	}
}
