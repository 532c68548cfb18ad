/*-------------------------------------------------------------------------
 *
 * admin_handlers.go
 *    Approver-facing HTTP handlers for the bastion gateway
 *
 * The approver surface lets a human review pending requests, approve
 * one (receiving the one-time code), reject one with a reason, and
 * search the audit trail. The code returned by approve is never
 * persisted in the clear and never shown again.
 *
 * IDENTIFICATION
 *    internal/api/admin_handlers.go
 *
 *-------------------------------------------------------------------------
 */

package api

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/joshuaohana/the-bastion/internal/auth"
	"github.com/joshuaohana/the-bastion/internal/db"
	"github.com/joshuaohana/the-bastion/internal/metrics"
)

type loginBody struct {
	Password string `json:"password"`
}

/* Login exchanges the approver password for a short-lived session token */
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	var body loginBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, WrapError(NewError(http.StatusBadRequest, "invalid request body", err), requestID))
		return
	}

	if !h.limiter.CheckLimit("login", h.rateLimitPerMin) {
		respondError(w, WrapError(NewError(http.StatusTooManyRequests, "rate limit exceeded", nil), requestID))
		return
	}

	if !auth.VerifyPassword(body.Password, h.adminPasswordHash) {
		metrics.WarnWithContext(r.Context(), "Approver login failed", nil)
		respondError(w, WrapError(ErrUnauthorized, requestID))
		return
	}

	token, expires, err := h.sessions.Issue()
	if err != nil {
		respondError(w, WrapError(NewError(http.StatusInternalServerError, "failed to create session", err), requestID))
		return
	}

	respondJSON(w, http.StatusOK, LoginResponse{Token: token, ExpiresAt: expires})
}

/* ListPendingRequests returns active requests awaiting a decision or a
 * confirmation, oldest first */
func (h *Handlers) ListPendingRequests(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	active, err := h.engine.ListActive(r.Context())
	if err != nil {
		respondError(w, WrapError(mapEngineError(err), requestID))
		return
	}

	responses := make([]RequestResponse, 0, len(active))
	for i := range active {
		responses = append(responses, toRequestResponse(&active[i]))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"requests": responses,
		"count":    len(responses),
	})
}

/* GetRequestAdmin returns the full state of any request to the approver */
func (h *Handlers) GetRequestAdmin(w http.ResponseWriter, r *http.Request) {
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

/* ApproveRequest moves a PENDING request to APPROVED and returns the
 * one-time code for out-of-band relay to the agent operator */
func (h *Handlers) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	id, apiErr := parseRequestID(r)
	if apiErr != nil {
		respondError(w, WrapError(apiErr, requestID))
		return
	}

	code, err := h.engine.Approve(r.Context(), id)
	if err != nil {
		respondError(w, WrapError(mapEngineError(err), requestID))
		return
	}

	respondJSON(w, http.StatusOK, ApproveResponse{
		RequestID: id.String(),
		Status:    wireStatus(db.StatusApproved),
		OTP:       code,
	})
}

type rejectBody struct {
	Reason string `json:"reason"`
}

/* RejectRequest moves a PENDING request to terminal REJECTED */
func (h *Handlers) RejectRequest(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	id, apiErr := parseRequestID(r)
	if apiErr != nil {
		respondError(w, WrapError(apiErr, requestID))
		return
	}

	var body rejectBody
	if r.Body != nil {
		/* Reason is optional; an empty or absent body rejects without one */
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	if err := h.engine.Reject(r.Context(), id, body.Reason); err != nil {
		respondError(w, WrapError(mapEngineError(err), requestID))
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"request_id": id.String(),
		"status":     wireStatus(db.StatusRejected),
	})
}

/* ListPlugins returns the loaded plugin manifests with a live health
 * probe per plugin */
func (h *Handlers) ListPlugins(w http.ResponseWriter, r *http.Request) {
	plugins := make([]PluginStatus, 0)
	for _, name := range h.registry.Names() {
		manifest, _ := h.registry.Manifest(name)

		status := "ok"
		if err := h.registry.Health(r.Context(), name); err != nil {
			status = "unreachable"
		}

		actions := make([]string, 0, len(manifest.Actions))
		for action := range manifest.Actions {
			actions = append(actions, action)
		}
		sort.Strings(actions)

		plugins = append(plugins, PluginStatus{
			Name:    name,
			Version: manifest.Version,
			Actions: actions,
			Health:  status,
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"plugins": plugins,
		"count":   len(plugins),
	})
}

/* SearchAudit queries the audit log by substring, newest first */
func (h *Handlers) SearchAudit(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	query := r.URL.Query().Get("q")

	events, err := h.engine.SearchAudit(r.Context(), query)
	if err != nil {
		respondError(w, WrapError(mapEngineError(err), requestID))
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}
