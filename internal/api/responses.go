/*-------------------------------------------------------------------------
 *
 * responses.go
 *    Response projections for the gateway API
 *
 * The stored request row carries fields that must never leave the
 * process (the one-time code hash) or that only the approver surface
 * may see. Handlers respond with these projections, never with raw
 * store rows.
 *
 * IDENTIFICATION
 *    internal/api/responses.go
 *
 *-------------------------------------------------------------------------
 */

package api

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/joshuaohana/the-bastion/internal/db"
)

/* RequestResponse is the shared projection of an approval request */
type RequestResponse struct {
	ID          string          `json:"id"`
	Plugin      string          `json:"plugin"`
	Action      string          `json:"action"`
	Params      json.RawMessage `json:"params"`
	Preview     string          `json:"preview"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	DecidedAt   *time.Time      `json:"decided_at,omitempty"`
	ConfirmedAt *time.Time      `json:"confirmed_at,omitempty"`
	ExecutedAt  *time.Time      `json:"executed_at,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *string         `json:"error,omitempty"`
	TTLSeconds  int             `json:"ttl_seconds"`
}

func toRequestResponse(req *db.ApprovalRequest) RequestResponse {
	return RequestResponse{
		ID:          req.ID.String(),
		Plugin:      req.Plugin,
		Action:      req.Action,
		Params:      json.RawMessage(req.Params),
		Preview:     req.Preview,
		Status:      string(req.Status),
		CreatedAt:   req.CreatedAt,
		DecidedAt:   req.DecidedAt,
		ConfirmedAt: req.ConfirmedAt,
		ExecutedAt:  req.ExecutedAt,
		Result:      json.RawMessage(req.Result),
		Error:       req.Error,
		TTLSeconds:  req.TTLSeconds,
	}
}

/* wireStatus renders a status for operation acknowledgements, which use
 * lowercase on the wire; stored rows keep the uppercase enum */
func wireStatus(s db.RequestStatus) string {
	return strings.ToLower(string(s))
}

/* SubmitResponse acknowledges a newly created request */
type SubmitResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Preview   string `json:"preview"`
}

/* ConfirmResponse returns the execution outcome to the agent */
type ConfirmResponse struct {
	RequestID string          `json:"request_id"`
	Status    string          `json:"status"`
	Result    json.RawMessage `json:"result"`
}

/* ApproveResponse carries the one-time code, shown exactly once */
type ApproveResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	OTP       string `json:"otp"`
}

/* PluginStatus describes one loaded plugin on the approver surface */
type PluginStatus struct {
	Name    string   `json:"name"`
	Version string   `json:"version"`
	Actions []string `json:"actions"`
	Health  string   `json:"health"`
}

/* LoginResponse carries a session token and its expiry */
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
