/*-------------------------------------------------------------------------
 *
 * types.go
 *    Plugin protocol wire types
 *
 * The contract every action-executing plugin implements: a manifest
 * declaring its actions, parameter validation, human-readable previews,
 * and execution.
 *
 * IDENTIFICATION
 *    internal/plugin/types.go
 *
 *-------------------------------------------------------------------------
 */

package plugin

import "encoding/json"

/* RiskLevel classifies how dangerous a declared action is */
type RiskLevel string

const (
	RiskRead        RiskLevel = "read"
	RiskWrite       RiskLevel = "write"
	RiskDestructive RiskLevel = "destructive"
)

/* Manifest is a plugin's self-declared capability list, fetched once at
 * startup and immutable for the process lifetime */
type Manifest struct {
	Name    string                `json:"name"`
	Version string                `json:"version"`
	Actions map[string]ActionSpec `json:"actions"`
}

type ActionSpec struct {
	Description  string          `json:"description"`
	Risk         RiskLevel       `json:"risk"`
	ParamsSchema json.RawMessage `json:"params_schema"`
}

/* ValidationResult is the plugin's verdict on proposed parameters */
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

/* Preview is the human-readable description shown to the approver */
type Preview struct {
	Summary string `json:"summary"`
	Details string `json:"details,omitempty"`
}

/* Text renders the preview as the single string stored on the request */
func (p Preview) Text() string {
	if p.Details != "" {
		return p.Summary + "\n" + p.Details
	}
	return p.Summary
}

/* ExecuteResult is the outcome of running an action */
type ExecuteResult struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}
