/*-------------------------------------------------------------------------
 *
 * client.go
 *    HTTP client for the plugin protocol
 *
 * Every outbound call carries a bounded timeout; plugin calls are the
 * engine's only suspension points and an unresponsive plugin must not
 * hang a request handler indefinitely.
 *
 * IDENTIFICATION
 *    internal/plugin/client.go
 *
 *-------------------------------------------------------------------------
 */

package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/joshuaohana/the-bastion/internal/metrics"
)

type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

/* FetchManifest loads a plugin's capability manifest */
func (c *Client) FetchManifest(ctx context.Context, name, base string) (*Manifest, error) {
	var manifest Manifest
	if err := c.getJSON(ctx, name, "manifest", base+"/manifest", &manifest); err != nil {
		return nil, err
	}
	if manifest.Name == "" || len(manifest.Actions) == 0 {
		return nil, fmt.Errorf("plugin %s returned an empty manifest", name)
	}
	return &manifest, nil
}

/* Validate asks the plugin whether the proposed parameters are acceptable */
func (c *Client) Validate(ctx context.Context, name, base, action string, params json.RawMessage) (*ValidationResult, error) {
	body, err := json.Marshal(map[string]interface{}{
		"action": action,
		"params": params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode validate request: %w", err)
	}

	var result ValidationResult
	if err := c.postJSON(ctx, name, "validate", base+"/validate", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

/* Preview fetches the human-readable action preview. Parameters travel
 * as query values; the plugin interprets them, the gateway does not. */
func (c *Client) Preview(ctx context.Context, name, base, action string, params json.RawMessage) (*Preview, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(params, &fields); err != nil {
		return nil, fmt.Errorf("params must be a JSON object: %w", err)
	}

	query := url.Values{}
	for k, v := range fields {
		query.Set(k, fmt.Sprint(v))
	}

	endpoint := fmt.Sprintf("%s/actions/%s/preview?%s", base, url.PathEscape(action), query.Encode())
	var preview Preview
	if err := c.getJSON(ctx, name, "preview", endpoint, &preview); err != nil {
		return nil, err
	}
	return &preview, nil
}

/* Execute runs the action. Transport failures and non-success responses
 * are returned as errors; the caller converts both into terminal request
 * state. */
func (c *Client) Execute(ctx context.Context, name, base, action string, params json.RawMessage) (*ExecuteResult, error) {
	body, err := json.Marshal(map[string]interface{}{
		"action": action,
		"params": params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode execute request: %w", err)
	}

	var result ExecuteResult
	if err := c.postJSON(ctx, name, "execute", base+"/execute", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

/* Health probes the plugin's liveness endpoint */
func (c *Client) Health(ctx context.Context, name, base string) error {
	var status map[string]interface{}
	return c.getJSON(ctx, name, "health", base+"/health", &status)
}

func (c *Client) getJSON(ctx context.Context, name, operation, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("plugin %s %s request failed: %w", name, operation, err)
	}
	return c.do(name, operation, req, out)
}

func (c *Client) postJSON(ctx context.Context, name, operation, endpoint string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("plugin %s %s request failed: %w", name, operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(name, operation, req, out)
}

func (c *Client) do(name, operation string, req *http.Request, out interface{}) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordPluginCall(name, operation, "error", time.Since(start))
		return fmt.Errorf("plugin %s %s call failed: %w", name, operation, err)
	}
	defer resp.Body.Close()
	metrics.RecordPluginCall(name, operation, fmt.Sprintf("%d", resp.StatusCode), time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("plugin %s %s returned status %d", name, operation, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("plugin %s %s returned invalid JSON: %w", name, operation, err)
	}
	return nil
}
