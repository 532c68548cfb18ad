/*-------------------------------------------------------------------------
 *
 * registry.go
 *    Plugin registry
 *
 * Holds, per plugin name, a base address and a capability manifest
 * fetched at startup. Load is all-or-nothing: running with a partially
 * loaded manifest set would silently accept requests the gateway cannot
 * validate. The registry is immutable after Load completes.
 *
 * IDENTIFICATION
 *    internal/plugin/registry.go
 *
 *-------------------------------------------------------------------------
 */

package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/joshuaohana/the-bastion/internal/metrics"
)

type Registry struct {
	client    *Client
	addresses map[string]string
	manifests map[string]*Manifest
}

func NewRegistry(client *Client, addresses map[string]string) *Registry {
	addrs := make(map[string]string, len(addresses))
	for name, base := range addresses {
		addrs[name] = strings.TrimRight(base, "/")
	}
	return &Registry{
		client:    client,
		addresses: addrs,
		manifests: make(map[string]*Manifest),
	}
}

/* Load fetches every configured plugin's manifest, failing on the first
 * unreachable or misbehaving plugin */
func (r *Registry) Load(ctx context.Context) error {
	names := make([]string, 0, len(r.addresses))
	for name := range r.addresses {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		manifest, err := r.client.FetchManifest(ctx, name, r.addresses[name])
		if err != nil {
			return fmt.Errorf("failed to load manifest for plugin %s: %w", name, err)
		}
		r.manifests[name] = manifest

		metrics.InfoWithContext(ctx, "Loaded plugin manifest", map[string]interface{}{
			"plugin":  name,
			"version": manifest.Version,
			"actions": len(manifest.Actions),
		})
	}
	return nil
}

/* Names returns the loaded plugin names, sorted */
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.manifests))
	for name := range r.manifests {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

/* Health probes the named plugin's liveness endpoint */
func (r *Registry) Health(ctx context.Context, plugin string) error {
	base, exists := r.addresses[plugin]
	if !exists {
		return fmt.Errorf("plugin %s not configured", plugin)
	}
	return r.client.Health(ctx, plugin, base)
}

/* HasAction reports whether the plugin's manifest declares the action */
func (r *Registry) HasAction(plugin, action string) bool {
	manifest, exists := r.manifests[plugin]
	if !exists {
		return false
	}
	_, declared := manifest.Actions[action]
	return declared
}

/* Address returns the plugin's base address */
func (r *Registry) Address(plugin string) (string, bool) {
	base, exists := r.addresses[plugin]
	return base, exists
}

/* Manifest returns the cached manifest for a plugin */
func (r *Registry) Manifest(plugin string) (*Manifest, bool) {
	manifest, exists := r.manifests[plugin]
	return manifest, exists
}

/* Validate proxies a validation call to the named plugin */
func (r *Registry) Validate(ctx context.Context, plugin, action string, params json.RawMessage) (*ValidationResult, error) {
	base, exists := r.addresses[plugin]
	if !exists {
		return nil, fmt.Errorf("plugin %s not configured", plugin)
	}
	return r.client.Validate(ctx, plugin, base, action, params)
}

/* Preview proxies a preview call to the named plugin */
func (r *Registry) Preview(ctx context.Context, plugin, action string, params json.RawMessage) (*Preview, error) {
	base, exists := r.addresses[plugin]
	if !exists {
		return nil, fmt.Errorf("plugin %s not configured", plugin)
	}
	return r.client.Preview(ctx, plugin, base, action, params)
}

/* Execute proxies an execute call to the named plugin */
func (r *Registry) Execute(ctx context.Context, plugin, action string, params json.RawMessage) (*ExecuteResult, error) {
	base, exists := r.addresses[plugin]
	if !exists {
		return nil, fmt.Errorf("plugin %s not configured", plugin)
	}
	return r.client.Execute(ctx, plugin, base, action, params)
}
