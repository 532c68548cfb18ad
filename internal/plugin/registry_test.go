/*-------------------------------------------------------------------------
 *
 * registry_test.go
 *    Tests for the plugin registry and protocol client
 *
 *-------------------------------------------------------------------------
 */

package plugin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newFakePlugin(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/manifest", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Manifest{
			Name:    "filesystem",
			Version: "1.0.0",
			Actions: map[string]ActionSpec{
				"delete": {Description: "Delete a path", Risk: RiskDestructive},
				"read":   {Description: "Read a file", Risk: RiskRead},
			},
		})
	})
	mux.HandleFunc("/validate", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Action string          `json:"action"`
			Params json.RawMessage `json:"params"`
		}
		json.NewDecoder(r.Body).Decode(&body)

		var params map[string]interface{}
		json.Unmarshal(body.Params, &params)
		if params["path"] == nil || params["path"] == "" {
			json.NewEncoder(w).Encode(ValidationResult{Valid: false, Errors: []string{"path is required"}})
			return
		}
		json.NewEncoder(w).Encode(ValidationResult{Valid: true})
	})
	mux.HandleFunc("/actions/delete/preview", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Preview{
			Summary: "Delete " + r.URL.Query().Get("path"),
			Details: "This cannot be undone",
		})
	})
	mux.HandleFunc("/execute", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ExecuteResult{Success: true, Result: json.RawMessage(`{"deleted":true}`)})
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestRegistryLoad(t *testing.T) {
	server := newFakePlugin(t)

	registry := NewRegistry(NewClient(5*time.Second), map[string]string{
		"filesystem": server.URL,
	})
	if err := registry.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !registry.HasAction("filesystem", "delete") {
		t.Error("HasAction() = false for a declared action")
	}
	if registry.HasAction("filesystem", "format") {
		t.Error("HasAction() = true for an undeclared action")
	}
	if registry.HasAction("network", "delete") {
		t.Error("HasAction() = true for an unknown plugin")
	}

	manifest, ok := registry.Manifest("filesystem")
	if !ok {
		t.Fatal("Manifest() missing for loaded plugin")
	}
	if manifest.Actions["delete"].Risk != RiskDestructive {
		t.Errorf("risk = %s, want %s", manifest.Actions["delete"].Risk, RiskDestructive)
	}
}

func TestRegistryLoadAllOrNothing(t *testing.T) {
	server := newFakePlugin(t)

	/* One reachable plugin plus one dead address must fail the whole load */
	registry := NewRegistry(NewClient(2*time.Second), map[string]string{
		"filesystem": server.URL,
		"network":    "http://127.0.0.1:1",
	})
	if err := registry.Load(context.Background()); err == nil {
		t.Fatal("Load() succeeded with an unreachable plugin")
	}
}

func TestRegistryLoadRejectsEmptyManifest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Manifest{Name: "hollow"})
	}))
	t.Cleanup(server.Close)

	registry := NewRegistry(NewClient(2*time.Second), map[string]string{
		"hollow": server.URL,
	})
	if err := registry.Load(context.Background()); err == nil {
		t.Fatal("Load() accepted a manifest with no actions")
	}
}

func TestRegistryValidate(t *testing.T) {
	server := newFakePlugin(t)
	registry := NewRegistry(NewClient(5*time.Second), map[string]string{
		"filesystem": server.URL,
	})
	if err := registry.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	result, err := registry.Validate(context.Background(), "filesystem", "delete", json.RawMessage(`{"path":"/tmp/x"}`))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !result.Valid {
		t.Errorf("Validate() = invalid for good params: %v", result.Errors)
	}

	result, err = registry.Validate(context.Background(), "filesystem", "delete", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if result.Valid {
		t.Error("Validate() = valid for missing path")
	}
	if len(result.Errors) == 0 {
		t.Error("Validate() returned no reasons for invalid params")
	}
}

func TestRegistryPreview(t *testing.T) {
	server := newFakePlugin(t)
	registry := NewRegistry(NewClient(5*time.Second), map[string]string{
		"filesystem": server.URL,
	})
	if err := registry.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	preview, err := registry.Preview(context.Background(), "filesystem", "delete", json.RawMessage(`{"path":"/tmp/x"}`))
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if preview.Summary != "Delete /tmp/x" {
		t.Errorf("Preview() summary = %q", preview.Summary)
	}
	if preview.Text() != "Delete /tmp/x\nThis cannot be undone" {
		t.Errorf("Text() = %q", preview.Text())
	}
}

func TestRegistryExecute(t *testing.T) {
	server := newFakePlugin(t)
	registry := NewRegistry(NewClient(5*time.Second), map[string]string{
		"filesystem": server.URL,
	})
	if err := registry.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	result, err := registry.Execute(context.Background(), "filesystem", "delete", json.RawMessage(`{"path":"/tmp/x"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.Success {
		t.Errorf("Execute() failed: %s", result.Error)
	}
}

func TestRegistryUnknownPlugin(t *testing.T) {
	registry := NewRegistry(NewClient(time.Second), map[string]string{})
	if _, err := registry.Execute(context.Background(), "ghost", "act", json.RawMessage(`{}`)); err == nil {
		t.Fatal("Execute() succeeded for an unconfigured plugin")
	}
}
