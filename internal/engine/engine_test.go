/*-------------------------------------------------------------------------
 *
 * engine_test.go
 *    Tests for the approval request engine
 *
 *-------------------------------------------------------------------------
 */

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/joshuaohana/the-bastion/internal/db"
	"github.com/joshuaohana/the-bastion/internal/plugin"
)

/* fakePluginOptions controls the behavior of the test plugin server */
type fakePluginOptions struct {
	rejectParams bool
	failPreview  bool
	failExecute  bool
}

func newTestEngine(t *testing.T, opts fakePluginOptions) (*Engine, *db.MemStore) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/manifest", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(plugin.Manifest{
			Name:    "filesystem",
			Version: "1.0.0",
			Actions: map[string]plugin.ActionSpec{
				"delete": {Description: "Delete a path", Risk: plugin.RiskDestructive},
			},
		})
	})
	mux.HandleFunc("/validate", func(w http.ResponseWriter, r *http.Request) {
		if opts.rejectParams {
			json.NewEncoder(w).Encode(plugin.ValidationResult{Valid: false, Errors: []string{"path is required"}})
			return
		}
		json.NewEncoder(w).Encode(plugin.ValidationResult{Valid: true})
	})
	mux.HandleFunc("/actions/delete/preview", func(w http.ResponseWriter, r *http.Request) {
		if opts.failPreview {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(plugin.Preview{Summary: "Delete " + r.URL.Query().Get("path")})
	})
	mux.HandleFunc("/execute", func(w http.ResponseWriter, r *http.Request) {
		if opts.failExecute {
			json.NewEncoder(w).Encode(plugin.ExecuteResult{Success: false, Error: "disk on fire"})
			return
		}
		json.NewEncoder(w).Encode(plugin.ExecuteResult{Success: true, Result: json.RawMessage(`{"deleted":true}`)})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	registry := plugin.NewRegistry(plugin.NewClient(5*time.Second), map[string]string{
		"filesystem": server.URL,
	})
	if err := registry.Load(context.Background()); err != nil {
		t.Fatalf("registry.Load() error = %v", err)
	}

	store := db.NewMemStore()
	return New(store, registry, 300), store
}

func auditEvents(t *testing.T, store *db.MemStore, query string) []db.AuditEvent {
	t.Helper()
	events, err := store.SearchAuditEvents(context.Background(), query)
	if err != nil {
		t.Fatalf("SearchAuditEvents() error = %v", err)
	}
	return events
}

func TestFullLifecycle(t *testing.T) {
	eng, store := newTestEngine(t, fakePluginOptions{})
	ctx := context.Background()

	req, err := eng.Submit(ctx, "filesystem", "delete", json.RawMessage(`{"path":"/tmp/x"}`))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if req.Status != db.StatusPending {
		t.Errorf("status after submit = %s, want %s", req.Status, db.StatusPending)
	}
	if req.Preview != "Delete /tmp/x" {
		t.Errorf("preview = %q", req.Preview)
	}

	code, err := eng.Approve(ctx, req.ID)
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if len(code) != 6 {
		t.Errorf("code length = %d, want 6", len(code))
	}

	stored, err := store.GetRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetRequest() error = %v", err)
	}
	if stored.Status != db.StatusApproved {
		t.Errorf("status after approve = %s, want %s", stored.Status, db.StatusApproved)
	}
	if stored.OTPHash == nil {
		t.Fatal("no code hash stored after approve")
	}
	if *stored.OTPHash == code {
		t.Error("code stored in the clear")
	}
	if stored.DecidedAt == nil {
		t.Error("DecidedAt not recorded")
	}

	result, err := eng.Confirm(ctx, req.ID, code)
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if string(result) != `{"deleted":true}` {
		t.Errorf("result = %s", result)
	}

	stored, err = store.GetRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetRequest() error = %v", err)
	}
	if stored.Status != db.StatusCompleted {
		t.Errorf("status after confirm = %s, want %s", stored.Status, db.StatusCompleted)
	}
	if stored.OTPHash != nil {
		t.Error("code hash not cleared after confirm")
	}
	if stored.ConfirmedAt == nil || stored.ExecutedAt == nil {
		t.Error("milestone timestamps not recorded")
	}

	/* One audit event per state-affecting operation */
	for _, event := range []string{EventRequestCreated, EventRequestApproved, EventRequestConfirmed, EventRequestCompleted} {
		if got := auditEvents(t, store, event); len(got) != 1 {
			t.Errorf("audit events for %s = %d, want 1", event, len(got))
		}
	}

	/* The completion event records what the plugin returned */
	events := auditEvents(t, store, `"deleted":true`)
	if len(events) != 1 || events[0].Event != EventRequestCompleted {
		t.Errorf("execute result not in audit trail: %+v", events)
	}
}

func TestSubmitUnknownAction(t *testing.T) {
	eng, _ := newTestEngine(t, fakePluginOptions{})

	if _, err := eng.Submit(context.Background(), "filesystem", "format", json.RawMessage(`{}`)); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("Submit() error = %v, want ErrUnknownAction", err)
	}
	if _, err := eng.Submit(context.Background(), "network", "delete", json.RawMessage(`{}`)); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("Submit() error = %v, want ErrUnknownAction", err)
	}
}

func TestSubmitInvalidParams(t *testing.T) {
	eng, store := newTestEngine(t, fakePluginOptions{rejectParams: true})

	_, err := eng.Submit(context.Background(), "filesystem", "delete", json.RawMessage(`{}`))
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("Submit() error = %v, want ValidationError", err)
	}
	if len(validationErr.Reasons) == 0 {
		t.Error("ValidationError carries no reasons")
	}

	/* No request row and no audit trail for a refused submission */
	if events := auditEvents(t, store, EventRequestCreated); len(events) != 0 {
		t.Error("refused submission left an audit event")
	}
}

func TestSubmitPreviewFailure(t *testing.T) {
	eng, _ := newTestEngine(t, fakePluginOptions{failPreview: true})

	_, err := eng.Submit(context.Background(), "filesystem", "delete", json.RawMessage(`{"path":"/tmp/x"}`))
	var previewErr *PreviewError
	if !errors.As(err, &previewErr) {
		t.Fatalf("Submit() error = %v, want PreviewError", err)
	}
}

func TestApproveNonPending(t *testing.T) {
	eng, _ := newTestEngine(t, fakePluginOptions{})
	ctx := context.Background()

	req, err := eng.Submit(ctx, "filesystem", "delete", json.RawMessage(`{"path":"/tmp/x"}`))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if _, err := eng.Approve(ctx, req.ID); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	/* Second approval must conflict, not issue a second code */
	if _, err := eng.Approve(ctx, req.ID); !errors.Is(err, ErrConflict) {
		t.Errorf("Approve() error = %v, want ErrConflict", err)
	}
}

func TestConcurrentApprove(t *testing.T) {
	eng, _ := newTestEngine(t, fakePluginOptions{})
	ctx := context.Background()

	req, err := eng.Submit(ctx, "filesystem", "delete", json.RawMessage(`{"path":"/tmp/x"}`))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	const racers = 8
	var wg sync.WaitGroup
	codes := make(chan string, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if code, err := eng.Approve(ctx, req.ID); err == nil {
				codes <- code
			}
		}()
	}
	wg.Wait()
	close(codes)

	issued := 0
	for range codes {
		issued++
	}
	if issued != 1 {
		t.Errorf("%d approvals succeeded, want exactly 1", issued)
	}
}

func TestReject(t *testing.T) {
	eng, store := newTestEngine(t, fakePluginOptions{})
	ctx := context.Background()

	req, err := eng.Submit(ctx, "filesystem", "delete", json.RawMessage(`{"path":"/tmp/x"}`))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if err := eng.Reject(ctx, req.ID, "too risky"); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}

	stored, err := store.GetRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetRequest() error = %v", err)
	}
	if stored.Status != db.StatusRejected {
		t.Errorf("status = %s, want %s", stored.Status, db.StatusRejected)
	}

	events := auditEvents(t, store, "too risky")
	if len(events) != 1 || events[0].Event != EventRequestRejected {
		t.Errorf("rejection reason not in audit trail: %+v", events)
	}

	/* Terminal states admit no further transitions */
	if _, err := eng.Approve(ctx, req.ID); !errors.Is(err, ErrConflict) {
		t.Errorf("Approve() after reject error = %v, want ErrConflict", err)
	}
	if _, err := eng.Confirm(ctx, req.ID, "ABC123"); !errors.Is(err, ErrConflict) {
		t.Errorf("Confirm() after reject error = %v, want ErrConflict", err)
	}
}

func TestConfirmWrongCodeBudget(t *testing.T) {
	eng, store := newTestEngine(t, fakePluginOptions{})
	ctx := context.Background()

	req, err := eng.Submit(ctx, "filesystem", "delete", json.RawMessage(`{"path":"/tmp/x"}`))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	code, err := eng.Approve(ctx, req.ID)
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	wrong := "000000"
	if wrong == code {
		wrong = "111111"
	}

	for i := 0; i < maxOTPAttempts; i++ {
		if _, err := eng.Confirm(ctx, req.ID, wrong); !errors.Is(err, ErrInvalidOTP) {
			t.Fatalf("Confirm() attempt %d error = %v, want ErrInvalidOTP", i+1, err)
		}
	}

	/* Budget exhausted: even the correct code is refused */
	if _, err := eng.Confirm(ctx, req.ID, code); !errors.Is(err, ErrMaxAttempts) {
		t.Errorf("Confirm() error = %v, want ErrMaxAttempts", err)
	}

	if events := auditEvents(t, store, EventOTPFailed); len(events) != maxOTPAttempts {
		t.Errorf("audit events for %s = %d, want %d", EventOTPFailed, len(events), maxOTPAttempts)
	}
}

func TestConfirmSingleUse(t *testing.T) {
	eng, _ := newTestEngine(t, fakePluginOptions{})
	ctx := context.Background()

	req, err := eng.Submit(ctx, "filesystem", "delete", json.RawMessage(`{"path":"/tmp/x"}`))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	code, err := eng.Approve(ctx, req.ID)
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if _, err := eng.Confirm(ctx, req.ID, code); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	/* Replaying the same code must conflict, never re-execute */
	if _, err := eng.Confirm(ctx, req.ID, code); !errors.Is(err, ErrConflict) {
		t.Errorf("Confirm() replay error = %v, want ErrConflict", err)
	}
}

func TestConfirmExpired(t *testing.T) {
	eng, store := newTestEngine(t, fakePluginOptions{})
	ctx := context.Background()

	req, err := eng.Submit(ctx, "filesystem", "delete", json.RawMessage(`{"path":"/tmp/x"}`))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	code, err := eng.Approve(ctx, req.ID)
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	/* Backdate the approval decision past the time window */
	stale := time.Now().UTC().Add(-time.Duration(req.TTLSeconds+60) * time.Second)
	if err := store.UpdateRequestFields(ctx, req.ID, db.RequestUpdate{DecidedAt: &stale}); err != nil {
		t.Fatalf("UpdateRequestFields() error = %v", err)
	}

	if _, err := eng.Confirm(ctx, req.ID, code); !errors.Is(err, ErrExpired) {
		t.Fatalf("Confirm() error = %v, want ErrExpired", err)
	}

	stored, err := store.GetRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetRequest() error = %v", err)
	}
	if stored.Status != db.StatusExpired {
		t.Errorf("status = %s, want %s", stored.Status, db.StatusExpired)
	}
	if stored.OTPHash != nil {
		t.Error("code hash not cleared on expiry")
	}
	if events := auditEvents(t, store, EventRequestExpired); len(events) != 1 {
		t.Errorf("audit events for %s = %d, want 1", EventRequestExpired, len(events))
	}
}

func TestExecutionFailure(t *testing.T) {
	eng, store := newTestEngine(t, fakePluginOptions{failExecute: true})
	ctx := context.Background()

	req, err := eng.Submit(ctx, "filesystem", "delete", json.RawMessage(`{"path":"/tmp/x"}`))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	code, err := eng.Approve(ctx, req.ID)
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	_, err = eng.Confirm(ctx, req.ID, code)
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Confirm() error = %v, want ExecutionError", err)
	}
	if execErr.Message != "disk on fire" {
		t.Errorf("message = %q", execErr.Message)
	}

	stored, err := store.GetRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetRequest() error = %v", err)
	}
	if stored.Status != db.StatusError {
		t.Errorf("status = %s, want %s", stored.Status, db.StatusError)
	}
	if stored.Error == nil || *stored.Error != "disk on fire" {
		t.Error("failure message not recorded on the request")
	}

	/* ERROR is terminal: the same request cannot be retried */
	if _, err := eng.Confirm(ctx, req.ID, code); !errors.Is(err, ErrConflict) {
		t.Errorf("Confirm() after error = %v, want ErrConflict", err)
	}
}

func TestDeadlineAnchors(t *testing.T) {
	created := time.Now().UTC().Add(-10 * time.Minute)
	decided := time.Now().UTC().Add(-1 * time.Minute)

	pending := &db.ApprovalRequest{Status: db.StatusPending, CreatedAt: created, TTLSeconds: 300}
	if got := deadline(pending); !got.Equal(created.Add(300 * time.Second)) {
		t.Errorf("pending deadline = %v, want anchored on creation", got)
	}

	approved := &db.ApprovalRequest{Status: db.StatusApproved, CreatedAt: created, DecidedAt: &decided, TTLSeconds: 300}
	if got := deadline(approved); !got.Equal(decided.Add(300 * time.Second)) {
		t.Errorf("approved deadline = %v, want anchored on decision", got)
	}

	/* Approved without a recorded decision falls back to creation */
	orphan := &db.ApprovalRequest{Status: db.StatusApproved, CreatedAt: created, TTLSeconds: 300}
	if got := deadline(orphan); !got.Equal(created.Add(300 * time.Second)) {
		t.Errorf("fallback deadline = %v, want anchored on creation", got)
	}
}
