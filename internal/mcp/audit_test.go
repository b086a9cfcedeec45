package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestAuditLogger_NilSafety(t *testing.T) {
	t.Run("nil logger Log is no-op", func(t *testing.T) {
		var logger *AuditLogger
		// Should not panic
		logger.Log(AuditEntry{Tool: "test"})
	})

	t.Run("nil logger Close is no-op", func(t *testing.T) {
		var logger *AuditLogger
		err := logger.Close()
		if err != nil {
			t.Errorf("Close() on nil logger returned error: %v", err)
		}
	})
}

func readAudit(t *testing.T, dir string) []AuditEntry {
	t.Helper()
	f, err := os.Open(filepath.Join(dir, AuditFile))
	if err != nil {
		t.Fatalf("opening audit log: %v", err)
	}
	defer f.Close()

	var entries []AuditEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("parsing audit entry %q: %v", scanner.Text(), err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestAuditLogger_WritesJSONL(t *testing.T) {
	dir := t.TempDir()
	logger := NewAuditLogger(dir, nil)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
	defer logger.Close()

	logger.Log(AuditEntry{
		Timestamp:  time.Now(),
		Tool:       "baynet_set_node_value",
		Session:    "abc",
		DurationMs: 42,
		Status:     "success",
		Params:     map[string]string{"node_id": "FUMO"},
	})

	entries := readAudit(t, dir)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Tool != "baynet_set_node_value" {
		t.Errorf("tool = %q, want baynet_set_node_value", entry.Tool)
	}
	if entry.DurationMs != 42 {
		t.Errorf("duration_ms = %d, want 42", entry.DurationMs)
	}
	if entry.Session != "abc" {
		t.Errorf("session = %q, want abc", entry.Session)
	}
	if entry.Params["node_id"] != "FUMO" {
		t.Errorf("params[node_id] = %q, want FUMO", entry.Params["node_id"])
	}
}

func TestAuditLogger_FilePermissions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	logger := NewAuditLogger(dir, nil)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
	defer logger.Close()

	info, err := os.Stat(filepath.Join(dir, AuditFile))
	if err != nil {
		t.Fatalf("stat audit log: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("audit log permissions = %o, want 0600", perm)
	}
}

func TestAuditLogger_ConcurrentWrites(t *testing.T) {
	dir := t.TempDir()
	logger := NewAuditLogger(dir, nil)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Log(AuditEntry{Timestamp: time.Now(), Tool: "baynet_graph", Status: "success"})
		}()
	}
	wg.Wait()
	logger.Close()

	if got := len(readAudit(t, dir)); got != 20 {
		t.Errorf("expected 20 entries, got %d", got)
	}
}

func TestAuditLogger_LogAfterClose(t *testing.T) {
	dir := t.TempDir()
	logger := NewAuditLogger(dir, nil)
	logger.Close()

	// Should not panic
	logger.Log(AuditEntry{Tool: "baynet_reset"})

	if got := len(readAudit(t, dir)); got != 0 {
		t.Errorf("expected no entries after close, got %d", got)
	}
}

func TestSanitizeToolParams(t *testing.T) {
	got := sanitizeToolParams(map[string]any{
		"node_id": "ETA_PAZIENTE",
		"value":   "72",
		"steps":   5,
		"secret":  "dropped",
	})

	if got["node_id"] != "ETA_PAZIENTE" {
		t.Errorf("node_id = %q, want ETA_PAZIENTE", got["node_id"])
	}
	if got["value"] != "(set)" {
		t.Errorf("value = %q, want (set)", got["value"])
	}
	if got["steps"] != "5" {
		t.Errorf("steps = %q, want 5", got["steps"])
	}
	if _, ok := got["secret"]; ok {
		t.Error("unknown params must not be logged")
	}
	if got["_param_count"] != "4" {
		t.Errorf("_param_count = %q, want 4", got["_param_count"])
	}

	if sanitizeToolParams(nil) != nil {
		t.Error("expected nil for nil params")
	}
}

func TestAuditTool_RecordsCalls(t *testing.T) {
	server, dataDir := setupTestServer(t)
	ctx := context.Background()

	if _, _, err := server.handleSetNodeValue(ctx, &sdk.CallToolRequest{},
		SetNodeValueInput{NodeID: "ETA_PAZIENTE", Value: "70"}); err != nil {
		t.Fatalf("set value failed: %v", err)
	}
	if _, _, err := server.handleSetNodeValue(ctx, &sdk.CallToolRequest{},
		SetNodeValueInput{NodeID: "ETA_PAZIENTE", Value: "999"}); err == nil {
		t.Fatal("expected error for out of range value")
	}
	server.auditLogger.Close()

	entries := readAudit(t, dataDir)
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(entries))
	}
	if entries[0].Status != "success" || entries[1].Status != "error" {
		t.Errorf("statuses = %q, %q", entries[0].Status, entries[1].Status)
	}
	if entries[1].Error == "" {
		t.Error("expected error message on failed call")
	}
	for _, e := range entries {
		if e.Session != server.Session().ID() {
			t.Errorf("session = %q, want %q", e.Session, server.Session().ID())
		}
		if e.Params["value"] != "(set)" {
			t.Errorf("evidence value leaked into audit log: %q", e.Params["value"])
		}
	}
}
