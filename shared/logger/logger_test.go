// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package logger

import (
	"bytes"
	"encoding/json"
	"log"
	"os"
	"strings"
	"testing"
)

// captureOutput redirects the standard logger during fn and returns what
// was written.
func captureOutput(fn func()) string {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	oldFlags := log.Flags()
	log.SetFlags(0)
	defer func() {
		log.SetOutput(os.Stderr)
		log.SetFlags(oldFlags)
	}()
	fn()
	return buf.String()
}

// parseEntry parses a single captured log line into a LogEntry
func parseEntry(t *testing.T, line string) LogEntry {
	t.Helper()
	var entry LogEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &entry); err != nil {
		t.Fatalf("failed to parse log line %q: %v", line, err)
	}
	return entry
}

func TestNew(t *testing.T) {
	tests := []struct {
		name           string
		component      string
		instanceID     string
		expectedInstID string
	}{
		{
			name:           "with instance ID set",
			component:      "gateway",
			instanceID:     "instance-123",
			expectedInstID: "instance-123",
		},
		{
			name:           "without instance ID",
			component:      "audit",
			instanceID:     "",
			expectedInstID: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.instanceID != "" {
				t.Setenv("INSTANCE_ID", tt.instanceID)
			} else {
				t.Setenv("INSTANCE_ID", "")
			}

			l := New(tt.component)
			if l.Component != tt.component {
				t.Errorf("expected component %q, got %q", tt.component, l.Component)
			}
			if l.InstanceID != tt.expectedInstID {
				t.Errorf("expected instance id %q, got %q", tt.expectedInstID, l.InstanceID)
			}
			if l.Host == "" {
				t.Error("expected host to be set")
			}
		})
	}
}

func TestLogEntryFields(t *testing.T) {
	l := &Logger{Component: "gateway", InstanceID: "i-1", Host: "host-1", minLevel: DEBUG}

	out := captureOutput(func() {
		l.Info("org-42", "req_1_abc", "campaign created", map[string]interface{}{
			"campaign_id": "c-1",
		})
	})

	entry := parseEntry(t, out)

	if entry.Level != INFO {
		t.Errorf("expected level INFO, got %s", entry.Level)
	}
	if entry.Component != "gateway" {
		t.Errorf("expected component gateway, got %s", entry.Component)
	}
	if entry.OrgID != "org-42" {
		t.Errorf("expected org_id org-42, got %s", entry.OrgID)
	}
	if entry.RequestID != "req_1_abc" {
		t.Errorf("expected request_id req_1_abc, got %s", entry.RequestID)
	}
	if entry.Message != "campaign created" {
		t.Errorf("unexpected message %q", entry.Message)
	}
	if entry.Fields["campaign_id"] != "c-1" {
		t.Errorf("expected campaign_id field, got %v", entry.Fields)
	}
	if entry.Timestamp == "" {
		t.Error("expected timestamp to be set")
	}
}

func TestMinLevelFiltering(t *testing.T) {
	l := &Logger{Component: "gateway", InstanceID: "i-1", Host: "h", minLevel: WARN}

	out := captureOutput(func() {
		l.Debug("", "", "dropped", nil)
		l.Info("", "", "dropped too", nil)
		l.Warn("", "", "kept", nil)
		l.Error("", "", "kept as well", nil)
	})

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines at WARN level, got %d: %q", len(lines), out)
	}

	first := parseEntry(t, lines[0])
	if first.Level != WARN || first.Message != "kept" {
		t.Errorf("unexpected first entry: %+v", first)
	}
}

func TestLogLevelFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	l := New("gateway")
	if l.minLevel != DEBUG {
		t.Errorf("expected DEBUG from env, got %s", l.minLevel)
	}

	t.Setenv("LOG_LEVEL", "bogus")
	l = New("gateway")
	if l.minLevel != INFO {
		t.Errorf("expected INFO fallback for invalid level, got %s", l.minLevel)
	}
}

func TestInfoWithDuration(t *testing.T) {
	l := &Logger{Component: "gateway", minLevel: DEBUG}

	out := captureOutput(func() {
		l.InfoWithDuration("org-1", "req-1", "request completed", 12.5, nil)
	})

	entry := parseEntry(t, out)
	if entry.Fields["duration_ms"] != 12.5 {
		t.Errorf("expected duration_ms 12.5, got %v", entry.Fields["duration_ms"])
	}
}

func TestErrorWithCode(t *testing.T) {
	l := &Logger{Component: "gateway", minLevel: DEBUG}

	out := captureOutput(func() {
		l.ErrorWithCode("org-1", "req-1", "write failed", "DATABASE_ERROR", errFake, map[string]interface{}{
			"table": "campaigns",
		})
	})

	entry := parseEntry(t, out)
	if entry.Fields["error_code"] != "DATABASE_ERROR" {
		t.Errorf("expected error_code field, got %v", entry.Fields)
	}
	if entry.Fields["error"] != errFake.Error() {
		t.Errorf("expected error field, got %v", entry.Fields)
	}
	if entry.Fields["table"] != "campaigns" {
		t.Errorf("expected caller fields preserved, got %v", entry.Fields)
	}
}

var errFake = &fakeError{}

type fakeError struct{}

func (*fakeError) Error() string { return "connection refused" }
