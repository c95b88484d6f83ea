package testutil

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/TheMichaelB/jobhunt/internal/config"
)

// LogEntry is a captured JSON log line.
type LogEntry struct {
	Level   string                 `json:"level"`
	Message string                 `json:"msg"`
	Fields  map[string]interface{} `json:"-"`
}

// TestContext returns a context that expires with the test budget.
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// TestConfigWithDir returns a config whose local paths live under dataDir
// and whose object store is the local backend.
func TestConfigWithDir(dataDir string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Storage.Backend = "local"
	cfg.Storage.LocalDir = filepath.Join(dataDir, "remote")
	cfg.Database.LocalPath = filepath.Join(dataDir, "scratch", "jobhunt.db")
	cfg.Lock.Timeout = 0
	cfg.Lock.RetryInterval = 10 * time.Millisecond
	cfg.Log.Level = "debug"
	cfg.Log.Color = false
	return cfg
}

// WaitForCondition polls condition until it holds or timeout passes.
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration, message string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, message)
}

// LogOutput captures JSON log output for assertions.
type LogOutput struct {
	mu      sync.RWMutex
	entries []LogEntry
}

// NewLogOutput creates a new log output capturer.
func NewLogOutput() *LogOutput {
	return &LogOutput{}
}

// Write implements io.Writer; each call carries one JSON line.
func (lo *LogOutput) Write(p []byte) (int, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(p, &raw); err == nil {
		entry := LogEntry{Fields: raw}
		entry.Level, _ = raw["level"].(string)
		entry.Message, _ = raw["msg"].(string)

		lo.mu.Lock()
		lo.entries = append(lo.entries, entry)
		lo.mu.Unlock()
	}
	return len(p), nil
}

// Entries returns captured log entries.
func (lo *LogOutput) Entries() []LogEntry {
	lo.mu.RLock()
	defer lo.mu.RUnlock()

	entries := make([]LogEntry, len(lo.entries))
	copy(entries, lo.entries)
	return entries
}

// HasMessage reports whether any entry contains message.
func (lo *LogOutput) HasMessage(message string) bool {
	lo.mu.RLock()
	defer lo.mu.RUnlock()

	for _, entry := range lo.entries {
		if strings.Contains(entry.Message, message) {
			return true
		}
	}
	return false
}

// FieldValues collects the values of key across entries.
func (lo *LogOutput) FieldValues(key string) []interface{} {
	lo.mu.RLock()
	defer lo.mu.RUnlock()

	var out []interface{}
	for _, entry := range lo.entries {
		if v, ok := entry.Fields[key]; ok {
			out = append(out, v)
		}
	}
	return out
}
