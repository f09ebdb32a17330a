package memory

import (
	"log/slog"
	"io"
	"strings"
	"testing"

	"github.com/trustgraph-ai/gambiarra/pkg/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEstimateTokens(t *testing.T) {
	got := EstimateTokens("a quick test string")
	want := len("a quick test string")/CharsPerToken + TokenOverheadPerMessage
	if got != want {
		t.Errorf("EstimateTokens = %d, want %d", got, want)
	}
}

func TestConversationMemory_AddAndRecent(t *testing.T) {
	m := New(discardLogger(), Config{MaxTokens: 32000})
	m.Add(models.RoleUser, "hello", nil)
	m.Add(models.RoleAssistant, "hi there", nil)

	recent := m.Recent(10)
	if len(recent) != 2 {
		t.Fatalf("got %d messages, want 2", len(recent))
	}
	if recent[0].Role != models.RoleUser || recent[1].Role != models.RoleAssistant {
		t.Errorf("unexpected order: %v", recent)
	}
}

func TestConversationMemory_RecentTruncates(t *testing.T) {
	m := New(discardLogger(), Config{MaxTokens: 32000})
	for i := 0; i < 10; i++ {
		m.Add(models.RoleUser, "msg", nil)
	}
	recent := m.Recent(3)
	if len(recent) != 3 {
		t.Fatalf("got %d messages, want 3", len(recent))
	}
}

func TestConversationMemory_KeepsLastFiveUncompacted(t *testing.T) {
	m := New(discardLogger(), Config{MaxTokens: 40})

	for i := 0; i < 20; i++ {
		m.AddToolCall("read_file", map[string]any{"path": "a.go"})
		m.AddToolResult("read_file", strings.Repeat("x", 50), true)
	}

	msgs := m.Messages()
	if len(msgs) < KeepRecentMessages {
		t.Fatalf("got %d messages, want at least %d kept", len(msgs), KeepRecentMessages)
	}
	tail := msgs[len(msgs)-KeepRecentMessages:]
	for _, msg := range tail {
		if compressed, _ := msg.Metadata["compressed"].(bool); compressed {
			t.Errorf("last %d messages must never be compacted, found compressed message: %+v", KeepRecentMessages, msg)
		}
	}
}

func TestConversationMemory_CompactsRunsOfToolMessages(t *testing.T) {
	m := New(discardLogger(), Config{MaxTokens: 20})

	for i := 0; i < 15; i++ {
		m.AddToolCall("execute_command", map[string]any{"command": "ls"})
		m.AddToolResult("execute_command", strings.Repeat("y", 80), true)
	}
	m.Add(models.RoleUser, "what happened?", nil)

	stats := m.Stats()
	if stats.CompactionCount == 0 {
		t.Error("expected at least one compaction to have occurred under budget pressure")
	}

	msgs := m.Messages()
	if len(msgs) >= 30 {
		t.Errorf("expected compaction to shrink history, got %d raw messages", len(msgs))
	}
}

func TestConversationMemory_OrderPreservingAfterCompaction(t *testing.T) {
	m := New(discardLogger(), Config{MaxTokens: 30})
	m.Add(models.RoleSystem, "system prompt", nil)
	for i := 0; i < 10; i++ {
		m.AddToolCall("list_files", nil)
		m.AddToolResult("list_files", "ok", true)
	}
	m.Add(models.RoleUser, "final question", nil)

	msgs := m.Messages()
	if len(msgs) == 0 {
		t.Fatal("expected non-empty history")
	}
	if msgs[len(msgs)-1].Role != models.RoleUser {
		t.Errorf("last message role = %v, want user", msgs[len(msgs)-1].Role)
	}
}

func TestConversationMemory_Clear(t *testing.T) {
	m := New(discardLogger(), Config{MaxTokens: 32000})
	m.Add(models.RoleUser, "hello", nil)
	m.Clear()

	if len(m.Messages()) != 0 {
		t.Error("expected empty history after Clear")
	}
	stats := m.Stats()
	if stats.CurrentTokens != 0 || stats.TotalMessages != 0 {
		t.Errorf("expected zeroed stats after Clear, got %+v", stats)
	}
}

func TestConversationMemory_ShortRunsNotCompacted(t *testing.T) {
	m := New(discardLogger(), Config{MaxTokens: 32000})
	m.AddToolCall("read_file", nil)
	m.AddToolResult("read_file", "ok", true)

	for _, msg := range m.Messages() {
		if compressed, _ := msg.Metadata["compressed"].(bool); compressed {
			t.Error("a run shorter than MinGroupSizeToCompress must not be folded")
		}
	}
}
