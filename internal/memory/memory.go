// Package memory implements ConversationMemory, a token-budgeted
// conversation history buffer for the agentic loop. It is grounded on the
// Python predecessor's context.conversation_memory.ConversationMemory,
// rewritten in the style of the teacher's internal/compaction package:
// explicit token estimation, exported tuning constants, and pure functions
// operating on plain slices rather than a monolithic in-place class.
package memory

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/trustgraph-ai/gambiarra/pkg/models"
)

const (
	// CharsPerToken is the approximate character-to-token ratio used for
	// estimation, matching the predecessor's `len(content) // 4`.
	CharsPerToken = 4

	// TokenOverheadPerMessage accounts for role/metadata framing that the
	// character count alone does not capture.
	TokenOverheadPerMessage = 10

	// DefaultMaxTokens is the fallback total budget when not configured.
	DefaultMaxTokens = 32000

	// DefaultWindowRatio is the fraction of MaxTokens reserved for the
	// conversation history proper (the rest covers system prompt and
	// response headroom).
	DefaultWindowRatio = 0.8

	// KeepRecentMessages is the number of most-recent messages that are
	// never folded into a summary, regardless of budget pressure.
	KeepRecentMessages = 5

	// MinGroupSizeToCompress is the smallest run of consecutive
	// tool_call/tool_result messages worth folding into one summary
	// message; shorter runs are left as-is.
	MinGroupSizeToCompress = 3
)

// EstimateTokens approximates the token cost of a string using the
// predecessor's fixed 4-chars-per-token heuristic plus per-message overhead.
func EstimateTokens(content string) int {
	return len(content)/CharsPerToken + TokenOverheadPerMessage
}

// ConversationMemory holds bounded conversation history for one session,
// folding old tool_call/tool_result runs into summaries once the token
// budget is exceeded.
type ConversationMemory struct {
	log *slog.Logger

	maxTokens     int
	windowTokens  int
	messages      []models.ConversationMessage
	currentTokens int
	compactions   int
}

// Config tunes a ConversationMemory's token budget.
type Config struct {
	MaxTokens   int
	WindowRatio float64
}

func (c Config) sanitized() Config {
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.WindowRatio <= 0 || c.WindowRatio > 1 {
		c.WindowRatio = DefaultWindowRatio
	}
	return c
}

// New creates a ConversationMemory with the given budget configuration.
func New(log *slog.Logger, cfg Config) *ConversationMemory {
	cfg = cfg.sanitized()
	windowTokens := int(float64(cfg.MaxTokens) * cfg.WindowRatio)
	if log == nil {
		log = slog.Default()
	}
	return &ConversationMemory{
		log:          log,
		maxTokens:    cfg.MaxTokens,
		windowTokens: windowTokens,
	}
}

// Add appends a message to history and, if the token budget is now
// exceeded, folds older runs of tool messages into summaries.
func (m *ConversationMemory) Add(role models.Role, content string, metadata map[string]any) {
	tokens := EstimateTokens(content)
	msg := models.ConversationMessage{
		Role:            role,
		Content:         content,
		Timestamp:       time.Now(),
		Metadata:        metadata,
		EstimatedTokens: tokens,
	}
	m.messages = append(m.messages, msg)
	m.currentTokens += tokens

	m.log.Debug("conversation message added", "role", role, "tokens", tokens, "total_tokens", m.currentTokens)

	if m.currentTokens > m.windowTokens {
		m.compact()
	}
}

// AddToolCall records a tool invocation in history.
func (m *ConversationMemory) AddToolCall(toolName string, parameters map[string]any) {
	metadata := map[string]any{"tool_name": toolName, "parameters": parameters}
	m.Add(models.RoleToolCall, "Tool call: "+toolName, metadata)
}

// AddToolResult records a tool's outcome in history. Results longer than
// 200 characters are truncated in the stored content to bound memory
// growth; full results live in tool_result frames, not conversation history.
func (m *ConversationMemory) AddToolResult(toolName string, result string, success bool) {
	metadata := map[string]any{"tool_name": toolName, "success": success}
	content := "Tool result: " + toolName
	if success {
		content += " - success"
	} else {
		content += " - error"
	}
	if len(result) > 200 {
		content += "\n" + result[:200] + "..."
	} else if result != "" {
		content += "\n" + result
	}
	m.Add(models.RoleToolResult, content, metadata)
}

// Messages returns a snapshot of the current conversation history.
func (m *ConversationMemory) Messages() []models.ConversationMessage {
	out := make([]models.ConversationMessage, len(m.messages))
	copy(out, m.messages)
	return out
}

// Recent returns the last n messages, or all messages if there are fewer
// than n.
func (m *ConversationMemory) Recent(n int) []models.ConversationMessage {
	if n <= 0 || len(m.messages) == 0 {
		return nil
	}
	if n >= len(m.messages) {
		return m.Messages()
	}
	start := len(m.messages) - n
	out := make([]models.ConversationMessage, n)
	copy(out, m.messages[start:])
	return out
}

// Clear discards all conversation history.
func (m *ConversationMemory) Clear() {
	dropped := len(m.messages)
	m.messages = nil
	m.currentTokens = 0
	m.compactions = 0
	m.log.Info("conversation history cleared", "dropped_messages", dropped)
}

// Stats reports current budget utilization, grounded on
// ConversationMemory.get_memory_stats.
type Stats struct {
	TotalMessages      int
	CurrentTokens      int
	MaxTokens          int
	WindowTokens       int
	TokenUsagePercent  float64
	CompactionCount    int
}

// Stats returns a snapshot of current memory utilization.
func (m *ConversationMemory) Stats() Stats {
	pct := 0.0
	if m.windowTokens > 0 {
		pct = float64(m.currentTokens) / float64(m.windowTokens) * 100
	}
	return Stats{
		TotalMessages:     len(m.messages),
		CurrentTokens:     m.currentTokens,
		MaxTokens:         m.maxTokens,
		WindowTokens:      m.windowTokens,
		TokenUsagePercent: pct,
		CompactionCount:   m.compactions,
	}
}

// compact folds old tool_call/tool_result runs into summaries, keeping the
// last KeepRecentMessages untouched, then drops oldest summaries first if
// the budget is still exceeded.
func (m *ConversationMemory) compact() {
	if len(m.messages) <= KeepRecentMessages {
		return
	}

	keepFrom := len(m.messages) - KeepRecentMessages
	older := m.messages[:keepFrom]
	recent := m.messages[keepFrom:]

	compressed := compressRuns(older)

	newMessages := append(compressed, recent...)
	newTokens := sumTokens(newMessages)

	for newTokens > m.windowTokens && len(compressed) > 0 {
		dropped := compressed[0]
		compressed = compressed[1:]
		newTokens -= dropped.EstimatedTokens
		m.compactions++
		newMessages = append(append([]models.ConversationMessage{}, compressed...), recent...)
	}

	m.messages = newMessages
	m.currentTokens = newTokens

	m.log.Info("conversation history compacted", "messages", len(m.messages), "tokens", m.currentTokens, "compactions", m.compactions)
}

// compressRuns groups consecutive tool_call/tool_result messages of the
// same role and folds runs of length >= MinGroupSizeToCompress into a
// single summary message, mirroring
// ConversationMemory._compress_messages/_compress_group.
func compressRuns(messages []models.ConversationMessage) []models.ConversationMessage {
	if len(messages) == 0 {
		return nil
	}

	var out []models.ConversationMessage
	var run []models.ConversationMessage
	var runRole models.Role

	flush := func() {
		if len(run) == 0 {
			return
		}
		if len(run) >= MinGroupSizeToCompress {
			out = append(out, summarizeRun(run, runRole))
		} else {
			out = append(out, run...)
		}
		run = nil
	}

	for _, msg := range messages {
		if msg.Role == models.RoleToolCall || msg.Role == models.RoleToolResult {
			if msg.Role == runRole {
				run = append(run, msg)
				continue
			}
			flush()
			run = []models.ConversationMessage{msg}
			runRole = msg.Role
			continue
		}
		flush()
		runRole = ""
		out = append(out, msg)
	}
	flush()

	return out
}

func summarizeRun(run []models.ConversationMessage, role models.Role) models.ConversationMessage {
	toolCounts := map[string]int{}
	successCount, errorCount := 0, 0

	for _, msg := range run {
		name, _ := msg.Metadata["tool_name"].(string)
		if name == "" {
			name = "unknown"
		}
		toolCounts[name]++
		if role == models.RoleToolResult {
			if ok, _ := msg.Metadata["success"].(bool); ok {
				successCount++
			} else {
				errorCount++
			}
		}
	}

	var content string
	switch role {
	case models.RoleToolResult:
		content = "Tool execution summary: " + strconv.Itoa(len(run)) + " operations, " +
			strconv.Itoa(successCount) + " successful, " + strconv.Itoa(errorCount) + " errors"
	default:
		content = "Tool calls summary: " + strconv.Itoa(len(run)) + " calls"
	}

	tools := make([]string, 0, len(toolCounts))
	for name := range toolCounts {
		tools = append(tools, name)
	}

	return models.ConversationMessage{
		Role:      role,
		Content:   content,
		Timestamp: run[len(run)-1].Timestamp,
		Metadata: map[string]any{
			"compressed":     true,
			"original_count": len(run),
			"tools_used":     tools,
		},
		EstimatedTokens: EstimateTokens(content),
	}
}

func sumTokens(messages []models.ConversationMessage) int {
	total := 0
	for _, m := range messages {
		total += m.EstimatedTokens
	}
	return total
}
