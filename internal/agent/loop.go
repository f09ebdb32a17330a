package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/trustgraph-ai/gambiarra/internal/approval"
	"github.com/trustgraph-ai/gambiarra/internal/filecontext"
	"github.com/trustgraph-ai/gambiarra/internal/memory"
	"github.com/trustgraph-ai/gambiarra/internal/observability"
	"github.com/trustgraph-ai/gambiarra/internal/protocol"
	"github.com/trustgraph-ai/gambiarra/internal/provider"
	"github.com/trustgraph-ai/gambiarra/internal/toolcall"
	"github.com/trustgraph-ai/gambiarra/pkg/models"
)

// maxRecentToolResults bounds how many "Tool result:"-prefixed assistant
// messages may appear in the last toolResultWindow messages before the loop
// forces a turn to end, guarding against a model that never emits
// attempt_completion. It is checked against the conversation itself (§4.4's
// summaries double as the counter) rather than a separate in-memory tally.
const (
	maxRecentToolResults = 10
	toolResultWindow      = 10
)

// baseToolRisk is the un-overridden risk level of each known tool, mirroring
// the original per-tool risk table the Python predecessor hard-coded
// alongside its tool definitions. ModeFilter.EffectiveRisk may override it
// per operating mode.
var baseToolRisk = map[string]models.RiskLevel{
	"read_file":                  models.RiskLow,
	"list_files":                 models.RiskMinimal,
	"search_files":               models.RiskLow,
	"list_code_definition_names": models.RiskMinimal,
	"write_to_file":              models.RiskMedium,
	"search_and_replace":         models.RiskMedium,
	"insert_content":             models.RiskMedium,
	"execute_command":            models.RiskHigh,
	"attempt_completion":         models.RiskMinimal,
	"ask_followup_question":      models.RiskMinimal,
	"update_todo_list":           models.RiskMinimal,
}

func baseRiskOf(toolName string) models.RiskLevel {
	if risk, ok := baseToolRisk[toolName]; ok {
		return risk
	}
	return models.RiskMedium
}

var writeTools = map[string]struct{}{
	"write_to_file":      {},
	"search_and_replace": {},
	"insert_content":     {},
}

// Sender delivers a wire frame to the peer a LoopSession is talking to.
// transport.Conn satisfies this interface.
type Sender interface {
	Send(protocol.Frame) error
}

// pendingApproval is a tool call awaiting a tool_approval_response frame.
type pendingApproval struct {
	call      toolcall.Call
	requestID string
}

// pendingExecution is an approved tool call awaiting a tool_result frame.
type pendingExecution struct {
	call        toolcall.Call
	executionID string
	startedAt   time.Time
	span        trace.Span
}

// LoopSession holds one conversation's runtime state: its message history,
// file-freshness tracking, and approval pipeline, plus whatever tool calls
// are currently queued or in flight across the wire.
type LoopSession struct {
	ID     string
	Mode   models.OperatingMode
	Memory *memory.ConversationMemory

	mu               sync.Mutex
	pendingCalls     []toolcall.Call
	pendingApproval  *pendingApproval
	pendingExecution *pendingExecution
}

// NewLoopSession builds a LoopSession with its own ConversationMemory.
func NewLoopSession(id string, mode models.OperatingMode, log *slog.Logger, memCfg memory.Config) *LoopSession {
	return &LoopSession{
		ID:     id,
		Mode:   mode,
		Memory: memory.New(log, memCfg),
	}
}

// AgenticLoop drives one session's conversation with an LLMProvider: it
// streams completions, extracts embedded tool calls, routes them through an
// approval pipeline, and resumes once the client reports an approval
// decision or a tool result, mirroring spec §4.3/§4.4's request/stream/
// tool-call/approve/execute/continue cycle.
type AgenticLoop struct {
	log          *slog.Logger
	provider     provider.LLMProvider
	modeFilter   *ModeFilter
	systemPrompt string
	metrics      *observability.Metrics
	tracer       *observability.Tracer
}

// LoopConfig tunes an AgenticLoop's behavior.
type LoopConfig struct {
	SystemPrompt string

	// Metrics and Tracer are optional. When nil, the loop runs with no
	// observability overhead beyond its own slog lines.
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// NewAgenticLoop builds an AgenticLoop backed by p.
func NewAgenticLoop(log *slog.Logger, p provider.LLMProvider, modeFilter *ModeFilter, cfg LoopConfig) *AgenticLoop {
	if log == nil {
		log = slog.Default()
	}
	if modeFilter == nil {
		modeFilter = NewModeFilter(log)
	}
	return &AgenticLoop{
		log:          log,
		provider:     p,
		modeFilter:   modeFilter,
		systemPrompt: cfg.SystemPrompt,
		metrics:      cfg.Metrics,
		tracer:       cfg.Tracer,
	}
}

// riskOf returns a RiskOf closure bound to sess's operating mode, suitable
// for approval.Config.RiskOf.
func (l *AgenticLoop) riskOf(sess *LoopSession) func(string, map[string]any) models.RiskLevel {
	return func(toolName string, _ map[string]any) models.RiskLevel {
		return l.modeFilter.EffectiveRisk(toolName, sess.Mode, baseRiskOf(toolName))
	}
}

// NewPipeline builds the approval.Pipeline a LoopSession should use,
// wired to tracker and bound to sess's operating mode's risk overrides.
func (l *AgenticLoop) NewPipeline(sess *LoopSession, tracker *filecontext.Tracker) *approval.Pipeline {
	return approval.New(l.log, approval.Config{
		Tracker: tracker,
		RiskOf:  l.riskOf(sess),
		PathExtractor: func(toolName string, params map[string]any) (string, bool) {
			path, ok := params["path"].(string)
			return path, ok
		},
	})
}

// HandleUserMessage begins a new turn: it appends the user's message to
// history and runs the model/tool loop until the model stops asking for
// tools, or until a tool call is dispatched and the loop suspends awaiting
// an approval decision or a tool result.
func (l *AgenticLoop) HandleUserMessage(ctx context.Context, sess *LoopSession, pipeline *approval.Pipeline, sender Sender, content string) error {
	sess.Memory.Add(models.RoleUser, content, nil)
	sess.mu.Lock()
	sess.pendingCalls = nil
	sess.mu.Unlock()
	return l.step(ctx, sess, pipeline, sender)
}

// HandleApprovalResponse resumes a suspended turn once the client has
// reported a tool_approval_response frame's decision. feedback carries the
// user's reason for a denial, if any, and is folded into the denial message
// appended to history.
func (l *AgenticLoop) HandleApprovalResponse(ctx context.Context, sess *LoopSession, pipeline *approval.Pipeline, sender Sender, requestID string, decision models.ApprovalDecision, modifiedParams map[string]any, feedback string) error {
	sess.mu.Lock()
	pending := sess.pendingApproval
	if pending == nil || pending.requestID != requestID {
		sess.mu.Unlock()
		return fmt.Errorf("agent: no pending approval with request_id %q", requestID)
	}
	sess.pendingApproval = nil
	sess.mu.Unlock()

	if decision == models.DecisionDenied {
		sess.Memory.Add(models.RoleAssistant, denialMessage(pending.call.Name, feedback), nil)
		return l.processNextPending(ctx, sess, pipeline, sender)
	}

	params := pending.call.Parameters
	if decision == models.DecisionApprovedWithModification && modifiedParams != nil {
		params = modifiedParams
	}
	return l.dispatchExecution(ctx, sess, sender, toolcall.Call{Name: pending.call.Name, Parameters: params})
}

// denialMessage builds the exact text §4.3 prescribes for a user-denied tool
// call. It starts with "Tool result:" so it counts toward the safety budget
// the same as a successful execution's summary does.
func denialMessage(toolName, feedback string) string {
	return fmt.Sprintf("Tool result: '%s' was denied by the user. Reason: %s. Please acknowledge this and consider alternative approaches.", toolName, feedback)
}

// HandleToolResult resumes a suspended turn once the client has reported a
// tool_result frame for the in-flight execution.
func (l *AgenticLoop) HandleToolResult(ctx context.Context, sess *LoopSession, pipeline *approval.Pipeline, sender Sender, executionID string, result protocol.ResultBody) error {
	sess.mu.Lock()
	pending := sess.pendingExecution
	if pending == nil || pending.executionID != executionID {
		sess.mu.Unlock()
		return fmt.Errorf("agent: no pending execution with execution_id %q", executionID)
	}
	sess.pendingExecution = nil
	sess.mu.Unlock()

	_, isWrite := writeTools[pending.call.Name]
	if path, ok := pending.call.Parameters["path"].(string); ok {
		pipeline.ObserveResult(pending.call.Name, path, result.Data, isWrite)
	}

	success := result.Status != "error"
	sess.Memory.Add(models.RoleAssistant, summarizeToolResult(pending.call, result), nil)

	status := "success"
	if !success {
		status = "error"
	}
	if l.metrics != nil {
		l.metrics.RecordToolExecution(pending.call.Name, status, time.Since(pending.startedAt).Seconds())
	}
	if pending.span != nil {
		if !success {
			errMsg := "tool execution failed"
			if result.Error != nil {
				errMsg = result.Error.Message
			}
			l.tracer.RecordError(pending.span, fmt.Errorf("%s", errMsg))
		}
		pending.span.End()
	}

	return l.processNextPending(ctx, sess, pipeline, sender)
}

// summarizeToolResult implements spec §4.4: it synthesises a short
// assistant-role message from a tool's outcome, in a shape that depends on
// which tool produced it. The same message both informs the model of what
// happened and, via its "Tool result:"/"Tool failed:" prefix, feeds the
// §4.3 safety-budget count.
func summarizeToolResult(call toolcall.Call, result protocol.ResultBody) string {
	if result.Status == "error" {
		msg := "Unknown error"
		if result.Error != nil && result.Error.Message != "" {
			msg = result.Error.Message
		}
		return "Tool failed: " + msg
	}

	switch call.Name {
	case "list_files":
		return summarizeListFiles(result)
	case "write_to_file":
		return summarizeWriteToFile(result)
	case "read_file":
		return summarizeReadFile(call, result)
	case "execute_command":
		return summarizeExecuteCommand(call, result)
	default:
		return "Tool result: Operation completed successfully. Data: " + truncate(result.Data, 200)
	}
}

type listFilesEntry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type listFilesData struct {
	Files       []listFilesEntry `json:"files"`
	Directories []listFilesEntry `json:"directories"`
}

func summarizeListFiles(result protocol.ResultBody) string {
	var data listFilesData
	_ = json.Unmarshal([]byte(result.Data), &data)

	if len(data.Files) == 0 && len(data.Directories) == 0 {
		return "Tool result: No files or directories found in the workspace."
	}

	var parts []string
	if len(data.Directories) > 0 {
		names := make([]string, len(data.Directories))
		for i, d := range data.Directories {
			names[i] = d.Name
		}
		parts = append(parts, "Directories: "+strings.Join(names, ", "))
	}
	if len(data.Files) > 0 {
		descs := make([]string, len(data.Files))
		for i, f := range data.Files {
			descs[i] = fmt.Sprintf("%s (size %d)", f.Name, f.Size)
		}
		parts = append(parts, "Files: "+strings.Join(descs, ", "))
	}
	return "Tool result: " + strings.Join(parts, "; ")
}

func summarizeWriteToFile(result protocol.ResultBody) string {
	path, _ := result.Metadata["path"].(string)
	bytesWritten := metadataInt(result.Metadata, "bytes_written")
	verb := "Created"
	if created, _ := result.Metadata["operation"].(string); created == "file_updated" {
		verb = "Updated"
	}
	return fmt.Sprintf("Tool result: %s file %s (%d bytes)", verb, path, bytesWritten)
}

func summarizeReadFile(call toolcall.Call, result protocol.ResultBody) string {
	path, _ := call.Parameters["path"].(string)
	return fmt.Sprintf("Tool result: Read %s (%d chars). Content: %s...", path, len(result.Data), truncate(result.Data, 200))
}

type executeCommandData struct {
	Stdout string `json:"stdout"`
}

func summarizeExecuteCommand(call toolcall.Call, result protocol.ResultBody) string {
	command, _ := call.Parameters["command"].(string)
	var data executeCommandData
	_ = json.Unmarshal([]byte(result.Data), &data)
	return fmt.Sprintf("Tool result: Executed '%s'. Output: %s", command, truncate(data.Stdout, 300))
}

func metadataInt(metadata map[string]any, key string) int {
	switch v := metadata[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// truncate returns at most n bytes of s, without an ellipsis: callers that
// want one append it themselves, since not every prescribed format uses one.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// budgetExceeded implements §4.3's safety budget: count, among the last
// toolResultWindow messages, how many are assistant messages whose content
// begins "Tool result:" — the same summaries summarizeToolResult and
// denialMessage produce. Once that count reaches the limit, the turn ends
// without re-invoking the model, guarding against infinite tool-call loops.
func (l *AgenticLoop) budgetExceeded(sess *LoopSession) bool {
	recent := sess.Memory.Recent(toolResultWindow)
	count := 0
	for _, msg := range recent {
		if msg.Role == models.RoleAssistant && strings.HasPrefix(msg.Content, "Tool result:") {
			count++
		}
	}
	return count >= maxRecentToolResults
}

// step runs one model completion, streams it to sender, and either ends the
// turn (no tool call found) or queues the extracted tool calls for
// processNextPending to work through in order.
func (l *AgenticLoop) step(ctx context.Context, sess *LoopSession, pipeline *approval.Pipeline, sender Sender) error {
	if l.budgetExceeded(sess) {
		sess.Memory.Add(models.RoleSystem, "Maximum tool-result budget reached for this turn.", nil)
		return sender.Send(protocol.Frame{
			Type:      protocol.FrameAIResponseChunk,
			SessionID: sess.ID,
			Payload:   mustPayload(protocol.AIResponseChunkPayload{Chunk: protocol.ResponseChunk{Content: "", IsComplete: true}}),
		})
	}

	req := l.buildRequest(sess)

	if l.tracer != nil {
		var span trace.Span
		ctx, span = l.tracer.TraceLLMRequest(ctx, "router", req.Model)
		defer span.End()
	}
	requestStart := time.Now()

	chunks, err := l.provider.Complete(ctx, req)
	if err != nil {
		if l.metrics != nil {
			l.metrics.RecordLLMRequest("router", req.Model, "error", time.Since(requestStart).Seconds(), 0, 0)
		}
		return err
	}

	var text strings.Builder
	var inputTokens, outputTokens int
	for chunk := range chunks {
		if chunk.Error != nil {
			if l.metrics != nil {
				l.metrics.RecordLLMRequest("router", req.Model, "error", time.Since(requestStart).Seconds(), inputTokens, outputTokens)
			}
			return chunk.Error
		}
		if chunk.InputTokens > 0 {
			inputTokens = chunk.InputTokens
		}
		if chunk.OutputTokens > 0 {
			outputTokens = chunk.OutputTokens
		}
		if chunk.Text != "" {
			text.WriteString(chunk.Text)
			if sendErr := sender.Send(protocol.Frame{
				Type:      protocol.FrameAIResponseChunk,
				SessionID: sess.ID,
				Payload:   mustPayload(protocol.AIResponseChunkPayload{Chunk: protocol.ResponseChunk{Content: chunk.Text}}),
			}); sendErr != nil {
				return sendErr
			}
		}
		if chunk.Done {
			if l.metrics != nil {
				l.metrics.RecordLLMRequest("router", req.Model, "success", time.Since(requestStart).Seconds(), inputTokens, outputTokens)
			}
			if sendErr := sender.Send(protocol.Frame{
				Type:      protocol.FrameAIResponseChunk,
				SessionID: sess.ID,
				Payload:   mustPayload(protocol.AIResponseChunkPayload{Chunk: protocol.ResponseChunk{IsComplete: true}}),
			}); sendErr != nil {
				return sendErr
			}
		}
	}

	full := text.String()
	sess.Memory.Add(models.RoleAssistant, full, nil)

	calls := toolcall.Extract(full)
	if len(calls) == 0 {
		return nil
	}

	sess.mu.Lock()
	sess.pendingCalls = calls
	sess.mu.Unlock()

	return l.processNextPending(ctx, sess, pipeline, sender)
}

// processNextPending pops the next queued tool call from this turn's batch
// and routes it through the mode filter and approval pipeline. Once the
// batch is drained it re-invokes the model via step, implementing §4.3's
// "for each tc in tool_calls in order" before the next model round-trip.
func (l *AgenticLoop) processNextPending(ctx context.Context, sess *LoopSession, pipeline *approval.Pipeline, sender Sender) error {
	sess.mu.Lock()
	if len(sess.pendingCalls) == 0 {
		sess.mu.Unlock()
		return l.step(ctx, sess, pipeline, sender)
	}
	call := sess.pendingCalls[0]
	sess.pendingCalls = sess.pendingCalls[1:]
	sess.mu.Unlock()

	if !l.modeFilter.IsToolAllowed(call.Name, sess.Mode) {
		l.log.Info("tool denied by operating mode", "tool", call.Name, "mode", sess.Mode)
		sess.Memory.Add(models.RoleAssistant, fmt.Sprintf("Tool result: %q is not permitted in %s mode.", call.Name, sess.Mode), nil)
		if err := sender.Send(protocol.Frame{
			Type:      protocol.FrameToolDenied,
			SessionID: sess.ID,
			Payload:   mustPayload(protocol.ToolDeniedPayload{ToolName: call.Name, Reason: "not permitted in " + string(sess.Mode) + " mode"}),
		}); err != nil {
			return err
		}
		return l.processNextPending(ctx, sess, pipeline, sender)
	}

	outcome := pipeline.Evaluate(call.Name, call.Parameters)
	switch outcome.Verdict {
	case approval.VerdictBlocked:
		sess.Memory.Add(models.RoleAssistant, "Tool result: call blocked: "+outcome.Reason, nil)
		if err := sender.Send(protocol.Frame{
			Type:      protocol.FrameToolDenied,
			SessionID: sess.ID,
			Payload:   mustPayload(protocol.ToolDeniedPayload{ToolName: call.Name, Reason: outcome.Reason}),
		}); err != nil {
			return err
		}
		return l.processNextPending(ctx, sess, pipeline, sender)

	case approval.VerdictAutoApproved:
		return l.dispatchExecution(ctx, sess, sender, call)

	default: // VerdictManualReview
		requestID := uuid.NewString()
		sess.mu.Lock()
		sess.pendingApproval = &pendingApproval{call: call, requestID: requestID}
		sess.mu.Unlock()

		risk := l.modeFilter.EffectiveRisk(call.Name, sess.Mode, baseRiskOf(call.Name))
		return sender.Send(protocol.Frame{
			Type:      protocol.FrameToolApprovalRequest,
			SessionID: sess.ID,
			RequestID: requestID,
			Payload: mustPayload(protocol.ToolApprovalRequestPayload{Tool: protocol.ToolSpec{
				Name:             call.Name,
				Parameters:       call.Parameters,
				RiskLevel:        string(risk),
				RequiresApproval: true,
			}}),
		})
	}
}

func (l *AgenticLoop) dispatchExecution(ctx context.Context, sess *LoopSession, sender Sender, call toolcall.Call) error {
	executionID := uuid.NewString()
	pending := &pendingExecution{call: call, executionID: executionID, startedAt: time.Now()}
	if l.tracer != nil {
		_, pending.span = l.tracer.TraceToolExecution(ctx, call.Name)
	}
	sess.mu.Lock()
	sess.pendingExecution = pending
	sess.mu.Unlock()

	return sender.Send(protocol.Frame{
		Type:        protocol.FrameExecuteTool,
		SessionID:   sess.ID,
		ExecutionID: executionID,
		Payload: mustPayload(protocol.ExecuteToolPayload{Tool: protocol.ExecuteToolBody{
			Name:       call.Name,
			Parameters: call.Parameters,
		}}),
	})
}

func (l *AgenticLoop) buildRequest(sess *LoopSession) *provider.CompletionRequest {
	recent := sess.Memory.Recent(memory.KeepRecentMessages * 4)
	messages := make([]provider.CompletionMessage, 0, len(recent))
	for _, msg := range recent {
		role := string(msg.Role)
		if msg.Role == models.RoleToolCall || msg.Role == models.RoleToolResult {
			role = "assistant"
		}
		messages = append(messages, provider.CompletionMessage{Role: role, Content: msg.Content})
	}
	return &provider.CompletionRequest{
		System:   l.systemPrompt,
		Messages: messages,
	}
}

// mustPayload marshals a frame payload. Every payload type here is a
// plain struct of JSON-safe fields, so marshaling cannot fail in practice;
// a panic surfaces a programmer error immediately rather than silently
// dropping a frame.
func mustPayload(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
