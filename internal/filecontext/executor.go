// Tool execution implementations run by the workspace client once it
// receives an execute_tool frame: read_file, write_to_file, insert_content,
// search_and_replace, search_files, list_files, list_code_definition_names,
// execute_command, attempt_completion, ask_followup_question, and
// update_todo_list, grounded on the Python predecessor's
// client/tools/file_ops.py, search_ops.py, command_ops.py, and
// completion_ops.py. Every handler returns a protocol.ResultBody directly,
// matching the tool_result frame shape, rather than the predecessor's
// intermediate ToolResult dataclass.
package filecontext

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/trustgraph-ai/gambiarra/internal/protocol"
	"github.com/trustgraph-ai/gambiarra/internal/sandbox"
)

// DefaultCommandTimeout bounds execute_command when the caller supplies no
// timeout parameter, mirroring ExecuteCommandTool's default of 30 seconds.
const DefaultCommandTimeout = 30 * time.Second

// Executor runs tool calls on behalf of the workspace client, enforcing the
// path and command sandboxes and recording reads/writes in a Tracker.
type Executor struct {
	Paths    *sandbox.PathSandbox
	Commands *sandbox.CommandSandbox
	Tracker  *Tracker

	// CommandTimeout caps execute_command's default duration when the
	// model does not supply its own timeout parameter.
	CommandTimeout time.Duration

	// Stream, if set, receives each stdout/stderr line emitted by
	// execute_command as it runs, mirroring the predecessor's
	// stream_callback.
	Stream func(stream, line string)

	todos []todoItem
}

// NewExecutor builds an Executor wired to the given sandboxes and tracker.
func NewExecutor(paths *sandbox.PathSandbox, commands *sandbox.CommandSandbox, tracker *Tracker) *Executor {
	return &Executor{
		Paths:          paths,
		Commands:       commands,
		Tracker:        tracker,
		CommandTimeout: DefaultCommandTimeout,
	}
}

// Execute dispatches name to its handler. An unrecognized tool name returns
// a TOOL_NOT_FOUND error result, mirroring ToolManager.execute_tool's
// fallback when no tool is registered under that name.
func (e *Executor) Execute(ctx context.Context, name string, params map[string]any) protocol.ResultBody {
	switch name {
	case "read_file":
		return e.readFile(params)
	case "write_to_file":
		return e.writeToFile(params)
	case "insert_content":
		return e.insertContent(params)
	case "search_and_replace":
		return e.searchAndReplace(params)
	case "search_files":
		return e.searchFiles(params)
	case "list_files":
		return e.listFiles(params)
	case "list_code_definition_names":
		return e.listCodeDefinitionNames(params)
	case "execute_command":
		return e.executeCommand(ctx, params)
	case "attempt_completion":
		return e.attemptCompletion(params)
	case "ask_followup_question":
		return e.askFollowupQuestion(params)
	case "update_todo_list":
		return e.updateTodoList(params)
	default:
		return errorResult(protocol.CodeToolNotFound, fmt.Sprintf("tool %q not found", name), map[string]any{"tool": name})
	}
}

func errorResult(code, message string, details map[string]any) protocol.ResultBody {
	return protocol.ResultBody{
		Status: "error",
		Error:  &protocol.ErrorBody{Code: code, Message: message, Details: details},
	}
}

func successResult(data string, metadata map[string]any) protocol.ResultBody {
	return protocol.ResultBody{Status: "success", Data: data, Metadata: metadata}
}

// encodeData JSON-encodes a structured result payload for ResultBody.Data,
// which is a plain string on the wire (spec §4.1's tool_result payload).
func encodeData(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func stringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key].(string)
	return v, ok
}

func intParam(params map[string]any, key string) (int, bool) {
	switch v := params[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

func boolParam(params map[string]any, key string) bool {
	v, _ := params[key].(bool)
	return v
}
