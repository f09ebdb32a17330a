package filecontext

import (
	"strings"

	"github.com/trustgraph-ai/gambiarra/internal/protocol"
)

// todoItem is one entry of the session-scoped todo list update_todo_list
// maintains, grounded on UpdateTodoListTool's in-memory list but simplified
// to match the wire protocol's single <todos> text-blob parameter rather
// than the predecessor's separate add/update/complete/remove actions.
type todoItem struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// attemptCompletion implements attempt_completion, grounded on
// AttemptCompletionTool.execute: it packages the model's claimed result
// (and optional verification command) for the approval pipeline to surface
// to the user, without doing anything itself.
func (e *Executor) attemptCompletion(params map[string]any) protocol.ResultBody {
	result, ok := stringParam(params, "result")
	if !ok || strings.TrimSpace(result) == "" {
		return errorResult(protocol.CodeToolExecutionError, "result is required", nil)
	}

	data := map[string]any{"result": result, "status": "pending_approval"}
	if command, ok := stringParam(params, "command"); ok && command != "" {
		data["verification_command"] = command
	}

	return successResult(encodeData(data), map[string]any{"message": "Task completion attempted: " + result})
}

// askFollowupQuestion implements ask_followup_question, grounded on
// AskFollowupQuestionTool.execute.
func (e *Executor) askFollowupQuestion(params map[string]any) protocol.ResultBody {
	question, ok := stringParam(params, "question")
	if !ok || strings.TrimSpace(question) == "" {
		return errorResult(protocol.CodeToolExecutionError, "question is required", nil)
	}

	data := map[string]any{
		"question": question,
		"type":     "followup_question",
		"status":   "waiting_for_response",
	}
	if context, ok := stringParam(params, "context"); ok && context != "" {
		data["context"] = context
	}

	return successResult(encodeData(data), map[string]any{"message": "Question for user: " + question})
}

// updateTodoList implements update_todo_list, grounded on
// UpdateTodoListTool but matching the <todos> single-field parameter the
// extractor produces: the whole list is replaced with the newline-separated
// items in the todos string, each optionally prefixed "[x] " to mark it
// done, mirroring how the model is prompted to emit its checklist.
func (e *Executor) updateTodoList(params map[string]any) protocol.ResultBody {
	todos, ok := stringParam(params, "todos")
	if !ok {
		return errorResult(protocol.CodeToolExecutionError, "todos is required", nil)
	}

	var items []todoItem
	for _, line := range strings.Split(todos, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		done := false
		if strings.HasPrefix(line, "[x]") || strings.HasPrefix(line, "[X]") {
			done = true
			line = strings.TrimSpace(line[3:])
		} else if strings.HasPrefix(line, "[ ]") {
			line = strings.TrimSpace(line[3:])
		}
		items = append(items, todoItem{Text: line, Done: done})
	}
	e.todos = items

	completed := 0
	for _, it := range items {
		if it.Done {
			completed++
		}
	}

	return successResult(encodeData(map[string]any{"todos": items}), map[string]any{
		"total_items":     len(items),
		"completed_items": completed,
	})
}
