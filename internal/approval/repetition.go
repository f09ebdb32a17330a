// Package approval implements the client-side approval pipeline: parameter
// validation, consecutive-call repetition detection, a stale-file-context
// probe, and policy evaluation, run in that order against every extracted
// tool call before it executes. Grounded on the Python predecessor's
// security.tool_repetition_detector.ToolRepetitionDetector,
// security.approval_manager.ApprovalPolicy/ApprovalManager, and
// security.tool_validator.ToolValidator.
package approval

import (
	"encoding/json"
	"sort"
)

// DefaultRepetitionLimit is the number of consecutive identical tool calls
// tolerated before the pipeline surfaces a loop warning; 0 disables the
// check.
const DefaultRepetitionLimit = 3

// RepetitionResult reports whether a call should proceed.
type RepetitionResult struct {
	Allow   bool
	Message string
}

// RepetitionDetector flags an AI stuck issuing the same tool call
// repeatedly, grounded on ToolRepetitionDetector.
type RepetitionDetector struct {
	limit            int
	previousCallJSON string
	consecutiveCount int
}

// NewRepetitionDetector creates a detector with the given consecutive-call
// limit. A non-positive limit disables the check.
func NewRepetitionDetector(limit int) *RepetitionDetector {
	return &RepetitionDetector{limit: limit}
}

// Check reports whether a tool call identical to the previous one has now
// been repeated past the configured limit. browser_action scroll_up/down
// calls are exempt, mirroring the source's _is_browser_scroll_action carve-out.
func (d *RepetitionDetector) Check(toolName string, params map[string]any) RepetitionResult {
	if isBrowserScrollAction(toolName, params) {
		return RepetitionResult{Allow: true}
	}

	current := canonicalToolCallJSON(toolName, params)

	if d.previousCallJSON == current {
		d.consecutiveCount++
	} else {
		d.consecutiveCount = 0
		d.previousCallJSON = current
	}

	if d.limit > 0 && d.consecutiveCount >= d.limit {
		d.consecutiveCount = 0
		d.previousCallJSON = ""
		return RepetitionResult{
			Allow:   false,
			Message: "AI is repeating the same '" + toolName + "' tool call. This may indicate it's stuck in a loop.",
		}
	}

	return RepetitionResult{Allow: true}
}

// Reset clears detector state, e.g. once the user has redirected the AI.
func (d *RepetitionDetector) Reset() {
	d.previousCallJSON = ""
	d.consecutiveCount = 0
}

func isBrowserScrollAction(toolName string, params map[string]any) bool {
	if toolName != "browser_action" {
		return false
	}
	action, _ := params["action"].(string)
	return action == "scroll_down" || action == "scroll_up"
}

// canonicalToolCallJSON serializes a tool call with parameter keys sorted,
// so that parameter-order differences never defeat repetition detection.
func canonicalToolCallJSON(toolName string, params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sortedParams := make(map[string]any, len(params))
	for _, k := range keys {
		sortedParams[k] = params[k]
	}

	encoded, err := json.Marshal(map[string]any{
		"name":       toolName,
		"parameters": sortedParams,
	})
	if err != nil {
		return toolName
	}
	return string(encoded)
}
