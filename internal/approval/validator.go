package approval

import (
	"errors"
	"strings"
	"time"
)

// ValidationError reports a tool-parameter validation failure, grounded on
// tool_validator.ValidationError.
type ValidationError struct {
	Message   string
	Parameter string
	Details   map[string]any
}

func (e *ValidationError) Error() string { return e.Message }

func newValidationError(message, parameter string) *ValidationError {
	return &ValidationError{Message: message, Parameter: parameter}
}

// ToolError records one failed tool invocation, grounded on
// tool_validator.ToolError.
type ToolError struct {
	ToolName   string
	ErrorType  string
	Message    string
	Parameters map[string]any
	Timestamp  time.Time
}

// fieldSchema names a tool's required and optional parameter fields.
type fieldSchema struct {
	required []string
}

var toolFieldSchemas = map[string]fieldSchema{
	"read_file":                  {required: []string{"path"}},
	"write_to_file":              {required: []string{"path", "content", "line_count"}},
	"list_files":                 {required: []string{"path"}},
	"search_files":               {required: []string{"path", "regex"}},
	"execute_command":            {required: []string{"command"}},
	"search_and_replace":         {required: []string{"path", "search", "replace"}},
	"insert_content":             {required: []string{"path", "line_number", "content"}},
	"list_code_definition_names": {required: []string{"path"}},
	"attempt_completion":         {required: []string{"result"}},
	"ask_followup_question":      {required: []string{"question"}},
	"update_todo_list":           {required: []string{"todos"}},
}

// Validator validates already-unwrapped tool parameters against each tool's
// schema and tracks consecutive validation failures toward a mistake
// budget, grounded on ToolValidator.
type Validator struct {
	errorHistory      []ToolError
	consecutiveMistakes int
}

// NewValidator creates a Validator with empty history.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks params (already unwrapped from the wire {"args":...}
// envelope) against toolName's schema. On failure it records a ToolError
// and increments the consecutive-mistake count; on success the count
// resets to zero.
func (v *Validator) Validate(toolName string, params map[string]any) error {
	schema, ok := toolFieldSchemas[toolName]
	if !ok {
		err := newValidationError("unknown tool: "+toolName, "")
		v.recordMistake(toolName, "unknown_tool", err.Error(), params)
		return err
	}

	for _, field := range schema.required {
		if _, present := params[field]; !present {
			err := newValidationError("missing required parameter: "+field, field)
			v.recordMistake(toolName, "missing_parameter", err.Error(), params)
			return err
		}
	}

	if err := v.validateValues(toolName, params); err != nil {
		v.recordMistake(toolName, "invalid_value", err.Error(), params)
		return err
	}

	v.consecutiveMistakes = 0
	return nil
}

func (v *Validator) validateValues(toolName string, params map[string]any) error {
	if path, ok := params["path"]; ok {
		s, isStr := path.(string)
		if !isStr || strings.TrimSpace(s) == "" {
			return newValidationError("parameter 'path' must be a non-empty string", "path")
		}
	}

	if toolName == "write_to_file" {
		if lc, ok := params["line_count"]; ok {
			n, valid := asNonNegativeInt(lc)
			if !valid || n < 0 {
				return newValidationError("line_count must be a non-negative integer", "line_count")
			}
		}
	}

	return nil
}

func asNonNegativeInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), n == float64(int(n))
	default:
		return 0, false
	}
}

func (v *Validator) recordMistake(toolName, errorType, message string, params map[string]any) {
	v.errorHistory = append(v.errorHistory, ToolError{
		ToolName:   toolName,
		ErrorType:  errorType,
		Message:    message,
		Parameters: params,
		Timestamp:  time.Now(),
	})
	v.consecutiveMistakes++
}

// ConsecutiveMistakes returns the current run length of validation failures
// with no intervening success.
func (v *Validator) ConsecutiveMistakes() int { return v.consecutiveMistakes }

// ErrorHistory returns every recorded validation failure.
func (v *Validator) ErrorHistory() []ToolError {
	out := make([]ToolError, len(v.errorHistory))
	copy(out, v.errorHistory)
	return out
}

// ErrMistakeBudgetExceeded is returned by the policy stage once
// ConsecutiveMistakes crosses the configured mistake budget.
var ErrMistakeBudgetExceeded = errors.New("consecutive tool-call mistake budget exceeded")
