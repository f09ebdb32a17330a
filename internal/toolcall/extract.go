// Package toolcall extracts and validates tool-call invocations embedded as
// XML-ish blocks in streamed assistant text.
//
// Parsing is grounded on the original parser's nested <tool><args>...</args>
// structure (server/core/tools/parser.py in the Python predecessor): each
// supported tool name is an outer element containing an <args> child, and
// read_file additionally nests a <file><path> wrapper inside <args>. Fields
// are pulled out with targeted regexes rather than a general XML parser
// because the input is not guaranteed well-formed XML (models frequently
// emit unescaped ampersands, stray angle brackets in code content, etc.);
// a conformant XML parser would simply fail to parse, and a DTD/entity
// -resolving one would be unsafe. HTML-entity unescape afterward uses the
// standard library's html.UnescapeString, matching Python's html.unescape.
package toolcall

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

// KnownTools is the closed set of tool names the extractor recognizes.
// Peers MUST agree on this set (spec §3, ToolDefinition).
var KnownTools = []string{
	"read_file", "write_to_file", "list_files", "search_files",
	"execute_command", "search_and_replace", "insert_content",
	"list_code_definition_names", "attempt_completion",
	"ask_followup_question", "update_todo_list",
}

// Call is one validated, extracted tool invocation.
type Call struct {
	Name       string
	Parameters map[string]any
}

// toolBlockRegex builds a regex that matches an outer <name>...</name>
// region for any of the known tool names. Go's regexp (RE2) has no
// backreferences, so each tool gets its own alternative with its own
// literal closing tag rather than a single backreferenced pattern.
func toolBlockRegex() *regexp.Regexp {
	var parts []string
	for _, name := range KnownTools {
		parts = append(parts, `<`+name+`>(?s:.*?)</`+name+`>`)
	}
	return regexp.MustCompile(strings.Join(parts, "|"))
}

var outerRegex = toolBlockRegex()

// Extract scans fully-accumulated assistant text for <TOOL>...</TOOL>
// regions naming a known tool, parses and validates each, and returns the
// calls found in source order. Malformed, unknown-tool, or
// failing-validation blocks are silently skipped, never fatal (spec §4.2).
func Extract(text string) []Call {
	matches := outerRegex.FindAllString(text, -1)

	var calls []Call
	for _, block := range matches {
		name := blockToolName(block)
		if name == "" {
			continue
		}
		if !strings.Contains(block, "<args>") {
			continue
		}
		params := parseParameters(name, block)
		if !validate(name, params) {
			continue
		}
		calls = append(calls, Call{Name: name, Parameters: params})
	}
	return calls
}

func blockToolName(block string) string {
	for _, name := range KnownTools {
		if strings.HasPrefix(block, "<"+name+">") {
			return name
		}
	}
	return ""
}

func unescape(s string) string {
	return html.UnescapeString(s)
}

var (
	reReadFilePath   = regexp.MustCompile(`(?s)<args>.*?<file>.*?<path>(.*?)</path>.*?</file>.*?</args>`)
	rePath           = regexp.MustCompile(`(?s)<args>.*?<path>(.*?)</path>.*?</args>`)
	reContent        = regexp.MustCompile(`(?s)<args>.*?<content>(.*?)</content>.*?</args>`)
	reLineCount      = regexp.MustCompile(`(?s)<args>.*?<line_count>(\d+)</line_count>.*?</args>`)
	reRegex          = regexp.MustCompile(`(?s)<args>.*?<regex>(.*?)</regex>.*?</args>`)
	reFilePattern    = regexp.MustCompile(`(?s)<args>.*?<file_pattern>(.*?)</file_pattern>.*?</args>`)
	reRecursive      = regexp.MustCompile(`(?s)<args>.*?<recursive>(true|false)</recursive>.*?</args>`)
	reCommand        = regexp.MustCompile(`(?s)<args>.*?<command>(.*?)</command>.*?</args>`)
	reSearch         = regexp.MustCompile(`(?s)<args>.*?<search>(.*?)</search>.*?</args>`)
	reReplace        = regexp.MustCompile(`(?s)<args>.*?<replace>(.*?)</replace>.*?</args>`)
	reLineNumber     = regexp.MustCompile(`(?s)<args>.*?<line_number>(\d+)</line_number>.*?</args>`)
	reQuestion       = regexp.MustCompile(`(?s)<args>.*?<question>(.*?)</question>.*?</args>`)
	reResult         = regexp.MustCompile(`(?s)<args>.*?<result>(.*?)</result>.*?</args>`)
	reTodos          = regexp.MustCompile(`(?s)<args>.*?<todos>(.*?)</todos>.*?</args>`)
)

func parseParameters(tool, block string) map[string]any {
	params := map[string]any{}

	switch tool {
	case "read_file":
		if m := reReadFilePath.FindStringSubmatch(block); m != nil {
			params["path"] = unescape(strings.TrimSpace(m[1]))
		}
	case "write_to_file", "search_and_replace", "insert_content",
		"list_code_definition_names", "list_files", "search_files":
		if m := rePath.FindStringSubmatch(block); m != nil {
			params["path"] = unescape(strings.TrimSpace(m[1]))
		}
	}

	switch tool {
	case "write_to_file":
		if m := reContent.FindStringSubmatch(block); m != nil {
			params["content"] = unescape(m[1])
		}
		if m := reLineCount.FindStringSubmatch(block); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				params["line_count"] = n
			}
		}
	case "search_files":
		if m := reRegex.FindStringSubmatch(block); m != nil {
			params["regex"] = unescape(strings.TrimSpace(m[1]))
		}
		if m := reFilePattern.FindStringSubmatch(block); m != nil {
			params["file_pattern"] = unescape(strings.TrimSpace(m[1]))
		}
	case "list_files":
		if m := reRecursive.FindStringSubmatch(block); m != nil {
			params["recursive"] = m[1] == "true"
		}
	case "execute_command":
		if m := reCommand.FindStringSubmatch(block); m != nil {
			params["command"] = unescape(strings.TrimSpace(m[1]))
		}
	case "search_and_replace":
		if m := reSearch.FindStringSubmatch(block); m != nil {
			params["search"] = unescape(m[1])
		}
		if m := reReplace.FindStringSubmatch(block); m != nil {
			params["replace"] = unescape(m[1])
		}
	case "insert_content":
		if m := reLineNumber.FindStringSubmatch(block); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				params["line_number"] = n
			}
		}
		if m := reContent.FindStringSubmatch(block); m != nil {
			params["content"] = unescape(m[1])
		}
	case "ask_followup_question":
		if m := reQuestion.FindStringSubmatch(block); m != nil {
			params["question"] = unescape(m[1])
		}
	case "attempt_completion":
		if m := reResult.FindStringSubmatch(block); m != nil {
			params["result"] = unescape(m[1])
		}
	case "update_todo_list":
		if m := reTodos.FindStringSubmatch(block); m != nil {
			params["todos"] = unescape(m[1])
		}
	}

	return params
}

// validate performs the semantic validation named in spec §4.2 step 4:
// required-field presence, non-empty strings after trimming, non-negative
// integers. Unknown tools were already excluded by the caller.
func validate(tool string, params map[string]any) bool {
	nonEmpty := func(key string) bool {
		v, ok := params[key].(string)
		return ok && strings.TrimSpace(v) != ""
	}
	nonNegativeInt := func(key string) bool {
		v, ok := params[key].(int)
		return ok && v >= 0
	}

	switch tool {
	case "read_file", "list_files", "search_files", "list_code_definition_names":
		return nonEmpty("path")
	case "write_to_file":
		if !nonEmpty("path") {
			return false
		}
		if _, ok := params["content"]; !ok {
			return false
		}
		if _, ok := params["line_count"]; ok && !nonNegativeInt("line_count") {
			return false
		}
		return true
	case "search_and_replace":
		return nonEmpty("path") && nonEmpty("search")
	case "insert_content":
		if !nonEmpty("path") {
			return false
		}
		if !nonNegativeInt("line_number") {
			return false
		}
		_, hasContent := params["content"]
		return hasContent
	case "execute_command":
		return nonEmpty("command")
	case "ask_followup_question":
		return nonEmpty("question")
	case "attempt_completion":
		return nonEmpty("result")
	case "update_todo_list":
		_, ok := params["todos"]
		return ok
	default:
		return false
	}
}
