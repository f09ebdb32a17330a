package agent

import (
	"log/slog"

	"github.com/trustgraph-ai/gambiarra/pkg/models"
)

// toolCategory groups related tool names for mode-access rules, grounded
// on ToolModeFilter.tool_categories.
type toolCategory string

const (
	categoryFileRead       toolCategory = "file_read"
	categoryFileWrite      toolCategory = "file_write"
	categoryCommandExec    toolCategory = "command_exec"
	categoryCommunication  toolCategory = "communication"
	categoryTaskManagement toolCategory = "task_management"
)

var toolCategories = map[toolCategory][]string{
	categoryFileRead:       {"read_file", "list_files", "search_files", "list_code_definition_names"},
	categoryFileWrite:      {"write_to_file", "search_and_replace", "insert_content"},
	categoryCommandExec:    {"execute_command"},
	categoryCommunication:  {"attempt_completion", "ask_followup_question"},
	categoryTaskManagement: {"update_todo_list"},
}

// modeAccess describes one operating mode's tool-category allowances,
// denials, and per-tool risk-level overrides, grounded on
// ToolModeFilter.mode_tool_access.
type modeAccess struct {
	allowedCategories []toolCategory
	deniedTools       map[string]struct{}
	riskOverrides     map[string]models.RiskLevel
}

func denySet(names ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

var modeAccessTable = map[models.OperatingMode]modeAccess{
	models.ModeCode: {
		allowedCategories: []toolCategory{categoryFileRead, categoryFileWrite, categoryCommandExec, categoryCommunication, categoryTaskManagement},
		deniedTools:       denySet(),
	},
	models.ModeAsk: {
		allowedCategories: []toolCategory{categoryFileRead, categoryCommunication},
		deniedTools:       denySet("execute_command"),
		riskOverrides: map[string]models.RiskLevel{
			"read_file":    models.RiskMinimal,
			"list_files":   models.RiskMinimal,
			"search_files": models.RiskLow,
		},
	},
	models.ModeArchitect: {
		allowedCategories: []toolCategory{categoryFileRead, categoryCommunication},
		deniedTools:       denySet("write_to_file", "search_and_replace", "insert_content", "execute_command"),
		riskOverrides: map[string]models.RiskLevel{
			"read_file":                  models.RiskMinimal,
			"list_files":                 models.RiskMinimal,
			"search_files":               models.RiskLow,
			"list_code_definition_names": models.RiskMinimal,
		},
	},
	models.ModeDebug: {
		allowedCategories: []toolCategory{categoryFileRead, categoryCommandExec, categoryCommunication},
		deniedTools:       denySet("write_to_file", "search_and_replace", "insert_content"),
		riskOverrides: map[string]models.RiskLevel{
			"execute_command": models.RiskHigh,
			"read_file":       models.RiskLow,
			"search_files":    models.RiskLow,
		},
	},
	models.ModeReview: {
		allowedCategories: []toolCategory{categoryFileRead, categoryCommunication},
		deniedTools:       denySet("write_to_file", "search_and_replace", "insert_content", "execute_command"),
		riskOverrides: map[string]models.RiskLevel{
			"read_file":                  models.RiskMinimal,
			"list_files":                 models.RiskMinimal,
			"search_files":               models.RiskMinimal,
			"list_code_definition_names": models.RiskMinimal,
		},
	},
}

// ModeFilter restricts which tools a session's model may invoke based on
// its OperatingMode, grounded on ToolModeFilter.
type ModeFilter struct {
	log *slog.Logger
}

// NewModeFilter creates a ModeFilter.
func NewModeFilter(log *slog.Logger) *ModeFilter {
	if log == nil {
		log = slog.Default()
	}
	return &ModeFilter{log: log}
}

func (f *ModeFilter) access(mode models.OperatingMode) modeAccess {
	access, ok := modeAccessTable[mode]
	if !ok {
		f.log.Warn("unknown operating mode, defaulting to code", "mode", mode)
		return modeAccessTable[models.ModeCode]
	}
	return access
}

// AllowedTools returns the set of tool names usable in mode.
func (f *ModeFilter) AllowedTools(mode models.OperatingMode) map[string]struct{} {
	access := f.access(mode)

	allowed := make(map[string]struct{})
	for _, category := range access.allowedCategories {
		for _, tool := range toolCategories[category] {
			allowed[tool] = struct{}{}
		}
	}
	for denied := range access.deniedTools {
		delete(allowed, denied)
	}
	return allowed
}

// IsToolAllowed reports whether toolName may be invoked in mode.
func (f *ModeFilter) IsToolAllowed(toolName string, mode models.OperatingMode) bool {
	_, ok := f.AllowedTools(mode)[toolName]
	return ok
}

// EffectiveRisk returns toolName's risk level as modified by mode, falling
// back to baseRisk when mode defines no override.
func (f *ModeFilter) EffectiveRisk(toolName string, mode models.OperatingMode, baseRisk models.RiskLevel) models.RiskLevel {
	access := f.access(mode)
	if override, ok := access.riskOverrides[toolName]; ok {
		return override
	}
	return baseRisk
}
