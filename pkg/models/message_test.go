package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRole_Constants(t *testing.T) {
	tests := []struct {
		constant Role
		expected string
	}{
		{RoleUser, "user"},
		{RoleAssistant, "assistant"},
		{RoleSystem, "system"},
		{RoleToolCall, "tool_call"},
		{RoleToolResult, "tool_result"},
	}

	for _, tt := range tests {
		t.Run(string(tt.constant), func(t *testing.T) {
			if string(tt.constant) != tt.expected {
				t.Errorf("constant = %q, want %q", tt.constant, tt.expected)
			}
		})
	}
}

func TestConversationMessage_JSONRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	original := ConversationMessage{
		Role:            RoleAssistant,
		Content:         "Tool result: Read README.md (8 chars). Content: # Hello\n...",
		Timestamp:       now,
		Metadata:        map[string]any{"tool": "read_file"},
		EstimatedTokens: 17,
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var decoded ConversationMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	if decoded.Role != original.Role {
		t.Errorf("Role = %v, want %v", decoded.Role, original.Role)
	}
	if decoded.Content != original.Content {
		t.Errorf("Content = %q, want %q", decoded.Content, original.Content)
	}
	if decoded.EstimatedTokens != original.EstimatedTokens {
		t.Errorf("EstimatedTokens = %d, want %d", decoded.EstimatedTokens, original.EstimatedTokens)
	}
}

func TestSessionConfig_Defaults(t *testing.T) {
	cfg := SessionConfig{
		WorkingDirectory: "/workspace",
		OperatingMode:    ModeCode,
	}

	if cfg.OperatingMode != ModeCode {
		t.Errorf("OperatingMode = %v, want %v", cfg.OperatingMode, ModeCode)
	}
	if cfg.AutoApproveReads {
		t.Error("AutoApproveReads should default to false")
	}
}

func TestPendingApproval_Struct(t *testing.T) {
	now := time.Now()
	pa := PendingApproval{
		RequestID:   "req-1",
		ToolName:    "read_file",
		Parameters:  map[string]any{"path": "README.md"},
		Description: "Read README.md",
		RiskLevel:   RiskLow,
		SessionID:   "session-1",
		CreatedAt:   now,
	}

	if pa.RiskLevel != RiskLow {
		t.Errorf("RiskLevel = %v, want %v", pa.RiskLevel, RiskLow)
	}
	if pa.Parameters["path"] != "README.md" {
		t.Errorf("Parameters[path] = %v, want README.md", pa.Parameters["path"])
	}
}

func TestPendingExecution_Struct(t *testing.T) {
	now := time.Now()
	pe := PendingExecution{
		ExecutionID: "exec-1",
		ToolName:    "write_to_file",
		Parameters:  map[string]any{"path": "a.py"},
		SessionID:   "session-1",
		StartedAt:   now,
	}

	if pe.ToolName != "write_to_file" {
		t.Errorf("ToolName = %q, want write_to_file", pe.ToolName)
	}
}

func TestToolResult_Shapes(t *testing.T) {
	ok := ToolResult{Status: ToolResultStatusSuccess, Data: "ok"}
	if ok.Status != ToolResultStatusSuccess {
		t.Errorf("Status = %v, want %v", ok.Status, ToolResultStatusSuccess)
	}

	failed := ToolResult{
		Status: ToolResultStatusError,
		Error:  &ToolResultError{Code: "FILE_NOT_FOUND", Message: "no such file"},
	}
	if failed.Error == nil || failed.Error.Code != "FILE_NOT_FOUND" {
		t.Errorf("Error = %+v, want code FILE_NOT_FOUND", failed.Error)
	}
}

func TestToolDefinition_Struct(t *testing.T) {
	td := ToolDefinition{
		Name:             "read_file",
		Description:      "Read a file from the workspace",
		RiskLevel:        RiskLow,
		RequiresApproval: true,
	}

	if td.Name != "read_file" {
		t.Errorf("Name = %q, want read_file", td.Name)
	}
	if !td.RequiresApproval {
		t.Error("RequiresApproval should be true")
	}
}
