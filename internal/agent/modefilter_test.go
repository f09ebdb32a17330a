package agent

import (
	"testing"

	"github.com/trustgraph-ai/gambiarra/pkg/models"
)

func TestModeFilter_CodeModeAllowsEverything(t *testing.T) {
	f := NewModeFilter(nil)
	for _, tool := range []string{"read_file", "write_to_file", "execute_command", "attempt_completion"} {
		if !f.IsToolAllowed(tool, models.ModeCode) {
			t.Errorf("code mode should allow %q", tool)
		}
	}
}

func TestModeFilter_AskModeDeniesExecuteCommand(t *testing.T) {
	f := NewModeFilter(nil)
	if f.IsToolAllowed("execute_command", models.ModeAsk) {
		t.Error("ask mode must deny execute_command")
	}
	if !f.IsToolAllowed("read_file", models.ModeAsk) {
		t.Error("ask mode should allow read_file")
	}
}

func TestModeFilter_ArchitectModeIsReadOnly(t *testing.T) {
	f := NewModeFilter(nil)
	for _, tool := range []string{"write_to_file", "search_and_replace", "insert_content", "execute_command"} {
		if f.IsToolAllowed(tool, models.ModeArchitect) {
			t.Errorf("architect mode must deny %q", tool)
		}
	}
}

func TestModeFilter_ReviewModeIsReadOnly(t *testing.T) {
	f := NewModeFilter(nil)
	if f.IsToolAllowed("write_to_file", models.ModeReview) {
		t.Error("review mode must deny write_to_file")
	}
}

func TestModeFilter_DebugModeAllowsCommandsButNotWrites(t *testing.T) {
	f := NewModeFilter(nil)
	if !f.IsToolAllowed("execute_command", models.ModeDebug) {
		t.Error("debug mode should allow execute_command")
	}
	if f.IsToolAllowed("write_to_file", models.ModeDebug) {
		t.Error("debug mode should deny write_to_file")
	}
}

func TestModeFilter_UnknownModeDefaultsToCode(t *testing.T) {
	f := NewModeFilter(nil)
	if !f.IsToolAllowed("execute_command", models.OperatingMode("nonexistent")) {
		t.Error("unknown mode should fall back to code mode's full access")
	}
}

func TestModeFilter_EffectiveRiskOverride(t *testing.T) {
	f := NewModeFilter(nil)
	risk := f.EffectiveRisk("read_file", models.ModeArchitect, models.RiskMedium)
	if risk != models.RiskMinimal {
		t.Errorf("EffectiveRisk = %v, want minimal override in architect mode", risk)
	}
}

func TestModeFilter_EffectiveRiskFallsBackToBase(t *testing.T) {
	f := NewModeFilter(nil)
	risk := f.EffectiveRisk("attempt_completion", models.ModeCode, models.RiskLow)
	if risk != models.RiskLow {
		t.Errorf("EffectiveRisk = %v, want base risk when no override", risk)
	}
}
