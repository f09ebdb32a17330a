package approval

import (
	"io"
	"log/slog"
	"testing"

	"github.com/trustgraph-ai/gambiarra/internal/filecontext"
	"github.com/trustgraph-ai/gambiarra/pkg/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRepetitionDetector_AllowsUnderLimit(t *testing.T) {
	d := NewRepetitionDetector(3)
	params := map[string]any{"path": "a.go"}
	for i := 0; i < 2; i++ {
		if res := d.Check("read_file", params); !res.Allow {
			t.Fatalf("call %d: expected allow, got denied", i)
		}
	}
}

func TestRepetitionDetector_BlocksAtLimit(t *testing.T) {
	d := NewRepetitionDetector(3)
	params := map[string]any{"path": "a.go"}
	var lastAllow bool
	for i := 0; i < 3; i++ {
		res := d.Check("read_file", params)
		lastAllow = res.Allow
	}
	if lastAllow {
		t.Error("expected repetition limit to deny the 3rd identical call")
	}
}

func TestRepetitionDetector_ResetsOnDifferentCall(t *testing.T) {
	d := NewRepetitionDetector(3)
	d.Check("read_file", map[string]any{"path": "a.go"})
	d.Check("read_file", map[string]any{"path": "a.go"})
	res := d.Check("read_file", map[string]any{"path": "b.go"})
	if !res.Allow {
		t.Error("expected a differing call to reset the counter and be allowed")
	}
}

func TestRepetitionDetector_BrowserScrollExempt(t *testing.T) {
	d := NewRepetitionDetector(1)
	params := map[string]any{"action": "scroll_down"}
	for i := 0; i < 5; i++ {
		if res := d.Check("browser_action", params); !res.Allow {
			t.Fatalf("scroll action should never be rate-limited, failed at call %d", i)
		}
	}
}

func TestValidator_MissingRequiredField(t *testing.T) {
	v := NewValidator()
	err := v.Validate("write_to_file", map[string]any{"path": "a.go"})
	if err == nil {
		t.Fatal("expected validation error for missing content/line_count")
	}
}

func TestValidator_UnknownTool(t *testing.T) {
	v := NewValidator()
	if err := v.Validate("frobnicate", map[string]any{}); err == nil {
		t.Error("expected validation error for unknown tool")
	}
}

func TestValidator_EmptyPathRejected(t *testing.T) {
	v := NewValidator()
	err := v.Validate("read_file", map[string]any{"path": "  "})
	if err == nil {
		t.Error("expected validation error for blank path")
	}
}

func TestValidator_ConsecutiveMistakesTracked(t *testing.T) {
	v := NewValidator()
	v.Validate("write_to_file", map[string]any{})
	v.Validate("write_to_file", map[string]any{})
	if v.ConsecutiveMistakes() != 2 {
		t.Errorf("ConsecutiveMistakes = %d, want 2", v.ConsecutiveMistakes())
	}
	v.Validate("read_file", map[string]any{"path": "a.go"})
	if v.ConsecutiveMistakes() != 0 {
		t.Errorf("ConsecutiveMistakes after success = %d, want 0", v.ConsecutiveMistakes())
	}
}

func TestPolicy_BlockTakesPrecedence(t *testing.T) {
	p := DefaultPolicy()
	verdict := p.Evaluate("execute_command", models.RiskLow, map[string]any{"command": "rm -rf /"}, 0)
	if verdict != VerdictBlocked {
		t.Errorf("verdict = %v, want blocked", verdict)
	}
}

func TestPolicy_AutoApprovesLowRiskRead(t *testing.T) {
	p := DefaultPolicy()
	verdict := p.Evaluate("read_file", models.RiskLow, map[string]any{"path": "a.go"}, 0)
	if verdict != VerdictAutoApproved {
		t.Errorf("verdict = %v, want auto_approved", verdict)
	}
}

func TestPolicy_RequiresApprovalForWrite(t *testing.T) {
	p := DefaultPolicy()
	verdict := p.Evaluate("write_to_file", models.RiskMedium, map[string]any{"path": "a.go"}, 0)
	if verdict != VerdictManualReview {
		t.Errorf("verdict = %v, want manual_review", verdict)
	}
}

func TestPolicy_MistakeBudgetForcesManualReview(t *testing.T) {
	p := DefaultPolicy()
	// read_file would normally auto-approve, but the mistake budget gate
	// takes precedence once exceeded.
	verdict := p.Evaluate("read_file", models.RiskLow, map[string]any{"path": "a.go"}, 5)
	if verdict != VerdictManualReview {
		t.Errorf("verdict = %v, want manual_review once mistake budget exceeded", verdict)
	}
}

func TestPipeline_BlockedValidationShortCircuits(t *testing.T) {
	pipeline := New(discardLogger(), Config{})
	outcome := pipeline.Evaluate("write_to_file", map[string]any{"path": "a.go"})
	if outcome.Verdict != VerdictBlocked {
		t.Errorf("verdict = %v, want blocked on missing required params", outcome.Verdict)
	}
}

func TestPipeline_StaleContextSurfacedAsWarningNotBlock(t *testing.T) {
	tracker := filecontext.New(discardLogger(), 0)
	tracker.TrackRead("/tmp/a.go", "v1")
	tracker.TrackWrite("/tmp/a.go", "v2")

	pipeline := New(discardLogger(), Config{
		Tracker: tracker,
		PathExtractor: func(toolName string, params map[string]any) (string, bool) {
			if toolName != "read_file" {
				return "", false
			}
			p, ok := params["path"].(string)
			return p, ok
		},
		RiskOf: func(string, map[string]any) models.RiskLevel { return models.RiskLow },
	})

	outcome := pipeline.Evaluate("read_file", map[string]any{"path": "/tmp/a.go"})
	if outcome.StaleWarning == "" {
		t.Error("expected stale warning to be surfaced")
	}
	if outcome.Verdict != VerdictAutoApproved {
		t.Errorf("verdict = %v, want auto_approved (stale context warns but does not block)", outcome.Verdict)
	}
}

func TestPipeline_RepetitionLimitForcesManualReview(t *testing.T) {
	pipeline := New(discardLogger(), Config{RepetitionLimit: 2})
	params := map[string]any{"path": "a.go"}

	pipeline.Evaluate("read_file", params)
	outcome := pipeline.Evaluate("read_file", params)

	if outcome.Verdict != VerdictManualReview {
		t.Errorf("verdict = %v, want manual_review once repetition limit hit", outcome.Verdict)
	}
}
