package approval

import "github.com/trustgraph-ai/gambiarra/pkg/models"

// Rule matches a tool call by name, risk level, and/or exact parameter
// values, grounded on ApprovalPolicy's rule dictionaries.
type Rule struct {
	ToolName   string
	RiskLevel  models.RiskLevel
	Conditions map[string]any
}

func (r Rule) matches(toolName string, risk models.RiskLevel, params map[string]any) bool {
	if r.ToolName != "" && r.ToolName != toolName {
		return false
	}
	if r.RiskLevel != "" && r.RiskLevel != risk {
		return false
	}
	for key, want := range r.Conditions {
		got, present := params[key]
		if !present || got != want {
			return false
		}
	}
	return true
}

// Policy holds the block/auto-approve/require-approval rule sets evaluated
// for every tool call, grounded on ApprovalPolicy.
type Policy struct {
	AutoApprove     []Rule
	RequireApproval []Rule
	Block           []Rule

	// MistakeBudget is the number of consecutive validation failures
	// tolerated before the pipeline refuses further auto-approval and
	// forces manual review, regardless of rule matches. 0 disables the gate.
	MistakeBudget int
}

// DefaultPolicy returns the baseline ruleset from ApprovalManager's
// _setup_default_policies: low-risk reads auto-approve, writes and command
// execution require approval, and rm -rf / is blocked outright.
func DefaultPolicy() *Policy {
	return &Policy{
		AutoApprove: []Rule{
			{RiskLevel: models.RiskLow},
			{RiskLevel: models.RiskMinimal},
			{ToolName: "read_file"},
			{ToolName: "list_files"},
			{ToolName: "search_files"},
		},
		RequireApproval: []Rule{
			{RiskLevel: models.RiskHigh},
			{ToolName: "write_to_file"},
			{ToolName: "execute_command"},
		},
		Block: []Rule{
			{ToolName: "execute_command", Conditions: map[string]any{"command": "rm -rf /"}},
		},
		MistakeBudget: 3,
	}
}

// Verdict is the policy stage's decision for a tool call.
type Verdict string

const (
	// VerdictBlocked means the call is refused outright; no approval
	// request is ever surfaced to the user.
	VerdictBlocked Verdict = "blocked"
	// VerdictAutoApproved means the call proceeds without user interaction.
	VerdictAutoApproved Verdict = "auto_approved"
	// VerdictManualReview means the call must go through a
	// tool_approval_request/response round trip.
	VerdictManualReview Verdict = "manual_review"
)

func (p *Policy) matchesAny(rules []Rule, toolName string, risk models.RiskLevel, params map[string]any) bool {
	for _, r := range rules {
		if r.matches(toolName, risk, params) {
			return true
		}
	}
	return false
}

// Evaluate applies block-rules, then auto-approve rules, then the mistake
// budget gate, then require-approval rules, mirroring
// ApprovalPolicy.requires_approval's precedence (block > auto-approve >
// require-approval) with the mistake budget interposed ahead of
// auto-approval so a struggling AI cannot keep auto-approving its way
// through mistakes.
func (p *Policy) Evaluate(toolName string, risk models.RiskLevel, params map[string]any, consecutiveMistakes int) Verdict {
	if p.matchesAny(p.Block, toolName, risk, params) {
		return VerdictBlocked
	}

	if p.MistakeBudget > 0 && consecutiveMistakes >= p.MistakeBudget {
		return VerdictManualReview
	}

	if p.matchesAny(p.AutoApprove, toolName, risk, params) {
		return VerdictAutoApproved
	}

	if p.matchesAny(p.RequireApproval, toolName, risk, params) {
		return VerdictManualReview
	}

	// Default: require a human in the loop for anything with no explicit rule.
	return VerdictManualReview
}
