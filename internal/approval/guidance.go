package approval

import (
	"fmt"
	"strings"
)

// GuidanceConfig tunes AdaptiveGuidance, grounded on SmartApprovalConfig.
// It is off by default: a Pipeline with no Guidance attached behaves
// exactly as before, since the policy rules in policy.go already cover
// the baseline auto-approve/require-approval/block behavior this only
// refines on top of.
type GuidanceConfig struct {
	MaxConsecutiveAutoApprovals int
	MistakeLimit                int
}

// DefaultGuidanceConfig mirrors SmartApprovalConfig's defaults.
func DefaultGuidanceConfig() GuidanceConfig {
	return GuidanceConfig{
		MaxConsecutiveAutoApprovals: 10,
		MistakeLimit:                3,
	}
}

// AdaptiveGuidance layers consecutive-auto-approval capping and
// mistake-triggered escalation on top of Policy's rule evaluation,
// grounded on SmartApprovalManager. It is attached to a Pipeline
// explicitly via WithGuidance; a Pipeline built without it never
// consults this type.
type AdaptiveGuidance struct {
	cfg GuidanceConfig

	consecutiveAutoApprovals int
}

// NewAdaptiveGuidance builds a guidance stage. A zero MaxConsecutiveAutoApprovals
// or MistakeLimit falls back to DefaultGuidanceConfig's values.
func NewAdaptiveGuidance(cfg GuidanceConfig) *AdaptiveGuidance {
	if cfg.MaxConsecutiveAutoApprovals <= 0 {
		cfg.MaxConsecutiveAutoApprovals = DefaultGuidanceConfig().MaxConsecutiveAutoApprovals
	}
	if cfg.MistakeLimit <= 0 {
		cfg.MistakeLimit = DefaultGuidanceConfig().MistakeLimit
	}
	return &AdaptiveGuidance{cfg: cfg}
}

// Refine adjusts a policy verdict for one evaluated call, mirroring
// SmartApprovalManager.request_approval's ordering: a mistake-limit
// breach always wins and forces manual review with a guidance message,
// regardless of what the policy decided; otherwise an auto-approved
// verdict is downgraded once the consecutive-approval cap is hit, and
// the running counter is updated for next time.
func (g *AdaptiveGuidance) Refine(toolName string, verdict Verdict, reason string, consecutiveMistakes int) (Verdict, string) {
	if consecutiveMistakes >= g.cfg.MistakeLimit {
		g.consecutiveAutoApprovals = 0
		return VerdictManualReview, guidanceMessage(toolName, consecutiveMistakes)
	}

	if verdict != VerdictAutoApproved {
		g.consecutiveAutoApprovals = 0
		return verdict, reason
	}

	if g.consecutiveAutoApprovals >= g.cfg.MaxConsecutiveAutoApprovals {
		g.consecutiveAutoApprovals = 0
		return VerdictManualReview, fmt.Sprintf("consecutive auto-approval limit reached (%d)", g.cfg.MaxConsecutiveAutoApprovals)
	}

	g.consecutiveAutoApprovals++
	return verdict, reason
}

// Reset clears the consecutive-auto-approval counter, e.g. when the user
// explicitly resets guidance after reviewing a flagged call.
func (g *AdaptiveGuidance) Reset() {
	g.consecutiveAutoApprovals = 0
}

func guidanceMessage(toolName string, consecutiveMistakes int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "multiple tool execution errors detected (%d consecutive mistakes). ", consecutiveMistakes)
	fmt.Fprintf(&b, "guidance requested before continuing with %s", toolName)
	return b.String()
}
