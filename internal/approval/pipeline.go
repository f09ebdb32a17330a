package approval

import (
	"log/slog"

	"github.com/trustgraph-ai/gambiarra/internal/filecontext"
	"github.com/trustgraph-ai/gambiarra/pkg/models"
)

// Outcome is the pipeline's combined decision for one tool call.
type Outcome struct {
	Verdict Verdict
	Reason  string

	// StaleWarning is non-empty when the call targets a path whose tracked
	// context is stale; it is surfaced to the approver but never by itself
	// blocks execution.
	StaleWarning string
}

// PathExtractor pulls the file path a tool call targets, if any, so the
// pipeline can run it past the stale-context probe. Tools with no
// file-path parameter (execute_command, attempt_completion, ...) return
// ("", false).
type PathExtractor func(toolName string, params map[string]any) (string, bool)

// Pipeline runs every extracted tool call through parameter validation,
// repetition detection, a stale-file-context probe, and policy evaluation,
// in that order, mirroring spec §4.6's four-stage approval pipeline.
type Pipeline struct {
	log *slog.Logger

	validator  *Validator
	repetition *RepetitionDetector
	tracker    *filecontext.Tracker
	policy     *Policy
	guidance   *AdaptiveGuidance
	extractPath PathExtractor

	riskOf func(toolName string, params map[string]any) models.RiskLevel
}

// Config tunes a Pipeline's dependencies.
type Config struct {
	Tracker       *filecontext.Tracker
	Policy        *Policy
	// Guidance is optional and off by default: when nil, the pipeline's
	// verdict is whatever Policy.Evaluate returns, unrefined.
	Guidance      *AdaptiveGuidance
	RepetitionLimit int
	PathExtractor PathExtractor
	RiskOf        func(toolName string, params map[string]any) models.RiskLevel
}

// New builds a Pipeline. A nil Policy uses DefaultPolicy; a non-positive
// RepetitionLimit uses DefaultRepetitionLimit; a nil RiskOf always reports
// RiskMedium.
func New(log *slog.Logger, cfg Config) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Policy == nil {
		cfg.Policy = DefaultPolicy()
	}
	if cfg.RepetitionLimit <= 0 {
		cfg.RepetitionLimit = DefaultRepetitionLimit
	}
	if cfg.RiskOf == nil {
		cfg.RiskOf = func(string, map[string]any) models.RiskLevel { return models.RiskMedium }
	}

	return &Pipeline{
		log:         log,
		validator:   NewValidator(),
		repetition:  NewRepetitionDetector(cfg.RepetitionLimit),
		tracker:     cfg.Tracker,
		policy:      cfg.Policy,
		guidance:    cfg.Guidance,
		extractPath: cfg.PathExtractor,
		riskOf:      cfg.RiskOf,
	}
}

// Evaluate runs a single tool call through the full pipeline and returns
// the combined outcome. params must already be unwrapped (flat, no
// {"args": ...} envelope).
func (p *Pipeline) Evaluate(toolName string, params map[string]any) Outcome {
	if err := p.validator.Validate(toolName, params); err != nil {
		p.log.Warn("tool call failed validation", "tool", toolName, "error", err)
		return Outcome{Verdict: VerdictBlocked, Reason: err.Error()}
	}

	if rep := p.repetition.Check(toolName, params); !rep.Allow {
		p.log.Warn("tool call repetition limit reached", "tool", toolName)
		return Outcome{Verdict: VerdictManualReview, Reason: rep.Message}
	}

	var staleWarning string
	if p.tracker != nil && p.extractPath != nil {
		if path, ok := p.extractPath(toolName, params); ok {
			fresh := p.tracker.CheckFreshness(path)
			if fresh.Stale {
				staleWarning = fresh.Reason
				p.log.Info("stale file context detected", "tool", toolName, "path", path, "reason", fresh.Reason)
			}
		}
	}

	risk := p.riskOf(toolName, params)
	mistakes := p.validator.ConsecutiveMistakes()
	verdict := p.policy.Evaluate(toolName, risk, params, mistakes)

	reason := ""
	if p.guidance != nil {
		verdict, reason = p.guidance.Refine(toolName, verdict, reason, mistakes)
	}

	return Outcome{Verdict: verdict, Reason: reason, StaleWarning: staleWarning}
}

// ObserveResult feeds a completed tool's outcome back into the file
// context tracker, so a subsequent call against the same path sees fresh
// or stale state correctly.
func (p *Pipeline) ObserveResult(toolName, path, content string, wasWrite bool) {
	if p.tracker == nil || path == "" {
		return
	}
	if wasWrite {
		p.tracker.TrackWrite(path, content)
	} else {
		p.tracker.TrackRead(path, content)
	}
}

// ResetRepetition clears repetition-detector state, e.g. after the user
// redirects the AI past a detected loop.
func (p *Pipeline) ResetRepetition() {
	p.repetition.Reset()
}

// ResetGuidance clears the adaptive guidance stage's consecutive
// auto-approval counter, if guidance is attached. A no-op otherwise.
func (p *Pipeline) ResetGuidance() {
	if p.guidance != nil {
		p.guidance.Reset()
	}
}
