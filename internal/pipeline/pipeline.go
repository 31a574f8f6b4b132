// Package pipeline runs one security review as an explicit finite-state
// machine: an optional knowledge-retrieval stage followed by three dependent
// reasoning stages in strict order, with all free-form judgment pushed behind
// the collaborator interfaces and every structural decision made here.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/secureview/internal/diff"
	"github.com/secureview/internal/knowledge"
	"github.com/secureview/internal/llm"
	"github.com/secureview/internal/logging"
	"github.com/secureview/internal/patch"
	"github.com/secureview/internal/prompts"
	"github.com/secureview/internal/secrets"
	"github.com/secureview/pkg/models"
)

// Pipeline executes review runs. One Pipeline may serve many runs; all
// per-run state lives in PipelineState, so concurrent runs share nothing
// mutable.
type Pipeline struct {
	client          *llm.ResilientClient
	retriever       knowledge.Retriever
	scanner         *secrets.Scanner
	validator       *patch.Validator
	builder         *prompts.Builder
	enableRetrieval bool
	logger          *logging.RunLogger
}

// Options wires a pipeline's collaborators and policies.
type Options struct {
	Client          *llm.ResilientClient
	Retriever       knowledge.Retriever // used only when EnableRetrieval
	Scanner         *secrets.Scanner    // nil disables the secret scan
	Validator       *patch.Validator
	EnableRetrieval bool
	Logger          *logging.RunLogger
}

// New creates a pipeline. Retrieval silently stays off without a retriever.
func New(opts Options) *Pipeline {
	if opts.Retriever == nil {
		opts.EnableRetrieval = false
	}
	return &Pipeline{
		client:          opts.Client,
		retriever:       opts.Retriever,
		scanner:         opts.Scanner,
		validator:       opts.Validator,
		builder:         prompts.NewBuilder(),
		enableRetrieval: opts.EnableRetrieval,
		logger:          opts.Logger,
	}
}

// Run executes the state machine for one request. The pipeline instance may
// be reused, but a Result is terminal: a run is never resumed.
func (p *Pipeline) Run(ctx context.Context, req Request) *Result {
	start := time.Now()
	ps := &PipelineState{ManifestDiff: req.ManifestDiff}
	result := &Result{RunID: req.RunID, State: StateIdle}

	fail := func(stage State, err error) *Result {
		p.logger.LogError(string(stage), err)
		result.State = StateFailed
		result.FailedStage = stage
		result.FailureReason = fmt.Sprintf("%s: %v", stage, err)
		p.capture(result, ps)
		result.Duration = time.Since(start)
		return result
	}

	p.logger.LogSection("DIFF INDEXING")
	d, m, err := diff.Index(req.RawDiff)
	if err != nil {
		return fail(StateIdle, err)
	}
	ps.Diff = d
	ps.Map = m
	p.logger.Log("Indexed %d files, max position %d", len(d.Files), m.MaxPosition())

	if d.IsEmpty() {
		p.logger.Log("Empty diff, nothing to review")
		result.State = StateDone
		p.capture(result, ps)
		result.Duration = time.Since(start)
		return result
	}

	// Idle -> Searching only when retrieval is enabled; Idle -> Analyzing
	// otherwise. Cancellation is checked at every transition boundary, never
	// mid-collaborator-call.
	if p.enableRetrieval {
		if err := p.transition(ctx, result, StateSearching); err != nil {
			return fail(StateSearching, err)
		}
		p.runSearch(ctx, ps)
	}

	if err := p.transition(ctx, result, StateAnalyzing); err != nil {
		return fail(StateAnalyzing, err)
	}
	if err := p.runAnalysis(ctx, ps); err != nil {
		return fail(StateAnalyzing, err)
	}

	if len(ps.Findings) == 0 {
		p.logger.Log("No findings; skipping fixing and testing stages")
		return p.finish(result, ps, start)
	}

	if err := p.transition(ctx, result, StateFixing); err != nil {
		return fail(StateFixing, err)
	}
	if err := p.runFixing(ctx, ps); err != nil {
		return fail(StateFixing, err)
	}

	if len(ps.Patches) == 0 {
		p.logger.Log("No accepted patches; skipping testing stage")
		return p.finish(result, ps, start)
	}

	if err := p.transition(ctx, result, StateTesting); err != nil {
		return fail(StateTesting, err)
	}
	if err := p.runTesting(ctx, ps); err != nil {
		return fail(StateTesting, err)
	}

	return p.finish(result, ps, start)
}

// transition moves the machine to the next state, honoring cancellation at
// the boundary.
func (p *Pipeline) transition(ctx context.Context, result *Result, to State) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run cancelled before %s: %w", to, err)
	}
	p.logger.LogSection(fmt.Sprintf("STAGE: %s", to))
	result.State = to
	return nil
}

// runSearch is best-effort: retrieval gives the analysis context, it is not a
// hard dependency, so a failure is recorded and the run continues.
func (p *Pipeline) runSearch(ctx context.Context, ps *PipelineState) {
	query := knowledge.DeriveQuery(ps.Diff)
	p.logger.Log("Derived retrieval query (%d characters)", len(query))

	passages, err := p.retriever.Retrieve(ctx, query)
	if err != nil {
		p.logger.LogError("knowledge retrieval", err)
		ps.KnowledgeLost = true
		ps.Warnings = append(ps.Warnings, patch.RejectionReason{
			Stage:  string(StateSearching),
			Reason: fmt.Sprintf("knowledge retrieval failed: %v", err),
		})
		return
	}
	ps.Knowledge = passages
	p.logger.Log("Retrieved %d characters of knowledge", len(passages))
}

func (p *Pipeline) runAnalysis(ctx context.Context, ps *PipelineState) error {
	if p.scanner != nil {
		scanFindings := p.scanner.Scan(ps.Diff)
		if len(scanFindings) > 0 {
			p.logger.Log("Secret scan flagged %d added lines", len(scanFindings))
			ps.Findings = append(ps.Findings, scanFindings...)
		}
	}

	prompt := p.builder.BuildAnalysisPrompt(ps.Diff, ps.Knowledge, ps.ManifestDiff)
	var report models.AnalysisReport
	if err := p.client.CallStructured(ctx, "analysis", prompt, &report); err != nil {
		return err
	}

	accepted := 0
	for _, f := range report.Findings {
		if reason, ok := p.checkFindingRange(f, ps.Map); !ok {
			p.logger.Log("Dropping out-of-range finding %s:%d-%d (%s)", f.File, f.StartLine, f.EndLine, reason.Reason)
			ps.Warnings = append(ps.Warnings, reason)
			continue
		}
		if f.Source == "" {
			f.Source = "analysis"
		}
		ps.Findings = append(ps.Findings, f)
		accepted++
	}
	ps.Summary = report.Summary

	p.logger.Log("Analysis produced %d findings (%d dropped)", accepted, len(report.Findings)-accepted)
	return nil
}

// checkFindingRange validates a finding's line range against the coordinate
// map. Out-of-range findings are dropped per item, never fatal to the stage.
func (p *Pipeline) checkFindingRange(f models.Finding, m *diff.CoordinateMap) (patch.RejectionReason, bool) {
	reject := func(line int, reason string) (patch.RejectionReason, bool) {
		return patch.RejectionReason{
			Stage:  string(StateAnalyzing),
			File:   f.File,
			Line:   line,
			Reason: reason,
		}, false
	}

	if !m.HasFile(f.File) {
		return reject(f.StartLine, "file not present in diff")
	}
	end := f.EndLine
	if end == 0 {
		end = f.StartLine
	}
	if f.StartLine > end {
		return reject(f.StartLine, "inverted line range")
	}
	for line := f.StartLine; line <= end; line++ {
		if !m.Contains(f.File, line) {
			return reject(line, "line outside the diff")
		}
	}
	return patch.RejectionReason{}, true
}

func (p *Pipeline) runFixing(ctx context.Context, ps *PipelineState) error {
	prompt := p.builder.BuildFixPrompt(ps.Diff, ps.Findings)
	var set models.PatchSet
	if err := p.client.CallStructured(ctx, "fixing", prompt, &set); err != nil {
		return err
	}

	for _, proposed := range set.Patches {
		validated, err := p.validator.Validate(patch.Patch{
			File:          proposed.File,
			StartLine:     proposed.StartLine,
			EndLine:       proposed.EndLine,
			Replacement:   proposed.Suggestion,
			Justification: proposed.Justification,
		}, ps.Map)
		if err != nil {
			p.logger.Log("Rejecting patch for %s:%d-%d: %v", proposed.File, proposed.StartLine, proposed.EndLine, err)
			ps.Warnings = append(ps.Warnings, patch.RejectionReason{
				Stage:  string(StateFixing),
				File:   proposed.File,
				Line:   proposed.StartLine,
				Reason: err.Error(),
			})
			continue
		}
		ps.Patches = append(ps.Patches, validated)
		ps.Accepted = append(ps.Accepted, proposed)
	}

	if set.Summary != "" {
		ps.Summary = set.Summary
	}

	// All patches rejected is still a successful stage; the run completes
	// with an empty patch set rather than failing.
	p.logger.Log("Fixing accepted %d of %d patches", len(ps.Patches), len(set.Patches))
	return nil
}

func (p *Pipeline) runTesting(ctx context.Context, ps *PipelineState) error {
	prompt := p.builder.BuildTestPrompt(ps.Diff, ps.Accepted)
	var set models.TestSet
	if err := p.client.CallStructured(ctx, "testing", prompt, &set); err != nil {
		return err
	}

	// Generated tests are new files, not anchored to the diff; no coordinate
	// validation applies to them.
	ps.Tests = set.Tests
	p.logger.Log("Testing produced %d test files", len(set.Tests))
	return nil
}

func (p *Pipeline) finish(result *Result, ps *PipelineState, start time.Time) *Result {
	result.State = StateDone
	p.capture(result, ps)
	result.Duration = time.Since(start)
	p.logger.Log("Run done: %d findings, %d patches, %d tests, %d warnings",
		len(result.Findings), len(result.Patches), len(result.Tests), len(result.Warnings))
	return result
}

// capture copies the run's outcome out of the pipeline state; empty slices
// stay non-nil so callers can tell "clean diff" from "missing result".
func (p *Pipeline) capture(result *Result, ps *PipelineState) {
	result.Findings = append([]models.Finding{}, ps.Findings...)
	result.Patches = append([]patch.ValidatedPatch{}, ps.Patches...)
	result.Tests = append([]models.GeneratedTest{}, ps.Tests...)
	result.Warnings = append([]patch.RejectionReason{}, ps.Warnings...)
	result.Summary = ps.Summary
	result.KnowledgeUsed = ps.Knowledge != ""
}
