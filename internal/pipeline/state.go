package pipeline

import (
	"time"

	"github.com/secureview/internal/diff"
	"github.com/secureview/internal/patch"
	"github.com/secureview/pkg/models"
)

// State names one node of the review state machine.
type State string

const (
	StateIdle      State = "idle"
	StateSearching State = "searching"
	StateAnalyzing State = "analyzing"
	StateFixing    State = "fixing"
	StateTesting   State = "testing"
	StateDone      State = "done"
	StateFailed    State = "failed"
)

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// PipelineState is the mutable record threaded from stage to stage. It is
// exclusively owned by its run: created at start, mutated in sequence,
// discarded when the result is returned.
type PipelineState struct {
	Diff          *diff.Diff
	Map           *diff.CoordinateMap
	ManifestDiff  string
	Knowledge     string
	KnowledgeLost bool // retrieval was enabled but failed
	Findings      []models.Finding
	Patches       []patch.ValidatedPatch
	Accepted      []models.ProposedPatch // wire shapes of the accepted patches
	Tests         []models.GeneratedTest
	Summary       string
	Warnings      []patch.RejectionReason
}

// Request starts one review run.
type Request struct {
	RunID        string
	RawDiff      string
	ManifestDiff string
}

// Result is what a run returns. State is always Done or Failed: a clean diff
// finishes Done with empty lists, and a failed run carries the last good
// partial state plus a reason naming the stage and cause. A run never
// silently returns an empty success.
type Result struct {
	RunID         string                  `json:"run_id"`
	State         State                   `json:"state"`
	FailedStage   State                   `json:"failed_stage,omitempty"`
	FailureReason string                  `json:"failure_reason,omitempty"`
	Findings      []models.Finding        `json:"findings"`
	Patches       []patch.ValidatedPatch  `json:"patches"`
	Tests         []models.GeneratedTest  `json:"tests"`
	Summary       string                  `json:"summary,omitempty"`
	Warnings      []patch.RejectionReason `json:"warnings,omitempty"`
	KnowledgeUsed bool                    `json:"knowledge_used"`
	Duration      time.Duration           `json:"duration"`
}
