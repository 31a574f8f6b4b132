// Package models holds the structured shapes exchanged with the reasoning
// collaborator and returned to callers. The collaborator's prompt templates
// enumerate exactly these shapes; anything that does not parse into them is a
// protocol error.
package models

// Severity grades a finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Finding is one suspected security defect, anchored to a new-file line range
// of the reviewed diff.
type Finding struct {
	File      string   `json:"file"`
	StartLine int      `json:"start_line"`
	EndLine   int      `json:"end_line"`
	Severity  Severity `json:"severity,omitempty"`
	Rationale string   `json:"rationale"`
	// Source distinguishes deterministic scanner findings from model findings.
	Source string `json:"source,omitempty"`
}

// AnalysisReport is the analyzing stage's expected response shape.
type AnalysisReport struct {
	Findings []Finding `json:"findings"`
	Summary  string    `json:"summary,omitempty"`
}

// ProposedPatch is one fix as proposed by the fixing stage, before placement
// validation. Start/end are new-file line numbers; Suggestion is the fenced
// replacement body without the fence itself.
type ProposedPatch struct {
	File          string `json:"file"`
	StartLine     int    `json:"start_line"`
	EndLine       int    `json:"end_line"`
	Suggestion    string `json:"suggestion"`
	Justification string `json:"justification,omitempty"`
}

// PatchSet is the fixing stage's expected response shape.
type PatchSet struct {
	Patches []ProposedPatch `json:"patches"`
	Summary string          `json:"summary,omitempty"`
}

// GeneratedTest is one test file proving a patch works. Tests are new files,
// not anchored to the diff, so no coordinate validation applies to them.
type GeneratedTest struct {
	File   string `json:"file"`
	Source string `json:"source"`
}

// TestSet is the testing stage's expected response shape.
type TestSet struct {
	Tests []GeneratedTest `json:"tests"`
}
