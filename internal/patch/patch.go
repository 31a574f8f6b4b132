package patch

import (
	"fmt"
	"strings"
)

// PlacementMode selects the coordinate system emitted for validated patches.
// It is resolved once per deployment from configuration, not per patch.
type PlacementMode string

const (
	// PlacePosition anchors a patch with a single diff position. Multi-line
	// ranges anchor to the position of the range's last line, which is the
	// platform convention for anchored suggestions.
	PlacePosition PlacementMode = "position"
	// PlaceLines anchors a patch with an explicit start/end new-file line pair.
	PlaceLines PlacementMode = "lines"
)

// suggestionFence delimits an inline suggestion block in review comments.
// Replacement text containing it would break out of its own block when
// rendered, so the validator refuses it.
const suggestionFence = "```suggestion"

// Patch is a proposed edit as received from the fixing stage, expressed in
// new-file line numbers.
type Patch struct {
	File          string `json:"file"`
	StartLine     int    `json:"start_line"`
	EndLine       int    `json:"end_line"`
	Replacement   string `json:"replacement"`
	Justification string `json:"justification,omitempty"`
}

// ValidatedPatch is a patch whose placement has been checked against the
// coordinate map and normalized to the deployment's placement mode. Exactly
// one of Position or StartLine/EndLine is meaningful depending on Mode.
type ValidatedPatch struct {
	File          string        `json:"file"`
	Mode          PlacementMode `json:"mode"`
	Position      int           `json:"position,omitempty"`
	StartLine     int           `json:"start_line,omitempty"`
	EndLine       int           `json:"end_line,omitempty"`
	Replacement   string        `json:"replacement"`
	Justification string        `json:"justification,omitempty"`
}

// Suggestion renders the replacement as a fenced suggestion block.
func (v ValidatedPatch) Suggestion() string {
	body := strings.TrimSuffix(v.Replacement, "\n")
	return suggestionFence + "\n" + body + "\n```"
}

// UnknownFileError rejects a patch naming a file the diff never touched.
type UnknownFileError struct {
	File string
}

func (e *UnknownFileError) Error() string {
	return fmt.Sprintf("patch targets file not present in diff: %s", e.File)
}

// OutOfDiffRangeError rejects a patch covering a line the reviewer never saw
// changed: removed-only lines, lines outside any hunk, or lines of untouched
// regions.
type OutOfDiffRangeError struct {
	File string
	Line int
}

func (e *OutOfDiffRangeError) Error() string {
	return fmt.Sprintf("patch line %s:%d is outside the diff", e.File, e.Line)
}

// InvertedRangeError rejects a range whose start lies after its end.
type InvertedRangeError struct {
	File  string
	Start int
	End   int
}

func (e *InvertedRangeError) Error() string {
	return fmt.Sprintf("patch range for %s is inverted: start %d > end %d", e.File, e.Start, e.End)
}

// UnsafePatchContentError rejects replacement text that embeds a suggestion
// fence and cannot be escaped safely.
type UnsafePatchContentError struct {
	File string
}

func (e *UnsafePatchContentError) Error() string {
	return fmt.Sprintf("patch replacement for %s contains a suggestion fence", e.File)
}

// RejectionReason records why one finding or patch was excluded from a run.
// Rejections are per-item: the run continues without the item.
type RejectionReason struct {
	Stage  string `json:"stage"`
	File   string `json:"file"`
	Line   int    `json:"line,omitempty"`
	Reason string `json:"reason"`
}
