package patch

import (
	"strings"

	"github.com/secureview/internal/diff"
)

// Validator checks proposed patches against a diff's coordinate map and
// normalizes their placement. It holds no mutable state and is safe to share.
type Validator struct {
	numbering diff.Numbering
	mode      PlacementMode
}

// NewValidator creates a validator for the given placement mode and position
// numbering convention.
func NewValidator(mode PlacementMode, numbering diff.Numbering) *Validator {
	return &Validator{numbering: numbering, mode: mode}
}

// Mode returns the placement mode this validator emits.
func (v *Validator) Mode() PlacementMode { return v.mode }

// Validate applies the placement rules in order: the file must appear in the
// diff, every line of the range must map to a context or added line, the range
// must not be inverted, and the replacement must not smuggle a suggestion
// fence. The transformation is pure, so validating an already validated range
// a second time yields the same result.
func (v *Validator) Validate(p Patch, m *diff.CoordinateMap) (ValidatedPatch, error) {
	if !m.HasFile(p.File) {
		return ValidatedPatch{}, &UnknownFileError{File: p.File}
	}

	start, end := p.StartLine, p.EndLine
	if end == 0 {
		end = start
	}
	if start > end {
		return ValidatedPatch{}, &InvertedRangeError{File: p.File, Start: start, End: end}
	}

	for line := start; line <= end; line++ {
		if !m.Contains(p.File, line) {
			return ValidatedPatch{}, &OutOfDiffRangeError{File: p.File, Line: line}
		}
	}

	replacement, err := sanitizeReplacement(p.File, p.Replacement)
	if err != nil {
		return ValidatedPatch{}, err
	}

	out := ValidatedPatch{
		File:          p.File,
		Mode:          v.mode,
		Replacement:   replacement,
		Justification: p.Justification,
	}

	switch v.mode {
	case PlacePosition:
		// The anchor is the last line of the range; the map cannot miss here
		// because every line in [start,end] was just checked.
		pos, _ := m.Position(p.File, end, v.numbering)
		out.Position = pos
	default:
		out.StartLine = start
		out.EndLine = end
	}

	return out, nil
}

// sanitizeReplacement refuses replacement text that embeds the suggestion
// fence delimiter. A plain closing fence alone is tolerated only when no
// opening delimiter precedes it; anything that would open a nested suggestion
// block is rejected rather than escaped, since escaping changes the code the
// suggestion applies.
func sanitizeReplacement(file, replacement string) (string, error) {
	if strings.Contains(replacement, suggestionFence) {
		return "", &UnsafePatchContentError{File: file}
	}
	return replacement, nil
}
