package diff

import "fmt"

// LineKind classifies a single line of a unified diff hunk.
type LineKind string

const (
	LineContext LineKind = "context"
	LineAdded   LineKind = "added"
	LineRemoved LineKind = "removed"
)

// Line is one line of a hunk body with both coordinate systems attached.
// OldLine is 0 for added lines, NewLine is 0 for removed lines. Position is
// the document-relative ordinal assigned by the indexer; FilePosition restarts
// at 1 for every file diff.
type Line struct {
	Kind         LineKind `json:"kind"`
	Content      string   `json:"content"`
	OldLine      int      `json:"old_line,omitempty"`
	NewLine      int      `json:"new_line,omitempty"`
	Position     int      `json:"position"`
	FilePosition int      `json:"file_position"`
}

// Hunk is one @@ region of a file diff.
type Hunk struct {
	OldStart int    `json:"old_start"`
	OldLines int    `json:"old_lines"`
	NewStart int    `json:"new_start"`
	NewLines int    `json:"new_lines"`
	Header   string `json:"header,omitempty"`
	Lines    []Line `json:"lines"`
}

// FileDiff is the parsed diff of a single file.
type FileDiff struct {
	Path    string `json:"path"`
	OldPath string `json:"old_path"`
	IsNew   bool   `json:"is_new"`
	Hunks   []Hunk `json:"hunks"`
}

// Diff is an immutable parsed unified diff.
type Diff struct {
	Files []FileDiff `json:"files"`
}

// IsEmpty reports whether the diff contains no hunks at all.
func (d *Diff) IsEmpty() bool {
	for _, f := range d.Files {
		if len(f.Hunks) > 0 {
			return false
		}
	}
	return true
}

// MalformedDiffError reports a diff that could not be indexed. Raw carries the
// offending line verbatim so callers can log it.
type MalformedDiffError struct {
	File   string
	Raw    string
	Reason string
}

func (e *MalformedDiffError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("malformed diff in %s: %s (line: %q)", e.File, e.Reason, e.Raw)
	}
	return fmt.Sprintf("malformed diff: %s (line: %q)", e.Reason, e.Raw)
}
