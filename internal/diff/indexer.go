package diff

import (
	"regexp"
	"strconv"
	"strings"
)

// noNewlineMarker appears after the last line of a file that does not end with
// a newline. It carries no coordinates of its own.
const noNewlineMarker = `\ No newline at end of file`

var hunkHeaderRegex = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@(.*)`)

// Index parses a raw unified diff and assigns every hunk line its position and
// old/new line numbers. It is a pure function: same input, same output, no I/O.
//
// Positions start at 1 on the first line after the first hunk header and
// increment once per hunk body line across the whole document. Hunk headers,
// file headers, and the no-newline marker do not consume positions. The
// file-relative counter restarts at each `diff --git` header so both platform
// numbering conventions can be served from one pass.
func Index(raw string) (*Diff, *CoordinateMap, error) {
	d := &Diff{}
	if strings.TrimSpace(raw) == "" {
		return d, newCoordinateMap(d), nil
	}

	lines := strings.Split(raw, "\n")
	// A diff ending with a newline leaves one empty trailing element behind;
	// it is not a body line and must not consume a position.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	var (
		cur     *FileDiff
		curHunk *Hunk
		oldNo   int
		newNo   int
		docPos  int
		filePos int
		inHunk  bool
	)

	finishFile := func(headerLine string) error {
		if cur == nil {
			return nil
		}
		if len(cur.Hunks) == 0 {
			return &MalformedDiffError{File: cur.Path, Raw: headerLine, Reason: "file header with no hunks"}
		}
		d.Files = append(d.Files, *cur)
		return nil
	}

	for _, ln := range lines {
		switch {
		case strings.HasPrefix(ln, "diff --git "):
			if err := finishFile(ln); err != nil {
				return nil, nil, err
			}
			oldPath, newPath := parseGitHeader(ln)
			if newPath == "" {
				return nil, nil, &MalformedDiffError{Raw: ln, Reason: "unparsable file header"}
			}
			cur = &FileDiff{Path: newPath, OldPath: oldPath}
			curHunk = nil
			inHunk = false
			filePos = 0

		case strings.HasPrefix(ln, "@@ "):
			if cur == nil {
				return nil, nil, &MalformedDiffError{Raw: ln, Reason: "hunk header before any file header"}
			}
			m := hunkHeaderRegex.FindStringSubmatch(ln)
			if m == nil {
				return nil, nil, &MalformedDiffError{File: cur.Path, Raw: ln, Reason: "unparsable hunk header"}
			}
			oldStart, _ := strconv.Atoi(m[1])
			newStart, _ := strconv.Atoi(m[3])
			oldCount := headerCount(m[2])
			newCount := headerCount(m[4])
			cur.Hunks = append(cur.Hunks, Hunk{
				OldStart: oldStart,
				OldLines: oldCount,
				NewStart: newStart,
				NewLines: newCount,
				Header:   strings.TrimSpace(m[5]),
			})
			curHunk = &cur.Hunks[len(cur.Hunks)-1]
			oldNo, newNo = oldStart, newStart
			// A zero-length side records the line before the change, which is
			// not itself a valid line number on that side.
			if oldCount == 0 {
				oldNo = oldStart + 1
			}
			if newCount == 0 {
				newNo = newStart + 1
			}
			inHunk = true

		case !inHunk:
			// File metadata between the git header and the first hunk:
			// index/mode lines and the ---/+++ pair. They carry no positions.
			if cur != nil {
				if strings.HasPrefix(ln, "--- /dev/null") || strings.HasPrefix(ln, "new file mode") {
					cur.IsNew = true
				}
			}

		case ln == noNewlineMarker:
			// Metadata, not a body line.

		default:
			if curHunk == nil {
				continue
			}
			docPos++
			filePos++
			var l Line
			switch {
			case strings.HasPrefix(ln, "+"):
				l = Line{Kind: LineAdded, Content: ln[1:], NewLine: newNo, Position: docPos, FilePosition: filePos}
				newNo++
			case strings.HasPrefix(ln, "-"):
				l = Line{Kind: LineRemoved, Content: ln[1:], OldLine: oldNo, Position: docPos, FilePosition: filePos}
				oldNo++
			case strings.HasPrefix(ln, " "):
				l = Line{Kind: LineContext, Content: ln[1:], OldLine: oldNo, NewLine: newNo, Position: docPos, FilePosition: filePos}
				oldNo++
				newNo++
			default:
				// Context lines of empty source lines sometimes arrive without
				// the leading space.
				l = Line{Kind: LineContext, Content: ln, OldLine: oldNo, NewLine: newNo, Position: docPos, FilePosition: filePos}
				oldNo++
				newNo++
			}
			curHunk.Lines = append(curHunk.Lines, l)
		}
	}

	if err := finishFile(""); err != nil {
		return nil, nil, err
	}

	return d, newCoordinateMap(d), nil
}

// parseGitHeader extracts the a/ and b/ paths from a `diff --git` line.
func parseGitHeader(header string) (oldPath, newPath string) {
	parts := strings.Fields(header)
	if len(parts) == 4 {
		return strings.TrimPrefix(parts[2], "a/"), strings.TrimPrefix(parts[3], "b/")
	}
	return "", ""
}

// headerCount parses an optional hunk length. An omitted length means 1 per
// the unified diff format.
func headerCount(s string) int {
	if s == "" {
		return 1
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return n
}
