package diff

// Numbering selects how positions are counted when a patch placement is
// emitted: continuously across the whole document, or restarting at every
// file diff. Which one a platform expects varies by endpoint, so both are
// first-class.
type Numbering string

const (
	NumberingDocument Numbering = "document"
	NumberingFile     Numbering = "file"
)

// Coordinate identifies a diff line by file path and new-file line number.
type Coordinate struct {
	Path    string
	NewLine int
}

type coordEntry struct {
	kind         LineKind
	position     int
	filePosition int
}

type filePosKey struct {
	path string
	pos  int
}

// CoordinateMap is the bidirectional lookup between new-file line numbers and
// diff positions. It is built once per diff and read-only afterwards, so it is
// safe to share by reference across the stages of a run.
type CoordinateMap struct {
	files   map[string]struct{}
	byLine  map[Coordinate]coordEntry
	byDoc   map[int]Coordinate
	byFile  map[filePosKey]int
	maxPos  int
	maxFile map[string]int
}

func newCoordinateMap(d *Diff) *CoordinateMap {
	m := &CoordinateMap{
		files:   make(map[string]struct{}),
		byLine:  make(map[Coordinate]coordEntry),
		byDoc:   make(map[int]Coordinate),
		byFile:  make(map[filePosKey]int),
		maxFile: make(map[string]int),
	}
	for _, f := range d.Files {
		m.files[f.Path] = struct{}{}
		for _, h := range f.Hunks {
			for _, l := range h.Lines {
				if l.Position > m.maxPos {
					m.maxPos = l.Position
				}
				if l.FilePosition > m.maxFile[f.Path] {
					m.maxFile[f.Path] = l.FilePosition
				}
				if l.Kind == LineRemoved {
					// Removed lines consume positions but have no new-file
					// line number, so they are unreachable for placements.
					continue
				}
				c := Coordinate{Path: f.Path, NewLine: l.NewLine}
				m.byLine[c] = coordEntry{kind: l.Kind, position: l.Position, filePosition: l.FilePosition}
				m.byDoc[l.Position] = c
				m.byFile[filePosKey{path: f.Path, pos: l.FilePosition}] = l.NewLine
			}
		}
	}
	return m
}

// HasFile reports whether the diff touches the given path.
func (m *CoordinateMap) HasFile(path string) bool {
	_, ok := m.files[path]
	return ok
}

// Contains reports whether (path, newLine) maps to a context or added line.
func (m *CoordinateMap) Contains(path string, newLine int) bool {
	_, ok := m.byLine[Coordinate{Path: path, NewLine: newLine}]
	return ok
}

// KindAt returns the line kind at (path, newLine).
func (m *CoordinateMap) KindAt(path string, newLine int) (LineKind, bool) {
	e, ok := m.byLine[Coordinate{Path: path, NewLine: newLine}]
	if !ok {
		return "", false
	}
	return e.kind, true
}

// Position returns the position of (path, newLine) under the given numbering.
func (m *CoordinateMap) Position(path string, newLine int, numbering Numbering) (int, bool) {
	e, ok := m.byLine[Coordinate{Path: path, NewLine: newLine}]
	if !ok {
		return 0, false
	}
	if numbering == NumberingFile {
		return e.filePosition, true
	}
	return e.position, true
}

// Resolve maps a position back to its coordinate. For document numbering the
// path argument is ignored; for file numbering it selects which file's
// counter the position refers to.
func (m *CoordinateMap) Resolve(position int, path string, numbering Numbering) (Coordinate, bool) {
	if numbering == NumberingFile {
		newLine, ok := m.byFile[filePosKey{path: path, pos: position}]
		if !ok {
			return Coordinate{}, false
		}
		return Coordinate{Path: path, NewLine: newLine}, true
	}
	c, ok := m.byDoc[position]
	return c, ok
}

// MaxPosition returns the highest assigned document position; zero for an
// empty diff.
func (m *CoordinateMap) MaxPosition() int {
	return m.maxPos
}
