package diff

import (
	"slices"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// hunk replaces the base lines [start, end) with lines. A hunk with start == end is a pure insertion.
type hunk struct {
	start, end int
	lines      []string
	side       int
}

func (h hunk) insertion() bool {
	return h.start == h.end
}

func (h hunk) equal(o hunk) bool {
	return h.start == o.start && h.end == o.end && slices.Equal(h.lines, o.lines)
}

// overlaps reports whether two hunks from different sides touch the same base lines. Insertions only clash
// with a replacement that spans their position; two insertions at the same point are kept side by side.
func (h hunk) overlaps(o hunk) bool {
	switch {
	case h.insertion() && o.insertion():
		return false
	case h.insertion():
		return o.start < h.start && h.start < o.end
	case o.insertion():
		return h.start < o.start && o.start < h.end
	default:
		return h.start < o.end && o.start < h.end
	}
}

// Merge performs a line based three-way merge of ours and theirs, two descendants of base. It returns the
// merged text and true when the changes of both sides touch disjoint line ranges, and false otherwise.
func Merge(base, ours, theirs string) (string, bool) {
	switch {
	case ours == theirs, base == theirs:
		return ours, true
	case base == ours:
		return theirs, true
	}

	baseLines := splitLines(base)
	left := lineHunks(base, ours, 0)
	right := lineHunks(base, theirs, 1)

	all := make([]hunk, 0, len(left)+len(right))
	all = append(all, left...)
	for _, r := range right {
		duplicate := false
		for _, l := range left {
			if l.equal(r) {
				duplicate = true
				break
			}
			if l.overlaps(r) {
				return "", false
			}
		}
		if !duplicate {
			all = append(all, r)
		}
	}

	slices.SortStableFunc(all, func(a, b hunk) int {
		if a.start != b.start {
			return a.start - b.start
		}
		// At the same position insertions go first, so that a replacement starting there keeps its place.
		if a.insertion() != b.insertion() {
			if a.insertion() {
				return -1
			}
			return 1
		}
		return a.side - b.side
	})

	var out []string
	pos := 0
	for _, h := range all {
		if h.start > pos {
			out = appendLines(out, baseLines[pos:h.start])
		}
		out = appendLines(out, h.lines)
		pos = max(pos, h.end)
	}
	if pos < len(baseLines) {
		out = appendLines(out, baseLines[pos:])
	}
	return strings.Join(out, ""), true
}

// lineHunks computes the changes from base to changed, in base line coordinates.
func lineHunks(base, changed string, side int) []hunk {
	chars1, chars2, lineArray := dmp.DiffLinesToChars(base, changed)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(chars1, chars2, false), lineArray)

	var hunks []hunk
	var current *hunk
	pos := 0
	for _, d := range diffs {
		lines := splitLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			if current != nil {
				hunks = append(hunks, *current)
				current = nil
			}
			pos += len(lines)
		case diffmatchpatch.DiffDelete:
			if current == nil {
				current = &hunk{start: pos, end: pos, side: side}
			}
			pos += len(lines)
			current.end = pos
		case diffmatchpatch.DiffInsert:
			if current == nil {
				current = &hunk{start: pos, end: pos, side: side}
			}
			current.lines = append(current.lines, lines...)
		}
	}
	if current != nil {
		hunks = append(hunks, *current)
	}
	return hunks
}

// splitLines splits s after every newline. The last line has no newline when s does not end with one.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// appendLines appends lines to out, terminating the previous last line when it lacks a newline.
func appendLines(out, lines []string) []string {
	if len(lines) == 0 {
		return out
	}
	if n := len(out); n > 0 && !strings.HasSuffix(out[n-1], "\n") {
		out[n-1] += "\n"
	}
	return append(out, lines...)
}
