// Package textarea is an in-memory multi-line text field with a caret,
// a selection and a scrolled viewport, addressed by rune offsets.
package textarea

import "strings"

// Area is a text field. The zero value is an empty, unbounded field.
// Area is not safe for concurrent use.
type Area struct {
	text     []rune
	selStart int
	selEnd   int

	// scrollTop is the first visible line.
	scrollTop int
	// height is the number of visible lines; <= 0 shows everything.
	height int
}

// New returns an empty Area showing height lines at a time.
func New(height int) *Area {
	return &Area{height: height}
}

func (a *Area) Value() string { return string(a.text) }

// Len returns the length of the text in runes.
func (a *Area) Len() int { return len(a.text) }

// SetValue replaces the text and puts the caret at the end, the way a
// browser textarea does.
func (a *Area) SetValue(s string) {
	a.text = []rune(s)
	a.selStart = len(a.text)
	a.selEnd = len(a.text)
	a.scrollTop = a.clampScroll(a.scrollTop)
}

func (a *Area) SelectionStart() int { return a.selStart }

func (a *Area) SelectionEnd() int { return a.selEnd }

// SetSelectionRange selects [start, end). Offsets past the end of the
// text are clamped to it; an end before start collapses onto end.
func (a *Area) SetSelectionRange(start, end int) {
	end = a.clampOffset(end)
	start = a.clampOffset(start)
	if start > end {
		start = end
	}
	a.selStart, a.selEnd = start, end
}

// Caret returns the collapsed caret offset, the end of the selection.
func (a *Area) Caret() int { return a.selEnd }

func (a *Area) ScrollTop() int { return a.scrollTop }

// SetScrollTop scrolls so that line top is first, clamped to the
// scrollable range.
func (a *Area) SetScrollTop(top int) { a.scrollTop = a.clampScroll(top) }

func (a *Area) Height() int { return a.height }

// SetHeight resizes the viewport and keeps the caret visible.
func (a *Area) SetHeight(h int) {
	a.height = h
	a.scrollTop = a.clampScroll(a.scrollTop)
	a.ScrollToCaret()
}

// Lines returns the text split on newlines. An empty text has one
// empty line.
func (a *Area) Lines() []string {
	return strings.Split(string(a.text), "\n")
}

// LineCount returns the number of lines.
func (a *Area) LineCount() int {
	n := 1
	for _, r := range a.text {
		if r == '\n' {
			n++
		}
	}
	return n
}

// VisibleLines returns the lines inside the viewport and the index of
// the first one.
func (a *Area) VisibleLines() ([]string, int) {
	lines := a.Lines()
	first := a.clampScroll(a.scrollTop)
	last := len(lines)
	if a.height > 0 && first+a.height < last {
		last = first + a.height
	}
	return lines[first:last], first
}

// Position converts a rune offset to a zero-based line and column.
func (a *Area) Position(offset int) (line, col int) {
	offset = a.clampOffset(offset)
	for _, r := range a.text[:offset] {
		if r == '\n' {
			line++
			col = 0
			continue
		}
		col++
	}
	return line, col
}

// Offset converts a line and column to a rune offset. Out-of-range
// positions clamp to the nearest valid offset.
func (a *Area) Offset(line, col int) int {
	if line < 0 {
		return 0
	}
	start := 0
	for l := 0; l < line; l++ {
		i := a.indexRune('\n', start)
		if i < 0 {
			return len(a.text)
		}
		start = i + 1
	}
	end := a.indexRune('\n', start)
	if end < 0 {
		end = len(a.text)
	}
	if col < 0 {
		col = 0
	}
	if start+col > end {
		return end
	}
	return start + col
}

func (a *Area) indexRune(r rune, from int) int {
	for i := from; i < len(a.text); i++ {
		if a.text[i] == r {
			return i
		}
	}
	return -1
}

func (a *Area) clampOffset(off int) int {
	if off < 0 {
		return 0
	}
	if off > len(a.text) {
		return len(a.text)
	}
	return off
}

func (a *Area) maxScroll() int {
	n := a.LineCount()
	if a.height <= 0 {
		return n - 1
	}
	if n <= a.height {
		return 0
	}
	return n - a.height
}

func (a *Area) clampScroll(top int) int {
	if top < 0 {
		return 0
	}
	if m := a.maxScroll(); top > m {
		return m
	}
	return top
}
