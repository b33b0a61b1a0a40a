package textarea

// Edits return true when the text changed. Caret movement never does.

// Insert replaces the selection with s and leaves the caret after it.
func (a *Area) Insert(s string) bool {
	if s == "" && a.selStart == a.selEnd {
		return false
	}
	ins := []rune(s)
	next := make([]rune, 0, len(a.text)-(a.selEnd-a.selStart)+len(ins))
	next = append(next, a.text[:a.selStart]...)
	next = append(next, ins...)
	next = append(next, a.text[a.selEnd:]...)
	a.text = next
	caret := a.selStart + len(ins)
	a.selStart, a.selEnd = caret, caret
	a.ScrollToCaret()
	return true
}

// Backspace deletes the selection, or the rune before the caret.
func (a *Area) Backspace() bool {
	if a.selStart == a.selEnd {
		if a.selStart == 0 {
			return false
		}
		a.selStart--
	}
	return a.Insert("")
}

// Delete deletes the selection, or the rune after the caret.
func (a *Area) Delete() bool {
	if a.selStart == a.selEnd {
		if a.selEnd == len(a.text) {
			return false
		}
		a.selEnd++
	}
	return a.Insert("")
}

func (a *Area) MoveLeft() {
	if a.selStart != a.selEnd {
		a.collapse(a.selStart)
		return
	}
	a.collapse(a.selStart - 1)
}

func (a *Area) MoveRight() {
	if a.selStart != a.selEnd {
		a.collapse(a.selEnd)
		return
	}
	a.collapse(a.selEnd + 1)
}

func (a *Area) MoveUp() {
	line, col := a.Position(a.Caret())
	if line == 0 {
		a.collapse(0)
		return
	}
	a.collapse(a.Offset(line-1, col))
}

func (a *Area) MoveDown() {
	line, col := a.Position(a.Caret())
	if line == a.LineCount()-1 {
		a.collapse(len(a.text))
		return
	}
	a.collapse(a.Offset(line+1, col))
}

// LineStart moves the caret to the start of its line.
func (a *Area) LineStart() {
	line, _ := a.Position(a.Caret())
	a.collapse(a.Offset(line, 0))
}

// LineEnd moves the caret to the end of its line.
func (a *Area) LineEnd() {
	line, _ := a.Position(a.Caret())
	a.collapse(a.Offset(line, len(a.text)))
}

// PageUp and PageDown move the caret by one viewport height.
func (a *Area) PageUp() { a.moveLines(-a.page()) }

func (a *Area) PageDown() { a.moveLines(a.page()) }

func (a *Area) page() int {
	if a.height <= 1 {
		return 1
	}
	return a.height - 1
}

func (a *Area) moveLines(delta int) {
	line, col := a.Position(a.Caret())
	line += delta
	if line < 0 {
		line = 0
	}
	if last := a.LineCount() - 1; line > last {
		line = last
	}
	a.collapse(a.Offset(line, col))
}

func (a *Area) collapse(off int) {
	off = a.clampOffset(off)
	a.selStart, a.selEnd = off, off
	a.ScrollToCaret()
}

// ScrollToCaret scrolls the minimum amount that brings the caret's
// line into the viewport.
func (a *Area) ScrollToCaret() {
	if a.height <= 0 {
		return
	}
	line, _ := a.Position(a.Caret())
	switch {
	case line < a.scrollTop:
		a.scrollTop = line
	case line >= a.scrollTop+a.height:
		a.scrollTop = line - a.height + 1
	}
	a.scrollTop = a.clampScroll(a.scrollTop)
}
