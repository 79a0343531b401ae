package menu

import "unicode/utf8"

type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

type Entry struct {
	Text       string
	Align      Align
	Select     func(s *Session)
	Scrollable bool
}

func (e *Entry) Actionable() bool {
	return e.Select != nil
}

// Menu is a retained list of entries with a cursor. Non-scrollable entries
// (headers and footers) are always drawn; scrollable ones are windowed.
type Menu struct {
	Entries []Entry
	// -1 when nothing is selected
	Current int
	Scroll  int
	// Rows is the scroll window height; zero shows every entry.
	Rows int

	// Update regenerates entries from live state before each render.
	Update func(m *Menu)
	// Context belongs to the menu and is released through OnClose.
	Context any
	OnClose func(m *Menu)

	width int
}

func New(entries ...Entry) *Menu {
	return &Menu{Entries: entries, Current: -1}
}

func (m *Menu) Add(e Entry) {
	m.Entries = append(m.Entries, e)
}

func (m *Menu) valid(i int) bool {
	return i >= 0 && i < len(m.Entries)
}

func (m *Menu) Selected() (*Entry, bool) {
	if !m.valid(m.Current) {
		return nil, false
	}
	return &m.Entries[m.Current], true
}

// Next moves to the following actionable entry, wrapping once at most. An
// invalid cursor is treated as sitting on the last entry. The cursor is
// left alone when nothing is actionable.
func (m *Menu) Next() {
	n := len(m.Entries)
	if n == 0 {
		return
	}
	i := m.Current
	if !m.valid(i) {
		i = n - 1
	}
	for step := 0; step < n; step++ {
		i = (i + 1) % n
		if m.Entries[i].Actionable() {
			m.Current = i
			return
		}
	}
}

// Prev mirrors Next; an invalid cursor is treated as sitting on the first
// entry.
func (m *Menu) Prev() {
	n := len(m.Entries)
	if n == 0 {
		return
	}
	i := m.Current
	if !m.valid(i) {
		i = 0
	}
	for step := 0; step < n; step++ {
		i = (i - 1 + n) % n
		if m.Entries[i].Actionable() {
			m.Current = i
			return
		}
	}
}

type Row struct {
	Line      int
	Text      string
	Align     Align
	Highlight bool
}

func (m *Menu) scrollable() []int {
	var idx []int
	for i := range m.Entries {
		if m.Entries[i].Scrollable {
			idx = append(idx, i)
		}
	}
	return idx
}

// keepCursorVisible re-centres the window on the cursor only when the
// cursor is outside it, then clamps the offset.
func (m *Menu) keepCursorVisible() {
	idx := m.scrollable()
	if m.Rows <= 0 || len(idx) <= m.Rows {
		m.Scroll = 0
		return
	}
	for pos, i := range idx {
		if i != m.Current {
			continue
		}
		if pos < m.Scroll || pos >= m.Scroll+m.Rows {
			m.Scroll = pos - m.Rows/2
		}
		break
	}
	m.Scroll = min(max(m.Scroll, 0), len(idx)-m.Rows)
}

// Render refreshes the menu and returns the rows to draw. An invalid cursor
// only means no row is highlighted.
func (m *Menu) Render() []Row {
	if m.Update != nil {
		m.Update(m)
	}
	m.keepCursorVisible()

	rows := make([]Row, 0, len(m.Entries))
	pos := 0
	for i, e := range m.Entries {
		if e.Scrollable {
			p := pos
			pos++
			if m.Rows > 0 && (p < m.Scroll || p >= m.Scroll+m.Rows) {
				continue
			}
		}
		rows = append(rows, Row{
			Line:      len(rows),
			Text:      truncate(e.Text, m.width),
			Align:     e.Align,
			Highlight: i == m.Current,
		})
	}
	return rows
}

func (m *Menu) Width() int {
	return m.width
}

func truncate(s string, width int) string {
	if width <= 0 || utf8.RuneCountInString(s) <= width {
		return s
	}
	r := []rune(s)
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}
