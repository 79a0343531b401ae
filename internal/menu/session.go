package menu

type State int

const (
	Closed State = iota
	Open
)

func (s State) String() string {
	if s == Open {
		return "open"
	}
	return "closed"
}

// Session is one client's menu state.
type Session struct {
	Slot int
	// Width is captured by each menu when it opens.
	Width int

	menu  *Menu
	dirty bool
}

func NewSession(slot, width int) *Session {
	return &Session{Slot: slot, Width: width}
}

func (s *Session) State() State {
	if s.menu == nil {
		return Closed
	}
	return Open
}

func (s *Session) Menu() *Menu {
	return s.menu
}

// Open shows m, replacing and releasing whatever was open before.
func (s *Session) Open(m *Menu) {
	if s.menu != nil && s.menu != m {
		s.release()
	}
	m.width = s.Width
	if !m.valid(m.Current) || !m.Entries[m.Current].Actionable() {
		m.Current = -1
		m.Next()
	}
	s.menu = m
	s.dirty = true
}

// Close is a no-op when nothing is open.
func (s *Session) Close() {
	if s.menu == nil {
		return
	}
	s.release()
	s.dirty = true
}

func (s *Session) release() {
	m := s.menu
	s.menu = nil
	if m.OnClose != nil {
		m.OnClose(m)
	}
	m.Context = nil
}

// Select runs the highlighted entry. The callback may open another menu or
// close this one.
func (s *Session) Select() {
	if s.menu == nil {
		return
	}
	e, ok := s.menu.Selected()
	if !ok || !e.Actionable() {
		return
	}
	e.Select(s)
	s.dirty = true
}

func (s *Session) Next() {
	if s.menu == nil {
		return
	}
	s.menu.Next()
	s.dirty = true
}

func (s *Session) Prev() {
	if s.menu == nil {
		return
	}
	s.menu.Prev()
	s.dirty = true
}

func (s *Session) MarkDirty() {
	s.dirty = true
}

func (s *Session) Dirty() bool {
	return s.dirty
}

// Render returns the rows for the open menu, or nil once it closed, and
// clears the dirty flag.
func (s *Session) Render() []Row {
	s.dirty = false
	if s.menu == nil {
		return nil
	}
	return s.menu.Render()
}
