package dispatch

// fakeSink is a deterministic Sink test double recording every call instead
// of touching /dev/uinput.
type fakeSink struct {
	keystate   map[uint16]bool
	moves      [][2]int32
	absMoves   [][2]int32
	absAxes    [][2]bool
	scrolls    [][2]int32
	clearCalls int
}

func newFakeSink() *fakeSink {
	return &fakeSink{keystate: make(map[uint16]bool)}
}

func (s *fakeSink) SendKey(code uint16, pressed bool) error {
	s.keystate[code] = pressed
	return nil
}

func (s *fakeSink) MouseMove(dx, dy int32) error {
	s.moves = append(s.moves, [2]int32{dx, dy})
	return nil
}

func (s *fakeSink) MouseMoveAbs(x, y int32, hasX, hasY bool) error {
	s.absMoves = append(s.absMoves, [2]int32{x, y})
	s.absAxes = append(s.absAxes, [2]bool{hasX, hasY})
	return nil
}

func (s *fakeSink) MouseScroll(dx, dy int32) error {
	s.scrolls = append(s.scrolls, [2]int32{dx, dy})
	return nil
}

func (s *fakeSink) Clear() error {
	s.clearCalls++
	for code := range s.keystate {
		s.keystate[code] = false
	}
	return nil
}
