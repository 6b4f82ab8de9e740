package stream

// Source yields parts in order. It follows the iteration style of the provider
// SDK streams: call Next until it returns false, then check Err.
type Source interface {
	Next() bool
	Current() Part
	Err() error
	Close() error
}

// SliceSource replays a fixed list of parts, optionally failing at the end.
type SliceSource struct {
	parts  []Part
	pos    int
	err    error
	closed bool
}

// FromParts returns a Source over parts.
func FromParts(parts ...Part) *SliceSource {
	return &SliceSource{parts: parts, pos: -1}
}

// FailAfter makes the source report err once its parts are exhausted.
func (s *SliceSource) FailAfter(err error) *SliceSource {
	s.err = err
	return s
}

func (s *SliceSource) Next() bool {
	if s.closed || s.pos+1 >= len(s.parts) {
		return false
	}
	s.pos++
	return true
}

func (s *SliceSource) Current() Part {
	if s.pos < 0 || s.pos >= len(s.parts) {
		return nil
	}
	return s.parts[s.pos]
}

func (s *SliceSource) Err() error {
	if s.pos+1 >= len(s.parts) {
		return s.err
	}
	return nil
}

func (s *SliceSource) Close() error {
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *SliceSource) Closed() bool {
	return s.closed
}
