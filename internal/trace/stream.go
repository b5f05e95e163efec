package trace

import (
	"io"
	"sync"
)

// Stream writes each event as it arrives.
type Stream struct {
	mu     sync.Mutex
	w      io.Writer
	level  Level
	format Format
	buf    []byte
	// err is the first write error; later events are dropped.
	err error
}

func NewStream(w io.Writer, level Level, format Format) *Stream {
	if format == FormatAuto {
		format = FormatText
	}
	return &Stream{w: w, level: level, format: format}
}

func (s *Stream) Emit(ev Event) {
	if !s.level.keeps(&ev) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	s.buf = AppendEvent(s.buf[:0], &ev, s.format)
	_, s.err = s.w.Write(s.buf)
}

// Flush reports the first write error and flushes a buffered writer.
func (s *Stream) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if f, ok := s.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

func (s *Stream) Close() error {
	err := s.Flush()
	if c, ok := s.w.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (s *Stream) Level() Level { return s.level }
