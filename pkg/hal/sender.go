package hal

import (
	"io"
	"sync"
)

// WriterSender writes newline terminated lines to an io.Writer.
type WriterSender struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSender wraps w.
func NewWriterSender(w io.Writer) *WriterSender {
	return &WriterSender{w: w}
}

// SendLine writes line followed by '\n'.
func (s *WriterSender) SendLine(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeLine(s.w, line)
}

func writeLine(w io.Writer, line []byte) error {
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	_, err := w.Write(buf)
	return err
}
