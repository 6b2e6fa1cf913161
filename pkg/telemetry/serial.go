//go:build !tinygo

package telemetry

import (
	"fmt"
	"sync"

	"go.bug.st/serial"
)

// DefaultBaudRate matches the converter UART.
const DefaultBaudRate = 9600

var _ Source = (*Serial)(nil)

// Serial reads telemetry from the converter UART.
type Serial struct {
	port     string
	baudRate int

	conn   serial.Port
	stream *Stream
	mu     sync.RWMutex
}

// NewSerial creates a reader for the named port.
func NewSerial(port string, baudRate int, bufSize int) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	return &Serial{
		port:     port,
		baudRate: baudRate,
		stream:   newStream(nil, bufSize),
	}
}

// Connect opens the serial port and starts reading samples.
func (s *Serial) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream.IsConnected() {
		return fmt.Errorf("already connected")
	}

	port, err := serial.Open(s.port, &serial.Mode{
		BaudRate: s.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.port, err)
	}

	s.conn = port
	s.stream.r = port
	return s.stream.Connect()
}

// SendCommand writes a command line to the converter.
func (s *Serial) SendCommand(cmd Command) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.stream.IsConnected() || s.conn == nil {
		return fmt.Errorf("not connected")
	}
	if _, err := s.conn.Write([]byte(string(cmd) + "\n")); err != nil {
		return fmt.Errorf("failed to send command %s: %w", cmd, err)
	}
	return nil
}

// Close stops reading and closes the port.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = nil
	return s.stream.Close()
}

// Samples returns the channel for reading samples.
func (s *Serial) Samples() <-chan Sample {
	return s.stream.Samples()
}

// IsConnected returns whether the port is open.
func (s *Serial) IsConnected() bool {
	return s.stream.IsConnected()
}
