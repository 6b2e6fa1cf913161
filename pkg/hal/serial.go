//go:build !tinygo

package hal

import (
	"fmt"
	"log"
	"sync"

	"go.bug.st/serial"
)

// DefaultBaudRate is the default telemetry UART rate.
const DefaultBaudRate = 9600

var _ LineSender = (*SerialSender)(nil)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// OpenPort opens a serial port in 8N1 mode.
func OpenPort(name string, baudRate int) (serial.Port, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}
	return port, nil
}

// SerialSender transmits telemetry lines over a UART.
type SerialSender struct {
	name     string
	baudRate int

	mu        sync.Mutex
	conn      serial.Port
	connected bool
}

// NewSerialSender creates a sender for the named port. Call Connect first.
func NewSerialSender(name string, baudRate int) *SerialSender {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	return &SerialSender{name: name, baudRate: baudRate}
}

// Connect opens the port.
func (s *SerialSender) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return fmt.Errorf("already connected")
	}

	port, err := OpenPort(s.name, s.baudRate)
	if err != nil {
		return err
	}
	s.conn = port
	s.connected = true
	return nil
}

// Close closes the port.
func (s *SerialSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil
	}
	if err := s.conn.Close(); err != nil {
		log.Printf("Error closing serial port: %v", err)
	}
	s.conn = nil
	s.connected = false
	return nil
}

// IsConnected returns whether the port is open.
func (s *SerialSender) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// SendLine writes line followed by '\n'. The write blocks until the UART
// driver accepted every byte.
func (s *SerialSender) SendLine(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return ErrNotConnected
	}
	if err := writeLine(s.conn, line); err != nil {
		return fmt.Errorf("failed to send telemetry: %w", err)
	}
	return nil
}

// Read reads host commands from the port. It does not hold the write lock,
// so a blocked read never delays telemetry.
func (s *SerialSender) Read(p []byte) (int, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return 0, ErrNotConnected
	}
	return conn.Read(p)
}
