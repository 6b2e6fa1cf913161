package telemetry

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"
)

// DefaultBufferSize is the default size for the samples channel buffer.
const DefaultBufferSize = 100

// Sample is a received telemetry record stamped with the host time.
type Sample struct {
	Timestamp time.Time
	Record
}

// Source delivers telemetry samples (serial port or replayed stream).
type Source interface {
	Connect() error
	Close() error
	Samples() <-chan Sample
	IsConnected() bool
}

var _ Source = (*Stream)(nil)

// Stream parses telemetry lines from any reader. Closing the stream closes
// the reader when it implements io.Closer.
type Stream struct {
	r io.Reader

	samples   chan Sample
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	connected bool
	now       func() time.Time
}

// NewStream creates a source reading from r.
func NewStream(r io.Reader, bufSize int) *Stream {
	return newStream(r, bufSize)
}

func newStream(r io.Reader, bufSize int) *Stream {
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Stream{
		r:       r,
		samples: make(chan Sample, bufSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		now:     time.Now,
	}
}

// Connect starts the reading goroutine. A closed stream may be connected
// again; it gets a fresh samples channel.
func (s *Stream) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return fmt.Errorf("already connected")
	}
	if s.r == nil {
		return fmt.Errorf("no reader")
	}
	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
		s.samples = make(chan Sample, cap(s.samples))
		s.done = make(chan struct{})
	}
	s.connected = true

	go s.readSamples(s.ctx, s.r, s.samples, s.done)
	return nil
}

// Close stops the reading goroutine and closes the samples channel.
func (s *Stream) Close() error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil
	}
	s.connected = false
	s.cancel()
	if c, ok := s.r.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Printf("Error closing telemetry source: %v", err)
		}
	}
	done := s.done
	s.mu.Unlock()

	<-done
	return nil
}

// Samples returns the channel for reading samples. It is closed when the
// source ends or Close is called.
func (s *Stream) Samples() <-chan Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.samples
}

// IsConnected returns whether the reading goroutine is running.
func (s *Stream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// readSamples reads lines and parses them into samples.
func (s *Stream) readSamples(ctx context.Context, r io.Reader, samples chan<- Sample, done chan<- struct{}) {
	defer close(done)
	defer close(samples)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic in readSamples: %v", r)
		}
	}()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		record, err := Parse(line)
		if err != nil {
			log.Printf("Failed to parse line '%s': %v", line, err)
			continue
		}

		select {
		case samples <- Sample{Timestamp: s.now(), Record: record}:
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		log.Printf("Error reading telemetry: %v", err)
	}
}
