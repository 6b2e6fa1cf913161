package telemetry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Off replaces the numeric fields while the converter is idle.
const Off = "OFF"

var (
	ErrMalformed      = errors.New("malformed telemetry line")
	ErrUnknownCommand = errors.New("unknown command")
)

// Command is a host request sent to the converter on the telemetry link.
type Command string

const (
	CommandStart Command = "START"
	CommandStop  Command = "STOP"
)

// ParseCommand decodes a command line. Case and surrounding whitespace are
// ignored.
func ParseCommand(line string) (Command, error) {
	switch cmd := Command(strings.ToUpper(strings.TrimSpace(line))); cmd {
	case CommandStart, CommandStop:
		return cmd, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, strings.TrimSpace(line))
}

// Clock is a decimal time of day.
type Clock struct {
	Hours   uint8
	Minutes uint8
	Seconds uint8
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hours, c.Minutes, c.Seconds)
}

// Duration returns the clock as time since midnight.
func (c Clock) Duration() time.Duration {
	return time.Duration(c.Hours)*time.Hour + time.Duration(c.Minutes)*time.Minute + time.Duration(c.Seconds)*time.Second
}

// Record is one telemetry line.
type Record struct {
	Running  bool
	Setpoint float32 // V
	Output   float32 // V
	Current  float32 // mA
	Clock    Clock
}

// Format renders a record without the line terminator:
//
//	<setpoint>,<vout>,<iload>,HH:MM:SS   while running
//	OFF,HH:MM:SS                         while idle
//
// Values carry one decimal digit, truncated towards zero.
func Format(r Record) []byte {
	buf := make([]byte, 0, 32)
	if r.Running {
		buf = AppendTenths(buf, r.Setpoint)
		buf = append(buf, ',')
		buf = AppendTenths(buf, r.Output)
		buf = append(buf, ',')
		buf = AppendTenths(buf, r.Current)
	} else {
		buf = append(buf, Off...)
	}
	buf = append(buf, ',')
	buf = appendTwoDigits(buf, r.Clock.Hours)
	buf = append(buf, ':')
	buf = appendTwoDigits(buf, r.Clock.Minutes)
	buf = append(buf, ':')
	buf = appendTwoDigits(buf, r.Clock.Seconds)
	return buf
}

// AppendTenths appends v as <int>.<digit>, truncating the remaining
// decimals.
func AppendTenths(buf []byte, v float32) []byte {
	if v != v {
		return append(buf, "NaN"...)
	}
	if v < 0 {
		buf = append(buf, '-')
		v = -v
	}
	whole := int64(v)
	tenth := int64((v - float32(whole)) * 10)
	if tenth > 9 {
		tenth = 9
	}
	buf = strconv.AppendInt(buf, whole, 10)
	buf = append(buf, '.')
	return strconv.AppendInt(buf, tenth, 10)
}

func appendTwoDigits(buf []byte, v uint8) []byte {
	if v < 10 {
		buf = append(buf, '0')
	}
	return strconv.AppendUint(buf, uint64(v), 10)
}

// Parse decodes a line produced by Format. Surrounding whitespace is ignored.
func Parse(line string) (Record, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")

	var r Record
	switch len(parts) {
	case 2:
		if parts[0] != Off {
			return Record{}, fmt.Errorf("%w: expected %q, got %q", ErrMalformed, Off, parts[0])
		}
	case 4:
		r.Running = true
		values := [3]*float32{&r.Setpoint, &r.Output, &r.Current}
		for i, dst := range values {
			v, err := strconv.ParseFloat(parts[i], 32)
			if err != nil {
				return Record{}, fmt.Errorf("%w: field %d: %v", ErrMalformed, i, err)
			}
			*dst = float32(v)
		}
	default:
		return Record{}, fmt.Errorf("%w: expected 2 or 4 comma-separated values, got %d", ErrMalformed, len(parts))
	}

	clock, err := parseClock(parts[len(parts)-1])
	if err != nil {
		return Record{}, err
	}
	r.Clock = clock
	return r, nil
}

func parseClock(s string) (Clock, error) {
	fields := strings.Split(s, ":")
	if len(fields) != 3 {
		return Clock{}, fmt.Errorf("%w: invalid clock %q", ErrMalformed, s)
	}

	limits := [3]uint64{24, 60, 60}
	var values [3]uint8
	for i, f := range fields {
		v, err := strconv.ParseUint(f, 10, 8)
		if err != nil || v >= limits[i] {
			return Clock{}, fmt.Errorf("%w: invalid clock %q", ErrMalformed, s)
		}
		values[i] = uint8(v)
	}
	return Clock{Hours: values[0], Minutes: values[1], Seconds: values[2]}, nil
}
