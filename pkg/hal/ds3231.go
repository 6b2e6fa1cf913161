package hal

import (
	"errors"
	"fmt"
)

// DS3231 register map.
const (
	DS3231Address = 0x68

	ds3231RegSeconds = 0x00
	ds3231RegStatus  = 0x0F

	ds3231OscillatorStopped = 0x80
)

var ErrRTCNotFound = errors.New("rtc not responding")

// I2C is the register access used by the DS3231 driver. machine.I2C
// satisfies it on TinyGo targets.
type I2C interface {
	ReadRegister(address uint8, register uint8, data []byte) error
	WriteRegister(address uint8, register uint8, data []byte) error
}

var _ RTC = (*DS3231)(nil)

// DS3231 reads the time registers in 24 hour mode. Values stay BCD encoded.
type DS3231 struct {
	bus     I2C
	address uint8
	buf     [3]byte
}

// NewDS3231 creates a driver on a configured bus.
func NewDS3231(bus I2C, address uint8) *DS3231 {
	if address == 0 {
		address = DS3231Address
	}
	return &DS3231{bus: bus, address: address}
}

// Init clears the oscillator stop flag and sets the clock to 00:00:00 in
// 24 hour mode, so the reported time is the uptime.
func (r *DS3231) Init() error {
	if err := r.bus.ReadRegister(r.address, ds3231RegStatus, r.buf[:1]); err != nil {
		return fmt.Errorf("%w: %v", ErrRTCNotFound, err)
	}
	status := r.buf[0] &^ ds3231OscillatorStopped
	if err := r.bus.WriteRegister(r.address, ds3231RegStatus, []byte{status}); err != nil {
		return fmt.Errorf("clear oscillator stop flag: %w", err)
	}
	// Hours bit 6 cleared selects 24 hour mode
	if err := r.bus.WriteRegister(r.address, ds3231RegSeconds, []byte{0, 0, 0}); err != nil {
		return fmt.Errorf("zero time: %w", err)
	}
	return nil
}

func (r *DS3231) ReadTime() (hours, minutes, seconds uint8, err error) {
	if err := r.bus.ReadRegister(r.address, ds3231RegSeconds, r.buf[:]); err != nil {
		return 0, 0, 0, err
	}
	return r.buf[2] & 0x3F, r.buf[1] & 0x7F, r.buf[0] & 0x7F, nil
}
