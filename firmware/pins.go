//go:build rp2040

package main

import (
	"machine"
	"time"
)

const (
	// ADC inputs (GPIO26..29)
	PIN_SETPOINT = machine.ADC0
	PIN_VIN      = machine.ADC1
	PIN_VOUT     = machine.ADC2
	PIN_ILOAD    = machine.ADC3

	// Gate driver, slice 0 channel A
	PIN_PWM = machine.GPIO0

	// Active-low push buttons
	PIN_START = machine.GPIO2
	PIN_STOP  = machine.GPIO3

	// Status LEDs
	PIN_LED_CONTROL   = machine.GPIO16
	PIN_LED_TELEMETRY = machine.GPIO17

	// DS3231 on I2C0
	PIN_SDA = machine.GPIO4
	PIN_SCL = machine.GPIO5

	// Telemetry UART (TX/RX)
	PIN_UART_TX = machine.GPIO8
	PIN_UART_RX = machine.GPIO9

	UART_BAUD_RATE = 9600

	ADC_REFERENCE_MV = 3300
	ADC_RESOLUTION   = 12

	// 20 kHz switching frequency
	PWM_PERIOD = 50 * time.Microsecond

	RTC_ADDRESS   = 0x68
	I2C_FREQUENCY = 100 * machine.KHz

	WATCHDOG_TIMEOUT_MS = 500
)

var (
	pwmGroup = machine.PWM0
	uart     = machine.UART1
	i2c      = machine.I2C0
)
