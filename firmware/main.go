//go:build rp2040

//go:generate tinygo flash -target=xiao-rp2040

package main

import (
	"context"
	"errors"
	"machine"
	"time"

	"github.com/itohio/gobuck/pkg/config"
	"github.com/itohio/gobuck/pkg/controller"
	"github.com/itohio/gobuck/pkg/core"
	"github.com/itohio/gobuck/pkg/hal"
	"github.com/itohio/gobuck/pkg/signal"
)

func main() {
	// Give the USB console a moment to enumerate
	time.Sleep(time.Second)

	cfg := config.Default()
	cfg.Serial.BaudRate = UART_BAUD_RATE
	cfg.Core.WatchdogTimeout = WATCHDOG_TIMEOUT_MS * time.Millisecond

	cond, err := signal.NewConditioner(cfg.Signal)
	if err != nil {
		halt("signal conditioner", err)
	}
	ctrl, err := controller.FromConfig(cfg.Controller, cfg.Signal)
	if err != nil {
		halt("controller", err)
	}

	adc := newADCGroup()
	pwm, err := newGateDriver()
	if err != nil {
		halt("pwm", err)
	}
	configureUART()
	if err := configureI2C(); err != nil {
		halt("i2c", err)
	}
	buttons := newPanel()
	go buttons.pollCommands()

	sched, err := core.New(cfg, cond, ctrl, core.Peripherals{
		ADC:        adc,
		PWM:        pwm,
		Buttons:    buttons,
		Indicators: newLEDs(),
		RTC:        hal.NewDS3231(i2c, RTC_ADDRESS),
		Sender:     hal.NewWriterSender(uart),
		Watchdog:   &watchdog{timeout: cfg.Core.WatchdogTimeout},
	}, core.NopRecorder{})
	if err != nil {
		halt("scheduler", err)
	}

	println("buck converter ready, controller", ctrl.Kind().String())
	if err := sched.Run(context.Background()); err != nil {
		if errors.Is(err, core.ErrClockInit) {
			halt("rtc", err)
		}
		println("scheduler stopped:", err.Error())
	}
	halt("scheduler", errors.New("returned"))
}

// halt stops forever with the output off. The watchdog is only armed by
// the first Service call, so a boot failure never turns into a reset loop.
func halt(what string, err error) {
	PIN_PWM.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_PWM.Low()
	for {
		println("halted:", what, err.Error())
		time.Sleep(5 * time.Second)
	}
}
