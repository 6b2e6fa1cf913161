package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/itohio/gobuck/pkg/api"
	"github.com/itohio/gobuck/pkg/config"
	"github.com/itohio/gobuck/pkg/controller"
	"github.com/itohio/gobuck/pkg/core"
	"github.com/itohio/gobuck/pkg/hal"
	"github.com/itohio/gobuck/pkg/metrics"
	"github.com/itohio/gobuck/pkg/signal"
	"github.com/itohio/gobuck/pkg/store"
	"github.com/itohio/gobuck/pkg/telemetry"
)

func main() {
	var (
		configFlag     = flag.String("config", "config.yaml", "Configuration file path")
		portFlag       = flag.String("p", "", "Telemetry serial port override (empty = stdout)")
		controllerFlag = flag.String("controller", "", "Controller override (pi or nn)")
		metricsFlag    = flag.String("metrics", "", "HTTP listen address for /metrics override (\"off\" disables)")
		apiFlag        = flag.String("api", "", "HTTP listen address for /api override (\"off\" disables)")
		historyFlag    = flag.String("history", "", "Telemetry history database directory override")
		startFlag      = flag.Bool("start", false, "Press start on boot")
		saveFlag       = flag.String("save-config", "", "Write the effective configuration to this file and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *controllerFlag != "" {
		cfg.Controller.Type = *controllerFlag
	}
	overrideListen(&cfg.Metrics.Listen, *metricsFlag)
	overrideListen(&cfg.API.Listen, *apiFlag)
	if *historyFlag != "" {
		cfg.Store.Path = *historyFlag
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if *saveFlag != "" {
		if err := cfg.Save(*saveFlag); err != nil {
			log.Fatalf("Failed to save configuration: %v", err)
		}
		log.Printf("Configuration written to %s", *saveFlag)
		return
	}

	cond, err := signal.NewConditioner(cfg.Signal)
	if err != nil {
		log.Fatalf("Failed to create signal conditioner: %v", err)
	}
	ctrl, err := controller.FromConfig(cfg.Controller, cfg.Signal)
	if err != nil {
		log.Fatalf("Failed to create controller: %v", err)
	}

	plant := hal.NewPlant(cfg.Plant, cfg.Signal, cfg.Core.TickPeriod)
	buttons := &hal.SimButtons{}
	leds := &hal.SimIndicators{}
	rtc := hal.NewSimRTC()
	rtc.FailEvery = cfg.Plant.RTCFailEvery
	wd := hal.NewSoftWatchdog(cfg.Core.WatchdogTimeout)

	go listenCommands(buttons, os.Stdin, "stdin")

	var sender hal.LineSender
	if cfg.Serial.Port == "" {
		sender = hal.NewWriterSender(os.Stdout)
	} else {
		serialSender := hal.NewSerialSender(cfg.Serial.Port, cfg.Serial.BaudRate)
		if err := serialSender.Connect(); err != nil {
			log.Fatalf("Failed to open telemetry port: %v", err)
		}
		defer serialSender.Close()
		log.Printf("Sending telemetry to %s at %d baud", cfg.Serial.Port, cfg.Serial.BaudRate)
		go listenCommands(buttons, serialSender, cfg.Serial.Port)
		sender = serialSender
	}

	var (
		rec       core.Recorder = core.NopRecorder{}
		collector *metrics.Collector
	)
	if cfg.Metrics.Listen != "" {
		collector = metrics.New()
		rec = collector
	}

	sched, err := core.New(cfg, cond, ctrl, core.Peripherals{
		ADC:        plant,
		PWM:        plant,
		Buttons:    buttons,
		Indicators: leds,
		RTC:        rtc,
		Sender:     sender,
		Watchdog:   wd,
	}, rec)
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}

	var history *store.Store
	if cfg.Store.Path != "" || cfg.Store.InMemory {
		history, err = store.Open(cfg.Store)
		if err != nil {
			log.Fatalf("Failed to open history: %v", err)
		}
		defer history.Close()
		log.Printf("Persisting telemetry every %v to %q", cfg.Store.Interval, cfg.Store.Path)
	}

	var apiServer *api.Server
	if cfg.API.Listen != "" {
		apiServer = api.New(sched, buttons)
		if history != nil {
			apiServer.WithHistory(history)
		}
	}
	var metricsHandler http.Handler
	if collector != nil {
		metricsHandler = collector.Handler()
	}
	for addr, handler := range api.Listeners(cfg.API.Listen, apiServer, cfg.Metrics.Listen, metricsHandler) {
		srv := &http.Server{Addr: addr, Handler: handler}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("HTTP server on %s failed: %v", srv.Addr, err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
		log.Printf("Serving HTTP on %s", addr)
	}

	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go wd.Watch(ctx, func(since time.Duration) {
		log.Fatalf("Watchdog not serviced for %v, resetting", since)
	})

	if history != nil {
		go history.Run(ctx, func() (telemetry.Sample, bool) {
			return telemetry.Sample{Timestamp: time.Now(), Record: sched.Telemetry().Record()}, true
		})
	}

	if *startFlag || cfg.Plant.StartPressed {
		buttons.PressStart()
	}

	log.Printf("Buck converter started: controller=%s setpoint=%.2fV vin=%.2fV", ctrl.Kind(), cfg.Plant.Setpoint, cfg.Plant.InputVoltage)
	if err := sched.Run(ctx); err != nil {
		if errors.Is(err, core.ErrClockInit) {
			log.Fatalf("Halting: %v", err)
		}
		log.Printf("Scheduler stopped: %v", err)
	}

	snap := sched.State().Snapshot()
	log.Printf("Stopped after %d samples, %d controller resets, %d RTC read failures",
		snap.Ticks, sched.Control().Resets(), sched.Clock().Failures())
}

func listenCommands(buttons *hal.SimButtons, r io.Reader, name string) {
	if err := buttons.Listen(r); err != nil {
		log.Printf("Command input %s closed: %v", name, err)
	}
}

func overrideListen(listen *string, flagValue string) {
	switch flagValue {
	case "":
	case "off":
		*listen = ""
	default:
		*listen = flagValue
	}
}
