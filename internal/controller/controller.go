// Package controller runs the greenhouse scheduling loop: it debounces the
// mode button, shows the mode-change notice, and on a fixed cadence reads
// the sensors, applies the threshold laws and refreshes the display.
//
// The loop is single threaded. Tick takes the current time as a parameter so
// the whole state machine can be driven deterministically.
package controller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"furitingoasis/greenhouse/internal/control"
	"furitingoasis/greenhouse/internal/sensors"
)

type Timing struct {
	MonitorInterval time.Duration `yaml:"monitor_interval"`
	NoticeDuration  time.Duration `yaml:"notice_duration"`
	Debounce        time.Duration `yaml:"debounce"`
	Idle            time.Duration `yaml:"idle"`
	Splash          time.Duration `yaml:"splash"`
}

func DefaultTiming() Timing {
	return Timing{
		MonitorInterval: 500 * time.Millisecond,
		NoticeDuration:  time.Second,
		Debounce:        200 * time.Millisecond,
		Idle:            50 * time.Millisecond,
		Splash:          1500 * time.Millisecond,
	}
}

func (t Timing) Validate() error {
	if t.MonitorInterval <= 0 || t.NoticeDuration <= 0 || t.Debounce <= 0 || t.Idle <= 0 {
		return errors.New("monitor_interval, notice_duration, debounce and idle must be positive")
	}
	if t.Splash < 0 {
		return errors.New("splash must not be negative")
	}
	return nil
}

type Config struct {
	Thresholds control.Thresholds
	Timing     Timing
}

// Button reports the current level of the mode toggle.
type Button interface {
	Pressed() (bool, error)
}

// Buttons is pressed when any of its members is. Every member is read on
// each call so latched requests are consumed together.
type Buttons []Button

func (bs Buttons) Pressed() (bool, error) {
	var (
		pressed bool
		errs    []error
	)
	for _, b := range bs {
		p, err := b.Pressed()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		pressed = pressed || p
	}
	if pressed {
		return true, nil
	}
	return false, errors.Join(errs...)
}

type FrameReader interface {
	ReadFrame() (sensors.Frame, error)
	Last() (sensors.Frame, bool)
}

type Presenter interface {
	Banner() error
	Waiting() error
	ModeNotice(automatic bool) error
	Telemetry(f sensors.Frame) error
}

type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

type Deps struct {
	Button    Button
	Sensors   FrameReader
	Display   Presenter
	Actuators Actuators
	Observers []Observer
	Clock     Clock
}

type Controller struct {
	thresholds control.Thresholds
	timing     Timing

	button    Button
	sensors   FrameReader
	display   Presenter
	actuators Actuators
	observers []Observer
	clock     Clock
	logger    *slog.Logger

	state State
}

// Step describes what one Tick did and how long the loop should wait
// before the next one.
type Step struct {
	Toggled     bool
	NoticeEnded bool
	Monitored   bool
	Wait        time.Duration
}

func New(cfg Config, deps Deps, logger *slog.Logger) (*Controller, error) {
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Timing.Validate(); err != nil {
		return nil, err
	}
	if deps.Button == nil || deps.Sensors == nil || deps.Display == nil {
		return nil, errors.New("button, sensors and display are required")
	}
	if err := deps.Actuators.validate(); err != nil {
		return nil, err
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Controller{
		thresholds: cfg.Thresholds,
		timing:     cfg.Timing,
		button:     deps.Button,
		sensors:    deps.Sensors,
		display:    deps.Display,
		actuators:  deps.Actuators,
		observers:  deps.Observers,
		clock:      deps.Clock,
		logger:     logger.With(slog.String("component", "controller")),
		state:      newState(deps.Clock.Now()),
	}, nil
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	return c.state
}

// Run shows the boot screens and then ticks until ctx is cancelled. I/O
// errors never stop the loop.
func (c *Controller) Run(ctx context.Context) error {
	c.render(c.display.Banner())
	// The splash counts toward the first interval, so telemetry follows it
	// on the first tick.
	c.state.LastMonitor = c.clock.Now()
	c.clock.Sleep(c.timing.Splash)
	c.render(c.display.Waiting())

	c.logger.Info("control loop started", "mode", c.state.Mode(),
		"monitor_interval", c.timing.MonitorInterval, "idle", c.timing.Idle)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("control loop stopped")
			return nil
		default:
		}
		step := c.Tick(ctx, c.clock.Now())
		c.clock.Sleep(step.Wait)
	}
}

// Tick runs one loop iteration at time now.
func (c *Controller) Tick(ctx context.Context, now time.Time) Step {
	var step Step

	// The button is not sampled inside the debounce window.
	if c.state.CanToggle(now, c.timing.Debounce) && c.pressed() {
		c.state.Toggle(now)
		step.Toggled = true
		step.Wait += c.timing.Debounce

		c.logger.Info("mode changed", "mode", c.state.Mode())
		c.render(c.display.ModeNotice(c.state.Automatic))
		for _, o := range c.observers {
			if err := o.ModeChanged(ctx, ModeEvent{At: now, Automatic: c.state.Automatic}); err != nil {
				c.logger.Warn("mode observer failed", "error", err)
			}
		}
	}

	if c.state.NoticeExpired(now, c.timing.NoticeDuration) {
		c.state.NoticeActive = false
		step.NoticeEnded = true
		c.render(c.display.Waiting())
	}

	if c.state.MonitorDue(now, c.timing.MonitorInterval) {
		c.monitor(ctx, now)
		step.Monitored = true
	}

	step.Wait += c.timing.Idle
	return step
}

func (c *Controller) pressed() bool {
	p, err := c.button.Pressed()
	if err != nil {
		c.logger.Warn("button read failed", "error", err)
		return false
	}
	return p
}

func (c *Controller) monitor(ctx context.Context, now time.Time) {
	c.state.LastMonitor = now
	report := Report{At: now, Automatic: c.state.Automatic}

	frame, err := c.sensors.ReadFrame()
	if err != nil {
		// Hold every output on stale data and show the last good frame.
		c.logger.Warn("sensor read failed, actuation suspended for this cycle", "error", err)
		if last, ok := c.sensors.Last(); ok {
			c.render(c.display.Telemetry(last))
			report.Frame = last
		}
		report.Stale = true
		c.notifyCycle(ctx, report)
		return
	}

	cmd := control.Evaluate(frame, c.thresholds)
	report.Frame = frame
	report.Command = cmd

	if c.state.Automatic {
		if err := c.actuators.applyClimate(cmd); err != nil {
			c.logger.Warn("actuator command failed", "error", err)
		}
		report.Actuated = true
		if cmd.Irrigate {
			c.logger.Info("irrigation needed", "soil_moisture", frame.SoilMoisture, "threshold", c.thresholds.SoilDry)
			e := IrrigationEvent{At: now, SoilMoisture: frame.SoilMoisture, Threshold: c.thresholds.SoilDry}
			for _, o := range c.observers {
				if err := o.Irrigation(ctx, e); err != nil {
					c.logger.Warn("irrigation observer failed", "error", err)
				}
			}
		}
	}

	c.render(c.display.Telemetry(frame))

	if err := c.actuators.applyAlert(cmd.Alert); err != nil {
		c.logger.Warn("alert indicator failed", "error", err)
	}

	c.logger.Debug("monitoring cycle",
		"mode", c.state.Mode(),
		"temperature_c", frame.TemperatureC,
		"soil", frame.SoilMoisture,
		"air_humidity", frame.AirHumidity,
		"light", frame.Light,
		"band", control.Classify(frame.TemperatureC, c.thresholds),
		"alert", cmd.Alert)

	c.notifyCycle(ctx, report)
}

func (c *Controller) notifyCycle(ctx context.Context, r Report) {
	for _, o := range c.observers {
		if err := o.Cycle(ctx, r); err != nil {
			c.logger.Warn("cycle observer failed", "error", err)
		}
	}
}

func (c *Controller) render(err error) {
	if err != nil {
		c.logger.Warn("display update skipped", "error", err)
	}
}
