package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"furitingoasis/greenhouse/internal/control"
	"furitingoasis/greenhouse/internal/sensors"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	now     time.Time
	sleeps  []time.Duration
	onSleep func()
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	if c.onSleep != nil {
		c.onSleep()
	}
}

type fakeButton struct {
	pressed bool
	err     error
	reads   int
}

func (b *fakeButton) Pressed() (bool, error) {
	b.reads++
	return b.pressed, b.err
}

type fakeSensors struct {
	frame   sensors.Frame
	err     error
	last    sensors.Frame
	hasLast bool
	reads   int
}

func (s *fakeSensors) ReadFrame() (sensors.Frame, error) {
	s.reads++
	if s.err != nil {
		return s.last, s.err
	}
	s.last, s.hasLast = s.frame, true
	return s.frame, nil
}

func (s *fakeSensors) Last() (sensors.Frame, bool) { return s.last, s.hasLast }

type fakePresenter struct {
	screens []string
	err     error
}

func (p *fakePresenter) add(s string) error {
	if p.err != nil {
		return p.err
	}
	p.screens = append(p.screens, s)
	return nil
}

func (p *fakePresenter) Banner() error  { return p.add("banner") }
func (p *fakePresenter) Waiting() error { return p.add("waiting") }
func (p *fakePresenter) ModeNotice(automatic bool) error {
	return p.add("mode:" + modeName(automatic))
}
func (p *fakePresenter) Telemetry(f sensors.Frame) error {
	return p.add(fmt.Sprintf("telemetry:%.1f", f.TemperatureC))
}

func (p *fakePresenter) last() string {
	if len(p.screens) == 0 {
		return ""
	}
	return p.screens[len(p.screens)-1]
}

type fakeSwitch struct {
	on    bool
	calls int
	err   error
}

func (s *fakeSwitch) On() error  { return s.set(true) }
func (s *fakeSwitch) Off() error { return s.set(false) }

func (s *fakeSwitch) set(on bool) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.on = on
	return nil
}

type fakeVent struct {
	open  bool
	calls int
}

func (v *fakeVent) Open() error {
	v.calls++
	v.open = true
	return nil
}

func (v *fakeVent) Close() error {
	v.calls++
	v.open = false
	return nil
}

type fakeObserver struct {
	cycles     []Report
	irrigation []IrrigationEvent
	modes      []ModeEvent
	err        error
}

func (o *fakeObserver) Cycle(_ context.Context, r Report) error {
	o.cycles = append(o.cycles, r)
	return o.err
}

func (o *fakeObserver) Irrigation(_ context.Context, e IrrigationEvent) error {
	o.irrigation = append(o.irrigation, e)
	return o.err
}

func (o *fakeObserver) ModeChanged(_ context.Context, e ModeEvent) error {
	o.modes = append(o.modes, e)
	return o.err
}

type rig struct {
	ctl     *Controller
	clock   *fakeClock
	button  *fakeButton
	sensors *fakeSensors
	display *fakePresenter
	heater  *fakeSwitch
	relay   *fakeSwitch
	light   *fakeSwitch
	alert   *fakeSwitch
	vent    *fakeVent
	obs     *fakeObserver
}

func (r *rig) actuatorCalls() int {
	return r.heater.calls + r.relay.calls + r.light.calls + r.alert.calls + r.vent.calls
}

func newRig(t *testing.T, frame sensors.Frame) *rig {
	t.Helper()
	r := &rig{
		clock:   &fakeClock{now: base},
		button:  &fakeButton{},
		sensors: &fakeSensors{frame: frame},
		display: &fakePresenter{},
		heater:  &fakeSwitch{},
		relay:   &fakeSwitch{},
		light:   &fakeSwitch{},
		alert:   &fakeSwitch{},
		vent:    &fakeVent{},
		obs:     &fakeObserver{},
	}
	ctl, err := New(Config{Thresholds: control.DefaultThresholds(), Timing: DefaultTiming()}, Deps{
		Button:  r.button,
		Sensors: r.sensors,
		Display: r.display,
		Actuators: Actuators{
			Heater:        r.heater,
			HumidityRelay: r.relay,
			GrowLight:     r.light,
			Alert:         r.alert,
			Vent:          r.vent,
		},
		Observers: []Observer{r.obs},
		Clock:     r.clock,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.ctl = ctl
	return r
}

func at(ms int) time.Time {
	return base.Add(time.Duration(ms) * time.Millisecond)
}

func TestInitialState(t *testing.T) {
	r := newRig(t, sensors.Frame{TemperatureC: 25})
	s := r.ctl.State()
	if !s.Automatic || s.NoticeActive {
		t.Fatalf("initial state: %+v", s)
	}
	if s.Mode() != "automatic" {
		t.Errorf("Mode() = %q", s.Mode())
	}
}

func TestMonitoringCadence(t *testing.T) {
	r := newRig(t, sensors.Frame{TemperatureC: 25, SoilMoisture: 500, Light: 700})
	ctx := context.Background()

	tests := []struct {
		ms      int
		monitor bool
	}{
		{ms: 50, monitor: false},
		{ms: 450, monitor: false},
		{ms: 500, monitor: true},
		{ms: 550, monitor: false},
		{ms: 950, monitor: false},
		{ms: 1000, monitor: true},
		{ms: 1600, monitor: true},
	}
	for _, tt := range tests {
		step := r.ctl.Tick(ctx, at(tt.ms))
		if step.Monitored != tt.monitor {
			t.Errorf("t=%dms: monitored=%v, want %v", tt.ms, step.Monitored, tt.monitor)
		}
		if step.Wait != 50*time.Millisecond {
			t.Errorf("t=%dms: wait %s, want 50ms", tt.ms, step.Wait)
		}
	}
	if r.sensors.reads != 3 {
		t.Errorf("expected 3 sensor reads, got %d", r.sensors.reads)
	}
	if len(r.obs.cycles) != 3 {
		t.Errorf("expected 3 cycle reports, got %d", len(r.obs.cycles))
	}
}

func TestAutomaticControl(t *testing.T) {
	tests := []struct {
		name   string
		frame  sensors.Frame
		heater bool
		relay  bool
		open   bool
		light  bool
		alert  bool
	}{
		{name: "hot", frame: sensors.Frame{TemperatureC: 30, SoilMoisture: 500, Light: 700}, relay: true, open: true, alert: true},
		{name: "cold", frame: sensors.Frame{TemperatureC: 18, SoilMoisture: 500, Light: 700}, heater: true, alert: true},
		{name: "dark", frame: sensors.Frame{TemperatureC: 25, SoilMoisture: 500, Light: 500}, light: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, tt.frame)
			r.ctl.Tick(context.Background(), at(500))

			if r.heater.on != tt.heater || r.relay.on != tt.relay || r.vent.open != tt.open ||
				r.light.on != tt.light || r.alert.on != tt.alert {
				t.Errorf("heater=%v relay=%v vent open=%v light=%v alert=%v",
					r.heater.on, r.relay.on, r.vent.open, r.light.on, r.alert.on)
			}
			want := fmt.Sprintf("telemetry:%.1f", tt.frame.TemperatureC)
			if r.display.last() != want {
				t.Errorf("display %q, want %q", r.display.last(), want)
			}
			rep := r.obs.cycles[0]
			if !rep.Actuated || rep.Stale || rep.Frame != tt.frame {
				t.Errorf("report: %+v", rep)
			}
		})
	}
}

func TestToggleSuspendsMonitoring(t *testing.T) {
	r := newRig(t, sensors.Frame{TemperatureC: 30, SoilMoisture: 500, Light: 700})
	ctx := context.Background()

	r.button.pressed = true
	step := r.ctl.Tick(ctx, at(600))
	r.button.pressed = false

	if !step.Toggled || step.Monitored {
		t.Fatalf("toggle tick: %+v", step)
	}
	if step.Wait != 250*time.Millisecond {
		t.Errorf("toggle tick wait %s, want 250ms", step.Wait)
	}
	if s := r.ctl.State(); s.Automatic || !s.NoticeActive || !s.NoticeStart.Equal(at(600)) {
		t.Fatalf("state after toggle: %+v", s)
	}
	if r.display.last() != "mode:manual" {
		t.Fatalf("display %q, want mode notice", r.display.last())
	}
	if len(r.obs.modes) != 1 || r.obs.modes[0].Automatic {
		t.Errorf("mode events: %+v", r.obs.modes)
	}

	screens := len(r.display.screens)
	for ms := 650; ms < 1600; ms += 50 {
		step := r.ctl.Tick(ctx, at(ms))
		if step.Monitored || step.NoticeEnded {
			t.Fatalf("t=%dms inside notice window: %+v", ms, step)
		}
	}
	if r.sensors.reads != 0 || r.actuatorCalls() != 0 {
		t.Errorf("monitoring ran during notice: reads=%d actuator calls=%d", r.sensors.reads, r.actuatorCalls())
	}
	if len(r.display.screens) != screens {
		t.Errorf("display changed during notice: %v", r.display.screens[screens:])
	}

	step = r.ctl.Tick(ctx, at(1600))
	if !step.NoticeEnded || !step.Monitored {
		t.Fatalf("first tick after notice: %+v", step)
	}
	got := r.display.screens[screens:]
	if len(got) != 2 || got[0] != "waiting" || got[1] != "telemetry:30.0" {
		t.Errorf("screens after notice: %v", got)
	}
	// Manual now: only the alert is driven.
	if r.alert.calls != 1 || !r.alert.on {
		t.Errorf("alert not driven in manual mode: %+v", r.alert)
	}
	if r.heater.calls+r.relay.calls+r.light.calls+r.vent.calls != 0 {
		t.Error("climate actuators driven in manual mode")
	}
}

func TestDebounce(t *testing.T) {
	r := newRig(t, sensors.Frame{TemperatureC: 25})
	ctx := context.Background()
	r.button.pressed = true

	r.ctl.Tick(ctx, at(1000))
	reads := r.button.reads
	r.ctl.Tick(ctx, at(1050))
	r.ctl.Tick(ctx, at(1150))
	r.ctl.Tick(ctx, at(1199))

	if s := r.ctl.State(); s.Automatic {
		t.Fatal("presses within 200ms flipped the mode twice")
	}
	if len(r.obs.modes) != 1 {
		t.Errorf("expected 1 mode change, got %d", len(r.obs.modes))
	}
	if r.button.reads != reads {
		t.Errorf("button sampled %d times inside the debounce window", r.button.reads-reads)
	}

	r.ctl.Tick(ctx, at(1200))
	if s := r.ctl.State(); !s.Automatic {
		t.Error("held button should toggle again once the debounce window ends")
	}
	if len(r.obs.modes) != 2 {
		t.Errorf("expected 2 mode changes, got %d", len(r.obs.modes))
	}
}

func TestManualModeKeepsLastCommand(t *testing.T) {
	r := newRig(t, sensors.Frame{TemperatureC: 18, SoilMoisture: 300, Light: 100})
	ctx := context.Background()

	r.ctl.Tick(ctx, at(500))
	if !r.heater.on || !r.light.on {
		t.Fatalf("automatic cycle did not drive actuators: heater=%v light=%v", r.heater.on, r.light.on)
	}
	if len(r.obs.irrigation) != 1 {
		t.Fatalf("expected 1 irrigation event, got %d", len(r.obs.irrigation))
	}

	r.button.pressed = true
	r.ctl.Tick(ctx, at(600))
	r.button.pressed = false

	r.sensors.frame = sensors.Frame{TemperatureC: 25, SoilMoisture: 300, Light: 900}
	calls := r.heater.calls + r.relay.calls + r.light.calls + r.vent.calls
	for ms := 1600; ms <= 3000; ms += 50 {
		r.ctl.Tick(ctx, at(ms))
	}

	if r.heater.calls+r.relay.calls+r.light.calls+r.vent.calls != calls {
		t.Error("manual mode wrote climate actuators")
	}
	if !r.heater.on || !r.light.on {
		t.Error("manual mode changed the last commanded state")
	}
	if r.alert.on {
		t.Error("alert should follow the reading in manual mode")
	}
	if len(r.obs.irrigation) != 1 {
		t.Errorf("irrigation fired in manual mode: %d events", len(r.obs.irrigation))
	}
	for _, rep := range r.obs.cycles[1:] {
		if rep.Actuated || rep.Automatic {
			t.Errorf("manual report marked actuated: %+v", rep)
		}
	}
}

func TestIrrigationOncePerCycle(t *testing.T) {
	r := newRig(t, sensors.Frame{TemperatureC: 25, SoilMoisture: 350, Light: 700})
	ctx := context.Background()

	for ms := 50; ms <= 2000; ms += 50 {
		r.ctl.Tick(ctx, at(ms))
	}
	if len(r.obs.cycles) != 4 {
		t.Fatalf("expected 4 cycles, got %d", len(r.obs.cycles))
	}
	if len(r.obs.irrigation) != 4 {
		t.Errorf("expected one irrigation event per cycle, got %d", len(r.obs.irrigation))
	}
	e := r.obs.irrigation[0]
	if e.SoilMoisture != 350 || e.Threshold != 400 || !e.At.Equal(at(500)) {
		t.Errorf("irrigation event: %+v", e)
	}
}

func TestSensorFaultHoldsActuators(t *testing.T) {
	r := newRig(t, sensors.Frame{TemperatureC: 30, SoilMoisture: 300, Light: 700})
	ctx := context.Background()

	r.ctl.Tick(ctx, at(500))
	calls := r.actuatorCalls()

	r.sensors.frame = sensors.Frame{TemperatureC: 10, SoilMoisture: 300, Light: 100}
	r.sensors.err = fmt.Errorf("%w: read soil", sensors.ErrSensorFault)
	step := r.ctl.Tick(ctx, at(1000))

	if !step.Monitored {
		t.Fatal("faulty cycle should still count as monitored")
	}
	if r.actuatorCalls() != calls {
		t.Errorf("actuators written on a sensor fault: %d calls", r.actuatorCalls()-calls)
	}
	if r.display.last() != "telemetry:30.0" {
		t.Errorf("display %q, want last good frame", r.display.last())
	}
	if len(r.obs.irrigation) != 1 {
		t.Errorf("irrigation fired on stale data: %d", len(r.obs.irrigation))
	}
	rep := r.obs.cycles[len(r.obs.cycles)-1]
	if !rep.Stale || rep.Actuated || rep.Frame.TemperatureC != 30 {
		t.Errorf("stale report: %+v", rep)
	}

	r.sensors.err = nil
	r.ctl.Tick(ctx, at(1500))
	if !r.heater.on || !r.light.on {
		t.Error("control did not resume after the fault cleared")
	}
}

func TestActuatorFaultDoesNotStopCycle(t *testing.T) {
	r := newRig(t, sensors.Frame{TemperatureC: 30, SoilMoisture: 500, Light: 100})
	r.relay.err = errors.New("gpio write failed")

	step := r.ctl.Tick(context.Background(), at(500))
	if !step.Monitored {
		t.Fatal("cycle aborted")
	}
	if !r.vent.open || !r.light.on || !r.alert.on {
		t.Errorf("other outputs not driven: vent=%v light=%v alert=%v", r.vent.open, r.light.on, r.alert.on)
	}
	if r.display.last() != "telemetry:30.0" {
		t.Errorf("display %q", r.display.last())
	}
}

func TestApplyClimateWrapsFault(t *testing.T) {
	a := Actuators{
		Heater:        &fakeSwitch{err: errors.New("boom")},
		HumidityRelay: &fakeSwitch{},
		GrowLight:     &fakeSwitch{},
		Alert:         &fakeSwitch{},
		Vent:          &fakeVent{},
	}
	err := a.applyClimate(control.Command{Heater: true})
	if !errors.Is(err, ErrActuatorFault) {
		t.Fatalf("expected ErrActuatorFault, got %v", err)
	}
}

func TestDisplayFaultSkipsRender(t *testing.T) {
	r := newRig(t, sensors.Frame{TemperatureC: 18, SoilMoisture: 500, Light: 700})
	r.display.err = errors.New("lcd gone")

	step := r.ctl.Tick(context.Background(), at(500))
	if !step.Monitored || !r.heater.on || !r.alert.on {
		t.Errorf("display fault interfered with control: step=%+v heater=%v", step, r.heater.on)
	}
}

func TestButtonErrorIgnored(t *testing.T) {
	r := newRig(t, sensors.Frame{TemperatureC: 25})
	r.button.pressed = true
	r.button.err = errors.New("pin read failed")

	if step := r.ctl.Tick(context.Background(), at(100)); step.Toggled {
		t.Error("button error should read as not pressed")
	}
}

func TestButtons(t *testing.T) {
	failing := &fakeButton{err: errors.New("nope")}
	idle := &fakeButton{}
	pressed := &fakeButton{pressed: true}

	if p, err := (Buttons{failing, pressed}).Pressed(); !p || err != nil {
		t.Errorf("any pressed: got %v, %v", p, err)
	}
	if p, err := (Buttons{failing, idle}).Pressed(); p || err == nil {
		t.Errorf("none pressed with failure: got %v, %v", p, err)
	}
	if p, err := (Buttons{idle}).Pressed(); p || err != nil {
		t.Errorf("idle: got %v, %v", p, err)
	}

	first, second := &fakeButton{pressed: true}, &fakeButton{}
	if p, _ := (Buttons{first, second}).Pressed(); !p {
		t.Error("expected pressed")
	}
	if second.reads != 1 {
		t.Errorf("every member should be read, second read %d times", second.reads)
	}
}

// latchButton reports a pending request once, like a remote toggle.
type latchButton struct {
	pending bool
}

func (l *latchButton) Pressed() (bool, error) {
	p := l.pending
	l.pending = false
	return p, nil
}

func TestSimultaneousPressesToggleOnce(t *testing.T) {
	r := newRig(t, sensors.Frame{TemperatureC: 25})
	remote := &latchButton{pending: true}
	r.ctl.button = Buttons{r.button, remote}
	ctx := context.Background()

	r.button.pressed = true
	r.ctl.Tick(ctx, at(0))
	r.button.pressed = false
	r.ctl.Tick(ctx, at(250))

	if len(r.obs.modes) != 1 {
		t.Fatalf("expected 1 mode change, got %d", len(r.obs.modes))
	}
	if r.ctl.State().Automatic {
		t.Error("mode should stay manual after one combined press")
	}
	if remote.pending {
		t.Error("remote request should be consumed by the first tick")
	}
}

func TestRun(t *testing.T) {
	r := newRig(t, sensors.Frame{TemperatureC: 25, SoilMoisture: 500, Light: 700})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r.clock.onSleep = func() {
		if r.clock.now.Sub(base) >= 3*time.Second {
			cancel()
		}
	}

	if err := r.ctl.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(r.display.screens) < 3 || r.display.screens[0] != "banner" || r.display.screens[1] != "waiting" {
		t.Fatalf("boot screens: %v", r.display.screens)
	}
	if r.clock.sleeps[0] != 1500*time.Millisecond {
		t.Errorf("splash sleep %s, want 1.5s", r.clock.sleeps[0])
	}
	for _, d := range r.clock.sleeps[1:] {
		if d != 50*time.Millisecond {
			t.Fatalf("idle sleep %s, want 50ms", d)
		}
	}
	// Ticks run from 1.5s to 2.95s; the first one monitors straight after
	// the splash, then at 2.0s and 2.5s.
	if len(r.obs.cycles) != 3 {
		t.Fatalf("expected 3 monitoring cycles, got %d", len(r.obs.cycles))
	}
	for i, want := range []time.Duration{1500 * time.Millisecond, 2 * time.Second, 2500 * time.Millisecond} {
		if got := r.obs.cycles[i].At.Sub(base); got != want {
			t.Errorf("cycle %d at %s, want %s", i, got, want)
		}
	}
	if r.display.screens[2] != "telemetry:25.0" {
		t.Errorf("first screen after waiting: %q, want telemetry", r.display.screens[2])
	}
}

func TestNewValidates(t *testing.T) {
	th := control.DefaultThresholds()
	th.TempMin = 40
	if _, err := New(Config{Thresholds: th, Timing: DefaultTiming()}, Deps{}, nil); err == nil {
		t.Error("expected threshold validation error")
	}

	if _, err := New(Config{Thresholds: control.DefaultThresholds(), Timing: Timing{}}, Deps{}, nil); err == nil {
		t.Error("expected timing validation error")
	}

	deps := Deps{Button: &fakeButton{}, Sensors: &fakeSensors{}, Display: &fakePresenter{}}
	if _, err := New(Config{Thresholds: control.DefaultThresholds(), Timing: DefaultTiming()}, deps, nil); err == nil {
		t.Error("expected error for missing actuators")
	}
}
