package hardware

import (
	"fmt"
	"math"
	"strconv"

	"furitingoasis/greenhouse/internal/sensors"
)

type digitalReader interface {
	DigitalRead(pin string) (int, error)
}

type onOff interface {
	On() error
	Off() error
}

type servo interface {
	ToMin() error
	ToMax() error
}

type voltmeter interface {
	ReadWithDefaults(channel int) (float64, error)
}

// pinButton reads the mode button straight from the adaptor. With activeLow
// the input idles high on its pull-up and a press pulls it to ground.
type pinButton struct {
	r         digitalReader
	pin       string
	activeLow bool
}

func (b pinButton) Pressed() (bool, error) {
	v, err := b.r.DigitalRead(b.pin)
	if err != nil {
		return false, fmt.Errorf("button pin %s: %w", b.pin, err)
	}
	if b.activeLow {
		return v == 0, nil
	}
	return v == 1, nil
}

// relaySwitch inverts On and Off for relay boards that energise on a low pin.
type relaySwitch struct {
	relay     onOff
	activeLow bool
}

func (s relaySwitch) On() error {
	if s.activeLow {
		return s.relay.Off()
	}
	return s.relay.On()
}

func (s relaySwitch) Off() error {
	if s.activeLow {
		return s.relay.On()
	}
	return s.relay.Off()
}

type servoVent struct {
	servo servo
}

func (v servoVent) Open() error  { return v.servo.ToMax() }
func (v servoVent) Close() error { return v.servo.ToMin() }

// adcChannels presents ADS1115 channels as 16-bit counts. The driver returns
// volts, which are scaled against the reference voltage.
type adcChannels struct {
	adc       voltmeter
	reference float64
}

func (a adcChannels) AnalogRead(pin string) (int, error) {
	ch, err := strconv.Atoi(pin)
	if err != nil || ch < 0 || ch > 3 {
		return 0, fmt.Errorf("invalid ADS1115 channel %q", pin)
	}
	volts, err := a.adc.ReadWithDefaults(ch)
	if err != nil {
		return 0, err
	}
	return countsFromVolts(volts, a.reference), nil
}

func countsFromVolts(volts, reference float64) int {
	return int(math.Round(volts / reference * sensors.FullScale))
}
