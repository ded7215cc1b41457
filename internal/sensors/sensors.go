// Package sensors turns the four analog greenhouse channels into one
// Frame per monitoring cycle.
package sensors

import (
	"errors"
	"fmt"
)

// Calibration of the TMP36-style temperature probe on a 16-bit ADC.
const (
	FullScale      = 65535
	ReferenceVolts = 3.3
	OffsetVolts    = 0.5
	DegreesPerVolt = 100.0
)

// ErrSensorFault is wrapped by every error returned from ReadFrame.
var ErrSensorFault = errors.New("sensor fault")

// Frame is one consistent sample of every sensor.
type Frame struct {
	TemperatureC float64 `json:"temperature_c"`
	SoilMoisture int     `json:"soil_moisture"`
	AirHumidity  int     `json:"air_humidity"`
	Light        int     `json:"light"`
}

// AnalogReader reads a raw sample in [0, FullScale] from a named pin.
type AnalogReader interface {
	AnalogRead(pin string) (int, error)
}

// Channels maps each quantity to its analog pin.
type Channels struct {
	Temperature string `yaml:"temperature"`
	Soil        string `yaml:"soil"`
	AirHumidity string `yaml:"air_humidity"`
	Light       string `yaml:"light"`
}

type Reader struct {
	adc     AnalogReader
	ch      Channels
	last    Frame
	hasLast bool
}

func NewReader(adc AnalogReader, ch Channels) *Reader {
	return &Reader{adc: adc, ch: ch}
}

// CelsiusFromRaw applies the probe's affine calibration.
func CelsiusFromRaw(raw int) float64 {
	voltage := float64(raw) / FullScale * ReferenceVolts
	return (voltage - OffsetVolts) * DegreesPerVolt
}

// ReadFrame samples temperature, soil, air humidity and light in that order.
// On failure it returns the last good frame together with an error wrapping
// ErrSensorFault.
func (r *Reader) ReadFrame() (Frame, error) {
	temp, err := r.sample("temperature", r.ch.Temperature)
	if err != nil {
		return r.last, err
	}
	soil, err := r.sample("soil", r.ch.Soil)
	if err != nil {
		return r.last, err
	}
	air, err := r.sample("air_humidity", r.ch.AirHumidity)
	if err != nil {
		return r.last, err
	}
	light, err := r.sample("light", r.ch.Light)
	if err != nil {
		return r.last, err
	}

	f := Frame{
		TemperatureC: CelsiusFromRaw(temp),
		SoilMoisture: soil,
		AirHumidity:  air,
		Light:        light,
	}
	r.last = f
	r.hasLast = true
	return f, nil
}

// Last returns the most recent frame read without a fault.
func (r *Reader) Last() (Frame, bool) {
	return r.last, r.hasLast
}

func (r *Reader) sample(name, pin string) (int, error) {
	v, err := r.adc.AnalogRead(pin)
	if err != nil {
		return 0, fmt.Errorf("%w: read %s (pin %s): %w", ErrSensorFault, name, pin, err)
	}
	if v < 0 || v > FullScale {
		return 0, fmt.Errorf("%w: %s sample %d out of range", ErrSensorFault, name, v)
	}
	return v, nil
}
