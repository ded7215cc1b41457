// Package control holds the threshold laws that map a sensor frame to
// actuator commands. Every function here is pure.
package control

import (
	"errors"
	"fmt"

	"furitingoasis/greenhouse/internal/sensors"
)

// Thresholds are the target ranges. AirHumidityMin is carried for display
// and reporting; no law reads it.
type Thresholds struct {
	TempMin        float64 `yaml:"temp_min" json:"temp_min"`
	TempMax        float64 `yaml:"temp_max" json:"temp_max"`
	AirHumidityMin float64 `yaml:"air_humidity_min" json:"air_humidity_min"`
	SoilDry        int     `yaml:"soil_dry" json:"soil_dry"`
	LightMin       int     `yaml:"light_min" json:"light_min"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		TempMin:        22.0,
		TempMax:        28.0,
		AirHumidityMin: 60.0,
		SoilDry:        400,
		LightMin:       600,
	}
}

func (t Thresholds) Validate() error {
	var errs []error
	if t.TempMin > t.TempMax {
		errs = append(errs, fmt.Errorf("temp_min %.1f above temp_max %.1f", t.TempMin, t.TempMax))
	}
	if t.SoilDry < 0 || t.SoilDry > sensors.FullScale {
		errs = append(errs, fmt.Errorf("soil_dry %d outside [0, %d]", t.SoilDry, sensors.FullScale))
	}
	if t.LightMin < 0 || t.LightMin > sensors.FullScale {
		errs = append(errs, fmt.Errorf("light_min %d outside [0, %d]", t.LightMin, sensors.FullScale))
	}
	return errors.Join(errs...)
}

// Vent is the window servo position. Only full travel is used.
type Vent uint8

const (
	VentClosed Vent = iota
	VentOpen
)

func (v Vent) String() string {
	if v == VentOpen {
		return "open"
	}
	return "closed"
}

func (v Vent) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// Band is where a temperature falls relative to the target range.
type Band uint8

const (
	BandNeutral Band = iota
	BandCold
	BandHot
)

func (b Band) String() string {
	switch b {
	case BandCold:
		return "cold"
	case BandHot:
		return "hot"
	default:
		return "neutral"
	}
}

// Classify uses strict comparisons, so both bounds belong to the neutral band.
func Classify(tempC float64, t Thresholds) Band {
	switch {
	case tempC > t.TempMax:
		return BandHot
	case tempC < t.TempMin:
		return BandCold
	default:
		return BandNeutral
	}
}

// Climate is the outcome of the temperature law.
type Climate struct {
	Heater        bool
	HumidityRelay bool
	Vent          Vent
}

func TemperatureLaw(tempC float64, t Thresholds) Climate {
	switch Classify(tempC, t) {
	case BandHot:
		return Climate{HumidityRelay: true, Vent: VentOpen}
	case BandCold:
		return Climate{Heater: true, Vent: VentClosed}
	default:
		return Climate{Vent: VentClosed}
	}
}

func IrrigationNeeded(soil int, t Thresholds) bool {
	return soil < t.SoilDry
}

func GrowLightOn(light int, t Thresholds) bool {
	return light < t.LightMin
}

// AlertOn reports whether the temperature is outside the target range.
func AlertOn(tempC float64, t Thresholds) bool {
	return Classify(tempC, t) != BandNeutral
}

// Command is the full set of actuator states for one frame. Irrigate is a
// decision signal only; no pump is driven from it.
type Command struct {
	Heater        bool `json:"heater"`
	Vent          Vent `json:"vent"`
	HumidityRelay bool `json:"humidity_relay"`
	GrowLight     bool `json:"grow_light"`
	Alert         bool `json:"alert"`
	Irrigate      bool `json:"irrigate"`
}

func Evaluate(f sensors.Frame, t Thresholds) Command {
	c := TemperatureLaw(f.TemperatureC, t)
	return Command{
		Heater:        c.Heater,
		Vent:          c.Vent,
		HumidityRelay: c.HumidityRelay,
		GrowLight:     GrowLightOn(f.Light, t),
		Alert:         AlertOn(f.TemperatureC, t),
		Irrigate:      IrrigationNeeded(f.SoilMoisture, t),
	}
}
