package controller

import (
	"errors"
	"fmt"

	"furitingoasis/greenhouse/internal/control"
)

var ErrActuatorFault = errors.New("actuator fault")

// Switch is an on/off output such as a relay or an LED.
type Switch interface {
	On() error
	Off() error
}

// Vent is the window actuator, driven to either end of its travel.
type Vent interface {
	Open() error
	Close() error
}

type Actuators struct {
	Heater        Switch
	HumidityRelay Switch
	GrowLight     Switch
	Alert         Switch
	Vent          Vent
}

func (a Actuators) validate() error {
	if a.Heater == nil || a.HumidityRelay == nil || a.GrowLight == nil || a.Alert == nil || a.Vent == nil {
		return errors.New("every actuator must be wired")
	}
	return nil
}

// applyClimate drives heater, humidity relay, vent and grow light. It keeps
// going after a failure so one bad output does not freeze the others.
func (a Actuators) applyClimate(c control.Command) error {
	var errs []error
	errs = append(errs, set("heater", a.Heater, c.Heater))
	errs = append(errs, set("humidity_relay", a.HumidityRelay, c.HumidityRelay))
	errs = append(errs, a.setVent(c.Vent))
	errs = append(errs, set("grow_light", a.GrowLight, c.GrowLight))
	return errors.Join(errs...)
}

func (a Actuators) applyAlert(on bool) error {
	return set("alert", a.Alert, on)
}

func (a Actuators) setVent(v control.Vent) error {
	var err error
	if v == control.VentOpen {
		err = a.Vent.Open()
	} else {
		err = a.Vent.Close()
	}
	if err != nil {
		return fmt.Errorf("%w: vent %s: %w", ErrActuatorFault, v, err)
	}
	return nil
}

func set(name string, s Switch, on bool) error {
	var err error
	if on {
		err = s.On()
	} else {
		err = s.Off()
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrActuatorFault, name, err)
	}
	return nil
}
