// Package display renders controller screens on a two-line character LCD.
package display

import (
	"errors"
	"fmt"

	"furitingoasis/greenhouse/internal/sensors"
)

// Columns is the width of one LCD line.
const Columns = 16

var ErrDisplayFault = errors.New("display fault")

// Screen is a character display. A newline moves to the second line.
type Screen interface {
	Clear() error
	Write(text string) error
}

type Presenter struct {
	screen Screen
}

func New(screen Screen) *Presenter {
	return &Presenter{screen: screen}
}

// Banner is shown once while the controller boots.
func (p *Presenter) Banner() error {
	return p.show("Smart", "Greenhouse")
}

// Waiting is the idle screen shown until the next telemetry refresh.
func (p *Presenter) Waiting() error {
	return p.show("Waiting for", "sensor data...")
}

func (p *Presenter) ModeNotice(automatic bool) error {
	mode := "Manual"
	if automatic {
		mode = "Automatic"
	}
	return p.show("Mode "+mode, "Activated")
}

func (p *Presenter) Telemetry(f sensors.Frame) error {
	return p.show(TelemetryLines(f))
}

// TelemetryLines formats a frame for the LCD.
func TelemetryLines(f sensors.Frame) (string, string) {
	top := fmt.Sprintf("T:%.1fC H:%d%%", f.TemperatureC, HumidityPercent(f.AirHumidity))
	bottom := fmt.Sprintf("S:%d L:%d", f.SoilMoisture, f.Light)
	return top, bottom
}

// HumidityPercent converts a raw air humidity sample to a whole percentage.
func HumidityPercent(raw int) int {
	return int(float64(raw) / sensors.FullScale * 100)
}

func (p *Presenter) show(top, bottom string) error {
	if err := p.screen.Clear(); err != nil {
		return fmt.Errorf("%w: clear: %w", ErrDisplayFault, err)
	}
	if err := p.screen.Write(fit(top) + "\n" + fit(bottom)); err != nil {
		return fmt.Errorf("%w: write: %w", ErrDisplayFault, err)
	}
	return nil
}

func fit(line string) string {
	if len(line) > Columns {
		return line[:Columns]
	}
	return line
}
