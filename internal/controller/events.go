package controller

import (
	"context"
	"time"

	"furitingoasis/greenhouse/internal/control"
	"furitingoasis/greenhouse/internal/sensors"
)

// Report summarises one monitoring cycle. Actuated is false in manual mode
// and on a sensor fault; Stale marks a cycle that reused the last good frame.
type Report struct {
	At        time.Time       `json:"at"`
	Automatic bool            `json:"automatic"`
	Frame     sensors.Frame   `json:"frame"`
	Command   control.Command `json:"command"`
	Actuated  bool            `json:"actuated"`
	Stale     bool            `json:"stale"`
}

// IrrigationEvent is raised once for every automatic cycle that finds the
// soil drier than the threshold.
type IrrigationEvent struct {
	At           time.Time `json:"at"`
	SoilMoisture int       `json:"soil_moisture"`
	Threshold    int       `json:"threshold"`
}

type ModeEvent struct {
	At        time.Time `json:"at"`
	Automatic bool      `json:"automatic"`
}

// Observer receives loop events. Implementations are called from the loop
// goroutine and must return quickly.
type Observer interface {
	Cycle(ctx context.Context, r Report) error
	Irrigation(ctx context.Context, e IrrigationEvent) error
	ModeChanged(ctx context.Context, e ModeEvent) error
}

// LogObserver writes irrigation requests to a logger. It is the default
// irrigation sink when no pump or broker is wired.
type LogObserver struct {
	Logger Logger
}

// Logger is satisfied by *log.Logger.
type Logger interface {
	Printf(string, ...any)
}

func (l LogObserver) Cycle(context.Context, Report) error { return nil }

func (l LogObserver) Irrigation(_ context.Context, e IrrigationEvent) error {
	l.Logger.Printf("irrigation pump requested: soil moisture %d below %d", e.SoilMoisture, e.Threshold)
	return nil
}

func (l LogObserver) ModeChanged(_ context.Context, e ModeEvent) error {
	l.Logger.Printf("mode %s activated", modeName(e.Automatic))
	return nil
}
