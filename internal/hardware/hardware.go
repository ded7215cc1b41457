// Package hardware wires the greenhouse peripherals to a Raspberry Pi using
// gobot: relays, the alert LED and the vent servo on GPIO, the ADS1115
// converter and the JHD1313M1 LCD on I2C.
package hardware

import (
	"errors"
	"log/slog"

	"gobot.io/x/gobot/v2"
	"gobot.io/x/gobot/v2/drivers/gpio"
	"gobot.io/x/gobot/v2/drivers/i2c"
	"gobot.io/x/gobot/v2/platforms/adaptors"
	"gobot.io/x/gobot/v2/platforms/raspi"

	"furitingoasis/greenhouse/internal/config"
	"furitingoasis/greenhouse/internal/controller"
	"furitingoasis/greenhouse/internal/sensors"
)

// Board holds the robot and the controller-facing views of its devices.
// Nothing may be used before Start.
type Board struct {
	Robot     *gobot.Robot
	Button    controller.Button
	Sensors   *sensors.Reader
	LCD       *i2c.JHD1313M1Driver
	Actuators controller.Actuators

	logger *slog.Logger
}

func Open(p config.Pins, logger *slog.Logger) (*Board, error) {
	if p.ADCReference <= 0 {
		return nil, errors.New("adc reference voltage must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := raspi.NewAdaptor(adaptorOptions(p)...)
	adc := i2c.NewADS1115Driver(r)
	lcd := i2c.NewJHD1313M1Driver(r)
	heater := gpio.NewRelayDriver(r, p.Heater)
	humidity := gpio.NewRelayDriver(r, p.HumidityRelay)
	growLight := gpio.NewRelayDriver(r, p.GrowLight)
	alert := gpio.NewLedDriver(r, p.Alert)
	vent := gpio.NewServoDriver(r, p.Vent)

	robot := gobot.NewRobot("GreenhouseController",
		[]gobot.Connection{r},
		[]gobot.Device{adc, lcd, heater, humidity, growLight, alert, vent},
	)

	return &Board{
		Robot:   robot,
		Button:  pinButton{r: r, pin: p.Button, activeLow: p.ButtonActiveLow},
		Sensors: sensors.NewReader(adcChannels{adc: adc, reference: p.ADCReference}, p.Analog),
		LCD:     lcd,
		Actuators: controller.Actuators{
			Heater:        relaySwitch{relay: heater, activeLow: p.RelayActiveLow},
			HumidityRelay: relaySwitch{relay: humidity, activeLow: p.RelayActiveLow},
			GrowLight:     relaySwitch{relay: growLight, activeLow: p.RelayActiveLow},
			Alert:         alert,
			Vent:          servoVent{servo: vent},
		},
		logger: logger.With(slog.String("component", "hardware")),
	}, nil
}

// adaptorOptions enables the internal pull-up on an active-low button so the
// input idles high instead of floating.
func adaptorOptions(p config.Pins) []any {
	var opts []any
	if p.ButtonActiveLow {
		opts = append(opts, adaptors.WithGpiosPullUp(p.Button))
	}
	return opts
}

// Start connects the adaptor and starts every driver without running a
// work loop; the controller drives the devices itself.
func (b *Board) Start() error {
	if err := b.Robot.Start(false); err != nil {
		return err
	}
	b.logger.Info("board started", "robot", b.Robot.Name)
	return nil
}

func (b *Board) Stop() {
	if err := b.Robot.Stop(); err != nil {
		b.logger.Warn("board stop failed", "error", err)
	}
}
