package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"gobot.io/x/gobot/v2"

	"furitingoasis/greenhouse/internal/config"
	"furitingoasis/greenhouse/internal/controller"
	"furitingoasis/greenhouse/internal/display"
	"furitingoasis/greenhouse/internal/hardware"
	"furitingoasis/greenhouse/internal/history"
	"furitingoasis/greenhouse/mqtt"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Error loading configuration", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("controller exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	board, err := hardware.Open(cfg.Pins, logger)
	if err != nil {
		return fmt.Errorf("open board: %w", err)
	}
	if err := board.Start(); err != nil {
		return fmt.Errorf("start board: %w", err)
	}
	defer board.Stop()

	buttons := controller.Buttons{board.Button}
	observers := []controller.Observer{
		controller.LogObserver{Logger: slog.NewLogLogger(logger.Handler(), slog.LevelInfo)},
	}

	// History and MQTT are optional. Failing to reach either only disables it.
	if cfg.History.Enabled() {
		store, err := history.Open(cfg.History.Path, cfg.History.WriteTimeout, logger)
		if err != nil {
			logger.Warn("history disabled", "error", err)
		} else {
			defer store.Close()
			observers = append(observers, store)

			store.PruneOlderThan(cfg.History.Retention)
			pruner := gobot.Every(cfg.History.PruneInterval, func() {
				store.PruneOlderThan(cfg.History.Retention)
			})
			defer pruner.Stop()
		}
	}

	if cfg.MQTT.Enabled() {
		client, err := mqtt.NewClient(mqtt.MQTTConfig{
			BrokerURL:     cfg.MQTT.Broker,
			ClientID:      cfg.MQTT.ClientID,
			Username:      cfg.MQTT.Username,
			Password:      cfg.MQTT.Password,
			AutoReconnect: true,
			MaxRetries:    cfg.MQTT.MaxRetries,
			RetryInterval: cfg.MQTT.RetryInterval,
		}, logger)
		if err != nil {
			logger.Warn("mqtt disabled", "error", err)
		} else {
			defer client.Close()
			observers = append(observers, mqtt.NewPublisher(client, cfg.MQTT.TopicPrefix))

			latch := &mqtt.ToggleLatch{}
			if err := client.SubscribeToggle(cfg.MQTT.TopicPrefix, latch); err != nil {
				logger.Warn("remote toggle disabled", "error", err)
			} else {
				buttons = append(buttons, latch)
			}
		}
	}

	ctrl, err := controller.New(
		controller.Config{Thresholds: cfg.Thresholds, Timing: cfg.Timing},
		controller.Deps{
			Button:    buttons,
			Sensors:   board.Sensors,
			Display:   display.New(board.LCD),
			Actuators: board.Actuators,
			Observers: observers,
		},
		logger,
	)
	if err != nil {
		return fmt.Errorf("create controller: %w", err)
	}

	return ctrl.Run(ctx)
}
