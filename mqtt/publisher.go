package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"furitingoasis/greenhouse/internal/controller"
	"furitingoasis/greenhouse/internal/sensors"
)

// Topic suffixes under the configured prefix.
const (
	TopicTelemetry  = "telemetry"
	TopicIrrigation = "irrigation"
	TopicMode       = "mode"
	TopicAlerts     = "alerts"
	TopicToggle     = "toggle"
)

type publisher interface {
	Publish(topic string, payload []byte)
}

// Publisher forwards controller events to the broker.
type Publisher struct {
	client publisher
	prefix string
	alert  bool
}

var _ controller.Observer = (*Publisher)(nil)

func NewPublisher(client *Client, prefix string) *Publisher {
	return &Publisher{client: client, prefix: prefix}
}

// Topic joins the prefix and a suffix.
func Topic(prefix, suffix string) string {
	return prefix + "/" + suffix
}

// Alert is published when the alert indicator changes.
type Alert struct {
	At    time.Time     `json:"at"`
	On    bool          `json:"on"`
	Frame sensors.Frame `json:"frame"`
}

func (p *Publisher) Cycle(_ context.Context, r controller.Report) error {
	if err := p.send(TopicTelemetry, r); err != nil {
		return err
	}
	if r.Stale || r.Command.Alert == p.alert {
		return nil
	}
	p.alert = r.Command.Alert
	return p.send(TopicAlerts, Alert{At: r.At, On: r.Command.Alert, Frame: r.Frame})
}

func (p *Publisher) Irrigation(_ context.Context, e controller.IrrigationEvent) error {
	return p.send(TopicIrrigation, e)
}

func (p *Publisher) ModeChanged(_ context.Context, e controller.ModeEvent) error {
	return p.send(TopicMode, e)
}

func (p *Publisher) send(suffix string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", suffix, err)
	}
	p.client.Publish(Topic(p.prefix, suffix), payload)
	return nil
}

// ToggleLatch records remote toggle requests until the control loop reads
// them. It satisfies controller.Button.
type ToggleLatch struct {
	pending atomic.Bool
}

func (l *ToggleLatch) Request() {
	l.pending.Store(true)
}

// Pressed reports a pending request once and clears it.
func (l *ToggleLatch) Pressed() (bool, error) {
	return l.pending.Swap(false), nil
}

// SubscribeToggle latches every message on <prefix>/toggle.
func (c *Client) SubscribeToggle(prefix string, latch *ToggleLatch) error {
	return c.Subscribe(Topic(prefix, TopicToggle), func([]byte) {
		c.logger.Info("remote mode toggle requested")
		latch.Request()
	})
}
