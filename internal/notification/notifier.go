// Package notification provides alert delivery to external channels
// (Telegram, generic HTTP webhooks, or the log) for trading events.
package notification

import (
	"context"
	"fmt"
	"log"

	"livestratexec/internal/emitter"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// ObserverBridge adapts a Notifier into an emitter.Observer, so it can be
// registered directly with the engine's Emitter (spec §4.8) instead of
// requiring a separate polling loop over engine state. Errors always alert;
// opened-position events alert every time they are emitted; execution
// results never alert, including the snapshot after a position closes.
type ObserverBridge struct {
	notifier Notifier
	ctx      context.Context
}

// NewObserverBridge wraps a Notifier for registration with an emitter.Emitter.
func NewObserverBridge(ctx context.Context, n Notifier) *ObserverBridge {
	return &ObserverBridge{notifier: n, ctx: ctx}
}

func (b *ObserverBridge) OnError(err error) {
	alert := Alert{Level: AlertCritical, Title: "engine error", Message: err.Error()}
	if sendErr := b.notifier.Send(b.ctx, alert); sendErr != nil {
		log.Printf("[notify] failed to deliver error alert: %v", sendErr)
	}
}

func (b *ObserverBridge) OnOpenedPosition(evt emitter.OpenedPosition) {
	alert := Alert{
		Level:   AlertInfo,
		Title:   fmt.Sprintf("position opened: %s", evt.Symbol),
		Message: fmt.Sprintf("qty=%.4f avg_price=%.4f", evt.Position.Qty, evt.Position.AvgPrice),
	}
	if err := b.notifier.Send(b.ctx, alert); err != nil {
		log.Printf("[notify] failed to deliver position alert: %v", err)
	}
}

func (b *ObserverBridge) OnExecutionResults(snap emitter.Snapshot) {
	// routine per-candle results are not alert-worthy; a strategy's own
	// notable events (errors, opened positions) already flow through the
	// other two hooks.
}

var _ emitter.Observer = (*ObserverBridge)(nil)
