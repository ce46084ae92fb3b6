package gateway

import (
	"context"

	"pagerelay/pkg/bus"
	"pagerelay/pkg/logger"
)

// Sender delivers an outbound message to its platform.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

// Relay pumps the bus: outbound messages go to the sender, canonical events
// go to whatever handler is registered for their channel, and adapter
// signals are surfaced in the logs for operators.
type Relay struct {
	bus    bus.Broker
	sender Sender
}

func NewRelay(b bus.Broker, sender Sender) *Relay {
	return &Relay{bus: b, sender: sender}
}

// Run blocks until ctx is cancelled or the bus closes. A failed send is
// logged and the loop keeps going; one bad message never stalls the relay.
func (r *Relay) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		for {
			sig, ok := r.bus.ConsumeSignal(ctx)
			if !ok {
				return
			}
			r.handleSignal(sig)
		}
	}()

	go func() {
		for {
			evt, ok := r.bus.ConsumeEvent(ctx)
			if !ok {
				return
			}
			r.dispatchEvent(evt)
		}
	}()

	for {
		msg, ok := r.bus.SubscribeOutbound(ctx)
		if !ok {
			return nil
		}
		if err := r.sender.Send(ctx, msg); err != nil {
			logger.ErrorCF("gateway", "Outbound send failed", map[string]interface{}{
				"channel":      msg.Channel,
				"recipient_id": msg.RecipientID,
				"error":        err.Error(),
			})
		}
	}
}

func (r *Relay) dispatchEvent(evt bus.MessageEvent) {
	handler, ok := r.bus.GetHandler(evt.Channel)
	if !ok {
		logger.DebugCF("gateway", "No handler registered for channel", map[string]interface{}{
			"channel":    evt.Channel,
			"message_id": evt.MessageID,
		})
		return
	}
	if err := handler(evt); err != nil {
		logger.ErrorCF("gateway", "Event handler failed", map[string]interface{}{
			"channel":    evt.Channel,
			"message_id": evt.MessageID,
			"error":      err.Error(),
		})
	}
}

func (r *Relay) handleSignal(sig bus.Signal) {
	switch sig.Kind {
	case bus.SignalReady:
		logger.InfoC("gateway", "Channel reported ready")
	case bus.SignalAuthFailure:
		logger.ErrorC("gateway", "Channel reported authentication failure")
		for _, line := range sig.Instructions {
			logger.ErrorC("gateway", line)
		}
	}
}
