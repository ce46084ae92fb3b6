package channels

import (
	"context"
	"sync"

	"pagerelay/pkg/bus"
	"pagerelay/pkg/logger"
)

// Channel is a platform adapter: it feeds inbound platform traffic onto the
// bus as canonical events and delivers outbound messages back to the
// platform.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
}

// BaseChannel carries the plumbing every channel shares: its name, the bus
// handle and the running flag.
type BaseChannel struct {
	name    string
	bus     bus.Broker
	mu      sync.RWMutex
	running bool
}

func NewBaseChannel(name string, b bus.Broker) *BaseChannel {
	return &BaseChannel{name: name, bus: b}
}

func (b *BaseChannel) Name() string { return b.name }

func (b *BaseChannel) setRunning(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = v
}

func (b *BaseChannel) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// PublishEvent places a canonical message event on the bus.
func (b *BaseChannel) PublishEvent(evt bus.MessageEvent) {
	logger.DebugCF(b.name, "Publishing message event", map[string]interface{}{
		"message_id": evt.MessageID,
		"from":       evt.From,
	})
	b.bus.PublishEvent(evt)
}

// PublishSignal surfaces an adapter lifecycle signal to operators.
func (b *BaseChannel) PublishSignal(sig bus.Signal) {
	b.bus.PublishSignal(sig)
}
