package bus

import (
	"context"
	"sync"
)

type MessageBus struct {
	events   chan MessageEvent
	outbound chan OutboundMessage
	signals  chan Signal
	handlers map[string]MessageHandler
	closed   bool
	mu       sync.RWMutex
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		events:   make(chan MessageEvent, 100),
		outbound: make(chan OutboundMessage, 100),
		signals:  make(chan Signal, 100),
		handlers: make(map[string]MessageHandler),
	}
}

func (mb *MessageBus) PublishEvent(evt MessageEvent) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return
	}
	mb.events <- evt
}

func (mb *MessageBus) ConsumeEvent(ctx context.Context) (MessageEvent, bool) {
	select {
	case evt, ok := <-mb.events:
		if !ok {
			return MessageEvent{}, false
		}
		return evt, true
	case <-ctx.Done():
		return MessageEvent{}, false
	}
}

func (mb *MessageBus) PublishOutbound(msg OutboundMessage) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return
	}
	mb.outbound <- msg
}

func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg, ok := <-mb.outbound:
		if !ok {
			return OutboundMessage{}, false
		}
		return msg, true
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}

func (mb *MessageBus) PublishSignal(sig Signal) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return
	}
	mb.signals <- sig
}

func (mb *MessageBus) ConsumeSignal(ctx context.Context) (Signal, bool) {
	select {
	case sig, ok := <-mb.signals:
		if !ok {
			return Signal{}, false
		}
		return sig, true
	case <-ctx.Done():
		return Signal{}, false
	}
}

func (mb *MessageBus) RegisterHandler(channel string, handler MessageHandler) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.handlers[channel] = handler
}

func (mb *MessageBus) GetHandler(channel string) (MessageHandler, bool) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	handler, ok := mb.handlers[channel]
	return handler, ok
}

func (mb *MessageBus) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return
	}
	mb.closed = true
	close(mb.events)
	close(mb.outbound)
	close(mb.signals)
}
