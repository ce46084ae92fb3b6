package bus

import "context"

type Publisher interface {
	PublishEvent(MessageEvent)
	PublishOutbound(OutboundMessage)
	PublishSignal(Signal)
}

type Subscriber interface {
	ConsumeEvent(context.Context) (MessageEvent, bool)
	SubscribeOutbound(context.Context) (OutboundMessage, bool)
	ConsumeSignal(context.Context) (Signal, bool)
}

type Broker interface {
	Publisher
	Subscriber
	RegisterHandler(channel string, handler MessageHandler)
	GetHandler(channel string) (MessageHandler, bool)
	Close()
}
