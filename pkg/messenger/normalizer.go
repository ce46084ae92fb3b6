package messenger

import (
	"fmt"

	"pagerelay/pkg/bus"
	"pagerelay/pkg/logger"
)

const ChannelName = "messenger"

// objectPage is the discriminator value for page-scoped webhook deliveries.
// Anything else (instagram, permissions callbacks) is not ours to translate.
const objectPage = "page"

// Placeholder bodies for non-text content. A downstream consumer seeing one
// of these knows to fetch the event's MediaURL via SaveMedia.
const (
	EventMedia     = "_event_media_"
	EventVoiceNote = "_event_voice_note_"
	EventDocument  = "_event_document_"
	EventLocation  = "_event_location_"
)

// Sink receives each canonical event as soon as it is built.
type Sink func(bus.MessageEvent)

// Normalizer translates raw webhook payloads into canonical message events.
// It is stateless and does no I/O of its own; emission happens through the
// injected sink.
type Normalizer struct {
	sink Sink
}

func NewNormalizer(sink Sink) (*Normalizer, error) {
	if sink == nil {
		return nil, fmt.Errorf("normalizer requires a sink")
	}
	return &Normalizer{sink: sink}, nil
}

// Normalize walks the payload in arrival order and emits zero or more
// canonical events. It never fails: webhook delivery cannot be trusted to be
// well-formed, so malformed or partial input just produces fewer events.
func (n *Normalizer) Normalize(payload WebhookPayload) {
	if payload.Object != objectPage || len(payload.Entry) == 0 {
		return
	}

	for _, entry := range payload.Entry {
		for _, ev := range entry.Messaging {
			switch {
			case ev.Message != nil:
				n.sink(normalizeMessage(ev))
			case ev.Postback != nil:
				n.sink(normalizePostback(ev))
			default:
				// Delivery receipts, read events and other callback
				// fields we are not subscribed to.
			}
		}
	}
}

func normalizeMessage(ev MessagingEvent) bus.MessageEvent {
	out := bus.MessageEvent{
		Channel:   ChannelName,
		Body:      ev.Message.Text,
		From:      ev.Sender.ID,
		Name:      "", // the webhook payload carries no display name
		HostID:    ev.Recipient.ID,
		Timestamp: ev.Timestamp,
		MessageID: ev.Message.MID,
	}

	if len(ev.Message.Attachments) > 0 {
		// Only the first attachment decides the body; multi-attachment
		// messages are not split into separate events.
		att := ev.Message.Attachments[0]
		out.MediaURL = att.Payload.URL

		switch att.Type {
		case AttachmentImage, AttachmentVideo:
			out.Body = EventMedia
		case AttachmentAudio:
			out.Body = EventVoiceNote
		case AttachmentFile:
			out.Body = EventDocument
		case AttachmentLocation:
			out.Body = EventLocation
		default:
			// Unrecognized attachment type: keep whatever text came with
			// the message so the event still carries something usable.
			logger.DebugCF(ChannelName, "Ignoring unrecognized attachment type", map[string]interface{}{
				"type": string(att.Type),
				"mid":  ev.Message.MID,
			})
		}
	}

	return out
}

// normalizePostback maps a button press to a canonical event. Postbacks have
// no native message id, so one is synthesized from the timestamp.
func normalizePostback(ev MessagingEvent) bus.MessageEvent {
	return bus.MessageEvent{
		Channel:   ChannelName,
		Body:      ev.Postback.Payload,
		From:      ev.Sender.ID,
		Name:      "",
		HostID:    ev.Recipient.ID,
		Timestamp: ev.Timestamp,
		MessageID: fmt.Sprintf("postback_%d", ev.Timestamp),
	}
}
