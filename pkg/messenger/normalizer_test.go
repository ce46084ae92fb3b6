package messenger

import (
	"encoding/json"
	"fmt"
	"testing"

	"pagerelay/pkg/bus"
)

type eventCollector struct {
	events []bus.MessageEvent
}

func (c *eventCollector) sink(evt bus.MessageEvent) {
	c.events = append(c.events, evt)
}

func newTestNormalizer(t *testing.T) (*Normalizer, *eventCollector) {
	t.Helper()
	collector := &eventCollector{}
	n, err := NewNormalizer(collector.sink)
	if err != nil {
		t.Fatalf("NewNormalizer() error = %v", err)
	}
	return n, collector
}

func textEvent(sender, text, mid string, ts int64) MessagingEvent {
	return MessagingEvent{
		Sender:    Party{ID: sender},
		Recipient: Party{ID: "page-1"},
		Timestamp: ts,
		Message:   &Message{MID: mid, Text: text},
	}
}

func TestNewNormalizerNilSink(t *testing.T) {
	if _, err := NewNormalizer(nil); err == nil {
		t.Fatal("NewNormalizer(nil) expected error")
	}
}

func TestNormalizeTextMessagesPreservesOrder(t *testing.T) {
	n, collector := newTestNormalizer(t)

	var events []MessagingEvent
	for i := 0; i < 5; i++ {
		events = append(events, textEvent("user-1", fmt.Sprintf("hello %d", i), fmt.Sprintf("mid.%d", i), int64(1000+i)))
	}

	n.Normalize(WebhookPayload{
		Object: "page",
		Entry:  []Entry{{ID: "page-1", Messaging: events}},
	})

	if len(collector.events) != 5 {
		t.Fatalf("got %d events, want 5", len(collector.events))
	}
	for i, evt := range collector.events {
		if want := fmt.Sprintf("hello %d", i); evt.Body != want {
			t.Errorf("event %d body = %q, want %q", i, evt.Body, want)
		}
		if want := fmt.Sprintf("mid.%d", i); evt.MessageID != want {
			t.Errorf("event %d message id = %q, want %q", i, evt.MessageID, want)
		}
	}
}

func TestNormalizeFieldMapping(t *testing.T) {
	n, collector := newTestNormalizer(t)

	n.Normalize(WebhookPayload{
		Object: "page",
		Entry: []Entry{{
			ID: "page-1",
			Messaging: []MessagingEvent{{
				Sender:    Party{ID: "user-42"},
				Recipient: Party{ID: "page-1"},
				Timestamp: 1700000000000,
				Message:   &Message{MID: "mid.abc", Text: "hi there"},
			}},
		}},
	})

	if len(collector.events) != 1 {
		t.Fatalf("got %d events, want 1", len(collector.events))
	}
	evt := collector.events[0]
	if evt.Channel != "messenger" {
		t.Errorf("channel = %q, want %q", evt.Channel, "messenger")
	}
	if evt.From != "user-42" {
		t.Errorf("from = %q, want %q", evt.From, "user-42")
	}
	if evt.Name != "" {
		t.Errorf("name = %q, want empty", evt.Name)
	}
	if evt.HostID != "page-1" {
		t.Errorf("host id = %q, want %q", evt.HostID, "page-1")
	}
	if evt.Timestamp != 1700000000000 {
		t.Errorf("timestamp = %d, want 1700000000000", evt.Timestamp)
	}
}

func TestNormalizeRejectsNonPageObject(t *testing.T) {
	n, collector := newTestNormalizer(t)

	n.Normalize(WebhookPayload{
		Object: "instagram",
		Entry: []Entry{{
			Messaging: []MessagingEvent{textEvent("user-1", "hello", "mid.1", 1000)},
		}},
	})

	if len(collector.events) != 0 {
		t.Fatalf("got %d events, want 0", len(collector.events))
	}
}

func TestNormalizeEmptyEntry(t *testing.T) {
	n, collector := newTestNormalizer(t)

	n.Normalize(WebhookPayload{Object: "page"})
	n.Normalize(WebhookPayload{Object: "page", Entry: []Entry{}})

	if len(collector.events) != 0 {
		t.Fatalf("got %d events, want 0", len(collector.events))
	}
}

func TestNormalizeSkipsEventWithoutMessageOrPostback(t *testing.T) {
	n, collector := newTestNormalizer(t)

	n.Normalize(WebhookPayload{
		Object: "page",
		Entry: []Entry{{
			Messaging: []MessagingEvent{
				{Sender: Party{ID: "user-1"}, Recipient: Party{ID: "page-1"}, Timestamp: 1000},
				textEvent("user-1", "still here", "mid.2", 2000),
			},
		}},
	})

	if len(collector.events) != 1 {
		t.Fatalf("got %d events, want 1", len(collector.events))
	}
	if collector.events[0].Body != "still here" {
		t.Errorf("body = %q, want %q", collector.events[0].Body, "still here")
	}
}

func TestNormalizeAttachmentPlaceholders(t *testing.T) {
	tests := []struct {
		attType  AttachmentType
		wantBody string
	}{
		{AttachmentImage, EventMedia},
		{AttachmentVideo, EventMedia},
		{AttachmentAudio, EventVoiceNote},
		{AttachmentFile, EventDocument},
		{AttachmentLocation, EventLocation},
	}

	for _, tt := range tests {
		t.Run(string(tt.attType), func(t *testing.T) {
			n, collector := newTestNormalizer(t)

			ev := textEvent("user-1", "caption text", "mid.1", 1000)
			ev.Message.Attachments = []Attachment{{
				Type:    tt.attType,
				Payload: AttachmentPayload{URL: "https://cdn.example.com/blob"},
			}}

			n.Normalize(WebhookPayload{Object: "page", Entry: []Entry{{Messaging: []MessagingEvent{ev}}}})

			if len(collector.events) != 1 {
				t.Fatalf("got %d events, want 1", len(collector.events))
			}
			evt := collector.events[0]
			if evt.Body != tt.wantBody {
				t.Errorf("body = %q, want %q", evt.Body, tt.wantBody)
			}
			if evt.MediaURL != "https://cdn.example.com/blob" {
				t.Errorf("media url = %q, want attachment url", evt.MediaURL)
			}
		})
	}
}

func TestNormalizeImageAttachmentOverridesText(t *testing.T) {
	n, collector := newTestNormalizer(t)

	ev := textEvent("user-1", "hi", "mid.1", 1000)
	ev.Message.Attachments = []Attachment{{
		Type:    AttachmentImage,
		Payload: AttachmentPayload{URL: "https://cdn.example.com/pic"},
	}}

	n.Normalize(WebhookPayload{Object: "page", Entry: []Entry{{Messaging: []MessagingEvent{ev}}}})

	if len(collector.events) != 1 {
		t.Fatalf("got %d events, want 1", len(collector.events))
	}
	if collector.events[0].Body != EventMedia {
		t.Errorf("body = %q, want %q (attachment wins over text)", collector.events[0].Body, EventMedia)
	}
}

func TestNormalizeOnlyFirstAttachmentCounts(t *testing.T) {
	n, collector := newTestNormalizer(t)

	ev := textEvent("user-1", "", "mid.1", 1000)
	ev.Message.Attachments = []Attachment{
		{Type: AttachmentAudio, Payload: AttachmentPayload{URL: "https://cdn.example.com/a"}},
		{Type: AttachmentImage, Payload: AttachmentPayload{URL: "https://cdn.example.com/b"}},
	}

	n.Normalize(WebhookPayload{Object: "page", Entry: []Entry{{Messaging: []MessagingEvent{ev}}}})

	if len(collector.events) != 1 {
		t.Fatalf("got %d events, want 1", len(collector.events))
	}
	evt := collector.events[0]
	if evt.Body != EventVoiceNote {
		t.Errorf("body = %q, want %q", evt.Body, EventVoiceNote)
	}
	if evt.MediaURL != "https://cdn.example.com/a" {
		t.Errorf("media url = %q, want first attachment", evt.MediaURL)
	}
}

func TestNormalizeUnrecognizedAttachmentKeepsText(t *testing.T) {
	n, collector := newTestNormalizer(t)

	ev := textEvent("user-1", "check this out", "mid.1", 1000)
	ev.Message.Attachments = []Attachment{{
		Type:    AttachmentType("template"),
		Payload: AttachmentPayload{URL: "https://cdn.example.com/t"},
	}}

	n.Normalize(WebhookPayload{Object: "page", Entry: []Entry{{Messaging: []MessagingEvent{ev}}}})

	if len(collector.events) != 1 {
		t.Fatalf("got %d events, want 1", len(collector.events))
	}
	if collector.events[0].Body != "check this out" {
		t.Errorf("body = %q, want original text", collector.events[0].Body)
	}
}

func TestNormalizePostback(t *testing.T) {
	n, collector := newTestNormalizer(t)

	n.Normalize(WebhookPayload{
		Object: "page",
		Entry: []Entry{{
			Messaging: []MessagingEvent{{
				Sender:    Party{ID: "user-1"},
				Recipient: Party{ID: "page-1"},
				Timestamp: 1000,
				Postback:  &Postback{Title: "Buy now", Payload: "BUY"},
			}},
		}},
	})

	if len(collector.events) != 1 {
		t.Fatalf("got %d events, want 1", len(collector.events))
	}
	evt := collector.events[0]
	if evt.Body != "BUY" {
		t.Errorf("body = %q, want %q", evt.Body, "BUY")
	}
	if evt.MessageID != "postback_1000" {
		t.Errorf("message id = %q, want %q", evt.MessageID, "postback_1000")
	}
}

func TestNormalizeMessageTakesPriorityOverPostback(t *testing.T) {
	n, collector := newTestNormalizer(t)

	n.Normalize(WebhookPayload{
		Object: "page",
		Entry: []Entry{{
			Messaging: []MessagingEvent{{
				Sender:    Party{ID: "user-1"},
				Recipient: Party{ID: "page-1"},
				Timestamp: 1000,
				Message:   &Message{MID: "mid.1", Text: "typed text"},
				Postback:  &Postback{Payload: "BUY"},
			}},
		}},
	})

	if len(collector.events) != 1 {
		t.Fatalf("got %d events, want 1", len(collector.events))
	}
	if collector.events[0].Body != "typed text" {
		t.Errorf("body = %q, want message branch to win", collector.events[0].Body)
	}
}

// End to end through the wire shape: a realistic Graph delivery decodes and
// normalizes across entries in order.
func TestNormalizeRawJSONDelivery(t *testing.T) {
	raw := `{
		"object": "page",
		"entry": [
			{
				"id": "1060372464262728",
				"time": 1700000001000,
				"messaging": [
					{
						"sender": {"id": "831"},
						"recipient": {"id": "1060372464262728"},
						"timestamp": 1700000001000,
						"message": {"mid": "m_one", "text": "first"}
					}
				]
			},
			{
				"id": "1060372464262728",
				"time": 1700000002000,
				"messaging": [
					{
						"sender": {"id": "831"},
						"recipient": {"id": "1060372464262728"},
						"timestamp": 1700000002000,
						"message": {
							"mid": "m_two",
							"attachments": [{"type": "image", "payload": {"url": "https://cdn.example.com/p.png"}}]
						}
					},
					{
						"sender": {"id": "831"},
						"recipient": {"id": "1060372464262728"},
						"timestamp": 1700000003000,
						"postback": {"title": "Get Started", "payload": "GET_STARTED"}
					}
				]
			}
		]
	}`

	var payload WebhookPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	n, collector := newTestNormalizer(t)
	n.Normalize(payload)

	if len(collector.events) != 3 {
		t.Fatalf("got %d events, want 3", len(collector.events))
	}
	if collector.events[0].Body != "first" {
		t.Errorf("event 0 body = %q", collector.events[0].Body)
	}
	if collector.events[1].Body != EventMedia {
		t.Errorf("event 1 body = %q, want media marker", collector.events[1].Body)
	}
	if collector.events[2].MessageID != "postback_1700000003000" {
		t.Errorf("event 2 message id = %q", collector.events[2].MessageID)
	}
}
