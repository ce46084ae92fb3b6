package bus

// MessageEvent is the canonical, platform-agnostic form of an inbound
// interaction. Channel adapters build one per platform message and publish
// it here; downstream consumers never see the raw webhook shape.
type MessageEvent struct {
	Channel   string `json:"channel"`
	Body      string `json:"body"`
	From      string `json:"from"`
	Name      string `json:"name"`
	HostID    string `json:"host_id"`
	Timestamp int64  `json:"timestamp"`
	MessageID string `json:"message_id"`
	MediaURL  string `json:"media_url,omitempty"`
}

type OutboundMessage struct {
	Channel     string `json:"channel"`
	RecipientID string `json:"recipient_id"`
	Content     string `json:"content"`
}

type SignalKind string

const (
	SignalReady       SignalKind = "ready"
	SignalAuthFailure SignalKind = "auth_failure"
)

// Signal carries adapter lifecycle diagnostics (authentication health).
// Signals are advisory: nothing in the relay blocks on them.
type Signal struct {
	Kind         SignalKind `json:"kind"`
	Ready        bool       `json:"ready,omitempty"`
	Instructions []string   `json:"instructions,omitempty"`
}

type MessageHandler func(MessageEvent) error
