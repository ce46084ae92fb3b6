package messenger

// Graph API webhook payload. The platform delivers batches: a payload holds
// entries, an entry holds messaging events, and each messaging event carries
// either a message or a postback.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []MessagingEvent `json:"messaging"`
}

type MessagingEvent struct {
	Sender    Party     `json:"sender"`
	Recipient Party     `json:"recipient"`
	Timestamp int64     `json:"timestamp"`
	Message   *Message  `json:"message,omitempty"`
	Postback  *Postback `json:"postback,omitempty"`
}

type Party struct {
	ID string `json:"id"`
}

type Message struct {
	MID         string       `json:"mid"`
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// AttachmentType is the closed set of attachment tags the platform sends.
// Anything outside the set decodes as-is and falls into the normalizer's
// explicit unrecognized branch.
type AttachmentType string

const (
	AttachmentImage    AttachmentType = "image"
	AttachmentVideo    AttachmentType = "video"
	AttachmentAudio    AttachmentType = "audio"
	AttachmentFile     AttachmentType = "file"
	AttachmentLocation AttachmentType = "location"
)

type Attachment struct {
	Type    AttachmentType    `json:"type"`
	Payload AttachmentPayload `json:"payload"`
}

type AttachmentPayload struct {
	URL string `json:"url,omitempty"`
}

type Postback struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

// Send API request/response shapes.
type SendRequest struct {
	Recipient   Party          `json:"recipient"`
	Message     MessageContent `json:"message"`
	AccessToken string         `json:"access_token"`
}

type MessageContent struct {
	Text string `json:"text"`
}

type SendResponse struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
}
