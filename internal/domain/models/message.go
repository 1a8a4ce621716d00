package models

import "strings"

// MessageType is the payload type of an inbound chat message
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeVideo MessageType = "video"
)

// groupSuffix marks group conversation addresses on the gateway
const groupSuffix = "@g.us"

// WebhookPayload is the body the messaging gateway posts to us
type WebhookPayload struct {
	Messages []InboundMessage `json:"messages"`
}

// InboundMessage is one message event from the gateway
type InboundMessage struct {
	ID        string      `json:"id"`
	From      string      `json:"from"`
	FromMe    bool        `json:"from_me"`
	FromName  string      `json:"from_name,omitempty"`
	ChatName  string      `json:"chat_name,omitempty"`
	Author    string      `json:"author,omitempty"`
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"timestamp,omitempty"`
	Text      *TextBody   `json:"text,omitempty"`
	Image     *MediaBody  `json:"image,omitempty"`
	Video     *MediaBody  `json:"video,omitempty"`
}

// TextBody is the payload of a text message
type TextBody struct {
	Body string `json:"body"`
}

// MediaBody is the payload of an image or video message
type MediaBody struct {
	ID       string `json:"id,omitempty"`
	Link     string `json:"link"`
	Caption  string `json:"caption,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// IsGroup reports whether the message was posted in a group conversation
func (m *InboundMessage) IsGroup() bool {
	return strings.HasSuffix(m.From, groupSuffix)
}

// SenderAddress is the individual who wrote the message. In groups this is the
// author, otherwise the chat address itself.
func (m *InboundMessage) SenderAddress() string {
	if m.IsGroup() && m.Author != "" {
		return m.Author
	}
	return m.From
}

// GroupID returns the group chat address, or nil for direct chats
func (m *InboundMessage) GroupID() *string {
	if !m.IsGroup() {
		return nil
	}
	g := m.From
	return &g
}

// Body returns the text body, or an empty string
func (m *InboundMessage) Body() string {
	if m.Text == nil {
		return ""
	}
	return strings.TrimSpace(m.Text.Body)
}

// MediaPayload returns the media payload and its kind for image/video messages
func (m *InboundMessage) MediaPayload() (*MediaBody, MediaKind, bool) {
	switch m.Type {
	case MessageTypeImage:
		if m.Image != nil && m.Image.Link != "" {
			return m.Image, MediaKindImage, true
		}
	case MessageTypeVideo:
		if m.Video != nil && m.Video.Link != "" {
			return m.Video, MediaKindVideo, true
		}
	}
	return nil, "", false
}

// WebhookAck is the fixed response returned to the gateway
type WebhookAck struct {
	Status string `json:"status"`
}
