package bot

import "context"

// Message is a platform-neutral inbound chat message.
type Message struct {
	Platform    string
	ID          string
	ChannelID   string
	AuthorID    string
	AuthorName  string
	AuthorIsBot bool
	// Roles are the author's role ids (Discord) or badge names (Twitch).
	Roles       []string
	Content     string
	Attachments []Attachment
	// ReplyTo is the message this one replies to, if any.
	ReplyTo *Message
}

// Attachment is a file attached to a message.
type Attachment struct {
	URL         string
	ContentType string
}

// Replier sends a text reply scoped to msg on its originating platform.
type Replier interface {
	Reply(ctx context.Context, msg *Message, text string) error
}
