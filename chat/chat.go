package chat

import (
	"context"

	"github.com/onnwee/meme-curator/bot"
)

// Platform identifiers used in bot.Message.Platform.
const (
	PlatformDiscord = "discord"
	PlatformTwitch  = "twitch"
)

// Handler consumes inbound messages. *bot.Bot implements it.
type Handler interface {
	Handle(ctx context.Context, msg *bot.Message, r bot.Replier)
}

// truncate keeps text within a platform's message size limit.
func truncate(text string, limit int) string {
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit-3]) + "..."
}
