package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/meme-curator/bot"
	"github.com/onnwee/meme-curator/telemetry"
)

const twitchMessageLimit = 500

// TwitchConfig holds the IRC credentials. Channel is the channel name without '#'.
type TwitchConfig struct {
	Channel  string
	Username string
	OAuth    string
}

// Twitch serves commands in one Twitch channel over IRC.
type Twitch struct {
	cfg       TwitchConfig
	client    *twitch.Client
	handler   Handler
	connected atomic.Bool
}

// NewTwitch creates an IRC client. The connection is opened by Start.
func NewTwitch(cfg TwitchConfig, h Handler) *Twitch {
	cfg.Channel = strings.ToLower(strings.TrimPrefix(cfg.Channel, "#"))
	return &Twitch{cfg: cfg, client: twitch.NewClient(cfg.Username, cfg.OAuth), handler: h}
}

// Start joins the channel and dispatches messages until ctx is done.
func (t *Twitch) Start(ctx context.Context) error {
	log := slog.With(slog.String("component", "twitch"), slog.String("channel", t.cfg.Channel))

	t.client.OnConnect(func() {
		t.setConnected(true)
		log.Info("twitch chat connected")
	})
	t.client.OnPrivateMessage(func(m twitch.PrivateMessage) {
		t.handler.Handle(ctx, fromTwitch(m, t.cfg.Username), t)
	})

	// Handle context cancellation by closing the client
	go func() {
		<-ctx.Done()
		if err := t.client.Disconnect(); err != nil {
			log.Debug("twitch disconnect", slog.Any("err", err))
		}
	}()

	t.client.Join(t.cfg.Channel)
	err := t.client.Connect()
	t.setConnected(false)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Connected reports whether the IRC connection is up.
func (t *Twitch) Connected() bool { return t.connected.Load() }

func (t *Twitch) setConnected(v bool) {
	t.connected.Store(v)
	telemetry.SetChatConnected(PlatformTwitch, v)
}

// Reply answers msg in-thread. IRC replies ignore ctx.
func (t *Twitch) Reply(ctx context.Context, msg *bot.Message, text string) error {
	text = strings.ReplaceAll(truncate(text, twitchMessageLimit), "\n", " | ")
	if msg.ID == "" {
		t.client.Say(msg.ChannelID, text)
		return nil
	}
	t.client.Reply(msg.ChannelID, msg.ID, text)
	return nil
}

func fromTwitch(m twitch.PrivateMessage, self string) *bot.Message {
	out := &bot.Message{
		Platform:    PlatformTwitch,
		ID:          m.ID,
		ChannelID:   strings.ToLower(m.Channel),
		AuthorID:    m.User.ID,
		AuthorName:  m.User.Name,
		AuthorIsBot: self != "" && strings.EqualFold(m.User.Name, self),
		Content:     m.Message,
	}
	for badge := range m.User.Badges {
		out.Roles = append(out.Roles, badge)
	}
	if parent := m.Tags["reply-parent-msg-id"]; parent != "" {
		login := m.Tags["reply-parent-user-login"]
		out.Content = stripReplyMention(out.Content, login)
		out.ReplyTo = &bot.Message{
			Platform:   PlatformTwitch,
			ID:         parent,
			ChannelID:  out.ChannelID,
			AuthorName: login,
			Content:    m.Tags["reply-parent-msg-body"],
		}
	}
	return out
}

// stripReplyMention drops the "@login " prefix Twitch clients put in front of
// a threaded reply, so the command keyword is the first token again.
func stripReplyMention(content, login string) string {
	if login == "" {
		return content
	}
	trimmed := strings.TrimLeft(content, " ")
	first, rest, _ := strings.Cut(trimmed, " ")
	if !strings.EqualFold(first, "@"+login) {
		return content
	}
	return strings.TrimLeft(rest, " ")
}
