package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/meme-curator/bot"
	"github.com/onnwee/meme-curator/telemetry"
)

const discordMessageLimit = 2000

// Discord serves commands over the Discord gateway.
type Discord struct {
	session   *discordgo.Session
	handler   Handler
	connected atomic.Bool
}

// NewDiscord creates a session for the bot token. The connection is opened by Start.
func NewDiscord(token string, h Handler) (*Discord, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent
	return &Discord{session: s, handler: h}, nil
}

// Start opens the gateway and dispatches messages until ctx is done.
func (d *Discord) Start(ctx context.Context) error {
	log := slog.With(slog.String("component", "discord"))

	d.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		d.setConnected(true)
		log.Info("discord connected", slog.String("user", r.User.Username))
	})
	d.session.AddHandler(func(s *discordgo.Session, _ *discordgo.Disconnect) {
		d.setConnected(false)
		log.Warn("discord disconnected")
	})
	d.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot {
			return
		}
		var ref *discordgo.Message
		if wantsReference(m.Content) {
			ref = d.referenced(m.Message)
		}
		d.handler.Handle(ctx, fromDiscord(m.Message, ref), d)
	})

	if err := d.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	<-ctx.Done()
	d.setConnected(false)
	if err := d.session.Close(); err != nil {
		log.Warn("discord close", slog.Any("err", err))
	}
	return nil
}

// Connected reports whether the gateway session is up.
func (d *Discord) Connected() bool { return d.connected.Load() }

func (d *Discord) setConnected(v bool) {
	d.connected.Store(v)
	telemetry.SetChatConnected(PlatformDiscord, v)
}

// wantsReference reports whether content is a command that reads the message
// it replies to. Other messages never trigger a referenced-message lookup.
func wantsReference(content string) bool {
	cmd, ok := bot.ParseCommand(content)
	return ok && cmd.Name == bot.CmdApprove
}

// referenced returns the message m replies to. The gateway usually embeds it;
// otherwise it is fetched by id.
func (d *Discord) referenced(m *discordgo.Message) *discordgo.Message {
	if m.ReferencedMessage != nil {
		return m.ReferencedMessage
	}
	if m.MessageReference == nil || m.MessageReference.MessageID == "" {
		return nil
	}
	channelID := m.MessageReference.ChannelID
	if channelID == "" {
		channelID = m.ChannelID
	}
	ref, err := d.session.ChannelMessage(channelID, m.MessageReference.MessageID)
	if err != nil {
		slog.Warn("fetch referenced message", slog.String("component", "discord"), slog.String("message_id", m.MessageReference.MessageID), slog.Any("err", err))
		return nil
	}
	return ref
}

// Reply answers msg as a threaded reply in its channel.
func (d *Discord) Reply(ctx context.Context, msg *bot.Message, text string) error {
	ref := &discordgo.MessageReference{MessageID: msg.ID, ChannelID: msg.ChannelID}
	_, err := d.session.ChannelMessageSendReply(msg.ChannelID, truncate(text, discordMessageLimit), ref, discordgo.WithContext(ctx))
	return err
}

func fromDiscord(m *discordgo.Message, ref *discordgo.Message) *bot.Message {
	out := &bot.Message{
		Platform:  PlatformDiscord,
		ID:        m.ID,
		ChannelID: m.ChannelID,
		Content:   m.Content,
	}
	if m.Author != nil {
		out.AuthorID = m.Author.ID
		out.AuthorName = m.Author.Username
		out.AuthorIsBot = m.Author.Bot
	}
	if m.Member != nil {
		out.Roles = append(out.Roles, m.Member.Roles...)
	}
	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		out.Attachments = append(out.Attachments, bot.Attachment{URL: a.URL, ContentType: a.ContentType})
	}
	if ref != nil {
		out.ReplyTo = fromDiscord(ref, nil)
	}
	return out
}
