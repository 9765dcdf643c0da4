// Package chat connects the command dispatcher to chat platforms.
//
// It provides two adapters:
//   - Discord: a gateway session (discordgo) that needs the message content
//     intent. Replied-to messages are resolved so that approvals can pick up
//     the image attachment of the message a moderator answered.
//   - Twitch: an IRC client (go-twitch-irc) joined to TWITCH_CHANNEL. Twitch
//     has no attachments; approvals use the URL in the replied-to message body
//     or the command argument. Badges such as "moderator" act as roles.
//
// Both adapters convert platform events into bot.Message values, hand them to
// a Handler and answer through the same platform as a threaded reply. Each
// Start call blocks until its context is cancelled.
package chat
