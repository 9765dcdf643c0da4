// Package bot is the command dispatcher. It filters inbound chat messages,
// parses the command keyword and runs the matching handler against the list
// store and media host, replying on the originating platform.
//
// Handlers are stateless across messages. List mutations are serialized behind
// one mutex so two commands in this process never race on the remote document;
// writes that lose to an external writer are retried on a fresh read.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/meme-curator/media"
	"github.com/onnwee/meme-curator/memes"
	"github.com/onnwee/meme-curator/telemetry"
)

// User-facing replies.
const (
	ReplyPong           = "Pong 🏓"
	ReplyApproveDenied  = "Solo mods pueden aprobar."
	ReplyNoSource       = "No encontré imagen/URL en el reply o comando."
	ReplyApproved       = "✅ Aprobado y publicado."
	ReplyDeleteDenied   = "Solo mods pueden borrar."
	ReplyInvalidIndex   = "Índice inválido."
	ReplyDeleted        = "🗑️ Borrado del overlay."
	ReplyCleanupFailed  = "(No se pudo borrar el archivo del host de medios.)"
	ReplyNoSamples      = "(sin muestras)"
	ReplyGenericFailure = "Hubo un error procesando el comando."
)

const (
	listSampleSize    = 3
	maxUpdateAttempts = 3
)

// ListStore reads and writes the remote list document.
type ListStore interface {
	Fetch(ctx context.Context) (*memes.Snapshot, error)
	Save(ctx context.Context, snap *memes.Snapshot) error
}

// MediaHost uploads approved images and deletes them again.
type MediaHost interface {
	Upload(ctx context.Context, sourceURL string) (media.Asset, error)
	Remove(ctx context.Context, publicID string) error
}

// Auditor records completed mutations.
type Auditor interface {
	Record(ctx context.Context, ev memes.AuditEvent) error
}

// Config controls filtering and authorization.
type Config struct {
	// Channels maps a platform to the only channel served there. Platforms
	// without an entry are served in every channel.
	Channels map[string]string
	// RequireModerator gates !aprobado and !borrar. When false anyone may run them.
	RequireModerator bool
	// ModRoles maps a platform to the roles that grant moderator capability.
	ModRoles map[string][]string
}

// Bot dispatches chat commands.
type Bot struct {
	cfg     Config
	store   ListStore
	media   MediaHost
	auditor Auditor
	now     func() time.Time

	mu sync.Mutex // serializes list read-modify-write
}

// Option customizes a Bot.
type Option func(*Bot)

// WithAuditor records approvals and deletions to a.
func WithAuditor(a Auditor) Option { return func(b *Bot) { b.auditor = a } }

// WithClock overrides the approval timestamp source.
func WithClock(now func() time.Time) Option { return func(b *Bot) { b.now = now } }

// New creates a dispatcher.
func New(cfg Config, store ListStore, host MediaHost, opts ...Option) *Bot {
	b := &Bot{cfg: cfg, store: store, media: host, now: time.Now}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Handle processes one inbound message. It never panics or returns an error:
// failures are logged and answered with a generic reply.
func (b *Bot) Handle(ctx context.Context, msg *Message, r Replier) {
	if msg == nil || !b.accepts(msg) {
		return
	}
	cmd, ok := ParseCommand(msg.Content)
	if !ok {
		return
	}

	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	ctx, span := telemetry.StartSpan(ctx, "bot", "bot.command",
		attribute.String("command", string(cmd.Name)),
		attribute.String("platform", msg.Platform),
		attribute.String("channel", msg.ChannelID),
	)
	log := telemetry.LoggerWithCorr(ctx).With(
		slog.String("component", "bot"),
		slog.String("command", string(cmd.Name)),
		slog.String("platform", msg.Platform),
		slog.String("author", msg.AuthorName),
	)

	reply, err := b.dispatch(ctx, log, cmd, msg)
	telemetry.EndSpan(span, err)

	outcome := "ok"
	switch {
	case err == nil:
	case memes.IsUserFacing(err):
		outcome = string(memes.Classify(err))
		log.Info("command rejected", slog.String("reason", err.Error()))
	default:
		outcome = "error"
		log.Error("command failed", slog.String("kind", string(memes.Classify(err))), slog.Any("err", err))
		reply = ReplyGenericFailure
	}
	telemetry.CountCommand(string(cmd.Name), outcome)

	if reply == "" {
		return
	}
	if err := r.Reply(ctx, msg, reply); err != nil {
		log.Warn("reply failed", slog.Any("err", err))
	}
}

func (b *Bot) dispatch(ctx context.Context, log *slog.Logger, cmd Command, msg *Message) (reply string, err error) {
	defer func() {
		if p := recover(); p != nil {
			reply, err = "", fmt.Errorf("panic in %s: %v", cmd.Name, p)
		}
	}()
	switch cmd.Name {
	case CmdPing:
		return ReplyPong, nil
	case CmdApprove:
		return b.approve(ctx, log, cmd, msg)
	case CmdDelete:
		return b.delete(ctx, log, cmd, msg)
	case CmdList:
		return b.list(ctx)
	}
	return "", nil
}

func (b *Bot) accepts(msg *Message) bool {
	if msg.AuthorIsBot {
		return false
	}
	if want := b.cfg.Channels[msg.Platform]; want != "" && msg.ChannelID != want {
		return false
	}
	return true
}

// IsMod reports whether the author may run mutating commands.
func (b *Bot) IsMod(msg *Message) bool {
	if !b.cfg.RequireModerator {
		return true
	}
	for _, role := range b.cfg.ModRoles[msg.Platform] {
		if slices.Contains(msg.Roles, role) {
			return true
		}
	}
	return false
}

func (b *Bot) approve(ctx context.Context, log *slog.Logger, cmd Command, msg *Message) (string, error) {
	if !b.IsMod(msg) {
		return ReplyApproveDenied, fmt.Errorf("approve by %s: %w", msg.AuthorName, memes.ErrUnauthorized)
	}
	source := ResolveSourceURL(msg, cmd)
	if source == "" {
		return ReplyNoSource, fmt.Errorf("approve: no image or url found: %w", memes.ErrInvalidArgument)
	}

	asset, err := b.media.Upload(ctx, source)
	if err != nil {
		return "", err
	}
	entry := memes.Entry{URL: asset.URL, PublicID: asset.PublicID, At: b.now().UTC()}

	err = b.update(ctx, log, func(doc *memes.Document) error {
		doc.Append(entry)
		return nil
	})
	if err != nil {
		// the list never references the upload; drop it so it does not linger
		if rmErr := b.media.Remove(ctx, asset.PublicID); rmErr != nil {
			telemetry.CountCleanupFailure()
			log.Warn("orphaned upload cleanup failed", slog.String("public_id", asset.PublicID), slog.Any("err", rmErr))
		}
		return "", err
	}

	log.Info("meme approved", slog.String("url", entry.URL), slog.String("public_id", entry.PublicID), slog.String("source", source))
	b.audit(ctx, log, memes.ActionApprove, entry, msg)
	return ReplyApproved, nil
}

func (b *Bot) delete(ctx context.Context, log *slog.Logger, cmd Command, msg *Message) (string, error) {
	if !b.IsMod(msg) {
		return ReplyDeleteDenied, fmt.Errorf("delete by %s: %w", msg.AuthorName, memes.ErrUnauthorized)
	}

	var removed memes.Entry
	var idx int
	err := b.update(ctx, log, func(doc *memes.Document) error {
		var err error
		if idx, err = ParseIndex(cmd, doc.Len()); err != nil {
			return err
		}
		removed, err = doc.RemoveAt(idx)
		return err
	})
	if errors.Is(err, memes.ErrInvalidArgument) {
		return ReplyInvalidIndex, err
	}
	if err != nil {
		return "", err
	}
	log.Info("meme deleted", slog.Int("index", idx), slog.String("url", removed.URL))
	b.audit(ctx, log, memes.ActionDelete, removed, msg)

	// remote cleanup is independent of the list change and never undoes it
	if removed.PublicID == "" {
		return ReplyDeleted, nil
	}
	if err := b.media.Remove(ctx, removed.PublicID); err != nil {
		telemetry.CountCleanupFailure()
		log.Warn("media cleanup failed", slog.String("public_id", removed.PublicID), slog.Any("err", err))
		return ReplyDeleted + "\n" + ReplyCleanupFailed, nil
	}
	return ReplyDeleted, nil
}

func (b *Bot) list(ctx context.Context) (string, error) {
	snap, err := b.store.Fetch(ctx)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Hay %d memes en rotación.\n", snap.Doc.Len())
	tail := snap.Doc.Tail(listSampleSize)
	if len(tail) == 0 {
		sb.WriteString(ReplyNoSamples)
	}
	for i, e := range tail {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(e.URL)
	}
	return sb.String(), nil
}

// update runs fn against a fresh read of the document and saves the result.
// Writes rejected with memes.ErrConflict are retried on a new read.
func (b *Bot) update(ctx context.Context, log *slog.Logger, fn func(*memes.Document) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		var snap *memes.Snapshot
		if snap, err = b.store.Fetch(ctx); err != nil {
			return err
		}
		if err = fn(snap.Doc); err != nil {
			return err
		}
		if err = b.store.Save(ctx, snap); !errors.Is(err, memes.ErrConflict) {
			return err
		}
		log.Warn("list changed during update, retrying", slog.Int("attempt", attempt))
	}
	return err
}

func (b *Bot) audit(ctx context.Context, log *slog.Logger, action string, e memes.Entry, msg *Message) {
	if b.auditor == nil {
		return
	}
	ev := memes.AuditEvent{
		Action:   action,
		Entry:    e,
		Actor:    msg.AuthorName,
		Platform: msg.Platform,
		Channel:  msg.ChannelID,
		At:       b.now().UTC(),
	}
	if err := b.auditor.Record(ctx, ev); err != nil {
		log.Warn("audit record failed", slog.String("action", action), slog.Any("err", err))
	}
}
