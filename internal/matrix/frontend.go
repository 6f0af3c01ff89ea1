// ABOUTME: Matrix frontend for craft-bridge
// ABOUTME: Maps prefixed room messages to chat commands and relays chat-room messages into the game

package matrix

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/craft-bridge/internal/commands"
	"github.com/2389/craft-bridge/internal/config"
)

// typingTimeout is the duration the typing indicator shows (30 seconds).
const typingTimeout = 30 * time.Second

// networkTimeout is the timeout for Matrix API calls.
const networkTimeout = 10 * time.Second

// poster is the part of the Matrix client the frontend writes through.
type poster interface {
	postMessage(ctx context.Context, room id.RoomID, content *event.MessageEventContent) error
	setTopic(ctx context.Context, room id.RoomID, topic string) error
	setTyping(ctx context.Context, room id.RoomID, typing bool) error
}

// clientPoster sends through a mautrix client.
type clientPoster struct {
	cli *mautrix.Client
}

func (p clientPoster) postMessage(ctx context.Context, room id.RoomID, content *event.MessageEventContent) error {
	_, err := p.cli.SendMessageEvent(ctx, room, event.EventMessage, content)
	return err
}

func (p clientPoster) setTopic(ctx context.Context, room id.RoomID, topic string) error {
	_, err := p.cli.SendStateEvent(ctx, room, event.StateTopic, "", &event.TopicEventContent{Topic: topic})
	return err
}

func (p clientPoster) setTyping(ctx context.Context, room id.RoomID, typing bool) error {
	var timeout time.Duration
	if typing {
		timeout = typingTimeout
	}
	_, err := p.cli.UserTyping(ctx, room, typing, timeout)
	return err
}

// Frontend connects Matrix rooms to the chat command handler.
type Frontend struct {
	cfg     config.MatrixConfig
	info    commands.Info
	client  *mautrix.Client
	out     poster
	handler *commands.Handler
	logger  *slog.Logger

	// Track rooms we're actively processing to avoid duplicate handling
	processing sync.Map

	started time.Time

	mu        sync.Mutex
	lastTopic string

	// ctx is the parent context for message processing goroutines
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Frontend with a mautrix client for cfg.
func New(cfg config.MatrixConfig, info commands.Info, handler *commands.Handler, logger *slog.Logger) (*Frontend, error) {
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}

	f := newFrontend(cfg, info, handler, clientPoster{cli: client}, logger)
	f.client = client
	return f, nil
}

func newFrontend(cfg config.MatrixConfig, info commands.Info, handler *commands.Handler, out poster, logger *slog.Logger) *Frontend {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CommandPrefix == "" {
		cfg.CommandPrefix = "!"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Frontend{
		cfg:     cfg,
		info:    info,
		out:     out,
		handler: handler,
		logger:  logger.With("component", "matrix"),
		started: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Client returns the underlying mautrix client.
func (f *Frontend) Client() *mautrix.Client {
	return f.client
}

// Run syncs with the homeserver and blocks until ctx is cancelled.
func (f *Frontend) Run(ctx context.Context) error {
	f.logger.Info("starting matrix frontend",
		"homeserver", f.cfg.Homeserver,
		"user_id", f.cfg.UserID,
		"chat_room", f.cfg.ChatRoom,
	)

	f.ctx, f.cancel = context.WithCancel(ctx)
	defer f.cancel()
	f.started = time.Now()

	syncer, ok := f.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", f.client.Syncer)
	}
	syncer.OnEventType(event.EventMessage, f.handleMessageEvent)

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- f.client.SyncWithContext(f.ctx)
	}()

	f.logger.Info("matrix frontend running")

	select {
	case <-ctx.Done():
		f.logger.Info("shutting down matrix frontend")
		f.cancel()
		return nil
	case err := <-syncErr:
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("matrix sync failed: %w", err)
	}
}

// handleMessageEvent processes incoming Matrix messages.
func (f *Frontend) handleMessageEvent(_ context.Context, evt *event.Event) {
	// Ignore our own messages
	if evt.Sender == id.UserID(f.cfg.UserID) {
		return
	}

	// Skip history replayed by the initial sync
	if time.UnixMilli(evt.Timestamp).Before(f.started) {
		return
	}

	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || content.MsgType != event.MsgText {
		return
	}

	roomID := evt.RoomID.String()
	if !f.isRoomAllowed(roomID) {
		f.logger.Debug("ignoring message from non-allowed room", "room", roomID)
		return
	}

	body := strings.TrimSpace(content.Body)
	if strings.HasPrefix(body, f.cfg.CommandPrefix) {
		line := strings.TrimSpace(strings.TrimPrefix(body, f.cfg.CommandPrefix))
		if line == "" {
			return
		}
		f.logger.Info("received command",
			"room", roomID,
			"sender", evt.Sender.String(),
			"content", truncate(line, 50),
		)
		// Process in goroutine to not block sync
		go f.processCommand(f.ctx, evt.RoomID, evt.Sender, line)
		return
	}

	if roomID == f.cfg.ChatRoom && commands.ShouldRelay(body) {
		go f.relay(f.ctx, evt.Sender, body)
	}
}

// processCommand runs a chat command and posts the reply.
func (f *Frontend) processCommand(ctx context.Context, roomID id.RoomID, sender id.UserID, line string) {
	defer f.recoverPanic("processCommand")

	roomStr := roomID.String()
	if _, loaded := f.processing.LoadOrStore(roomStr, true); loaded {
		f.logger.Debug("already processing command in room, dropping", "room", roomStr)
		f.send(roomID, "⏳ Still working on the previous command.")
		return
	}
	defer f.processing.Delete(roomStr)

	f.typing(roomID, true)
	defer f.typing(roomID, false)

	reply := f.handler.Handle(ctx, commands.Request{
		Sender: displayName(sender),
		Admin:  f.isAdmin(sender),
		Text:   line,
	})
	f.send(roomID, reply.Markdown)
}

func (f *Frontend) relay(ctx context.Context, sender id.UserID, body string) {
	defer f.recoverPanic("relay")

	if err := f.handler.Relay(ctx, displayName(sender), body); err != nil {
		f.logger.Debug("chat relay failed", "sender", sender.String(), "error", err)
	}
}

// isRoomAllowed checks if the room is in the allowed list.
func (f *Frontend) isRoomAllowed(roomID string) bool {
	if len(f.cfg.AllowedRooms) == 0 {
		return true // Allow all if no filter
	}
	return slices.Contains(f.cfg.AllowedRooms, roomID) || roomID == f.cfg.ChatRoom
}

func (f *Frontend) isAdmin(sender id.UserID) bool {
	return slices.Contains(f.cfg.AdminUsers, sender.String())
}

func (f *Frontend) typing(roomID id.RoomID, typing bool) {
	// Use a timeout context to avoid hanging during shutdown or network issues
	ctx, cancel := context.WithTimeout(context.Background(), networkTimeout)
	defer cancel()
	if err := f.out.setTyping(ctx, roomID, typing); err != nil {
		f.logger.Debug("failed to set typing indicator", "room", roomID.String(), "error", err)
	}
}

// send posts a markdown message to a room.
func (f *Frontend) send(roomID id.RoomID, markdown string) {
	if markdown == "" || roomID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := f.out.postMessage(ctx, roomID, formatted(event.MsgText, markdown)); err != nil {
		f.logger.Error("failed to send message", "room", roomID.String(), "error", err)
	}
}

func (f *Frontend) recoverPanic(where string) {
	if r := recover(); r != nil {
		f.logger.Error("panic in matrix handler", "where", where, "panic", r)
	}
}

// displayName returns the localpart of a Matrix user ID.
func displayName(user id.UserID) string {
	local, _, err := user.ParseAndValidateRelaxed()
	if err != nil || local == "" {
		return user.String()
	}
	return local
}

// truncate shortens a string to the given max rune count, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
