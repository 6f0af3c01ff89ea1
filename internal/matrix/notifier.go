// ABOUTME: Posts game events and presence updates into Matrix rooms
// ABOUTME: Chat lines go to the chat room, log lines to the log room, presence to the chat room topic

package matrix

import (
	"context"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/craft-bridge/internal/commands"
	"github.com/2389/craft-bridge/internal/liveness"
	"github.com/2389/craft-bridge/internal/store"
)

// Notify renders a game event and posts it. Rooms that are not configured are
// skipped.
func (f *Frontend) Notify(_ context.Context, e store.GameEvent) {
	defer f.recoverPanic("notify")

	n := commands.RenderEvent(f.info, e)
	if n.Chat != "" && f.cfg.ChatRoom != "" {
		f.sendNotice(id.RoomID(f.cfg.ChatRoom), n.Chat)
	}
	if n.Log != "" && f.cfg.LogRoom != "" {
		f.sendNotice(id.RoomID(f.cfg.LogRoom), n.Log)
	}
}

// UpdatePresence sets the chat room topic to the presence line. The topic is
// only rewritten when the line changes.
func (f *Frontend) UpdatePresence(snap liveness.Snapshot) {
	defer f.recoverPanic("presence")

	if f.cfg.ChatRoom == "" {
		return
	}
	line := commands.PresenceLine(f.info, snap)

	f.mu.Lock()
	if line == f.lastTopic {
		f.mu.Unlock()
		return
	}
	f.lastTopic = line
	f.mu.Unlock()

	ctx, cancel := context.WithTimeout(f.ctx, networkTimeout)
	defer cancel()
	if err := f.out.setTopic(ctx, id.RoomID(f.cfg.ChatRoom), line); err != nil {
		f.logger.Warn("failed to update room topic", "error", err)
		f.mu.Lock()
		f.lastTopic = ""
		f.mu.Unlock()
	}
}

func (f *Frontend) sendNotice(roomID id.RoomID, markdown string) {
	ctx, cancel := context.WithTimeout(f.ctx, networkTimeout)
	defer cancel()
	if err := f.out.postMessage(ctx, roomID, formatted(event.MsgNotice, markdown)); err != nil {
		f.logger.Error("failed to send notice", "room", roomID.String(), "error", err)
	}
}
