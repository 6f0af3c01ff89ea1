// ABOUTME: Markdown rendering of game events for chat frontends.
// ABOUTME: Produces a chat-room line and an optional log-room line per event.

package commands

import (
	"fmt"

	"github.com/2389/craft-bridge/internal/liveness"
	"github.com/2389/craft-bridge/internal/store"
)

// Notice is the rendered form of a game event. Empty fields are not sent.
type Notice struct {
	Chat string
	Log  string
}

// RenderEvent formats a game event.
func RenderEvent(info Info, e store.GameEvent) Notice {
	action, _ := e.Detail["action"].(string)

	switch e.Kind {
	case store.EventChat:
		return Notice{Chat: fmt.Sprintf("**%s**: %s", e.Player, e.Message)}

	case store.EventJoin:
		if action == "join" {
			return Notice{Chat: fmt.Sprintf("🟢 **%s** joined the server", e.Player)}
		}
		return Notice{Chat: fmt.Sprintf("🔴 **%s** left the server", e.Player)}

	case store.EventDeath:
		cause := e.Message
		if cause == "" {
			cause = "Unknown cause"
		}
		n := Notice{Log: fmt.Sprintf("[Death] %s: %s", e.Player, cause)}
		if isKing, _ := e.Detail["isKing"].(bool); isKing {
			n.Chat = fmt.Sprintf("**👑 The King Has Died!**\n\n**%s** has fallen.\nEvent staff will determine the next leader.", e.Player)
		} else {
			n.Chat = fmt.Sprintf("☠️ **%s** has died. %s", e.Player, e.Message)
		}
		return n

	case store.EventKingdom:
		kingdom, _ := e.Detail["kingdom"].(string)
		return Notice{Chat: renderKingdom(action, kingdom, e.Player, e.Message)}

	case store.EventServer:
		switch action {
		case "start":
			msg := fmt.Sprintf("**🟢 Server Online**\n\n%s server is now online!", info.Name)
			if info.Address != "" {
				msg += fmt.Sprintf("\nConnect: `%s`", info.Address)
			}
			return Notice{Chat: msg}
		case "stop":
			return Notice{Chat: fmt.Sprintf("**🔴 Server Offline**\n\n%s server has gone offline.", info.Name)}
		}
		return Notice{}

	case store.EventLock:
		return Notice{Log: "[Lock] " + e.Message}

	case store.EventAction:
		return Notice{Log: "[Panel] " + e.Message}
	}
	return Notice{}
}

func renderKingdom(action, kingdom, player, message string) string {
	switch action {
	case "created":
		return fmt.Sprintf("**🏰 New Kingdom Established!**\n\n**%s** has been founded by **%s**!\n🛡️ 3 days of protection active.", kingdom, player)
	case "deleted":
		return fmt.Sprintf("**💀 Kingdom Has Fallen**\n\nThe kingdom of **%s** has been destroyed.", kingdom)
	case "transfer":
		return fmt.Sprintf("**👑 Leadership Transfer**\n\n**%s** is now the leader of **%s**.", player, kingdom)
	case "join":
		return fmt.Sprintf("**📥 New Kingdom Member**\n\n**%s** joined **%s**.", player, kingdom)
	case "leave":
		return fmt.Sprintf("**📤 Kingdom Member Left**\n\n**%s** left **%s**.", player, kingdom)
	}
	if message == "" {
		message = fmt.Sprintf("%s - %s - %s", action, kingdom, player)
	}
	return "**🏰 Kingdom Event**\n\n" + message
}

// PresenceLine summarizes liveness for a room topic.
func PresenceLine(info Info, snap liveness.Snapshot) string {
	if !snap.Online {
		return fmt.Sprintf("🔴 %s is offline", info.Name)
	}
	if snap.PlayerCount == 1 {
		return fmt.Sprintf("🟢 %s: 1 player online", info.Name)
	}
	return fmt.Sprintf("🟢 %s: %d players online", info.Name, snap.PlayerCount)
}
