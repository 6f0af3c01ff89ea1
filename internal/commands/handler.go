// ABOUTME: Transport-agnostic chat commands that drive the game server through the command channel.
// ABOUTME: Returns markdown replies; frontends handle prefixes, permissions and rendering.

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/2389/craft-bridge/internal/channel"
	"github.com/2389/craft-bridge/internal/liveness"
	"github.com/2389/craft-bridge/internal/lock"
	"github.com/2389/craft-bridge/internal/rcon"
)

// Presence exposes the liveness state.
type Presence interface {
	Snapshot() liveness.Snapshot
}

// Locker toggles the server lock.
type Locker interface {
	Toggle(ctx context.Context) (lock.Transition, error)
	Locked() bool
}

// Info describes the game server for status replies.
type Info struct {
	Name    string
	Address string
	Version string
}

// Request is one chat command, without its prefix.
type Request struct {
	Sender string
	Admin  bool
	Text   string
}

// Reply is the markdown answer to a Request.
type Reply struct {
	Markdown string
	Failed   bool
}

type command struct {
	usage string
	help  string
	admin bool
	run   func(ctx context.Context, req Request, args string) Reply
}

// Handler dispatches chat commands.
type Handler struct {
	ch       channel.Channel
	presence Presence
	locker   Locker
	info     Info
	source   string
	logger   *slog.Logger
	commands map[string]command
}

// Options configures a Handler.
type Options struct {
	Info Info
	// Source labels relayed chat in game, e.g. "[Matrix] alice: hi".
	Source string
}

// New creates a Handler.
func New(ch channel.Channel, presence Presence, locker Locker, opts Options, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Source == "" {
		opts.Source = "Chat"
	}
	if opts.Info.Name == "" {
		opts.Info.Name = "Minecraft"
	}
	h := &Handler{
		ch:       ch,
		presence: presence,
		locker:   locker,
		info:     opts.Info,
		source:   opts.Source,
		logger:   logger.With("component", "commands"),
	}
	h.commands = map[string]command{
		"status":    {usage: "status", help: "Show server status", run: h.status},
		"players":   {usage: "players", help: "List online players", run: h.players},
		"say":       {usage: "say <message>", help: "Send a message to in-game chat", run: h.say},
		"cmd":       {usage: "cmd <command>", help: "Run a console command", admin: true, run: h.cmd},
		"kingdoms":  {usage: "kingdoms", help: "How kingdoms work", run: h.kingdoms},
		"whitelist": {usage: "whitelist add|remove <player>", help: "Edit the whitelist", admin: true, run: h.whitelist},
		"serverip":  {usage: "serverip", help: "Show the server address", run: h.serverip},
		"lock":      {usage: "lock", help: "Toggle the server lock", admin: true, run: h.lock},
		"help":      {usage: "help", help: "Show this list", run: h.help},
	}
	return h
}

// Handle runs a command.
func (h *Handler) Handle(ctx context.Context, req Request) Reply {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return h.help(ctx, req, "")
	}

	name, args, _ := strings.Cut(text, " ")
	name = strings.ToLower(name)
	args = strings.TrimSpace(args)

	cmd, ok := h.commands[name]
	if !ok {
		return failed(fmt.Sprintf("Unknown command `%s`. Try `help`.", name))
	}
	if cmd.admin && !req.Admin {
		return failed("❌ You need admin permissions to use this.")
	}

	h.logger.Debug("running chat command", "command", name, "sender", req.Sender)
	return cmd.run(ctx, req, args)
}

// Relay forwards a chat line from a frontend into the game.
func (h *Handler) Relay(ctx context.Context, sender, message string) error {
	clean := rcon.SanitizeChat(message)
	if clean == "" {
		return nil
	}
	return h.ch.Dispatch(ctx, rcon.Tellraw(h.source, rcon.SanitizeChat(sender), clean))
}

// ShouldRelay reports whether a chat line is ordinary chat rather than a
// command for some bot.
func ShouldRelay(message string) bool {
	message = strings.TrimSpace(message)
	if message == "" {
		return false
	}
	return !strings.HasPrefix(message, "/") && !strings.HasPrefix(message, "!")
}

func (h *Handler) status(_ context.Context, _ Request, _ string) Reply {
	snap := h.presence.Snapshot()

	state := "🔴 Offline"
	if snap.Online {
		state = "🟢 Online"
	}
	link := "❌ Disconnected"
	if h.ch.IsAvailable() {
		link = "✅ Connected"
	}
	access := "🔓 Open"
	if h.locker != nil && h.locker.Locked() {
		access = "🔒 Locked"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**⚔️ %s Server Status**\n\n", h.info.Name)
	fmt.Fprintf(&b, "- **Status:** %s\n", state)
	fmt.Fprintf(&b, "- **Players:** %d\n", snap.PlayerCount)
	if h.info.Address != "" {
		fmt.Fprintf(&b, "- **IP:** `%s`\n", h.info.Address)
	}
	if h.info.Version != "" {
		fmt.Fprintf(&b, "- **Version:** %s\n", h.info.Version)
	}
	fmt.Fprintf(&b, "- **Bridge:** %s\n", link)
	fmt.Fprintf(&b, "- **Access:** %s\n", access)
	return Reply{Markdown: b.String()}
}

// players reads names from the heartbeat under the polled strategy, where the
// agent answers commands without their console output, and from `list` on a
// persistent connection.
func (h *Handler) players(ctx context.Context, _ Request, _ string) Reply {
	var names []string
	if h.ch.Strategy() == channel.StrategyPolled {
		if !h.ch.IsAvailable() {
			return h.sendFailed("get player list", channel.ErrNotConnected)
		}
		names = slices.Clone(h.presence.Snapshot().Players)
	} else {
		out, err := h.ch.Send(ctx, "list")
		if err != nil {
			return h.sendFailed("get player list", err)
		}
		if out == channel.TimeoutResult {
			return failed("⏳ " + out)
		}
		_, names = rcon.ParseList(out)
	}

	if len(names) == 0 {
		return Reply{Markdown: "**👥 Online Players**\n\nNo players online"}
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "**👥 Online Players (%d)**\n\n", len(names))
	for _, n := range names {
		fmt.Fprintf(&b, "- %s\n", n)
	}
	return Reply{Markdown: b.String()}
}

func (h *Handler) say(ctx context.Context, req Request, args string) Reply {
	if args == "" {
		return usage(h.commands["say"])
	}
	if err := h.Relay(ctx, req.Sender, args); err != nil {
		return h.sendFailed("send message", err)
	}
	return Reply{Markdown: "✅ Sent: " + args}
}

func (h *Handler) cmd(ctx context.Context, _ Request, args string) Reply {
	if args == "" {
		return usage(h.commands["cmd"])
	}
	out, err := h.ch.Send(ctx, args)
	if err != nil {
		return h.sendFailed("run command", err)
	}
	if out == "" {
		out = "No output"
	}
	return Reply{Markdown: fmt.Sprintf("**🔧 Command Executed**\n\n`%s`\n\n```\n%s\n```", args, out)}
}

func (h *Handler) kingdoms(_ context.Context, _ Request, _ string) Reply {
	return Reply{Markdown: "**🏰 Kingdoms**\n\n" +
		"Kingdom data is managed in-game by event staff.\n\n" +
		"- **Create Kingdom:** `/createkingdom <name> <leader>` (Event Staff)\n" +
		"- **Join Kingdom:** `/joinkingdom <kingdom>` (All Players)\n" +
		"- **Kingdom List:** `/kingdomlist` (Kingdom Leaders)\n"}
}

func (h *Handler) whitelist(ctx context.Context, _ Request, args string) Reply {
	fields := strings.Fields(args)
	if len(fields) != 2 || (fields[0] != "add" && fields[0] != "remove") {
		return usage(h.commands["whitelist"])
	}
	action, player := fields[0], fields[1]

	out, err := h.ch.Send(ctx, fmt.Sprintf("whitelist %s %s", action, player))
	if err != nil {
		return h.sendFailed("update whitelist", err)
	}
	return Reply{Markdown: fmt.Sprintf("✅ Whitelist %s: **%s**\n%s", action, player, out)}
}

func (h *Handler) serverip(_ context.Context, _ Request, _ string) Reply {
	if h.info.Address == "" {
		return failed("No server address configured.")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**🌐 %s Server**\n\n", h.info.Name)
	fmt.Fprintf(&b, "- **Server IP:** `%s`\n", h.info.Address)
	if h.info.Version != "" {
		fmt.Fprintf(&b, "- **Version:** `%s`\n", h.info.Version)
		fmt.Fprintf(&b, "\nConnect using Minecraft Java Edition %s", h.info.Version)
	}
	return Reply{Markdown: b.String()}
}

func (h *Handler) lock(ctx context.Context, req Request, _ string) Reply {
	if h.locker == nil {
		return failed("Locking is not available.")
	}
	tr, err := h.locker.Toggle(ctx)

	msg := "🔓 Server unlocked"
	if tr.To == lock.Locked {
		msg = "🔒 Server locked"
	}
	if len(tr.Evicted) > 0 {
		msg += fmt.Sprintf(", evicted %s", strings.Join(tr.Evicted, ", "))
	}
	if err != nil {
		h.logger.Warn("lock enforcement incomplete", "sender", req.Sender, "error", err)
		return Reply{Markdown: msg + "\n\n⚠️ Some commands could not be delivered: " + err.Error(), Failed: true}
	}
	return Reply{Markdown: msg}
}

func (h *Handler) help(_ context.Context, req Request, _ string) Reply {
	names := make([]string, 0, len(h.commands))
	for name := range h.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("**Commands**\n\n")
	for _, name := range names {
		c := h.commands[name]
		if c.admin && !req.Admin {
			continue
		}
		fmt.Fprintf(&b, "- `%s`: %s\n", c.usage, c.help)
	}
	return Reply{Markdown: b.String()}
}

func (h *Handler) sendFailed(what string, err error) Reply {
	if errors.Is(err, channel.ErrNotConnected) {
		return failed("❌ Server is offline")
	}
	h.logger.Warn("chat command failed", "action", what, "error", err)
	return failed(fmt.Sprintf("❌ Failed to %s", what))
}

func usage(c command) Reply {
	return failed(fmt.Sprintf("Usage: `%s`", c.usage))
}

func failed(msg string) Reply {
	return Reply{Markdown: msg, Failed: true}
}
