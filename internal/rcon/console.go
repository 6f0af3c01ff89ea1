// ABOUTME: Helpers for Minecraft console command text.
// ABOUTME: Parses "list" output and builds tellraw and kick commands.

package rcon

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	firstInt   = regexp.MustCompile(`\d+`)
	colorCode  = regexp.MustCompile(`§.`)
	maxRelayed = 200
)

// ParseList extracts the online count and player names from the output of
// the "list" command, e.g.
//
//	There are 2 of a max of 20 players online: Alice, Bob
//
// The count is the first integer in the text.
func ParseList(out string) (int, []string) {
	out = colorCode.ReplaceAllString(out, "")

	count := 0
	if m := firstInt.FindString(out); m != "" {
		count, _ = strconv.Atoi(m)
	}

	players := []string{}
	idx := strings.Index(out, ":")
	if idx < 0 {
		return count, players
	}
	for _, name := range strings.Split(out[idx+1:], ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			players = append(players, name)
		}
	}
	return count, players
}

// SanitizeChat makes a chat line safe to embed in a console command.
func SanitizeChat(msg string) string {
	msg = strings.ReplaceAll(msg, `\`, "")
	msg = strings.ReplaceAll(msg, `"`, "'")
	msg = strings.ReplaceAll(msg, "\r", "")
	msg = strings.ReplaceAll(msg, "\n", " ")
	if r := []rune(msg); len(r) > maxRelayed {
		msg = string(r[:maxRelayed])
	}
	return msg
}

type textComponent struct {
	Text  string `json:"text"`
	Color string `json:"color,omitempty"`
}

// Tellraw builds a tellraw command broadcasting "[source] name: msg".
func Tellraw(source, name, msg string) string {
	parts := []any{
		"",
		textComponent{Text: "[" + source + "] ", Color: "blue"},
		textComponent{Text: name, Color: "aqua"},
		textComponent{Text: ": " + msg, Color: "white"},
	}
	data, _ := json.Marshal(parts)
	return "tellraw @a " + string(data)
}

// Kick builds a kick command.
func Kick(player, reason string) string {
	if reason == "" {
		return "kick " + player
	}
	return fmt.Sprintf("kick %s %s", player, reason)
}
