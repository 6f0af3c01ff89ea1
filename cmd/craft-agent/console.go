// ABOUTME: In-memory stand-in for a Minecraft server console
// ABOUTME: Answers the handful of commands the bridge issues with vanilla-shaped output

package main

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// simConsole tracks a player list, the whitelist flag and the clock.
type simConsole struct {
	mu         sync.Mutex
	players    []string
	maxPlayers int
	whitelist  bool
	staff      map[string]bool
}

func newSimConsole(players, staff []string) *simConsole {
	c := &simConsole{
		players:    slices.Clone(players),
		maxPlayers: 20,
		staff:      make(map[string]bool),
	}
	for _, s := range staff {
		c.staff[s] = true
	}
	return c
}

// Online returns the current player list.
func (c *simConsole) Online() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.players)
}

// Execute mimics the vanilla console output for cmd.
func (c *simConsole) Execute(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return "", nil
	}

	switch fields[0] {
	case "list":
		return fmt.Sprintf("There are %d of a max of %d players online: %s",
			len(c.players), c.maxPlayers, strings.Join(c.players, ", ")), nil

	case "say", "tellraw":
		return "", nil

	case "save-all":
		return "Saved the game", nil

	case "weather":
		if len(fields) > 1 && fields[1] == "clear" {
			return "Set the weather to clear", nil
		}

	case "time":
		if len(fields) > 2 && fields[1] == "set" {
			return "Set the time to " + fields[2], nil
		}

	case "whitelist":
		if len(fields) < 2 {
			break
		}
		switch fields[1] {
		case "on":
			c.whitelist = true
			return "Whitelist is now turned on", nil
		case "off":
			c.whitelist = false
			return "Whitelist is now turned off", nil
		case "add":
			if len(fields) > 2 {
				return "Added " + fields[2] + " to the whitelist", nil
			}
		case "remove":
			if len(fields) > 2 {
				return "Removed " + fields[2] + " from the whitelist", nil
			}
		}

	case "kick":
		if len(fields) < 2 {
			break
		}
		name := fields[1]
		i := slices.Index(c.players, name)
		if i < 0 {
			return "No player was found", nil
		}
		c.players = slices.Delete(c.players, i, i+1)
		reason := "Kicked by an operator"
		if len(fields) > 2 {
			reason = strings.Join(fields[2:], " ")
		}
		return fmt.Sprintf("Kicked %s: %s", name, reason), nil

	case "lp":
		// lp user <name> permission check <node>
		if len(fields) >= 5 && fields[1] == "user" && fields[3] == "permission" {
			return fmt.Sprintf("%s has permission %s set to %t", fields[2], strings.Join(fields[5:], " "), c.staff[fields[2]]), nil
		}

	case "stop":
		return "Stopping the server", nil
	}

	return "Unknown or incomplete command, see below for error", nil
}
