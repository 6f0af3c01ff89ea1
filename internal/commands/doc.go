// Package commands implements the chat commands shared by every frontend.
//
// A Handler parses a command line (without its prefix), checks the admin
// flag supplied by the frontend and talks to the game server only through
// the command channel. Replies are markdown so each frontend can render them
// its own way.
//
// RenderEvent and PresenceLine format webhook events and liveness updates.
package commands
