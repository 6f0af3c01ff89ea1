// Package liveness tracks whether the remote game server is reachable.
//
// The polled agent heartbeats every 20s. A Tracker considers the server
// online while the last heartbeat is younger than the TTL (60s by default).
// Run reconciles every 30s: on a drop to offline the player list is cleared
// and subscribers are notified.
//
// With the persistent strategy there are no heartbeats. A Prober asks the
// server for "list" on the same interval and feeds the parsed output into the
// Tracker, and a disconnect calls MarkOffline.
package liveness
