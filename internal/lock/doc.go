// Package lock implements the Open/Locked access state of the game server.
//
// Toggle is its own inverse. Locking enables the whitelist and broadcasts a
// notice; unlocking disables it and broadcasts another. With the persistent
// strategy and EvictOnLock set, locking also kicks every online player whose
// privilege check does not contain the privileged marker.
//
// State changes are optimistic. The flag flips before any command is sent and
// is never rolled back, so it can disagree with the server when commands are
// lost. Eviction re-reads the flag before every kick.
package lock
