// Package store persists the bridge's command and event ledgers in SQLite.
//
// Two append-only tables are kept:
//
//   - command_log: one row per settled command (resolved, timed out,
//     failed or cancelled), written by the channel observer.
//   - event_log: webhook deliveries from the game server and operator
//     actions such as lock toggles.
//
// Neither table feeds back into runtime state: the lock flag and the token
// set are deliberately not persisted. database.path may be ":memory:".
package store
