// Package channel delivers command strings to the game server and correlates
// their textual results.
//
// # Strategies
//
// Two transports implement Channel:
//
//   - PolledChannel: commands are queued until the in-game agent polls
//     /bridge/poll, executes them and posts each result to /bridge/result.
//   - PersistentChannel: commands are executed directly over an RCON session.
//
// # Correlation
//
// PolledChannel keeps a table of pending results keyed by command id. Each
// entry has a deadline timer. Whichever of Resolve or the timer removes the
// entry first wins; the other is a no-op. A timeout is a normal outcome:
//
//	res, err := ch.Send(ctx, "list")
//	if err != nil {
//	    // ErrNotConnected: the agent has not heartbeated recently
//	}
//	if res == channel.TimeoutResult {
//	    // the agent never answered
//	}
//
// Drain hands every queued command to the agent at most once. A poll response
// lost in transit is not retried; the affected callers see a timeout.
//
// # Reconnects
//
// PersistentChannel never backs off exponentially. A failed dial waits
// RetryPolicy.Connect, a session closed by the peer waits RetryPolicy.Closed
// and any other send error waits RetryPolicy.Send. At most one reconnect is
// scheduled at a time.
package channel
