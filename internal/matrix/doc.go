// Package matrix connects Matrix rooms to the bridge.
//
// Messages that start with the command prefix (default "!") in an allowed
// room are handed to the chat command handler and the reply is posted as
// formatted markdown. Plain messages in the chat room are relayed into the
// game with tellraw. Game events flow the other way through Notify, which
// posts the rendered chat line to the chat room and the log line to the log
// room. UpdatePresence keeps the chat room topic in sync with the player
// count.
//
// End-to-end encryption is optional. EnableCrypto opens a SQLite crypto store
// under the configured data directory and verifies the device with the
// recovery key when one is given.
package matrix
