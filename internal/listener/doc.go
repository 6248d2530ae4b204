// Package listener accepts terminal connections and hands each one to a session handler.
//
// Peers on the blocklist are closed immediately without a byte read or written.
// Every other connection runs in its own goroutine; Serve returns only after all of
// them have finished.
package listener
