// Package game runs the turn-based broadcast for one mission at a time.
//
// A [Session] owns one client connection. It streams host lines produced by a
// [Generator] and voiced by a [Synthesizer], hands the turn to the player
// between lines, and feeds the player's speech to a [Recognizer]. Lines wait in
// a [DialogueQueue] that is refilled in the background once it drops to the
// low watermark, so playback only stalls when generation cannot keep up.
//
// Every session has exactly one control loop goroutine. It is the only code
// that touches the [StateMachine], the queue and the turn bookkeeping; the
// workers it starts report back over channels.
//
// A [Registry] keeps at most one live session per mission ID and tears a
// session down exactly once, whether the client disconnected, the session was
// unregistered or the process is shutting down.
package game
