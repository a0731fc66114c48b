// Package rci implements the device side of the RCI binary protocol.
//
// An Engine parses a request, walks the static schema to find what it
// addresses, asks a Callback for the actual values, and writes the reply.
// Requests and replies move through caller-owned buffers of any size: Step
// consumes what it can and reports what it needs next.
//
// # Driving an Exchange
//
//	res := engine.Step(rci.SessionStart, rci.Input{Data: chunk, Final: last}, out)
//	for !res.Status.Done() {
//		switch res.Status {
//		case rci.StatusFlushOutput:
//			send(out[:res.Written])
//			chunk = chunk[res.Read:]
//		case rci.StatusMoreInput:
//			chunk, last = nextChunk()
//		case rci.StatusBusy:
//			chunk = chunk[res.Read:]
//		}
//		res = engine.Step(rci.SessionActive, rci.Input{Data: chunk, Final: last}, out)
//	}
//
// Transformer wraps the same loop for golang.org/x/text/transform.
//
// # Callbacks
//
// Every structural event (session, action, group and list start/end,
// instance lock/set/unlock/remove, element) is one Callback.Handle call.
// Starts are always matched by ends and locks by unlocks, also when the
// command fails. Returning Busy suspends the exchange; the next Step repeats
// the same request with the same Context.
//
// # Errors
//
// Protocol errors are reported in the reply. Fatal ones (bad command, bad
// descriptor, malformed value) end the command; the others only affect the
// addressed element or instance.
package rci
