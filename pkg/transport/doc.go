// Package transport carries RCI exchanges over TCP.
//
// Each frame is a 4-byte big-endian length followed by one CBOR envelope
// (see package wire):
//
//	┌────────────────────────────────┐
//	│   RCI binary request/reply     │
//	├────────────────────────────────┤
//	│   wire.Envelope (CBOR)         │
//	├────────────────────────────────┤
//	│   Length-Prefix Framing (4B)   │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// A Server owns one Exchanger per connection and runs at most one
// session at a time on it. Request chunks are fed to the exchanger as they
// arrive; every flushed output buffer goes back as a reply envelope and the
// last one is marked final with a status. A connection that closes during
// a session cancels the exchange.
//
// # Keep-Alive
//
// Controllers may ping the device; the device answers every ping with a
// pong carrying the same sequence number. With the defaults (30s interval,
// 5s timeout, 3 missed pongs) a dead device is noticed within 95 seconds.
package transport
