// Package wire defines the CBOR session envelope carried over RCI
// connections.
//
// Every transport frame holds one Envelope encoded as a CBOR map with
// integer keys. The RCI request and reply bytes travel opaque in the
// envelope payload, chunked as the engine consumes and produces them.
//
// # Message Types
//
// Session messages carry one RCI exchange:
//   - Start: controller to device, first request chunk
//   - Data: controller to device, further request chunks
//   - Lost: controller to device, the exchange is abandoned
//   - Reply: device to controller, reply chunks; the last one is Final
//
// Control messages (Ping, Pong, Close) keep the connection alive and close
// it gracefully. They never belong to a session.
//
// # Sessions
//
// A session id is chosen by the controller and is unique per connection.
// Only one session is active on a connection at a time; Seq numbers the
// chunks of one direction of a session, starting at 0.
package wire
