// Package log provides protocol event capture for RCI devices and controllers.
//
// Protocol capture is separate from operational logging (slog): it produces a
// machine-readable trace of every frame, envelope, engine callback and
// protocol error, which the rci-log tool can replay and filter offline.
//
// # Basic Usage
//
//	// Console, through slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Binary trace file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/rci/device.rlog")
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(console, file)
//
// # Layers
//
//   - Transport: raw length-prefixed frames (FrameEvent)
//   - Envelope: decoded session envelopes (EnvelopeEvent)
//   - Engine: session state changes and callback dispatches (CallbackEvent)
//
// # File Format
//
// Trace files are a stream of CBOR-encoded Events with integer keys.
package log
