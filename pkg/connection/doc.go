// Package connection keeps a controller connected to one RCI device.
//
// A Manager dials the device, watches the connection and redials it with
// exponential backoff when it drops. Exchanges sent through the Manager are
// retried while the device reports that all of its sessions are in use.
//
// # Reconnection Strategy
//
// When a connection is lost, the manager waits before each new dial:
//
//  1. Initial delay: 500 milliseconds
//  2. Exponential increase: 1s, 2s, 4s, 8s, 16s
//  3. Maximum delay: 30 seconds
//  4. Continue at 30s until successful
//  5. Reset to the initial delay on a successful dial
//
// # Jitter
//
// To keep many controllers from redialing a rebooted device in lockstep:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
//
// # Busy Devices
//
// A device with no free session answers an exchange with wire.StatusBusy
// and runs nothing. The manager retries such exchanges on a short backoff
// of its own, up to BusyRetries times.
package connection
