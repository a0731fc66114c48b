// Package discovery implements mDNS/DNS-SD discovery for RCI devices.
//
// Devices advertise a single service type, _rci._tcp, one instance per
// device. The instance name defaults to "RCI-<device id>" and the SRV port
// is the device's transport port.
//
// # TXT Records
//
//   - id: device identifier (required)
//   - model: device model (required)
//   - ver: RCI protocol version (required)
//   - schema: schema version the device serves (optional)
//   - dn: user-facing device name (optional)
//
// Browsers aggregate answers by instance name: addresses seen on several
// interfaces are merged into one Service, which is reported as removed once
// its last address disappears.
package discovery
