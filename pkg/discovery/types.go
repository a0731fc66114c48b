package discovery

import (
	"errors"
	"net"
	"strconv"
	"time"
)

// Service constants for mDNS.
const (
	// ServiceType is the DNS-SD service type of RCI devices.
	ServiceType = "_rci._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the default RCI port.
	DefaultPort = 4530

	// ProtocolVersion is the RCI protocol version advertised in "ver".
	ProtocolVersion = "1"

	// InstancePrefix starts generated instance names.
	InstancePrefix = "RCI-"
)

// TXT record keys.
const (
	TXTKeyDeviceID   = "id"     // Device identifier
	TXTKeyModel      = "model"  // Device model
	TXTKeyVersion    = "ver"    // Protocol version
	TXTKeySchema     = "schema" // Schema version (optional)
	TXTKeyDeviceName = "dn"     // Device name (optional)
)

// Timing constants.
const (
	// BrowseTimeout is the default timeout for mDNS lookups.
	BrowseTimeout = 10 * time.Second

	// DefaultTTL is the default DNS record TTL.
	DefaultTTL = 120 * time.Second
)

// Limits.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// MaxTXTRecordSize is the maximum total TXT record size.
	MaxTXTRecordSize = 400
)

// Discovery errors.
var (
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrMissingRequired     = errors.New("missing required field")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrTXTTooLarge         = errors.New("TXT records exceed 400 bytes")
	ErrNotFound            = errors.New("service not found")
	ErrNotAdvertising      = errors.New("not advertising")
)

// DeviceInfo is what a device announces about itself.
type DeviceInfo struct {
	// InstanceName overrides the generated "RCI-<id>" instance name.
	InstanceName string

	DeviceID        string
	Model           string
	ProtocolVersion string
	SchemaVersion   string
	DeviceName      string

	// Port is the transport port. Zero means DefaultPort.
	Port uint16
}

// Instance returns the DNS-SD instance name for the device.
func (d *DeviceInfo) Instance() string {
	if d.InstanceName != "" {
		return d.InstanceName
	}
	name := InstancePrefix + d.DeviceID
	if len(name) > MaxInstanceNameLen {
		name = name[:MaxInstanceNameLen]
	}
	return name
}

func (d *DeviceInfo) port() int {
	if d.Port == 0 {
		return DefaultPort
	}
	return int(d.Port)
}

// Service is a device found by browsing.
type Service struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string

	Info DeviceInfo
}

// Address returns host:port for the first known address, falling back to
// the host name.
func (s *Service) Address() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(int(s.Port)))
}
