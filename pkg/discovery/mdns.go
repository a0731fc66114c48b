package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

// MDNSAdvertiser implements the Advertiser interface using zeroconf.
type MDNSAdvertiser struct {
	config AdvertiserConfig

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewMDNSAdvertiser creates a new mDNS advertiser.
func NewMDNSAdvertiser(config AdvertiserConfig) *MDNSAdvertiser {
	return &MDNSAdvertiser{config: config}
}

// interfaces returns the network interfaces to use, nil meaning all.
func interfaces(name string) []net.Interface {
	if name == "" {
		return nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		slog.Warn("discovery: unknown interface, using all", "interface", name, "error", err)
		return nil
	}
	return []net.Interface{*iface}
}

// Advertise starts announcing the device.
func (a *MDNSAdvertiser) Advertise(ctx context.Context, info *DeviceInfo) error {
	instance := info.Instance()
	if err := ValidateInstanceName(instance); err != nil {
		return err
	}
	txt := EncodeTXT(info)
	if err := ValidateTXT(txt); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	server, err := zeroconf.Register(
		instance,
		ServiceType,
		Domain,
		info.port(),
		TXTRecordsToStrings(txt),
		interfaces(a.config.Interface),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", ServiceType, err)
	}
	a.server = server
	return nil
}

// Update replaces the TXT records of the running announcement.
func (a *MDNSAdvertiser) Update(info *DeviceInfo) error {
	txt := EncodeTXT(info)
	if err := ValidateTXT(txt); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server == nil {
		return ErrNotAdvertising
	}
	a.server.SetText(TXTRecordsToStrings(txt))
	return nil
}

// Stop withdraws the announcement.
func (a *MDNSAdvertiser) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
	return nil
}

// browseFunc runs one DNS-SD browse until ctx is done.
type browseFunc func(ctx context.Context, entries, removed chan *zeroconf.ServiceEntry, opts []zeroconf.ClientOption) error

func zeroconfBrowse(ctx context.Context, entries, removed chan *zeroconf.ServiceEntry, opts []zeroconf.ClientOption) error {
	return zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, opts...)
}

// MDNSBrowser implements the Browser interface using zeroconf.
type MDNSBrowser struct {
	config BrowserConfig
	browse browseFunc

	mu      sync.Mutex
	cancels map[int]context.CancelFunc
	nextID  int
}

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config BrowserConfig) *MDNSBrowser {
	return &MDNSBrowser{
		config:  config,
		browse:  zeroconfBrowse,
		cancels: make(map[int]context.CancelFunc),
	}
}

// Browse searches for RCI devices.
// Services are aggregated by instance name - addresses from multiple interfaces
// are combined into a single entry. Removals are reported when the last
// address disappears.
func (b *MDNSBrowser) Browse(ctx context.Context) (<-chan *Service, <-chan *Service, error) {
	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.cancels[id] = cancel
	b.mu.Unlock()

	added := make(chan *Service)
	removed := make(chan *Service)

	entries := make(chan *zeroconf.ServiceEntry)
	gone := make(chan *zeroconf.ServiceEntry)

	go func() {
		defer close(added)
		defer close(removed)
		defer b.forget(id)

		agg := newAggregator()
		emit := func(ch chan *Service, svc *Service) bool {
			select {
			case ch <- svc:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				if svc := agg.add(entry); svc != nil && !emit(added, svc) {
					return
				}

			case entry, ok := <-gone:
				if !ok {
					gone = nil
					continue
				}
				if svc := agg.remove(entry); svc != nil && !emit(removed, svc) {
					return
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		if err := b.browse(ctx, entries, gone, b.browserOptions()); err != nil {
			slog.Debug("discovery: browse ended", "error", err)
			cancel()
		}
	}()

	return added, removed, nil
}

func (b *MDNSBrowser) forget(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cancel, ok := b.cancels[id]; ok {
		cancel()
		delete(b.cancels, id)
	}
}

// Find returns the device with the given id, or the first one seen when id
// is empty.
func (b *MDNSBrowser) Find(ctx context.Context, deviceID string) (*Service, error) {
	if b.config.BrowseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.BrowseTimeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	added, removed, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}
	for {
		select {
		case svc, ok := <-added:
			if !ok {
				if ctx.Err() != nil {
					return nil, fmt.Errorf("%w: %w", ErrNotFound, ctx.Err())
				}
				return nil, ErrNotFound
			}
			if deviceID == "" || svc.Info.DeviceID == deviceID {
				return svc, nil
			}
		case _, ok := <-removed:
			if !ok {
				removed = nil
			}
		}
	}
}

// Stop stops all active browsing operations.
func (b *MDNSBrowser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, cancel := range b.cancels {
		cancel()
		delete(b.cancels, id)
	}
}

// browserOptions returns zeroconf client options based on config.
func (b *MDNSBrowser) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if ifaces := interfaces(b.config.Interface); ifaces != nil {
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}
	return opts
}

// aggregator merges answers for the same instance seen on several
// interfaces.
type aggregator struct {
	services map[string]*Service
}

func newAggregator() *aggregator {
	return &aggregator{services: make(map[string]*Service)}
}

// add records an answer. It returns a copy of the service when the
// instance is new.
func (g *aggregator) add(entry *zeroconf.ServiceEntry) *Service {
	svc := entryToService(entry)
	if svc == nil {
		return nil
	}
	if existing, found := g.services[svc.InstanceName]; found {
		existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
		return nil
	}
	g.services[svc.InstanceName] = svc
	out := *svc
	out.Addresses = slices.Clone(svc.Addresses)
	return &out
}

// remove drops the addresses of a withdrawn answer. It returns the service
// once no address is left.
func (g *aggregator) remove(entry *zeroconf.ServiceEntry) *Service {
	existing, found := g.services[entry.Instance]
	if !found {
		return nil
	}
	existing.Addresses = removeAddresses(existing.Addresses, entry)
	if len(existing.Addresses) > 0 {
		return nil
	}
	delete(g.services, entry.Instance)
	return existing
}

// entryToService converts a zeroconf entry, or returns nil when its TXT
// records do not describe an RCI device.
func entryToService(entry *zeroconf.ServiceEntry) *Service {
	info, err := DecodeTXT(StringsToTXTRecords(entry.Text))
	if err != nil {
		slog.Debug("discovery: ignoring entry", "instance", entry.Instance, "error", err)
		return nil
	}
	info.InstanceName = entry.Instance
	info.Port = uint16(entry.Port)

	return &Service{
		InstanceName: entry.Instance,
		Host:         entry.HostName,
		Port:         uint16(entry.Port),
		Addresses:    entryAddresses(entry),
		Info:         *info,
	}
}

func entryAddresses(entry *zeroconf.ServiceEntry) []string {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return addrs
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, more []string) []string {
	for _, addr := range more {
		if !slices.Contains(existing, addr) {
			existing = append(existing, addr)
		}
	}
	return existing
}

// removeAddresses removes the addresses of a zeroconf entry from the list.
// An entry without addresses withdraws them all.
func removeAddresses(addresses []string, entry *zeroconf.ServiceEntry) []string {
	gone := entryAddresses(entry)
	if len(gone) == 0 {
		return nil
	}
	return slices.DeleteFunc(addresses, func(a string) bool { return slices.Contains(gone, a) })
}

// Ensure MDNSAdvertiser implements Advertiser interface.
var _ Advertiser = (*MDNSAdvertiser)(nil)

// Ensure MDNSBrowser implements Browser interface.
var _ Browser = (*MDNSBrowser)(nil)
