package discovery

import (
	"context"
	"time"
)

// Browser provides mDNS service browsing capabilities.
type Browser interface {
	// Browse searches for RCI devices.
	// Returns two channels: added (new devices) and removed (devices that disappeared).
	// Both channels are closed when the context is cancelled or browsing completes.
	Browse(ctx context.Context) (added, removed <-chan *Service, err error)

	// Find returns the device with the given id, or the first device seen
	// when id is empty. It gives up after the browse timeout.
	Find(ctx context.Context, deviceID string) (*Service, error)

	// Stop stops all active browsing operations.
	Stop()
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout bounds Find.
	// Default: 10 seconds.
	BrowseTimeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		BrowseTimeout: BrowseTimeout,
	}
}

// FilterFunc is a function that filters browse results.
type FilterFunc func(*Service) bool

// FilterByModel returns a filter that matches devices of any of the given
// models.
func FilterByModel(models ...string) FilterFunc {
	set := make(map[string]struct{}, len(models))
	for _, m := range models {
		set[m] = struct{}{}
	}
	return func(svc *Service) bool {
		_, ok := set[svc.Info.Model]
		return ok
	}
}

// FilterBrowseResults filters a channel of services.
func FilterBrowseResults(in <-chan *Service, filter FilterFunc) <-chan *Service {
	out := make(chan *Service)
	go func() {
		defer close(out)
		for svc := range in {
			if filter(svc) {
				out <- svc
			}
		}
	}()
	return out
}
