package main

import (
	"context"
	"errors"
	"testing"

	"github.com/mash-protocol/rci-go/pkg/connection"
	"github.com/mash-protocol/rci-go/pkg/discovery"
	"github.com/mash-protocol/rci-go/pkg/transport"
	"github.com/mash-protocol/rci-go/pkg/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBrowser struct {
	services map[string]*discovery.Service
}

func (b *fakeBrowser) Browse(context.Context) (<-chan *discovery.Service, <-chan *discovery.Service, error) {
	added := make(chan *discovery.Service, len(b.services))
	removed := make(chan *discovery.Service)
	for _, svc := range b.services {
		added <- svc
	}
	close(added)
	close(removed)
	return added, removed, nil
}

func (b *fakeBrowser) Find(_ context.Context, id string) (*discovery.Service, error) {
	if svc, ok := b.services[id]; ok {
		return svc, nil
	}
	return nil, discovery.ErrNotFound
}

func (b *fakeBrowser) Stop() {}

func TestDeviceLinkResolve(t *testing.T) {
	browser := &fakeBrowser{services: map[string]*discovery.Service{
		"rci-1a2b": {
			Host:      "gateway.local",
			Port:      4531,
			Addresses: []string{"192.168.1.20"},
			Info:      discovery.DeviceInfo{DeviceID: "rci-1a2b", SchemaVersion: "1.4"},
		},
		"rci-3c4d": {
			Host: "boiler.local",
			Port: 4530,
			Info: discovery.DeviceInfo{DeviceID: "rci-3c4d", SchemaVersion: "2.0"},
		},
	}}
	l := newDeviceLink(transport.NewClient(transport.ClientConfig{}), browser, "1.0", nil)
	ctx := context.Background()

	tests := []struct {
		target string
		want   string
	}{
		{"10.0.0.7:4530", "10.0.0.7:4530"},
		{"[fe80::1]:4530", "[fe80::1]:4530"},
		{"rci-1a2b", "192.168.1.20:4531"},
	}
	for _, tt := range tests {
		got, err := l.resolve(ctx, tt.target)
		require.NoError(t, err, tt.target)
		assert.Equal(t, tt.want, got)
	}

	_, err := l.resolve(ctx, "rci-ffff")
	assert.True(t, errors.Is(err, discovery.ErrNotFound))

	_, err = l.resolve(ctx, "rci-3c4d")
	assert.ErrorIs(t, err, version.ErrIncompatible)

	l.browser = nil
	_, err = l.resolve(ctx, "rci-1a2b")
	assert.ErrorContains(t, err, "discovery is disabled")
}

func TestDeviceLinkNotConnected(t *testing.T) {
	l := newDeviceLink(transport.NewClient(transport.ClientConfig{}), nil, "1.0", nil)

	assert.Equal(t, "not connected", l.Status())
	_, _, err := l.Exchange(context.Background(), []byte{0x01})
	assert.ErrorIs(t, err, connection.ErrNotConnected)
	assert.NoError(t, l.Close())
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}
