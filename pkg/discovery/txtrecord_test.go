package discovery_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/mash-protocol/rci-go/pkg/discovery"
)

func TestTXTRoundTrip(t *testing.T) {
	info := &discovery.DeviceInfo{
		DeviceID:        "00409D000001",
		Model:           "ConnectPort X4",
		ProtocolVersion: "1",
		SchemaVersion:   "2.1",
		DeviceName:      "Garage gateway",
	}

	strs := discovery.TXTRecordsToStrings(discovery.EncodeTXT(info))
	got, err := discovery.DecodeTXT(discovery.StringsToTXTRecords(strs))
	if err != nil {
		t.Fatalf("DecodeTXT failed: %v", err)
	}
	if *got != *info {
		t.Errorf("decoded %+v, want %+v", got, info)
	}
}

func TestEncodeTXTDefaults(t *testing.T) {
	txt := discovery.EncodeTXT(&discovery.DeviceInfo{DeviceID: "dev1", Model: "m"})

	if txt[discovery.TXTKeyVersion] != discovery.ProtocolVersion {
		t.Errorf("ver = %q, want %q", txt[discovery.TXTKeyVersion], discovery.ProtocolVersion)
	}
	if _, ok := txt[discovery.TXTKeySchema]; ok {
		t.Error("empty schema version should be omitted")
	}
	if _, ok := txt[discovery.TXTKeyDeviceName]; ok {
		t.Error("empty device name should be omitted")
	}
}

func TestDecodeTXTMissingFields(t *testing.T) {
	tests := []struct {
		name string
		txt  discovery.TXTRecordMap
	}{
		{"no id", discovery.TXTRecordMap{"model": "m", "ver": "1"}},
		{"empty id", discovery.TXTRecordMap{"id": "", "model": "m", "ver": "1"}},
		{"no model", discovery.TXTRecordMap{"id": "d", "ver": "1"}},
		{"no version", discovery.TXTRecordMap{"id": "d", "model": "m"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := discovery.DecodeTXT(tt.txt)
			if !errors.Is(err, discovery.ErrMissingRequired) {
				t.Errorf("err = %v, want ErrMissingRequired", err)
			}
		})
	}
}

func TestStringsToTXTRecords(t *testing.T) {
	txt := discovery.StringsToTXTRecords([]string{"id=a=b", "flag", "", "model="})

	if txt["id"] != "a=b" {
		t.Errorf("id = %q, want split on first '='", txt["id"])
	}
	if v, ok := txt["flag"]; !ok || v != "" {
		t.Errorf("flag = %q, %v", v, ok)
	}
	if v, ok := txt["model"]; !ok || v != "" {
		t.Errorf("model = %q, %v", v, ok)
	}
	if len(txt) != 3 {
		t.Errorf("len = %d, want 3", len(txt))
	}
}

func TestTXTRecordsToStringsSorted(t *testing.T) {
	got := discovery.TXTRecordsToStrings(discovery.TXTRecordMap{"ver": "1", "id": "d", "model": "m"})
	want := "id=d,model=m,ver=1"
	if strings.Join(got, ",") != want {
		t.Errorf("got %v, want %s", got, want)
	}
}

func TestValidateTXT(t *testing.T) {
	ok := discovery.EncodeTXT(&discovery.DeviceInfo{DeviceID: "d", Model: "m"})
	if err := discovery.ValidateTXT(ok); err != nil {
		t.Errorf("ValidateTXT(small) = %v", err)
	}

	long := discovery.TXTRecordMap{"dn": strings.Repeat("x", 300)}
	if err := discovery.ValidateTXT(long); !errors.Is(err, discovery.ErrInvalidTXTRecord) {
		t.Errorf("ValidateTXT(long string) = %v", err)
	}

	big := discovery.TXTRecordMap{}
	for _, k := range []string{"a", "b", "c"} {
		big[k] = strings.Repeat("x", 200)
	}
	if err := discovery.ValidateTXT(big); !errors.Is(err, discovery.ErrTXTTooLarge) {
		t.Errorf("ValidateTXT(big) = %v", err)
	}
}

func TestInstanceName(t *testing.T) {
	d := &discovery.DeviceInfo{DeviceID: "00409D000001"}
	if got := d.Instance(); got != "RCI-00409D000001" {
		t.Errorf("Instance() = %q", got)
	}

	d = &discovery.DeviceInfo{DeviceID: strings.Repeat("f", 80)}
	if err := discovery.ValidateInstanceName(d.Instance()); err != nil {
		t.Errorf("generated name not truncated: %v", err)
	}

	d = &discovery.DeviceInfo{InstanceName: "Lab device", DeviceID: "x"}
	if got := d.Instance(); got != "Lab device" {
		t.Errorf("Instance() = %q, want override", got)
	}

	if err := discovery.ValidateInstanceName(""); err == nil {
		t.Error("empty name accepted")
	}
}

func TestServiceAddress(t *testing.T) {
	tests := []struct {
		svc  discovery.Service
		want string
	}{
		{discovery.Service{Host: "dev.local.", Port: 4530}, "dev.local.:4530"},
		{discovery.Service{Host: "dev.local.", Port: 4530, Addresses: []string{"192.168.1.5"}}, "192.168.1.5:4530"},
		{discovery.Service{Port: 4530, Addresses: []string{"fe80::1"}}, "[fe80::1]:4530"},
	}
	for _, tt := range tests {
		if got := tt.svc.Address(); got != tt.want {
			t.Errorf("Address() = %q, want %q", got, tt.want)
		}
	}
}

func TestFilterByModel(t *testing.T) {
	in := make(chan *discovery.Service, 3)
	in <- &discovery.Service{InstanceName: "a", Info: discovery.DeviceInfo{Model: "X4"}}
	in <- &discovery.Service{InstanceName: "b", Info: discovery.DeviceInfo{Model: "X2"}}
	in <- &discovery.Service{InstanceName: "c", Info: discovery.DeviceInfo{Model: "X4"}}
	close(in)

	var names []string
	for svc := range discovery.FilterBrowseResults(in, discovery.FilterByModel("X4")) {
		names = append(names, svc.InstanceName)
	}
	if strings.Join(names, ",") != "a,c" {
		t.Errorf("filtered = %v, want [a c]", names)
	}
}
