package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/mash-protocol/rci-go/pkg/log"
)

func TestViewFormatsEvents(t *testing.T) {
	code := 2
	events := append(sampleEvents(),
		log.Event{
			Timestamp:    time.Date(2026, 3, 2, 9, 31, 0, 0, time.UTC),
			ConnectionID: "abc12345-0000",
			Layer:        log.LayerTransport,
			Category:     log.CategoryControl,
			ControlMsg:   &log.ControlMsgEvent{Type: log.ControlMsgPing, Seq: 9},
		},
		log.Event{
			Timestamp:    time.Date(2026, 3, 2, 9, 32, 0, 0, time.UTC),
			ConnectionID: "abc12345-0000",
			Layer:        log.LayerEngine,
			Category:     log.CategoryError,
			Error:        &log.ErrorEventData{Layer: log.LayerEngine, Message: "bad command", Code: &code, Context: "Unknown command"},
		},
		log.Event{
			Timestamp:    time.Date(2026, 3, 2, 9, 33, 0, 0, time.UTC),
			ConnectionID: "abc12345-0000",
			Layer:        log.LayerTransport,
			Category:     log.CategoryMessage,
			Frame:        &log.FrameEvent{Size: 6, Data: []byte{0, 0, 0, 2, 0xca, 0xfe}, Truncated: true},
		},
		log.Event{
			Timestamp:    time.Date(2026, 3, 2, 9, 34, 0, 0, time.UTC),
			ConnectionID: "abc12345-0000",
			Layer:        log.LayerEngine,
			Category:     log.CategoryState,
			StateChange:  &log.StateChangeEvent{Entity: log.StateEntitySession, OldState: "ACTIVE", NewState: "IDLE", Reason: "complete"},
		},
	)
	path := createTestLogFile(t, events)

	var buf bytes.Buffer
	if err := RunView(path, log.Filter{}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"2026-03-02T09:30:00.123456Z [conn:abc12345] IN  ENVELOPE START [session:sess-000]",
		"  Seq: 0  Final",
		"  Payload: 7 bytes",
		"ENGINE ELEMENT_PROCESS",
		"  Result: CONTINUE",
		"  Group: 1  Instance: 2",
		"CTRL PING",
		"  Seq: 9",
		"  Message: bad command",
		"  Code: 2",
		"  Context: Unknown command",
		"  Data: 00000002cafe (truncated)",
		"  ACTIVE -> IDLE",
		"  Reason: complete",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q\n%s", want, output)
		}
	}
}

func TestViewFilter(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	cat := log.CategoryCallback
	var buf bytes.Buffer
	if err := RunView(path, log.Filter{Category: &cat}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	if n := strings.Count(buf.String(), "[conn:"); n != 1 {
		t.Errorf("expected 1 event, got %d", n)
	}

	dir := log.DirectionOut
	buf.Reset()
	if err := RunView(path, log.Filter{Direction: &dir}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	if !strings.Contains(buf.String(), "REPLY") || strings.Contains(buf.String(), "START") {
		t.Errorf("direction filter output:\n%s", buf.String())
	}
}

func TestParseFlags(t *testing.T) {
	layers := map[string]log.Layer{"transport": log.LayerTransport, "Envelope": log.LayerEnvelope, "ENGINE": log.LayerEngine}
	for s, want := range layers {
		got, err := ParseLayerFlag(s)
		if err != nil || got != want {
			t.Errorf("ParseLayerFlag(%q) = %v, %v", s, got, err)
		}
	}
	if _, err := ParseLayerFlag("wire"); err == nil {
		t.Error("expected error for unknown layer")
	}

	if d, err := ParseDirectionFlag("OUT"); err != nil || d != log.DirectionOut {
		t.Errorf("ParseDirectionFlag(OUT) = %v, %v", d, err)
	}
	if _, err := ParseDirectionFlag("sideways"); err == nil {
		t.Error("expected error for unknown direction")
	}

	if c, err := ParseCategoryFlag("callback"); err != nil || c != log.CategoryCallback {
		t.Errorf("ParseCategoryFlag(callback) = %v, %v", c, err)
	}
	if _, err := ParseCategoryFlag("snapshot"); err == nil {
		t.Error("expected error for unknown category")
	}
}
