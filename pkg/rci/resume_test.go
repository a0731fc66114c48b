package rci_test

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/mash-protocol/rci-go/pkg/command"
	"github.com/mash-protocol/rci-go/pkg/rci"
	"github.com/mash-protocol/rci-go/pkg/schema"
)

func sampleRequests() map[string][]byte {
	return map[string][]byte{
		"query all": command.New(rci.CommandQuerySetting).Bytes(),
		"query nested": command.New(rci.CommandQuerySetting).
			Source(rci.SourceStored).
			Group(2, command.Instance{Index: 2}).List(1, command.Instance{}).
			Bytes(),
		"set mixed": command.New(rci.CommandSetSetting).
			Group(3, command.Instance{}).
			Set(0, rci.Int32Value(-123456)).
			Set(3, rci.StringValue(schema.TypeString, strings.Repeat("host", 40))).
			End().
			Group(1, command.Instance{Key: "alice"}).
			Set(0, rci.StringValue(schema.TypeString, "Alice")).
			End().
			Group(2, command.Instance{Index: 1, Count: 3, Resize: true}).
			Set(0, rci.StringValue(schema.TypeIPv4, "172.16.0.1")).
			List(1, command.Instance{Index: 1}).
			Set(0, rci.StringValue(schema.TypeIPv4, "172.16.0.254")).
			Bytes(),
		"do command": command.New(rci.CommandDoCommand).Target("ping").Payload(strings.Repeat("x", 300)).Bytes(),
	}
}

func TestChunkedInputIsResumable(t *testing.T) {
	s := testSchema()
	for name, req := range sampleRequests() {
		t.Run(name, func(t *testing.T) {
			ref := newRecorder()
			want, _ := exchange(t, newEngine(t, s, ref, rci.Config{}), req, 0, 4096)

			for _, chunk := range []int{1, 2, 3, 7, len(req) - 1} {
				for _, outSize := range []int{1, 2, 5, 4096} {
					rec := newRecorder()
					got, status := exchange(t, newEngine(t, s, rec, rci.Config{}), req, chunk, outSize)
					if status != rci.StatusComplete {
						t.Fatalf("chunk %d out %d: status = %s", chunk, outSize, status)
					}
					if !bytes.Equal(got, want) {
						t.Fatalf("chunk %d out %d: reply differs\ngot  % X\nwant % X", chunk, outSize, got, want)
					}
					equalEvents(t, rec.events, ref.events)
				}
			}
		})
	}
}

func TestBusyIsTransparent(t *testing.T) {
	s := testSchema()
	for name, req := range sampleRequests() {
		t.Run(name, func(t *testing.T) {
			ref := newRecorder()
			want, _ := exchange(t, newEngine(t, s, ref, rci.Config{}), req, 0, 4096)

			rec := newRecorder()
			rec.busy = 3
			got, status := exchange(t, newEngine(t, s, rec, rci.Config{}), req, 5, 16)
			if status != rci.StatusComplete {
				t.Fatalf("status = %s", status)
			}
			if rec.changed {
				t.Fatalf("context changed between busy retries")
			}
			if !bytes.Equal(got, want) {
				t.Fatalf("reply differs\ngot  % X\nwant % X", got, want)
			}
			equalEvents(t, rec.events, ref.events)
		})
	}
}

func TestBusyReturnsStatusBusy(t *testing.T) {
	rec := newRecorder()
	rec.busy = 2
	e := newEngine(t, testSchema(), rec, rci.Config{})

	req := command.New(rci.CommandReboot).Bytes()
	out := make([]byte, 16)
	var statuses []string
	action := rci.SessionStart
	for {
		res := e.Step(action, rci.Input{Data: req, Final: true}, out)
		action = rci.SessionActive
		req = req[res.Read:]
		statuses = append(statuses, res.Status.String())
		if res.Status.Done() {
			break
		}
	}
	// SESSION_START, ACTION_START, REBOOT, ACTION_END and SESSION_END each
	// answer busy twice.
	if got := strings.Count(strings.Join(statuses, " "), "BUSY"); got != 10 {
		t.Fatalf("busy steps = %d, want 10 (%v)", got, statuses)
	}
}

type balance struct{ open, close string }

var balances = []balance{
	{"SESSION_START", "SESSION_END"},
	{"ACTION_START", "ACTION_END"},
	{"GROUP_START", "GROUP_END"},
	{"LIST_START", "LIST_END"},
	{"GROUP_INSTANCES_LOCK", "GROUP_INSTANCES_UNLOCK"},
	{"LIST_INSTANCES_LOCK", "LIST_INSTANCES_UNLOCK"},
}

func checkBalanced(t *testing.T, events []string) {
	t.Helper()
	for _, b := range balances {
		if o, c := count(events, b.open), count(events, b.close); o != c {
			t.Errorf("%s = %d, %s = %d\n  %s", b.open, o, b.close, c, strings.Join(events, "\n  "))
		}
	}
}

func TestFatalErrorsCloseEveryLevel(t *testing.T) {
	s := testSchema()
	requests := sampleRequests()
	for _, name := range []string{"query all", "query nested", "set mixed"} {
		req := requests[name]
		ref := newRecorder()
		exchange(t, newEngine(t, s, ref, rci.Config{}), req, 0, 4096)
		checkBalanced(t, ref.events)

		seen := map[string]bool{}
		for _, ev := range ref.events {
			if seen[ev] || ev == "SESSION_END" {
				continue
			}
			seen[ev] = true
			for _, id := range []rci.ErrorID{rci.ErrorFatalBadValue, rci.ErrorBadValue} {
				t.Run(fmt.Sprintf("%s/%s/%s", name, ev, id), func(t *testing.T) {
					rec := newRecorder()
					rec.errors = map[string]rci.ErrorID{ev: id}
					reply, status := exchange(t, newEngine(t, s, rec, rci.Config{}), req, 3, 7)
					if status != rci.StatusComplete {
						t.Fatalf("status = %s", status)
					}
					checkBalanced(t, rec.events)
					if last := rec.events[len(rec.events)-1]; last != "SESSION_END" {
						t.Errorf("last event = %s", last)
					}

					r, err := command.Decode(s, reply)
					if err != nil {
						t.Fatalf("Decode(% X) failed: %v", reply, err)
					}
					if r.Err() == nil {
						t.Fatalf("reply carries no error")
					}
					if id.IsFatal() && count(rec.events, "ELEMENT_PROCESS") > count(ref.events, "ELEMENT_PROCESS") {
						t.Errorf("fatal error did not stop traversal")
					}
				})
			}
		}
	}
}
